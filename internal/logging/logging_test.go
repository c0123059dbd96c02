package logging

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestNew(t *testing.T) {
	testCases := []struct {
		name        string
		level       string
		development bool
		expectErr   bool
		enabled     zapcore.Level
	}{
		{name: "本番形式のinfo", level: "info", enabled: zapcore.InfoLevel},
		{name: "開発形式のdebug", level: "debug", development: true, enabled: zapcore.DebugLevel},
		{name: "大文字", level: "WARN", enabled: zapcore.WarnLevel},
		{name: "不明なレベル", level: "verbose", expectErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			logger, err := New(tc.level, tc.development)
			if tc.expectErr {
				if err == nil {
					t.Error("Expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("New failed: %v", err)
			}
			defer func() { _ = logger.Sync() }()

			if !logger.Core().Enabled(tc.enabled) {
				t.Errorf("Expected level %s to be enabled", tc.enabled)
			}
			if tc.enabled > zapcore.DebugLevel && logger.Core().Enabled(tc.enabled-1) {
				t.Errorf("Expected level %s to be disabled", tc.enabled-1)
			}
		})
	}
}

func TestValidLevel(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error"} {
		if !ValidLevel(level) {
			t.Errorf("Expected %s to be valid", level)
		}
	}
	if ValidLevel("loud") {
		t.Error("Expected loud to be invalid")
	}
}
