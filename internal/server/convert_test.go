package server

import (
	"testing"

	"shashin/internal/camera"
	"shashin/internal/compose"
	"shashin/internal/generated"
	"shashin/internal/session"
)

func TestApplyConfig(t *testing.T) {
	base := session.DefaultCaptureConfig().
		WithVideoConstraint(session.ConstraintDeviceID, "/dev/video0").
		WithVideoConstraint("ctrl.gain", "2")

	tests := []struct {
		name  string
		req   generated.CaptureConfig
		check func(t *testing.T, got session.CaptureConfig)
	}{
		{
			name: "指定なし",
			req:  generated.CaptureConfig{},
			check: func(t *testing.T, got session.CaptureConfig) {
				if got.Width != base.Width || got.VideoConstraints["ctrl.gain"] != "2" {
					t.Errorf("設定が変わりました: %+v", got)
				}
			},
		},
		{
			name: "空のvideoConstraintsで消える",
			req:  generated.CaptureConfig{VideoConstraints: &map[string]string{}},
			check: func(t *testing.T, got session.CaptureConfig) {
				if len(got.VideoConstraints) != 0 {
					t.Errorf("videoConstraintsが残っています: %v", got.VideoConstraints)
				}
			},
		},
		{
			name: "videoConstraintsは丸ごと置き換わる",
			req:  generated.CaptureConfig{VideoConstraints: &map[string]string{"frameRate": "15"}},
			check: func(t *testing.T, got session.CaptureConfig) {
				if len(got.VideoConstraints) != 1 || got.VideoConstraints["frameRate"] != "15" {
					t.Errorf("videoConstraintsが正しくありません: %v", got.VideoConstraints)
				}
			},
		},
		{
			name: "列挙値と数値",
			req: generated.CaptureConfig{
				Width:          ptr(640),
				FacingMode:     ptr(generated.CaptureConfigFacingModeEnvironment),
				AspectRatio:    ptr(generated.CaptureConfigAspectRatioN169),
				TeardownPolicy: ptr(generated.CaptureConfigTeardownPolicyDiscard),
			},
			check: func(t *testing.T, got session.CaptureConfig) {
				if got.Width != 640 || got.Height != base.Height {
					t.Errorf("解像度が正しくありません: %dx%d", got.Width, got.Height)
				}
				if got.FacingMode != camera.FacingEnvironment || got.AspectRatio != compose.Aspect16x9 {
					t.Errorf("列挙値が正しくありません: %s %s", got.FacingMode, got.AspectRatio)
				}
				if got.TeardownPolicy != session.TeardownDiscard {
					t.Errorf("teardownPolicyが正しくありません: %s", got.TeardownPolicy)
				}
			},
		},
		{
			name: "フィルタは項目ごとに重なる",
			req:  generated.CaptureConfig{Filters: &generated.FilterOptions{Brightness: ptr(0.0)}},
			check: func(t *testing.T, got session.CaptureConfig) {
				want := compose.DefaultFilterOptions()
				want.Brightness = 0
				if got.Filters != want {
					t.Errorf("フィルタが正しくありません: %+v", got.Filters)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := applyConfig(base, tt.req)
			tt.check(t, got)
			if base.VideoConstraints["ctrl.gain"] != "2" {
				t.Error("元の設定が書き換えられました")
			}
		})
	}
}

func TestConvertCaptureConfig(t *testing.T) {
	cfg := session.DefaultCaptureConfig().WithVideoConstraint("ctrl.gain", "2")
	out := convertCaptureConfig(cfg)

	// 応答をそのまま送り返しても設定は変わらない
	if got := applyConfig(session.CaptureConfig{}, out); got.Normalize().Filters != cfg.Filters ||
		got.Width != cfg.Width || got.VideoConstraints["ctrl.gain"] != "2" {
		t.Errorf("変換結果が元の設定と一致しません: %+v", got)
	}
	if out.Watermark != nil {
		t.Error("空のウォーターマークが出力されました")
	}
}
