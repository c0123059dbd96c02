package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"shashin/internal/camera"
	"shashin/internal/compose"
	"shashin/internal/session"
)

// TestConfigLoad は設定の読み込みをテストする
func TestConfigLoad(t *testing.T) {
	for _, key := range []string{"SHASHIN_CONFIG", "PORT", "LOG_LEVEL"} {
		t.Setenv(key, "")
	}

	// 設定を読み込む
	cfg, err := Load()
	if err != nil {
		t.Fatalf("設定の読み込みに失敗しました: %v", err)
	}

	// サーバー設定の検証
	if cfg.Server.Host == "" {
		t.Error("サーバーホストが設定されていません")
	}
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		t.Errorf("無効なポート番号: %d", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout <= 0 {
		t.Error("読み込みタイムアウトが設定されていません")
	}
	// WriteTimeout は 0（無効）でも正常
	if cfg.Server.WriteTimeout < 0 {
		t.Error("書き込みタイムアウトが負の値です")
	}

	// カメラ設定の検証
	if cfg.Camera.FPS <= 0 {
		t.Error("FPSが設定されていません")
	}
	if cfg.Camera.Width <= 0 || cfg.Camera.Height <= 0 {
		t.Error("解像度が設定されていません")
	}

	// 撮影設定のデフォルト値
	if cfg.Capture.FacingMode != camera.FacingUser {
		t.Errorf("デフォルトの向きが不正です: %s", cfg.Capture.FacingMode)
	}
	if cfg.Capture.PhotoQuality != 0.92 {
		t.Errorf("デフォルトの画質が不正です: %v", cfg.Capture.PhotoQuality)
	}
	if cfg.Capture.TeardownPolicy != session.TeardownFinalize {
		t.Errorf("デフォルトの停止方針が不正です: %s", cfg.Capture.TeardownPolicy)
	}
}

// TestConfigEnvOverride は環境変数による上書きをテストする
func TestConfigEnvOverride(t *testing.T) {
	t.Setenv("SHASHIN_CONFIG", "")
	t.Setenv("SERVER_HOST", "127.0.0.1")
	t.Setenv("PORT", "9090")
	t.Setenv("CAMERA_DEVICE", "/dev/video4")
	t.Setenv("CAMERA_MOCK", "true")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("設定の読み込みに失敗しました: %v", err)
	}

	if cfg.ServerAddress() != "127.0.0.1:9090" {
		t.Errorf("予期しないアドレス: %s", cfg.ServerAddress())
	}
	if cfg.Camera.Device != "/dev/video4" {
		t.Errorf("予期しないデバイス: %s", cfg.Camera.Device)
	}
	if !cfg.Camera.Mock {
		t.Error("モック指定が反映されていません")
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("予期しないログレベル: %s", cfg.Log.Level)
	}
}

// TestConfigLoadFile はYAMLファイルの読み込みをテストする
func TestConfigLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "shashin.yaml")
	content := `
server:
  port: 8181
  read_timeout: 3s
camera:
  device: /dev/video2
  fps: 30
capture:
  width: 640
  height: 480
  facing_mode: environment
  aspect_ratio: aspect-1-1
  show_grid: true
  grid_type: center
  watermark: shashin
  watermark_position: top-left
  teardown_policy: discard
log:
  level: warn
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("設定ファイルの書き込みに失敗しました: %v", err)
	}

	t.Setenv("SHASHIN_CONFIG", path)
	for _, key := range []string{"SERVER_HOST", "PORT", "CAMERA_DEVICE", "LOG_LEVEL"} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("設定の読み込みに失敗しました: %v", err)
	}

	if cfg.Server.Port != 8181 || cfg.Server.ReadTimeout != 3*time.Second {
		t.Errorf("サーバー設定が反映されていません: %+v", cfg.Server)
	}
	// ファイルに無い値はデフォルトのまま
	if cfg.Server.Host != "0.0.0.0" || cfg.Camera.Width != 1280 {
		t.Error("デフォルト値が失われています")
	}
	if cfg.Camera.Device != "/dev/video2" || cfg.Camera.FPS != 30 {
		t.Errorf("カメラ設定が反映されていません: %+v", cfg.Camera)
	}
	if cfg.Capture.AspectRatio != compose.Aspect1x1 {
		t.Errorf("旧表記のアスペクト比が解釈されていません: %s", cfg.Capture.AspectRatio)
	}
	if cfg.Capture.FacingMode != camera.FacingEnvironment || cfg.Capture.TeardownPolicy != session.TeardownDiscard {
		t.Errorf("撮影設定が反映されていません: %+v", cfg.Capture)
	}
	if cfg.Capture.PhotoQuality != 0.92 {
		t.Errorf("撮影設定のデフォルト値が失われています: %v", cfg.Capture.PhotoQuality)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("ログ設定が反映されていません: %s", cfg.Log.Level)
	}
}

// TestConfigLoadFileErrors は設定ファイルの異常系をテストする
func TestConfigLoadFileErrors(t *testing.T) {
	dir := t.TempDir()
	broken := filepath.Join(dir, "broken.yaml")
	if err := os.WriteFile(broken, []byte("server: [unclosed"), 0o644); err != nil {
		t.Fatalf("設定ファイルの書き込みに失敗しました: %v", err)
	}

	testCases := []struct {
		name string
		path string
	}{
		{name: "存在しないファイル", path: filepath.Join(dir, "missing.yaml")},
		{name: "壊れたYAML", path: broken},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("SHASHIN_CONFIG", tc.path)
			if _, err := Load(); err == nil {
				t.Error("エラーが期待されましたが、nilが返されました")
			}
		})
	}
}

// TestConfigValidation は設定の検証をテストする
func TestConfigValidation(t *testing.T) {
	testCases := []struct {
		name      string
		modify    func(c *Config)
		expectErr bool
	}{
		{name: "正常な設定", modify: func(c *Config) {}},
		{name: "無効なポート番号", modify: func(c *Config) { c.Server.Port = 70000 }, expectErr: true},
		{name: "ポート番号0", modify: func(c *Config) { c.Server.Port = 0 }, expectErr: true},
		{name: "無効なフレームレート", modify: func(c *Config) { c.Camera.FPS = 0 }, expectErr: true},
		{name: "無効な解像度", modify: func(c *Config) { c.Camera.Width = -1 }, expectErr: true},
		{name: "無効な画質", modify: func(c *Config) { c.Capture.PhotoQuality = 3 }, expectErr: true},
		{name: "無効なログレベル", modify: func(c *Config) { c.Log.Level = "loud" }, expectErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.modify(cfg)

			err := cfg.Validate()
			if tc.expectErr && err == nil {
				t.Error("エラーが期待されましたが、nilが返されました")
			}
			if !tc.expectErr && err != nil {
				t.Errorf("予期しないエラー: %v", err)
			}
		})
	}
}

// TestServerAddress はサーバーアドレスの生成をテストする
func TestServerAddress(t *testing.T) {
	testCases := []struct {
		host     string
		port     int
		expected string
	}{
		{"localhost", 8080, "localhost:8080"},
		{"0.0.0.0", 3000, "0.0.0.0:3000"},
		{"127.0.0.1", 9999, "127.0.0.1:9999"},
	}

	for _, tc := range testCases {
		cfg := &Config{Server: ServerConfig{Host: tc.host, Port: tc.port}}
		if got := cfg.ServerAddress(); got != tc.expected {
			t.Errorf("ServerAddress() = %s, expected %s", got, tc.expected)
		}
	}
}
