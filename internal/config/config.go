package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"shashin/internal/logging"
	"shashin/internal/session"
)

// Config はアプリケーション全体の設定を保持する構造体
type Config struct {
	Server  ServerConfig          `yaml:"server"`
	Camera  CameraConfig          `yaml:"camera"`
	Capture session.CaptureConfig `yaml:"capture"`
	Log     LogConfig             `yaml:"log"`
}

// ServerConfig はHTTPサーバーの設定
type ServerConfig struct {
	Host string `yaml:"host"` // リッスンするホスト
	Port int    `yaml:"port"` // リッスンするポート番号

	// タイムアウト設定
	ReadTimeout     time.Duration `yaml:"read_timeout"`     // 読み込みタイムアウト
	WriteTimeout    time.Duration `yaml:"write_timeout"`    // 書き込みタイムアウト
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"` // シャットダウン待ち時間

	AutoStart bool `yaml:"auto_start"` // 起動時にセッションを開始する
}

// CameraConfig はカメラデバイスの設定
type CameraConfig struct {
	Device     string `yaml:"device"`      // デバイスパス (空なら facingMode から解決)
	FFmpegPath string `yaml:"ffmpeg_path"` // ffmpeg の実行ファイル
	Mock       bool   `yaml:"mock"`        // 合成フレームを返すモックデバイスを使う

	FPS    int `yaml:"fps"`    // フレームレート (fps)
	Width  int `yaml:"width"`  // デバイスから取得する画像幅
	Height int `yaml:"height"` // デバイスから取得する画像高さ
}

// LogConfig はログ出力の設定
type LogConfig struct {
	Level       string `yaml:"level"`       // debug, info, warn, error
	Development bool   `yaml:"development"` // コンソール形式で出力する
}

// Default はデフォルト設定を返す
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    0, // ストリーミング用にタイムアウト無効化
			ShutdownTimeout: 5 * time.Second,
		},
		Camera: CameraConfig{
			FFmpegPath: "ffmpeg",
			FPS:        15,
			Width:      1280,
			Height:     720,
		},
		Capture: session.DefaultCaptureConfig(),
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load は設定を読み込む
//
// デフォルト値に SHASHIN_CONFIG で指定したYAMLファイルを重ね、
// 最後に環境変数で上書きする。
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("SHASHIN_CONFIG"); path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()
	cfg.Capture = cfg.Capture.Normalize()

	// 設定の検証
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("設定の検証に失敗: %w", err)
	}

	return cfg, nil
}

// LoadFile はYAMLファイルの内容を現在の設定に重ねる
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("設定ファイルの読み込みに失敗: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("設定ファイルの解析に失敗 (%s): %w", path, err)
	}
	return nil
}

// applyEnv は環境変数で設定を上書きする
func (c *Config) applyEnv() {
	c.Server.Host = getEnvOrDefault("SERVER_HOST", c.Server.Host)
	c.Server.Port = getEnvAsIntOrDefault("PORT", c.Server.Port)
	c.Camera.Device = getEnvOrDefault("CAMERA_DEVICE", c.Camera.Device)
	c.Camera.FFmpegPath = getEnvOrDefault("FFMPEG_PATH", c.Camera.FFmpegPath)
	c.Camera.Mock = getEnvAsBoolOrDefault("CAMERA_MOCK", c.Camera.Mock)
	c.Log.Level = getEnvOrDefault("LOG_LEVEL", c.Log.Level)
}

// Validate は設定の妥当性を検証する
func (c *Config) Validate() error {
	// サーバー設定の検証
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("無効なポート番号: %d", c.Server.Port)
	}

	// カメラ設定の検証
	if c.Camera.FPS <= 0 {
		return fmt.Errorf("無効なフレームレート: %d", c.Camera.FPS)
	}
	if c.Camera.Width <= 0 || c.Camera.Height <= 0 {
		return fmt.Errorf("無効な解像度: %dx%d", c.Camera.Width, c.Camera.Height)
	}

	if err := c.Capture.Validate(); err != nil {
		return fmt.Errorf("撮影設定が不正です: %w", err)
	}

	if !logging.ValidLevel(c.Log.Level) {
		return fmt.Errorf("無効なログレベル: %s", c.Log.Level)
	}

	return nil
}

// ServerAddress はサーバーのリッスンアドレスを返す
func (c *Config) ServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// getEnvOrDefault は環境変数を取得し、設定されていない場合はデフォルト値を返す
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsIntOrDefault は環境変数を整数として取得し、設定されていない場合はデフォルト値を返す
func getEnvAsIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var intVal int
		if _, err := fmt.Sscanf(value, "%d", &intVal); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvAsBoolOrDefault は環境変数を真偽値として取得し、設定されていない場合はデフォルト値を返す
func getEnvAsBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
