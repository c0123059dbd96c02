// Package logging はzapロガーの構築を提供する
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New はレベルと出力形式を指定してロガーを作成する
//
// development が true の場合はコンソール形式、false の場合はJSON形式で出力する。
func New(level string, development bool) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("無効なログレベル: %s: %w", level, err)
	}

	var cfg zap.Config
	if development {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("ロガーの作成に失敗: %w", err)
	}
	return logger, nil
}

// ValidLevel はログレベルとして解釈できるかを返す
func ValidLevel(level string) bool {
	_, err := zapcore.ParseLevel(level)
	return err == nil
}
