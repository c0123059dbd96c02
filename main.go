package main

import (
	"context"
	"log"

	"go.uber.org/zap"

	"shashin/internal/config"
	"shashin/internal/logging"
	"shashin/internal/server"
)

func main() {
	// 設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("設定の読み込みに失敗しました: %v", err)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		log.Fatalf("ロガーの初期化に失敗しました: %v", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	// サーバーを作成
	srv, err := server.NewFromConfig(cfg, logger)
	if err != nil {
		logger.Fatal("サーバーの作成に失敗しました", zap.Error(err))
	}

	// サーバーを起動
	if err := srv.Start(context.Background()); err != nil {
		logger.Fatal("サーバーの起動に失敗しました", zap.Error(err))
	}
}
