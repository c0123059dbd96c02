// Package main はShashinサーバーコマンドの実装です
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"go.uber.org/zap"

	"shashin/internal/config"
	"shashin/internal/logging"
	"shashin/internal/server"
)

func main() {
	// コマンドラインオプション
	var (
		host      = flag.String("host", "", "サーバーのホスト (デフォルト: 0.0.0.0)")
		port      = flag.Int("port", 0, "サーバーのポート (デフォルト: 8080)")
		device    = flag.String("device", "", "カメラデバイスのパス (例: /dev/video0)")
		mock      = flag.Bool("mock", false, "合成フレームを返すモックカメラを使う")
		autoStart = flag.Bool("auto-start", false, "起動時にセッションを開始する")
		logLevel  = flag.String("log-level", "", "ログレベル (debug, info, warn, error)")
		help      = flag.Bool("help", false, "ヘルプを表示")
	)

	flag.Parse()

	// ヘルプ表示
	if *help {
		fmt.Println("Shashin")
		fmt.Println()
		fmt.Println("使用方法:")
		fmt.Println("  server [オプション]")
		fmt.Println()
		fmt.Println("オプション:")
		flag.PrintDefaults()
		os.Exit(0)
	}

	// 設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("設定の読み込みに失敗しました: %v", err)
	}

	// コマンドラインオプションで設定を上書き
	if *host != "" {
		cfg.Server.Host = *host
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *device != "" {
		cfg.Camera.Device = *device
	}
	if *mock {
		cfg.Camera.Mock = true
	}
	if *autoStart {
		cfg.Server.AutoStart = true
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("設定が不正です: %v", err)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		log.Fatalf("ロガーの初期化に失敗しました: %v", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	srv, err := server.NewFromConfig(cfg, logger)
	if err != nil {
		logger.Fatal("サーバーの作成に失敗しました", zap.Error(err))
	}

	// サーバーを起動
	logger.Info("Shashin サーバーを起動します", zap.String("addr", cfg.ServerAddress()))
	if err := srv.Start(context.Background()); err != nil {
		logger.Fatal("サーバーの起動に失敗しました", zap.Error(err))
	}
}
