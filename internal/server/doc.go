// Package server は、カメラセッションを操作するHTTPサーバーを提供します。
//
// このパッケージは、HTTPサーバーの起動、ルーティング、
// プレビューの配信、撮影結果の返却を担当します。
//
// 責務:
//   - HTTPサーバーの起動と管理
//   - セッションの開始・停止・設定変更のリクエスト処理
//   - 写真と動画の返却
//   - MJPEGとWebSocketによるプレビュー配信
//
// 仕様:
//   - ルーティングにはginを使用
//   - WebSocketはgorilla/websocketを使用
//   - グレースフルシャットダウン時にセッションを停止してカメラを解放
//   - 複数クライアントの同時接続をサポート
package server
