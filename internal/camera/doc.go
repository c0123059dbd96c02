// Package camera カメラデバイスのストリーム管理を担う
//
// # 責務
// - デバイス層（Device）の抽象化と、V4L2/ffmpeg による実装
// - ストリームの取得と解放（StreamManager / StreamHandle）
// - ライブプレビューへの結びつけと準備完了の通知（Previewer）
// - 向き（facingMode）からのデバイス解決（Discovery）
//
// # 使い分け
// このパッケージは以下の場合に使用する：
// - カメラストリームを開き、確実に閉じたい
// - 最初のフレームが届いたかを知りたい
// - 録画用にエンコード済みチャンクを購読したい
//
// # 仕様
// - StreamManager: ハンドルの所有権を一元管理し、全ての終了経路で解放する
// - Previewer: デバイスからのプッシュ型フレーム購読を消費し、購読者へ配る
// - FFmpegDevice: MJPEGをSOI/EOIマーカーで分割し、録画はffmpegでWebMにエンコード
// - MockDevice: 決定的な合成フレームと手動チャンク送出によるテスト用実装
// - Thread-safe な操作をサポート
//
// # 前提要件
//   - v4l-utils: カメラ名の取得とデバイス制御に使用
//     Ubuntu/Debian: sudo apt install v4l-utils
//   - ffmpeg (libvpx 有効): キャプチャと録画のエンコードに使用
//     Ubuntu/Debian: sudo apt install ffmpeg
//   - videoグループへの参加: デバイスアクセス権限
//     sudo usermod -a -G video $USER
package camera
