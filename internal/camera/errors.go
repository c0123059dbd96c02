package camera

import "errors"

// デバイス層とストリーム管理で使うエラー種別
var (
	// ErrPermissionDenied はデバイスへのアクセス権がない
	ErrPermissionDenied = errors.New("カメラへのアクセスが拒否されました")

	// ErrDeviceUnavailable はデバイスが存在しないか使用できない
	ErrDeviceUnavailable = errors.New("カメラデバイスが利用できません")

	// ErrNoActiveStream はアクティブなストリームがない状態で操作した
	ErrNoActiveStream = errors.New("アクティブなストリームがありません")

	// ErrStreamNotReady は最初のフレームがまだ届いていない
	ErrStreamNotReady = errors.New("ストリームの準備ができていません")
)
