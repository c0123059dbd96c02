package camera

import (
	"context"
	"image"
	"maps"
)

// FacingMode はカメラの向きを表す
type FacingMode string

const (
	FacingUser        FacingMode = "user"        // 前面カメラ
	FacingEnvironment FacingMode = "environment" // 背面カメラ
)

// Valid は既知の向きかどうかを返す
func (f FacingMode) Valid() bool {
	return f == FacingUser || f == FacingEnvironment
}

// Constraints はデバイスストリームを開くときの要求条件
//
// 解像度や画質はここに含めない。これらはキャプチャ/エンコード側の設定であり、
// 変更してもストリームを開き直す必要はない。
type Constraints struct {
	FacingMode FacingMode        `yaml:"facing_mode" json:"facingMode"`
	Device     string            `yaml:"device" json:"device,omitempty"`        // 明示的なデバイスパス（空なら向きから解決）
	FrameRate  int               `yaml:"frame_rate" json:"frameRate,omitempty"` // 0 ならデバイス既定値
	Extra      map[string]string `yaml:"extra" json:"extra,omitempty"`          // デバイス層へそのまま渡す値
}

// Clone はマップを含めて複製する
func (c Constraints) Clone() Constraints {
	out := c
	if c.Extra != nil {
		out.Extra = maps.Clone(c.Extra)
	}
	return out
}

// NeedsReacquire は制約の変更でストリームの開き直しが必要か判定する
func NeedsReacquire(prev, next Constraints) bool {
	if prev.FacingMode != next.FacingMode {
		return true
	}
	if prev.Device != next.Device || prev.FrameRate != next.FrameRate {
		return true
	}
	return !maps.Equal(prev.Extra, next.Extra)
}

// RawStream はデバイス層が開いたストリームの不透明な参照
type RawStream interface {
	// ID はデバイス層でのストリーム識別子
	ID() string

	// Active はストリームが生きているかを返す
	Active() bool
}

// ChunkSubscription はエンコード済みチャンクの購読
//
// Chunks は到着順にチャンクを流し、Finalize または Cancel の後にクローズされる。
type ChunkSubscription interface {
	Chunks() <-chan []byte

	// MIMEType は結合後のデータのMIMEタイプ
	MIMEType() string

	// Finalize はエンコーダをフラッシュし、最後のチャンクを流してからチャンネルを閉じる
	Finalize(ctx context.Context) error

	// Cancel はエンコードを中断する。以降のチャンクは破棄される
	Cancel() error
}

// Device はカメラデバイス層の機能を表す
type Device interface {
	// OpenStream は条件に従ってストリームを開く
	OpenStream(ctx context.Context, constraints Constraints) (RawStream, error)

	// CloseStream はストリームを閉じ、デバイスを解放する
	CloseStream(ctx context.Context, stream RawStream) error

	// ReadFrame は現在のフレームを取得する
	ReadFrame(ctx context.Context, stream RawStream) (image.Image, error)

	// SubscribeFrames はフレームのプッシュ購読を開始する。戻り値の関数で購読を解除する
	SubscribeFrames(stream RawStream) (<-chan image.Image, func(), error)

	// SubscribeEncodedChunks はエンコード済みチャンクの購読を開始する
	SubscribeEncodedChunks(ctx context.Context, stream RawStream) (ChunkSubscription, error)
}

// Discovery はカメラデバイスの検出機能を提供する
type Discovery interface {
	// ScanDevices はシステム内の利用可能なカメラデバイスをスキャンする
	ScanDevices(ctx context.Context) ([]string, error)

	// IsDeviceAvailable は指定されたデバイスが利用可能かチェックする
	IsDeviceAvailable(ctx context.Context, device string) bool

	// CheckAccess はデバイスを開けるか確認し、失敗理由をエラー種別で返す
	CheckAccess(ctx context.Context, device string) error

	// GetDeviceInfo はデバイスの詳細情報を取得する
	GetDeviceInfo(ctx context.Context, device string) (*DeviceInfo, error)
}

// DeviceInfo はカメラデバイスの詳細情報を表す
type DeviceInfo struct {
	Device      string       // デバイスパス
	Name        string       // デバイス名
	Driver      string       // ドライバー名
	Resolutions []Resolution // サポートされる解像度
	Formats     []string     // サポートされるフォーマット
}

// Resolution は解像度を表す
type Resolution struct {
	Width  int
	Height int
}
