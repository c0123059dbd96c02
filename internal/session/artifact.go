package session

import (
	"time"
)

// PhotoArtifact は1回の写真撮影の結果。作成後は変更しない
type PhotoArtifact struct {
	EncodedImage []byte
	DataURI      string
	MIMEType     string
	Width        int
	Height       int
	CapturedAt   time.Time
}

// PhotoCaptureData は写真の出力形式
type PhotoCaptureData struct {
	DataURL string `json:"dataUrl"`
	Blob    []byte `json:"-"`
}

// CaptureData は出力形式に変換する
func (p *PhotoArtifact) CaptureData() PhotoCaptureData {
	return PhotoCaptureData{
		DataURL: p.DataURI,
		Blob:    p.EncodedImage,
	}
}

// VideoArtifact は1回の録画の結果。チャンクは到着順に連結されている
type VideoArtifact struct {
	ID           string
	EncodedVideo []byte
	MIMEType     string
	ChunkCount   int
	StartedAt    time.Time
	StoppedAt    time.Time
}

// VideoCaptureData は動画の出力形式
type VideoCaptureData struct {
	Blob []byte `json:"-"`
}

// CaptureData は出力形式に変換する
func (v *VideoArtifact) CaptureData() VideoCaptureData {
	return VideoCaptureData{Blob: v.EncodedVideo}
}

// Duration は録画時間を返す
func (v *VideoArtifact) Duration() time.Duration {
	return v.StoppedAt.Sub(v.StartedAt)
}
