package camera

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// FFmpegDeviceConfig はFFmpegDeviceの設定
type FFmpegDeviceConfig struct {
	FFmpegPath string
	Width      int // デバイスから取得する解像度
	Height     int
	FPS        int
}

// FFmpegDevice はV4L2デバイスをffmpeg経由で扱う Device 実装
type FFmpegDevice struct {
	discovery Discovery
	config    FFmpegDeviceConfig
	logger    *zap.Logger

	mu      sync.Mutex
	streams map[string]*ffmpegStream
}

// NewFFmpegDevice は新しいFFmpegDeviceを作成する
func NewFFmpegDevice(discovery Discovery, config FFmpegDeviceConfig, logger *zap.Logger) *FFmpegDevice {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.FFmpegPath == "" {
		config.FFmpegPath = "ffmpeg"
	}
	return &FFmpegDevice{
		discovery: discovery,
		config:    config,
		logger:    logger,
		streams:   make(map[string]*ffmpegStream),
	}
}

// ffmpegStream はffmpegで開いた1本のストリーム
type ffmpegStream struct {
	id       string
	device   string
	fps      int
	capturer *V4L2Capturer
	cancel   context.CancelFunc
	done     chan struct{}
	logger   *zap.Logger

	mu        sync.RWMutex
	active    bool
	latest    []byte
	nextSubID int
	imageSubs map[int]chan image.Image
	jpegSubs  map[int]chan []byte
}

// ID はストリーム識別子を返す
func (s *ffmpegStream) ID() string {
	return s.id
}

// Active はストリームが動作中かを返す
func (s *ffmpegStream) Active() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

// OpenStream はデバイスを解決してffmpegによる連続キャプチャを開始する
func (d *FFmpegDevice) OpenStream(ctx context.Context, constraints Constraints) (RawStream, error) {
	device := constraints.Device
	if device == "" {
		resolved, err := ResolveFacingMode(ctx, d.discovery, constraints.FacingMode)
		if err != nil {
			return nil, err
		}
		device = resolved
	}

	if err := d.discovery.CheckAccess(ctx, device); err != nil {
		return nil, err
	}

	fps := d.config.FPS
	if constraints.FrameRate > 0 {
		fps = constraints.FrameRate
	}

	capturer := NewV4L2Capturer(d.config.FFmpegPath, device, d.config.Width, d.config.Height, fps, d.logger).
		WithInputOptions(constraints.Extra)

	// "ctrl." 接頭辞のキーはv4l2コントロールとして適用する
	if controls := prefixedValues(constraints.Extra, "ctrl."); len(controls) > 0 {
		if err := capturer.SetControls(ctx, controls); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
		}
	}

	if err := capturer.TestCapture(ctx); err != nil {
		return nil, fmt.Errorf("%w: テストキャプチャに失敗: %v", ErrDeviceUnavailable, err)
	}

	// ストリームはリクエストより長生きするため、呼び出し元のキャンセルから切り離す
	streamCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	stream := &ffmpegStream{
		id:        uuid.New().String(),
		device:    device,
		fps:       fps,
		capturer:  capturer,
		cancel:    cancel,
		done:      make(chan struct{}),
		logger:    d.logger.With(zap.String("device", device)),
		active:    true,
		imageSubs: make(map[int]chan image.Image),
		jpegSubs:  make(map[int]chan []byte),
	}

	frameChan := make(chan []byte, 4)
	errorChan := make(chan error, 4)
	go capturer.StartStream(streamCtx, frameChan, errorChan)
	go stream.forwardFrames(frameChan, errorChan)

	d.mu.Lock()
	d.streams[stream.id] = stream
	d.mu.Unlock()

	d.logger.Info("ストリームを開きました", zap.String("stream", stream.id), zap.String("device", device), zap.Int("fps", fps))
	return stream, nil
}

// CloseStream はffmpegを停止し、購読を閉じる
func (d *FFmpegDevice) CloseStream(_ context.Context, raw RawStream) error {
	stream, err := d.lookup(raw)
	if err != nil {
		return err
	}

	d.mu.Lock()
	delete(d.streams, stream.id)
	d.mu.Unlock()

	stream.cancel()
	select {
	case <-stream.done:
	case <-time.After(3 * time.Second):
		stream.logger.Warn("ストリーム停止がタイムアウトしました", zap.String("stream", stream.id))
	}

	d.logger.Info("ストリームを閉じました", zap.String("stream", stream.id))
	return nil
}

// ReadFrame は最新のJPEGフレームをデコードして返す
func (d *FFmpegDevice) ReadFrame(_ context.Context, raw RawStream) (image.Image, error) {
	stream, err := d.lookup(raw)
	if err != nil {
		return nil, err
	}

	stream.mu.RLock()
	active := stream.active
	latest := stream.latest
	stream.mu.RUnlock()

	if !active {
		return nil, ErrNoActiveStream
	}
	if latest == nil {
		return nil, ErrStreamNotReady
	}

	img, err := jpeg.Decode(bytes.NewReader(latest))
	if err != nil {
		return nil, fmt.Errorf("JPEG画像のデコードに失敗: %w", err)
	}
	return img, nil
}

// SubscribeFrames はデコード済みフレームの購読を開始する
func (d *FFmpegDevice) SubscribeFrames(raw RawStream) (<-chan image.Image, func(), error) {
	stream, err := d.lookup(raw)
	if err != nil {
		return nil, nil, err
	}

	ch := make(chan image.Image, 2)
	stream.mu.Lock()
	if !stream.active {
		stream.mu.Unlock()
		return nil, nil, ErrNoActiveStream
	}
	id := stream.nextSubID
	stream.nextSubID++
	stream.imageSubs[id] = ch
	stream.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			stream.mu.Lock()
			defer stream.mu.Unlock()
			if sub, ok := stream.imageSubs[id]; ok {
				delete(stream.imageSubs, id)
				close(sub)
			}
		})
	}
	return ch, cancel, nil
}

// SubscribeEncodedChunks はWebMエンコーダを起動し、その出力を購読する
func (d *FFmpegDevice) SubscribeEncodedChunks(_ context.Context, raw RawStream) (ChunkSubscription, error) {
	stream, err := d.lookup(raw)
	if err != nil {
		return nil, err
	}

	frames, unsubscribe, err := stream.subscribeJPEG()
	if err != nil {
		return nil, err
	}

	enc, err := startEncoder(d.config.FFmpegPath, stream.fps, frames, unsubscribe, stream.logger)
	if err != nil {
		unsubscribe()
		return nil, err
	}
	return enc, nil
}

// lookup はRawStreamをこのデバイスのストリームに戻す
func (d *FFmpegDevice) lookup(raw RawStream) (*ffmpegStream, error) {
	if raw == nil {
		return nil, ErrNoActiveStream
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	stream, ok := d.streams[raw.ID()]
	if !ok {
		return nil, fmt.Errorf("%w: 不明なストリーム %s", ErrNoActiveStream, raw.ID())
	}
	return stream, nil
}

// subscribeJPEG はエンコーダ向けにJPEGバイト列を購読する
func (s *ffmpegStream) subscribeJPEG() (<-chan []byte, func(), error) {
	ch := make(chan []byte, 8)

	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return nil, nil, ErrNoActiveStream
	}
	id := s.nextSubID
	s.nextSubID++
	s.jpegSubs[id] = ch
	s.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if sub, ok := s.jpegSubs[id]; ok {
				delete(s.jpegSubs, id)
				close(sub)
			}
		})
	}
	return ch, cancel, nil
}

// forwardFrames はキャプチャからのフレームを購読者へ配る
func (s *ffmpegStream) forwardFrames(frameChan <-chan []byte, errorChan <-chan error) {
	defer close(s.done)
	defer s.deactivate()

	for {
		select {
		case frame, ok := <-frameChan:
			if !ok {
				return
			}
			s.publish(frame)

		case err := <-errorChan:
			s.logger.Warn("キャプチャエラー", zap.String("stream", s.id), zap.Error(err))
		}
	}
}

// publish は最新フレームを保存し、購読者へ転送する
func (s *ffmpegStream) publish(frame []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.latest = frame

	// エンコーダには全フレームを順番通りに渡す
	for _, sub := range s.jpegSubs {
		select {
		case sub <- frame:
		default:
			s.logger.Debug("エンコーダ入力が詰まっているためフレームを破棄", zap.String("stream", s.id))
		}
	}

	if len(s.imageSubs) == 0 {
		return
	}
	img, err := jpeg.Decode(bytes.NewReader(frame))
	if err != nil {
		s.logger.Debug("JPEGデコードに失敗", zap.Error(err))
		return
	}
	for _, sub := range s.imageSubs {
		offerImage(sub, img)
	}
}

// deactivate はストリームを停止状態にし、全ての購読を閉じる
func (s *ffmpegStream) deactivate() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.active = false
	for id, sub := range s.imageSubs {
		delete(s.imageSubs, id)
		close(sub)
	}
	for id, sub := range s.jpegSubs {
		delete(s.jpegSubs, id)
		close(sub)
	}
}

// offerImage はチャンネルがフルの場合に古いフレームを捨てて新しいものを入れる
func offerImage(ch chan image.Image, img image.Image) {
	select {
	case ch <- img:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- img:
	default:
	}
}

// prefixedValues は接頭辞付きのキーを取り出し、接頭辞を除いて返す
func prefixedValues(extra map[string]string, prefix string) map[string]string {
	out := make(map[string]string)
	for k, v := range extra {
		if strings.HasPrefix(k, prefix) {
			out[strings.TrimPrefix(k, prefix)] = v
		}
	}
	return out
}
