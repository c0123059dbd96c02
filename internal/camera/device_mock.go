package camera

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// MockMIMEType はモックの録画データのMIMEタイプ
const MockMIMEType = "application/octet-stream"

// MockDevice はテスト用の Device 実装
//
// フレームは決定的な合成画像で、購読開始時に1枚だけ自動で流れる。
// チャンクは EmitChunk で明示的に流す。
type MockDevice struct {
	mu        sync.Mutex
	frame     image.Image
	streams   map[string]*mockStream
	autoFrame bool

	// テスト制御用
	openErr    error
	readErr    error
	chunkErr   error
	openCalls  int
	closeCalls int
}

// mockStream はMockDeviceのストリーム
type mockStream struct {
	id          string
	constraints Constraints
	active      atomic.Bool
	nextSubID   int
	frameSubs   map[int]chan image.Image
	chunkSubs   []*mockChunkSubscription
}

// ID はストリーム識別子を返す
func (s *mockStream) ID() string {
	return s.id
}

// Active はストリームが開いているかを返す
func (s *mockStream) Active() bool {
	return s.active.Load()
}

// NewMockDevice は指定サイズの合成フレームを返すMockDeviceを作成する
func NewMockDevice(width, height int) *MockDevice {
	return &MockDevice{
		frame:     SyntheticFrame(width, height),
		streams:   make(map[string]*mockStream),
		autoFrame: true,
	}
}

// SyntheticFrame は座標から決まるグラデーション画像を生成する
func SyntheticFrame(width, height int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetNRGBA(x, y, color.NRGBA{
				R: uint8(x * 255 / max(width-1, 1)),
				G: uint8(y * 255 / max(height-1, 1)),
				B: uint8((x + y) % 256),
				A: 255,
			})
		}
	}
	return img
}

// OpenStream はモックストリームを開く
func (d *MockDevice) OpenStream(ctx context.Context, constraints Constraints) (RawStream, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.openCalls++
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if d.openErr != nil {
		return nil, d.openErr
	}

	stream := &mockStream{
		id:          uuid.New().String(),
		constraints: constraints.Clone(),
		frameSubs:   make(map[int]chan image.Image),
	}
	stream.active.Store(true)
	d.streams[stream.id] = stream
	return stream, nil
}

// CloseStream はモックストリームを閉じる
func (d *MockDevice) CloseStream(_ context.Context, raw RawStream) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.closeCalls++
	stream, err := d.lookupLocked(raw)
	if err != nil {
		return err
	}

	stream.active.Store(false)
	for id, sub := range stream.frameSubs {
		delete(stream.frameSubs, id)
		close(sub)
	}
	for _, sub := range stream.chunkSubs {
		sub.cancelLocked()
	}
	stream.chunkSubs = nil
	delete(d.streams, stream.id)
	return nil
}

// ReadFrame は現在の合成フレームを返す
func (d *MockDevice) ReadFrame(_ context.Context, raw RawStream) (image.Image, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, err := d.lookupLocked(raw); err != nil {
		return nil, err
	}
	if d.readErr != nil {
		return nil, d.readErr
	}
	return d.frame, nil
}

// SubscribeFrames はフレーム購読を開始する
func (d *MockDevice) SubscribeFrames(raw RawStream) (<-chan image.Image, func(), error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	stream, err := d.lookupLocked(raw)
	if err != nil {
		return nil, nil, err
	}

	ch := make(chan image.Image, 4)
	if d.autoFrame {
		ch <- d.frame
	}
	id := stream.nextSubID
	stream.nextSubID++
	stream.frameSubs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			d.mu.Lock()
			defer d.mu.Unlock()
			if sub, ok := stream.frameSubs[id]; ok {
				delete(stream.frameSubs, id)
				close(sub)
			}
		})
	}
	return ch, cancel, nil
}

// SubscribeEncodedChunks はチャンク購読を開始する
func (d *MockDevice) SubscribeEncodedChunks(_ context.Context, raw RawStream) (ChunkSubscription, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	stream, err := d.lookupLocked(raw)
	if err != nil {
		return nil, err
	}
	if d.chunkErr != nil {
		return nil, d.chunkErr
	}

	sub := &mockChunkSubscription{
		device: d,
		chunks: make(chan []byte, 256),
	}
	stream.chunkSubs = append(stream.chunkSubs, sub)
	return sub, nil
}

// lookupLocked はロック済み前提でストリームを引く
func (d *MockDevice) lookupLocked(raw RawStream) (*mockStream, error) {
	if raw == nil {
		return nil, ErrNoActiveStream
	}
	stream, ok := d.streams[raw.ID()]
	if !ok || !stream.active.Load() {
		return nil, fmt.Errorf("%w: %s", ErrNoActiveStream, raw.ID())
	}
	return stream, nil
}

// PushFrame はテスト用に全ストリームの購読者へフレームを流し、以降の ReadFrame の結果にする
func (d *MockDevice) PushFrame(img image.Image) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.frame = img
	for _, stream := range d.streams {
		for _, sub := range stream.frameSubs {
			offerImage(sub, img)
		}
	}
}

// EmitChunk はテスト用に開いている全てのチャンク購読へデータを流す
func (d *MockDevice) EmitChunk(data []byte) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	delivered := 0
	for _, stream := range d.streams {
		for _, sub := range stream.chunkSubs {
			if sub.closed {
				continue
			}
			chunk := make([]byte, len(data))
			copy(chunk, data)
			sub.chunks <- chunk
			delivered++
		}
	}
	return delivered
}

// SetAutoFrame は購読開始時にフレームを自動で流すかを設定する
func (d *MockDevice) SetAutoFrame(enabled bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.autoFrame = enabled
}

// SetOpenError はテスト用にOpenStreamの失敗を設定する
func (d *MockDevice) SetOpenError(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.openErr = err
}

// SetReadError はテスト用にReadFrameの失敗を設定する
func (d *MockDevice) SetReadError(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.readErr = err
}

// SetChunkError はテスト用にSubscribeEncodedChunksの失敗を設定する
func (d *MockDevice) SetChunkError(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.chunkErr = err
}

// OpenStreams は開いているストリーム数を返す
func (d *MockDevice) OpenStreams() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.streams)
}

// Calls はOpenStreamとCloseStreamの呼び出し回数を返す
func (d *MockDevice) Calls() (open, closed int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.openCalls, d.closeCalls
}

// Constraints は開いているストリームの条件を返す
func (d *MockDevice) Constraints(raw RawStream) (Constraints, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	stream, ok := d.streams[raw.ID()]
	if !ok {
		return Constraints{}, false
	}
	return stream.constraints.Clone(), true
}

// mockChunkSubscription はMockDeviceのチャンク購読
type mockChunkSubscription struct {
	device *MockDevice
	chunks chan []byte
	closed bool
}

// Chunks はチャンクのチャンネルを返す
func (s *mockChunkSubscription) Chunks() <-chan []byte {
	return s.chunks
}

// MIMEType はモックのMIMEタイプを返す
func (s *mockChunkSubscription) MIMEType() string {
	return MockMIMEType
}

// Finalize はチャンネルを閉じる
func (s *mockChunkSubscription) Finalize(_ context.Context) error {
	s.device.mu.Lock()
	defer s.device.mu.Unlock()
	s.cancelLocked()
	return nil
}

// Cancel はチャンネルを閉じる
func (s *mockChunkSubscription) Cancel() error {
	s.device.mu.Lock()
	defer s.device.mu.Unlock()
	s.cancelLocked()
	return nil
}

// cancelLocked はロック済み前提でチャンネルを一度だけ閉じる
func (s *mockChunkSubscription) cancelLocked() {
	if s.closed {
		return
	}
	s.closed = true
	close(s.chunks)
}
