package session

import (
	"context"
	"image"
	"sync"
	"testing"
	"time"

	"shashin/internal/camera"
)

// newTestController はモックデバイスを使うControllerを作成する
func newTestController(t *testing.T, width, height int) (*Controller, *camera.MockDevice) {
	t.Helper()
	device := camera.NewMockDevice(width, height)
	streams := camera.NewStreamManager(device, nil)
	return NewController(streams, nil, nil), device
}

// startStreaming はセッションを開始してプレビューの準備完了まで待つ
func startStreaming(t *testing.T, ctrl *Controller, config CaptureConfig) {
	t.Helper()
	ctx := context.Background()
	if err := ctrl.Start(ctx, config); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	waitCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	if err := ctrl.WaitReady(waitCtx); err != nil {
		t.Fatalf("WaitReady failed: %v", err)
	}
}

// testConfig は小さい解像度の設定を返す
func testConfig() CaptureConfig {
	return DefaultCaptureConfig().WithSize(160, 120)
}

// blockingDevice は指定した操作をゲートが開くまで止めるDevice
type blockingDevice struct {
	*camera.MockDevice

	mu       sync.Mutex
	openGate chan struct{}
	readGate chan struct{}
	entered  chan string
}

func newBlockingDevice(width, height int) *blockingDevice {
	return &blockingDevice{
		MockDevice: camera.NewMockDevice(width, height),
		entered:    make(chan string, 8),
	}
}

func (d *blockingDevice) blockOpen() chan struct{} {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.openGate = make(chan struct{})
	return d.openGate
}

func (d *blockingDevice) blockRead() chan struct{} {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.readGate = make(chan struct{})
	return d.readGate
}

func (d *blockingDevice) OpenStream(ctx context.Context, constraints camera.Constraints) (camera.RawStream, error) {
	d.mu.Lock()
	gate := d.openGate
	d.mu.Unlock()

	if gate != nil {
		d.entered <- "open"
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return d.MockDevice.OpenStream(ctx, constraints)
}

func (d *blockingDevice) ReadFrame(ctx context.Context, raw camera.RawStream) (image.Image, error) {
	d.mu.Lock()
	gate := d.readGate
	d.mu.Unlock()

	if gate != nil {
		d.entered <- "read"
		<-gate
	}
	return d.MockDevice.ReadFrame(ctx, raw)
}

// waitEntered はブロック中の操作に入るまで待つ
func waitEntered(t *testing.T, d *blockingDevice, op string) {
	t.Helper()
	select {
	case got := <-d.entered:
		if got != op {
			t.Fatalf("Expected %s to block, got %s", op, got)
		}
	case <-time.After(time.Second):
		t.Fatalf("Timed out waiting for %s", op)
	}
}

// waitClosed はチャンネルが閉じられるまで残りのフレームを読み捨てて待つ
func waitClosed(ch <-chan image.Image, timeout time.Duration) bool {
	deadline := time.After(timeout)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return true
			}
		case <-deadline:
			return false
		}
	}
}

// finalizeFailDevice は録画の確定に必ず失敗するDevice
type finalizeFailDevice struct {
	*camera.MockDevice
	err error
}

func (d *finalizeFailDevice) SubscribeEncodedChunks(ctx context.Context, raw camera.RawStream) (camera.ChunkSubscription, error) {
	sub, err := d.MockDevice.SubscribeEncodedChunks(ctx, raw)
	if err != nil {
		return nil, err
	}
	return &failingSubscription{ChunkSubscription: sub, err: d.err}, nil
}

// failingSubscription は Finalize でエラーを返すチャンク購読
type failingSubscription struct {
	camera.ChunkSubscription
	err error
}

func (s *failingSubscription) Finalize(ctx context.Context) error {
	_ = s.ChunkSubscription.Finalize(ctx)
	return s.err
}
