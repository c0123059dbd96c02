package session

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"shashin/internal/camera"
)

// RecorderState は SegmentRecorder の状態
type RecorderState string

const (
	RecorderIdle      RecorderState = "idle"
	RecorderRecording RecorderState = "recording"
)

// SegmentRecorder はエンコード済みチャンクを到着順に貯めて1本の動画にする
type SegmentRecorder struct {
	device camera.Device
	logger *zap.Logger

	mu      sync.Mutex
	current *recording
}

// recording は進行中の1本の録画
type recording struct {
	id        string
	sub       camera.ChunkSubscription
	startedAt time.Time
	done      chan struct{}

	// collect だけが書き込み、done が閉じた後に読む
	chunks [][]byte
	bytes  atomic.Int64
}

// NewSegmentRecorder は新しいSegmentRecorderを作成する
func NewSegmentRecorder(device camera.Device, logger *zap.Logger) *SegmentRecorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SegmentRecorder{
		device: device,
		logger: logger,
	}
}

// Start は録画を開始する。録画中なら ErrAlreadyRecording を返す
func (r *SegmentRecorder) Start(ctx context.Context, handle *camera.StreamHandle) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.current != nil {
		return ErrAlreadyRecording
	}
	if !handle.Active() {
		return camera.ErrNoActiveStream
	}

	sub, err := r.device.SubscribeEncodedChunks(ctx, handle.Raw())
	if err != nil {
		return fmt.Errorf("%w: 録画の開始に失敗: %w", ErrCaptureFailed, err)
	}

	rec := &recording{
		id:        uuid.New().String(),
		sub:       sub,
		startedAt: time.Now(),
		done:      make(chan struct{}),
	}
	r.current = rec
	go rec.collect()

	r.logger.Info("録画を開始しました", zap.String("recording", rec.id), zap.String("handle", handle.ID()))
	return nil
}

// collect はチャンクを到着順に追記する
func (rec *recording) collect() {
	defer close(rec.done)
	for chunk := range rec.sub.Chunks() {
		rec.chunks = append(rec.chunks, chunk)
		rec.bytes.Add(int64(len(chunk)))
	}
}

// Stop は録画を確定して動画を返す。録画していなければ ErrNotRecording を返す
//
// 確定に失敗した場合も録画は終了し、状態は idle に戻る。
func (r *SegmentRecorder) Stop(ctx context.Context) (*VideoArtifact, error) {
	rec, err := r.take()
	if err != nil {
		return nil, err
	}

	finalizeErr := rec.sub.Finalize(ctx)
	<-rec.done
	stoppedAt := time.Now()

	if finalizeErr != nil {
		r.logger.Warn("録画の確定に失敗", zap.String("recording", rec.id), zap.Error(finalizeErr))
		return nil, fmt.Errorf("%w: 録画の確定に失敗: %w", ErrCaptureFailed, finalizeErr)
	}

	artifact := &VideoArtifact{
		ID:           rec.id,
		EncodedVideo: bytes.Join(rec.chunks, nil),
		MIMEType:     rec.sub.MIMEType(),
		ChunkCount:   len(rec.chunks),
		StartedAt:    rec.startedAt,
		StoppedAt:    stoppedAt,
	}

	r.logger.Info("録画を終了しました",
		zap.String("recording", rec.id),
		zap.Int("chunks", artifact.ChunkCount),
		zap.Int("bytes", len(artifact.EncodedVideo)),
		zap.Duration("duration", artifact.Duration()))
	return artifact, nil
}

// Abort は録画を中断してデータを破棄する。録画していなければ ErrNotRecording を返す
func (r *SegmentRecorder) Abort(_ context.Context) error {
	rec, err := r.take()
	if err != nil {
		return err
	}

	cancelErr := rec.sub.Cancel()
	<-rec.done

	r.logger.Info("録画を破棄しました", zap.String("recording", rec.id), zap.Int("chunks", len(rec.chunks)))
	if cancelErr != nil {
		return fmt.Errorf("録画の中断に失敗: %w", cancelErr)
	}
	return nil
}

// take は進行中の録画を取り出して idle に戻す
func (r *SegmentRecorder) take() (*recording, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.current == nil {
		return nil, ErrNotRecording
	}
	rec := r.current
	r.current = nil
	return rec, nil
}

// State は現在の状態を返す
func (r *SegmentRecorder) State() RecorderState {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current != nil {
		return RecorderRecording
	}
	return RecorderIdle
}

// IsRecording は録画中かを返す
func (r *SegmentRecorder) IsRecording() bool {
	return r.State() == RecorderRecording
}

// BytesRecorded は進行中の録画でこれまでに受け取ったバイト数を返す
func (r *SegmentRecorder) BytesRecorded() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current == nil {
		return 0
	}
	return r.current.bytes.Load()
}
