package session

import (
	"context"
	"errors"
	"fmt"
	"image"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"shashin/internal/camera"
	"shashin/internal/compose"
)

// State はセッションの状態
type State string

const (
	StateIdle      State = "idle"
	StateStreaming State = "streaming"
	StateCapturing State = "capturing"
	StateRecording State = "recording"
)

// 操作名
const (
	OpStart          = "start"
	OpStop           = "stop"
	OpTakePhoto      = "takePhoto"
	OpStartRecording = "startRecording"
	OpStopRecording  = "stopRecording"
	OpUpdateConfig   = "updateConfig"
)

// Listener は状態が変わるたびに呼ばれる
type Listener func(from, to State)

type stateChange struct {
	from, to State
}

// Controller はカメラセッションの状態機械
//
// 状態の確認と遷移はロック内で行い、デバイス操作などの時間のかかる処理はロック外で実行する。
// 実行中の操作がある間は Stop 以外の要求を拒否する。
type Controller struct {
	streams    *camera.StreamManager
	previewer  *camera.Previewer
	capturer   *FrameCapturer
	recorder   *SegmentRecorder
	compositor *compose.Compositor
	logger     *zap.Logger

	stopMu sync.Mutex // Stop 同士を直列化する

	mu        sync.Mutex
	state     State
	config    CaptureConfig
	handle    *camera.StreamHandle
	inflight  string
	opDone    chan struct{}
	cancelOp  context.CancelFunc
	stopping  bool
	listeners []Listener
	pending   []stateChange
}

// NewController は新しいControllerを作成する
func NewController(streams *camera.StreamManager, compositor *compose.Compositor, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	if compositor == nil {
		compositor = compose.NewCompositor(logger)
	}
	device := streams.Device()
	return &Controller{
		streams:    streams,
		previewer:  camera.NewPreviewer(device, logger),
		capturer:   NewFrameCapturer(device, logger),
		recorder:   NewSegmentRecorder(device, logger),
		compositor: compositor,
		logger:     logger,
		state:      StateIdle,
		config:     DefaultCaptureConfig(),
	}
}

// Start はストリームを取得してプレビューを開始する (idle → streaming)
//
// 取得に失敗した場合は idle のまま。
func (c *Controller) Start(ctx context.Context, config CaptureConfig) error {
	opCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	c.mu.Lock()
	if err := c.checkLocked(OpStart, StateStreaming, StateIdle); err != nil {
		c.mu.Unlock()
		return err
	}
	config = config.Normalize()
	if err := config.Validate(); err != nil {
		c.mu.Unlock()
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	c.beginLocked(OpStart, cancel)
	c.config = config
	c.mu.Unlock()

	handle, err := c.streams.Acquire(opCtx, config.Constraints())
	if err == nil {
		if bindErr := c.previewer.Bind(handle, config.ShowPreviewByDefault); bindErr != nil {
			_ = c.streams.Release(context.WithoutCancel(ctx), handle)
			err = bindErr
		}
	}

	c.mu.Lock()
	if err == nil {
		c.handle = handle
		c.setStateLocked(StateStreaming)
	}
	c.endLocked()
	c.unlockAndNotify()

	if err != nil {
		return &OpError{Op: OpStart, State: StateIdle, Err: err}
	}
	c.logger.Info("セッションを開始しました", zap.String("handle", handle.ID()), zap.String("facing_mode", string(config.FacingMode)))
	return nil
}

// Stop はセッションを終了してストリームを解放する (* → idle)
//
// 実行中の操作があれば終わるまで待つ。取得中の操作はキャンセルする。
// 録画中だった場合は TeardownPolicy に従い、確定した動画を返すか破棄する。
// idle から呼んだ場合は何もせず nil, nil を返す。
func (c *Controller) Stop(ctx context.Context) (*VideoArtifact, error) {
	c.stopMu.Lock()
	defer c.stopMu.Unlock()

	c.mu.Lock()
	c.stopping = true
	for c.inflight != "" {
		done, cancel := c.opDone, c.cancelOp
		c.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		<-done
		c.mu.Lock()
	}

	prev := c.state
	if prev == StateIdle {
		c.stopping = false
		c.mu.Unlock()
		return nil, nil
	}
	handle := c.handle
	policy := c.config.TeardownPolicy
	c.handle = nil
	c.setStateLocked(StateIdle)
	c.unlockAndNotify()

	teardownCtx := context.WithoutCancel(ctx)
	var artifact *VideoArtifact
	var errs []error

	if c.recorder.IsRecording() {
		var err error
		if policy == TeardownDiscard {
			err = c.recorder.Abort(teardownCtx)
		} else {
			artifact, err = c.recorder.Stop(teardownCtx)
		}
		if err != nil && !errors.Is(err, ErrNotRecording) {
			errs = append(errs, err)
		}
	}

	c.previewer.Unbind()
	c.previewer.CloseSubscribers()
	if err := c.streams.Release(teardownCtx, handle); err != nil {
		errs = append(errs, err)
	}

	c.mu.Lock()
	c.stopping = false
	c.mu.Unlock()

	c.logger.Info("セッションを終了しました",
		zap.String("previous_state", string(prev)),
		zap.String("teardown_policy", string(policy)),
		zap.Bool("artifact", artifact != nil))

	if len(errs) > 0 {
		return artifact, &OpError{Op: OpStop, State: prev, Err: errors.Join(errs...)}
	}
	return artifact, nil
}

// TakePhoto はフレームを取得・合成・エンコードして写真を返す (streaming → capturing → streaming)
//
// 失敗した場合も streaming に戻る。
func (c *Controller) TakePhoto(ctx context.Context) (*PhotoArtifact, error) {
	c.mu.Lock()
	if err := c.checkLocked(OpTakePhoto, StateCapturing, StateStreaming); err != nil {
		c.mu.Unlock()
		return nil, err
	}
	if !c.previewer.IsReady() {
		state := c.state
		c.mu.Unlock()
		return nil, &OpError{Op: OpTakePhoto, State: state, Err: camera.ErrStreamNotReady}
	}
	handle := c.handle
	config := c.config.Clone()
	c.beginLocked(OpTakePhoto, nil)
	c.setStateLocked(StateCapturing)
	c.unlockAndNotify()

	artifact, err := c.capturePhoto(ctx, handle, config)

	c.mu.Lock()
	c.setStateLocked(StateStreaming)
	c.endLocked()
	c.unlockAndNotify()

	if err != nil {
		c.logger.Warn("写真の撮影に失敗", zap.Error(err))
		return nil, &OpError{Op: OpTakePhoto, State: StateStreaming, Err: err}
	}
	c.logger.Info("写真を撮影しました", zap.Int("bytes", len(artifact.EncodedImage)), zap.Int("width", artifact.Width), zap.Int("height", artifact.Height))
	return artifact, nil
}

// capturePhoto は取得、合成、エンコードを順に行う
func (c *Controller) capturePhoto(ctx context.Context, handle *camera.StreamHandle, config CaptureConfig) (*PhotoArtifact, error) {
	frame, err := c.capturer.CaptureFrame(ctx, handle, config.Width, config.Height)
	if err != nil {
		return nil, err
	}

	composed, err := c.compositor.Compose(frame, config.ComposeOptions())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCaptureFailed, err)
	}

	data, err := compose.EncodeJPEG(composed, config.PhotoQuality)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCaptureFailed, err)
	}

	return &PhotoArtifact{
		EncodedImage: data,
		DataURI:      compose.DataURI(compose.JPEGMIMEType, data),
		MIMEType:     compose.JPEGMIMEType,
		Width:        composed.Width(),
		Height:       composed.Height(),
		CapturedAt:   composed.CapturedAt,
	}, nil
}

// StartRecording は録画を開始する (streaming → recording)
//
// 録画中に呼ぶと ErrAlreadyRecording を返し、進行中の録画はそのまま続く。
func (c *Controller) StartRecording(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateRecording && c.inflight == "" && !c.stopping {
		c.mu.Unlock()
		return &OpError{Op: OpStartRecording, State: StateRecording, Err: ErrAlreadyRecording}
	}
	if err := c.checkLocked(OpStartRecording, StateRecording, StateStreaming); err != nil {
		c.mu.Unlock()
		return err
	}
	if !c.previewer.IsReady() {
		c.mu.Unlock()
		return &OpError{Op: OpStartRecording, State: StateStreaming, Err: camera.ErrStreamNotReady}
	}
	handle := c.handle
	c.beginLocked(OpStartRecording, nil)
	c.mu.Unlock()

	err := c.recorder.Start(ctx, handle)

	c.mu.Lock()
	if err == nil {
		c.setStateLocked(StateRecording)
	}
	c.endLocked()
	c.unlockAndNotify()

	if err != nil {
		return &OpError{Op: OpStartRecording, State: StateStreaming, Err: err}
	}
	return nil
}

// StopRecording は録画を確定して動画を返す (recording → streaming)
//
// 録画していなければ ErrNotRecording を返す。
// 確定に失敗した場合は recording には留まらず streaming に戻り、ErrCaptureFailed を包んだエラーを返す。
// エンコーダは停止済みで録画を続けられないため、録画済みのデータは失われる。
func (c *Controller) StopRecording(ctx context.Context) (*VideoArtifact, error) {
	c.mu.Lock()
	if c.state == StateStreaming && c.inflight == "" && !c.stopping {
		c.mu.Unlock()
		return nil, &OpError{Op: OpStopRecording, State: StateStreaming, Err: ErrNotRecording}
	}
	if err := c.checkLocked(OpStopRecording, StateStreaming, StateRecording); err != nil {
		c.mu.Unlock()
		return nil, err
	}
	c.beginLocked(OpStopRecording, nil)
	c.mu.Unlock()

	artifact, err := c.recorder.Stop(ctx)

	c.mu.Lock()
	c.setStateLocked(StateStreaming)
	c.endLocked()
	c.unlockAndNotify()

	if err != nil {
		return nil, &OpError{Op: OpStopRecording, State: StateRecording, Err: err}
	}
	return artifact, nil
}

// UpdateConfig は設定を差し替える
//
// デバイスに関わる項目 (向き、デバイス条件) が変わった場合だけストリームを取り直す。
// 取り直しは streaming 中のみ可能で、取得に失敗すると idle になる。
// それ以外の項目は状態によらず次の撮影から反映される。
func (c *Controller) UpdateConfig(ctx context.Context, config CaptureConfig) error {
	config = config.Normalize()
	if err := config.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	c.mu.Lock()
	if err := c.checkLocked(OpUpdateConfig, c.state, c.state); err != nil {
		c.mu.Unlock()
		return err
	}

	reacquire := c.state != StateIdle && camera.NeedsReacquire(c.config.Constraints(), config.Constraints())
	if !reacquire {
		c.config = config
		c.mu.Unlock()
		c.logger.Debug("設定を更新しました")
		return nil
	}

	if c.state != StateStreaming {
		err := &InvalidTransitionError{Op: OpUpdateConfig, Current: c.state, Requested: StateStreaming}
		c.mu.Unlock()
		return err
	}

	opCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	c.beginLocked(OpUpdateConfig, cancel)
	oldHandle := c.handle
	c.mu.Unlock()

	visible := c.previewer.Visible()
	c.previewer.Unbind()
	if err := c.streams.Release(context.WithoutCancel(ctx), oldHandle); err != nil {
		c.logger.Warn("古いストリームの解放に失敗", zap.Error(err))
	}

	handle, err := c.streams.Acquire(opCtx, config.Constraints())
	if err == nil {
		if bindErr := c.previewer.Bind(handle, visible); bindErr != nil {
			_ = c.streams.Release(context.WithoutCancel(ctx), handle)
			err = bindErr
		}
	}

	c.mu.Lock()
	c.config = config
	if err != nil {
		c.handle = nil
		c.setStateLocked(StateIdle)
	} else {
		c.handle = handle
	}
	c.endLocked()
	c.unlockAndNotify()

	if err != nil {
		return &OpError{Op: OpUpdateConfig, State: StateStreaming, Err: err}
	}
	c.logger.Info("ストリームを取り直しました", zap.String("handle", handle.ID()), zap.String("facing_mode", string(config.FacingMode)))
	return nil
}

// checkLocked は遷移の可否を確認する
func (c *Controller) checkLocked(op string, requested State, allowed ...State) error {
	if c.stopping {
		return &InvalidTransitionError{Op: op, Current: c.state, Requested: requested, InFlight: OpStop}
	}
	if c.inflight != "" {
		return &InvalidTransitionError{Op: op, Current: c.state, Requested: requested, InFlight: c.inflight}
	}
	if !slices.Contains(allowed, c.state) {
		return &InvalidTransitionError{Op: op, Current: c.state, Requested: requested}
	}
	return nil
}

// beginLocked は操作の実行開始を記録する
func (c *Controller) beginLocked(op string, cancel context.CancelFunc) {
	c.inflight = op
	c.opDone = make(chan struct{})
	c.cancelOp = cancel
}

// endLocked は操作の終了を記録し、待っている Stop を起こす
func (c *Controller) endLocked() {
	close(c.opDone)
	c.inflight = ""
	c.opDone = nil
	c.cancelOp = nil
}

// setStateLocked は状態を変え、通知を積む
func (c *Controller) setStateLocked(to State) {
	from := c.state
	if from == to {
		return
	}
	c.state = to
	c.pending = append(c.pending, stateChange{from: from, to: to})
	c.logger.Debug("状態が変わりました", zap.String("from", string(from)), zap.String("to", string(to)))
}

// unlockAndNotify はロックを外してから積まれた通知をリスナーへ送る
func (c *Controller) unlockAndNotify() {
	changes := c.pending
	c.pending = nil
	listeners := slices.Clone(c.listeners)
	c.mu.Unlock()

	for _, change := range changes {
		for _, l := range listeners {
			l(change.from, change.to)
		}
	}
}

// AddListener は状態変化のリスナーを登録する
func (c *Controller) AddListener(l Listener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, l)
}

// State は現在の状態を返す
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Config は現在の設定を返す
func (c *Controller) Config() CaptureConfig {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.config.Clone()
}

// WaitReady はプレビューに最初のフレームが届くまで待つ
func (c *Controller) WaitReady(ctx context.Context) error {
	c.mu.Lock()
	state := c.state
	c.mu.Unlock()
	if state == StateIdle {
		return &OpError{Op: "waitReady", State: state, Err: camera.ErrNoActiveStream}
	}
	return c.previewer.WaitReady(ctx)
}

// SetPreviewVisible はプレビューの表示を切り替える
func (c *Controller) SetPreviewVisible(visible bool) {
	c.previewer.SetVisible(visible)
}

// SubscribePreview はプレビューフレームを購読する
//
// チャンネルはセッションの終了 (Stop) で閉じられる。idle のときは閉じたチャンネルを返す。
func (c *Controller) SubscribePreview() (<-chan image.Image, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateIdle || c.stopping {
		ch := make(chan image.Image)
		close(ch)
		return ch, func() {}
	}
	return c.previewer.Subscribe()
}

// ComposePreview はプレビュー用の合成を適用する
func (c *Controller) ComposePreview(img image.Image) (*compose.RasterFrame, error) {
	config := c.Config()
	frame := compose.NewRasterFrame(img, time.Now())
	return c.compositor.Compose(frame, config.PreviewOptions())
}

// Status はセッションの状態のスナップショット
type Status struct {
	State          State         `json:"state"`
	InFlight       string        `json:"inFlight,omitempty"`
	HandleID       string        `json:"handleId,omitempty"`
	PreviewReady   bool          `json:"previewReady"`
	PreviewVisible bool          `json:"previewVisible"`
	Recording      bool          `json:"recording"`
	RecordedBytes  int64         `json:"recordedBytes"`
	OpenHandles    int           `json:"openHandles"`
	Config         CaptureConfig `json:"config"`
}

// Status は現在の状態をまとめて返す
func (c *Controller) Status() Status {
	c.mu.Lock()
	status := Status{
		State:    c.state,
		InFlight: c.inflight,
		Config:   c.config.Clone(),
	}
	if c.handle != nil {
		status.HandleID = c.handle.ID()
	}
	c.mu.Unlock()

	status.PreviewReady = c.previewer.IsReady()
	status.PreviewVisible = c.previewer.Visible()
	status.Recording = c.recorder.IsRecording()
	status.RecordedBytes = c.recorder.BytesRecorded()
	status.OpenHandles = c.streams.OpenCount()
	return status
}
