package session

import (
	"bytes"
	"context"
	"errors"
	"image/jpeg"
	"strings"
	"sync"
	"testing"
	"time"

	"shashin/internal/camera"
	"shashin/internal/compose"
)

func TestController_TakePhotoFromIdle(t *testing.T) {
	ctrl, _ := newTestController(t, 64, 48)

	_, err := ctrl.TakePhoto(context.Background())
	if !errors.Is(err, ErrInvalidStateTransition) {
		t.Fatalf("Expected ErrInvalidStateTransition, got %v", err)
	}

	var transitionErr *InvalidTransitionError
	if !errors.As(err, &transitionErr) {
		t.Fatalf("Expected *InvalidTransitionError, got %T", err)
	}
	if transitionErr.Current != StateIdle || transitionErr.Requested != StateCapturing {
		t.Errorf("Unexpected transition: %s → %s", transitionErr.Current, transitionErr.Requested)
	}
	if ctrl.State() != StateIdle {
		t.Errorf("Expected state idle, got %s", ctrl.State())
	}
}

func TestController_StopIsIdempotent(t *testing.T) {
	ctx := context.Background()
	ctrl, device := newTestController(t, 64, 48)

	// idle からの2回の停止は何もしない
	for i := 0; i < 2; i++ {
		artifact, err := ctrl.Stop(ctx)
		if err != nil || artifact != nil {
			t.Fatalf("Stop #%d from idle: artifact=%v err=%v", i+1, artifact, err)
		}
	}
	if open, closed := device.Calls(); open != 0 || closed != 0 {
		t.Errorf("Expected no device calls, got open=%d closed=%d", open, closed)
	}

	startStreaming(t, ctrl, testConfig())
	for i := 0; i < 2; i++ {
		if _, err := ctrl.Stop(ctx); err != nil {
			t.Fatalf("Stop #%d failed: %v", i+1, err)
		}
	}
	if _, closed := device.Calls(); closed != 1 {
		t.Errorf("Expected stream to be closed once, got %d", closed)
	}
}

func TestController_StartStop(t *testing.T) {
	ctx := context.Background()
	ctrl, device := newTestController(t, 64, 48)

	var mu sync.Mutex
	var transitions []string
	ctrl.AddListener(func(from, to State) {
		mu.Lock()
		defer mu.Unlock()
		transitions = append(transitions, string(from)+"->"+string(to))
	})

	startStreaming(t, ctrl, testConfig())
	if ctrl.State() != StateStreaming {
		t.Fatalf("Expected streaming, got %s", ctrl.State())
	}
	if device.OpenStreams() != 1 {
		t.Errorf("Expected 1 open stream, got %d", device.OpenStreams())
	}

	// 二重の開始は拒否される
	if err := ctrl.Start(ctx, testConfig()); !errors.Is(err, ErrInvalidStateTransition) {
		t.Errorf("Expected ErrInvalidStateTransition for second start, got %v", err)
	}

	if _, err := ctrl.Stop(ctx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if ctrl.State() != StateIdle {
		t.Errorf("Expected idle, got %s", ctrl.State())
	}
	if device.OpenStreams() != 0 {
		t.Errorf("Expected 0 open streams after stop, got %d", device.OpenStreams())
	}

	mu.Lock()
	defer mu.Unlock()
	expected := "idle->streaming,streaming->idle"
	if got := strings.Join(transitions, ","); got != expected {
		t.Errorf("Expected transitions %s, got %s", expected, got)
	}
}

func TestController_StartFailure(t *testing.T) {
	testCases := []struct {
		name string
		err  error
	}{
		{name: "権限なし", err: camera.ErrPermissionDenied},
		{name: "デバイスなし", err: camera.ErrDeviceUnavailable},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ctrl, device := newTestController(t, 64, 48)
			device.SetOpenError(tc.err)

			err := ctrl.Start(context.Background(), testConfig())
			if !errors.Is(err, tc.err) {
				t.Fatalf("Expected %v, got %v", tc.err, err)
			}

			var opErr *OpError
			if !errors.As(err, &opErr) || opErr.Op != OpStart || opErr.State != StateIdle {
				t.Errorf("Expected OpError for start in idle, got %#v", err)
			}
			if ctrl.State() != StateIdle {
				t.Errorf("Expected idle after failed start, got %s", ctrl.State())
			}
		})
	}
}

func TestController_StartInvalidConfig(t *testing.T) {
	ctrl, device := newTestController(t, 64, 48)

	err := ctrl.Start(context.Background(), testConfig().WithPhotoQuality(2))
	if !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("Expected ErrInvalidConfig, got %v", err)
	}
	if open, _ := device.Calls(); open != 0 {
		t.Errorf("Expected no device open on invalid config, got %d", open)
	}
}

func TestController_TakePhoto(t *testing.T) {
	ctx := context.Background()
	ctrl, _ := newTestController(t, 320, 240)
	startStreaming(t, ctrl, testConfig())
	defer func() { _, _ = ctrl.Stop(ctx) }()

	artifact, err := ctrl.TakePhoto(ctx)
	if err != nil {
		t.Fatalf("TakePhoto failed: %v", err)
	}

	if ctrl.State() != StateStreaming {
		t.Errorf("Expected streaming after photo, got %s", ctrl.State())
	}
	if artifact.MIMEType != compose.JPEGMIMEType {
		t.Errorf("Unexpected MIME type %s", artifact.MIMEType)
	}
	if !strings.HasPrefix(artifact.DataURI, "data:image/jpeg;base64,") {
		t.Errorf("Unexpected data URI prefix: %.30s", artifact.DataURI)
	}

	img, err := jpeg.Decode(bytes.NewReader(artifact.EncodedImage))
	if err != nil {
		t.Fatalf("Decoding photo failed: %v", err)
	}
	if img.Bounds().Dx() != 160 || img.Bounds().Dy() != 120 {
		t.Errorf("Expected 160x120 photo, got %v", img.Bounds())
	}

	data := artifact.CaptureData()
	if data.DataURL != artifact.DataURI || !bytes.Equal(data.Blob, artifact.EncodedImage) {
		t.Error("CaptureData does not match artifact")
	}
}

func TestController_TakePhotoSquareCrop(t *testing.T) {
	ctx := context.Background()
	ctrl, _ := newTestController(t, 200, 100)
	config := DefaultCaptureConfig().WithSize(100, 100).WithAspectRatio(compose.Aspect1x1)
	startStreaming(t, ctrl, config)
	defer func() { _, _ = ctrl.Stop(ctx) }()

	artifact, err := ctrl.TakePhoto(ctx)
	if err != nil {
		t.Fatalf("TakePhoto failed: %v", err)
	}
	if artifact.Width != 100 || artifact.Height != 100 {
		t.Errorf("Expected 100x100, got %dx%d", artifact.Width, artifact.Height)
	}
}

func TestController_GridNotInPhotoUnlessRequested(t *testing.T) {
	ctx := context.Background()
	ctrl, _ := newTestController(t, 160, 120)
	base := testConfig()
	startStreaming(t, ctrl, base)
	defer func() { _, _ = ctrl.Stop(ctx) }()

	plain, err := ctrl.TakePhoto(ctx)
	if err != nil {
		t.Fatalf("TakePhoto failed: %v", err)
	}

	// プレビューにグリッドを出しても写真には入らない
	if err := ctrl.UpdateConfig(ctx, base.WithGrid(true, compose.GridRuleOfThirds)); err != nil {
		t.Fatalf("UpdateConfig failed: %v", err)
	}
	withPreviewGrid, err := ctrl.TakePhoto(ctx)
	if err != nil {
		t.Fatalf("TakePhoto failed: %v", err)
	}
	if !bytes.Equal(plain.EncodedImage, withPreviewGrid.EncodedImage) {
		t.Error("Grid leaked into photo without GridInCapture")
	}

	inCapture := base.WithGrid(true, compose.GridRuleOfThirds)
	inCapture.GridInCapture = true
	if err := ctrl.UpdateConfig(ctx, inCapture); err != nil {
		t.Fatalf("UpdateConfig failed: %v", err)
	}
	withGrid, err := ctrl.TakePhoto(ctx)
	if err != nil {
		t.Fatalf("TakePhoto failed: %v", err)
	}
	if bytes.Equal(plain.EncodedImage, withGrid.EncodedImage) {
		t.Error("Expected grid in photo when GridInCapture is set")
	}
}

func TestController_TakePhotoReadFailure(t *testing.T) {
	ctx := context.Background()
	ctrl, device := newTestController(t, 64, 48)
	startStreaming(t, ctrl, testConfig())
	defer func() { _, _ = ctrl.Stop(ctx) }()

	device.SetReadError(errors.New("read failed"))
	_, err := ctrl.TakePhoto(ctx)
	if !errors.Is(err, ErrCaptureFailed) {
		t.Fatalf("Expected ErrCaptureFailed, got %v", err)
	}
	if ctrl.State() != StateStreaming {
		t.Errorf("Expected streaming after failed photo, got %s", ctrl.State())
	}
}

func TestController_TakePhotoBeforeReady(t *testing.T) {
	ctx := context.Background()
	ctrl, device := newTestController(t, 64, 48)
	device.SetAutoFrame(false)

	if err := ctrl.Start(ctx, testConfig()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer func() { _, _ = ctrl.Stop(ctx) }()

	if _, err := ctrl.TakePhoto(ctx); !errors.Is(err, camera.ErrStreamNotReady) {
		t.Errorf("Expected ErrStreamNotReady, got %v", err)
	}
	if err := ctrl.StartRecording(ctx); !errors.Is(err, camera.ErrStreamNotReady) {
		t.Errorf("Expected ErrStreamNotReady for recording, got %v", err)
	}
	if ctrl.State() != StateStreaming {
		t.Errorf("Expected streaming, got %s", ctrl.State())
	}
}

func TestController_Recording(t *testing.T) {
	ctx := context.Background()
	ctrl, device := newTestController(t, 64, 48)
	startStreaming(t, ctrl, testConfig())
	defer func() { _, _ = ctrl.Stop(ctx) }()

	if err := ctrl.StartRecording(ctx); err != nil {
		t.Fatalf("StartRecording failed: %v", err)
	}
	if ctrl.State() != StateRecording {
		t.Fatalf("Expected recording, got %s", ctrl.State())
	}

	for _, chunk := range []string{"first-", "second-", "third"} {
		if n := device.EmitChunk([]byte(chunk)); n != 1 {
			t.Fatalf("Expected chunk delivered to 1 subscriber, got %d", n)
		}
	}

	artifact, err := ctrl.StopRecording(ctx)
	if err != nil {
		t.Fatalf("StopRecording failed: %v", err)
	}
	if string(artifact.EncodedVideo) != "first-second-third" {
		t.Errorf("Unexpected video data %q", artifact.EncodedVideo)
	}
	if artifact.ChunkCount != 3 {
		t.Errorf("Expected 3 chunks, got %d", artifact.ChunkCount)
	}
	if artifact.MIMEType != camera.MockMIMEType {
		t.Errorf("Unexpected MIME type %s", artifact.MIMEType)
	}
	if ctrl.State() != StateStreaming {
		t.Errorf("Expected streaming after recording, got %s", ctrl.State())
	}
}

func TestController_StartRecordingTwice(t *testing.T) {
	ctx := context.Background()
	ctrl, device := newTestController(t, 64, 48)
	startStreaming(t, ctrl, testConfig())
	defer func() { _, _ = ctrl.Stop(ctx) }()

	if err := ctrl.StartRecording(ctx); err != nil {
		t.Fatalf("StartRecording failed: %v", err)
	}
	device.EmitChunk([]byte("a"))

	if err := ctrl.StartRecording(ctx); !errors.Is(err, ErrAlreadyRecording) {
		t.Fatalf("Expected ErrAlreadyRecording, got %v", err)
	}

	// 最初の録画は続いている
	if ctrl.State() != StateRecording {
		t.Errorf("Expected recording, got %s", ctrl.State())
	}
	device.EmitChunk([]byte("b"))

	artifact, err := ctrl.StopRecording(ctx)
	if err != nil {
		t.Fatalf("StopRecording failed: %v", err)
	}
	if string(artifact.EncodedVideo) != "ab" {
		t.Errorf("Expected first recording to continue, got %q", artifact.EncodedVideo)
	}
}

func TestController_StopRecordingWhenNotRecording(t *testing.T) {
	ctx := context.Background()
	ctrl, _ := newTestController(t, 64, 48)

	if _, err := ctrl.StopRecording(ctx); !errors.Is(err, ErrInvalidStateTransition) {
		t.Errorf("Expected ErrInvalidStateTransition from idle, got %v", err)
	}

	startStreaming(t, ctrl, testConfig())
	defer func() { _, _ = ctrl.Stop(ctx) }()

	if _, err := ctrl.StopRecording(ctx); !errors.Is(err, ErrNotRecording) {
		t.Errorf("Expected ErrNotRecording, got %v", err)
	}
}

func TestController_StartRecordingFailure(t *testing.T) {
	ctx := context.Background()
	ctrl, device := newTestController(t, 64, 48)
	startStreaming(t, ctrl, testConfig())
	defer func() { _, _ = ctrl.Stop(ctx) }()

	device.SetChunkError(errors.New("encoder unavailable"))
	if err := ctrl.StartRecording(ctx); !errors.Is(err, ErrCaptureFailed) {
		t.Fatalf("Expected ErrCaptureFailed, got %v", err)
	}
	if ctrl.State() != StateStreaming {
		t.Errorf("Expected streaming after failed start, got %s", ctrl.State())
	}
}

func TestController_TakePhotoWhileRecording(t *testing.T) {
	ctx := context.Background()
	ctrl, _ := newTestController(t, 64, 48)
	startStreaming(t, ctrl, testConfig())
	defer func() { _, _ = ctrl.Stop(ctx) }()

	if err := ctrl.StartRecording(ctx); err != nil {
		t.Fatalf("StartRecording failed: %v", err)
	}
	if _, err := ctrl.TakePhoto(ctx); !errors.Is(err, ErrInvalidStateTransition) {
		t.Errorf("Expected ErrInvalidStateTransition, got %v", err)
	}
	if ctrl.State() != StateRecording {
		t.Errorf("Expected recording, got %s", ctrl.State())
	}
}

func TestController_StopWhileRecording(t *testing.T) {
	testCases := []struct {
		name           string
		policy         TeardownPolicy
		expectArtifact bool
	}{
		{name: "確定して返す", policy: TeardownFinalize, expectArtifact: true},
		{name: "破棄する", policy: TeardownDiscard, expectArtifact: false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			ctrl, device := newTestController(t, 64, 48)
			startStreaming(t, ctrl, testConfig().WithTeardownPolicy(tc.policy))

			if err := ctrl.StartRecording(ctx); err != nil {
				t.Fatalf("StartRecording failed: %v", err)
			}
			device.EmitChunk([]byte("data"))

			artifact, err := ctrl.Stop(ctx)
			if err != nil {
				t.Fatalf("Stop failed: %v", err)
			}
			if (artifact != nil) != tc.expectArtifact {
				t.Fatalf("Expected artifact=%v, got %v", tc.expectArtifact, artifact)
			}
			if tc.expectArtifact && string(artifact.EncodedVideo) != "data" {
				t.Errorf("Unexpected video data %q", artifact.EncodedVideo)
			}
			if ctrl.State() != StateIdle {
				t.Errorf("Expected idle, got %s", ctrl.State())
			}
			if device.OpenStreams() != 0 {
				t.Errorf("Expected stream released, got %d open", device.OpenStreams())
			}
		})
	}
}

func TestController_UpdateConfig(t *testing.T) {
	ctx := context.Background()
	ctrl, device := newTestController(t, 64, 48)
	base := testConfig()
	startStreaming(t, ctrl, base)
	defer func() { _, _ = ctrl.Stop(ctx) }()

	firstHandle := ctrl.Status().HandleID

	// 解像度や画質の変更では取り直さない
	if err := ctrl.UpdateConfig(ctx, base.WithSize(80, 60).WithPhotoQuality(0.5)); err != nil {
		t.Fatalf("UpdateConfig failed: %v", err)
	}
	if open, _ := device.Calls(); open != 1 {
		t.Errorf("Expected no reacquire, got %d opens", open)
	}
	if ctrl.Config().Width != 80 {
		t.Errorf("Expected width 80, got %d", ctrl.Config().Width)
	}

	// 向きの変更では取り直す
	if err := ctrl.UpdateConfig(ctx, base.WithFacingMode(camera.FacingEnvironment)); err != nil {
		t.Fatalf("UpdateConfig failed: %v", err)
	}
	if open, closed := device.Calls(); open != 2 || closed != 1 {
		t.Errorf("Expected reacquire, got open=%d closed=%d", open, closed)
	}
	status := ctrl.Status()
	if status.HandleID == firstHandle || status.HandleID == "" {
		t.Error("Expected a new handle after reacquire")
	}
	if status.State != StateStreaming || status.OpenHandles != 1 {
		t.Errorf("Unexpected status after reacquire: %+v", status)
	}
	if device.OpenStreams() != 1 {
		t.Errorf("Expected 1 open stream, got %d", device.OpenStreams())
	}

	// デバイス条件の変更でも取り直す
	if err := ctrl.UpdateConfig(ctx, base.WithFacingMode(camera.FacingEnvironment).WithVideoConstraint("ctrl.brightness", "10")); err != nil {
		t.Fatalf("UpdateConfig failed: %v", err)
	}
	if open, _ := device.Calls(); open != 3 {
		t.Errorf("Expected third open, got %d", open)
	}
}

func TestController_UpdateConfigWhileRecording(t *testing.T) {
	ctx := context.Background()
	ctrl, _ := newTestController(t, 64, 48)
	base := testConfig()
	startStreaming(t, ctrl, base)
	defer func() { _, _ = ctrl.Stop(ctx) }()

	if err := ctrl.StartRecording(ctx); err != nil {
		t.Fatalf("StartRecording failed: %v", err)
	}

	if err := ctrl.UpdateConfig(ctx, base.WithFacingMode(camera.FacingEnvironment)); !errors.Is(err, ErrInvalidStateTransition) {
		t.Errorf("Expected ErrInvalidStateTransition, got %v", err)
	}
	if err := ctrl.UpdateConfig(ctx, base.WithPhotoQuality(0.5)); err != nil {
		t.Errorf("Expected non-device change to succeed while recording, got %v", err)
	}
	if ctrl.State() != StateRecording {
		t.Errorf("Expected recording, got %s", ctrl.State())
	}
}

func TestController_UpdateConfigReacquireFailure(t *testing.T) {
	ctx := context.Background()
	ctrl, device := newTestController(t, 64, 48)
	base := testConfig()
	startStreaming(t, ctrl, base)

	device.SetOpenError(camera.ErrDeviceUnavailable)
	err := ctrl.UpdateConfig(ctx, base.WithFacingMode(camera.FacingEnvironment))
	if !errors.Is(err, camera.ErrDeviceUnavailable) {
		t.Fatalf("Expected ErrDeviceUnavailable, got %v", err)
	}
	if ctrl.State() != StateIdle {
		t.Errorf("Expected idle after failed reacquire, got %s", ctrl.State())
	}
	if device.OpenStreams() != 0 {
		t.Errorf("Expected no open streams, got %d", device.OpenStreams())
	}
	if _, err := ctrl.Stop(ctx); err != nil {
		t.Errorf("Stop from idle failed: %v", err)
	}
}

func TestController_RejectsWhileInFlight(t *testing.T) {
	ctx := context.Background()
	device := newBlockingDevice(64, 48)
	ctrl := NewController(camera.NewStreamManager(device, nil), nil, nil)
	startStreaming(t, ctrl, testConfig())
	defer func() { _, _ = ctrl.Stop(ctx) }()

	gate := device.blockRead()
	photoErr := make(chan error, 1)
	go func() {
		_, err := ctrl.TakePhoto(ctx)
		photoErr <- err
	}()
	waitEntered(t, device, "read")

	if ctrl.State() != StateCapturing {
		t.Fatalf("Expected capturing, got %s", ctrl.State())
	}
	if _, err := ctrl.TakePhoto(ctx); !errors.Is(err, ErrInvalidStateTransition) {
		t.Errorf("Expected second photo to be rejected, got %v", err)
	}
	if err := ctrl.StartRecording(ctx); !errors.Is(err, ErrInvalidStateTransition) {
		t.Errorf("Expected recording to be rejected, got %v", err)
	}

	close(gate)
	if err := <-photoErr; err != nil {
		t.Fatalf("TakePhoto failed: %v", err)
	}
	if ctrl.State() != StateStreaming {
		t.Errorf("Expected streaming, got %s", ctrl.State())
	}
}

func TestController_StopCancelsStart(t *testing.T) {
	ctx := context.Background()
	device := newBlockingDevice(64, 48)
	ctrl := NewController(camera.NewStreamManager(device, nil), nil, nil)

	device.blockOpen()
	startErr := make(chan error, 1)
	go func() {
		startErr <- ctrl.Start(ctx, testConfig())
	}()
	waitEntered(t, device, "open")

	if _, err := ctrl.Stop(ctx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if err := <-startErr; !errors.Is(err, context.Canceled) {
		t.Errorf("Expected start to be cancelled, got %v", err)
	}
	if ctrl.State() != StateIdle {
		t.Errorf("Expected idle, got %s", ctrl.State())
	}
	if device.OpenStreams() != 0 {
		t.Errorf("Expected no open streams, got %d", device.OpenStreams())
	}
}

func TestController_PreviewVisibility(t *testing.T) {
	ctx := context.Background()
	ctrl, _ := newTestController(t, 64, 48)
	config := testConfig()
	config.ShowPreviewByDefault = false
	startStreaming(t, ctrl, config)
	defer func() { _, _ = ctrl.Stop(ctx) }()

	status := ctrl.Status()
	if status.PreviewVisible {
		t.Error("Expected hidden preview")
	}
	if !status.PreviewReady {
		t.Error("Expected preview to be ready while hidden")
	}

	ctrl.SetPreviewVisible(true)
	if !ctrl.Status().PreviewVisible {
		t.Error("Expected visible preview")
	}
}

func TestController_StopClosesPreviewSubscribers(t *testing.T) {
	ctx := context.Background()
	ctrl, _ := newTestController(t, 64, 48)
	startStreaming(t, ctrl, testConfig())

	frames, cancel := ctrl.SubscribePreview()
	defer cancel()

	if _, err := ctrl.Stop(ctx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	// 停止後はチャンネルが閉じられ、購読者が終了を検知できる
	if !waitClosed(frames, time.Second) {
		t.Fatal("Expected preview channel to be closed after Stop")
	}

	// idle で購読すると閉じたチャンネルが返る
	idleFrames, idleCancel := ctrl.SubscribePreview()
	defer idleCancel()
	if !waitClosed(idleFrames, time.Second) {
		t.Error("Expected closed channel while idle")
	}
}

func TestController_PreviewSubscriberSurvivesReacquire(t *testing.T) {
	ctx := context.Background()
	ctrl, device := newTestController(t, 64, 48)
	startStreaming(t, ctrl, testConfig())
	defer func() { _, _ = ctrl.Stop(ctx) }()

	frames, cancel := ctrl.SubscribePreview()
	defer cancel()

	if err := ctrl.UpdateConfig(ctx, testConfig().WithFacingMode(camera.FacingEnvironment)); err != nil {
		t.Fatalf("UpdateConfig failed: %v", err)
	}

	device.PushFrame(camera.SyntheticFrame(64, 48))
	select {
	case _, ok := <-frames:
		if !ok {
			t.Fatal("Expected preview subscription to survive reacquire")
		}
	case <-time.After(time.Second):
		t.Fatal("Expected a frame after reacquire")
	}
}

func TestController_StartWhileStreamingChecksStateFirst(t *testing.T) {
	ctx := context.Background()
	ctrl, _ := newTestController(t, 64, 48)
	startStreaming(t, ctrl, testConfig())
	defer func() { _, _ = ctrl.Stop(ctx) }()

	err := ctrl.Start(ctx, testConfig().WithPhotoQuality(2))
	var transition *InvalidTransitionError
	if !errors.As(err, &transition) {
		t.Fatalf("Expected InvalidTransitionError, got %v", err)
	}
	if transition.Current != StateStreaming || transition.Requested != StateStreaming {
		t.Errorf("Unexpected transition: current=%s requested=%s", transition.Current, transition.Requested)
	}
	if errors.Is(err, ErrInvalidConfig) {
		t.Error("Expected state error to take precedence over config error")
	}
}

func TestController_StopRecordingFinalizeFailure(t *testing.T) {
	ctx := context.Background()
	device := &finalizeFailDevice{
		MockDevice: camera.NewMockDevice(64, 48),
		err:        errors.New("encoder crashed"),
	}
	ctrl := NewController(camera.NewStreamManager(device, nil), nil, nil)
	startStreaming(t, ctrl, testConfig())
	defer func() { _, _ = ctrl.Stop(ctx) }()

	if err := ctrl.StartRecording(ctx); err != nil {
		t.Fatalf("StartRecording failed: %v", err)
	}
	device.EmitChunk([]byte("lost"))

	artifact, err := ctrl.StopRecording(ctx)
	if !errors.Is(err, ErrCaptureFailed) {
		t.Fatalf("Expected ErrCaptureFailed, got %v", err)
	}
	if artifact != nil {
		t.Error("Expected no artifact on finalize failure")
	}

	// 録画は続けられないため streaming に戻る
	if ctrl.State() != StateStreaming {
		t.Errorf("Expected streaming after finalize failure, got %s", ctrl.State())
	}
	if ctrl.Status().Recording {
		t.Error("Expected recorder to be idle after finalize failure")
	}
	if err := ctrl.StartRecording(ctx); err != nil {
		t.Errorf("Expected a new recording to start, got %v", err)
	}
}
