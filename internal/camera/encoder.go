package camera

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"sync"

	"go.uber.org/zap"
)

// WebMMIMEType は録画データのMIMEタイプ
const WebMMIMEType = "video/webm"

// ffmpegEncoder はMJPEGフレームをWebMにエンコードし、出力をチャンクとして流す
type ffmpegEncoder struct {
	cmd         *exec.Cmd
	stdin       io.WriteCloser
	frames      <-chan []byte
	unsubscribe func()
	chunks      chan []byte
	logger      *zap.Logger

	stopFeed  chan struct{}
	cancelCh  chan struct{}
	feedDone  chan struct{}
	readDone  chan struct{}
	stopOnce  sync.Once
	closeOnce sync.Once
	waitOnce  sync.Once
	waitErr   error
	stderr    bytes.Buffer
}

// startEncoder はffmpegエンコーダを起動する
func startEncoder(ffmpegPath string, fps int, frames <-chan []byte, unsubscribe func(), logger *zap.Logger) (*ffmpegEncoder, error) {
	if fps <= 0 {
		fps = 15
	}

	cmd := exec.Command(ffmpegPath,
		"-loglevel", "error",
		"-f", "mjpeg",
		"-framerate", strconv.Itoa(fps),
		"-i", "-",
		"-c:v", "libvpx",
		"-deadline", "realtime",
		"-cpu-used", "8",
		"-b:v", "1M",
		"-f", "webm",
		"-",
	)

	enc := &ffmpegEncoder{
		cmd:         cmd,
		frames:      frames,
		unsubscribe: unsubscribe,
		chunks:      make(chan []byte, 64),
		logger:      logger,
		stopFeed:    make(chan struct{}),
		cancelCh:    make(chan struct{}),
		feedDone:    make(chan struct{}),
		readDone:    make(chan struct{}),
	}
	cmd.Stderr = &enc.stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdinパイプの作成に失敗: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdoutパイプの作成に失敗: %w", err)
	}
	enc.stdin = stdin

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("エンコーダの起動に失敗: %w", err)
	}

	go enc.feed()
	go enc.read(stdout)

	return enc, nil
}

// feed はフレームをエンコーダの標準入力へ書き込む
func (e *ffmpegEncoder) feed() {
	defer close(e.feedDone)
	defer func() {
		_ = e.stdin.Close()
	}()

	for {
		select {
		case <-e.stopFeed:
			return
		case frame, ok := <-e.frames:
			if !ok {
				return
			}
			if _, err := e.stdin.Write(frame); err != nil {
				e.logger.Warn("エンコーダへの書き込みに失敗", zap.Error(err))
				return
			}
		}
	}
}

// read はエンコーダ出力を到着順にチャンクとして流す
func (e *ffmpegEncoder) read(stdout io.Reader) {
	defer close(e.readDone)
	defer close(e.chunks)

	buffer := make([]byte, 32*1024)
	for {
		n, err := stdout.Read(buffer)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buffer[:n])
			select {
			case e.chunks <- chunk:
			case <-e.cancelCh:
				return
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				e.logger.Warn("エンコーダ出力の読み取りに失敗", zap.Error(err))
			}
			return
		}
	}
}

// Chunks はエンコード済みチャンクを返す
func (e *ffmpegEncoder) Chunks() <-chan []byte {
	return e.chunks
}

// MIMEType はWebMを返す
func (e *ffmpegEncoder) MIMEType() string {
	return WebMMIMEType
}

// Finalize は入力を閉じ、エンコーダが残りを出力し終えるまで待つ
func (e *ffmpegEncoder) Finalize(ctx context.Context) error {
	e.stopOnce.Do(func() {
		close(e.stopFeed)
		e.unsubscribe()
	})
	<-e.feedDone

	select {
	case <-e.readDone:
	case <-ctx.Done():
		_ = e.Cancel()
		return fmt.Errorf("エンコーダの終了待ちが中断されました: %w", ctx.Err())
	}

	return e.wait()
}

// Cancel はエンコーダを強制終了する
func (e *ffmpegEncoder) Cancel() error {
	e.stopOnce.Do(func() {
		close(e.stopFeed)
		e.unsubscribe()
	})
	e.closeOnce.Do(func() {
		close(e.cancelCh)
		if e.cmd.Process != nil {
			_ = e.cmd.Process.Kill()
		}
	})
	<-e.feedDone
	<-e.readDone
	_ = e.wait()
	return nil
}

// wait はプロセスの終了を一度だけ待つ
func (e *ffmpegEncoder) wait() error {
	e.closeOnce.Do(func() {
		close(e.cancelCh)
	})
	e.waitOnce.Do(func() {
		if err := e.cmd.Wait(); err != nil {
			e.waitErr = fmt.Errorf("エンコーダが異常終了: %w (stderr: %s)", err, e.stderr.String())
		}
	})
	return e.waitErr
}
