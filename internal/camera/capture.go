package camera

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

var (
	jpegSOI = []byte{0xFF, 0xD8}
	jpegEOI = []byte{0xFF, 0xD9}
)

// maxPendingBytes は終了マーカー待ちで保持する未完成フレームの上限
const maxPendingBytes = 8 << 20

// V4L2Capturer はffmpeg経由でV4L2デバイスからMJPEGフレームを取得する
type V4L2Capturer struct {
	ffmpegPath string
	devicePath string
	width      int
	height     int
	fps        int
	inputArgs  []string
	logger     *zap.Logger
}

// NewV4L2Capturer は新しいV4L2Capturerを作成する
func NewV4L2Capturer(ffmpegPath, devicePath string, width, height, fps int, logger *zap.Logger) *V4L2Capturer {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &V4L2Capturer{
		ffmpegPath: ffmpegPath,
		devicePath: devicePath,
		width:      width,
		height:     height,
		fps:        fps,
		logger:     logger,
	}
}

// WithInputOptions はffmpegの入力オプションを追加する（videoConstraintsの "ffmpeg." 接頭辞付きキー）
func (c *V4L2Capturer) WithInputOptions(extra map[string]string) *V4L2Capturer {
	keys := make([]string, 0, len(extra))
	for k := range extra {
		if strings.HasPrefix(k, "ffmpeg.") {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	for _, k := range keys {
		c.inputArgs = append(c.inputArgs, "-"+strings.TrimPrefix(k, "ffmpeg."), extra[k])
	}
	return c
}

// streamArgs は連続キャプチャ用のffmpeg引数を組み立てる
func (c *V4L2Capturer) streamArgs(frames int) []string {
	args := []string{"-loglevel", "error", "-f", "v4l2"}
	args = append(args, c.inputArgs...)
	if c.width > 0 && c.height > 0 {
		args = append(args, "-video_size", fmt.Sprintf("%dx%d", c.width, c.height))
	}
	if c.fps > 0 {
		args = append(args, "-r", strconv.Itoa(c.fps))
	}
	args = append(args, "-i", c.devicePath)
	if frames > 0 {
		args = append(args, "-vframes", strconv.Itoa(frames))
	}
	return append(args, "-f", "image2pipe", "-c:v", "mjpeg", "-q:v", "3", "-")
}

// CaptureFrameAsJPEG は1フレームをキャプチャしてJPEGバイト配列として返す
func (c *V4L2Capturer) CaptureFrameAsJPEG(ctx context.Context) ([]byte, error) {
	cmd := exec.CommandContext(ctx, c.ffmpegPath, c.streamArgs(1)...)

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("JPEGフレームキャプチャに失敗: %w (stderr: %s)", err, stderr.String())
	}

	return stdout.Bytes(), nil
}

// TestCapture はデバイステスト用の簡単なキャプチャ機能
func (c *V4L2Capturer) TestCapture(ctx context.Context) error {
	testCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	_, err := c.CaptureFrameAsJPEG(testCtx)
	return err
}

// StartStream は連続キャプチャを開始し、JPEGフレームを frameChan に流す
//
// ctx がキャンセルされるとffmpegを終了し、frameChan をクローズする。
func (c *V4L2Capturer) StartStream(ctx context.Context, frameChan chan<- []byte, errorChan chan<- error) {
	defer close(frameChan)

	cmd := exec.CommandContext(ctx, c.ffmpegPath, c.streamArgs(0)...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		sendError(errorChan, fmt.Errorf("stdoutパイプの作成に失敗: %w", err))
		return
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		sendError(errorChan, fmt.Errorf("ffmpegの起動に失敗: %w", err))
		return
	}
	defer func() {
		// コンテキストキャンセル時のエラーは無視
		if err := cmd.Wait(); err != nil && ctx.Err() == nil {
			c.logger.Warn("ffmpegが終了しました", zap.String("device", c.devicePath), zap.Error(err), zap.String("stderr", stderr.String()))
		}
	}()

	buffer := make([]byte, 256*1024)
	var pending []byte

	for {
		n, err := stdout.Read(buffer)
		if n > 0 {
			var frames [][]byte
			var dropped int
			frames, pending, dropped = splitPending(pending, buffer[:n], maxPendingBytes)
			if dropped > 0 {
				c.logger.Warn("終了マーカーのないデータが上限を超えたため破棄しました", zap.String("device", c.devicePath), zap.Int("bytes", dropped))
			}
			for _, frame := range frames {
				select {
				case frameChan <- frame:
				case <-ctx.Done():
					return
				}
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && ctx.Err() == nil {
				sendError(errorChan, fmt.Errorf("フレーム読み取りエラー: %w", err))
			}
			return
		}
	}
}

// splitPending は未完成データに読み込んだ分を足してフレームを切り出す
//
// 残りが limit を超えた場合は壊れたストリームとみなして捨て、捨てたバイト数を返す。
func splitPending(pending, data []byte, limit int) ([][]byte, []byte, int) {
	frames, rest := splitJPEGFrames(append(pending, data...))
	if len(rest) > limit {
		return frames, nil, len(rest)
	}
	return frames, rest, 0
}

// splitJPEGFrames はバッファから完全なJPEGフレームを切り出し、残りを返す
func splitJPEGFrames(data []byte) ([][]byte, []byte) {
	var frames [][]byte

	for {
		start := bytes.Index(data, jpegSOI)
		if start == -1 {
			// 開始マーカーがなければ末尾1バイトだけ残す（0xFF が分断されている可能性）
			if len(data) > 0 && data[len(data)-1] == 0xFF {
				return frames, []byte{0xFF}
			}
			return frames, nil
		}

		end := bytes.Index(data[start+2:], jpegEOI)
		if end == -1 {
			rest := make([]byte, len(data)-start)
			copy(rest, data[start:])
			return frames, rest
		}

		end += start + 2 + len(jpegEOI)
		frame := make([]byte, end-start)
		copy(frame, data[start:end])
		frames = append(frames, frame)
		data = data[end:]
	}
}

// SetControls はカメラのコントロール（明度、コントラストなど）を設定する
func (c *V4L2Capturer) SetControls(ctx context.Context, controls map[string]string) error {
	keys := make([]string, 0, len(controls))
	for k := range controls {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, control := range keys {
		cmd := exec.CommandContext(ctx, "v4l2-ctl", "--device", c.devicePath, "--set-ctrl", fmt.Sprintf("%s=%s", control, controls[control]))
		if err := cmd.Run(); err != nil {
			return fmt.Errorf("コントロール %s の設定に失敗: %w", control, err)
		}
	}

	return nil
}

// sendError はエラーチャンネルが詰まっていれば捨てる
func sendError(errorChan chan<- error, err error) {
	select {
	case errorChan <- err:
	default:
	}
}
