package camera

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// StreamHandle は開いているデバイスストリームの所有権を表す
//
// StreamManager だけが生成・解放する。
type StreamHandle struct {
	id          string
	raw         RawStream
	constraints Constraints
	openedAt    time.Time

	mu       sync.RWMutex
	released bool
}

// ID はハンドルの識別子を返す
func (h *StreamHandle) ID() string {
	return h.id
}

// Raw はデバイス層のストリームを返す
func (h *StreamHandle) Raw() RawStream {
	return h.raw
}

// Constraints はストリームを開いたときの条件を返す
func (h *StreamHandle) Constraints() Constraints {
	return h.constraints.Clone()
}

// OpenedAt はストリームを開いた時刻を返す
func (h *StreamHandle) OpenedAt() time.Time {
	return h.openedAt
}

// Active は解放されておらず、デバイス側も生きているかを返す
func (h *StreamHandle) Active() bool {
	if h == nil {
		return false
	}
	h.mu.RLock()
	released := h.released
	h.mu.RUnlock()
	return !released && h.raw.Active()
}

// StreamManager はカメラストリームの取得と解放を担う
type StreamManager struct {
	device Device
	logger *zap.Logger

	mu      sync.Mutex
	handles map[string]*StreamHandle
}

// NewStreamManager は新しいStreamManagerを作成する
func NewStreamManager(device Device, logger *zap.Logger) *StreamManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StreamManager{
		device:  device,
		logger:  logger,
		handles: make(map[string]*StreamHandle),
	}
}

// Device は管理対象のデバイスを返す
func (m *StreamManager) Device() Device {
	return m.device
}

// Acquire は条件に従ってストリームを開く
//
// 失敗時は ErrPermissionDenied か ErrDeviceUnavailable を包んだエラーを返す。
// 自動リトライはしない。
func (m *StreamManager) Acquire(ctx context.Context, constraints Constraints) (*StreamHandle, error) {
	if constraints.FacingMode == "" {
		constraints.FacingMode = FacingUser
	}
	if !constraints.FacingMode.Valid() {
		return nil, fmt.Errorf("無効なfacingMode: %s", constraints.FacingMode)
	}

	raw, err := m.device.OpenStream(ctx, constraints.Clone())
	if err != nil {
		m.logger.Warn("ストリームの取得に失敗", zap.String("facing_mode", string(constraints.FacingMode)), zap.Error(err))
		return nil, fmt.Errorf("ストリームの取得に失敗 (facingMode=%s): %w", constraints.FacingMode, err)
	}

	handle := &StreamHandle{
		id:          uuid.New().String(),
		raw:         raw,
		constraints: constraints.Clone(),
		openedAt:    time.Now(),
	}

	m.mu.Lock()
	m.handles[handle.id] = handle
	m.mu.Unlock()

	m.logger.Info("ストリームを取得しました", zap.String("handle", handle.id), zap.String("facing_mode", string(constraints.FacingMode)))
	return handle, nil
}

// Release はストリームを閉じる。解放済みのハンドルに対しては何もしない
func (m *StreamManager) Release(ctx context.Context, handle *StreamHandle) error {
	if handle == nil {
		return nil
	}

	handle.mu.Lock()
	if handle.released {
		handle.mu.Unlock()
		return nil
	}
	handle.released = true
	handle.mu.Unlock()

	m.mu.Lock()
	delete(m.handles, handle.id)
	m.mu.Unlock()

	if err := m.device.CloseStream(ctx, handle.raw); err != nil {
		// デバイス側で既に閉じられている場合は解放済みとみなす
		if errors.Is(err, ErrNoActiveStream) {
			return nil
		}
		return fmt.Errorf("ストリーム %s の解放に失敗: %w", handle.id, err)
	}

	m.logger.Info("ストリームを解放しました", zap.String("handle", handle.id))
	return nil
}

// ReleaseAll は全てのストリームを解放する
func (m *StreamManager) ReleaseAll(ctx context.Context) error {
	m.mu.Lock()
	handles := make([]*StreamHandle, 0, len(m.handles))
	for _, h := range m.handles {
		handles = append(handles, h)
	}
	m.mu.Unlock()

	var errs []error
	for _, h := range handles {
		if err := m.Release(ctx, h); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// OpenCount は開いているハンドル数を返す
func (m *StreamManager) OpenCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.handles)
}
