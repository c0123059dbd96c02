package camera

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

var deviceNumberPattern = regexp.MustCompile(`video(\d+)`)

// LinuxDiscovery はLinux環境でのカメラデバイス検出を実装する
type LinuxDiscovery struct {
	pattern string
}

// NewLinuxDiscovery は新しいLinuxDiscoveryを作成する
func NewLinuxDiscovery() *LinuxDiscovery {
	return &LinuxDiscovery{pattern: "/dev/video*"}
}

// ScanDevices はシステム内の利用可能なカメラデバイスをスキャンする
func (d *LinuxDiscovery) ScanDevices(ctx context.Context) ([]string, error) {
	matches, err := filepath.Glob(d.pattern)
	if err != nil {
		return nil, fmt.Errorf("デバイスのスキャンに失敗: %w", err)
	}

	// デバイス番号でソート
	sort.Slice(matches, func(i, j int) bool {
		return extractDeviceNumber(matches[i]) < extractDeviceNumber(matches[j])
	})

	var devices []string
	for _, match := range matches {
		select {
		case <-ctx.Done():
			return devices, ctx.Err()
		default:
		}

		// メタデータ用のノードなど、カラー映像を出さないものは除外
		if d.IsDeviceAvailable(ctx, match) && d.IsMainCamera(ctx, match) {
			devices = append(devices, match)
		}
	}

	return devices, nil
}

// IsDeviceAvailable は指定されたデバイスが利用可能かチェックする
func (d *LinuxDiscovery) IsDeviceAvailable(ctx context.Context, device string) bool {
	return d.CheckAccess(ctx, device) == nil
}

// CheckAccess はデバイスファイルを開けるか確認する
func (d *LinuxDiscovery) CheckAccess(_ context.Context, device string) error {
	if !isV4L2Device(device) {
		return fmt.Errorf("%w: V4L2デバイスではありません: %s", ErrDeviceUnavailable, device)
	}

	if _, err := os.Stat(device); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrDeviceUnavailable, device)
		}
		return fmt.Errorf("%w: %s: %v", ErrDeviceUnavailable, device, err)
	}

	file, err := os.OpenFile(device, os.O_RDONLY, 0)
	if err != nil {
		if errors.Is(err, fs.ErrPermission) {
			return fmt.Errorf("%w: %s (videoグループへの参加が必要です)", ErrPermissionDenied, device)
		}
		return fmt.Errorf("%w: %s: %v", ErrDeviceUnavailable, device, err)
	}
	_ = file.Close()

	return nil
}

// GetDeviceInfo はデバイスの詳細情報を取得する
func (d *LinuxDiscovery) GetDeviceInfo(ctx context.Context, device string) (*DeviceInfo, error) {
	if err := d.CheckAccess(ctx, device); err != nil {
		return nil, err
	}

	info := &DeviceInfo{
		Device: device,
		Name:   d.generateDeviceName(device),
		Driver: "uvcvideo",
		Resolutions: []Resolution{
			{Width: 640, Height: 480},
			{Width: 1280, Height: 720},
			{Width: 1920, Height: 1080},
		},
		Formats: []string{"MJPEG", "YUYV"},
	}

	return info, nil
}

// IsMainCamera はデバイスがカラー映像を出すメインのノードかどうかを判定する
func (d *LinuxDiscovery) IsMainCamera(ctx context.Context, device string) bool {
	formats, ok := listFormats(ctx, device)
	if !ok || !hasColorFormat(formats) {
		return false
	}

	// 同じ物理カメラの複数ノードは最も小さい番号を採用する
	deviceNum := extractDeviceNumber(device)
	for i := 0; i < deviceNum; i++ {
		sibling := fmt.Sprintf("/dev/video%d", i)
		if !d.IsDeviceAvailable(ctx, sibling) {
			continue
		}
		siblingFormats, ok := listFormats(ctx, sibling)
		if ok && hasColorFormat(siblingFormats) && d.haveSameCameraName(device, sibling) {
			return false
		}
	}

	return true
}

// haveSameCameraName は2つのデバイスが同じカメラかチェック
func (d *LinuxDiscovery) haveSameCameraName(device1, device2 string) bool {
	name1 := getV4L2DeviceName(device1)
	name2 := getV4L2DeviceName(device2)
	if name1 == "" || name2 == "" {
		return false
	}
	return name1 == name2
}

// generateDeviceName はデバイスパスから表示名を生成する
func (d *LinuxDiscovery) generateDeviceName(device string) string {
	if realName := getV4L2DeviceName(device); realName != "" {
		return realName
	}
	return fmt.Sprintf("カメラ %d", extractDeviceNumber(device))
}

// ResolveFacingMode は向きに対応するデバイスパスを選ぶ
//
// 検出順で最初のカメラを前面、2番目を背面とみなす。背面が見つからない場合は前面で代用する。
func ResolveFacingMode(ctx context.Context, d Discovery, mode FacingMode) (string, error) {
	devices, err := d.ScanDevices(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
	if len(devices) == 0 {
		return "", fmt.Errorf("%w: カメラが見つかりません", ErrDeviceUnavailable)
	}

	if mode == FacingEnvironment && len(devices) > 1 {
		return devices[1], nil
	}
	return devices[0], nil
}

// isV4L2Device は /dev/videoN 形式のパスかを判定する
func isV4L2Device(device string) bool {
	matched, _ := regexp.MatchString(`^/dev/video\d+$`, device)
	return matched
}

// listFormats はv4l2-ctlでサポートフォーマットを取得する
func listFormats(ctx context.Context, device string) (string, bool) {
	cmd := exec.CommandContext(ctx, "v4l2-ctl", "--device", device, "--list-formats-ext")
	output, err := cmd.Output()
	if err != nil {
		return "", false
	}
	return string(output), true
}

// hasColorFormat はカラーフォーマットを含むかを判定する
func hasColorFormat(formats string) bool {
	return strings.Contains(formats, "YUYV") || strings.Contains(formats, "MJPG")
}

// getV4L2DeviceName はv4l2-ctlの "Card type" からカメラ名を取得する
func getV4L2DeviceName(device string) string {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, "v4l2-ctl", "--device", device, "--info")
	output, err := cmd.Output()
	if err != nil {
		return ""
	}

	for _, line := range strings.Split(string(output), "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "Card type") {
			continue
		}
		parts := strings.SplitN(line, ":", 2)
		if len(parts) == 2 {
			return strings.TrimSpace(parts[1])
		}
	}

	return ""
}

// extractDeviceNumber はデバイスパスから番号を抽出する
func extractDeviceNumber(device string) int {
	matches := deviceNumberPattern.FindStringSubmatch(device)
	if len(matches) < 2 {
		return 0
	}

	num, err := strconv.Atoi(matches[1])
	if err != nil {
		return 0
	}
	return num
}

// MockDiscovery はテスト用のモックDiscovery実装
type MockDiscovery struct {
	mu          sync.RWMutex
	devices     []string
	deviceInfos map[string]*DeviceInfo
	accessErrs  map[string]error
}

// NewMockDiscovery は新しいMockDiscoveryを作成する
func NewMockDiscovery(devices []string) *MockDiscovery {
	m := &MockDiscovery{
		deviceInfos: make(map[string]*DeviceInfo),
		accessErrs:  make(map[string]error),
	}
	for _, device := range devices {
		m.AddDevice(device)
	}
	return m
}

// ScanDevices はモックデバイス一覧を返す
func (m *MockDiscovery) ScanDevices(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]string, len(m.devices))
	copy(out, m.devices)
	return out, nil
}

// IsDeviceAvailable はモックデバイスが利用可能かチェックする
func (m *MockDiscovery) IsDeviceAvailable(ctx context.Context, device string) bool {
	return m.CheckAccess(ctx, device) == nil
}

// CheckAccess は登録済みかどうかと、設定されたアクセスエラーを返す
func (m *MockDiscovery) CheckAccess(_ context.Context, device string) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err, ok := m.accessErrs[device]; ok {
		return err
	}
	if _, ok := m.deviceInfos[device]; !ok {
		return fmt.Errorf("%w: %s", ErrDeviceUnavailable, device)
	}
	return nil
}

// GetDeviceInfo はモックデバイス情報を取得する
func (m *MockDiscovery) GetDeviceInfo(_ context.Context, device string) (*DeviceInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	info, exists := m.deviceInfos[device]
	if !exists {
		return nil, fmt.Errorf("デバイスが見つかりません: %s", device)
	}

	result := *info
	return &result, nil
}

// AddDevice はテスト用にデバイスを追加する
func (m *MockDiscovery) AddDevice(device string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.deviceInfos[device]; exists {
		return
	}

	m.devices = append(m.devices, device)
	m.deviceInfos[device] = &DeviceInfo{
		Device: device,
		Name:   fmt.Sprintf("テストカメラ %d", len(m.devices)),
		Driver: "mock",
		Resolutions: []Resolution{
			{Width: 640, Height: 480},
			{Width: 1280, Height: 720},
		},
		Formats: []string{"MJPEG"},
	}
}

// RemoveDevice はテスト用にデバイスを削除する
func (m *MockDiscovery) RemoveDevice(device string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, d := range m.devices {
		if d == device {
			m.devices = append(m.devices[:i], m.devices[i+1:]...)
			break
		}
	}
	delete(m.deviceInfos, device)
}

// SetAccessError はテスト用にデバイスのアクセスエラーを設定する。nil で解除する
func (m *MockDiscovery) SetAccessError(device string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err == nil {
		delete(m.accessErrs, device)
		return
	}
	m.accessErrs[device] = err
}
