package camera

import (
	"context"
	"image"
	"sync"

	"go.uber.org/zap"
)

// Previewer はストリームをライブプレビューに結びつける
//
// 最初のフレームが届いた時点で Ready を閉じる。表示中のときだけ
// 購読者へフレームを配り、非表示でも準備状態の追跡は続ける。
type Previewer struct {
	device Device
	logger *zap.Logger

	mu          sync.Mutex
	handle      *StreamHandle
	ready       chan struct{}
	readyClosed bool
	visible     bool
	latest      image.Image
	unsubscribe func()
	stopCh      chan struct{}
	wg          sync.WaitGroup

	nextSubID   int
	subscribers map[int]chan image.Image
}

// NewPreviewer は新しいPreviewerを作成する
func NewPreviewer(device Device, logger *zap.Logger) *Previewer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Previewer{
		device:      device,
		logger:      logger,
		ready:       make(chan struct{}),
		visible:     true,
		subscribers: make(map[int]chan image.Image),
	}
}

// Bind はハンドルのフレーム購読を開始する。既存の結びつけは解除される
func (p *Previewer) Bind(handle *StreamHandle, visible bool) error {
	if !handle.Active() {
		return ErrNoActiveStream
	}

	p.Unbind()

	frames, unsubscribe, err := p.device.SubscribeFrames(handle.Raw())
	if err != nil {
		return err
	}

	p.mu.Lock()
	p.handle = handle
	p.visible = visible
	p.unsubscribe = unsubscribe
	p.stopCh = make(chan struct{})
	stopCh := p.stopCh
	p.wg.Add(1)
	p.mu.Unlock()

	go p.receive(frames, stopCh)

	p.logger.Debug("プレビューを結びつけました", zap.String("handle", handle.ID()), zap.Bool("visible", visible))
	return nil
}

// Unbind はフレーム購読を止め、準備状態をリセットする
func (p *Previewer) Unbind() {
	p.mu.Lock()
	if p.handle == nil {
		p.mu.Unlock()
		return
	}
	unsubscribe := p.unsubscribe
	close(p.stopCh)
	p.handle = nil
	p.unsubscribe = nil
	p.mu.Unlock()

	unsubscribe()
	p.wg.Wait()

	p.mu.Lock()
	p.latest = nil
	if p.readyClosed {
		p.ready = make(chan struct{})
		p.readyClosed = false
	}
	p.mu.Unlock()
}

// receive はデバイスからのフレームを受け取り、購読者へ配る
func (p *Previewer) receive(frames <-chan image.Image, stopCh <-chan struct{}) {
	defer p.wg.Done()

	for {
		select {
		case <-stopCh:
			return
		case frame, ok := <-frames:
			if !ok {
				return
			}
			p.deliver(frame)
		}
	}
}

// deliver は最新フレームを保存し、表示中なら購読者へ流す
func (p *Previewer) deliver(frame image.Image) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.latest = frame
	if !p.readyClosed {
		close(p.ready)
		p.readyClosed = true
		p.logger.Debug("最初のフレームが届きました")
	}

	if !p.visible {
		return
	}
	for _, sub := range p.subscribers {
		offerImage(sub, frame)
	}
}

// Ready は最初のフレームが届くと閉じるチャンネルを返す
func (p *Previewer) Ready() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ready
}

// IsReady は最初のフレームが届いているかを返す
func (p *Previewer) IsReady() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.readyClosed
}

// WaitReady は準備完了かコンテキスト終了まで待つ
func (p *Previewer) WaitReady(ctx context.Context) error {
	select {
	case <-p.Ready():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Bound は結びつけられているハンドルを返す
func (p *Previewer) Bound() *StreamHandle {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.handle
}

// SetVisible はプレビューの表示状態を切り替える
func (p *Previewer) SetVisible(visible bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.visible = visible
}

// Visible はプレビューが表示中かを返す
func (p *Previewer) Visible() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.visible
}

// Latest は最後に届いたフレームを返す
func (p *Previewer) Latest() image.Image {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.latest
}

// Subscribe はプレビューフレームの購読を開始する
//
// 購読はストリームの開き直し (Unbind → Bind) をまたいで続き、CloseSubscribers で閉じられる。遅い購読者には古いフレームを捨てて最新を渡す。
func (p *Previewer) Subscribe() (<-chan image.Image, func()) {
	ch := make(chan image.Image, 1)

	p.mu.Lock()
	id := p.nextSubID
	p.nextSubID++
	p.subscribers[id] = ch
	p.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			p.mu.Lock()
			defer p.mu.Unlock()
			if sub, ok := p.subscribers[id]; ok {
				delete(p.subscribers, id)
				close(sub)
			}
		})
	}
	return ch, cancel
}

// CloseSubscribers は全ての購読チャンネルを閉じる
//
// 購読者はチャンネルのクローズでプレビューの終了を知る。閉じた後の cancel は何もしない。
func (p *Previewer) CloseSubscribers() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for id, sub := range p.subscribers {
		delete(p.subscribers, id)
		close(sub)
	}
	p.logger.Debug("プレビューの購読を全て閉じました")
}

// SubscriberCount は購読者数を返す
func (p *Previewer) SubscriberCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.subscribers)
}
