package tripsync

import (
	"context"
	"sync"
	"time"
)

// DefaultDelay は最後の編集から送信までの既定の遅延。
const DefaultDelay = 2 * time.Second

// stopper は停止可能なタイマー。*time.Timerが実装する。
type stopper interface {
	Stop() bool
}

// afterFunc はdelay後にfを呼ぶタイマーを開始する。テストで差し替える。
type afterFunc func(delay time.Duration, f func()) stopper

func realAfterFunc(delay time.Duration, f func()) stopper {
	return time.AfterFunc(delay, f)
}

// debouncer は最新のスナップショットを保持し、遅延後に1回だけ送信する。
// Scheduleのたびにタイマーを張り直し、古いタイマーは世代番号の不一致で無効になる。
type debouncer struct {
	delay     time.Duration
	afterFunc afterFunc
	flush     func(ctx context.Context, doc *Document) error
	onError   func(doc *Document, err error)

	mu      sync.Mutex
	gen     uint64
	timer   stopper
	pending *Document
}

func newDebouncer(delay time.Duration, af afterFunc, flush func(context.Context, *Document) error, onError func(*Document, error)) *debouncer {
	if delay <= 0 {
		delay = DefaultDelay
	}
	if af == nil {
		af = realAfterFunc
	}
	return &debouncer{delay: delay, afterFunc: af, flush: flush, onError: onError}
}

// Schedule は送信予定のスナップショットを差し替え、タイマーを再開始する。
func (d *debouncer) Schedule(doc *Document) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.gen++
	d.pending = doc
	if d.timer != nil {
		d.timer.Stop()
	}
	gen := d.gen
	d.timer = d.afterFunc(d.delay, func() { d.fire(gen) })
}

// fire はタイマー満了時に呼ばれる。後続のScheduleで無効化されていれば何もしない。
func (d *debouncer) fire(gen uint64) {
	doc := d.take(gen)
	if doc == nil {
		return
	}
	if err := d.flush(context.Background(), doc); err != nil && d.onError != nil {
		d.onError(doc, err)
	}
}

// take は世代が一致する場合に保留中のスナップショットを取り出す。gen=0は世代を問わない。
func (d *debouncer) take(gen uint64) *Document {
	d.mu.Lock()
	defer d.mu.Unlock()

	if gen != 0 && gen != d.gen {
		return nil
	}
	doc := d.pending
	d.pending = nil
	d.gen++
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	return doc
}

// Flush は保留中のスナップショットがあれば即座に送信する。
func (d *debouncer) Flush(ctx context.Context) error {
	doc := d.take(0)
	if doc == nil {
		return nil
	}
	if err := d.flush(ctx, doc); err != nil {
		if d.onError != nil {
			d.onError(doc, err)
		}
		return err
	}
	return nil
}

// Cancel は保留中のスナップショットを送信せずに破棄する。
func (d *debouncer) Cancel() {
	d.take(0)
}

// Pending は送信待ちのスナップショットがあるかを返す。
func (d *debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending != nil
}
