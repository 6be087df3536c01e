package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// QueueKey は送信待ち通知を格納するRedisリストのキー。
const QueueKey = "tripshare:notify:queue"

// DefaultMaxQueueSize はキューの既定の上限。送信先が停止している間の無制限な増加を防ぐ。
const DefaultMaxQueueSize int64 = 1000

// defaultPopTimeout はキュー取り出しの最大待機時間。ctxのキャンセルを検知できる間隔にする。
const defaultPopTimeout = 2 * time.Second

var (
	// ErrQueueFull はキューが上限に達している場合に返される。
	ErrQueueFull = errors.New("notification queue full")
	// ErrQueueEmpty は待機時間内にキューから取り出せなかった場合に返される。
	ErrQueueEmpty = errors.New("notification queue empty")
)

// Queue は通知ペイロードのFIFOキュー。
type Queue interface {
	// Push はペイロードを末尾に追加する。上限に達している場合はErrQueueFullを返す。
	Push(ctx context.Context, payload []byte) error
	// Pop は先頭のペイロードを取り出す。timeout内に要素がなければErrQueueEmptyを返す。
	Pop(ctx context.Context, timeout time.Duration) ([]byte, error)
}

// RedisQueue はRedisリストを使用したQueue実装。
type RedisQueue struct {
	rdb     *redis.Client
	key     string
	maxSize int64 // 0 = 無制限
}

// NewRedisQueue はRedisQueueを生成する。
func NewRedisQueue(rdb *redis.Client, maxSize int64) *RedisQueue {
	return &RedisQueue{rdb: rdb, key: QueueKey, maxSize: maxSize}
}

// pushScript は長さの確認と追加をアトミックに行う。追加した場合は1、上限超過の場合は0を返す。
// KEYS[1] = キュー, ARGV[1] = 上限（0は無制限）, ARGV[2] = ペイロード
var pushScript = redis.NewScript(`
local max = tonumber(ARGV[1])
if max > 0 and redis.call('LLEN', KEYS[1]) >= max then
    return 0
end
redis.call('LPUSH', KEYS[1], ARGV[2])
return 1
`)

// Push はペイロードを追加する。
func (q *RedisQueue) Push(ctx context.Context, payload []byte) error {
	ok, err := pushScript.Run(ctx, q.rdb, []string{q.key}, q.maxSize, payload).Int64()
	if err != nil {
		return fmt.Errorf("failed to push notification: %w", err)
	}
	if ok == 0 {
		return ErrQueueFull
	}
	return nil
}

// Pop はBRPOPで先頭（最も古い）要素を取り出す。
func (q *RedisQueue) Pop(ctx context.Context, timeout time.Duration) ([]byte, error) {
	res, err := q.rdb.BRPop(ctx, timeout, q.key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrQueueEmpty
	}
	if err != nil {
		return nil, fmt.Errorf("failed to pop notification: %w", err)
	}
	// res[0] = キー名, res[1] = ペイロード
	return []byte(res[1]), nil
}

// QueuedSender は通知をキューに積むだけのSender。
// 実際の送信はworkerプロセスのDrainerが行うため、呼び出し側はSMTP/SESの遅延を待たない。
type QueuedSender struct {
	queue Queue
}

// NewQueuedSender はQueuedSenderを生成する。
func NewQueuedSender(queue Queue) *QueuedSender {
	return &QueuedSender{queue: queue}
}

// Send はメッセージをJSONにしてキューに追加する。
func (s *QueuedSender) Send(ctx context.Context, msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}
	return s.queue.Push(ctx, payload)
}

// FailureRecorder は送信失敗を記録するインターフェース。
// metrics.MetricsCollectorの部分集合として定義する。
type FailureRecorder interface {
	RecordNotificationFailure()
}

// Drainer はキューから通知を取り出し、内側のSenderで送信する。
type Drainer struct {
	queue      Queue
	inner      Sender
	failures   FailureRecorder
	popTimeout time.Duration
}

// NewDrainer はDrainerを生成する。failuresはnilでもよい。
func NewDrainer(queue Queue, inner Sender, failures FailureRecorder) *Drainer {
	return &Drainer{
		queue:      queue,
		inner:      inner,
		failures:   failures,
		popTimeout: defaultPopTimeout,
	}
}

// Run はctxがキャンセルされるまでキューを処理し続ける。
// 送信失敗はログに記録して破棄する（再試行しない）。
func (d *Drainer) Run(ctx context.Context) {
	slog.Info("notification drainer started")
	for {
		if ctx.Err() != nil {
			slog.Info("notification drainer stopped")
			return
		}

		payload, err := d.queue.Pop(ctx, d.popTimeout)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, ErrQueueEmpty) {
				continue
			}
			slog.Error("failed to pop notification", slog.String("error", err.Error()))
			// Redis停止中に空回りしないよう待機する
			select {
			case <-ctx.Done():
			case <-time.After(d.popTimeout):
			}
			continue
		}

		d.dispatch(ctx, payload)
	}
}

// dispatch は1件のペイロードを送信する。
func (d *Drainer) dispatch(ctx context.Context, payload []byte) {
	var msg Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		slog.Error("bad notification payload", slog.String("error", err.Error()))
		return
	}
	if err := d.inner.Send(ctx, msg); err != nil {
		slog.Error("failed to deliver queued notification",
			slog.String("to", msg.To),
			slog.String("error", err.Error()),
		)
		if d.failures != nil {
			d.failures.RecordNotificationFailure()
		}
	}
}

// compile-time interface check
var (
	_ Sender = (*QueuedSender)(nil)
	_ Queue  = (*RedisQueue)(nil)
)
