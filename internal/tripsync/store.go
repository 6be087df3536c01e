package tripsync

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// duplicateSuffix は複製した旅行の名前に付ける接尾辞。
const duplicateSuffix = " (コピー)"

// Option はStoreの設定を変更する。
type Option func(*Store)

// WithDelay は編集から送信までの遅延を設定する。
func WithDelay(d time.Duration) Option {
	return func(s *Store) { s.delay = d }
}

// WithClock は更新日時の刻印に使う時計を設定する。
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// withAfterFunc はタイマーの実装を差し替える。
func withAfterFunc(af afterFunc) Option {
	return func(s *Store) { s.afterFunc = af }
}

// Store はクライアント側の旅行キャッシュ。
// 旅行一覧と「現在の旅行」を保持し、UIからの読み取りはすべてここを経由する。
type Store struct {
	transport Transport
	delay     time.Duration
	afterFunc afterFunc
	now       func() time.Time
	debounce  *debouncer

	mu        sync.Mutex
	current   *Document
	list      []Summary
	listValid bool
	listGen   uint64
	closed    bool
	// deleted は削除を送信した旅行のID。送信待ちの編集で復活させない。
	deleted map[string]struct{}

	// sendMu はサーバーへの書き込みを1本に直列化する。
	sendMu sync.Mutex
}

// NewStore はStoreを生成する。
func NewStore(transport Transport, opts ...Option) *Store {
	s := &Store{
		transport: transport,
		delay:     DefaultDelay,
		now:       time.Now,
		deleted:   make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.debounce = newDebouncer(s.delay, s.afterFunc, s.send, s.onFlushError)
	return s
}

// Trips は旅行一覧を返す。キャッシュが無効な場合はサーバーから取得する。
func (s *Store) Trips(ctx context.Context) ([]Summary, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	if s.listValid {
		list := cloneSummaries(s.list)
		s.mu.Unlock()
		return list, nil
	}
	gen := s.listGen
	s.mu.Unlock()

	fetched, err := s.transport.ListTrips(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list trips: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// 取得中にローカルの変更があった場合はキャッシュしない
	if gen == s.listGen {
		s.list = cloneSummaries(fetched)
		s.listValid = true
	}
	return cloneSummaries(fetched), nil
}

// Open は旅行を現在の旅行として開く。
// 別の旅行を開いていた場合は、その旅行の未送信の編集を先に送信する。
func (s *Store) Open(ctx context.Context, id string) (*Document, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	cur := s.current
	s.mu.Unlock()

	if cur != nil {
		if cur.ID == id {
			return s.Current(), nil
		}
		// 送信失敗はonFlushErrorで処理済み
		_ = s.debounce.Flush(ctx)
	}

	doc, err := s.transport.GetTrip(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get trip: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = doc.Clone()
	return doc.Clone(), nil
}

// Current は現在の旅行の複製を返す。開いていない場合はnil。
func (s *Store) Current() *Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current.Clone()
}

// Apply は現在の旅行に変換を適用し、遅延送信を予約する。
// 変換はロック中に同期的に実行されるため、Storeのメソッドを呼んではならない。
// ID・所有者・権限・作成日時は変換で変更できない。
func (s *Store) Apply(transform func(Document) Document) (*Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrClosed
	}
	if s.current == nil {
		return nil, ErrNoCurrentTrip
	}
	if !canEdit(s.current.Role) {
		return nil, ErrReadOnly
	}

	prev := s.current
	next := transform(*prev.Clone())
	next.ID = prev.ID
	next.OwnerUserID = prev.OwnerUserID
	next.Role = prev.Role
	next.CreatedAt = prev.CreatedAt
	next.UpdatedAt = s.now()

	s.current = next.Clone()
	s.replaceSummaryLocked(&next)
	s.debounce.Schedule(next.Clone())
	return next.Clone(), nil
}

// Create は旅行を作成する。遅延させずに送信し、一覧には先に反映する。
// doc.IDが空の場合はUUIDを割り当てる。
func (s *Store) Create(ctx context.Context, doc Document) (*Document, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	d := doc.Clone()
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	now := s.now()
	d.OwnerUserID = ""
	d.Role = "owner"
	d.CreatedAt = now
	d.UpdatedAt = now
	if s.listValid {
		s.list = append([]Summary{summaryOf(d)}, s.list...)
	}
	s.listGen++
	s.mu.Unlock()

	s.sendMu.Lock()
	created, err := s.transport.CreateTrip(ctx, d)
	s.sendMu.Unlock()
	if err != nil {
		s.Invalidate()
		return nil, fmt.Errorf("failed to create trip: %w", err)
	}

	s.mu.Lock()
	s.replaceSummaryLocked(created)
	s.mu.Unlock()

	slog.Debug("trip created", slog.String("trip_id", created.ID))
	return created.Clone(), nil
}

// Delete は旅行を削除する。遅延させずに送信し、一覧からは先に取り除く。
// 削除対象が現在の旅行の場合、未送信の編集は破棄する。
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.current != nil && s.current.ID == id {
		s.debounce.Cancel()
		s.current = nil
	}
	if s.listValid {
		kept := s.list[:0:0]
		for _, e := range s.list {
			if e.ID != id {
				kept = append(kept, e)
			}
		}
		s.list = kept
	}
	s.listGen++
	s.deleted[id] = struct{}{}
	s.mu.Unlock()

	s.sendMu.Lock()
	err := s.transport.DeleteTrip(ctx, id)
	s.sendMu.Unlock()
	if err != nil {
		s.mu.Lock()
		delete(s.deleted, id)
		s.invalidateListLocked()
		s.mu.Unlock()
		return fmt.Errorf("failed to delete trip: %w", err)
	}
	return nil
}

// Duplicate は旅行を複製し、呼び出し元をownerとする新しい旅行として作成する。
// 複製元が現在の旅行の場合は、未送信の編集を含むローカルの状態を複製する。
func (s *Store) Duplicate(ctx context.Context, id string) (*Document, error) {
	s.mu.Lock()
	var src *Document
	if s.current != nil && s.current.ID == id {
		src = s.current.Clone()
	}
	s.mu.Unlock()

	if src == nil {
		fetched, err := s.transport.GetTrip(ctx, id)
		if err != nil {
			s.Invalidate()
			return nil, fmt.Errorf("failed to get trip: %w", err)
		}
		src = fetched
	}

	src.ID = ""
	src.TripName += duplicateSuffix
	return s.Create(ctx, *src)
}

// Flush は未送信の編集があれば直ちに送信する。
func (s *Store) Flush(ctx context.Context) error {
	return s.debounce.Flush(ctx)
}

// Invalidate はキャッシュを破棄し、次回の読み取りでサーバーから取り直させる。
func (s *Store) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invalidateListLocked()
}

// Close は未送信の編集を送信し、以降の操作を拒否する。
func (s *Store) Close(ctx context.Context) error {
	err := s.debounce.Flush(ctx)

	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return err
}

// send はドキュメント全体をサーバーへ送信する。
// タイマーで取り出された後に削除された旅行は送信しない。
func (s *Store) send(ctx context.Context, doc *Document) error {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	s.mu.Lock()
	_, gone := s.deleted[doc.ID]
	s.mu.Unlock()
	if gone {
		slog.Debug("trip flush skipped after delete", slog.String("trip_id", doc.ID))
		return nil
	}

	if err := s.transport.ReplaceTrip(ctx, doc); err != nil {
		return fmt.Errorf("failed to replace trip: %w", err)
	}
	slog.Debug("trip flushed", slog.String("trip_id", doc.ID))
	return nil
}

// onFlushError は送信失敗時に呼ばれる。再送はせず、キャッシュを破棄する。
// より新しい編集が予約済みの場合、現在の旅行はそのまま残す。
func (s *Store) onFlushError(doc *Document, err error) {
	slog.Warn("trip flush failed",
		slog.String("trip_id", doc.ID),
		slog.String("error", err.Error()),
	)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.invalidateListLocked()
	if s.current != nil && s.current.ID == doc.ID && !s.debounce.Pending() {
		s.current = nil
	}
}

func (s *Store) invalidateListLocked() {
	s.list = nil
	s.listValid = false
	s.listGen++
}

// replaceSummaryLocked は一覧中の同じIDの要素を更新する。メンバー一覧は維持する。
func (s *Store) replaceSummaryLocked(d *Document) {
	s.listGen++
	if !s.listValid {
		return
	}
	for i := range s.list {
		if s.list[i].ID == d.ID {
			members := s.list[i].Members
			s.list[i] = summaryOf(d)
			s.list[i].Members = members
			return
		}
	}
}

func cloneSummaries(src []Summary) []Summary {
	out := make([]Summary, len(src))
	for i, e := range src {
		out[i] = e
		if e.Members != nil {
			out[i].Members = append([]Member(nil), e.Members...)
		}
	}
	return out
}
