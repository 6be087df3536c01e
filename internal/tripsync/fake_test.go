package tripsync

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"
)

// fakeTimer は手動で発火させるタイマー。
type fakeTimer struct {
	delay   time.Duration
	f       func()
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	was := !t.stopped
	t.stopped = true
	return was
}

type fakeTimers struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

func (ft *fakeTimers) afterFunc(d time.Duration, f func()) stopper {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	t := &fakeTimer{delay: d, f: f}
	ft.timers = append(ft.timers, t)
	return t
}

// fireActive は停止されていないタイマーを発火させ、発火した数を返す。
func (ft *fakeTimers) fireActive() int {
	ft.mu.Lock()
	var active []*fakeTimer
	for _, t := range ft.timers {
		if !t.stopped {
			t.stopped = true
			active = append(active, t)
		}
	}
	ft.mu.Unlock()

	for _, t := range active {
		t.f()
	}
	return len(active)
}

// fireAll は停止済みを含むすべてのタイマーを発火させる。
// Stopと満了が競合した場合を再現する。
func (ft *fakeTimers) fireAll() {
	ft.mu.Lock()
	all := append([]*fakeTimer(nil), ft.timers...)
	ft.mu.Unlock()

	for _, t := range all {
		t.f()
	}
}

func (ft *fakeTimers) count() int {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	return len(ft.timers)
}

// fakeTransport はメモリ上のTransport。
type fakeTransport struct {
	mu        sync.Mutex
	docs      map[string]*Document
	summaries []Summary

	listCalls int
	replaced  []*Document
	created   []*Document
	deleted   []string

	listErr    error
	getErr     error
	createErr  error
	replaceErr error
	deleteErr  error

	// onReplace はReplaceTrip中に呼ばれる。
	onReplace func()
}

var _ Transport = (*fakeTransport)(nil)

func newFakeTransport() *fakeTransport {
	return &fakeTransport{docs: make(map[string]*Document)}
}

func (f *fakeTransport) addTrip(doc *Document) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.docs[doc.ID] = doc.Clone()
	f.summaries = append(f.summaries, summaryOf(doc))
}

func (f *fakeTransport) ListTrips(ctx context.Context) ([]Summary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	return cloneSummaries(f.summaries), nil
}

func (f *fakeTransport) GetTrip(ctx context.Context, id string) (*Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	doc, ok := f.docs[id]
	if !ok {
		return nil, &ResponseError{Status: 404, Code: "TRIP_NOT_FOUND"}
	}
	return doc.Clone(), nil
}

func (f *fakeTransport) CreateTrip(ctx context.Context, doc *Document) (*Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, doc.Clone())
	if f.createErr != nil {
		return nil, f.createErr
	}
	created := doc.Clone()
	created.OwnerUserID = "me"
	created.Role = "owner"
	f.docs[created.ID] = created
	return created.Clone(), nil
}

func (f *fakeTransport) ReplaceTrip(ctx context.Context, doc *Document) error {
	f.mu.Lock()
	hook := f.onReplace
	f.replaced = append(f.replaced, doc.Clone())
	err := f.replaceErr
	if err == nil {
		f.docs[doc.ID] = doc.Clone()
	}
	f.mu.Unlock()

	if hook != nil {
		hook()
	}
	return err
}

func (f *fakeTransport) DeleteTrip(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, id)
	if f.deleteErr != nil {
		return f.deleteErr
	}
	delete(f.docs, id)
	return nil
}

func (f *fakeTransport) replacedDocs() []*Document {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*Document(nil), f.replaced...)
}

func (f *fakeTransport) listCallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listCalls
}

var errNetwork = errors.New("network unreachable")

func testDoc(id, name, role string) *Document {
	return &Document{
		ID:            id,
		OwnerUserID:   "owner-1",
		TripName:      name,
		StartDate:     "2026-04-01",
		EndDate:       "2026-04-03",
		Data:          json.RawMessage(`{"days":[]}`),
		SchemaVersion: 1,
		Role:          role,
		CreatedAt:     time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		UpdatedAt:     time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}
