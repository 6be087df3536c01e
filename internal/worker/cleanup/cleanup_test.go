package cleanup

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"
)

type fakeResult struct {
	rowsAffected int64
}

func (r *fakeResult) LastInsertId() (int64, error) { return 0, nil }
func (r *fakeResult) RowsAffected() (int64, error) { return r.rowsAffected, nil }

// Executor インターフェースに対するモック実装
type mockExecutor struct {
	execCalled bool
	query      string
	args       []interface{}
	result     sql.Result
	err        error
}

func (m *mockExecutor) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	m.execCalled = true
	m.query = query
	m.args = args
	return m.result, m.err
}

type mockSessionPurger struct {
	before  time.Time
	deleted int64
	err     error
	calls   int
}

func (m *mockSessionPurger) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	m.calls++
	m.before = before
	return m.deleted, m.err
}

type recordingRecorder struct {
	purged []int64
}

func (r *recordingRecorder) RecordSessionsPurged(count int64) {
	r.purged = append(r.purged, count)
}

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

var fixedNow = time.Date(2026, 10, 1, 3, 0, 0, 0, time.UTC)

func newTestJob(buf *bytes.Buffer, sessions *mockSessionPurger, exec *mockExecutor, rec PurgeRecorder) *CleanupJob {
	job := NewCleanupJob(sessions, exec, newTestLogger(buf), rec)
	job.now = func() time.Time { return fixedNow }
	return job
}

// findLogEntry はJSONログから指定キーを持つ最初のエントリを返す。
func findLogEntry(buf *bytes.Buffer, key string) map[string]interface{} {
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var entry map[string]interface{}
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			continue
		}
		if _, ok := entry[key]; ok {
			return entry
		}
	}
	return nil
}

func TestNewCleanupJob_DefaultRetention(t *testing.T) {
	job := NewCleanupJob(&mockSessionPurger{}, &mockExecutor{}, slog.Default(), nil)
	if job.InvitationRetentionDays != 90 {
		t.Errorf("InvitationRetentionDays = %d, want 90", job.InvitationRetentionDays)
	}
}

func TestCleanupJob_Run_PurgesExpiredSessions(t *testing.T) {
	var buf bytes.Buffer
	sessions := &mockSessionPurger{deleted: 7}
	rec := &recordingRecorder{}
	job := newTestJob(&buf, sessions, &mockExecutor{result: &fakeResult{}}, rec)

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run() がエラーを返した: %v", err)
	}

	if !sessions.before.Equal(fixedNow) {
		t.Errorf("DeleteExpired(before) = %v, want %v", sessions.before, fixedNow)
	}
	if len(rec.purged) != 1 || rec.purged[0] != 7 {
		t.Errorf("RecordSessionsPurged = %v, want [7]", rec.purged)
	}
	entry := findLogEntry(&buf, "sessions_deleted")
	if entry == nil || entry["sessions_deleted"] != float64(7) {
		t.Errorf("ログに sessions_deleted=7 が記録されていない。ログ出力: %s", buf.String())
	}
}

func TestCleanupJob_Run_PurgesOldInvitations(t *testing.T) {
	var buf bytes.Buffer
	exec := &mockExecutor{result: &fakeResult{rowsAffected: 3}}
	job := newTestJob(&buf, &mockSessionPurger{}, exec, nil)

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run() がエラーを返した: %v", err)
	}

	if !strings.Contains(exec.query, "DELETE FROM invitations") {
		t.Errorf("クエリに 'DELETE FROM invitations' が含まれていない: %s", exec.query)
	}
	if !strings.Contains(exec.query, "status = 'pending' AND expires_at") {
		t.Errorf("pending招待は有効期限で判定すべき: %s", exec.query)
	}

	cutoff, ok := exec.args[0].(time.Time)
	if !ok {
		t.Fatalf("第1引数が time.Time ではない: %T", exec.args[0])
	}
	if want := fixedNow.AddDate(0, 0, -90); !cutoff.Equal(want) {
		t.Errorf("cutoff = %v, want %v", cutoff, want)
	}

	entry := findLogEntry(&buf, "invitations_deleted")
	if entry == nil || entry["invitations_deleted"] != float64(3) || entry["retention_days"] != float64(90) {
		t.Errorf("ログ出力が期待と異なる: %s", buf.String())
	}
	if findLogEntry(&buf, "duration_ms") == nil {
		t.Errorf("ログに duration_ms が記録されていない")
	}
}

func TestCleanupJob_CustomRetentionDays(t *testing.T) {
	var buf bytes.Buffer
	exec := &mockExecutor{result: &fakeResult{}}
	job := newTestJob(&buf, &mockSessionPurger{}, exec, nil)
	job.InvitationRetentionDays = 30

	_ = job.Run(context.Background())

	cutoff := exec.args[0].(time.Time)
	if want := fixedNow.AddDate(0, 0, -30); !cutoff.Equal(want) {
		t.Errorf("cutoff = %v, want %v", cutoff, want)
	}
}

func TestCleanupJob_Run_SessionFailureStopsRun(t *testing.T) {
	var buf bytes.Buffer
	exec := &mockExecutor{result: &fakeResult{}}
	rec := &recordingRecorder{}
	job := newTestJob(&buf, &mockSessionPurger{err: sql.ErrConnDone}, exec, rec)

	err := job.Run(context.Background())
	if !errors.Is(err, sql.ErrConnDone) {
		t.Fatalf("Run() error = %v, want %v", err, sql.ErrConnDone)
	}
	if exec.execCalled {
		t.Error("セッション削除に失敗した場合、招待の削除は実行しない")
	}
	if len(rec.purged) != 0 {
		t.Error("失敗時に削除件数を記録してはならない")
	}
	if !strings.Contains(buf.String(), "ERROR") {
		t.Errorf("エラー時にERRORレベルのログが記録されていない。ログ出力: %s", buf.String())
	}
}

func TestCleanupJob_Run_InvitationFailure(t *testing.T) {
	var buf bytes.Buffer
	job := newTestJob(&buf, &mockSessionPurger{}, &mockExecutor{err: sql.ErrConnDone}, nil)

	err := job.Run(context.Background())
	if err == nil {
		t.Fatal("DBエラー時に Run() は nil でないエラーを返すべき")
	}
	if !strings.Contains(err.Error(), "sql: connection is already closed") {
		t.Errorf("エラーメッセージが期待と異なる: %v", err)
	}
}

func TestCleanupJob_Run_Idempotent_ZeroRows(t *testing.T) {
	var buf bytes.Buffer
	job := newTestJob(&buf, &mockSessionPurger{}, &mockExecutor{result: &fakeResult{}}, nil)

	for i := 0; i < 2; i++ {
		if err := job.Run(context.Background()); err != nil {
			t.Fatalf("%d回目の Run() がエラーを返した: %v", i+1, err)
		}
	}
}

// lockedBuffer はジョブのgoroutineとテストから同時に参照されるログ出力先。
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) Contains(s string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.Contains(b.buf.String(), s)
}

func TestCleanupJob_Start_RunsImmediatelyAndStopsOnCancel(t *testing.T) {
	var out lockedBuffer
	sessions := &mockSessionPurger{}
	job := NewCleanupJob(sessions, &mockExecutor{result: &fakeResult{}}, slog.New(slog.NewJSONHandler(&out, nil)), nil)
	job.now = func() time.Time { return fixedNow }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		job.Start(ctx, time.Hour)
		close(done)
	}()

	// 起動直後の1回目の実行を待つ
	deadline := time.After(2 * time.Second)
	for {
		if out.Contains("sessions_deleted") {
			break
		}
		select {
		case <-deadline:
			t.Fatal("Start() が起動直後に実行しなかった")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Start() がキャンセル後に終了しなかった")
	}
	if sessions.calls != 1 {
		t.Errorf("DeleteExpired calls = %d, want 1", sessions.calls)
	}
}
