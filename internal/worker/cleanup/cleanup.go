// Package cleanup は期限切れデータの定期削除ジョブを提供する。
// 期限切れセッションは毎回すべて削除し、招待は保持期間（デフォルト90日）を
// 超えた処理済み・期限切れのものを削除する。
package cleanup

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// Executor はSQLのExecContextを抽象化するインターフェース。
// *sql.DB や *sql.Tx を受け付けることができる。
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// SessionPurger は期限切れセッションの一括削除インターフェース。
// repository.SessionRepositoryの部分集合として定義する。
type SessionPurger interface {
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

// PurgeRecorder は削除件数を記録するインターフェース。
type PurgeRecorder interface {
	RecordSessionsPurged(count int64)
}

// DefaultInvitationRetentionDays は処理済み招待の保持日数の既定値。
const DefaultInvitationRetentionDays = 90

// CleanupJob は期限切れセッションと古い招待の削除ジョブ。
// 冪等で、削除対象がなくてもエラーにならない。
type CleanupJob struct {
	sessions SessionPurger
	db       Executor
	logger   *slog.Logger
	recorder PurgeRecorder
	now      func() time.Time

	InvitationRetentionDays int // 招待の保持日数（デフォルト: 90）
}

// NewCleanupJob は新しいCleanupJobを生成する。recorderはnilでもよい。
func NewCleanupJob(sessions SessionPurger, db Executor, logger *slog.Logger, recorder PurgeRecorder) *CleanupJob {
	return &CleanupJob{
		sessions:                sessions,
		db:                      db,
		logger:                  logger,
		recorder:                recorder,
		now:                     time.Now,
		InvitationRetentionDays: DefaultInvitationRetentionDays,
	}
}

// Run は期限切れセッションと保持期間を超えた招待を削除する。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := j.now()

	sessions, err := j.sessions.DeleteExpired(ctx, start)
	if err != nil {
		j.logger.Error("期限切れセッションの削除に失敗しました",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("期限切れセッションの削除に失敗: %w", err)
	}
	if j.recorder != nil {
		j.recorder.RecordSessionsPurged(sessions)
	}

	invitations, err := j.purgeInvitations(ctx, start)
	if err != nil {
		j.logger.Error("招待クリーンアップの実行に失敗しました",
			slog.String("error", err.Error()),
			slog.Int("retention_days", j.InvitationRetentionDays),
		)
		return err
	}

	j.logger.Info("クリーンアップジョブが完了しました",
		slog.Int64("sessions_deleted", sessions),
		slog.Int64("invitations_deleted", invitations),
		slog.Int("retention_days", j.InvitationRetentionDays),
		slog.Float64("duration_ms", float64(j.now().Sub(start).Milliseconds())),
	)
	return nil
}

// purgeInvitations は処理済みで作成から保持期間を過ぎた招待と、
// 有効期限から保持期間を過ぎたpending招待を削除する。
func (j *CleanupJob) purgeInvitations(ctx context.Context, now time.Time) (int64, error) {
	cutoff := now.AddDate(0, 0, -j.InvitationRetentionDays)

	query := `DELETE FROM invitations
		WHERE (status <> 'pending' AND created_at < $1)
		   OR (status = 'pending' AND expires_at < $1)`
	result, err := j.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("招待クリーンアップの実行に失敗: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("削除件数の取得に失敗: %w", err)
	}
	return n, nil
}

// Start は起動直後に1回実行し、以降intervalごとにctxがキャンセルされるまで実行する。
// 実行エラーはログに記録して次回に持ち越す。
func (j *CleanupJob) Start(ctx context.Context, interval time.Duration) {
	j.runLogged(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.runLogged(ctx)
		}
	}
}

func (j *CleanupJob) runLogged(ctx context.Context) {
	if err := j.Run(ctx); err != nil && ctx.Err() == nil {
		j.logger.Warn("cleanup job failed", slog.String("error", err.Error()))
	}
}
