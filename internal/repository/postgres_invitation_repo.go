package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/tripshare/internal/model"
)

// PostgresInvitationRepo はPostgreSQLを使用した招待リポジトリ。
type PostgresInvitationRepo struct {
	db *sql.DB
}

// NewPostgresInvitationRepo はPostgresInvitationRepoを生成する。
func NewPostgresInvitationRepo(db *sql.DB) *PostgresInvitationRepo {
	return &PostgresInvitationRepo{db: db}
}

const selectInvitationColumns = `SELECT i.id, i.trip_id, i.inviter_user_id, i.invitee_email, i.role, i.status, i.created_at, i.expires_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInvitation(row rowScanner, inv *model.Invitation, extra ...any) error {
	var role, status string
	dest := append([]any{&inv.ID, &inv.TripID, &inv.InviterUserID, &inv.InviteeEmail, &role, &status, &inv.CreatedAt, &inv.ExpiresAt}, extra...)
	if err := row.Scan(dest...); err != nil {
		return err
	}
	parsed, err := model.ParseRole(role)
	if err != nil {
		return fmt.Errorf("invalid invitation role: %w", err)
	}
	inv.Role = parsed
	inv.Status = model.InvitationStatus(status)
	return nil
}

// FindByID は指定IDの招待を取得する。見つからない場合はnilを返す。
func (r *PostgresInvitationRepo) FindByID(ctx context.Context, id string) (*model.Invitation, error) {
	inv := &model.Invitation{}
	err := scanInvitation(r.db.QueryRowContext(ctx,
		selectInvitationColumns+` FROM invitations i WHERE i.id = $1`, id,
	), inv)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find invitation: %w", err)
	}
	return inv, nil
}

// upsertPendingInvitationQuery は部分ユニークインデックスを衝突先として1文で作成または更新する。
// xmaxが0でない行は既存行の更新で得られたもの。
const upsertPendingInvitationQuery = `INSERT INTO invitations AS i (id, trip_id, inviter_user_id, invitee_email, role, status, created_at, expires_at)
	 VALUES ($1, $2, $3, $4, $5, 'pending', $6, $7)
	 ON CONFLICT (trip_id, invitee_email) WHERE status = 'pending'
	 DO UPDATE SET role = EXCLUDED.role, inviter_user_id = EXCLUDED.inviter_user_id, expires_at = EXCLUDED.expires_at
	 RETURNING i.id, i.trip_id, i.inviter_user_id, i.invitee_email, i.role, i.status, i.created_at, i.expires_at, (i.xmax <> 0)`

// UpsertPending は (trip_id, invitee_email) のpending招待を作成または更新する。
// 同じ宛先への同時の招待でも一意制約違反にならず、どちらかが既存行の更新になる。
func (r *PostgresInvitationRepo) UpsertPending(ctx context.Context, inv *model.Invitation) (*model.Invitation, bool, error) {
	stored := &model.Invitation{}
	var refreshed bool
	err := scanInvitation(r.db.QueryRowContext(ctx, upsertPendingInvitationQuery,
		inv.ID, inv.TripID, inv.InviterUserID, inv.InviteeEmail, inv.Role.String(), inv.CreatedAt, inv.ExpiresAt,
	), stored, &refreshed)
	if err != nil {
		return nil, false, fmt.Errorf("failed to upsert invitation: %w", err)
	}
	return stored, refreshed, nil
}

const selectInvitationView = selectInvitationColumns + `, t.trip_name, u.name, u.email
	 FROM invitations i
	 JOIN trips t ON t.id = i.trip_id
	 JOIN users u ON u.id = i.inviter_user_id`

// ListPendingByEmail はメールアドレス宛ての有効なpending招待を新しい順に返す。
func (r *PostgresInvitationRepo) ListPendingByEmail(ctx context.Context, email string, now time.Time) ([]model.PendingInvitationView, error) {
	rows, err := r.db.QueryContext(ctx,
		selectInvitationView+`
		 WHERE i.invitee_email = $1 AND i.status = 'pending' AND i.expires_at > $2
		 ORDER BY i.created_at DESC`,
		email, now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending invitations: %w", err)
	}
	defer rows.Close()

	var views []model.PendingInvitationView
	for rows.Next() {
		var v model.PendingInvitationView
		if err := scanInvitation(rows, &v.Invitation, &v.TripName, &v.InviterName, &v.InviterEmail); err != nil {
			return nil, fmt.Errorf("failed to scan invitation: %w", err)
		}
		views = append(views, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate invitations: %w", err)
	}
	return views, nil
}

// FindViewByID は招待を旅行名と招待者情報付きで取得する。
func (r *PostgresInvitationRepo) FindViewByID(ctx context.Context, id string) (*model.PendingInvitationView, error) {
	v := &model.PendingInvitationView{}
	err := scanInvitation(r.db.QueryRowContext(ctx, selectInvitationView+` WHERE i.id = $1`, id),
		&v.Invitation, &v.TripName, &v.InviterName, &v.InviterEmail)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find invitation view: %w", err)
	}
	return v, nil
}

// Accept は招待のaccepted化とメンバーシップ追加を同一トランザクションで行う。
// 状態更新を先に行い、pendingでなくなっていれば何も書き込まずにfalseを返す。
// 既にメンバーである場合、メンバーシップの挿入は何もしない（権限は昇格しない）。
func (r *PostgresInvitationRepo) Accept(ctx context.Context, inv *model.Invitation, userID string, joinedAt time.Time) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`UPDATE invitations SET status = 'accepted' WHERE id = $1 AND status = 'pending'`,
		inv.ID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to accept invitation: %w", err)
	}
	ok, err := affected(result)
	if err != nil || !ok {
		return false, err
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO trip_members (trip_id, user_id, role, joined_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (trip_id, user_id) DO NOTHING`,
		inv.TripID, userID, inv.Role.String(), joinedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert membership: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return true, nil
}

// Decline は招待をdeclinedに更新する。
func (r *PostgresInvitationRepo) Decline(ctx context.Context, id string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE invitations SET status = 'declined' WHERE id = $1 AND status = 'pending'`,
		id,
	)
	if err != nil {
		return false, fmt.Errorf("failed to decline invitation: %w", err)
	}
	return affected(result)
}

// compile-time interface check
var _ InvitationRepository = (*PostgresInvitationRepo)(nil)
