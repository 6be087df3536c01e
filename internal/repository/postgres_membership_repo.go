package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/hitoshi/tripshare/internal/model"
)

// PostgresMembershipRepo はPostgreSQLを使用したメンバーシップリポジトリ。
type PostgresMembershipRepo struct {
	db *sql.DB
}

// NewPostgresMembershipRepo はPostgresMembershipRepoを生成する。
func NewPostgresMembershipRepo(db *sql.DB) *PostgresMembershipRepo {
	return &PostgresMembershipRepo{db: db}
}

// Find は (tripID, userID) のメンバーシップを取得する。見つからない場合はnilを返す。
func (r *PostgresMembershipRepo) Find(ctx context.Context, tripID, userID string) (*model.Membership, error) {
	m := &model.Membership{}
	var role string
	err := r.db.QueryRowContext(ctx,
		`SELECT trip_id, user_id, role, joined_at
		 FROM trip_members
		 WHERE trip_id = $1 AND user_id = $2`,
		tripID, userID,
	).Scan(&m.TripID, &m.UserID, &role, &m.JoinedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find membership: %w", err)
	}

	if m.Role, err = model.ParseRole(role); err != nil {
		return nil, fmt.Errorf("invalid membership role: %w", err)
	}
	return m, nil
}

// ListByTrip は旅行のメンバー一覧を権限の強い順に返す。
func (r *PostgresMembershipRepo) ListByTrip(ctx context.Context, tripID string) ([]model.MemberView, error) {
	byTrip, err := r.ListByTrips(ctx, []string{tripID})
	if err != nil {
		return nil, err
	}
	return byTrip[tripID], nil
}

// ListByTrips は複数旅行のメンバー一覧を1クエリで取得する。
func (r *PostgresMembershipRepo) ListByTrips(ctx context.Context, tripIDs []string) (map[string][]model.MemberView, error) {
	result := make(map[string][]model.MemberView, len(tripIDs))
	if len(tripIDs) == 0 {
		return result, nil
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT m.trip_id, m.user_id, u.email, u.name, m.role, m.joined_at
		 FROM trip_members m
		 JOIN users u ON u.id = m.user_id
		 WHERE m.trip_id = ANY($1)
		 ORDER BY m.trip_id,
		          CASE m.role WHEN 'owner' THEN 0 WHEN 'editor' THEN 1 ELSE 2 END,
		          m.joined_at`,
		pq.Array(tripIDs),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var tripID, role string
		var mv model.MemberView
		if err := rows.Scan(&tripID, &mv.UserID, &mv.Email, &mv.Name, &role, &mv.JoinedAt); err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		if mv.Role, err = model.ParseRole(role); err != nil {
			return nil, fmt.Errorf("invalid membership role: %w", err)
		}
		result[tripID] = append(result[tripID], mv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate members: %w", err)
	}

	return result, nil
}

// UpdateRole はメンバーの権限を更新する。
func (r *PostgresMembershipRepo) UpdateRole(ctx context.Context, tripID, userID string, role model.Role) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE trip_members SET role = $3 WHERE trip_id = $1 AND user_id = $2`,
		tripID, userID, role.String(),
	)
	if err != nil {
		return false, fmt.Errorf("failed to update member role: %w", err)
	}
	return affected(result)
}

// Delete はメンバーシップを削除する。
func (r *PostgresMembershipRepo) Delete(ctx context.Context, tripID, userID string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM trip_members WHERE trip_id = $1 AND user_id = $2`,
		tripID, userID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to delete member: %w", err)
	}
	return affected(result)
}

// affected は更新行数が1以上かどうかを返す。
func affected(result sql.Result) (bool, error) {
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

// compile-time interface check
var _ MembershipRepository = (*PostgresMembershipRepo)(nil)
