package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/tripshare/internal/model"
)

// PostgresTripRepo はPostgreSQLを使用した旅行ドキュメントリポジトリ。
// ドキュメント本体はJSONBに不透明なまま格納し、一覧用の概要列だけを別に持つ。
type PostgresTripRepo struct {
	db *sql.DB
}

// NewPostgresTripRepo はPostgresTripRepoを生成する。
func NewPostgresTripRepo(db *sql.DB) *PostgresTripRepo {
	return &PostgresTripRepo{db: db}
}

// FindByID は指定IDの旅行を取得する。見つからない場合はnilを返す。
func (r *PostgresTripRepo) FindByID(ctx context.Context, id string) (*model.Trip, error) {
	trip := &model.Trip{}
	var data []byte
	err := r.db.QueryRowContext(ctx,
		`SELECT id, owner_user_id, trip_name, start_date, end_date, data, schema_version, created_at, updated_at
		 FROM trips
		 WHERE id = $1`,
		id,
	).Scan(&trip.ID, &trip.OwnerUserID, &trip.TripName, &trip.StartDate, &trip.EndDate,
		&data, &trip.SchemaVersion, &trip.CreatedAt, &trip.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find trip: %w", err)
	}

	trip.Data = data
	return trip, nil
}

// CreateWithOwner は旅行と作成者のownerメンバーシップを同一トランザクションで作成する。
func (r *PostgresTripRepo) CreateWithOwner(ctx context.Context, trip *model.Trip) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO trips (id, owner_user_id, trip_name, start_date, end_date, data, schema_version, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		trip.ID, trip.OwnerUserID, trip.TripName, trip.StartDate, trip.EndDate,
		[]byte(trip.Data), trip.SchemaVersion, trip.CreatedAt, trip.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert trip: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO trip_members (trip_id, user_id, role, joined_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (trip_id, user_id) DO NOTHING`,
		trip.ID, trip.OwnerUserID, model.RoleOwner.String(), trip.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert owner membership: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// Replace は旅行ドキュメントを上書きする。owner_user_idとcreated_atは変更しない。
func (r *PostgresTripRepo) Replace(ctx context.Context, trip *model.Trip) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE trips
		 SET trip_name = $2, start_date = $3, end_date = $4, data = $5, schema_version = $6, updated_at = $7
		 WHERE id = $1`,
		trip.ID, trip.TripName, trip.StartDate, trip.EndDate,
		[]byte(trip.Data), trip.SchemaVersion, trip.UpdatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to replace trip: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

// Delete は旅行を削除する。
func (r *PostgresTripRepo) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM trips WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete trip: %w", err)
	}
	return nil
}

// ListAccessible はメンバーシップのある旅行と、メンバーシップ導入前に作成された自分の旅行を
// 重複なく返す。メンバーシップ行がある場合はその権限を優先する。
func (r *PostgresTripRepo) ListAccessible(ctx context.Context, userID string) ([]AccessibleTrip, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT t.id, t.owner_user_id, t.trip_name, t.start_date, t.end_date, t.updated_at,
		        COALESCE(m.role, 'owner') AS role
		 FROM trips t
		 LEFT JOIN trip_members m ON m.trip_id = t.id AND m.user_id = $1
		 WHERE m.user_id IS NOT NULL OR t.owner_user_id = $1
		 ORDER BY t.updated_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list trips: %w", err)
	}
	defer rows.Close()

	var trips []AccessibleTrip
	for rows.Next() {
		var t AccessibleTrip
		var role string
		if err := rows.Scan(&t.ID, &t.OwnerUserID, &t.TripName, &t.StartDate, &t.EndDate, &t.UpdatedAt, &role); err != nil {
			return nil, fmt.Errorf("failed to scan trip: %w", err)
		}
		t.Role, err = model.ParseRole(role)
		if err != nil {
			return nil, fmt.Errorf("invalid role for trip %s: %w", t.ID, err)
		}
		trips = append(trips, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate trips: %w", err)
	}

	return trips, nil
}

// compile-time interface check
var _ TripRepository = (*PostgresTripRepo)(nil)
