// Package trip は旅行ドキュメントの作成・取得・置換・削除を提供する。
//
// ドキュメント本体（日程・アクティビティ・費用）はサーバーでは解釈しない不透明なJSONとして扱い、
// 一覧表示に必要な旅行名と日付だけを別に保持する。
// 更新はドキュメント全体の後勝ちで、同時編集時の競合解決は行わない。
package trip

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/hitoshi/tripshare/internal/metrics"
	"github.com/hitoshi/tripshare/internal/model"
	"github.com/hitoshi/tripshare/internal/repository"
	"github.com/hitoshi/tripshare/internal/security"
)

// MaxTripNameLength は旅行名の最大文字数。
const MaxTripNameLength = 200

const dateLayout = "2006-01-02"

// Authorizer は旅行に対する権限確認とメンバー一覧の補完を行うインターフェース。
// membership.Serviceの部分集合として定義する。
type Authorizer interface {
	Authorize(ctx context.Context, tripID, userID string, required model.Role, operation string) (model.Role, error)
	CompleteRoster(ctx context.Context, members []model.MemberView, ownerUserID string, joinedAt time.Time) ([]model.MemberView, error)
}

// Input は作成・置換時に受け付ける旅行ドキュメント。
type Input struct {
	TripName      string
	StartDate     string
	EndDate       string
	Data          json.RawMessage
	SchemaVersion int
}

// Service は旅行ドキュメントに関するビジネスロジックを提供する。
type Service struct {
	trips     repository.TripRepository
	members   repository.MembershipRepository
	auth      Authorizer
	sanitizer security.TextSanitizer
	metrics   metrics.MetricsCollector
	now       func() time.Time
}

// NewService はServiceを生成する。
func NewService(
	trips repository.TripRepository,
	members repository.MembershipRepository,
	auth Authorizer,
	collector metrics.MetricsCollector,
) *Service {
	if collector == nil {
		collector = metrics.NopCollector{}
	}
	return &Service{
		trips:     trips,
		members:   members,
		auth:      auth,
		sanitizer: security.NewTextSanitizer(),
		metrics:   collector,
		now:       time.Now,
	}
}

// Create は旅行を作成し、呼び出し元をownerとして登録する。
func (s *Service) Create(ctx context.Context, callerID string, in Input) (*model.TripWithRole, error) {
	return s.create(ctx, uuid.New().String(), callerID, in)
}

func (s *Service) create(ctx context.Context, tripID, callerID string, in Input) (*model.TripWithRole, error) {
	trip, err := s.build(tripID, in)
	if err != nil {
		return nil, err
	}
	now := s.now()
	trip.OwnerUserID = callerID
	trip.CreatedAt = now
	trip.UpdatedAt = now

	if err := s.trips.CreateWithOwner(ctx, trip); err != nil {
		return nil, fmt.Errorf("failed to create trip: %w", err)
	}

	s.metrics.RecordTripWrite("create")
	slog.Info("trip created",
		slog.String("trip_id", trip.ID),
		slog.String("user_id", callerID),
	)
	return &model.TripWithRole{Trip: *trip, Role: model.RoleOwner}, nil
}

// Get は旅行ドキュメントと呼び出し元の権限を返す。viewer以上が必要。
func (s *Service) Get(ctx context.Context, tripID, callerID string) (*model.TripWithRole, error) {
	role, err := s.auth.Authorize(ctx, tripID, callerID, model.RoleViewer, "旅行の閲覧")
	if err != nil {
		return nil, err
	}

	trip, err := s.trips.FindByID(ctx, tripID)
	if err != nil {
		return nil, fmt.Errorf("failed to find trip: %w", err)
	}
	if trip == nil {
		return nil, model.NewTripNotFoundError(tripID)
	}
	return &model.TripWithRole{Trip: *trip, Role: role}, nil
}

// Replace は旅行ドキュメント全体を置き換える。editor以上が必要。
// 旅行が存在しない場合は指定IDで作成し、呼び出し元をownerとする。
// 後勝ちのため、同時に置換した場合は後に到着した書き込みが残る。
func (s *Service) Replace(ctx context.Context, tripID, callerID string, in Input) (*model.TripWithRole, error) {
	if _, err := uuid.Parse(tripID); err != nil {
		return nil, model.NewInvalidRequestError("旅行IDの形式が不正です")
	}

	existing, err := s.trips.FindByID(ctx, tripID)
	if err != nil {
		return nil, fmt.Errorf("failed to find trip: %w", err)
	}
	if existing == nil {
		created, err := s.create(ctx, tripID, callerID, in)
		if err == nil {
			return created, nil
		}
		// 同じIDの作成が競合した場合は置換として扱う
		if again, findErr := s.trips.FindByID(ctx, tripID); findErr != nil || again == nil {
			return nil, err
		}
	}

	role, err := s.auth.Authorize(ctx, tripID, callerID, model.RoleEditor, "旅行の編集")
	if err != nil {
		return nil, err
	}

	trip, err := s.build(tripID, in)
	if err != nil {
		return nil, err
	}
	trip.UpdatedAt = s.now()

	replaced, err := s.trips.Replace(ctx, trip)
	if err != nil {
		return nil, fmt.Errorf("failed to replace trip: %w", err)
	}
	if !replaced {
		return nil, model.NewTripNotFoundError(tripID)
	}

	s.metrics.RecordTripWrite("replace")
	slog.Debug("trip replaced",
		slog.String("trip_id", tripID),
		slog.String("user_id", callerID),
	)

	if existing != nil {
		trip.OwnerUserID = existing.OwnerUserID
		trip.CreatedAt = existing.CreatedAt
	}
	return &model.TripWithRole{Trip: *trip, Role: role}, nil
}

// Delete は旅行を削除する。ownerのみ実行可能。メンバーシップと招待も削除される。
func (s *Service) Delete(ctx context.Context, tripID, callerID string) error {
	if _, err := s.auth.Authorize(ctx, tripID, callerID, model.RoleOwner, "旅行の削除"); err != nil {
		return err
	}

	if err := s.trips.Delete(ctx, tripID); err != nil {
		return fmt.Errorf("failed to delete trip: %w", err)
	}

	s.metrics.RecordTripWrite("delete")
	slog.Info("trip deleted",
		slog.String("trip_id", tripID),
		slog.String("user_id", callerID),
	)
	return nil
}

// List はユーザーがアクセスできる旅行を、権限とメンバー一覧付きで更新日時の新しい順に返す。
func (s *Service) List(ctx context.Context, callerID string) ([]model.TripListEntry, error) {
	accessible, err := s.trips.ListAccessible(ctx, callerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list trips: %w", err)
	}
	if len(accessible) == 0 {
		return []model.TripListEntry{}, nil
	}

	ids := make([]string, len(accessible))
	for i, t := range accessible {
		ids[i] = t.ID
	}
	rosters, err := s.members.ListByTrips(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}

	entries := make([]model.TripListEntry, len(accessible))
	for i, t := range accessible {
		roster, err := s.auth.CompleteRoster(ctx, rosters[t.ID], t.OwnerUserID, time.Time{})
		if err != nil {
			return nil, err
		}
		entries[i] = model.TripListEntry{
			TripSummary: t.TripSummary,
			Role:        t.Role,
			Members:     roster,
		}
	}
	return entries, nil
}

// build は入力を検証し、保存用のTripを組み立てる。
func (s *Service) build(tripID string, in Input) (*model.Trip, error) {
	name := s.sanitizer.SanitizeText(in.TripName)
	if utf8.RuneCountInString(name) > MaxTripNameLength {
		return nil, model.NewInvalidRequestError(fmt.Sprintf("旅行名は%d文字以内で指定してください", MaxTripNameLength))
	}

	if err := validateDates(in.StartDate, in.EndDate); err != nil {
		return nil, err
	}

	data := bytes.TrimSpace(in.Data)
	if len(data) == 0 || (data[0] != '{' && data[0] != '[') || !json.Valid(data) {
		return nil, model.NewInvalidRequestError("ドキュメントはJSONオブジェクトまたは配列で指定してください")
	}

	version := in.SchemaVersion
	if version == 0 {
		version = model.CurrentSchemaVersion
	}
	if version < 0 || version > model.CurrentSchemaVersion {
		return nil, model.NewInvalidRequestError(fmt.Sprintf("未対応のスキーマバージョンです: %d", in.SchemaVersion))
	}

	return &model.Trip{
		ID:            tripID,
		TripName:      name,
		StartDate:     in.StartDate,
		EndDate:       in.EndDate,
		Data:          json.RawMessage(data),
		SchemaVersion: version,
	}, nil
}

// validateDates は日付がYYYY-MM-DD形式（または未設定）で、終了日が開始日以降であることを確認する。
func validateDates(start, end string) error {
	var startAt, endAt time.Time
	var err error
	if start != "" {
		if startAt, err = time.Parse(dateLayout, start); err != nil {
			return model.NewInvalidRequestError("開始日はYYYY-MM-DD形式で指定してください")
		}
	}
	if end != "" {
		if endAt, err = time.Parse(dateLayout, end); err != nil {
			return model.NewInvalidRequestError("終了日はYYYY-MM-DD形式で指定してください")
		}
	}
	if start != "" && end != "" && endAt.Before(startAt) {
		return model.NewInvalidRequestError("終了日は開始日以降を指定してください")
	}
	return nil
}
