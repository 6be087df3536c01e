// Package membership は旅行ごとのメンバーシップと権限解決を提供する。
package membership

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/tripshare/internal/model"
	"github.com/hitoshi/tripshare/internal/repository"
)

// TripFinder は権限解決に必要な旅行検索インターフェース。
// repository.TripRepositoryの部分集合として定義する。
type TripFinder interface {
	FindByID(ctx context.Context, id string) (*model.Trip, error)
}

// UserFinder はメンバー一覧の補完に使うユーザー検索インターフェース。
type UserFinder interface {
	FindByID(ctx context.Context, id string) (*model.User, error)
}

// Service はメンバーシップと権限に関するビジネスロジックを提供する。
type Service struct {
	trips   TripFinder
	members repository.MembershipRepository
	users   UserFinder
}

// NewService はServiceを生成する。usersがnilの場合、補完した作成者はUserIDとRoleのみを持つ。
func NewService(trips TripFinder, members repository.MembershipRepository, users UserFinder) *Service {
	return &Service{trips: trips, members: members, users: users}
}

// GetRole はユーザーの旅行に対する実効権限を返す。
// メンバーシップ行があればその権限、なければ作成者（メンバーシップ導入前の旅行）をownerとみなす。
// どちらでもない場合、または旅行が存在しない場合はRoleNoneを返す。
func (s *Service) GetRole(ctx context.Context, tripID, userID string) (model.Role, error) {
	m, err := s.members.Find(ctx, tripID, userID)
	if err != nil {
		return model.RoleNone, fmt.Errorf("failed to find membership: %w", err)
	}
	if m != nil {
		return m.Role, nil
	}

	trip, err := s.trips.FindByID(ctx, tripID)
	if err != nil {
		return model.RoleNone, fmt.Errorf("failed to find trip: %w", err)
	}
	if trip != nil && trip.OwnerUserID == userID {
		return model.RoleOwner, nil
	}
	return model.RoleNone, nil
}

// Authorize は権限を解決し、required未満であればエラーを返す。
// 閲覧権限すらない場合は旅行の存在を漏らさないためTRIP_NOT_FOUNDを返す。
func (s *Service) Authorize(ctx context.Context, tripID, userID string, required model.Role, operation string) (model.Role, error) {
	role, err := s.GetRole(ctx, tripID, userID)
	if err != nil {
		return model.RoleNone, err
	}
	if role == model.RoleNone {
		return model.RoleNone, model.NewTripNotFoundError(tripID)
	}
	if !model.HasMinRole(role, required) {
		return role, model.NewForbiddenError(operation)
	}
	return role, nil
}

// ListMembers は旅行のメンバー一覧を返す。viewer以上が必要。
func (s *Service) ListMembers(ctx context.Context, tripID, callerID string) ([]model.MemberView, error) {
	if _, err := s.Authorize(ctx, tripID, callerID, model.RoleViewer, "メンバー一覧の閲覧"); err != nil {
		return nil, err
	}
	return s.roster(ctx, tripID)
}

// roster はメンバー一覧を返す。作成者の行がない旅行では作成者をownerとして補完する。
func (s *Service) roster(ctx context.Context, tripID string) ([]model.MemberView, error) {
	members, err := s.members.ListByTrip(ctx, tripID)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}

	trip, err := s.trips.FindByID(ctx, tripID)
	if err != nil {
		return nil, fmt.Errorf("failed to find trip: %w", err)
	}
	if trip == nil {
		return members, nil
	}
	return s.CompleteRoster(ctx, members, trip.OwnerUserID, trip.CreatedAt)
}

// CompleteRoster はmembersに作成者が含まれていなければ、作成者をownerとして先頭に追加する。
// 補完した要素にはユーザーのメールアドレスと名前を設定し、参加日時はjoinedAtとする。
func (s *Service) CompleteRoster(ctx context.Context, members []model.MemberView, ownerUserID string, joinedAt time.Time) ([]model.MemberView, error) {
	if hasMember(members, ownerUserID) {
		return members, nil
	}

	owner := model.MemberView{UserID: ownerUserID, Role: model.RoleOwner, JoinedAt: joinedAt}
	if s.users != nil {
		u, err := s.users.FindByID(ctx, ownerUserID)
		if err != nil {
			return nil, fmt.Errorf("failed to find trip owner: %w", err)
		}
		if u != nil {
			owner.Email = u.Email
			owner.Name = u.Name
		}
	}
	return append([]model.MemberView{owner}, members...), nil
}

func hasMember(members []model.MemberView, userID string) bool {
	for _, m := range members {
		if m.UserID == userID {
			return true
		}
	}
	return false
}

// ChangeRole はメンバーの権限を変更する。ownerのみ実行可能。
// 自分自身・ownerを対象にすることはできず、付与できるのはeditor/viewerのみ。
func (s *Service) ChangeRole(ctx context.Context, tripID, callerID, targetUserID string, role model.Role) error {
	if _, err := s.Authorize(ctx, tripID, callerID, model.RoleOwner, "メンバーの権限変更"); err != nil {
		return err
	}
	if !role.IsInvitable() {
		return model.NewInvalidRoleError(role.String())
	}
	if targetUserID == callerID {
		return model.NewOwnerProtectedError()
	}

	targetRole, err := s.GetRole(ctx, tripID, targetUserID)
	if err != nil {
		return err
	}
	switch targetRole {
	case model.RoleNone:
		return model.NewMemberNotFoundError(targetUserID)
	case model.RoleOwner:
		return model.NewOwnerProtectedError()
	}

	updated, err := s.members.UpdateRole(ctx, tripID, targetUserID, role)
	if err != nil {
		return fmt.Errorf("failed to update member role: %w", err)
	}
	if !updated {
		return model.NewMemberNotFoundError(targetUserID)
	}

	slog.Info("member role changed",
		slog.String("trip_id", tripID),
		slog.String("user_id", targetUserID),
		slog.String("role", role.String()),
	)
	return nil
}

// RemoveMember はメンバーを削除する。
// ownerは他のメンバーを削除でき、owner以外のメンバーは自分自身を削除（退出）できる。
// ownerはどの経路でも削除できない。
func (s *Service) RemoveMember(ctx context.Context, tripID, callerID, targetUserID string) error {
	callerRole, err := s.GetRole(ctx, tripID, callerID)
	if err != nil {
		return err
	}
	if callerRole == model.RoleNone {
		return model.NewTripNotFoundError(tripID)
	}

	selfRemoval := targetUserID == callerID
	if !selfRemoval && !model.HasMinRole(callerRole, model.RoleOwner) {
		return model.NewForbiddenError("メンバーの削除")
	}

	targetRole := callerRole
	if !selfRemoval {
		if targetRole, err = s.GetRole(ctx, tripID, targetUserID); err != nil {
			return err
		}
	}
	switch targetRole {
	case model.RoleNone:
		return model.NewMemberNotFoundError(targetUserID)
	case model.RoleOwner:
		return model.NewOwnerProtectedError()
	}

	deleted, err := s.members.Delete(ctx, tripID, targetUserID)
	if err != nil {
		return fmt.Errorf("failed to remove member: %w", err)
	}
	if !deleted {
		return model.NewMemberNotFoundError(targetUserID)
	}

	slog.Info("member removed",
		slog.String("trip_id", tripID),
		slog.String("user_id", targetUserID),
		slog.Bool("self", selfRemoval),
	)
	return nil
}
