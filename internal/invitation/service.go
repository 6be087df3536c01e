// Package invitation はメールアドレス宛ての旅行招待のライフサイクルを管理する。
//
// 招待は pending から accepted / declined のいずれかに遷移し、終端状態は変更できない。
// 期限切れは状態値として書き込まず、expires_at と現在時刻の比較で判定する。
package invitation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/tripshare/internal/metrics"
	"github.com/hitoshi/tripshare/internal/model"
	"github.com/hitoshi/tripshare/internal/notify"
	"github.com/hitoshi/tripshare/internal/repository"
	"github.com/hitoshi/tripshare/internal/security"
)

// 既定の招待設定。
const (
	DefaultTTL           = 7 * 24 * time.Hour
	DefaultNotifyTimeout = 10 * time.Second
)

// RoleResolver は招待処理に必要な権限解決インターフェース。
// membership.Serviceの部分集合として定義する。
type RoleResolver interface {
	GetRole(ctx context.Context, tripID, userID string) (model.Role, error)
	Authorize(ctx context.Context, tripID, userID string, required model.Role, operation string) (model.Role, error)
}

// UserFinder はユーザー検索インターフェース。
// repository.UserRepositoryの部分集合として定義する。
type UserFinder interface {
	FindByID(ctx context.Context, id string) (*model.User, error)
	FindByEmail(ctx context.Context, email string) (*model.User, error)
}

// TripFinder は旅行検索インターフェース。
type TripFinder interface {
	FindByID(ctx context.Context, id string) (*model.Trip, error)
}

// Config は招待サービスの設定。
type Config struct {
	TTL           time.Duration // 招待の有効期間（作成・再招待時点から）
	NotifyTimeout time.Duration // 通知送信のタイムアウト
	BaseURL       string        // 招待メールのリンク生成に使用する
}

// Service は招待に関するビジネスロジックを提供する。
type Service struct {
	invitations repository.InvitationRepository
	roles       RoleResolver
	users       UserFinder
	trips       TripFinder
	sender      notify.Sender
	sanitizer   security.TextSanitizer
	metrics     metrics.MetricsCollector
	config      Config
	now         func() time.Time

	// notifications は送信中の通知を追跡する。シャットダウン時とテストで待ち合わせる。
	notifications sync.WaitGroup
}

// NewService はServiceを生成する。
func NewService(
	invitations repository.InvitationRepository,
	roles RoleResolver,
	users UserFinder,
	trips TripFinder,
	sender notify.Sender,
	collector metrics.MetricsCollector,
	config Config,
) *Service {
	if config.TTL <= 0 {
		config.TTL = DefaultTTL
	}
	if config.NotifyTimeout <= 0 {
		config.NotifyTimeout = DefaultNotifyTimeout
	}
	if collector == nil {
		collector = metrics.NopCollector{}
	}
	return &Service{
		invitations: invitations,
		roles:       roles,
		users:       users,
		trips:       trips,
		sender:      sender,
		sanitizer:   security.NewTextSanitizer(),
		metrics:     collector,
		config:      config,
		now:         time.Now,
	}
}

// Invite はメールアドレス宛ての招待を作成する。ownerのみ実行可能。
// 同じ宛先へのpending招待が既にあれば、role・招待者・有効期限を更新してidと作成日時を維持する。
// 通知メールは非同期で送信し、失敗しても招待は成功として扱う。
func (s *Service) Invite(ctx context.Context, tripID, inviterID, email string, role model.Role) (*model.Invitation, error) {
	if _, err := s.roles.Authorize(ctx, tripID, inviterID, model.RoleOwner, "メンバーの招待"); err != nil {
		return nil, err
	}
	if !role.IsInvitable() {
		return nil, model.NewInvalidRoleError(role.String())
	}

	// 前後の空白のみ除去し、照合は完全一致で行う
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, model.NewInvalidRequestError("メールアドレスを指定してください")
	}

	invitee, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to find invitee: %w", err)
	}
	if invitee != nil {
		existing, err := s.roles.GetRole(ctx, tripID, invitee.ID)
		if err != nil {
			return nil, err
		}
		if existing != model.RoleNone {
			return nil, model.NewAlreadyMemberError(email)
		}
	}

	now := s.now()
	stored, refreshed, err := s.invitations.UpsertPending(ctx, &model.Invitation{
		ID:            uuid.New().String(),
		TripID:        tripID,
		InviterUserID: inviterID,
		InviteeEmail:  email,
		Role:          role,
		Status:        model.InvitationStatusPending,
		CreatedAt:     now,
		ExpiresAt:     now.Add(s.config.TTL),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to save invitation: %w", err)
	}

	s.metrics.RecordInvitation(refreshed)
	slog.Info("invitation saved",
		slog.String("invitation_id", stored.ID),
		slog.String("trip_id", tripID),
		slog.String("role", role.String()),
		slog.Bool("refreshed", refreshed),
	)

	s.notifyAsync(*stored)
	return stored, nil
}

// notifyAsync は招待メールをバックグラウンドで送信する。
// リクエストのctxとは独立したタイムアウト付きctxを使う。
func (s *Service) notifyAsync(inv model.Invitation) {
	s.notifications.Add(1)
	go func() {
		defer s.notifications.Done()

		ctx, cancel := context.WithTimeout(context.Background(), s.config.NotifyTimeout)
		defer cancel()

		if err := s.sendInvitation(ctx, &inv); err != nil {
			s.metrics.RecordNotificationFailure()
			slog.Warn("failed to send invitation notification",
				slog.String("invitation_id", inv.ID),
				slog.String("error", err.Error()),
			)
		}
	}()
}

func (s *Service) sendInvitation(ctx context.Context, inv *model.Invitation) error {
	if s.sender == nil {
		return nil
	}

	trip, err := s.trips.FindByID(ctx, inv.TripID)
	if err != nil {
		return fmt.Errorf("failed to load trip: %w", err)
	}
	if trip == nil {
		return fmt.Errorf("trip %s no longer exists", inv.TripID)
	}
	inviter, err := s.users.FindByID(ctx, inv.InviterUserID)
	if err != nil {
		return fmt.Errorf("failed to load inviter: %w", err)
	}
	params := notify.InvitationParams{
		To:        inv.InviteeEmail,
		TripName:  trip.TripName,
		Role:      inv.Role.String(),
		InviteURL: strings.TrimRight(s.config.BaseURL, "/") + "/invitations/" + inv.ID,
		ExpiresAt: inv.ExpiresAt,
	}
	if inviter != nil {
		params.InviterName = inviter.Name
		params.InviterEmail = inviter.Email
	}

	msg, err := notify.InvitationMessage(s.sanitizer, params)
	if err != nil {
		return err
	}
	return s.sender.Send(ctx, msg)
}

// WaitForNotifications は送信中の通知がすべて終わるまで待つ。
func (s *Service) WaitForNotifications() {
	s.notifications.Wait()
}

// ListPendingForUser はユーザーのメールアドレス宛ての未処理かつ有効期限内の招待を返す。
func (s *Service) ListPendingForUser(ctx context.Context, userID string) ([]model.PendingInvitationView, error) {
	user, err := s.caller(ctx, userID)
	if err != nil {
		return nil, err
	}

	views, err := s.invitations.ListPendingByEmail(ctx, user.Email, s.now())
	if err != nil {
		return nil, fmt.Errorf("failed to list pending invitations: %w", err)
	}
	if views == nil {
		views = []model.PendingInvitationView{}
	}
	return views, nil
}

// Get は招待先ユーザー向けに招待1件を返す。処理済み・期限切れでも返し、判定は呼び出し側に委ねる。
func (s *Service) Get(ctx context.Context, invitationID, callerID string) (*model.PendingInvitationView, error) {
	view, err := s.invitations.FindViewByID(ctx, invitationID)
	if err != nil {
		return nil, fmt.Errorf("failed to find invitation: %w", err)
	}
	if view == nil {
		return nil, model.NewInvitationNotFoundError(invitationID)
	}

	user, err := s.caller(ctx, callerID)
	if err != nil {
		return nil, err
	}
	if !user.IsAddresseeOf(view.InviteeEmail) {
		return nil, model.NewEmailMismatchError()
	}
	return view, nil
}

// Accept は招待を承諾し、メンバーシップを追加する。
// 既にメンバーの場合、メンバーシップは変更せず招待のみaccepted化する。
func (s *Service) Accept(ctx context.Context, invitationID, callerID string) (*model.Invitation, error) {
	inv, err := s.loadPending(ctx, invitationID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if inv.IsExpired(now) {
		return nil, model.NewInvitationExpiredError()
	}
	if err := s.checkAddressee(ctx, inv, callerID); err != nil {
		return nil, err
	}

	accepted, err := s.invitations.Accept(ctx, inv, callerID, now)
	if err != nil {
		return nil, fmt.Errorf("failed to accept invitation: %w", err)
	}
	if !accepted {
		// 読み取り後に別リクエストで処理された
		return nil, s.processedError(ctx, inv)
	}

	inv.Status = model.InvitationStatusAccepted
	s.metrics.RecordInvitationResolved(string(model.InvitationStatusAccepted))
	slog.Info("invitation accepted",
		slog.String("invitation_id", inv.ID),
		slog.String("trip_id", inv.TripID),
		slog.String("user_id", callerID),
	)
	return inv, nil
}

// Decline は招待を辞退する。
// 承諾と異なり有効期限は確認しないため、期限切れのpending招待も辞退できる。
func (s *Service) Decline(ctx context.Context, invitationID, callerID string) (*model.Invitation, error) {
	inv, err := s.loadPending(ctx, invitationID)
	if err != nil {
		return nil, err
	}
	if err := s.checkAddressee(ctx, inv, callerID); err != nil {
		return nil, err
	}

	declined, err := s.invitations.Decline(ctx, inv.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to decline invitation: %w", err)
	}
	if !declined {
		return nil, s.processedError(ctx, inv)
	}

	inv.Status = model.InvitationStatusDeclined
	s.metrics.RecordInvitationResolved(string(model.InvitationStatusDeclined))
	slog.Info("invitation declined",
		slog.String("invitation_id", inv.ID),
		slog.String("trip_id", inv.TripID),
		slog.String("user_id", callerID),
	)
	return inv, nil
}

// loadPending は招待を取得し、pendingでなければINVITATION_PROCESSEDを返す。
func (s *Service) loadPending(ctx context.Context, invitationID string) (*model.Invitation, error) {
	inv, err := s.invitations.FindByID(ctx, invitationID)
	if err != nil {
		return nil, fmt.Errorf("failed to find invitation: %w", err)
	}
	if inv == nil {
		return nil, model.NewInvitationNotFoundError(invitationID)
	}
	if !inv.IsPending() {
		return nil, model.NewInvitationProcessedError(inv.Status)
	}
	return inv, nil
}

// checkAddressee は呼び出し元の登録メールアドレスが招待先と完全一致するかを確認する。
func (s *Service) checkAddressee(ctx context.Context, inv *model.Invitation, callerID string) error {
	user, err := s.caller(ctx, callerID)
	if err != nil {
		return err
	}
	if !user.IsAddresseeOf(inv.InviteeEmail) {
		slog.Warn("invitation email mismatch",
			slog.String("invitation_id", inv.ID),
			slog.String("user_id", callerID),
		)
		return model.NewEmailMismatchError()
	}
	return nil
}

// processedError は競合で処理済みになった招待の現在の状態を返す。
func (s *Service) processedError(ctx context.Context, inv *model.Invitation) error {
	status := inv.Status
	if latest, err := s.invitations.FindByID(ctx, inv.ID); err == nil && latest != nil {
		status = latest.Status
	}
	return model.NewInvitationProcessedError(status)
}

func (s *Service) caller(ctx context.Context, userID string) (*model.User, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}
	return user, nil
}
