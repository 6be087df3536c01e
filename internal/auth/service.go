// Package auth はOAuth認証フロー、セッション管理を提供する。
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/hitoshi/tripshare/internal/model"
	"github.com/hitoshi/tripshare/internal/repository"
)

// 既定のセッション設定。
const (
	DefaultSessionTTL      = 30 * 24 * time.Hour
	DefaultExtendThreshold = 24 * time.Hour
)

// OAuthUserInfo はOAuthプロバイダーから取得したユーザー情報を表す。
type OAuthUserInfo struct {
	ProviderUserID string
	Email          string
	Name           string
	Provider       string // "google" 等
}

// OAuthProvider はOAuth認証プロバイダーのインターフェース。
// サービスは「認可コードとverifierをユーザー情報に交換する」ことだけを前提とする。
type OAuthProvider interface {
	// GetLoginURL はstateとPKCE verifierから認証URLを生成する。
	GetLoginURL(state, verifier string) string
	// ExchangeCode は認可コードをトークンに交換し、ユーザー情報を取得する。
	ExchangeCode(ctx context.Context, code, verifier string) (*OAuthUserInfo, error)
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	SessionTTL      time.Duration // セッション有効期間
	ExtendThreshold time.Duration // 作成からこの時間を超えたら検証時に期限を延長する
}

// LoginRequest はOAuthフロー開始時に発行するstateとverifier。
// 両方ともコールバックまでCookieで保持する。
type LoginRequest struct {
	State    string
	Verifier string
	URL      string
}

// Service は認証とセッションに関するビジネスロジックを提供する。
type Service struct {
	oauth       OAuthProvider
	userRepo    repository.UserRepository
	identRepo   repository.IdentityRepository
	sessionRepo repository.SessionRepository
	config      ServiceConfig
	now         func() time.Time
}

// NewService はServiceを生成する。
func NewService(
	oauth OAuthProvider,
	userRepo repository.UserRepository,
	identRepo repository.IdentityRepository,
	sessionRepo repository.SessionRepository,
	config ServiceConfig,
) *Service {
	if config.SessionTTL <= 0 {
		config.SessionTTL = DefaultSessionTTL
	}
	if config.ExtendThreshold <= 0 {
		config.ExtendThreshold = DefaultExtendThreshold
	}
	return &Service{
		oauth:       oauth,
		userRepo:    userRepo,
		identRepo:   identRepo,
		sessionRepo: sessionRepo,
		config:      config,
		now:         time.Now,
	}
}

// SessionTTL はセッションの有効期間を返す。Cookieのmax-ageに使う。
func (s *Service) SessionTTL() time.Duration {
	return s.config.SessionTTL
}

// StartLogin はstateとPKCE verifierを生成し、認証URLを返す。
func (s *Service) StartLogin() (*LoginRequest, error) {
	state, err := generateToken(16)
	if err != nil {
		return nil, fmt.Errorf("failed to generate oauth state: %w", err)
	}
	verifier := oauth2.GenerateVerifier()
	return &LoginRequest{
		State:    state,
		Verifier: verifier,
		URL:      s.oauth.GetLoginURL(state, verifier),
	}, nil
}

// HandleCallback はOAuthコールバックを処理し、セッションを発行する。
// ユーザーは (provider, provider_user_id) をキーにupsertし、email/nameはログインの度に更新する。
// IdPとの通信失敗はUPSTREAM_FAILUREとして返し、詳細はログにのみ出力する。
func (s *Service) HandleCallback(ctx context.Context, code, verifier string) (*model.Session, error) {
	userInfo, err := s.oauth.ExchangeCode(ctx, code, verifier)
	if err != nil {
		slog.Error("oauth code exchange failed", slog.String("error", err.Error()))
		return nil, model.NewUpstreamFailureError()
	}

	userID, err := s.upsertUser(ctx, userInfo)
	if err != nil {
		return nil, err
	}

	session, err := s.CreateSession(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	return session, nil
}

// upsertUser はIdPのユーザー情報からユーザーを特定または作成し、ユーザーIDを返す。
func (s *Service) upsertUser(ctx context.Context, info *OAuthUserInfo) (string, error) {
	identity, err := s.identRepo.FindByProviderAndProviderUserID(ctx, info.Provider, info.ProviderUserID)
	if err != nil {
		return "", fmt.Errorf("failed to find identity: %w", err)
	}

	if identity != nil {
		if err := s.userRepo.UpdateProfile(ctx, identity.UserID, info.Email, info.Name); err != nil {
			return "", fmt.Errorf("failed to refresh user profile: %w", err)
		}
		slog.Info("existing user logged in",
			slog.String("user_id", identity.UserID),
			slog.String("provider", info.Provider),
		)
		return identity.UserID, nil
	}

	now := s.now()

	// emailは一意のため、同じメールアドレスのユーザーがいればidentityを紐付ける
	existing, err := s.userRepo.FindByEmail(ctx, info.Email)
	if err != nil {
		return "", fmt.Errorf("failed to find user by email: %w", err)
	}
	if existing != nil {
		if err := s.identRepo.Create(ctx, &model.Identity{
			ID:             uuid.New().String(),
			UserID:         existing.ID,
			Provider:       info.Provider,
			ProviderUserID: info.ProviderUserID,
			CreatedAt:      now,
		}); err != nil {
			return "", fmt.Errorf("failed to link identity: %w", err)
		}
		if err := s.userRepo.UpdateProfile(ctx, existing.ID, info.Email, info.Name); err != nil {
			return "", fmt.Errorf("failed to refresh user profile: %w", err)
		}
		slog.Info("identity linked to existing user",
			slog.String("user_id", existing.ID),
			slog.String("provider", info.Provider),
		)
		return existing.ID, nil
	}

	newUser := &model.User{
		ID:        uuid.New().String(),
		Email:     info.Email,
		Name:      info.Name,
		CreatedAt: now,
		UpdatedAt: now,
	}
	newIdentity := &model.Identity{
		ID:             uuid.New().String(),
		UserID:         newUser.ID,
		Provider:       info.Provider,
		ProviderUserID: info.ProviderUserID,
		CreatedAt:      now,
	}
	if err := s.userRepo.CreateWithIdentity(ctx, newUser, newIdentity); err != nil {
		return "", fmt.Errorf("failed to create user and identity: %w", err)
	}

	slog.Info("new user created",
		slog.String("user_id", newUser.ID),
		slog.String("provider", info.Provider),
	)
	return newUser.ID, nil
}

// CreateSession はセッションを作成し永続化する。
func (s *Service) CreateSession(ctx context.Context, userID string) (*model.Session, error) {
	sessionID, err := generateToken(32)
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	now := s.now()
	session := &model.Session{
		ID:        sessionID,
		UserID:    userID,
		ExpiresAt: now.Add(s.config.SessionTTL),
		CreatedAt: now,
	}

	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	return session, nil
}

// GetSession はセッションを取得する。
// 不明なIDや期限切れの場合はエラーではなくnilを返し、期限切れの行はその場で削除する。
// 作成から延長しきい値を超えている場合は期限を now+TTL に更新する。
// created_atは更新しないため、しきい値経過後は検証の度に延長される。
func (s *Service) GetSession(ctx context.Context, sessionID string) (*model.Session, error) {
	if sessionID == "" {
		return nil, nil
	}

	session, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	if session == nil {
		return nil, nil
	}

	now := s.now()
	if session.IsExpired(now) {
		if err := s.sessionRepo.DeleteByID(ctx, sessionID); err != nil {
			slog.Warn("failed to delete expired session", slog.String("error", err.Error()))
		}
		return nil, nil
	}

	if now.Sub(session.CreatedAt) > s.config.ExtendThreshold {
		expiresAt := now.Add(s.config.SessionTTL)
		if err := s.sessionRepo.UpdateExpiry(ctx, sessionID, expiresAt); err != nil {
			slog.Warn("failed to extend session", slog.String("error", err.Error()))
		} else {
			session.ExpiresAt = expiresAt
		}
	}

	return session, nil
}

// ValidateSession はセッションを検証し、ユーザーIDを返す。無効な場合は空文字列を返す。
func (s *Service) ValidateSession(ctx context.Context, sessionID string) (string, error) {
	session, err := s.GetSession(ctx, sessionID)
	if err != nil || session == nil {
		return "", err
	}
	return session.UserID, nil
}

// Logout はセッションを破棄する。存在しないセッションでもエラーにしない。
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}

	if err := s.sessionRepo.DeleteByID(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	slog.Info("user logged out")
	return nil
}

// GetUser はユーザーを取得する。見つからない場合はUSER_NOT_FOUNDを返す。
func (s *Service) GetUser(ctx context.Context, userID string) (*model.User, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}
	return user, nil
}

// generateToken はnバイトの暗号論的乱数を16進文字列で返す。
func generateToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
