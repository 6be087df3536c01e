// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/hitoshi/tripshare/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByEmail はメールアドレスが完全一致するユーザーを取得する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// CreateWithIdentity はユーザーとidentityを同一トランザクションで作成する。
	CreateWithIdentity(ctx context.Context, user *model.User, identity *model.Identity) error

	// UpdateProfile はログイン時にIdPから取得したemail/nameでユーザーを更新する。
	UpdateProfile(ctx context.Context, id, email, name string) error
}

// IdentityRepository は外部IdP紐付け情報の永続化インターフェース。
type IdentityRepository interface {
	// FindByProviderAndProviderUserID はproviderとprovider_user_idでidentityを検索する。
	// 見つからない場合はnilを返す。
	FindByProviderAndProviderUserID(ctx context.Context, provider, providerUserID string) (*model.Identity, error)

	// Create は既存ユーザーに新しいidentityを紐付ける。
	Create(ctx context.Context, identity *model.Identity) error
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れでも返すため、呼び出し側で判定すること。
	// 見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// UpdateExpiry はセッションの有効期限を更新する。created_atは変更しない。
	UpdateExpiry(ctx context.Context, id string, expiresAt time.Time) error
	// DeleteByID は指定IDのセッションを削除する。存在しなくてもエラーにしない。
	DeleteByID(ctx context.Context, id string) error
	// DeleteExpired はbefore時点で期限切れのセッションを削除し、削除件数を返す。
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

// TripRepository は旅行ドキュメントの永続化インターフェース。
type TripRepository interface {
	// FindByID は指定IDの旅行を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Trip, error)

	// CreateWithOwner は旅行と作成者のownerメンバーシップを同一トランザクションで作成する。
	CreateWithOwner(ctx context.Context, trip *model.Trip) error

	// Replace は旅行ドキュメント全体を上書きする。後勝ちで、バージョン比較は行わない。
	// 対象が存在しない場合はfalseを返す。
	Replace(ctx context.Context, trip *model.Trip) (bool, error)

	// Delete は旅行を削除する。メンバーシップと招待はCASCADE削除される。
	Delete(ctx context.Context, id string) error

	// ListAccessible はユーザーがメンバーである旅行と、作成者である旅行の和集合を返す。
	// 各旅行について解決済みの権限を付与する。
	ListAccessible(ctx context.Context, userID string) ([]AccessibleTrip, error)
}

// AccessibleTrip は一覧取得時の旅行概要と、呼び出し元ユーザーの権限。
type AccessibleTrip struct {
	model.TripSummary
	Role model.Role
}

// MembershipRepository は旅行メンバーシップの永続化インターフェース。
type MembershipRepository interface {
	// Find は (tripID, userID) のメンバーシップを取得する。見つからない場合はnilを返す。
	Find(ctx context.Context, tripID, userID string) (*model.Membership, error)

	// ListByTrip は旅行のメンバー一覧をユーザー情報付きで返す。
	ListByTrip(ctx context.Context, tripID string) ([]model.MemberView, error)

	// ListByTrips は複数旅行のメンバー一覧を旅行IDごとにまとめて返す。
	ListByTrips(ctx context.Context, tripIDs []string) (map[string][]model.MemberView, error)

	// UpdateRole はメンバーの権限を更新する。対象が存在しない場合はfalseを返す。
	UpdateRole(ctx context.Context, tripID, userID string, role model.Role) (bool, error)

	// Delete はメンバーシップを削除する。対象が存在しない場合はfalseを返す。
	Delete(ctx context.Context, tripID, userID string) (bool, error)
}

// InvitationRepository は招待の永続化インターフェース。
type InvitationRepository interface {
	// FindByID は指定IDの招待を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Invitation, error)

	// UpsertPending は (tripID, inviteeEmail) のpending招待を作成または更新する。
	// 既存のpending招待がある場合はrole/inviter/expires_atのみ更新し、id/created_atを維持する。
	// 既存行を更新した場合はrefreshed=trueを返す。
	UpsertPending(ctx context.Context, inv *model.Invitation) (stored *model.Invitation, refreshed bool, err error)

	// ListPendingByEmail はメールアドレス宛ての未処理かつnow時点で有効期限内の招待を、
	// 旅行名と招待者情報付きで返す。
	ListPendingByEmail(ctx context.Context, email string, now time.Time) ([]model.PendingInvitationView, error)

	// FindViewByID は招待を旅行名と招待者情報付きで取得する。見つからない場合はnilを返す。
	FindViewByID(ctx context.Context, id string) (*model.PendingInvitationView, error)

	// Accept はメンバーシップ追加（既存なら何もしない）と招待のaccepted化を同一トランザクションで行う。
	// 招待がpendingでなくなっていた場合はfalseを返し、メンバーシップも追加しない。
	Accept(ctx context.Context, inv *model.Invitation, userID string, joinedAt time.Time) (bool, error)

	// Decline は招待をdeclinedに更新する。pendingでなかった場合はfalseを返す。
	Decline(ctx context.Context, id string) (bool, error)
}

// TxBeginner はトランザクション開始用のインターフェース。
type TxBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}
