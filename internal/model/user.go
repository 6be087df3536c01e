// Package model はドメインモデルを定義する。
package model

import "time"

// User はGoogleログインで作成されるtripshareのユーザー。
// 旅行の作成者・メンバー・招待者になる。
// Emailは一意で、ログインの度にIdPの値で更新され、招待の宛先照合に使われる。
type User struct {
	ID        string
	Email     string
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsAddresseeOf はユーザーが招待の宛先本人かを返す。
// 招待作成時に前後の空白を除いた値と、登録メールアドレスを完全一致で比較する。
func (u *User) IsAddresseeOf(inviteeEmail string) bool {
	return u.Email == inviteeEmail
}

// Identity はユーザーとGoogleアカウント（subject）の紐付け。
// (Provider, ProviderUserID) の組でユーザーを一意に特定し、メールアドレスが変わっても同じユーザーになる。
type Identity struct {
	ID             string
	UserID         string
	Provider       string
	ProviderUserID string
	CreatedAt      time.Time
}

// Session はCookieで渡すサーバー側のログインセッション。
// IDは256ビットの乱数で、アクセス時に期限が近ければExpiresAtを延長する。CreatedAtは延長してもリセットされない。
type Session struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// IsExpired はnow時点でセッションが期限切れかどうかを返す。
func (s *Session) IsExpired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
