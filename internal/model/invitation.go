package model

import "time"

// InvitationStatus は招待の状態を表す。
// 期限切れは状態値として書き込まれず、ExpiresAtで判定する。
type InvitationStatus string

const (
	// InvitationStatusPending は未処理の招待。
	InvitationStatusPending InvitationStatus = "pending"
	// InvitationStatusAccepted は承諾済みの招待（終端状態）。
	InvitationStatusAccepted InvitationStatus = "accepted"
	// InvitationStatusDeclined は辞退済みの招待（終端状態）。
	InvitationStatusDeclined InvitationStatus = "declined"
)

// Invitation はメールアドレス宛ての旅行への招待を表す。
// (TripID, InviteeEmail) ごとにpendingの招待は高々1件。
type Invitation struct {
	ID            string
	TripID        string
	InviterUserID string
	InviteeEmail  string
	Role          Role
	Status        InvitationStatus
	CreatedAt     time.Time
	ExpiresAt     time.Time
}

// IsPending は招待が未処理かどうかを返す。
func (i *Invitation) IsPending() bool {
	return i.Status == InvitationStatusPending
}

// IsExpired はnow時点で招待の有効期限が切れているかどうかを返す。
func (i *Invitation) IsExpired(now time.Time) bool {
	return !now.Before(i.ExpiresAt)
}

// PendingInvitationView は招待先ユーザー向けに旅行名と招待者情報を付与した招待。
type PendingInvitationView struct {
	Invitation
	TripName     string
	InviterName  string
	InviterEmail string
}
