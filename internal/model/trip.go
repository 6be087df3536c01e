package model

import (
	"encoding/json"
	"time"
)

// CurrentSchemaVersion はサーバーが受け付ける旅行ドキュメントの現行スキーマバージョン。
const CurrentSchemaVersion = 1

// Trip は共有対象となる旅行ドキュメントを表す。
// Dataは日程・アクティビティ・費用を含む旅程全体で、サーバーは中身を解釈しない。
// TripName/StartDate/EndDateは一覧表示用のインデックス列。
type Trip struct {
	ID            string
	OwnerUserID   string
	TripName      string
	StartDate     string // YYYY-MM-DD、未設定の場合は空文字列
	EndDate       string
	Data          json.RawMessage
	SchemaVersion int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// TripSummary はドキュメント本体を含まない旅行の概要を表す。
type TripSummary struct {
	ID          string
	OwnerUserID string
	TripName    string
	StartDate   string
	EndDate     string
	UpdatedAt   time.Time
}

// Summary はTripから一覧用の概要を取り出す。
func (t *Trip) Summary() TripSummary {
	return TripSummary{
		ID:          t.ID,
		OwnerUserID: t.OwnerUserID,
		TripName:    t.TripName,
		StartDate:   t.StartDate,
		EndDate:     t.EndDate,
		UpdatedAt:   t.UpdatedAt,
	}
}

// Membership は旅行に対するユーザーの権限付与を表す。
// (TripID, UserID) ごとに高々1件。
type Membership struct {
	TripID   string
	UserID   string
	Role     Role
	JoinedAt time.Time
}

// MemberView はユーザー情報を結合したメンバー表示用の構造体。
type MemberView struct {
	UserID   string
	Email    string
	Name     string
	Role     Role
	JoinedAt time.Time
}

// TripWithRole は呼び出し元の権限を付与した旅行ドキュメント。
type TripWithRole struct {
	Trip
	Role Role
}

// TripListEntry は旅行一覧の1要素。呼び出し元の権限とメンバー一覧を含む。
type TripListEntry struct {
	TripSummary
	Role    Role
	Members []MemberView
}
