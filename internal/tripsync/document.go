// Package tripsync はクライアント側の旅行ドキュメント同期を提供する。
//
// Store は「現在開いている旅行」を1つ保持し、ローカルの変換を即座に適用してから
// 一定時間の遅延後にドキュメント全体をサーバーへ送信する。
// 連続した編集はまとめられ、最後の状態だけが送信される。
// 送信に失敗した場合は再送せず、キャッシュを破棄して次回の読み込みでサーバーから取り直す。
package tripsync

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// Document はクライアントが保持する旅行ドキュメント。
type Document struct {
	ID            string          `json:"id"`
	OwnerUserID   string          `json:"owner_user_id,omitempty"`
	TripName      string          `json:"trip_name"`
	StartDate     string          `json:"start_date"`
	EndDate       string          `json:"end_date"`
	Data          json.RawMessage `json:"data"`
	SchemaVersion int             `json:"schema_version"`
	Role          string          `json:"role,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Clone はDataを含めてドキュメントを複製する。
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	c := *d
	if d.Data != nil {
		c.Data = append(json.RawMessage(nil), d.Data...)
	}
	return &c
}

// Summary は旅行一覧の1要素。
type Summary struct {
	ID          string    `json:"id"`
	OwnerUserID string    `json:"owner_user_id"`
	TripName    string    `json:"trip_name"`
	StartDate   string    `json:"start_date"`
	EndDate     string    `json:"end_date"`
	Role        string    `json:"role"`
	UpdatedAt   time.Time `json:"updated_at"`
	Members     []Member  `json:"members"`
}

// Member は旅行メンバーの表示情報。
type Member struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Name   string `json:"name"`
	Role   string `json:"role"`
}

// summaryOf はドキュメントから一覧用の要素を作る。メンバー一覧は引き継がない。
func summaryOf(d *Document) Summary {
	return Summary{
		ID:          d.ID,
		OwnerUserID: d.OwnerUserID,
		TripName:    d.TripName,
		StartDate:   d.StartDate,
		EndDate:     d.EndDate,
		Role:        d.Role,
		UpdatedAt:   d.UpdatedAt,
	}
}

// Transport はサーバーとの通信インターフェース。
type Transport interface {
	ListTrips(ctx context.Context) ([]Summary, error)
	GetTrip(ctx context.Context, id string) (*Document, error)
	// CreateTrip はdoc.IDで旅行を作成する。
	CreateTrip(ctx context.Context, doc *Document) (*Document, error)
	// ReplaceTrip はドキュメント全体を置き換える。
	ReplaceTrip(ctx context.Context, doc *Document) error
	DeleteTrip(ctx context.Context, id string) error
}

var (
	// ErrNoCurrentTrip は旅行を開いていない状態で編集しようとした場合に返される。
	ErrNoCurrentTrip = errors.New("tripsync: no current trip")
	// ErrReadOnly は閲覧権限しかない旅行を編集しようとした場合に返される。
	ErrReadOnly = errors.New("tripsync: trip is read-only")
	// ErrClosed はClose後に操作した場合に返される。
	ErrClosed = errors.New("tripsync: store closed")
)

// canEdit はロールがドキュメントの編集を許可するかを返す。
func canEdit(role string) bool {
	return role == "owner" || role == "editor"
}
