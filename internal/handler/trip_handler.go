package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/tripshare/internal/middleware"
	"github.com/hitoshi/tripshare/internal/model"
)

// TripServiceInterface は旅行ハンドラーが必要とするサービスインターフェース。
type TripServiceInterface interface {
	// List は呼び出し元がアクセスできる旅行の一覧を返す。
	List(ctx context.Context, callerID string) ([]tripListItemResponse, error)
	// Get は旅行ドキュメントを返す。
	Get(ctx context.Context, tripID, callerID string) (*tripResponse, error)
	// Create は新しい旅行を作成する。
	Create(ctx context.Context, callerID string, in tripRequest) (*tripResponse, error)
	// Replace は旅行ドキュメント全体を置き換える。存在しなければ作成する。
	Replace(ctx context.Context, tripID, callerID string, in tripRequest) (*tripResponse, error)
	// Delete は旅行を削除する。
	Delete(ctx context.Context, tripID, callerID string) error
}

// TripHandler は旅行ドキュメントのHTTPハンドラー。
type TripHandler struct {
	service TripServiceInterface
}

// NewTripHandler はTripHandlerを生成する。
func NewTripHandler(service TripServiceInterface) *TripHandler {
	return &TripHandler{service: service}
}

// tripRequest は旅行作成・置換リクエストのボディ。
type tripRequest struct {
	TripName      string          `json:"trip_name" validate:"max=200"`
	StartDate     string          `json:"start_date" validate:"omitempty,datetime=2006-01-02"`
	EndDate       string          `json:"end_date" validate:"omitempty,datetime=2006-01-02"`
	Data          json.RawMessage `json:"data" validate:"required"`
	SchemaVersion int             `json:"schema_version" validate:"gte=0"`
}

// tripResponse は旅行ドキュメントのAPIレスポンス。
type tripResponse struct {
	ID            string          `json:"id"`
	OwnerUserID   string          `json:"owner_user_id"`
	TripName      string          `json:"trip_name"`
	StartDate     string          `json:"start_date"`
	EndDate       string          `json:"end_date"`
	Data          json.RawMessage `json:"data"`
	SchemaVersion int             `json:"schema_version"`
	Role          string          `json:"role"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// tripListItemResponse は旅行一覧の1要素。ドキュメント本体は含まない。
type tripListItemResponse struct {
	ID          string           `json:"id"`
	OwnerUserID string           `json:"owner_user_id"`
	TripName    string           `json:"trip_name"`
	StartDate   string           `json:"start_date"`
	EndDate     string           `json:"end_date"`
	Role        string           `json:"role"`
	UpdatedAt   time.Time        `json:"updated_at"`
	Members     []memberResponse `json:"members"`
}

// ListTrips は旅行一覧を返す。
// GET /api/trips
func (h *TripHandler) ListTrips(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	trips, err := h.service.List(r.Context(), userID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, trips)
}

// CreateTrip は旅行を作成する。
// POST /api/trips
func (h *TripHandler) CreateTrip(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req tripRequest
	if apiErr := decodeRequest(w, r, &req); apiErr != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, apiErr)
		return
	}

	trip, err := h.service.Create(r.Context(), userID, req)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, trip)
}

// GetTrip は旅行ドキュメントを返す。
// GET /api/trips/{tripID}
func (h *TripHandler) GetTrip(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	tripID, ok := tripIDParam(w, r)
	if !ok {
		return
	}

	trip, err := h.service.Get(r.Context(), tripID, userID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, trip)
}

// ReplaceTrip は旅行ドキュメント全体を置き換える。
// PUT /api/trips/{tripID}
func (h *TripHandler) ReplaceTrip(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	tripID, ok := tripIDParam(w, r)
	if !ok {
		return
	}

	var req tripRequest
	if apiErr := decodeRequest(w, r, &req); apiErr != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, apiErr)
		return
	}

	trip, err := h.service.Replace(r.Context(), tripID, userID, req)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, trip)
}

// DeleteTrip は旅行を削除する。
// DELETE /api/trips/{tripID}
func (h *TripHandler) DeleteTrip(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	tripID, ok := tripIDParam(w, r)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), tripID, userID); err != nil {
		handleServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// requireUserID はコンテキストから認証済みユーザーIDを取り出す。
// 取得できない場合は401を書き込みfalseを返す。
func requireUserID(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return "", false
	}
	return userID, true
}

// tripIDParam はパスの旅行IDを取り出す。UUIDでなければ旅行未検出として扱う。
func tripIDParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	tripID := chi.URLParam(r, "tripID")
	if !isValidID(tripID) {
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewTripNotFoundError(tripID))
		return "", false
	}
	return tripID, true
}
