package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/tripshare/internal/model"
)

// InvitationServiceInterface は招待ハンドラーが必要とするサービスインターフェース。
type InvitationServiceInterface interface {
	// Invite は招待を作成する。同じ宛先のpending招待があれば更新する。
	Invite(ctx context.Context, tripID, inviterID, email string, role model.Role) (*invitationResponse, error)
	// ListPending はログインユーザー宛ての未処理の招待を返す。
	ListPending(ctx context.Context, userID string) ([]invitationResponse, error)
	// Get は招待1件を返す。
	Get(ctx context.Context, invitationID, userID string) (*invitationResponse, error)
	// Accept は招待を承諾する。
	Accept(ctx context.Context, invitationID, userID string) (*invitationResponse, error)
	// Decline は招待を辞退する。
	Decline(ctx context.Context, invitationID, userID string) (*invitationResponse, error)
}

// InvitationHandler は招待のHTTPハンドラー。
type InvitationHandler struct {
	service InvitationServiceInterface
}

// NewInvitationHandler はInvitationHandlerを生成する。
func NewInvitationHandler(service InvitationServiceInterface) *InvitationHandler {
	return &InvitationHandler{service: service}
}

// inviteRequest は招待作成リクエストのボディ。
type inviteRequest struct {
	Email string `json:"email" validate:"required,max=320"`
	Role  string `json:"role" validate:"required"`
}

// invitationResponse は招待のAPIレスポンス。
// 旅行名と招待者情報は招待先向けの取得時のみ含む。
type invitationResponse struct {
	ID           string    `json:"id"`
	TripID       string    `json:"trip_id"`
	TripName     string    `json:"trip_name,omitempty"`
	InviterName  string    `json:"inviter_name,omitempty"`
	InviterEmail string    `json:"inviter_email,omitempty"`
	InviteeEmail string    `json:"invitee_email"`
	Role         string    `json:"role"`
	Status       string    `json:"status"`
	Expired      bool      `json:"expired"`
	CreatedAt    time.Time `json:"created_at"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Invite はメンバーを招待する。
// POST /api/trips/{tripID}/invitations
func (h *InvitationHandler) Invite(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	tripID, ok := tripIDParam(w, r)
	if !ok {
		return
	}

	var req inviteRequest
	if apiErr := decodeRequest(w, r, &req); apiErr != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, apiErr)
		return
	}
	// 前後の空白のみ除去し、大文字小文字はそのまま扱う
	email := strings.TrimSpace(req.Email)
	if err := validate.Var(email, "email"); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("email はメールアドレスの形式で指定してください"))
		return
	}
	role, apiErr := parseRoleParam(req.Role)
	if apiErr != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, apiErr)
		return
	}

	inv, err := h.service.Invite(r.Context(), tripID, userID, email, role)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, inv)
}

// ListPending はログインユーザー宛ての未処理の招待を返す。
// GET /api/invitations
func (h *InvitationHandler) ListPending(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	invs, err := h.service.ListPending(r.Context(), userID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, invs)
}

// GetInvitation は招待1件を返す。招待リンクからの遷移時に使う。
// GET /api/invitations/{invitationID}
func (h *InvitationHandler) GetInvitation(w http.ResponseWriter, r *http.Request) {
	h.resolve(w, r, h.service.Get)
}

// Accept は招待を承諾する。
// POST /api/invitations/{invitationID}/accept
func (h *InvitationHandler) Accept(w http.ResponseWriter, r *http.Request) {
	h.resolve(w, r, h.service.Accept)
}

// Decline は招待を辞退する。
// POST /api/invitations/{invitationID}/decline
func (h *InvitationHandler) Decline(w http.ResponseWriter, r *http.Request) {
	h.resolve(w, r, h.service.Decline)
}

// resolve は招待IDを対象とする操作の共通処理。
func (h *InvitationHandler) resolve(w http.ResponseWriter, r *http.Request,
	op func(ctx context.Context, invitationID, userID string) (*invitationResponse, error)) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	invitationID := chi.URLParam(r, "invitationID")
	if !isValidID(invitationID) {
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewInvitationNotFoundError(invitationID))
		return
	}

	inv, err := op(r.Context(), invitationID, userID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, inv)
}
