package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/tripshare/internal/model"
)

// MemberServiceInterface はメンバーハンドラーが必要とするサービスインターフェース。
type MemberServiceInterface interface {
	ListMembers(ctx context.Context, tripID, callerID string) ([]memberResponse, error)
	ChangeRole(ctx context.Context, tripID, callerID, targetUserID string, role model.Role) error
	RemoveMember(ctx context.Context, tripID, callerID, targetUserID string) error
}

// MemberHandler は旅行メンバー管理のHTTPハンドラー。
type MemberHandler struct {
	service MemberServiceInterface
}

// NewMemberHandler はMemberHandlerを生成する。
func NewMemberHandler(service MemberServiceInterface) *MemberHandler {
	return &MemberHandler{service: service}
}

// changeRoleRequest は権限変更リクエストのボディ。
type changeRoleRequest struct {
	Role string `json:"role" validate:"required"`
}

// memberResponse はメンバー情報のAPIレスポンス。
// 作成者フォールバックで補ったownerはjoined_atを持たない。
type memberResponse struct {
	UserID   string     `json:"user_id"`
	Email    string     `json:"email"`
	Name     string     `json:"name"`
	Role     string     `json:"role"`
	JoinedAt *time.Time `json:"joined_at,omitempty"`
}

// ListMembers はメンバー一覧を返す。
// GET /api/trips/{tripID}/members
func (h *MemberHandler) ListMembers(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	tripID, ok := tripIDParam(w, r)
	if !ok {
		return
	}

	members, err := h.service.ListMembers(r.Context(), tripID, userID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, members)
}

// ChangeRole はメンバーの権限を変更する。
// PATCH /api/trips/{tripID}/members/{userID}
func (h *MemberHandler) ChangeRole(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	tripID, ok := tripIDParam(w, r)
	if !ok {
		return
	}
	targetID, ok := memberIDParam(w, r)
	if !ok {
		return
	}

	var req changeRoleRequest
	if apiErr := decodeRequest(w, r, &req); apiErr != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, apiErr)
		return
	}
	role, apiErr := parseRoleParam(req.Role)
	if apiErr != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, apiErr)
		return
	}

	if err := h.service.ChangeRole(r.Context(), tripID, userID, targetID, role); err != nil {
		handleServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RemoveMember はメンバーを削除する。自分自身を指定した場合は退出になる。
// DELETE /api/trips/{tripID}/members/{userID}
func (h *MemberHandler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	tripID, ok := tripIDParam(w, r)
	if !ok {
		return
	}
	targetID, ok := memberIDParam(w, r)
	if !ok {
		return
	}

	if err := h.service.RemoveMember(r.Context(), tripID, userID, targetID); err != nil {
		handleServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func memberIDParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "userID")
	if !isValidID(id) {
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewMemberNotFoundError(id))
		return "", false
	}
	return id, true
}
