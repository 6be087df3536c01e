package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/tripshare/internal/model"
)

func TestInvitationHandler_Invite(t *testing.T) {
	var gotEmail string
	var gotRole model.Role
	svc := &mockInvitationService{
		inviteFn: func(ctx context.Context, tripID, inviterID, email string, role model.Role) (*invitationResponse, error) {
			gotEmail, gotRole = email, role
			return &invitationResponse{ID: testInvitationID, TripID: tripID, InviteeEmail: email, Role: role.String(), Status: "pending"}, nil
		},
	}
	h := NewInvitationHandler(svc)

	body := `{"email":"  Bob@Example.com ","role":"viewer"}`
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(body))
	req = withChiURLParams(withUserID(req, testUserID), "tripID", testTripID)
	w := httptest.NewRecorder()
	h.Invite(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d; body=%s", w.Code, http.StatusCreated, w.Body.String())
	}
	// 空白のみ除去し、大文字小文字は保持する
	if gotEmail != "Bob@Example.com" {
		t.Errorf("email = %q, want %q", gotEmail, "Bob@Example.com")
	}
	if gotRole != model.RoleViewer {
		t.Errorf("role = %v, want viewer", gotRole)
	}

	var resp map[string]any
	json.NewDecoder(w.Body).Decode(&resp)
	if resp["status"] != "pending" || resp["invitee_email"] != "Bob@Example.com" {
		t.Errorf("response = %+v", resp)
	}
}

func TestInvitationHandler_Invite_InvalidInput(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantCode string
	}{
		{"not an email", `{"email":"bob","role":"viewer"}`, model.ErrCodeInvalidRequest},
		{"missing email", `{"role":"viewer"}`, model.ErrCodeInvalidRequest},
		{"missing role", `{"email":"bob@example.com"}`, model.ErrCodeInvalidRequest},
		{"unknown role", `{"email":"bob@example.com","role":"admin"}`, model.ErrCodeInvalidRole},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewInvitationHandler(&mockInvitationService{
				inviteFn: func(ctx context.Context, tripID, inviterID, email string, role model.Role) (*invitationResponse, error) {
					t.Error("service should not be called")
					return nil, nil
				},
			})

			req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(tt.body))
			req = withChiURLParams(withUserID(req, testUserID), "tripID", testTripID)
			w := httptest.NewRecorder()
			h.Invite(w, req)

			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
			}
			if body := parseAPIErrorResponse(t, w); body.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", body.Code, tt.wantCode)
			}
		})
	}
}

func TestInvitationHandler_Invite_ServiceErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"owner role not invitable", model.NewInvalidRoleError("owner"), http.StatusBadRequest},
		{"already member", model.NewAlreadyMemberError("bob@example.com"), http.StatusConflict},
		{"not owner", model.NewForbiddenError("メンバーの招待"), http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockInvitationService{
				inviteFn: func(ctx context.Context, tripID, inviterID, email string, role model.Role) (*invitationResponse, error) {
					return nil, tt.err
				},
			}
			h := NewInvitationHandler(svc)

			req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(`{"email":"bob@example.com","role":"owner"}`))
			req = withChiURLParams(withUserID(req, testUserID), "tripID", testTripID)
			w := httptest.NewRecorder()
			h.Invite(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}
}

func TestInvitationHandler_ListPending(t *testing.T) {
	svc := &mockInvitationService{
		listPendingFn: func(ctx context.Context, userID string) ([]invitationResponse, error) {
			return []invitationResponse{{ID: testInvitationID, TripName: "京都", InviterName: "Alice", Status: "pending"}}, nil
		},
	}
	h := NewInvitationHandler(svc)

	req := withUserID(httptest.NewRequest(http.MethodGet, "/api/invitations", nil), testUserID)
	w := httptest.NewRecorder()
	h.ListPending(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var body []map[string]any
	json.NewDecoder(w.Body).Decode(&body)
	if len(body) != 1 || body[0]["trip_name"] != "京都" || body[0]["inviter_name"] != "Alice" {
		t.Errorf("body = %+v", body)
	}
}

func TestInvitationHandler_Resolve(t *testing.T) {
	tests := []struct {
		name       string
		call       func(h *InvitationHandler) http.HandlerFunc
		err        error
		wantStatus int
		wantCode   string
	}{
		{"accept ok", func(h *InvitationHandler) http.HandlerFunc { return h.Accept }, nil, http.StatusOK, ""},
		{"accept expired", func(h *InvitationHandler) http.HandlerFunc { return h.Accept }, model.NewInvitationExpiredError(), http.StatusGone, model.ErrCodeInvitationExpired},
		{"accept mismatch", func(h *InvitationHandler) http.HandlerFunc { return h.Accept }, model.NewEmailMismatchError(), http.StatusForbidden, model.ErrCodeEmailMismatch},
		{"accept processed", func(h *InvitationHandler) http.HandlerFunc { return h.Accept }, model.NewInvitationProcessedError(model.InvitationStatusDeclined), http.StatusConflict, model.ErrCodeInvitationProcessed},
		{"decline ok", func(h *InvitationHandler) http.HandlerFunc { return h.Decline }, nil, http.StatusOK, ""},
		{"decline not found", func(h *InvitationHandler) http.HandlerFunc { return h.Decline }, model.NewInvitationNotFoundError(testInvitationID), http.StatusNotFound, model.ErrCodeInvitationNotFound},
		{"get ok", func(h *InvitationHandler) http.HandlerFunc { return h.GetInvitation }, nil, http.StatusOK, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			op := func(ctx context.Context, invitationID, userID string) (*invitationResponse, error) {
				if invitationID != testInvitationID || userID != testUserID {
					t.Errorf("op(invitationID=%q, userID=%q)", invitationID, userID)
				}
				if tt.err != nil {
					return nil, tt.err
				}
				return &invitationResponse{ID: invitationID, Status: "accepted"}, nil
			}
			h := NewInvitationHandler(&mockInvitationService{acceptFn: op, declineFn: op, getFn: op})

			req := httptest.NewRequest(http.MethodPost, "/", nil)
			req = withChiURLParams(withUserID(req, testUserID), "invitationID", testInvitationID)
			w := httptest.NewRecorder()
			tt.call(h)(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if tt.wantCode != "" {
				if body := parseAPIErrorResponse(t, w); body.Code != tt.wantCode {
					t.Errorf("code = %q, want %q", body.Code, tt.wantCode)
				}
			}
		})
	}
}

func TestInvitationHandler_InvalidInvitationID(t *testing.T) {
	h := NewInvitationHandler(&mockInvitationService{})

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req = withChiURLParams(withUserID(req, testUserID), "invitationID", "'; DROP TABLE")
	w := httptest.NewRecorder()
	h.Accept(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
	if body := parseAPIErrorResponse(t, w); body.Code != model.ErrCodeInvitationNotFound {
		t.Errorf("code = %q", body.Code)
	}
}
