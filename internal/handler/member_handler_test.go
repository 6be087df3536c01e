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

func TestMemberHandler_ListMembers(t *testing.T) {
	svc := &mockMemberService{
		listMembersFn: func(ctx context.Context, tripID, callerID string) ([]memberResponse, error) {
			return []memberResponse{
				{UserID: testUserID, Email: "owner@example.com", Role: "owner"},
				{UserID: testMemberID, Email: "bob@example.com", Role: "viewer"},
			}, nil
		},
	}
	h := NewMemberHandler(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/trips/"+testTripID+"/members", nil)
	req = withChiURLParams(withUserID(req, testUserID), "tripID", testTripID)
	w := httptest.NewRecorder()
	h.ListMembers(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var body []map[string]any
	json.NewDecoder(w.Body).Decode(&body)
	if len(body) != 2 || body[1]["role"] != "viewer" {
		t.Errorf("body = %+v", body)
	}
	if _, ok := body[0]["joined_at"]; ok {
		t.Error("joined_at should be omitted when unknown")
	}
}

func TestMemberHandler_ChangeRole(t *testing.T) {
	var gotTarget string
	var gotRole model.Role
	svc := &mockMemberService{
		changeRoleFn: func(ctx context.Context, tripID, callerID, targetUserID string, role model.Role) error {
			gotTarget, gotRole = targetUserID, role
			return nil
		},
	}
	h := NewMemberHandler(svc)

	req := httptest.NewRequest(http.MethodPatch, "/", bytes.NewBufferString(`{"role":"editor"}`))
	req = withChiURLParams(withUserID(req, testUserID), "tripID", testTripID, "userID", testMemberID)
	w := httptest.NewRecorder()
	h.ChangeRole(w, req)

	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want %d; body=%s", w.Code, http.StatusNoContent, w.Body.String())
	}
	if gotTarget != testMemberID || gotRole != model.RoleEditor {
		t.Errorf("ChangeRole(target=%q, role=%v)", gotTarget, gotRole)
	}
}

func TestMemberHandler_ChangeRole_InvalidInput(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		userID     string
		wantStatus int
		wantCode   string
	}{
		{"unknown role", `{"role":"admin"}`, testMemberID, http.StatusBadRequest, model.ErrCodeInvalidRole},
		{"missing role", `{}`, testMemberID, http.StatusBadRequest, model.ErrCodeInvalidRequest},
		{"invalid member id", `{"role":"viewer"}`, "bob", http.StatusNotFound, model.ErrCodeMemberNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewMemberHandler(&mockMemberService{
				changeRoleFn: func(ctx context.Context, tripID, callerID, targetUserID string, role model.Role) error {
					t.Error("service should not be called")
					return nil
				},
			})

			req := httptest.NewRequest(http.MethodPatch, "/", bytes.NewBufferString(tt.body))
			req = withChiURLParams(withUserID(req, testUserID), "tripID", testTripID, "userID", tt.userID)
			w := httptest.NewRecorder()
			h.ChangeRole(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if body := parseAPIErrorResponse(t, w); body.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", body.Code, tt.wantCode)
			}
		})
	}
}

func TestMemberHandler_ChangeRole_OwnerProtected(t *testing.T) {
	svc := &mockMemberService{
		changeRoleFn: func(ctx context.Context, tripID, callerID, targetUserID string, role model.Role) error {
			return model.NewOwnerProtectedError()
		},
	}
	h := NewMemberHandler(svc)

	req := httptest.NewRequest(http.MethodPatch, "/", bytes.NewBufferString(`{"role":"viewer"}`))
	req = withChiURLParams(withUserID(req, testUserID), "tripID", testTripID, "userID", testUserID)
	w := httptest.NewRecorder()
	h.ChangeRole(w, req)

	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want %d", w.Code, http.StatusForbidden)
	}
	if body := parseAPIErrorResponse(t, w); body.Code != model.ErrCodeOwnerProtected {
		t.Errorf("code = %q", body.Code)
	}
}

func TestMemberHandler_RemoveMember(t *testing.T) {
	var gotCaller, gotTarget string
	svc := &mockMemberService{
		removeMemberFn: func(ctx context.Context, tripID, callerID, targetUserID string) error {
			gotCaller, gotTarget = callerID, targetUserID
			return nil
		},
	}
	h := NewMemberHandler(svc)

	// 自分自身の削除（退出）
	req := httptest.NewRequest(http.MethodDelete, "/", nil)
	req = withChiURLParams(withUserID(req, testMemberID), "tripID", testTripID, "userID", testMemberID)
	w := httptest.NewRecorder()
	h.RemoveMember(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNoContent)
	}
	if gotCaller != testMemberID || gotTarget != testMemberID {
		t.Errorf("RemoveMember(caller=%q, target=%q)", gotCaller, gotTarget)
	}
}

func TestMemberHandler_RemoveMember_NotFound(t *testing.T) {
	svc := &mockMemberService{
		removeMemberFn: func(ctx context.Context, tripID, callerID, targetUserID string) error {
			return model.NewMemberNotFoundError(targetUserID)
		},
	}
	h := NewMemberHandler(svc)

	req := httptest.NewRequest(http.MethodDelete, "/", nil)
	req = withChiURLParams(withUserID(req, testUserID), "tripID", testTripID, "userID", testMemberID)
	w := httptest.NewRecorder()
	h.RemoveMember(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}
