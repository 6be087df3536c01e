package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/tripshare/internal/auth"
	"github.com/hitoshi/tripshare/internal/middleware"
	"github.com/hitoshi/tripshare/internal/model"
)

const (
	testUserID       = "0b0f5f6e-3c3e-4bc5-9a57-0d6a4f6f7c01"
	testTripID       = "6a3c7e0e-5d2b-4e9b-8f1a-2c4d6e8f0a12"
	testMemberID     = "9f8e7d6c-5b4a-4392-8170-6f5e4d3c2b1a"
	testInvitationID = "1c2d3e4f-5a6b-4c7d-8e9f-0a1b2c3d4e5f"
)

// --- モック定義 ---

type mockAuthService struct {
	startLoginFn     func() (*auth.LoginRequest, error)
	handleCallbackFn func(ctx context.Context, code, verifier string) (*model.Session, error)
	logoutFn         func(ctx context.Context, sessionID string) error
	getUserFn        func(ctx context.Context, userID string) (*model.User, error)
}

func (m *mockAuthService) StartLogin() (*auth.LoginRequest, error) {
	if m.startLoginFn != nil {
		return m.startLoginFn()
	}
	return &auth.LoginRequest{State: "state", Verifier: "verifier", URL: "https://idp.example.com/auth"}, nil
}

func (m *mockAuthService) HandleCallback(ctx context.Context, code, verifier string) (*model.Session, error) {
	if m.handleCallbackFn != nil {
		return m.handleCallbackFn(ctx, code, verifier)
	}
	return nil, nil
}

func (m *mockAuthService) Logout(ctx context.Context, sessionID string) error {
	if m.logoutFn != nil {
		return m.logoutFn(ctx, sessionID)
	}
	return nil
}

func (m *mockAuthService) GetUser(ctx context.Context, userID string) (*model.User, error) {
	if m.getUserFn != nil {
		return m.getUserFn(ctx, userID)
	}
	return nil, nil
}

type mockTripService struct {
	listFn    func(ctx context.Context, callerID string) ([]tripListItemResponse, error)
	getFn     func(ctx context.Context, tripID, callerID string) (*tripResponse, error)
	createFn  func(ctx context.Context, callerID string, in tripRequest) (*tripResponse, error)
	replaceFn func(ctx context.Context, tripID, callerID string, in tripRequest) (*tripResponse, error)
	deleteFn  func(ctx context.Context, tripID, callerID string) error
}

func (m *mockTripService) List(ctx context.Context, callerID string) ([]tripListItemResponse, error) {
	if m.listFn != nil {
		return m.listFn(ctx, callerID)
	}
	return []tripListItemResponse{}, nil
}

func (m *mockTripService) Get(ctx context.Context, tripID, callerID string) (*tripResponse, error) {
	if m.getFn != nil {
		return m.getFn(ctx, tripID, callerID)
	}
	return &tripResponse{ID: tripID}, nil
}

func (m *mockTripService) Create(ctx context.Context, callerID string, in tripRequest) (*tripResponse, error) {
	if m.createFn != nil {
		return m.createFn(ctx, callerID, in)
	}
	return &tripResponse{ID: testTripID, TripName: in.TripName, Role: "owner"}, nil
}

func (m *mockTripService) Replace(ctx context.Context, tripID, callerID string, in tripRequest) (*tripResponse, error) {
	if m.replaceFn != nil {
		return m.replaceFn(ctx, tripID, callerID, in)
	}
	return &tripResponse{ID: tripID, TripName: in.TripName}, nil
}

func (m *mockTripService) Delete(ctx context.Context, tripID, callerID string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, tripID, callerID)
	}
	return nil
}

type mockMemberService struct {
	listMembersFn  func(ctx context.Context, tripID, callerID string) ([]memberResponse, error)
	changeRoleFn   func(ctx context.Context, tripID, callerID, targetUserID string, role model.Role) error
	removeMemberFn func(ctx context.Context, tripID, callerID, targetUserID string) error
}

func (m *mockMemberService) ListMembers(ctx context.Context, tripID, callerID string) ([]memberResponse, error) {
	if m.listMembersFn != nil {
		return m.listMembersFn(ctx, tripID, callerID)
	}
	return []memberResponse{}, nil
}

func (m *mockMemberService) ChangeRole(ctx context.Context, tripID, callerID, targetUserID string, role model.Role) error {
	if m.changeRoleFn != nil {
		return m.changeRoleFn(ctx, tripID, callerID, targetUserID, role)
	}
	return nil
}

func (m *mockMemberService) RemoveMember(ctx context.Context, tripID, callerID, targetUserID string) error {
	if m.removeMemberFn != nil {
		return m.removeMemberFn(ctx, tripID, callerID, targetUserID)
	}
	return nil
}

type mockInvitationService struct {
	inviteFn      func(ctx context.Context, tripID, inviterID, email string, role model.Role) (*invitationResponse, error)
	listPendingFn func(ctx context.Context, userID string) ([]invitationResponse, error)
	getFn         func(ctx context.Context, invitationID, userID string) (*invitationResponse, error)
	acceptFn      func(ctx context.Context, invitationID, userID string) (*invitationResponse, error)
	declineFn     func(ctx context.Context, invitationID, userID string) (*invitationResponse, error)
}

func (m *mockInvitationService) Invite(ctx context.Context, tripID, inviterID, email string, role model.Role) (*invitationResponse, error) {
	if m.inviteFn != nil {
		return m.inviteFn(ctx, tripID, inviterID, email, role)
	}
	return &invitationResponse{ID: testInvitationID, TripID: tripID, InviteeEmail: email, Role: role.String(), Status: "pending"}, nil
}

func (m *mockInvitationService) ListPending(ctx context.Context, userID string) ([]invitationResponse, error) {
	if m.listPendingFn != nil {
		return m.listPendingFn(ctx, userID)
	}
	return []invitationResponse{}, nil
}

func (m *mockInvitationService) Get(ctx context.Context, invitationID, userID string) (*invitationResponse, error) {
	if m.getFn != nil {
		return m.getFn(ctx, invitationID, userID)
	}
	return &invitationResponse{ID: invitationID, Status: "pending"}, nil
}

func (m *mockInvitationService) Accept(ctx context.Context, invitationID, userID string) (*invitationResponse, error) {
	if m.acceptFn != nil {
		return m.acceptFn(ctx, invitationID, userID)
	}
	return &invitationResponse{ID: invitationID, Status: "accepted"}, nil
}

func (m *mockInvitationService) Decline(ctx context.Context, invitationID, userID string) (*invitationResponse, error) {
	if m.declineFn != nil {
		return m.declineFn(ctx, invitationID, userID)
	}
	return &invitationResponse{ID: invitationID, Status: "declined"}, nil
}

// --- テストヘルパー ---

// withUserID はテスト用にリクエストコンテキストにユーザーIDを注入するヘルパー。
func withUserID(r *http.Request, userID string) *http.Request {
	ctx := middleware.ContextWithUserID(r.Context(), userID)
	return r.WithContext(ctx)
}

// withChiURLParams はテスト用にchiのURLパラメータを注入するヘルパー。
func withChiURLParams(r *http.Request, kv ...string) *http.Request {
	rctx := chi.NewRouteContext()
	for i := 0; i+1 < len(kv); i += 2 {
		rctx.URLParams.Add(kv[i], kv[i+1])
	}
	ctx := context.WithValue(r.Context(), chi.RouteCtxKey, rctx)
	return r.WithContext(ctx)
}

// parseAPIErrorResponse はレスポンスボディからAPIErrorレスポンスをパースするヘルパー。
func parseAPIErrorResponse(t *testing.T, w *httptest.ResponseRecorder) apiErrorResponse {
	t.Helper()
	var result apiErrorResponse
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	return result
}
