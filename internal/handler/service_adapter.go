package handler

import (
	"context"
	"time"

	"github.com/hitoshi/tripshare/internal/invitation"
	"github.com/hitoshi/tripshare/internal/membership"
	"github.com/hitoshi/tripshare/internal/model"
	"github.com/hitoshi/tripshare/internal/trip"
)

// TripServiceAdapter は trip.Service を TripServiceInterface に適合させるアダプタ。
type TripServiceAdapter struct {
	svc *trip.Service
}

// NewTripServiceAdapter はTripServiceAdapterを生成する。
func NewTripServiceAdapter(svc *trip.Service) *TripServiceAdapter {
	return &TripServiceAdapter{svc: svc}
}

// List は旅行一覧をhandlerレスポンス型で返す。
func (a *TripServiceAdapter) List(ctx context.Context, callerID string) ([]tripListItemResponse, error) {
	entries, err := a.svc.List(ctx, callerID)
	if err != nil {
		return nil, err
	}

	results := make([]tripListItemResponse, len(entries))
	for i, e := range entries {
		results[i] = tripListItemResponse{
			ID:          e.ID,
			OwnerUserID: e.OwnerUserID,
			TripName:    e.TripName,
			StartDate:   e.StartDate,
			EndDate:     e.EndDate,
			Role:        e.Role.String(),
			UpdatedAt:   e.UpdatedAt,
			Members:     toMemberResponses(e.Members),
		}
	}
	return results, nil
}

// Get は旅行ドキュメントをhandlerレスポンス型で返す。
func (a *TripServiceAdapter) Get(ctx context.Context, tripID, callerID string) (*tripResponse, error) {
	t, err := a.svc.Get(ctx, tripID, callerID)
	if err != nil {
		return nil, err
	}
	return toTripResponse(t), nil
}

// Create は旅行を作成しhandlerレスポンス型で返す。
func (a *TripServiceAdapter) Create(ctx context.Context, callerID string, in tripRequest) (*tripResponse, error) {
	t, err := a.svc.Create(ctx, callerID, toTripInput(in))
	if err != nil {
		return nil, err
	}
	return toTripResponse(t), nil
}

// Replace は旅行ドキュメントを置き換えhandlerレスポンス型で返す。
func (a *TripServiceAdapter) Replace(ctx context.Context, tripID, callerID string, in tripRequest) (*tripResponse, error) {
	t, err := a.svc.Replace(ctx, tripID, callerID, toTripInput(in))
	if err != nil {
		return nil, err
	}
	return toTripResponse(t), nil
}

// Delete は旅行を削除する。
func (a *TripServiceAdapter) Delete(ctx context.Context, tripID, callerID string) error {
	return a.svc.Delete(ctx, tripID, callerID)
}

func toTripInput(in tripRequest) trip.Input {
	return trip.Input{
		TripName:      in.TripName,
		StartDate:     in.StartDate,
		EndDate:       in.EndDate,
		Data:          in.Data,
		SchemaVersion: in.SchemaVersion,
	}
}

// toTripResponse はドメインのTripWithRoleをhandlerのレスポンス型に変換する。
func toTripResponse(t *model.TripWithRole) *tripResponse {
	return &tripResponse{
		ID:            t.ID,
		OwnerUserID:   t.OwnerUserID,
		TripName:      t.TripName,
		StartDate:     t.StartDate,
		EndDate:       t.EndDate,
		Data:          t.Data,
		SchemaVersion: t.SchemaVersion,
		Role:          t.Role.String(),
		CreatedAt:     t.CreatedAt,
		UpdatedAt:     t.UpdatedAt,
	}
}

// MemberServiceAdapter は membership.Service を MemberServiceInterface に適合させるアダプタ。
type MemberServiceAdapter struct {
	svc *membership.Service
}

// NewMemberServiceAdapter はMemberServiceAdapterを生成する。
func NewMemberServiceAdapter(svc *membership.Service) *MemberServiceAdapter {
	return &MemberServiceAdapter{svc: svc}
}

// ListMembers はメンバー一覧をhandlerレスポンス型で返す。
func (a *MemberServiceAdapter) ListMembers(ctx context.Context, tripID, callerID string) ([]memberResponse, error) {
	members, err := a.svc.ListMembers(ctx, tripID, callerID)
	if err != nil {
		return nil, err
	}
	return toMemberResponses(members), nil
}

// ChangeRole はメンバーの権限を変更する。
func (a *MemberServiceAdapter) ChangeRole(ctx context.Context, tripID, callerID, targetUserID string, role model.Role) error {
	return a.svc.ChangeRole(ctx, tripID, callerID, targetUserID, role)
}

// RemoveMember はメンバーを削除する。
func (a *MemberServiceAdapter) RemoveMember(ctx context.Context, tripID, callerID, targetUserID string) error {
	return a.svc.RemoveMember(ctx, tripID, callerID, targetUserID)
}

func toMemberResponses(members []model.MemberView) []memberResponse {
	results := make([]memberResponse, len(members))
	for i, m := range members {
		results[i] = memberResponse{
			UserID: m.UserID,
			Email:  m.Email,
			Name:   m.Name,
			Role:   m.Role.String(),
		}
		if !m.JoinedAt.IsZero() {
			joined := m.JoinedAt
			results[i].JoinedAt = &joined
		}
	}
	return results
}

// InvitationServiceAdapter は invitation.Service を InvitationServiceInterface に適合させるアダプタ。
type InvitationServiceAdapter struct {
	svc *invitation.Service
	now func() time.Time
}

// NewInvitationServiceAdapter はInvitationServiceAdapterを生成する。
func NewInvitationServiceAdapter(svc *invitation.Service) *InvitationServiceAdapter {
	return &InvitationServiceAdapter{svc: svc, now: time.Now}
}

// Invite は招待を作成しhandlerレスポンス型で返す。
func (a *InvitationServiceAdapter) Invite(ctx context.Context, tripID, inviterID, email string, role model.Role) (*invitationResponse, error) {
	inv, err := a.svc.Invite(ctx, tripID, inviterID, email, role)
	if err != nil {
		return nil, err
	}
	resp := a.toInvitationResponse(inv)
	return &resp, nil
}

// ListPending は未処理の招待をhandlerレスポンス型で返す。
func (a *InvitationServiceAdapter) ListPending(ctx context.Context, userID string) ([]invitationResponse, error) {
	views, err := a.svc.ListPendingForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	results := make([]invitationResponse, len(views))
	for i := range views {
		results[i] = a.toViewResponse(&views[i])
	}
	return results, nil
}

// Get は招待1件をhandlerレスポンス型で返す。
func (a *InvitationServiceAdapter) Get(ctx context.Context, invitationID, userID string) (*invitationResponse, error) {
	view, err := a.svc.Get(ctx, invitationID, userID)
	if err != nil {
		return nil, err
	}
	resp := a.toViewResponse(view)
	return &resp, nil
}

// Accept は招待を承諾しhandlerレスポンス型で返す。
func (a *InvitationServiceAdapter) Accept(ctx context.Context, invitationID, userID string) (*invitationResponse, error) {
	inv, err := a.svc.Accept(ctx, invitationID, userID)
	if err != nil {
		return nil, err
	}
	resp := a.toInvitationResponse(inv)
	return &resp, nil
}

// Decline は招待を辞退しhandlerレスポンス型で返す。
func (a *InvitationServiceAdapter) Decline(ctx context.Context, invitationID, userID string) (*invitationResponse, error) {
	inv, err := a.svc.Decline(ctx, invitationID, userID)
	if err != nil {
		return nil, err
	}
	resp := a.toInvitationResponse(inv)
	return &resp, nil
}

func (a *InvitationServiceAdapter) toInvitationResponse(inv *model.Invitation) invitationResponse {
	return invitationResponse{
		ID:           inv.ID,
		TripID:       inv.TripID,
		InviteeEmail: inv.InviteeEmail,
		Role:         inv.Role.String(),
		Status:       string(inv.Status),
		Expired:      inv.IsPending() && inv.IsExpired(a.now()),
		CreatedAt:    inv.CreatedAt,
		ExpiresAt:    inv.ExpiresAt,
	}
}

func (a *InvitationServiceAdapter) toViewResponse(view *model.PendingInvitationView) invitationResponse {
	resp := a.toInvitationResponse(&view.Invitation)
	resp.TripName = view.TripName
	resp.InviterName = view.InviterName
	resp.InviterEmail = view.InviterEmail
	return resp
}

var (
	_ TripServiceInterface       = (*TripServiceAdapter)(nil)
	_ MemberServiceInterface     = (*MemberServiceAdapter)(nil)
	_ InvitationServiceInterface = (*InvitationServiceAdapter)(nil)
)
