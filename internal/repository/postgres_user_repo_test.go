package repository

import (
	"strings"
	"testing"
)

// 各PostgreSQL実装がリポジトリインターフェースを満たすことを検証
func TestPostgresRepos_ImplementInterfaces(t *testing.T) {
	var _ UserRepository = (*PostgresUserRepo)(nil)
	var _ IdentityRepository = (*PostgresIdentityRepo)(nil)
	var _ SessionRepository = (*PostgresSessionRepo)(nil)
	var _ TripRepository = (*PostgresTripRepo)(nil)
	var _ MembershipRepository = (*PostgresMembershipRepo)(nil)
	var _ InvitationRepository = (*PostgresInvitationRepo)(nil)
}

// コンストラクタがnil DBでも初期化できることを検証
func TestNewPostgresRepos_Initialize(t *testing.T) {
	if NewPostgresUserRepo(nil) == nil {
		t.Error("expected non-nil user repo")
	}
	if NewPostgresIdentityRepo(nil) == nil {
		t.Error("expected non-nil identity repo")
	}
	if NewPostgresSessionRepo(nil) == nil {
		t.Error("expected non-nil session repo")
	}
	if NewPostgresTripRepo(nil) == nil {
		t.Error("expected non-nil trip repo")
	}
	if NewPostgresMembershipRepo(nil) == nil {
		t.Error("expected non-nil membership repo")
	}
	if NewPostgresInvitationRepo(nil) == nil {
		t.Error("expected non-nil invitation repo")
	}
}

// ListByTripsは空のID一覧に対してDBへ問い合わせずに空のmapを返すこと
func TestPostgresMembershipRepo_ListByTrips_Empty(t *testing.T) {
	repo := NewPostgresMembershipRepo(nil)
	got, err := repo.ListByTrips(t.Context(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected empty map, got %v", got)
	}
}

// pending招待の作成は部分ユニークインデックスとの衝突を1文で吸収すること
func TestUpsertPendingInvitationQuery_UsesOnConflict(t *testing.T) {
	for _, want := range []string{
		"ON CONFLICT (trip_id, invitee_email) WHERE status = 'pending'",
		"DO UPDATE SET role = EXCLUDED.role",
		"RETURNING",
	} {
		if !strings.Contains(upsertPendingInvitationQuery, want) {
			t.Errorf("query does not contain %q:\n%s", want, upsertPendingInvitationQuery)
		}
	}
	if strings.Contains(upsertPendingInvitationQuery, "FOR UPDATE") {
		t.Error("query should not lock with FOR UPDATE")
	}
}
