package models

import (
	"testing"

	"gallery/db"
)

func TestRolePredicates(t *testing.T) {
	tests := []struct {
		role       Role
		canManage  bool
		canComment bool
		canStar    bool
		canView    bool
	}{
		{RoleOwner, true, true, true, true},
		{RoleEdit, true, true, true, true},
		{RoleComment, false, true, true, true},
		{RoleView, false, false, false, true},
		{RoleNone, false, false, false, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.role), func(t *testing.T) {
			if got := CanManage(tt.role); got != tt.canManage {
				t.Errorf("CanManage(%q) = %v, want %v", tt.role, got, tt.canManage)
			}
			if got := CanComment(tt.role); got != tt.canComment {
				t.Errorf("CanComment(%q) = %v, want %v", tt.role, got, tt.canComment)
			}
			if got := CanStar(tt.role); got != tt.canStar {
				t.Errorf("CanStar(%q) = %v, want %v", tt.role, got, tt.canStar)
			}
			if got := CanView(tt.role); got != tt.canView {
				t.Errorf("CanView(%q) = %v, want %v", tt.role, got, tt.canView)
			}
		})
	}
}

func TestValidInviteRole(t *testing.T) {
	for _, role := range []Role{RoleEdit, RoleComment, RoleView} {
		if !ValidInviteRole(role) {
			t.Errorf("ValidInviteRole(%q) = false, want true", role)
		}
	}
	for _, role := range []Role{RoleOwner, RoleNone, Role("admin")} {
		if ValidInviteRole(role) {
			t.Errorf("ValidInviteRole(%q) = true, want false", role)
		}
	}
}

func TestResolveRole(t *testing.T) {
	owner := "auth0|owner-resolve"
	gallery := createTestGallery(t, owner)

	if got := ResolveRole(gallery, owner); got != RoleOwner {
		t.Errorf("owner role = %q, want %q", got, RoleOwner)
	}
	if got := ResolveRole(gallery, "auth0|stranger"); got != RoleNone {
		t.Errorf("stranger role on private gallery = %q, want none", got)
	}
	if got := ResolveRole(gallery, ""); got != RoleNone {
		t.Errorf("anonymous role on private gallery = %q, want none", got)
	}

	// Invite row takes precedence over public access
	invitee := "auth0|invitee-resolve"
	invite, err := UpsertInvite(gallery.ID, "invitee@example.com", RoleComment, &invitee)
	if err != nil {
		t.Fatalf("UpsertInvite: %v", err)
	}
	_ = invite
	if got := ResolveRole(gallery, invitee); got != RoleComment {
		t.Errorf("invitee role = %q, want %q", got, RoleComment)
	}

	// Public galleries grant View to everyone else
	db.Instance.Model(gallery).Update("is_public", true)
	gallery.IsPublic = true
	if got := ResolveRole(gallery, "auth0|stranger"); got != RoleView {
		t.Errorf("stranger role on public gallery = %q, want %q", got, RoleView)
	}
	if got := ResolveRole(gallery, invitee); got != RoleComment {
		t.Errorf("invitee role must not be downgraded by public access, got %q", got)
	}
}
