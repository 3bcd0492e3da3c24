package models

import "gallery/db"

// Role is the effective permission level of a user on a gallery
type Role string

const (
	RoleOwner   Role = "owner"
	RoleEdit    Role = "Edit"
	RoleComment Role = "Comment"
	RoleView    Role = "View"
	RoleNone    Role = ""
)

func ValidInviteRole(r Role) bool {
	return r == RoleEdit || r == RoleComment || r == RoleView
}

// ResolveRole computes the effective role, first match wins:
// owner, invite row, public gallery, nothing
func ResolveRole(gallery *Gallery, userID string) Role {
	if userID != "" && userID == gallery.OwnerUserID {
		return RoleOwner
	}
	if userID != "" {
		var invite Invite
		err := db.Instance.
			Where("gallery_id = ? AND user_id = ?", gallery.ID, userID).
			First(&invite).Error
		if err == nil {
			return invite.Role
		}
	}
	if gallery.IsPublic || gallery.GuestUpload {
		return RoleView
	}
	return RoleNone
}

// CanManage permits upload, delete, reorder, rename, move and invite
func CanManage(r Role) bool {
	return r == RoleOwner || r == RoleEdit
}

func CanComment(r Role) bool {
	return r == RoleOwner || r == RoleEdit || r == RoleComment
}

// CanStar - view-only users cannot star
func CanStar(r Role) bool {
	return r == RoleOwner || r == RoleEdit || r == RoleComment
}

func CanView(r Role) bool {
	return r != RoleNone
}
