package models

import (
	"errors"
	"time"

	"gallery/db"
	"gallery/utils"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrInvalidToken = errors.New("invite token is invalid or already claimed")

// Invite grants a role on a gallery to an email address. UserID is
// populated once the invitee has a registered account; until then
// Token carries the pending magic-link grant
type Invite struct {
	ID        uint64  `gorm:"primaryKey"`
	GalleryID uint64  `gorm:"not null;index:uniq_gallery_email,unique,priority:1"`
	Gallery   Gallery `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
	Email     string  `gorm:"type:varchar(150);not null;index:uniq_gallery_email,unique,priority:2"`
	UserID    *string `gorm:"type:varchar(100);index"`
	Role      Role    `gorm:"type:varchar(20);not null"`
	Token     *string `gorm:"type:varchar(100);index"`
	CreatedAt int64
	UpdatedAt int64
}

// UpsertInvite creates the invite row or, when the email was already
// invited, updates the role in place. Exactly one row per
// (gallery, email) either way
func UpsertInvite(galleryID uint64, email string, role Role, userID *string) (Invite, error) {
	email = utils.NormalizeEmail(email)
	invite := Invite{
		GalleryID: galleryID,
		Email:     email,
		UserID:    userID,
		Role:      role,
	}
	// A known account also binds an existing pending row and burns its
	// token. Without a known account the update touches neither, so a
	// claimed row keeps its binding
	assignments := []string{"role", "updated_at"}
	if userID == nil {
		token := utils.Rand16BytesToBase62()
		invite.Token = &token
	} else {
		assignments = append(assignments, "user_id", "token")
	}
	err := db.Instance.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "gallery_id"}, {Name: "email"}},
		DoUpdates: clause.AssignmentColumns(assignments),
	}).Create(&invite).Error
	if err != nil {
		return invite, err
	}
	// Re-read for the update path, where the insert values differ from
	// what the row holds
	err = db.Instance.Where("gallery_id = ? AND email = ?", galleryID, email).First(&invite).Error
	return invite, err
}

// ClaimInvite resolves a magic-link token: binds the invite to the now
// registered user and burns the token
func ClaimInvite(token, authenticatedUserID string) (Invite, error) {
	var invite Invite
	err := db.Instance.Preload("Gallery").Where("token = ?", token).First(&invite).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return invite, ErrInvalidToken
	}
	if err != nil {
		return invite, err
	}
	err = db.Instance.Model(&invite).Updates(map[string]interface{}{
		"user_id": authenticatedUserID,
		"token":   nil,
	}).Error
	if err != nil {
		return invite, err
	}
	invite.UserID = &authenticatedUserID
	invite.Token = nil
	return invite, nil
}

func UpdateInviteRole(galleryID uint64, email string, role Role) error {
	result := db.Instance.Model(&Invite{}).
		Where("gallery_id = ? AND email = ?", galleryID, utils.NormalizeEmail(email)).
		Updates(map[string]interface{}{"role": role, "updated_at": time.Now().Unix()})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func RevokeInvite(galleryID uint64, email string) error {
	result := db.Instance.
		Where("gallery_id = ? AND email = ?", galleryID, utils.NormalizeEmail(email)).
		Delete(&Invite{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// GalleryManagerIDs returns the user ids that receive comment/star
// fan-out: the owner plus every claimed Edit invite
func GalleryManagerIDs(gallery *Gallery) []string {
	ids := []string{gallery.OwnerUserID}
	var invites []Invite
	if db.Instance.
		Where("gallery_id = ? AND role = ? AND user_id IS NOT NULL", gallery.ID, RoleEdit).
		Find(&invites).Error != nil {
		return ids
	}
	for _, invite := range invites {
		ids = append(ids, *invite.UserID)
	}
	return ids
}

type Collaborator struct {
	Email    string `json:"email"`
	UserID   string `json:"user_id,omitempty"`
	Role     Role   `json:"role"`
	Pending  bool   `json:"pending"` // true while the magic link is unclaimed
	Name     string `json:"name,omitempty"`
	ImageURL string `json:"image_url,omitempty"`
	Color    string `json:"color,omitempty"`
	IsOwner  bool   `json:"is_owner"`
}

// ListCollaborators joins invites with cached profile data and
// prepends a synthesized owner row
func ListCollaborators(gallery *Gallery) ([]Collaborator, error) {
	result := []Collaborator{}
	owner := Collaborator{UserID: gallery.OwnerUserID, Role: RoleEdit, IsOwner: true}
	if cached, err := CachedUserByID(gallery.OwnerUserID); err == nil {
		owner.Name = cached.DisplayName()
		owner.ImageURL = cached.ImageURL
		owner.Color = cached.Color
	}
	result = append(result, owner)

	var invites []Invite
	if err := db.Instance.Where("gallery_id = ?", gallery.ID).Order("created_at ASC").Find(&invites).Error; err != nil {
		return nil, err
	}
	for _, invite := range invites {
		collab := Collaborator{
			Email:   invite.Email,
			Role:    invite.Role,
			Pending: invite.Token != nil,
		}
		if invite.UserID != nil {
			collab.UserID = *invite.UserID
			if cached, err := CachedUserByID(*invite.UserID); err == nil {
				collab.Name = cached.DisplayName()
				collab.ImageURL = cached.ImageURL
				collab.Color = cached.Color
			}
		}
		result = append(result, collab)
	}
	return result, nil
}
