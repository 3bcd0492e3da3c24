package handlers

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"gallery/email"
	"gallery/identity"
	"gallery/models"
	"gallery/utils"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type InviteRequest struct {
	Email string `json:"email" binding:"required,email"`
	Role  string `json:"role" binding:"required"`
}

type InviteUpdateRequest struct {
	Email string `json:"email" binding:"required,email"`
	Role  string `json:"role" binding:"required"`
}

type InviteRevokeRequest struct {
	Email string `json:"email" binding:"required,email"`
}

type MagicLinkRequest struct {
	Token string `json:"token" binding:"required"`
}

// InviteCreate grants a role to an email address. A registered invitee
// gets a plain notification email and an in-app notification; an
// unknown address gets a magic link that claims the invite at sign-up
func InviteCreate(c *gin.Context, userID string) {
	gallery, role, ok := loadGallery(c)
	if !ok {
		return
	}
	if !models.CanManage(role) {
		forbidden(c)
		return
	}
	r := InviteRequest{}
	if err := c.ShouldBindJSON(&r); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	inviteRole := models.Role(r.Role)
	if !models.ValidInviteRole(inviteRole) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "role must be Edit, Comment or View"})
		return
	}
	inviter := models.EnsureCachedUser(userID)
	inviteEmail := utils.NormalizeEmail(r.Email)
	if inviteEmail == utils.NormalizeEmail(inviter.Email) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "you already have access to this gallery"})
		return
	}

	profile, err := identity.Default.LookupByEmail(inviteEmail)
	if err != nil {
		log.Printf("identity lookup %s: %v", inviteEmail, err)
	}
	var inviteeUserID *string
	if profile != nil {
		if profile.UserID == gallery.OwnerUserID {
			c.JSON(http.StatusBadRequest, gin.H{"error": "that user owns this gallery"})
			return
		}
		inviteeUserID = &profile.UserID
	}

	invite, err := models.UpsertInvite(gallery.ID, inviteEmail, inviteRole, inviteeUserID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, DBError1Response)
		return
	}

	if invite.UserID != nil {
		if err := email.SendInvite(inviteEmail, inviter.DisplayName(), gallery.Title, gallery.Slug); err != nil {
			log.Printf("invite email to %s: %v", inviteEmail, err)
		}
		if _, err := models.RecordEvent(models.NotificationEvent{
			RecipientUserID: *invite.UserID,
			ActorID:         userID,
			GalleryID:       gallery.ID,
			Type:            models.NotificationTypeGalleryInvite,
			TargetID:        strconv.FormatUint(gallery.ID, 10),
			Data: gin.H{
				"actor_name":    inviter.DisplayName(),
				"gallery_title": gallery.Title,
				"gallery_slug":  gallery.Slug,
				"role":          invite.Role,
			},
		}); err != nil {
			log.Printf("invite notification: %v", err)
		}
	} else if invite.Token != nil {
		if err := email.SendMagicLink(inviteEmail, inviter.DisplayName(), gallery.Title, gallery.Slug, *invite.Token); err != nil {
			log.Printf("magic link email to %s: %v", inviteEmail, err)
		}
	}

	if err := models.BumpContact(userID, inviteEmail, inviteeUserID); err != nil {
		log.Printf("contact bump: %v", err)
	}
	c.JSON(http.StatusOK, gin.H{
		"email":   invite.Email,
		"role":    invite.Role,
		"pending": invite.Token != nil,
	})
}

func InviteList(c *gin.Context, userID string) {
	gallery, role, ok := loadGallery(c)
	if !ok {
		return
	}
	if !models.CanManage(role) {
		forbidden(c)
		return
	}
	collaborators, err := models.ListCollaborators(gallery)
	if err != nil {
		c.JSON(http.StatusInternalServerError, DBError1Response)
		return
	}
	c.JSON(http.StatusOK, gin.H{"collaborators": collaborators})
}

func InviteUpdate(c *gin.Context, userID string) {
	gallery, role, ok := loadGallery(c)
	if !ok {
		return
	}
	if !models.CanManage(role) {
		forbidden(c)
		return
	}
	r := InviteUpdateRequest{}
	if err := c.ShouldBindJSON(&r); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	inviteRole := models.Role(r.Role)
	if !models.ValidInviteRole(inviteRole) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "role must be Edit, Comment or View"})
		return
	}
	err := models.UpdateInviteRole(gallery.ID, r.Email, inviteRole)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, NotFoundResponse)
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, DBError1Response)
		return
	}
	c.JSON(http.StatusOK, OKResponse)
}

func InviteRevoke(c *gin.Context, userID string) {
	gallery, role, ok := loadGallery(c)
	if !ok {
		return
	}
	if !models.CanManage(role) {
		forbidden(c)
		return
	}
	r := InviteRevokeRequest{}
	if err := c.ShouldBindJSON(&r); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	err := models.RevokeInvite(gallery.ID, r.Email)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, NotFoundResponse)
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, DBError1Response)
		return
	}
	c.JSON(http.StatusOK, OKResponse)
}

// VerifyMagicLink claims a pending invite after the invitee signed up.
// The caller must hold a fresh bearer token from the identity provider
func VerifyMagicLink(c *gin.Context, userID string) {
	r := MagicLinkRequest{}
	if err := c.ShouldBindJSON(&r); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	invite, err := models.ClaimInvite(r.Token, userID)
	if errors.Is(err, models.ErrInvalidToken) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, DBError1Response)
		return
	}
	// Warm the profile cache so the new collaborator renders right away
	models.EnsureCachedUser(userID)
	c.JSON(http.StatusOK, gin.H{
		"gallery_slug": invite.Gallery.Slug,
		"role":         invite.Role,
	})
}

type ContactInfo struct {
	Email       string `json:"email"`
	Name        string `json:"name,omitempty"`
	ImageURL    string `json:"image_url,omitempty"`
	InviteCount int    `json:"invite_count"`
}

// ContactList powers the invite box autocomplete
func ContactList(c *gin.Context, userID string) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	contacts, err := models.ContactsFor(userID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, DBError1Response)
		return
	}
	result := []ContactInfo{}
	for _, contact := range contacts {
		info := ContactInfo{
			Email:       contact.ContactEmail,
			InviteCount: contact.InviteCount,
		}
		if contact.ContactUserID != nil {
			if cached, err := models.CachedUserByID(*contact.ContactUserID); err == nil {
				info.Name = cached.DisplayName()
				info.ImageURL = cached.ImageURL
			}
		}
		result = append(result, info)
	}
	c.JSON(http.StatusOK, gin.H{"contacts": result})
}
