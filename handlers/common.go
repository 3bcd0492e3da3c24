package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"gallery/auth"
	"gallery/models"
	"gallery/realtime"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type Response struct {
	Error string `json:"error"`
}

var (
	// Predefined errors
	OKResponse       = Response{}
	NotFoundResponse = Response{"not found"}
	DBError1Response = Response{"DB Error 1"}
	DBError2Response = Response{"DB Error 2"}
)

// forbidden tells an existing-but-inaccessible gallery apart from a
// missing one: 403 with is_private everywhere, 404 only for slugs that
// truly don't resolve. The client shows a "request access" screen on
// is_private
func forbidden(c *gin.Context) {
	c.JSON(http.StatusForbidden, gin.H{
		"error":         "access denied",
		"is_private":    true,
		"requires_auth": auth.AuthenticatedUserID(c) == "",
	})
}

// loadGallery resolves the :slug param and the caller's role on it
func loadGallery(c *gin.Context) (*models.Gallery, models.Role, bool) {
	gallery, err := models.GalleryBySlug(c.Param("slug"))
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, NotFoundResponse)
		return nil, models.RoleNone, false
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, DBError1Response)
		return nil, models.RoleNone, false
	}
	role := models.ResolveRole(&gallery, auth.CurrentUserID(c))
	return &gallery, role, true
}

// publishGalleryEvent pushes a domain event (image-uploaded,
// image-starred, comment-added, gallery-updated) to everyone with the
// gallery open, so their clients re-fetch
func publishGalleryEvent(slug, kind string, data interface{}) {
	if realtime.Default == nil {
		return
	}
	raw, err := json.Marshal(data)
	if err != nil {
		log.Printf("publishGalleryEvent marshal: %v", err)
		return
	}
	payload, err := json.Marshal(realtime.Event{Kind: kind, Slug: slug, Data: raw})
	if err != nil {
		return
	}
	realtime.Default.PublishGallery(slug, payload)
}
