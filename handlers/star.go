package handlers

import (
	"net/http"
	"strconv"

	"gallery/auth"
	"gallery/db"
	"gallery/models"

	"github.com/gin-gonic/gin"
)

// loadImage resolves the :imageID param up to its gallery and the
// caller's role on it
func loadImage(c *gin.Context) (*models.Gallery, *models.Image, models.Role, bool) {
	imageID, err := strconv.ParseUint(c.Param("imageID"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid image id"})
		return nil, nil, models.RoleNone, false
	}
	var img models.Image
	if err := db.Instance.First(&img, imageID).Error; err != nil {
		c.JSON(http.StatusNotFound, NotFoundResponse)
		return nil, nil, models.RoleNone, false
	}
	var gallery models.Gallery
	if err := db.Instance.First(&gallery, img.GalleryID).Error; err != nil {
		c.JSON(http.StatusNotFound, NotFoundResponse)
		return nil, nil, models.RoleNone, false
	}
	role := models.ResolveRole(&gallery, auth.CurrentUserID(c))
	return &gallery, &img, role, true
}

// StarToggle flips the caller's star on an image. Starring notifies
// the gallery's managers; unstarring is silent
func StarToggle(c *gin.Context, userID string) {
	gallery, img, role, ok := loadImage(c)
	if !ok {
		return
	}
	if !models.CanStar(role) {
		forbidden(c)
		return
	}
	isStarred, err := models.ToggleStar(userID, img.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, DBError1Response)
		return
	}
	if isStarred {
		actor := models.EnsureCachedUser(userID)
		models.FanOutToManagers(gallery, models.NotificationEvent{
			ActorID:   userID,
			GalleryID: gallery.ID,
			Type:      models.NotificationTypeStar,
			TargetID:  strconv.FormatUint(img.ID, 10),
			Data: gin.H{
				"actor_name":    actor.DisplayName(),
				"gallery_title": gallery.Title,
				"image_id":      img.ID,
			},
		})
	}
	publishGalleryEvent(gallery.Slug, "image-starred", gin.H{
		"image_id":   img.ID,
		"star_count": models.StarCount(img.ID),
	})
	c.JSON(http.StatusOK, gin.H{
		"is_starred": isStarred,
		"star_count": models.StarCount(img.ID),
	})
}

// StarRemove is the explicit unstar: removing an absent star is a
// no-op, not an error
func StarRemove(c *gin.Context, userID string) {
	gallery, img, role, ok := loadImage(c)
	if !ok {
		return
	}
	if !models.CanStar(role) {
		forbidden(c)
		return
	}
	if models.IsStarred(userID, img.ID) {
		if _, err := models.ToggleStar(userID, img.ID); err != nil {
			c.JSON(http.StatusInternalServerError, DBError1Response)
			return
		}
		publishGalleryEvent(gallery.Slug, "image-starred", gin.H{
			"image_id":   img.ID,
			"star_count": models.StarCount(img.ID),
		})
	}
	c.JSON(http.StatusOK, gin.H{
		"is_starred": false,
		"star_count": models.StarCount(img.ID),
	})
}

func StarList(c *gin.Context, userID string) {
	gallery, role, ok := loadGallery(c)
	if !ok {
		return
	}
	if !models.CanView(role) {
		forbidden(c)
		return
	}
	var stars []models.Star
	err := db.Instance.
		Joins("join images on images.id = stars.image_id").
		Where("images.gallery_id = ? AND stars.user_id = ?", gallery.ID, userID).
		Find(&stars).Error
	if err != nil {
		c.JSON(http.StatusInternalServerError, DBError1Response)
		return
	}
	ids := []uint64{}
	for _, star := range stars {
		ids = append(ids, star.ImageID)
	}
	c.JSON(http.StatusOK, gin.H{"image_ids": ids})
}
