package handlers

import (
	"errors"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"log"
	"net/http"
	"time"

	"gallery/auth"
	"gallery/db"
	"gallery/models"
	"gallery/storage"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type GalleryInfo struct {
	ID           uint64      `json:"id"`
	Slug         string      `json:"slug"`
	Title        string      `json:"title"`
	IsPublic     bool        `json:"is_public"`
	IsDraft      bool        `json:"is_draft"`
	FolderID     *uint64     `json:"folder_id"`
	ImageCount   int64       `json:"image_count"`
	ThumbnailURL string      `json:"thumbnail_url,omitempty"`
	CreatedAt    int64       `json:"created_at"`
	Role         models.Role `json:"role,omitempty"`
	IsOwner      bool        `json:"is_owner"`
}

type GalleryListRequest struct {
	Page  int `form:"page,default=1"`
	Limit int `form:"limit,default=20"`
}

type GalleryTitleRequest struct {
	Title string `json:"title" binding:"required"`
}

type GalleryVisibilityRequest struct {
	IsPublic bool `json:"is_public"`
}

type GalleryMoveRequest struct {
	FolderID *uint64 `json:"folder_id"`
}

func galleryInfo(gallery *models.Gallery, role models.Role) GalleryInfo {
	info := GalleryInfo{
		ID:        gallery.ID,
		Slug:      gallery.Slug,
		Title:     gallery.Title,
		IsPublic:  gallery.IsPublic,
		IsDraft:   gallery.IsDraft,
		FolderID:  gallery.FolderID,
		CreatedAt: gallery.CreatedAt,
		Role:      role,
		IsOwner:   role == models.RoleOwner,
	}
	db.Instance.Model(&models.Image{}).Where("gallery_id = ?", gallery.ID).Count(&info.ImageCount)
	// The thumbnail is simply the first image by position
	var first models.Image
	if db.Instance.Where("gallery_id = ?", gallery.ID).Order("position ASC").First(&first).Error == nil {
		info.ThumbnailURL, _ = first.GetDownloadURL()
	}
	return info
}

// GalleryList returns the caller's own galleries plus the ones shared
// with them, paginated
func GalleryList(c *gin.Context, userID string) {
	r := GalleryListRequest{}
	if err := c.ShouldBindQuery(&r); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if r.Limit > 100 {
		r.Limit = 100
	}
	var galleries []models.Gallery
	err := db.Instance.
		Joins("left join invites on invites.gallery_id = galleries.id and invites.user_id = ?", userID).
		Where("galleries.owner_user_id = ? OR invites.id IS NOT NULL", userID).
		Group("galleries.id").
		Order("galleries.created_at DESC").
		Offset((r.Page - 1) * r.Limit).
		Limit(r.Limit).
		Find(&galleries).Error
	if err != nil {
		c.JSON(http.StatusInternalServerError, DBError1Response)
		return
	}
	result := []GalleryInfo{}
	for i := range galleries {
		role := models.ResolveRole(&galleries[i], userID)
		result = append(result, galleryInfo(&galleries[i], role))
	}
	c.JSON(http.StatusOK, gin.H{"galleries": result, "page": r.Page})
}

// GalleryCreate also serves the anonymous flow: without a bearer token
// a guest session is minted and the gallery marked guest-upload, which
// keeps it publicly readable. Initial images may come along as
// multipart files - the single path where bytes pass this server
func GalleryCreate(c *gin.Context) {
	userID := auth.AuthenticatedUserID(c)
	guestUpload := false
	if userID == "" {
		userID = auth.EnsureGuestID(c)
		if userID == "" {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not establish guest session"})
			return
		}
		guestUpload = true
	}
	title := c.PostForm("title")
	if title == "" {
		title = "Untitled"
	}
	gallery := models.NewGallery(title, userID, guestUpload)
	gallery.IsDraft = c.PostForm("draft") == "1"
	if err := db.Instance.Create(&gallery).Error; err != nil {
		c.JSON(http.StatusInternalServerError, DBError1Response)
		return
	}

	form, err := c.MultipartForm()
	if err == nil && form != nil {
		store := storage.GetDefaultStorage()
		for _, file := range form.File["images"] {
			img := models.Image{
				GalleryID:        gallery.ID,
				BucketID:         store.GetBucket().ID,
				OriginalFilename: file.Filename,
				Position:         models.NextPosition(db.Instance, gallery.ID),
				CreatedAt:        time.Now().Unix(),
			}
			if err := db.Instance.Create(&img).Error; err != nil {
				continue
			}
			img.PublicID = img.GetKey()

			// Header-only decode for the stored dimensions
			if reader, err := file.Open(); err == nil {
				if cfg, _, err := image.DecodeConfig(reader); err == nil {
					img.Width = cfg.Width
					img.Height = cfg.Height
				}
				reader.Close()
			}
			reader, err := file.Open()
			if err != nil {
				db.Instance.Delete(&img)
				continue
			}
			_, err = store.Save(img.PublicID, reader)
			reader.Close()
			if err != nil {
				log.Printf("guest upload save: %v", err)
				db.Instance.Delete(&img)
				continue
			}
			db.Instance.Updates(&img)
		}
	}
	c.JSON(http.StatusOK, galleryInfo(&gallery, models.RoleOwner))
}

type galleryImageInfo struct {
	ID           uint64  `json:"id"`
	URL          string  `json:"url"`
	Filename     string  `json:"filename"`
	Width        int     `json:"width"`
	Height       int     `json:"height"`
	AspectRatio  float64 `json:"aspect_ratio"`
	Position     int     `json:"position"`
	CommentCount int     `json:"comment_count"`
	StarCount    int64   `json:"star_count"`
	IsStarred    bool    `json:"is_starred"`
}

// GalleryGet enforces the role resolver and returns the gallery with
// its ordered images
func GalleryGet(c *gin.Context) {
	gallery, role, ok := loadGallery(c)
	if !ok {
		return
	}
	if !models.CanView(role) {
		forbidden(c)
		return
	}
	userID := auth.CurrentUserID(c)
	if role == models.RoleOwner {
		db.Instance.Model(gallery).Update("last_viewed_at", time.Now().Unix())
	}
	images, err := models.GalleryImages(gallery.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, DBError1Response)
		return
	}
	result := []galleryImageInfo{}
	for i := range images {
		url, _ := images[i].GetDownloadURL()
		result = append(result, galleryImageInfo{
			ID:           images[i].ID,
			URL:          url,
			Filename:     images[i].OriginalFilename,
			Width:        images[i].Width,
			Height:       images[i].Height,
			AspectRatio:  images[i].AspectRatio(),
			Position:     images[i].Position,
			CommentCount: images[i].CommentCount,
			StarCount:    models.StarCount(images[i].ID),
			IsStarred:    userID != "" && models.IsStarred(userID, images[i].ID),
		})
	}
	info := galleryInfo(gallery, role)
	c.JSON(http.StatusOK, gin.H{
		"gallery":  info,
		"images":   result,
		"role":     role,
		"is_owner": role == models.RoleOwner,
	})
}

func requireManage(c *gin.Context) (*models.Gallery, bool) {
	gallery, role, ok := loadGallery(c)
	if !ok {
		return nil, false
	}
	if !models.CanManage(role) {
		forbidden(c)
		return nil, false
	}
	return gallery, true
}

func GalleryRename(c *gin.Context) {
	gallery, ok := requireManage(c)
	if !ok {
		return
	}
	r := GalleryTitleRequest{}
	if err := c.ShouldBindJSON(&r); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := db.Instance.Model(gallery).Update("title", r.Title).Error; err != nil {
		c.JSON(http.StatusInternalServerError, DBError1Response)
		return
	}
	publishGalleryEvent(gallery.Slug, "gallery-updated", gin.H{"title": r.Title})
	c.JSON(http.StatusOK, OKResponse)
}

func GalleryVisibility(c *gin.Context) {
	gallery, ok := requireManage(c)
	if !ok {
		return
	}
	r := GalleryVisibilityRequest{}
	if err := c.ShouldBindJSON(&r); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if gallery.GuestUpload && !r.IsPublic {
		c.JSON(http.StatusBadRequest, gin.H{"error": "guest galleries are always public"})
		return
	}
	if err := db.Instance.Model(gallery).Update("is_public", r.IsPublic).Error; err != nil {
		c.JSON(http.StatusInternalServerError, DBError1Response)
		return
	}
	c.JSON(http.StatusOK, OKResponse)
}

func GalleryMove(c *gin.Context) {
	gallery, ok := requireManage(c)
	if !ok {
		return
	}
	r := GalleryMoveRequest{}
	if err := c.ShouldBindJSON(&r); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if r.FolderID != nil {
		var folder models.Folder
		if err := db.Instance.First(&folder, *r.FolderID).Error; err != nil {
			c.JSON(http.StatusNotFound, NotFoundResponse)
			return
		}
		if folder.OwnerUserID != gallery.OwnerUserID {
			forbidden(c)
			return
		}
	}
	if err := db.Instance.Model(gallery).Update("folder_id", r.FolderID).Error; err != nil {
		c.JSON(http.StatusInternalServerError, DBError1Response)
		return
	}
	c.JSON(http.StatusOK, OKResponse)
}

// GalleryDelete is a soft delete - the gallery moves to the trash and
// can be restored until it is purged
func GalleryDelete(c *gin.Context) {
	gallery, role, ok := loadGallery(c)
	if !ok {
		return
	}
	if role != models.RoleOwner {
		forbidden(c)
		return
	}
	if err := db.Instance.Delete(gallery).Error; err != nil {
		c.JSON(http.StatusInternalServerError, DBError1Response)
		return
	}
	c.JSON(http.StatusOK, OKResponse)
}

func GalleryRestore(c *gin.Context, userID string) {
	gallery, err := models.DeletedGalleryBySlug(c.Param("slug"), userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, NotFoundResponse)
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, DBError1Response)
		return
	}
	if err := db.Instance.Unscoped().Model(&gallery).Update("deleted_at", nil).Error; err != nil {
		c.JSON(http.StatusInternalServerError, DBError2Response)
		return
	}
	c.JSON(http.StatusOK, OKResponse)
}

// GalleryPurge permanently erases a trashed gallery, its rows and its
// stored objects
func GalleryPurge(c *gin.Context, userID string) {
	gallery, err := models.DeletedGalleryBySlug(c.Param("slug"), userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, NotFoundResponse)
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, DBError1Response)
		return
	}
	images, err := models.PurgeGallery(&gallery)
	if err != nil {
		c.JSON(http.StatusInternalServerError, DBError2Response)
		return
	}
	for i := range images {
		bucket := storage.Bucket{ID: images[i].BucketID}
		if db.Instance.First(&bucket).Error != nil {
			continue
		}
		if store := storage.StorageFrom(&bucket); store != nil {
			if err := store.Delete(images[i].PublicID); err != nil {
				log.Printf("purge object %s: %v", images[i].PublicID, err)
			}
		}
	}
	c.JSON(http.StatusOK, OKResponse)
}
