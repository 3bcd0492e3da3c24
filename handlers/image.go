package handlers

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"gallery/auth"
	"gallery/db"
	"gallery/models"
	"gallery/storage"
	"gallery/utils"

	"github.com/gin-gonic/gin"
	cmap "github.com/orcaman/concurrent-map/v2"
)

// Recently seen Idempotency-Key headers. A retried presign request
// with the same key gets 429 instead of a second batch of image rows
var recentUploadKeys = cmap.New[int64]()

const uploadKeyRetention = 10 * time.Minute

type ImagePresignRequest struct {
	Files []struct {
		Filename string `json:"filename" binding:"required"`
		MimeType string `json:"mime_type"`
		Width    int    `json:"width"`
		Height   int    `json:"height"`
	} `json:"files" binding:"required,min=1,max=100"`
}

type ImagePresignResponse struct {
	ID        uint64 `json:"id"`
	UploadURL string `json:"upload_url"`
	PublicURL string `json:"public_url"`
	Key       string `json:"key"`
}

type ImageReorderRequest struct {
	Order []uint64 `json:"order" binding:"required"`
	// Omitting the version skips the compare-and-swap; 0 is a real
	// version and must lose against a gallery already past it
	Version *uint64 `json:"version"`
}

type ImageDeleteRequest struct {
	ImageIDs []uint64 `json:"image_ids" binding:"required,min=1"`
}

func pruneUploadKeys() {
	cutoff := time.Now().Add(-uploadKeyRetention).Unix()
	for entry := range recentUploadKeys.IterBuffered() {
		if entry.Val < cutoff {
			recentUploadKeys.Remove(entry.Key)
		}
	}
}

// ImagePresign creates the DB rows for a batch of uploads and returns
// presigned URLs the client PUTs the bytes to directly. The server
// never sees the file contents on this path
func ImagePresign(c *gin.Context) {
	gallery, role, ok := loadGallery(c)
	if !ok {
		return
	}
	if !models.CanManage(role) && !gallery.GuestUpload {
		forbidden(c)
		return
	}
	idempotencyKey := c.GetHeader("Idempotency-Key")
	if idempotencyKey != "" && recentUploadKeys.Has(idempotencyKey) {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "duplicate upload request"})
		return
	}
	r := ImagePresignRequest{}
	if err := c.ShouldBindJSON(&r); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	store := storage.GetDefaultStorage()
	result := []ImagePresignResponse{}
	for _, file := range r.Files {
		img := models.Image{
			GalleryID:        gallery.ID,
			BucketID:         store.GetBucket().ID,
			OriginalFilename: file.Filename,
			Width:            file.Width,
			Height:           file.Height,
			Position:         models.NextPosition(db.Instance, gallery.ID),
			CreatedAt:        time.Now().Unix(),
		}
		if err := db.Instance.Create(&img).Error; err != nil {
			c.JSON(http.StatusInternalServerError, DBError1Response)
			return
		}
		img.PublicID = img.GetKey()
		if err := db.Instance.Updates(&img).Error; err != nil {
			c.JSON(http.StatusInternalServerError, DBError2Response)
			return
		}
		uploadURL, err := store.CreateUploadURL(img.PublicID, file.MimeType)
		if err != nil {
			log.Printf("presign %s: %v", img.PublicID, err)
			db.Instance.Delete(&img)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create upload URL"})
			return
		}
		publicURL, _ := img.GetDownloadURL()
		result = append(result, ImagePresignResponse{
			ID:        img.ID,
			UploadURL: uploadURL,
			PublicURL: publicURL,
			Key:       img.PublicID,
		})
	}
	// Recorded only now: a rejected request must stay retryable with
	// the same key
	if idempotencyKey != "" {
		recentUploadKeys.Set(idempotencyKey, time.Now().Unix())
		pruneUploadKeys()
	}
	publishGalleryEvent(gallery.Slug, "image-uploaded", gin.H{"count": len(result)})
	models.FanOutToManagers(gallery, models.NotificationEvent{
		Type:      models.NotificationTypeImageUploaded,
		ActorID:   auth.CurrentUserID(c),
		GalleryID: gallery.ID,
		TargetID:  strconv.FormatUint(gallery.ID, 10),
		Data:      gin.H{"count": len(result), "gallery_title": gallery.Title},
	})
	c.JSON(http.StatusOK, gin.H{"uploads": result})
}

// ImageReorder applies a full new ordering. A stale gallery version
// means another tab got there first; the client re-fetches and retries
func ImageReorder(c *gin.Context) {
	gallery, role, ok := loadGallery(c)
	if !ok {
		return
	}
	if !models.CanManage(role) {
		forbidden(c)
		return
	}
	r := ImageReorderRequest{}
	if err := c.ShouldBindJSON(&r); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if r.Version != nil {
		gallery.Version = *r.Version
	}
	err := models.ReorderImages(gallery, r.Order)
	if errors.Is(err, models.ErrStaleGallery) {
		c.JSON(http.StatusConflict, gin.H{"error": "gallery was modified, refresh and retry", "version": gallery.Version})
		return
	}
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	publishGalleryEvent(gallery.Slug, "gallery-updated", gin.H{"reordered": true, "version": gallery.Version})
	c.JSON(http.StatusOK, gin.H{"version": gallery.Version})
}

func ImageDelete(c *gin.Context) {
	gallery, role, ok := loadGallery(c)
	if !ok {
		return
	}
	if !models.CanManage(role) {
		forbidden(c)
		return
	}
	r := ImageDeleteRequest{}
	if err := c.ShouldBindJSON(&r); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	removed, err := models.DeleteImages(gallery, r.ImageIDs)
	if err != nil {
		c.JSON(http.StatusInternalServerError, DBError1Response)
		return
	}
	for i := range removed {
		bucket := storage.Bucket{ID: removed[i].BucketID}
		if db.Instance.First(&bucket).Error != nil {
			continue
		}
		if store := storage.StorageFrom(&bucket); store != nil {
			if err := store.Delete(removed[i].PublicID); err != nil {
				log.Printf("delete object %s: %v", removed[i].PublicID, err)
			}
		}
	}
	publishGalleryEvent(gallery.Slug, "gallery-updated", gin.H{"deleted": len(removed)})
	c.JSON(http.StatusOK, gin.H{"deleted": len(removed)})
}

// DirectUpload accepts file bytes for disk buckets, where no presigned
// remote URL exists. The key must belong to an image row created by a
// presign call
func DirectUpload(c *gin.Context) {
	key := c.Query("key")
	if key == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "key is required"})
		return
	}
	var img models.Image
	if err := db.Instance.Where("public_id = ?", key).First(&img).Error; err != nil {
		c.JSON(http.StatusNotFound, NotFoundResponse)
		return
	}
	// Keys are guessable, so writing needs the same permission the
	// presign that minted the key required
	var gallery models.Gallery
	if err := db.Instance.First(&gallery, img.GalleryID).Error; err != nil {
		c.JSON(http.StatusNotFound, NotFoundResponse)
		return
	}
	role := models.ResolveRole(&gallery, auth.CurrentUserID(c))
	if !models.CanManage(role) && !gallery.GuestUpload {
		forbidden(c)
		return
	}
	bucket := storage.Bucket{ID: img.BucketID}
	if err := db.Instance.First(&bucket).Error; err != nil {
		c.JSON(http.StatusInternalServerError, DBError1Response)
		return
	}
	store := storage.StorageFrom(&bucket)
	if store == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "storage unavailable"})
		return
	}
	size, err := store.Save(key, c.Request.Body)
	if err != nil {
		log.Printf("direct upload %s: %v", key, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not save file"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"size": size})
}

// FileServe streams a stored object for disk buckets
func FileServe(c *gin.Context) {
	key := c.Param("key")
	if len(key) > 0 && key[0] == '/' {
		key = key[1:]
	}
	var img models.Image
	if err := db.Instance.Where("public_id = ?", key).First(&img).Error; err != nil {
		c.JSON(http.StatusNotFound, NotFoundResponse)
		return
	}
	var gallery models.Gallery
	if err := db.Instance.First(&gallery, img.GalleryID).Error; err != nil {
		c.JSON(http.StatusNotFound, NotFoundResponse)
		return
	}
	role := models.ResolveRole(&gallery, auth.CurrentUserID(c))
	if !models.CanView(role) {
		forbidden(c)
		return
	}
	bucket := storage.Bucket{ID: img.BucketID}
	if err := db.Instance.First(&bucket).Error; err != nil {
		c.JSON(http.StatusInternalServerError, DBError1Response)
		return
	}
	store := storage.StorageFrom(&bucket)
	if store == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "storage unavailable"})
		return
	}
	// Keys are unique per image and the bytes behind one never change
	utils.CacheFor(c, 30*86400)
	store.Serve(key, c.Request, c.Writer)
}
