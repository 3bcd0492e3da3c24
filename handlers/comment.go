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

	"github.com/gin-gonic/gin"
)

type CommentCreateRequest struct {
	Content   string  `json:"content" binding:"required"`
	ParentID  *uint64 `json:"parent_id"`
	XPosition float64 `json:"x_position" binding:"min=0,max=100"`
	YPosition float64 `json:"y_position" binding:"min=0,max=100"`
}

type CommentUpdateRequest struct {
	Content   *string  `json:"content"`
	XPosition *float64 `json:"x_position" binding:"omitempty,min=0,max=100"`
	YPosition *float64 `json:"y_position" binding:"omitempty,min=0,max=100"`
}

type CommentReactionRequest struct {
	Emoji string `json:"emoji" binding:"required,max=20"`
}

type CommentInfo struct {
	ID           uint64                   `json:"id"`
	ParentID     *uint64                  `json:"parent_id"`
	Content      string                   `json:"content"`
	XPosition    float64                  `json:"x_position"`
	YPosition    float64                  `json:"y_position"`
	UserID       string                   `json:"user_id"`
	UserName     string                   `json:"user_name"`
	UserImageURL string                   `json:"user_image_url"`
	UserColor    string                   `json:"user_color"`
	CreatedAt    int64                    `json:"created_at"`
	Reactions    []models.CommentReaction `json:"reactions"`
}

// CommentCreate adds a point-anchored comment or a reply. Replies
// inherit the parent's anchor and cannot be nested further
func CommentCreate(c *gin.Context, userID string) {
	gallery, img, role, ok := loadImage(c)
	if !ok {
		return
	}
	if !models.CanComment(role) {
		forbidden(c)
		return
	}
	r := CommentCreateRequest{}
	if err := c.ShouldBindJSON(&r); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	author := models.EnsureCachedUser(userID)
	comment := models.Comment{
		ImageID:      img.ID,
		ParentID:     r.ParentID,
		Content:      r.Content,
		XPosition:    r.XPosition,
		YPosition:    r.YPosition,
		UserID:       userID,
		UserName:     author.DisplayName(),
		UserImageURL: author.ImageURL,
		CreatedAt:    time.Now().Unix(),
		UpdatedAt:    time.Now().Unix(),
	}
	err := models.CreateComment(&comment)
	if errors.Is(err, models.ErrNestedReply) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, DBError1Response)
		return
	}

	notifyForComment(gallery, img, &comment, &author)
	publishGalleryEvent(gallery.Slug, "comment-added", gin.H{
		"image_id":   img.ID,
		"comment_id": comment.ID,
	})
	c.JSON(http.StatusOK, commentInfo(&comment, nil))
}

// A reply notifies the parent comment's author; a top-level comment
// notifies the gallery's managers
func notifyForComment(gallery *models.Gallery, img *models.Image, comment *models.Comment, author *models.CachedUser) {
	data := gin.H{
		"actor_name":    author.DisplayName(),
		"gallery_title": gallery.Title,
		"image_id":      img.ID,
		"comment_id":    comment.ID,
		"excerpt":       excerpt(comment.Content, 80),
	}
	if comment.ParentID != nil {
		var parent models.Comment
		if db.Instance.First(&parent, *comment.ParentID).Error != nil {
			return
		}
		if parent.UserID == comment.UserID {
			return
		}
		event := models.NotificationEvent{
			RecipientUserID: parent.UserID,
			ActorID:         comment.UserID,
			GalleryID:       gallery.ID,
			Type:            models.NotificationTypeCommentReply,
			TargetID:        strconv.FormatUint(parent.ID, 10),
			Data:            data,
		}
		if _, err := models.RecordEvent(event); err != nil {
			log.Printf("record reply notification: %v", err)
		}
		return
	}
	models.FanOutToManagers(gallery, models.NotificationEvent{
		ActorID:   comment.UserID,
		GalleryID: gallery.ID,
		Type:      models.NotificationTypeComment,
		TargetID:  strconv.FormatUint(img.ID, 10),
		Data:      data,
	})
}

func excerpt(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "…"
}

func commentInfo(comment *models.Comment, reactions []models.CommentReaction) CommentInfo {
	author := models.EnsureCachedUser(comment.UserID)
	if reactions == nil {
		reactions = []models.CommentReaction{}
	}
	return CommentInfo{
		ID:           comment.ID,
		ParentID:     comment.ParentID,
		Content:      comment.Content,
		XPosition:    comment.XPosition,
		YPosition:    comment.YPosition,
		UserID:       comment.UserID,
		UserName:     comment.UserName,
		UserImageURL: comment.UserImageURL,
		UserColor:    author.Color,
		CreatedAt:    comment.CreatedAt,
		Reactions:    reactions,
	}
}

func CommentList(c *gin.Context) {
	_, img, role, ok := loadImage(c)
	if !ok {
		return
	}
	if !models.CanView(role) {
		forbidden(c)
		return
	}
	comments, reactions, err := models.ImageComments(img.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, DBError1Response)
		return
	}
	result := []CommentInfo{}
	for i := range comments {
		result = append(result, commentInfo(&comments[i], reactions[comments[i].ID]))
	}
	c.JSON(http.StatusOK, gin.H{"comments": result})
}

// loadComment resolves the :commentID param up to its gallery and the
// caller's role
func loadComment(c *gin.Context) (*models.Gallery, *models.Comment, models.Role, bool) {
	commentID, err := strconv.ParseUint(c.Param("commentID"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid comment id"})
		return nil, nil, models.RoleNone, false
	}
	var comment models.Comment
	if err := db.Instance.First(&comment, commentID).Error; err != nil {
		c.JSON(http.StatusNotFound, NotFoundResponse)
		return nil, nil, models.RoleNone, false
	}
	var img models.Image
	if err := db.Instance.First(&img, comment.ImageID).Error; err != nil {
		c.JSON(http.StatusNotFound, NotFoundResponse)
		return nil, nil, models.RoleNone, false
	}
	var gallery models.Gallery
	if err := db.Instance.First(&gallery, img.GalleryID).Error; err != nil {
		c.JSON(http.StatusNotFound, NotFoundResponse)
		return nil, nil, models.RoleNone, false
	}
	role := models.ResolveRole(&gallery, auth.CurrentUserID(c))
	return &gallery, &comment, role, true
}

// CommentUpdate moves or rewords a comment. Author-only
func CommentUpdate(c *gin.Context, userID string) {
	gallery, comment, _, ok := loadComment(c)
	if !ok {
		return
	}
	if comment.UserID != userID {
		forbidden(c)
		return
	}
	r := CommentUpdateRequest{}
	if err := c.ShouldBindJSON(&r); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	updates := map[string]interface{}{"updated_at": time.Now().Unix()}
	if r.Content != nil {
		updates["content"] = *r.Content
	}
	if r.XPosition != nil {
		updates["x_position"] = *r.XPosition
	}
	if r.YPosition != nil {
		updates["y_position"] = *r.YPosition
	}
	if err := db.Instance.Model(comment).Updates(updates).Error; err != nil {
		c.JSON(http.StatusInternalServerError, DBError1Response)
		return
	}
	publishGalleryEvent(gallery.Slug, "comment-added", gin.H{
		"image_id":   comment.ImageID,
		"comment_id": comment.ID,
		"updated":    true,
	})
	c.JSON(http.StatusOK, OKResponse)
}

// CommentDelete allows the author, plus anyone who can manage the
// gallery
func CommentDelete(c *gin.Context, userID string) {
	gallery, comment, role, ok := loadComment(c)
	if !ok {
		return
	}
	if comment.UserID != userID && !models.CanManage(role) {
		forbidden(c)
		return
	}
	if err := models.DeleteComment(comment); err != nil {
		c.JSON(http.StatusInternalServerError, DBError1Response)
		return
	}
	publishGalleryEvent(gallery.Slug, "comment-added", gin.H{
		"image_id":   comment.ImageID,
		"comment_id": comment.ID,
		"deleted":    true,
	})
	c.JSON(http.StatusOK, OKResponse)
}

func CommentReact(c *gin.Context, userID string) {
	gallery, comment, role, ok := loadComment(c)
	if !ok {
		return
	}
	if !models.CanComment(role) {
		forbidden(c)
		return
	}
	r := CommentReactionRequest{}
	if err := c.ShouldBindJSON(&r); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	present, err := models.ToggleReaction(comment.ID, userID, r.Emoji)
	if err != nil {
		c.JSON(http.StatusInternalServerError, DBError1Response)
		return
	}
	publishGalleryEvent(gallery.Slug, "comment-added", gin.H{
		"image_id":   comment.ImageID,
		"comment_id": comment.ID,
		"reaction":   r.Emoji,
	})
	c.JSON(http.StatusOK, gin.H{"reacted": present})
}
