package handlers

import (
	"net/http"
	"strconv"

	"gallery/models"

	"github.com/gin-gonic/gin"
)

// NotificationList returns the recipient's aggregated notifications,
// newest first, plus the unseen badge count
func NotificationList(c *gin.Context, userID string) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	notifications, err := models.NotificationsFor(userID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, DBError1Response)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"notifications": notifications,
		"unseen_count":  models.UnseenCount(userID),
	})
}

func NotificationMarkAllRead(c *gin.Context, userID string) {
	if err := models.MarkAllSeen(userID); err != nil {
		c.JSON(http.StatusInternalServerError, DBError1Response)
		return
	}
	c.JSON(http.StatusOK, OKResponse)
}
