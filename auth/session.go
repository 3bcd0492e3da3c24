package auth

import (
	"strings"

	"gallery/utils"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
)

const guestIDKey = "guest_id"

// GuestID returns the anonymous id from the cookie session, "" when
// the visitor never created a guest gallery
func GuestID(c *gin.Context) string {
	session := sessions.Default(c)
	id := session.Get(guestIDKey)
	if id == nil {
		return ""
	}
	return id.(string)
}

// EnsureGuestID mints and persists an anonymous id on first use, so a
// guest keeps control of the galleries they created from this browser
func EnsureGuestID(c *gin.Context) string {
	if id := GuestID(c); id != "" {
		return id
	}
	id := "guest|" + utils.Rand16BytesToBase62()
	session := sessions.Default(c)
	session.Set(guestIDKey, id)
	if err := session.Save(); err != nil {
		return ""
	}
	return id
}

func IsGuestID(userID string) bool {
	return strings.HasPrefix(userID, "guest|")
}
