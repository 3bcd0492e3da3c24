package models

import (
	"errors"
	"log"
	"math/rand"
	"strings"
	"time"

	"gallery/db"
	"gallery/identity"

	"gorm.io/gorm"
)

// Collaborators rely on stable per-user coloring for cursors and
// avatars, so a color is assigned once and never changes
var colorPalette = []string{
	"#F87171", "#FB923C", "#FBBF24", "#A3E635", "#34D399",
	"#22D3EE", "#60A5FA", "#A78BFA", "#F472B6", "#94A3B8",
}

// CachedUser mirrors identity-provider profile fields locally so
// renders don't round-trip to the provider
type CachedUser struct {
	UserID    string `gorm:"type:varchar(100);primaryKey"`
	FirstName string `gorm:"type:varchar(100)"`
	LastName  string `gorm:"type:varchar(100)"`
	Email     string `gorm:"type:varchar(150);index"`
	ImageURL  string `gorm:"type:varchar(500)"`
	Color     string `gorm:"type:varchar(10)"`
	UpdatedAt int64
}

func (u *CachedUser) DisplayName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

func CachedUserByID(userID string) (u CachedUser, err error) {
	err = db.Instance.Where("user_id = ?", userID).First(&u).Error
	return
}

// EnsureCachedUser returns the mirror row, populating it from the
// identity provider on first sight. Only the profile fields are
// refreshed afterwards - the color, once assigned, is kept
func EnsureCachedUser(userID string) CachedUser {
	var cached CachedUser
	err := db.Instance.Where("user_id = ?", userID).First(&cached).Error
	if err == nil {
		// Refresh opportunistically, at most once an hour
		if cached.UpdatedAt < time.Now().Add(-time.Hour).Unix() {
			go refreshCachedUser(userID)
		}
		return cached
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return CachedUser{UserID: userID}
	}
	cached = CachedUser{
		UserID: userID,
		Color:  colorPalette[rand.Intn(len(colorPalette))],
	}
	if profile, perr := identity.Default.FetchProfile(userID); perr == nil && profile != nil {
		cached.FirstName = profile.FirstName
		cached.LastName = profile.LastName
		cached.Email = profile.Email
		cached.ImageURL = profile.ImageURL
	}
	if err = db.Instance.Create(&cached).Error; err != nil {
		// Lost a race with a concurrent first-sight insert
		if db.Instance.Where("user_id = ?", userID).First(&cached).Error == nil {
			return cached
		}
		log.Printf("EnsureCachedUser(%s): %v", userID, err)
	}
	return cached
}

func refreshCachedUser(userID string) {
	profile, err := identity.Default.FetchProfile(userID)
	if err != nil || profile == nil {
		return
	}
	// Color deliberately left out of the update set
	db.Instance.Model(&CachedUser{}).Where("user_id = ?", userID).Updates(map[string]interface{}{
		"first_name": profile.FirstName,
		"last_name":  profile.LastName,
		"email":      profile.Email,
		"image_url":  profile.ImageURL,
		"updated_at": time.Now().Unix(),
	})
}
