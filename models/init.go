package models

import (
	"gallery/db"
)

func Init() {
	db.Instance.AutoMigrate(&Gallery{})
	db.Instance.AutoMigrate(&Folder{})
	db.Instance.AutoMigrate(&Image{})
	db.Instance.AutoMigrate(&Invite{})
	db.Instance.AutoMigrate(&Contact{})
	db.Instance.AutoMigrate(&Comment{})
	db.Instance.AutoMigrate(&CommentReaction{})
	db.Instance.AutoMigrate(&Star{})
	db.Instance.AutoMigrate(&Notification{})
	db.Instance.AutoMigrate(&CachedUser{})
}
