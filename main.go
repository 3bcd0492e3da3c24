package main

import (
	"log"
	"strings"
	"time"

	"gallery/auth"
	"gallery/config"
	"gallery/db"
	"gallery/handlers"
	"gallery/models"
	"gallery/realtime"
	"gallery/storage"
	"gallery/utils"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-contrib/sessions"
	gormsessions "github.com/gin-contrib/sessions/gorm"
	"github.com/gin-gonic/autotls"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

const (
	sessionCookieName     = "gallery_session"
	sessionExpirationTime = 365 * 86400 // 1 year
)

func main() {
	db.Init()
	models.Init()
	storage.Init()
	auth.Init()

	var rdb *redis.Client
	if config.REDIS_ADDR != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     config.REDIS_ADDR,
			Password: config.REDIS_PASSWORD,
		})
	}
	manager := realtime.Init(rdb)
	defer manager.Dispose()
	models.NotifyPublisher = manager.NotifyUser

	router := gin.Default()
	_ = router.SetTrustedProxies([]string{})
	if config.DEBUG_MODE {
		router.Use(utils.ErrorLogMiddleware)
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "PUT", "POST", "PATCH", "DELETE"},
		AllowHeaders:     []string{"Origin", "Authorization", "Content-Type", "Idempotency-Key"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           30 * 24 * time.Hour,
	}))

	cookieStore := gormsessions.NewStore(db.Instance, true, []byte(config.SESSION_KEY))
	cookieStore.Options(sessions.Options{MaxAge: sessionExpirationTime})
	router.Use(sessions.Sessions(sessionCookieName, cookieStore))
	if !config.DEBUG_MODE {
		router.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/api/files", "/api/ws"})))
	}
	router.Use((&utils.CacheRouter{CacheTime: utils.CacheNoCache}).Handler()) // No cache by default, individual end-points can override that
	router.Use(auth.Middleware)

	// Routes open to guests - role checks happen inside the handlers
	router.POST("/api/galleries", handlers.GalleryCreate)
	router.GET("/api/galleries/:slug", handlers.GalleryGet)
	router.PATCH("/api/galleries/:slug/title", handlers.GalleryRename)
	router.PATCH("/api/galleries/:slug/visibility", handlers.GalleryVisibility)
	router.PATCH("/api/galleries/:slug/folder", handlers.GalleryMove)
	router.DELETE("/api/galleries/:slug", handlers.GalleryDelete)
	router.POST("/api/galleries/:slug/images", handlers.ImagePresign)
	router.POST("/api/galleries/:slug/reorder", handlers.ImageReorder)
	router.POST("/api/galleries/:slug/images/delete", handlers.ImageDelete)
	router.GET("/api/images/:imageID/comments", handlers.CommentList)
	router.PUT("/api/upload/direct", handlers.DirectUpload)
	router.GET("/api/files/*key", handlers.FileServe)
	router.GET("/api/ws", handlers.WebSocket)

	// Routes that need a verified account
	authRouter := &auth.Router{Base: router}
	authRouter.GET("/api/galleries", handlers.GalleryList)
	authRouter.POST("/api/galleries/:slug/restore", handlers.GalleryRestore)
	authRouter.DELETE("/api/galleries/:slug/permanent", handlers.GalleryPurge)
	authRouter.POST("/api/images/:imageID/star", handlers.StarToggle)
	authRouter.DELETE("/api/images/:imageID/star", handlers.StarRemove)
	authRouter.GET("/api/galleries/:slug/stars", handlers.StarList)
	authRouter.POST("/api/images/:imageID/comments", handlers.CommentCreate)
	authRouter.PUT("/api/comments/:commentID", handlers.CommentUpdate)
	authRouter.PUT("/api/comments/:commentID/position", handlers.CommentUpdate)
	authRouter.DELETE("/api/comments/:commentID", handlers.CommentDelete)
	authRouter.POST("/api/comments/:commentID/reactions", handlers.CommentReact)
	authRouter.POST("/api/galleries/:slug/invites", handlers.InviteCreate)
	authRouter.GET("/api/galleries/:slug/invites", handlers.InviteList)
	authRouter.PATCH("/api/galleries/:slug/invites", handlers.InviteUpdate)
	authRouter.DELETE("/api/galleries/:slug/invites", handlers.InviteRevoke)
	authRouter.POST("/api/auth/verify-magic-link", handlers.VerifyMagicLink)
	authRouter.GET("/api/contacts", handlers.ContactList)
	authRouter.GET("/api/notifications", handlers.NotificationList)
	authRouter.POST("/api/notifications/mark-all-read", handlers.NotificationMarkAllRead)

	var err error
	if config.TLS_DOMAINS != "" {
		err = autotls.Run(router, strings.Split(config.TLS_DOMAINS, ",")...)
	} else {
		err = router.Run(config.BIND_ADDRESS)
	}
	log.Fatalf("Server stopped: %v", err)
}
