package handlers

import (
	"log"
	"net/http"
	"sync"
	"time"

	"gallery/auth"
	"gallery/models"
	"gallery/realtime"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 50 * time.Second
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Client messages on the socket. Everything the client pushes is one
// of join / leave / cursor
type wsClientMessage struct {
	Action string  `json:"action"`
	Slug   string  `json:"slug,omitempty"`
	X      float64 `json:"x,omitempty"`
	Y      float64 `json:"y,omitempty"`
}

// WebSocket is the single realtime endpoint: one socket per tab
// carries presence, cursors, gallery events and private notifications
func WebSocket(c *gin.Context) {
	userID := auth.CurrentUserID(c)
	if userID == "" {
		userID = auth.EnsureGuestID(c)
	}
	if userID == "" || realtime.Default == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "realtime unavailable"})
		return
	}
	conn, err := wsUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("websocket upgrade: %v", err)
		return
	}
	defer conn.Close()

	// gorilla allows one concurrent writer only
	var writeMutex sync.Mutex
	client := &realtime.ConnectedClient{
		UserID: userID,
		Send: func(data []byte) bool {
			writeMutex.Lock()
			defer writeMutex.Unlock()
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			return conn.WriteMessage(websocket.TextMessage, data) == nil
		},
	}
	unregister := realtime.Default.Register(userID, client)
	defer unregister()

	cached := models.EnsureCachedUser(userID)
	presence := realtime.Presence{
		UserID:   userID,
		Name:     cached.DisplayName(),
		Color:    cached.Color,
		ImageURL: cached.ImageURL,
	}
	if presence.Name == "" {
		presence.Name = "Guest"
	}

	conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		ticker := time.NewTicker(wsPingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				writeMutex.Lock()
				conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
				err := conn.WriteMessage(websocket.PingMessage, nil)
				writeMutex.Unlock()
				if err != nil {
					return
				}
			case <-stop:
				return
			}
		}
	}()

	// Slug of the room this socket has joined, for cursor attribution
	joinedSlug := ""
	for {
		var message wsClientMessage
		if err := conn.ReadJSON(&message); err != nil {
			break
		}
		switch message.Action {
		case "join":
			if !canJoinRoom(message.Slug, userID) {
				continue
			}
			joinedSlug = message.Slug
			realtime.Default.Join(message.Slug, presence, client)
		case "leave":
			if joinedSlug == message.Slug {
				joinedSlug = ""
			}
			realtime.Default.Leave(message.Slug, client)
		case "cursor":
			if joinedSlug == "" {
				continue
			}
			realtime.Default.UpdateCursor(realtime.Cursor{
				UserID:      userID,
				Name:        presence.Name,
				Color:       presence.Color,
				X:           message.X,
				Y:           message.Y,
				GallerySlug: joinedSlug,
			})
		}
	}
}

// canJoinRoom applies the same access rule as the gallery page itself
func canJoinRoom(slug, userID string) bool {
	if slug == "" {
		return false
	}
	gallery, err := models.GalleryBySlug(slug)
	if err != nil {
		return false
	}
	return models.CanView(models.ResolveRole(&gallery, userID))
}
