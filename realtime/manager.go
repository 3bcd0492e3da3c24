// Package realtime carries live updates between connected clients:
// per-user notification pushes, per-gallery presence/membership and
// cursor relays. Cross-instance fan-out goes through redis pub/sub;
// without redis every event is routed in-process, which is enough for
// a single node and for tests.
package realtime

import (
	"context"
	"log"
	"strings"

	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/redis/go-redis/v9"
)

const (
	galleryChannelPrefix = "presence-gallery-"
	userChannelPrefix    = "private-user-"
)

// Publisher abstracts the transport so tests can substitute a fake
type Publisher interface {
	Publish(channel string, payload []byte) error
}

// SendSocketFunc returns true if data was successfully sent
type SendSocketFunc func([]byte) bool

type ConnectedClient struct {
	UserID string
	Send   SendSocketFunc
}

// ConnectedClients is needed as a user may be connected more than once
type ConnectedClients []*ConnectedClient

type Manager struct {
	publisher Publisher
	pubsub    *redis.PubSub
	users     cmap.ConcurrentMap[string, ConnectedClients]
	rooms     cmap.ConcurrentMap[string, *Room]
	done      chan struct{}
}

// Default is set by Init in main; handlers use it unless one is
// injected explicitly
var Default *Manager

// Init builds the manager and starts its background loops. rdb may be
// nil for in-process delivery only
func Init(rdb *redis.Client) *Manager {
	m := &Manager{
		users: cmap.New[ConnectedClients](),
		rooms: cmap.New[*Room](),
		done:  make(chan struct{}),
	}
	if rdb != nil {
		m.publisher = &redisPublisher{rdb: rdb}
		m.pubsub = rdb.PSubscribe(context.Background(),
			galleryChannelPrefix+"*", userChannelPrefix+"*")
		go m.subscribeLoop()
	} else {
		m.publisher = &loopbackPublisher{m: m}
	}
	go m.sweepLoop()
	Default = m
	return m
}

func (m *Manager) Dispose() {
	close(m.done)
	if m.pubsub != nil {
		if err := m.pubsub.Close(); err != nil {
			log.Printf("closing redis pubsub: %v", err)
		}
	}
}

func (m *Manager) subscribeLoop() {
	channel := m.pubsub.Channel(redis.WithChannelSize(250))
	for {
		select {
		case message, ok := <-channel:
			if !ok {
				return
			}
			m.route(message.Channel, []byte(message.Payload))
		case <-m.done:
			return
		}
	}
}

// route delivers a bus message to the clients connected to this
// instance
func (m *Manager) route(channel string, payload []byte) {
	if strings.HasPrefix(channel, userChannelPrefix) {
		userID := strings.TrimPrefix(channel, userChannelPrefix)
		if clients, ok := m.users.Get(userID); ok {
			for _, client := range clients {
				client.Send(payload)
			}
		}
		return
	}
	if strings.HasPrefix(channel, galleryChannelPrefix) {
		slug := strings.TrimPrefix(channel, galleryChannelPrefix)
		m.routeToRoom(slug, payload)
	}
}

// NotifyUser pushes to every open tab of one user
func (m *Manager) NotifyUser(userID string, payload []byte) {
	if err := m.publisher.Publish(userChannelPrefix+userID, payload); err != nil {
		log.Printf("publish to user %s: %v", userID, err)
	}
}

// PublishGallery pushes a domain event to everyone viewing the gallery
func (m *Manager) PublishGallery(slug string, payload []byte) {
	if err := m.publisher.Publish(galleryChannelPrefix+slug, payload); err != nil {
		log.Printf("publish to gallery %s: %v", slug, err)
	}
}

func (m *Manager) addClient(userID string, client *ConnectedClient) {
	m.users.Upsert(userID, ConnectedClients{client}, func(exist bool, valueInMap, newValue ConnectedClients) ConnectedClients {
		if exist {
			return append(valueInMap, client)
		}
		return newValue
	})
}

func (m *Manager) removeClient(userID string, client *ConnectedClient) {
	m.users.Upsert(userID, ConnectedClients{}, func(exist bool, valueInMap, newValue ConnectedClients) ConnectedClients {
		if !exist {
			return newValue
		}
		for _, other := range valueInMap {
			if other == client {
				continue
			}
			newValue = append(newValue, other)
		}
		return newValue
	})
}

// Register attaches a websocket client for private pushes. The
// returned func detaches it and leaves any joined rooms
func (m *Manager) Register(userID string, client *ConnectedClient) func() {
	m.addClient(userID, client)
	return func() {
		m.removeClient(userID, client)
		for _, room := range m.rooms.Items() {
			room.Leave(m, client)
		}
	}
}

type redisPublisher struct {
	rdb *redis.Client
}

func (p *redisPublisher) Publish(channel string, payload []byte) error {
	return p.rdb.Publish(context.Background(), channel, payload).Err()
}

type loopbackPublisher struct {
	m *Manager
}

func (p *loopbackPublisher) Publish(channel string, payload []byte) error {
	p.m.route(channel, payload)
	return nil
}
