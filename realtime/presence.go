package realtime

import (
	"encoding/json"
	"time"

	cmap "github.com/orcaman/concurrent-map/v2"
)

const (
	// A cursor with no update for longer than CursorStaleAfter is
	// pruned on the next sweep. Staleness is the only disconnect
	// detection for cursors - there is no leave heartbeat
	CursorStaleAfter = 15 * time.Second
	SweepInterval    = 5 * time.Second
)

// Presence identifies a member of a gallery room, surfaced as avatar
// chips in the gallery header
type Presence struct {
	UserID   string `json:"user_id"`
	Name     string `json:"name"`
	Color    string `json:"color"`
	ImageURL string `json:"image_url,omitempty"`
}

type Cursor struct {
	UserID      string  `json:"user_id"`
	Name        string  `json:"name"`
	Color       string  `json:"color"`
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
	LastActive  int64   `json:"last_active"` // unix millis
	GallerySlug string  `json:"gallery_slug"`
}

// Event is the wire format on gallery and user channels
type Event struct {
	Kind   string          `json:"kind"`
	Slug   string          `json:"slug,omitempty"`
	User   *Presence       `json:"user,omitempty"`
	Users  []Presence      `json:"users,omitempty"`
	Cursor *Cursor         `json:"cursor,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
}

const (
	EventMemberJoined = "member-joined"
	EventMemberLeft   = "member-left"
	EventCursorUpdate = "cursor-update"
	EventRoomSnapshot = "room-snapshot"
)

type roomMember struct {
	client   *ConnectedClient
	presence Presence
}

// Room tracks who is currently viewing one gallery. Membership changes
// on explicit join/leave; cursors live and die by activity timestamps
type Room struct {
	slug    string
	members cmap.ConcurrentMap[string, *roomMember]
	cursors cmap.ConcurrentMap[string, Cursor]
}

func newRoom(slug string) *Room {
	return &Room{
		slug:    slug,
		members: cmap.New[*roomMember](),
		cursors: cmap.New[Cursor](),
	}
}

func (m *Manager) room(slug string) *Room {
	room := newRoom(slug)
	m.rooms.Upsert(slug, room, func(exist bool, valueInMap, newValue *Room) *Room {
		if exist {
			return valueInMap
		}
		return newValue
	})
	room, _ = m.rooms.Get(slug)
	return room
}

// Join is idempotent: rooms key members on user id, so the re-join a
// client emits on every reconnect is a no-op when already present
func (m *Manager) Join(slug string, presence Presence, client *ConnectedClient) {
	room := m.room(slug)
	_, existed := room.members.Get(presence.UserID)
	room.members.Set(presence.UserID, &roomMember{client: client, presence: presence})

	// Send the current membership to the joiner so its header chips
	// are right immediately
	snapshot := Event{Kind: EventRoomSnapshot, Slug: slug, Users: room.Members()}
	if payload, err := json.Marshal(snapshot); err == nil {
		client.Send(payload)
	}
	if existed {
		return
	}
	event := Event{Kind: EventMemberJoined, Slug: slug, User: &presence}
	if payload, err := json.Marshal(event); err == nil {
		m.PublishGallery(slug, payload)
	}
}

func (m *Manager) Leave(slug string, client *ConnectedClient) {
	if room, ok := m.rooms.Get(slug); ok {
		room.Leave(m, client)
	}
}

func (room *Room) Leave(m *Manager, client *ConnectedClient) {
	member, ok := room.members.Get(client.UserID)
	if !ok || member.client != client {
		return
	}
	room.members.Remove(client.UserID)
	room.cursors.Remove(client.UserID)
	event := Event{Kind: EventMemberLeft, Slug: room.slug, User: &member.presence}
	if payload, err := json.Marshal(event); err == nil {
		m.PublishGallery(room.slug, payload)
	}
}

// UpdateCursor relays a mouse position to the room. Receivers replace
// any prior entry for the same user - last write wins
func (m *Manager) UpdateCursor(cursor Cursor) {
	cursor.LastActive = time.Now().UnixMilli()
	event := Event{Kind: EventCursorUpdate, Slug: cursor.GallerySlug, Cursor: &cursor}
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}
	m.PublishGallery(cursor.GallerySlug, payload)
}

// Cursors returns the live cursor set for a gallery
func (m *Manager) Cursors(slug string) []Cursor {
	room, ok := m.rooms.Get(slug)
	if !ok {
		return nil
	}
	result := []Cursor{}
	for _, cursor := range room.cursors.Items() {
		result = append(result, cursor)
	}
	return result
}

func (room *Room) Members() []Presence {
	result := []Presence{}
	for _, member := range room.members.Items() {
		result = append(result, member.presence)
	}
	return result
}

// Members lists who is currently viewing the gallery
func (m *Manager) Members(slug string) []Presence {
	room, ok := m.rooms.Get(slug)
	if !ok {
		return []Presence{}
	}
	return room.Members()
}

// routeToRoom fans a gallery-channel message out to local members and
// keeps the local cursor table in sync with cursor traffic from any
// instance
func (m *Manager) routeToRoom(slug string, payload []byte) {
	room, ok := m.rooms.Get(slug)
	if !ok {
		return
	}
	skipUserID := ""
	var event Event
	if err := json.Unmarshal(payload, &event); err == nil {
		if event.Kind == EventCursorUpdate && event.Cursor != nil {
			room.cursors.Set(event.Cursor.UserID, *event.Cursor)
		}
		// The joiner already holds the membership from their snapshot
		if event.Kind == EventMemberJoined && event.User != nil {
			skipUserID = event.User.UserID
		}
	}
	for userID, member := range room.members.Items() {
		if userID == skipUserID {
			continue
		}
		member.client.Send(payload)
	}
}

// sweepLoop prunes cursors that went quiet. Empty rooms are dropped
// along the way
func (m *Manager) sweepLoop() {
	ticker := time.NewTicker(SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.SweepStaleCursors(time.Now())
		case <-m.done:
			return
		}
	}
}

func (m *Manager) SweepStaleCursors(now time.Time) {
	threshold := now.Add(-CursorStaleAfter).UnixMilli()
	for slug, room := range m.rooms.Items() {
		for userID, cursor := range room.cursors.Items() {
			if cursor.LastActive < threshold {
				room.cursors.Remove(userID)
			}
		}
		if room.members.Count() == 0 && room.cursors.Count() == 0 {
			m.rooms.Remove(slug)
		}
	}
}
