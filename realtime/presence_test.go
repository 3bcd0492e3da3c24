package realtime

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClient records everything sent to one connection
type fakeClient struct {
	mutex  sync.Mutex
	events []Event
}

func (f *fakeClient) send(data []byte) bool {
	var event Event
	if err := json.Unmarshal(data, &event); err != nil {
		return false
	}
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.events = append(f.events, event)
	return true
}

func (f *fakeClient) kinds() []string {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	result := []string{}
	for _, event := range f.events {
		result = append(result, event.Kind)
	}
	return result
}

func (f *fakeClient) last() Event {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return f.events[len(f.events)-1]
}

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m := Init(nil) // loopback transport, no redis
	t.Cleanup(m.Dispose)
	return m
}

func connect(m *Manager, userID string) (*fakeClient, *ConnectedClient, func()) {
	fake := &fakeClient{}
	client := &ConnectedClient{UserID: userID, Send: fake.send}
	cleanup := m.Register(userID, client)
	return fake, client, cleanup
}

func TestJoinDeliversSnapshotAndBroadcast(t *testing.T) {
	m := newTestManager(t)
	fakeA, clientA, cleanupA := connect(m, "auth0|a")
	defer cleanupA()

	m.Join("slug1", Presence{UserID: "auth0|a", Name: "Alice", Color: "#F87171"}, clientA)
	require.Equal(t, []string{EventRoomSnapshot}, fakeA.kinds())
	// The joiner is already in their own snapshot
	assert.Len(t, fakeA.events[0].Users, 1)

	fakeB, clientB, cleanupB := connect(m, "auth0|b")
	defer cleanupB()
	m.Join("slug1", Presence{UserID: "auth0|b", Name: "Bob", Color: "#60A5FA"}, clientB)

	// A sees B arrive; B's snapshot holds both members, and B never
	// receives their own join announcement
	assert.Contains(t, fakeA.kinds(), EventMemberJoined)
	require.NotEmpty(t, fakeB.events)
	assert.Len(t, fakeB.events[0].Users, 2)
	assert.NotContains(t, fakeB.kinds(), EventMemberJoined)
	assert.Len(t, m.Members("slug1"), 2)
}

func TestJoinIsIdempotent(t *testing.T) {
	m := newTestManager(t)
	watcher, watcherClient, cleanupW := connect(m, "auth0|watcher")
	defer cleanupW()
	m.Join("slug2", Presence{UserID: "auth0|watcher"}, watcherClient)

	_, client, cleanup := connect(m, "auth0|re")
	defer cleanup()
	presence := Presence{UserID: "auth0|re", Name: "Rejoiner"}
	m.Join("slug2", presence, client)
	m.Join("slug2", presence, client)

	joins := 0
	for _, kind := range watcher.kinds() {
		if kind == EventMemberJoined {
			joins++
		}
	}
	assert.Equal(t, 1, joins, "a reconnect re-join must not announce twice")
	assert.Len(t, m.Members("slug2"), 2)
}

func TestLeaveBroadcasts(t *testing.T) {
	m := newTestManager(t)
	fakeA, clientA, cleanupA := connect(m, "auth0|la")
	defer cleanupA()
	_, clientB, cleanupB := connect(m, "auth0|lb")
	defer cleanupB()

	m.Join("slug3", Presence{UserID: "auth0|la"}, clientA)
	m.Join("slug3", Presence{UserID: "auth0|lb"}, clientB)
	m.Leave("slug3", clientB)

	assert.Contains(t, fakeA.kinds(), EventMemberLeft)
	assert.Len(t, m.Members("slug3"), 1)
}

func TestCursorUpdateReachesRoomMembers(t *testing.T) {
	m := newTestManager(t)
	fakeA, clientA, cleanupA := connect(m, "auth0|ca")
	defer cleanupA()
	_, clientB, cleanupB := connect(m, "auth0|cb")
	defer cleanupB()

	m.Join("slug4", Presence{UserID: "auth0|ca"}, clientA)
	m.Join("slug4", Presence{UserID: "auth0|cb"}, clientB)

	m.UpdateCursor(Cursor{UserID: "auth0|cb", X: 10, Y: 20, GallerySlug: "slug4"})
	m.UpdateCursor(Cursor{UserID: "auth0|cb", X: 30, Y: 40, GallerySlug: "slug4"})

	event := fakeA.last()
	require.Equal(t, EventCursorUpdate, event.Kind)
	require.NotNil(t, event.Cursor)
	assert.Equal(t, 30.0, event.Cursor.X)
	assert.NotZero(t, event.Cursor.LastActive)

	// Last write wins in the cursor table
	cursors := m.Cursors("slug4")
	require.Len(t, cursors, 1)
	assert.Equal(t, 40.0, cursors[0].Y)
}

func TestSweepPrunesStaleCursors(t *testing.T) {
	m := newTestManager(t)
	_, client, cleanup := connect(m, "auth0|sweep")
	defer cleanup()

	m.Join("slug5", Presence{UserID: "auth0|sweep"}, client)
	m.UpdateCursor(Cursor{UserID: "auth0|sweep", X: 1, Y: 1, GallerySlug: "slug5"})
	require.Len(t, m.Cursors("slug5"), 1)

	// Not stale yet
	m.SweepStaleCursors(time.Now().Add(CursorStaleAfter / 2))
	assert.Len(t, m.Cursors("slug5"), 1)

	// Quiet past the threshold
	m.SweepStaleCursors(time.Now().Add(CursorStaleAfter + time.Second))
	assert.Empty(t, m.Cursors("slug5"))
	// The member is still present - cursors and membership age out
	// independently
	assert.Len(t, m.Members("slug5"), 1)
}

func TestSweepDropsEmptyRooms(t *testing.T) {
	m := newTestManager(t)
	_, client, cleanup := connect(m, "auth0|empty")

	m.Join("slug6", Presence{UserID: "auth0|empty"}, client)
	m.UpdateCursor(Cursor{UserID: "auth0|empty", X: 1, Y: 1, GallerySlug: "slug6"})
	cleanup() // disconnect leaves all rooms

	m.SweepStaleCursors(time.Now().Add(CursorStaleAfter + time.Second))
	_, exists := m.rooms.Get("slug6")
	assert.False(t, exists)
}

func TestNotifyUserReachesEveryTab(t *testing.T) {
	m := newTestManager(t)
	tab1, _, cleanup1 := connect(m, "auth0|tabs")
	defer cleanup1()
	tab2, _, cleanup2 := connect(m, "auth0|tabs")
	defer cleanup2()
	other, _, cleanup3 := connect(m, "auth0|other")
	defer cleanup3()

	payload, _ := json.Marshal(Event{Kind: "notification"})
	m.NotifyUser("auth0|tabs", payload)

	assert.Len(t, tab1.kinds(), 1)
	assert.Len(t, tab2.kinds(), 1)
	assert.Empty(t, other.kinds())
}
