package models

import (
	"testing"
	"time"

	"gallery/db"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordEventGroupsWithinWindow(t *testing.T) {
	recipient := "auth0|recipient-group"
	event := NotificationEvent{
		RecipientUserID: recipient,
		ActorID:         "auth0|actor-group",
		GalleryID:       1,
		Type:            NotificationTypeStar,
		TargetID:        "42",
		Data:            map[string]interface{}{"n": 1},
	}

	first, err := RecordEvent(event)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Count)
	require.NotEmpty(t, first.GroupID)

	// Two more of the same (recipient, type, actor, target) collapse
	// into the first row
	event.Data = map[string]interface{}{"n": 2}
	_, err = RecordEvent(event)
	require.NoError(t, err)
	event.Data = map[string]interface{}{"n": 3}
	third, err := RecordEvent(event)
	require.NoError(t, err)

	assert.Equal(t, first.ID, third.ID)
	assert.Equal(t, 3, third.Count)
	assert.Contains(t, third.Data, `"n":3`, "data reflects the latest event")

	var count int64
	db.Instance.Model(&Notification{}).Where("user_id = ?", recipient).Count(&count)
	assert.EqualValues(t, 1, count)
}

func TestRecordEventDifferentActorsStaySeparate(t *testing.T) {
	recipient := "auth0|recipient-actors"
	event := NotificationEvent{
		RecipientUserID: recipient,
		GalleryID:       1,
		Type:            NotificationTypeStar,
		TargetID:        "77",
	}

	event.ActorID = "auth0|actor-a"
	a, err := RecordEvent(event)
	require.NoError(t, err)
	event.ActorID = "auth0|actor-b"
	b, err := RecordEvent(event)
	require.NoError(t, err)

	assert.NotEqual(t, a.ID, b.ID)
	assert.NotEqual(t, a.GroupID, b.GroupID)
}

func TestRecordEventOutsideWindowStartsNewRow(t *testing.T) {
	recipient := "auth0|recipient-window"
	event := NotificationEvent{
		RecipientUserID: recipient,
		ActorID:         "auth0|actor-window",
		GalleryID:       1,
		Type:            NotificationTypeComment,
		TargetID:        "9",
	}

	first, err := RecordEvent(event)
	require.NoError(t, err)

	// Age the row past the grouping window
	stale := time.Now().Add(-GroupingWindow() - time.Minute).Unix()
	require.NoError(t, db.Instance.Model(&Notification{}).
		Where("id = ?", first.ID).Update("created_at", stale).Error)

	second, err := RecordEvent(event)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, 1, second.Count)
}

func TestRecordEventPublishes(t *testing.T) {
	var published []string
	NotifyPublisher = func(recipientUserID string, payload []byte) {
		published = append(published, recipientUserID)
	}
	defer func() { NotifyPublisher = nil }()

	event := NotificationEvent{
		RecipientUserID: "auth0|recipient-push",
		ActorID:         "auth0|actor-push",
		GalleryID:       1,
		Type:            NotificationTypeComment,
		TargetID:        "5",
	}
	_, err := RecordEvent(event)
	require.NoError(t, err)
	_, err = RecordEvent(event)
	require.NoError(t, err)

	// Both the insert and the count bump push to the recipient
	assert.Equal(t, []string{"auth0|recipient-push", "auth0|recipient-push"}, published)
}

func TestFanOutSkipsActor(t *testing.T) {
	owner := "auth0|owner-fanout"
	gallery := createTestGallery(t, owner)
	editor := "auth0|editor-fanout"
	_, err := UpsertInvite(gallery.ID, "editor-fanout@example.com", RoleEdit, &editor)
	require.NoError(t, err)

	FanOutToManagers(gallery, NotificationEvent{
		ActorID:   editor,
		GalleryID: gallery.ID,
		Type:      NotificationTypeStar,
		TargetID:  "1",
	})

	assert.EqualValues(t, 1, UnseenCount(owner))
	assert.EqualValues(t, 0, UnseenCount(editor), "actors are never notified about themselves")
}

func TestMarkAllSeen(t *testing.T) {
	recipient := "auth0|recipient-seen"
	event := NotificationEvent{
		RecipientUserID: recipient,
		ActorID:         "auth0|actor-seen",
		GalleryID:       1,
		Type:            NotificationTypeGalleryInvite,
		TargetID:        "3",
	}
	_, err := RecordEvent(event)
	require.NoError(t, err)
	require.EqualValues(t, 1, UnseenCount(recipient))

	require.NoError(t, MarkAllSeen(recipient))
	assert.EqualValues(t, 0, UnseenCount(recipient))

	// Seen rows keep their count and data
	notifications, err := NotificationsFor(recipient, 10)
	require.NoError(t, err)
	require.Len(t, notifications, 1)
	assert.Equal(t, 1, notifications[0].Count)
	assert.True(t, notifications[0].IsSeen)
}
