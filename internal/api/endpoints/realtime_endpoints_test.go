package endpoints

import (
	"testing"

	"chatdesk-backend/internal/model"
	"chatdesk-backend/internal/websocket"

	"github.com/stretchr/testify/assert"
)

func TestVisibleRoomsKeepsOnlyOwnOrganization(t *testing.T) {
	rooms := []websocket.RoomRes{
		{ID: websocket.NotificationRoom("org-1"), Clients: 2},
		{ID: websocket.NotificationRoom("org-2"), Clients: 1},
		{ID: websocket.ConversationRoom("c-mine"), Clients: 1},
		{ID: websocket.ConversationRoom("c-theirs"), Clients: 3},
	}
	conversations := []model.ConversationItem{{ConversationID: "c-mine", OrganizationID: "org-1"}}

	visible := visibleRooms(rooms, "org-1", conversations)
	assert.Equal(t, []websocket.RoomRes{
		{ID: websocket.NotificationRoom("org-1"), Clients: 2},
		{ID: websocket.ConversationRoom("c-mine"), Clients: 1},
	}, visible)
}

func TestVisibleRoomsEmpty(t *testing.T) {
	visible := visibleRooms(nil, "org-1", nil)
	assert.NotNil(t, visible)
	assert.Empty(t, visible)
}
