package websocket

import (
	"context"
	"strings"
)

type Room struct {
	ID      string
	Clients map[*WSClient]struct{}
	cancel  context.CancelFunc
}

// WSMessage is the frame written to every client of a room.
type WSMessage struct {
	Content   string `json:"content"`
	RoomID    string `json:"roomId"`
	Timestamp int64  `json:"timestamp"`
}

type RoomRes struct {
	ID      string `json:"id"`
	Clients int    `json:"clients"`
}

func ConversationRoom(conversationID string) string {
	conversationID = strings.TrimSpace(conversationID)
	if conversationID == "" {
		return ""
	}
	return "conversation:" + conversationID
}

func NotificationRoom(organizationID string) string {
	organizationID = strings.TrimSpace(organizationID)
	if organizationID == "" {
		return ""
	}
	return "org:" + organizationID + ":notifications"
}
