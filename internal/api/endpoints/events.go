package endpoints

import (
	"context"

	"chatdesk-backend/internal/api"
	"chatdesk-backend/internal/dto"
	"chatdesk-backend/internal/model"
	"chatdesk-backend/internal/websocket"

	"github.com/rs/zerolog/log"
)

// broadcaster publishes realtime events after a successful write. A failed
// publish never fails the request.
type broadcaster struct {
	publisher api.EventPublisher
}

func (b broadcaster) messageCreated(ctx context.Context, conv model.ConversationItem, msg model.MessageItem) {
	message := toMessage(msg)
	b.publish(ctx, dto.Event{
		Type:           dto.EventMessageCreated,
		ConversationID: conv.ConversationID,
		Message:        &message,
	}, websocket.ConversationRoom(conv.ConversationID), websocket.NotificationRoom(conv.OrganizationID))
}

func (b broadcaster) conversationUpdated(ctx context.Context, conv model.ConversationItem) {
	conversation := toConversation(conv)
	b.publish(ctx, dto.Event{
		Type:           dto.EventConversationUpdated,
		ConversationID: conv.ConversationID,
		Conversation:   &conversation,
	}, websocket.ConversationRoom(conv.ConversationID), websocket.NotificationRoom(conv.OrganizationID))
}

func (b broadcaster) typing(ctx context.Context, item model.TypingItem) {
	indicator := toTyping(item)
	b.publish(ctx, dto.Event{
		Type:           dto.EventTyping,
		ConversationID: item.ConversationID,
		Typing:         &indicator,
	}, websocket.ConversationRoom(item.ConversationID))
}

func (b broadcaster) publish(ctx context.Context, event dto.Event, rooms ...string) {
	if b.publisher == nil {
		return
	}
	for _, room := range rooms {
		if err := b.publisher.Publish(context.WithoutCancel(ctx), room, event); err != nil {
			log.Warn().
				Err(err).
				Str("room", room).
				Str("event", event.Type).
				Msg("realtime publish failed")
		}
	}
}
