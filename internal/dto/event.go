package dto

// Realtime event types carried inside websocket frames.
const (
	EventMessageCreated      = "message.created"
	EventConversationUpdated = "conversation.updated"
	EventTyping              = "typing"
)

// Event is the JSON document published on a room and delivered as the
// content of a websocket frame.
type Event struct {
	Type           string           `json:"type"`
	ConversationID string           `json:"conversationId"`
	Message        *Message         `json:"message,omitempty"`
	Conversation   *Conversation    `json:"conversation,omitempty"`
	Typing         *TypingIndicator `json:"typing,omitempty"`
}
