package dto

type Conversation struct {
	ID               string         `json:"id"`
	OrganizationID   string         `json:"organizationId"`
	DepartmentID     string         `json:"departmentId"`
	CustomerID       string         `json:"customerId,omitempty"`
	WidgetCustomerID string         `json:"widgetCustomerId,omitempty"`
	AgentID          string         `json:"agentId,omitempty"`
	Status           string         `json:"status"`
	PreChatData      map[string]any `json:"preChatData,omitempty"`
	TicketPriority   string         `json:"ticketPriority,omitempty"`
	TicketTags       []string       `json:"ticketTags,omitempty"`
	TicketNotes      string         `json:"ticketNotes,omitempty"`
	CreatedAt        string         `json:"createdAt"`
	UpdatedAt        string         `json:"updatedAt"`
	AssignedAt       string         `json:"assignedAt,omitempty"`
	ClosedAt         string         `json:"closedAt,omitempty"`
}

type Message struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversationId"`
	SenderID       string `json:"senderId,omitempty"`
	WidgetSenderID string `json:"widgetSenderId,omitempty"`
	SenderType     string `json:"senderType"`
	Content        string `json:"content"`
	MessageType    string `json:"messageType"`
	MediaURL       string `json:"mediaUrl,omitempty"`
	MediaType      string `json:"mediaType,omitempty"`
	MediaSize      int64  `json:"mediaSize,omitempty"`
	MediaName      string `json:"mediaName,omitempty"`
	Status         string `json:"status"`
	CreatedAt      string `json:"createdAt"`
}

type CreateConversationRequest struct {
	DepartmentID  string         `json:"departmentId,omitempty" validate:"omitempty,max=128"`
	PreChatData   map[string]any `json:"preChatData,omitempty"`
	CustomerName  string         `json:"customerName,omitempty" validate:"omitempty,max=255"`
	CustomerEmail string         `json:"customerEmail,omitempty" validate:"omitempty,email,max=255"`
	CustomerPhone string         `json:"customerPhone,omitempty" validate:"omitempty,max=64"`
}

type ConversationResponse struct {
	Conversation Conversation `json:"conversation"`
	Messages     []Message    `json:"messages,omitempty"`
	Existing     bool         `json:"existing,omitempty"`
}

type ListConversationsResponse struct {
	Conversations []Conversation `json:"conversations"`
}

type SendMessageRequest struct {
	Content     string `json:"content" validate:"max=10000"`
	MessageType string `json:"messageType,omitempty" validate:"omitempty,oneof=text image audio file system"`
	MediaURL    string `json:"mediaUrl,omitempty" validate:"omitempty,url,max=2048"`
	MediaType   string `json:"mediaType,omitempty" validate:"omitempty,max=255"`
	MediaSize   int64  `json:"mediaSize,omitempty" validate:"gte=0"`
	MediaName   string `json:"mediaName,omitempty" validate:"omitempty,max=255"`
}

type MessageResponse struct {
	Message Message `json:"message"`
}

type ListMessagesResponse struct {
	Messages []Message `json:"messages"`
}

type UpdateConversationRequest struct {
	Status         *string   `json:"status,omitempty" validate:"omitempty,oneof=waiting active closed ticket"`
	AgentID        *string   `json:"agentId,omitempty" validate:"omitempty,max=128"`
	TicketPriority *string   `json:"ticketPriority,omitempty" validate:"omitempty,oneof=low medium high urgent"`
	TicketTags     *[]string `json:"ticketTags,omitempty" validate:"omitempty,max=20,dive,max=64"`
	TicketNotes    *string   `json:"ticketNotes,omitempty" validate:"omitempty,max=10000"`
}

type UpdateMessageStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=sent delivered read"`
}

type TypingRequest struct {
	IsTyping *bool `json:"isTyping" validate:"required"`
}

type TypingIndicator struct {
	ConversationID   string `json:"conversationId"`
	UserID           string `json:"userId,omitempty"`
	WidgetCustomerID string `json:"widgetCustomerId,omitempty"`
	IsTyping         bool   `json:"isTyping"`
	UpdatedAt        string `json:"updatedAt"`
}

type TypingResponse struct {
	Typing []TypingIndicator `json:"typing"`
}

// ErrorResponse is the body of every non-2xx answer.
type ErrorResponse struct {
	Message         string   `json:"message"`
	MissingFieldIDs []string `json:"missingFieldIds,omitempty"`
}
