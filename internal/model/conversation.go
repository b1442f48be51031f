package model

import "fmt"

type ConversationStatus string

const (
	ConversationStatusWaiting ConversationStatus = "waiting"
	ConversationStatusActive  ConversationStatus = "active"
	ConversationStatusClosed  ConversationStatus = "closed"
	ConversationStatusTicket  ConversationStatus = "ticket"
)

func (s ConversationStatus) Valid() bool {
	switch s {
	case ConversationStatusWaiting, ConversationStatusActive, ConversationStatusClosed, ConversationStatusTicket:
		return true
	}
	return false
}

type SenderType string

const (
	SenderAgent    SenderType = "agent"
	SenderCustomer SenderType = "customer"
	SenderSystem   SenderType = "system"
)

type MessageType string

const (
	MessageText   MessageType = "text"
	MessageImage  MessageType = "image"
	MessageAudio  MessageType = "audio"
	MessageFile   MessageType = "file"
	MessageSystem MessageType = "system"
)

func (t MessageType) Valid() bool {
	switch t {
	case MessageText, MessageImage, MessageAudio, MessageFile, MessageSystem:
		return true
	}
	return false
}

type MessageStatus string

const (
	MessageStatusSent      MessageStatus = "sent"
	MessageStatusDelivered MessageStatus = "delivered"
	MessageStatusRead      MessageStatus = "read"
)

// Rank orders delivery states so status only moves forward.
func (s MessageStatus) Rank() int {
	switch s {
	case MessageStatusSent:
		return 1
	case MessageStatusDelivered:
		return 2
	case MessageStatusRead:
		return 3
	}
	return 0
}

func ConversationPK(organizationID, conversationID string) string {
	return OrganizationScopedPK(organizationID, conversationID)
}

func MessagePK(conversationID, messageID string) string {
	return fmt.Sprintf("%s#%s", conversationID, messageID)
}

type ConversationItem struct {
	PK               string             `dynamodbav:"pk"`
	ConversationID   string             `dynamodbav:"conversationId"`
	OrganizationID   string             `dynamodbav:"organizationId"`
	DepartmentID     string             `dynamodbav:"departmentId"`
	CustomerID       string             `dynamodbav:"customerId,omitempty"`
	WidgetCustomerID string             `dynamodbav:"widgetCustomerId,omitempty"`
	SessionID        string             `dynamodbav:"sessionId,omitempty"`
	AgentID          string             `dynamodbav:"agentId,omitempty"`
	Status           ConversationStatus `dynamodbav:"status"`
	PreChatData      map[string]any     `dynamodbav:"preChatData,omitempty"`
	TicketPriority   string             `dynamodbav:"ticketPriority,omitempty"`
	TicketTags       []string           `dynamodbav:"ticketTags,omitempty"`
	TicketNotes      string             `dynamodbav:"ticketNotes,omitempty"`
	CreatedAt        string             `dynamodbav:"createdAt"`
	UpdatedAt        string             `dynamodbav:"updatedAt"`
	AssignedAt       string             `dynamodbav:"assignedAt,omitempty"`
	ClosedAt         string             `dynamodbav:"closedAt,omitempty"`
}

type MessageItem struct {
	PK             string        `dynamodbav:"pk"`
	MessageID      string        `dynamodbav:"messageId"`
	ConversationID string        `dynamodbav:"conversationId"`
	OrganizationID string        `dynamodbav:"organizationId"`
	SenderID       string        `dynamodbav:"senderId,omitempty"`
	WidgetSenderID string        `dynamodbav:"widgetSenderId,omitempty"`
	SenderType     SenderType    `dynamodbav:"senderType"`
	Content        string        `dynamodbav:"content,omitempty"`
	MessageType    MessageType   `dynamodbav:"messageType"`
	MediaURL       string        `dynamodbav:"mediaUrl,omitempty"`
	MediaType      string        `dynamodbav:"mediaType,omitempty"`
	MediaSize      int64         `dynamodbav:"mediaSize,omitempty"`
	MediaName      string        `dynamodbav:"mediaName,omitempty"`
	Status         MessageStatus `dynamodbav:"status"`
	CreatedAt      string        `dynamodbav:"createdAt"`
	// Seq breaks createdAt ties in insertion order.
	Seq int64 `dynamodbav:"seq"`
}

type TypingItem struct {
	PK               string `dynamodbav:"pk"`
	ConversationID   string `dynamodbav:"conversationId"`
	UserID           string `dynamodbav:"userId,omitempty"`
	WidgetCustomerID string `dynamodbav:"widgetCustomerId,omitempty"`
	IsTyping         bool   `dynamodbav:"isTyping"`
	UpdatedAt        string `dynamodbav:"updatedAt"`
}

// TypingPK keys a typing record by conversation and exactly one actor.
func TypingPK(conversationID, userID, widgetCustomerID string) string {
	if userID != "" {
		return fmt.Sprintf("%s#u:%s", conversationID, userID)
	}
	return fmt.Sprintf("%s#w:%s", conversationID, widgetCustomerID)
}
