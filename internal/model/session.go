package model

import "fmt"

type WidgetSessionItem struct {
	SessionID      string `dynamodbav:"pk"`
	SessionToken   string `dynamodbav:"sessionToken"`
	OrganizationID string `dynamodbav:"organizationId"`
	WidgetKey      string `dynamodbav:"widgetKey"`
	VisitorID      string `dynamodbav:"visitorId"`
	ConversationID string `dynamodbav:"conversationId,omitempty"`
	DeviceType     string `dynamodbav:"deviceType,omitempty"`
	IPAddress      string `dynamodbav:"ipAddress,omitempty"`
	UserAgent      string `dynamodbav:"userAgent,omitempty"`
	Referrer       string `dynamodbav:"referrer,omitempty"`
	CurrentURL     string `dynamodbav:"currentUrl,omitempty"`
	IsActive       bool   `dynamodbav:"isActive"`
	LastSeenAt     string `dynamodbav:"lastSeenAt"`
	CreatedAt      string `dynamodbav:"createdAt"`
	ExpiresAt      string `dynamodbav:"expiresAt"`
}

// SessionSlotItem is the uniqueness record for the active session of one
// visitor on one widget. Only one slot may exist per pair until it expires.
type SessionSlotItem struct {
	PK        string `dynamodbav:"pk"`
	SessionID string `dynamodbav:"sessionId"`
	ExpiresAt string `dynamodbav:"expiresAt"`
}

func SessionSlotPK(widgetKey, visitorID string) string {
	return fmt.Sprintf("%s#%s", widgetKey, visitorID)
}

// WidgetCustomerItem is the anonymous visitor profile behind widget
// conversations, unique per organization and visitor id.
type WidgetCustomerItem struct {
	PK             string            `dynamodbav:"pk"`
	CustomerID     string            `dynamodbav:"customerId"`
	OrganizationID string            `dynamodbav:"organizationId"`
	VisitorID      string            `dynamodbav:"visitorId"`
	Name           string            `dynamodbav:"name,omitempty"`
	Email          string            `dynamodbav:"email,omitempty"`
	Phone          string            `dynamodbav:"phone,omitempty"`
	Metadata       map[string]string `dynamodbav:"metadata,omitempty"`
	FirstSeenAt    string            `dynamodbav:"firstSeenAt"`
	LastSeenAt     string            `dynamodbav:"lastSeenAt"`
}

func WidgetCustomerPK(organizationID, visitorID string) string {
	return OrganizationScopedPK(organizationID, visitorID)
}
