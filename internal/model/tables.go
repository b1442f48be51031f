package model

import "fmt"

const (
	WidgetsTable         = "chatdesk_widgets"
	DepartmentsTable     = "chatdesk_departments"
	WidgetSessionsTable  = "chatdesk_widget_sessions"
	SessionSlotsTable    = "chatdesk_session_slots"
	WidgetCustomersTable = "chatdesk_widget_customers"
	ConversationsTable   = "chatdesk_conversations"
	MessagesTable        = "chatdesk_messages"
	TypingTable          = "chatdesk_typing"
	AgentsTable          = "chatdesk_agents"
)

// Secondary indexes.
const (
	IndexByOrganization = "byOrganization"
	IndexByConversation = "byConversation"
	IndexByToken        = "byToken"
)

// OrganizationScopedPK prefixes an id with its organization.
func OrganizationScopedPK(organizationID, id string) string {
	return fmt.Sprintf("%s#%s", organizationID, id)
}

// WidgetItem holds the public widget configuration for one embed key.
type WidgetItem struct {
	WidgetKey             string   `dynamodbav:"pk" json:"widgetKey"`
	OrganizationID        string   `dynamodbav:"organizationId" json:"organizationId"`
	OrganizationName      string   `dynamodbav:"organizationName,omitempty" json:"organizationName,omitempty"`
	Enabled               bool     `dynamodbav:"enabled" json:"enabled"`
	AllowedDomains        []string `dynamodbav:"allowedDomains,omitempty" json:"allowedDomains,omitempty"`
	PrimaryColor          string   `dynamodbav:"primaryColor,omitempty" json:"primaryColor,omitempty"`
	Position              string   `dynamodbav:"position,omitempty" json:"position,omitempty"`
	WidgetTitle           string   `dynamodbav:"widgetTitle,omitempty" json:"widgetTitle,omitempty"`
	GreetingMessage       string   `dynamodbav:"greetingMessage,omitempty" json:"greetingMessage,omitempty"`
	AutoOpen              bool     `dynamodbav:"autoOpen" json:"autoOpen"`
	AutoOpenDelay         *int     `dynamodbav:"autoOpenDelay,omitempty" json:"autoOpenDelay,omitempty"`
	ShowAgentAvatars      *bool    `dynamodbav:"showAgentAvatars,omitempty" json:"showAgentAvatars,omitempty"`
	ShowTypingIndicator   *bool    `dynamodbav:"showTypingIndicator,omitempty" json:"showTypingIndicator,omitempty"`
	PlayNotificationSound *bool    `dynamodbav:"playNotificationSound,omitempty" json:"playNotificationSound,omitempty"`
	DefaultDepartmentID   string   `dynamodbav:"defaultDepartmentId,omitempty" json:"defaultDepartmentId,omitempty"`
}

// AgentItem records an operator's membership in an organization.
type AgentItem struct {
	PK             string `dynamodbav:"pk"`
	OrganizationID string `dynamodbav:"organizationId"`
	UserID         string `dynamodbav:"userId"`
	Email          string `dynamodbav:"email,omitempty"`
	Role           string `dynamodbav:"role"`
	IsActive       bool   `dynamodbav:"isActive"`
}

func AgentPK(organizationID, userID string) string {
	return OrganizationScopedPK(organizationID, userID)
}
