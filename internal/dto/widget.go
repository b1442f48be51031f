package dto

type SessionInitRequest struct {
	WidgetKey            string         `json:"widgetKey" validate:"required,max=128"`
	VisitorID            string         `json:"visitorId" validate:"required,max=256"`
	ExistingSessionToken string         `json:"existingSessionToken,omitempty" validate:"omitempty,max=128"`
	UserData             map[string]any `json:"userData,omitempty"`
	CurrentURL           string         `json:"currentUrl,omitempty" validate:"omitempty,max=2048"`
	Referrer             string         `json:"referrer,omitempty" validate:"omitempty,max=2048"`
}

type WidgetConfig struct {
	PrimaryColor          string `json:"primaryColor"`
	Position              string `json:"position"`
	WidgetTitle           string `json:"widgetTitle"`
	GreetingMessage       string `json:"greetingMessage"`
	AutoOpen              bool   `json:"autoOpen"`
	AutoOpenDelay         int    `json:"autoOpenDelay"`
	ShowAgentAvatars      bool   `json:"showAgentAvatars"`
	ShowTypingIndicator   bool   `json:"showTypingIndicator"`
	PlayNotificationSound bool   `json:"playNotificationSound"`
	DefaultDepartmentID   string `json:"defaultDepartmentId,omitempty"`
}

type SessionInitResponse struct {
	SessionToken     string       `json:"sessionToken"`
	OrganizationID   string       `json:"organizationId"`
	OrganizationName string       `json:"organizationName,omitempty"`
	ConversationID   string       `json:"conversationId,omitempty"`
	Resumed          bool         `json:"resumed"`
	Config           WidgetConfig `json:"config"`
}

type PreChatField struct {
	ID          string   `json:"id"`
	Type        string   `json:"type"`
	Label       string   `json:"label"`
	Placeholder string   `json:"placeholder,omitempty"`
	Required    bool     `json:"required"`
	Options     []string `json:"options,omitempty"`
	Validation  string   `json:"validation,omitempty"`
	Order       int      `json:"order"`
}

type Department struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	PreChatForm []PreChatField `json:"preChatForm"`
}

type DepartmentsResponse struct {
	Departments []Department `json:"departments"`
}
