package session

import (
	"regexp"
	"strings"

	"chatdesk-backend/internal/model"
)

const (
	DefaultPrimaryColor    = "#7F56D9"
	DefaultPosition        = "bottom-right"
	DefaultWidgetTitle     = "Chat with us"
	DefaultGreetingMessage = "Hi! How can we help you today?"
	DefaultAutoOpenDelay   = 5
)

var hexColorPattern = regexp.MustCompile(`^#(?:[0-9a-fA-F]{3}|[0-9a-fA-F]{6})$`)

var positions = map[string]bool{
	"bottom-right": true,
	"bottom-left":  true,
	"top-right":    true,
	"top-left":     true,
}

// WidgetSettings is the appearance and behaviour block returned on init.
type WidgetSettings struct {
	PrimaryColor          string
	Position              string
	WidgetTitle           string
	GreetingMessage       string
	AutoOpen              bool
	AutoOpenDelay         int
	ShowAgentAvatars      bool
	ShowTypingIndicator   bool
	PlayNotificationSound bool
	DefaultDepartmentID   string
}

func defaultWidgetSettings() WidgetSettings {
	return WidgetSettings{
		PrimaryColor:          DefaultPrimaryColor,
		Position:              DefaultPosition,
		WidgetTitle:           DefaultWidgetTitle,
		GreetingMessage:       DefaultGreetingMessage,
		AutoOpenDelay:         DefaultAutoOpenDelay,
		ShowAgentAvatars:      true,
		ShowTypingIndicator:   true,
		PlayNotificationSound: true,
	}
}

// WidgetSettingsFromWidget fills unset or malformed values with defaults.
func WidgetSettingsFromWidget(widget model.WidgetItem) WidgetSettings {
	result := defaultWidgetSettings()

	if val := strings.TrimSpace(widget.PrimaryColor); hexColorPattern.MatchString(val) {
		result.PrimaryColor = strings.ToUpper(val)
	}
	if val := strings.TrimSpace(widget.Position); positions[val] {
		result.Position = val
	}
	if val := strings.TrimSpace(widget.WidgetTitle); val != "" {
		result.WidgetTitle = val
	}
	if val := strings.TrimSpace(widget.GreetingMessage); val != "" {
		result.GreetingMessage = val
	}
	result.AutoOpen = widget.AutoOpen
	if widget.AutoOpenDelay != nil && *widget.AutoOpenDelay >= 0 {
		result.AutoOpenDelay = *widget.AutoOpenDelay
	}
	if widget.ShowAgentAvatars != nil {
		result.ShowAgentAvatars = *widget.ShowAgentAvatars
	}
	if widget.ShowTypingIndicator != nil {
		result.ShowTypingIndicator = *widget.ShowTypingIndicator
	}
	if widget.PlayNotificationSound != nil {
		result.PlayNotificationSound = *widget.PlayNotificationSound
	}
	result.DefaultDepartmentID = strings.TrimSpace(widget.DefaultDepartmentID)

	return result
}
