package endpoints

import (
	"sort"

	"chatdesk-backend/internal/dto"
	"chatdesk-backend/internal/model"
	"chatdesk-backend/internal/service/conversation"
	"chatdesk-backend/internal/service/session"
)

func toConversation(item model.ConversationItem) dto.Conversation {
	return dto.Conversation{
		ID:               item.ConversationID,
		OrganizationID:   item.OrganizationID,
		DepartmentID:     item.DepartmentID,
		CustomerID:       item.CustomerID,
		WidgetCustomerID: item.WidgetCustomerID,
		AgentID:          item.AgentID,
		Status:           string(item.Status),
		PreChatData:      item.PreChatData,
		TicketPriority:   item.TicketPriority,
		TicketTags:       item.TicketTags,
		TicketNotes:      item.TicketNotes,
		CreatedAt:        item.CreatedAt,
		UpdatedAt:        item.UpdatedAt,
		AssignedAt:       item.AssignedAt,
		ClosedAt:         item.ClosedAt,
	}
}

func toConversations(items []model.ConversationItem) []dto.Conversation {
	out := make([]dto.Conversation, 0, len(items))
	for _, item := range items {
		out = append(out, toConversation(item))
	}
	return out
}

func toMessage(item model.MessageItem) dto.Message {
	return dto.Message{
		ID:             item.MessageID,
		ConversationID: item.ConversationID,
		SenderID:       item.SenderID,
		WidgetSenderID: item.WidgetSenderID,
		SenderType:     string(item.SenderType),
		Content:        item.Content,
		MessageType:    string(item.MessageType),
		MediaURL:       item.MediaURL,
		MediaType:      item.MediaType,
		MediaSize:      item.MediaSize,
		MediaName:      item.MediaName,
		Status:         string(item.Status),
		CreatedAt:      item.CreatedAt,
	}
}

func toMessages(items []model.MessageItem) []dto.Message {
	out := make([]dto.Message, 0, len(items))
	for _, item := range items {
		out = append(out, toMessage(item))
	}
	return out
}

func toTyping(item model.TypingItem) dto.TypingIndicator {
	return dto.TypingIndicator{
		ConversationID:   item.ConversationID,
		UserID:           item.UserID,
		WidgetCustomerID: item.WidgetCustomerID,
		IsTyping:         item.IsTyping,
		UpdatedAt:        item.UpdatedAt,
	}
}

func toTypingList(items []model.TypingItem) []dto.TypingIndicator {
	out := make([]dto.TypingIndicator, 0, len(items))
	for _, item := range items {
		out = append(out, toTyping(item))
	}
	return out
}

func toDepartment(item model.DepartmentItem) dto.Department {
	fields := make([]dto.PreChatField, 0, len(item.PreChatForm))
	for _, field := range item.PreChatForm {
		fields = append(fields, dto.PreChatField{
			ID:          field.ID,
			Type:        string(field.Type),
			Label:       field.Label,
			Placeholder: field.Placeholder,
			Required:    field.Required,
			Options:     field.Options,
			Validation:  field.Validation,
			Order:       field.Order,
		})
	}
	sort.SliceStable(fields, func(i, j int) bool { return fields[i].Order < fields[j].Order })

	return dto.Department{
		ID:          item.DepartmentID,
		Name:        item.Name,
		Description: item.Description,
		PreChatForm: fields,
	}
}

func toWidgetConfig(settings session.WidgetSettings) dto.WidgetConfig {
	return dto.WidgetConfig{
		PrimaryColor:          settings.PrimaryColor,
		Position:              settings.Position,
		WidgetTitle:           settings.WidgetTitle,
		GreetingMessage:       settings.GreetingMessage,
		AutoOpen:              settings.AutoOpen,
		AutoOpenDelay:         settings.AutoOpenDelay,
		ShowAgentAvatars:      settings.ShowAgentAvatars,
		ShowTypingIndicator:   settings.ShowTypingIndicator,
		PlayNotificationSound: settings.PlayNotificationSound,
		DefaultDepartmentID:   settings.DefaultDepartmentID,
	}
}

func toMessageInput(req dto.SendMessageRequest) conversation.MessageInput {
	return conversation.MessageInput{
		Content:     req.Content,
		MessageType: model.MessageType(req.MessageType),
		MediaURL:    req.MediaURL,
		MediaType:   req.MediaType,
		MediaSize:   req.MediaSize,
		MediaName:   req.MediaName,
	}
}
