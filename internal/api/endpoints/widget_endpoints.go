package endpoints

import (
	"net/http"
	"strings"

	"chatdesk-backend/internal/api"
	"chatdesk-backend/internal/dto"
	"chatdesk-backend/internal/model"
	"chatdesk-backend/internal/service/conversation"
	"chatdesk-backend/internal/service/session"
	"chatdesk-backend/internal/service/typing"
	"chatdesk-backend/utils"
)

const SessionTokenHeader = "X-Session-Token"

type WidgetEndpoints interface {
	Init(http.ResponseWriter, *http.Request) error
	Departments(http.ResponseWriter, *http.Request) error
	Conversations(http.ResponseWriter, *http.Request) error
	Conversation(http.ResponseWriter, *http.Request) error
	Messages(http.ResponseWriter, *http.Request) error
	Typing(http.ResponseWriter, *http.Request) error
}

type widgetEndpoints struct {
	services *api.Services
	events   broadcaster
}

func NewWidgetEndpoints(services *api.Services, publisher api.EventPublisher) WidgetEndpoints {
	return &widgetEndpoints{
		services: services,
		events:   broadcaster{publisher: publisher},
	}
}

func (h *widgetEndpoints) Init(w http.ResponseWriter, r *http.Request) error {
	return MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
		http.MethodPost: h.handleInit,
	})
}

func (h *widgetEndpoints) Departments(w http.ResponseWriter, r *http.Request) error {
	return MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
		http.MethodGet: h.handleDepartments,
	})
}

func (h *widgetEndpoints) Conversations(w http.ResponseWriter, r *http.Request) error {
	return MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
		http.MethodPost: h.handleStartConversation,
	})
}

func (h *widgetEndpoints) Conversation(w http.ResponseWriter, r *http.Request) error {
	return MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
		http.MethodGet: h.handleGetConversation,
	})
}

func (h *widgetEndpoints) Messages(w http.ResponseWriter, r *http.Request) error {
	return MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
		http.MethodGet:  h.handleListMessages,
		http.MethodPost: h.handleSendMessage,
	})
}

func (h *widgetEndpoints) Typing(w http.ResponseWriter, r *http.Request) error {
	return MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
		http.MethodGet:  h.handleGetTyping,
		http.MethodPost: h.handleSetTyping,
	})
}

func (h *widgetEndpoints) handleInit(w http.ResponseWriter, r *http.Request) error {
	var req dto.SessionInitRequest
	if err := decodeJSON(w, r, &req); err != nil {
		return err
	}

	referrer := req.Referrer
	if referrer == "" {
		referrer = r.Referer()
	}

	result, err := h.services.Sessions.Resolve(r.Context(), session.ResolveParams{
		WidgetKey:    req.WidgetKey,
		VisitorID:    req.VisitorID,
		SessionToken: req.ExistingSessionToken,
		Origin:       r.Header.Get("Origin"),
		UserAgent:    r.UserAgent(),
		IPAddress:    utils.ForwardedClientIP(r),
		Referrer:     referrer,
		CurrentURL:   req.CurrentURL,
	})
	if err != nil {
		return serviceError(err)
	}

	return WriteJSON(w, http.StatusOK, dto.SessionInitResponse{
		SessionToken:     result.Session.SessionToken,
		OrganizationID:   result.Session.OrganizationID,
		OrganizationName: result.Widget.OrganizationName,
		ConversationID:   result.Session.ConversationID,
		Resumed:          result.Resumed,
		Config:           toWidgetConfig(result.Settings),
	})
}

func (h *widgetEndpoints) handleDepartments(w http.ResponseWriter, r *http.Request) error {
	sess, err := h.authenticate(r)
	if err != nil {
		return err
	}

	items, err := h.services.Departments.ListActive(r.Context(), sess.OrganizationID)
	if err != nil {
		return serviceError(err)
	}

	departments := make([]dto.Department, 0, len(items))
	for _, item := range items {
		departments = append(departments, toDepartment(item))
	}
	return WriteJSON(w, http.StatusOK, dto.DepartmentsResponse{Departments: departments})
}

func (h *widgetEndpoints) handleStartConversation(w http.ResponseWriter, r *http.Request) error {
	sess, err := h.authenticate(r)
	if err != nil {
		return err
	}

	var req dto.CreateConversationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		return err
	}

	widget, err := h.services.Sessions.Widget(r.Context(), sess.WidgetKey)
	if err != nil {
		return serviceError(err)
	}

	result, err := h.services.Conversations.StartConversation(r.Context(), conversation.StartParams{
		Session:             sess,
		DepartmentID:        req.DepartmentID,
		DefaultDepartmentID: session.WidgetSettingsFromWidget(widget).DefaultDepartmentID,
		PreChatData:         req.PreChatData,
		Contact: conversation.Contact{
			Name:  req.CustomerName,
			Email: req.CustomerEmail,
			Phone: req.CustomerPhone,
		},
	})
	if err != nil {
		return serviceError(err)
	}

	status := http.StatusOK
	if !result.Existing {
		status = http.StatusCreated
		h.events.conversationUpdated(r.Context(), result.Conversation)
	}
	return WriteJSON(w, status, dto.ConversationResponse{
		Conversation: toConversation(result.Conversation),
		Existing:     result.Existing,
	})
}

func (h *widgetEndpoints) handleGetConversation(w http.ResponseWriter, r *http.Request) error {
	sess, conversationID, err := h.sessionAndConversation(r)
	if err != nil {
		return err
	}

	result, err := h.services.Conversations.SessionConversation(r.Context(), sess, conversationID)
	if err != nil {
		return serviceError(err)
	}
	return WriteJSON(w, http.StatusOK, dto.ConversationResponse{
		Conversation: toConversation(result.Conversation),
		Messages:     toMessages(result.Messages),
	})
}

func (h *widgetEndpoints) handleListMessages(w http.ResponseWriter, r *http.Request) error {
	sess, conversationID, err := h.sessionAndConversation(r)
	if err != nil {
		return err
	}

	result, err := h.services.Conversations.SessionConversation(r.Context(), sess, conversationID)
	if err != nil {
		return serviceError(err)
	}
	return WriteJSON(w, http.StatusOK, dto.ListMessagesResponse{Messages: toMessages(result.Messages)})
}

func (h *widgetEndpoints) handleSendMessage(w http.ResponseWriter, r *http.Request) error {
	sess, conversationID, err := h.sessionAndConversation(r)
	if err != nil {
		return err
	}

	var req dto.SendMessageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		return err
	}

	result, err := h.services.Conversations.PostCustomerMessage(r.Context(), sess, conversationID, toMessageInput(req))
	if err != nil {
		return serviceError(err)
	}

	h.events.messageCreated(r.Context(), result.Conversation, result.Message)
	if result.StatusChanged {
		h.events.conversationUpdated(r.Context(), result.Conversation)
	}
	return WriteJSON(w, http.StatusCreated, dto.MessageResponse{Message: toMessage(result.Message)})
}

func (h *widgetEndpoints) handleGetTyping(w http.ResponseWriter, r *http.Request) error {
	conv, err := h.ownedConversation(r)
	if err != nil {
		return err
	}

	items, err := h.services.Typing.Active(r.Context(), conv.ConversationID, typing.Actor{WidgetCustomerID: conv.WidgetCustomerID})
	if err != nil {
		return serviceError(err)
	}
	return WriteJSON(w, http.StatusOK, dto.TypingResponse{Typing: toTypingList(items)})
}

func (h *widgetEndpoints) handleSetTyping(w http.ResponseWriter, r *http.Request) error {
	conv, err := h.ownedConversation(r)
	if err != nil {
		return err
	}

	var req dto.TypingRequest
	if err := decodeJSON(w, r, &req); err != nil {
		return err
	}

	item, err := h.services.Typing.Set(r.Context(), conv.ConversationID, typing.Actor{WidgetCustomerID: conv.WidgetCustomerID}, *req.IsTyping)
	if err != nil {
		return serviceError(err)
	}

	h.events.typing(r.Context(), item)
	return WriteJSON(w, http.StatusOK, toTyping(item))
}

func (h *widgetEndpoints) authenticate(r *http.Request) (model.WidgetSessionItem, error) {
	token := strings.TrimSpace(r.Header.Get(SessionTokenHeader))
	sess, err := h.services.Sessions.Authenticate(r.Context(), token)
	if err != nil {
		return model.WidgetSessionItem{}, serviceError(err)
	}
	return sess, nil
}

func (h *widgetEndpoints) sessionAndConversation(r *http.Request) (model.WidgetSessionItem, string, error) {
	sess, err := h.authenticate(r)
	if err != nil {
		return model.WidgetSessionItem{}, "", err
	}
	conversationID, err := pathValue(r, "id")
	if err != nil {
		return model.WidgetSessionItem{}, "", err
	}
	return sess, conversationID, nil
}

func (h *widgetEndpoints) ownedConversation(r *http.Request) (model.ConversationItem, error) {
	sess, conversationID, err := h.sessionAndConversation(r)
	if err != nil {
		return model.ConversationItem{}, err
	}
	conv, err := h.services.Conversations.SessionOwns(r.Context(), sess, conversationID)
	if err != nil {
		return model.ConversationItem{}, serviceError(err)
	}
	return conv, nil
}
