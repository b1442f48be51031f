package endpoints

import (
	"errors"
	"net/http"
	"strings"

	"chatdesk-backend/internal/api"
	"chatdesk-backend/internal/api/middleware"
	"chatdesk-backend/internal/dto"
	"chatdesk-backend/internal/model"
	"chatdesk-backend/internal/service/conversation"
	"chatdesk-backend/internal/service/typing"
)

type AgentEndpoints interface {
	Conversations(http.ResponseWriter, *http.Request) error
	Conversation(http.ResponseWriter, *http.Request) error
	Messages(http.ResponseWriter, *http.Request) error
	Message(http.ResponseWriter, *http.Request) error
	Typing(http.ResponseWriter, *http.Request) error
}

type agentEndpoints struct {
	conversations *conversation.Service
	typing        *typing.Service
	events        broadcaster
}

func NewAgentEndpoints(services *api.Services, publisher api.EventPublisher) AgentEndpoints {
	return &agentEndpoints{
		conversations: services.Conversations,
		typing:        services.Typing,
		events:        broadcaster{publisher: publisher},
	}
}

func (h *agentEndpoints) Conversations(w http.ResponseWriter, r *http.Request) error {
	return MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
		http.MethodGet: h.handleListConversations,
	})
}

func (h *agentEndpoints) Conversation(w http.ResponseWriter, r *http.Request) error {
	return MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
		http.MethodGet:    h.handleGetConversation,
		http.MethodPut:    h.handleUpdateConversation,
		http.MethodDelete: h.handleCloseConversation,
	})
}

func (h *agentEndpoints) Messages(w http.ResponseWriter, r *http.Request) error {
	return MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
		http.MethodGet:  h.handleListMessages,
		http.MethodPost: h.handleSendMessage,
	})
}

func (h *agentEndpoints) Message(w http.ResponseWriter, r *http.Request) error {
	return MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
		http.MethodPatch: h.handleUpdateMessageStatus,
	})
}

func (h *agentEndpoints) Typing(w http.ResponseWriter, r *http.Request) error {
	return MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
		http.MethodGet:  h.handleGetTyping,
		http.MethodPost: h.handleSetTyping,
	})
}

func (h *agentEndpoints) handleListConversations(w http.ResponseWriter, r *http.Request) error {
	identity, err := agentIdentity(r)
	if err != nil {
		return err
	}

	status := strings.TrimSpace(r.URL.Query().Get("status"))
	items, err := h.conversations.ListConversations(r.Context(), identity, status)
	if err != nil {
		return serviceError(err)
	}
	return WriteJSON(w, http.StatusOK, dto.ListConversationsResponse{Conversations: toConversations(items)})
}

func (h *agentEndpoints) handleGetConversation(w http.ResponseWriter, r *http.Request) error {
	identity, conversationID, err := agentAndConversation(r)
	if err != nil {
		return err
	}

	result, err := h.conversations.GetConversation(r.Context(), identity, conversationID)
	if err != nil {
		return serviceError(err)
	}
	return WriteJSON(w, http.StatusOK, dto.ConversationResponse{
		Conversation: toConversation(result.Conversation),
		Messages:     toMessages(result.Messages),
	})
}

func (h *agentEndpoints) handleUpdateConversation(w http.ResponseWriter, r *http.Request) error {
	identity, conversationID, err := agentAndConversation(r)
	if err != nil {
		return err
	}

	var req dto.UpdateConversationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		return err
	}

	params := conversation.UpdateParams{
		AgentID:        req.AgentID,
		TicketPriority: req.TicketPriority,
		TicketTags:     req.TicketTags,
		TicketNotes:    req.TicketNotes,
	}
	if req.Status != nil {
		status := model.ConversationStatus(*req.Status)
		params.Status = &status
	}

	result, err := h.conversations.UpdateConversation(r.Context(), identity, conversationID, params)
	if err != nil {
		return serviceError(err)
	}

	h.events.conversationUpdated(r.Context(), result.Conversation)
	return WriteJSON(w, http.StatusOK, dto.ConversationResponse{Conversation: toConversation(result.Conversation)})
}

func (h *agentEndpoints) handleCloseConversation(w http.ResponseWriter, r *http.Request) error {
	identity, conversationID, err := agentAndConversation(r)
	if err != nil {
		return err
	}

	result, err := h.conversations.CloseConversation(r.Context(), identity, conversationID)
	if err != nil {
		return serviceError(err)
	}

	if result.StatusChanged {
		h.events.conversationUpdated(r.Context(), result.Conversation)
	}
	return WriteJSON(w, http.StatusOK, dto.ConversationResponse{Conversation: toConversation(result.Conversation)})
}

func (h *agentEndpoints) handleListMessages(w http.ResponseWriter, r *http.Request) error {
	identity, conversationID, err := agentAndConversation(r)
	if err != nil {
		return err
	}

	result, err := h.conversations.GetConversation(r.Context(), identity, conversationID)
	if err != nil {
		return serviceError(err)
	}
	return WriteJSON(w, http.StatusOK, dto.ListMessagesResponse{Messages: toMessages(result.Messages)})
}

func (h *agentEndpoints) handleSendMessage(w http.ResponseWriter, r *http.Request) error {
	identity, conversationID, err := agentAndConversation(r)
	if err != nil {
		return err
	}

	var req dto.SendMessageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		return err
	}

	result, err := h.conversations.PostAgentMessage(r.Context(), identity, conversationID, toMessageInput(req))
	if err != nil {
		return serviceError(err)
	}

	h.events.messageCreated(r.Context(), result.Conversation, result.Message)
	if result.StatusChanged {
		h.events.conversationUpdated(r.Context(), result.Conversation)
	}
	return WriteJSON(w, http.StatusCreated, dto.MessageResponse{Message: toMessage(result.Message)})
}

func (h *agentEndpoints) handleUpdateMessageStatus(w http.ResponseWriter, r *http.Request) error {
	identity, conversationID, err := agentAndConversation(r)
	if err != nil {
		return err
	}
	messageID, err := pathValue(r, "messageId")
	if err != nil {
		return err
	}

	var req dto.UpdateMessageStatusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		return err
	}

	message, err := h.conversations.UpdateMessageStatus(r.Context(), identity, conversationID, messageID, model.MessageStatus(req.Status))
	if err != nil {
		return serviceError(err)
	}
	return WriteJSON(w, http.StatusOK, dto.MessageResponse{Message: toMessage(message)})
}

func (h *agentEndpoints) handleGetTyping(w http.ResponseWriter, r *http.Request) error {
	identity, conv, err := h.agentConversation(r)
	if err != nil {
		return err
	}

	items, err := h.typing.Active(r.Context(), conv.ConversationID, typing.Actor{UserID: identity.UserID})
	if err != nil {
		return serviceError(err)
	}
	return WriteJSON(w, http.StatusOK, dto.TypingResponse{Typing: toTypingList(items)})
}

func (h *agentEndpoints) handleSetTyping(w http.ResponseWriter, r *http.Request) error {
	identity, conv, err := h.agentConversation(r)
	if err != nil {
		return err
	}

	var req dto.TypingRequest
	if err := decodeJSON(w, r, &req); err != nil {
		return err
	}

	item, err := h.typing.Set(r.Context(), conv.ConversationID, typing.Actor{UserID: identity.UserID}, *req.IsTyping)
	if err != nil {
		return serviceError(err)
	}

	h.events.typing(r.Context(), item)
	return WriteJSON(w, http.StatusOK, toTyping(item))
}

func (h *agentEndpoints) agentConversation(r *http.Request) (conversation.Identity, model.ConversationItem, error) {
	identity, conversationID, err := agentAndConversation(r)
	if err != nil {
		return conversation.Identity{}, model.ConversationItem{}, err
	}
	conv, err := h.conversations.AgentConversation(r.Context(), identity, conversationID)
	if err != nil {
		return conversation.Identity{}, model.ConversationItem{}, serviceError(err)
	}
	return identity, conv, nil
}

// agentIdentity reads the agent placed on the context by ValidateAgentJWT.
func agentIdentity(r *http.Request) (conversation.Identity, error) {
	agent, ok := middleware.AgentFromContext(r.Context())
	if !ok {
		return conversation.Identity{}, &HTTPError{
			StatusCode: http.StatusUnauthorized,
			Message:    "Unauthorized",
			ErrorLog:   errors.New("agent missing from request context"),
		}
	}
	return conversation.Identity{
		UserID:         agent.Id,
		OrganizationID: agent.OrganizationID,
		Email:          agent.Email,
	}, nil
}

func agentAndConversation(r *http.Request) (conversation.Identity, string, error) {
	identity, err := agentIdentity(r)
	if err != nil {
		return conversation.Identity{}, "", err
	}
	conversationID, err := pathValue(r, "id")
	if err != nil {
		return conversation.Identity{}, "", err
	}
	return identity, conversationID, nil
}
