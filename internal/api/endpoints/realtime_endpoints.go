package endpoints

import (
	"net/http"
	"strings"

	"chatdesk-backend/internal/api"
	"chatdesk-backend/internal/model"
	"chatdesk-backend/internal/service/conversation"
	"chatdesk-backend/internal/service/session"
	"chatdesk-backend/internal/websocket"

	"github.com/rs/zerolog/log"
)

// RealtimeEndpoints upgrades authorised callers into websocket rooms.
type RealtimeEndpoints interface {
	WidgetConversation(http.ResponseWriter, *http.Request) error
	AgentConversation(http.ResponseWriter, *http.Request) error
	AgentNotifications(http.ResponseWriter, *http.Request) error
	Rooms(http.ResponseWriter, *http.Request) error
}

type realtimeEndpoints struct {
	sessions      *session.Service
	conversations *conversation.Service
	handler       *websocket.Handler
}

func NewRealtimeEndpoints(services *api.Services, handler *websocket.Handler) RealtimeEndpoints {
	return &realtimeEndpoints{
		sessions:      services.Sessions,
		conversations: services.Conversations,
		handler:       handler,
	}
}

func (h *realtimeEndpoints) WidgetConversation(w http.ResponseWriter, r *http.Request) error {
	return MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
		http.MethodGet: h.handleWidgetConversation,
	})
}

func (h *realtimeEndpoints) AgentConversation(w http.ResponseWriter, r *http.Request) error {
	return MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
		http.MethodGet: h.handleAgentConversation,
	})
}

func (h *realtimeEndpoints) AgentNotifications(w http.ResponseWriter, r *http.Request) error {
	return MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
		http.MethodGet: h.handleAgentNotifications,
	})
}

func (h *realtimeEndpoints) Rooms(w http.ResponseWriter, r *http.Request) error {
	return MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
		http.MethodGet: h.handleRooms,
	})
}

func (h *realtimeEndpoints) handleRooms(w http.ResponseWriter, r *http.Request) error {
	identity, err := agentIdentity(r)
	if err != nil {
		return err
	}
	conversations, err := h.conversations.ListConversations(r.Context(), identity, "")
	if err != nil {
		return serviceError(err)
	}
	return WriteJSON(w, http.StatusOK, visibleRooms(h.handler.Rooms(), identity.OrganizationID, conversations))
}

// visibleRooms keeps the organization's notification room and the rooms of
// its conversations.
func visibleRooms(rooms []websocket.RoomRes, organizationID string, conversations []model.ConversationItem) []websocket.RoomRes {
	allowed := make(map[string]struct{}, len(conversations)+1)
	allowed[websocket.NotificationRoom(organizationID)] = struct{}{}
	for _, c := range conversations {
		allowed[websocket.ConversationRoom(c.ConversationID)] = struct{}{}
	}
	out := make([]websocket.RoomRes, 0, len(rooms))
	for _, room := range rooms {
		if _, ok := allowed[room.ID]; ok {
			out = append(out, room)
		}
	}
	return out
}

func (h *realtimeEndpoints) handleWidgetConversation(w http.ResponseWriter, r *http.Request) error {
	token := strings.TrimSpace(r.URL.Query().Get("token"))
	if token == "" {
		token = strings.TrimSpace(r.Header.Get(SessionTokenHeader))
	}

	sess, err := h.sessions.Authenticate(r.Context(), token)
	if err != nil {
		return serviceError(err)
	}
	conversationID, err := pathValue(r, "id")
	if err != nil {
		return err
	}
	if _, err := h.conversations.SessionOwns(r.Context(), sess, conversationID); err != nil {
		return serviceError(err)
	}

	return h.join(w, r, websocket.ConversationRoom(conversationID), sess.SessionID)
}

func (h *realtimeEndpoints) handleAgentConversation(w http.ResponseWriter, r *http.Request) error {
	identity, conversationID, err := agentAndConversation(r)
	if err != nil {
		return err
	}
	if _, err := h.conversations.AgentConversation(r.Context(), identity, conversationID); err != nil {
		return serviceError(err)
	}

	return h.join(w, r, websocket.ConversationRoom(conversationID), identity.UserID)
}

func (h *realtimeEndpoints) handleAgentNotifications(w http.ResponseWriter, r *http.Request) error {
	identity, err := agentIdentity(r)
	if err != nil {
		return err
	}
	if err := h.conversations.Authorize(r.Context(), identity); err != nil {
		return serviceError(err)
	}

	return h.join(w, r, websocket.NotificationRoom(identity.OrganizationID), identity.UserID)
}

// join never returns the upgrade error: the upgrader has already answered
// the request by then.
func (h *realtimeEndpoints) join(w http.ResponseWriter, r *http.Request, roomID, userID string) error {
	if err := h.handler.JoinRoom(w, r, roomID, userID); err != nil {
		log.Warn().Err(err).Str("room", roomID).Str("user_id", userID).Msg("websocket join failed")
	}
	return nil
}
