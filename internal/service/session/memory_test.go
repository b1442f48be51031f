package session

import (
	"context"
	"sync"

	"chatdesk-backend/internal/model"
)

// memoryRepository enforces the same slot uniqueness as the DynamoDB
// transaction so races can be exercised without AWS.
type memoryRepository struct {
	mu       sync.Mutex
	widgets  map[string]model.WidgetItem
	sessions map[string]model.WidgetSessionItem
	slots    map[string]model.SessionSlotItem
	creates  int
}

func newMemoryRepository() *memoryRepository {
	return &memoryRepository{
		widgets:  make(map[string]model.WidgetItem),
		sessions: make(map[string]model.WidgetSessionItem),
		slots:    make(map[string]model.SessionSlotItem),
	}
}

func (m *memoryRepository) GetWidget(ctx context.Context, widgetKey string) (model.WidgetItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	widget, ok := m.widgets[widgetKey]
	if !ok {
		return model.WidgetItem{}, ErrNotFound
	}
	return widget, nil
}

func (m *memoryRepository) GetSession(ctx context.Context, sessionID string) (model.WidgetSessionItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[sessionID]
	if !ok {
		return model.WidgetSessionItem{}, ErrNotFound
	}
	return session, nil
}

func (m *memoryRepository) GetSessionByToken(ctx context.Context, token string) (model.WidgetSessionItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, session := range m.sessions {
		if session.SessionToken == token {
			return session, nil
		}
	}
	return model.WidgetSessionItem{}, ErrNotFound
}

func (m *memoryRepository) GetSlot(ctx context.Context, widgetKey, visitorID string) (model.SessionSlotItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	slot, ok := m.slots[model.SessionSlotPK(widgetKey, visitorID)]
	if !ok {
		return model.SessionSlotItem{}, ErrNotFound
	}
	return slot, nil
}

func (m *memoryRepository) CreateSession(ctx context.Context, session model.WidgetSessionItem, slot model.SessionSlotItem, now, replacing string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.sessions[session.SessionID]; exists {
		return ErrConflict
	}
	if held, ok := m.slots[slot.PK]; ok && held.ExpiresAt > now && (replacing == "" || held.SessionID != replacing) {
		return ErrConflict
	}
	m.sessions[session.SessionID] = session
	m.slots[slot.PK] = slot
	m.creates++
	return nil
}

func (m *memoryRepository) TouchSession(ctx context.Context, params TouchParams) (model.WidgetSessionItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[params.SessionID]
	if !ok || !session.IsActive {
		return model.WidgetSessionItem{}, ErrConflict
	}
	session.LastSeenAt = params.LastSeenAt
	if params.CurrentURL != "" {
		session.CurrentURL = params.CurrentURL
	}
	if params.ExpiresAt != "" {
		session.ExpiresAt = params.ExpiresAt
		if slot, ok := m.slots[params.SlotPK]; ok && slot.SessionID == session.SessionID {
			slot.ExpiresAt = params.ExpiresAt
			m.slots[params.SlotPK] = slot
		}
	}
	m.sessions[session.SessionID] = session
	return session, nil
}

func (m *memoryRepository) DeactivateSession(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[sessionID]
	if !ok {
		return ErrNotFound
	}
	session.IsActive = false
	m.sessions[sessionID] = session
	return nil
}

func (m *memoryRepository) AttachConversation(ctx context.Context, sessionID, conversationID, replacing string) (model.WidgetSessionItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[sessionID]
	if !ok || !session.IsActive {
		return model.WidgetSessionItem{}, ErrConflict
	}
	current := session.ConversationID
	if current != "" && current != conversationID && (replacing == "" || current != replacing) {
		return model.WidgetSessionItem{}, ErrConflict
	}
	session.ConversationID = conversationID
	m.sessions[sessionID] = session
	return session, nil
}

func (m *memoryRepository) sessionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func (m *memoryRepository) session(id string) model.WidgetSessionItem {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[id]
}
