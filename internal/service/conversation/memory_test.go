package conversation

import (
	"context"
	"sync"

	"chatdesk-backend/internal/model"
)

type memoryRepository struct {
	mu            sync.Mutex
	agents        map[string]model.AgentItem
	customers     map[string]model.WidgetCustomerItem
	conversations map[string]model.ConversationItem
	messages      map[string]model.MessageItem
}

func newMemoryRepository() *memoryRepository {
	return &memoryRepository{
		agents:        make(map[string]model.AgentItem),
		customers:     make(map[string]model.WidgetCustomerItem),
		conversations: make(map[string]model.ConversationItem),
		messages:      make(map[string]model.MessageItem),
	}
}

func (m *memoryRepository) GetAgent(ctx context.Context, organizationID, userID string) (model.AgentItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	agent, ok := m.agents[model.AgentPK(organizationID, userID)]
	if !ok {
		return model.AgentItem{}, ErrNotFound
	}
	return agent, nil
}

func (m *memoryRepository) UpsertWidgetCustomer(ctx context.Context, customer model.WidgetCustomerItem) (model.WidgetCustomerItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.customers[customer.PK]; ok {
		existing.LastSeenAt = customer.LastSeenAt
		if customer.Name != "" {
			existing.Name = customer.Name
		}
		if customer.Email != "" {
			existing.Email = customer.Email
		}
		if customer.Phone != "" {
			existing.Phone = customer.Phone
		}
		m.customers[customer.PK] = existing
		return existing, nil
	}
	m.customers[customer.PK] = customer
	return customer, nil
}

func (m *memoryRepository) CreateConversation(ctx context.Context, conversation model.ConversationItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.conversations[conversation.PK]; ok {
		return ErrConflict
	}
	m.conversations[conversation.PK] = conversation
	return nil
}

func (m *memoryRepository) GetConversation(ctx context.Context, organizationID, conversationID string) (model.ConversationItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	conv, ok := m.conversations[model.ConversationPK(organizationID, conversationID)]
	if !ok {
		return model.ConversationItem{}, ErrNotFound
	}
	return conv, nil
}

func (m *memoryRepository) ListConversations(ctx context.Context, organizationID string) ([]model.ConversationItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.ConversationItem
	for _, conv := range m.conversations {
		if conv.OrganizationID == organizationID {
			out = append(out, conv)
		}
	}
	return out, nil
}

// update applies fn under the lock when guard accepts the current row.
func (m *memoryRepository) update(organizationID, conversationID string, guard func(model.ConversationItem) bool, fn func(*model.ConversationItem)) (model.ConversationItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pk := model.ConversationPK(organizationID, conversationID)
	conv, ok := m.conversations[pk]
	if !ok || !guard(conv) {
		return model.ConversationItem{}, ErrConflict
	}
	fn(&conv)
	m.conversations[pk] = conv
	return conv, nil
}

func always(model.ConversationItem) bool { return true }

func notClosedConv(c model.ConversationItem) bool { return c.Status != model.ConversationStatusClosed }

func (m *memoryRepository) ActivateConversation(ctx context.Context, organizationID, conversationID, agentID, now string) (model.ConversationItem, error) {
	return m.update(organizationID, conversationID,
		func(c model.ConversationItem) bool { return c.Status == model.ConversationStatusWaiting },
		func(c *model.ConversationItem) {
			c.Status = model.ConversationStatusActive
			c.AgentID = agentID
			if c.AssignedAt == "" {
				c.AssignedAt = now
			}
			c.UpdatedAt = now
		})
}

func (m *memoryRepository) TouchConversation(ctx context.Context, organizationID, conversationID, now string) (model.ConversationItem, error) {
	return m.update(organizationID, conversationID, always, func(c *model.ConversationItem) { c.UpdatedAt = now })
}

func (m *memoryRepository) CloseConversation(ctx context.Context, organizationID, conversationID, now string) (model.ConversationItem, error) {
	return m.update(organizationID, conversationID, notClosedConv, func(c *model.ConversationItem) {
		c.Status = model.ConversationStatusClosed
		c.ClosedAt = now
		c.UpdatedAt = now
	})
}

func (m *memoryRepository) EscalateConversation(ctx context.Context, organizationID, conversationID, now string) (model.ConversationItem, error) {
	return m.update(organizationID, conversationID, notClosedConv, func(c *model.ConversationItem) {
		c.Status = model.ConversationStatusTicket
		c.UpdatedAt = now
	})
}

func (m *memoryRepository) AssignAgent(ctx context.Context, organizationID, conversationID, agentID, now string) (model.ConversationItem, error) {
	return m.update(organizationID, conversationID, notClosedConv, func(c *model.ConversationItem) {
		c.AgentID = agentID
		if c.AssignedAt == "" {
			c.AssignedAt = now
		}
		c.UpdatedAt = now
	})
}

func (m *memoryRepository) UpdateTicket(ctx context.Context, organizationID, conversationID string, update TicketUpdate, now string) (model.ConversationItem, error) {
	return m.update(organizationID, conversationID, always, func(c *model.ConversationItem) {
		if update.Priority != nil {
			c.TicketPriority = *update.Priority
		}
		if update.Tags != nil {
			c.TicketTags = append([]string(nil), (*update.Tags)...)
		}
		if update.Notes != nil {
			c.TicketNotes = *update.Notes
		}
		c.UpdatedAt = now
	})
}

func (m *memoryRepository) CreateMessage(ctx context.Context, message model.MessageItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.messages[message.PK]; ok {
		return ErrConflict
	}
	conv, ok := m.conversations[model.ConversationPK(message.OrganizationID, message.ConversationID)]
	if !ok || !notClosedConv(conv) {
		return ErrConflict
	}
	m.messages[message.PK] = message
	return nil
}

func (m *memoryRepository) GetMessage(ctx context.Context, conversationID, messageID string) (model.MessageItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.messages[model.MessagePK(conversationID, messageID)]
	if !ok {
		return model.MessageItem{}, ErrNotFound
	}
	return msg, nil
}

func (m *memoryRepository) ListMessages(ctx context.Context, conversationID string) ([]model.MessageItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.MessageItem
	for _, msg := range m.messages {
		if msg.ConversationID == conversationID {
			out = append(out, msg)
		}
	}
	SortMessages(out)
	return out, nil
}

func (m *memoryRepository) UpdateMessageStatus(ctx context.Context, conversationID, messageID string, status model.MessageStatus) (model.MessageItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pk := model.MessagePK(conversationID, messageID)
	msg, ok := m.messages[pk]
	if !ok || msg.Status.Rank() >= status.Rank() {
		return model.MessageItem{}, ErrConflict
	}
	msg.Status = status
	m.messages[pk] = msg
	return msg, nil
}

func (m *memoryRepository) conversation(orgID, id string) model.ConversationItem {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conversations[model.ConversationPK(orgID, id)]
}

func (m *memoryRepository) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.conversations)
}

// fakeBinder mirrors the conditional attach of the session repository.
type fakeBinder struct {
	mu       sync.Mutex
	attached map[string]string
}

func (b *fakeBinder) Session(ctx context.Context, sessionID string) (model.WidgetSessionItem, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return model.WidgetSessionItem{SessionID: sessionID, OrganizationID: orgID, ConversationID: b.attached[sessionID], IsActive: true}, nil
}

func (b *fakeBinder) AttachConversation(ctx context.Context, sessionID, conversationID, replacing string) (model.WidgetSessionItem, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	current := b.attached[sessionID]
	if current != "" && current != conversationID && current != replacing {
		return model.WidgetSessionItem{}, sessionConflict
	}
	b.attached[sessionID] = conversationID
	return model.WidgetSessionItem{SessionID: sessionID, ConversationID: conversationID, IsActive: true}, nil
}
