// Package memstore keeps every chatdesk repository in process memory. It
// applies the same conditional writes as the DynamoDB repositories and
// backs handler and client tests that need a full stack without AWS.
package memstore

import (
	"context"
	"sync"

	"chatdesk-backend/internal/model"
	"chatdesk-backend/internal/service/conversation"
	"chatdesk-backend/internal/service/department"
	"chatdesk-backend/internal/service/session"
	"chatdesk-backend/internal/service/typing"
)

// Store shares one lock across all repositories.
type Store struct {
	mu            sync.Mutex
	widgets       map[string]model.WidgetItem
	sessions      map[string]model.WidgetSessionItem
	slots         map[string]model.SessionSlotItem
	agents        map[string]model.AgentItem
	customers     map[string]model.WidgetCustomerItem
	conversations map[string]model.ConversationItem
	messages      map[string]model.MessageItem
	typing        map[string]model.TypingItem
	departments   []model.DepartmentItem
}

func New() *Store {
	return &Store{
		widgets:       make(map[string]model.WidgetItem),
		sessions:      make(map[string]model.WidgetSessionItem),
		slots:         make(map[string]model.SessionSlotItem),
		agents:        make(map[string]model.AgentItem),
		customers:     make(map[string]model.WidgetCustomerItem),
		conversations: make(map[string]model.ConversationItem),
		messages:      make(map[string]model.MessageItem),
		typing:        make(map[string]model.TypingItem),
	}
}

func (s *Store) PutWidget(widget model.WidgetItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.widgets[widget.WidgetKey] = widget
}

func (s *Store) PutAgent(agent model.AgentItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	agent.PK = model.AgentPK(agent.OrganizationID, agent.UserID)
	s.agents[agent.PK] = agent
}

func (s *Store) PutDepartment(dept model.DepartmentItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	dept.PK = model.DepartmentPK(dept.OrganizationID, dept.DepartmentID)
	s.departments = append(s.departments, dept)
}

// Sessions returns the store as a session.Repository.
func (s *Store) Sessions() session.Repository { return sessionRepository{s} }

// Conversations returns the store as a conversation.Repository.
func (s *Store) Conversations() conversation.Repository { return conversationRepository{s} }

// Typing returns the store as a typing.Repository.
func (s *Store) Typing() typing.Repository { return typingRepository{s} }

// Departments returns the store as a department.Directory.
func (s *Store) Departments() department.Directory { return departmentDirectory{s} }

type sessionRepository struct{ s *Store }

func (r sessionRepository) GetWidget(ctx context.Context, widgetKey string) (model.WidgetItem, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	widget, ok := r.s.widgets[widgetKey]
	if !ok {
		return model.WidgetItem{}, session.ErrNotFound
	}
	return widget, nil
}

func (r sessionRepository) GetSession(ctx context.Context, sessionID string) (model.WidgetSessionItem, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	item, ok := r.s.sessions[sessionID]
	if !ok {
		return model.WidgetSessionItem{}, session.ErrNotFound
	}
	return item, nil
}

func (r sessionRepository) GetSessionByToken(ctx context.Context, token string) (model.WidgetSessionItem, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, item := range r.s.sessions {
		if item.SessionToken == token {
			return item, nil
		}
	}
	return model.WidgetSessionItem{}, session.ErrNotFound
}

func (r sessionRepository) GetSlot(ctx context.Context, widgetKey, visitorID string) (model.SessionSlotItem, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	slot, ok := r.s.slots[model.SessionSlotPK(widgetKey, visitorID)]
	if !ok {
		return model.SessionSlotItem{}, session.ErrNotFound
	}
	return slot, nil
}

func (r sessionRepository) CreateSession(ctx context.Context, item model.WidgetSessionItem, slot model.SessionSlotItem, now, replacing string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, exists := r.s.sessions[item.SessionID]; exists {
		return session.ErrConflict
	}
	if held, ok := r.s.slots[slot.PK]; ok && held.ExpiresAt > now && (replacing == "" || held.SessionID != replacing) {
		return session.ErrConflict
	}
	r.s.sessions[item.SessionID] = item
	r.s.slots[slot.PK] = slot
	return nil
}

func (r sessionRepository) TouchSession(ctx context.Context, params session.TouchParams) (model.WidgetSessionItem, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	item, ok := r.s.sessions[params.SessionID]
	if !ok || !item.IsActive {
		return model.WidgetSessionItem{}, session.ErrConflict
	}
	item.LastSeenAt = params.LastSeenAt
	if params.CurrentURL != "" {
		item.CurrentURL = params.CurrentURL
	}
	if params.ExpiresAt != "" {
		item.ExpiresAt = params.ExpiresAt
		if slot, ok := r.s.slots[params.SlotPK]; ok && slot.SessionID == item.SessionID {
			slot.ExpiresAt = params.ExpiresAt
			r.s.slots[params.SlotPK] = slot
		}
	}
	r.s.sessions[item.SessionID] = item
	return item, nil
}

func (r sessionRepository) DeactivateSession(ctx context.Context, sessionID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	item, ok := r.s.sessions[sessionID]
	if !ok {
		return session.ErrNotFound
	}
	item.IsActive = false
	r.s.sessions[sessionID] = item
	return nil
}

func (r sessionRepository) AttachConversation(ctx context.Context, sessionID, conversationID, replacing string) (model.WidgetSessionItem, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	item, ok := r.s.sessions[sessionID]
	if !ok || !item.IsActive {
		return model.WidgetSessionItem{}, session.ErrConflict
	}
	current := item.ConversationID
	if current != "" && current != conversationID && (replacing == "" || current != replacing) {
		return model.WidgetSessionItem{}, session.ErrConflict
	}
	item.ConversationID = conversationID
	r.s.sessions[sessionID] = item
	return item, nil
}

type conversationRepository struct{ s *Store }

func (r conversationRepository) GetAgent(ctx context.Context, organizationID, userID string) (model.AgentItem, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	agent, ok := r.s.agents[model.AgentPK(organizationID, userID)]
	if !ok {
		return model.AgentItem{}, conversation.ErrNotFound
	}
	return agent, nil
}

func (r conversationRepository) UpsertWidgetCustomer(ctx context.Context, customer model.WidgetCustomerItem) (model.WidgetCustomerItem, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	existing, ok := r.s.customers[customer.PK]
	if !ok {
		r.s.customers[customer.PK] = customer
		return customer, nil
	}
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
	r.s.customers[customer.PK] = existing
	return existing, nil
}

func (r conversationRepository) CreateConversation(ctx context.Context, item model.ConversationItem) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.conversations[item.PK]; ok {
		return conversation.ErrConflict
	}
	r.s.conversations[item.PK] = item
	return nil
}

func (r conversationRepository) GetConversation(ctx context.Context, organizationID, conversationID string) (model.ConversationItem, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	item, ok := r.s.conversations[model.ConversationPK(organizationID, conversationID)]
	if !ok {
		return model.ConversationItem{}, conversation.ErrNotFound
	}
	return item, nil
}

func (r conversationRepository) ListConversations(ctx context.Context, organizationID string) ([]model.ConversationItem, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []model.ConversationItem
	for _, item := range r.s.conversations {
		if item.OrganizationID == organizationID {
			out = append(out, item)
		}
	}
	return out, nil
}

func (r conversationRepository) update(organizationID, conversationID string, guard func(model.ConversationItem) bool, fn func(*model.ConversationItem)) (model.ConversationItem, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	pk := model.ConversationPK(organizationID, conversationID)
	item, ok := r.s.conversations[pk]
	if !ok || (guard != nil && !guard(item)) {
		return model.ConversationItem{}, conversation.ErrConflict
	}
	fn(&item)
	r.s.conversations[pk] = item
	return item, nil
}

func open(c model.ConversationItem) bool { return c.Status != model.ConversationStatusClosed }

func (r conversationRepository) ActivateConversation(ctx context.Context, organizationID, conversationID, agentID, now string) (model.ConversationItem, error) {
	waiting := func(c model.ConversationItem) bool { return c.Status == model.ConversationStatusWaiting }
	return r.update(organizationID, conversationID, waiting, func(c *model.ConversationItem) {
		c.Status = model.ConversationStatusActive
		c.AgentID = agentID
		if c.AssignedAt == "" {
			c.AssignedAt = now
		}
		c.UpdatedAt = now
	})
}

func (r conversationRepository) TouchConversation(ctx context.Context, organizationID, conversationID, now string) (model.ConversationItem, error) {
	return r.update(organizationID, conversationID, nil, func(c *model.ConversationItem) { c.UpdatedAt = now })
}

func (r conversationRepository) CloseConversation(ctx context.Context, organizationID, conversationID, now string) (model.ConversationItem, error) {
	return r.update(organizationID, conversationID, open, func(c *model.ConversationItem) {
		c.Status = model.ConversationStatusClosed
		c.ClosedAt = now
		c.UpdatedAt = now
	})
}

func (r conversationRepository) EscalateConversation(ctx context.Context, organizationID, conversationID, now string) (model.ConversationItem, error) {
	return r.update(organizationID, conversationID, open, func(c *model.ConversationItem) {
		c.Status = model.ConversationStatusTicket
		c.UpdatedAt = now
	})
}

func (r conversationRepository) AssignAgent(ctx context.Context, organizationID, conversationID, agentID, now string) (model.ConversationItem, error) {
	return r.update(organizationID, conversationID, open, func(c *model.ConversationItem) {
		c.AgentID = agentID
		if c.AssignedAt == "" {
			c.AssignedAt = now
		}
		c.UpdatedAt = now
	})
}

func (r conversationRepository) UpdateTicket(ctx context.Context, organizationID, conversationID string, update conversation.TicketUpdate, now string) (model.ConversationItem, error) {
	return r.update(organizationID, conversationID, nil, func(c *model.ConversationItem) {
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

func (r conversationRepository) CreateMessage(ctx context.Context, message model.MessageItem) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.messages[message.PK]; ok {
		return conversation.ErrConflict
	}
	conv, ok := r.s.conversations[model.ConversationPK(message.OrganizationID, message.ConversationID)]
	if !ok || !open(conv) {
		return conversation.ErrConflict
	}
	r.s.messages[message.PK] = message
	return nil
}

func (r conversationRepository) GetMessage(ctx context.Context, conversationID, messageID string) (model.MessageItem, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	message, ok := r.s.messages[model.MessagePK(conversationID, messageID)]
	if !ok {
		return model.MessageItem{}, conversation.ErrNotFound
	}
	return message, nil
}

func (r conversationRepository) ListMessages(ctx context.Context, conversationID string) ([]model.MessageItem, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []model.MessageItem
	for _, message := range r.s.messages {
		if message.ConversationID == conversationID {
			out = append(out, message)
		}
	}
	conversation.SortMessages(out)
	return out, nil
}

func (r conversationRepository) UpdateMessageStatus(ctx context.Context, conversationID, messageID string, status model.MessageStatus) (model.MessageItem, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	pk := model.MessagePK(conversationID, messageID)
	message, ok := r.s.messages[pk]
	if !ok || message.Status.Rank() >= status.Rank() {
		return model.MessageItem{}, conversation.ErrConflict
	}
	message.Status = status
	r.s.messages[pk] = message
	return message, nil
}

type typingRepository struct{ s *Store }

func (r typingRepository) Upsert(ctx context.Context, item model.TypingItem) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.typing[item.PK] = item
	return nil
}

func (r typingRepository) List(ctx context.Context, conversationID string) ([]model.TypingItem, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []model.TypingItem
	for _, item := range r.s.typing {
		if item.ConversationID == conversationID {
			out = append(out, item)
		}
	}
	return out, nil
}

type departmentDirectory struct{ s *Store }

func (d departmentDirectory) List(ctx context.Context, organizationID string) ([]model.DepartmentItem, error) {
	d.s.mu.Lock()
	defer d.s.mu.Unlock()
	var out []model.DepartmentItem
	for _, dept := range d.s.departments {
		if dept.OrganizationID == organizationID {
			out = append(out, dept)
		}
	}
	return out, nil
}

func (d departmentDirectory) Get(ctx context.Context, organizationID, departmentID string) (model.DepartmentItem, error) {
	d.s.mu.Lock()
	defer d.s.mu.Unlock()
	for _, dept := range d.s.departments {
		if dept.OrganizationID == organizationID && dept.DepartmentID == departmentID {
			return dept, nil
		}
	}
	return model.DepartmentItem{}, department.ErrNotFound
}
