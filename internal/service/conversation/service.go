package conversation

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"chatdesk-backend/internal/database"
	"chatdesk-backend/internal/model"
	"chatdesk-backend/internal/service/department"
	"chatdesk-backend/internal/service/prechat"
	"chatdesk-backend/internal/service/session"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

type ErrorCode string

const (
	ErrorCodeValidation   ErrorCode = "validation_error"
	ErrorCodeUnauthorized ErrorCode = "unauthorized"
	ErrorCodeForbidden    ErrorCode = "forbidden"
	ErrorCodeNotFound     ErrorCode = "not_found"
	ErrorCodeConflict     ErrorCode = "conflict"
	ErrorCodeInternal     ErrorCode = "internal_error"
)

type Error struct {
	Code    ErrorCode
	Message string
	Err     error
	// MissingFieldIDs lists required pre-chat fields left empty.
	MissingFieldIDs []string
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(code ErrorCode, message string, err error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Identity is an authenticated agent.
type Identity struct {
	UserID         string
	OrganizationID string
	Email          string
}

// SessionBinder links conversations to widget sessions.
type SessionBinder interface {
	Session(ctx context.Context, sessionID string) (model.WidgetSessionItem, error)
	AttachConversation(ctx context.Context, sessionID, conversationID, replacing string) (model.WidgetSessionItem, error)
}

type Contact struct {
	Name  string
	Email string
	Phone string
}

type StartParams struct {
	Session      model.WidgetSessionItem
	DepartmentID string
	// DefaultDepartmentID comes from the widget configuration.
	DefaultDepartmentID string
	PreChatData         map[string]any
	Contact             Contact
}

type StartResult struct {
	Conversation model.ConversationItem
	Customer     model.WidgetCustomerItem
	// Existing is true when the session's open conversation was returned.
	Existing bool
}

type MessageInput struct {
	Content     string
	MessageType model.MessageType
	MediaURL    string
	MediaType   string
	MediaSize   int64
	MediaName   string
}

type MessageResult struct {
	Conversation model.ConversationItem
	Message      model.MessageItem
	// StatusChanged is true when the message moved the conversation out of
	// waiting.
	StatusChanged bool
}

type ConversationResult struct {
	Conversation model.ConversationItem
	Messages     []model.MessageItem
}

type UpdateParams struct {
	Status         *model.ConversationStatus
	AgentID        *string
	TicketPriority *string
	TicketTags     *[]string
	TicketNotes    *string
}

type UpdateResult struct {
	Conversation  model.ConversationItem
	StatusChanged bool
}

type Service struct {
	repo        Repository
	departments *department.Service
	sessions    SessionBinder
	now         func() time.Time

	seqMu   sync.Mutex
	lastSeq int64
}

func New(db *database.Database, departments *department.Service, sessions SessionBinder) *Service {
	return NewWithRepository(NewDynamoRepository(db), departments, sessions, time.Now)
}

func NewWithRepository(repo Repository, departments *department.Service, sessions SessionBinder, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{
		repo:        repo,
		departments: departments,
		sessions:    sessions,
		now:         now,
	}
}

// StartConversation creates a waiting conversation for a widget session
// once the department's pre-chat form is satisfied. A session with an open
// conversation gets that conversation back instead.
func (s *Service) StartConversation(ctx context.Context, params StartParams) (StartResult, error) {
	sess := params.Session
	replacing := ""

	if sess.ConversationID != "" {
		existing, err := s.repo.GetConversation(ctx, sess.OrganizationID, sess.ConversationID)
		switch {
		case err == nil && existing.Status != model.ConversationStatusClosed:
			return StartResult{Conversation: existing, Existing: true}, nil
		case err == nil || errors.Is(err, ErrNotFound):
			replacing = sess.ConversationID
		default:
			return StartResult{}, newError(ErrorCodeInternal, "failed to load conversation", err)
		}
	}

	departmentID := strings.TrimSpace(params.DepartmentID)
	if departmentID == "" {
		departmentID = strings.TrimSpace(params.DefaultDepartmentID)
	}
	if departmentID == "" {
		return StartResult{}, newError(ErrorCodeValidation, "departmentId is required", nil)
	}

	dept, err := s.departments.Active(ctx, sess.OrganizationID, departmentID)
	if err != nil {
		if errors.Is(err, department.ErrNotFound) || errors.Is(err, department.ErrInactive) {
			return StartResult{}, newError(ErrorCodeNotFound, "Department not found", err)
		}
		return StartResult{}, newError(ErrorCodeInternal, "failed to load department", err)
	}

	if res := prechat.Validate(dept.PreChatForm, params.PreChatData); !res.OK {
		return StartResult{}, &Error{
			Code:            ErrorCodeValidation,
			Message:         "Missing required fields",
			MissingFieldIDs: res.MissingFieldIDs,
		}
	}

	nowStr := model.FormatTime(s.now())
	customer, err := s.repo.UpsertWidgetCustomer(ctx, model.WidgetCustomerItem{
		PK:             model.WidgetCustomerPK(sess.OrganizationID, sess.VisitorID),
		CustomerID:     uuid.NewString(),
		OrganizationID: sess.OrganizationID,
		VisitorID:      sess.VisitorID,
		Name:           strings.TrimSpace(params.Contact.Name),
		Email:          strings.TrimSpace(params.Contact.Email),
		Phone:          strings.TrimSpace(params.Contact.Phone),
		FirstSeenAt:    nowStr,
		LastSeenAt:     nowStr,
	})
	if err != nil {
		return StartResult{}, newError(ErrorCodeInternal, "failed to save customer", err)
	}

	conversationID := uuid.NewString()
	conversation := model.ConversationItem{
		PK:               model.ConversationPK(sess.OrganizationID, conversationID),
		ConversationID:   conversationID,
		OrganizationID:   sess.OrganizationID,
		DepartmentID:     dept.DepartmentID,
		WidgetCustomerID: customer.CustomerID,
		SessionID:        sess.SessionID,
		Status:           model.ConversationStatusWaiting,
		PreChatData:      params.PreChatData,
		CreatedAt:        nowStr,
		UpdatedAt:        nowStr,
	}
	if err := s.repo.CreateConversation(ctx, conversation); err != nil {
		return StartResult{}, newError(ErrorCodeInternal, "failed to create conversation", err)
	}

	if _, err := s.sessions.AttachConversation(ctx, sess.SessionID, conversationID, replacing); err != nil {
		if !errors.Is(err, session.ErrConflict) {
			return StartResult{}, newError(ErrorCodeInternal, "failed to attach conversation", err)
		}
		// a concurrent request attached its conversation first
		if _, cerr := s.repo.CloseConversation(ctx, sess.OrganizationID, conversationID, nowStr); cerr != nil {
			log.Warn().Err(cerr).Str("conversation_id", conversationID).Msg("failed to close orphaned conversation")
		}
		if winner, ok := s.attachedConversation(ctx, sess); ok {
			return StartResult{Conversation: winner, Existing: true}, nil
		}
		return StartResult{}, newError(ErrorCodeConflict, "Conversation already started for this session", err)
	}

	return StartResult{Conversation: conversation, Customer: customer}, nil
}

// attachedConversation re-reads the session and returns the open
// conversation it now points at.
func (s *Service) attachedConversation(ctx context.Context, sess model.WidgetSessionItem) (model.ConversationItem, bool) {
	current, err := s.sessions.Session(ctx, sess.SessionID)
	if err != nil || current.ConversationID == "" {
		return model.ConversationItem{}, false
	}
	conversation, err := s.repo.GetConversation(ctx, sess.OrganizationID, current.ConversationID)
	if err != nil || conversation.Status == model.ConversationStatusClosed {
		return model.ConversationItem{}, false
	}
	return conversation, true
}

// SessionConversation loads the conversation attached to a widget session.
// Any other id is refused rather than treated as a fresh start.
func (s *Service) SessionConversation(ctx context.Context, sess model.WidgetSessionItem, conversationID string) (ConversationResult, error) {
	conversation, err := s.sessionConversation(ctx, sess, conversationID)
	if err != nil {
		return ConversationResult{}, err
	}
	return s.withMessages(ctx, conversation)
}

func (s *Service) PostCustomerMessage(ctx context.Context, sess model.WidgetSessionItem, conversationID string, input MessageInput) (MessageResult, error) {
	conversation, err := s.sessionConversation(ctx, sess, conversationID)
	if err != nil {
		return MessageResult{}, err
	}

	message := model.MessageItem{
		WidgetSenderID: conversation.WidgetCustomerID,
		SenderType:     model.SenderCustomer,
	}
	return s.postMessage(ctx, conversation, message, input)
}

// Authorize confirms the agent is an active member of their organization.
func (s *Service) Authorize(ctx context.Context, identity Identity) error {
	if identity.UserID == "" || identity.OrganizationID == "" {
		return newError(ErrorCodeUnauthorized, "Unauthorized", nil)
	}
	agent, err := s.repo.GetAgent(ctx, identity.OrganizationID, identity.UserID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return newError(ErrorCodeForbidden, "Not a member of this organization", err)
		}
		return newError(ErrorCodeInternal, "failed to load agent", err)
	}
	if !agent.IsActive {
		return newError(ErrorCodeForbidden, "Agent is not active", nil)
	}
	return nil
}

// ListConversations returns the organization's conversations, most recently
// updated first, optionally filtered by status.
func (s *Service) ListConversations(ctx context.Context, identity Identity, status string) ([]model.ConversationItem, error) {
	if err := s.Authorize(ctx, identity); err != nil {
		return nil, err
	}

	status = strings.TrimSpace(status)
	if status != "" && !model.ConversationStatus(status).Valid() {
		return nil, newError(ErrorCodeValidation, "invalid status filter", nil)
	}

	conversations, err := s.repo.ListConversations(ctx, identity.OrganizationID)
	if err != nil {
		return nil, newError(ErrorCodeInternal, "failed to list conversations", err)
	}

	out := conversations[:0]
	for _, conv := range conversations {
		if status == "" || string(conv.Status) == status {
			out = append(out, conv)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].UpdatedAt > out[j].UpdatedAt
	})
	return out, nil
}

func (s *Service) GetConversation(ctx context.Context, identity Identity, conversationID string) (ConversationResult, error) {
	conversation, err := s.agentConversation(ctx, identity, conversationID)
	if err != nil {
		return ConversationResult{}, err
	}
	return s.withMessages(ctx, conversation)
}

// PostAgentMessage appends an agent message. The first agent message into a
// waiting conversation activates it and assigns the sender.
func (s *Service) PostAgentMessage(ctx context.Context, identity Identity, conversationID string, input MessageInput) (MessageResult, error) {
	conversation, err := s.agentConversation(ctx, identity, conversationID)
	if err != nil {
		return MessageResult{}, err
	}

	message := model.MessageItem{
		SenderID:   identity.UserID,
		SenderType: model.SenderAgent,
	}
	return s.postMessage(ctx, conversation, message, input)
}

// UpdateConversation applies agent changes. Closing and escalation are the
// only status transitions accepted here. waiting and active are allowed
// only as the current status.
func (s *Service) UpdateConversation(ctx context.Context, identity Identity, conversationID string, params UpdateParams) (UpdateResult, error) {
	conversation, err := s.agentConversation(ctx, identity, conversationID)
	if err != nil {
		return UpdateResult{}, err
	}

	ticket := TicketUpdate{Priority: params.TicketPriority, Tags: params.TicketTags, Notes: params.TicketNotes}
	if params.Status == nil && params.AgentID == nil && ticket.empty() {
		return UpdateResult{}, newError(ErrorCodeValidation, "nothing to update", nil)
	}
	if params.Status != nil && !params.Status.Valid() {
		return UpdateResult{}, newError(ErrorCodeValidation, "invalid status", nil)
	}

	nowStr := model.FormatTime(s.now())
	result := UpdateResult{Conversation: conversation}
	orgID := identity.OrganizationID

	if params.AgentID != nil {
		agentID := strings.TrimSpace(*params.AgentID)
		if agentID == "" {
			return UpdateResult{}, newError(ErrorCodeValidation, "agentId must not be empty", nil)
		}
		if err := s.Authorize(ctx, Identity{UserID: agentID, OrganizationID: orgID}); err != nil {
			return UpdateResult{}, newError(ErrorCodeValidation, "agentId is not an active agent", err)
		}
		updated, err := s.repo.AssignAgent(ctx, orgID, conversationID, agentID, nowStr)
		if err != nil {
			return UpdateResult{}, s.transitionError(err, "Conversation is closed")
		}
		result.Conversation = updated
	}

	if !ticket.empty() {
		updated, err := s.repo.UpdateTicket(ctx, orgID, conversationID, ticket, nowStr)
		if err != nil {
			return UpdateResult{}, s.transitionError(err, "Conversation not found")
		}
		result.Conversation = updated
	}

	if params.Status != nil && *params.Status != result.Conversation.Status {
		var updated model.ConversationItem
		switch *params.Status {
		case model.ConversationStatusClosed:
			updated, err = s.repo.CloseConversation(ctx, orgID, conversationID, nowStr)
		case model.ConversationStatusTicket:
			updated, err = s.repo.EscalateConversation(ctx, orgID, conversationID, nowStr)
		default:
			return UpdateResult{}, newError(ErrorCodeValidation, "status transition not allowed", nil)
		}
		if err != nil {
			return UpdateResult{}, s.transitionError(err, "Conversation is closed")
		}
		result.Conversation = updated
		result.StatusChanged = true
	}

	return result, nil
}

// CloseConversation is idempotent: closing a closed conversation returns it
// unchanged.
func (s *Service) CloseConversation(ctx context.Context, identity Identity, conversationID string) (UpdateResult, error) {
	conversation, err := s.agentConversation(ctx, identity, conversationID)
	if err != nil {
		return UpdateResult{}, err
	}
	if conversation.Status == model.ConversationStatusClosed {
		return UpdateResult{Conversation: conversation}, nil
	}

	updated, err := s.repo.CloseConversation(ctx, identity.OrganizationID, conversationID, model.FormatTime(s.now()))
	if err != nil {
		if errors.Is(err, ErrConflict) {
			current, gerr := s.repo.GetConversation(ctx, identity.OrganizationID, conversationID)
			if gerr == nil {
				return UpdateResult{Conversation: current}, nil
			}
		}
		return UpdateResult{}, newError(ErrorCodeInternal, "failed to close conversation", err)
	}
	return UpdateResult{Conversation: updated, StatusChanged: true}, nil
}

// UpdateMessageStatus moves delivery status forward. Older or equal states
// leave the message as it is.
func (s *Service) UpdateMessageStatus(ctx context.Context, identity Identity, conversationID, messageID string, status model.MessageStatus) (model.MessageItem, error) {
	if status.Rank() == 0 {
		return model.MessageItem{}, newError(ErrorCodeValidation, "invalid message status", nil)
	}
	if _, err := s.agentConversation(ctx, identity, conversationID); err != nil {
		return model.MessageItem{}, err
	}

	current, err := s.repo.GetMessage(ctx, conversationID, messageID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return model.MessageItem{}, newError(ErrorCodeNotFound, "Message not found", err)
		}
		return model.MessageItem{}, newError(ErrorCodeInternal, "failed to load message", err)
	}
	if current.Status.Rank() >= status.Rank() {
		return current, nil
	}

	updated, err := s.repo.UpdateMessageStatus(ctx, conversationID, messageID, status)
	if err != nil {
		if errors.Is(err, ErrConflict) {
			latest, gerr := s.repo.GetMessage(ctx, conversationID, messageID)
			if gerr == nil {
				return latest, nil
			}
		}
		return model.MessageItem{}, newError(ErrorCodeInternal, "failed to update message", err)
	}
	return updated, nil
}

// AgentConversation checks the agent may see conversationID.
func (s *Service) AgentConversation(ctx context.Context, identity Identity, conversationID string) (model.ConversationItem, error) {
	return s.agentConversation(ctx, identity, conversationID)
}

// SessionOwns checks the widget session may see conversationID.
func (s *Service) SessionOwns(ctx context.Context, sess model.WidgetSessionItem, conversationID string) (model.ConversationItem, error) {
	return s.sessionConversation(ctx, sess, conversationID)
}

func (s *Service) postMessage(ctx context.Context, conversation model.ConversationItem, message model.MessageItem, input MessageInput) (MessageResult, error) {
	if conversation.Status == model.ConversationStatusClosed {
		return MessageResult{}, newError(ErrorCodeConflict, "Conversation is closed", nil)
	}

	input.Content = strings.TrimSpace(input.Content)
	input.MediaURL = strings.TrimSpace(input.MediaURL)
	if input.Content == "" && input.MediaURL == "" {
		return MessageResult{}, newError(ErrorCodeValidation, "content or mediaUrl is required", nil)
	}
	if input.MessageType == "" {
		input.MessageType = model.MessageText
	}
	if !input.MessageType.Valid() {
		return MessageResult{}, newError(ErrorCodeValidation, "invalid messageType", nil)
	}

	now := s.now()
	nowStr := model.FormatTime(now)
	messageID := uuid.NewString()

	message.PK = model.MessagePK(conversation.ConversationID, messageID)
	message.MessageID = messageID
	message.ConversationID = conversation.ConversationID
	message.OrganizationID = conversation.OrganizationID
	message.Content = input.Content
	message.MessageType = input.MessageType
	message.MediaURL = input.MediaURL
	message.MediaType = input.MediaType
	message.MediaSize = input.MediaSize
	message.MediaName = input.MediaName
	message.Status = model.MessageStatusSent
	message.CreatedAt = nowStr
	message.Seq = s.nextSeq(now)

	if err := s.repo.CreateMessage(ctx, message); err != nil {
		if errors.Is(err, ErrConflict) {
			return MessageResult{}, newError(ErrorCodeConflict, "Conversation is closed", err)
		}
		return MessageResult{}, newError(ErrorCodeInternal, "failed to save message", err)
	}

	result := MessageResult{Message: message}
	orgID := conversation.OrganizationID
	convID := conversation.ConversationID

	if message.SenderType == model.SenderAgent && conversation.Status == model.ConversationStatusWaiting {
		updated, err := s.repo.ActivateConversation(ctx, orgID, convID, message.SenderID, nowStr)
		if err == nil {
			result.Conversation = updated
			result.StatusChanged = true
			return result, nil
		}
		if !errors.Is(err, ErrConflict) {
			return MessageResult{}, newError(ErrorCodeInternal, "failed to activate conversation", err)
		}
		// picked up concurrently; fall back to the recency bump
	}

	updated, err := s.repo.TouchConversation(ctx, orgID, convID, nowStr)
	if err != nil {
		return MessageResult{}, newError(ErrorCodeInternal, "failed to update conversation", err)
	}
	result.Conversation = updated
	return result, nil
}

func (s *Service) sessionConversation(ctx context.Context, sess model.WidgetSessionItem, conversationID string) (model.ConversationItem, error) {
	conversationID = strings.TrimSpace(conversationID)
	if conversationID == "" || sess.ConversationID != conversationID {
		return model.ConversationItem{}, newError(ErrorCodeForbidden, "unauthorized", nil)
	}

	conversation, err := s.repo.GetConversation(ctx, sess.OrganizationID, conversationID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return model.ConversationItem{}, newError(ErrorCodeForbidden, "unauthorized", err)
		}
		return model.ConversationItem{}, newError(ErrorCodeInternal, "failed to load conversation", err)
	}
	return conversation, nil
}

func (s *Service) agentConversation(ctx context.Context, identity Identity, conversationID string) (model.ConversationItem, error) {
	if err := s.Authorize(ctx, identity); err != nil {
		return model.ConversationItem{}, err
	}

	conversation, err := s.repo.GetConversation(ctx, identity.OrganizationID, strings.TrimSpace(conversationID))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return model.ConversationItem{}, newError(ErrorCodeNotFound, "Conversation not found", err)
		}
		return model.ConversationItem{}, newError(ErrorCodeInternal, "failed to load conversation", err)
	}
	return conversation, nil
}

func (s *Service) withMessages(ctx context.Context, conversation model.ConversationItem) (ConversationResult, error) {
	messages, err := s.repo.ListMessages(ctx, conversation.ConversationID)
	if err != nil {
		return ConversationResult{}, newError(ErrorCodeInternal, "failed to list messages", err)
	}
	return ConversationResult{Conversation: conversation, Messages: messages}, nil
}

func (s *Service) transitionError(err error, conflictMessage string) error {
	if errors.Is(err, ErrConflict) {
		return newError(ErrorCodeConflict, conflictMessage, err)
	}
	return newError(ErrorCodeInternal, "failed to update conversation", err)
}

// nextSeq is strictly increasing within the process.
func (s *Service) nextSeq(now time.Time) int64 {
	s.seqMu.Lock()
	defer s.seqMu.Unlock()
	seq := now.UnixNano()
	if seq <= s.lastSeq {
		seq = s.lastSeq + 1
	}
	s.lastSeq = seq
	return seq
}
