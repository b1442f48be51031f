// Package widget is a headless chat widget. It keeps a visitor identity,
// resolves a session, and mirrors one conversation through optimistic sends
// and the realtime push channel.
package widget

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"chatdesk-backend/internal/dto"
	"chatdesk-backend/internal/model"
	"chatdesk-backend/internal/service/prechat"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// ViewerRole is the sender type of the widget's own messages.
const ViewerRole = string(model.SenderCustomer)

var (
	ErrNotInitialized = errors.New("widget: not initialized")
	ErrNoConversation = errors.New("widget: no conversation")
	ErrEmptyMessage   = errors.New("widget: message is empty")
	ErrDestroyed      = errors.New("widget: destroyed")
)

// PreChatError lists required pre-chat fields left empty.
type PreChatError struct {
	MissingFieldIDs []string
}

func (e *PreChatError) Error() string {
	return "widget: missing required fields: " + strings.Join(e.MissingFieldIDs, ", ")
}

type Config struct {
	APIURL    string
	WSURL     string
	WidgetKey string
	// Origin is sent on every API call. Empty means no browser origin.
	Origin     string
	UserData   map[string]any
	CurrentURL string
	Referrer   string

	// Layers are consulted in order: cookie, long-lived, tab-scoped.
	Layers []Layer
	Env    Environment

	HTTPClient *http.Client
	Dialer     *websocket.Dialer
	// Notifier runs once per newly received message from the other side
	// when the widget config enables notification sounds.
	Notifier func(dto.Message)

	ReconnectMin time.Duration
	ReconnectMax time.Duration
}

type Contact struct {
	Name  string
	Email string
	Phone string
}

type Widget struct {
	cfg      Config
	api      *apiClient
	identity *IdentityStore
	events   *emitter
	log      *MessageLog

	mu           sync.Mutex
	visitorID    string
	session      *dto.SessionInitResponse
	departments  []dto.Department
	conversation *dto.Conversation
	sub          *Subscription
	autoOpen     *time.Timer
	open         bool
	composer     string
	userData     map[string]any
	destroyed    bool
}

func New(cfg Config) *Widget {
	userData := make(map[string]any, len(cfg.UserData))
	for k, v := range cfg.UserData {
		userData[k] = v
	}
	return &Widget{
		cfg:      cfg,
		api:      newAPIClient(cfg.APIURL, cfg.Origin, cfg.HTTPClient),
		identity: NewIdentityStore(cfg.Env, cfg.Layers...),
		events:   newEmitter(),
		log:      NewMessageLog(ViewerRole),
		userData: userData,
	}
}

func (w *Widget) On(kind EventKind, handler Handler) Unsubscribe {
	return w.events.on(kind, handler)
}

// Init resolves the visitor and session, loads departments and resumes an
// attached conversation.
func (w *Widget) Init(ctx context.Context) error {
	if w.isDestroyed() {
		return ErrDestroyed
	}

	visitorID := w.identity.VisitorID()
	resp, err := w.api.Init(ctx, dto.SessionInitRequest{
		WidgetKey:            w.cfg.WidgetKey,
		VisitorID:            visitorID,
		ExistingSessionToken: w.identity.SessionToken(w.cfg.WidgetKey),
		UserData:             w.currentUserData(),
		CurrentURL:           w.cfg.CurrentURL,
		Referrer:             w.cfg.Referrer,
	})
	if err != nil {
		return w.fail(fmt.Errorf("init session: %w", err))
	}
	w.identity.SaveSessionToken(w.cfg.WidgetKey, resp.SessionToken)

	w.mu.Lock()
	w.visitorID = visitorID
	w.session = &resp
	w.mu.Unlock()

	departments, err := w.api.Departments(ctx, resp.SessionToken)
	if err != nil {
		log.Warn().Err(err).Str("widget_key", w.cfg.WidgetKey).Msg("failed to load departments")
	} else {
		w.mu.Lock()
		w.departments = departments
		w.mu.Unlock()
	}

	if resp.ConversationID != "" {
		if err := w.resume(ctx, resp.ConversationID); err != nil {
			return w.fail(fmt.Errorf("resume conversation: %w", err))
		}
	}

	if resp.Config.AutoOpen {
		w.scheduleAutoOpen(time.Duration(resp.Config.AutoOpenDelay) * time.Second)
	}

	w.events.emit(Event{Kind: EventReady})
	return nil
}

// StartConversation runs the pre-chat gate locally, then creates or
// returns the session's conversation and attaches to it.
func (w *Widget) StartConversation(ctx context.Context, departmentID string, preChat map[string]any, contact Contact) (dto.Conversation, error) {
	sess, err := w.currentSession()
	if err != nil {
		return dto.Conversation{}, err
	}

	if departmentID == "" {
		departmentID = sess.Config.DefaultDepartmentID
	}
	if dept, ok := w.department(departmentID); ok {
		if result := prechat.Validate(formFields(dept.PreChatForm), preChat); !result.OK {
			err := &PreChatError{MissingFieldIDs: result.MissingFieldIDs}
			w.events.emit(Event{Kind: EventError, Err: err})
			return dto.Conversation{}, err
		}
	}

	resp, err := w.api.StartConversation(ctx, sess.SessionToken, dto.CreateConversationRequest{
		DepartmentID:  departmentID,
		PreChatData:   preChat,
		CustomerName:  contact.Name,
		CustomerEmail: contact.Email,
		CustomerPhone: contact.Phone,
	})
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && len(apiErr.MissingFieldIDs) > 0 {
			err = &PreChatError{MissingFieldIDs: apiErr.MissingFieldIDs}
		}
		return dto.Conversation{}, w.fail(err)
	}

	if resp.Existing {
		if err := w.resume(ctx, resp.Conversation.ID); err != nil {
			return dto.Conversation{}, w.fail(err)
		}
	} else {
		w.log.Reset()
		w.setConversation(resp.Conversation)
		if err := w.attach(ctx, resp.Conversation.ID); err != nil {
			return dto.Conversation{}, w.fail(err)
		}
	}

	conv := resp.Conversation
	w.events.emit(Event{Kind: EventConversationStarted, Conversation: &conv})
	return conv, nil
}

// Send appends content optimistically and confirms it with the server copy.
// A failed send rolls the entry back and restores the composer.
func (w *Widget) Send(ctx context.Context, content string) (dto.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return dto.Message{}, ErrEmptyMessage
	}
	sess, err := w.currentSession()
	if err != nil {
		return dto.Message{}, err
	}
	conv, ok := w.Conversation()
	if !ok {
		return dto.Message{}, ErrNoConversation
	}

	clientID := uuid.NewString()
	w.log.AppendPending(clientID, dto.Message{
		ConversationID: conv.ID,
		SenderType:     ViewerRole,
		Content:        content,
		MessageType:    string(model.MessageText),
		CreatedAt:      model.FormatTime(time.Now()),
	})
	w.mu.Lock()
	w.composer = ""
	w.mu.Unlock()

	message, err := w.api.SendMessage(ctx, sess.SessionToken, conv.ID, dto.SendMessageRequest{
		Content:     content,
		MessageType: string(model.MessageText),
	})
	if err != nil {
		w.log.Rollback(clientID)
		w.mu.Lock()
		w.composer = content
		w.mu.Unlock()
		w.events.emit(Event{Kind: EventError, Err: err})
		return dto.Message{}, err
	}

	w.log.Confirm(clientID, message)
	w.events.emit(Event{Kind: EventMessageSent, Message: &message})
	return message, nil
}

// SetTyping reports the visitor's typing state.
func (w *Widget) SetTyping(ctx context.Context, isTyping bool) error {
	sess, err := w.currentSession()
	if err != nil {
		return err
	}
	conv, ok := w.Conversation()
	if !ok {
		return ErrNoConversation
	}
	return w.api.SetTyping(ctx, sess.SessionToken, conv.ID, isTyping)
}

func (w *Widget) Messages() []dto.Message {
	return w.log.Messages()
}

func (w *Widget) Composer() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.composer
}

func (w *Widget) SetComposer(text string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.composer = text
}

func (w *Widget) VisitorID() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.visitorID
}

func (w *Widget) Session() (dto.SessionInitResponse, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.session == nil {
		return dto.SessionInitResponse{}, false
	}
	return *w.session, true
}

func (w *Widget) Departments() []dto.Department {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]dto.Department(nil), w.departments...)
}

func (w *Widget) Conversation() (dto.Conversation, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.conversation == nil {
		return dto.Conversation{}, false
	}
	return *w.conversation, true
}

func (w *Widget) IsOpen() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.open
}

func (w *Widget) Open() {
	w.mu.Lock()
	changed := !w.open
	w.open = true
	w.mu.Unlock()
	if changed {
		w.events.emit(Event{Kind: EventOpened})
	}
}

func (w *Widget) Close() {
	w.mu.Lock()
	changed := w.open
	w.open = false
	w.mu.Unlock()
	if changed {
		w.events.emit(Event{Kind: EventClosed})
	}
}

func (w *Widget) Toggle() {
	if w.IsOpen() {
		w.Close()
		return
	}
	w.Open()
}

// Identify merges userData into what the next session init sends.
func (w *Widget) Identify(userData map[string]any) {
	w.mu.Lock()
	for k, v := range userData {
		w.userData[k] = v
	}
	w.mu.Unlock()
	w.events.emit(Event{Kind: EventIdentified, Data: userData})
}

func (w *Widget) Track(name string, data map[string]any) {
	w.events.emit(Event{Kind: EventTracked, Name: name, Data: data})
}

// Destroy releases the realtime subscription. The widget is unusable
// afterwards.
func (w *Widget) Destroy() {
	w.mu.Lock()
	if w.destroyed {
		w.mu.Unlock()
		return
	}
	w.destroyed = true
	sub := w.sub
	w.sub = nil
	if w.autoOpen != nil {
		w.autoOpen.Stop()
	}
	w.mu.Unlock()

	if sub != nil {
		sub.Close()
	}
	w.events.emit(Event{Kind: EventDestroyed})
}

func (w *Widget) resume(ctx context.Context, conversationID string) error {
	sess, err := w.currentSession()
	if err != nil {
		return err
	}
	resp, err := w.api.Conversation(ctx, sess.SessionToken, conversationID)
	if err != nil {
		return err
	}

	w.log.Reset()
	w.log.MergeAll(resp.Messages)
	w.setConversation(resp.Conversation)
	return w.attach(ctx, conversationID)
}

func (w *Widget) attach(ctx context.Context, conversationID string) error {
	if w.cfg.WSURL == "" {
		return nil
	}
	sess, err := w.currentSession()
	if err != nil {
		return err
	}

	w.mu.Lock()
	previous := w.sub
	w.sub = nil
	w.mu.Unlock()
	if previous != nil {
		previous.Close()
	}

	sub, err := subscribe(ctx, subscriptionOptions{
		Dialer:       w.cfg.Dialer,
		URL:          realtimeURL(w.cfg.WSURL, conversationID, sess.SessionToken),
		OnEvent:      w.handleEvent,
		Resync:       w.resync,
		ReconnectMin: w.cfg.ReconnectMin,
		ReconnectMax: w.cfg.ReconnectMax,
	})
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	w.mu.Lock()
	if w.destroyed {
		w.mu.Unlock()
		sub.Close()
		return ErrDestroyed
	}
	w.sub = sub
	w.mu.Unlock()
	return nil
}

// Subscription exposes the live realtime attachment, if any.
func (w *Widget) Subscription() *Subscription {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.sub
}

func (w *Widget) resync(ctx context.Context) error {
	sess, err := w.currentSession()
	if err != nil {
		return err
	}
	conv, ok := w.Conversation()
	if !ok {
		return ErrNoConversation
	}

	messages, err := w.api.Messages(ctx, sess.SessionToken, conv.ID)
	if err != nil {
		return err
	}
	for _, message := range w.log.MergeAll(messages) {
		w.received(message)
	}
	return nil
}

func (w *Widget) handleEvent(event dto.Event) {
	conv, ok := w.Conversation()
	if !ok || event.ConversationID != conv.ID {
		return
	}

	switch event.Type {
	case dto.EventMessageCreated:
		if event.Message != nil && w.log.Merge(*event.Message) {
			w.received(*event.Message)
		}
	case dto.EventConversationUpdated:
		if event.Conversation != nil {
			w.setConversation(*event.Conversation)
		}
	case dto.EventTyping:
		if event.Typing != nil && event.Typing.WidgetCustomerID != conv.WidgetCustomerID {
			w.events.emit(Event{Kind: EventTyping, Typing: event.Typing})
		}
	}
}

// received fires the side effects of a message new to the view.
func (w *Widget) received(message dto.Message) {
	w.events.emit(Event{Kind: EventMessageReceived, Message: &message})

	if message.SenderType == ViewerRole || w.cfg.Notifier == nil {
		return
	}
	if sess, err := w.currentSession(); err == nil && sess.Config.PlayNotificationSound {
		w.cfg.Notifier(message)
	}
}

func (w *Widget) fail(err error) error {
	w.events.emit(Event{Kind: EventError, Err: err})
	return err
}

func (w *Widget) scheduleAutoOpen(delay time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.autoOpen != nil {
		w.autoOpen.Stop()
	}
	w.autoOpen = time.AfterFunc(delay, func() {
		if !w.isDestroyed() {
			w.Open()
		}
	})
}

func (w *Widget) currentSession() (dto.SessionInitResponse, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.destroyed {
		return dto.SessionInitResponse{}, ErrDestroyed
	}
	if w.session == nil {
		return dto.SessionInitResponse{}, ErrNotInitialized
	}
	return *w.session, nil
}

func (w *Widget) currentUserData() map[string]any {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.userData) == 0 {
		return nil
	}
	out := make(map[string]any, len(w.userData))
	for k, v := range w.userData {
		out[k] = v
	}
	return out
}

func (w *Widget) setConversation(conv dto.Conversation) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.conversation = &conv
}

func (w *Widget) department(id string) (dto.Department, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, dept := range w.departments {
		if dept.ID == id {
			return dept, true
		}
	}
	return dto.Department{}, false
}

func (w *Widget) isDestroyed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.destroyed
}

func formFields(fields []dto.PreChatField) []model.PreChatFormField {
	out := make([]model.PreChatFormField, 0, len(fields))
	for _, field := range fields {
		out = append(out, model.PreChatFormField{
			ID:       field.ID,
			Type:     model.PreChatFieldType(field.Type),
			Label:    field.Label,
			Required: field.Required,
			Order:    field.Order,
		})
	}
	return out
}

func realtimeURL(base, conversationID, token string) string {
	return strings.TrimRight(base, "/") + "/api/ws/v1/widget/conversations/" +
		url.PathEscape(conversationID) + "?token=" + url.QueryEscape(token)
}
