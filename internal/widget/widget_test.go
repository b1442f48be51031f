package widget

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"chatdesk-backend/internal/api"
	"chatdesk-backend/internal/api/middleware"
	"chatdesk-backend/internal/api/router"
	"chatdesk-backend/internal/dto"
	"chatdesk-backend/internal/env"
	"chatdesk-backend/internal/jwt"
	"chatdesk-backend/internal/model"
	"chatdesk-backend/internal/service/memstore"
	realtime "chatdesk-backend/internal/websocket"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testOrg       = "org-1"
	testWidgetKey = "wk-live"
	testOrigin    = "https://shop.example.com"
)

type stack struct {
	server *httptest.Server
	hub    *realtime.Hub
	signer *jwt.Signer
}

func newStack(t *testing.T) *stack {
	t.Helper()

	sound := true
	store := memstore.New()
	store.PutWidget(model.WidgetItem{
		WidgetKey:             testWidgetKey,
		OrganizationID:        testOrg,
		OrganizationName:      "Example Shop",
		Enabled:               true,
		AllowedDomains:        []string{"example.com"},
		PlayNotificationSound: &sound,
	})
	store.PutAgent(model.AgentItem{OrganizationID: testOrg, UserID: "agent-1", IsActive: true})
	store.PutDepartment(model.DepartmentItem{
		DepartmentID:   "d-support",
		OrganizationID: testOrg,
		Name:           "Support",
		IsActive:       true,
		PreChatForm: []model.PreChatFormField{
			{ID: "email", Label: "Email", Type: model.FieldEmail, Required: true, Order: 1},
		},
	})

	cfg := env.Defaults()
	services := api.NewServicesWithRepositories(cfg, api.Repositories{
		Sessions:      store.Sessions(),
		Conversations: store.Conversations(),
		Typing:        store.Typing(),
		Departments:   store.Departments(),
	}, nil, nil)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	hub := realtime.NewHub(realtime.NewMetrics(prometheus.NewRegistry()))
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	signer, err := jwt.NewSigner("test-secret")
	require.NoError(t, err)

	server := api.NewAPIServer(api.Options{
		CORS:      middleware.WidgetCORS(),
		Config:    cfg,
		Services:  services,
		Publisher: realtime.NewPublisher(rdb),
		WSHandler: realtime.NewHandler(hub, rdb),
		Signer:    signer,
	},
		router.WidgetRoutes("/api/widget/v1"),
		router.AgentRoutes("/api/agent/v1"),
		router.RealtimeRoutes("/api/ws/v1"),
	)

	ts := httptest.NewServer(server.Handler())
	t.Cleanup(func() {
		ts.Close()
		cancel()
	})
	return &stack{server: ts, hub: hub, signer: signer}
}

func (s *stack) widget(layers []Layer, notifier func(dto.Message)) *Widget {
	return New(Config{
		APIURL:       s.server.URL,
		WSURL:        "ws" + strings.TrimPrefix(s.server.URL, "http"),
		WidgetKey:    testWidgetKey,
		Origin:       testOrigin,
		Layers:       layers,
		Env:          testEnv,
		Notifier:     notifier,
		ReconnectMin: 20 * time.Millisecond,
		ReconnectMax: 100 * time.Millisecond,
	})
}

func (s *stack) agentRequest(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	return s.agentCall(t, method, "/api/agent/v1"+path, body)
}

func (s *stack) agentCall(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	token, err := s.signer.CreateToken(jwt.Agent{Id: "agent-1", OrganizationID: testOrg}, time.Now().Add(time.Hour).Unix())
	require.NoError(t, err)

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, s.server.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func (s *stack) agentReply(t *testing.T, conversationID, content string) {
	t.Helper()
	resp := s.agentRequest(t, http.MethodPost, "/conversations/"+conversationID+"/messages", dto.SendMessageRequest{Content: content})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
}

func (s *stack) waitRoom(t *testing.T, conversationID string, clients int) {
	t.Helper()
	room := realtime.ConversationRoom(conversationID)
	require.Eventually(t, func() bool {
		for _, r := range s.hub.Rooms() {
			if r.ID == room {
				return r.Clients == clients
			}
		}
		return clients == 0
	}, 2*time.Second, 10*time.Millisecond)
}

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) record(w *Widget, kinds ...EventKind) {
	for _, kind := range kinds {
		w.On(kind, func(e Event) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.events = append(r.events, e)
		})
	}
}

func (r *recorder) count(kind EventKind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

func (r *recorder) received(content string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Kind == EventMessageReceived && e.Message != nil && e.Message.Content == content {
			n++
		}
	}
	return n
}

func countContent(messages []dto.Message, content string) int {
	n := 0
	for _, m := range messages {
		if m.Content == content {
			n++
		}
	}
	return n
}

func startChat(t *testing.T, w *Widget) dto.Conversation {
	t.Helper()
	require.NoError(t, w.Init(context.Background()))
	conv, err := w.StartConversation(context.Background(), "d-support", map[string]any{"email": "v@example.com"}, Contact{Name: "Vis"})
	require.NoError(t, err)
	return conv
}

func TestInitResolvesSessionAndDepartments(t *testing.T) {
	s := newStack(t)
	w := s.widget(nil, nil)
	events := &recorder{}
	events.record(w, EventReady)

	require.NoError(t, w.Init(context.Background()))

	sess, ok := w.Session()
	require.True(t, ok)
	assert.Equal(t, testOrg, sess.OrganizationID)
	assert.Equal(t, "Example Shop", sess.OrganizationName)
	assert.NotEmpty(t, sess.SessionToken)
	assert.True(t, strings.HasPrefix(w.VisitorID(), "visitor_"))
	require.Len(t, w.Departments(), 1)
	assert.Equal(t, 1, events.count(EventReady))

	_, ok = w.Conversation()
	assert.False(t, ok)
}

func TestInitRejectedOrigin(t *testing.T) {
	s := newStack(t)
	w := New(Config{APIURL: s.server.URL, WidgetKey: testWidgetKey, Origin: "https://evil.test", Env: testEnv})
	events := &recorder{}
	events.record(w, EventError)

	err := w.Init(context.Background())
	require.Error(t, err)
	assert.True(t, IsStatus(err, http.StatusForbidden))
	assert.Equal(t, 1, events.count(EventError))

	_, err = w.StartConversation(context.Background(), "", nil, Contact{})
	assert.ErrorIs(t, err, ErrNotInitialized)
}

func TestPreChatGateRunsLocally(t *testing.T) {
	s := newStack(t)
	w := s.widget(nil, nil)
	require.NoError(t, w.Init(context.Background()))

	_, err := w.StartConversation(context.Background(), "d-support", map[string]any{"email": "  "}, Contact{})
	var preChat *PreChatError
	require.True(t, errors.As(err, &preChat))
	assert.Equal(t, []string{"email"}, preChat.MissingFieldIDs)

	_, ok := w.Conversation()
	assert.False(t, ok)
}

func TestAgentReplyRendersExactlyOnce(t *testing.T) {
	s := newStack(t)

	var mu sync.Mutex
	var notified []dto.Message
	w := s.widget(nil, func(m dto.Message) {
		mu.Lock()
		defer mu.Unlock()
		notified = append(notified, m)
	})
	events := &recorder{}
	events.record(w, EventConversationStarted, EventMessageReceived, EventMessageSent)
	t.Cleanup(w.Destroy)

	conv := startChat(t, w)
	assert.Equal(t, 1, events.count(EventConversationStarted))
	s.waitRoom(t, conv.ID, 1)

	_, err := w.Send(context.Background(), "where is my order?")
	require.NoError(t, err)
	s.agentReply(t, conv.ID, "let me check")

	require.Eventually(t, func() bool {
		return countContent(w.Messages(), "let me check") == 1
	}, 2*time.Second, 10*time.Millisecond)
	// Give the own-message push time to land too.
	time.Sleep(100 * time.Millisecond)

	messages := w.Messages()
	require.Len(t, messages, 2)
	assert.Equal(t, "where is my order?", messages[0].Content)
	assert.NotEmpty(t, messages[0].ID)
	assert.Equal(t, "let me check", messages[1].Content)
	assert.Equal(t, 1, events.count(EventMessageSent))
	assert.Equal(t, 1, events.received("let me check"))
	assert.Equal(t, 0, events.received("where is my order?"))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, notified, 1)
	assert.Equal(t, "let me check", notified[0].Content)

	require.Eventually(t, func() bool {
		updated, ok := w.Conversation()
		return ok && updated.AgentID == "agent-1"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestReloadResumesConversation(t *testing.T) {
	s := newStack(t)
	layers := []Layer{NewMemoryLayer("cookie"), NewMemoryLayer("local"), NewMemoryLayer("session")}

	first := s.widget(layers, nil)
	conv := startChat(t, first)
	_, err := first.Send(context.Background(), "hello")
	require.NoError(t, err)
	first.Destroy()

	second := s.widget(layers, nil)
	t.Cleanup(second.Destroy)
	require.NoError(t, second.Init(context.Background()))

	assert.Equal(t, first.VisitorID(), second.VisitorID())
	sess, _ := second.Session()
	assert.True(t, sess.Resumed)
	resumed, ok := second.Conversation()
	require.True(t, ok)
	assert.Equal(t, conv.ID, resumed.ID)
	assert.Equal(t, 1, countContent(second.Messages(), "hello"))

	again, err := second.StartConversation(context.Background(), "d-support", map[string]any{"email": "v@example.com"}, Contact{})
	require.NoError(t, err)
	assert.Equal(t, conv.ID, again.ID)
	assert.Len(t, second.Messages(), 1)
}

func TestReconnectResyncsMissedMessages(t *testing.T) {
	s := newStack(t)
	w := s.widget(nil, nil)
	w.cfg.ReconnectMin = 300 * time.Millisecond
	w.cfg.ReconnectMax = time.Second
	events := &recorder{}
	events.record(w, EventMessageReceived)
	t.Cleanup(w.Destroy)

	conv := startChat(t, w)
	s.waitRoom(t, conv.ID, 1)

	sub := w.Subscription()
	require.NotNil(t, sub)
	sub.drop()
	s.waitRoom(t, conv.ID, 0)
	s.agentReply(t, conv.ID, "while you were away")

	require.Eventually(t, func() bool {
		return sub.Reconnects() >= 1 && countContent(w.Messages(), "while you were away") == 1
	}, 3*time.Second, 10*time.Millisecond)
	s.waitRoom(t, conv.ID, 1)

	s.agentReply(t, conv.ID, "back again")
	require.Eventually(t, func() bool {
		return countContent(w.Messages(), "back again") == 1
	}, 2*time.Second, 10*time.Millisecond)
	time.Sleep(100 * time.Millisecond)

	messages := w.Messages()
	assert.Equal(t, 1, countContent(messages, "while you were away"))
	assert.Equal(t, 1, countContent(messages, "back again"))
	assert.Equal(t, 1, events.received("while you were away"))
	assert.Equal(t, 1, events.received("back again"))
}

func TestFailedSendRollsBack(t *testing.T) {
	s := newStack(t)
	w := s.widget(nil, nil)
	events := &recorder{}
	events.record(w, EventError)
	t.Cleanup(w.Destroy)

	conv := startChat(t, w)
	resp := s.agentRequest(t, http.MethodDelete, "/conversations/"+conv.ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	w.SetComposer("are you there?")
	_, err := w.Send(context.Background(), w.Composer())
	require.Error(t, err)
	assert.True(t, IsStatus(err, http.StatusConflict))
	assert.Equal(t, 0, countContent(w.Messages(), "are you there?"))
	assert.Equal(t, "are you there?", w.Composer())
	assert.Equal(t, 1, events.count(EventError))

	_, err = w.Send(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrEmptyMessage)
}

func TestAgentSeesOwnConversationRoom(t *testing.T) {
	s := newStack(t)
	w := s.widget(nil, nil)
	t.Cleanup(w.Destroy)
	conv := startChat(t, w)
	s.waitRoom(t, conv.ID, 1)

	resp := s.agentCall(t, http.MethodGet, "/api/ws/v1/agent/rooms", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var rooms []realtime.RoomRes
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&rooms))
	assert.Equal(t, []realtime.RoomRes{{ID: realtime.ConversationRoom(conv.ID), Clients: 1}}, rooms)
}

func TestWidgetUIStateAndDestroy(t *testing.T) {
	s := newStack(t)
	w := s.widget(nil, nil)
	events := &recorder{}
	events.record(w, EventOpened, EventClosed, EventIdentified, EventTracked, EventDestroyed)

	conv := startChat(t, w)
	s.waitRoom(t, conv.ID, 1)

	w.Toggle()
	assert.True(t, w.IsOpen())
	w.Open()
	w.Toggle()
	assert.False(t, w.IsOpen())
	assert.Equal(t, 1, events.count(EventOpened))
	assert.Equal(t, 1, events.count(EventClosed))

	w.Identify(map[string]any{"plan": "pro"})
	w.Track("checkout", map[string]any{"step": 2})
	assert.Equal(t, 1, events.count(EventIdentified))
	assert.Equal(t, 1, events.count(EventTracked))

	w.Destroy()
	w.Destroy()
	assert.Equal(t, 1, events.count(EventDestroyed))
	assert.Nil(t, w.Subscription())
	s.waitRoom(t, conv.ID, 0)

	_, err := w.Send(context.Background(), "late")
	assert.ErrorIs(t, err, ErrDestroyed)
	assert.ErrorIs(t, w.Init(context.Background()), ErrDestroyed)
}
