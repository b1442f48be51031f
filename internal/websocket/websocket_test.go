package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"chatdesk-backend/internal/env"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	gorilla "github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type harness struct {
	hub       *Hub
	metrics   *Metrics
	publisher *Publisher
	server    *httptest.Server
	cancel    context.CancelFunc
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	metrics := NewMetrics(prometheus.NewRegistry())
	hub := NewHub(metrics)
	handler := NewHandler(hub, rdb)

	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		room := r.URL.Query().Get("room")
		if err := handler.JoinRoom(w, r, room, "user"); err != nil {
			t.Logf("join: %v", err)
		}
	}))
	t.Cleanup(func() {
		server.Close()
		cancel()
	})

	return &harness{hub: hub, metrics: metrics, publisher: NewPublisher(rdb), server: server, cancel: cancel}
}

func (h *harness) dial(t *testing.T, room string) *gorilla.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(h.server.URL, "http") + "/?room=" + room
	conn, _, err := gorilla.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func (h *harness) waitClients(t *testing.T, room string, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		for _, r := range h.hub.Rooms() {
			if r.ID == room {
				return r.Clients == n
			}
		}
		return n == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestPublishedEventsReachEveryClientInRoom(t *testing.T) {
	h := newHarness(t)
	room := ConversationRoom("c1")

	first := h.dial(t, room)
	second := h.dial(t, room)
	other := h.dial(t, ConversationRoom("c2"))
	h.waitClients(t, room, 2)
	h.waitClients(t, ConversationRoom("c2"), 1)

	require.NoError(t, h.publisher.Publish(context.Background(), room, map[string]string{"type": "message.created"}))

	for _, conn := range []*gorilla.Conn{first, second} {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		var msg WSMessage
		require.NoError(t, conn.ReadJSON(&msg))
		assert.Equal(t, room, msg.RoomID)
		assert.JSONEq(t, `{"type":"message.created"}`, msg.Content)
	}

	require.NoError(t, other.SetReadDeadline(time.Now().Add(100*time.Millisecond)))
	var msg WSMessage
	assert.Error(t, other.ReadJSON(&msg))

	assert.Equal(t, float64(2), testutil.ToFloat64(h.metrics.delivered))
}

func TestRoomIsRemovedWhenLastClientLeaves(t *testing.T) {
	h := newHarness(t)
	room := NotificationRoom("org-1")

	conn := h.dial(t, room)
	h.waitClients(t, room, 1)
	assert.Equal(t, float64(1), testutil.ToFloat64(h.metrics.rooms))
	assert.Equal(t, float64(1), testutil.ToFloat64(h.metrics.connections))

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return len(h.hub.Rooms()) == 0 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, float64(0), testutil.ToFloat64(h.metrics.rooms))
	assert.Equal(t, float64(0), testutil.ToFloat64(h.metrics.connections))

	// a fresh join resubscribes
	again := h.dial(t, room)
	h.waitClients(t, room, 1)
	require.NoError(t, h.publisher.Publish(context.Background(), room, "ping"))
	require.NoError(t, again.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg WSMessage
	require.NoError(t, again.ReadJSON(&msg))
	assert.Equal(t, `"ping"`, msg.Content)
}

func TestHubShutdownClosesClients(t *testing.T) {
	h := newHarness(t)
	room := ConversationRoom("c1")
	conn := h.dial(t, room)
	h.waitClients(t, room, 1)

	h.cancel()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
	assert.Nil(t, h.hub.Rooms())
}

func TestSlowSubscribeDoesNotStallOtherRooms(t *testing.T) {
	hub := NewHub(NewMetrics(prometheus.NewRegistry()))
	gate := make(chan struct{})
	hub.SetSubscriber(func(roomID string) (context.CancelFunc, error) {
		if roomID == "slow" {
			<-gate
		}
		return func() {}, nil
	})
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	slow := &WSClient{RoomID: "slow", Message: make(chan *WSMessage, 1)}
	fast := &WSClient{RoomID: "fast", Message: make(chan *WSMessage, 1)}
	require.True(t, hub.join(slow))
	require.True(t, hub.join(fast))

	require.Eventually(t, func() bool { return len(hub.Rooms()) == 1 }, 2*time.Second, 10*time.Millisecond)
	require.True(t, hub.Broadcast(context.Background(), &WSMessage{RoomID: "fast", Content: "hi"}))
	select {
	case msg := <-fast.Message:
		assert.Equal(t, "hi", msg.Content)
	case <-time.After(2 * time.Second):
		t.Fatal("fast room did not receive its broadcast")
	}

	close(gate)
	require.Eventually(t, func() bool { return len(hub.Rooms()) == 2 }, 2*time.Second, 10*time.Millisecond)
}

func TestClientLeavingBeforeSubscribeFinishesIsReleased(t *testing.T) {
	hub := NewHub(NewMetrics(prometheus.NewRegistry()))
	gate := make(chan struct{})
	cancelled := make(chan struct{})
	hub.SetSubscriber(func(roomID string) (context.CancelFunc, error) {
		<-gate
		return func() { close(cancelled) }, nil
	})
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	client := &WSClient{RoomID: "r", Message: make(chan *WSMessage, 1)}
	require.True(t, hub.join(client))
	hub.leave(client)
	_, open := <-client.Message
	assert.False(t, open)

	close(gate)
	select {
	case <-cancelled:
	case <-time.After(2 * time.Second):
		t.Fatal("subscription of an empty room was kept")
	}
	assert.Empty(t, hub.Rooms())
}

func TestPublishRequiresRoom(t *testing.T) {
	p := NewPublisher(redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"}))
	assert.Error(t, p.Publish(context.Background(), "", "x"))

	var nilPublisher *Publisher
	assert.Error(t, nilPublisher.Publish(context.Background(), "room", "x"))
}

func TestRoomNames(t *testing.T) {
	assert.Equal(t, "conversation:abc", ConversationRoom(" abc "))
	assert.Equal(t, "org:o1:notifications", NotificationRoom("o1"))
	assert.Empty(t, ConversationRoom(""))
	assert.Empty(t, NotificationRoom(" "))
}

func TestNewRedisClientAcceptsURL(t *testing.T) {
	client, err := NewRedisClient(envRedis("redis://:pw@localhost:6380/2"))
	require.NoError(t, err)
	assert.Equal(t, "localhost:6380", client.Options().Addr)
	assert.Equal(t, 2, client.Options().DB)

	client, err = NewRedisClient(envRedis("localhost:6379"))
	require.NoError(t, err)
	assert.Equal(t, "localhost:6379", client.Options().Addr)
}

func envRedis(url string) env.RedisConfig {
	return env.RedisConfig{URL: url}
}
