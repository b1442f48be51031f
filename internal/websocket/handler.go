package websocket

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const subscribeTimeout = 5 * time.Second

// Handler upgrades connections into hub rooms fed by redis channels of
// the same name.
type Handler struct {
	hub         *Hub
	redisClient *redis.Client
	upgrader    websocket.Upgrader
}

func NewHandler(hub *Hub, redisClient *redis.Client) *Handler {
	h := &Handler{
		hub:         hub,
		redisClient: redisClient,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// callers authenticate with a token before the upgrade
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	hub.SetSubscriber(h.subscribeToRoomChannel)
	return h
}

func (h *Handler) subscribeToRoomChannel(roomID string) (context.CancelFunc, error) {
	ctx, cancel := context.WithCancel(context.Background())
	subscriber := h.redisClient.Subscribe(ctx, roomID)

	// confirmed before the first client is registered, so nothing
	// published after a join is lost
	recvCtx, recvCancel := context.WithTimeout(ctx, subscribeTimeout)
	defer recvCancel()
	if _, err := subscriber.Receive(recvCtx); err != nil {
		cancel()
		_ = subscriber.Close()
		return nil, fmt.Errorf("subscribe %s: %w", roomID, err)
	}
	log.Debug().Str("room", roomID).Msg("subscribed to redis channel")

	go func() {
		defer subscriber.Close()
		ch := subscriber.Channel()
		for {
			select {
			case <-ctx.Done():
				log.Debug().Str("room", roomID).Msg("unsubscribed from redis channel")
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				h.hub.Broadcast(ctx, &WSMessage{
					Content:   msg.Payload,
					RoomID:    roomID,
					Timestamp: time.Now().Unix(),
				})
			}
		}
	}()

	return cancel, nil
}

// JoinRoom upgrades the request and registers the connection in roomID.
// On upgrade failure the response has already been written.
func (h *Handler) JoinRoom(w http.ResponseWriter, r *http.Request, roomID, userID string) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("websocket upgrade: %w", err)
	}

	cl := newClient(conn, roomID, userID+"/"+uuid.NewString())
	if !h.hub.join(cl) {
		_ = conn.Close()
		return fmt.Errorf("websocket hub stopped")
	}

	go cl.keepAlive()
	go cl.writeMessage()
	go cl.readMessage(h.hub)
	return nil
}

// Rooms lists every open room of the hub.
func (h *Handler) Rooms() []RoomRes {
	return h.hub.Rooms()
}
