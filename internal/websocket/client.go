package websocket

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	pingInterval   = 30 * time.Second
	writeWait      = 10 * time.Second
	maxMessageSize = 512 * 1024
	clientBuffer   = 16
)

type WSClient struct {
	Conn     *websocket.Conn
	Message  chan *WSMessage
	ID       string
	RoomID   string
	done     chan struct{}
	mu       sync.Mutex
	isClosed bool
}

func newClient(conn *websocket.Conn, roomID, id string) *WSClient {
	return &WSClient{
		Conn:    conn,
		Message: make(chan *WSMessage, clientBuffer),
		ID:      id,
		RoomID:  roomID,
		done:    make(chan struct{}),
	}
}

func (cl *WSClient) keepAlive() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-cl.done:
			return
		case <-ticker.C:
			cl.mu.Lock()
			if cl.isClosed {
				cl.mu.Unlock()
				return
			}
			err := cl.Conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			cl.mu.Unlock()

			if err != nil {
				log.Debug().Err(err).Str("client", cl.ID).Msg("websocket ping failed")
				return
			}
		}
	}
}

func (cl *WSClient) writeMessage() {
	defer cl.close()

	for {
		select {
		case <-cl.done:
			return
		case msg, ok := <-cl.Message:
			if !ok {
				cl.mu.Lock()
				_ = cl.Conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), time.Now().Add(writeWait))
				cl.mu.Unlock()
				return
			}

			cl.mu.Lock()
			if cl.isClosed {
				cl.mu.Unlock()
				return
			}
			_ = cl.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			err := cl.Conn.WriteJSON(msg)
			cl.mu.Unlock()

			if err != nil {
				log.Debug().Err(err).Str("client", cl.ID).Msg("websocket write failed")
				return
			}
		}
	}
}

// readMessage drains control frames until the peer goes away. Client
// payloads are not relayed; rooms only carry server-published events.
func (cl *WSClient) readMessage(hub *Hub) {
	defer func() {
		close(cl.done)
		hub.leave(cl)
		cl.close()
		log.Debug().Str("client", cl.ID).Str("room", cl.RoomID).Msg("websocket client disconnected")
	}()

	cl.Conn.SetReadLimit(maxMessageSize)

	for {
		if _, _, err := cl.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				log.Debug().Err(err).Str("client", cl.ID).Msg("websocket read failed")
			}
			return
		}
	}
}

func (cl *WSClient) close() {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	if cl.isClosed {
		return
	}
	cl.isClosed = true
	_ = cl.Conn.Close()
}
