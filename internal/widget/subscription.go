package widget

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"chatdesk-backend/internal/dto"
	realtime "chatdesk-backend/internal/websocket"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	DefaultReconnectMin = 250 * time.Millisecond
	DefaultReconnectMax = 5 * time.Second

	readTimeout = 75 * time.Second
	controlWait = 10 * time.Second
	dialTimeout = 10 * time.Second
)

// Subscription follows one conversation room. After a dropped connection it
// reconnects with backoff and resyncs history before reading pushes again.
type Subscription struct {
	dialer  *websocket.Dialer
	url     string
	onEvent func(dto.Event)
	resync  func(ctx context.Context) error
	min     time.Duration
	max     time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu         sync.Mutex
	conn       *websocket.Conn
	reconnects int
}

type subscriptionOptions struct {
	Dialer       *websocket.Dialer
	URL          string
	OnEvent      func(dto.Event)
	Resync       func(ctx context.Context) error
	ReconnectMin time.Duration
	ReconnectMax time.Duration
}

// subscribe dials once synchronously so the caller sees the first failure.
func subscribe(ctx context.Context, opts subscriptionOptions) (*Subscription, error) {
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	if opts.ReconnectMin <= 0 {
		opts.ReconnectMin = DefaultReconnectMin
	}
	if opts.ReconnectMax < opts.ReconnectMin {
		opts.ReconnectMax = DefaultReconnectMax
	}

	s := &Subscription{
		dialer:  opts.Dialer,
		url:     opts.URL,
		onEvent: opts.OnEvent,
		resync:  opts.Resync,
		min:     opts.ReconnectMin,
		max:     opts.ReconnectMax,
		done:    make(chan struct{}),
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())

	conn, err := s.dial(ctx)
	if err != nil {
		s.cancel()
		return nil, err
	}
	s.setConn(conn)

	go s.run(conn)
	return s, nil
}

// Close stops the subscription and waits for its goroutine.
func (s *Subscription) Close() {
	s.cancel()
	s.mu.Lock()
	if s.conn != nil {
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(controlWait))
		_ = s.conn.Close()
	}
	s.mu.Unlock()
	<-s.done
}

func (s *Subscription) Reconnects() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reconnects
}

func (s *Subscription) run(conn *websocket.Conn) {
	defer close(s.done)
	for {
		err := s.read(conn)
		if s.ctx.Err() != nil {
			return
		}
		log.Warn().Err(err).Str("url", s.url).Msg("realtime connection lost")

		conn = s.reconnect()
		if conn == nil {
			return
		}
	}
}

func (s *Subscription) read(conn *websocket.Conn) error {
	defer conn.Close()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var frame realtime.WSMessage
		if err := json.Unmarshal(data, &frame); err != nil {
			log.Warn().Err(err).Msg("realtime frame is not a room message")
			continue
		}
		var event dto.Event
		if err := json.Unmarshal([]byte(frame.Content), &event); err != nil {
			log.Warn().Err(err).Str("room", frame.RoomID).Msg("realtime frame carries no event")
			continue
		}
		if s.onEvent != nil {
			s.onEvent(event)
		}
	}
}

// reconnect returns nil once the subscription is closed.
func (s *Subscription) reconnect() *websocket.Conn {
	backoff := s.min
	for {
		select {
		case <-s.ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, s.max)

		conn, err := s.dial(s.ctx)
		if err != nil {
			log.Warn().Err(err).Dur("backoff", backoff).Msg("realtime reconnect failed")
			continue
		}

		// Frames pushed while history loads queue on the socket and are
		// deduplicated by the message log.
		if s.resync != nil {
			if err := s.resync(s.ctx); err != nil {
				log.Warn().Err(err).Msg("realtime resync failed")
				_ = conn.Close()
				continue
			}
		}

		s.mu.Lock()
		s.reconnects++
		s.mu.Unlock()
		s.setConn(conn)
		if s.ctx.Err() != nil {
			_ = conn.Close()
			return nil
		}
		return conn
	}
}

func (s *Subscription) dial(ctx context.Context) (*websocket.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	conn, resp, err := s.dialer.DialContext(dialCtx, s.url, nil)
	if err != nil {
		if resp != nil {
			return nil, &APIError{StatusCode: resp.StatusCode, Message: "realtime upgrade rejected"}
		}
		return nil, err
	}

	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPingHandler(func(data string) error {
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
		err := conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(controlWait))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})
	return conn, nil
}

func (s *Subscription) setConn(conn *websocket.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn = conn
}
