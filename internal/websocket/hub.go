package websocket

import (
	"context"

	"github.com/rs/zerolog/log"
)

// SubscribeFunc starts feeding a room and returns the function that stops
// it. It is called when the first client joins.
type SubscribeFunc func(roomID string) (context.CancelFunc, error)

// roomOpened reports a finished subscribe back to Run.
type roomOpened struct {
	id     string
	cancel context.CancelFunc
	err    error
}

// Hub owns every room. All room state is touched only by Run.
type Hub struct {
	rooms      map[string]*Room
	opening    map[string][]*WSClient
	opened     chan roomOpened
	register   chan *WSClient
	unregister chan *WSClient
	broadcast  chan *WSMessage
	snapshot   chan chan []RoomRes
	done       chan struct{}
	subscribe  SubscribeFunc
	metrics    *Metrics
}

func NewHub(metrics *Metrics) *Hub {
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &Hub{
		rooms:      make(map[string]*Room),
		opening:    make(map[string][]*WSClient),
		opened:     make(chan roomOpened),
		register:   make(chan *WSClient),
		unregister: make(chan *WSClient),
		broadcast:  make(chan *WSMessage),
		snapshot:   make(chan chan []RoomRes),
		done:       make(chan struct{}),
		metrics:    metrics,
	}
}

// SetSubscriber must be called before Run.
func (h *Hub) SetSubscriber(subscribe SubscribeFunc) {
	h.subscribe = subscribe
}

func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			for id, room := range h.rooms {
				for client := range room.Clients {
					close(client.Message)
					h.metrics.decConnections()
				}
				h.removeRoom(id, room)
			}
			for id, waiting := range h.opening {
				for _, client := range waiting {
					close(client.Message)
				}
				delete(h.opening, id)
			}
			return

		case client := <-h.register:
			if room, ok := h.rooms[client.RoomID]; ok {
				room.Clients[client] = struct{}{}
				h.metrics.incConnections()
				continue
			}
			if h.subscribe == nil {
				room := h.addRoom(client.RoomID, nil)
				room.Clients[client] = struct{}{}
				h.metrics.incConnections()
				continue
			}
			waiting, pending := h.opening[client.RoomID]
			h.opening[client.RoomID] = append(waiting, client)
			if !pending {
				go h.openRoom(client.RoomID)
			}

		case res := <-h.opened:
			waiting := h.opening[res.id]
			delete(h.opening, res.id)
			if res.err != nil {
				log.Error().Err(res.err).Str("room", res.id).Msg("failed to open room")
				for _, client := range waiting {
					close(client.Message)
				}
				continue
			}
			if len(waiting) == 0 {
				if res.cancel != nil {
					res.cancel()
				}
				continue
			}
			room := h.addRoom(res.id, res.cancel)
			for _, client := range waiting {
				room.Clients[client] = struct{}{}
				h.metrics.incConnections()
			}

		case client := <-h.unregister:
			if waiting, ok := h.opening[client.RoomID]; ok {
				for i, c := range waiting {
					if c == client {
						h.opening[client.RoomID] = append(waiting[:i], waiting[i+1:]...)
						close(client.Message)
						break
					}
				}
				continue
			}
			room, ok := h.rooms[client.RoomID]
			if !ok {
				continue
			}
			h.drop(room, client)

		case message := <-h.broadcast:
			room, ok := h.rooms[message.RoomID]
			if !ok {
				continue
			}
			delivered := 0
			for client := range room.Clients {
				select {
				case client.Message <- message:
					delivered++
				default:
					// slow consumer
					h.drop(room, client)
				}
			}
			if delivered > 0 {
				h.metrics.addDelivered(delivered)
			}

		case reply := <-h.snapshot:
			rooms := make([]RoomRes, 0, len(h.rooms))
			for _, room := range h.rooms {
				rooms = append(rooms, RoomRes{ID: room.ID, Clients: len(room.Clients)})
			}
			reply <- rooms
		}
	}
}

// Rooms lists open rooms. It returns nil once the hub has stopped.
func (h *Hub) Rooms() []RoomRes {
	reply := make(chan []RoomRes, 1)
	select {
	case h.snapshot <- reply:
		return <-reply
	case <-h.done:
		return nil
	}
}

// Broadcast queues message for the clients of its room.
func (h *Hub) Broadcast(ctx context.Context, message *WSMessage) bool {
	select {
	case h.broadcast <- message:
		return true
	case <-ctx.Done():
		return false
	case <-h.done:
		return false
	}
}

func (h *Hub) join(client *WSClient) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) leave(client *WSClient) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// openRoom subscribes outside Run so a slow subscribe only delays the
// clients of that room.
func (h *Hub) openRoom(id string) {
	cancel, err := h.subscribe(id)
	select {
	case h.opened <- roomOpened{id: id, cancel: cancel, err: err}:
	case <-h.done:
		if cancel != nil {
			cancel()
		}
	}
}

func (h *Hub) addRoom(id string, cancel context.CancelFunc) *Room {
	room := &Room{ID: id, Clients: make(map[*WSClient]struct{}), cancel: cancel}
	h.rooms[id] = room
	h.metrics.setRooms(len(h.rooms))
	return room
}

func (h *Hub) drop(room *Room, client *WSClient) {
	if _, ok := room.Clients[client]; !ok {
		return
	}
	delete(room.Clients, client)
	close(client.Message)
	h.metrics.decConnections()

	if len(room.Clients) == 0 {
		h.removeRoom(room.ID, room)
	}
}

func (h *Hub) removeRoom(id string, room *Room) {
	if room.cancel != nil {
		room.cancel()
	}
	delete(h.rooms, id)
	h.metrics.setRooms(len(h.rooms))
}
