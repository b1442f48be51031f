package widget

import (
	"sync"

	"chatdesk-backend/internal/dto"
)

type entryState int

const (
	statePending entryState = iota
	stateConfirmed
)

type logEntry struct {
	clientID string
	state    entryState
	message  dto.Message
}

// MessageLog is the local view of a conversation: an append-only list keyed
// by message id. Optimistic sends enter as pending under a client id; the
// server copy, from the send response or the push channel, only ever flips
// pending to confirmed or inserts when absent.
type MessageLog struct {
	mu      sync.Mutex
	role    string
	entries []*logEntry
	byID    map[string]*logEntry
}

// NewMessageLog builds a log for a viewer whose own messages carry
// senderType role.
func NewMessageLog(role string) *MessageLog {
	return &MessageLog{role: role, byID: make(map[string]*logEntry)}
}

// AppendPending adds an optimistic message.
func (l *MessageLog) AppendPending(clientID string, message dto.Message) {
	l.mu.Lock()
	defer l.mu.Unlock()
	message.ID = ""
	message.Status = "pending"
	l.entries = append(l.entries, &logEntry{clientID: clientID, state: statePending, message: message})
}

// Confirm resolves a pending entry with the server's copy. When the push
// channel already delivered that copy the pending entry is dropped. A
// confirmed entry is never dropped here.
func (l *MessageLog) Confirm(clientID string, message dto.Message) {
	l.mu.Lock()
	defer l.mu.Unlock()

	idx := l.indexOfClient(clientID)
	if existing, ok := l.byID[message.ID]; ok {
		if idx >= 0 && l.entries[idx] != existing {
			entry := l.entries[idx]
			if entry.state == statePending {
				l.remove(idx)
			} else {
				// A sibling send's push already claimed this entry. Trade
				// client ids so each later confirm finds its own copy.
				entry.clientID, existing.clientID = existing.clientID, entry.clientID
			}
		}
		existing.message = message
		existing.state = stateConfirmed
		return
	}

	if idx < 0 {
		l.insert(&logEntry{state: stateConfirmed, message: message})
		return
	}

	entry := l.entries[idx]
	if entry.state == stateConfirmed && entry.message.ID != message.ID {
		// The push channel matched this entry to a sibling send with the
		// same content. Hand the sibling's pending slot to this message.
		if other := l.pendingLike(entry.message); other != nil {
			entry.clientID, other.clientID = other.clientID, entry.clientID
			entry = other
		} else {
			l.insert(&logEntry{state: stateConfirmed, message: message})
			return
		}
	}
	entry.message = message
	entry.state = stateConfirmed
	l.byID[message.ID] = entry
}

// Rollback removes a pending entry whose send failed.
func (l *MessageLog) Rollback(clientID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	idx := l.indexOfClient(clientID)
	if idx < 0 || l.entries[idx].state != statePending {
		return false
	}
	l.remove(idx)
	return true
}

// Merge accepts a server message and reports whether it is new to the
// view. A copy of the viewer's own pending message adopts that entry in
// place so the list never shows it twice.
func (l *MessageLog) Merge(message dto.Message) bool {
	if message.ID == "" {
		return false
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if existing, ok := l.byID[message.ID]; ok {
		existing.message = message
		existing.state = stateConfirmed
		return false
	}

	if message.SenderType == l.role {
		if entry := l.pendingLike(message); entry != nil {
			entry.message = message
			entry.state = stateConfirmed
			l.byID[message.ID] = entry
			return false
		}
	}

	l.insert(&logEntry{state: stateConfirmed, message: message})
	return true
}

// MergeAll merges history in order and returns the messages new to the
// view.
func (l *MessageLog) MergeAll(messages []dto.Message) []dto.Message {
	var added []dto.Message
	for _, message := range messages {
		if l.Merge(message) {
			added = append(added, message)
		}
	}
	return added
}

// Messages returns the rendered list, pending entries included.
func (l *MessageLog) Messages() []dto.Message {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]dto.Message, 0, len(l.entries))
	for _, entry := range l.entries {
		out = append(out, entry.message)
	}
	return out
}

func (l *MessageLog) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, entry := range l.entries {
		if entry.state == statePending {
			n++
		}
	}
	return n
}

func (l *MessageLog) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = nil
	l.byID = make(map[string]*logEntry)
}

func (l *MessageLog) insert(entry *logEntry) {
	l.entries = append(l.entries, entry)
	l.byID[entry.message.ID] = entry
}

func (l *MessageLog) remove(idx int) {
	entry := l.entries[idx]
	if entry.message.ID != "" && l.byID[entry.message.ID] == entry {
		delete(l.byID, entry.message.ID)
	}
	l.entries = append(l.entries[:idx], l.entries[idx+1:]...)
}

// pendingLike returns the oldest pending entry with the same content.
func (l *MessageLog) pendingLike(message dto.Message) *logEntry {
	for _, entry := range l.entries {
		if entry.state == statePending && entry.message.Content == message.Content && entry.message.MessageType == message.MessageType {
			return entry
		}
	}
	return nil
}

func (l *MessageLog) indexOfClient(clientID string) int {
	if clientID == "" {
		return -1
	}
	for i, entry := range l.entries {
		if entry.clientID == clientID {
			return i
		}
	}
	return -1
}
