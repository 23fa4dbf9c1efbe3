package agent

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// defaultMaxHistory bounds the rolling message history
const defaultMaxHistory = 10000

// Message is a single bus delivery. Content is opaque to the bus.
type Message struct {
	ID        string    `json:"id"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Content   any       `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Delivered bool      `json:"delivered"`
}

// Receiver is anything that can accept a bus delivery. Agents implement
// it; tests substitute their own.
type Receiver interface {
	ReceiveMessage(msg *Message) error
}

// BusStats is a read-only snapshot of bus activity
type BusStats struct {
	Subscribers int `json:"subscribers"`
	Total       int `json:"total"`
	Delivered   int `json:"delivered"`
	Failed      int `json:"failed"`
}

// MessageBus is a publish/subscribe registry mapping agent names to
// mailboxes. Delivery is synchronous, at-most-once, best-effort: failures
// are recorded in history and returned as false, never propagated.
type MessageBus struct {
	subscribers map[string]Receiver
	history     []*Message
	maxHistory  int
	onRecord    func(delivered bool)
	mu          sync.Mutex
}

// NewMessageBus creates a message bus with the default history bound
func NewMessageBus() *MessageBus {
	return &MessageBus{
		subscribers: make(map[string]Receiver),
		history:     make([]*Message, 0),
		maxHistory:  defaultMaxHistory,
	}
}

// Subscribe registers a receiver under a name, replacing any previous one
func (b *MessageBus) Subscribe(name string, receiver Receiver) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[name] = receiver
}

// Unsubscribe removes a receiver. Messages already delivered are
// unaffected.
func (b *MessageBus) Unsubscribe(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subscribers, name)
}

// SendMessage delivers content from one agent to another. Returns false if
// the recipient is not subscribed or its handler fails; either way the
// message is appended to history with the delivery outcome.
func (b *MessageBus) SendMessage(from, to string, content any) bool {
	msg := &Message{
		ID:        uuid.New().String(),
		From:      from,
		To:        to,
		Content:   content,
		Timestamp: time.Now(),
	}

	b.mu.Lock()
	receiver, ok := b.subscribers[to]
	b.mu.Unlock()

	if !ok {
		fmt.Printf("[MessageBus] No subscriber %q for message from %q\n", to, from)
		b.record(msg)
		return false
	}

	if err := receiver.ReceiveMessage(msg); err != nil {
		fmt.Printf("[MessageBus] Delivery to %q failed: %v\n", to, err)
		b.record(msg)
		return false
	}

	msg.Delivered = true
	b.record(msg)
	return true
}

// Broadcast sends content to every subscriber except the sender and the
// excluded names. Returns the count of successful deliveries.
func (b *MessageBus) Broadcast(from string, content any, exclude ...string) int {
	skip := make(map[string]bool, len(exclude)+1)
	skip[from] = true
	for _, name := range exclude {
		skip[name] = true
	}

	b.mu.Lock()
	targets := make([]string, 0, len(b.subscribers))
	for name := range b.subscribers {
		if !skip[name] {
			targets = append(targets, name)
		}
	}
	b.mu.Unlock()

	delivered := 0
	for _, name := range targets {
		if b.SendMessage(from, name, content) {
			delivered++
		}
	}
	return delivered
}

// MessagesForAgent returns history entries addressed to the agent
func (b *MessageBus) MessagesForAgent(name string) []*Message {
	b.mu.Lock()
	defer b.mu.Unlock()

	matches := make([]*Message, 0)
	for _, msg := range b.history {
		if msg.To == name {
			matches = append(matches, msg)
		}
	}
	return matches
}

// History returns a copy of the message history, oldest first
func (b *MessageBus) History() []*Message {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]*Message, len(b.history))
	copy(out, b.history)
	return out
}

// ClearHistory drops all recorded messages
func (b *MessageBus) ClearHistory() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.history = b.history[:0]
}

// Stats returns subscriber and delivery counts
func (b *MessageBus) Stats() BusStats {
	b.mu.Lock()
	defer b.mu.Unlock()

	stats := BusStats{
		Subscribers: len(b.subscribers),
		Total:       len(b.history),
	}
	for _, msg := range b.history {
		if msg.Delivered {
			stats.Delivered++
		} else {
			stats.Failed++
		}
	}
	return stats
}

// SetRecordHook installs a callback invoked once per recorded message
// with its delivery outcome. Used by the manager to feed metrics.
func (b *MessageBus) SetRecordHook(hook func(delivered bool)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onRecord = hook
}

// record appends to history, trimming oldest entries past the bound
func (b *MessageBus) record(msg *Message) {
	b.mu.Lock()
	hook := b.onRecord
	b.history = append(b.history, msg)
	if len(b.history) > b.maxHistory {
		b.history = b.history[len(b.history)-b.maxHistory:]
	}
	b.mu.Unlock()

	if hook != nil {
		hook(msg.Delivered)
	}
}
