package agent

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingReceiver is a test mailbox that can be told to reject deliveries
type recordingReceiver struct {
	received []*Message
	fail     bool
}

func (r *recordingReceiver) ReceiveMessage(msg *Message) error {
	if r.fail {
		return fmt.Errorf("mailbox full")
	}
	r.received = append(r.received, msg)
	return nil
}

func TestBusDeliversToSubscriber(t *testing.T) {
	bus := NewMessageBus()
	inbox := &recordingReceiver{}
	bus.Subscribe("bob", inbox)

	ok := bus.SendMessage("alice", "bob", "hi")

	assert.True(t, ok)
	require.Len(t, inbox.received, 1)
	assert.Equal(t, "alice", inbox.received[0].From)
	assert.Equal(t, "hi", inbox.received[0].Content)

	history := bus.History()
	require.Len(t, history, 1)
	assert.True(t, history[0].Delivered)
}

func TestBusRecordsFailedDeliveryToUnknownRecipient(t *testing.T) {
	bus := NewMessageBus()

	ok := bus.SendMessage("alice", "nobody", "hello?")

	assert.False(t, ok)
	history := bus.History()
	require.Len(t, history, 1, "failed deliveries still land in history")
	assert.False(t, history[0].Delivered)
	assert.Equal(t, "nobody", history[0].To)
}

func TestBusRecordsHandlerFailure(t *testing.T) {
	bus := NewMessageBus()
	bus.Subscribe("bob", &recordingReceiver{fail: true})

	ok := bus.SendMessage("alice", "bob", "hi")

	assert.False(t, ok)
	history := bus.History()
	require.Len(t, history, 1)
	assert.False(t, history[0].Delivered)
}

func TestBusUnsubscribe(t *testing.T) {
	bus := NewMessageBus()
	bus.Subscribe("bob", &recordingReceiver{})
	bus.Unsubscribe("bob")

	assert.False(t, bus.SendMessage("alice", "bob", "gone"))
}

func TestBusBroadcastSkipsSenderAndExcluded(t *testing.T) {
	bus := NewMessageBus()
	alice := &recordingReceiver{}
	bob := &recordingReceiver{}
	carol := &recordingReceiver{}
	bus.Subscribe("alice", alice)
	bus.Subscribe("bob", bob)
	bus.Subscribe("carol", carol)

	delivered := bus.Broadcast("alice", "standup in 5", "carol")

	assert.Equal(t, 1, delivered)
	assert.Empty(t, alice.received)
	assert.Len(t, bob.received, 1)
	assert.Empty(t, carol.received)
}

func TestBusMessagesForAgent(t *testing.T) {
	bus := NewMessageBus()
	bus.Subscribe("bob", &recordingReceiver{})
	bus.Subscribe("carol", &recordingReceiver{})

	bus.SendMessage("alice", "bob", "one")
	bus.SendMessage("alice", "carol", "two")
	bus.SendMessage("alice", "bob", "three")

	assert.Len(t, bus.MessagesForAgent("bob"), 2)
	assert.Len(t, bus.MessagesForAgent("carol"), 1)
	assert.Empty(t, bus.MessagesForAgent("dave"))
}

func TestBusStats(t *testing.T) {
	bus := NewMessageBus()
	bus.Subscribe("bob", &recordingReceiver{})

	bus.SendMessage("alice", "bob", "ok")
	bus.SendMessage("alice", "nobody", "lost")

	stats := bus.Stats()
	assert.Equal(t, 1, stats.Subscribers)
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 1, stats.Delivered)
	assert.Equal(t, 1, stats.Failed)
}

func TestBusClearHistory(t *testing.T) {
	bus := NewMessageBus()
	bus.SendMessage("alice", "nobody", "x")
	bus.ClearHistory()
	assert.Empty(t, bus.History())
}

func TestBusHistoryTrimsAtBound(t *testing.T) {
	bus := NewMessageBus()
	bus.maxHistory = 3
	bus.Subscribe("bob", &recordingReceiver{})

	for i := 0; i < 5; i++ {
		bus.SendMessage("alice", "bob", i)
	}

	history := bus.History()
	require.Len(t, history, 3)
	assert.Equal(t, 2, history[0].Content, "oldest entries are trimmed first")
}

func TestBusRecordHook(t *testing.T) {
	bus := NewMessageBus()
	bus.Subscribe("bob", &recordingReceiver{})

	outcomes := make([]bool, 0)
	bus.SetRecordHook(func(delivered bool) { outcomes = append(outcomes, delivered) })

	bus.SendMessage("alice", "bob", "ok")
	bus.SendMessage("alice", "nobody", "lost")

	assert.Equal(t, []bool{true, false}, outcomes)
}
