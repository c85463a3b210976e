package events

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type collector struct {
	mu     sync.Mutex
	events []Event
}

func (c *collector) add(e Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
}

func (c *collector) names() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.events))
	for i, e := range c.events {
		out[i] = e.Name
	}
	return out
}

func TestMessageBus_DeliversInOrder(t *testing.T) {
	defer goleak.VerifyNone(t)

	bus := NewMessageBus(4)
	defer bus.Close()

	var c collector
	_, err := bus.Subscribe(TopicLifecycle, c.add)
	require.NoError(t, err)

	want := []string{KeyringUnlocked, ActiveWalletUpdated, KeyringLocked, KeyringUnlocked, ConnectionURLUpdated, KeyringLocked}
	for _, name := range want {
		bus.Publish(TopicLifecycle, Event{Name: name})
	}
	bus.Publish(TopicNotifications, Event{Name: TokenAccountsDidUpdate})

	assert.Eventually(t, func() bool { return len(c.names()) == len(want) }, time.Second, time.Millisecond)
	assert.Equal(t, want, c.names())
}

func TestMessageBus_Unsubscribe(t *testing.T) {
	defer goleak.VerifyNone(t)

	bus := NewMessageBus(0)
	defer bus.Close()

	var first, second collector
	unsubscribe, err := bus.Subscribe(TopicNotifications, first.add)
	require.NoError(t, err)
	_, err = bus.Subscribe(TopicNotifications, second.add)
	require.NoError(t, err)

	bus.Publish(TopicNotifications, Event{Name: "a"})
	assert.Eventually(t, func() bool { return len(first.names()) == 1 && len(second.names()) == 1 }, time.Second, time.Millisecond)

	unsubscribe()
	unsubscribe()

	bus.Publish(TopicNotifications, Event{Name: "b"})
	assert.Eventually(t, func() bool { return len(second.names()) == 2 }, time.Second, time.Millisecond)
	assert.Equal(t, []string{"a"}, first.names())
}

func TestMessageBus_CloseStopsDelivery(t *testing.T) {
	defer goleak.VerifyNone(t)

	bus := NewMessageBus(1)
	var c collector
	unsubscribe, err := bus.Subscribe(TopicLifecycle, c.add)
	require.NoError(t, err)

	bus.Close()
	unsubscribe()
	bus.Publish(TopicLifecycle, Event{Name: KeyringLocked})

	time.Sleep(10 * time.Millisecond)
	assert.Empty(t, c.names())
}

func TestEvent_RoundTrip(t *testing.T) {
	e, err := New(KeyringUnlocked, KeyringUnlockedData{
		ActiveWalletsByChain: map[string]string{ChainSolana: "wallet"},
		ConnectionURL:        "https://rpc",
		Commitment:           "confirmed",
	})
	require.NoError(t, err)

	var data KeyringUnlockedData
	require.NoError(t, e.Decode(&data))
	assert.Equal(t, "wallet", data.ActiveWalletsByChain[ChainSolana])
	assert.Equal(t, "https://rpc", data.ConnectionURL)

	locked, err := New(KeyringLocked, nil)
	require.NoError(t, err)
	assert.Empty(t, locked.Data)
	assert.Error(t, locked.Decode(&data))

	_, err = New("bad", make(chan int))
	assert.Error(t, err)
}
