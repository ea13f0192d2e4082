package logcollection

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBroadcaster_DeliversToAllSubscribers(t *testing.T) {
	b := NewBroadcaster[int]()

	first, unsubscribeFirst := b.Subscribe(4)
	second, unsubscribeSecond := b.Subscribe(4)
	defer unsubscribeFirst()
	defer unsubscribeSecond()

	assert.Equal(t, 2, b.SubscriberCount())

	b.Publish(1)
	b.Publish(2)

	assert.Equal(t, 1, <-first)
	assert.Equal(t, 2, <-first)
	assert.Equal(t, 1, <-second)
	assert.Equal(t, 2, <-second)
}

func TestBroadcaster_SlowSubscriberDropsOldest(t *testing.T) {
	b := NewBroadcaster[int]()
	ch, unsubscribe := b.Subscribe(2)
	defer unsubscribe()

	b.Publish(1)
	b.Publish(2)
	b.Publish(3)

	assert.Equal(t, 2, <-ch)
	assert.Equal(t, 3, <-ch)
	assert.Empty(t, ch)
}

func TestBroadcaster_Unsubscribe(t *testing.T) {
	b := NewBroadcaster[string]()
	ch, unsubscribe := b.Subscribe(1)

	unsubscribe()
	unsubscribe()

	_, ok := <-ch
	assert.False(t, ok)
	assert.Equal(t, 0, b.SubscriberCount())

	b.Publish("ignored")
}

func TestBroadcaster_Close(t *testing.T) {
	b := NewBroadcaster[string]()
	ch, unsubscribe := b.Subscribe(1)

	b.Close()
	b.Close()
	unsubscribe()

	_, ok := <-ch
	assert.False(t, ok)

	late, _ := b.Subscribe(1)
	_, ok = <-late
	require.False(t, ok)
}
