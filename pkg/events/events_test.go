package events_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/skynet-control/pkg/events"
)

func TestPublishDeliversToSubscriber(t *testing.T) {
	b := events.NewBroker()
	defer b.Stop()

	sub := b.Subscribe("")
	defer b.Unsubscribe(sub)

	b.Publish(&events.Event{Type: events.EventTaskSucceeded, TaskID: "t1"})

	select {
	case ev := <-sub.C:
		assert.Equal(t, "t1", ev.TaskID)
		assert.False(t, ev.Timestamp.IsZero())
	case <-time.After(time.Second):
		t.Fatal("expected event delivery")
	}
}

func TestTaskFilterNarrowsDelivery(t *testing.T) {
	b := events.NewBroker()
	defer b.Stop()

	sub := b.Subscribe("t2")
	defer b.Unsubscribe(sub)

	b.Publish(&events.Event{Type: events.EventTaskClaimed, TaskID: "t1"})
	b.Publish(&events.Event{Type: events.EventTaskClaimed, TaskID: "t2"})

	select {
	case ev := <-sub.C:
		assert.Equal(t, "t2", ev.TaskID)
	case <-time.After(time.Second):
		t.Fatal("expected filtered event delivery")
	}
	select {
	case ev := <-sub.C:
		t.Fatalf("unexpected second event for task %s", ev.TaskID)
	default:
	}
}

func TestSlowSubscriberDropsOldest(t *testing.T) {
	b := events.NewBroker()
	defer b.Stop()

	sub := b.Subscribe("")
	defer b.Unsubscribe(sub)

	// Overfill the buffer without draining; the earliest events give way.
	for i := 0; i < 70; i++ {
		b.Publish(&events.Event{Type: events.EventTaskRunning, TaskID: fmt.Sprintf("t%d", i)})
	}

	assert.Equal(t, uint64(6), sub.Dropped())
	first := <-sub.C
	assert.Equal(t, "t6", first.TaskID)
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := events.NewBroker()
	defer b.Stop()

	sub := b.Subscribe("")
	require.Equal(t, 1, b.SubscriberCount())
	b.Unsubscribe(sub)
	assert.Equal(t, 0, b.SubscriberCount())

	_, open := <-sub.C
	assert.False(t, open)

	// Unsubscribing twice is a no-op.
	b.Unsubscribe(sub)
}

func TestStopRejectsFurtherUse(t *testing.T) {
	b := events.NewBroker()
	sub := b.Subscribe("")
	b.Stop()

	_, open := <-sub.C
	assert.False(t, open)

	b.Publish(&events.Event{Type: events.EventTaskFailed, TaskID: "t1"})
	late := b.Subscribe("")
	_, open = <-late.C
	assert.False(t, open)
	assert.Equal(t, 0, b.SubscriberCount())
}
