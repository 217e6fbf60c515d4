package events

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type captureConsumer struct {
	name string
	mu   sync.Mutex
	seen []Event
	err  error
}

func (c *captureConsumer) Name() string { return c.name }

func (c *captureConsumer) ProcessEvent(event Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seen = append(c.seen, event)
	return c.err
}

func (c *captureConsumer) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.seen)
}

func mustEvent(t *testing.T, id string) Event {
	t.Helper()
	ev, err := NewTransitionEvent(EntityAnalysis, id, "pending", "processing", "", nil)
	require.NoError(t, err)
	return ev
}

func TestBusDeliversToConsumers(t *testing.T) {
	defer goleak.VerifyNone(t)

	bus := NewBus(&Config{BufferSize: 16, Workers: 2})
	consumer := &captureConsumer{name: "capture"}
	require.NoError(t, bus.RegisterConsumer(consumer))
	bus.Start()

	for i := range 5 {
		assert.True(t, bus.TryPublish(mustEvent(t, string(rune('a'+i)))))
	}

	require.Eventually(t, func() bool { return consumer.count() == 5 },
		time.Second, 5*time.Millisecond)
	require.NoError(t, bus.Shutdown(time.Second))

	stats := bus.GetStats()
	assert.Equal(t, uint64(5), stats.EventsReceived)
	assert.Zero(t, stats.EventsDropped)
}

func TestBusRejectsDuplicateConsumer(t *testing.T) {
	bus := NewBus(nil)
	require.NoError(t, bus.RegisterConsumer(&captureConsumer{name: "dup"}))
	assert.Error(t, bus.RegisterConsumer(&captureConsumer{name: "dup"}))
}

func TestTryPublishBeforeStartIsRejected(t *testing.T) {
	bus := NewBus(nil)
	assert.False(t, bus.TryPublish(mustEvent(t, "x")))
}

func TestTryPublishDropsWhenFull(t *testing.T) {
	// One-slot buffer and no worker draining it yet: the second publish
	// must drop instead of blocking.
	bus := NewBus(&Config{BufferSize: 1, Workers: 1})
	bus.running.Store(true)

	assert.True(t, bus.TryPublish(mustEvent(t, "first")))

	done := make(chan bool, 1)
	go func() {
		done <- bus.TryPublish(mustEvent(t, "second"))
	}()
	select {
	case accepted := <-done:
		assert.False(t, accepted)
	case <-time.After(time.Second):
		t.Fatal("TryPublish blocked on a full buffer")
	}
	assert.Equal(t, uint64(1), bus.GetStats().EventsDropped)
}

func TestBusSurvivesConsumerPanic(t *testing.T) {
	defer goleak.VerifyNone(t)

	bus := NewBus(&Config{BufferSize: 16, Workers: 1})
	panicky := &panicConsumer{}
	healthy := &captureConsumer{name: "healthy"}
	require.NoError(t, bus.RegisterConsumer(panicky))
	require.NoError(t, bus.RegisterConsumer(healthy))
	bus.Start()

	bus.TryPublish(mustEvent(t, "boom"))

	require.Eventually(t, func() bool { return healthy.count() == 1 },
		time.Second, 5*time.Millisecond)
	require.NoError(t, bus.Shutdown(time.Second))
	assert.Equal(t, uint64(1), bus.GetStats().ConsumerErrors)
}

type panicConsumer struct{}

func (p *panicConsumer) Name() string             { return "panicky" }
func (p *panicConsumer) ProcessEvent(Event) error { panic("consumer bug") }

func TestShutdownDiscardsUndeliveredEvents(t *testing.T) {
	// Accept events without any worker draining them, then shut down:
	// buffered events are discarded, not delivered late.
	bus := NewBus(&Config{BufferSize: 4, Workers: 1})
	consumer := &captureConsumer{name: "late"}
	require.NoError(t, bus.RegisterConsumer(consumer))
	bus.running.Store(true)

	assert.True(t, bus.TryPublish(mustEvent(t, "one")))
	assert.True(t, bus.TryPublish(mustEvent(t, "two")))

	require.NoError(t, bus.Shutdown(100*time.Millisecond))
	assert.Zero(t, consumer.count())
}

func TestShutdownIsIdempotent(t *testing.T) {
	bus := NewBus(&Config{BufferSize: 4, Workers: 1})
	bus.Start()
	require.NoError(t, bus.Shutdown(time.Second))
	require.NoError(t, bus.Shutdown(time.Second))
}

func TestNewTransitionEventValidation(t *testing.T) {
	_, err := NewTransitionEvent("", "id", "a", "b", "", nil)
	assert.Error(t, err)
	_, err = NewTransitionEvent(EntityAnalysis, "", "a", "b", "", nil)
	assert.Error(t, err)

	ev, err := NewTransitionEvent(EntityValidationTask, "t1", "unassigned", "assigned", "claimed",
		map[string]any{"reviewer": "dr-a"})
	require.NoError(t, err)
	assert.Equal(t, EntityValidationTask, ev.GetEntityKind())
	assert.Equal(t, "assigned", ev.GetTo())
	assert.WithinDuration(t, time.Now(), ev.GetTimestamp(), time.Second)
	assert.Equal(t, "dr-a", ev.GetMetadata()["reviewer"])
}
