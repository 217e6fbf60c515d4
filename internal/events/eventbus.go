// Package events provides an asynchronous event bus for decoupling the
// pipeline and validation workflow from the notification boundary.
package events

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/drguilhermecapel/medai/internal/logging"
)

// Consumer receives events published on the bus.
type Consumer interface {
	// Name returns a unique name for the consumer
	Name() string

	// ProcessEvent handles a single transition event
	ProcessEvent(event Event) error
}

// BusStats tracks event bus counters.
type BusStats struct {
	EventsReceived uint64
	EventsDropped  uint64
	ConsumerErrors uint64
}

// Config holds event bus configuration
type Config struct {
	BufferSize int
	Workers    int
}

// DefaultConfig returns the default event bus configuration
func DefaultConfig() *Config {
	return &Config{
		BufferSize: 10000,
		Workers:    4,
	}
}

// Bus provides asynchronous event processing with non-blocking publish
// guarantees. The pipeline must never block on notification delivery, so
// a full buffer drops events (counted) rather than applying backpressure.
type Bus struct {
	eventChan chan Event

	bufferSize int
	workers    int

	done    chan struct{}
	wg      sync.WaitGroup
	running atomic.Bool
	mu      sync.Mutex

	consumers []Consumer

	stats BusStats

	logger *slog.Logger
}

// NewBus creates a new event bus. Workers are started by Start.
func NewBus(config *Config) *Bus {
	if config == nil {
		config = DefaultConfig()
	}
	if config.BufferSize < 1 {
		config.BufferSize = DefaultConfig().BufferSize
	}
	if config.Workers < 1 {
		config.Workers = DefaultConfig().Workers
	}

	return &Bus{
		eventChan:  make(chan Event, config.BufferSize),
		bufferSize: config.BufferSize,
		workers:    config.Workers,
		done:       make(chan struct{}),
		consumers:  make([]Consumer, 0),
		logger:     logging.ForService("events"),
	}
}

// RegisterConsumer adds a new event consumer. Consumer names must be unique.
func (b *Bus) RegisterConsumer(consumer Consumer) error {
	if b == nil {
		return fmt.Errorf("event bus not initialized")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, existing := range b.consumers {
		if existing.Name() == consumer.Name() {
			return fmt.Errorf("consumer %s already registered", consumer.Name())
		}
	}

	b.consumers = append(b.consumers, consumer)

	b.logger.Info("registered event consumer", "consumer", consumer.Name())
	return nil
}

// Start begins the worker goroutines. Safe to call once.
func (b *Bus) Start() {
	if b.running.Swap(true) {
		return // Already running
	}

	b.logger.Info("starting event bus workers", "count", b.workers)

	for i := 0; i < b.workers; i++ {
		b.wg.Add(1)
		go b.worker(i)
	}
}

// TryPublish attempts to publish an event without blocking.
// Returns true if the event was accepted, false if dropped.
func (b *Bus) TryPublish(event Event) bool {
	if b == nil || !b.running.Load() {
		return false
	}

	// Non-blocking send
	select {
	case b.eventChan <- event:
		atomic.AddUint64(&b.stats.EventsReceived, 1)
		return true
	default:
		// Channel full, drop the event
		atomic.AddUint64(&b.stats.EventsDropped, 1)
		b.logger.Debug("event dropped due to full buffer",
			"entity", event.GetEntityKind(),
			"id", event.GetEntityID(),
		)
		return false
	}
}

// worker processes events from the channel
func (b *Bus) worker(id int) {
	defer b.wg.Done()

	logger := b.logger.With("worker_id", id)
	logger.Debug("worker started")

	for {
		select {
		case <-b.done:
			logger.Debug("worker stopping due to shutdown")
			return

		case event, ok := <-b.eventChan:
			if !ok {
				logger.Debug("worker stopping due to channel closure")
				return
			}
			b.processEvent(event, logger)
		}
	}
}

// processEvent sends the event to all registered consumers
func (b *Bus) processEvent(event Event, logger *slog.Logger) {
	b.mu.Lock()
	consumers := make([]Consumer, len(b.consumers))
	copy(consumers, b.consumers)
	b.mu.Unlock()

	for _, consumer := range consumers {
		// Process in a recovery wrapper to prevent panics from a consumer
		// taking down the bus workers.
		func() {
			defer func() {
				if r := recover(); r != nil {
					atomic.AddUint64(&b.stats.ConsumerErrors, 1)
					logger.Error("consumer panicked",
						"consumer", consumer.Name(),
						"panic", r,
						"entity", event.GetEntityKind(),
						"id", event.GetEntityID(),
					)
				}
			}()

			if err := consumer.ProcessEvent(event); err != nil {
				atomic.AddUint64(&b.stats.ConsumerErrors, 1)
				logger.Error("consumer error",
					"consumer", consumer.Name(),
					"error", err,
					"entity", event.GetEntityKind(),
					"id", event.GetEntityID(),
				)
			}
		}()
	}
}

// Shutdown stops the workers, waiting up to timeout for in-flight
// deliveries to finish. Events still buffered when the workers stop are
// discarded; delivery is best-effort end to end.
func (b *Bus) Shutdown(timeout time.Duration) error {
	if b == nil || !b.running.Swap(false) {
		return nil
	}

	b.logger.Info("shutting down event bus", "timeout", timeout)

	close(b.done)

	waitDone := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(waitDone)
	}()

	select {
	case <-waitDone:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("event bus shutdown timed out after %v", timeout)
	}
}

// GetStats returns a snapshot of bus counters.
func (b *Bus) GetStats() BusStats {
	return BusStats{
		EventsReceived: atomic.LoadUint64(&b.stats.EventsReceived),
		EventsDropped:  atomic.LoadUint64(&b.stats.EventsDropped),
		ConsumerErrors: atomic.LoadUint64(&b.stats.ConsumerErrors),
	}
}
