// Package notification consumes lifecycle transition events and fans
// them out to interested parties. Delivery is best-effort: a slow or
// failing sink never blocks the analysis pipeline.
package notification

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/drguilhermecapel/medai/internal/conf"
	"github.com/drguilhermecapel/medai/internal/events"
	"github.com/drguilhermecapel/medai/internal/logging"
)

// Notification is one delivered lifecycle message.
type Notification struct {
	ID         string         `json:"id"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id"`
	From       string         `json:"from"`
	To         string         `json:"to"`
	Reason     string         `json:"reason,omitempty"`
	Message    string         `json:"message"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
}

// Service stores recent notifications in a bounded in-memory buffer
// and optionally republishes them over MQTT. It implements
// events.Consumer.
type Service struct {
	settings conf.NotificationSettings
	logger   *slog.Logger

	mu     sync.Mutex
	recent []Notification

	publisher *Publisher
}

// NewService creates the notification service. The MQTT publisher is
// attached later, once connected, via SetPublisher.
func NewService(settings conf.NotificationSettings) *Service {
	if settings.MaxStored <= 0 {
		settings.MaxStored = 250
	}
	return &Service{
		settings: settings,
		logger:   logging.ForService("notification"),
	}
}

// SetPublisher attaches a connected MQTT publisher.
func (s *Service) SetPublisher(p *Publisher) {
	s.mu.Lock()
	s.publisher = p
	s.mu.Unlock()
}

// Name implements events.Consumer.
func (s *Service) Name() string { return "notification" }

// ProcessEvent implements events.Consumer. It runs on an event bus
// worker goroutine.
func (s *Service) ProcessEvent(event events.Event) error {
	n := Notification{
		ID:         uuid.New().String(),
		EntityKind: event.GetEntityKind(),
		EntityID:   event.GetEntityID(),
		From:       event.GetFrom(),
		To:         event.GetTo(),
		Reason:     event.GetReason(),
		Metadata:   event.GetMetadata(),
		Timestamp:  event.GetTimestamp(),
	}
	n.Message = formatMessage(&n)

	s.mu.Lock()
	s.recent = append(s.recent, n)
	if len(s.recent) > s.settings.MaxStored {
		s.recent = s.recent[len(s.recent)-s.settings.MaxStored:]
	}
	publisher := s.publisher
	s.mu.Unlock()

	if publisher != nil {
		if err := publisher.Publish(&n); err != nil {
			s.logger.Warn("mqtt publish failed",
				slog.String("entity_id", n.EntityID), slog.Any("error", err))
		}
	}
	return nil
}

// Recent returns up to limit notifications, newest first.
func (s *Service) Recent(limit int) []Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit <= 0 || limit > len(s.recent) {
		limit = len(s.recent)
	}
	out := make([]Notification, 0, limit)
	for i := len(s.recent) - 1; i >= len(s.recent)-limit; i-- {
		out = append(out, s.recent[i])
	}
	return out
}

func formatMessage(n *Notification) string {
	if n.Reason != "" {
		return fmt.Sprintf("%s %s: %s -> %s (%s)", n.EntityKind, n.EntityID, n.From, n.To, n.Reason)
	}
	return fmt.Sprintf("%s %s: %s -> %s", n.EntityKind, n.EntityID, n.From, n.To)
}
