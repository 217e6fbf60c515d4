package events

import (
	"maps"
	"time"

	"github.com/drguilhermecapel/medai/internal/errors"
)

// Entity kinds carried by transition events.
const (
	EntityAnalysis       = "analysis"
	EntityValidationTask = "validation_task"
)

// Event represents a single state transition of an analysis or a
// validation task, published for the notification boundary.
type Event interface {
	// GetEntityKind returns the kind of entity that transitioned
	GetEntityKind() string

	// GetEntityID returns the identifier of the entity
	GetEntityID() string

	// GetFrom returns the prior state
	GetFrom() string

	// GetTo returns the new state
	GetTo() string

	// GetReason returns the transition reason, if any
	GetReason() string

	// GetTimestamp returns when the transition occurred
	GetTimestamp() time.Time

	// GetMetadata returns additional context data
	GetMetadata() map[string]any
}

// transitionEventImpl is the concrete implementation of Event
type transitionEventImpl struct {
	entityKind string
	entityID   string
	from       string
	to         string
	reason     string
	timestamp  time.Time
	metadata   map[string]any
}

// NewTransitionEvent creates a new transition event with input validation.
func NewTransitionEvent(entityKind, entityID, from, to, reason string, metadata map[string]any) (Event, error) {
	if entityKind != EntityAnalysis && entityKind != EntityValidationTask {
		return nil, errors.Newf("NewTransitionEvent: unknown entity kind %q", entityKind).
			Component("events").
			Category(errors.CategoryValidation).
			Build()
	}
	if entityID == "" {
		return nil, errors.Newf("NewTransitionEvent: entityID cannot be empty").
			Component("events").
			Category(errors.CategoryValidation).
			Build()
	}
	if to == "" {
		return nil, errors.Newf("NewTransitionEvent: new state cannot be empty").
			Component("events").
			Category(errors.CategoryValidation).
			Build()
	}

	var metaCopy map[string]any
	if metadata != nil {
		metaCopy = make(map[string]any, len(metadata))
		maps.Copy(metaCopy, metadata)
	}

	return &transitionEventImpl{
		entityKind: entityKind,
		entityID:   entityID,
		from:       from,
		to:         to,
		reason:     reason,
		timestamp:  time.Now(),
		metadata:   metaCopy,
	}, nil
}

func (e *transitionEventImpl) GetEntityKind() string { return e.entityKind }

func (e *transitionEventImpl) GetEntityID() string { return e.entityID }

func (e *transitionEventImpl) GetFrom() string { return e.from }

func (e *transitionEventImpl) GetTo() string { return e.to }

func (e *transitionEventImpl) GetReason() string { return e.reason }

func (e *transitionEventImpl) GetTimestamp() time.Time { return e.timestamp }

func (e *transitionEventImpl) GetMetadata() map[string]any {
	if e.metadata == nil {
		return nil
	}
	out := make(map[string]any, len(e.metadata))
	maps.Copy(out, e.metadata)
	return out
}
