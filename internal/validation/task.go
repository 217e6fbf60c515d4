// Package validation implements the human-review workflow: every
// completed analysis is routed through a validation task before it
// becomes an authoritative clinical artifact.
package validation

import (
	"time"

	"github.com/drguilhermecapel/medai/internal/errors"
	"github.com/google/uuid"
)

// Status is the validation task state. Transitions:
// unassigned -> assigned -> {approved | rejected}; assigned -> expired on
// SLA timeout; expired -> unassigned (re-offered). approved and rejected
// are terminal.
type Status string

const (
	StatusUnassigned Status = "unassigned"
	StatusAssigned   Status = "assigned"
	StatusApproved   Status = "approved"
	StatusRejected   Status = "rejected"
	StatusExpired    Status = "expired"
)

// Terminal reports whether no further transitions are legal.
func (s Status) Terminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// Outcome is the reviewer's structured decision.
type Outcome string

const (
	OutcomeApproved Outcome = "approved"
	OutcomeRejected Outcome = "rejected"
)

// Valid reports whether o is a known outcome.
func (o Outcome) Valid() bool {
	return o == OutcomeApproved || o == OutcomeRejected
}

// Typed conflict and lookup errors. These are expected control-flow
// signals: callers branch on them, they are not crashes.
var (
	ErrAlreadyAssigned     = errors.NewStd("validation task already assigned")
	ErrNotAssignedReviewer = errors.NewStd("caller does not hold the active claim")
	ErrTaskNotFound        = errors.NewStd("validation task not found")
	ErrInvalidOutcome      = errors.NewStd("invalid decision outcome")
)

// IsAlreadyAssigned reports whether err is a lost claim race.
func IsAlreadyAssigned(err error) bool {
	return errors.Is(err, ErrAlreadyAssigned)
}

// IsNotAssignedReviewer reports whether err is a decision attempt by a
// caller that does not hold the active claim.
func IsNotAssignedReviewer(err error) bool {
	return errors.Is(err, ErrNotAssignedReviewer)
}

// task is the internal mutable record. All access goes through the
// manager, which serializes transitions per task.
type task struct {
	id         string
	analysisID string

	status     Status
	reviewer   string
	claimToken string

	createdAt  time.Time
	assignedAt time.Time
	decidedAt  time.Time

	notes     string
	reoffers  int
	escalated bool
}

func newTask(analysisID string) *task {
	return &task{
		id:         uuid.New().String(),
		analysisID: analysisID,
		status:     StatusUnassigned,
		createdAt:  time.Now(),
	}
}

// View is an immutable snapshot of a task for callers outside the
// state machine.
type View struct {
	ID         string    `json:"id"`
	AnalysisID string    `json:"analysis_id"`
	Status     Status    `json:"status"`
	Reviewer   string    `json:"reviewer,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	AssignedAt time.Time `json:"assigned_at,omitzero"`
	DecidedAt  time.Time `json:"decided_at,omitzero"`
	Notes      string    `json:"notes,omitempty"`
	Reoffers   int       `json:"reoffers"`
	Escalated  bool      `json:"escalated"`
}

func (t *task) view() View {
	return View{
		ID:         t.id,
		AnalysisID: t.analysisID,
		Status:     t.status,
		Reviewer:   t.reviewer,
		CreatedAt:  t.createdAt,
		AssignedAt: t.assignedAt,
		DecidedAt:  t.decidedAt,
		Notes:      t.notes,
		Reoffers:   t.reoffers,
		Escalated:  t.escalated,
	}
}
