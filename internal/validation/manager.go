package validation

import (
	"log/slog"
	"sync"
	"time"

	"github.com/drguilhermecapel/medai/internal/conf"
	"github.com/drguilhermecapel/medai/internal/errors"
	"github.com/drguilhermecapel/medai/internal/events"
	"github.com/drguilhermecapel/medai/internal/logging"
	"github.com/drguilhermecapel/medai/internal/observability/metrics"
	"github.com/google/uuid"
)

// FinalizeFunc marks the parent analysis as clinically final. Called
// exactly once per task, on the approved or rejected transition.
type FinalizeFunc func(analysisID string, outcome Outcome, reviewer, notes string)

// Manager owns all validation tasks and serializes their state
// transitions. Claim is the single concurrency-critical shared-state
// mutation of the core: it is an exclusive compare-and-swap, so
// concurrent claims resolve to one winner and typed conflicts.
type Manager struct {
	settings conf.ValidationSettings

	mu         sync.Mutex
	tasks      map[string]*task
	byAnalysis map[string]string

	bus      *events.Bus
	finalize FinalizeFunc
	logger   *slog.Logger
	metrics  *metrics.ValidationMetrics

	sweepDone chan struct{}
	sweepWG   sync.WaitGroup
	started   bool
}

// NewManager creates a validation manager. The bus may be nil in tests;
// transitions are then unobserved but still correct.
func NewManager(settings conf.ValidationSettings, bus *events.Bus, finalize FinalizeFunc) *Manager {
	return &Manager{
		settings:   settings,
		tasks:      make(map[string]*task),
		byAnalysis: make(map[string]string),
		bus:        bus,
		finalize:   finalize,
		logger:     logging.ForService("validation"),
		sweepDone:  make(chan struct{}),
	}
}

// SetMetrics attaches Prometheus collectors. Optional; a nil-metrics
// manager records nothing.
func (m *Manager) SetMetrics(vm *metrics.ValidationMetrics) {
	m.mu.Lock()
	m.metrics = vm
	m.mu.Unlock()
}

// CreateTask registers a new unassigned task for a completed analysis
// and returns its snapshot. Idempotent per analysis: a second call
// returns the existing task.
func (m *Manager) CreateTask(analysisID string) View {
	m.mu.Lock()
	if existing, ok := m.byAnalysis[analysisID]; ok {
		v := m.tasks[existing].view()
		m.mu.Unlock()
		return v
	}
	t := newTask(analysisID)
	m.tasks[t.id] = t
	m.byAnalysis[analysisID] = t.id
	v := t.view()
	if m.metrics != nil {
		m.metrics.OpenTasks.Inc()
	}
	m.mu.Unlock()

	m.emit(t.id, "", StatusUnassigned, "created", map[string]any{"analysis_id": analysisID})
	m.logger.Info("validation task created", "task_id", t.id, "analysis_id", analysisID)
	return v
}

// Get returns a snapshot of the task, or a typed not-found error.
func (m *Manager) Get(taskID string) (View, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[taskID]
	if !ok {
		return View{}, notFound(taskID)
	}
	return t.view(), nil
}

// GetByAnalysis returns the task snapshot for an analysis id.
func (m *Manager) GetByAnalysis(analysisID string) (View, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	taskID, ok := m.byAnalysis[analysisID]
	if !ok {
		return View{}, notFound(analysisID)
	}
	return m.tasks[taskID].view(), nil
}

// Claim atomically assigns the task to a reviewer. Only legal from
// unassigned; losing racers receive ErrAlreadyAssigned, never a silent
// overwrite. On success it returns the claim token the reviewer must
// present with their decision.
func (m *Manager) Claim(taskID, reviewer string) (string, error) {
	if reviewer == "" {
		return "", errors.New(errors.NewStd("reviewer cannot be empty")).
			Component("validation").
			Category(errors.CategoryValidation).
			Build()
	}

	m.mu.Lock()
	t, ok := m.tasks[taskID]
	if !ok {
		m.mu.Unlock()
		return "", notFound(taskID)
	}

	// Compare-and-swap: the status check and the assignment happen under
	// the same lock, so exactly one concurrent claimant can win.
	if t.status != StatusUnassigned {
		if m.metrics != nil {
			m.metrics.ClaimConflicts.Inc()
		}
		m.mu.Unlock()
		return "", errors.New(ErrAlreadyAssigned).
			Component("validation").
			Category(errors.CategoryConflict).
			Context("task_id", taskID).
			Context("status", string(t.status)).
			Build()
	}

	t.status = StatusAssigned
	t.reviewer = reviewer
	t.claimToken = uuid.New().String()
	t.assignedAt = time.Now()
	token := t.claimToken
	m.mu.Unlock()

	m.emit(taskID, StatusUnassigned, StatusAssigned, "claimed", map[string]any{"reviewer": reviewer})
	m.logger.Info("validation task claimed", "task_id", taskID, "reviewer", reviewer)
	return token, nil
}

// SubmitDecision finalizes the task. Only legal from assigned, and only
// by the reviewer holding the current claim token; anything else fails
// with ErrNotAssignedReviewer, including decisions against terminal or
// expired tasks.
func (m *Manager) SubmitDecision(taskID, reviewer, token string, outcome Outcome, notes string) error {
	if !outcome.Valid() {
		return errors.New(ErrInvalidOutcome).
			Component("validation").
			Category(errors.CategoryValidation).
			Context("outcome", string(outcome)).
			Build()
	}

	m.mu.Lock()
	t, ok := m.tasks[taskID]
	if !ok {
		m.mu.Unlock()
		return notFound(taskID)
	}

	if t.status != StatusAssigned || t.reviewer != reviewer || t.claimToken != token {
		status := t.status
		m.mu.Unlock()
		return errors.New(ErrNotAssignedReviewer).
			Component("validation").
			Category(errors.CategoryConflict).
			Context("task_id", taskID).
			Context("status", string(status)).
			Build()
	}

	to := StatusApproved
	if outcome == OutcomeRejected {
		to = StatusRejected
	}
	t.status = to
	t.notes = notes
	t.decidedAt = time.Now()
	t.claimToken = ""
	analysisID := t.analysisID
	if m.metrics != nil {
		m.metrics.TasksTotal.WithLabelValues(string(outcome)).Inc()
		m.metrics.OpenTasks.Dec()
	}
	m.mu.Unlock()

	m.emit(taskID, StatusAssigned, to, "decision", map[string]any{
		"reviewer": reviewer,
		"outcome":  string(outcome),
	})
	m.logger.Info("validation decision submitted",
		"task_id", taskID, "reviewer", reviewer, "outcome", outcome)

	// approved/rejected are the only transitions permitted to mark the
	// parent analysis clinically final
	if m.finalize != nil {
		m.finalize(analysisID, outcome, reviewer, notes)
	}
	return nil
}

// Start launches the SLA sweeper.
func (m *Manager) Start() {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return
	}
	m.started = true
	m.mu.Unlock()

	m.sweepWG.Add(1)
	go func() {
		defer m.sweepWG.Done()
		ticker := time.NewTicker(m.settings.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-m.sweepDone:
				return
			case <-ticker.C:
				m.Sweep(time.Now())
			}
		}
	}()
}

// Stop terminates the sweeper and waits for it to exit.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return
	}
	m.started = false
	m.mu.Unlock()

	close(m.sweepDone)
	m.sweepWG.Wait()
}

// Sweep expires assignments older than the claim SLA and re-offers the
// tasks. Exported so tests and operators can trigger it with a chosen
// clock instead of waiting for the ticker.
func (m *Manager) Sweep(now time.Time) {
	type expiry struct {
		taskID    string
		reviewer  string
		reoffers  int
		escalated bool
	}
	var expired []expiry

	m.mu.Lock()
	for _, t := range m.tasks {
		if t.status != StatusAssigned {
			continue
		}
		if now.Sub(t.assignedAt) < m.settings.ClaimSLA {
			continue
		}
		reviewer := t.reviewer
		t.status = StatusUnassigned
		t.reviewer = ""
		t.claimToken = ""
		t.assignedAt = time.Time{}
		t.reoffers++
		escalated := false
		if t.reoffers > m.settings.MaxReoffers && !t.escalated {
			t.escalated = true
			escalated = true
		}
		expired = append(expired, expiry{
			taskID:    t.id,
			reviewer:  reviewer,
			reoffers:  t.reoffers,
			escalated: escalated,
		})
	}
	m.mu.Unlock()

	for _, e := range expired {
		if m.metrics != nil {
			m.metrics.ClaimsExpired.Inc()
			if e.escalated {
				m.metrics.Escalations.Inc()
			}
		}
		m.emit(e.taskID, StatusAssigned, StatusExpired, "sla-timeout", map[string]any{"reviewer": e.reviewer})
		m.emit(e.taskID, StatusExpired, StatusUnassigned, "re-offered", map[string]any{"reoffers": e.reoffers})
		m.logger.Warn("validation claim expired",
			"task_id", e.taskID, "reviewer", e.reviewer, "reoffers", e.reoffers)

		if e.escalated {
			// Reported, never silently dropped: the task stays claimable
			// but the repeated expiry is surfaced for humans.
			m.emit(e.taskID, StatusUnassigned, StatusUnassigned, "sla-escalation", map[string]any{"reoffers": e.reoffers})
			m.logger.Error("validation task escalated after repeated expiry",
				"task_id", e.taskID, "reoffers", e.reoffers)
		}
	}
}

func (m *Manager) emit(taskID string, from, to Status, reason string, meta map[string]any) {
	if m.bus == nil {
		return
	}
	ev, err := events.NewTransitionEvent(events.EntityValidationTask, taskID, string(from), string(to), reason, meta)
	if err != nil {
		m.logger.Error("failed to build transition event", "task_id", taskID, "error", err)
		return
	}
	m.bus.TryPublish(ev)
}

func notFound(id string) error {
	return errors.New(ErrTaskNotFound).
		Component("validation").
		Category(errors.CategoryNotFound).
		Context("id", id).
		Build()
}
