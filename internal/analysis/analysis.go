// Package analysis runs the end-to-end ECG processing pipeline and
// tracks each analysis through its lifecycle.
package analysis

import (
	"sync"
	"time"

	"github.com/drguilhermecapel/medai/internal/classifier"
	"github.com/drguilhermecapel/medai/internal/ecg"
	"github.com/drguilhermecapel/medai/internal/features"
	"github.com/drguilhermecapel/medai/internal/quality"
	"github.com/drguilhermecapel/medai/internal/urgency"
)

// Status is the lifecycle state of an analysis.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// FailureReason identifies why an analysis reached the failed state.
type FailureReason string

const (
	ReasonInsufficientSignalQuality FailureReason = "InsufficientSignalQuality"
	ReasonQualityAssessmentError    FailureReason = "QualityAssessmentError"
	ReasonFeatureExtraction         FailureReason = "FeatureExtractionError"
	ReasonClassificationError       FailureReason = "ClassificationError"
	ReasonClassificationTimeout     FailureReason = "ClassificationTimeout"
	ReasonCancelled                 FailureReason = "Cancelled"
)

// Analysis is the aggregate produced by one pipeline run. Stage results
// are populated append-only by the worker that owns the run; readers
// take snapshots.
type Analysis struct {
	mu sync.Mutex

	id         string
	patientRef string

	recording *ecg.Recording
	report    *quality.Report
	features  *features.Set
	diagnoses []classifier.Prediction
	urgency   urgency.Result

	status        Status
	failureReason FailureReason
	failureDetail string

	createdAt   time.Time
	completedAt time.Time

	// Set once by the clinical validation workflow.
	reviewed       bool
	reviewOutcome  string
	reviewReviewer string
	reviewNotes    string
}

func newAnalysis(rec *ecg.Recording) *Analysis {
	return &Analysis{
		id:         rec.ID(),
		patientRef: rec.PatientRef(),
		recording:  rec,
		status:     StatusPending,
		createdAt:  time.Now(),
	}
}

// ID returns the analysis identifier.
func (a *Analysis) ID() string { return a.id }

// Status returns the current lifecycle state.
func (a *Analysis) Status() Status {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.status
}

// Diagnosis is one ranked classifier prediction in a snapshot.
type Diagnosis struct {
	Rank       int     `json:"rank"`
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// UrgencyReason is one contributing protocol signal in a snapshot.
type UrgencyReason struct {
	Protocol string `json:"protocol"`
	Detail   string `json:"detail"`
	Critical bool   `json:"critical"`
}

// Snapshot is an immutable copy of an analysis for API responses and
// persistence.
type Snapshot struct {
	ID            string          `json:"id"`
	PatientRef    string          `json:"patient_ref,omitempty"`
	Status        Status          `json:"status"`
	FailureReason FailureReason   `json:"failure_reason,omitempty"`
	FailureDetail string          `json:"failure_detail,omitempty"`
	QualityScore  float64         `json:"quality_score"`
	HeartRate     *float64        `json:"heart_rate,omitempty"`
	BeatCount     int             `json:"beat_count"`
	LowBeatCount  bool            `json:"low_beat_count"`
	Diagnoses     []Diagnosis     `json:"diagnoses,omitempty"`
	UrgencyTier   string          `json:"urgency_tier,omitempty"`
	UrgencyWhy    []UrgencyReason `json:"urgency_reasons,omitempty"`
	Reviewed      bool            `json:"reviewed"`
	ReviewOutcome string          `json:"review_outcome,omitempty"`
	Reviewer      string          `json:"reviewer,omitempty"`
	CapturedAt    time.Time       `json:"captured_at"`
	CreatedAt     time.Time       `json:"created_at"`
	CompletedAt   time.Time       `json:"completed_at,omitzero"`
}

// Snapshot returns a copy of the current state.
func (a *Analysis) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	s := Snapshot{
		ID:            a.id,
		PatientRef:    a.patientRef,
		Status:        a.status,
		FailureReason: a.failureReason,
		FailureDetail: a.failureDetail,
		Reviewed:      a.reviewed,
		ReviewOutcome: a.reviewOutcome,
		Reviewer:      a.reviewReviewer,
		CapturedAt:    a.recording.CapturedAt(),
		CreatedAt:     a.createdAt,
		CompletedAt:   a.completedAt,
	}
	if a.report != nil {
		s.QualityScore = a.report.OverallScore
	}
	if a.features != nil {
		s.HeartRate = a.features.HeartRate
		s.BeatCount = a.features.BeatCount()
		s.LowBeatCount = a.features.LowBeatCount
	}
	for i, p := range a.diagnoses {
		s.Diagnoses = append(s.Diagnoses, Diagnosis{Rank: i + 1, Label: p.Label, Confidence: p.Confidence})
	}
	if a.status == StatusCompleted {
		s.UrgencyTier = string(a.urgency.Tier)
		for _, r := range a.urgency.Reasons {
			s.UrgencyWhy = append(s.UrgencyWhy, UrgencyReason{Protocol: r.Protocol, Detail: r.Detail, Critical: r.Critical})
		}
	}
	return s
}

func (a *Analysis) setStatus(status Status) (from Status) {
	a.mu.Lock()
	defer a.mu.Unlock()
	from = a.status
	a.status = status
	if status == StatusCompleted || status == StatusFailed {
		a.completedAt = time.Now()
	}
	return from
}

func (a *Analysis) fail(reason FailureReason, detail string) (from Status) {
	a.mu.Lock()
	defer a.mu.Unlock()
	from = a.status
	a.status = StatusFailed
	a.failureReason = reason
	a.failureDetail = detail
	a.completedAt = time.Now()
	return from
}

func (a *Analysis) setReport(r *quality.Report) {
	a.mu.Lock()
	a.report = r
	a.mu.Unlock()
}

func (a *Analysis) setFeatures(s *features.Set) {
	a.mu.Lock()
	a.features = s
	a.mu.Unlock()
}

func (a *Analysis) setDiagnoses(preds []classifier.Prediction) {
	a.mu.Lock()
	a.diagnoses = preds
	a.mu.Unlock()
}

func (a *Analysis) setUrgency(r urgency.Result) {
	a.mu.Lock()
	a.urgency = r
	a.mu.Unlock()
}

func (a *Analysis) setReview(outcome, reviewer, notes string) {
	a.mu.Lock()
	a.reviewed = true
	a.reviewOutcome = outcome
	a.reviewReviewer = reviewer
	a.reviewNotes = notes
	a.mu.Unlock()
}
