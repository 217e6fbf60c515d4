// Package ecg defines the canonical in-memory representation of a
// digitized electrocardiogram and the ingestion path that produces it.
package ecg

import (
	"time"

	"github.com/google/uuid"
)

// Standard lead label sets, indexed by lead count. These are the only
// configurations ingestion accepts.
var leadConfigurations = map[int][]string{
	1:  {"I"},
	3:  {"I", "II", "III"},
	12: {"I", "II", "III", "aVR", "aVL", "aVF", "V1", "V2", "V3", "V4", "V5", "V6"},
}

// SupportedLeadCounts returns the accepted lead counts in ascending order.
func SupportedLeadCounts() []int {
	return []int{1, 3, 12}
}

// StandardLeadLabels returns the canonical label set for a supported lead
// count, or nil for an unsupported count.
func StandardLeadLabels(count int) []string {
	labels, ok := leadConfigurations[count]
	if !ok {
		return nil
	}
	out := make([]string, len(labels))
	copy(out, labels)
	return out
}

// Lead is one electrode channel of a recording.
type Lead struct {
	Name    string
	Samples []float64
}

// Recording is the immutable canonical waveform: per-lead samples at the
// canonical sample rate, plus capture metadata. Created once at ingestion
// and never mutated; later stages hold references only.
type Recording struct {
	id         string
	leads      []Lead
	sampleRate int
	capturedAt time.Time
	patientRef string
}

// ID returns the recording identifier.
func (r *Recording) ID() string { return r.id }

// SampleRate returns the canonical sample rate in Hz.
func (r *Recording) SampleRate() int { return r.sampleRate }

// CapturedAt returns the capture timestamp.
func (r *Recording) CapturedAt() time.Time { return r.capturedAt }

// PatientRef returns the opaque source patient reference.
func (r *Recording) PatientRef() string { return r.patientRef }

// LeadCount returns the number of leads.
func (r *Recording) LeadCount() int { return len(r.leads) }

// NumSamples returns the per-lead sample count. All leads have equal length.
func (r *Recording) NumSamples() int {
	if len(r.leads) == 0 {
		return 0
	}
	return len(r.leads[0].Samples)
}

// Duration returns the recording length.
func (r *Recording) Duration() time.Duration {
	if r.sampleRate == 0 {
		return 0
	}
	return time.Duration(float64(r.NumSamples()) / float64(r.sampleRate) * float64(time.Second))
}

// Leads returns the lead slice. The returned samples are shared with the
// recording and must be treated as read-only.
func (r *Recording) Leads() []Lead { return r.leads }

// LeadByName returns the named lead, or nil when absent.
func (r *Recording) LeadByName(name string) *Lead {
	for i := range r.leads {
		if r.leads[i].Name == name {
			return &r.leads[i]
		}
	}
	return nil
}

// newRecording constructs a recording with a fresh identifier. Only the
// ingestion path creates recordings.
func newRecording(leads []Lead, sampleRate int, capturedAt time.Time, patientRef string) *Recording {
	return &Recording{
		id:         uuid.New().String(),
		leads:      leads,
		sampleRate: sampleRate,
		capturedAt: capturedAt,
		patientRef: patientRef,
	}
}
