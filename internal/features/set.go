// Package features extracts fiducial points and derived clinical features
// from quality-gated ECG recordings.
package features

// Beat holds the fiducial indices of one detected QRS complex, as sample
// indices into the recording at the canonical rate. Invariant:
// Onset <= Peak <= Offset, and consecutive beats are strictly increasing.
type Beat struct {
	Onset  int
	Peak   int
	Offset int

	// Amplitude is the peak amplitude on the detection lead, in the
	// recording's units.
	Amplitude float64
}

// LeadMorphology summarizes per-lead QRS-band signal shape.
type LeadMorphology struct {
	Lead        string
	MeanAbsQRS  float64 // mean absolute amplitude of the QRS-band signal
	PeakAbsQRS  float64 // largest absolute amplitude of the QRS-band signal
}

// Set is the structured feature output of extraction. Produced once per
// analysis; owned by the Analysis aggregate. A Set is always produced for
// a gated recording, even when too few beats were found; clinically
// meaningful edge cases travel as data, not errors.
type Set struct {
	DetectionLead string
	Beats         []Beat

	// InstantRates holds one instantaneous rate (bpm) per RR interval.
	InstantRates []float64

	// HeartRate is the median of the trailing beats' instantaneous rates,
	// in bpm. Nil when fewer than 3 beats were detected.
	HeartRate *float64

	// LowBeatCount is set instead of failing when fewer than 3 beats were
	// found, so rhythm-level diagnoses (e.g. asystole-adjacent patterns)
	// remain reachable downstream.
	LowBeatCount bool

	// RMSSD is the root mean square of successive RR differences, in ms.
	// Zero when fewer than 3 beats were detected.
	RMSSD float64

	// Interval estimates, averaged across beats, in milliseconds.
	// Nil when they could not be measured.
	PRIntervalMs  *float64
	QRSDurationMs *float64
	QTIntervalMs  *float64

	Morphology []LeadMorphology
}

// BeatCount returns the number of detected beats.
func (s *Set) BeatCount() int { return len(s.Beats) }

// AllNull reports whether the set carries no usable features at all: no
// detected beats and no derivable heart rate. Rhythm-level rules treat
// this as absent electrical activity rather than a measurement to score.
func (s *Set) AllNull() bool {
	return len(s.Beats) == 0 && s.HeartRate == nil
}
