// Package quality computes signal-quality metrics for ECG recordings and
// gates downstream processing. Classifying noise yields false clinical
// confidence, so recordings below the quality floor never reach the
// classifier.
package quality

// LeadMetrics holds the per-lead quality measurements.
type LeadMetrics struct {
	Lead             string  // lead name
	SaturationRatio  float64 // fraction of samples at the amplitude rail
	BaselineRatio    float64 // baseline-wander energy relative to total
	NoiseRatio       float64 // high-frequency energy relative to total
	FlatlineFraction float64 // fraction of windows with no signal variance
	Score            float64 // weighted per-lead score in [0, 1]

	Saturated bool // saturation ratio exceeded the flag threshold
	Noisy     bool // noise ratio exceeded the flag threshold
	Flatlined bool // enough flat windows to make the lead unusable
}

// Window is a half-open sample index range [Start, End) at the canonical
// sample rate.
type Window struct {
	Start int
	End   int
}

// Report is the immutable result of quality assessment. Later stages
// reference it but never own or modify it.
type Report struct {
	OverallScore    float64
	Leads           []LeadMetrics
	UnusableWindows []Window
}

// BelowFloor reports whether the aggregate score falls under the hard
// floor that short-circuits the pipeline.
func (r *Report) BelowFloor(floor float64) bool {
	return r.OverallScore < floor
}

// UsableMask returns a per-sample usability mask of length n. Samples
// inside any unusable window are false.
func (r *Report) UsableMask(n int) []bool {
	mask := make([]bool, n)
	for i := range mask {
		mask[i] = true
	}
	for _, w := range r.UnusableWindows {
		start := max(w.Start, 0)
		end := min(w.End, n)
		for i := start; i < end; i++ {
			mask[i] = false
		}
	}
	return mask
}
