package quality

import (
	"log/slog"
	"math"

	"github.com/drguilhermecapel/medai/internal/conf"
	"github.com/drguilhermecapel/medai/internal/ecg"
	"github.com/drguilhermecapel/medai/internal/ecg/biquad"
	"github.com/drguilhermecapel/medai/internal/errors"
	"github.com/drguilhermecapel/medai/internal/logging"
	"gonum.org/v1/gonum/stat"
)

const (
	// saturationRail is the absolute amplitude treated as an ADC rail.
	// Recordings are expected in millivolts; a surface ECG never reaches
	// 5 mV, so samples pinned there indicate amplifier saturation.
	saturationRail = 5.0

	// railProximity is how close to the rail a sample must be to count
	// as saturated.
	railProximity = 0.98

	// flatlineVariance is the variance under which a window is considered
	// to carry no signal.
	flatlineVariance = 1e-6

	// baselineCutoffHz bounds the baseline-wander band.
	baselineCutoffHz = 0.67

	// noiseCutoffHz is the lower edge of the high-frequency noise band.
	noiseCutoffHz = 40.0

	// flag thresholds for per-lead boolean flags
	saturationFlagThreshold = 0.05
	noiseFlagThreshold      = 0.4
	flatlineFlagThreshold   = 0.5
)

// Assessor computes quality reports for recordings. Weights and
// thresholds come from configuration and are fixed for the assessor's
// lifetime.
type Assessor struct {
	settings conf.QualitySettings
	logger   *slog.Logger
}

// NewAssessor creates a quality assessor with the given settings.
func NewAssessor(settings conf.QualitySettings) *Assessor {
	return &Assessor{
		settings: settings,
		logger:   logging.ForService("quality"),
	}
}

// Assess computes the quality report for a recording. Deterministic for
// a given recording and settings.
func (a *Assessor) Assess(rec *ecg.Recording) (*Report, error) {
	if rec == nil || rec.NumSamples() == 0 {
		return nil, errors.Newf("cannot assess an empty recording").
			Component("quality").
			Category(errors.CategoryValidation).
			Build()
	}

	sampleRate := float64(rec.SampleRate())
	windowLen := int(a.settings.WindowSeconds * sampleRate)
	if windowLen < 1 {
		windowLen = rec.NumSamples()
	}

	weightSum := a.settings.SaturationWeight + a.settings.BaselineWeight +
		a.settings.NoiseWeight + a.settings.FlatlineWeight

	leads := rec.Leads()
	metrics := make([]LeadMetrics, len(leads))

	numWindows := (rec.NumSamples() + windowLen - 1) / windowLen
	// accumulated per-window penalty across leads, for unusable marking
	windowPenalty := make([]float64, numWindows)

	for li := range leads {
		lead := &leads[li]

		lowPass, err := biquad.NewLowPass(sampleRate, baselineCutoffHz, 0.707, 1)
		if err != nil {
			return nil, errors.New(err).
				Component("quality").
				Category(errors.CategoryConfiguration).
				Context("filter", "baseline-lowpass").
				Build()
		}
		highPass, err := biquad.NewHighPass(sampleRate, noiseCutoffHz, 0.707, 1)
		if err != nil {
			return nil, errors.New(err).
				Component("quality").
				Category(errors.CategoryConfiguration).
				Context("filter", "noise-highpass").
				Build()
		}

		baseline := lowPass.Filtered(lead.Samples)
		noise := highPass.Filtered(lead.Samples)

		m := LeadMetrics{Lead: lead.Name}
		m.SaturationRatio = saturationRatio(lead.Samples)
		m.BaselineRatio = energyRatio(baseline, lead.Samples)
		m.NoiseRatio = energyRatio(noise, lead.Samples)

		flatWindows := 0
		for w := 0; w < numWindows; w++ {
			start := w * windowLen
			end := min(start+windowLen, rec.NumSamples())
			seg := lead.Samples[start:end]

			flat := variance(seg) < flatlineVariance
			if flat {
				flatWindows++
			}

			p := a.settings.SaturationWeight*saturationRatio(seg) +
				a.settings.NoiseWeight*energyRatio(noise[start:end], seg)
			if flat {
				p += a.settings.FlatlineWeight
			}
			windowPenalty[w] += p / weightSum
		}
		m.FlatlineFraction = float64(flatWindows) / float64(numWindows)

		m.Saturated = m.SaturationRatio > saturationFlagThreshold
		m.Noisy = m.NoiseRatio > noiseFlagThreshold
		m.Flatlined = m.FlatlineFraction >= flatlineFlagThreshold

		if m.Flatlined {
			// A mostly flat lead carries no usable signal regardless of
			// how clean its remaining samples look.
			m.Score = 0
		} else {
			penalty := (a.settings.SaturationWeight*m.SaturationRatio +
				a.settings.BaselineWeight*m.BaselineRatio +
				a.settings.NoiseWeight*m.NoiseRatio +
				a.settings.FlatlineWeight*m.FlatlineFraction) / weightSum
			m.Score = clamp01(1.0 - penalty)
		}

		metrics[li] = m
	}

	overall := 0.0
	for i := range metrics {
		overall += metrics[i].Score
	}
	overall /= float64(len(metrics))

	var unusable []Window
	for w := 0; w < numWindows; w++ {
		meanScore := 1.0 - windowPenalty[w]/float64(len(leads))
		if meanScore < a.settings.WindowThreshold {
			start := w * windowLen
			unusable = appendWindow(unusable, Window{Start: start, End: min(start+windowLen, rec.NumSamples())})
		}
	}

	report := &Report{
		OverallScore:    overall,
		Leads:           metrics,
		UnusableWindows: unusable,
	}

	a.logger.Debug("quality assessment complete",
		"recording_id", rec.ID(),
		"score", overall,
		"unusable_windows", len(unusable),
	)

	return report, nil
}

// appendWindow merges adjacent windows to keep the unusable list compact.
func appendWindow(windows []Window, w Window) []Window {
	if n := len(windows); n > 0 && windows[n-1].End == w.Start {
		windows[n-1].End = w.End
		return windows
	}
	return append(windows, w)
}

func saturationRatio(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	count := 0
	limit := saturationRail * railProximity
	for _, s := range samples {
		if math.Abs(s) >= limit {
			count++
		}
	}
	return float64(count) / float64(len(samples))
}

// energyRatio returns the energy of part relative to the energy of whole,
// clamped to [0, 1].
func energyRatio(part, whole []float64) float64 {
	pe := energy(part)
	we := energy(whole)
	if we == 0 {
		return 0
	}
	return clamp01(pe / we)
}

func energy(samples []float64) float64 {
	sum := 0.0
	for _, s := range samples {
		sum += s * s
	}
	return sum
}

func variance(samples []float64) float64 {
	if len(samples) < 2 {
		return 0
	}
	return stat.Variance(samples, nil)
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
