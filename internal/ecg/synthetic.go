package ecg

import (
	"math"
	"math/rand/v2"
	"time"
)

// SynthOptions parameterizes SynthesizeSinus. Zero values fall back to a
// clean ten-second 72 bpm strip at 500 Hz.
type SynthOptions struct {
	SampleRate int     // Hz
	Seconds    float64 // strip length
	BPM        float64 // beat rate
	Amplitude  float64 // R-wave amplitude, mV
	Noise      float64 // additive Gaussian noise sigma, mV
	Seed       uint64  // noise RNG seed; same seed, same strip
}

func (o *SynthOptions) withDefaults() SynthOptions {
	out := *o
	if out.SampleRate <= 0 {
		out.SampleRate = 500
	}
	if out.Seconds <= 0 {
		out.Seconds = 10
	}
	if out.BPM <= 0 {
		out.BPM = 72
	}
	if out.Amplitude <= 0 {
		out.Amplitude = 1.2
	}
	return out
}

// SynthesizeSinus produces a deterministic synthetic sinus-rhythm lead:
// P, QRS and T deflections modeled as Gaussian bumps at the configured
// rate, with optional seeded Gaussian noise. Intended for fixtures and
// demos, not for clinical use.
func SynthesizeSinus(opts SynthOptions) []float64 {
	o := opts.withDefaults()
	n := int(o.Seconds * float64(o.SampleRate))
	samples := make([]float64, n)

	beatInterval := 60.0 / o.BPM
	dt := 1.0 / float64(o.SampleRate)

	// Deflection timing offsets relative to the R peak, in seconds.
	waves := []struct {
		offset, sigma, amp float64
	}{
		{-0.16, 0.025, 0.15}, // P
		{-0.025, 0.008, -0.10}, // Q
		{0.0, 0.012, 1.0}, // R
		{0.025, 0.010, -0.15}, // S
		{0.25, 0.060, 0.30}, // T
	}

	for i := range samples {
		t := float64(i) * dt
		// Nearest beat center; the first R peak sits half an interval in.
		beat := math.Round((t-beatInterval/2)/beatInterval)*beatInterval + beatInterval/2
		v := 0.0
		for _, w := range waves {
			d := t - (beat + w.offset)
			v += w.amp * math.Exp(-d*d/(2*w.sigma*w.sigma))
		}
		samples[i] = v * o.Amplitude
	}

	if o.Noise > 0 {
		rng := rand.New(rand.NewPCG(o.Seed, o.Seed^0x9e3779b97f4a7c15))
		for i := range samples {
			samples[i] += rng.NormFloat64() * o.Noise
		}
	}
	return samples
}

// SynthesizeRecording wraps SynthesizeSinus into a ready Recording with
// the given lead count, bypassing ingestion.
func SynthesizeRecording(leadCount int, opts SynthOptions) *Recording {
	o := opts.withDefaults()
	labels := StandardLeadLabels(leadCount)
	if labels == nil {
		labels = []string{"I"}
	}
	leads := make([]Lead, len(labels))
	for i, name := range labels {
		leadOpts := o
		leadOpts.Seed = o.Seed + uint64(i)
		leads[i] = Lead{Name: name, Samples: SynthesizeSinus(leadOpts)}
	}
	return newRecording(leads, o.SampleRate, time.Now(), "")
}
