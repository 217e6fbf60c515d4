package ecg

import (
	"time"

	"github.com/drguilhermecapel/medai/internal/conf"
	"github.com/drguilhermecapel/medai/internal/errors"
)

// RawWaveform is the caller-supplied input to ingestion: per-lead sample
// buffers with a declared sample rate. Lead order is preserved.
type RawWaveform struct {
	Leads      []Lead
	SampleRate int
	CapturedAt time.Time
	PatientRef string
}

// Ingest validates a raw waveform and produces the canonical Recording,
// resampling to the configured canonical rate when the declared rate
// differs. Purely functional; the input buffers are copied, never retained.
func Ingest(raw *RawWaveform, settings *conf.IngestionSettings) (*Recording, error) {
	if raw == nil {
		return nil, errors.Newf("raw waveform is nil").
			Component("ecg").
			Category(errors.CategoryInvalidWaveform).
			Build()
	}
	if len(raw.Leads) == 0 {
		return nil, errors.Newf("waveform has no leads").
			Component("ecg").
			Category(errors.CategoryInvalidWaveform).
			Build()
	}
	if raw.SampleRate < settings.MinSampleRate || raw.SampleRate > settings.MaxSampleRate {
		return nil, errors.Newf("sample rate %d Hz outside supported range [%d, %d]",
			raw.SampleRate, settings.MinSampleRate, settings.MaxSampleRate).
			Component("ecg").
			Category(errors.CategoryInvalidWaveform).
			Context("sample_rate", raw.SampleRate).
			Build()
	}

	expected := StandardLeadLabels(len(raw.Leads))
	if expected == nil {
		return nil, errors.Newf("unsupported lead count %d, supported counts are %v",
			len(raw.Leads), SupportedLeadCounts()).
			Component("ecg").
			Category(errors.CategoryInvalidWaveform).
			Context("lead_count", len(raw.Leads)).
			Build()
	}

	n := len(raw.Leads[0].Samples)
	if n == 0 {
		return nil, errors.Newf("lead %q has no samples", raw.Leads[0].Name).
			Component("ecg").
			Category(errors.CategoryInvalidWaveform).
			Build()
	}

	for i := range raw.Leads {
		lead := &raw.Leads[i]
		if len(lead.Samples) != n {
			return nil, errors.Newf("lead %q has %d samples, expected %d (all leads must be equal length)",
				lead.Name, len(lead.Samples), n).
				Component("ecg").
				Category(errors.CategoryInvalidWaveform).
				Context("lead", lead.Name).
				Build()
		}
		if lead.Name != expected[i] {
			return nil, errors.Newf("lead %d labeled %q, expected %q for a %d-lead configuration",
				i, lead.Name, expected[i], len(raw.Leads)).
				Component("ecg").
				Category(errors.CategoryInvalidWaveform).
				Context("lead", lead.Name).
				Build()
		}
	}

	capturedAt := raw.CapturedAt
	if capturedAt.IsZero() {
		capturedAt = time.Now()
	}

	leads := make([]Lead, len(raw.Leads))
	for i := range raw.Leads {
		leads[i] = Lead{
			Name:    raw.Leads[i].Name,
			Samples: resampleLinear(raw.Leads[i].Samples, raw.SampleRate, settings.CanonicalRate),
		}
	}

	return newRecording(leads, settings.CanonicalRate, capturedAt, raw.PatientRef), nil
}

// resampleLinear converts samples from srcRate to dstRate by linear
// interpolation. Linear is sufficient here: the quality assessor and QRS
// band-pass both operate well below the Nyquist limit of any supported
// source rate.
func resampleLinear(samples []float64, srcRate, dstRate int) []float64 {
	if srcRate == dstRate {
		out := make([]float64, len(samples))
		copy(out, samples)
		return out
	}

	ratio := float64(srcRate) / float64(dstRate)
	outLen := int(float64(len(samples)) * float64(dstRate) / float64(srcRate))
	if outLen < 1 {
		outLen = 1
	}

	out := make([]float64, outLen)
	for i := range out {
		pos := float64(i) * ratio
		idx := int(pos)
		if idx >= len(samples)-1 {
			out[i] = samples[len(samples)-1]
			continue
		}
		frac := pos - float64(idx)
		out[i] = samples[idx]*(1.0-frac) + samples[idx+1]*frac
	}
	return out
}
