package features

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drguilhermecapel/medai/internal/conf"
	"github.com/drguilhermecapel/medai/internal/ecg"
	"github.com/drguilhermecapel/medai/internal/quality"
)

func testFeatureSettings() conf.FeatureSettings {
	return conf.FeatureSettings{
		BandLowHz:       5.0,
		BandHighHz:      15.0,
		RefractoryMs:    200,
		SearchWindowMs:  100,
		MedianBeats:     8,
		PrimaryLead:     "II",
		IntegrationMs:   120,
		ThresholdFactor: 0.25,
	}
}

func testQualitySettings() conf.QualitySettings {
	return conf.QualitySettings{
		SaturationWeight: 0.25,
		BaselineWeight:   0.20,
		NoiseWeight:      0.25,
		FlatlineWeight:   0.30,
		WindowSeconds:    1.0,
		WindowThreshold:  0.5,
		Floor:            0.3,
	}
}

func extract(t *testing.T, rec *ecg.Recording) *Set {
	t.Helper()
	report, err := quality.NewAssessor(testQualitySettings()).Assess(rec)
	require.NoError(t, err)
	set, err := NewExtractor(testFeatureSettings()).Extract(context.Background(), rec, report)
	require.NoError(t, err)
	return set
}

func TestExtractDetectsSinusRhythm(t *testing.T) {
	rec := ecg.SynthesizeRecording(12, ecg.SynthOptions{Seconds: 10, BPM: 72})
	set := extract(t, rec)

	// 72 bpm over 10 s puts 12 beats in the strip; edge beats may fall
	// outside the detector's seed and search bounds.
	assert.GreaterOrEqual(t, set.BeatCount(), 9)
	assert.LessOrEqual(t, set.BeatCount(), 13)
	assert.False(t, set.LowBeatCount)

	require.NotNil(t, set.HeartRate)
	assert.InDelta(t, 72.0, *set.HeartRate, 5.0)
	assert.Equal(t, "II", set.DetectionLead)
	assert.Len(t, set.Morphology, 12)
}

// Beat indices must be strictly increasing and inside the recording for
// any input.
func TestExtractBeatIndicesStrictlyIncreasingAndInBounds(t *testing.T) {
	cases := []ecg.SynthOptions{
		{Seconds: 10, BPM: 45},
		{Seconds: 10, BPM: 72},
		{Seconds: 10, BPM: 150},
		{Seconds: 10, BPM: 72, Noise: 0.08, Seed: 3},
		{Seconds: 4, BPM: 60},
	}

	for _, opts := range cases {
		rec := ecg.SynthesizeRecording(1, opts)
		set := extract(t, rec)

		n := rec.NumSamples()
		prevOffset := -1
		for i, b := range set.Beats {
			assert.GreaterOrEqual(t, b.Onset, 0, "beat %d onset", i)
			assert.LessOrEqual(t, b.Onset, b.Peak, "beat %d onset<=peak", i)
			assert.LessOrEqual(t, b.Peak, b.Offset, "beat %d peak<=offset", i)
			assert.Less(t, b.Offset, n, "beat %d offset in bounds", i)
			assert.Greater(t, b.Onset, prevOffset, "beat %d must start after beat %d ends", i, i-1)
			prevOffset = b.Offset
		}
	}
}

// The same recording and report must produce a bit-identical feature
// set on every extraction.
func TestExtractDeterministic(t *testing.T) {
	rec := ecg.SynthesizeRecording(12, ecg.SynthOptions{Seconds: 10, Noise: 0.05, Seed: 11})
	report, err := quality.NewAssessor(testQualitySettings()).Assess(rec)
	require.NoError(t, err)

	e := NewExtractor(testFeatureSettings())
	first, err := e.Extract(context.Background(), rec, report)
	require.NoError(t, err)
	for range 5 {
		again, err := e.Extract(context.Background(), rec, report)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestExtractLowBeatCount(t *testing.T) {
	// Two seconds holds at most two full beats at 60 bpm; not enough
	// evidence for a rate.
	rec := ecg.SynthesizeRecording(1, ecg.SynthOptions{Seconds: 2, BPM: 60})
	set := extract(t, rec)

	assert.True(t, set.LowBeatCount)
	assert.Nil(t, set.HeartRate)
	assert.Nil(t, set.QRSDurationMs)
}

func TestExtractFlatSignalFindsNoBeats(t *testing.T) {
	settings := conf.IngestionSettings{CanonicalRate: 500, MinSampleRate: 100, MaxSampleRate: 2000}
	rec, err := ecg.Ingest(&ecg.RawWaveform{
		SampleRate: 500,
		Leads:      []ecg.Lead{{Name: "I", Samples: make([]float64, 5000)}},
	}, &settings)
	require.NoError(t, err)

	set := extract(t, rec)
	assert.Zero(t, set.BeatCount())
	assert.True(t, set.LowBeatCount)
}

func TestExtractFallsBackToFirstLead(t *testing.T) {
	// A single-lead recording has no lead II.
	rec := ecg.SynthesizeRecording(1, ecg.SynthOptions{Seconds: 10})
	set := extract(t, rec)
	assert.Equal(t, "I", set.DetectionLead)
}

func TestExtractHonorsCancellation(t *testing.T) {
	rec := ecg.SynthesizeRecording(12, ecg.SynthOptions{Seconds: 10})
	report, err := quality.NewAssessor(testQualitySettings()).Assess(rec)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = NewExtractor(testFeatureSettings()).Extract(ctx, rec, report)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestExtractRequiresInputs(t *testing.T) {
	e := NewExtractor(testFeatureSettings())
	_, err := e.Extract(context.Background(), nil, &quality.Report{})
	assert.Error(t, err)

	rec := ecg.SynthesizeRecording(1, ecg.SynthOptions{Seconds: 1})
	_, err = e.Extract(context.Background(), rec, nil)
	assert.Error(t, err)
}
