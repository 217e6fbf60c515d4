package classifier

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drguilhermecapel/medai/internal/conf"
	"github.com/drguilhermecapel/medai/internal/errors"
	"github.com/drguilhermecapel/medai/internal/features"
)

func testClassifierSettings() conf.ClassifierSettings {
	return conf.ClassifierSettings{
		Timeout:       100 * time.Millisecond,
		TopN:          10,
		MinConfidence: 0.05,
	}
}

// fakeClassifier returns canned predictions, or blocks/fails on demand.
type fakeClassifier struct {
	preds []Prediction
	err   error
	delay time.Duration
}

func (f *fakeClassifier) Name() string { return "fake" }

func (f *fakeClassifier) Classify(ctx context.Context, _ *features.Set) ([]Prediction, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.preds, f.err
}

func sinusSet(hr float64) *features.Set {
	set := &features.Set{
		DetectionLead: "II",
		Beats:         make([]features.Beat, 10),
		HeartRate:     &hr,
	}
	for i := range set.Beats {
		set.Beats[i] = features.Beat{Onset: i * 400, Peak: i*400 + 10, Offset: i*400 + 40}
	}
	return set
}

func TestEngineRunNilSetClipsToIndeterminate(t *testing.T) {
	e := NewEngine(&fakeClassifier{}, testClassifierSettings())
	preds, err := e.Run(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, preds, 1)
	assert.Equal(t, LabelIndeterminate, preds[0].Label)
	assert.Zero(t, preds[0].Confidence)
}

func TestEngineRunEmptyOutputClipsToIndeterminate(t *testing.T) {
	e := NewEngine(&fakeClassifier{preds: nil}, testClassifierSettings())
	preds, err := e.Run(context.Background(), sinusSet(72))
	require.NoError(t, err)
	require.Len(t, preds, 1)
	assert.Equal(t, LabelIndeterminate, preds[0].Label)
}

func TestEngineRunTimeout(t *testing.T) {
	e := NewEngine(&fakeClassifier{delay: time.Second}, testClassifierSettings())

	start := time.Now()
	_, err := e.Run(context.Background(), sinusSet(72))
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryTimeout), "got %v", err)
	assert.ErrorIs(t, err, ErrClassifierTimeout)
	assert.Less(t, time.Since(start), 500*time.Millisecond,
		"engine must not wait out a stuck classifier")
}

func TestEngineRunCancellationPassesThrough(t *testing.T) {
	e := NewEngine(&fakeClassifier{delay: time.Second}, testClassifierSettings())

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	_, err := e.Run(ctx, sinusSet(72))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEngineRunClassifierError(t *testing.T) {
	e := NewEngine(&fakeClassifier{err: errors.NewStd("model exploded")}, testClassifierSettings())
	_, err := e.Run(context.Background(), sinusSet(72))
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryClassification), "got %v", err)
}

func TestEngineRunPostProcessing(t *testing.T) {
	e := NewEngine(&fakeClassifier{preds: []Prediction{
		{Label: "Atrial fibrillation", Confidence: 0.6},
		{Label: "atrial  Fibrillation", Confidence: 0.8}, // same label, messier spelling
		{Label: "Sinus tachycardia", Confidence: 0.7},
		{Label: "Noise floor", Confidence: 0.01}, // below MinConfidence
	}}, testClassifierSettings())

	preds, err := e.Run(context.Background(), sinusSet(130))
	require.NoError(t, err)
	require.Len(t, preds, 2)
	assert.Equal(t, "atrial  Fibrillation", preds[0].Label)
	assert.Equal(t, 0.8, preds[0].Confidence)
	assert.Equal(t, "Sinus tachycardia", preds[1].Label)
}

func TestEngineRunTopNTrim(t *testing.T) {
	settings := testClassifierSettings()
	settings.TopN = 2
	e := NewEngine(&fakeClassifier{preds: []Prediction{
		{Label: "a", Confidence: 0.3},
		{Label: "b", Confidence: 0.9},
		{Label: "c", Confidence: 0.5},
	}}, settings)

	preds, err := e.Run(context.Background(), sinusSet(72))
	require.NoError(t, err)
	require.Len(t, preds, 2)
	assert.Equal(t, "b", preds[0].Label)
	assert.Equal(t, "c", preds[1].Label)
}

func TestRuleBasedRhythms(t *testing.T) {
	rb := NewRuleBased()

	tests := []struct {
		name  string
		hr    float64
		label string
	}{
		{"normal", 72, LabelNormalSinus},
		{"bradycardia", 40, LabelBradycardia},
		{"tachycardia", 140, LabelTachycardia},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			preds, err := rb.Classify(context.Background(), sinusSet(tt.hr))
			require.NoError(t, err)
			require.NotEmpty(t, preds)
			assert.Equal(t, tt.label, preds[0].Label)
			assert.GreaterOrEqual(t, preds[0].Confidence, 0.5)
		})
	}
}

func TestRuleBasedPossibleAsystole(t *testing.T) {
	rb := NewRuleBased()
	set := &features.Set{LowBeatCount: true}

	preds, err := rb.Classify(context.Background(), set)
	require.NoError(t, err)
	require.Len(t, preds, 1)
	assert.Equal(t, LabelPossibleAsystole, preds[0].Label)
}

func TestRuleBasedLowBeatCountWithSomeBeats(t *testing.T) {
	rb := NewRuleBased()
	set := &features.Set{
		LowBeatCount: true,
		Beats:        []features.Beat{{Peak: 100}, {Peak: 500}},
	}

	preds, err := rb.Classify(context.Background(), set)
	require.NoError(t, err)
	assert.Empty(t, preds, "sparse but present beats are not asystole")
}

func TestRuleBasedProlongedQT(t *testing.T) {
	rb := NewRuleBased()
	set := sinusSet(72)
	qt := 520.0
	set.QTIntervalMs = &qt

	preds, err := rb.Classify(context.Background(), set)
	require.NoError(t, err)

	labels := make([]string, 0, len(preds))
	for _, p := range preds {
		labels = append(labels, p.Label)
	}
	assert.Contains(t, labels, LabelProlongedQT)
}

func TestRuleBasedWideQRS(t *testing.T) {
	rb := NewRuleBased()
	set := sinusSet(72)
	qrs := 150.0
	set.QRSDurationMs = &qrs

	preds, err := rb.Classify(context.Background(), set)
	require.NoError(t, err)

	labels := make([]string, 0, len(preds))
	for _, p := range preds {
		labels = append(labels, p.Label)
	}
	assert.Contains(t, labels, LabelWideQRS)
}

func TestRampConfidenceBounds(t *testing.T) {
	assert.Equal(t, 0.5, rampConfidence(0, 50))
	assert.Equal(t, 0.95, rampConfidence(500, 50))
	mid := rampConfidence(25, 50)
	assert.Greater(t, mid, 0.5)
	assert.Less(t, mid, 0.95)
}
