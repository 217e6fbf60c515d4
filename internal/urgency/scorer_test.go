package urgency

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drguilhermecapel/medai/internal/classifier"
	"github.com/drguilhermecapel/medai/internal/conf"
)

func testUrgencySettings() conf.UrgencySettings {
	return conf.UrgencySettings{
		SepsisRespRate:    22,
		SepsisSystolicBP:  100,
		ChestPainAgeMinor: 45,
		ChestPainAgeMajor: 65,
		TachycardiaHR:     120,
		BradycardiaHR:     45,
		HypoxiaSpO2:       92,
		FeverTemp:         38.3,
		HypothermiaTemp:   35.0,
	}
}

func intp(v int) *int           { return &v }
func floatp(v float64) *float64 { return &v }
func boolp(v bool) *bool        { return &v }

func normalPreds() []classifier.Prediction {
	return []classifier.Prediction{{Label: "Normal sinus rhythm", Confidence: 0.8}}
}

func TestScoreRoutineWithNoSignals(t *testing.T) {
	s := NewScorer(testUrgencySettings())

	result := s.Score(normalPreds(), nil, nil)
	assert.Equal(t, TierRoutine, result.Tier)
	assert.Empty(t, result.Reasons)

	// Unremarkable vitals change nothing.
	result = s.Score(normalPreds(), &VitalSigns{
		HeartRate:  intp(72),
		SystolicBP: intp(125),
		SpO2:       intp(98),
	}, nil)
	assert.Equal(t, TierRoutine, result.Tier)
}

func TestScoreSingleBandSignalIsPriority(t *testing.T) {
	s := NewScorer(testUrgencySettings())

	result := s.Score(normalPreds(), &VitalSigns{Temperature: floatp(39.0)}, nil)
	assert.Equal(t, TierPriority, result.Tier)
	require.Len(t, result.Reasons, 1)
	assert.Equal(t, ProtocolVitals, result.Reasons[0].Protocol)
	assert.False(t, result.Reasons[0].Critical)
}

func TestScoreOneCriticalSignalIsAtLeastUrgent(t *testing.T) {
	s := NewScorer(testUrgencySettings())

	// Severe hypoxia alone.
	result := s.Score(normalPreds(), &VitalSigns{SpO2: intp(85)}, nil)
	assert.Equal(t, TierUrgent, result.Tier)

	// Two qSOFA criteria alone.
	result = s.Score(normalPreds(), &VitalSigns{
		RespiratoryRate: intp(26),
		SystolicBP:      intp(88),
	}, nil)
	assert.Equal(t, TierUrgent, result.Tier)

	// A critical classifier label alone.
	result = s.Score([]classifier.Prediction{
		{Label: "Ventricular fibrillation", Confidence: 0.9},
	}, nil, nil)
	assert.Equal(t, TierUrgent, result.Tier)
}

func TestScoreTwoCriticalSignalsAreCritical(t *testing.T) {
	s := NewScorer(testUrgencySettings())

	// Sepsis screen plus stroke screen, both qualifying.
	result := s.Score(normalPreds(), &VitalSigns{
		RespiratoryRate:  intp(28),
		AlteredMentation: boolp(true),
		FacialDroop:      boolp(true),
		ArmWeakness:      boolp(true),
	}, nil)
	assert.Equal(t, TierCritical, result.Tier)

	var criticals int
	for _, r := range result.Reasons {
		if r.Critical {
			criticals++
		}
	}
	assert.GreaterOrEqual(t, criticals, 2)
}

func TestScoreChestPainProtocol(t *testing.T) {
	s := NewScorer(testUrgencySettings())

	// Chest pain in an elderly patient with stacked risk factors.
	result := s.Score(normalPreds(), &VitalSigns{ChestPain: boolp(true)}, &PatientContext{
		Age:           intp(71),
		Comorbidities: []string{"hypertension", "diabetes", "smoking"},
	})
	assert.GreaterOrEqual(t, result.Tier.Rank(), TierUrgent.Rank())

	found := false
	for _, r := range result.Reasons {
		if r.Protocol == ProtocolChestPain {
			found = true
			assert.True(t, r.Critical)
		}
	}
	assert.True(t, found)
}

func TestScoreLowConfidenceCriticalLabelIgnored(t *testing.T) {
	s := NewScorer(testUrgencySettings())

	result := s.Score([]classifier.Prediction{
		{Label: "Ventricular tachycardia", Confidence: 0.2},
	}, nil, nil)
	assert.Equal(t, TierRoutine, result.Tier)
}

// Adding signals must never lower the tier: the policy escalates, it
// does not average.
func TestScoreMonotoneEscalation(t *testing.T) {
	s := NewScorer(testUrgencySettings())

	steps := []*VitalSigns{
		{},
		{Temperature: floatp(39.0)},
		{Temperature: floatp(39.0), SpO2: intp(85)},
		{Temperature: floatp(39.0), SpO2: intp(85), FacialDroop: boolp(true), SpeechDifficulty: boolp(true)},
	}

	prev := TierRoutine
	for i, vitals := range steps {
		result := s.Score(normalPreds(), vitals, nil)
		assert.GreaterOrEqual(t, result.Tier.Rank(), prev.Rank(),
			"step %d lowered the tier from %s to %s", i, prev, result.Tier)
		prev = result.Tier
	}
	assert.Equal(t, TierCritical, prev)
}

func TestTierAtLeast(t *testing.T) {
	assert.Equal(t, TierUrgent, TierRoutine.AtLeast(TierUrgent))
	assert.Equal(t, TierCritical, TierCritical.AtLeast(TierPriority))
	assert.True(t, TierPriority.Valid())
	assert.False(t, Tier("bogus").Valid())
}
