package classifier

import (
	"context"
	"math"

	"github.com/drguilhermecapel/medai/internal/features"
)

// Diagnosis labels emitted by the rule-based classifier. Injected model
// implementations may emit any labels; these are the reference set.
const (
	LabelNormalSinus     = "Normal sinus rhythm"
	LabelBradycardia     = "Sinus bradycardia"
	LabelTachycardia     = "Sinus tachycardia"
	LabelAtrialFib       = "Atrial fibrillation"
	LabelProlongedQT     = "Prolonged QT"
	LabelWideQRS         = "Intraventricular conduction delay"
	LabelPossibleAsystole = "Possible asystole"
)

// RuleBased is the bundled reference classifier: deterministic threshold
// rules over the extracted features. It exists so the pipeline is usable
// without an external model and as the fixture for pipeline tests.
type RuleBased struct{}

// NewRuleBased creates the reference rule-based classifier.
func NewRuleBased() *RuleBased {
	return &RuleBased{}
}

// Name identifies the classifier implementation.
func (r *RuleBased) Name() string { return "rule-based" }

// Classify scores the feature set against fixed rhythm and interval
// rules. Multi-label: independent confidences, no normalization.
func (r *RuleBased) Classify(_ context.Context, set *features.Set) ([]Prediction, error) {
	var preds []Prediction

	// Rhythm-level call with almost no beats: distinguish "no electrical
	// activity found" from "nothing to say".
	if set.LowBeatCount {
		if set.AllNull() {
			preds = append(preds, Prediction{Label: LabelPossibleAsystole, Confidence: 0.7})
		}
		return preds, nil
	}

	hr := *set.HeartRate

	switch {
	case hr < 60:
		preds = append(preds, Prediction{
			Label:      LabelBradycardia,
			Confidence: rampConfidence(60-hr, 30),
		})
	case hr > 100:
		preds = append(preds, Prediction{
			Label:      LabelTachycardia,
			Confidence: rampConfidence(hr-100, 60),
		})
	default:
		preds = append(preds, Prediction{Label: LabelNormalSinus, Confidence: 0.8})
	}

	// Irregularly irregular RR intervals suggest atrial fibrillation.
	// RMSSD thresholds from ambulatory rhythm screening literature.
	if set.RMSSD > 100 && rrIrregularity(set.InstantRates) > 0.12 {
		preds = append(preds, Prediction{
			Label:      LabelAtrialFib,
			Confidence: rampConfidence(set.RMSSD-100, 150),
		})
	}

	if set.QTIntervalMs != nil {
		// Bazett correction using the median heart rate.
		rrSec := 60.0 / hr
		qtc := *set.QTIntervalMs / math.Sqrt(rrSec)
		if qtc > 470 {
			preds = append(preds, Prediction{
				Label:      LabelProlongedQT,
				Confidence: rampConfidence(qtc-470, 80),
			})
		}
	}

	if set.QRSDurationMs != nil && *set.QRSDurationMs > 120 {
		preds = append(preds, Prediction{
			Label:      LabelWideQRS,
			Confidence: rampConfidence(*set.QRSDurationMs-120, 60),
		})
	}

	return preds, nil
}

// rampConfidence maps a threshold excess to (0.5, 0.95]: barely past the
// threshold scores just above even odds, far past it saturates.
func rampConfidence(excess, span float64) float64 {
	if excess < 0 {
		excess = 0
	}
	c := 0.5 + 0.45*math.Min(excess/span, 1.0)
	return math.Round(c*100) / 100
}

// rrIrregularity returns the coefficient of variation of the
// instantaneous rates.
func rrIrregularity(rates []float64) float64 {
	if len(rates) < 2 {
		return 0
	}
	mean := 0.0
	for _, r := range rates {
		mean += r
	}
	mean /= float64(len(rates))
	if mean == 0 {
		return 0
	}
	v := 0.0
	for _, r := range rates {
		d := r - mean
		v += d * d
	}
	sd := math.Sqrt(v / float64(len(rates)-1))
	return sd / mean
}
