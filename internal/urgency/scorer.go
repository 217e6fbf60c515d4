package urgency

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/drguilhermecapel/medai/internal/classifier"
	"github.com/drguilhermecapel/medai/internal/conf"
	"github.com/drguilhermecapel/medai/internal/logging"
)

// Protocol names used in contributing reasons.
const (
	ProtocolSepsis     = "sepsis (qSOFA)"
	ProtocolChestPain  = "chest pain (HEART)"
	ProtocolStroke     = "stroke (FAST)"
	ProtocolVitals     = "vital signs"
	ProtocolClassifier = "ecg classifier"
)

// classifier labels treated as critical findings regardless of vitals
var criticalLabels = map[string]bool{
	strings.ToLower(classifier.LabelPossibleAsystole):  true,
	strings.ToLower("Ventricular fibrillation"):        true,
	strings.ToLower("Ventricular tachycardia"):         true,
	strings.ToLower("ST elevation myocardial infarction"): true,
}

// minimum classifier confidence for a critical label to count as a signal
const criticalLabelConfidence = 0.5

// Scorer computes the urgency tier. Protocol thresholds come from
// configuration; the escalation policy is fixed.
type Scorer struct {
	settings conf.UrgencySettings
	logger   *slog.Logger
}

// NewScorer creates an urgency scorer with the given settings.
func NewScorer(settings conf.UrgencySettings) *Scorer {
	return &Scorer{
		settings: settings,
		logger:   logging.ForService("urgency"),
	}
}

// Score combines the ranked diagnoses with optional vitals and patient
// context. Any single qualifying critical signal forces at least urgent;
// two or more force critical.
func (s *Scorer) Score(preds []classifier.Prediction, vitals *VitalSigns, patient *PatientContext) Result {
	var reasons []Reason
	criticalSignals := 0

	if r, ok := s.sepsisScore(vitals); ok {
		reasons = append(reasons, r)
		if r.Critical {
			criticalSignals++
		}
	}
	if r, ok := s.chestPainScore(vitals, patient, preds); ok {
		reasons = append(reasons, r)
		if r.Critical {
			criticalSignals++
		}
	}
	if r, ok := s.strokeScore(vitals); ok {
		reasons = append(reasons, r)
		if r.Critical {
			criticalSignals++
		}
	}
	if r, ok := s.vitalExtremes(vitals); ok {
		reasons = append(reasons, r)
		if r.Critical {
			criticalSignals++
		}
	}
	if r, ok := s.classifierSignal(preds); ok {
		reasons = append(reasons, r)
		if r.Critical {
			criticalSignals++
		}
	}

	tier := TierRoutine
	for _, r := range reasons {
		if r.Band >= 1 {
			tier = tier.AtLeast(TierPriority)
		}
	}
	switch {
	case criticalSignals >= 2:
		tier = tier.AtLeast(TierCritical)
	case criticalSignals == 1:
		tier = tier.AtLeast(TierUrgent)
	}

	s.logger.Debug("urgency scored",
		"tier", tier,
		"critical_signals", criticalSignals,
		"reasons", len(reasons),
	)

	return Result{Tier: tier, Reasons: reasons}
}

// sepsisScore implements a qSOFA-style screen: respiratory rate,
// systolic pressure, mentation. Two or more criteria qualify as a
// critical sepsis signal.
func (s *Scorer) sepsisScore(v *VitalSigns) (Reason, bool) {
	if v == nil {
		return Reason{}, false
	}

	var met []string
	if v.RespiratoryRate != nil && *v.RespiratoryRate >= s.settings.SepsisRespRate {
		met = append(met, fmt.Sprintf("respiratory rate >= %d", s.settings.SepsisRespRate))
	}
	if v.SystolicBP != nil && *v.SystolicBP <= s.settings.SepsisSystolicBP {
		met = append(met, fmt.Sprintf("systolic BP <= %d", s.settings.SepsisSystolicBP))
	}
	if v.AlteredMentation != nil && *v.AlteredMentation {
		met = append(met, "altered mentation")
	}

	if len(met) == 0 {
		return Reason{}, false
	}
	return Reason{
		Protocol: ProtocolSepsis,
		Detail:   strings.Join(met, ", "),
		Band:     len(met),
		Critical: len(met) >= 2,
	}, true
}

// chestPainScore implements a HEART-style screen over age, history and
// ischemia-suggestive classifier output.
func (s *Scorer) chestPainScore(v *VitalSigns, p *PatientContext, preds []classifier.Prediction) (Reason, bool) {
	band := 0
	var met []string

	if v != nil && v.ChestPain != nil && *v.ChestPain {
		band++
		met = append(met, "presenting chest pain")
	}
	if p != nil && p.Age != nil {
		switch {
		case *p.Age >= s.settings.ChestPainAgeMajor:
			band++
			met = append(met, fmt.Sprintf("age >= %d", s.settings.ChestPainAgeMajor))
		case *p.Age >= s.settings.ChestPainAgeMinor:
			met = append(met, fmt.Sprintf("age >= %d", s.settings.ChestPainAgeMinor))
		}
	}
	riskFactors := 0
	for _, c := range []string{"hypertension", "diabetes", "smoking", "hyperlipidemia", "coronary artery disease", "obesity"} {
		if p.HasComorbidity(c) {
			riskFactors++
		}
	}
	if riskFactors >= 3 {
		band++
		met = append(met, fmt.Sprintf("%d cardiac risk factors", riskFactors))
	} else if riskFactors >= 1 {
		met = append(met, fmt.Sprintf("%d cardiac risk factors", riskFactors))
	}
	for _, pred := range preds {
		label := strings.ToLower(pred.Label)
		if (strings.Contains(label, "ischemia") || strings.Contains(label, "infarction")) && pred.Confidence >= criticalLabelConfidence {
			band++
			met = append(met, fmt.Sprintf("classifier: %s", pred.Label))
			break
		}
	}

	if len(met) == 0 {
		return Reason{}, false
	}
	return Reason{
		Protocol: ProtocolChestPain,
		Detail:   strings.Join(met, ", "),
		Band:     band,
		Critical: band >= 2,
	}, true
}

// strokeScore implements a FAST-style screen over the bedside stroke
// observations. Any two observations qualify as a critical signal.
func (s *Scorer) strokeScore(v *VitalSigns) (Reason, bool) {
	if v == nil {
		return Reason{}, false
	}

	var met []string
	if v.FacialDroop != nil && *v.FacialDroop {
		met = append(met, "facial droop")
	}
	if v.ArmWeakness != nil && *v.ArmWeakness {
		met = append(met, "arm weakness")
	}
	if v.SpeechDifficulty != nil && *v.SpeechDifficulty {
		met = append(met, "speech difficulty")
	}

	if len(met) == 0 {
		return Reason{}, false
	}
	return Reason{
		Protocol: ProtocolStroke,
		Detail:   strings.Join(met, ", "),
		Band:     len(met),
		Critical: len(met) >= 2,
	}, true
}

// vitalExtremes screens individual vitals for immediately dangerous
// values. Severe hypoxia is a critical signal on its own.
func (s *Scorer) vitalExtremes(v *VitalSigns) (Reason, bool) {
	if v == nil {
		return Reason{}, false
	}

	band := 0
	critical := false
	var met []string

	if v.SpO2 != nil && *v.SpO2 < s.settings.HypoxiaSpO2 {
		met = append(met, fmt.Sprintf("SpO2 %d%% < %d%%", *v.SpO2, s.settings.HypoxiaSpO2))
		band = 2
		critical = true
	}
	if v.HeartRate != nil {
		switch {
		case *v.HeartRate > s.settings.TachycardiaHR:
			met = append(met, fmt.Sprintf("heart rate %d > %d", *v.HeartRate, s.settings.TachycardiaHR))
			band = max(band, 1)
		case *v.HeartRate < s.settings.BradycardiaHR:
			met = append(met, fmt.Sprintf("heart rate %d < %d", *v.HeartRate, s.settings.BradycardiaHR))
			band = max(band, 1)
		}
	}
	if v.Temperature != nil {
		switch {
		case *v.Temperature >= s.settings.FeverTemp:
			met = append(met, fmt.Sprintf("temperature %.1f", *v.Temperature))
			band = max(band, 1)
		case *v.Temperature <= s.settings.HypothermiaTemp:
			met = append(met, fmt.Sprintf("hypothermia %.1f", *v.Temperature))
			band = max(band, 1)
		}
	}

	if len(met) == 0 {
		return Reason{}, false
	}
	return Reason{
		Protocol: ProtocolVitals,
		Detail:   strings.Join(met, ", "),
		Band:     band,
		Critical: critical,
	}, true
}

// classifierSignal surfaces critical diagnoses from the ranked list.
func (s *Scorer) classifierSignal(preds []classifier.Prediction) (Reason, bool) {
	for _, p := range preds {
		if criticalLabels[strings.ToLower(p.Label)] && p.Confidence >= criticalLabelConfidence {
			return Reason{
				Protocol: ProtocolClassifier,
				Detail:   fmt.Sprintf("%s (confidence %.2f)", p.Label, p.Confidence),
				Band:     2,
				Critical: true,
			}, true
		}
	}
	return Reason{}, false
}
