package urgency

// VitalSigns is the optional structured vitals input. All fields are
// pointers: an absent vital simply omits the criteria that need it, it
// never fails scoring.
type VitalSigns struct {
	HeartRate        *int     `json:"heart_rate,omitempty"`        // bpm
	SystolicBP       *int     `json:"systolic_bp,omitempty"`       // mmHg
	DiastolicBP      *int     `json:"diastolic_bp,omitempty"`      // mmHg
	Temperature      *float64 `json:"temperature,omitempty"`       // Celsius
	RespiratoryRate  *int     `json:"respiratory_rate,omitempty"`  // breaths/min
	SpO2             *int     `json:"spo2,omitempty"`              // percent
	AlteredMentation *bool    `json:"altered_mentation,omitempty"` // bedside assessment
	ChestPain        *bool    `json:"chest_pain,omitempty"`        // presenting complaint

	// FAST-style stroke screening observations.
	FacialDroop      *bool `json:"facial_droop,omitempty"`
	ArmWeakness      *bool `json:"arm_weakness,omitempty"`
	SpeechDifficulty *bool `json:"speech_difficulty,omitempty"`
}

// PatientContext is optional demographic and history input.
type PatientContext struct {
	Age           *int     `json:"age,omitempty"`
	Comorbidities []string `json:"comorbidities,omitempty"`
}

// HasComorbidity reports whether the named condition appears in the
// patient history (case-sensitive match on normalized names).
func (p *PatientContext) HasComorbidity(name string) bool {
	if p == nil {
		return false
	}
	for _, c := range p.Comorbidities {
		if c == name {
			return true
		}
	}
	return false
}
