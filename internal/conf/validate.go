// conf/validate.go

package conf

import (
	"fmt"
	"strconv"
)

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return fmt.Sprintf("Validation errors: %v", ve.Errors)
}

// ValidateSettings validates the entire Settings struct
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	if err := validateIngestionSettings(&settings.Ingestion); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}
	if err := validateQualitySettings(&settings.Quality); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}
	if err := validateFeatureSettings(&settings.Features); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}
	if err := validateClassifierSettings(&settings.Classifier); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}
	if err := validateValidationSettings(&settings.Validation); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}
	if err := validateWebServerSettings(&settings.WebServer); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

func validateIngestionSettings(s *IngestionSettings) error {
	if s.CanonicalRate <= 0 {
		return fmt.Errorf("ingestion canonical rate must be positive, got %d", s.CanonicalRate)
	}
	if s.MinSampleRate <= 0 || s.MaxSampleRate < s.MinSampleRate {
		return fmt.Errorf("ingestion sample rate bounds invalid: [%d, %d]", s.MinSampleRate, s.MaxSampleRate)
	}
	if s.CanonicalRate < s.MinSampleRate || s.CanonicalRate > s.MaxSampleRate {
		return fmt.Errorf("ingestion canonical rate %d outside supported range [%d, %d]",
			s.CanonicalRate, s.MinSampleRate, s.MaxSampleRate)
	}
	return nil
}

func validateQualitySettings(s *QualitySettings) error {
	sum := s.SaturationWeight + s.BaselineWeight + s.NoiseWeight + s.FlatlineWeight
	if sum <= 0 {
		return fmt.Errorf("quality weights must sum to a positive value, got %f", sum)
	}
	if s.Floor < 0 || s.Floor > 1 {
		return fmt.Errorf("quality floor must be in [0, 1], got %f", s.Floor)
	}
	if s.WindowThreshold < 0 || s.WindowThreshold > 1 {
		return fmt.Errorf("quality window threshold must be in [0, 1], got %f", s.WindowThreshold)
	}
	if s.WindowSeconds <= 0 {
		return fmt.Errorf("quality window length must be positive, got %f", s.WindowSeconds)
	}
	return nil
}

func validateFeatureSettings(s *FeatureSettings) error {
	if s.BandLowHz <= 0 || s.BandHighHz <= s.BandLowHz {
		return fmt.Errorf("QRS band edges invalid: [%f, %f]", s.BandLowHz, s.BandHighHz)
	}
	if s.RefractoryMs <= 0 {
		return fmt.Errorf("refractory period must be positive, got %d ms", s.RefractoryMs)
	}
	if s.MedianBeats < 1 {
		return fmt.Errorf("median beat window must be at least 1, got %d", s.MedianBeats)
	}
	if s.ThresholdFactor <= 0 || s.ThresholdFactor >= 1 {
		return fmt.Errorf("adaptive threshold factor must be in (0, 1), got %f", s.ThresholdFactor)
	}
	return nil
}

func validateClassifierSettings(s *ClassifierSettings) error {
	if s.Timeout <= 0 {
		return fmt.Errorf("classifier timeout must be positive, got %v", s.Timeout)
	}
	if s.TopN < 1 {
		return fmt.Errorf("classifier top-N must be at least 1, got %d", s.TopN)
	}
	if s.MinConfidence < 0 || s.MinConfidence > 1 {
		return fmt.Errorf("classifier min confidence must be in [0, 1], got %f", s.MinConfidence)
	}
	return nil
}

func validateValidationSettings(s *ValidationSettings) error {
	if s.ClaimSLA <= 0 {
		return fmt.Errorf("validation claim SLA must be positive, got %v", s.ClaimSLA)
	}
	if s.MaxReoffers < 0 {
		return fmt.Errorf("validation max re-offers cannot be negative, got %d", s.MaxReoffers)
	}
	if s.SweepInterval <= 0 {
		return fmt.Errorf("validation sweep interval must be positive, got %v", s.SweepInterval)
	}
	return nil
}

func validateWebServerSettings(s *WebServerSettings) error {
	if !s.Enabled {
		return nil
	}
	port, err := strconv.Atoi(s.Port)
	if err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("invalid web server port: %s", s.Port)
	}
	return nil
}
