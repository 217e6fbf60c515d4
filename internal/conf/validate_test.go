package conf

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func validSettings() *Settings {
	s := &Settings{}
	s.Ingestion = IngestionSettings{CanonicalRate: 500, MinSampleRate: 100, MaxSampleRate: 2000}
	s.Quality = QualitySettings{
		SaturationWeight: 0.25, BaselineWeight: 0.20, NoiseWeight: 0.25, FlatlineWeight: 0.30,
		WindowSeconds: 1.0, WindowThreshold: 0.5, Floor: 0.3,
	}
	s.Features = FeatureSettings{
		BandLowHz: 5, BandHighHz: 15, RefractoryMs: 200, SearchWindowMs: 100,
		MedianBeats: 8, PrimaryLead: "II", IntegrationMs: 120, ThresholdFactor: 0.25,
	}
	s.Classifier = ClassifierSettings{Timeout: 5 * time.Second, TopN: 10, MinConfidence: 0.05}
	s.Validation = ValidationSettings{ClaimSLA: 24 * time.Hour, MaxReoffers: 3, SweepInterval: time.Minute}
	s.WebServer = WebServerSettings{Enabled: true, Port: "8080", CacheTTL: 5 * time.Minute}
	return s
}

func TestValidateSettingsAcceptsDefaults(t *testing.T) {
	require.NoError(t, ValidateSettings(validSettings()))
}

func TestValidateSettingsRejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Settings)
	}{
		{"zero canonical rate", func(s *Settings) { s.Ingestion.CanonicalRate = 0 }},
		{"inverted rate bounds", func(s *Settings) { s.Ingestion.MinSampleRate = 2000; s.Ingestion.MaxSampleRate = 100 }},
		{"canonical rate outside bounds", func(s *Settings) { s.Ingestion.CanonicalRate = 8000 }},
		{"zero quality weights", func(s *Settings) {
			s.Quality.SaturationWeight = 0
			s.Quality.BaselineWeight = 0
			s.Quality.NoiseWeight = 0
			s.Quality.FlatlineWeight = 0
		}},
		{"quality floor above one", func(s *Settings) { s.Quality.Floor = 1.5 }},
		{"negative window threshold", func(s *Settings) { s.Quality.WindowThreshold = -0.1 }},
		{"zero window length", func(s *Settings) { s.Quality.WindowSeconds = 0 }},
		{"inverted band edges", func(s *Settings) { s.Features.BandLowHz = 20; s.Features.BandHighHz = 10 }},
		{"zero refractory", func(s *Settings) { s.Features.RefractoryMs = 0 }},
		{"zero median beats", func(s *Settings) { s.Features.MedianBeats = 0 }},
		{"threshold factor at one", func(s *Settings) { s.Features.ThresholdFactor = 1.0 }},
		{"zero classifier timeout", func(s *Settings) { s.Classifier.Timeout = 0 }},
		{"zero top-N", func(s *Settings) { s.Classifier.TopN = 0 }},
		{"min confidence above one", func(s *Settings) { s.Classifier.MinConfidence = 1.2 }},
		{"zero claim SLA", func(s *Settings) { s.Validation.ClaimSLA = 0 }},
		{"negative re-offers", func(s *Settings) { s.Validation.MaxReoffers = -1 }},
		{"zero sweep interval", func(s *Settings) { s.Validation.SweepInterval = 0 }},
		{"bad web port", func(s *Settings) { s.WebServer.Port = "http" }},
		{"out-of-range web port", func(s *Settings) { s.WebServer.Port = "70000" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := validSettings()
			tt.mutate(s)
			err := ValidateSettings(s)
			require.Error(t, err)
			var ve ValidationError
			require.ErrorAs(t, err, &ve)
			assert.NotEmpty(t, ve.Errors)
		})
	}
}

func TestValidateSettingsCollectsAllErrors(t *testing.T) {
	s := validSettings()
	s.Ingestion.CanonicalRate = 0
	s.Classifier.TopN = 0
	s.Validation.ClaimSLA = 0

	err := ValidateSettings(s)
	require.Error(t, err)
	var ve ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Len(t, ve.Errors, 3)
}

func TestDisabledWebServerSkipsPortCheck(t *testing.T) {
	s := validSettings()
	s.WebServer.Enabled = false
	s.WebServer.Port = "not a port"
	require.NoError(t, ValidateSettings(s))
}

func TestSaveAsRoundTrip(t *testing.T) {
	s := validSettings()
	s.Main.Name = "MedAI"
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	require.NoError(t, s.SaveAs(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var loaded Settings
	require.NoError(t, yaml.Unmarshal(data, &loaded))
	assert.Equal(t, "MedAI", loaded.Main.Name)
	assert.Equal(t, 500, loaded.Ingestion.CanonicalRate)
	assert.Equal(t, 0.3, loaded.Quality.Floor)
	assert.Equal(t, 24*time.Hour, loaded.Validation.ClaimSLA)
}
