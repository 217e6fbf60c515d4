// config.go: settings struct and loading for the MedAI ECG analysis service.
package conf

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// IngestionSettings bounds the accepted raw waveform shapes.
type IngestionSettings struct {
	CanonicalRate int // internal sample rate all recordings are resampled to, Hz
	MinSampleRate int // lowest accepted source sample rate, Hz
	MaxSampleRate int // highest accepted source sample rate, Hz
}

// QualitySettings holds signal quality scoring weights and thresholds.
// Weights are a fixed clinical configuration, not learned at runtime.
type QualitySettings struct {
	SaturationWeight float64 // weight of the amplitude-saturation ratio
	BaselineWeight   float64 // weight of baseline-wander energy
	NoiseWeight      float64 // weight of high-frequency noise energy
	FlatlineWeight   float64 // weight of the flatline fraction
	WindowSeconds    float64 // analysis window length for usability marking
	WindowThreshold  float64 // per-window score below which the window is unusable
	Floor            float64 // aggregate score below which the pipeline short-circuits
}

// FeatureSettings controls QRS detection and heart-rate derivation.
type FeatureSettings struct {
	BandLowHz       float64 // lower edge of the QRS isolation band
	BandHighHz      float64 // upper edge of the QRS isolation band
	RefractoryMs    int     // minimum spacing between accepted beats
	SearchWindowMs  int     // onset/offset slope-reversal search bound
	MedianBeats     int     // trailing beats used for the reported heart rate
	PrimaryLead     string  // lead used for beat detection when present
	IntegrationMs   int     // moving integration window for QRS energy
	ThresholdFactor float64 // adaptive threshold fraction between noise and signal peaks
}

// ClassifierSettings configures the scoring-function boundary.
type ClassifierSettings struct {
	Timeout       time.Duration // hard bound on one classifier call
	TopN          int           // maximum diagnoses kept after ranking
	MinConfidence float64       // predictions below this are dropped
}

// UrgencySettings holds the rule-based protocol thresholds.
type UrgencySettings struct {
	SepsisRespRate    int     // qSOFA-style respiratory rate criterion, breaths/min
	SepsisSystolicBP  int     // qSOFA-style systolic pressure criterion, mmHg
	ChestPainAgeMinor int     // HEART-style age band start
	ChestPainAgeMajor int     // HEART-style age band for the higher score
	TachycardiaHR     int     // heart rate above which tachycardia criteria apply
	BradycardiaHR     int     // heart rate below which bradycardia criteria apply
	HypoxiaSpO2       int     // oxygen saturation below which hypoxia applies, percent
	FeverTemp         float64 // temperature above which fever applies, Celsius
	HypothermiaTemp   float64 // temperature below which hypothermia applies, Celsius
}

// ValidationSettings bounds the human-review workflow.
type ValidationSettings struct {
	ClaimSLA      time.Duration // how long an assignment may stay undecided
	MaxReoffers   int           // expiries before the task escalates
	SweepInterval time.Duration // how often the expiry sweeper runs
}

// EventBusSettings sizes the async event bus.
type EventBusSettings struct {
	BufferSize int
	Workers    int
}

// MQTTSettings configures the optional notification publisher.
type MQTTSettings struct {
	Enabled  bool
	Broker   string        // tcp://host:port
	Topic    string        // topic prefix for urgency alerts
	ClientID string
	Timeout  time.Duration // publish timeout
}

// NotificationSettings configures the notification service.
type NotificationSettings struct {
	MaxStored int // bound on the in-memory notification store
	MQTT      MQTTSettings
}

// OutputSettings configures persistence.
type OutputSettings struct {
	SQLite struct {
		Enabled bool
		Path    string
	}
}

// WebServerSettings configures the HTTP API.
type WebServerSettings struct {
	Enabled  bool
	Port     string
	CacheTTL time.Duration // completed-analysis query cache TTL
}

// PipelineSettings bounds concurrent analysis processing.
type PipelineSettings struct {
	Workers   int // concurrent analysis pipelines
	QueueSize int // pending submissions before Submit blocks
}

// Settings is the root configuration, threaded explicitly through
// pipeline construction so tests can override thresholds.
type Settings struct {
	Debug bool

	Main struct {
		Name string
		Log  struct {
			Enabled bool
			Path    string
		}
	}

	Ingestion    IngestionSettings
	Quality      QualitySettings
	Features     FeatureSettings
	Classifier   ClassifierSettings
	Urgency      UrgencySettings
	Validation   ValidationSettings
	Events       EventBusSettings
	Notification NotificationSettings
	Pipeline     PipelineSettings
	Output       OutputSettings
	WebServer    WebServerSettings
}

var (
	settingsInstance *Settings
	once             sync.Once
	settingsMutex    sync.RWMutex
)

// Load reads the configuration from disk, applying defaults for anything
// the config file does not set.
func Load() (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	settings, err := initViper()
	if err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	settingsInstance = settings
	return settings, nil
}

// Setting returns the global settings instance, loading it on first use.
func Setting() *Settings {
	once.Do(func() {
		if settingsInstance == nil {
			if _, err := Load(); err != nil {
				log.Fatalf("error loading settings: %v", err)
			}
		}
	})

	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

func initViper() (*Settings, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return nil, fmt.Errorf("error getting default config paths: %w", err)
	}
	for _, path := range configPaths {
		viper.AddConfigPath(path)
	}

	setDefaultConfig()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !asConfigFileNotFound(err, &notFound) {
			return nil, fmt.Errorf("fatal error reading config file: %w", err)
		}
		// No config file is fine; defaults apply.
	}

	settings := &Settings{}
	if err := viper.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}
	return settings, nil
}

func asConfigFileNotFound(err error, target *viper.ConfigFileNotFoundError) bool {
	nf, ok := err.(viper.ConfigFileNotFoundError)
	if ok {
		*target = nf
	}
	return ok
}

// GetDefaultConfigPaths returns the directories searched for config.yaml,
// in priority order: working directory, then the user config directory.
func GetDefaultConfigPaths() ([]string, error) {
	paths := []string{"."}
	configDir, err := os.UserConfigDir()
	if err == nil {
		paths = append(paths, filepath.Join(configDir, "medai"))
	}
	return paths, nil
}

// SaveAs writes the settings as YAML to the given path, creating parent
// directories as needed.
func (s *Settings) SaveAs(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("error creating config directory: %w", err)
		}
	}

	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("error marshaling settings: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}
	return nil
}
