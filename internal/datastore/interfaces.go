// Package datastore handles persistence of completed analyses and
// validation outcomes.
package datastore

import (
	"time"

	"gorm.io/gorm"

	"github.com/drguilhermecapel/medai/internal/conf"
)

// AnalysisRecord is the persisted form of a completed or failed
// analysis. Diagnoses are stored as child rows.
type AnalysisRecord struct {
	ID            string `gorm:"primaryKey"`
	PatientRef    string `gorm:"index"`
	Status        string `gorm:"index"`
	FailureReason string
	QualityScore  float64
	HeartRate     *float64
	LowBeatCount  bool
	UrgencyTier   string `gorm:"index"`
	UrgencyDetail string
	CapturedAt    time.Time
	CreatedAt     time.Time
	CompletedAt   *time.Time

	Diagnoses []DiagnosisRecord `gorm:"foreignKey:AnalysisID;constraint:OnDelete:CASCADE"`
}

// DiagnosisRecord is one ranked classifier prediction for an analysis.
type DiagnosisRecord struct {
	ID         uint   `gorm:"primaryKey;autoIncrement"`
	AnalysisID string `gorm:"index"`
	Rank       int
	Label      string
	Confidence float64
}

// ValidationRecord is the persisted outcome of a clinical review.
type ValidationRecord struct {
	ID         string `gorm:"primaryKey"`
	AnalysisID string `gorm:"uniqueIndex"`
	Reviewer   string
	Outcome    string
	Comment    string
	Reoffers   int
	DecidedAt  time.Time
}

// Interface defines the operations the rest of the service needs from
// the persistence layer.
type Interface interface {
	Open() error
	Close() error
	SaveAnalysis(record *AnalysisRecord) error
	GetAnalysis(id string) (*AnalysisRecord, error)
	ListAnalyses(limit, offset int) ([]AnalysisRecord, error)
	SaveValidation(record *ValidationRecord) error
	GetValidation(analysisID string) (*ValidationRecord, error)
}

// DataStore implements the Interface using a GORM database handle. The
// concrete stores embed it and supply the dialect-specific Open.
type DataStore struct {
	DB *gorm.DB
}

// New creates the configured store. Only SQLite output is supported at
// present.
func New(settings *conf.Settings) Interface {
	return &SQLiteStore{Settings: settings}
}

func performAutoMigration(db *gorm.DB) error {
	return db.AutoMigrate(
		&AnalysisRecord{},
		&DiagnosisRecord{},
		&ValidationRecord{},
	)
}
