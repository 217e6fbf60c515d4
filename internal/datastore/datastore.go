package datastore

import (
	stderrors "errors"

	"gorm.io/gorm"

	"github.com/drguilhermecapel/medai/internal/errors"
)

// SaveAnalysis persists an analysis record and its ranked diagnoses.
// Saving the same ID again replaces the previous row and children.
func (ds *DataStore) SaveAnalysis(record *AnalysisRecord) error {
	if record == nil || record.ID == "" {
		return errors.Newf("analysis record requires an ID").
			Component("datastore").
			Category(errors.CategoryDatabase).
			Build()
	}
	err := ds.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("analysis_id = ?", record.ID).Delete(&DiagnosisRecord{}).Error; err != nil {
			return err
		}
		return tx.Save(record).Error
	})
	if err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("analysis_id", record.ID).
			Build()
	}
	return nil
}

// GetAnalysis retrieves an analysis with its diagnoses ordered by rank.
func (ds *DataStore) GetAnalysis(id string) (*AnalysisRecord, error) {
	var record AnalysisRecord
	err := ds.DB.Preload("Diagnoses", func(db *gorm.DB) *gorm.DB {
		return db.Order("rank ASC")
	}).First(&record, "id = ?", id).Error
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.Newf("analysis %s not found", id).
				Component("datastore").
				Category(errors.CategoryNotFound).
				Build()
		}
		return nil, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("analysis_id", id).
			Build()
	}
	return &record, nil
}

// ListAnalyses returns analyses ordered newest first.
func (ds *DataStore) ListAnalyses(limit, offset int) ([]AnalysisRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	var records []AnalysisRecord
	err := ds.DB.Preload("Diagnoses").
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&records).Error
	if err != nil {
		return nil, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Build()
	}
	return records, nil
}

// SaveValidation persists a validation outcome.
func (ds *DataStore) SaveValidation(record *ValidationRecord) error {
	if record == nil || record.ID == "" {
		return errors.Newf("validation record requires an ID").
			Component("datastore").
			Category(errors.CategoryDatabase).
			Build()
	}
	if err := ds.DB.Save(record).Error; err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("validation_id", record.ID).
			Build()
	}
	return nil
}

// GetValidation retrieves the validation outcome for an analysis.
func (ds *DataStore) GetValidation(analysisID string) (*ValidationRecord, error) {
	var record ValidationRecord
	err := ds.DB.First(&record, "analysis_id = ?", analysisID).Error
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.Newf("validation for analysis %s not found", analysisID).
				Component("datastore").
				Category(errors.CategoryNotFound).
				Build()
		}
		return nil, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("analysis_id", analysisID).
			Build()
	}
	return &record, nil
}
