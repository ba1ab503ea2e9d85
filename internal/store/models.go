// Package store persists field mappings and form-template metadata. Mapping
// rows are only ever upserted or soft-deactivated, never hard-deleted, so
// the table doubles as an audit trail.
package store

import "time"

// MappingStatus records how a mapping row came to be.
type MappingStatus string

const (
	// StatusAuto marks rows written by the similarity matcher.
	StatusAuto MappingStatus = "auto"
	// StatusManual marks rows touched by a human reviewer. Manual rows are
	// sticky: auto-mapping runs never overwrite them.
	StatusManual MappingStatus = "manual"
)

// FieldMapping links one schema field to one PDF form field for a document
// type. At most one active row exists per (document_type, source_field,
// pdf_field_name) triple; auto-mapping upserts on that key.
type FieldMapping struct {
	ID              uint          `gorm:"primarykey" json:"id"`
	DocumentType    string        `gorm:"size:64;not null;uniqueIndex:idx_mapping_key" json:"document_type"`
	SourceTable     string        `gorm:"size:64;not null" json:"source_table"`
	SourceField     string        `gorm:"size:128;not null;uniqueIndex:idx_mapping_key" json:"source_field"`
	PDFFieldName    string        `gorm:"column:pdf_field_name;size:255;not null;uniqueIndex:idx_mapping_key" json:"pdf_field_name"`
	ConfidenceScore float64       `json:"confidence_score"`
	Status          MappingStatus `gorm:"size:16;not null" json:"status"`
	IsActive        bool          `gorm:"not null" json:"is_active"`
	Notes           string        `json:"notes,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// FormTemplate records where the fillable PDF for a document type lives in
// object storage and which version of it the current mappings were built
// against.
type FormTemplate struct {
	ID           uint      `gorm:"primarykey" json:"id"`
	DocumentType string    `gorm:"size:64;not null;uniqueIndex" json:"document_type"`
	Name         string    `gorm:"size:255;not null" json:"name"`
	Bucket       string    `gorm:"size:128;not null" json:"bucket"`
	Path         string    `gorm:"size:512;not null" json:"path"`
	Version      int       `gorm:"not null" json:"version"`
	PageCount    int       `json:"page_count"`
	FieldCount   int       `json:"field_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
