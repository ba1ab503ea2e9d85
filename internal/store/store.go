package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

// ErrMappingNotFound is returned when an operation references a mapping row
// that does not exist.
var ErrMappingNotFound = errors.New("field mapping not found")

// AutoMapping is one accepted matcher result bound for persistence.
type AutoMapping struct {
	SourceTable  string
	SourceField  string
	PDFFieldName string
	Score        float64
}

// Store wraps the relational database holding mappings and templates.
type Store struct {
	db     *gorm.DB
	logger *slog.Logger
}

// Open opens (or creates) the SQLite database at path and migrates the
// schema.
func Open(path string, logger *slog.Logger) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database at %s: %w", path, err)
	}
	return New(db, logger)
}

// New wraps an existing connection and migrates the schema. Tests use it
// with an in-memory database.
func New(db *gorm.DB, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if err := db.AutoMigrate(&FieldMapping{}, &FormTemplate{}); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}
	return &Store{db: db, logger: logger}, nil
}

// DB exposes the underlying connection for schema introspection.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// UpsertAutoMappings writes accepted matcher results for a document type.
// Each mapping upserts on its (document_type, source_field, pdf_field_name)
// key; rows a reviewer marked manual are left untouched. Returns the number
// of rows written.
func (s *Store) UpsertAutoMappings(ctx context.Context, documentType string, mappings []AutoMapping) (int, error) {
	written := 0

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, m := range mappings {
			var existing FieldMapping
			err := tx.Where(
				"document_type = ? AND source_field = ? AND pdf_field_name = ?",
				documentType, m.SourceField, m.PDFFieldName,
			).First(&existing).Error

			switch {
			case err == nil && existing.Status == StatusManual:
				s.logger.Debug("skipping manual mapping",
					"document_type", documentType, "source_field", m.SourceField)
				continue
			case err != nil && !errors.Is(err, gorm.ErrRecordNotFound):
				return fmt.Errorf("failed to look up mapping for %s: %w", m.SourceField, err)
			}

			row := FieldMapping{
				DocumentType:    documentType,
				SourceTable:     m.SourceTable,
				SourceField:     m.SourceField,
				PDFFieldName:    m.PDFFieldName,
				ConfidenceScore: m.Score,
				Status:          StatusAuto,
				IsActive:        true,
			}
			if err := tx.Clauses(clause.OnConflict{
				Columns: []clause.Column{
					{Name: "document_type"}, {Name: "source_field"}, {Name: "pdf_field_name"},
				},
				DoUpdates: clause.AssignmentColumns([]string{
					"source_table", "confidence_score", "status", "is_active", "updated_at",
				}),
			}).Create(&row).Error; err != nil {
				return fmt.Errorf("failed to upsert mapping for %s: %w", m.SourceField, err)
			}
			written++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.logger.Info("auto mappings written", "document_type", documentType, "count", written)
	return written, nil
}

// RecordManualEdit marks a mapping as manually reviewed. A non-empty
// pdfFieldName retargets the mapping; notes replace any existing notes.
// Manual rows survive subsequent auto-mapping runs unchanged.
func (s *Store) RecordManualEdit(ctx context.Context, id uint, pdfFieldName, notes string) error {
	updates := map[string]any{
		"status":    StatusManual,
		"is_active": true,
		"notes":     notes,
	}
	if pdfFieldName != "" {
		updates["pdf_field_name"] = pdfFieldName
	}

	result := s.db.WithContext(ctx).Model(&FieldMapping{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to record manual edit for mapping %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("mapping %d: %w", id, ErrMappingNotFound)
	}
	return nil
}

// Deactivate soft-deletes a mapping. The row stays for auditing.
func (s *Store) Deactivate(ctx context.Context, id uint) error {
	result := s.db.WithContext(ctx).Model(&FieldMapping{}).
		Where("id = ?", id).
		Update("is_active", false)
	if result.Error != nil {
		return fmt.Errorf("failed to deactivate mapping %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("mapping %d: %w", id, ErrMappingNotFound)
	}
	return nil
}

// ActiveMappings returns the active mappings for one document type, ordered
// by source field.
func (s *Store) ActiveMappings(ctx context.Context, documentType string) ([]FieldMapping, error) {
	var rows []FieldMapping
	err := s.db.WithContext(ctx).
		Where("document_type = ? AND is_active = ?", documentType, true).
		Order("source_field").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load mappings for %s: %w", documentType, err)
	}
	return rows, nil
}

// ActiveMappingsByType returns all active mappings grouped by document type.
func (s *Store) ActiveMappingsByType(ctx context.Context) (map[string][]FieldMapping, error) {
	var rows []FieldMapping
	err := s.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("document_type, source_field").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load active mappings: %w", err)
	}

	grouped := make(map[string][]FieldMapping)
	for _, row := range rows {
		grouped[row.DocumentType] = append(grouped[row.DocumentType], row)
	}
	return grouped, nil
}

// SaveTemplate upserts the form template registered for a document type.
func (s *Store) SaveTemplate(ctx context.Context, tmpl *FormTemplate) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "document_type"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"name", "bucket", "path", "version", "page_count", "field_count", "updated_at",
		}),
	}).Create(tmpl).Error
	if err != nil {
		return fmt.Errorf("failed to save template for %s: %w", tmpl.DocumentType, err)
	}
	return nil
}

// GetTemplate returns the form template for a document type.
func (s *Store) GetTemplate(ctx context.Context, documentType string) (*FormTemplate, error) {
	var tmpl FormTemplate
	err := s.db.WithContext(ctx).Where("document_type = ?", documentType).First(&tmpl).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("no template registered for %s", documentType)
		}
		return nil, fmt.Errorf("failed to load template for %s: %w", documentType, err)
	}
	return &tmpl, nil
}
