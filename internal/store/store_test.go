package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	s, err := New(db, nil)
	require.NoError(t, err)
	return s
}

func TestUpsertAutoMappingsIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	mappings := []AutoMapping{
		{SourceTable: "kinder", SourceField: "kind_vorname", PDFFieldName: "txt.vorname2b", Score: 100},
		{SourceTable: "kinder", SourceField: "kind_geburtsdatum", PDFFieldName: "txt.geburtsdatum1a", Score: 95},
	}

	written, err := s.UpsertAutoMappings(ctx, "geburtsurkunde", mappings)
	require.NoError(t, err)
	assert.Equal(t, 2, written)

	// A rerun with an updated score must update in place, not duplicate.
	mappings[0].Score = 87
	written, err = s.UpsertAutoMappings(ctx, "geburtsurkunde", mappings)
	require.NoError(t, err)
	assert.Equal(t, 2, written)

	rows, err := s.ActiveMappings(ctx, "geburtsurkunde")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, 95.0, rows[0].ConfidenceScore) // kind_geburtsdatum sorts first
	assert.Equal(t, 87.0, rows[1].ConfidenceScore)
	assert.Equal(t, StatusAuto, rows[1].Status)
}

func TestManualMappingsSurviveAutoRuns(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.UpsertAutoMappings(ctx, "geburtsurkunde", []AutoMapping{
		{SourceTable: "kinder", SourceField: "kind_vorname", PDFFieldName: "txt.vorname2b", Score: 60},
	})
	require.NoError(t, err)

	rows, err := s.ActiveMappings(ctx, "geburtsurkunde")
	require.NoError(t, err)
	require.Len(t, rows, 1)

	require.NoError(t, s.RecordManualEdit(ctx, rows[0].ID, "", "reviewed, correct"))

	// The next auto run targets the same key with a different score.
	written, err := s.UpsertAutoMappings(ctx, "geburtsurkunde", []AutoMapping{
		{SourceTable: "kinder", SourceField: "kind_vorname", PDFFieldName: "txt.vorname2b", Score: 99},
	})
	require.NoError(t, err)
	assert.Equal(t, 0, written)

	rows, err = s.ActiveMappings(ctx, "geburtsurkunde")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, StatusManual, rows[0].Status)
	assert.Equal(t, 60.0, rows[0].ConfidenceScore)
	assert.Equal(t, "reviewed, correct", rows[0].Notes)
}

func TestRecordManualEditRetargetsField(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.UpsertAutoMappings(ctx, "geburtsurkunde", []AutoMapping{
		{SourceTable: "kinder", SourceField: "kind_nachname", PDFFieldName: "txt.name1", Score: 55},
	})
	require.NoError(t, err)

	rows, err := s.ActiveMappings(ctx, "geburtsurkunde")
	require.NoError(t, err)
	require.Len(t, rows, 1)

	require.NoError(t, s.RecordManualEdit(ctx, rows[0].ID, "txt.nachname3", "wrong field auto-picked"))

	rows, err = s.ActiveMappings(ctx, "geburtsurkunde")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "txt.nachname3", rows[0].PDFFieldName)
	assert.Equal(t, StatusManual, rows[0].Status)
}

func TestRecordManualEditMissingRow(t *testing.T) {
	s := newTestStore(t)

	err := s.RecordManualEdit(context.Background(), 9999, "", "")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMappingNotFound)
}

func TestDeactivateIsSoft(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.UpsertAutoMappings(ctx, "einkommensnachweis", []AutoMapping{
		{SourceTable: "einkommen", SourceField: "brutto_einkommen", PDFFieldName: "txt.brutto1", Score: 80},
	})
	require.NoError(t, err)

	rows, err := s.ActiveMappings(ctx, "einkommensnachweis")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	id := rows[0].ID

	require.NoError(t, s.Deactivate(ctx, id))

	rows, err = s.ActiveMappings(ctx, "einkommensnachweis")
	require.NoError(t, err)
	assert.Empty(t, rows)

	// The row itself is retained for auditing.
	var all []FieldMapping
	require.NoError(t, s.DB().Find(&all).Error)
	require.Len(t, all, 1)
	assert.False(t, all[0].IsActive)

	assert.ErrorIs(t, s.Deactivate(ctx, 9999), ErrMappingNotFound)
}

func TestActiveMappingsByTypeGroups(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.UpsertAutoMappings(ctx, "geburtsurkunde", []AutoMapping{
		{SourceTable: "kinder", SourceField: "kind_vorname", PDFFieldName: "txt.vorname2b", Score: 90},
	})
	require.NoError(t, err)
	_, err = s.UpsertAutoMappings(ctx, "einkommensnachweis", []AutoMapping{
		{SourceTable: "einkommen", SourceField: "brutto_einkommen", PDFFieldName: "txt.brutto1", Score: 70},
		{SourceTable: "einkommen", SourceField: "netto_einkommen", PDFFieldName: "txt.netto1", Score: 72},
	})
	require.NoError(t, err)

	grouped, err := s.ActiveMappingsByType(ctx)
	require.NoError(t, err)
	assert.Len(t, grouped["geburtsurkunde"], 1)
	assert.Len(t, grouped["einkommensnachweis"], 2)
}

func TestTemplateRegistry(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	tmpl := &FormTemplate{
		DocumentType: "geburtsurkunde",
		Name:         "Antrag Familienleistung",
		Bucket:       "templates",
		Path:         "formulare/antrag.pdf",
		Version:      1,
	}
	require.NoError(t, s.SaveTemplate(ctx, tmpl))

	// Registering a new version for the same type replaces, never duplicates.
	require.NoError(t, s.SaveTemplate(ctx, &FormTemplate{
		DocumentType: "geburtsurkunde",
		Name:         "Antrag Familienleistung",
		Bucket:       "templates",
		Path:         "formulare/antrag_v2.pdf",
		Version:      2,
	}))

	got, err := s.GetTemplate(ctx, "geburtsurkunde")
	require.NoError(t, err)
	assert.Equal(t, 2, got.Version)
	assert.Equal(t, "formulare/antrag_v2.pdf", got.Path)

	_, err = s.GetTemplate(ctx, "unbekannt")
	require.Error(t, err)
}
