// Package schema enumerates the internal data schema's leaf fields per
// document type, derived from live table columns rather than a hand-kept
// list so the catalog can never drift from the database.
package schema

import (
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/dokmap/dokmap/internal/match"
)

// Column describes one extractable column of a domain table.
type Column struct {
	Name        string
	Type        string
	Description string
}

// DocumentTables maps each supported document type to the domain table its
// extracted values are written into.
var DocumentTables = map[string]string{
	"geburtsurkunde":     "kinder",
	"einkommensnachweis": "einkommen",
	"meldebescheinigung": "haushalt",
}

// systemColumns are never extraction targets: identity, timestamps,
// ownership and soft-delete bookkeeping.
var systemColumns = map[string]struct{}{
	"id":         {},
	"created_at": {},
	"updated_at": {},
	"deleted_at": {},
}

// isSystemColumn filters identity/timestamp columns, foreign keys and
// confidence-bookkeeping columns out of the catalog.
func isSystemColumn(name string) bool {
	if _, ok := systemColumns[name]; ok {
		return true
	}
	return strings.HasSuffix(name, "_id") || strings.HasSuffix(name, "_confidence")
}

// Catalog reads schema fields from the live database.
type Catalog struct {
	db *gorm.DB
}

// NewCatalog creates a catalog over the given connection.
func NewCatalog(db *gorm.DB) *Catalog {
	return &Catalog{db: db}
}

// TableFor resolves the domain table for a document type.
func (c *Catalog) TableFor(documentType string) (string, error) {
	table, ok := DocumentTables[documentType]
	if !ok {
		return "", fmt.Errorf("unknown document type %q", documentType)
	}
	return table, nil
}

// Fields lists the matchable schema fields of a domain table, excluding
// system columns.
func (c *Catalog) Fields(table string) ([]match.SchemaField, error) {
	columns, err := c.Columns(table)
	if err != nil {
		return nil, err
	}

	fields := make([]match.SchemaField, 0, len(columns))
	for _, col := range columns {
		fields = append(fields, match.SchemaField{Table: table, Name: col.Name})
	}
	return fields, nil
}

// Columns lists a domain table's extractable columns with their database
// types, for use as a model extraction target schema.
func (c *Catalog) Columns(table string) ([]Column, error) {
	if !c.db.Migrator().HasTable(table) {
		return nil, fmt.Errorf("table %q does not exist", table)
	}

	columnTypes, err := c.db.Migrator().ColumnTypes(table)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect columns of %s: %w", table, err)
	}

	var columns []Column
	for _, ct := range columnTypes {
		name := ct.Name()
		if isSystemColumn(name) {
			continue
		}
		col := Column{Name: name, Type: ct.DatabaseTypeName()}
		if comment, ok := ct.Comment(); ok {
			col.Description = comment
		}
		columns = append(columns, col)
	}
	return columns, nil
}
