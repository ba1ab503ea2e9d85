// Package extract turns recognized document text into typed field values.
// Two complementary strategies share one result shape: deterministic regex
// rules (pattern.go) and schema-constrained model-assisted extraction
// (internal/llm), so callers can use either or combine both.
package extract

import "fmt"

// Result is the outcome of one extraction run over one document. It is
// transient: the caller decides which fields to persist, after filtering by
// the target table's column allow-list. Missing fields are absent, never
// null-filled.
type Result struct {
	// Fields maps schema field names to extracted values.
	Fields map[string]any `json:"fields"`
	// Confidence holds a 0-100 estimate per extracted field.
	Confidence map[string]float64 `json:"confidence"`
	// Provenance holds the source-text snippet supporting each value.
	Provenance map[string]string `json:"provenance"`
}

// NewResult returns an empty, fully-formed result. Zero extracted fields is
// a valid outcome, not an error.
func NewResult() *Result {
	return &Result{
		Fields:     make(map[string]any),
		Confidence: make(map[string]float64),
		Provenance: make(map[string]string),
	}
}

// Set records one extracted field with its confidence and source snippet.
func (r *Result) Set(field string, value any, confidence float64, provenance string) {
	r.Fields[field] = value
	r.Confidence[field] = confidence
	r.Provenance[field] = provenance
}

// Has reports whether a field was extracted.
func (r *Result) Has(field string) bool {
	_, ok := r.Fields[field]
	return ok
}

// Merge combines a primary and a secondary result into a new one. The
// primary's value wins wherever both extracted the same field; fields only
// the secondary produced are carried over unchanged. Disagreements between
// the two are noted in the merged provenance so a reviewer can triage them.
func Merge(primary, secondary *Result) *Result {
	if primary == nil {
		primary = NewResult()
	}
	if secondary == nil {
		secondary = NewResult()
	}

	merged := NewResult()
	for field, value := range secondary.Fields {
		merged.Set(field, value, secondary.Confidence[field], secondary.Provenance[field])
	}
	for field, value := range primary.Fields {
		prov := primary.Provenance[field]
		if other, ok := secondary.Fields[field]; ok && fmtValue(other) != fmtValue(value) {
			prov += " [disagrees with model value: " + fmtValue(other) + "]"
		}
		merged.Set(field, value, primary.Confidence[field], prov)
	}
	return merged
}

func fmtValue(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%v", v)
}
