package match

import (
	"sort"
	"strings"
	"unicode/utf8"
)

const (
	// DefaultSurfaceThreshold is the minimum score for a candidate to be
	// surfaced for review at all.
	DefaultSurfaceThreshold = 40.0
	// DefaultAcceptThreshold is the minimum score for a candidate to be
	// persisted as an automatic mapping.
	DefaultAcceptThreshold = 50.0

	maxCandidates  = 3
	substringBonus = 10.0
)

// SchemaField is one leaf field of the internal data schema.
type SchemaField struct {
	Table string `json:"table"`
	Name  string `json:"name"`
}

// Candidate is a proposed mapping between a schema field and a PDF form
// field, scored 0-100.
type Candidate struct {
	SchemaField   SchemaField `json:"schema_field"`
	FormFieldName string      `json:"form_field_name"`
	Score         float64     `json:"score"`
}

// FieldMatch holds all surfaced candidates for one schema field, best first.
type FieldMatch struct {
	SchemaField SchemaField `json:"schema_field"`
	Candidates  []Candidate `json:"candidates"`
}

// BestMatch returns the score-maximal candidate, or nil when none survived
// filtering. Zero candidates is a valid, fully-formed empty result.
func (m *FieldMatch) BestMatch() *Candidate {
	if len(m.Candidates) == 0 {
		return nil
	}
	return &m.Candidates[0]
}

// Matcher scores normalized field-name pairs and proposes ranked mappings.
type Matcher struct {
	surfaceThreshold float64
	acceptThreshold  float64
}

// NewMatcher creates a matcher with the given thresholds. Zero values fall
// back to the defaults.
func NewMatcher(surfaceThreshold, acceptThreshold float64) *Matcher {
	if surfaceThreshold <= 0 {
		surfaceThreshold = DefaultSurfaceThreshold
	}
	if acceptThreshold <= 0 {
		acceptThreshold = DefaultAcceptThreshold
	}
	return &Matcher{
		surfaceThreshold: surfaceThreshold,
		acceptThreshold:  acceptThreshold,
	}
}

// AcceptThreshold returns the auto-acceptance cutoff.
func (m *Matcher) AcceptThreshold() float64 {
	return m.acceptThreshold
}

// Score computes the similarity between a schema field name and a form field
// name in [0,100]. Both sides are normalized first; exact normalized equality
// short-circuits to 100.
func (m *Matcher) Score(schemaName, formName string) float64 {
	a := Normalize(RoleSchema, schemaName)
	b := Normalize(RoleForm, formName)
	return scoreNormalized(a, b)
}

func scoreNormalized(a, b string) float64 {
	if a == b {
		if a == "" {
			return 0
		}
		return 100
	}

	maxLen := utf8.RuneCountInString(a)
	if n := utf8.RuneCountInString(b); n > maxLen {
		maxLen = n
	}
	if maxLen == 0 {
		return 0
	}

	dist := levenshtein(a, b)
	score := 100 - float64(dist)/float64(maxLen)*100
	if score < 0 {
		score = 0
	}

	if a != "" && b != "" && (strings.Contains(a, b) || strings.Contains(b, a)) {
		score += substringBonus
	}
	if score > 100 {
		score = 100
	}

	return score
}

// MatchFields scores every schema field against every form field name and
// returns per-schema-field candidate lists: filtered to scores above the
// surfacing threshold, sorted descending, capped at three. Ties keep the
// original form-field order so results are deterministic.
func (m *Matcher) MatchFields(schemaFields []SchemaField, formFieldNames []string) []FieldMatch {
	matches := make([]FieldMatch, 0, len(schemaFields))

	for _, sf := range schemaFields {
		normalized := Normalize(RoleSchema, sf.Name)

		candidates := make([]Candidate, 0, maxCandidates)
		for _, formName := range formFieldNames {
			score := scoreNormalized(normalized, Normalize(RoleForm, formName))
			if score <= m.surfaceThreshold {
				continue
			}
			candidates = append(candidates, Candidate{
				SchemaField:   sf,
				FormFieldName: formName,
				Score:         score,
			})
		}

		sort.SliceStable(candidates, func(i, j int) bool {
			return candidates[i].Score > candidates[j].Score
		})
		if len(candidates) > maxCandidates {
			candidates = candidates[:maxCandidates]
		}

		matches = append(matches, FieldMatch{SchemaField: sf, Candidates: candidates})
	}

	return matches
}

// Accepted filters matches down to the best candidates that clear the
// auto-acceptance threshold.
func (m *Matcher) Accepted(matches []FieldMatch) []Candidate {
	accepted := make([]Candidate, 0, len(matches))
	for i := range matches {
		best := matches[i].BestMatch()
		if best != nil && best.Score > m.acceptThreshold {
			accepted = append(accepted, *best)
		}
	}
	return accepted
}
