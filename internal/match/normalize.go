package match

import (
	"regexp"
	"strings"
)

// Role identifies which naming vocabulary a raw field name comes from.
// Schema names and PDF form designer names carry different decorations,
// so each role strips its own set before comparison.
type Role string

const (
	RoleSchema Role = "schema"
	RoleForm   Role = "form"
)

// schemaPrefixes are person/entity role markers on schema columns
// (kind_geburtsdatum, mutter_vorname, ...). They say whose field it is,
// not what the field means, so they are irrelevant to lexical similarity.
var schemaPrefixes = []string{"kind_", "mutter_", "vater_", "partner1_", "partner2_"}

// formNamespacePrefix is the designer's namespace on text widgets ("txt.Vorname2b").
const formNamespacePrefix = "txt."

// formNumberSuffix matches the form designer's trailing field-numbering run,
// e.g. "geburtsdatum1a 3" -> strips "1a 3". One or more digit groups, each
// with an optional single letter, possibly whitespace-separated. The whole
// run is one match so stripping reaches a fixpoint in a single pass.
var formNumberSuffix = regexp.MustCompile(`(?:\s*\d+[a-z]?)+\s*$`)

// umlautReplacer transliterates German umlauts and sharp s to their ASCII
// digraphs, so "straße" and "strasse" canonicalize equal.
var umlautReplacer = strings.NewReplacer("ä", "ae", "ö", "oe", "ü", "ue", "ß", "ss")

// Normalize canonicalizes a raw field name for the given role. It is
// idempotent and never fails, including on the empty string.
func Normalize(role Role, raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = umlautReplacer.Replace(s)

	switch role {
	case RoleSchema:
		for _, prefix := range schemaPrefixes {
			if strings.HasPrefix(s, prefix) {
				s = strings.TrimPrefix(s, prefix)
				break
			}
		}
		s = strings.ReplaceAll(s, "_", "")
	case RoleForm:
		// Designers sometimes double the namespace ("txt.txt.geburtsdatum").
		for strings.HasPrefix(s, formNamespacePrefix) {
			s = strings.TrimPrefix(s, formNamespacePrefix)
		}
		s = formNumberSuffix.ReplaceAllString(s, "")
		s = strings.Join(strings.Fields(s), "")
	}

	return s
}
