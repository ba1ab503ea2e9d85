package extract

// Document types with built-in pattern rule sets.
const (
	DocTypeGeburtsurkunde     = "geburtsurkunde"
	DocTypeEinkommensnachweis = "einkommensnachweis"
	DocTypeMeldebescheinigung = "meldebescheinigung"
)

// namePattern captures a capitalized (possibly hyphenated or multi-part)
// German proper name following a label.
const namePattern = `([A-ZÄÖÜ][a-zäöüß]+(?:[ -][A-ZÄÖÜ][a-zäöüß]+)*)`

// datePattern captures a DD.MM.YYYY-shaped token.
const datePattern = `(\d{1,2}\.\d{1,2}\.\d{4})`

// amountPattern captures a German-formatted monetary amount.
const amountPattern = `([\d.]+,\d{2}|\d+(?:,\d+)?)`

// DefaultRules returns the built-in extraction rule sets per document type.
// Within a type, specific rules precede the generic fallbacks they suppress.
func DefaultRules() map[string][]Rule {
	return map[string][]Rule{
		DocTypeGeburtsurkunde: {
			{
				Field:   "kind_vorname",
				Pattern: `\b(?:vorname[n]?\s+des\s+kindes|kind)\s*:?\s*` + namePattern,
			},
			{
				// Generic first-name label; only fires when the child-scoped
				// rule above produced no match.
				Field:   "kind_vorname",
				Pattern: `\bvorname[n]?\s*:?\s*` + namePattern,
				Unless:  []string{"kind_vorname"},
			},
			{
				Field:   "kind_nachname",
				Pattern: `\b(?:familienname|nachname|name\s+des\s+kindes)\s*:?\s*` + namePattern,
			},
			{
				Field:   "kind_geburtsdatum",
				Pattern: `\b(?:geburtsdatum|geboren\s+am|geb\.)\s*:?\s*` + datePattern,
				Post:    NormalizeGermanDate,
			},
			{
				Field:   "kind_geburtsort",
				Pattern: `\b(?:geburtsort|geboren\s+in)\s*:?\s*` + namePattern,
			},
			{
				Field:   "mutter_vorname",
				Pattern: `\bmutter\s*:?\s*` + namePattern,
			},
			{
				Field:   "vater_vorname",
				Pattern: `\bvater\s*:?\s*` + namePattern,
			},
		},

		DocTypeEinkommensnachweis: {
			{
				Field:   "arbeitgeber",
				Pattern: `\b(?:arbeitgeber|firma|unternehmen)\s*:?\s*` + namePattern,
			},
			{
				Field:   "brutto_einkommen",
				Pattern: `\b(?:bruttoentgelt|bruttolohn|brutto)\s*:?\s*` + amountPattern,
				Post:    NormalizeGermanDecimal,
			},
			{
				Field:   "netto_einkommen",
				Pattern: `\b(?:nettoentgelt|nettolohn|netto|auszahlungsbetrag)\s*:?\s*` + amountPattern,
				Post:    NormalizeGermanDecimal,
			},
			{
				Field:   "beschaeftigt_seit",
				Pattern: `\b(?:beschäftigt\s+seit|eintrittsdatum|eintritt)\s*:?\s*` + datePattern,
				Post:    NormalizeGermanDate,
			},
		},

		DocTypeMeldebescheinigung: {
			{
				Field:   "strasse_hausnummer",
				Pattern: `\b(?:straße|strasse|anschrift)\s*:?\s*([A-ZÄÖÜ][\wäöüß.\- ]+?\s\d+[a-z]?)\b`,
			},
			{
				Field:   "plz",
				Pattern: `\b(?:plz|postleitzahl)\s*:?\s*(\d{5})`,
			},
			{
				Field:   "ort",
				Pattern: `\b(?:wohnort|ort)\s*:?\s*` + namePattern,
			},
			{
				Field:   "eingezogen_am",
				Pattern: `\b(?:eingezogen\s+am|einzugsdatum|wohnhaft\s+seit)\s*:?\s*` + datePattern,
				Post:    NormalizeGermanDate,
			},
		},
	}
}
