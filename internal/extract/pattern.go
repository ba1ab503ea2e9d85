package extract

import (
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
)

// defaultRuleConfidence is assigned when a rule does not set its own.
const defaultRuleConfidence = 85.0

// PostProcessor normalizes a captured value. Returning keep=false omits the
// field entirely; a value is never defaulted on normalization failure.
type PostProcessor func(raw string) (value string, keep bool)

// Rule is one named extraction rule for a document type. Patterns are
// case-insensitive, anchored to label keywords and tolerant of synonyms via
// alternation; the first capture group is the value (the whole match if the
// pattern has no group).
type Rule struct {
	Field      string
	Pattern    string
	Post       PostProcessor
	Confidence float64
	// Unless lists fields whose presence suppresses this rule. Used to let
	// a specific rule (child-scoped) win over a generic one: the generic
	// rule names the specific field here and only fires when it produced
	// no match.
	Unless []string
}

type compiledRule struct {
	Rule
	re *regexp.Regexp
}

// PatternExtractor runs a fixed per-document-type set of regex rules over
// recognized text. Rules are compiled once at construction; a rule that
// matches nothing contributes nothing.
type PatternExtractor struct {
	rulesByType map[string][]compiledRule
	logger      *slog.Logger
}

// NewPatternExtractor compiles the given rule sets. An invalid pattern is a
// programming error and fails construction.
func NewPatternExtractor(rulesByType map[string][]Rule, logger *slog.Logger) (*PatternExtractor, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	compiled := make(map[string][]compiledRule, len(rulesByType))
	for docType, rules := range rulesByType {
		crs := make([]compiledRule, 0, len(rules))
		for _, r := range rules {
			re, err := regexp.Compile(`(?i)` + r.Pattern)
			if err != nil {
				return nil, fmt.Errorf("invalid pattern for rule %s/%s: %w", docType, r.Field, err)
			}
			if r.Confidence <= 0 {
				r.Confidence = defaultRuleConfidence
			}
			crs = append(crs, compiledRule{Rule: r, re: re})
		}
		compiled[docType] = crs
	}

	return &PatternExtractor{rulesByType: compiled, logger: logger}, nil
}

// DocumentTypes returns the document types this extractor has rules for.
func (p *PatternExtractor) DocumentTypes() []string {
	types := make([]string, 0, len(p.rulesByType))
	for dt := range p.rulesByType {
		types = append(types, dt)
	}
	return types
}

// Extract applies the document type's rules to the recognized text. An
// unknown document type or zero matching rules yields a valid empty result.
func (p *PatternExtractor) Extract(docType, text string) *Result {
	result := NewResult()

	rules, ok := p.rulesByType[docType]
	if !ok {
		p.logger.Debug("no pattern rules for document type", "document_type", docType)
		return result
	}

	for _, rule := range rules {
		if result.Has(rule.Field) {
			continue
		}
		if suppressed(rule.Unless, result) {
			continue
		}

		match := rule.re.FindStringSubmatch(text)
		if match == nil {
			continue
		}

		raw := match[0]
		if len(match) > 1 && match[1] != "" {
			raw = match[1]
		}
		raw = strings.TrimSpace(raw)

		value := raw
		if rule.Post != nil {
			var keep bool
			value, keep = rule.Post(raw)
			if !keep {
				p.logger.Debug("dropping unparsable value", "field", rule.Field, "raw", raw)
				continue
			}
		}

		result.Set(rule.Field, value, rule.Confidence, strings.TrimSpace(match[0]))
	}

	return result
}

func suppressed(unless []string, result *Result) bool {
	for _, field := range unless {
		if result.Has(field) {
			return true
		}
	}
	return false
}

var germanDate = regexp.MustCompile(`^(\d{1,2})\.(\d{1,2})\.(\d{4})$`)

// NormalizeGermanDate converts DD.MM.YYYY into YYYY-MM-DD by token
// reordering and zero-padding. Non-conforming date-like text passes through
// unmodified rather than failing.
func NormalizeGermanDate(raw string) (string, bool) {
	m := germanDate.FindStringSubmatch(strings.TrimSpace(raw))
	if m == nil {
		return raw, true
	}
	day, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	return fmt.Sprintf("%s-%02d-%02d", m[3], month, day), true
}

// NormalizeGermanDecimal converts German number formatting (dot as thousands
// separator, comma as decimal separator) into a plain decimal string. Values
// that fail to parse as a number are omitted, never defaulted to zero.
func NormalizeGermanDecimal(raw string) (string, bool) {
	s := strings.TrimSpace(raw)
	s = strings.TrimSuffix(s, "€")
	s = strings.TrimSpace(strings.TrimPrefix(s, "€"))
	s = strings.ReplaceAll(s, ".", "")
	s = strings.ReplaceAll(s, ",", ".")

	if _, err := strconv.ParseFloat(s, 64); err != nil {
		return "", false
	}
	return s, true
}
