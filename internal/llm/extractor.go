package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/dokmap/dokmap/internal/extract"
	perrors "github.com/dokmap/dokmap/internal/pipeline/errors"
)

// systemPrompt is the fixed extraction instruction. The model must only
// report explicit information and omit anything unclear rather than guess.
const systemPrompt = `Du extrahierst Feldwerte aus erkanntem Dokumenttext.

Regeln:
- Extrahiere ausschließlich Informationen, die explizit im Text stehen. Rate niemals.
- Lasse unklare oder fehlende Felder weg, statt sie zu erfinden.
- Konvertiere deutsche Datumsangaben (TT.MM.JJJJ) in das Format JJJJ-MM-TT.
- Konvertiere deutsche Zahlenformate (1.234,56) in einfache Dezimalschreibweise (1234.56).
- Antworte mit einem JSON-Objekt der Form:
  {"data": {feldname: wert, ...}, "confidence": {feldname: 0-100, ...}, "provenance": {feldname: textausschnitt, ...}}`

// Column describes one target schema column for the model.
type Column struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
}

// Extractor performs schema-constrained model-assisted extraction. Its
// output shape matches the pattern extractor's, so callers may treat both
// interchangeably or combine them.
type Extractor struct {
	client ChatClient
	logger *slog.Logger
}

// NewExtractor creates a model-assisted extractor over the given chat client.
func NewExtractor(client ChatClient, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Extractor{client: client, logger: logger}
}

// payload is the shape the model is asked to return. Confidence and
// provenance are optional passthroughs; their values are not range-checked,
// matching the lenient contract of the mapping consumer.
type payload struct {
	Data       map[string]any     `json:"data"`
	Confidence map[string]float64 `json:"confidence"`
	Provenance map[string]string  `json:"provenance"`
}

// Extract requests field values for the given columns from the recognized
// text and validates the response. Keys outside the column allow-list and
// null values are silently dropped; the extractor never forwards
// out-of-schema fields.
func (e *Extractor) Extract(ctx context.Context, docType string, columns []Column, text string) (*extract.Result, error) {
	schemaJSON, err := json.MarshalIndent(columns, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to serialize schema: %w", err)
	}

	userMsg := fmt.Sprintf("Dokumenttyp: %s\n\nZielschema:\n%s\n\nErkannter Text:\n%s",
		docType, schemaJSON, text)

	raw, err := e.client.Chat(ctx, []Message{
		{Role: RoleSystem, Content: systemPrompt},
		{Role: RoleUser, Content: userMsg},
	})
	if err != nil {
		return nil, fmt.Errorf("model extraction for %s failed: %w", docType, err)
	}

	parsed, err := parsePayload(raw)
	if err != nil {
		return nil, err
	}

	allowed := make(map[string]struct{}, len(columns))
	for _, col := range columns {
		allowed[col.Name] = struct{}{}
	}

	result := extract.NewResult()
	for key, value := range parsed.Data {
		if _, ok := allowed[key]; !ok {
			e.logger.Debug("dropping out-of-schema field", "field", key)
			continue
		}
		if value == nil {
			continue
		}
		result.Fields[key] = value
		if conf, ok := parsed.Confidence[key]; ok {
			result.Confidence[key] = conf
		}
		if prov, ok := parsed.Provenance[key]; ok {
			result.Provenance[key] = prov
		}
	}

	return result, nil
}

// fencedBlock matches the first fenced code block, with or without a
// language tag.
var fencedBlock = regexp.MustCompile("(?s)```(?:[a-zA-Z]+)?\\s*(.*?)```")

// parsePayload decodes the model response, tolerating JSON wrapped in a
// fenced code block or surrounded by prose: first fenced block if present,
// else the first top-level {...} span, else the whole trimmed response.
func parsePayload(raw string) (*payload, error) {
	candidate := strings.TrimSpace(raw)

	if m := fencedBlock.FindStringSubmatch(candidate); m != nil {
		candidate = strings.TrimSpace(m[1])
	} else if span := firstObjectSpan(candidate); span != "" {
		candidate = span
	}

	var p payload
	if err := json.Unmarshal([]byte(candidate), &p); err != nil {
		return nil, perrors.Wrap(perrors.KindSchemaViolation, "model response is not parsable as JSON", err)
	}
	if p.Data == nil {
		return nil, perrors.New(perrors.KindSchemaViolation, "model response is missing the data object")
	}
	if p.Confidence == nil {
		p.Confidence = make(map[string]float64)
	}
	if p.Provenance == nil {
		p.Provenance = make(map[string]string)
	}
	return &p, nil
}

// firstObjectSpan returns the first brace-balanced top-level {...} span, or
// "" when none exists. String literals are respected so braces inside values
// do not unbalance the scan.
func firstObjectSpan(s string) string {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		ch := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}
