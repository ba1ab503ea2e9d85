package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	perrors "github.com/dokmap/dokmap/internal/pipeline/errors"
)

// stubChat returns a canned response and records the messages it received.
type stubChat struct {
	response string
	err      error
	messages []Message
}

func (s *stubChat) Chat(_ context.Context, messages []Message) (string, error) {
	s.messages = messages
	if s.err != nil {
		return "", s.err
	}
	return s.response, nil
}

var testColumns = []Column{
	{Name: "kind_vorname", Type: "text", Description: "Vorname des Kindes"},
	{Name: "kind_geburtsdatum", Type: "date", Description: "Geburtsdatum des Kindes"},
	{Name: "brutto_einkommen", Type: "numeric", Description: "Monatliches Bruttoeinkommen"},
}

func TestExtractParsesPlainJSON(t *testing.T) {
	stub := &stubChat{response: `{
		"data": {"kind_vorname": "Lena", "kind_geburtsdatum": "2021-03-14"},
		"confidence": {"kind_vorname": 95},
		"provenance": {"kind_vorname": "Vorname des Kindes: Lena"}
	}`}
	ex := NewExtractor(stub, nil)

	result, err := ex.Extract(context.Background(), "geburtsurkunde", testColumns, "Vorname des Kindes: Lena")
	require.NoError(t, err)

	assert.Equal(t, "Lena", result.Fields["kind_vorname"])
	assert.Equal(t, "2021-03-14", result.Fields["kind_geburtsdatum"])
	assert.Equal(t, 95.0, result.Confidence["kind_vorname"])
	assert.Equal(t, "Vorname des Kindes: Lena", result.Provenance["kind_vorname"])
}

func TestExtractSendsSchemaAndText(t *testing.T) {
	stub := &stubChat{response: `{"data": {}}`}
	ex := NewExtractor(stub, nil)

	_, err := ex.Extract(context.Background(), "geburtsurkunde", testColumns, "some recognized text")
	require.NoError(t, err)

	require.Len(t, stub.messages, 2)
	assert.Equal(t, RoleSystem, stub.messages[0].Role)
	assert.Equal(t, RoleUser, stub.messages[1].Role)
	assert.Contains(t, stub.messages[1].Content, "kind_vorname")
	assert.Contains(t, stub.messages[1].Content, "Vorname des Kindes")
	assert.Contains(t, stub.messages[1].Content, "some recognized text")
}

func TestExtractRepairsFencedJSON(t *testing.T) {
	stub := &stubChat{response: "Hier ist das Ergebnis:\n```json\n{\"data\": {\"kind_vorname\": \"Mia\"}}\n```\nFertig."}
	ex := NewExtractor(stub, nil)

	result, err := ex.Extract(context.Background(), "geburtsurkunde", testColumns, "text")
	require.NoError(t, err)
	assert.Equal(t, "Mia", result.Fields["kind_vorname"])
}

func TestExtractRepairsEmbeddedObject(t *testing.T) {
	stub := &stubChat{response: `Das extrahierte Ergebnis lautet {"data": {"kind_vorname": "Jonas {junior}"}} wie angefragt.`}
	ex := NewExtractor(stub, nil)

	result, err := ex.Extract(context.Background(), "geburtsurkunde", testColumns, "text")
	require.NoError(t, err)
	assert.Equal(t, "Jonas {junior}", result.Fields["kind_vorname"])
}

func TestExtractDropsOutOfSchemaAndNullFields(t *testing.T) {
	stub := &stubChat{response: `{"data": {
		"kind_vorname": "Lena",
		"erfundenes_feld": "sollte verschwinden",
		"kind_geburtsdatum": null
	}}`}
	ex := NewExtractor(stub, nil)

	result, err := ex.Extract(context.Background(), "geburtsurkunde", testColumns, "text")
	require.NoError(t, err)

	assert.Equal(t, "Lena", result.Fields["kind_vorname"])
	assert.NotContains(t, result.Fields, "erfundenes_feld")
	assert.NotContains(t, result.Fields, "kind_geburtsdatum")
}

func TestExtractMissingDataObjectFails(t *testing.T) {
	stub := &stubChat{response: `{"confidence": {"kind_vorname": 90}}`}
	ex := NewExtractor(stub, nil)

	_, err := ex.Extract(context.Background(), "geburtsurkunde", testColumns, "text")
	require.Error(t, err)
	assert.True(t, perrors.IsKind(err, perrors.KindSchemaViolation))
}

func TestExtractUnparsableResponseFails(t *testing.T) {
	stub := &stubChat{response: "Ich konnte keine Felder finden."}
	ex := NewExtractor(stub, nil)

	_, err := ex.Extract(context.Background(), "geburtsurkunde", testColumns, "text")
	require.Error(t, err)
	assert.True(t, perrors.IsKind(err, perrors.KindSchemaViolation))
}

func TestExtractPropagatesClientError(t *testing.T) {
	stub := &stubChat{err: perrors.New(perrors.KindTransport, "connection refused")}
	ex := NewExtractor(stub, nil)

	_, err := ex.Extract(context.Background(), "geburtsurkunde", testColumns, "text")
	require.Error(t, err)
	assert.True(t, perrors.IsKind(err, perrors.KindTransport))
}

func TestFirstObjectSpan(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"bare object", `{"a":1}`, `{"a":1}`},
		{"prose around", `before {"a":1} after`, `{"a":1}`},
		{"nested braces", `x {"a":{"b":2}} y`, `{"a":{"b":2}}`},
		{"brace in string", `{"a":"}"}`, `{"a":"}"}`},
		{"no object", "nothing here", ""},
		{"unbalanced", `{"a":1`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, firstObjectSpan(tt.in))
		})
	}
}
