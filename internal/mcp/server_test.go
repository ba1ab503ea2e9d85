package mcp

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/dokmap/dokmap/internal/config"
	"github.com/dokmap/dokmap/internal/extract"
	"github.com/dokmap/dokmap/internal/layout"
	"github.com/dokmap/dokmap/internal/match"
	"github.com/dokmap/dokmap/internal/ocr"
	"github.com/dokmap/dokmap/internal/pipeline"
	"github.com/dokmap/dokmap/internal/schema"
	"github.com/dokmap/dokmap/internal/storage"
	"github.com/dokmap/dokmap/internal/store"
)

// kinderRow mirrors the domain table the catalog inspects.
type kinderRow struct {
	ID               uint   `gorm:"primarykey"`
	KindVorname      string `gorm:"column:kind_vorname"`
	KindNachname     string `gorm:"column:kind_nachname"`
	KindGeburtsdatum string `gorm:"column:kind_geburtsdatum"`
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (kinderRow) TableName() string { return "kinder" }

// fixedRecognizer returns canned recognized text for any document.
type fixedRecognizer struct {
	text string
}

func (f *fixedRecognizer) Recognize(_ context.Context, _ []byte) (string, error) {
	return f.text, nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Mode:         "stdio",
		Host:         "127.0.0.1",
		Port:         8080,
		TemplateDir:  t.TempDir(),
		DatabasePath: ":memory:",
		Version:      "1.0.0",
		ServerName:   "dokmap-test",
		LogLevel:     "info",
		MaxFileSize:  1024 * 1024,
	}
}

func newTestService(t *testing.T, root, recognized string) (*pipeline.Service, *store.Store) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	if err := db.AutoMigrate(&kinderRow{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	st, err := store.New(db, nil)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	patterns, err := extract.NewPatternExtractor(extract.DefaultRules(), nil)
	if err != nil {
		t.Fatalf("failed to compile rules: %v", err)
	}

	svc := pipeline.NewService(pipeline.Deps{
		Layout:      layout.NewExtractor(nil),
		Matcher:     match.NewMatcher(0, 0),
		Patterns:    patterns,
		Recognizer:  &fixedRecognizer{text: recognized},
		TextLayer:   ocr.NewTextLayerReader(nil),
		Storage:     storage.NewFilesystem(root, nil),
		Catalog:     schema.NewCatalog(db),
		Store:       st,
		MaxFileSize: 1024 * 1024,
	})
	return svc, st
}

func TestNewServer(t *testing.T) {
	cfg := testConfig(t)
	service, _ := newTestService(t, cfg.TemplateDir, "")

	server, err := NewServer(cfg, service)
	if err != nil {
		t.Fatalf("NewServer() unexpected error: %v", err)
	}
	if server == nil {
		t.Fatal("server should not be nil")
	}
	if server.config != cfg {
		t.Error("server config not set correctly")
	}
	if server.service != service {
		t.Error("server service not set correctly")
	}
	if server.mcpServer == nil {
		t.Error("mcpServer should be initialized")
	}

	if _, err := NewServer(cfg, nil); err == nil {
		t.Error("NewServer() should reject a nil service")
	}
}

func TestServer_HandleExtractDocument(t *testing.T) {
	cfg := testConfig(t)

	// Place a scanned document in the object store; the stub recognizer
	// supplies its text.
	docDir := filepath.Join(cfg.TemplateDir, "documents")
	if err := os.MkdirAll(docDir, 0o755); err != nil {
		t.Fatalf("failed to create bucket: %v", err)
	}
	if err := os.WriteFile(filepath.Join(docDir, "urkunde.bin"), []byte("scan"), 0o644); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}

	recognized := "Geburtsurkunde\n\nVorname des Kindes: Lena\nGeburtsdatum: 14.03.2021"
	service, _ := newTestService(t, cfg.TemplateDir, recognized)
	server, err := NewServer(cfg, service)
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}

	request := mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Arguments: map[string]interface{}{
				"document_type": "geburtsurkunde",
				"bucket":        "documents",
				"path":          "urkunde.bin",
			},
		},
	}

	result, err := server.handleExtractDocument(context.Background(), request)
	if err != nil {
		t.Fatalf("handler failed: %v", err)
	}

	resultText := extractTextFromResult(result)
	if !strings.Contains(resultText, "kind_vorname = Lena") {
		t.Errorf("expected extracted first name, got: %s", resultText)
	}
	if !strings.Contains(resultText, "2021-03-14") {
		t.Errorf("expected normalized date, got: %s", resultText)
	}
}

func TestServer_HandleMappingLifecycle(t *testing.T) {
	cfg := testConfig(t)
	service, st := newTestService(t, cfg.TemplateDir, "")
	server, err := NewServer(cfg, service)
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}
	ctx := context.Background()

	if _, err := st.UpsertAutoMappings(ctx, "geburtsurkunde", []store.AutoMapping{
		{SourceTable: "kinder", SourceField: "kind_vorname", PDFFieldName: "txt.vorname2b", Score: 90},
	}); err != nil {
		t.Fatalf("failed to seed mapping: %v", err)
	}

	// List
	listRequest := mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Arguments: map[string]interface{}{"document_type": "geburtsurkunde"},
		},
	}
	result, err := server.handleListMappings(ctx, listRequest)
	if err != nil {
		t.Fatalf("list handler failed: %v", err)
	}
	resultText := extractTextFromResult(result)
	if !strings.Contains(resultText, "kind_vorname -> txt.vorname2b") {
		t.Errorf("expected mapping in listing, got: %s", resultText)
	}

	// Manual edit
	editRequest := mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Arguments: map[string]interface{}{
				"mapping_id": float64(1),
				"notes":      "reviewed",
			},
		},
	}
	result, err = server.handleRecordManualEdit(ctx, editRequest)
	if err != nil {
		t.Fatalf("edit handler failed: %v", err)
	}
	if !strings.Contains(extractTextFromResult(result), "manually reviewed") {
		t.Error("expected manual edit confirmation")
	}

	// Deactivate
	deactivateRequest := mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Arguments: map[string]interface{}{"mapping_id": float64(1)},
		},
	}
	result, err = server.handleDeactivateMapping(ctx, deactivateRequest)
	if err != nil {
		t.Fatalf("deactivate handler failed: %v", err)
	}
	if !strings.Contains(extractTextFromResult(result), "deactivated") {
		t.Error("expected deactivation confirmation")
	}

	rows, err := st.ActiveMappings(ctx, "geburtsurkunde")
	if err != nil {
		t.Fatalf("failed to read mappings: %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("expected no active mappings, got %d", len(rows))
	}
}

func TestServer_HandleRegisterTemplate(t *testing.T) {
	cfg := testConfig(t)
	service, st := newTestService(t, cfg.TemplateDir, "")
	server, err := NewServer(cfg, service)
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}

	request := mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Arguments: map[string]interface{}{
				"document_type": "geburtsurkunde",
				"name":          "Antrag Familienleistung",
				"bucket":        "templates",
				"path":          "formulare/antrag.pdf",
				"version":       float64(2),
			},
		},
	}

	result, err := server.handleRegisterTemplate(context.Background(), request)
	if err != nil {
		t.Fatalf("handler failed: %v", err)
	}
	if !strings.Contains(extractTextFromResult(result), "v2 registered") {
		t.Error("expected registration confirmation")
	}

	tmpl, err := st.GetTemplate(context.Background(), "geburtsurkunde")
	if err != nil {
		t.Fatalf("template not stored: %v", err)
	}
	if tmpl.Version != 2 {
		t.Errorf("expected version 2, got %d", tmpl.Version)
	}
}

func TestServer_InvalidArguments(t *testing.T) {
	cfg := testConfig(t)
	service, _ := newTestService(t, cfg.TemplateDir, "")
	server, err := NewServer(cfg, service)
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}
	ctx := context.Background()

	tests := []struct {
		name    string
		handler func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error)
		args    map[string]interface{}
	}{
		{
			name:    "form_layout missing bucket",
			handler: server.handleFormLayout,
			args:    map[string]interface{}{"path": "x.pdf"},
		},
		{
			name:    "map_fields missing document_type",
			handler: server.handleMapFields,
			args:    map[string]interface{}{},
		},
		{
			name:    "extract_document missing path",
			handler: server.handleExtractDocument,
			args:    map[string]interface{}{"document_type": "geburtsurkunde", "bucket": "documents"},
		},
		{
			name:    "record_manual_edit missing id",
			handler: server.handleRecordManualEdit,
			args:    map[string]interface{}{"notes": "x"},
		},
		{
			name:    "deactivate_mapping bad id",
			handler: server.handleDeactivateMapping,
			args:    map[string]interface{}{"mapping_id": "not-a-number"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			request := mcp.CallToolRequest{
				Params: mcp.CallToolParams{Arguments: tt.args},
			}
			result, err := tt.handler(ctx, request)
			if err != nil {
				t.Fatalf("handler should return tool error, not Go error: %v", err)
			}
			if result == nil || !result.IsError {
				t.Error("expected an error result")
			}
		})
	}
}

func TestFormatMethods(t *testing.T) {
	cfg := testConfig(t)
	service, _ := newTestService(t, cfg.TemplateDir, "")
	server, err := NewServer(cfg, service)
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}

	layoutResult := &pipeline.FormLayoutResult{
		Fields: []layout.FormField{
			{Name: "txt.vorname2b", Kind: layout.FieldKindText, Page: 0, X: 50, Y: 120, Width: 160, Height: 18},
		},
		Count: 1,
	}
	formatted := server.formatFormLayoutResult("templates", "antrag.pdf", layoutResult)
	if !strings.Contains(formatted, "Fields: 1") {
		t.Error("formatted layout should contain field count")
	}
	if !strings.Contains(formatted, "txt.vorname2b") {
		t.Error("formatted layout should contain field name")
	}

	mapResult := &pipeline.MapFieldsResult{
		DocumentType: "geburtsurkunde",
		Matches: []match.FieldMatch{
			{
				SchemaField: match.SchemaField{Table: "kinder", Name: "kind_vorname"},
				Candidates: []match.Candidate{
					{
						SchemaField:   match.SchemaField{Table: "kinder", Name: "kind_vorname"},
						FormFieldName: "txt.vorname2b",
						Score:         100,
					},
				},
			},
			{SchemaField: match.SchemaField{Table: "kinder", Name: "kind_nachname"}},
		},
		Written: 1,
	}
	formatted = server.formatMapFieldsResult(mapResult)
	if !strings.Contains(formatted, "kind_vorname -> txt.vorname2b (score 100)") {
		t.Errorf("formatted matches should contain best candidate, got: %s", formatted)
	}
	if !strings.Contains(formatted, "kind_nachname: no candidate") {
		t.Error("formatted matches should report empty candidate lists")
	}

	extractResult := &pipeline.ExtractResult{
		DocumentType: "geburtsurkunde",
		Fields:       map[string]any{"kind_vorname": "Lena"},
		ModelError:   "model returned no valid object",
	}
	formatted = server.formatExtractResult(extractResult)
	if !strings.Contains(formatted, "pattern-only") {
		t.Errorf("formatted extraction should warn about failed model extraction, got: %s", formatted)
	}
	if !strings.Contains(formatted, "model returned no valid object") {
		t.Error("formatted extraction should include the model error")
	}

	info := server.formatServerInfo()
	if !strings.Contains(info, "dokmap-test v1.0.0") {
		t.Error("server info should contain name and version")
	}
	if !strings.Contains(info, "geburtsurkunde") {
		t.Error("server info should list document types")
	}
}

// Helper function to extract text from a CallToolResult
func extractTextFromResult(result *mcp.CallToolResult) string {
	if result == nil || len(result.Content) == 0 {
		return ""
	}

	for _, content := range result.Content {
		if textContent, ok := content.(mcp.TextContent); ok {
			return textContent.Text
		}
		if textContentPtr, ok := content.(*mcp.TextContent); ok {
			return textContentPtr.Text
		}
	}

	return ""
}
