package mcp

import (
	"context"
	"fmt"
	"log"
	"sort"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/dokmap/dokmap/internal/config"
	"github.com/dokmap/dokmap/internal/descriptions"
	"github.com/dokmap/dokmap/internal/pipeline"
	"github.com/dokmap/dokmap/internal/schema"
	"github.com/dokmap/dokmap/internal/store"
)

// Server represents the MCP server instance
type Server struct {
	config    *config.Config
	service   *pipeline.Service
	mcpServer *server.MCPServer
}

// NewServer creates a new MCP server instance
func NewServer(cfg *config.Config, service *pipeline.Service) (*Server, error) {
	if service == nil {
		return nil, fmt.Errorf("service cannot be nil")
	}

	mcpServer := server.NewMCPServer(
		cfg.ServerName,
		cfg.Version,
		server.WithToolCapabilities(false), // We don't support dynamic tool capabilities
	)

	s := &Server{
		config:    cfg,
		service:   service,
		mcpServer: mcpServer,
	}

	// Register tools
	s.registerTools()

	return s, nil
}

// registerTools registers all available MCP tools
func (s *Server) registerTools() {
	formLayoutTool := mcp.NewTool(
		"form_layout",
		mcp.WithDescription(descriptions.FormLayoutDescription),
		mcp.WithString("bucket",
			mcp.Required(),
			mcp.Description("Object storage bucket holding the PDF"),
		),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("Object path of the PDF within the bucket"),
		),
	)
	s.mcpServer.AddTool(formLayoutTool, s.handleFormLayout)

	mapFieldsTool := mcp.NewTool(
		"map_fields",
		mcp.WithDescription(descriptions.MapFieldsDescription),
		mcp.WithString("document_type",
			mcp.Required(),
			mcp.Description("Document type whose template should be mapped"),
		),
	)
	s.mcpServer.AddTool(mapFieldsTool, s.handleMapFields)

	extractDocumentTool := mcp.NewTool(
		"extract_document",
		mcp.WithDescription(descriptions.ExtractDocumentDescription),
		mcp.WithString("document_type",
			mcp.Required(),
			mcp.Description("Document type of the stored document"),
		),
		mcp.WithString("bucket",
			mcp.Required(),
			mcp.Description("Object storage bucket holding the document"),
		),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("Object path of the document within the bucket"),
		),
	)
	s.mcpServer.AddTool(extractDocumentTool, s.handleExtractDocument)

	listMappingsTool := mcp.NewTool(
		"list_mappings",
		mcp.WithDescription(descriptions.ListMappingsDescription),
		mcp.WithString("document_type",
			mcp.Description("Document type to filter by (all types if empty)"),
		),
	)
	s.mcpServer.AddTool(listMappingsTool, s.handleListMappings)

	recordManualEditTool := mcp.NewTool(
		"record_manual_edit",
		mcp.WithDescription(descriptions.RecordManualEditDescription),
		mcp.WithNumber("mapping_id",
			mcp.Required(),
			mcp.Description("ID of the mapping row"),
		),
		mcp.WithString("pdf_field_name",
			mcp.Description("New PDF field name (unchanged if empty)"),
		),
		mcp.WithString("notes",
			mcp.Description("Reviewer notes"),
		),
	)
	s.mcpServer.AddTool(recordManualEditTool, s.handleRecordManualEdit)

	deactivateMappingTool := mcp.NewTool(
		"deactivate_mapping",
		mcp.WithDescription(descriptions.DeactivateMappingDescription),
		mcp.WithNumber("mapping_id",
			mcp.Required(),
			mcp.Description("ID of the mapping row"),
		),
	)
	s.mcpServer.AddTool(deactivateMappingTool, s.handleDeactivateMapping)

	registerTemplateTool := mcp.NewTool(
		"register_template",
		mcp.WithDescription(descriptions.RegisterTemplateDescription),
		mcp.WithString("document_type",
			mcp.Required(),
			mcp.Description("Document type the template belongs to"),
		),
		mcp.WithString("name",
			mcp.Required(),
			mcp.Description("Display name of the template"),
		),
		mcp.WithString("bucket",
			mcp.Required(),
			mcp.Description("Object storage bucket holding the template PDF"),
		),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("Object path of the template PDF"),
		),
		mcp.WithNumber("version",
			mcp.Description("Template version (1 if omitted)"),
		),
	)
	s.mcpServer.AddTool(registerTemplateTool, s.handleRegisterTemplate)

	serverInfoTool := mcp.NewTool(
		"server_info",
		mcp.WithDescription(descriptions.ServerInfoDescription),
	)
	s.mcpServer.AddTool(serverInfoTool, s.handleServerInfo)
}

// Handler functions
func (s *Server) handleFormLayout(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	bucket, err := request.RequireString("bucket")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	path, err := request.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result, err := s.service.FormLayout(ctx, pipeline.FormLayoutRequest{Bucket: bucket, Path: path})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(s.formatFormLayoutResult(bucket, path, result)), nil
}

func (s *Server) handleMapFields(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	documentType, err := request.RequireString("document_type")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result, err := s.service.MapFields(ctx, pipeline.MapFieldsRequest{DocumentType: documentType})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(s.formatMapFieldsResult(result)), nil
}

func (s *Server) handleExtractDocument(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	documentType, err := request.RequireString("document_type")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	bucket, err := request.RequireString("bucket")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	path, err := request.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result, err := s.service.ExtractDocument(ctx, pipeline.ExtractRequest{
		DocumentType: documentType,
		Bucket:       bucket,
		Path:         path,
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(s.formatExtractResult(result)), nil
}

func (s *Server) handleListMappings(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	documentType := ""
	if dt, ok := args["document_type"].(string); ok {
		documentType = dt
	}

	grouped, err := s.service.ListMappings(ctx, documentType)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(s.formatMappings(grouped)), nil
}

func (s *Server) handleRecordManualEdit(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	mappingID, ok := args["mapping_id"].(float64)
	if !ok || mappingID < 1 {
		return mcp.NewToolResultError("mapping_id must be a positive number"), nil
	}

	pdfFieldName := ""
	if v, ok := args["pdf_field_name"].(string); ok {
		pdfFieldName = v
	}
	notes := ""
	if v, ok := args["notes"].(string); ok {
		notes = v
	}

	if err := s.service.RecordManualEdit(ctx, uint(mappingID), pdfFieldName, notes); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf("Mapping %d recorded as manually reviewed", uint(mappingID))), nil
}

func (s *Server) handleDeactivateMapping(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	mappingID, ok := args["mapping_id"].(float64)
	if !ok || mappingID < 1 {
		return mcp.NewToolResultError("mapping_id must be a positive number"), nil
	}

	if err := s.service.DeactivateMapping(ctx, uint(mappingID)); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf("Mapping %d deactivated", uint(mappingID))), nil
}

func (s *Server) handleRegisterTemplate(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	documentType, err := request.RequireString("document_type")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	name, err := request.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	bucket, err := request.RequireString("bucket")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	path, err := request.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	args := request.GetArguments()
	version := 1
	if v, ok := args["version"].(float64); ok && v > 0 {
		version = int(v)
	}

	tmpl := &store.FormTemplate{
		DocumentType: documentType,
		Name:         name,
		Bucket:       bucket,
		Path:         path,
		Version:      version,
	}
	if err := s.service.RegisterTemplate(ctx, tmpl); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf("Template %s v%d registered for %s", name, version, documentType)), nil
}

func (s *Server) handleServerInfo(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(s.formatServerInfo()), nil
}

// Formatting methods
func (s *Server) formatFormLayoutResult(bucket, path string, result *pipeline.FormLayoutResult) string {
	text := fmt.Sprintf("Form layout of %s/%s\n", bucket, path)
	text += fmt.Sprintf("Fields: %d\n\nReading order:\n", result.Count)

	for i, field := range result.Fields {
		text += fmt.Sprintf("%d. %s (%s) page %d at (%d,%d) %dx%d\n",
			i+1, field.Name, field.Kind, field.Page, field.X, field.Y, field.Width, field.Height)
	}

	return text
}

func (s *Server) formatMapFieldsResult(result *pipeline.MapFieldsResult) string {
	text := fmt.Sprintf("Field mapping for document type: %s\n", result.DocumentType)
	text += fmt.Sprintf("Schema fields matched: %d\n", len(result.Matches))
	text += fmt.Sprintf("Auto-accepted mappings written: %d\n\nProposals:\n", result.Written)

	for _, m := range result.Matches {
		best := m.BestMatch()
		if best == nil {
			text += fmt.Sprintf("• %s: no candidate\n", m.SchemaField.Name)
			continue
		}
		text += fmt.Sprintf("• %s -> %s (score %.0f)", m.SchemaField.Name, best.FormFieldName, best.Score)
		if len(m.Candidates) > 1 {
			text += fmt.Sprintf(", %d alternatives", len(m.Candidates)-1)
		}
		text += "\n"
	}

	return text
}

func (s *Server) formatExtractResult(result *pipeline.ExtractResult) string {
	text := fmt.Sprintf("Extraction result for document type: %s\n", result.DocumentType)
	text += fmt.Sprintf("Recognized text length: %d characters\n", result.TextLength)
	text += fmt.Sprintf("Fields extracted: %d\n", len(result.Fields))
	if result.ModelError != "" {
		text += fmt.Sprintf("Warning: model extraction failed, fields are pattern-only (%s)\n", result.ModelError)
	}

	if len(result.Fields) > 0 {
		names := make([]string, 0, len(result.Fields))
		for name := range result.Fields {
			names = append(names, name)
		}
		sort.Strings(names)

		text += "\nValues:\n"
		for _, name := range names {
			text += fmt.Sprintf("• %s = %v", name, result.Fields[name])
			if conf, ok := result.Confidence[name]; ok {
				text += fmt.Sprintf(" (confidence %.0f)", conf)
			}
			if prov, ok := result.Provenance[name]; ok && prov != "" {
				text += fmt.Sprintf("\n  from: %s", prov)
			}
			text += "\n"
		}
	}

	return text
}

func (s *Server) formatMappings(grouped map[string][]store.FieldMapping) string {
	if len(grouped) == 0 {
		return "No active field mappings"
	}

	types := make([]string, 0, len(grouped))
	for dt := range grouped {
		types = append(types, dt)
	}
	sort.Strings(types)

	text := ""
	for _, dt := range types {
		rows := grouped[dt]
		text += fmt.Sprintf("%s (%d mappings):\n", dt, len(rows))
		for _, row := range rows {
			text += fmt.Sprintf("• #%d %s.%s -> %s (score %.0f, %s)\n",
				row.ID, row.SourceTable, row.SourceField, row.PDFFieldName, row.ConfidenceScore, row.Status)
		}
		text += "\n"
	}

	return text
}

func (s *Server) formatServerInfo() string {
	text := fmt.Sprintf("%s v%s - Document Mapping Server\n", s.config.ServerName, s.config.Version)
	text += fmt.Sprintf("Object store: %s\n", s.config.TemplateDir)
	text += fmt.Sprintf("Database: %s\n", s.config.DatabasePath)
	text += fmt.Sprintf("Max file size: %d MB\n\n", s.config.MaxFileSize/(1024*1024))

	text += "Supported document types:\n"
	types := make([]string, 0, len(schema.DocumentTables))
	for dt := range schema.DocumentTables {
		types = append(types, dt)
	}
	sort.Strings(types)
	for _, dt := range types {
		text += fmt.Sprintf("• %s -> table %s\n", dt, schema.DocumentTables[dt])
	}

	text += "\nTypical workflow:\n"
	text += "1. register_template to bind a form PDF to a document type\n"
	text += "2. map_fields to reconcile schema fields against the form\n"
	text += "3. list_mappings / record_manual_edit / deactivate_mapping to review\n"
	text += "4. extract_document to pull field values out of uploaded documents\n"

	return text
}

// Run starts the MCP server in the configured mode
func (s *Server) Run(ctx context.Context) error {
	if s.config.IsServerMode() {
		return s.runServerMode(ctx)
	}
	return s.runStdioMode(ctx)
}

// runStdioMode runs the server in stdio mode
func (s *Server) runStdioMode(_ context.Context) error {
	if s.config.IsDebug() {
		log.Printf("Starting document mapping MCP server in stdio mode")
		log.Printf("Object store: %s", s.config.TemplateDir)
	}

	if err := server.ServeStdio(s.mcpServer); err != nil {
		return fmt.Errorf("failed to serve stdio: %w", err)
	}
	return nil
}

// runServerMode runs the server in HTTP server mode
func (s *Server) runServerMode(ctx context.Context) error {
	// The mark3labs transport currently only serves stdio here.
	log.Printf("Server mode not yet implemented with mark3labs/mcp-go")
	log.Printf("Falling back to stdio mode")
	return s.runStdioMode(ctx)
}
