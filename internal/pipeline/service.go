// Package pipeline orchestrates the document mapping components: layout
// extraction, schema matching, text recognition, field extraction and
// mapping persistence.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dokmap/dokmap/internal/extract"
	"github.com/dokmap/dokmap/internal/layout"
	"github.com/dokmap/dokmap/internal/llm"
	"github.com/dokmap/dokmap/internal/match"
	"github.com/dokmap/dokmap/internal/ocr"
	perrors "github.com/dokmap/dokmap/internal/pipeline/errors"
	"github.com/dokmap/dokmap/internal/schema"
	"github.com/dokmap/dokmap/internal/storage"
	"github.com/dokmap/dokmap/internal/store"
)

// Service wires the pipeline components together and exposes the operations
// the serving layer calls.
type Service struct {
	layout      *layout.Extractor
	matcher     *match.Matcher
	patterns    *extract.PatternExtractor
	model       *llm.Extractor
	recognizer  ocr.Recognizer
	textLayer   *ocr.TextLayerReader
	storage     storage.Downloader
	catalog     *schema.Catalog
	store       *store.Store
	maxFileSize int64
	logger      *slog.Logger
}

// Deps carries the collaborators a Service is built from. The model
// extractor, external recognizer and text-layer reader are optional: without
// a model the pipeline runs pattern-only, without a recognizer it reads
// native text layers only, and without a text-layer reader every document
// goes through the recognizer.
type Deps struct {
	Layout      *layout.Extractor
	Matcher     *match.Matcher
	Patterns    *extract.PatternExtractor
	Model       *llm.Extractor
	Recognizer  ocr.Recognizer
	TextLayer   *ocr.TextLayerReader
	Storage     storage.Downloader
	Catalog     *schema.Catalog
	Store       *store.Store
	MaxFileSize int64
	Logger      *slog.Logger
}

// NewService creates the pipeline service.
func NewService(deps Deps) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Service{
		layout:      deps.Layout,
		matcher:     deps.Matcher,
		patterns:    deps.Patterns,
		model:       deps.Model,
		recognizer:  deps.Recognizer,
		textLayer:   deps.TextLayer,
		storage:     deps.Storage,
		catalog:     deps.Catalog,
		store:       deps.Store,
		maxFileSize: deps.MaxFileSize,
		logger:      logger,
	}
}

// FormLayoutRequest identifies a PDF in object storage.
type FormLayoutRequest struct {
	Bucket string `json:"bucket"`
	Path   string `json:"path"`
}

// FormLayoutResult is the ordered field list of one PDF form.
type FormLayoutResult struct {
	Fields []layout.FormField `json:"fields"`
	Count  int                `json:"count"`
}

// FormLayout downloads a PDF and extracts its form fields in reading order.
func (s *Service) FormLayout(ctx context.Context, req FormLayoutRequest) (*FormLayoutResult, error) {
	data, err := s.download(ctx, req.Bucket, req.Path)
	if err != nil {
		return nil, err
	}

	fields, err := s.layout.ExtractFromBytes(data)
	if err != nil {
		return nil, fmt.Errorf("failed to extract layout of %s/%s: %w", req.Bucket, req.Path, err)
	}

	return &FormLayoutResult{Fields: fields, Count: len(fields)}, nil
}

// MapFieldsRequest names the document type whose registered form template
// should be reconciled against the schema.
type MapFieldsRequest struct {
	DocumentType string `json:"document_type"`
}

// MapFieldsResult reports the matcher's proposals and how many of them were
// auto-accepted into the store.
type MapFieldsResult struct {
	DocumentType string             `json:"document_type"`
	Matches      []match.FieldMatch `json:"matches"`
	Written      int                `json:"written"`
}

// MapFields runs the full reconciliation for one document type: template
// download, layout extraction, schema enumeration, similarity matching and
// persistence of accepted mappings.
func (s *Service) MapFields(ctx context.Context, req MapFieldsRequest) (*MapFieldsResult, error) {
	tmpl, err := s.store.GetTemplate(ctx, req.DocumentType)
	if err != nil {
		return nil, err
	}

	data, err := s.download(ctx, tmpl.Bucket, tmpl.Path)
	if err != nil {
		return nil, err
	}

	formFields, err := s.layout.ExtractFromBytes(data)
	if err != nil {
		return nil, fmt.Errorf("failed to extract layout of template %s: %w", tmpl.Name, err)
	}

	table, err := s.catalog.TableFor(req.DocumentType)
	if err != nil {
		return nil, err
	}
	schemaFields, err := s.catalog.Fields(table)
	if err != nil {
		return nil, err
	}

	matches := s.matcher.MatchFields(schemaFields, layout.Names(formFields))

	mappings := autoMappings(s.matcher.Accepted(matches))

	written, err := s.store.UpsertAutoMappings(ctx, req.DocumentType, mappings)
	if err != nil {
		return nil, err
	}

	s.logger.Info("field mapping complete",
		"document_type", req.DocumentType,
		"form_fields", len(formFields),
		"schema_fields", len(schemaFields),
		"written", written)

	return &MapFieldsResult{
		DocumentType: req.DocumentType,
		Matches:      matches,
		Written:      written,
	}, nil
}

// ExtractRequest identifies a source document and its type.
type ExtractRequest struct {
	DocumentType string `json:"document_type"`
	Bucket       string `json:"bucket"`
	Path         string `json:"path"`
}

// ExtractResult is the combined extraction output for one document.
// ModelError is set when model-assisted extraction failed after exhausting
// its retries and the fields are pattern-only.
type ExtractResult struct {
	DocumentType string             `json:"document_type"`
	Fields       map[string]any     `json:"fields"`
	Confidence   map[string]float64 `json:"confidence"`
	Provenance   map[string]string  `json:"provenance"`
	TextLength   int                `json:"text_length"`
	ModelError   string             `json:"model_error,omitempty"`
}

// ExtractDocument downloads a document, obtains its recognized text and runs
// both extractors over it. Pattern results take precedence where the two
// disagree; everything is filtered against the target table's columns
// before it is returned.
func (s *Service) ExtractDocument(ctx context.Context, req ExtractRequest) (*ExtractResult, error) {
	table, err := s.catalog.TableFor(req.DocumentType)
	if err != nil {
		return nil, err
	}
	columns, err := s.catalog.Columns(table)
	if err != nil {
		return nil, err
	}

	data, err := s.download(ctx, req.Bucket, req.Path)
	if err != nil {
		return nil, err
	}

	text, err := s.recognizeText(ctx, data)
	if err != nil {
		return nil, err
	}

	patternResult := s.patterns.Extract(req.DocumentType, text)

	combined := patternResult
	var modelError string
	if s.model != nil {
		modelColumns := make([]llm.Column, 0, len(columns))
		for _, col := range columns {
			modelColumns = append(modelColumns, llm.Column{
				Name:        col.Name,
				Type:        col.Type,
				Description: col.Description,
			})
		}

		modelResult, err := s.model.Extract(ctx, req.DocumentType, modelColumns, text)
		if err != nil {
			// A failed model call degrades to pattern-only extraction
			// unless the caller is gone.
			if ctx.Err() != nil {
				return nil, err
			}
			modelError = err.Error()
			s.logger.Warn("model extraction failed, using pattern results only",
				"document_type", req.DocumentType, "error", err)
		} else {
			combined = extract.Merge(patternResult, modelResult)
		}
	}

	allowed := make(map[string]struct{}, len(columns))
	for _, col := range columns {
		allowed[col.Name] = struct{}{}
	}
	filtered := extract.NewResult()
	for field, value := range combined.Fields {
		if _, ok := allowed[field]; !ok {
			continue
		}
		filtered.Set(field, value, combined.Confidence[field], combined.Provenance[field])
	}

	s.logger.Info("document extracted",
		"document_type", req.DocumentType,
		"fields", len(filtered.Fields),
		"text_length", len(text))

	return &ExtractResult{
		DocumentType: req.DocumentType,
		Fields:       filtered.Fields,
		Confidence:   filtered.Confidence,
		Provenance:   filtered.Provenance,
		TextLength:   len(text),
		ModelError:   modelError,
	}, nil
}

// ListMappings returns the active mappings for a document type, or all
// active mappings grouped by type when documentType is empty.
func (s *Service) ListMappings(ctx context.Context, documentType string) (map[string][]store.FieldMapping, error) {
	if documentType != "" {
		rows, err := s.store.ActiveMappings(ctx, documentType)
		if err != nil {
			return nil, err
		}
		return map[string][]store.FieldMapping{documentType: rows}, nil
	}
	return s.store.ActiveMappingsByType(ctx)
}

// RecordManualEdit marks a mapping as human-reviewed.
func (s *Service) RecordManualEdit(ctx context.Context, id uint, pdfFieldName, notes string) error {
	return s.store.RecordManualEdit(ctx, id, pdfFieldName, notes)
}

// DeactivateMapping soft-deletes a mapping.
func (s *Service) DeactivateMapping(ctx context.Context, id uint) error {
	return s.store.Deactivate(ctx, id)
}

// RegisterTemplate records which stored PDF serves as the form template for
// a document type. Page and field counts are filled in from the template PDF
// when it is readable; registration succeeds either way.
func (s *Service) RegisterTemplate(ctx context.Context, tmpl *store.FormTemplate) error {
	if data, err := s.download(ctx, tmpl.Bucket, tmpl.Path); err != nil {
		s.logger.Warn("template not readable at registration", "document_type", tmpl.DocumentType, "error", err)
	} else {
		if fields, err := s.layout.ExtractFromBytes(data); err == nil {
			tmpl.FieldCount = len(fields)
		}
		if pages, err := s.layout.PageCount(data); err == nil {
			tmpl.PageCount = pages
		}
	}
	return s.store.SaveTemplate(ctx, tmpl)
}

// autoMappings converts accepted matcher candidates into store rows.
func autoMappings(accepted []match.Candidate) []store.AutoMapping {
	mappings := make([]store.AutoMapping, 0, len(accepted))
	for _, c := range accepted {
		mappings = append(mappings, store.AutoMapping{
			SourceTable:  c.SchemaField.Table,
			SourceField:  c.SchemaField.Name,
			PDFFieldName: c.FormFieldName,
			Score:        c.Score,
		})
	}
	return mappings
}

// download fetches an object and enforces the size limit.
func (s *Service) download(ctx context.Context, bucket, path string) ([]byte, error) {
	data, err := s.storage.Download(ctx, bucket, path)
	if err != nil {
		return nil, err
	}
	if s.maxFileSize > 0 && int64(len(data)) > s.maxFileSize {
		return nil, perrors.New(perrors.KindMalformedInput,
			fmt.Sprintf("object %s/%s exceeds size limit (%d > %d bytes)", bucket, path, len(data), s.maxFileSize))
	}
	return data, nil
}

// recognizeText prefers a native text layer and falls back to the external
// recognition service for scanned documents.
func (s *Service) recognizeText(ctx context.Context, data []byte) (string, error) {
	if s.textLayer != nil && ocr.HasTextLayer(data) {
		text, err := s.textLayer.Recognize(ctx, data)
		if err == nil {
			return text, nil
		}
		s.logger.Warn("text layer extraction failed", "error", err)
	}

	if s.recognizer == nil {
		return "", perrors.New(perrors.KindMalformedInput,
			"document has no text layer and no recognition service is configured")
	}
	return s.recognizer.Recognize(ctx, data)
}
