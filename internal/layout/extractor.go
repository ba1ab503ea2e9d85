package layout

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"math"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// defaultPageHeight is used when a page carries no resolvable MediaBox (A4).
const defaultPageHeight = 842.0

// Extractor parses a fillable PDF's AcroForm into a page-ordered FormField
// catalog. A single corrupt widget must not block the remaining fields, so
// geometry failures degrade to a zeroed fallback record.
type Extractor struct {
	logger *slog.Logger
}

// NewExtractor creates a layout extractor. A nil logger disables logging.
func NewExtractor(logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Extractor{logger: logger}
}

// ExtractFromBytes parses the given PDF bytes and returns its form fields in
// reading order.
func (e *Extractor) ExtractFromBytes(data []byte) ([]FormField, error) {
	return e.ExtractFromReader(bytes.NewReader(data))
}

// ExtractFromReader parses a PDF from an io.ReadSeeker and returns its form
// fields in reading order.
func (e *Extractor) ExtractFromReader(reader io.ReadSeeker) ([]FormField, error) {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	ctx, err := api.ReadContext(reader, conf)
	if err != nil {
		return nil, fmt.Errorf("failed to read PDF context: %w", err)
	}
	if err := ctx.EnsurePageCount(); err != nil {
		return nil, fmt.Errorf("failed to ensure page count: %w", err)
	}

	fields, err := e.extractFromContext(ctx)
	if err != nil {
		return nil, err
	}

	SortReadingOrder(fields)
	return fields, nil
}

// PageCount returns the number of pages of the given PDF.
func (e *Extractor) PageCount(data []byte) (int, error) {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	ctx, err := api.ReadContext(bytes.NewReader(data), conf)
	if err != nil {
		return 0, fmt.Errorf("failed to read PDF context: %w", err)
	}
	if err := ctx.EnsurePageCount(); err != nil {
		return 0, fmt.Errorf("failed to ensure page count: %w", err)
	}
	return ctx.PageCount, nil
}

// pageIndex resolves widget page references to zero-based page numbers and
// provides each page's height for the coordinate flip.
type pageIndex struct {
	pageByObjNr  map[int]int
	heightByPage map[int]float64
}

func (pi *pageIndex) lookup(ref types.Object) (int, bool) {
	indRef, ok := ref.(types.IndirectRef)
	if !ok {
		return 0, false
	}
	page, ok := pi.pageByObjNr[indRef.ObjectNumber.Value()]
	return page, ok
}

func (pi *pageIndex) height(page int) float64 {
	if h, ok := pi.heightByPage[page]; ok && h > 0 {
		return h
	}
	return defaultPageHeight
}

func (e *Extractor) buildPageIndex(ctx *model.Context) *pageIndex {
	pi := &pageIndex{
		pageByObjNr:  make(map[int]int, ctx.PageCount),
		heightByPage: make(map[int]float64, ctx.PageCount),
	}

	for pageNr := 1; pageNr <= ctx.PageCount; pageNr++ {
		_, indRef, inhPAttrs, err := ctx.PageDict(pageNr, false)
		if err != nil {
			e.logger.Warn("failed to resolve page dict", "page", pageNr, "error", err)
			continue
		}
		page := pageNr - 1
		if indRef != nil {
			pi.pageByObjNr[indRef.ObjectNumber.Value()] = page
		}
		if inhPAttrs != nil && inhPAttrs.MediaBox != nil {
			pi.heightByPage[page] = inhPAttrs.MediaBox.Height()
		}
	}

	return pi
}

func (e *Extractor) extractFromContext(ctx *model.Context) ([]FormField, error) {
	var fields []FormField

	rootDict, err := ctx.Catalog()
	if err != nil {
		return nil, fmt.Errorf("failed to get catalog: %w", err)
	}

	acroFormObj, found := rootDict.Find("AcroForm")
	if !found {
		e.logger.Debug("no AcroForm dictionary found in document")
		return fields, nil
	}

	acroFormDict, err := ctx.DereferenceDict(acroFormObj)
	if err != nil {
		return nil, fmt.Errorf("failed to dereference AcroForm: %w", err)
	}
	if acroFormDict == nil {
		return fields, nil
	}

	fieldsObj, found := acroFormDict.Find("Fields")
	if !found {
		e.logger.Debug("no Fields array found in AcroForm")
		return fields, nil
	}

	fieldsArray, err := ctx.DereferenceArray(fieldsObj)
	if err != nil {
		return nil, fmt.Errorf("failed to dereference Fields array: %w", err)
	}

	pages := e.buildPageIndex(ctx)

	for i, fieldRef := range fieldsArray {
		widgets, err := e.processField(ctx, pages, fieldRef, i)
		if err != nil {
			e.logger.Warn("skipping unreadable field", "index", i, "error", err)
			continue
		}
		fields = append(fields, widgets...)
	}

	return fields, nil
}

// processField turns one entry of the AcroForm Fields array into FormField
// records, one per widget annotation.
func (e *Extractor) processField(ctx *model.Context, pages *pageIndex, fieldObj types.Object, index int) ([]FormField, error) {
	fieldDict, err := ctx.DereferenceDict(fieldObj)
	if err != nil {
		return nil, fmt.Errorf("failed to dereference field: %w", err)
	}
	if fieldDict == nil {
		return nil, nil
	}

	name := e.fieldName(ctx, fieldDict)
	if name == "" {
		name = fmt.Sprintf("field_%d", index)
	}
	kind := e.fieldKind(ctx, fieldDict)

	var widgets []FormField

	// Merged widget: the field dict carries its own Rect.
	if _, found := fieldDict.Find("Rect"); found {
		widgets = append(widgets, e.widgetRecord(ctx, pages, fieldDict, name, kind))
	}

	// Separate widget annotations under Kids. Kids that are themselves named
	// child fields get their own Fields-array-independent treatment here too:
	// every widget yields one geometry instance sharing the field's name.
	if kidsObj, found := fieldDict.Find("Kids"); found {
		if kidsArray, err := ctx.DereferenceArray(kidsObj); err == nil {
			for _, kidRef := range kidsArray {
				kidDict, err := ctx.DereferenceDict(kidRef)
				if err != nil || kidDict == nil {
					e.logger.Warn("unreadable widget annotation", "field", name, "error", err)
					widgets = append(widgets, fallbackRecord(name, kind))
					continue
				}
				widgets = append(widgets, e.widgetRecord(ctx, pages, kidDict, name, kind))
			}
		}
	}

	if len(widgets) == 0 {
		// No widget geometry anywhere: keep the field with fallback geometry
		// rather than dropping it.
		widgets = append(widgets, fallbackRecord(name, kind))
	}

	return widgets, nil
}

func (e *Extractor) fieldName(ctx *model.Context, fieldDict types.Dict) string {
	nameObj, found := fieldDict.Find("T")
	if !found {
		return ""
	}
	name, err := ctx.DereferenceStringOrHexLiteral(nameObj, model.V10, nil)
	if err != nil {
		return ""
	}
	return name
}

// fieldKind determines the field kind from the FT entry, walking up the
// Parent chain for inherited types.
func (e *Extractor) fieldKind(ctx *model.Context, fieldDict types.Dict) FieldKind {
	ftObj, found := fieldDict.Find("FT")
	if !found {
		if parentObj, found := fieldDict.Find("Parent"); found {
			if parentDict, err := ctx.DereferenceDict(parentObj); err == nil && parentDict != nil {
				return e.fieldKind(ctx, parentDict)
			}
		}
		return FieldKindOther
	}

	ftName, err := ctx.DereferenceName(ftObj, model.V10, nil)
	if err != nil {
		return FieldKindOther
	}

	switch ftName {
	case "Tx":
		return FieldKindText
	case "Btn":
		return FieldKindCheckBox
	case "Ch":
		return FieldKindDropdown
	default:
		return FieldKindOther
	}
}

// widgetRecord reads one widget annotation's Rect and page reference and
// converts to top-left-origin integer geometry. Unreadable geometry yields
// the zeroed fallback record.
func (e *Extractor) widgetRecord(ctx *model.Context, pages *pageIndex, widgetDict types.Dict, name string, kind FieldKind) FormField {
	rectObj, found := widgetDict.Find("Rect")
	if !found {
		return fallbackRecord(name, kind)
	}

	rectArray, err := ctx.DereferenceArray(rectObj)
	if err != nil || len(rectArray) != 4 {
		e.logger.Warn("unreadable widget rect", "field", name, "error", err)
		return fallbackRecord(name, kind)
	}

	coords := make([]float64, 4)
	for i, coord := range rectArray {
		f, err := ctx.DereferenceNumber(coord)
		if err != nil {
			e.logger.Warn("unreadable rect coordinate", "field", name, "error", err)
			return fallbackRecord(name, kind)
		}
		coords[i] = f
	}

	page := 0
	if pageObj, found := widgetDict.Find("P"); found {
		if p, ok := pages.lookup(pageObj); ok {
			page = p
		}
	}

	llx, lly := math.Min(coords[0], coords[2]), math.Min(coords[1], coords[3])
	width := math.Abs(coords[2] - coords[0])
	height := math.Abs(coords[3] - coords[1])

	return FormField{
		Name:   name,
		Kind:   kind,
		Page:   page,
		X:      int(math.Round(llx)),
		Y:      int(math.Round(pages.height(page) - lly - height)),
		Width:  int(math.Round(width)),
		Height: int(math.Round(height)),
	}
}

func fallbackRecord(name string, kind FieldKind) FormField {
	return FormField{Name: name, Kind: kind}
}
