package descriptions

// Comprehensive tool descriptions with practical examples and use cases

const (
	// Layout & Mapping Tools
	FormLayoutDescription = `Extract the fillable form fields of a PDF in reading order, with page numbers and geometry.

**When to use:** Need to see which fields a form template exposes before mapping or filling it.

**Why it's useful:** Walks the PDF's AcroForm catalog and returns every widget with its kind, page and position, sorted the way a human reads the page.

**Examples:**
• Inspect a new template: "Show me the fields of templates/geburtsurkunde_v2.pdf"
• Debug a mapping: "Which page is txt.kind_geburtsdatum on?"
• Audit a form revision: "Did the new Meldebescheinigung form rename any fields?"

**Common workflows:**
1. Template Onboarding: form_layout → review field names → register_template → map_fields
2. Mapping Review: list_mappings → form_layout → record_manual_edit

**Best practices:** Run this before map_fields whenever a form revision changes; renamed fields surface here first.`

	MapFieldsDescription = `Match database schema fields against the registered form template of a document type and persist the accepted mappings.

**When to use:** A new template was registered, or the schema gained columns, and the field mappings need to be (re)computed.

**Why it's useful:** Normalizes both sides (prefixes, umlauts, separators) and scores candidates by edit-distance similarity, so txt.KindGeburtsdatum still finds kind_geburtsdatum. Accepted matches are written to the mapping store; manually reviewed rows are never overwritten.

**Examples:**
• Bootstrap a document type: "Map the geburtsurkunde schema onto its template"
• Refresh after a schema migration: "Re-run mapping for einkommensnachweis"

**Common workflows:**
1. Onboarding: register_template → map_fields → list_mappings → record_manual_edit for the stragglers
2. Schema Change: migrate columns → map_fields → review new rows

**Best practices:** Review candidates below the acceptance threshold by hand; the tool lists alternatives for every unmatched field.`

	ExtractDocumentDescription = `Extract schema field values from a stored document using pattern rules and model assistance.

**When to use:** A citizen uploaded a document and its data needs to land in the right database columns.

**Why it's useful:** Combines deterministic regex extraction (dates, amounts, names) with schema-constrained model extraction, and reconciles the two so the deterministic value wins on disagreement. Output is restricted to real schema columns, with per-field confidence and provenance.

**Examples:**
• Process an upload: "Extract uploads/2024/urkunde_meier.pdf as a geburtsurkunde"
• Income check: "Pull the gross income from this Einkommensnachweis"

**Common workflows:**
1. Intake: extract_document → review low-confidence fields → write to case record
2. Scanned Documents: extract_document (falls back to the recognition service when the PDF has no text layer)

**Best practices:** Trust pattern-provenance fields more than model-provenance ones; fields the model could not ground are simply absent, never guessed.`

	ListMappingsDescription = `List the active field mappings, optionally filtered by document type.

**When to use:** Need to audit which PDF form fields feed which schema columns.

**Why it's useful:** Shows every active mapping with its score and review status, grouped by document type, so stale or suspicious rows stand out.

**Examples:**
• Full audit: "Show all mappings"
• Focused check: "Show the meldebescheinigung mappings"

**Best practices:** Mappings with low scores and auto status are the first candidates for record_manual_edit.`

	RecordManualEditDescription = `Mark a field mapping as manually reviewed, optionally retargeting it to a different PDF field.

**When to use:** The automatic match picked the wrong field, or a reviewer confirmed a borderline one.

**Why it's useful:** Manual rows are sticky. Later automatic mapping runs will not overwrite them, so one review survives any number of re-runs.

**Examples:**
• Fix a wrong target: "Point mapping 17 at txt.vorname_kind instead"
• Confirm a match: "Mark mapping 23 as reviewed, note 'checked against v2 form'"

**Best practices:** Always leave a note; the next reviewer will want to know why the row was pinned.`

	DeactivateMappingDescription = `Deactivate a field mapping without deleting it.

**When to use:** A form revision dropped a field, or a mapping should stop being applied while keeping its history.

**Why it's useful:** The row is retained for audit; extraction and listing simply skip it.

**Best practices:** Prefer deactivation over retargeting when the form field is gone entirely.`

	RegisterTemplateDescription = `Register or update the form template PDF for a document type.

**When to use:** A new blank form arrives from the authority, or an existing one is revised.

**Why it's useful:** One active template per document type, versioned; map_fields and extraction resolve the template through this registry.

**Examples:**
• New revision: "Register templates/geburtsurkunde_v3.pdf as geburtsurkunde version 3"

**Common workflows:**
1. Form Revision: register_template → form_layout → map_fields → review

**Best practices:** Bump the version on every revision; re-registering the same type replaces the previous entry.`

	ServerInfoDescription = `Get server information, supported document types and usage guidance.

**When to use:** First contact with the server, or to check which document types and schema tables are configured.

**Why it's useful:** Lists the supported document types with their target tables and walks through the template-to-extraction workflow.`
)
