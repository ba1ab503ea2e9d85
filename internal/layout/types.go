package layout

import "sort"

// FieldKind classifies a form field by its AcroForm field type.
type FieldKind string

const (
	FieldKindText     FieldKind = "text"
	FieldKindCheckBox FieldKind = "checkbox"
	FieldKindDropdown FieldKind = "dropdown"
	FieldKindOther    FieldKind = "other"
)

// FormField is one widget placement of a named AcroForm field. Geometry is
// integer, top-left-origin page coordinates. A field with several widgets
// yields several FormField records sharing the same name; the first widget is
// authoritative when only the name matters downstream.
type FormField struct {
	Name   string    `json:"name"`
	Kind   FieldKind `json:"kind"`
	Page   int       `json:"page"`
	X      int       `json:"x"`
	Y      int       `json:"y"`
	Width  int       `json:"width"`
	Height int       `json:"height"`
}

// rowTolerance is the vertical band within which two fields count as the
// same visual row and are ordered purely by x.
const rowTolerance = 10

// SortReadingOrder sorts fields in place into human reading order:
// ascending by page, then by y with a tolerance band, then by x. The sort is
// stable, so fields that compare equal keep their original catalog order.
func SortReadingOrder(fields []FormField) {
	sort.SliceStable(fields, func(i, j int) bool {
		a, b := fields[i], fields[j]
		if a.Page != b.Page {
			return a.Page < b.Page
		}
		dy := a.Y - b.Y
		if dy < -rowTolerance || dy > rowTolerance {
			return a.Y < b.Y
		}
		return a.X < b.X
	})
}

// Names returns the distinct field names in catalog order. Fields spanning
// multiple widgets appear once, at their first widget's position.
func Names(fields []FormField) []string {
	seen := make(map[string]struct{}, len(fields))
	names := make([]string, 0, len(fields))
	for _, f := range fields {
		if _, ok := seen[f.Name]; ok {
			continue
		}
		seen[f.Name] = struct{}{}
		names = append(names, f.Name)
	}
	return names
}
