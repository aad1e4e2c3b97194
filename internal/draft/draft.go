// Package draft holds the in-memory model of a content-type schema being
// edited and the controller that keeps it consistent while edits arrive.
package draft

import (
	"slices"

	"github.com/google/uuid"

	"github.com/fmteixeira/mesh-ui/internal/schema"
)

// SchemaDraft is the in-progress, not yet persisted form of a schema.
type SchemaDraft struct {
	Name         string
	Container    bool
	Description  string
	DisplayField string
	SegmentField string
	URLFields    []string

	// Fields are ordered; the order is the stored field order.
	Fields []*FieldDraft
}

// FieldDraft is one field of a draft. ID is stable for the field's lifetime
// and never part of the stored document.
type FieldDraft struct {
	ID       string
	Name     string
	Label    string
	Type     schema.FieldType
	ListType schema.FieldType
	Required bool

	// Allow holds the committed allowed values.
	Allow *AllowSet

	// Pending is the raw allow input that has not been committed as a value yet.
	Pending string

	// discarded is the raw allow input dropped by the last type change. The
	// same input submitted again stays dropped.
	discarded string
}

// newField returns an empty field with a fresh ID.
func newField() *FieldDraft {
	return &FieldDraft{
		ID:    uuid.NewString(),
		Allow: NewAllowSet(),
	}
}

// clone returns a deep copy of the field.
func (f *FieldDraft) clone() *FieldDraft {
	c := *f
	c.Allow = f.Allow.Clone()
	return &c
}

// allowCapable reports whether the field's current type can carry an allow list.
func (f *FieldDraft) allowCapable() bool {
	return schema.AllowCapable(f.Type, f.ListType)
}

// clone returns a deep copy of the draft.
func (d *SchemaDraft) clone() *SchemaDraft {
	c := *d
	c.URLFields = slices.Clone(d.URLFields)
	c.Fields = make([]*FieldDraft, len(d.Fields))
	for i, f := range d.Fields {
		c.Fields[i] = f.clone()
	}
	return &c
}

// fieldByID returns the field with the given ID and its index, or -1.
func (d *SchemaDraft) fieldByID(id string) (*FieldDraft, int) {
	for i, f := range d.Fields {
		if f.ID == id {
			return f, i
		}
	}
	return nil, -1
}

// hasFieldNamed reports whether a field with exactly this name exists.
func (d *SchemaDraft) hasFieldNamed(name string) bool {
	if name == "" {
		return false
	}
	for _, f := range d.Fields {
		if f.Name == name {
			return true
		}
	}
	return false
}

// fieldNames returns every non-empty field name in field order.
func (d *SchemaDraft) fieldNames() []string {
	names := make([]string, 0, len(d.Fields))
	for _, f := range d.Fields {
		if f.Name != "" {
			names = append(names, f.Name)
		}
	}
	return names
}

// newDraft returns an empty draft with one default field.
func newDraft() *SchemaDraft {
	return &SchemaDraft{Fields: []*FieldDraft{newField()}}
}

// hydrate builds a draft from a persisted schema document.
func hydrate(doc schema.Schema) *SchemaDraft {
	d := &SchemaDraft{
		Name:         doc.Name,
		Container:    doc.Container,
		Description:  doc.Description,
		DisplayField: doc.DisplayField,
		SegmentField: doc.SegmentField,
		URLFields:    slices.Clone(doc.URLFields),
		Fields:       make([]*FieldDraft, 0, len(doc.Fields)),
	}
	for _, sf := range doc.Fields {
		f := newField()
		f.Name = sf.Name
		f.Label = sf.Label
		f.Type = sf.Type
		f.ListType = sf.ListType
		f.Required = sf.Required
		f.Allow = NewAllowSet(sf.Allow...)
		d.Fields = append(d.Fields, f)
	}
	if len(d.Fields) == 0 {
		d.Fields = append(d.Fields, newField())
	}
	return d
}

// document serializes the draft into the persisted schema format. Empty
// optional values are omitted, and references to fields that no longer
// exist are dropped.
func (d *SchemaDraft) document() schema.Schema {
	doc := schema.Schema{
		Name:        d.Name,
		Container:   d.Container,
		Description: d.Description,
		Fields:      make([]schema.Field, 0, len(d.Fields)),
	}
	if d.hasFieldNamed(d.DisplayField) {
		doc.DisplayField = d.DisplayField
	}
	if d.hasFieldNamed(d.SegmentField) {
		doc.SegmentField = d.SegmentField
	}
	for _, u := range d.URLFields {
		if d.hasFieldNamed(u) {
			doc.URLFields = append(doc.URLFields, u)
		}
	}

	for _, f := range d.Fields {
		sf := schema.Field{
			Name:     f.Name,
			Label:    f.Label,
			Type:     f.Type,
			Required: f.Required,
		}
		if f.Type == schema.FieldTypeList {
			sf.ListType = f.ListType
		}
		if f.allowCapable() && f.Allow.Len() > 0 {
			sf.Allow = f.Allow.Values()
		}
		doc.Fields = append(doc.Fields, sf)
	}
	return doc
}
