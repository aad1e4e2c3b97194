package draft

import (
	"slices"

	"github.com/fmteixeira/mesh-ui/internal/schema"
)

// Snapshot is the raw form state of a draft as an editor submits it. Field
// order is significant; Allow carries the pending, uncommitted allow input.
type Snapshot struct {
	Name         string          `json:"name"`
	Container    bool            `json:"container"`
	Description  string          `json:"description"`
	DisplayField string          `json:"displayField"`
	SegmentField string          `json:"segmentField"`
	URLFields    []string        `json:"urlFields"`
	Fields       []FieldSnapshot `json:"fields"`
}

// FieldSnapshot is the raw form state of one field.
type FieldSnapshot struct {
	Name     string           `json:"name"`
	Label    string           `json:"label"`
	Type     schema.FieldType `json:"type"`
	ListType schema.FieldType `json:"listType"`
	Required bool             `json:"required"`
	Allow    string           `json:"allow"`
}

// snapshot renders the draft back into form state.
func (d *SchemaDraft) snapshot() Snapshot {
	s := Snapshot{
		Name:         d.Name,
		Container:    d.Container,
		Description:  d.Description,
		DisplayField: d.DisplayField,
		SegmentField: d.SegmentField,
		URLFields:    slices.Clone(d.URLFields),
		Fields:       make([]FieldSnapshot, 0, len(d.Fields)),
	}
	if s.URLFields == nil {
		s.URLFields = []string{}
	}
	for _, f := range d.Fields {
		s.Fields = append(s.Fields, FieldSnapshot{
			Name:     f.Name,
			Label:    f.Label,
			Type:     f.Type,
			ListType: f.ListType,
			Required: f.Required,
			Allow:    f.Pending,
		})
	}
	return s
}

// fromSnapshot builds the next draft from form state. Fields are matched to
// cur by position: a field at an existing index keeps that field's ID and
// allow set, additional fields are new, and fields past the end of the
// snapshot are dropped.
func fromSnapshot(cur *SchemaDraft, s Snapshot) *SchemaDraft {
	next := &SchemaDraft{
		Name:         s.Name,
		Container:    s.Container,
		Description:  s.Description,
		DisplayField: s.DisplayField,
		SegmentField: s.SegmentField,
		Fields:       make([]*FieldDraft, 0, len(s.Fields)),
	}
	for _, u := range s.URLFields {
		if u != "" && !slices.Contains(next.URLFields, u) {
			next.URLFields = append(next.URLFields, u)
		}
	}
	for i, fs := range s.Fields {
		var f *FieldDraft
		if i < len(cur.Fields) {
			f = cur.Fields[i]
		} else {
			f = newField()
		}
		f.Name = fs.Name
		f.Label = fs.Label
		f.Type = fs.Type
		f.ListType = fs.ListType
		f.Required = fs.Required
		f.Pending = fs.Allow
		next.Fields = append(next.Fields, f)
	}
	return next
}
