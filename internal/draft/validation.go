package draft

import (
	"strings"

	"github.com/fmteixeira/mesh-ui/internal/schema"
)

// Attribute names a validated property of the schema or of one field.
type Attribute string

// Validated attributes.
const (
	AttrName         Attribute = "name"
	AttrLabel        Attribute = "label"
	AttrType         Attribute = "type"
	AttrListType     Attribute = "listType"
	AttrFields       Attribute = "fields"
	AttrDisplayField Attribute = "displayField"
	AttrSegmentField Attribute = "segmentField"
	AttrURLFields    Attribute = "urlFields"
)

// Kind is the kind of a validation error.
type Kind string

// Validation error kinds.
const (
	KindRequired  Kind = "required"
	KindDuplicate Kind = "duplicate"
	KindInvalid   Kind = "invalid"
	KindStale     Kind = "stale"
)

// SchemaLevel is the index used for errors on top-level schema attributes.
const SchemaLevel = -1

// Issue is a single validation error. Index is SchemaLevel for top-level
// attributes; FieldID is empty for them.
type Issue struct {
	Index     int       `json:"index"`
	FieldID   string    `json:"fieldId,omitempty"`
	Attribute Attribute `json:"attribute"`
	Kind      Kind      `json:"kind"`
}

type flagKey struct {
	fieldID string
	attr    Attribute
	kind    Kind
}

// Validation records error flags per (field, attribute, kind). Flags are
// keyed by stable field ID so reordering fields never moves a flag to the
// wrong field. The empty field ID addresses the schema itself.
type Validation struct {
	flags map[flagKey]struct{}
}

// NewValidation returns an empty validation state.
func NewValidation() *Validation {
	return &Validation{flags: make(map[flagKey]struct{})}
}

// Set raises the flag.
func (v *Validation) Set(fieldID string, attr Attribute, kind Kind) {
	v.flags[flagKey{fieldID, attr, kind}] = struct{}{}
}

// Clear lowers the flag. Other flags of the same field are untouched.
func (v *Validation) Clear(fieldID string, attr Attribute, kind Kind) {
	delete(v.flags, flagKey{fieldID, attr, kind})
}

// Has reports whether the flag is raised.
func (v *Validation) Has(fieldID string, attr Attribute, kind Kind) bool {
	_, ok := v.flags[flagKey{fieldID, attr, kind}]
	return ok
}

// Empty reports whether no flag is raised.
func (v *Validation) Empty() bool {
	return len(v.flags) == 0
}

// issueOrder fixes the order in which issues are listed per field.
var issueOrder = []struct {
	attr Attribute
	kind Kind
}{
	{AttrName, KindRequired},
	{AttrName, KindDuplicate},
	{AttrLabel, KindRequired},
	{AttrLabel, KindDuplicate},
	{AttrType, KindRequired},
	{AttrType, KindInvalid},
	{AttrListType, KindRequired},
	{AttrListType, KindInvalid},
	{AttrFields, KindRequired},
	{AttrDisplayField, KindStale},
	{AttrSegmentField, KindStale},
	{AttrURLFields, KindStale},
}

// issues lists the raised flags of the schema, then of each field in order.
func (v *Validation) issues(d *SchemaDraft) []Issue {
	out := []Issue{}
	for _, o := range issueOrder {
		if v.Has("", o.attr, o.kind) {
			out = append(out, Issue{Index: SchemaLevel, Attribute: o.attr, Kind: o.kind})
		}
	}
	for i, f := range d.Fields {
		for _, o := range issueOrder {
			if v.Has(f.ID, o.attr, o.kind) {
				out = append(out, Issue{Index: i, FieldID: f.ID, Attribute: o.attr, Kind: o.kind})
			}
		}
	}
	return out
}

// revalidate derives the complete validation state of a draft from scratch,
// so no flag outlives the condition that raised it.
func revalidate(d *SchemaDraft) *Validation {
	v := NewValidation()

	if d.Name == "" {
		v.Set("", AttrName, KindRequired)
	}
	if len(d.Fields) == 0 {
		v.Set("", AttrFields, KindRequired)
	}
	if d.DisplayField != "" && !d.hasFieldNamed(d.DisplayField) {
		v.Set("", AttrDisplayField, KindStale)
	}
	if d.SegmentField != "" && !d.hasFieldNamed(d.SegmentField) {
		v.Set("", AttrSegmentField, KindStale)
	}
	for _, u := range d.URLFields {
		if !d.hasFieldNamed(u) {
			v.Set("", AttrURLFields, KindStale)
			break
		}
	}

	for i, f := range d.Fields {
		if f.Name == "" {
			v.Set(f.ID, AttrName, KindRequired)
		}
		if f.Label == "" {
			v.Set(f.ID, AttrLabel, KindRequired)
		}
		switch {
		case f.Type == "":
			v.Set(f.ID, AttrType, KindRequired)
		case !f.Type.Valid():
			v.Set(f.ID, AttrType, KindInvalid)
		case f.Type == schema.FieldTypeList && f.ListType == "":
			v.Set(f.ID, AttrListType, KindRequired)
		case f.Type == schema.FieldTypeList && !f.ListType.ValidListType():
			v.Set(f.ID, AttrListType, KindInvalid)
		}

		checkDuplicate(d, v, i, AttrName)
		checkDuplicate(d, v, i, AttrLabel)
	}

	return v
}

// attrValue returns the value of a name or label attribute.
func attrValue(f *FieldDraft, attr Attribute) string {
	if attr == AttrLabel {
		return f.Label
	}
	return f.Name
}

// checkDuplicate reports whether field index collides with a sibling on attr,
// compared case-insensitively, and records the result on that field only.
// Empty values never collide.
func checkDuplicate(d *SchemaDraft, v *Validation, index int, attr Attribute) bool {
	f := d.Fields[index]
	own := attrValue(f, attr)

	duplicate := false
	if own != "" {
		lower := strings.ToLower(own)
		for i, other := range d.Fields {
			if i == index {
				continue
			}
			if val := attrValue(other, attr); val != "" && strings.ToLower(val) == lower {
				duplicate = true
				break
			}
		}
	}

	if duplicate {
		v.Set(f.ID, attr, KindDuplicate)
	} else {
		v.Clear(f.ID, attr, KindDuplicate)
	}
	return duplicate
}
