// Package schema defines the persisted content-type schema document, the
// field-type catalog, and loading, validation, diffing and storage of schema
// documents.
package schema

// FieldType represents the type of a schema field.
type FieldType string

// Supported field types. Every scalar type may also be used as the element
// type of a list field.
const (
	FieldTypeBinary    FieldType = "binary"
	FieldTypeBoolean   FieldType = "boolean"
	FieldTypeDate      FieldType = "date"
	FieldTypeMicronode FieldType = "micronode"
	FieldTypeNode      FieldType = "node"
	FieldTypeNumber    FieldType = "number"
	FieldTypeHTML      FieldType = "html"
	FieldTypeString    FieldType = "string"
	FieldTypeList      FieldType = "list"
)

// listTypes is the static, ordered table of list element types.
var listTypes = []FieldType{
	FieldTypeBinary,
	FieldTypeBoolean,
	FieldTypeDate,
	FieldTypeMicronode,
	FieldTypeNode,
	FieldTypeNumber,
	FieldTypeHTML,
	FieldTypeString,
}

// fieldTypeLabels holds the human-readable labels shown in type dropdowns.
var fieldTypeLabels = map[FieldType]string{
	FieldTypeBinary:    "Binary",
	FieldTypeBoolean:   "Boolean",
	FieldTypeDate:      "Date",
	FieldTypeMicronode: "Micronode",
	FieldTypeNode:      "Node",
	FieldTypeNumber:    "Number",
	FieldTypeHTML:      "HTML",
	FieldTypeString:    "String",
	FieldTypeList:      "List",
}

// TypeOption is a single entry of the field-type catalog.
type TypeOption struct {
	Value FieldType `json:"value"`
	Label string    `json:"label"`
}

// ListTypes returns the types usable as a list's element type, in catalog order.
func ListTypes() []TypeOption {
	opts := make([]TypeOption, 0, len(listTypes))
	for _, t := range listTypes {
		opts = append(opts, TypeOption{Value: t, Label: fieldTypeLabels[t]})
	}
	return opts
}

// FieldTypes returns all top-level field types: the list types followed by list.
func FieldTypes() []TypeOption {
	return append(ListTypes(), TypeOption{Value: FieldTypeList, Label: fieldTypeLabels[FieldTypeList]})
}

// Valid reports whether t is a known top-level field type.
func (t FieldType) Valid() bool {
	_, ok := fieldTypeLabels[t]
	return ok
}

// ValidListType reports whether t may be used as a list element type.
func (t FieldType) ValidListType() bool {
	return t != FieldTypeList && t.Valid()
}

// AllowCapable reports whether a field of the given type and list type may
// carry an allow list. Only string and micronode values can be restricted.
func AllowCapable(t, listType FieldType) bool {
	return t == FieldTypeString || t == FieldTypeMicronode ||
		listType == FieldTypeString || listType == FieldTypeMicronode
}

// Schema is the persisted content-type schema document.
type Schema struct {
	Name         string   `json:"name" yaml:"name"`
	Container    bool     `json:"container,omitempty" yaml:"container,omitempty"`
	Description  string   `json:"description,omitempty" yaml:"description,omitempty"`
	DisplayField string   `json:"displayField,omitempty" yaml:"displayField,omitempty"`
	SegmentField string   `json:"segmentField,omitempty" yaml:"segmentField,omitempty"`
	URLFields    []string `json:"urlFields,omitempty" yaml:"urlFields,omitempty"`
	Fields       []Field  `json:"fields" yaml:"fields"`

	// Hash is the SHA-256 hex digest of the canonical JSON encoding. It is
	// computed on load and save, never decoded from a document.
	Hash string `json:"-" yaml:"-"`
}

// Field is a single named, typed slot within a schema.
type Field struct {
	Name     string    `json:"name" yaml:"name"`
	Label    string    `json:"label,omitempty" yaml:"label,omitempty"`
	Type     FieldType `json:"type" yaml:"type"`
	ListType FieldType `json:"listType,omitempty" yaml:"listType,omitempty"`
	Required bool      `json:"required,omitempty" yaml:"required,omitempty"`

	// Allow restricts string values to the listed literals, or micronode
	// values to the listed microschema names.
	Allow []string `json:"allow,omitempty" yaml:"allow,omitempty"`
}

// FieldByName returns the field with the given name, or false.
func (s Schema) FieldByName(name string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}
