package schema

import (
	"fmt"
	"slices"
)

// ChangeType describes the kind of change detected between a new schema
// document and the version already stored.
type ChangeType string

// Supported change types.
const (
	ChangeCreateSchema ChangeType = "create_schema"
	ChangeAddField     ChangeType = "add_field"
	ChangeRemoveField  ChangeType = "remove_field"
	ChangeAlterField   ChangeType = "alter_field"
	ChangeAllow        ChangeType = "change_allow"
	ChangeReorder      ChangeType = "reorder_fields"
	ChangeMetadata     ChangeType = "change_metadata"
)

// Change represents a single schema change and its safety classification.
type Change struct {
	// Type is the kind of change (add_field, remove_field, etc.).
	Type ChangeType `json:"type"`

	// Schema is the name of the schema being changed.
	Schema string `json:"schema"`

	// Field is the affected field name, if applicable.
	Field string `json:"field,omitempty"`

	// Safe indicates whether existing nodes stay valid after the change.
	// Safe changes: new schema, add optional field, drop required, widen
	// allow, reorder, metadata. Breaking changes: remove field, change type or
	// list type, add required field, set required, narrow allow.
	Safe bool `json:"safe"`

	// Detail is a human-readable description of the change.
	Detail string `json:"detail"`
}

// DiffSchema compares a new schema document against the stored version. If
// existing is nil the schema is new and a single ChangeCreateSchema is
// returned. Fields are matched by name.
func DiffSchema(next Schema, existing *Schema) []Change {
	if existing == nil {
		return []Change{{
			Type:   ChangeCreateSchema,
			Schema: next.Name,
			Safe:   true,
			Detail: fmt.Sprintf("create new schema %s", next.Name),
		}}
	}

	var changes []Change

	existingFields := make(map[string]Field, len(existing.Fields))
	for _, f := range existing.Fields {
		existingFields[f.Name] = f
	}

	nextFields := make(map[string]Field, len(next.Fields))
	for _, f := range next.Fields {
		nextFields[f.Name] = f
	}

	// Detect new fields.
	for _, f := range next.Fields {
		if _, exists := existingFields[f.Name]; exists {
			continue
		}

		// Existing nodes have no value for the new field, which violates a
		// required constraint.
		safe := !f.Required
		detail := fmt.Sprintf("add field %s.%s (%s)", next.Name, f.Name, describeType(f))
		if !safe {
			detail += " [BREAKING: required on existing schema]"
		}
		changes = append(changes, Change{
			Type:   ChangeAddField,
			Schema: next.Name,
			Field:  f.Name,
			Safe:   safe,
			Detail: detail,
		})
	}

	// Detect removed fields.
	for _, f := range existing.Fields {
		if _, exists := nextFields[f.Name]; exists {
			continue
		}
		changes = append(changes, Change{
			Type:   ChangeRemoveField,
			Schema: next.Name,
			Field:  f.Name,
			Safe:   false,
			Detail: fmt.Sprintf("remove field %s.%s [BREAKING: data loss]", next.Name, f.Name),
		})
	}

	// Detect changes on fields present in both versions.
	for _, nf := range next.Fields {
		ef, exists := existingFields[nf.Name]
		if !exists {
			continue
		}

		if nf.Type != ef.Type || nf.ListType != ef.ListType {
			changes = append(changes, Change{
				Type:   ChangeAlterField,
				Schema: next.Name,
				Field:  nf.Name,
				Safe:   false,
				Detail: fmt.Sprintf("change type of %s.%s from %s to %s [BREAKING]",
					next.Name, nf.Name, describeType(ef), describeType(nf)),
			})
			// Allow values of a different type are not comparable.
			continue
		}

		if !slices.Equal(nf.Allow, ef.Allow) {
			changes = append(changes, diffAllow(next.Name, ef, nf))
		}

		if nf.Required != ef.Required {
			if nf.Required {
				changes = append(changes, Change{
					Type:   ChangeAlterField,
					Schema: next.Name,
					Field:  nf.Name,
					Safe:   false,
					Detail: fmt.Sprintf("set required on %s.%s [BREAKING: existing empty values will fail]", next.Name, nf.Name),
				})
			} else {
				changes = append(changes, Change{
					Type:   ChangeAlterField,
					Schema: next.Name,
					Field:  nf.Name,
					Safe:   true,
					Detail: fmt.Sprintf("drop required on %s.%s", next.Name, nf.Name),
				})
			}
		}

		if nf.Label != ef.Label {
			changes = append(changes, Change{
				Type:   ChangeAlterField,
				Schema: next.Name,
				Field:  nf.Name,
				Safe:   true,
				Detail: fmt.Sprintf("relabel %s.%s from %q to %q", next.Name, nf.Name, ef.Label, nf.Label),
			})
		}
	}

	if !slices.Equal(commonOrder(next.Fields, existingFields), commonOrder(existing.Fields, nextFields)) {
		changes = append(changes, Change{
			Type:   ChangeReorder,
			Schema: next.Name,
			Safe:   true,
			Detail: fmt.Sprintf("reorder fields of %s", next.Name),
		})
	}

	if next.Container != existing.Container ||
		next.Description != existing.Description ||
		next.DisplayField != existing.DisplayField ||
		next.SegmentField != existing.SegmentField ||
		!slices.Equal(next.URLFields, existing.URLFields) {
		changes = append(changes, Change{
			Type:   ChangeMetadata,
			Schema: next.Name,
			Safe:   true,
			Detail: fmt.Sprintf("update metadata of %s", next.Name),
		})
	}

	return changes
}

// diffAllow classifies a change of the allow list. Removing a value, or
// introducing a restriction on a previously unrestricted field, is breaking
// because existing nodes may hold the now-forbidden value.
func diffAllow(schemaName string, existing, next Field) Change {
	nextSet := make(map[string]bool, len(next.Allow))
	for _, v := range next.Allow {
		nextSet[v] = true
	}

	safe := len(next.Allow) == 0 || len(existing.Allow) > 0
	for _, v := range existing.Allow {
		if len(next.Allow) > 0 && !nextSet[v] {
			safe = false
			break
		}
	}

	detail := fmt.Sprintf("change allowed values of %s.%s", schemaName, next.Name)
	if !safe {
		detail += " [BREAKING: allowed values narrowed]"
	}

	return Change{
		Type:   ChangeAllow,
		Schema: schemaName,
		Field:  next.Name,
		Safe:   safe,
		Detail: detail,
	}
}

// commonOrder returns the names of fields that also appear in other, in
// the order of fields.
func commonOrder(fields []Field, other map[string]Field) []string {
	names := make([]string, 0, len(fields))
	for _, f := range fields {
		if _, ok := other[f.Name]; ok {
			names = append(names, f.Name)
		}
	}
	return names
}

// describeType renders a field type, including the element type of lists.
func describeType(f Field) string {
	if f.Type == FieldTypeList {
		return fmt.Sprintf("list<%s>", f.ListType)
	}
	return string(f.Type)
}

// BreakingChanges returns the subset of changes that are not safe.
func BreakingChanges(changes []Change) []Change {
	var breaking []Change
	for _, c := range changes {
		if !c.Safe {
			breaking = append(breaking, c)
		}
	}
	return breaking
}
