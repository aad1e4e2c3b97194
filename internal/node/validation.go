package node

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fmteixeira/mesh-ui/internal/schema"
	"github.com/fmteixeira/mesh-ui/internal/server"
)

// ValidateFields validates node field values against a schema document. On
// create (isUpdate=false) required fields must be present and non-null. On
// update missing fields are skipped but required fields cannot be cleared.
// All errors are returned, not just the first.
func ValidateFields(s schema.Schema, fields map[string]any, isUpdate bool) []server.FieldError {
	var errs []server.FieldError

	for key := range fields {
		if _, ok := s.FieldByName(key); !ok {
			errs = append(errs, server.FieldError{Field: key, Message: "unknown field"})
		}
	}

	for _, f := range s.Fields {
		val, present := fields[f.Name]

		if f.Required && val == nil && (present || !isUpdate) {
			errs = append(errs, server.FieldError{Field: f.Name, Message: "is required"})
			continue
		}
		if val == nil {
			continue
		}

		if f.Type == schema.FieldTypeList {
			errs = append(errs, validateList(f, val)...)
			continue
		}
		if msg := validateValue(f.Type, f.Allow, val); msg != "" {
			errs = append(errs, server.FieldError{Field: f.Name, Message: msg})
		}
	}

	slices.SortStableFunc(errs, func(a, b server.FieldError) int {
		return strings.Compare(a.Field, b.Field)
	})
	return errs
}

// validateList checks that val is a list and validates every element against
// the field's list type. Element errors are reported as name[i].
func validateList(f schema.Field, val any) []server.FieldError {
	items, ok := val.([]any)
	if !ok {
		return []server.FieldError{{Field: f.Name, Message: "must be a list"}}
	}
	var errs []server.FieldError
	for i, item := range items {
		if item == nil {
			errs = append(errs, server.FieldError{Field: fmt.Sprintf("%s[%d]", f.Name, i), Message: "must not be null"})
			continue
		}
		if msg := validateValue(f.ListType, f.Allow, item); msg != "" {
			errs = append(errs, server.FieldError{Field: fmt.Sprintf("%s[%d]", f.Name, i), Message: msg})
		}
	}
	return errs
}

// validateValue validates a single non-null value of type t. It returns an
// error message, or "" when the value is valid.
func validateValue(t schema.FieldType, allow []string, val any) string {
	switch t {
	case schema.FieldTypeString:
		s, ok := val.(string)
		if !ok {
			return "must be a string"
		}
		if len(allow) > 0 && !slices.Contains(allow, s) {
			return "must be one of: " + strings.Join(allow, ", ")
		}

	case schema.FieldTypeHTML:
		if _, ok := val.(string); !ok {
			return "must be a string"
		}

	case schema.FieldTypeNumber:
		if _, ok := toFloat64(val); !ok {
			return "must be a number"
		}

	case schema.FieldTypeBoolean:
		if _, ok := val.(bool); !ok {
			return "must be a boolean"
		}

	case schema.FieldTypeDate:
		s, ok := val.(string)
		if !ok {
			return "must be a string"
		}
		if _, err := time.Parse(time.RFC3339, s); err != nil {
			return "must be an RFC 3339 date"
		}

	case schema.FieldTypeNode:
		if !isNodeReference(val) {
			return "must reference a node by uuid"
		}

	case schema.FieldTypeMicronode:
		obj, ok := val.(map[string]any)
		if !ok {
			return "must be an object"
		}
		name, _ := obj["microschema"].(string)
		if name == "" {
			return "must name its microschema"
		}
		if len(allow) > 0 && !slices.Contains(allow, name) {
			return "microschema must be one of: " + strings.Join(allow, ", ")
		}

	case schema.FieldTypeBinary:
		obj, ok := val.(map[string]any)
		if !ok {
			return "must be an object"
		}
		if name, _ := obj["fileName"].(string); name == "" {
			return "must carry a fileName"
		}

	default:
		return fmt.Sprintf("unsupported field type %q", t)
	}
	return ""
}

// isNodeReference accepts a uuid string or an object with a uuid member.
func isNodeReference(val any) bool {
	var ref string
	switch v := val.(type) {
	case string:
		ref = v
	case map[string]any:
		ref, _ = v["uuid"].(string)
	}
	_, err := uuid.Parse(ref)
	return err == nil
}

// toFloat64 converts a value to float64, handling JSON number types.
func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// displayName derives the display name of a content from the schema's
// display field, falling back to the node uuid.
func displayName(s schema.Schema, fields map[string]any, nodeUUID string) string {
	if s.DisplayField != "" {
		if v, ok := fields[s.DisplayField].(string); ok && strings.TrimSpace(v) != "" {
			return v
		}
	}
	return nodeUUID
}
