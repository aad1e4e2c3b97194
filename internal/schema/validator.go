package schema

import (
	"fmt"
	"regexp"
	"strings"
)

// namePattern matches valid schema and field names: a letter followed by
// letters, digits or underscores.
var namePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

// maxNameLength bounds schema and field names.
const maxNameLength = 255

// ValidateSchemas validates all schemas together. It returns a multi-error
// listing ALL validation problems found, or nil if all schemas are valid.
func ValidateSchemas(schemas []Schema) error {
	var allErrors []string

	nameCount := make(map[string]int, len(schemas))
	for _, s := range schemas {
		nameCount[strings.ToLower(s.Name)]++
	}
	for name, count := range nameCount {
		if count > 1 && name != "" {
			allErrors = append(allErrors, fmt.Sprintf("schema name %q is defined %d times", name, count))
		}
	}

	for _, s := range schemas {
		for _, msg := range validateSchema(s) {
			allErrors = append(allErrors, fmt.Sprintf("schema %q: %s", s.Name, msg))
		}
	}

	if len(allErrors) == 0 {
		return nil
	}

	return &ValidationError{Problems: allErrors}
}

// Validate validates a single schema document.
func Validate(s Schema) error {
	return ValidateSchemas([]Schema{s})
}

// ValidationError holds a list of all validation problems found across schemas.
type ValidationError struct {
	Problems []string
}

// Error returns a human-readable summary of all validation problems.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("schema validation failed with %d problem(s):\n- %s",
		len(e.Problems), strings.Join(e.Problems, "\n- "))
}

// validateSchema validates a single schema and returns a list of validation
// error messages.
func validateSchema(s Schema) []string {
	var problems []string

	if s.Name == "" {
		problems = append(problems, "name is required")
	} else {
		if !namePattern.MatchString(s.Name) {
			problems = append(problems, "name must match ^[A-Za-z][A-Za-z0-9_]*$")
		}
		if len(s.Name) > maxNameLength {
			problems = append(problems, fmt.Sprintf("name must be at most %d characters (got %d)", maxNameLength, len(s.Name)))
		}
	}

	if len(s.Fields) == 0 {
		problems = append(problems, "at least one field is required")
		return problems
	}

	// Names and labels are compared case-insensitively.
	fieldNames := make(map[string]bool, len(s.Fields))
	fieldLabels := make(map[string]bool, len(s.Fields))
	declared := make(map[string]bool, len(s.Fields))

	for i, f := range s.Fields {
		prefix := fmt.Sprintf("field[%d] (%s)", i, f.Name)

		if f.Name == "" {
			problems = append(problems, fmt.Sprintf("field[%d]: name is required", i))
		} else {
			if !namePattern.MatchString(f.Name) {
				problems = append(problems, fmt.Sprintf("%s: name must match ^[A-Za-z][A-Za-z0-9_]*$", prefix))
			}
			if len(f.Name) > maxNameLength {
				problems = append(problems, fmt.Sprintf("%s: name must be at most %d characters (got %d)", prefix, maxNameLength, len(f.Name)))
			}
			key := strings.ToLower(f.Name)
			if fieldNames[key] {
				problems = append(problems, fmt.Sprintf("%s: duplicate field name", prefix))
			}
			fieldNames[key] = true
			declared[f.Name] = true
		}

		if f.Label != "" {
			key := strings.ToLower(f.Label)
			if fieldLabels[key] {
				problems = append(problems, fmt.Sprintf("%s: duplicate field label %q", prefix, f.Label))
			}
			fieldLabels[key] = true
		}

		if !f.Type.Valid() {
			problems = append(problems, fmt.Sprintf("%s: invalid field type %q", prefix, f.Type))
			continue
		}

		if f.Type == FieldTypeList {
			if f.ListType == "" {
				problems = append(problems, fmt.Sprintf("%s: list field must have a listType", prefix))
			} else if !f.ListType.ValidListType() {
				problems = append(problems, fmt.Sprintf("%s: invalid listType %q", prefix, f.ListType))
			}
		} else if f.ListType != "" {
			problems = append(problems, fmt.Sprintf("%s: listType is only valid on list type", prefix))
		}

		if len(f.Allow) > 0 {
			if !AllowCapable(f.Type, f.ListType) {
				problems = append(problems, fmt.Sprintf("%s: allow is only valid on string and micronode fields", prefix))
			}
			seen := make(map[string]bool, len(f.Allow))
			for j, v := range f.Allow {
				if v == "" {
					problems = append(problems, fmt.Sprintf("%s: allow[%d] must not be empty", prefix, j))
				} else if seen[v] {
					problems = append(problems, fmt.Sprintf("%s: duplicate allow value %q", prefix, v))
				}
				seen[v] = true
			}
		}
	}

	if s.DisplayField != "" && !declared[s.DisplayField] {
		problems = append(problems, fmt.Sprintf("displayField %q does not reference a field", s.DisplayField))
	}
	if s.SegmentField != "" && !declared[s.SegmentField] {
		problems = append(problems, fmt.Sprintf("segmentField %q does not reference a field", s.SegmentField))
	}
	for _, u := range s.URLFields {
		if !declared[u] {
			problems = append(problems, fmt.Sprintf("urlFields entry %q does not reference a field", u))
		}
	}

	return problems
}
