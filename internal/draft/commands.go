package draft

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/fmteixeira/mesh-ui/internal/schema"
)

// Command is a typed edit of a draft. Field commands address fields by ID.
type Command interface {
	apply(d *SchemaDraft) error
}

// SetMetadata replaces the top-level schema attributes.
type SetMetadata struct {
	Name         string   `json:"name"`
	Container    bool     `json:"container"`
	Description  string   `json:"description"`
	DisplayField string   `json:"displayField"`
	SegmentField string   `json:"segmentField"`
	URLFields    []string `json:"urlFields"`
}

func (c SetMetadata) apply(d *SchemaDraft) error {
	d.Name = c.Name
	d.Container = c.Container
	d.Description = c.Description
	d.DisplayField = c.DisplayField
	d.SegmentField = c.SegmentField
	d.URLFields = nil
	for _, u := range c.URLFields {
		if u != "" && !slices.Contains(d.URLFields, u) {
			d.URLFields = append(d.URLFields, u)
		}
	}
	return nil
}

// AddField appends a field with the given attributes.
type AddField struct {
	Name     string           `json:"name"`
	Label    string           `json:"label"`
	Type     schema.FieldType `json:"type"`
	ListType schema.FieldType `json:"listType"`
	Required bool             `json:"required"`
	Allow    []string         `json:"allow"`
}

func (c AddField) apply(d *SchemaDraft) error {
	f := newField()
	f.Name = c.Name
	f.Label = c.Label
	f.Type = c.Type
	f.ListType = c.ListType
	f.Required = c.Required
	f.Allow = NewAllowSet(nonEmpty(c.Allow)...)
	d.Fields = append(d.Fields, f)
	return nil
}

// RemoveField removes the field with the given ID.
type RemoveField struct {
	FieldID string `json:"fieldId"`
}

func (c RemoveField) apply(d *SchemaDraft) error {
	_, i := d.fieldByID(c.FieldID)
	if i < 0 {
		return fmt.Errorf("removing %q: %w", c.FieldID, ErrFieldNotFound)
	}
	d.Fields = slices.Delete(d.Fields, i, i+1)
	return nil
}

// MoveField moves a field to position To, shifting the fields in between.
type MoveField struct {
	FieldID string `json:"fieldId"`
	To      int    `json:"to"`
}

func (c MoveField) apply(d *SchemaDraft) error {
	f, i := d.fieldByID(c.FieldID)
	if i < 0 {
		return fmt.Errorf("moving %q: %w", c.FieldID, ErrFieldNotFound)
	}
	if c.To < 0 || c.To >= len(d.Fields) {
		return fmt.Errorf("moving %q to %d: %w", c.FieldID, c.To, ErrIndexOutOfRange)
	}
	d.Fields = slices.Delete(d.Fields, i, i+1)
	d.Fields = slices.Insert(d.Fields, c.To, f)
	return nil
}

// RenameField sets a field's name. References to the old name are kept and
// become stale until updated.
type RenameField struct {
	FieldID string `json:"fieldId"`
	Name    string `json:"name"`
}

func (c RenameField) apply(d *SchemaDraft) error {
	f, _ := d.fieldByID(c.FieldID)
	if f == nil {
		return fmt.Errorf("renaming %q: %w", c.FieldID, ErrFieldNotFound)
	}
	f.Name = c.Name
	return nil
}

// SetFieldLabel sets a field's label.
type SetFieldLabel struct {
	FieldID string `json:"fieldId"`
	Label   string `json:"label"`
}

func (c SetFieldLabel) apply(d *SchemaDraft) error {
	f, _ := d.fieldByID(c.FieldID)
	if f == nil {
		return fmt.Errorf("labelling %q: %w", c.FieldID, ErrFieldNotFound)
	}
	f.Label = c.Label
	return nil
}

// SetFieldType sets a field's type and list type. Changing either clears
// the field's allowed values.
type SetFieldType struct {
	FieldID  string           `json:"fieldId"`
	Type     schema.FieldType `json:"type"`
	ListType schema.FieldType `json:"listType"`
}

func (c SetFieldType) apply(d *SchemaDraft) error {
	f, _ := d.fieldByID(c.FieldID)
	if f == nil {
		return fmt.Errorf("retyping %q: %w", c.FieldID, ErrFieldNotFound)
	}
	f.Type = c.Type
	f.ListType = c.ListType
	return nil
}

// SetFieldRequired sets whether a field is required.
type SetFieldRequired struct {
	FieldID  string `json:"fieldId"`
	Required bool   `json:"required"`
}

func (c SetFieldRequired) apply(d *SchemaDraft) error {
	f, _ := d.fieldByID(c.FieldID)
	if f == nil {
		return fmt.Errorf("updating %q: %w", c.FieldID, ErrFieldNotFound)
	}
	f.Required = c.Required
	return nil
}

// SetAllowedValues replaces a field's allowed values.
type SetAllowedValues struct {
	FieldID string   `json:"fieldId"`
	Values  []string `json:"values"`
}

func (c SetAllowedValues) apply(d *SchemaDraft) error {
	f, _ := d.fieldByID(c.FieldID)
	if f == nil {
		return fmt.Errorf("setting allowed values of %q: %w", c.FieldID, ErrFieldNotFound)
	}
	f.Allow = NewAllowSet(nonEmpty(c.Values)...)
	return nil
}

// ErrUnknownCommand is returned by DecodeCommand for an unrecognized command name.
var ErrUnknownCommand = errors.New("unknown command")

// DecodeCommand decodes a JSON command of the form {"command": "...", ...}.
func DecodeCommand(data []byte) (Command, error) {
	var env struct {
		Command string `json:"command"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decoding command: %w", err)
	}

	var cmd Command
	switch env.Command {
	case "setMetadata":
		cmd = &SetMetadata{}
	case "addField":
		cmd = &AddField{}
	case "removeField":
		cmd = &RemoveField{}
	case "moveField":
		cmd = &MoveField{}
	case "renameField":
		cmd = &RenameField{}
	case "setFieldLabel":
		cmd = &SetFieldLabel{}
	case "setFieldType":
		cmd = &SetFieldType{}
	case "setFieldRequired":
		cmd = &SetFieldRequired{}
	case "setAllowedValues":
		cmd = &SetAllowedValues{}
	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownCommand, env.Command)
	}

	if err := json.Unmarshal(data, cmd); err != nil {
		return nil, fmt.Errorf("decoding %s command: %w", env.Command, err)
	}
	return cmd, nil
}
