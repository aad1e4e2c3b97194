package draft

import (
	"errors"
	"sync"

	"github.com/fmteixeira/mesh-ui/internal/schema"
)

var (
	// ErrFieldNotFound is returned when a command addresses an unknown field ID.
	ErrFieldNotFound = errors.New("field not found")
	// ErrIndexOutOfRange is returned when a command targets a position outside the field list.
	ErrIndexOutOfRange = errors.New("field index out of range")
)

// Candidates are the field names eligible for the schema's field references.
type Candidates struct {
	DisplayFields []string `json:"displayFields"`
	SegmentFields []string `json:"segmentFields"`
	URLFields     []string `json:"urlFields"`
}

// State is the observable state of a controller after a change.
type State struct {
	Schema     schema.Schema `json:"schema"`
	Snapshot   Snapshot      `json:"snapshot"`
	Candidates Candidates    `json:"candidates"`
	Issues     []Issue       `json:"issues"`
	Valid      bool          `json:"valid"`
	Dirty      bool          `json:"dirty"`
}

// Controller owns one schema draft. Every mutation builds a new draft from a
// copy of the current one, normalizes and revalidates it, and only then
// replaces the current draft, so readers never see a partial update.
// Subscribers are notified after the lock is released.
type Controller struct {
	mu         sync.Mutex
	draft      *SchemaDraft
	validation *Validation
	dirty      bool

	subMu   sync.Mutex
	subs    map[int]func(State)
	nextSub int
}

// NewController creates a controller. A nil doc starts an empty draft with
// one default field; otherwise the draft is hydrated from doc.
func NewController(doc *schema.Schema) *Controller {
	d := newDraft()
	if doc != nil {
		d = hydrate(*doc)
	}
	return &Controller{
		draft:      d,
		validation: revalidate(d),
		subs:       make(map[int]func(State)),
	}
}

// Subscribe registers fn to receive the state after every committed change.
// The returned function removes the subscription.
func (c *Controller) Subscribe(fn func(State)) (cancel func()) {
	c.subMu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	c.subMu.Unlock()

	return func() {
		c.subMu.Lock()
		delete(c.subs, id)
		c.subMu.Unlock()
	}
}

func (c *Controller) publish(st State) {
	c.subMu.Lock()
	fns := make([]func(State), 0, len(c.subs))
	for _, fn := range c.subs {
		fns = append(fns, fn)
	}
	c.subMu.Unlock()

	for _, fn := range fns {
		fn(st)
	}
}

// mutate runs fn against a private copy of the draft. fn returns the draft
// to commit, or nil to leave the controller unchanged.
func (c *Controller) mutate(fn func(cur *SchemaDraft) (*SchemaDraft, error)) (State, error) {
	c.mu.Lock()
	prev := c.draft
	next, err := fn(prev.clone())
	if err != nil || next == nil {
		st := c.stateLocked()
		c.mu.Unlock()
		return st, err
	}

	normalize(prev, next)
	if schema.ComputeHash(prev.document()) != schema.ComputeHash(next.document()) {
		c.dirty = true
	}
	c.draft = next
	c.validation = revalidate(next)
	st := c.stateLocked()
	c.mu.Unlock()

	c.publish(st)
	return st, nil
}

// normalize enforces field invariants on next, using prev to detect type changes.
func normalize(prev, next *SchemaDraft) {
	for _, f := range next.Fields {
		if p, _ := prev.fieldByID(f.ID); p != nil {
			switch {
			case p.Type != f.Type || effectiveListType(p) != effectiveListType(f):
				f.Allow = NewAllowSet()
				f.discarded = f.Pending
				f.Pending = ""
			case f.discarded != "" && f.Pending == f.discarded:
				f.Pending = ""
			default:
				f.discarded = ""
			}
		}
		if f.Type != schema.FieldTypeList {
			f.ListType = ""
		}
		if f.Type == schema.FieldTypeString || f.ListType == schema.FieldTypeString {
			commitPending(f)
		}
	}
}

func effectiveListType(f *FieldDraft) schema.FieldType {
	if f.Type != schema.FieldTypeList {
		return ""
	}
	return f.ListType
}

// commitPending moves a completed token from the pending buffer into the allow set.
func commitPending(f *FieldDraft) {
	if tok, ok := splitChip(f.Pending); ok {
		if tok != "" {
			f.Allow.Add(tok)
		}
		f.Pending = ""
	}
}

func (c *Controller) stateLocked() State {
	d := c.draft
	names := d.fieldNames()
	return State{
		Schema:   d.document(),
		Snapshot: d.snapshot(),
		Candidates: Candidates{
			DisplayFields: names,
			SegmentFields: names,
			URLFields:     names,
		},
		Issues: c.validation.issues(d),
		Valid:  c.validation.Empty(),
		Dirty:  c.dirty,
	}
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

// Document returns the draft serialized in the persisted schema format.
func (c *Controller) Document() schema.Schema {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.draft.document()
}

// Snapshot returns the draft as form state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.draft.snapshot()
}

// Dirty reports whether the document changed since creation or the last MarkClean.
func (c *Controller) Dirty() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dirty
}

// MarkClean resets the dirty flag, typically after a successful save.
func (c *Controller) MarkClean() {
	c.mu.Lock()
	c.dirty = false
	c.mu.Unlock()
}

// MarkSaved resets the dirty flag if the draft still serializes to saved.
// It reports whether the flag was reset; a false result means the draft was
// edited after saved was taken from it.
func (c *Controller) MarkSaved(saved schema.Schema) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if schema.ComputeHash(c.draft.document()) != schema.ComputeHash(saved) {
		return false
	}
	c.dirty = false
	return true
}

// Valid reports whether the draft has no validation errors.
func (c *Controller) Valid() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.validation.Empty()
}

// HasNamedFields reports whether at least one field has a non-empty name.
func (c *Controller) HasNamedFields() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.draft.fieldNames()) > 0
}

// HasError reports whether the given error flag is raised. Use SchemaLevel
// as index for top-level attributes. Out-of-range indexes report false.
func (c *Controller) HasError(index int, attr Attribute, kind Kind) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if index == SchemaLevel {
		return c.validation.Has("", attr, kind)
	}
	if index < 0 || index >= len(c.draft.Fields) {
		return false
	}
	return c.validation.Has(c.draft.Fields[index].ID, attr, kind)
}

// ApplyChange replaces the draft with the submitted form state and returns
// the resulting state. Applying the same snapshot twice yields the same
// document as applying it once.
func (c *Controller) ApplyChange(s Snapshot) State {
	st, _ := c.mutate(func(cur *SchemaDraft) (*SchemaDraft, error) {
		return fromSnapshot(cur, s), nil
	})
	return st
}

// AddField appends an empty field.
func (c *Controller) AddField() State {
	st, _ := c.mutate(func(cur *SchemaDraft) (*SchemaDraft, error) {
		cur.Fields = append(cur.Fields, newField())
		return cur, nil
	})
	return st
}

// RemoveField removes the field at index. Later fields shift down by one.
// An out-of-range index is a no-op.
func (c *Controller) RemoveField(index int) State {
	st, _ := c.mutate(func(cur *SchemaDraft) (*SchemaDraft, error) {
		if index < 0 || index >= len(cur.Fields) {
			return nil, nil
		}
		cur.Fields = append(cur.Fields[:index], cur.Fields[index+1:]...)
		return cur, nil
	})
	return st
}

// RemoveLastField removes the last field, if any.
func (c *Controller) RemoveLastField() State {
	st, _ := c.mutate(func(cur *SchemaDraft) (*SchemaDraft, error) {
		if len(cur.Fields) == 0 {
			return nil, nil
		}
		cur.Fields = cur.Fields[:len(cur.Fields)-1]
		return cur, nil
	})
	return st
}

// Dispatch applies a typed command addressed by field ID.
func (c *Controller) Dispatch(cmd Command) (State, error) {
	return c.mutate(func(cur *SchemaDraft) (*SchemaDraft, error) {
		if err := cmd.apply(cur); err != nil {
			return nil, err
		}
		return cur, nil
	})
}

// withField runs fn on the field at index in a mutation. Out-of-range
// indexes are no-ops.
func (c *Controller) withField(index int, fn func(f *FieldDraft) bool) State {
	st, _ := c.mutate(func(cur *SchemaDraft) (*SchemaDraft, error) {
		if index < 0 || index >= len(cur.Fields) {
			return nil, nil
		}
		if !fn(cur.Fields[index]) {
			return nil, nil
		}
		return cur, nil
	})
	return st
}

// SetAllowed replaces the allowed values of the field at index.
func (c *Controller) SetAllowed(index int, values []string) State {
	return c.withField(index, func(f *FieldDraft) bool {
		f.Allow = NewAllowSet(nonEmpty(values)...)
		return true
	})
}

// AddAllowed adds one allowed value. Empty values are ignored.
func (c *Controller) AddAllowed(index int, value string) State {
	return c.withField(index, func(f *FieldDraft) bool {
		if value == "" || f.Allow.Contains(value) {
			return false
		}
		f.Allow.Add(value)
		return true
	})
}

// RemoveAllowed removes one allowed value.
func (c *Controller) RemoveAllowed(index int, value string) State {
	return c.withField(index, func(f *FieldDraft) bool {
		if !f.Allow.Contains(value) {
			return false
		}
		f.Allow.Remove(value)
		return true
	})
}

// RemoveLastAllowed removes the most recently added value, but only while
// the pending input is empty, so erasing typed text never removes a value.
func (c *Controller) RemoveLastAllowed(index int) State {
	return c.withField(index, func(f *FieldDraft) bool {
		if f.Pending != "" {
			return false
		}
		last, ok := f.Allow.Last()
		if !ok {
			return false
		}
		f.Allow.Remove(last)
		return true
	})
}

// ClearAllowed empties both the allowed values and the pending input.
func (c *Controller) ClearAllowed(index int) State {
	return c.withField(index, func(f *FieldDraft) bool {
		f.Allow = NewAllowSet()
		f.Pending = ""
		return true
	})
}

// AllowedContains reports whether value is allowed on the field at index.
func (c *Controller) AllowedContains(index int, value string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if index < 0 || index >= len(c.draft.Fields) {
		return false
	}
	return c.draft.Fields[index].Allow.Contains(value)
}

// OnRawAllowInput records the raw allow input of the field at index. Once the
// input holds a completed token, the token is committed and the input reset.
func (c *Controller) OnRawAllowInput(index int, raw string) State {
	return c.withField(index, func(f *FieldDraft) bool {
		f.Pending = raw
		f.discarded = ""
		commitPending(f)
		return true
	})
}

// CheckDuplicate reports whether the field at index shares its name or label
// with a sibling, ignoring case, and records the result on that field.
func (c *Controller) CheckDuplicate(index int, attr Attribute) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if index < 0 || index >= len(c.draft.Fields) {
		return false
	}
	return checkDuplicate(c.draft, c.validation, index, attr)
}

func nonEmpty(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}
