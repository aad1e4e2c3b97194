// Package node implements the node content API: multi-language node contents
// organized in per-project trees, validated against their schema documents and
// versioned as major.minor where a non-zero minor marks an unpublished draft.
package node

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/fmteixeira/mesh-ui/internal/server"
)

// Sentinel errors returned by the Service and Store.
var (
	ErrNotFound           = errors.New("node not found")
	ErrProjectExists      = errors.New("project already exists")
	ErrHasChildren        = errors.New("node has children")
	ErrParentNotContainer = errors.New("parent schema is not a container")
)

// Version is a node content version. Published contents have a zero minor.
type Version struct {
	Major int
	Minor int
}

// initialVersion is assigned to newly created contents.
var initialVersion = Version{Major: 0, Minor: 1}

// ParseVersion parses "major.minor".
func ParseVersion(s string) (Version, error) {
	majorStr, minorStr, ok := strings.Cut(s, ".")
	if !ok {
		return Version{}, fmt.Errorf("invalid version %q", s)
	}
	major, err := strconv.Atoi(majorStr)
	if err != nil || major < 0 {
		return Version{}, fmt.Errorf("invalid version %q", s)
	}
	minor, err := strconv.Atoi(minorStr)
	if err != nil || minor < 0 {
		return Version{}, fmt.Errorf("invalid version %q", s)
	}
	return Version{Major: major, Minor: minor}, nil
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// Draft reports whether the version is an unpublished draft.
func (v Version) Draft() bool {
	return v.Minor != 0
}

// IsZero reports whether v is the zero version.
func (v Version) IsZero() bool {
	return v == Version{}
}

// NextDraft returns the version an edit produces.
func (v Version) NextDraft() Version {
	return Version{Major: v.Major, Minor: v.Minor + 1}
}

// Published returns the version publishing produces. Published versions are
// returned unchanged.
func (v Version) Published() Version {
	if !v.Draft() {
		return v
	}
	return Version{Major: v.Major + 1}
}

// MarshalJSON encodes the version as "major.minor".
func (v Version) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.String())
}

// UnmarshalJSON decodes a "major.minor" string.
func (v *Version) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseVersion(s)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// Node is a single language content of a node.
type Node struct {
	UUID        string         `json:"uuid"`
	Project     string         `json:"project"`
	Schema      string         `json:"schema"`
	ParentUUID  string         `json:"parentUuid,omitempty"`
	Language    string         `json:"language"`
	Version     Version        `json:"version"`
	Fields      map[string]any `json:"fields"`
	Tags        []string       `json:"tags"`
	DisplayName string         `json:"displayName"`
	EditorID    string         `json:"editorId,omitempty"`
	Edited      time.Time      `json:"edited"`

	// Headline is a highlighted excerpt, set only on keyword search results.
	Headline string `json:"headline,omitempty"`
}

// Project is a named node tree.
type Project struct {
	Name         string    `json:"name"`
	RootNodeUUID string    `json:"rootNodeUuid"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Binary is the value stored in a binary field once a file is attached.
type Binary struct {
	FileName  string `json:"fileName"`
	MimeType  string `json:"mimeType"`
	Size      int64  `json:"size"`
	SHA256    string `json:"sha256"`
	Width     int    `json:"width,omitempty"`
	Height    int    `json:"height,omitempty"`
	Thumbnail string `json:"thumbnail,omitempty"`
}

// WithFallbacks returns the language lookup order for a request: lang first,
// then the configured languages in order, without duplicates. An empty lang
// yields the configured languages.
func WithFallbacks(lang string, languages []string) []string {
	out := make([]string, 0, len(languages)+1)
	if lang != "" {
		out = append(out, lang)
	}
	for _, l := range languages {
		if l != "" && !slices.Contains(out, l) {
			out = append(out, l)
		}
	}
	return out
}

// ValidationError is returned when node fields fail validation.
type ValidationError struct {
	Fields []server.FieldError
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %d field errors", len(e.Fields))
}

// ConflictError is returned when an update names a version other than the
// current one.
type ConflictError struct {
	Requested Version
	Current   Version
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("version conflict: requested %s, current %s", e.Requested, e.Current)
}
