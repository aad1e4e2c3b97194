package schema

import (
	"bytes"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

// LoadSchemas reads all *.yaml, *.yml and *.json files from the given
// directory, parses each into a Schema, computes its hash and returns the
// schemas sorted by name.
//
// An empty directory returns an empty slice with no error.
// A missing directory returns an error.
func LoadSchemas(dir string) ([]Schema, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading schema directory %q: %w", dir, err)
	}

	var schemas []Schema

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext != ".yaml" && ext != ".yml" && ext != ".json" {
			continue
		}

		s, err := LoadSchemaFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("loading schema file %q: %w", entry.Name(), err)
		}

		schemas = append(schemas, s)
	}

	sort.Slice(schemas, func(i, j int) bool {
		return schemas[i].Name < schemas[j].Name
	})

	return schemas, nil
}

// LoadSchemaFile reads a single YAML or JSON schema document. Unknown keys
// (e.g. "lable" instead of "label") are rejected by both decoders.
func LoadSchemaFile(path string) (Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Schema{}, fmt.Errorf("reading file: %w", err)
	}

	var s Schema
	if filepath.Ext(path) == ".json" {
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&s); err != nil {
			return Schema{}, fmt.Errorf("parsing JSON: %w", err)
		}
	} else {
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&s); err != nil {
			return Schema{}, fmt.Errorf("parsing YAML: %w", err)
		}
	}

	s.Hash = ComputeHash(s)
	return s, nil
}

// ComputeHash returns the SHA-256 hex digest of the schema's canonical JSON
// encoding, so that a YAML seed file and the same schema saved through the
// editor hash identically.
func ComputeHash(s Schema) string {
	data, err := json.Marshal(s)
	if err != nil {
		// Schema holds only strings, bools and slices of them.
		panic("schema: marshaling schema for hash: " + err.Error())
	}
	return fmt.Sprintf("%x", sha256.Sum256(data))
}
