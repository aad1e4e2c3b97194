package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeSchema(t *testing.T, dir, name, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
}

func runRoot(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestSchemaCheck(t *testing.T) {
	dir := t.TempDir()
	writeSchema(t, dir, "article.yaml", `name: article
displayField: title
fields:
  - name: title
    label: Title
    type: string
    required: true
  - name: category
    label: Category
    type: string
    allow: [news, sport]
`)
	writeSchema(t, dir, "folder.json", `{"name":"folder","container":true,"fields":[{"name":"name","label":"Name","type":"string"}]}`)

	out, err := runRoot(t, "schema", "check", dir)
	if err != nil {
		t.Fatalf("schema check: %v\n%s", err, out)
	}
	if !strings.Contains(out, "2 schema(s) valid") || !strings.Contains(out, "article\t2 fields") {
		t.Errorf("unexpected output:\n%s", out)
	}
}

func TestSchemaCheck_Invalid(t *testing.T) {
	dir := t.TempDir()
	writeSchema(t, dir, "broken.yaml", `name: broken
fields:
  - name: tags
    label: Tags
    type: list
`)

	if _, err := runRoot(t, "schema", "check", dir); err == nil || !strings.Contains(err.Error(), "listType") {
		t.Errorf("err = %v, want a listType problem", err)
	}
}

func TestSchemaCheck_MissingDir(t *testing.T) {
	if _, err := runRoot(t, "schema", "check", filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Error("expected an error for a missing directory")
	}
}

func TestMigrate_RequiresDatabaseURL(t *testing.T) {
	t.Setenv("MESH_DATABASE_URL", "")
	if _, err := runRoot(t, "migrate"); err == nil || !strings.Contains(err.Error(), "MESH_DATABASE_URL") {
		t.Errorf("err = %v", err)
	}
}
