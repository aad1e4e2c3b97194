package draft

import (
	"slices"
	"testing"
)

func TestAllowSet_KeepsInsertionOrder(t *testing.T) {
	s := NewAllowSet("news", "blog", "news")
	s.Add("event")
	s.Add("blog")

	want := []string{"news", "blog", "event"}
	if got := s.Values(); !slices.Equal(got, want) {
		t.Fatalf("Values() = %v, want %v", got, want)
	}

	s.Remove("blog")
	s.Remove("missing")
	if got := s.Values(); !slices.Equal(got, []string{"news", "event"}) {
		t.Errorf("after Remove, Values() = %v", got)
	}
	if last, ok := s.Last(); !ok || last != "event" {
		t.Errorf("Last() = %q, %v", last, ok)
	}
}

func TestAllowSet_CloneIsIndependent(t *testing.T) {
	s := NewAllowSet("a")
	c := s.Clone()
	c.Add("b")
	if s.Len() != 1 {
		t.Errorf("original modified through clone: %v", s.Values())
	}
}

func TestAllowSet_LastOnEmpty(t *testing.T) {
	if _, ok := NewAllowSet().Last(); ok {
		t.Error("Last() on empty set should report false")
	}
}

func TestSplitChip(t *testing.T) {
	tests := []struct {
		raw    string
		want   string
		commit bool
	}{
		{"", "", false},
		{"opt", "", false},
		{"option1", "", false},
		{",", "", false},
		{"option1,", "option1", true},
		{"option1 ", "option1", true},
		{"a b", "ab", true},
		{"hello-world", "helloworld", true},
		{" x,", "x", true},
	}
	for _, tt := range tests {
		got, ok := splitChip(tt.raw)
		if ok != tt.commit || got != tt.want {
			t.Errorf("splitChip(%q) = %q, %v; want %q, %v", tt.raw, got, ok, tt.want, tt.commit)
		}
	}
}
