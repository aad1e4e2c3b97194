package config

import (
	"slices"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	for _, k := range []string{"MESH_PORT", "MESH_CONTENT_LANGUAGES", "MESH_REQUEST_TIMEOUT", "MESH_DEV_MODE"} {
		t.Setenv(k, "")
	}
	cfg := Load()

	if cfg.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Port)
	}
	if !slices.Equal(cfg.ContentLanguages, []string{"en"}) {
		t.Errorf("ContentLanguages = %v", cfg.ContentLanguages)
	}
	if cfg.RequestTimeout != 30*time.Second {
		t.Errorf("RequestTimeout = %v", cfg.RequestTimeout)
	}
	if cfg.DevMode {
		t.Error("DevMode should default to false")
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("MESH_PORT", "9090")
	t.Setenv("MESH_CONTENT_LANGUAGES", " de, en ,,fr")
	t.Setenv("MESH_REQUEST_TIMEOUT", "5s")
	t.Setenv("MESH_DEV_MODE", "true")

	cfg := Load()
	if cfg.Port != 9090 {
		t.Errorf("Port = %d, want 9090", cfg.Port)
	}
	if want := []string{"de", "en", "fr"}; !slices.Equal(cfg.ContentLanguages, want) {
		t.Errorf("ContentLanguages = %v, want %v", cfg.ContentLanguages, want)
	}
	if cfg.RequestTimeout != 5*time.Second {
		t.Errorf("RequestTimeout = %v", cfg.RequestTimeout)
	}
	if !cfg.DevMode {
		t.Error("DevMode should be true")
	}
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("MESH_PORT", "eighty")
	t.Setenv("MESH_REQUEST_TIMEOUT", "-1s")
	t.Setenv("MESH_DEV_MODE", "maybe")

	cfg := Load()
	if cfg.Port != 8080 || cfg.RequestTimeout != 30*time.Second || cfg.DevMode {
		t.Errorf("invalid values should fall back to defaults: %+v", cfg)
	}
}

func TestLanguages(t *testing.T) {
	tests := []struct {
		name      string
		languages []string
		fallback  string
		want      []string
	}{
		{"fallback listed", []string{"de", "en", "fr"}, "en", []string{"en", "de", "fr"}},
		{"fallback missing", []string{"de"}, "en", []string{"en", "de"}},
		{"only fallback", []string{"en"}, "en", []string{"en"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{ContentLanguages: tt.languages, FallbackLanguage: tt.fallback}
			if got := cfg.Languages(); !slices.Equal(got, tt.want) {
				t.Errorf("Languages() = %v, want %v", got, tt.want)
			}
		})
	}
}
