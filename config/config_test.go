package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := Default()
	if !reflect.DeepEqual(cfg, want) {
		t.Fatalf("Load() = %+v, want defaults %+v", cfg, want)
	}
}

func TestLoadLayering(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)

	writeFile(t, filepath.Join(dir, FileName), `
target_lang: de
provider: hosted
methods: [ai]
hosted:
  model: file-model
  keys: [k1, k2]
  rotate_cooldown: 10s
ollama:
  min_interval: 2s
local:
  module: google
`)
	writeFile(t, filepath.Join(dir, ".env"), "MODTR_OLLAMA_MODEL=llama3:8b\nMODTR_HOSTED_MODEL=dotenv-model\n")

	t.Setenv("MODTR_HOSTED_MODEL", "env-model")
	t.Setenv("MODTR_HOSTED_KEYS", "k2, k3,,")
	t.Setenv("MODTR_BREAKER_OPEN_TIMEOUT", "1m")
	t.Cleanup(func() { os.Unsetenv("MODTR_OLLAMA_MODEL") })

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	checks := []struct {
		name string
		got  any
		want any
	}{
		{"target from file", cfg.TargetLang, "de"},
		{"source default kept", cfg.SourceLang, "en"},
		{"provider from file", cfg.Provider, "hosted"},
		{"methods from file", cfg.Methods, []string{"ai"}},
		{"env beats .env and file", cfg.Hosted.Model, "env-model"},
		{".env fills unset variable", cfg.Ollama.Model, "llama3:8b"},
		{"keys merged in order", cfg.Hosted.Keys, []string{"k1", "k2", "k3"}},
		{"duration from file", cfg.Hosted.RotateCooldown, 10 * time.Second},
		{"duration from env", cfg.Breaker.OpenTimeout, time.Minute},
		{"nested file value", cfg.Ollama.MinInterval, 2 * time.Second},
		{"module from file", cfg.Local.Module, "google"},
		{"untouched default", cfg.Hosted.MaxRetriesPerKey, 3},
	}
	for _, c := range checks {
		if !reflect.DeepEqual(c.got, c.want) {
			t.Errorf("%s: got %v, want %v", c.name, c.got, c.want)
		}
	}
}

func TestLoadExplicitPath(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	path := filepath.Join(dir, "custom.yaml")
	writeFile(t, path, "cache_size: 42\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.CacheSize != 42 {
		t.Fatalf("CacheSize = %d, want 42", cfg.CacheSize)
	}
}

func TestLoadUILanguage(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	writeFile(t, filepath.Join(dir, FileName), "ui_language: ru\n")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.UILanguage != "ru" {
		t.Fatalf("UILanguage from file = %q, want ru", cfg.UILanguage)
	}

	t.Setenv("MODTR_UI_LANGUAGE", "pt_BR")
	cfg, err = Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.UILanguage != "pt_BR" {
		t.Fatalf("UILanguage from env = %q, want pt_BR", cfg.UILanguage)
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		env     map[string]string
		wantErr string
	}{
		{name: "bad yaml", file: "methods: [\n", wantErr: "parsing"},
		{name: "unknown method", file: "methods: [local, magic]\n", wantErr: `unknown method "magic"`},
		{name: "bad provider", file: "provider: deepl\n", wantErr: "provider must be"},
		{name: "bad module", file: "local:\n  module: yandex\n", wantErr: "local.module"},
		{name: "zero cache", file: "cache_size: 0\n", wantErr: "cache_size"},
		{name: "bad env duration", env: map[string]string{"MODTR_OLLAMA_TIMEOUT": "soon"}, wantErr: "MODTR_"},
		{name: "bad temperature", env: map[string]string{"MODTR_HOSTED_TEMPERATURE": "3"}, wantErr: "hosted.temperature"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			chdir(t, dir)
			if tt.file != "" {
				writeFile(t, filepath.Join(dir, FileName), tt.file)
			}
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load("")
			if err == nil {
				t.Fatalf("Load() succeeded, want error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Load() error = %v, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestMergeKeys(t *testing.T) {
	got := MergeKeys([]string{" a ", "b"}, nil, []string{"", "b", "c"}, []string{"a", "d"})
	want := []string{"a", "b", "c", "d"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("MergeKeys() = %v, want %v", got, want)
	}
	if MergeKeys() != nil {
		t.Fatalf("MergeKeys() of nothing should be nil")
	}
}

// chdir changes the working directory for the duration of the test,
// restoring it on cleanup (equivalent to testing.T.Chdir, Go 1.24+).
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Chdir: %v", err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(old); err != nil {
			t.Fatalf("Chdir: %v", err)
		}
	})
}
