package config

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/FocuswithJustin/reflink/core/citation"
)

func quietLoader(home, work string, env map[string]string) *Loader {
	l := NewLoader(slog.New(slog.NewTextHandler(io.Discard, nil)))
	l.HomeDir = home
	l.WorkDir = work
	l.Getenv = func(k string) string { return env[k] }
	return l
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("DefaultConfig().Validate() = %v", err)
	}
	b := cfg.Links()
	if b.BaseURL != citation.DefaultBaseURL || b.DefaultVersion != citation.NLT {
		t.Errorf("Links() = %+v", b)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"relative base url", func(c *Config) { c.Link.BaseURL = "/bible" }},
		{"ftp base url", func(c *Config) { c.Link.BaseURL = "ftp://example.com" }},
		{"unknown version", func(c *Config) { c.Link.DefaultVersion = "XYZ" }},
		{"port zero", func(c *Config) { c.Server.Port = 0 }},
		{"port too large", func(c *Config) { c.Server.Port = 70000 }},
		{"log level", func(c *Config) { c.Log.Level = "loud" }},
		{"log format", func(c *Config) { c.Log.Format = "xml" }},
		{"negative debounce", func(c *Config) { c.Watch.Debounce = -time.Second }},
		{"negative rate limit", func(c *Config) { c.Server.RateLimit = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate() = nil, want error")
			}
		})
	}
}

func TestSaveAndLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "reflink.yaml")
	cfg := DefaultConfig()
	cfg.Link.DefaultVersion = "KJV"
	cfg.Document.Exclude = []string{"blockquote"}
	cfg.Watch.Debounce = time.Second

	if err := cfg.SaveToFile(path); err != nil {
		t.Fatalf("SaveToFile() = %v", err)
	}
	got, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile() = %v", err)
	}
	if got.Link.DefaultVersion != "KJV" || got.Watch.Debounce != time.Second {
		t.Errorf("round trip lost values: %+v", got)
	}
	if len(got.Document.Exclude) != 1 || got.Document.Exclude[0] != "blockquote" {
		t.Errorf("Exclude = %v", got.Document.Exclude)
	}
}

func TestLoadFromFileErrors(t *testing.T) {
	if _, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("missing file: want error")
	}
	bad := filepath.Join(t.TempDir(), "bad.yaml")
	writeFile(t, bad, "link: [unterminated")
	if _, err := LoadFromFile(bad); err == nil {
		t.Error("malformed yaml: want error")
	}
}

func TestMerge(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Merge(nil)
	cfg.Merge(&Config{
		Link:   LinkConfig{DefaultVersion: "ESV"},
		Server: ServerConfig{AllowedOrigins: []string{"https://a.example"}},
	})
	if cfg.Link.DefaultVersion != "ESV" {
		t.Errorf("DefaultVersion = %q, want ESV", cfg.Link.DefaultVersion)
	}
	if cfg.Link.BaseURL != citation.DefaultBaseURL {
		t.Errorf("BaseURL = %q, zero value should not override", cfg.Link.BaseURL)
	}
	if cfg.Server.Port != 8080 || len(cfg.Server.AllowedOrigins) != 1 {
		t.Errorf("Server = %+v", cfg.Server)
	}
}

func TestLoaderPrecedence(t *testing.T) {
	home := t.TempDir()
	work := filepath.Join(t.TempDir(), "site", "posts")
	if err := os.MkdirAll(work, 0o755); err != nil {
		t.Fatal(err)
	}

	writeFile(t, filepath.Join(home, UserConfigDir, UserConfigFile),
		"link:\n  default_version: KJV\nserver:\n  port: 9000\nlog:\n  level: debug\n")
	// project config lives in a parent of the working directory
	writeFile(t, filepath.Join(filepath.Dir(work), ProjectConfigFile),
		"link:\n  default_version: ESV\n")

	env := map[string]string{
		"REFLINK_PORT":            "9100",
		"REFLINK_RATE_LIMIT":      "120",
		"REFLINK_EXCLUDE":         "aside, figure ,",
		"REFLINK_WATCH_DEBOUNCE":  "2s",
		"REFLINK_ALLOWED_ORIGINS": "https://a.example",
	}
	cfg, err := quietLoader(home, work, env).Load("")
	if err != nil {
		t.Fatalf("Load() = %v", err)
	}

	if cfg.Link.DefaultVersion != "ESV" {
		t.Errorf("DefaultVersion = %q, want project value ESV", cfg.Link.DefaultVersion)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want user value debug", cfg.Log.Level)
	}
	if cfg.Server.Port != 9100 || cfg.Server.RateLimit != 120 {
		t.Errorf("Server = %+v, want env port 9100 and rate limit 120", cfg.Server)
	}
	if strings.Join(cfg.Document.Exclude, "|") != "aside|figure" {
		t.Errorf("Exclude = %q", cfg.Document.Exclude)
	}
	if cfg.Watch.Debounce != 2*time.Second {
		t.Errorf("Debounce = %v", cfg.Watch.Debounce)
	}
	if len(cfg.Server.AllowedOrigins) != 1 {
		t.Errorf("AllowedOrigins = %v", cfg.Server.AllowedOrigins)
	}
}

func TestLoaderExplicitPath(t *testing.T) {
	work := t.TempDir()
	writeFile(t, filepath.Join(work, ProjectConfigFile), "link:\n  default_version: ESV\n")
	explicit := filepath.Join(t.TempDir(), "other.yaml")
	writeFile(t, explicit, "link:\n  default_version: NIV\n")

	cfg, err := quietLoader(t.TempDir(), work, nil).Load(explicit)
	if err != nil {
		t.Fatalf("Load() = %v", err)
	}
	if cfg.Link.DefaultVersion != "NIV" {
		t.Errorf("DefaultVersion = %q, want explicit NIV", cfg.Link.DefaultVersion)
	}

	if _, err := quietLoader(t.TempDir(), work, nil).Load(filepath.Join(work, "nope.yaml")); err == nil {
		t.Error("missing explicit config: want error")
	}
}

func TestLoaderRejectsBadEnv(t *testing.T) {
	tests := map[string]string{
		"REFLINK_PORT":            "eighty",
		"REFLINK_RATE_LIMIT":      "many",
		"REFLINK_WATCH_DEBOUNCE":  "soon",
		"REFLINK_DEFAULT_VERSION": "XYZ",
		"REFLINK_BASE_URL":        "biblehub.com",
	}
	for key, value := range tests {
		t.Run(key, func(t *testing.T) {
			_, err := quietLoader(t.TempDir(), t.TempDir(), map[string]string{key: value}).Load("")
			if err == nil {
				t.Errorf("%s=%q: want error", key, value)
			}
		})
	}
}

func TestLoaderDotEnv(t *testing.T) {
	const key = "REFLINK_DEFAULT_VERSION"
	if _, set := os.LookupEnv(key); set {
		t.Skipf("%s already set in the environment", key)
	}
	t.Cleanup(func() { os.Unsetenv(key) })

	work := t.TempDir()
	writeFile(t, filepath.Join(work, ".env"), key+"=WEB\n")

	l := quietLoader(t.TempDir(), work, nil)
	l.Getenv = nil
	cfg, err := l.Load("")
	if err != nil {
		t.Fatalf("Load() = %v", err)
	}
	if cfg.Link.DefaultVersion != "WEB" {
		t.Errorf("DefaultVersion = %q, want WEB from .env", cfg.Link.DefaultVersion)
	}
}

func TestEnsureUserConfig(t *testing.T) {
	home := t.TempDir()
	l := quietLoader(home, t.TempDir(), nil)

	path, err := l.EnsureUserConfig()
	if err != nil {
		t.Fatalf("EnsureUserConfig() = %v", err)
	}
	if path != filepath.Join(home, UserConfigDir, UserConfigFile) {
		t.Errorf("path = %q", path)
	}
	if _, err := LoadFromFile(path); err != nil {
		t.Errorf("created config does not load: %v", err)
	}
	if again, err := l.EnsureUserConfig(); err != nil || again != path {
		t.Errorf("second call = (%q, %v)", again, err)
	}
}
