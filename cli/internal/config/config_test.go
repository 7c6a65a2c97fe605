package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return dir
}

func TestLoad(t *testing.T) {
	dir := writeConfig(t, `
script: signup
addr: ${CHATFLOW_ADDR:127.0.0.1:9090}
theme:
  primary: "#0af"
forms:
  "#signup":
    action: https://example.com/signup
    method: POST
webhook:
  headers:
    Authorization: ${HOOK_TOKEN}
postgres:
  connection_string: ${PG_URL:postgres://localhost/chat}
`)

	cfg, err := Load(dir, lookupFrom(map[string]string{"HOOK_TOKEN": "Bearer abc"}), nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Script != "signup" || cfg.Addr != "127.0.0.1:9090" {
		t.Errorf("script=%q addr=%q", cfg.Script, cfg.Addr)
	}
	if cfg.Channel != "chat-config" || cfg.LogLevel != "info" {
		t.Errorf("defaults not applied: channel=%q log_level=%q", cfg.Channel, cfg.LogLevel)
	}
	if want := filepath.Join(dir, "scripts"); cfg.ScriptsDir != want {
		t.Errorf("scripts_dir = %q, want %q", cfg.ScriptsDir, want)
	}
	if cfg.Theme["primary"] != "#0af" {
		t.Errorf("theme = %v", cfg.Theme)
	}
	if f := cfg.Forms["#signup"]; f.Action != "https://example.com/signup" || f.Method != "POST" {
		t.Errorf("forms = %+v", cfg.Forms)
	}
	headers, _ := cfg.Webhook["headers"].(map[string]any)
	if headers["Authorization"] != "Bearer abc" {
		t.Errorf("webhook section = %v", cfg.Webhook)
	}
	if cfg.Postgres["connection_string"] != "postgres://localhost/chat" {
		t.Errorf("postgres section = %v", cfg.Postgres)
	}
}

func TestLoad_WithoutFile(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(dir, lookupFrom(nil), map[string]any{"script": "survey", "log_level": "debug"})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Script != "survey" || cfg.LogLevel != "debug" || cfg.Addr != ":8080" {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.Postgres != nil {
		t.Error("postgres section should be absent")
	}
}

func TestLoad_OverridesWin(t *testing.T) {
	dir := writeConfig(t, "script: signup\naddr: \":7000\"\n")
	cfg, err := Load(dir, lookupFrom(nil), map[string]any{"addr": ":7001"})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Addr != ":7001" {
		t.Errorf("addr = %q", cfg.Addr)
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"missing script", "addr: \":8080\"\n", "Script"},
		{"bad addr", "script: a\naddr: nowhere\n", "Addr"},
		{"bad log level", "script: a\nlog_level: loud\n", "LogLevel"},
		{"unset variable", "script: ${SCRIPT_NAME}\n", "SCRIPT_NAME"},
		{"escaping scripts dir", "script: a\nscripts_dir: ../elsewhere\n", "scripts_dir"},
		{"broken yaml", "script: [", "parse"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := writeConfig(t, tt.content)
			_, err := Load(dir, lookupFrom(nil), nil)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want it to mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestWithinDir(t *testing.T) {
	root := t.TempDir()
	tests := []struct {
		target string
		ok     bool
	}{
		{root, true},
		{filepath.Join(root, "scripts"), true},
		{filepath.Join(root, "..dots"), true},
		{filepath.Join(root, "..", "other"), false},
		{filepath.Dir(root), false},
	}

	for _, tt := range tests {
		if err := withinDir(root, tt.target); (err == nil) != tt.ok {
			t.Errorf("withinDir(%q) error = %v, want ok=%v", tt.target, err, tt.ok)
		}
	}
}
