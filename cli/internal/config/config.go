package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/botui/chatflow/runtime"
)

// FileName is the config file looked up in the project directory.
const FileName = "chatflow.yaml"

// Config is the chatflow.yaml structure of a served conversation.
// Component sections stay raw; each component applies its own defaults
// and validation through runtime.InitializeConfig.
type Config struct {
	Addr       string `yaml:"addr" default:":8080" validate:"hostname_port"`
	Channel    string `yaml:"channel" default:"chat-config" validate:"required"`
	ScriptsDir string `yaml:"scripts_dir" default:"scripts" validate:"required"`
	Script     string `yaml:"script" validate:"required"`
	LogLevel   string `yaml:"log_level" default:"info" validate:"oneof=debug info warn error"`

	Theme map[string]any        `yaml:"theme"`
	Forms map[string]FormConfig `yaml:"forms"` // keyed by form selector

	Engine   map[string]any `yaml:"engine"`
	Webhook  map[string]any `yaml:"webhook"`
	FormPush map[string]any `yaml:"form_push"`
	Postgres map[string]any `yaml:"postgres"` // absent: snapshots live in memory only
}

// FormConfig declares a form the formPush job can fill.
type FormConfig struct {
	Action string `yaml:"action"`
	Method string `yaml:"method"`
}

// Load reads chatflow.yaml from projectDir, resolves ${VAR} references with
// lookup and applies overrides (keyed like the file) before defaults and
// validation. ScriptsDir is returned absolute and must stay inside projectDir.
func Load(projectDir string, lookup LookupFunc, overrides map[string]any) (*Config, error) {
	raw := map[string]any{}

	path := filepath.Join(projectDir, FileName)
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", FileName, err)
		}
		if raw == nil {
			raw = map[string]any{}
		}
	case os.IsNotExist(err):
		// Flags alone are enough to serve a script.
	default:
		return nil, fmt.Errorf("failed to read %s from %q: %w", FileName, path, err)
	}

	expanded, err := ExpandEnv(raw, lookup)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", FileName, err)
	}
	values := expanded.(map[string]any)
	for k, v := range overrides {
		values[k] = v
	}

	var cfg Config
	if err := runtime.InitializeConfig(&cfg, values); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", FileName, err)
	}

	dir := cfg.ScriptsDir
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(projectDir, dir)
	}
	if err := withinDir(projectDir, dir); err != nil {
		return nil, fmt.Errorf("invalid scripts_dir: %w", err)
	}
	if dir, err = filepath.Abs(dir); err != nil {
		return nil, fmt.Errorf("invalid scripts_dir: %w", err)
	}
	cfg.ScriptsDir = dir

	return &cfg, nil
}

// withinDir rejects target paths that escape root through "..".
func withinDir(root, target string) error {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("failed to resolve %q: %w", root, err)
	}
	absTarget, err := filepath.Abs(target)
	if err != nil {
		return fmt.Errorf("failed to resolve %q: %w", target, err)
	}

	rel, err := filepath.Rel(absRoot, absTarget)
	if err != nil {
		return fmt.Errorf("invalid path relationship between %q and %q: %w", absRoot, absTarget, err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("path %q escapes %q", target, root)
	}
	return nil
}
