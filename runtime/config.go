package runtime

import (
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
)

// Package-level validator instance
var validate *validator.Validate

// init initializes the validator and registers custom validation functions
func init() {
	validate = validator.New()

	// Register custom validators
	registerCustomValidators()
}

// EngineConfig bounds how long evaluation and side effects may run.
type EngineConfig struct {
	// ScriptTimeout bounds a single inline script, custom value script or onSubmit callback.
	ScriptTimeout time.Duration `yaml:"script_timeout" default:"5s" validate:"gte=10ms"`
	// JobTimeout bounds a whole job dispatch, including network calls.
	JobTimeout time.Duration `yaml:"job_timeout" default:"30s" validate:"gte=1s"`
}

// DefaultEngineConfig returns an EngineConfig with all defaults applied.
func DefaultEngineConfig() EngineConfig {
	var c EngineConfig
	_ = ApplyDefaults(&c)
	return c
}

// InitializeConfig prepares a component config in one call:
// defaults → value merging → validation.
func InitializeConfig(config any, rawValues map[string]any) error {
	// Step 1: Apply defaults from struct tags
	if err := ApplyDefaults(config); err != nil {
		slog.Error("Config: failed to apply defaults",
			"config_type", reflect.TypeOf(config).String(),
			"error", err)
		return fmt.Errorf("failed to apply defaults: %w", err)
	}

	// Step 2: Merge raw values (env-resolved literals from chatflow.yaml)
	if len(rawValues) > 0 {
		if err := mapToStructFromYAML(rawValues, config); err != nil {
			slog.Error("Config: failed to apply config values",
				"config_type", reflect.TypeOf(config).String(),
				"raw_values", rawValues,
				"error", err)
			return fmt.Errorf("failed to apply config values: %w", err)
		}
	}

	// Step 3: Validate final config (after rawValues are merged)
	configValue := reflect.ValueOf(config)
	if configValue.Kind() == reflect.Ptr {
		configValue = configValue.Elem()
	}

	if err := validateConfig(configValue.Interface()); err != nil {
		slog.Error("Config validation failed",
			"config_type", reflect.TypeOf(config).String(),
			"config_value", configValue.Interface(),
			"error", err)
		return fmt.Errorf("validation failed: %w", err)
	}

	return nil
}

// registerCustomValidators registers framework-provided custom validation functions
func registerCustomValidators() {
	// hostname_port validates "host:port" format with numeric port; the host may be empty (":8080")
	validate.RegisterValidation("hostname_port", func(fl validator.FieldLevel) bool {
		addr := fl.Field().String()
		_, port, err := net.SplitHostPort(addr)
		if err != nil || port == "" {
			return false
		}
		_, err = net.LookupPort("tcp", port)
		return err == nil
	})

	// url_format validates URL structure
	validate.RegisterValidation("url_format", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		u, err := url.Parse(s)
		return err == nil && u.Scheme != "" && u.Host != ""
	})

	// sql_identifier validates an unquoted table or column name
	validate.RegisterValidation("sql_identifier", func(fl validator.FieldLevel) bool {
		return sqlIdentifierRe.MatchString(fl.Field().String())
	})
}

var sqlIdentifierRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

func ApplyDefaults(config any) error {
	if config == nil {
		return fmt.Errorf("config cannot be nil")
	}

	if err := defaults.Set(config); err != nil {
		return fmt.Errorf("failed to apply default values: %w", err)
	}

	return nil
}

func validateConfig(config any) error {
	if config == nil {
		return fmt.Errorf("config cannot be nil")
	}

	if err := validate.Struct(config); err != nil {
		return fmt.Errorf("config validation failed:\n  - %s", formatValidationErrors(err, "\n  - "))
	}

	return nil
}

// formatValidationErrors renders validator errors one field per entry.
func formatValidationErrors(err error, sep string) string {
	validationErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		return err.Error()
	}
	var errMessages []string
	for _, fieldErr := range validationErrors {
		errMessages = append(errMessages, fmt.Sprintf(
			"field '%s' failed validation: %s (rule: %s)",
			fieldErr.Namespace(),
			fieldErr.Error(),
			fieldErr.Tag(),
		))
	}
	return strings.Join(errMessages, sep)
}

// mapToStructFromYAML merges raw config values into a struct keyed by yaml tags.
func mapToStructFromYAML(m map[string]any, target any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:  target,
		TagName: "yaml",
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToTimeHookFunc(time.RFC3339),
		),
		WeaklyTypedInput: true,
	})
	if err != nil {
		return fmt.Errorf("failed to create decoder: %w", err)
	}

	if err := decoder.Decode(m); err != nil {
		return fmt.Errorf("failed to decode map to struct: %w", err)
	}

	return nil
}
