package config

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"

	gkerrors "github.com/systmms/gcpkit/internal/errors"
	"github.com/systmms/gcpkit/internal/logging"
	"github.com/systmms/gcpkit/internal/metrics"
	"github.com/systmms/gcpkit/pkg/gcpauth"
	"github.com/systmms/gcpkit/pkg/secretstore"
)

// DefaultPath is the configuration file looked up when --config is not set.
const DefaultPath = "gcpkit.yaml"

// ProjectEnvVar overrides project_id from the file.
const ProjectEnvVar = "GCPKIT_PROJECT"

// DefaultTimeoutMs bounds each backend call when timeout_ms is unset.
const DefaultTimeoutMs = 30000

//go:embed schema.json
var schema string

// Config holds the runtime configuration
type Config struct {
	Path       string
	Logger     *logging.Logger
	Definition *Definition
}

// Definition represents the gcpkit.yaml structure
type Definition struct {
	Version                   int            `yaml:"version"`
	ProjectID                 string         `yaml:"project_id,omitempty"`
	ServiceAccountKeyPath     string         `yaml:"service_account_key_path,omitempty"`
	ImpersonateServiceAccount string         `yaml:"impersonate_service_account,omitempty"`
	TimeoutMs                 *int           `yaml:"timeout_ms,omitempty"`
	Retry                     *RetryConfig   `yaml:"retry,omitempty"`
	Metrics                   MetricsConfig  `yaml:"metrics,omitempty"`
	Rotation                  RotationConfig `yaml:"rotation,omitempty"`
}

// RetryConfig enables bounded retry of transient backend failures. Unset
// fields take their values from secretstore.DefaultRetryPolicy.
type RetryConfig struct {
	MaxAttempts      int     `yaml:"max_attempts,omitempty"`
	InitialBackoffMs int     `yaml:"initial_backoff_ms,omitempty"`
	MaxBackoffMs     int     `yaml:"max_backoff_ms,omitempty"`
	Multiplier       float64 `yaml:"multiplier,omitempty"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen,omitempty"`
	Path    string `yaml:"path,omitempty"`
}

// RotationConfig holds rotate-and-retire options.
type RotationConfig struct {
	Serialize   bool `yaml:"serialize"`
	Diagnostics bool `yaml:"diagnostics"`
}

// Load reads, validates and parses the configuration file. A missing file at
// the default path yields the defaults; a missing file that was asked for
// explicitly is an error.
func (c *Config) Load() error {
	if c.Path == "" {
		c.Path = DefaultPath
	}

	data, err := os.ReadFile(c.Path)
	if err != nil {
		if os.IsNotExist(err) && c.Path == DefaultPath {
			if c.Logger != nil {
				c.Logger.Debug("No %s found, using defaults", DefaultPath)
			}
			c.Definition = &Definition{}
			c.applyEnv()
			return nil
		}
		if os.IsNotExist(err) {
			return gkerrors.ConfigError{
				Field:      "path",
				Value:      c.Path,
				Message:    "configuration file not found",
				Suggestion: "Check the --config path or omit it to use defaults",
				Err:        err,
			}
		}
		return gkerrors.UserError{
			Message:    "Failed to read configuration file",
			Details:    err.Error(),
			Suggestion: "Check file permissions and path",
			Err:        err,
		}
	}

	def, err := Parse(data)
	if err != nil {
		return err
	}
	c.Definition = def
	c.applyEnv()
	return nil
}

// Parse validates data against the configuration schema and decodes it.
func Parse(data []byte) (*Definition, error) {
	var raw interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, gkerrors.ConfigError{
			Message:    "invalid YAML syntax in configuration file",
			Suggestion: "Check for indentation errors, missing quotes, or invalid characters. Use a YAML validator",
			Err:        err,
		}
	}
	if raw != nil {
		if err := validate(raw); err != nil {
			return nil, err
		}
	}

	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, gkerrors.ConfigError{
			Message:    "configuration does not match the expected structure",
			Suggestion: "Compare your gcpkit.yaml with the documented fields",
			Err:        err,
		}
	}
	return &def, nil
}

func validate(raw interface{}) error {
	jsonData, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("failed to marshal configuration for validation: %w", err)
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(schema),
		gojsonschema.NewBytesLoader(jsonData),
	)
	if err != nil {
		return fmt.Errorf("schema validation error: %w", err)
	}
	if result.Valid() {
		return nil
	}

	first := result.Errors()[0]
	var messages []string
	for _, desc := range result.Errors() {
		messages = append(messages, desc.String())
	}
	return gkerrors.ConfigError{
		Field:      first.Field(),
		Value:      first.Value(),
		Message:    "schema validation failed:\n  - " + strings.Join(messages, "\n  - "),
		Suggestion: "Fix the fields listed above in your gcpkit.yaml",
	}
}

func (c *Config) applyEnv() {
	if v := strings.TrimSpace(os.Getenv(ProjectEnvVar)); v != "" {
		c.Definition.ProjectID = v
	}
}

// CallTimeout returns the per-call backend deadline. An explicit zero
// disables it.
func (d *Definition) CallTimeout() time.Duration {
	if d.TimeoutMs == nil {
		return DefaultTimeoutMs * time.Millisecond
	}
	return time.Duration(*d.TimeoutMs) * time.Millisecond
}

// RetryPolicy returns the configured retry policy, or the single-attempt zero
// policy when retry is not configured.
func (d *Definition) RetryPolicy() secretstore.RetryPolicy {
	if d.Retry == nil {
		return secretstore.RetryPolicy{}
	}
	p := secretstore.DefaultRetryPolicy()
	if d.Retry.MaxAttempts > 0 {
		p.MaxAttempts = d.Retry.MaxAttempts
	}
	if d.Retry.InitialBackoffMs > 0 {
		p.Initial = time.Duration(d.Retry.InitialBackoffMs) * time.Millisecond
	}
	if d.Retry.MaxBackoffMs > 0 {
		p.Max = time.Duration(d.Retry.MaxBackoffMs) * time.Millisecond
	}
	if d.Retry.Multiplier >= 1 {
		p.Multiplier = d.Retry.Multiplier
	}
	return p
}

// MetricsServer returns the metrics endpoint configuration.
func (d *Definition) MetricsServer() metrics.ServerConfig {
	cfg := metrics.DefaultServerConfig()
	cfg.Enabled = d.Metrics.Enabled
	if d.Metrics.Listen != "" {
		cfg.Listen = d.Metrics.Listen
	}
	if d.Metrics.Path != "" {
		cfg.Path = d.Metrics.Path
	}
	return cfg
}

// Credentials returns the credential provider described by the file.
func (d *Definition) Credentials() gcpauth.DefaultCredentials {
	return gcpauth.DefaultCredentials{
		KeyFile:            d.ServiceAccountKeyPath,
		ImpersonateAccount: d.ImpersonateServiceAccount,
	}
}
