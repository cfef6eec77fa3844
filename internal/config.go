package internal

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/vaultkeep/internal/engine"
	"github.com/starford/vaultkeep/internal/storage"
	"github.com/starford/vaultkeep/internal/templates"
	vvalidation "github.com/starford/vaultkeep/internal/validation"
	"github.com/starford/vaultkeep/internal/watcher"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App        ApplicationConfig `yaml:"app"`
	Vault      VaultConfig       `yaml:"vault"`
	Index      IndexConfig       `yaml:"index"`
	Auth       AuthConfig        `yaml:"auth"`
	Validation ValidationConfig  `yaml:"validation"`
	// Templates are added to the built-in note templates.
	Templates []templates.Template `yaml:"templates"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return fmt.Errorf("app: %w", err)
	}
	if err := c.Vault.Validate(); err != nil {
		return fmt.Errorf("vault: %w", err)
	}
	if err := c.Index.Validate(); err != nil {
		return fmt.Errorf("index: %w", err)
	}
	if err := c.Validation.Validate(); err != nil {
		return fmt.Errorf("validation: %w", err)
	}
	for i, t := range c.Templates {
		if err := t.Validate(); err != nil {
			return fmt.Errorf("templates[%d]: %w", i, err)
		}
	}
	return c.Auth.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level    `yaml:"log_level"`
	HTTP     HTTPConfig    `yaml:"http"`
	Metrics  MetricsConfig `yaml:"metrics"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port            int           `yaml:"port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
		validation.Field(&c.ShutdownTimeout, validation.Min(time.Duration(0))),
	)
}

// MetricsConfig toggles the Prometheus /metrics route.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// VaultConfig describes the vault directory and how it is read.
type VaultConfig struct {
	Path          string        `yaml:"path"`
	MaxFileSize   int64         `yaml:"max_file_size"`
	CacheTTL      time.Duration `yaml:"cache_ttl"`
	Excluded      []string      `yaml:"excluded"`
	Extensions    []string      `yaml:"extensions"`
	Watch         bool          `yaml:"watch"`
	WatchDebounce time.Duration `yaml:"watch_debounce"`
	LockTimeout   time.Duration `yaml:"lock_timeout"`
}

// Validate validates the vault configuration.
func (c *VaultConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
		validation.Field(&c.MaxFileSize, validation.Min(int64(1))),
		validation.Field(&c.CacheTTL, validation.Min(time.Duration(0))),
		validation.Field(&c.WatchDebounce, validation.Min(time.Duration(0))),
		validation.Field(&c.LockTimeout, validation.Min(time.Duration(0))),
		validation.Field(&c.Extensions, validation.Each(validation.By(dotted))),
	)
}

func dotted(v any) error {
	s, _ := v.(string)
	if !strings.HasPrefix(s, ".") || len(s) < 2 {
		return fmt.Errorf("extension %q must start with a dot", s)
	}
	return nil
}

// EngineConfig maps the vault section onto an engine configuration.
func (c *Config) EngineConfig() engine.Config {
	return engine.Config{
		Root:        c.Vault.Path,
		MaxFileSize: c.Vault.MaxFileSize,
		CacheTTL:    c.Vault.CacheTTL,
		Excluded:    c.Vault.Excluded,
		Extensions:  c.Vault.Extensions,
		LockTimeout: c.Vault.LockTimeout,
		Validators:  c.Validation.Validators(),
		Templates:   c.Templates,
	}
}

// IndexConfig holds the optional SQLite search index.
type IndexConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Validate validates the index configuration.
func (c *IndexConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.When(c.Enabled, validation.Required)),
	)
}

// ValidationConfig selects the checks validate_file runs besides link checks.
type ValidationConfig struct {
	RequiredFrontmatter []string `yaml:"required_frontmatter"`
	TagsMustBeList      bool     `yaml:"tags_must_be_list"`
	MinLength           int      `yaml:"min_length"`
	MaxLength           int      `yaml:"max_length"`
	RequireHeading      bool     `yaml:"require_heading"`
}

// Validate validates the validation configuration.
func (c *ValidationConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.MinLength, validation.Min(0)),
		validation.Field(&c.MaxLength, validation.Min(0), validation.When(c.MaxLength > 0, validation.Min(c.MinLength))),
		validation.Field(&c.RequiredFrontmatter, validation.Each(validation.Required)),
	)
}

// Validators builds the configured validators. Frontmatter checks only run
// when something is required of frontmatter.
func (c *ValidationConfig) Validators() vvalidation.Validators {
	var vs vvalidation.Validators
	if len(c.RequiredFrontmatter) > 0 || c.TagsMustBeList {
		vs = append(vs, vvalidation.FrontmatterValidator{Required: c.RequiredFrontmatter, TagsMustBeList: c.TagsMustBeList})
	}
	vs = append(vs, vvalidation.ContentValidator{
		MinLength:      c.MinLength,
		MaxLength:      c.MaxLength,
		RequireHeading: c.RequireHeading,
	})
	return vs
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port:            8080,
				ShutdownTimeout: 10 * time.Second,
			},
			Metrics: MetricsConfig{Enabled: true},
		},
		Vault: VaultConfig{
			Path:          "./vault",
			MaxFileSize:   storage.DefaultMaxFileSize,
			CacheTTL:      time.Hour,
			Excluded:      engine.DefaultExcluded,
			Extensions:    engine.DefaultExtensions,
			Watch:         true,
			WatchDebounce: watcher.DefaultDebounce,
		},
		Index: IndexConfig{
			Path: "./vaultkeep.db",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}
