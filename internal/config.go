package internal

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/threadlinking/internal/embedding"
	"github.com/starford/threadlinking/internal/pending"
	"github.com/starford/threadlinking/internal/storage"
	"github.com/starford/threadlinking/internal/threadservice"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// maxLockTimeout caps how long a caller may wait for a document lock.
const maxLockTimeout = time.Minute

// Config represents the application configuration.
type Config struct {
	App      ApplicationConfig `yaml:"app"`
	Store    StoreConfig       `yaml:"store"`
	Semantic SemanticConfig    `yaml:"semantic"`
	Watch    WatchConfig       `yaml:"watch"`
	HTTP     HTTPConfig        `yaml:"http"`
	Auth     AuthConfig        `yaml:"auth"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.Store.Validate(); err != nil {
		return fmt.Errorf("store: %w", err)
	}
	if err := c.Semantic.Validate(); err != nil {
		return fmt.Errorf("semantic: %w", err)
	}
	if err := c.Watch.Validate(); err != nil {
		return fmt.Errorf("watch: %w", err)
	}
	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http: %w", err)
	}
	return c.Auth.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
}

// StoreConfig tunes the on-disk documents.
type StoreConfig struct {
	LockTimeout         time.Duration `yaml:"lock_timeout"`
	LockInitialInterval time.Duration `yaml:"lock_initial_interval"`
	LockMaxInterval     time.Duration `yaml:"lock_max_interval"`
	PendingExpiry       time.Duration `yaml:"pending_expiry"`
}

// Validate validates the store configuration.
func (c *StoreConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.LockTimeout, validation.Required, validation.Max(maxLockTimeout)),
		validation.Field(&c.LockInitialInterval, validation.Required, validation.Min(time.Duration(1))),
		validation.Field(&c.LockMaxInterval, validation.Required, validation.Min(time.Duration(1))),
		validation.Field(&c.PendingExpiry, validation.Required, validation.Min(time.Duration(1))),
	); err != nil {
		return err
	}
	if c.LockInitialInterval > c.LockMaxInterval {
		return errors.New("lock_initial_interval must not exceed lock_max_interval")
	}
	return nil
}

// Locker returns the lock timing for every document.
func (c *StoreConfig) Locker() storage.Locker {
	return storage.Locker{
		Timeout:         c.LockTimeout,
		InitialInterval: c.LockInitialInterval,
		MaxInterval:     c.LockMaxInterval,
	}
}

// SemanticConfig selects the embedding provider. Empty Model and ServerURL
// fall back to the provider's defaults.
type SemanticConfig struct {
	Provider          string        `yaml:"provider"`
	Model             string        `yaml:"model"`
	ServerURL         string        `yaml:"server_url"`
	APIKey            string        `yaml:"api_key"`
	BackgroundTimeout time.Duration `yaml:"background_timeout"`
}

// Validate validates the semantic configuration.
func (c *SemanticConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Provider, validation.Required,
			validation.In(embedding.ProviderOllama, embedding.ProviderOpenAI, embedding.ProviderDisabled)),
		validation.Field(&c.APIKey,
			validation.When(c.Provider == embedding.ProviderOpenAI, validation.Required.Error("is required for the openai provider"))),
		validation.Field(&c.BackgroundTimeout, validation.Min(time.Duration(0))),
	)
}

// Embedding converts the section for embedding.New.
func (c *SemanticConfig) Embedding() embedding.Config {
	return embedding.Config{
		Provider:  c.Provider,
		Model:     c.Model,
		ServerURL: c.ServerURL,
		APIKey:    c.APIKey,
	}
}

// WatchConfig configures watch mode.
type WatchConfig struct {
	// Ignore holds doublestar globs matched against absolute paths.
	Ignore []string `yaml:"ignore"`
}

// Validate validates the watch configuration.
func (c *WatchConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Ignore, validation.Each(validation.Required)),
	)
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf("127.0.0.1:%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// AuthConfig holds authentication configuration for serve mode.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required.
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
			LogLevel: slog.LevelWarn,
		},
		Store: StoreConfig{
			LockTimeout:         storage.DefaultLockTimeout,
			LockInitialInterval: storage.DefaultLockInitialInterval,
			LockMaxInterval:     storage.DefaultLockMaxInterval,
			PendingExpiry:       pending.DefaultExpiry,
		},
		Semantic: SemanticConfig{
			Provider:          embedding.ProviderOllama,
			BackgroundTimeout: threadservice.DefaultBackgroundTimeout,
		},
		Watch: WatchConfig{
			Ignore: []string{"**/.git/**", "**/node_modules/**", "**/.threadlinking/**", "**/*.swp", "**/*~"},
		},
		HTTP: HTTPConfig{
			Port: 7341,
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}
