package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// AppConfig holds configuration values parsed from environment variables.
type AppConfig struct {
	// Env is the runtime environment, either "dev" or "prod".
	Env string `koanf:"env" validate:"required,oneof=dev prod"`

	// LogLevel controls log verbosity: "debug", "info", "warn", or "error".
	LogLevel string `koanf:"log_level" validate:"required,oneof=debug info warn error"`

	// Listen is the host:port the message API binds to.
	Listen string `koanf:"listen" validate:"required"`

	// DBPath is the bbolt database file holding sites, settings and stats.
	DBPath string `koanf:"db_path" validate:"required"`

	// Backend selects the enforcement strategy. "auto" probes platform
	// capabilities at startup; the other values force a variant.
	Backend string `koanf:"backend" validate:"required,oneof=auto intercept declarative"`

	// CacheSize bounds the snapshot's per-URL decision cache. Zero
	// disables decision caching.
	CacheSize int `koanf:"cache_size" validate:"gte=0"`

	// DefaultUnlockMinutes applies to grants that carry no duration.
	DefaultUnlockMinutes int `koanf:"default_unlock_minutes" validate:"required,gte=1,lte=1440"`

	// BlockedPage is the locator blocked navigations are redirected to.
	BlockedPage string `koanf:"blocked_page" validate:"required,block_page"`
}

// DEFAULT_APP_CONFIG defines the default application configuration.
var DEFAULT_APP_CONFIG = AppConfig{
	Env:                  "prod",
	LogLevel:             "info",
	Listen:               "127.0.0.1:8317",
	DBPath:               "/var/lib/haltgate/haltgate.db",
	Backend:              "auto",
	CacheSize:            1024,
	DefaultUnlockMinutes: 60,
	BlockedPage:          "haltgate://blocked",
}

// validBlockPage accepts any parsable absolute locator. The blocked
// page may be an extension-internal scheme, so only basic URL shape is
// enforced here.
func validBlockPage(fl validator.FieldLevel) bool {
	u, err := url.Parse(fl.Field().String())
	if err != nil {
		return false
	}
	return u.Scheme != ""
}

// envLoader loads environment variables with the prefix "GATE_",
// lowercasing keys and trimming the prefix. Mockable in tests.
var envLoader = func(k *koanf.Koanf) error {
	return k.Load(env.Provider(".", env.Opt{
		Prefix: "GATE_",
		TransformFunc: func(key, value string) (string, any) {
			key = strings.ToLower(strings.TrimPrefix(key, "GATE_"))
			return key, strings.TrimSpace(value)
		},
	}), nil)
}

// defaultLoader loads default configuration values using the structs provider.
var defaultLoader = func(k *koanf.Koanf) error {
	return k.Load(structs.Provider(DEFAULT_APP_CONFIG, "koanf"), nil)
}

// registerValidation registers the custom "block_page" validator.
var registerValidation = func(v *validator.Validate) error {
	return v.RegisterValidation("block_page", validBlockPage)
}

// Load parses environment variables and returns an AppConfig instance.
// It applies default values and runs validation automatically.
func Load() (*AppConfig, error) {
	k := koanf.New(".")

	if err := defaultLoader(k); err != nil {
		return nil, fmt.Errorf("error loading default config: %w", err)
	}

	if err := envLoader(k); err != nil {
		return nil, fmt.Errorf("error loading env: %w", err)
	}

	var cfg AppConfig
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := registerValidation(validate); err != nil {
		return nil, fmt.Errorf("error registering validation: %w", err)
	}

	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	return &cfg, nil
}
