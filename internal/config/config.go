package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Settings holds the server configuration. Values are resolved in order:
// built-in defaults, then the YAML config file, then TTYGATE_* environment
// variables. Defaults live in defaultSettings, not in struct tags: envconfig
// re-applies a `default` tag whenever the variable is unset, which would
// clobber values read from the file.
type Settings struct {
	Host  string `envconfig:"HOST" yaml:"host"`
	Port  int    `envconfig:"PORT" yaml:"port"`
	Debug bool   `envconfig:"DEBUG" yaml:"debug"`

	// TLS serves HTTPS with a self-signed certificate that is generated on
	// first start and persisted in the settings table.
	TLS bool `envconfig:"TLS" yaml:"tls"`

	// DataPath is where the database and log file live. Empty means
	// ~/.ttygate.
	DataPath     string `envconfig:"DATA_PATH" yaml:"data_path"`
	DatabasePath string `envconfig:"DATABASE_PATH" yaml:"database_path"`
	LogPath      string `envconfig:"LOG_PATH" yaml:"log_path"`

	// SecretKey signs bearer tokens. When empty, a key is generated on
	// first start and persisted (encrypted) in the settings table.
	SecretKey      string `envconfig:"SECRET_KEY" yaml:"secret_key"`
	PassphraseHash string `envconfig:"PASSPHRASE_HASH" yaml:"passphrase_hash"`

	AccessTokenTTL  time.Duration `envconfig:"ACCESS_TOKEN_TTL" yaml:"access_token_ttl"`
	RefreshTokenTTL time.Duration `envconfig:"REFRESH_TOKEN_TTL" yaml:"refresh_token_ttl"`

	// AuditRetention controls how long audit events are kept before the
	// background prune job removes them. Zero disables pruning.
	AuditRetention time.Duration `envconfig:"AUDIT_RETENTION" yaml:"audit_retention"`
}

var Cfg Settings

func defaultSettings() Settings {
	return Settings{
		Host:            "0.0.0.0",
		Port:            8080,
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 168 * time.Hour,
		AuditRetention:  720 * time.Hour,
	}
}

// Load populates Cfg and validates it. The YAML file is optional: the path
// comes from TTYGATE_CONFIG, falling back to ~/.config/ttygate/config.yaml.
func Load() error {
	Cfg = defaultSettings()

	if err := loadFile(&Cfg); err != nil {
		return err
	}

	// Environment wins over the file. Fields without a TTYGATE_* variable
	// keep whatever the file (or the defaults) set.
	if err := envconfig.Process("TTYGATE", &Cfg); err != nil {
		return fmt.Errorf("load env config: %w", err)
	}

	applyPathDefaults(&Cfg)

	if errs := Cfg.Validate(); len(errs) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Validate returns every configuration problem rather than stopping at the
// first, so operators can fix them in one pass.
func (s *Settings) Validate() []string {
	var errs []string
	if s.Port < 1 || s.Port > 65535 {
		errs = append(errs, fmt.Sprintf("port must be between 1 and 65535, got %d", s.Port))
	}
	if s.SecretKey != "" && len(s.SecretKey) < 32 {
		errs = append(errs, "secret_key must be at least 32 characters")
	}
	if s.AccessTokenTTL < time.Minute {
		errs = append(errs, "access_token_ttl must be at least 1m")
	}
	if s.RefreshTokenTTL < time.Hour {
		errs = append(errs, "refresh_token_ttl must be at least 1h")
	}
	return errs
}

func loadFile(s *Settings) error {
	path := os.Getenv("TTYGATE_CONFIG")
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil
		}
		path = filepath.Join(home, ".config", "ttygate", "config.yaml")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read config file %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, s); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func applyPathDefaults(s *Settings) {
	if s.DataPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			home = "."
		}
		s.DataPath = filepath.Join(home, ".ttygate")
	}
	if s.DatabasePath == "" {
		s.DatabasePath = filepath.Join(s.DataPath, "ttygate.db")
	}
	if s.LogPath == "" {
		s.LogPath = filepath.Join(s.DataPath, "ttygate.log")
	}
}
