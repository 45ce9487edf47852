// Package config loads the server configuration from layered sources:
// built-in defaults, an optional YAML file, then GLOBE_-prefixed environment
// variables. Later layers override earlier ones.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/sudorandom/dot-globe/pkg/globe"
)

// ConfigPathEnvVar points at an explicit config file, bypassing the search
// paths.
const ConfigPathEnvVar = "GLOBE_CONFIG"

var defaultConfigPaths = []string{
	"globe.yaml",
	"config/globe.yaml",
	"/etc/dot-globe/globe.yaml",
}

type Config struct {
	Server  ServerConfig  `koanf:"server"`
	GeoIP   GeoIPConfig   `koanf:"geoip"`
	Relay   RelayConfig   `koanf:"relay"`
	Globe   GlobeConfig   `koanf:"globe"`
	Logging LoggingConfig `koanf:"logging"`
}

type ServerConfig struct {
	Listen         string        `koanf:"listen" validate:"required"`
	StaticDir      string        `koanf:"static_dir"`
	DataDir        string        `koanf:"data_dir" validate:"required"`
	AllowedOrigins []string      `koanf:"allowed_origins"`
	RateLimit      int           `koanf:"rate_limit" validate:"gte=1"`
	RateWindow     time.Duration `koanf:"rate_window" validate:"gt=0"`
}

type GeoIPConfig struct {
	// DatabasePath is a local MaxMind database. When empty and DatabaseURL
	// is set, the database is downloaded into the cache dir at startup.
	DatabasePath string `koanf:"database_path"`
	DatabaseURL  string `koanf:"database_url"`
	CacheDir     string `koanf:"cache_dir"`
}

type RelayConfig struct {
	Enabled bool `koanf:"enabled"`
	// URL is the hub a viewer subscribes to; the server side ignores it.
	URL string `koanf:"url"`
}

type GlobeConfig struct {
	Home    globe.Settings `koanf:"home"`
	Preview globe.Settings `koanf:"preview"`
}

type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error"`
	Pretty bool   `koanf:"pretty"`
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Listen:     ":8080",
			DataDir:    "data",
			RateLimit:  120,
			RateWindow: time.Minute,
		},
		GeoIP: GeoIPConfig{
			CacheDir: "data/cache",
		},
		Relay: RelayConfig{
			Enabled: true,
			URL:     "ws://localhost:8080/ws",
		},
		Globe: GlobeConfig{
			Home:    globe.DefaultHome(),
			Preview: globe.DefaultPreview(),
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads configuration with precedence ENV > file > defaults.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("GLOBE_", ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// envTransform maps GLOBE_SERVER_STATIC_DIR to server.static_dir. The first
// segment selects the section; the rest stays a single underscored key. The
// globe section nests one level deeper (GLOBE_GLOBE_HOME_ROTATION_SPEED).
func envTransform(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, "GLOBE_"))
	parts := strings.SplitN(s, "_", 2)
	if len(parts) != 2 {
		return s
	}
	section, rest := parts[0], parts[1]
	if section == "globe" {
		sub := strings.SplitN(rest, "_", 2)
		if len(sub) == 2 && (sub[0] == "home" || sub[0] == "preview") {
			return section + "." + sub[0] + "." + sub[1]
		}
	}
	return section + "." + rest
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range defaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// Validate checks structural constraints, including both settings presets.
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}
	return nil
}
