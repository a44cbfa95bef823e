package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type TelemetryConfig struct {
	LogLevel     string `yaml:"log_level"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	OTLPInsecure bool   `yaml:"otlp_insecure"`
}

type HTTPConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

type BusConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	StoreDir       string   `yaml:"store_dir"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

type StoreConfig struct {
	Path          string `yaml:"path"`
	HistoryLimit  int    `yaml:"history_limit"`
	VacuumOnStart bool   `yaml:"vacuum_on_start"`
}

// BackendConfig points the studio at a CosyVoice-compatible inference service.
type BackendConfig struct {
	URL             string  `yaml:"url"`
	DefaultLanguage string  `yaml:"default_language"`
	DefaultMode     string  `yaml:"default_mode"`
	DefaultSpeed    float64 `yaml:"default_speed"`
	HealthIntervalS int     `yaml:"health_interval_s"`
}

type Config struct {
	StudioName  string          `yaml:"studio_name"`
	Environment string          `yaml:"environment"`
	Locale      string          `yaml:"locale"`
	HTTP        HTTPConfig      `yaml:"http"`
	Telemetry   TelemetryConfig `yaml:"telemetry"`
	Bus         BusConfig       `yaml:"bus"`
	Store       StoreConfig     `yaml:"store"`
	Backend     BackendConfig   `yaml:"backend"`
}

func Default() Config {
	return Config{
		StudioName:  "voicecraft-studio",
		Environment: "development",
		Locale:      "en",
		HTTP: HTTPConfig{
			Bind: "127.0.0.1",
			Port: 8750,
		},
		Telemetry: TelemetryConfig{
			LogLevel:     "info",
			OTLPEndpoint: "",
			OTLPInsecure: true,
		},
		Bus: BusConfig{
			Enabled:        false,
			Embedded:       true,
			Port:           4222,
			StoreDir:       "./data/nats",
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
		Store: StoreConfig{
			Path:         "./data/voicecraft.db",
			HistoryLimit: 50,
		},
		Backend: BackendConfig{
			URL:             "http://localhost:9880",
			DefaultLanguage: "zh",
			DefaultMode:     "zero_shot",
			DefaultSpeed:    1.0,
			HealthIntervalS: 30,
		},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.StudioName, "VOICECRAFT_STUDIO_NAME")
	overrideString(&cfg.Environment, "VOICECRAFT_ENVIRONMENT")
	overrideString(&cfg.Locale, "VOICECRAFT_LOCALE")
	overrideString(&cfg.HTTP.Bind, "VOICECRAFT_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "VOICECRAFT_HTTP_PORT")
	overrideString(&cfg.Telemetry.LogLevel, "VOICECRAFT_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "VOICECRAFT_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "VOICECRAFT_TELEMETRY_OTLP_INSECURE")
	overrideBool(&cfg.Bus.Enabled, "VOICECRAFT_BUS_ENABLED")
	overrideBool(&cfg.Bus.Embedded, "VOICECRAFT_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "VOICECRAFT_BUS_PORT")
	overrideString(&cfg.Bus.StoreDir, "VOICECRAFT_BUS_STORE_DIR")
	overrideStringSlice(&cfg.Bus.Servers, "VOICECRAFT_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "VOICECRAFT_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "VOICECRAFT_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "VOICECRAFT_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "VOICECRAFT_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "VOICECRAFT_BUS_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.Store.Path, "VOICECRAFT_STORE_PATH")
	overrideInt(&cfg.Store.HistoryLimit, "VOICECRAFT_STORE_HISTORY_LIMIT")
	overrideBool(&cfg.Store.VacuumOnStart, "VOICECRAFT_STORE_VACUUM_ON_START")
	overrideString(&cfg.Backend.URL, "VOICECRAFT_BACKEND_URL")
	overrideString(&cfg.Backend.DefaultLanguage, "VOICECRAFT_BACKEND_DEFAULT_LANGUAGE")
	overrideString(&cfg.Backend.DefaultMode, "VOICECRAFT_BACKEND_DEFAULT_MODE")
	overrideFloat(&cfg.Backend.DefaultSpeed, "VOICECRAFT_BACKEND_DEFAULT_SPEED")
	overrideInt(&cfg.Backend.HealthIntervalS, "VOICECRAFT_BACKEND_HEALTH_INTERVAL_S")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideStringSlice(target *[]string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		parts := strings.Split(value, ",")
		var trimmed []string
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			*target = trimmed
		}
	}
}

func overrideFloat(target *float64, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			*target = parsed
		}
	}
}

func validate(cfg Config) error {
	if cfg.StudioName == "" {
		return errors.New("studio_name must not be empty")
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return errors.New("http.port must be between 1 and 65535")
	}
	if cfg.Bus.Enabled {
		if cfg.Bus.Embedded {
			if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
				return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
			}
		} else if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when embedded mode is disabled")
		}
	}
	if cfg.Store.Path == "" {
		return errors.New("store.path must not be empty")
	}
	if cfg.Store.HistoryLimit <= 0 {
		return errors.New("store.history_limit must be positive")
	}
	switch cfg.Backend.DefaultMode {
	case "zero_shot", "cross_lingual", "instruct2":
		// ok
	default:
		return errors.New("backend.default_mode must be one of zero_shot|cross_lingual|instruct2")
	}
	if cfg.Backend.DefaultSpeed <= 0 {
		return errors.New("backend.default_speed must be positive")
	}
	if cfg.Backend.HealthIntervalS <= 0 {
		return errors.New("backend.health_interval_s must be positive")
	}
	return nil
}
