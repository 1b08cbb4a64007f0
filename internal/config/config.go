package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

type LookupFunc func(string) (string, bool)

type Profile string

const (
	ProfileDev  Profile = "dev"
	ProfileTest Profile = "test"
	ProfileProd Profile = "prod"
)

type Config struct {
	Profile       Profile
	Service       ServiceConfig
	HTTP          HTTPConfig
	Export        ExportConfig
	ObjectStore   ObjectStoreConfig
	Observability ObservabilityConfig
}

type ServiceConfig struct {
	Name string
}

type HTTPConfig struct {
	Address      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	MaxBodyBytes int
}

type ExportConfig struct {
	Enabled bool
	// LinkTTL is how long presigned download links stay valid; zero disables them.
	LinkTTL time.Duration
}

type ObjectStoreConfig struct {
	Endpoint         string
	Region           string
	Bucket           string
	AccessKeyID      string
	SecretAccessKey  string
	UseSSL           bool
	Prefix           string
	AutoCreateBucket bool
}

type ObservabilityConfig struct {
	LogLevel slog.Level
	LogJSON  bool
}

func LoadFromEnv(serviceName string) (Config, error) {
	return Load(serviceName, os.LookupEnv)
}

func Load(serviceName string, lookup LookupFunc) (Config, error) {
	if lookup == nil {
		return Config{}, fmt.Errorf("lookup function is required")
	}

	profile := ProfileDev
	if raw, ok := lookup("QUERYDESK_PROFILE"); ok {
		profile = Profile(strings.ToLower(strings.TrimSpace(raw)))
	}
	if !isValidProfile(profile) {
		return Config{}, fmt.Errorf("invalid QUERYDESK_PROFILE: %q", profile)
	}

	cfg := defaultsForProfile(profile)
	if serviceName != "" {
		cfg.Service.Name = serviceName
	}

	if err := applyString(lookup, "QUERYDESK_SERVICE_NAME", &cfg.Service.Name); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "QUERYDESK_HTTP_ADDR", &cfg.HTTP.Address); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "QUERYDESK_HTTP_READ_TIMEOUT", &cfg.HTTP.ReadTimeout); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "QUERYDESK_HTTP_WRITE_TIMEOUT", &cfg.HTTP.WriteTimeout); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "QUERYDESK_HTTP_IDLE_TIMEOUT", &cfg.HTTP.IdleTimeout); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "QUERYDESK_HTTP_MAX_BODY_BYTES", &cfg.HTTP.MaxBodyBytes); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "QUERYDESK_EXPORT_ENABLED", &cfg.Export.Enabled); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "QUERYDESK_EXPORT_LINK_TTL", &cfg.Export.LinkTTL); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "QUERYDESK_OBJECTSTORE_ENDPOINT", &cfg.ObjectStore.Endpoint); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "QUERYDESK_OBJECTSTORE_REGION", &cfg.ObjectStore.Region); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "QUERYDESK_OBJECTSTORE_BUCKET", &cfg.ObjectStore.Bucket); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "QUERYDESK_OBJECTSTORE_ACCESS_KEY", &cfg.ObjectStore.AccessKeyID); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "QUERYDESK_OBJECTSTORE_SECRET_KEY", &cfg.ObjectStore.SecretAccessKey); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "QUERYDESK_OBJECTSTORE_USE_SSL", &cfg.ObjectStore.UseSSL); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "QUERYDESK_OBJECTSTORE_PREFIX", &cfg.ObjectStore.Prefix); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "QUERYDESK_OBJECTSTORE_AUTO_CREATE_BUCKET", &cfg.ObjectStore.AutoCreateBucket); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "QUERYDESK_LOG_JSON", &cfg.Observability.LogJSON); err != nil {
		return Config{}, err
	}
	if err := applyLogLevel(lookup, "QUERYDESK_LOG_LEVEL", &cfg.Observability.LogLevel); err != nil {
		return Config{}, err
	}

	if cfg.Service.Name == "" {
		return Config{}, fmt.Errorf("service name is required")
	}
	if cfg.HTTP.Address == "" {
		return Config{}, fmt.Errorf("http address is required")
	}
	if cfg.HTTP.MaxBodyBytes <= 0 {
		return Config{}, fmt.Errorf("QUERYDESK_HTTP_MAX_BODY_BYTES must be > 0")
	}
	if cfg.Export.Enabled && (cfg.ObjectStore.Endpoint == "" || cfg.ObjectStore.Bucket == "") {
		return Config{}, fmt.Errorf("object store endpoint and bucket are required when export is enabled")
	}
	if cfg.Export.LinkTTL < 0 || cfg.Export.LinkTTL > 7*24*time.Hour {
		return Config{}, fmt.Errorf("QUERYDESK_EXPORT_LINK_TTL must be between 0 and 168h")
	}
	return cfg, nil
}

func defaultsForProfile(profile Profile) Config {
	cfg := Config{
		Profile: profile,
		Service: ServiceConfig{Name: "querydesk-api"},
		HTTP: HTTPConfig{
			Address:      ":8080",
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 5 * time.Minute,
			IdleTimeout:  60 * time.Second,
			MaxBodyBytes: 1 << 20,
		},
		Export: ExportConfig{
			Enabled: false,
			LinkTTL: 15 * time.Minute,
		},
		ObjectStore: ObjectStoreConfig{
			Endpoint:         "localhost:9000",
			Region:           "us-east-1",
			Bucket:           "querydesk-exports",
			AccessKeyID:      "minio",
			SecretAccessKey:  "miniostorage",
			UseSSL:           false,
			Prefix:           "",
			AutoCreateBucket: true,
		},
		Observability: ObservabilityConfig{
			LogLevel: slog.LevelDebug,
			LogJSON:  true,
		},
	}

	switch profile {
	case ProfileTest:
		cfg.HTTP.Address = ":18080"
		cfg.Observability.LogLevel = slog.LevelWarn
	case ProfileProd:
		cfg.Observability.LogLevel = slog.LevelInfo
		cfg.ObjectStore.UseSSL = true
		cfg.ObjectStore.AutoCreateBucket = false
	}

	return cfg
}

func isValidProfile(profile Profile) bool {
	switch profile {
	case ProfileDev, ProfileTest, ProfileProd:
		return true
	default:
		return false
	}
}

func applyString(lookup LookupFunc, key string, dst *string) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	*dst = strings.TrimSpace(raw)
	return nil
}

func applyDuration(lookup LookupFunc, key string, dst *time.Duration) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyBool(lookup LookupFunc, key string, dst *bool) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyInt(lookup LookupFunc, key string, dst *int) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyLogLevel(lookup LookupFunc, key string, dst *slog.Level) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	level := strings.ToLower(strings.TrimSpace(raw))
	switch level {
	case "debug":
		*dst = slog.LevelDebug
	case "info":
		*dst = slog.LevelInfo
	case "warn", "warning":
		*dst = slog.LevelWarn
	case "error":
		*dst = slog.LevelError
	default:
		return fmt.Errorf("invalid %s: %q", key, raw)
	}
	return nil
}
