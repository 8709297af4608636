package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/titanous/json5"
)

// Load reads config from a JSON5 file, then overlays secret environment
// variables. A missing file is not an error — Default() plus env
// overrides is a valid configuration for local development.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := json5.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyEnvOverrides()
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if dsn := os.Getenv("TAPE_POSTGRES_DSN"); dsn != "" {
		c.Database.PostgresDSN = dsn
		c.Database.Driver = "postgres"
	}
	if v := os.Getenv("TAPE_HTTP_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.HTTP.Port = port
		}
	}
	if v := os.Getenv("TAPE_OTEL_ENDPOINT"); v != "" {
		c.Telemetry.Endpoint = v
	}
	if v := os.Getenv("TAPE_JWT_SECRET"); v != "" {
		c.Auth.JWTSecret = v
	}
	if v := os.Getenv("TAPE_ADMIN_PASSWORD_HASH"); v != "" {
		c.Auth.AdminHash = v
	}
	if v := os.Getenv("TAPE_GUEST_PASSWORD_HASH"); v != "" {
		c.Auth.GuestHash = v
	}
}
