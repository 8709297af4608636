// Package config loads the process configuration: a JSON5 file overlaid
// with environment variable overrides for secrets, the same two-layer
// shape the teacher's own config package uses (file for structure, env
// for anything sensitive like a DSN).
package config

import "time"

// Config is the root configuration for the tape server.
type Config struct {
	HTTP      HTTPConfig      `json:"http"`
	Database  DatabaseConfig  `json:"database"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Tape      TapeConfig      `json:"tape"`
	Runtime   RuntimeConfig   `json:"runtime"`
	Telemetry TelemetryConfig `json:"telemetry,omitempty"`
	Auth      AuthConfig      `json:"auth"`
}

// HTTPConfig configures the HTTP surface (§6).
type HTTPConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
	// TicketTTL is loaded but not read by the ticket manager: SSE tickets
	// (§6) always expire after the fixed ticket.TTL (60s).
	TicketTTL time.Duration `json:"ticket_ttl"`
	// AllowedOrigins whitelists browser Origin headers for the optional
	// WebSocket upgrade (internal/wsbridge). CORS responses do not consult
	// it; they echo the request's Origin. Empty means allow all, matching
	// the teacher's gateway default.
	AllowedOrigins []string `json:"allowed_origins,omitempty"`
}

// DatabaseConfig selects and configures the persistence backend.
// PostgresDSN is never read from the config file — only from the
// TAPE_POSTGRES_DSN environment variable, same secrets-from-env-only
// rule the teacher applies to its own Postgres DSN.
type DatabaseConfig struct {
	Driver      string `json:"driver"` // "postgres" or "sqlite"
	PostgresDSN string `json:"-"`
	SQLitePath  string `json:"sqlite_path,omitempty"`
}

// SchedulerConfig configures the Background Scheduler (§4.J).
type SchedulerConfig struct {
	TickExpr           string        `json:"tick_expr"`
	CleanupExpr        string        `json:"cleanup_expr"`
	ActiveWindow       time.Duration `json:"active_window"`
	MaxConcurrentRooms int           `json:"max_concurrent_rooms"`
}

// TapeConfig configures the Turn Scheduler / Response Generator (§4.H/I).
type TapeConfig struct {
	MaxTotalMessages  int `json:"max_total_messages"`
	MaxFollowUpRounds int `json:"max_follow_up_rounds"`
}

// RuntimeConfig configures the LLM runtime client construction.
type RuntimeConfig struct {
	DefaultModel      string `json:"default_model"`
	MaxThinkingTokens int    `json:"max_thinking_tokens"`
}

// TelemetryConfig configures the OpenTelemetry exporter (§9 ambient
// stack). Empty Endpoint means no exporter is installed and spans go to
// the default no-op provider.
type TelemetryConfig struct {
	Endpoint    string `json:"endpoint,omitempty"`
	ServiceName string `json:"service_name,omitempty"`
}

// AuthConfig configures access-token issuance (§6). The JWT secret and
// both bcrypt password hashes are secrets-from-env-only, same rule as
// the Postgres DSN — they are never read from the config file.
type AuthConfig struct {
	JWTSecret      string        `json:"-"`
	AdminHash      string        `json:"-"`
	GuestHash      string        `json:"-"` // empty disables guest login
	AccessTokenTTL time.Duration `json:"access_token_ttl"`
}

// Default returns a Config populated with the literals named throughout
// spec §4 (tick intervals, round/message caps, active window).
func Default() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Host:      "0.0.0.0",
			Port:      8080,
			TicketTTL: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Driver:     "sqlite",
			SQLitePath: "./tape.db",
		},
		Scheduler: SchedulerConfig{
			TickExpr:           "@every 2s",
			CleanupExpr:        "@every 5m",
			ActiveWindow:       5 * time.Minute,
			MaxConcurrentRooms: 5,
		},
		Tape: TapeConfig{
			MaxTotalMessages:  10,
			MaxFollowUpRounds: 2,
		},
		Runtime: RuntimeConfig{
			DefaultModel:      "claude-sonnet-4-5-20250929",
			MaxThinkingTokens: 8192,
		},
		Telemetry: TelemetryConfig{
			ServiceName: "tape",
		},
		Auth: AuthConfig{
			AccessTokenTTL: 168 * time.Hour,
		},
	}
}
