// Package config loads process configuration for cmd/wamprouter from the
// environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/joeshaw/envdecode"
)

// Runtime kinds accepted in WAMP_RUNTIME.
const (
	RuntimeCooperative = "cooperative"
	RuntimeCallback    = "callback"
)

// Config is decoded from environment variables; defaults come from the tags.
type Config struct {
	// Runtime selects the execution model. ENV: WAMP_RUNTIME
	Runtime string `env:"WAMP_RUNTIME,default=cooperative"`
	// AutoCreateRealms creates realms missing from the catalog on first use.
	// ENV: WAMP_AUTO_CREATE_REALMS
	AutoCreateRealms bool `env:"WAMP_AUTO_CREATE_REALMS,default=true"`
	// RealmsFile is an optional YAML realm catalog. ENV: WAMP_REALMS_FILE
	RealmsFile string `env:"WAMP_REALMS_FILE"`
	// IdleRealmCache: 0 keeps idle routers, <0 drops them, >0 parks up to n.
	// ENV: WAMP_IDLE_REALM_CACHE
	IdleRealmCache int `env:"WAMP_IDLE_REALM_CACHE,default=0"`
	// StrictURIs enforces strict URI components. ENV: WAMP_STRICT_URIS
	StrictURIs bool `env:"WAMP_STRICT_URIS,default=false"`

	// HTTPAddr serves /metrics and, with BridgeRealm, the HTTP bridge.
	// ENV: WAMP_HTTP_ADDR
	HTTPAddr string `env:"WAMP_HTTP_ADDR,default=:8080"`
	// BridgeRealm enables the HTTP bridge for one realm. ENV: WAMP_BRIDGE_REALM
	BridgeRealm string `env:"WAMP_BRIDGE_REALM"`

	// JournalRedisAddr enables the Redis meta-event journal.
	// ENV: WAMP_JOURNAL_REDIS_ADDR
	JournalRedisAddr string `env:"WAMP_JOURNAL_REDIS_ADDR"`
	// JournalKeyPrefix for journal keys. ENV: WAMP_JOURNAL_KEY_PREFIX
	JournalKeyPrefix string `env:"WAMP_JOURNAL_KEY_PREFIX,default=wamp:journal:"`
	// JournalMemory keeps the meta-event journal in process instead.
	// ENV: WAMP_JOURNAL_MEMORY
	JournalMemory bool `env:"WAMP_JOURNAL_MEMORY,default=false"`

	// LogLevel is one of debug, info, warn, error. ENV: WAMP_LOG_LEVEL
	LogLevel string `env:"WAMP_LOG_LEVEL,default=info"`
}

// Load decodes Config from the environment and validates it.
func Load() (Config, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects values Load cannot act on.
func (c Config) Validate() error {
	switch c.Runtime {
	case RuntimeCooperative, RuntimeCallback:
	default:
		return fmt.Errorf("WAMP_RUNTIME: unknown runtime %q (want %s or %s)", c.Runtime, RuntimeCooperative, RuntimeCallback)
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	if c.JournalMemory && c.JournalRedisAddr != "" {
		return errors.New("WAMP_JOURNAL_MEMORY and WAMP_JOURNAL_REDIS_ADDR are mutually exclusive")
	}
	if c.BridgeRealm != "" && c.HTTPAddr == "" {
		return errors.New("WAMP_BRIDGE_REALM requires WAMP_HTTP_ADDR")
	}
	return nil
}

// Level parses LogLevel.
func (c Config) Level() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToUpper(c.LogLevel))); err != nil {
		return 0, fmt.Errorf("WAMP_LOG_LEVEL: %w", err)
	}
	return lvl, nil
}
