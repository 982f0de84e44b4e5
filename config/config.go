package config

import (
	"encoding/json"
	"log"
	"os"
	"strconv"
)

// Config holds all configurable server parameters.
type Config struct {
	HTTPPort int `json:"http_port"`

	// K-factor bounds for recorded matches; DefaultKFactor is the initial
	// per-session value until the user changes it.
	DefaultKFactor int `json:"default_k_factor"`
	KFactorMin     int `json:"k_factor_min"`
	KFactorMax     int `json:"k_factor_max"`

	MaxNameLength int `json:"max_name_length"`

	// SessionTTLMinutes is how long an idle session survives before the
	// sweeper evicts it (and its ledger with it).
	SessionTTLMinutes int `json:"session_ttl_minutes"`

	// Users maps username -> password for local sign-in. Populated from
	// config.json; AUTH_USER/AUTH_PASS add a single user on top. When no
	// credentials are configured at all, a demo admin/admin user is used.
	Users map[string]string `json:"users"`

	// SessionSecret signs session tokens (env SESSION_SECRET). When empty,
	// a random secret is generated at startup; sessions then don't survive
	// a restart, which is fine since ledgers don't either.
	SessionSecret string `json:"-"`

	// AuthBaseURL, when set, enables sign-in with tokens from an external
	// identity provider via its JWKS endpoint (env AUTH_BASE_URL).
	AuthBaseURL string `json:"-"`
}

// Defaults returns a Config with all default values.
func Defaults() *Config {
	return &Config{
		HTTPPort:          8080,
		DefaultKFactor:    32,
		KFactorMin:        8,
		KFactorMax:        64,
		MaxNameLength:     24,
		SessionTTLMinutes: 720,
		Users:             map[string]string{},
	}
}

// Load reads configuration from an optional config.json file, then applies
// environment variable overrides. Fields not set in either source retain
// their default values. Credentials resolve in order: config.json users,
// then AUTH_USER/AUTH_PASS, then the demo admin/admin fallback.
func Load() *Config {
	cfg := Defaults()

	if f, err := os.Open("config.json"); err == nil {
		defer f.Close()
		if err := json.NewDecoder(f).Decode(cfg); err != nil {
			log.Printf("Warning: failed to parse config.json: %v", err)
		}
	}

	overrideInt(&cfg.HTTPPort, "HTTP_PORT")
	overrideInt(&cfg.DefaultKFactor, "DEFAULT_K_FACTOR")
	overrideInt(&cfg.KFactorMin, "K_FACTOR_MIN")
	overrideInt(&cfg.KFactorMax, "K_FACTOR_MAX")
	overrideInt(&cfg.MaxNameLength, "MAX_NAME_LENGTH")
	overrideInt(&cfg.SessionTTLMinutes, "SESSION_TTL_MINUTES")

	cfg.SessionSecret = os.Getenv("SESSION_SECRET")
	cfg.AuthBaseURL = os.Getenv("AUTH_BASE_URL")

	if cfg.Users == nil {
		cfg.Users = map[string]string{}
	}
	envUser := os.Getenv("AUTH_USER")
	envPass := os.Getenv("AUTH_PASS")
	if envUser != "" && envPass != "" {
		cfg.Users[envUser] = envPass
	}
	if len(cfg.Users) == 0 {
		cfg.Users["admin"] = "admin"
	}

	return cfg
}

func overrideInt(field *int, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			*field = n
		} else {
			log.Printf("Warning: invalid value for %s: %q", envKey, val)
		}
	}
}
