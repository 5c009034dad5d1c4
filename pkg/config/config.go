// Package config holds the explicit configuration surface of the natal
// core. Recognized keys are loaded from the environment with safe
// defaults; a YAML profile can overlay them for file-based deployments.
package config

import (
	"os"
	"strconv"
)

// Config is passed explicitly to the assembler. No ambient globals beyond
// the ephemeris bootstrap record and the backend mutex.
//
//nolint:govet // fieldalignment: struct layout is human-readable
type Config struct {
	SwissEphEnabled              bool   `yaml:"swisseph_enabled"`
	SwissEphDataPath             string `yaml:"swisseph_data_path"`
	SwissEphPathVersion          string `yaml:"swisseph_path_version"`
	NatalEngineDefault           string `yaml:"natal_engine_default"`
	NatalEngineSimplifiedEnabled bool   `yaml:"natal_engine_simplified_enabled"`
	TimezoneDeriveEnabled        bool   `yaml:"timezone_derive_enabled"`
	TTEnabled                    bool   `yaml:"tt_enabled"`
	AppEnv                       string `yaml:"app_env"`
}

// Load reads configuration from environment variables. Keys outside the
// core's surface (chat_*, billing_*, b2b_*, reference_seed_*) are ignored.
func Load() *Config {
	engineDefault := os.Getenv("NATAL_ENGINE_DEFAULT")
	if engineDefault == "" {
		engineDefault = "simplified"
	}

	appEnv := os.Getenv("APP_ENV")
	if appEnv == "" {
		appEnv = "development"
	}

	return &Config{
		SwissEphEnabled:              boolEnv("SWISSEPH_ENABLED", false),
		SwissEphDataPath:             os.Getenv("SWISSEPH_DATA_PATH"),
		SwissEphPathVersion:          os.Getenv("SWISSEPH_PATH_VERSION"),
		NatalEngineDefault:           engineDefault,
		NatalEngineSimplifiedEnabled: boolEnv("NATAL_ENGINE_SIMPLIFIED_ENABLED", true),
		TimezoneDeriveEnabled:        boolEnv("TIMEZONE_DERIVE_ENABLED", false),
		TTEnabled:                    boolEnv("TT_ENABLED", false),
		AppEnv:                       appEnv,
	}
}

// IsInternalEnv reports whether internal-only operations are allowed.
func (c *Config) IsInternalEnv() bool {
	return c.AppEnv == "development" || c.AppEnv == "staging" || c.AppEnv == "test"
}

func boolEnv(key string, fallback bool) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return v
}
