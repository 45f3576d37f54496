// Package config loads AEGIS's runtime configuration from the process
// environment (optionally backed by a local .env file via joho/godotenv)
// into a single typed Config struct. There is no YAML/JSON config file
// and no CLI flag parsing — env vars only, with conservative defaults
// so the server can start without any external configuration at all.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every tunable the AEGIS components need at startup:
// storage DSNs, model-provider credentials, and the default thresholds
// for the Multi-Judge Validator, Cortex, and Pruner.
type Config struct {
	Port     string
	LogLevel string

	DatabaseDSN string

	OpenAIAPIKey    string
	AnthropicAPIKey string

	TemporalHostPort  string
	TemporalNamespace string
	TemporalTaskQueue string

	JWTSigningSecret string

	// Multi-Judge Validator thresholds.
	ValidatorPassThreshold       float64
	ValidatorConfidenceThreshold float64
	ValidatorRefineThreshold     float64

	// Cortex resonance/decay parameters.
	CortexDedupThreshold   float64
	CortexReinforceBeta    float64
	CortexMaxWeight        float64
	CortexMinWeightPrune   float64
	CortexDecayHalfLife    time.Duration
	PrunerInterval         time.Duration

	MaxConcurrentExecutions int

	// RouterAgentRef names the single-shot classifier agent the Stimulus
	// Router invokes; DefaultIntent is its fallback when classification
	// stays unparseable after retry.
	RouterAgentRef string
	DefaultIntent  string

	// EnableTemporal switches the composition root from the in-process
	// TestRuntime driver to a live Temporal worker + client; off by
	// default so the server runs without a Temporal cluster.
	EnableTemporal bool
}

// Load reads .env (if present, ignored if missing) then builds Config
// from the environment, applying a conservative operational default for
// anything left unset.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Port:     getEnv("PORT", "8080"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		DatabaseDSN: getEnv("DATABASE_DSN", ""),

		OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
		AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),

		TemporalHostPort:  getEnv("TEMPORAL_HOST_PORT", "localhost:7233"),
		TemporalNamespace: getEnv("TEMPORAL_NAMESPACE", "default"),
		TemporalTaskQueue: getEnv("TEMPORAL_TASK_QUEUE", "aegis-orchestrator"),

		JWTSigningSecret: getEnv("JWT_SIGNING_SECRET", ""),

		ValidatorPassThreshold:       getEnvFloat("VALIDATOR_PASS_THRESHOLD", 0.70),
		ValidatorConfidenceThreshold: getEnvFloat("VALIDATOR_CONFIDENCE_THRESHOLD", 0.5),
		ValidatorRefineThreshold:     getEnvFloat("VALIDATOR_REFINE_THRESHOLD", 0.30),

		CortexDedupThreshold: getEnvFloat("CORTEX_DEDUP_THRESHOLD", 0.95),
		CortexReinforceBeta:  getEnvFloat("CORTEX_REINFORCE_BETA", 0.2),
		CortexMaxWeight:      getEnvFloat("CORTEX_MAX_WEIGHT", 10.0),
		CortexMinWeightPrune: getEnvFloat("CORTEX_MIN_WEIGHT_PRUNE", 0.05),
		CortexDecayHalfLife:  getEnvDuration("CORTEX_DECAY_HALF_LIFE", 30*24*time.Hour),
		PrunerInterval:       getEnvDuration("PRUNER_INTERVAL", 24*time.Hour),

		MaxConcurrentExecutions: getEnvInt("MAX_CONCURRENT_EXECUTIONS", 100),

		RouterAgentRef: getEnv("ROUTER_AGENT_REF", "stimulus-router"),
		DefaultIntent:  getEnv("DEFAULT_INTENT", ""),

		EnableTemporal: getEnvBool("ENABLE_TEMPORAL", false),
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}
