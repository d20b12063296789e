// Package config provides configuration management for the rule engine
// core: every tunable knob of the evaluators and the executor, loaded from
// environment variables with sensible defaults.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// LoggingConfig configures the structured logger in
// internal/infrastructure/logger.
type LoggingConfig struct {
	Level  string
	Format string // "json" or "text"
}

// EngineConfig holds the bytecode compiler's promotion policy and resource
// caps, the iterative evaluator's bounds, and the executor's error and
// deadline policy.
type EngineConfig struct {
	// BytecodePromotionThreshold is the evaluation count at which a rule
	// is considered for compilation to bytecode.
	BytecodePromotionThreshold int64

	// BytecodeMinComplexity is the AST node count below which bytecode
	// compilation is permanently skipped for a rule.
	BytecodeMinComplexity int

	// BytecodeStackLimit bounds the VM's operand stack.
	BytecodeStackLimit int

	// EvalWorkQueueLimit bounds the iterative evaluator's work queue.
	EvalWorkQueueLimit int

	// EvalMaxSteps bounds the iterative evaluator's trampoline loop.
	EvalMaxSteps int

	// ContinueOnError, when true, makes the executor record per-rule
	// errors and continue with other rules whose inputs remain satisfied
	// instead of aborting the whole execution.
	ContinueOnError bool

	// LevelDeadline, when non-zero, bounds the wall-clock time allotted
	// to each DAG level; rules not yet started when it expires are
	// reported Cancelled.
	LevelDeadline time.Duration

	// MaxParallelism is the thread budget passed to the executor's
	// parallel_execute entry point. Zero means "one goroutine per rule
	// in the level".
	MaxParallelism int

	Logging LoggingConfig
}

// DefaultEngineConfig returns the built-in defaults.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		BytecodePromotionThreshold: 100,
		BytecodeMinComplexity:      5,
		BytecodeStackLimit:         65536,
		EvalWorkQueueLimit:         1_000_000,
		EvalMaxSteps:               1_000_000,
		ContinueOnError:            false,
		LevelDeadline:              0,
		MaxParallelism:             0,
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load builds an EngineConfig from environment variables (optionally
// populated from a .env file), falling back to DefaultEngineConfig for
// anything unset.
func Load() (*EngineConfig, error) {
	godotenv.Load()

	cfg := DefaultEngineConfig()
	cfg.BytecodePromotionThreshold = getEnvAsInt64("FARMCORE_BYTECODE_PROMOTION_THRESHOLD", cfg.BytecodePromotionThreshold)
	cfg.BytecodeMinComplexity = getEnvAsInt("FARMCORE_BYTECODE_MIN_COMPLEXITY", cfg.BytecodeMinComplexity)
	cfg.BytecodeStackLimit = getEnvAsInt("FARMCORE_BYTECODE_STACK_LIMIT", cfg.BytecodeStackLimit)
	cfg.EvalWorkQueueLimit = getEnvAsInt("FARMCORE_EVAL_WORK_QUEUE_LIMIT", cfg.EvalWorkQueueLimit)
	cfg.EvalMaxSteps = getEnvAsInt("FARMCORE_EVAL_MAX_STEPS", cfg.EvalMaxSteps)
	cfg.ContinueOnError = getEnvAsBool("FARMCORE_CONTINUE_ON_ERROR", cfg.ContinueOnError)
	cfg.LevelDeadline = getEnvAsDuration("FARMCORE_LEVEL_DEADLINE", cfg.LevelDeadline)
	cfg.MaxParallelism = getEnvAsInt("FARMCORE_MAX_PARALLELISM", cfg.MaxParallelism)
	cfg.Logging.Level = getEnv("FARMCORE_LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.Format = getEnv("FARMCORE_LOG_FORMAT", cfg.Logging.Format)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks that the loaded configuration is internally consistent.
func (c EngineConfig) Validate() error {
	if c.BytecodePromotionThreshold < 1 {
		return fmt.Errorf("bytecode promotion threshold must be at least 1")
	}
	if c.BytecodeMinComplexity < 1 {
		return fmt.Errorf("bytecode min complexity must be at least 1")
	}
	if c.BytecodeStackLimit < 1 {
		return fmt.Errorf("bytecode stack limit must be at least 1")
	}
	if c.EvalWorkQueueLimit < 1 {
		return fmt.Errorf("eval work queue limit must be at least 1")
	}
	if c.EvalMaxSteps < 1 {
		return fmt.Errorf("eval max steps must be at least 1")
	}
	if c.LevelDeadline < 0 {
		return fmt.Errorf("level deadline cannot be negative")
	}
	if c.MaxParallelism < 0 {
		return fmt.Errorf("max parallelism cannot be negative")
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}
	if c.Logging.Format != "json" && c.Logging.Format != "text" {
		return fmt.Errorf("invalid log format: %s (must be json or text)", c.Logging.Format)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return defaultValue
	}
	return n
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return defaultValue
	}
	return n
}

func getEnvAsBool(key string, defaultValue bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultValue
	}
	return b
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultValue
	}
	return d
}
