/**
 * Configuration for the imagetext tools
 *
 * Loads configuration from IMAGETEXT_* environment variables, optionally
 * seeded from a .env file. Shared by the deskew and ocr CLIs and the worker.
 */

package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every configuration key when read from the environment.
const EnvPrefix = "IMAGETEXT"

// Config holds tool configuration
type Config struct {
	Log    LogConfig    `mapstructure:"log"`
	OCR    OCRConfig    `mapstructure:"ocr"`
	Deskew DeskewConfig `mapstructure:"deskew"`
	Worker WorkerConfig `mapstructure:"worker"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// OCRConfig holds OCR runner settings.
type OCRConfig struct {
	// TessdataPrefix points Tesseract at a traineddata directory. Empty uses
	// the engine's own lookup.
	TessdataPrefix string `mapstructure:"tessdata_prefix"`
	// DefaultLanguages is substituted when the caller passes a blank list.
	// "broad" selects the wide multilingual set.
	DefaultLanguages string `mapstructure:"default_languages"`
	// EarlyExitConfidence stops the variant sweep once a variant's mean
	// confidence reaches it. Zero disables early exit.
	EarlyExitConfidence float64 `mapstructure:"early_exit_confidence"`
	// FullGeneralSet enables the four-variant preprocessing set for non-CJK text.
	FullGeneralSet bool `mapstructure:"full_general_set"`
}

// DeskewConfig holds skew corrector settings.
type DeskewConfig struct {
	MinAngle float64 `mapstructure:"min_angle"`
}

// WorkerConfig holds queue worker settings.
type WorkerConfig struct {
	RedisURL          string        `mapstructure:"redis_url"`
	QueueName         string        `mapstructure:"queue_name"`
	Concurrency       int           `mapstructure:"concurrency"`
	ProcessingTimeout time.Duration `mapstructure:"processing_timeout"`
}

// LoadEnvFile loads key/value pairs from path into the process environment.
// Variables already set are not overwritten.
func LoadEnvFile(path string) error {
	return godotenv.Load(path)
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("ocr.tessdata_prefix", "")
	v.SetDefault("ocr.default_languages", "ko,ja,ch_sim,ch_tra,en")
	v.SetDefault("ocr.early_exit_confidence", 0.0)
	v.SetDefault("ocr.full_general_set", false)

	v.SetDefault("deskew.min_angle", 0.5)

	v.SetDefault("worker.redis_url", "redis://localhost:6379/0")
	v.SetDefault("worker.queue_name", "imagetext")
	v.SetDefault("worker.concurrency", 2)
	v.SetDefault("worker.processing_timeout", "120s")

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks the settings shared by every binary.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("LOG_FORMAT must be text or json, got %q", c.Log.Format)
	}

	if c.OCR.EarlyExitConfidence < 0 || c.OCR.EarlyExitConfidence > 1 {
		return fmt.Errorf("OCR_EARLY_EXIT_CONFIDENCE must be between 0 and 1, got %v", c.OCR.EarlyExitConfidence)
	}

	if c.Deskew.MinAngle < 0 || c.Deskew.MinAngle > 45 {
		return fmt.Errorf("DESKEW_MIN_ANGLE must be between 0 and 45, got %v", c.Deskew.MinAngle)
	}

	return nil
}

// ValidateWorker checks the settings only the queue worker reads.
func (c *Config) ValidateWorker() error {
	if c.Worker.RedisURL == "" {
		return fmt.Errorf("WORKER_REDIS_URL is required")
	}

	if c.Worker.QueueName == "" {
		return fmt.Errorf("WORKER_QUEUE_NAME is required")
	}

	if c.Worker.Concurrency < 1 || c.Worker.Concurrency > 100 {
		return fmt.Errorf("WORKER_CONCURRENCY must be between 1 and 100, got %d", c.Worker.Concurrency)
	}

	if c.Worker.ProcessingTimeout <= 0 {
		return fmt.Errorf("WORKER_PROCESSING_TIMEOUT must be positive, got %v", c.Worker.ProcessingTimeout)
	}

	return nil
}
