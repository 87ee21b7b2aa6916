package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"

	apperrors "twrevenue/internal/errors"
)

// Config represents the complete exporter configuration
type Config struct {
	HTTP      HTTPConfig      `yaml:"http" envconfig:"HTTP"`
	Output    OutputConfig    `yaml:"output" envconfig:"OUTPUT"`
	Logging   LoggingConfig   `yaml:"logging" envconfig:"LOGGING"`
	Telemetry TelemetryConfig `yaml:"telemetry" envconfig:"TELEMETRY"`
}

// HTTPConfig controls the requests sent to the exchange APIs
type HTTPConfig struct {
	// Timeout of zero means requests wait for the server indefinitely.
	Timeout   time.Duration `yaml:"timeout" envconfig:"TIMEOUT" validate:"gte=0"`
	UserAgent string        `yaml:"user_agent" envconfig:"USER_AGENT"`
}

// OutputConfig controls where and how exported files are written
type OutputConfig struct {
	SummaryDir   string `yaml:"summary_dir" envconfig:"SUMMARY_DIR" validate:"required"`
	BlockHeaders bool   `yaml:"block_headers" envconfig:"BLOCK_HEADERS"`
	CRLF         bool   `yaml:"crlf" envconfig:"CRLF"`
	Workbook     string `yaml:"workbook" envconfig:"WORKBOOK"`
	MetricsFile  string `yaml:"metrics_file" envconfig:"METRICS_FILE"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level    string `yaml:"level" envconfig:"LEVEL" validate:"oneof=debug info warn warning error"`
	Format   string `yaml:"format" envconfig:"FORMAT" validate:"oneof=text json"`
	Output   string `yaml:"output" envconfig:"OUTPUT" validate:"oneof=console file both"`
	FilePath string `yaml:"file_path" envconfig:"FILE_PATH" validate:"required_unless=Output console"`
}

// TelemetryConfig selects the OpenTelemetry exporters
type TelemetryConfig struct {
	TraceExporter string `yaml:"trace_exporter" envconfig:"TRACE_EXPORTER" validate:"oneof=none stdout"`
}

// Default returns default configuration. The defaults reproduce the behavior of
// the scheduled export job: no request timeout, summaries in the working
// directory, a single header row and spreadsheet-style CRLF line endings.
func Default() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Timeout: 0,
		},
		Output: OutputConfig{
			SummaryDir:   ".",
			BlockHeaders: false,
			CRLF:         true,
		},
		Logging: LoggingConfig{
			Level:    "info",
			Format:   "text",
			Output:   "console",
			FilePath: DefaultLogFile,
		},
		Telemetry: TelemetryConfig{
			TraceExporter: "none",
		},
	}
}

// Load builds the configuration from defaults, the optional YAML file and the
// REVENUE_* environment variables, in increasing order of precedence.
func Load() (*Config, error) {
	return LoadFrom(getConfigFilePath())
}

// LoadFrom is Load with an explicit config file path. An empty path skips the file.
func LoadFrom(configFile string) (*Config, error) {
	cfg := Default()

	if configFile != "" {
		if err := loadFromFile(configFile, cfg); err != nil {
			return nil, apperrors.NewConfigError(fmt.Sprintf("failed to load config from file %s", configFile), err)
		}
	}

	// Unset variables leave the file/default values in place
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, apperrors.NewConfigError("failed to load config from env", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, apperrors.NewValidationError("config validation failed", err)
	}

	return cfg, nil
}

// loadFromFile overlays the YAML file onto cfg
func loadFromFile(filePath string, cfg *Config) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	return v.Struct(c)
}

// getConfigFilePath returns the path to the config file, or "" when there is none
func getConfigFilePath() string {
	if p := os.Getenv(ConfigFileEnv); p != "" {
		return p
	}
	if _, err := os.Stat(DefaultConfigFile); err == nil {
		return DefaultConfigFile
	}
	return ""
}
