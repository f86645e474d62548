package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/MimeLyc/latexmt-web/internal/persistence"
	"github.com/MimeLyc/latexmt-web/internal/translator"
	"github.com/MimeLyc/latexmt-web/pkg/icron"
)

// Config holds all application configuration.
//
// Environment variables (all optional):
//   - LATEXMT_CONFIG_PATH: settings file, YAML or JSON (default: config.json)
//   - LATEXMT_WORK_DIR: root of upload/input/output/log directories (default: ./work)
//   - LATEXMT_LOG_LEVEL: debug, info, warn, error (default: INFO)
//   - LATEXMT_LOG_FORMAT: console or json (default: console)
//   - LATEXMT_ENABLE_JOBS: enable document jobs (default: false)
//   - LATEXMT_WORKERS: number of job workers (default: 2)
//   - LATEXMT_JANITOR_CRON: upload cleanup schedule (default: @every 1h)
//   - LATEXMT_HTTP_ADDR: listen address (default: :8080)
//   - LATEXMT_UI_DIR: static web UI directory, empty disables it
//   - LATEXMT_CORS_ORIGINS: comma separated allowed origins, empty allows all
//   - LATEXMT_TRANSLATOR: identity or api (default: identity)
//   - LATEXMT_ALIGNER: positional (default: positional)
//   - LATEXMT_OPUS_MODEL: model name or local model path
//   - LATEXMT_OPUS_INPUT_PREFIX: text prepended to every segment sent to the engine
//   - LATEXMT_API_URL / LATEXMT_API_KEY: chat-completions endpoint and fallback key
//   - LATEXMT_TEXFMT_BIN / LATEXMT_TEXFMT_CONF: external formatter, empty disables it
//   - LATEXMT_DB_DRIVER: sqlite or postgres (default: sqlite)
//   - LATEXMT_DB_DSN: data source (default: {work_dir}/latexmt.sqlite3 for sqlite)
type Config struct {
	ConfigPath string `json:"config_path"`
	WorkDir    string `json:"work_dir"`

	Log        LogConfig        `json:"log"`
	HTTP       HTTPConfig       `json:"http"`
	Jobs       JobsConfig       `json:"jobs"`
	Translator TranslatorConfig `json:"translator"`
	Format     FormatConfig     `json:"format"`
	DB         DBConfig         `json:"db"`
}

type LogConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

type HTTPConfig struct {
	Addr        string   `json:"addr"`
	UIStaticDir string   `json:"ui_static_dir"`
	CORSOrigins []string `json:"cors_origins"`
}

type JobsConfig struct {
	Enabled     bool   `json:"enabled"`
	Workers     int    `json:"workers"`
	JanitorCron string `json:"janitor_cron"`
}

type TranslatorConfig struct {
	Backend string `json:"backend"`
	Aligner string `json:"aligner"`
	Model       string `json:"model"`
	InputPrefix string `json:"input_prefix"`
	APIURL      string `json:"api_url"`
	APIKey      string `json:"-"`
}

type FormatConfig struct {
	Bin  string `json:"bin"`
	Conf string `json:"conf"`
}

type DBConfig struct {
	Driver string `json:"driver"`
	DSN    string `json:"-"`
}

// Option is a function type for configuring Config
type Option func(*Config)

// NewFromEnv creates a Config from environment variables and then applies opts.
func NewFromEnv(opts ...Option) (*Config, error) {
	config := &Config{
		ConfigPath: getEnvString("LATEXMT_CONFIG_PATH", "config.json"),
		WorkDir:    getEnvString("LATEXMT_WORK_DIR", "./work"),
		Log: LogConfig{
			Level:  getEnvString("LATEXMT_LOG_LEVEL", "INFO"),
			Format: getEnvString("LATEXMT_LOG_FORMAT", "console"),
		},
		HTTP: HTTPConfig{
			Addr:        getEnvString("LATEXMT_HTTP_ADDR", ":8080"),
			UIStaticDir: getEnvString("LATEXMT_UI_DIR", ""),
			CORSOrigins: getEnvList("LATEXMT_CORS_ORIGINS"),
		},
		Jobs: JobsConfig{
			Enabled:     getEnvBool("LATEXMT_ENABLE_JOBS", false),
			Workers:     getEnvInt("LATEXMT_WORKERS", 2),
			JanitorCron: getEnvString("LATEXMT_JANITOR_CRON", "@every 1h"),
		},
		Translator: TranslatorConfig{
			Backend: getEnvString("LATEXMT_TRANSLATOR", translator.BackendIdentity),
			Aligner: getEnvString("LATEXMT_ALIGNER", translator.AlignerPositional),
			Model:       getEnvString("LATEXMT_OPUS_MODEL", ""),
			InputPrefix: getEnvString("LATEXMT_OPUS_INPUT_PREFIX", ""),
			APIURL:      getEnvString("LATEXMT_API_URL", ""),
			APIKey:      getEnvString("LATEXMT_API_KEY", ""),
		},
		Format: FormatConfig{
			Bin:  getEnvString("LATEXMT_TEXFMT_BIN", ""),
			Conf: getEnvString("LATEXMT_TEXFMT_CONF", ""),
		},
		DB: DBConfig{
			Driver: getEnvString("LATEXMT_DB_DRIVER", persistence.DriverSQLite),
			DSN:    getEnvString("LATEXMT_DB_DSN", ""),
		},
	}

	for _, opt := range opts {
		opt(config)
	}

	config.Translator.Model = resolveModelPath(config.Translator.Model)
	if config.DB.DSN == "" && config.DB.Driver == persistence.DriverSQLite {
		config.DB.DSN = filepath.Join(config.WorkDir, "latexmt.sqlite3")
	}

	if err := config.validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.WorkDir) == "" {
		return fmt.Errorf("work_dir is required")
	}
	if !translator.KnownBackend(c.Translator.Backend) {
		return fmt.Errorf("unknown translator %q", c.Translator.Backend)
	}
	if !translator.KnownAligner(c.Translator.Aligner) {
		return fmt.Errorf("unknown aligner %q", c.Translator.Aligner)
	}
	if c.Jobs.Workers <= 0 {
		return fmt.Errorf("workers must be positive")
	}
	if _, err := icron.Parse(c.Jobs.JanitorCron); err != nil {
		return fmt.Errorf("janitor_cron: %w", err)
	}
	switch c.DB.Driver {
	case persistence.DriverSQLite:
	case persistence.DriverPostgres:
		if c.DB.DSN == "" {
			return fmt.Errorf("db_dsn is required for postgres")
		}
	default:
		return fmt.Errorf("unsupported db driver %q", c.DB.Driver)
	}
	return nil
}

// BackendDefaults is the engine configuration used when a request names none.
func (c *Config) BackendDefaults() translator.BackendConfig {
	return translator.BackendConfig{
		Backend:     c.Translator.Backend,
		Aligner:     c.Translator.Aligner,
		Model:       c.Translator.Model,
		InputPrefix: c.Translator.InputPrefix,
		APIURL:      c.Translator.APIURL,
	}
}

// resolveModelPath makes ./ and ../ model paths absolute so they survive a
// change of working directory.
func resolveModelPath(model string) string {
	if !strings.HasPrefix(model, "./") && !strings.HasPrefix(model, "../") {
		return model
	}
	abs, err := filepath.Abs(model)
	if err != nil {
		return model
	}
	return abs
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvList(key string) []string {
	var ret []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			ret = append(ret, part)
		}
	}
	return ret
}
