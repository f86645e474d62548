package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/MimeLyc/latexmt-web/internal/persistence"
	"github.com/MimeLyc/latexmt-web/internal/translator"
	"github.com/MimeLyc/latexmt-web/pkg/icron"
)

// Settings is the on-disk configuration file. JSON files parse as YAML.
// Empty fields leave the environment value in place.
type Settings struct {
	WorkDir     string `yaml:"work_dir,omitempty"`
	LogLevel    string `yaml:"log_level,omitempty"`
	Translator  string `yaml:"translator,omitempty"`
	Aligner     string `yaml:"aligner,omitempty"`
	OpusModel   string `yaml:"opus_model,omitempty"`
	InputPrefix string `yaml:"opus_input_prefix,omitempty"`
	TexfmtBin   string `yaml:"texfmt_bin,omitempty"`
	TexfmtConf  string `yaml:"texfmt_conf,omitempty"`
	EnableJobs  *bool  `yaml:"enable_jobs,omitempty"`
	APIURL      string `yaml:"api_url,omitempty"`
	APIKey      string `yaml:"api_key,omitempty"`
	Workers     int    `yaml:"workers,omitempty"`
	JanitorCron string `yaml:"janitor_cron,omitempty"`
	HTTPAddr    string `yaml:"http_addr,omitempty"`
	DBDriver    string `yaml:"db_driver,omitempty"`
	DBDSN       string `yaml:"db_dsn,omitempty"`
}

func (s Settings) Validate() error {
	if !translator.KnownBackend(s.Translator) {
		return fmt.Errorf("unknown translator %q", s.Translator)
	}
	if !translator.KnownAligner(s.Aligner) {
		return fmt.Errorf("unknown aligner %q", s.Aligner)
	}
	if s.Workers < 0 {
		return fmt.Errorf("workers must not be negative")
	}
	if strings.TrimSpace(s.JanitorCron) != "" {
		if _, err := icron.Parse(s.JanitorCron); err != nil {
			return fmt.Errorf("invalid janitor_cron: %w", err)
		}
	}
	switch s.DBDriver {
	case "", persistence.DriverSQLite, persistence.DriverPostgres:
	default:
		return fmt.Errorf("unsupported db_driver %q", s.DBDriver)
	}
	return nil
}

// Settings returns the file representation of c.
func (c *Config) Settings() Settings {
	enabled := c.Jobs.Enabled
	s := Settings{
		WorkDir:     c.WorkDir,
		LogLevel:    c.Log.Level,
		Translator:  c.Translator.Backend,
		Aligner:     c.Translator.Aligner,
		OpusModel:   c.Translator.Model,
		InputPrefix: c.Translator.InputPrefix,
		TexfmtBin:   c.Format.Bin,
		TexfmtConf:  c.Format.Conf,
		EnableJobs:  &enabled,
		APIURL:      c.Translator.APIURL,
		Workers:     c.Jobs.Workers,
		JanitorCron: c.Jobs.JanitorCron,
		HTTPAddr:    c.HTTP.Addr,
		DBDriver:    c.DB.Driver,
	}
	if c.DB.Driver != persistence.DriverSQLite {
		s.DBDSN = c.DB.DSN
	}
	return s
}

func WithSettings(settings Settings) Option {
	return func(c *Config) {
		setString(&c.WorkDir, settings.WorkDir)
		setString(&c.Log.Level, settings.LogLevel)
		setString(&c.Translator.Backend, settings.Translator)
		setString(&c.Translator.Aligner, settings.Aligner)
		setString(&c.Translator.Model, settings.OpusModel)
		setString(&c.Translator.InputPrefix, settings.InputPrefix)
		setString(&c.Translator.APIURL, settings.APIURL)
		setString(&c.Translator.APIKey, settings.APIKey)
		setString(&c.Format.Bin, settings.TexfmtBin)
		setString(&c.Format.Conf, settings.TexfmtConf)
		setString(&c.Jobs.JanitorCron, settings.JanitorCron)
		setString(&c.HTTP.Addr, settings.HTTPAddr)
		setString(&c.DB.Driver, settings.DBDriver)
		setString(&c.DB.DSN, settings.DBDSN)
		if settings.EnableJobs != nil {
			c.Jobs.Enabled = *settings.EnableJobs
		}
		if settings.Workers > 0 {
			c.Jobs.Workers = settings.Workers
		}
	}
}

func setString(dst *string, value string) {
	if strings.TrimSpace(value) != "" {
		*dst = value
	}
}

func LoadSettingsFile(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, err
	}
	var settings Settings
	if err := yaml.Unmarshal(data, &settings); err != nil {
		return Settings{}, fmt.Errorf("invalid settings file: %w", err)
	}
	if err := settings.Validate(); err != nil {
		return Settings{}, fmt.Errorf("invalid settings file: %w", err)
	}
	return settings, nil
}

func WriteSettingsFile(path string, settings Settings) error {
	if err := settings.Validate(); err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	content, err := yaml.Marshal(settings)
	if err != nil {
		return err
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, content, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}
