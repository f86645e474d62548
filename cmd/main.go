package main

import (
	"errors"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/MimeLyc/latexmt-web/internal/config"
	"github.com/MimeLyc/latexmt-web/pkg/log"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "latexmt",
	Short:         "Machine translation service for LaTeX documents",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "settings file (default $LATEXMT_CONFIG_PATH or config.json)")
	rootCmd.AddCommand(serveCmd, translateCmd, jobsCmd, configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal("Command failed", "error", err)
	}
}

// loadConfig reads .env, then the environment, then the settings file. A
// missing settings file is not an error.
func loadConfig() (*config.Config, error) {
	_ = godotenv.Load()

	if configPath != "" {
		_ = os.Setenv("LATEXMT_CONFIG_PATH", configPath)
	}
	base, err := config.NewFromEnv()
	if err != nil {
		return nil, err
	}

	settings, err := config.LoadSettingsFile(base.ConfigPath)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return base, nil
	case err != nil:
		return nil, err
	}
	return config.NewFromEnv(config.WithSettings(settings))
}

func initLogger(cfg *config.Config) *log.Logger {
	return log.InitLogger(log.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})
}
