package cli

import (
	"context"
	"os"
	"path/filepath"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/m-mizutani/pagetalk/pkg/adapter"
	"github.com/m-mizutani/pagetalk/pkg/model"
	"github.com/m-mizutani/pagetalk/pkg/repository"
	"github.com/m-mizutani/pagetalk/pkg/utils/logging"
)

// config holds configuration values bound from flags.
type config struct {
	logLevel  string
	logFormat string
	dbPath    string
	ephemeral bool

	apiKey    string
	modelName string
	baseURL   string
}

// globalFlags returns common flags used across commands.
func globalFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "Log level (debug, info, warn, error)",
			Value:       "info",
			Sources:     cli.EnvVars("PAGETALK_LOG_LEVEL"),
			Destination: &cfg.logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "Log format (console, json)",
			Value:       "console",
			Sources:     cli.EnvVars("PAGETALK_LOG_FORMAT"),
			Destination: &cfg.logFormat,
		},
		&cli.StringFlag{
			Name:        "db",
			Usage:       "Path to the settings database",
			Sources:     cli.EnvVars("PAGETALK_DB"),
			Destination: &cfg.dbPath,
		},
		&cli.BoolFlag{
			Name:        "ephemeral",
			Usage:       "Keep settings in memory only",
			Destination: &cfg.ephemeral,
		},
	}
}

// llmFlags returns flags for generation configuration. Flag values
// override persisted settings without rewriting them.
func llmFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "api-key",
			Usage:       "Gemini API key",
			Sources:     cli.EnvVars("PAGETALK_API_KEY", "GEMINI_API_KEY"),
			Destination: &cfg.apiKey,
		},
		&cli.StringFlag{
			Name:        "model",
			Aliases:     []string{"m"},
			Usage:       "Generation model name",
			Sources:     cli.EnvVars("PAGETALK_MODEL"),
			Destination: &cfg.modelName,
		},
		&cli.StringFlag{
			Name:        "base-url",
			Usage:       "Generation API base URL",
			Sources:     cli.EnvVars("PAGETALK_BASE_URL"),
			Destination: &cfg.baseURL,
		},
	}
}

// setupLogger installs the default logger per flags.
func (cfg *config) setupLogger() error {
	level, err := logging.ParseLevel(cfg.logLevel)
	if err != nil {
		return err
	}

	format := logging.FormatConsole
	if cfg.logFormat == "json" {
		format = logging.FormatJSON
	}

	logging.SetDefault(logging.New(level, format, os.Stderr))
	return nil
}

// newRepository opens the settings store.
func (cfg *config) newRepository() (repository.Repository, error) {
	if cfg.ephemeral {
		return repository.NewMemory(), nil
	}

	path := cfg.dbPath
	if path == "" {
		base, err := os.UserConfigDir()
		if err != nil {
			return nil, goerr.Wrap(err, "failed to resolve config directory")
		}
		path = filepath.Join(base, "pagetalk", "pagetalk.db")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, goerr.Wrap(err, "failed to create config directory", goerr.V("path", path))
	}

	return repository.NewSQLite(path)
}

// loadSettings merges persisted settings with flag overrides. Overrides
// are not written back; `pagetalk config set` persists.
func (cfg *config) loadSettings(ctx context.Context, repo repository.Repository) (*model.Settings, error) {
	settings, err := repo.GetSettings(ctx)
	if err != nil {
		return nil, err
	}

	if cfg.apiKey != "" {
		settings.APIKey = cfg.apiKey
	}
	if cfg.modelName != "" {
		settings.Model = cfg.modelName
	}
	if settings.Model == "" {
		settings.Model = model.DefaultModel
	}

	return settings, nil
}

// newGemini creates the generation client.
func (cfg *config) newGemini(settings *model.Settings, notifier adapter.Notifier) *adapter.GeminiClient {
	var opts []adapter.GeminiOption
	if cfg.baseURL != "" {
		opts = append(opts, adapter.WithBaseURL(cfg.baseURL))
	}
	if notifier != nil {
		opts = append(opts, adapter.WithNotifier(notifier))
	}
	return adapter.NewGemini(settings.APIKey, opts...)
}
