package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/m-mizutani/pagetalk/pkg/adapter"
	"github.com/m-mizutani/pagetalk/pkg/model"
)

func configCommand() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Show or change persisted settings",
		Commands: []*cli.Command{
			configShowCommand(),
			configSetCommand(),
			configModelsCommand(),
			configTestCommand(),
		},
	}
}

func configShowCommand() *cli.Command {
	var cfg config
	return &cli.Command{
		Name:  "show",
		Usage: "Show the persisted settings",
		Flags: globalFlags(&cfg),
		Action: func(ctx context.Context, c *cli.Command) error {
			if err := cfg.setupLogger(); err != nil {
				return err
			}

			repo, err := cfg.newRepository()
			if err != nil {
				return err
			}
			defer repo.Close()

			settings, err := repo.GetSettings(ctx)
			if err != nil {
				return err
			}

			modelName := settings.Model
			if modelName == "" {
				modelName = model.DefaultModel + " (default)"
			}
			fmt.Fprintf(c.Root().Writer, "model:   %s\n", modelName)
			fmt.Fprintf(c.Root().Writer, "api key: %s\n", maskKey(settings.APIKey))
			return nil
		},
	}
}

func configSetCommand() *cli.Command {
	var (
		cfg       config
		apiKey    string
		modelName string
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "api-key",
			Usage:       "Gemini API key to persist",
			Destination: &apiKey,
		},
		&cli.StringFlag{
			Name:        "model",
			Usage:       "Generation model name to persist",
			Destination: &modelName,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)

	return &cli.Command{
		Name:  "set",
		Usage: "Persist settings",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			if err := cfg.setupLogger(); err != nil {
				return err
			}
			if apiKey == "" && modelName == "" {
				return goerr.New("nothing to set: specify --api-key and/or --model")
			}
			if modelName != "" && !model.IsKnownModel(modelName) {
				return goerr.New("unknown model", goerr.V("model", modelName),
					goerr.V("known", strings.Join(model.KnownModels, ", ")))
			}

			repo, err := cfg.newRepository()
			if err != nil {
				return err
			}
			defer repo.Close()

			settings, err := repo.GetSettings(ctx)
			if err != nil {
				return err
			}
			if apiKey != "" {
				settings.APIKey = apiKey
			}
			if modelName != "" {
				settings.Model = modelName
			}

			if err := repo.PutSettings(ctx, settings); err != nil {
				return err
			}
			fmt.Fprintf(c.Root().Writer, "settings saved\n")
			return nil
		},
	}
}

func configModelsCommand() *cli.Command {
	var cfg config
	return &cli.Command{
		Name:  "models",
		Usage: "List selectable models",
		Flags: globalFlags(&cfg),
		Action: func(ctx context.Context, c *cli.Command) error {
			if err := cfg.setupLogger(); err != nil {
				return err
			}

			repo, err := cfg.newRepository()
			if err != nil {
				return err
			}
			defer repo.Close()

			settings, err := repo.GetSettings(ctx)
			if err != nil {
				return err
			}
			selected := settings.Model
			if selected == "" {
				selected = model.DefaultModel
			}

			for _, name := range model.KnownModels {
				marker := " "
				if name == selected {
					marker = "*"
				}
				fmt.Fprintf(c.Root().Writer, "%s %s\n", marker, name)
			}
			return nil
		},
	}
}

func configTestCommand() *cli.Command {
	var cfg config
	flags := append(globalFlags(&cfg), llmFlags(&cfg)...)

	return &cli.Command{
		Name:  "test",
		Usage: "Verify the API key with a minimal generation call",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			if err := cfg.setupLogger(); err != nil {
				return err
			}

			repo, err := cfg.newRepository()
			if err != nil {
				return err
			}
			defer repo.Close()

			settings, err := cfg.loadSettings(ctx, repo)
			if err != nil {
				return err
			}

			req := &adapter.GenerateRequest{
				Contents: []*adapter.Content{
					{Role: "user", Parts: []*adapter.Part{{Text: "Hello"}}},
				},
				GenerationConfig: adapter.GenerationConfig{
					Temperature:     0,
					MaxOutputTokens: 16,
					TopP:            1,
				},
			}

			client := cfg.newGemini(settings, nil)
			if _, err := client.GenerateContent(ctx, settings.Model, req); err != nil {
				return goerr.Wrap(err, "connection test failed", goerr.V("model", settings.Model))
			}

			fmt.Fprintf(c.Root().Writer, "connection OK (model: %s)\n", settings.Model)
			return nil
		},
	}
}

func maskKey(key string) string {
	if key == "" {
		return "(not set)"
	}
	if len(key) <= 8 {
		return "********"
	}
	return key[:4] + strings.Repeat("*", len(key)-8) + key[len(key)-4:]
}
