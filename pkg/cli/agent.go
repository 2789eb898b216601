package cli

import (
	"context"
	"fmt"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/m-mizutani/pagetalk/pkg/model"
	"github.com/m-mizutani/pagetalk/pkg/usecase/chat"
)

func agentCommand() *cli.Command {
	return &cli.Command{
		Name:  "agent",
		Usage: "Manage agent profiles",
		Commands: []*cli.Command{
			agentListCommand(),
			agentNewCommand(),
			agentDeleteCommand(),
			agentUseCommand(),
			agentSetCommand(),
			agentImportCommand(),
		},
	}
}

// withRegistry opens the repository, loads the registry and runs fn.
func withRegistry(cfg *config, fn func(ctx context.Context, c *cli.Command, registry *chat.Registry) error) func(context.Context, *cli.Command) error {
	return func(ctx context.Context, c *cli.Command) error {
		if err := cfg.setupLogger(); err != nil {
			return err
		}

		repo, err := cfg.newRepository()
		if err != nil {
			return err
		}
		defer repo.Close()

		registry, err := chat.LoadRegistry(ctx, repo)
		if err != nil {
			return err
		}

		return fn(ctx, c, registry)
	}
}

func agentListCommand() *cli.Command {
	var cfg config
	return &cli.Command{
		Name:  "list",
		Usage: "List agent profiles",
		Flags: globalFlags(&cfg),
		Action: withRegistry(&cfg, func(ctx context.Context, c *cli.Command, registry *chat.Registry) error {
			active := registry.Active()
			for _, agent := range registry.List() {
				marker := " "
				if agent.ID == active.ID {
					marker = "*"
				}
				fmt.Fprintf(c.Root().Writer, "%s %s (temperature=%.2f, maxOutputTokens=%d, topP=%.2f)\n",
					marker, agent.Name, agent.Temperature, agent.MaxOutputTokens, agent.TopP)
			}
			return nil
		}),
	}
}

func agentNewCommand() *cli.Command {
	var cfg config
	return &cli.Command{
		Name:      "new",
		Usage:     "Create a new agent profile",
		ArgsUsage: "<name>",
		Flags:     globalFlags(&cfg),
		Action: withRegistry(&cfg, func(ctx context.Context, c *cli.Command, registry *chat.Registry) error {
			agent, err := registry.Create(ctx, c.Args().First())
			if err != nil {
				return err
			}
			fmt.Fprintf(c.Root().Writer, "created agent: %s\n", agent.Name)
			return nil
		}),
	}
}

func agentDeleteCommand() *cli.Command {
	var cfg config
	return &cli.Command{
		Name:      "delete",
		Usage:     "Delete an agent profile",
		ArgsUsage: "<name>",
		Flags:     globalFlags(&cfg),
		Action: withRegistry(&cfg, func(ctx context.Context, c *cli.Command, registry *chat.Registry) error {
			agent, err := findAgentArg(c, registry)
			if err != nil {
				return err
			}
			if err := registry.Delete(ctx, agent.ID); err != nil {
				return err
			}
			fmt.Fprintf(c.Root().Writer, "deleted agent: %s\n", agent.Name)
			return nil
		}),
	}
}

func agentUseCommand() *cli.Command {
	var cfg config
	return &cli.Command{
		Name:      "use",
		Usage:     "Activate an agent profile",
		ArgsUsage: "<name>",
		Flags:     globalFlags(&cfg),
		Action: withRegistry(&cfg, func(ctx context.Context, c *cli.Command, registry *chat.Registry) error {
			agent, err := findAgentArg(c, registry)
			if err != nil {
				return err
			}
			if err := registry.Activate(ctx, agent.ID); err != nil {
				return err
			}
			fmt.Fprintf(c.Root().Writer, "active agent: %s\n", agent.Name)
			return nil
		}),
	}
}

func agentSetCommand() *cli.Command {
	var (
		cfg          config
		name         string
		rename       string
		systemPrompt string
		temperature  float64
		maxTokens    int64
		topP         float64
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "name",
			Usage:       "Agent to modify (default: active agent)",
			Destination: &name,
		},
		&cli.StringFlag{
			Name:        "rename",
			Usage:       "New agent name",
			Destination: &rename,
		},
		&cli.StringFlag{
			Name:        "system-prompt",
			Usage:       "System prompt",
			Destination: &systemPrompt,
		},
		&cli.FloatFlag{
			Name:        "temperature",
			Usage:       "Sampling temperature [0, 2]",
			Value:       -1,
			Destination: &temperature,
		},
		&cli.IntFlag{
			Name:        "max-tokens",
			Usage:       "Maximum output tokens",
			Destination: &maxTokens,
		},
		&cli.FloatFlag{
			Name:        "top-p",
			Usage:       "Nucleus sampling threshold [0, 1]",
			Value:       -1,
			Destination: &topP,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)

	return &cli.Command{
		Name:  "set",
		Usage: "Update an agent profile",
		Flags: flags,
		Action: withRegistry(&cfg, func(ctx context.Context, c *cli.Command, registry *chat.Registry) error {
			agent := registry.Active()
			if name != "" {
				found, err := registry.FindByName(name)
				if err != nil {
					return err
				}
				agent = found
			}

			var input chat.UpdateInput
			if rename != "" {
				input.Name = &rename
			}
			if systemPrompt != "" {
				input.SystemPrompt = &systemPrompt
			}
			if temperature >= 0 {
				input.Temperature = &temperature
			}
			if maxTokens > 0 {
				tokens := int(maxTokens)
				input.MaxOutputTokens = &tokens
			}
			if topP >= 0 {
				input.TopP = &topP
			}

			if err := registry.Update(ctx, agent.ID, input); err != nil {
				return err
			}
			fmt.Fprintf(c.Root().Writer, "updated agent: %s\n", agent.Name)
			return nil
		}),
	}
}

// findAgentArg resolves the positional agent-name argument.
func findAgentArg(c *cli.Command, registry *chat.Registry) (*model.Agent, error) {
	name := c.Args().First()
	if name == "" {
		return nil, goerr.New("agent name is required")
	}
	return registry.FindByName(name)
}
