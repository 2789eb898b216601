package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"

	"github.com/m-mizutani/pagetalk/pkg/usecase/chat"
)

// agentPreset is one entry of a YAML preset file.
type agentPreset struct {
	Name            string   `yaml:"name"`
	SystemPrompt    string   `yaml:"system_prompt"`
	Temperature     *float64 `yaml:"temperature"`
	MaxOutputTokens *int     `yaml:"max_output_tokens"`
	TopP            *float64 `yaml:"top_p"`
}

type presetFile struct {
	Agents []agentPreset `yaml:"agents"`
}

func loadPresets(path string) ([]agentPreset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read preset file", goerr.V("path", path))
	}

	var file presetFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, goerr.Wrap(err, "failed to parse preset file", goerr.V("path", path))
	}
	if len(file.Agents) == 0 {
		return nil, goerr.New("preset file has no agents", goerr.V("path", path))
	}

	return file.Agents, nil
}

func agentImportCommand() *cli.Command {
	var cfg config
	return &cli.Command{
		Name:      "import",
		Usage:     "Create agent profiles from a YAML preset file",
		ArgsUsage: "<file>",
		Flags:     globalFlags(&cfg),
		Action: withRegistry(&cfg, func(ctx context.Context, c *cli.Command, registry *chat.Registry) error {
			path := c.Args().First()
			if path == "" {
				return goerr.New("preset file path is required")
			}

			presets, err := loadPresets(path)
			if err != nil {
				return err
			}

			for _, preset := range presets {
				agent, err := registry.Create(ctx, preset.Name)
				if err != nil {
					return err
				}

				input := chat.UpdateInput{
					SystemPrompt:    &preset.SystemPrompt,
					Temperature:     preset.Temperature,
					MaxOutputTokens: preset.MaxOutputTokens,
					TopP:            preset.TopP,
				}
				if err := registry.Update(ctx, agent.ID, input); err != nil {
					return err
				}
				fmt.Fprintf(c.Root().Writer, "imported agent: %s\n", agent.Name)
			}
			return nil
		}),
	}
}
