package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/m-mizutani/pagetalk/pkg/adapter"
	"github.com/m-mizutani/pagetalk/pkg/usecase/export"
)

func exportCommand() *cli.Command {
	var cfg config
	return &cli.Command{
		Name:      "export",
		Usage:     "Convert an exported markdown transcript to standalone HTML",
		ArgsUsage: "<transcript.md> <output.html>",
		Flags:     globalFlags(&cfg),
		Action: func(ctx context.Context, c *cli.Command) error {
			if err := cfg.setupLogger(); err != nil {
				return err
			}

			in := c.Args().Get(0)
			out := c.Args().Get(1)
			if in == "" || out == "" {
				return goerr.New("usage: export <transcript.md> <output.html>")
			}
			if export.FormatForPath(out) != export.FormatHTML {
				return goerr.New("output must be an .html file", goerr.V("path", out))
			}

			data, err := os.ReadFile(in)
			if err != nil {
				return goerr.Wrap(err, "failed to read transcript", goerr.V("path", in))
			}

			f, err := os.Create(out)
			if err != nil {
				return goerr.Wrap(err, "failed to create output file", goerr.V("path", out))
			}
			defer f.Close()

			if err := export.RenderDocument(f, string(data), adapter.NewMarkdownRenderer()); err != nil {
				return err
			}
			fmt.Fprintf(c.Root().Writer, "exported %s\n", out)
			return nil
		},
	}
}
