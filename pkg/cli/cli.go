package cli

import (
	"context"

	"github.com/urfave/cli/v3"

	"github.com/m-mizutani/pagetalk/pkg/utils/logging"
)

type Error struct {
	Code    int
	Message string
}

// Run executes the command line interface.
func Run(ctx context.Context, argv []string) *Error {
	cmd := &cli.Command{
		Name:  "pagetalk",
		Usage: "Chat with a page-aware Gemini assistant",
		Commands: []*cli.Command{
			chatCommand(),
			agentCommand(),
			configCommand(),
			exportCommand(),
		},
	}

	if err := cmd.Run(ctx, argv); err != nil {
		logging.Default().Error("command failed", "error", err)
		return &Error{
			Code:    1,
			Message: err.Error(),
		}
	}

	return nil
}
