package command

import (
	"github.com/urfave/cli/v2"

	"github.com/yndnr/minikv/internal/cli/connection"
)

// StatusCommand returns the status command.
func StatusCommand() *cli.Command {
	return &cli.Command{
		Name:   "status",
		Usage:  "Show server status from the operations endpoint",
		Action: statusAction,
	}
}

func statusAction(c *cli.Context) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	st, err := connection.NewHTTPClient(c.String("ops")).Status(ctx)
	if err != nil {
		return err
	}
	return render(c, st)
}
