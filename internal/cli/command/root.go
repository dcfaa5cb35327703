package command

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/minikv/internal/cli/output"
	"github.com/yndnr/minikv/internal/infra/buildinfo"
	"github.com/yndnr/minikv/pkg/client"
)

// App creates the CLI application.
func App() *cli.App {
	return &cli.App{
		Name:    "minikv-cli",
		Usage:   "minikv command-line client",
		Version: buildinfo.String(),
		Flags:   globalFlags(),
		Commands: []*cli.Command{
			GetCommand(),
			SetCommand(),
			PublishCommand(),
			SubscribeCommand(),
			LoadCommand(),
			StatusCommand(),
		},
		Before: func(c *cli.Context) error {
			_, err := output.ParseFormat(c.String("output"))
			return err
		},
	}
}

// globalFlags returns the global CLI flags.
func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "server",
			Aliases: []string{"s"},
			Usage:   "minikv server address",
			EnvVars: []string{"MINIKV_SERVER"},
			Value:   "127.0.0.1:6379",
		},
		&cli.StringFlag{
			Name:    "ops",
			Usage:   "operations endpoint address (server metrics.addr)",
			EnvVars: []string{"MINIKV_OPS"},
			Value:   "127.0.0.1:9121",
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "Output format: table, json, yaml",
			Value:   "table",
		},
		&cli.DurationFlag{
			Name:    "timeout",
			Aliases: []string{"t"},
			Usage:   "Per-request timeout",
			Value:   5 * time.Second,
		},
	}
}

// GlobalFlags defines flags available to all commands.
type GlobalFlags struct {
	Server  string
	Ops     string
	Output  output.Format
	Timeout time.Duration
}

// ParseGlobalFlags extracts global flags from context.
func ParseGlobalFlags(c *cli.Context) *GlobalFlags {
	format, _ := output.ParseFormat(c.String("output"))
	return &GlobalFlags{
		Server:  c.String("server"),
		Ops:     c.String("ops"),
		Output:  format,
		Timeout: c.Duration("timeout"),
	}
}

// requestContext bounds one request by the --timeout flag.
func requestContext(c *cli.Context) (context.Context, context.CancelFunc) {
	ctx := c.Context
	if ctx == nil {
		ctx = context.Background()
	}
	if d := c.Duration("timeout"); d > 0 {
		return context.WithTimeout(ctx, d)
	}
	return context.WithCancel(ctx)
}

// dial connects to the --server address.
func dial(c *cli.Context) (*client.Client, error) {
	ctx, cancel := requestContext(c)
	defer cancel()
	return client.Dial(ctx, c.String("server"))
}

// render writes data in the --output format.
func render(c *cli.Context, data any) error {
	return output.NewFormatter(ParseGlobalFlags(c).Output).Format(stdout(c), data)
}

func stdout(c *cli.Context) io.Writer {
	return c.App.Writer
}

func stderr(c *cli.Context) io.Writer {
	return c.App.ErrWriter
}

// requireArgs fails unless exactly n positional arguments were given.
func requireArgs(c *cli.Context, n int, usage string) error {
	if c.NArg() != n {
		return fmt.Errorf("usage: %s %s", c.Command.Name, usage)
	}
	return nil
}
