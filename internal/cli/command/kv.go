package command

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/minikv/internal/cli/output"
)

// GetCommand returns the get command.
func GetCommand() *cli.Command {
	return &cli.Command{
		Name:      "get",
		Usage:     "Read the value stored under a key",
		ArgsUsage: "KEY",
		Action:    getAction,
	}
}

// SetCommand returns the set command.
func SetCommand() *cli.Command {
	return &cli.Command{
		Name:      "set",
		Usage:     "Store a value under a key",
		ArgsUsage: "KEY VALUE",
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:    "expires",
				Aliases: []string{"e"},
				Usage:   "Expire the value after this duration (e.g. 10s, 1500ms)",
			},
		},
		Action: setAction,
	}
}

// PublishCommand returns the publish command.
func PublishCommand() *cli.Command {
	return &cli.Command{
		Name:      "publish",
		Aliases:   []string{"pub"},
		Usage:     "Publish a message to a channel",
		ArgsUsage: "CHANNEL MESSAGE",
		Action:    publishAction,
	}
}

type getResult struct {
	Key   string `json:"key" yaml:"key"`
	Found bool   `json:"found" yaml:"found"`
	Value string `json:"value" yaml:"value"`
}

func getAction(c *cli.Context) error {
	if err := requireArgs(c, 1, "KEY"); err != nil {
		return err
	}
	key := c.Args().Get(0)

	cl, err := dial(c)
	if err != nil {
		return err
	}
	defer cl.Close()

	ctx, cancel := requestContext(c)
	defer cancel()

	value, err := cl.Get(ctx, key)
	if err != nil {
		return err
	}

	if ParseGlobalFlags(c).Output != output.FormatTable {
		return render(c, getResult{Key: key, Found: value != nil, Value: string(value)})
	}
	if value == nil {
		fmt.Fprintln(stdout(c), "(nil)")
		return nil
	}
	fmt.Fprintf(stdout(c), "%q\n", value)
	return nil
}

func setAction(c *cli.Context) error {
	if err := requireArgs(c, 2, "KEY VALUE"); err != nil {
		return err
	}
	key, value := c.Args().Get(0), []byte(c.Args().Get(1))

	cl, err := dial(c)
	if err != nil {
		return err
	}
	defer cl.Close()

	ctx, cancel := requestContext(c)
	defer cancel()

	if c.IsSet("expires") {
		err = cl.SetExpires(ctx, key, value, c.Duration("expires"))
	} else {
		err = cl.Set(ctx, key, value)
	}
	if err != nil {
		return err
	}

	fmt.Fprintln(stdout(c), "OK")
	return nil
}

type publishResult struct {
	Channel   string `json:"channel" yaml:"channel"`
	Receivers int64  `json:"receivers" yaml:"receivers"`
}

func publishAction(c *cli.Context) error {
	if err := requireArgs(c, 2, "CHANNEL MESSAGE"); err != nil {
		return err
	}
	channel, msg := c.Args().Get(0), []byte(c.Args().Get(1))

	cl, err := dial(c)
	if err != nil {
		return err
	}
	defer cl.Close()

	ctx, cancel := requestContext(c)
	defer cancel()

	n, err := cl.Publish(ctx, channel, msg)
	if err != nil {
		return err
	}

	if ParseGlobalFlags(c).Output != output.FormatTable {
		return render(c, publishResult{Channel: channel, Receivers: n})
	}
	fmt.Fprintf(stdout(c), "(integer) %d\n", n)
	return nil
}
