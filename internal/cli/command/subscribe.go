package command

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/minikv/internal/cli/output"
)

// SubscribeCommand returns the subscribe command.
func SubscribeCommand() *cli.Command {
	return &cli.Command{
		Name:      "subscribe",
		Aliases:   []string{"sub"},
		Usage:     "Print messages published to one or more channels",
		ArgsUsage: "CHANNEL [CHANNEL...]",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "count",
				Aliases: []string{"n"},
				Usage:   "Exit after this many messages (0 waits until interrupted)",
			},
		},
		Action: subscribeAction,
	}
}

type messageLine struct {
	Channel string `json:"channel" yaml:"channel"`
	Payload string `json:"payload" yaml:"payload"`
}

func subscribeAction(c *cli.Context) error {
	if c.NArg() == 0 {
		return fmt.Errorf("usage: %s CHANNEL [CHANNEL...]", c.Command.Name)
	}
	count := c.Int("count")
	if count < 0 {
		return fmt.Errorf("--count must not be negative")
	}

	cl, err := dial(c)
	if err != nil {
		return err
	}

	ctx, cancel := requestContext(c)
	sub, err := cl.Subscribe(ctx, c.Args().Slice()...)
	cancel()
	if err != nil {
		return err
	}
	defer sub.Close()

	fmt.Fprintf(stderr(c), "subscribed to %v\n", sub.Channels())

	// Messages wait on the command context only; --timeout bounds requests,
	// not how long a subscriber idles.
	waitCtx := c.Context
	if waitCtx == nil {
		waitCtx = context.Background()
	}

	format := ParseGlobalFlags(c).Output
	for received := 0; count == 0 || received < count; received++ {
		msg, err := sub.NextMessage(waitCtx)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		if err := printMessage(c, format, msg.Channel, msg.Payload); err != nil {
			return err
		}
	}
	return nil
}

func printMessage(c *cli.Context, format output.Format, channel string, payload []byte) error {
	if format == output.FormatTable {
		_, err := fmt.Fprintf(stdout(c), "%s\t%s\n", channel, payload)
		return err
	}
	// One document per message so the stream can be piped line by line.
	return (&output.JSONFormatter{}).Format(stdout(c), messageLine{Channel: channel, Payload: string(payload)})
}
