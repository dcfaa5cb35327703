package command

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/minikv/internal/cli/output"
	"github.com/yndnr/minikv/pkg/bridge"
	"github.com/yndnr/minikv/pkg/client"
)

// LoadCommand returns the load command.
func LoadCommand() *cli.Command {
	return &cli.Command{
		Name:  "load",
		Usage: "Drive SET/GET round trips through a work bridge and a client pool",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "requests",
				Aliases: []string{"n"},
				Usage:   "Number of SET+GET round trips",
				Value:   1000,
			},
			&cli.IntFlag{
				Name:  "pool-size",
				Usage: "Maximum open connections",
				Value: 8,
			},
			&cli.IntFlag{
				Name:  "capacity",
				Usage: "Work bridge queue capacity",
				Value: bridge.DefaultCapacity,
			},
			&cli.IntFlag{
				Name:  "value-size",
				Usage: "Size of each value in bytes",
				Value: 64,
			},
			&cli.StringFlag{
				Name:  "key-prefix",
				Usage: "Prefix of generated keys",
				Value: "load:",
			},
			&cli.BoolFlag{
				Name:    "quiet",
				Aliases: []string{"q"},
				Usage:   "Do not draw the progress bar",
			},
		},
		Action: loadAction,
	}
}

// loadOptions configures runLoad.
type loadOptions struct {
	Addr      string
	Requests  int
	PoolSize  int
	Capacity  int
	ValueSize int
	KeyPrefix string
	Timeout   time.Duration

	Progress *output.Progress
	Logger   *slog.Logger
}

// loadReport summarises a load run.
type loadReport struct {
	Requests    int     `json:"requests" yaml:"requests"`
	Succeeded   int     `json:"succeeded" yaml:"succeeded"`
	Failed      int     `json:"failed" yaml:"failed"`
	Elapsed     string  `json:"elapsed" yaml:"elapsed"`
	TasksPerSec float64 `json:"tasks_per_sec" yaml:"tasks_per_sec"`
	P50         string  `json:"p50" yaml:"p50"`
	P99         string  `json:"p99" yaml:"p99"`
	Max         string  `json:"max" yaml:"max"`
	FirstError  string  `json:"first_error,omitempty" yaml:"first_error,omitempty"`
}

func loadAction(c *cli.Context) error {
	opts := loadOptions{
		Addr:      c.String("server"),
		Requests:  c.Int("requests"),
		PoolSize:  c.Int("pool-size"),
		Capacity:  c.Int("capacity"),
		ValueSize: c.Int("value-size"),
		KeyPrefix: c.String("key-prefix"),
		Timeout:   c.Duration("timeout"),
		Logger:    slog.New(slog.NewTextHandler(stderr(c), &slog.HandlerOptions{Level: slog.LevelError})),
	}
	if opts.Requests <= 0 || opts.PoolSize <= 0 || opts.Capacity <= 0 || opts.ValueSize < 0 {
		return errors.New("--requests, --pool-size and --capacity must be positive")
	}
	if !c.Bool("quiet") {
		opts.Progress = output.NewProgress(stderr(c), "load", opts.Requests)
	}

	ctx := c.Context
	if ctx == nil {
		ctx = context.Background()
	}

	report, err := runLoad(ctx, opts)
	if opts.Progress != nil {
		opts.Progress.Finish()
	}
	if err != nil {
		return err
	}
	return render(c, report)
}

// runLoad submits opts.Requests round trips to a bridge whose tasks share a
// client pool, then drains the bridge and reports. Cancelling ctx stops
// submission; tasks already accepted still run.
func runLoad(ctx context.Context, opts loadOptions) (*loadReport, error) {
	pool := client.NewPool(ctx, client.PoolConfig{Addr: opts.Addr, MaxTotal: opts.PoolSize})
	defer pool.Close(context.Background())

	var (
		mu        sync.Mutex
		latencies []time.Duration
	)
	b := bridge.New(bridge.Config{
		Capacity:      opts.Capacity,
		MaxConcurrent: opts.PoolSize,
		Logger:        opts.Logger,
		OnComplete: func(r bridge.Result) {
			mu.Lock()
			latencies = append(latencies, r.Duration)
			mu.Unlock()
			if opts.Progress != nil {
				opts.Progress.Add(r.Err != nil)
			}
		},
	})
	b.Start()

	value := bytes.Repeat([]byte{'v'}, opts.ValueSize)
	start := time.Now()

	submitted := 0
	var submitErr error
	for i := 0; i < opts.Requests; i++ {
		key := opts.KeyPrefix + strconv.Itoa(i)
		_, err := b.Submit(ctx, bridge.Task{
			Name: key,
			Run:  roundTrip(pool, key, value, opts.Timeout),
		})
		if err != nil {
			submitErr = err
			break
		}
		submitted++
	}

	runErr := b.Shutdown(context.Background())
	elapsed := time.Since(start)

	if submitted == 0 && submitErr != nil {
		return nil, fmt.Errorf("load: %w", submitErr)
	}

	failed := 0
	var firstErr string
	if runErr != nil {
		if joined, ok := runErr.(interface{ Unwrap() []error }); ok {
			errs := joined.Unwrap()
			failed = len(errs)
			firstErr = errs[0].Error()
		} else {
			failed = 1
			firstErr = runErr.Error()
		}
	}

	report := &loadReport{
		Requests:   submitted,
		Succeeded:  submitted - failed,
		Failed:     failed,
		Elapsed:    elapsed.Round(time.Millisecond).String(),
		FirstError: firstErr,
	}
	if secs := elapsed.Seconds(); secs > 0 {
		report.TasksPerSec = float64(report.Succeeded) / secs
	}

	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })
	report.P50 = percentile(latencies, 0.50).String()
	report.P99 = percentile(latencies, 0.99).String()
	report.Max = percentile(latencies, 1).String()
	return report, nil
}

// roundTrip writes value under key and reads it back on a pooled client.
func roundTrip(pool *client.Pool, key string, value []byte, timeout time.Duration) func(context.Context) error {
	return func(ctx context.Context) error {
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}

		cl, err := pool.Borrow(ctx)
		if err != nil {
			return err
		}

		if err := cl.Set(ctx, key, value); err != nil {
			_ = pool.Invalidate(context.Background(), cl)
			return err
		}
		got, err := cl.Get(ctx, key)
		if err != nil {
			_ = pool.Invalidate(context.Background(), cl)
			return err
		}
		_ = pool.Return(context.Background(), cl)

		if !bytes.Equal(got, value) {
			return fmt.Errorf("read back %d bytes, want %d", len(got), len(value))
		}
		return nil
	}
}

// percentile returns the q-th quantile of sorted durations.
func percentile(sorted []time.Duration, q float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(q*float64(len(sorted))+0.5) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx].Round(time.Microsecond)
}
