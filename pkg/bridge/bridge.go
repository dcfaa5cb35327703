package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/errgroup"

	"github.com/yndnr/minikv/internal/telemetry/logger"
	"github.com/yndnr/minikv/internal/telemetry/metric"
)

// DefaultCapacity is the queue capacity used when Config.Capacity is not
// positive.
const DefaultCapacity = 16

// ErrClosed is returned by Submit once Shutdown has begun.
var ErrClosed = errors.New("bridge: closed")

// State is the lifecycle state of a Bridge.
type State int32

const (
	// StateRunning accepts submissions and launches sub-tasks.
	StateRunning State = iota
	// StateDraining rejects submissions and waits for sub-tasks to finish.
	StateDraining
	// StateStopped is terminal. The loop has exited.
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Task is a unit of work. Run receives a context carrying the task ID for
// logging; it is never cancelled by the bridge.
type Task struct {
	Name string
	Run  func(ctx context.Context) error
}

// Result describes a finished sub-task.
type Result struct {
	TaskID   string
	Name     string
	Err      error
	Duration time.Duration
}

// TaskError is the failure of one sub-task.
type TaskError struct {
	TaskID string
	Name   string
	Err    error

	// Panic is set when the task panicked instead of returning. Stack then
	// holds the goroutine stack at the point of recovery.
	Panic bool
	Stack []byte
}

func (e *TaskError) Error() string {
	if e.Panic {
		return fmt.Sprintf("bridge: task %s (%s) panicked: %v", e.TaskID, e.Name, e.Err)
	}
	return fmt.Sprintf("bridge: task %s (%s) failed: %v", e.TaskID, e.Name, e.Err)
}

func (e *TaskError) Unwrap() error {
	return e.Err
}

// Config configures a Bridge.
type Config struct {
	// Capacity bounds the number of accepted tasks not yet received by the
	// loop. Defaults to DefaultCapacity.
	Capacity int

	// MaxConcurrent limits the number of sub-tasks running at once. Zero
	// means no limit. When the limit is reached the loop stops receiving,
	// and Submit blocks once the queue fills up.
	MaxConcurrent int

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// Metrics, if set, records submissions and completions.
	Metrics *metric.Registry

	// OnComplete is called from the sub-task goroutine after each task
	// finishes, successfully or not.
	OnComplete func(Result)
}

type item struct {
	id   string
	task Task
}

// Bridge runs submitted tasks on a background loop.
type Bridge struct {
	cfg    Config
	logger *slog.Logger
	queue  chan item
	done   chan struct{}

	// closing is closed when Shutdown begins. It releases submitters
	// blocked on a full queue before Shutdown takes mu.
	closing   chan struct{}
	closeOnce sync.Once

	// mu is held for reading by Submit for the whole send, and for writing
	// by Shutdown while it closes the queue. No send can race the close.
	// closed is only read and written by Shutdown.
	mu     sync.RWMutex
	closed bool

	state     atomic.Int32
	startOnce sync.Once

	errMu sync.Mutex
	errs  []error
}

// New creates a Bridge in the Running state. Tasks may be submitted
// immediately, but none runs until Start is called.
func New(cfg Config) *Bridge {
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultCapacity
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Bridge{
		cfg:     cfg,
		logger:  cfg.Logger.With("component", "bridge"),
		queue:   make(chan item, cfg.Capacity),
		done:    make(chan struct{}),
		closing: make(chan struct{}),
	}
}

// Start launches the loop goroutine. Calls after the first have no effect.
func (b *Bridge) Start() {
	b.startOnce.Do(func() {
		go b.loop()
	})
}

// Submit hands task to the bridge and returns its ID.
//
// It blocks while the queue is full. It returns ErrClosed if Shutdown has
// begun and ctx.Err() if ctx ends before the task is accepted. Once Submit
// returns nil the bridge owns the task and will run it exactly once.
func (b *Bridge) Submit(ctx context.Context, task Task) (string, error) {
	if task.Run == nil {
		return "", fmt.Errorf("bridge: task %q has no Run function", task.Name)
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	select {
	case <-b.closing:
		return "", ErrClosed
	default:
	}

	it := item{id: ulid.Make().String(), task: task}
	select {
	case b.queue <- it:
		b.cfg.Metrics.TaskSubmitted()
		return it.id, nil
	case <-b.closing:
		return "", ErrClosed
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Shutdown stops accepting tasks and waits until every accepted task has
// finished and the loop has exited. It starts the loop if Start was never
// called, so queued tasks still run.
//
// The returned error joins the *TaskError of every failed sub-task, or is
// nil if all succeeded. If ctx ends first Shutdown returns ctx.Err() and
// the bridge keeps draining in the background; calling Shutdown again
// waits for it.
func (b *Bridge) Shutdown(ctx context.Context) error {
	b.Start()
	b.closeOnce.Do(func() { close(b.closing) })

	b.mu.Lock()
	if !b.closed {
		b.closed = true
		b.state.Store(int32(StateDraining))
		close(b.queue)
		b.logger.Info("bridge draining", "queued", len(b.queue))
	}
	b.mu.Unlock()

	select {
	case <-b.done:
	case <-ctx.Done():
		return ctx.Err()
	}

	b.errMu.Lock()
	defer b.errMu.Unlock()
	return errors.Join(b.errs...)
}

// State returns the current lifecycle state.
func (b *Bridge) State() State {
	return State(b.state.Load())
}

// Done is closed when the loop has exited and every sub-task has finished.
func (b *Bridge) Done() <-chan struct{} {
	return b.done
}

// Queued returns the number of accepted tasks the loop has not received yet.
func (b *Bridge) Queued() int {
	return len(b.queue)
}

func (b *Bridge) loop() {
	defer close(b.done)

	var g errgroup.Group
	if b.cfg.MaxConcurrent > 0 {
		g.SetLimit(b.cfg.MaxConcurrent)
	}

	launched := 0
	for it := range b.queue {
		g.Go(func() error {
			b.run(it)
			return nil
		})
		launched++
	}

	b.logger.Debug("bridge queue closed, waiting for sub-tasks", "launched", launched)
	_ = g.Wait()

	b.state.Store(int32(StateStopped))
	b.logger.Info("bridge stopped", "tasks", launched, "failed", b.failures())
}

func (b *Bridge) run(it item) {
	b.cfg.Metrics.TaskStarted()
	start := time.Now()

	err := b.execute(it)

	res := Result{
		TaskID:   it.id,
		Name:     it.task.Name,
		Err:      err,
		Duration: time.Since(start),
	}

	outcome := metric.ResultOK
	if err != nil {
		var te *TaskError
		outcome = metric.ResultError
		if errors.As(err, &te) && te.Panic {
			outcome = metric.ResultPanic
			b.logger.Error("task panicked", "task_id", it.id, "name", it.task.Name, "panic", te.Err, "stack", string(te.Stack))
		} else {
			b.logger.Warn("task failed", "task_id", it.id, "name", it.task.Name, "error", err)
		}

		b.errMu.Lock()
		b.errs = append(b.errs, err)
		b.errMu.Unlock()
	} else {
		b.logger.Debug("task finished", "task_id", it.id, "name", it.task.Name, "duration", res.Duration)
	}
	b.cfg.Metrics.TaskFinished(outcome)

	if b.cfg.OnComplete != nil {
		b.notify(res)
	}
}

// execute runs the task, converting a returned error or a panic into a
// *TaskError.
func (b *Bridge) execute(it item) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &TaskError{
				TaskID: it.id,
				Name:   it.task.Name,
				Err:    fmt.Errorf("%v", r),
				Panic:  true,
				Stack:  debug.Stack(),
			}
		}
	}()

	ctx := logger.WithTaskID(context.Background(), it.id)
	if runErr := it.task.Run(ctx); runErr != nil {
		return &TaskError{TaskID: it.id, Name: it.task.Name, Err: runErr}
	}
	return nil
}

func (b *Bridge) notify(res Result) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("OnComplete panicked", "task_id", res.TaskID, "panic", r)
		}
	}()
	b.cfg.OnComplete(res)
}

func (b *Bridge) failures() int {
	b.errMu.Lock()
	defer b.errMu.Unlock()
	return len(b.errs)
}
