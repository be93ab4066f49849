package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bdobrica/Neuro/common/trace"
)

const (
	// DefaultActionTimeout bounds a single handler when no timeout is configured.
	DefaultActionTimeout = 30 * time.Second

	// DefaultWorkers is the number of handlers allowed to run at once.
	DefaultWorkers = 8
)

// Status is the settled state of one command in a batch.
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Outcome is the settled result of one command. Outcomes are returned in the
// order of the input labels, never in completion order.
type Outcome struct {
	Index    int           `json:"index"`
	Label    string        `json:"label"`
	Verb     Verb          `json:"verb,omitempty"`
	Argument string        `json:"argument,omitempty"`
	Status   Status        `json:"status"`
	Detail   string        `json:"detail"`
	Duration time.Duration `json:"duration_ns"`
	// Err is the cause of a failed outcome, for errors.Is checks.
	Err error `json:"-"`
}

// OK reports whether the command succeeded.
func (o Outcome) OK() bool { return o.Status == StatusSucceeded }

// ExecutorConfig tunes the Executor.
type ExecutorConfig struct {
	// ActionTimeout bounds every handler. Defaults to DefaultActionTimeout.
	ActionTimeout time.Duration
	// VerbTimeouts replaces ActionTimeout for the listed verbs.
	VerbTimeouts map[Verb]time.Duration
	// Workers caps the number of handlers running at once. Defaults to
	// DefaultWorkers.
	Workers int
	// Logger receives one line per settled outcome. Defaults to slog.Default().
	Logger *slog.Logger
}

// Executor runs batches of commands concurrently against a Registry.
//
// Each command is an independent unit of work: a handler that fails, panics
// or stalls only affects its own outcome. No error ever crosses Dispatch or
// Run; every failure becomes a StatusFailed outcome.
type Executor struct {
	registry *Registry
	cfg      ExecutorConfig
}

// NewExecutor returns an Executor over registry.
func NewExecutor(registry *Registry, cfg ExecutorConfig) *Executor {
	if cfg.ActionTimeout <= 0 {
		cfg.ActionTimeout = DefaultActionTimeout
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Executor{registry: registry, cfg: cfg}
}

// job is one slot of a batch before it runs.
type job struct {
	label    string
	cmd      Command
	parseErr error
}

// Dispatch parses every label and runs the resulting batch. Labels that fail
// to parse keep their position as failed outcomes. Dispatch returns only once
// every launched handler has settled.
func (e *Executor) Dispatch(ctx context.Context, labels []string) []Outcome {
	jobs := make([]job, len(labels))
	for i, label := range labels {
		cmd, err := Parse(label)
		jobs[i] = job{label: label, cmd: cmd, parseErr: err}
	}
	return e.run(ctx, jobs)
}

// Run executes already-parsed commands.
func (e *Executor) Run(ctx context.Context, cmds []Command) []Outcome {
	jobs := make([]job, len(cmds))
	for i, cmd := range cmds {
		jobs[i] = job{label: cmd.String(), cmd: cmd}
	}
	return e.run(ctx, jobs)
}

func (e *Executor) run(ctx context.Context, jobs []job) []Outcome {
	log := e.cfg.Logger
	if id := trace.FromContext(ctx); id != "" {
		log = log.With("trace_id", id)
	}

	outcomes := make([]Outcome, len(jobs))

	var g errgroup.Group
	g.SetLimit(e.cfg.Workers)

	for i, j := range jobs {
		if j.parseErr != nil {
			outcomes[i] = failed(i, j, j.parseErr, 0)
			log.Warn("command rejected", "index", i, "label", j.label, "err", j.parseErr)
			continue
		}
		h, ok := e.registry.Resolve(j.cmd.Verb)
		if !ok {
			err := fmt.Errorf("%w for verb %q", ErrNoHandler, j.cmd.Verb)
			outcomes[i] = failed(i, j, err, 0)
			log.Warn("command rejected", "index", i, "label", j.label, "err", err)
			continue
		}

		// Each goroutine owns outcomes[i]; no other goroutine writes it.
		g.Go(func() error {
			outcomes[i] = e.runOne(ctx, log, i, j, h)
			return nil
		})
	}

	// Units never return errors, so Wait only waits.
	_ = g.Wait()
	return outcomes
}

type unitResult struct {
	detail string
	err    error
}

// timeout returns the budget for one action of verb.
func (e *Executor) timeout(verb Verb) time.Duration {
	if d, ok := e.cfg.VerbTimeouts[verb]; ok && d > 0 {
		return d
	}
	return e.cfg.ActionTimeout
}

// runOne executes a single handler under the per-action timeout. The handler
// runs in its own goroutine so that a handler ignoring ctx cannot hold the
// batch past the deadline; its late result is discarded.
func (e *Executor) runOne(ctx context.Context, log *slog.Logger, i int, j job, h Handler) Outcome {
	start := time.Now()

	actx, cancel := context.WithTimeout(ctx, e.timeout(j.cmd.Verb))
	defer cancel()

	done := make(chan unitResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- unitResult{err: &HandlerPanicError{Verb: j.cmd.Verb, Value: r, Stack: debug.Stack()}}
			}
		}()
		detail, err := h(actx, j.cmd)
		done <- unitResult{detail: detail, err: err}
	}()

	var res unitResult
	select {
	case res = <-done:
	case <-actx.Done():
		res.err = actx.Err()
	}

	if res.err != nil && errors.Is(actx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		res.err = ErrTimeout
	}

	elapsed := time.Since(start)
	if res.err != nil {
		var pe *HandlerPanicError
		if errors.As(res.err, &pe) {
			log.Error("action panicked", "index", i, "verb", j.cmd.Verb, "panic", pe.Value, "stack", string(pe.Stack))
		} else {
			log.Warn("action failed", "index", i, "verb", j.cmd.Verb, "err", res.err, "elapsed", elapsed)
		}
		return failed(i, j, res.err, elapsed)
	}

	log.Info("action succeeded", "index", i, "verb", j.cmd.Verb, "elapsed", elapsed)
	return Outcome{
		Index:    i,
		Label:    j.label,
		Verb:     j.cmd.Verb,
		Argument: j.cmd.Argument,
		Status:   StatusSucceeded,
		Detail:   res.detail,
		Duration: elapsed,
	}
}

func failed(i int, j job, err error, elapsed time.Duration) Outcome {
	return Outcome{
		Index:    i,
		Label:    j.label,
		Verb:     j.cmd.Verb,
		Argument: j.cmd.Argument,
		Status:   StatusFailed,
		Detail:   err.Error(),
		Duration: elapsed,
		Err:      err,
	}
}

// Succeeded counts the successful outcomes of a batch.
func Succeeded(outcomes []Outcome) int {
	n := 0
	for _, o := range outcomes {
		if o.OK() {
			n++
		}
	}
	return n
}
