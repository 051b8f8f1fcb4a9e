package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/signalsfoundry/psrinfo/internal/logging"
	"github.com/signalsfoundry/psrinfo/internal/observability"
)

var (
	ErrTimeout = errors.New("external program timed out")
	ErrFailed  = errors.New("external program failed")
)

// DefaultTimeout bounds a single external invocation.
const DefaultTimeout = 30 * time.Second

// Command describes one invocation of an external program.
type Command struct {
	Path string
	Args []string
	Dir  string // working directory; empty inherits ours
}

func (c Command) String() string {
	return strings.TrimSpace(c.Path + " " + strings.Join(c.Args, " "))
}

// Runner executes external programs and returns their stdout.
type Runner interface {
	Run(ctx context.Context, cmd Command) ([]byte, error)
}

// Error carries the failing command and whatever it wrote to stderr.
type Error struct {
	Command string
	Stderr  string
	Err     error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %v", e.Command, e.Err)
	if e.Stderr != "" {
		msg += ": " + strings.TrimSpace(e.Stderr)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// ExecRunner runs programs with os/exec.
type ExecRunner struct {
	Timeout time.Duration
}

// Run executes cmd, failing with ErrTimeout or ErrFailed wrapped in *Error.
func (r ExecRunner) Run(ctx context.Context, cmd Command) ([]byte, error) {
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	cmdCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	c := exec.CommandContext(cmdCtx, cmd.Path, cmd.Args...)
	c.Dir = cmd.Dir

	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr

	err := c.Run()
	if cmdCtx.Err() == context.DeadlineExceeded {
		return nil, &Error{Command: cmd.String(), Stderr: stderr.String(), Err: ErrTimeout}
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, &Error{Command: cmd.String(), Stderr: stderr.String(), Err: fmt.Errorf("%w: %v", ErrFailed, err)}
	}
	return stdout.Bytes(), nil
}

// Observed wraps a Runner with logging, a span per invocation and tool
// metrics labelled with tool.
type Observed struct {
	Tool    string
	Next    Runner
	Log     logging.Logger
	Metrics *observability.ToolCollector
}

// Run implements Runner.
func (o Observed) Run(ctx context.Context, cmd Command) ([]byte, error) {
	next := o.Next
	if next == nil {
		next = ExecRunner{}
	}
	log := logging.FromContextOr(ctx, o.Log)

	ctx, span := observability.StartSpan(ctx, o.Tool+".run", "",
		attribute.String("process.executable", cmd.Path),
		attribute.StringSlice("process.args", cmd.Args),
	)
	start := time.Now()
	out, err := next.Run(ctx, cmd)
	elapsed := time.Since(start)
	observability.EndSpan(span, err)
	o.Metrics.ObserveToolRun(o.Tool, elapsed, err)

	if err != nil {
		log.Warn(ctx, "external program failed",
			logging.Tool(o.Tool),
			logging.String("command", cmd.String()),
			logging.Err(err),
		)
		return nil, err
	}
	log.Debug(ctx, "external program finished",
		logging.Tool(o.Tool),
		logging.String("command", cmd.String()),
		logging.Int("stdout_bytes", len(out)),
		logging.Duration("elapsed", elapsed),
	)
	return out, nil
}

// Func adapts a function to Runner.
type Func func(ctx context.Context, cmd Command) ([]byte, error)

// Run implements Runner.
func (f Func) Run(ctx context.Context, cmd Command) ([]byte, error) { return f(ctx, cmd) }
