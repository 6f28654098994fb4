// Package agent runs the code review agent against a cloned repository
// and streams its output line by line.
package agent

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrTimeout is returned when an agent run exceeds its deadline.
var ErrTimeout = errors.New("agent timed out")

// ExitError reports an agent process that ran but exited non-zero.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("agent exited with code %d", e.Code)
}

// Request describes one agent invocation.
type Request struct {
	SessionID string
	WorkDir   string            // cloned repository the agent reviews
	Command   string            // agent subcommand, e.g. "codereview"
	Prompt    string            // e.g. "42 acme/widgets"
	Env       map[string]string // credentials and run parameters
	Timeout   time.Duration     // 0 means no timeout
}

// LineSink receives one line of agent output at a time. Calls are
// serialized; the sink does not need to be safe for concurrent use.
type LineSink func(line string)

// Runner executes an agent run to completion. A nil error means the
// agent exited zero. A run that started but failed returns *ExitError;
// a run that could not start returns some other error.
type Runner interface {
	Run(ctx context.Context, req Request, sink LineSink) error
}
