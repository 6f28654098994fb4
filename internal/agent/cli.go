package agent

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"syscall"
)

// CLIRunner runs the agent as a local subprocess, e.g.
//
//	opencode run --command codereview --dir <workdir> "<pr> <owner/repo>"
type CLIRunner struct {
	Command string // agent binary, e.g. "opencode"
}

// NewCLIRunner creates a runner for the given agent binary.
func NewCLIRunner(command string) *CLIRunner {
	return &CLIRunner{Command: command}
}

// Run executes the agent and streams stdout and stderr to sink.
func (r *CLIRunner) Run(ctx context.Context, req Request, sink LineSink) error {
	runCtx := ctx
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, r.Command,
		"run", "--command", req.Command, "--dir", req.WorkDir, req.Prompt)
	// Kill the whole process group on timeout so agent children cannot
	// outlive the run and keep the output pipe open.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	cmd.Env = os.Environ()
	for k, v := range req.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	// stdout and stderr share one pipe so sink calls stay serialized
	// and interleave the way the agent emitted them.
	pr, pw, err := os.Pipe()
	if err != nil {
		return fmt.Errorf("creating output pipe: %w", err)
	}
	cmd.Stdout = pw
	cmd.Stderr = pw

	if err := cmd.Start(); err != nil {
		pw.Close()
		pr.Close()
		return fmt.Errorf("starting agent: %w", err)
	}
	pw.Close() // child keeps its own copy

	done := make(chan struct{})
	go func() {
		defer close(done)
		scanner := bufio.NewScanner(pr)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			sink(scanner.Text())
		}
		// An oversized line stops the scanner. Keep draining so the
		// child never blocks on a full pipe.
		if err := scanner.Err(); err != nil {
			log.Printf("warning: agent output truncated: %v", err)
			io.Copy(io.Discard, pr)
		}
	}()

	waitErr := cmd.Wait()
	<-done
	pr.Close()

	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return ErrTimeout
	}
	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			return &ExitError{Code: exitErr.ExitCode()}
		}
		return fmt.Errorf("running agent: %w", waitErr)
	}
	return nil
}
