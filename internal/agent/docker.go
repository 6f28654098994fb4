package agent

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"

	"github.com/revue-dev/revue/internal/docker"
)

// DockerRunner runs the agent inside a container with the workspace
// bind-mounted at /workspace.
type DockerRunner struct {
	client  *docker.Client
	command string // agent binary inside the image
	image   string
	authDir string
}

// NewDockerRunner creates a runner backed by the local Docker daemon.
func NewDockerRunner(command, image, authDir string) (*DockerRunner, error) {
	client, err := docker.NewClient()
	if err != nil {
		return nil, fmt.Errorf("creating docker client: %w", err)
	}
	if authDir == "" {
		log.Println("WARNING: agent auth dir not configured; containerized agents will hit first-run prompts")
	}
	return &DockerRunner{client: client, command: command, image: image, authDir: authDir}, nil
}

// Close closes the underlying Docker client.
func (r *DockerRunner) Close() error {
	return r.client.Close()
}

// Run creates a container for the agent, streams its logs to sink, and
// waits for it to exit. The container is always removed.
func (r *DockerRunner) Run(ctx context.Context, req Request, sink LineSink) error {
	runCtx := ctx
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	if err := r.client.PullImage(runCtx, r.image); err != nil {
		return fmt.Errorf("pulling agent image: %w", err)
	}

	mounts := []docker.Mount{
		{Source: req.WorkDir, Target: "/workspace"},
	}
	if r.authDir != "" {
		mounts = append(mounts, docker.Mount{
			Source:   r.authDir,
			Target:   "/home/agent/.config/opencode",
			ReadOnly: true,
		})
	}

	env := make([]string, 0, len(req.Env))
	for k, v := range req.Env {
		env = append(env, k+"="+v)
	}

	containerID, err := r.client.CreateContainer(runCtx, docker.ContainerConfig{
		Name:       "revue-agent-" + req.SessionID,
		Image:      r.image,
		WorkDir:    "/workspace",
		Mounts:     mounts,
		Env:        env,
		Labels:     map[string]string{"revue.agent": "true", "revue.session": req.SessionID},
		Entrypoint: []string{r.command},
		Cmd:        []string{"run", "--command", req.Command, "--dir", "/workspace", req.Prompt},
	})
	if err != nil {
		return fmt.Errorf("creating agent container: %w", err)
	}
	defer func() {
		if err := r.client.RemoveContainer(context.Background(), containerID, true); err != nil {
			log.Printf("warning: failed to remove agent container %s: %v", containerID, err)
		}
	}()

	if err := r.client.StartContainer(runCtx, containerID); err != nil {
		return fmt.Errorf("starting agent container: %w", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		logs, err := r.client.FollowContainerLogs(runCtx, containerID)
		if err != nil {
			log.Printf("warning: failed to stream agent logs: %v", err)
			return
		}
		defer logs.Close()

		scanner := bufio.NewScanner(logs)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			sink(scanner.Text())
		}
		if err := scanner.Err(); err != nil {
			log.Printf("warning: agent log stream truncated: %v", err)
			io.Copy(io.Discard, logs)
		}
	}()

	code, waitErr := r.client.WaitContainer(runCtx, containerID)
	<-done

	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		if err := r.client.StopContainer(context.Background(), containerID, 10); err != nil {
			log.Printf("warning: failed to stop timed-out agent container: %v", err)
		}
		return ErrTimeout
	}
	if waitErr != nil {
		return fmt.Errorf("waiting for agent container: %w", waitErr)
	}
	if code != 0 {
		return &ExitError{Code: int(code)}
	}
	return nil
}
