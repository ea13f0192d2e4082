package managedprocess

import (
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/core-tools/hsu-procsup-go/pkg/errors"
	"github.com/core-tools/hsu-procsup-go/pkg/logging"

	"github.com/google/uuid"
)

// SpawnOptions carries the per-run wiring of a child
type SpawnOptions struct {
	Stdout io.Writer
	Stderr io.Writer

	// WaitDelay bounds how long Wait keeps copying output after the child exited
	WaitDelay time.Duration

	// RunID identifies this incarnation; generated when empty
	RunID string

	Logger logging.Logger
}

// Child is one running incarnation of a ProcessSpec
type Child struct {
	name      string
	runID     string
	pid       int
	startedAt time.Time

	cmd    *exec.Cmd
	done   chan struct{}
	exit   ExitResult
	logger logging.Logger

	terminationSent atomic.Bool
}

// Spawn starts the process command. The child is not bound to any context;
// its lifetime ends only through Terminate or its own exit.
func Spawn(spec ProcessSpec, options SpawnOptions) (*Child, error) {
	logger := options.Logger
	if logger == nil {
		logger = logging.NewNullLogger()
	}

	if err := ValidateProcessSpec(spec); err != nil {
		return nil, err
	}

	if spec.WorkingDirectory != "" {
		info, err := os.Stat(spec.WorkingDirectory)
		if err != nil {
			return nil, errors.NewSpawnError("working directory is not accessible", err).
				WithContext("name", spec.Name).
				WithContext("cwd", spec.WorkingDirectory)
		}
		if !info.IsDir() {
			return nil, errors.NewSpawnError("working directory is not a directory", nil).
				WithContext("name", spec.Name).
				WithContext("cwd", spec.WorkingDirectory)
		}
	}

	command, err := resolveCommand(spec)
	if err != nil {
		return nil, err
	}

	cmd := exec.Command(command, spec.Arguments...)
	cmd.Args[0] = spec.Command
	cmd.Dir = spec.WorkingDirectory
	cmd.Env = MergeEnvironment(os.Environ(), spec.Environment)
	cmd.Stdout = options.Stdout
	cmd.Stderr = options.Stderr
	cmd.SysProcAttr = newSysProcAttr()
	cmd.WaitDelay = options.WaitDelay

	logger.Debugf("Spawning process, name: %s, command: %s, cwd: %s", spec.Name, spec.CommandLine(), spec.WorkingDirectory)

	if err := cmd.Start(); err != nil {
		return nil, errors.NewSpawnError("failed to start process", err).
			WithContext("name", spec.Name).
			WithContext("command", spec.Command)
	}

	runID := options.RunID
	if runID == "" {
		runID = uuid.NewString()
	}

	child := &Child{
		name:      spec.Name,
		runID:     runID,
		pid:       cmd.Process.Pid,
		startedAt: time.Now(),
		cmd:       cmd,
		done:      make(chan struct{}),
		logger:    logger,
	}

	go child.wait()

	logger.Infof("Process spawned, name: %s, PID: %d, run: %s", spec.Name, child.pid, child.runID)
	return child, nil
}

// resolveCommand looks a bare command name up in the PATH the child will
// see. exec.Command only consults the supervisor's own PATH, so a PATH set in
// the process environment is searched here first.
func resolveCommand(spec ProcessSpec) (string, error) {
	path, overridden := spec.Environment["PATH"]
	if !overridden || strings.ContainsAny(spec.Command, `/\`) {
		return spec.Command, nil
	}

	for _, dir := range filepath.SplitList(path) {
		// relative entries would resolve against the supervisor's cwd
		if dir == "" || !filepath.IsAbs(dir) {
			continue
		}
		if resolved, err := exec.LookPath(filepath.Join(dir, spec.Command)); err == nil {
			return resolved, nil
		}
	}

	return "", errors.NewSpawnError("executable not found in process PATH", exec.ErrNotFound).
		WithContext("name", spec.Name).
		WithContext("command", spec.Command).
		WithContext("path", path)
}

func (c *Child) wait() {
	err := c.cmd.Wait()
	c.exit = newExitResult(c.cmd.ProcessState, err)
	c.logger.Debugf("Process wait returned, name: %s, PID: %d, result: %s", c.name, c.pid, c.exit)
	close(c.done)
}

func (c *Child) Name() string         { return c.name }
func (c *Child) RunID() string        { return c.runID }
func (c *Child) PID() int             { return c.pid }
func (c *Child) StartedAt() time.Time { return c.startedAt }

// Done is closed once the child has exited and been reaped
func (c *Child) Done() <-chan struct{} {
	return c.done
}

// Exited reports whether the child has been reaped
func (c *Child) Exited() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// Exit returns the exit result; only meaningful after Done is closed
func (c *Child) Exit() ExitResult {
	<-c.done
	return c.exit
}

// TerminationSent reports whether Terminate signalled this child
func (c *Child) TerminationSent() bool {
	return c.terminationSent.Load()
}

// Terminate asks the child to exit, escalating to a forced kill after
// gracefulTimeout. forced is true when the kill was needed. An error is
// returned only when the child is still alive after killTimeout.
func (c *Child) Terminate(gracefulTimeout, killTimeout time.Duration) (forced bool, err error) {
	if c.Exited() {
		return false, nil
	}

	c.terminationSent.Store(true)
	c.logger.Infof("Sending termination signal, name: %s, PID: %d, timeout: %v", c.name, c.pid, gracefulTimeout)
	if err := sendTerminationSignal(c.cmd.Process); err != nil {
		c.logger.Warnf("Failed to send termination signal, name: %s, PID: %d, error: %v", c.name, c.pid, err)
	}

	graceful := time.NewTimer(gracefulTimeout)
	defer graceful.Stop()

	select {
	case <-c.done:
		c.logger.Infof("Process terminated gracefully, name: %s, PID: %d", c.name, c.pid)
		return false, nil
	case <-graceful.C:
		c.logger.Warnf("Process did not terminate within %v, forcing termination, name: %s, PID: %d", gracefulTimeout, c.name, c.pid)
	}

	if err := forceKill(c.cmd.Process); err != nil {
		c.logger.Warnf("Failed to kill process, name: %s, PID: %d, error: %v", c.name, c.pid, err)
	}

	kill := time.NewTimer(killTimeout)
	defer kill.Stop()

	select {
	case <-c.done:
		c.logger.Infof("Process force terminated, name: %s, PID: %d", c.name, c.pid)
		return true, nil
	case <-kill.C:
		return true, errors.NewTimeoutError("process did not terminate even after force termination", nil).
			WithContext("name", c.name).
			WithContext("pid", c.pid)
	}
}
