package process

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"
)

// ErrNotStarted is returned by operations that need a running child.
var ErrNotStarted = errors.New("process not started")

// reapTimeout bounds the wait after SIGKILL. A process that survives SIGKILL
// is stuck in the kernel and there is nothing left to do.
const reapTimeout = 2 * time.Second

// Process owns one spawned child. Exactly one goroutine calls cmd.Wait and
// closes exited; everybody else observes exit through the channel.
type Process struct {
	spec Spec

	mu        sync.Mutex
	cmd       *exec.Cmd
	startedAt time.Time
	stoppedAt time.Time
	exitCode  int
	exitErr   error
	lastErr   error
	outCloser io.WriteCloser
	errCloser io.WriteCloser

	ready  atomic.Bool
	exited chan struct{}
}

func New(spec Spec) *Process {
	return &Process{spec: spec, exited: make(chan struct{}), exitCode: -1}
}

func (p *Process) Name() string { return p.spec.Name }
func (p *Process) Port() int    { return p.spec.Port }

// ConfigureCmd builds the command and wires stdout/stderr. Without a log
// destination both streams go to the null device.
func (p *Process) ConfigureCmd() (*exec.Cmd, error) {
	cmd := p.spec.BuildCommand()
	outW, errW, err := p.spec.Log.ProcessWriters(p.spec.Name)
	if err != nil {
		return nil, fmt.Errorf("prepare log writers: %w", err)
	}
	p.mu.Lock()
	p.outCloser, p.errCloser = outW, errW
	p.mu.Unlock()

	// exec.Cmd leaves nil streams connected to the null device.
	if outW != nil {
		cmd.Stdout = outW
	}
	if errW != nil {
		cmd.Stderr = errW
	}
	return cmd, nil
}

// Start spawns the child and begins reaping it in the background.
func (p *Process) Start() error {
	p.mu.Lock()
	if p.cmd != nil {
		p.mu.Unlock()
		return fmt.Errorf("process %s already started", p.spec.Name)
	}
	p.mu.Unlock()

	cmd, err := p.ConfigureCmd()
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		p.closeWriters()
		return err
	}
	p.mu.Lock()
	p.cmd = cmd
	p.startedAt = time.Now()
	p.mu.Unlock()

	go p.reap(cmd)
	return nil
}

func (p *Process) reap(cmd *exec.Cmd) {
	err := cmd.Wait()
	code := -1
	if cmd.ProcessState != nil {
		code = cmd.ProcessState.ExitCode()
	}
	p.mu.Lock()
	p.exitErr = err
	p.exitCode = code
	p.stoppedAt = time.Now()
	p.mu.Unlock()
	p.closeWriters()
	close(p.exited)
}

// Exited is closed once the child has been reaped.
func (p *Process) Exited() <-chan struct{} { return p.exited }

// HasExited reports whether the child has been reaped.
func (p *Process) HasExited() bool {
	select {
	case <-p.exited:
		return true
	default:
		return false
	}
}

// ExitCode returns the exit code (-1 when killed by a signal) and whether
// the child has exited at all.
func (p *Process) ExitCode() (int, bool) {
	if !p.HasExited() {
		return 0, false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exitCode, true
}

// MarkReady records that the child passed its readiness probe. Ready never
// goes back to false.
func (p *Process) MarkReady() { p.ready.Store(true) }

func (p *Process) Ready() bool { return p.ready.Load() }

// SetLastError records the diagnostic for the most recent failure.
func (p *Process) SetLastError(err error) {
	p.mu.Lock()
	p.lastErr = err
	p.mu.Unlock()
}

func (p *Process) LastError() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastErr
}

// PID returns the child's pid or 0 when not started.
func (p *Process) PID() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cmd == nil || p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

// Stop asks the child's process group to terminate, waits up to grace and
// then kills the group. It always waits for the reaper afterwards.
func (p *Process) Stop(grace time.Duration) error {
	pid := p.PID()
	if pid == 0 {
		return ErrNotStarted
	}
	if p.HasExited() {
		return nil
	}
	if err := terminateGroup(pid); err != nil && !errors.Is(err, os.ErrProcessDone) {
		// fall through to kill; the group may already be gone
		p.SetLastError(fmt.Errorf("terminate: %w", err))
	}
	select {
	case <-p.exited:
		return nil
	case <-time.After(grace):
	}

	if err := killGroup(pid); err != nil && !p.HasExited() {
		return fmt.Errorf("kill %s (pid %d): %w", p.spec.Name, pid, err)
	}
	select {
	case <-p.exited:
		return nil
	case <-time.After(reapTimeout):
		return fmt.Errorf("process %s (pid %d) did not exit after kill", p.spec.Name, pid)
	}
}

// Snapshot returns a copy of the current state.
func (p *Process) Snapshot() Status {
	exited := p.HasExited()
	p.mu.Lock()
	defer p.mu.Unlock()
	st := Status{
		Name:      p.spec.Name,
		Port:      p.spec.Port,
		Ready:     p.ready.Load(),
		StartedAt: p.startedAt,
		StoppedAt: p.stoppedAt,
		ExitCode:  p.exitCode,
	}
	if p.cmd != nil && p.cmd.Process != nil {
		st.PID = p.cmd.Process.Pid
		st.Running = !exited
	}
	if p.lastErr != nil {
		st.LastError = p.lastErr.Error()
	}
	return st
}

func (p *Process) closeWriters() {
	p.mu.Lock()
	out, errw := p.outCloser, p.errCloser
	p.outCloser, p.errCloser = nil, nil
	p.mu.Unlock()
	if out != nil {
		_ = out.Close()
	}
	if errw != nil {
		_ = errw.Close()
	}
}
