package procman

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
)

// Command describes one external toolchain invocation. Both output
// streams are always piped.
type Command struct {
	Program string
	Args    []string
	Dir     string
	Env     []string // KEY=VALUE overrides appended to the inherited environment
}

// LineSink receives trimmed output lines. Satisfied by
// state.Dashboard.
type LineSink interface {
	AddOutputLine(string)
}

// Process is a spawned child with both streams captured. Its PID is
// registered until Wait observes exit; externally initiated
// termination relies on Registry.KillAll to clear the entry.
type Process struct {
	cmd        *exec.Cmd
	pid        int
	stdout     io.ReadCloser
	stderr     io.ReadCloser
	registry   *Registry
	stderrDone chan struct{}
}

// Spawn starts the command with stdout and stderr piped and registers
// the PID. On failure no process is registered.
func Spawn(spec Command, registry *Registry) (*Process, error) {
	cmd := exec.Command(spec.Program, spec.Args...)
	if spec.Dir != "" {
		cmd.Dir = spec.Dir
	}
	if len(spec.Env) > 0 {
		cmd.Env = append(os.Environ(), spec.Env...)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("pipe stdout: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("pipe stderr: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", spec.Program, err)
	}

	p := &Process{
		cmd:      cmd,
		pid:      cmd.Process.Pid,
		stdout:   stdout,
		stderr:   stderr,
		registry: registry,
	}
	registry.Register(p.pid)
	return p, nil
}

// PID returns the child's OS process identifier.
func (p *Process) PID() int {
	return p.pid
}

// Stdout hands the raw standard output stream to the caller so each
// command can apply its own progress-extraction logic.
func (p *Process) Stdout() io.Reader {
	return p.stdout
}

// ForwardStderr reads standard error line by line on its own
// goroutine. Lines keep their ANSI escapes but are whitespace-trimmed;
// empty lines are dropped. Each surviving line goes to the sink and,
// best effort, to the log file at logPath ("" disables logging). Log
// failures never surface; UI visibility takes priority over logging
// durability.
func (p *Process) ForwardStderr(sink LineSink, logPath string) {
	if p.stderrDone != nil {
		return
	}
	done := make(chan struct{})
	p.stderrDone = done

	go func() {
		defer close(done)
		var logFile *os.File
		if logPath != "" {
			if f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644); err == nil {
				logFile = f
				defer f.Close()
			}
		}
		scanner := bufio.NewScanner(p.stderr)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			sink.AddOutputLine(line)
			if logFile != nil {
				fmt.Fprintln(logFile, line)
			}
		}
	}()
}

// Wait blocks until the child exits, unregisters its PID on normal
// completion and returns the exit code. A non-zero exit is still a
// normal completion; only a wait-level I/O failure is returned as an
// error, in which case the PID stays registered.
func (p *Process) Wait() (int, error) {
	if p.stderrDone != nil {
		<-p.stderrDone
	}
	err := p.cmd.Wait()
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return -1, err
		}
	}
	p.registry.Unregister(p.pid)
	return p.cmd.ProcessState.ExitCode(), nil
}
