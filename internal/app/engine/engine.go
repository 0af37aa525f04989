// Package engine runs the external pact engine command line tools: the mock
// service, the provider verifier and the broker client.
package engine

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Error is a failure reported by an engine, surfaced with its own exit or
// status code and message.
type Error struct {
	Code    int
	Message string
	Args    []string
}

func (e *Error) Error() string {
	if len(e.Args) == 0 {
		return fmt.Sprintf("engine failed with code %d: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s failed with code %d: %s", strings.Join(e.Args, " "), e.Code, e.Message)
}

type Command struct {
	Binary string
	Args   []string
	Env    map[string]string
	Dir    string
}

// Line renders the command with secrets masked, for logs and errors.
func (c Command) Line() []string {
	return append([]string{c.Binary}, Redact(c.Args)...)
}

// Result is the outcome of a command that ran to completion.
type Result struct {
	Code   int
	Output string
}

// Err returns an *Error for a non-zero exit code.
func (r Result) Err(cmd Command) error {
	if r.Code == 0 {
		return nil
	}
	return &Error{Code: r.Code, Message: strings.TrimSpace(r.Output), Args: cmd.Line()}
}

// Process is a running engine command.
type Process interface {
	// Done is closed once the process has exited.
	Done() <-chan struct{}
	ExitCode() int
	Output() string
	Stop() error
}

// Runner starts engine commands. Exec runs them as subprocesses; tests use fakes.
type Runner interface {
	Run(ctx context.Context, cmd Command) (Result, error)
	Start(ctx context.Context, cmd Command) (Process, error)
}

type Exec struct{}

func (Exec) Run(ctx context.Context, cmd Command) (Result, error) {
	c := command(ctx, cmd)
	var out bytes.Buffer
	c.Stdout, c.Stderr = &out, &out

	log.WithField("command", strings.Join(cmd.Line(), " ")).Debug("running engine")
	err := c.Run()
	res := Result{Output: out.String()}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.Code = exitErr.ExitCode()
		return res, nil
	}
	if err != nil {
		return res, errors.Wrapf(err, "run %s", cmd.Binary)
	}
	return res, nil
}

func (Exec) Start(ctx context.Context, cmd Command) (Process, error) {
	c := command(ctx, cmd)
	p := &process{cmd: c, done: make(chan struct{})}
	c.Stdout, c.Stderr = &p.out, &p.out
	detach(c)

	log.WithField("command", strings.Join(cmd.Line(), " ")).Debug("starting engine")
	if err := c.Start(); err != nil {
		return nil, errors.Wrapf(err, "start %s", cmd.Binary)
	}
	go func() {
		_ = c.Wait()
		close(p.done)
	}()
	return p, nil
}

func command(ctx context.Context, cmd Command) *exec.Cmd {
	c := exec.CommandContext(ctx, cmd.Binary, cmd.Args...)
	c.Dir = cmd.Dir
	c.Env = os.Environ()
	keys := make([]string, 0, len(cmd.Env))
	for k := range cmd.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		c.Env = append(c.Env, k+"="+cmd.Env[k])
	}
	return c
}

const stopGrace = 5 * time.Second

type process struct {
	cmd  *exec.Cmd
	out  lockedBuffer
	done chan struct{}
	once sync.Once
}

func (p *process) Done() <-chan struct{} {
	return p.done
}

func (p *process) ExitCode() int {
	select {
	case <-p.done:
		return p.cmd.ProcessState.ExitCode()
	default:
		return -1
	}
}

func (p *process) Output() string {
	return p.out.String()
}

// Stop interrupts the process and kills it if it has not exited in time.
func (p *process) Stop() error {
	var err error
	p.once.Do(func() {
		select {
		case <-p.done:
			return
		default:
		}
		if sigErr := p.cmd.Process.Signal(syscall.SIGTERM); sigErr != nil {
			log.Debugf("signal engine: %v", sigErr)
		}
		select {
		case <-p.done:
		case <-time.After(stopGrace):
			log.Warnf("engine pid %d did not stop, killing it", p.cmd.Process.Pid)
			if killErr := p.cmd.Process.Kill(); killErr != nil {
				err = errors.Wrap(killErr, "kill engine")
				return
			}
			<-p.done
		}
	})
	return err
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

var secretFlags = []string{"--broker-password", "--broker-token", "--password", "--token"}

// Redact masks the values of secret flags in args.
func Redact(args []string) []string {
	out := make([]string, len(args))
	copy(out, args)
	for i, a := range out {
		for _, flag := range secretFlags {
			switch {
			case strings.HasPrefix(a, flag+"="):
				out[i] = flag + "=*****"
			case a == flag && i+1 < len(out):
				out[i+1] = "*****"
			}
		}
	}
	return out
}

// Sanitise drops Ruby backtrace lines from verifier output unless verbose is set.
func Sanitise(logs string, verbose bool) string {
	if verbose {
		return logs
	}
	lines := strings.Split(logs, "\n")
	kept := lines[:0]
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#") &&
			(strings.Contains(line, "vendor/ruby") || strings.Contains(line, "pact-provider-verifier.rb")) {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}
