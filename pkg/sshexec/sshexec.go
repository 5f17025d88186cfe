package sshexec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Host identifies a remote machine and how to reach it.
type Host struct {
	IP   string
	Port string
	User string
}

// Addr returns user@ip for display and command construction.
func (h Host) Addr() string {
	return h.User + "@" + h.IP
}

// CommandError reports a failed remote command with enough context for an
// operator to reproduce it by hand.
type CommandError struct {
	Host     Host
	Command  string
	ExitCode int
	Stderr   string
	// SSHArgs is the full local invocation, so connectivity failures can
	// be diagnosed by copy-pasting one command.
	SSHArgs []string
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("remote command failed on %s (exit %d): %s", e.Host.Addr(), e.ExitCode, e.Command)
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += "\nstderr: " + s
	}
	if len(e.SSHArgs) > 0 {
		msg += "\ndiagnose manually with: ssh " + strings.Join(e.SSHArgs, " ")
	}
	return msg
}

// Runner is the remote-execution surface the migration steps depend on.
// Executor implements it against the operator's OpenSSH client; tests
// substitute fakes.
type Runner interface {
	// Run executes a command with output streamed to the operator's
	// terminal. Used for long operations like rsync.
	Run(ctx context.Context, host Host, command string) error

	// Capture executes a command and returns its stdout. Stderr is kept
	// separate so connection diagnostics never pollute output that is
	// fed into another program.
	Capture(ctx context.Context, host Host, command string) (string, error)

	// Pipe runs srcCommand on src and dstCommand on dst concurrently,
	// with src's stdout feeding dst's stdin. Failure of either side
	// fails the pipe.
	Pipe(ctx context.Context, src Host, srcCommand string, dst Host, dstCommand string) error
}

// Executor runs commands over the system ssh client.
//
// Host keys are recorded in a per-migration known-hosts file: the first
// contact with a host is accepted automatically, later contacts are
// verified against the recorded key. Trust decisions therefore stay scoped
// to one migration instead of polluting the operator's global store.
type Executor struct {
	knownHosts     string
	connectTimeout time.Duration
	logger         zerolog.Logger

	// stdout/stderr receive streamed output from Run. Default os.Stdout
	// and os.Stderr.
	stdout io.Writer
	stderr io.Writer

	// noAcceptNew is set once the local client has rejected the
	// accept-new host-key option, so every later call skips straight to
	// the compatibility mode.
	noAcceptNew bool
}

// Option configures an Executor.
type Option func(*Executor)

// WithConnectTimeout overrides the SSH connection-establishment timeout.
func WithConnectTimeout(d time.Duration) Option {
	return func(e *Executor) { e.connectTimeout = d }
}

// WithStreams redirects streamed output, for tests.
func WithStreams(stdout, stderr io.Writer) Option {
	return func(e *Executor) { e.stdout, e.stderr = stdout, stderr }
}

// New creates an Executor whose host-key state lives in knownHostsPath.
func New(knownHostsPath string, logger zerolog.Logger, opts ...Option) *Executor {
	e := &Executor{
		knownHosts:     knownHostsPath,
		connectTimeout: 15 * time.Second,
		logger:         logger,
		stdout:         os.Stdout,
		stderr:         os.Stderr,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// sshArgs builds the argument list for one invocation. hostKeyMode is the
// StrictHostKeyChecking value to use.
func (e *Executor) sshArgs(host Host, hostKeyMode, command string) []string {
	args := []string{
		"-o", "BatchMode=yes", // any auth prompt fails fast instead of hanging
		"-o", fmt.Sprintf("ConnectTimeout=%d", int(e.connectTimeout.Seconds())),
		"-o", "StrictHostKeyChecking=" + hostKeyMode,
		"-o", "UserKnownHostsFile=" + e.knownHosts,
	}
	if host.Port != "" && host.Port != "22" {
		args = append(args, "-p", host.Port)
	}
	return append(args, host.Addr(), command)
}

// acceptNewUnsupported detects the specific failure mode of OpenSSH
// clients too old to know StrictHostKeyChecking=accept-new.
func acceptNewUnsupported(stderr string) bool {
	s := strings.ToLower(stderr)
	return strings.Contains(s, "bad configuration option") ||
		strings.Contains(s, "unsupported option \"accept-new\"")
}

// Run executes a command with output streamed directly to the terminal.
func (e *Executor) Run(ctx context.Context, host Host, command string) error {
	return e.run(ctx, host, command, nil)
}

// Capture executes a command and returns its stdout with trailing
// whitespace trimmed. Stderr is captured separately and attached to the
// error on failure, or logged at debug level on success.
func (e *Executor) Capture(ctx context.Context, host Host, command string) (string, error) {
	var stdout bytes.Buffer
	if err := e.run(ctx, host, command, &stdout); err != nil {
		return "", err
	}
	return strings.TrimRight(stdout.String(), " \t\r\n"), nil
}

// run executes command on host, writing stdout to out (or streaming when
// out is nil). It retries exactly once, with host-key checking disabled,
// when the local ssh client rejects the accept-new option.
func (e *Executor) run(ctx context.Context, host Host, command string, out io.Writer) error {
	mode := "accept-new"
	if e.noAcceptNew {
		mode = "no"
	}

	err := e.runOnce(ctx, host, command, mode, out)
	var cmdErr *CommandError
	if err != nil && mode == "accept-new" && errors.As(err, &cmdErr) && acceptNewUnsupported(cmdErr.Stderr) {
		e.logger.Warn().
			Str("host", host.Addr()).
			Msg("local ssh client does not support accept-new, retrying with host-key checking disabled")
		e.noAcceptNew = true
		return e.runOnce(ctx, host, command, "no", out)
	}
	return err
}

func (e *Executor) runOnce(ctx context.Context, host Host, command, hostKeyMode string, out io.Writer) error {
	args := e.sshArgs(host, hostKeyMode, command)
	cmd := exec.CommandContext(ctx, "ssh", args...)

	var stderr bytes.Buffer
	if out != nil {
		cmd.Stdout = out
		cmd.Stderr = &stderr
	} else {
		cmd.Stdout = e.stdout
		cmd.Stderr = io.MultiWriter(e.stderr, &stderr)
	}

	e.logger.Debug().
		Str("host", host.Addr()).
		Str("command", command).
		Msg("running remote command")

	err := cmd.Run()
	if err == nil {
		if stderr.Len() > 0 {
			e.logger.Debug().
				Str("host", host.Addr()).
				Str("stderr", strings.TrimSpace(stderr.String())).
				Msg("remote command wrote to stderr")
		}
		return nil
	}

	exitCode := -1
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		exitCode = exitErr.ExitCode()
	}
	return &CommandError{
		Host:     host,
		Command:  command,
		ExitCode: exitCode,
		Stderr:   stderr.String(),
		SSHArgs:  args,
	}
}

// Pipe connects srcCommand's stdout on src to dstCommand's stdin on dst
// through a local pipe: two concurrent ssh processes, one dump and one
// restore. Both sides are waited on and either side failing fails the
// pipe, so an empty dump feeding a happily-exiting restore is still an
// error.
func (e *Executor) Pipe(ctx context.Context, src Host, srcCommand string, dst Host, dstCommand string) error {
	mode := "accept-new"
	if e.noAcceptNew {
		mode = "no"
	}

	srcArgs := e.sshArgs(src, mode, srcCommand)
	dstArgs := e.sshArgs(dst, mode, dstCommand)

	srcCmd := exec.CommandContext(ctx, "ssh", srcArgs...)
	dstCmd := exec.CommandContext(ctx, "ssh", dstArgs...)

	var srcStderr, dstStderr bytes.Buffer
	srcCmd.Stderr = &srcStderr
	dstCmd.Stderr = &dstStderr

	pipe, err := srcCmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to open pipe: %w", err)
	}
	dstCmd.Stdin = pipe

	e.logger.Debug().
		Str("src", src.Addr()).
		Str("dst", dst.Addr()).
		Msg("starting remote pipeline")

	if err := srcCmd.Start(); err != nil {
		return fmt.Errorf("failed to start source side: %w", err)
	}
	if err := dstCmd.Start(); err != nil {
		srcCmd.Process.Kill()
		srcCmd.Wait()
		return fmt.Errorf("failed to start destination side: %w", err)
	}

	srcErr := srcCmd.Wait()
	dstErr := dstCmd.Wait()

	if srcErr != nil {
		return &CommandError{
			Host:     src,
			Command:  srcCommand,
			ExitCode: exitCodeOf(srcErr),
			Stderr:   srcStderr.String(),
			SSHArgs:  srcArgs,
		}
	}
	if dstErr != nil {
		return &CommandError{
			Host:     dst,
			Command:  dstCommand,
			ExitCode: exitCodeOf(dstErr),
			Stderr:   dstStderr.String(),
			SSHArgs:  dstArgs,
		}
	}
	return nil
}

func exitCodeOf(err error) int {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}
