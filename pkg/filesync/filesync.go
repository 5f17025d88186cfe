package filesync

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/rs/zerolog"

	"github.com/wpshift/wpshift/pkg/sshexec"
)

// DefaultExcludes are destination-managed files that must never be
// overwritten wholesale from the source: the site config carries
// environment-specific credentials and the access-control files are
// per-server policy.
var DefaultExcludes = []string{
	"wp-config.php",
	".htaccess",
	".user.ini",
}

// Options controls one synchronization.
type Options struct {
	// DryRun passes rsync's no-op flag through, reporting what would
	// transfer without touching the destination.
	DryRun bool

	// Relay stages the tree through the local machine when the
	// destination cannot reach the source directly. Strictly slower
	// (double transfer); never chosen automatically.
	Relay bool

	// Excludes extends DefaultExcludes.
	Excludes []string
}

// Outcome reports how a sync ran.
type Outcome struct {
	// Mode is "direct" or "relay".
	Mode string
}

// Syncer mirrors a directory tree between two remote hosts with rsync.
type Syncer struct {
	runner sshexec.Runner
	logger zerolog.Logger

	// localRun executes a command on the orchestrator's own machine
	// (relay mode). Overridable for tests.
	localRun func(ctx context.Context, name string, args ...string) error
}

// NewSyncer returns a Syncer executing remote commands through runner.
func NewSyncer(runner sshexec.Runner, logger zerolog.Logger) *Syncer {
	return &Syncer{
		runner: runner,
		logger: logger,
		localRun: func(ctx context.Context, name string, args ...string) error {
			cmd := exec.CommandContext(ctx, name, args...)
			cmd.Stdout = os.Stdout
			cmd.Stderr = os.Stderr
			return cmd.Run()
		},
	}
}

// CheckReachability verifies that dst can open an SSH connection to src on
// its own, which direct mode requires.
func (s *Syncer) CheckReachability(ctx context.Context, src, dst sshexec.Host) error {
	probe := fmt.Sprintf(
		"ssh -o BatchMode=yes -o ConnectTimeout=10 -o StrictHostKeyChecking=accept-new -p %s %s true",
		portOrDefault(src), src.Addr())
	if _, err := s.runner.Capture(ctx, dst, probe); err != nil {
		return fmt.Errorf(
			"destination %s cannot reach source %s over SSH (authorize its key on the source, or re-run with --relay to stage the transfer locally): %w",
			dst.Addr(), src.Addr(), err)
	}
	return nil
}

// Sync mirrors srcPath on src to dstPath on dst. Deletions are mirrored so
// the destination ends up an exact copy, and re-runs are safe: rsync skips
// files that already match.
func (s *Syncer) Sync(ctx context.Context, src sshexec.Host, srcPath string, dst sshexec.Host, dstPath string, opts Options) (*Outcome, error) {
	if opts.Relay {
		return s.syncRelay(ctx, src, srcPath, dst, dstPath, opts)
	}

	if err := s.CheckReachability(ctx, src, dst); err != nil {
		return nil, err
	}

	// rsync runs on the destination, pulling straight from the source, so
	// the payload never routes through this machine.
	command := fmt.Sprintf("rsync %s %s:%s/ %s/",
		strings.Join(rsyncFlags(src, opts), " "),
		src.Addr(), srcPath, dstPath)

	s.logger.Info().
		Str("mode", "direct").
		Str("src", src.Addr()+":"+srcPath).
		Str("dst", dst.Addr()+":"+dstPath).
		Bool("dry_run", opts.DryRun).
		Msg("starting file sync")

	if err := s.runner.Run(ctx, dst, command); err != nil {
		return nil, fmt.Errorf("file sync failed: %w", err)
	}
	return &Outcome{Mode: "direct"}, nil
}

// syncRelay pulls the tree into a local staging directory, then pushes it
// to the destination.
func (s *Syncer) syncRelay(ctx context.Context, src sshexec.Host, srcPath string, dst sshexec.Host, dstPath string, opts Options) (*Outcome, error) {
	stage, err := os.MkdirTemp("", "wpshift-relay-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create relay staging directory: %w", err)
	}
	defer os.RemoveAll(stage)

	s.logger.Info().
		Str("mode", "relay").
		Str("stage", stage).
		Bool("dry_run", opts.DryRun).
		Msg("starting relayed file sync (payload routes through this machine)")

	pull := append(localRsyncArgs(src, opts), src.Addr()+":"+srcPath+"/", stage+"/")
	if err := s.localRun(ctx, "rsync", pull...); err != nil {
		return nil, fmt.Errorf("relay pull from source failed: %w", err)
	}

	// A dry-run pull leaves the stage empty, so a dry-run push plan would
	// claim to delete the whole destination tree. The pull report already
	// shows what would transfer; stop there.
	if opts.DryRun {
		s.logger.Info().Msg("dry-run: relay push leg skipped, the staging directory is empty under a rehearsed pull")
		return &Outcome{Mode: "relay"}, nil
	}

	push := append(localRsyncArgs(dst, opts), stage+"/", dst.Addr()+":"+dstPath+"/")
	if err := s.localRun(ctx, "rsync", push...); err != nil {
		return nil, fmt.Errorf("relay push to destination failed: %w", err)
	}
	return &Outcome{Mode: "relay"}, nil
}

// rsyncFlags builds the flag set for the destination-side rsync command
// string. remote is the host rsync itself will connect to.
func rsyncFlags(remote sshexec.Host, opts Options) []string {
	flags := []string{"-az", "--delete"}
	if opts.DryRun {
		flags = append(flags, "--dry-run", "--itemize-changes")
	}
	for _, ex := range append(append([]string{}, DefaultExcludes...), opts.Excludes...) {
		flags = append(flags, "--exclude="+ex)
	}
	flags = append(flags, fmt.Sprintf(
		"-e 'ssh -o BatchMode=yes -o StrictHostKeyChecking=accept-new -p %s'",
		portOrDefault(remote)))
	return flags
}

// localRsyncArgs builds argv for rsync executed on this machine (relay
// legs).
func localRsyncArgs(remote sshexec.Host, opts Options) []string {
	args := []string{"-az", "--delete"}
	if opts.DryRun {
		args = append(args, "--dry-run", "--itemize-changes")
	}
	for _, ex := range append(append([]string{}, DefaultExcludes...), opts.Excludes...) {
		args = append(args, "--exclude="+ex)
	}
	args = append(args, "-e", fmt.Sprintf(
		"ssh -o BatchMode=yes -o StrictHostKeyChecking=accept-new -p %s",
		portOrDefault(remote)))
	return args
}

func portOrDefault(h sshexec.Host) string {
	if h.Port == "" {
		return "22"
	}
	return h.Port
}
