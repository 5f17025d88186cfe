package migrate

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/wpshift/wpshift/pkg/filesync"
	"github.com/wpshift/wpshift/pkg/sshexec"
)

// stepAuthKeys makes sure the destination can authenticate to the source:
// generate a keypair on the destination if it has none, then append the
// public key to the source's authorized_keys unless it is already there.
// Idempotent by construction.
func stepAuthKeys(ctx context.Context, mg *Migrator) error {
	src, err := mg.sourceHost()
	if err != nil {
		return err
	}
	dst, err := mg.destHost()
	if err != nil {
		return err
	}

	var pub string
	if mg.opts.DryRun {
		pub, err = mg.runner.Capture(ctx, dst, "cat ~/.ssh/id_ed25519.pub 2>/dev/null || true")
		if err != nil {
			return err
		}
		if pub == "" {
			mg.logger.Info().Msg("dry-run: would generate an ed25519 keypair on the destination")
			mg.logger.Info().Msg("dry-run: would authorize the destination key on the source")
			return nil
		}
		mg.logger.Info().Msg("dry-run: would authorize the destination key on the source")
		return nil
	}

	pub, err = mg.runner.Capture(ctx, dst,
		`[ -f ~/.ssh/id_ed25519.pub ] || ssh-keygen -q -t ed25519 -N "" -f ~/.ssh/id_ed25519; cat ~/.ssh/id_ed25519.pub`)
	if err != nil {
		return fmt.Errorf("failed to read or generate destination key: %w", err)
	}
	pub = strings.TrimSpace(pub)
	if pub == "" {
		return fmt.Errorf("destination produced an empty public key")
	}

	quoted := sshexec.ShellQuote(pub)
	authorize := fmt.Sprintf(
		"mkdir -p ~/.ssh && chmod 700 ~/.ssh && touch ~/.ssh/authorized_keys && chmod 600 ~/.ssh/authorized_keys && "+
			"{ grep -qxF %s ~/.ssh/authorized_keys || echo %s >> ~/.ssh/authorized_keys; }",
		quoted, quoted)
	if _, err := mg.runner.Capture(ctx, src, authorize); err != nil {
		return fmt.Errorf("failed to authorize destination key on source: %w", err)
	}
	mg.logger.Info().Msg("destination key authorized on source")
	return nil
}

// stepSyncCheck decides how files will move: direct pull when the
// destination can reach the source, relay only when the operator opted in.
func stepSyncCheck(ctx context.Context, mg *Migrator) error {
	src, err := mg.sourceHost()
	if err != nil {
		return err
	}
	dst, err := mg.destHost()
	if err != nil {
		return err
	}

	if mg.opts.Relay {
		mg.m.Facts.SyncMode = "relay"
		mg.logger.Warn().Msg("relay sync requested: the whole payload will route through this machine, twice")
		return nil
	}

	if err := mg.syncer.CheckReachability(ctx, src, dst); err != nil {
		return err
	}
	mg.m.Facts.SyncMode = "direct"
	return nil
}

func summarySyncCheck(mg *Migrator) string {
	if mg.m.Facts.SyncMode == "" {
		return ""
	}
	return "sync mode: " + mg.m.Facts.SyncMode
}

// stepFileSync mirrors the web root from source to destination.
func stepFileSync(ctx context.Context, mg *Migrator) error {
	f := mg.m.Facts

	src, err := mg.sourceHost()
	if err != nil {
		return err
	}
	dst, err := mg.destHost()
	if err != nil {
		return err
	}
	srcRoot, err := need(f.SourceWebRoot, "source_web_root", StepPaths)
	if err != nil {
		return err
	}
	dstRoot, err := need(f.DestWebRoot, "dest_web_root", StepPaths)
	if err != nil {
		return err
	}

	out, err := mg.syncer.Sync(ctx, src, srcRoot, dst, dstRoot, filesync.Options{
		DryRun: mg.opts.DryRun,
		Relay:  f.SyncMode == "relay",
	})
	if err != nil {
		return err
	}
	mg.m.Facts.SyncMode = out.Mode
	return nil
}

// stepSyncAudit compares tree sizes after the sync. Excluded files and
// in-flight writes make small deltas normal, so a delta is reported, not
// fatal.
func stepSyncAudit(ctx context.Context, mg *Migrator) error {
	f := mg.m.Facts

	src, err := mg.sourceHost()
	if err != nil {
		return err
	}
	dst, err := mg.destHost()
	if err != nil {
		return err
	}
	srcRoot, err := need(f.SourceWebRoot, "source_web_root", StepPaths)
	if err != nil {
		return err
	}
	dstRoot, err := need(f.DestWebRoot, "dest_web_root", StepPaths)
	if err != nil {
		return err
	}

	srcSize, err := mg.treeSize(ctx, src, srcRoot)
	if err != nil {
		return err
	}
	dstSize, err := mg.treeSize(ctx, dst, dstRoot)
	if err != nil {
		return err
	}

	event := mg.logger.Info()
	delta := srcSize - dstSize
	if delta < 0 {
		delta = -delta
	}
	// More than 5% apart suggests the sync missed something.
	if srcSize > 0 && delta*20 > srcSize {
		event = mg.logger.Warn()
	}
	event.
		Str("source_size", humanize.Bytes(uint64(srcSize))).
		Str("dest_size", humanize.Bytes(uint64(dstSize))).
		Msg("file sync audit")
	return nil
}

// treeSize returns the byte size of a directory tree on host.
func (mg *Migrator) treeSize(ctx context.Context, host sshexec.Host, path string) (int64, error) {
	out, err := mg.runner.Capture(ctx, host, fmt.Sprintf("du -sb %s | cut -f1", sshexec.ShellQuote(path)))
	if err != nil {
		return 0, fmt.Errorf("failed to measure %s on %s: %w", path, host.Addr(), err)
	}
	size, err := strconv.ParseInt(strings.TrimSpace(out), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("unexpected du output %q from %s: %w", out, host.Addr(), err)
	}
	return size, nil
}
