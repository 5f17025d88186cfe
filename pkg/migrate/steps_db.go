package migrate

import (
	"context"
	"fmt"
	"strings"

	"github.com/wpshift/wpshift/pkg/dbxfer"
	"github.com/wpshift/wpshift/pkg/sshexec"
)

// stepPaths locates wp-config.php on each host: ranked conventional
// locations first, then a bounded filesystem search scoped to the site
// name.
func stepPaths(ctx context.Context, mg *Migrator) error {
	f := &mg.m.Facts

	src, err := mg.sourceHost()
	if err != nil {
		return err
	}
	dst, err := mg.destHost()
	if err != nil {
		return err
	}

	if f.SourceConfigPath == "" {
		config, webroot, err := mg.discoverConfig(ctx, src, f.SourceUser)
		if err != nil {
			return fmt.Errorf("source: %w", err)
		}
		f.SourceConfigPath = config
		f.SourceWebRoot = webroot
	} else if f.SourceWebRoot == "" {
		f.SourceWebRoot = webRootFor(ctx, mg, src, f.SourceConfigPath)
	}

	if f.DestConfigPath == "" {
		config, webroot, err := mg.discoverConfig(ctx, dst, f.DestUser)
		if err != nil {
			return fmt.Errorf("destination: %w", err)
		}
		f.DestConfigPath = config
		f.DestWebRoot = webroot
	} else if f.DestWebRoot == "" {
		f.DestWebRoot = webRootFor(ctx, mg, dst, f.DestConfigPath)
	}

	mg.logger.Info().
		Str("source_config", f.SourceConfigPath).
		Str("dest_config", f.DestConfigPath).
		Msg("site configuration located")
	return nil
}

// configCandidates is the ranked list of conventional wp-config.php
// locations for a site and its unix user.
func configCandidates(site, user string) []string {
	return []string{
		"/var/www/" + site + "/htdocs/wp-config.php",
		"/var/www/" + site + "/wp-config.php",
		"/home/" + user + "/sites/" + site + "/public/wp-config.php",
		"/home/" + user + "/public_html/wp-config.php",
	}
}

// discoverConfig probes the ranked candidates in one remote invocation,
// then falls back to a bounded find scoped to the site name. Returns the
// config path and the web root it implies.
func (mg *Migrator) discoverConfig(ctx context.Context, host sshexec.Host, user string) (string, string, error) {
	var probe strings.Builder
	for _, c := range configCandidates(mg.site, user) {
		fmt.Fprintf(&probe, "if [ -f %s ]; then echo %s; exit 0; fi; ", sshexec.ShellQuote(c), sshexec.ShellQuote(c))
	}
	fmt.Fprintf(&probe, "find /var/www /home -maxdepth 5 -name wp-config.php -path %s 2>/dev/null | head -n 1",
		sshexec.ShellQuote("*"+mg.site+"*"))

	out, err := mg.runner.Capture(ctx, host, probe.String())
	if err != nil {
		return "", "", fmt.Errorf("config discovery failed on %s: %w", host.Addr(), err)
	}
	config := strings.TrimSpace(out)
	if config == "" {
		if mg.opts.Verbose {
			mg.dumpDiscoveryDiagnostics(ctx, host)
		}
		return "", "", fmt.Errorf("no wp-config.php found on %s for %s (non-standard layout? supply source_config_path/dest_config_path via a seed file, or re-run with --verbose for directory listings)",
			host.Addr(), mg.site)
	}
	return config, webRootFor(ctx, mg, host, config), nil
}

// webRootFor derives the web root from a config path. wp-config.php may
// sit one level above the served directory; when an htdocs sibling
// exists, that is the web root.
func webRootFor(ctx context.Context, mg *Migrator, host sshexec.Host, configPath string) string {
	dir := configPath[:strings.LastIndex(configPath, "/")]
	htdocs := dir + "/htdocs"
	out, err := mg.runner.Capture(ctx, host,
		fmt.Sprintf("test -d %s && echo yes || echo no", sshexec.ShellQuote(htdocs)))
	if err == nil && strings.TrimSpace(out) == "yes" {
		return htdocs
	}
	return dir
}

// dumpDiscoveryDiagnostics logs directory listings and a broader search
// so an operator can see what the layout actually looks like.
func (mg *Migrator) dumpDiscoveryDiagnostics(ctx context.Context, host sshexec.Host) {
	for _, probe := range []string{
		"ls -la /var/www 2>/dev/null",
		"ls -la /home 2>/dev/null",
		"find / -maxdepth 4 -name wp-config.php 2>/dev/null | head -n 20",
	} {
		out, err := mg.runner.Capture(ctx, host, probe)
		if err != nil {
			continue
		}
		mg.logger.Warn().
			Str("host", host.Addr()).
			Str("probe", probe).
			Str("output", out).
			Msg("path discovery diagnostics")
	}
}

func summaryPaths(mg *Migrator) string {
	f := mg.m.Facts
	return fmt.Sprintf("source config %s, dest config %s", f.SourceConfigPath, f.DestConfigPath)
}

// stepCreds extracts database credentials from both sides' configs.
func stepCreds(ctx context.Context, mg *Migrator) error {
	f := &mg.m.Facts

	src, err := mg.sourceHost()
	if err != nil {
		return err
	}
	dst, err := mg.destHost()
	if err != nil {
		return err
	}
	srcConfig, err := need(f.SourceConfigPath, "source_config_path", StepPaths)
	if err != nil {
		return err
	}
	dstConfig, err := need(f.DestConfigPath, "dest_config_path", StepPaths)
	if err != nil {
		return err
	}

	srcCreds, err := mg.db.ExtractCreds(ctx, src, srcConfig, mg.opts.Verbose)
	if err != nil {
		return fmt.Errorf("source: %w", err)
	}
	f.SourceDBName = srcCreds.Name
	f.SourceDBUser = srcCreds.User
	f.SourceDBPass = srcCreds.Pass
	f.SourceTablePrefix = srcCreds.Prefix

	dstCreds, err := mg.db.ExtractCreds(ctx, dst, dstConfig, mg.opts.Verbose)
	if err != nil {
		return fmt.Errorf("destination: %w", err)
	}
	f.DestDBName = dstCreds.Name
	f.DestDBUser = dstCreds.User
	f.DestDBPass = dstCreds.Pass
	f.DestTablePrefix = dstCreds.Prefix

	mg.logger.Info().
		Str("source_db", srcCreds.Name).
		Str("dest_db", dstCreds.Name).
		Msg("database credentials extracted")
	return nil
}

func summaryCreds(mg *Migrator) string {
	f := mg.m.Facts
	return fmt.Sprintf("source db %s (prefix %s), dest db %s (prefix %s)",
		f.SourceDBName, f.SourceTablePrefix, f.DestDBName, f.DestTablePrefix)
}

// stepDBCheck verifies both databases exist before anything destructive.
func stepDBCheck(ctx context.Context, mg *Migrator) error {
	src, err := mg.sourceHost()
	if err != nil {
		return err
	}
	dst, err := mg.destHost()
	if err != nil {
		return err
	}
	srcCreds, err := mg.sourceCreds()
	if err != nil {
		return err
	}
	dstCreds, err := mg.destCreds()
	if err != nil {
		return err
	}

	if err := mg.db.CheckExists(ctx, src, srcCreds); err != nil {
		return fmt.Errorf("source: %w", err)
	}
	if err := mg.db.CheckExists(ctx, dst, dstCreds); err != nil {
		return fmt.Errorf("destination: %w", err)
	}
	return nil
}

func summaryDBCheck(mg *Migrator) string {
	f := mg.m.Facts
	return fmt.Sprintf("%s and %s exist", f.SourceDBName, f.DestDBName)
}

// stepDBTransfer is the destructive center of the migration: guard
// against prior runs, plant the marker, transfer, verify.
func stepDBTransfer(ctx context.Context, mg *Migrator) error {
	f := &mg.m.Facts

	src, err := mg.sourceHost()
	if err != nil {
		return err
	}
	dst, err := mg.destHost()
	if err != nil {
		return err
	}
	srcCreds, err := mg.sourceCreds()
	if err != nil {
		return err
	}
	dstCreds, err := mg.destCreds()
	if err != nil {
		return err
	}

	// The guard runs before anything is dumped: a marker on the
	// destination means a prior run already transferred this database,
	// and it may have diverged since.
	existing, err := mg.db.ReadMarker(ctx, dst, dstCreds)
	if err != nil {
		return err
	}
	if existing != "" {
		switch {
		case mg.opts.SkipDB:
			mg.logger.Info().
				Str("marker", existing).
				Msg("destination already migrated, skipping database transfer as requested")
			return nil
		case !mg.opts.ForceDB:
			return fmt.Errorf("destination database %s already carries migration marker %s from a prior run; re-run with --force-db to overwrite it or --skip-db to keep it",
				dstCreds.Name, existing)
		}
		mg.logger.Warn().
			Str("marker", existing).
			Msg("overwriting previously migrated database (--force-db)")
	}

	if mg.opts.DryRun {
		mode := "direct pipe"
		if mg.opts.StagedDB {
			mode = "staged file"
		}
		mg.logger.Info().
			Str("mode", mode).
			Str("source_db", srcCreds.Name).
			Str("dest_db", dstCreds.Name).
			Msg("dry-run: would plant marker, dump source database, and restore into destination")
		return nil
	}

	marker := dbxfer.NewMarker()
	f.MarkerID = marker

	// Written to the source so the dump carries it to the destination.
	if err := mg.db.WriteMarker(ctx, src, srcCreds, marker); err != nil {
		return err
	}
	if err := mg.save(); err != nil {
		return err
	}

	if mg.opts.StagedDB {
		err = mg.db.Staged(ctx, src, srcCreds, dst, dstCreds)
	} else {
		err = mg.db.Direct(ctx, src, srcCreds, dst, dstCreds)
	}
	if err != nil {
		return err
	}

	// Verification mismatch is a warning, not a failure: the transfer
	// very likely succeeded, but the prefix governing the options table
	// is ambiguous when the two configs disagree.
	ok, prefix, err := mg.db.VerifyMarker(ctx, dst, dstCreds, srcCreds.Prefix, marker)
	if err != nil {
		mg.logger.Warn().Err(err).Msg("marker verification inconclusive")
		return nil
	}
	if !ok {
		mg.logger.Warn().
			Str("marker", marker).
			Str("dest_prefix", dstCreds.Prefix).
			Str("source_prefix", srcCreds.Prefix).
			Msg("marker not found after transfer under either prefix; verify the destination database manually")
		return nil
	}
	if prefix != dstCreds.Prefix {
		mg.logger.Warn().
			Str("verified_under", prefix).
			Str("dest_config_prefix", dstCreds.Prefix).
			Msg("marker verified under the source prefix; source and destination configs disagree on table prefix")
	}
	mg.logger.Info().Str("marker", marker).Msg("database transfer verified")
	return nil
}

func summaryDBTransfer(mg *Migrator) string {
	if mg.m.Facts.MarkerID == "" {
		return ""
	}
	return "marker " + mg.m.Facts.MarkerID
}
