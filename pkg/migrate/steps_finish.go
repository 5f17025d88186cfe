package migrate

import (
	"context"
	"fmt"

	"github.com/wpshift/wpshift/pkg/sshexec"
	"github.com/wpshift/wpshift/pkg/webroute"
)

// stepRouting reconciles the destination's routing and SSL state with
// what was captured from the source. Values that already match are left
// alone; SSL issuance additionally needs operator confirmation because it
// only works after DNS cutover.
func stepRouting(ctx context.Context, mg *Migrator) error {
	f := mg.m.Facts

	if mg.dest == nil {
		return fmt.Errorf("no destination profile selected (pass --dest <profile>)")
	}
	route, err := need(f.Route, "route", StepRoutes)
	if err != nil {
		return err
	}

	domain, err := mg.dest.FindDomain(ctx, mg.site)
	if err != nil {
		return err
	}

	if domain.Routing == route {
		mg.logger.Info().Str("routing", route).Msg("destination routing already matches")
	} else if mg.opts.DryRun {
		mg.logger.Info().
			Str("from", domain.Routing).
			Str("to", route).
			Msg("dry-run: would change destination routing")
	} else {
		if err := mg.dest.SetRouting(ctx, domain.ID, route); err != nil {
			return err
		}
		mg.logger.Info().
			Str("from", domain.Routing).
			Str("to", route).
			Msg("destination routing updated")
	}

	if f.SourceSSL != "true" {
		return nil
	}
	if domain.SSLEnabled {
		mg.logger.Info().Msg("destination SSL already enabled")
		return nil
	}
	if mg.opts.DryRun {
		mg.logger.Info().Msg("dry-run: would trigger SSL issuance on destination")
		return nil
	}
	if !mg.opts.AssumeYes &&
		!mg.confirm("SSL issuance will only succeed if DNS already points at the destination. Trigger it now?") {
		mg.logger.Warn().Msg("SSL issuance deferred by operator; re-run step 5 after DNS cutover")
		return nil
	}
	if err := mg.dest.EnableSSL(ctx, domain.ID); err != nil {
		return err
	}
	mg.logger.Info().Msg("SSL issuance triggered on destination")
	return nil
}

func summaryRouting(mg *Migrator) string {
	f := mg.m.Facts
	return fmt.Sprintf("routing %s, source ssl %s", f.Route, f.SourceSSL)
}

// VerificationFile and VerificationContent are the fixed artifact planted
// in the destination web root. Once the site is publicly serving this
// file, DNS has propagated to the destination.
const (
	VerificationFile    = "wpshift-arrival.txt"
	VerificationContent = "wpshift: this site is served from the migration destination\n"
)

// VerificationURL returns where the artifact will be publicly visible
// after cutover.
func VerificationURL(site, route string) string {
	host := site
	if route == string(webroute.RouteWWW) {
		host = "www." + site
	}
	return "https://" + host + "/" + VerificationFile
}

// stepFinalize plants the verification artifact in the destination web
// root and flushes destination caches so the first post-cutover requests
// see migrated content.
func stepFinalize(ctx context.Context, mg *Migrator) error {
	f := mg.m.Facts

	dst, err := mg.destHost()
	if err != nil {
		return err
	}
	webRoot, err := need(f.DestWebRoot, "dest_web_root", StepPaths)
	if err != nil {
		return err
	}

	artifact := webRoot + "/" + VerificationFile
	if mg.opts.DryRun {
		mg.logger.Info().Str("path", artifact).Msg("dry-run: would plant verification artifact")
		mg.logger.Info().Msg("dry-run: would flush destination caches")
		return nil
	}

	plant := fmt.Sprintf("printf %%s %s > %s",
		sshexec.ShellQuote(VerificationContent), sshexec.ShellQuote(artifact))
	if _, err := mg.runner.Capture(ctx, dst, plant); err != nil {
		return fmt.Errorf("failed to plant verification artifact: %w", err)
	}
	mg.logger.Info().
		Str("check", VerificationURL(mg.site, f.Route)).
		Msg("verification artifact planted; once it is publicly reachable, DNS points at the destination")

	// Cache invalidation is best-effort: a stale cache costs freshness,
	// not correctness.
	for _, flush := range []string{
		fmt.Sprintf("wp --path=%s cache flush 2>/dev/null || true", sshexec.ShellQuote(webRoot)),
		fmt.Sprintf("[ -d %[1]s ] && rm -rf %[1]s/* || true", sshexec.ShellQuote("/var/www/"+mg.site+"/cache")),
	} {
		if _, err := mg.runner.Capture(ctx, dst, flush); err != nil {
			mg.logger.Warn().Str("command", flush).Err(err).Msg("destination cache flush failed")
		}
	}
	return nil
}
