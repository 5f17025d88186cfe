package migrate

import (
	"context"
	"fmt"
	"strings"

	"github.com/wpshift/wpshift/pkg/sshexec"
)

// nginxTranslations maps known per-site nginx include fragments to the
// equivalent provider command on the destination. Fragment names are
// matched by suffix: provider tooling prepends the site name.
var nginxTranslations = map[string]string{
	"force-ssl.conf":     "gp site %s -force-ssl on",
	"www-redirect.conf":  "gp site %s -www-redirect on",
	"root-redirect.conf": "gp site %s -root-redirect on",
	"hsts.conf":          "gp site %s -hsts on",
	"sec-headers.conf":   "gp site %s -sec-headers on",
}

// stepNginx inventories non-standard nginx config fragments on the
// source, replays the ones it knows how to translate on the destination,
// and warns about the rest. Unknown fragments are never silently dropped:
// the operator must be told about anything that needs manual porting.
func stepNginx(ctx context.Context, mg *Migrator) error {
	src, err := mg.sourceHost()
	if err != nil {
		return err
	}
	dst, err := mg.destHost()
	if err != nil {
		return err
	}

	out, err := mg.runner.Capture(ctx, src,
		fmt.Sprintf("ls -1 %s 2>/dev/null || true", sshexec.ShellQuote("/var/www/"+mg.site+"/nginx")))
	if err != nil {
		return fmt.Errorf("failed to inventory nginx fragments: %w", err)
	}

	fragments := splitLines(out)
	mg.m.Facts.NginxIncludes = strings.Join(fragments, ",")
	if len(fragments) == 0 {
		mg.logger.Info().Msg("no custom nginx fragments on source")
		return nil
	}

	var failed []string
	for _, fragment := range fragments {
		command, known := translateFragment(fragment, mg.site)
		if !known {
			mg.logger.Warn().
				Str("fragment", fragment).
				Msg("no known translation for nginx fragment; port it to the destination manually")
			continue
		}
		if mg.opts.DryRun {
			mg.logger.Info().
				Str("fragment", fragment).
				Str("command", command).
				Msg("dry-run: would run on destination")
			continue
		}
		if _, err := mg.runner.Capture(ctx, dst, command); err != nil {
			// Recorded per-fragment so one failure does not hide the
			// others, but any failure still fails the step.
			mg.logger.Error().
				Str("fragment", fragment).
				Str("command", command).
				Err(err).
				Msg("nginx fragment translation failed")
			failed = append(failed, fragment)
			continue
		}
		mg.logger.Info().
			Str("fragment", fragment).
			Str("command", command).
			Msg("nginx fragment applied on destination")
	}

	if len(failed) > 0 {
		return fmt.Errorf("failed to apply nginx fragments on destination: %s", strings.Join(failed, ", "))
	}
	return nil
}

// translateFragment finds the destination command for a fragment, if the
// fragment's suffix is a known one.
func translateFragment(fragment, site string) (string, bool) {
	for suffix, tmpl := range nginxTranslations {
		if strings.HasSuffix(fragment, suffix) {
			return fmt.Sprintf(tmpl, site), true
		}
	}
	return "", false
}

func splitLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}

func summaryNginx(mg *Migrator) string {
	if mg.m.Facts.NginxIncludes == "" {
		return "no custom fragments"
	}
	return "fragments: " + mg.m.Facts.NginxIncludes
}
