package dbxfer

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/wpshift/wpshift/pkg/sshexec"
)

// wp-config.php uses define() for connection parameters and a bare
// variable for the table prefix; both appear with either quoting style in
// the wild.
var (
	defineRe = regexp.MustCompile(`define\s*\(\s*['"]([A-Z_]+)['"]\s*,\s*('([^']*)'|"([^"]*)")\s*\)`)
	prefixRe = regexp.MustCompile(`\$table_prefix\s*=\s*('([^']*)'|"([^"]*)")`)
)

// ExtractCreds pulls the database name, user, password and table prefix
// out of the wp-config.php at configPath on host. The matching lines are
// fetched with a single remote grep and parsed locally. A config that
// yields no match is a clear failure, not a crash; with verbose set, the
// failure is preceded by diagnostic context (does the file exist, what did
// the candidate lines look like).
func (t *Transfer) ExtractCreds(ctx context.Context, host sshexec.Host, configPath string, verbose bool) (Creds, error) {
	command := fmt.Sprintf("grep -E %s %s", shQuote(`define|table_prefix`), shQuote(configPath))
	out, err := t.runner.Capture(ctx, host, command)
	if err != nil {
		if verbose {
			t.dumpExtractionDiagnostics(ctx, host, configPath)
		}
		return Creds{}, fmt.Errorf("failed to read config %s on %s: %w", configPath, host.Addr(), err)
	}

	creds, parseErr := ParseConfig(out)
	if parseErr != nil {
		if verbose {
			t.dumpExtractionDiagnostics(ctx, host, configPath)
		}
		return Creds{}, fmt.Errorf("config %s on %s: %w", configPath, host.Addr(), parseErr)
	}
	return creds, nil
}

// ParseConfig extracts credentials from wp-config.php content. Exported so
// seed-style inputs can be parsed without a remote host.
func ParseConfig(content string) (Creds, error) {
	var creds Creds

	for _, m := range defineRe.FindAllStringSubmatch(content, -1) {
		value := m[3]
		if value == "" {
			value = m[4]
		}
		switch m[1] {
		case "DB_NAME":
			creds.Name = value
		case "DB_USER":
			creds.User = value
		case "DB_PASSWORD":
			creds.Pass = value
		}
	}

	if m := prefixRe.FindStringSubmatch(content); m != nil {
		creds.Prefix = m[2]
		if creds.Prefix == "" {
			creds.Prefix = m[3]
		}
	}

	var missing []string
	if creds.Name == "" {
		missing = append(missing, "DB_NAME")
	}
	if creds.User == "" {
		missing = append(missing, "DB_USER")
	}
	if creds.Pass == "" {
		missing = append(missing, "DB_PASSWORD")
	}
	if len(missing) > 0 {
		return Creds{}, fmt.Errorf("could not extract %s (checked both quoting styles)", strings.Join(missing, ", "))
	}
	if creds.Prefix == "" {
		creds.Prefix = "wp_"
	}
	return creds, nil
}

// dumpExtractionDiagnostics logs what can be learned about a config file
// that failed extraction: existence, and the raw candidate lines.
func (t *Transfer) dumpExtractionDiagnostics(ctx context.Context, host sshexec.Host, configPath string) {
	exists, err := t.runner.Capture(ctx, host,
		fmt.Sprintf("test -f %s && echo exists || echo missing", shQuote(configPath)))
	if err != nil {
		exists = "unknown (" + err.Error() + ")"
	}
	t.logger.Warn().
		Str("host", host.Addr()).
		Str("config", configPath).
		Str("file", exists).
		Msg("credential extraction diagnostics")

	lines, err := t.runner.Capture(ctx, host,
		fmt.Sprintf("grep -n -E %s %s", shQuote(`DB_|table_prefix`), shQuote(configPath)))
	if err == nil && lines != "" {
		t.logger.Warn().
			Str("host", host.Addr()).
			Str("candidate_lines", lines).
			Msg("credential extraction diagnostics")
	}
}
