package dbxfer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/wpshift/wpshift/pkg/sshexec"
)

// CheckExists verifies that the mysql client is installed on host and that
// the database named in creds exists. The two failure modes are distinct
// conditions: "mysql missing" and "database missing" have different fixes.
func (t *Transfer) CheckExists(ctx context.Context, host sshexec.Host, creds Creds) error {
	if err := creds.Validate(); err != nil {
		return err
	}

	out, err := t.runner.Capture(ctx, host, "command -v mysql >/dev/null 2>&1 && echo present || echo missing")
	if err != nil {
		return fmt.Errorf("failed to probe for mysql on %s: %w", host.Addr(), err)
	}
	if strings.TrimSpace(out) != "present" {
		return fmt.Errorf("%w on %s", ErrMySQLMissing, host.Addr())
	}

	query := fmt.Sprintf(`-N -B -e "SHOW DATABASES LIKE '%s'"`, creds.Name)
	out, err = t.runner.Capture(ctx, host, creds.mysql(query))
	if err != nil {
		return fmt.Errorf("failed to list databases on %s: %w", host.Addr(), err)
	}
	if strings.TrimSpace(out) != creds.Name {
		return fmt.Errorf("%w: %s on %s", ErrDatabaseMissing, creds.Name, host.Addr())
	}
	return nil
}

// ReadMarker returns the migration marker stored in the options table, or
// "" when none is present. A missing options table (fresh or non-WordPress
// database) also reads as no marker.
func (t *Transfer) ReadMarker(ctx context.Context, host sshexec.Host, creds Creds) (string, error) {
	if err := creds.Validate(); err != nil {
		return "", err
	}

	query := fmt.Sprintf(`-N -B -e "SELECT option_value FROM %soptions WHERE option_name='%s'" %s`,
		creds.Prefix, MarkerOption, creds.Name)
	out, err := t.runner.Capture(ctx, host, creds.mysql(query))
	if err != nil {
		var cmdErr *sshexec.CommandError
		if errors.As(err, &cmdErr) && missingTableOrDB(cmdErr.Stderr) {
			return "", nil
		}
		return "", fmt.Errorf("failed to read marker on %s: %w", host.Addr(), err)
	}
	return strings.TrimSpace(out), nil
}

// WriteMarker plants marker in the options table on host. Written to the
// source before the dump so the value travels with the transfer and lands
// in the destination automatically.
func (t *Transfer) WriteMarker(ctx context.Context, host sshexec.Host, creds Creds, marker string) error {
	if err := creds.Validate(); err != nil {
		return err
	}

	stmt := fmt.Sprintf(
		"INSERT INTO %soptions (option_name, option_value, autoload) VALUES ('%s', '%s', 'no') "+
			"ON DUPLICATE KEY UPDATE option_value='%s'",
		creds.Prefix, MarkerOption, marker, marker)
	command := creds.mysql(fmt.Sprintf(`-e "%s" %s`, stmt, creds.Name))
	if _, err := t.runner.Capture(ctx, host, command); err != nil {
		return fmt.Errorf("failed to write marker on %s: %w", host.Addr(), err)
	}
	return nil
}

// VerifyMarker checks that the marker on host matches want. The options
// table name depends on the table prefix, which can legitimately differ
// between source and destination configs, so a miss under the primary
// prefix falls back to altPrefix before giving up. It returns whether the
// value matched and which prefix produced it.
func (t *Transfer) VerifyMarker(ctx context.Context, host sshexec.Host, creds Creds, altPrefix, want string) (bool, string, error) {
	got, err := t.ReadMarker(ctx, host, creds)
	if err != nil {
		return false, "", err
	}
	if got == want {
		return true, creds.Prefix, nil
	}

	if altPrefix != "" && altPrefix != creds.Prefix {
		alt := creds
		alt.Prefix = altPrefix
		got, err = t.ReadMarker(ctx, host, alt)
		if err != nil {
			return false, "", err
		}
		if got == want {
			return true, altPrefix, nil
		}
	}
	return false, "", nil
}

// Direct streams the dump on src straight into the restore on dst: two
// concurrent remote-shell processes joined by a local pipe. Either side
// failing fails the transfer.
func (t *Transfer) Direct(ctx context.Context, src sshexec.Host, srcCreds Creds, dst sshexec.Host, dstCreds Creds) error {
	if err := srcCreds.Validate(); err != nil {
		return err
	}
	if err := dstCreds.Validate(); err != nil {
		return err
	}

	t.logger.Info().
		Str("src", src.Addr()).
		Str("dst", dst.Addr()).
		Str("database", srcCreds.Name).
		Msg("transferring database over direct pipe")

	restore := dstCreds.mysql(dstCreds.Name)
	if err := t.runner.Pipe(ctx, src, srcCreds.mysqldump(), dst, restore); err != nil {
		return fmt.Errorf("database transfer failed: %w", err)
	}
	return nil
}

// Staged dumps to a compressed file on the source, copies the file to the
// destination, restores there, and removes the temporary file on both
// hosts regardless of outcome. Slower than Direct but tolerant of
// unreliable links.
func (t *Transfer) Staged(ctx context.Context, src sshexec.Host, srcCreds Creds, dst sshexec.Host, dstCreds Creds) error {
	if err := srcCreds.Validate(); err != nil {
		return err
	}
	if err := dstCreds.Validate(); err != nil {
		return err
	}

	file := fmt.Sprintf("/tmp/wpshift-%s-%d.sql.gz", srcCreds.Name, time.Now().Unix())
	defer t.cleanupStaged(src, dst, file)

	t.logger.Info().
		Str("src", src.Addr()).
		Str("dst", dst.Addr()).
		Str("database", srcCreds.Name).
		Str("file", file).
		Msg("transferring database via staged file")

	dump := fmt.Sprintf("set -o pipefail; %s | gzip > %s", srcCreds.mysqldump(), file)
	if _, err := t.runner.Capture(ctx, src, dump); err != nil {
		return fmt.Errorf("staged dump failed: %w", err)
	}

	port := src.Port
	if port == "" {
		port = "22"
	}
	copy := fmt.Sprintf("scp -o BatchMode=yes -o StrictHostKeyChecking=accept-new -P %s %s:%s %s",
		port, src.Addr(), file, file)
	if _, err := t.runner.Capture(ctx, dst, copy); err != nil {
		return fmt.Errorf("staged copy failed: %w", err)
	}

	restore := fmt.Sprintf("set -o pipefail; gunzip -c %s | %s", file, dstCreds.mysql(dstCreds.Name))
	if _, err := t.runner.Capture(ctx, dst, restore); err != nil {
		return fmt.Errorf("staged restore failed: %w", err)
	}
	return nil
}

// cleanupStaged removes the temporary dump file from both hosts. Failures
// only cost disk space, so they are logged and swallowed.
func (t *Transfer) cleanupStaged(src, dst sshexec.Host, file string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	for _, host := range []sshexec.Host{src, dst} {
		if _, err := t.runner.Capture(ctx, host, "rm -f "+file); err != nil {
			t.logger.Debug().
				Str("host", host.Addr()).
				Str("file", file).
				Err(err).
				Msg("failed to remove staged dump file")
		}
	}
}

// missingTableOrDB recognizes mysql's complaints about a nonexistent
// options table or database, which the marker logic treats as "no marker"
// rather than a failure.
func missingTableOrDB(stderr string) bool {
	s := strings.ToLower(stderr)
	return strings.Contains(s, "doesn't exist") || strings.Contains(s, "unknown database")
}
