package dbxfer

import (
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/wpshift/wpshift/pkg/sshexec"
)

var (
	// ErrMySQLMissing means the host has no mysql client/server installed.
	ErrMySQLMissing = errors.New("mysql is not installed")

	// ErrDatabaseMissing means the server is up but the named database
	// does not exist.
	ErrDatabaseMissing = errors.New("database not found")
)

// Creds are the database connection parameters extracted from a site's
// wp-config.php.
type Creds struct {
	Name   string
	User   string
	Pass   string
	Prefix string
}

// identRe is the allow-list for identifiers interpolated into shell
// commands. Anything else (shell metacharacters in particular) is rejected
// before any remote command is constructed.
var identRe = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ValidateIdentifier rejects database names, users and table prefixes that
// could break out of a shell command.
func ValidateIdentifier(kind, name string) error {
	if name == "" {
		return fmt.Errorf("%s is empty", kind)
	}
	if !identRe.MatchString(name) {
		return fmt.Errorf("%s %q contains characters outside [A-Za-z0-9_-]; refusing to build a shell command with it", kind, name)
	}
	return nil
}

// Validate checks every identifier that ends up inside a shell command.
// The password is exempt: it is passed single-quoted and never interpolated
// bare.
func (c Creds) Validate() error {
	if err := ValidateIdentifier("database name", c.Name); err != nil {
		return err
	}
	if err := ValidateIdentifier("database user", c.User); err != nil {
		return err
	}
	if c.Prefix != "" {
		if err := ValidateIdentifier("table prefix", c.Prefix); err != nil {
			return err
		}
	}
	return nil
}

// shQuote is sshexec.ShellQuote, aliased for brevity in command builders.
var shQuote = sshexec.ShellQuote

// mysql builds a mysql client invocation with the password delivered via
// MYSQL_PWD so it never appears in the argument list.
func (c Creds) mysql(args string) string {
	return fmt.Sprintf("MYSQL_PWD=%s mysql -u %s %s", shQuote(c.Pass), c.User, args)
}

// mysqldump builds the dump side of a transfer.
func (c Creds) mysqldump() string {
	return fmt.Sprintf("MYSQL_PWD=%s mysqldump --single-transaction --quick --add-drop-table -u %s %s",
		shQuote(c.Pass), c.User, c.Name)
}

// MarkerOption is the option_name under which the migration marker is
// stored in the site's options table.
const MarkerOption = "wpshift_migration_id"

// NewMarker returns a unique marker value: timestamped so operators can
// read when a migration ran, random so two runs never collide.
func NewMarker() string {
	return time.Now().UTC().Format("20060102T150405Z") + "-" + uuid.NewString()
}

// Transfer moves a database between hosts and verifies the move.
type Transfer struct {
	runner sshexec.Runner
	logger zerolog.Logger
}

// New returns a Transfer executing remote commands through runner.
func New(runner sshexec.Runner, logger zerolog.Logger) *Transfer {
	return &Transfer{runner: runner, logger: logger}
}
