package dbxfer

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wpshift/wpshift/pkg/sshexec"
)

// fakeRunner scripts Capture responses by command substring and records
// everything that would have gone over the wire.
type fakeRunner struct {
	commands []string
	outputs  map[string]string // substring -> stdout
	errs     map[string]error  // substring -> error
	pipeErr  error
	pipes    [][2]string
}

func (f *fakeRunner) lookup(command string) (string, error) {
	for sub, err := range f.errs {
		if strings.Contains(command, sub) {
			return "", err
		}
	}
	for sub, out := range f.outputs {
		if strings.Contains(command, sub) {
			return out, nil
		}
	}
	return "", nil
}

func (f *fakeRunner) Run(_ context.Context, _ sshexec.Host, command string) error {
	f.commands = append(f.commands, command)
	_, err := f.lookup(command)
	return err
}

func (f *fakeRunner) Capture(_ context.Context, _ sshexec.Host, command string) (string, error) {
	f.commands = append(f.commands, command)
	return f.lookup(command)
}

func (f *fakeRunner) Pipe(_ context.Context, _ sshexec.Host, srcCmd string, _ sshexec.Host, dstCmd string) error {
	f.pipes = append(f.pipes, [2]string{srcCmd, dstCmd})
	return f.pipeErr
}

var (
	host  = sshexec.Host{IP: "198.51.100.1", Port: "22", User: "site"}
	host2 = sshexec.Host{IP: "198.51.100.2", Port: "22", User: "site"}
	creds = Creds{Name: "wp_example", User: "wp_user", Pass: "s3cret", Prefix: "wp_"}
)

func TestParseConfigQuotingStyles(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{
			name: "single quotes",
			content: `define( 'DB_NAME', 'wp_example' );
define( 'DB_USER', 'wp_user' );
define( 'DB_PASSWORD', 's3cret' );
$table_prefix = 'wp_';`,
		},
		{
			name: "double quotes",
			content: `define("DB_NAME", "wp_example");
define("DB_USER", "wp_user");
define("DB_PASSWORD", "s3cret");
$table_prefix = "wp_";`,
		},
		{
			name: "mixed spacing",
			content: `define('DB_NAME','wp_example');
define( "DB_USER" , "wp_user" );
define('DB_PASSWORD', 's3cret');
$table_prefix  =  'wp_';`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseConfig(tt.content)
			require.NoError(t, err)
			assert.Equal(t, "wp_example", got.Name)
			assert.Equal(t, "wp_user", got.User)
			assert.Equal(t, "s3cret", got.Pass)
			assert.Equal(t, "wp_", got.Prefix)
		})
	}
}

func TestParseConfigMissingDefines(t *testing.T) {
	_, err := ParseConfig(`define('DB_NAME', 'wp_example');`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DB_USER")
	assert.Contains(t, err.Error(), "DB_PASSWORD")
	assert.NotContains(t, err.Error(), "DB_NAME")
}

func TestParseConfigDefaultPrefix(t *testing.T) {
	got, err := ParseConfig(`define('DB_NAME', 'a');
define('DB_USER', 'b');
define('DB_PASSWORD', 'c');`)
	require.NoError(t, err)
	assert.Equal(t, "wp_", got.Prefix)
}

func TestValidateIdentifierRejectsMetacharacters(t *testing.T) {
	for _, bad := range []string{"db;drop", "db|cat", "db`id`", "db$HOME", "db<x", "db>x", "db name", "db'q"} {
		t.Run(bad, func(t *testing.T) {
			err := ValidateIdentifier("database name", bad)
			require.Error(t, err)
		})
	}
	for _, ok := range []string{"wp_example", "site-2024", "DB_1"} {
		t.Run(ok, func(t *testing.T) {
			assert.NoError(t, ValidateIdentifier("database name", ok))
		})
	}
}

func TestUnsafeNameRejectedBeforeAnyRemoteCall(t *testing.T) {
	fr := &fakeRunner{}
	tr := New(fr, zerolog.Nop())

	bad := creds
	bad.Name = "wp;rm -rf /"
	err := tr.CheckExists(context.Background(), host, bad)
	require.Error(t, err)
	assert.Empty(t, fr.commands, "no remote command may be built for an unsafe name")

	err = tr.Direct(context.Background(), host, bad, host2, creds)
	require.Error(t, err)
	assert.Empty(t, fr.pipes)
}

func TestCheckExistsDistinguishesFailures(t *testing.T) {
	t.Run("mysql missing", func(t *testing.T) {
		fr := &fakeRunner{outputs: map[string]string{"command -v mysql": "missing"}}
		err := New(fr, zerolog.Nop()).CheckExists(context.Background(), host, creds)
		require.ErrorIs(t, err, ErrMySQLMissing)
	})

	t.Run("database missing", func(t *testing.T) {
		fr := &fakeRunner{outputs: map[string]string{
			"command -v mysql": "present",
			"SHOW DATABASES":   "",
		}}
		err := New(fr, zerolog.Nop()).CheckExists(context.Background(), host, creds)
		require.ErrorIs(t, err, ErrDatabaseMissing)
	})

	t.Run("database present", func(t *testing.T) {
		fr := &fakeRunner{outputs: map[string]string{
			"command -v mysql": "present",
			"SHOW DATABASES":   "wp_example",
		}}
		assert.NoError(t, New(fr, zerolog.Nop()).CheckExists(context.Background(), host, creds))
	})
}

func TestMarkerRoundTrip(t *testing.T) {
	marker := NewMarker()
	assert.NotEqual(t, marker, NewMarker(), "markers must be unique per run")

	fr := &fakeRunner{outputs: map[string]string{"SELECT option_value": marker}}
	tr := New(fr, zerolog.Nop())

	require.NoError(t, tr.WriteMarker(context.Background(), host, creds, marker))
	got, err := tr.ReadMarker(context.Background(), host2, creds)
	require.NoError(t, err)
	assert.Equal(t, marker, got)
}

func TestReadMarkerMissingTableIsNoMarker(t *testing.T) {
	fr := &fakeRunner{errs: map[string]error{
		"SELECT option_value": &sshexec.CommandError{
			Stderr: "ERROR 1146 (42S02) at line 1: Table 'wp_example.wp_options' doesn't exist",
		},
	}}
	got, err := New(fr, zerolog.Nop()).ReadMarker(context.Background(), host, creds)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestVerifyMarkerPrefixFallback(t *testing.T) {
	marker := "20260827T000000Z-abc"

	// The destination prefix finds nothing; the source prefix has it.
	fr := &fakeRunner{outputs: map[string]string{
		"FROM wpdest_options": "",
		"FROM wpsrc_options":  marker,
	}}
	tr := New(fr, zerolog.Nop())

	destCreds := creds
	destCreds.Prefix = "wpdest_"
	ok, prefix, err := tr.VerifyMarker(context.Background(), host2, destCreds, "wpsrc_", marker)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "wpsrc_", prefix)
}

func TestVerifyMarkerMismatch(t *testing.T) {
	fr := &fakeRunner{outputs: map[string]string{"SELECT option_value": "stale-value"}}
	ok, _, err := New(fr, zerolog.Nop()).VerifyMarker(context.Background(), host2, creds, "", "fresh-value")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDirectPipelineFailurePropagates(t *testing.T) {
	fr := &fakeRunner{pipeErr: &sshexec.CommandError{
		Command:  "mysqldump",
		ExitCode: 2,
		Stderr:   "mysqldump: Got error: 1045",
	}}
	err := New(fr, zerolog.Nop()).Direct(context.Background(), host, creds, host2, creds)
	require.Error(t, err)
	require.Len(t, fr.pipes, 1)
	assert.Contains(t, fr.pipes[0][0], "mysqldump")
	assert.Contains(t, fr.pipes[0][0], "--single-transaction")
	assert.Contains(t, fr.pipes[0][1], "mysql -u")
}

func TestStagedCleansUpOnFailure(t *testing.T) {
	fr := &fakeRunner{errs: map[string]error{"scp": errors.New("connection reset")}}
	err := New(fr, zerolog.Nop()).Staged(context.Background(), host, creds, host2, creds)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "staged copy")

	// Temp file removal attempted on both hosts despite the failure.
	var rms int
	for _, c := range fr.commands {
		if strings.HasPrefix(c, "rm -f /tmp/wpshift-") {
			rms++
		}
	}
	assert.Equal(t, 2, rms)
}

func TestStagedDumpUsesPipefail(t *testing.T) {
	fr := &fakeRunner{}
	require.NoError(t, New(fr, zerolog.Nop()).Staged(context.Background(), host, creds, host2, creds))

	var dump string
	for _, c := range fr.commands {
		if strings.Contains(c, "mysqldump") {
			dump = c
			break
		}
	}
	require.NotEmpty(t, dump)
	assert.Contains(t, dump, "set -o pipefail")
	assert.Contains(t, dump, "| gzip >")
}

func TestShQuote(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"plain", "'plain'"},
		{"pa'ss", `'pa'\''ss'`},
		{"a$b`c", "'a$b`c'"},
	}
	for _, tt := range tests {
		if got := shQuote(tt.in); got != tt.want {
			t.Errorf("shQuote(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}
