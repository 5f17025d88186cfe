package migrate

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wpshift/wpshift/pkg/dbxfer"
	"github.com/wpshift/wpshift/pkg/filesync"
	"github.com/wpshift/wpshift/pkg/sshexec"
	"github.com/wpshift/wpshift/pkg/state"
)

func filesyncForTest(fr *fakeRunner) *filesync.Syncer {
	return filesync.NewSyncer(fr, zerolog.Nop())
}

// fakeRunner records remote commands and answers them from a
// substring-keyed script.
type fakeRunner struct {
	commands []string
	hosts    []string
	outputs  map[string]string
	errs     map[string]error
	piped    [][2]string
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

func (f *fakeRunner) Run(ctx context.Context, host sshexec.Host, command string) error {
	_, err := f.Capture(ctx, host, command)
	return err
}

func (f *fakeRunner) Capture(ctx context.Context, host sshexec.Host, command string) (string, error) {
	f.commands = append(f.commands, command)
	f.hosts = append(f.hosts, host.Addr())
	return f.lookup(command)
}

func (f *fakeRunner) Pipe(ctx context.Context, src sshexec.Host, srcCommand string, dst sshexec.Host, dstCommand string) error {
	f.piped = append(f.piped, [2]string{srcCommand, dstCommand})
	_, err := f.lookup(srcCommand)
	return err
}

func newTestMigrator(t *testing.T, fr *fakeRunner, opts Options) *Migrator {
	t.Helper()
	store, err := state.NewStore(t.TempDir())
	require.NoError(t, err)
	mg := New("example.com", Deps{
		Store:  store,
		Runner: fr,
		DB:     dbxfer.New(fr, zerolog.Nop()),
		Logger: zerolog.Nop(),
	}, opts)
	return mg
}

func TestFindGroupExpansion(t *testing.T) {
	tests := []struct {
		id   string
		want []StepID
	}{
		{"2", []StepID{StepPaths, StepCreds, StepDBCheck, StepDBTransfer}},
		{"3", []StepID{StepAuthKeys, StepSyncCheck, StepFileSync, StepSyncAudit}},
		{"2.4", []StepID{StepDBTransfer}},
		{"1", []StepID{StepValidate}},
		{"6", []StepID{StepFinalize}},
	}
	for _, tc := range tests {
		t.Run(tc.id, func(t *testing.T) {
			steps, err := Find(tc.id)
			require.NoError(t, err)
			got := make([]StepID, 0, len(steps))
			for _, s := range steps {
				got = append(got, s.ID)
			}
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestFindUnknownStep(t *testing.T) {
	_, err := Find("7")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown step "7"`)
	assert.Contains(t, err.Error(), "valid steps")
}

func TestRunStepRequiresExistingState(t *testing.T) {
	fr := &fakeRunner{}
	mg := newTestMigrator(t, fr, Options{})

	err := mg.RunStep(context.Background(), "1.3")
	require.Error(t, err)
	assert.True(t, errors.Is(err, state.ErrNotFound))
	assert.Empty(t, fr.commands, "no remote command may run without state")
}

func TestRunStepDoesNotAdvance(t *testing.T) {
	fr := &fakeRunner{}
	mg := newTestMigrator(t, fr, Options{})

	m, err := mg.store.Init("example.com", "src", "dst")
	require.NoError(t, err)
	m.Facts.SourceIP = "10.0.0.1"
	m.Facts.SourceUser = "alice"
	m.Facts.DestIP = "10.0.0.2"
	m.Facts.DestUser = "bob"
	require.NoError(t, mg.store.Save(m))

	require.NoError(t, mg.RunStep(context.Background(), "1.3"))

	saved, err := mg.store.Load("example.com")
	require.NoError(t, err)
	assert.Equal(t, []string{"1.3"}, saved.CompletedSteps)
}

func TestRunStepReExecutesCompleted(t *testing.T) {
	fr := &fakeRunner{}
	mg := newTestMigrator(t, fr, Options{})

	m, err := mg.store.Init("example.com", "src", "dst")
	require.NoError(t, err)
	m.Facts.SourceIP = "10.0.0.1"
	m.Facts.SourceUser = "alice"
	m.Facts.DestIP = "10.0.0.2"
	m.Facts.DestUser = "bob"
	m.MarkStepComplete("1.3")
	require.NoError(t, mg.store.Save(m))

	require.NoError(t, mg.RunStep(context.Background(), "1.3"))
	assert.Len(t, fr.commands, 2, "targeted step runs even when already complete")

	saved, err := mg.store.Load("example.com")
	require.NoError(t, err)
	assert.Equal(t, []string{"1.3"}, saved.CompletedSteps, "re-run must not duplicate the completion record")
}

func TestRunAllSkipsCompletedSteps(t *testing.T) {
	fr := &fakeRunner{}
	mg := newTestMigrator(t, fr, Options{AssumeYes: true})

	m, err := mg.store.Init("example.com", "src", "dst")
	require.NoError(t, err)
	for _, s := range Steps() {
		m.MarkStepComplete(string(s.ID))
	}
	require.NoError(t, mg.store.Save(m))

	require.NoError(t, mg.RunAll(context.Background()))
	assert.Empty(t, fr.commands, "completed steps must not re-execute")
}

func TestRunAllResumesPastCompleted(t *testing.T) {
	fr := &fakeRunner{errs: map[string]error{"rsync": errors.New("stop here")}}
	mg := newTestMigrator(t, fr, Options{AssumeYes: true})

	// Everything before the sync probe is done; the run must pick up at
	// 3.2 without re-executing any earlier step.
	m, err := mg.store.Init("example.com", "src", "dst")
	require.NoError(t, err)
	for _, id := range []StepID{StepValidate, StepAutodetect, StepRoutes, StepConnect,
		StepPaths, StepCreds, StepDBCheck, StepDBTransfer, StepAuthKeys} {
		m.MarkStepComplete(string(id))
	}
	m.Facts.SourceIP = "10.0.0.1"
	m.Facts.SourceUser = "alice"
	m.Facts.DestIP = "10.0.0.2"
	m.Facts.DestUser = "bob"
	m.Facts.SourceWebRoot = "/var/www/example.com/htdocs"
	m.Facts.DestWebRoot = "/var/www/example.com/htdocs"
	require.NoError(t, mg.store.Save(m))

	mg.syncer = filesyncForTest(fr)
	err = mg.RunAll(context.Background())
	require.Error(t, err, "scripted rsync failure stops the run at 3.3")
	assert.Contains(t, err.Error(), "step 3.3")

	for _, c := range fr.commands {
		assert.NotContains(t, c, "echo connected", "completed step 1.3 must not re-execute")
		assert.NotContains(t, c, "wp-config.php", "completed step 2.2 must not re-execute")
	}

	saved, err := mg.store.Load("example.com")
	require.NoError(t, err)
	assert.True(t, saved.IsStepComplete("3.2"), "resumed run executes and records 3.2")
	assert.False(t, saved.IsStepComplete("3.3"))
}

func TestStepPreconditionNamesMissingFact(t *testing.T) {
	fr := &fakeRunner{}
	mg := newTestMigrator(t, fr, Options{})

	m, err := mg.store.Init("example.com", "src", "dst")
	require.NoError(t, err)
	m.Facts.SourceIP = "10.0.0.1"
	m.Facts.SourceUser = "alice"
	m.Facts.DestIP = "10.0.0.2"
	m.Facts.DestUser = "bob"
	require.NoError(t, mg.store.Save(m))

	mg.syncer = filesyncForTest(fr)
	err = mg.RunStep(context.Background(), "3.3")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "source_web_root")
	assert.Contains(t, err.Error(), "run step 2.2")
	assert.Empty(t, fr.commands, "precondition failure must not reach the network")
}

func TestRunAllDeclinedResumeAborts(t *testing.T) {
	fr := &fakeRunner{}
	mg := newTestMigrator(t, fr, Options{})

	_, err := mg.store.Init("example.com", "src", "dst")
	require.NoError(t, err)

	mg.confirm = func(string) bool { return false }
	err = mg.RunAll(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "wpshift state clear example.com")
	assert.Empty(t, fr.commands)
}

func TestStepErrorNamesStep(t *testing.T) {
	fr := &fakeRunner{errs: map[string]error{"echo connected": errors.New("connection refused")}}
	mg := newTestMigrator(t, fr, Options{})

	m, err := mg.store.Init("example.com", "src", "dst")
	require.NoError(t, err)
	m.Facts.SourceIP = "10.0.0.1"
	m.Facts.SourceUser = "alice"
	m.Facts.DestIP = "10.0.0.2"
	m.Facts.DestUser = "bob"
	require.NoError(t, mg.store.Save(m))

	err = mg.RunStep(context.Background(), "1.3")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "step 1.3")

	saved, err := mg.store.Load("example.com")
	require.NoError(t, err)
	assert.Empty(t, saved.CompletedSteps, "failed step must not be recorded complete")
}

func TestNeedNamesProducingStep(t *testing.T) {
	_, err := need("", "source_db_name", StepCreds)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "source_db_name")
	assert.Contains(t, err.Error(), "run step 2.5")

	v, err := need("wp_src", "source_db_name", StepCreds)
	require.NoError(t, err)
	assert.Equal(t, "wp_src", v)
}

func seedDBFacts(t *testing.T, mg *Migrator) {
	t.Helper()
	m, err := mg.store.Init("example.com", "custom", "dst")
	require.NoError(t, err)
	m.Facts.SourceIP = "10.0.0.1"
	m.Facts.SourceUser = "alice"
	m.Facts.DestIP = "10.0.0.2"
	m.Facts.DestUser = "bob"
	m.Facts.SourceDBName = "wp_src"
	m.Facts.SourceDBUser = "src"
	m.Facts.SourceDBPass = "s3cret"
	m.Facts.SourceTablePrefix = "wp_"
	m.Facts.DestDBName = "wp_dst"
	m.Facts.DestDBUser = "dst"
	m.Facts.DestDBPass = "s3cret"
	m.Facts.DestTablePrefix = "wp_"
	require.NoError(t, mg.store.Save(m))
	mg.m = m
}

func TestDBTransferGuardAborts(t *testing.T) {
	fr := &fakeRunner{outputs: map[string]string{"wpshift_migration_id": "2026-01-01T00:00:00Z-abc"}}
	mg := newTestMigrator(t, fr, Options{})
	seedDBFacts(t, mg)

	err := stepDBTransfer(context.Background(), mg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--force-db")
	assert.Contains(t, err.Error(), "--skip-db")
	assert.Empty(t, fr.piped, "guarded transfer must not dump anything")
}

func TestDBTransferGuardSkip(t *testing.T) {
	fr := &fakeRunner{outputs: map[string]string{"wpshift_migration_id": "2026-01-01T00:00:00Z-abc"}}
	mg := newTestMigrator(t, fr, Options{SkipDB: true})
	seedDBFacts(t, mg)

	require.NoError(t, stepDBTransfer(context.Background(), mg))
	assert.Empty(t, fr.piped)
}

func TestDBTransferGuardForce(t *testing.T) {
	fr := &fakeRunner{outputs: map[string]string{"SELECT option_value": "2026-01-01T00:00:00Z-abc"}}
	mg := newTestMigrator(t, fr, Options{ForceDB: true})
	seedDBFacts(t, mg)

	require.NoError(t, stepDBTransfer(context.Background(), mg))
	require.Len(t, fr.piped, 1, "forced transfer proceeds")
	assert.Contains(t, fr.piped[0][0], "mysqldump")
	assert.NotEmpty(t, mg.m.Facts.MarkerID)
}

func TestDBTransferDryRunMutatesNothing(t *testing.T) {
	fr := &fakeRunner{}
	mg := newTestMigrator(t, fr, Options{DryRun: true})
	seedDBFacts(t, mg)

	require.NoError(t, stepDBTransfer(context.Background(), mg))
	assert.Empty(t, fr.piped, "dry-run must not transfer")
	assert.Empty(t, mg.m.Facts.MarkerID, "no marker was planted, so none may be recorded")
	for _, c := range fr.commands {
		assert.NotContains(t, c, "INSERT", "dry-run must not plant the marker")
	}
}

func TestDryRunNotRecordedAsComplete(t *testing.T) {
	fr := &fakeRunner{}
	mg := newTestMigrator(t, fr, Options{DryRun: true})
	seedDBFacts(t, mg)

	require.NoError(t, mg.RunStep(context.Background(), "2.4"))
	assert.Empty(t, fr.piped, "dry-run must not transfer")

	// A later real run must execute the step for real: the rehearsal may
	// not leave a durable completion record behind.
	saved, err := mg.store.Load("example.com")
	require.NoError(t, err)
	assert.False(t, saved.IsStepComplete("2.4"), "dry-run must not durably mark the transfer complete")
	assert.Empty(t, saved.Facts.MarkerID)
}

func TestRunAllDryRunLeavesCompletionUnchanged(t *testing.T) {
	fr := &fakeRunner{}
	mg := newTestMigrator(t, fr, Options{DryRun: true, AssumeYes: true})

	m, err := mg.store.Init("example.com", "src", "dst")
	require.NoError(t, err)
	var before []string
	for _, s := range Steps() {
		if s.ID != StepConnect {
			m.MarkStepComplete(string(s.ID))
			before = append(before, string(s.ID))
		}
	}
	m.Facts.SourceIP = "10.0.0.1"
	m.Facts.SourceUser = "alice"
	m.Facts.DestIP = "10.0.0.2"
	m.Facts.DestUser = "bob"
	require.NoError(t, mg.store.Save(m))

	require.NoError(t, mg.RunAll(context.Background()))

	saved, err := mg.store.Load("example.com")
	require.NoError(t, err)
	assert.Equal(t, before, saved.CompletedSteps, "the rehearsed step must stay pending")
}
