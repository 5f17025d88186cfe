package migrate

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"

	"github.com/wpshift/wpshift/pkg/dbxfer"
	"github.com/wpshift/wpshift/pkg/directory"
	"github.com/wpshift/wpshift/pkg/filesync"
	"github.com/wpshift/wpshift/pkg/sshexec"
	"github.com/wpshift/wpshift/pkg/state"
	"github.com/wpshift/wpshift/pkg/webroute"
)

// Options are the operator's knobs for one run.
type Options struct {
	SourceProfile string
	DestProfile   string
	SeedPath      string

	DryRun    bool
	Relay     bool
	StagedDB  bool
	ForceDB   bool
	SkipDB    bool
	AssumeYes bool
	Verbose   bool
}

// Migrator owns one site migration: the state document, the remote
// execution primitives, and the directory clients for both profiles.
type Migrator struct {
	site   string
	store  *state.Store
	m      *state.Migration
	runner sshexec.Runner
	syncer *filesync.Syncer
	db     *dbxfer.Transfer

	// source is nil when the source is a custom (non-provider) server
	// seeded from a file.
	source *directory.Client
	dest   *directory.Client

	detector *webroute.Detector
	opts     Options
	logger   zerolog.Logger

	// confirm asks the operator a yes/no question. Replaced in tests.
	confirm func(prompt string) bool
}

// Deps are the collaborators a Migrator is assembled from.
type Deps struct {
	Store    *state.Store
	Runner   sshexec.Runner
	Syncer   *filesync.Syncer
	DB       *dbxfer.Transfer
	Source   *directory.Client
	Dest     *directory.Client
	Detector *webroute.Detector
	Logger   zerolog.Logger
	Stdin    io.Reader
}

// New assembles a Migrator for site.
func New(site string, deps Deps, opts Options) *Migrator {
	stdin := deps.Stdin
	if stdin == nil {
		stdin = os.Stdin
	}
	mg := &Migrator{
		site:     site,
		store:    deps.Store,
		runner:   deps.Runner,
		syncer:   deps.Syncer,
		db:       deps.DB,
		source:   deps.Source,
		dest:     deps.Dest,
		detector: deps.Detector,
		opts:     opts,
		logger:   deps.Logger,
	}
	mg.confirm = func(prompt string) bool {
		fmt.Fprintf(os.Stderr, "%s [y/N]: ", prompt)
		line, err := bufio.NewReader(stdin).ReadString('\n')
		if err != nil {
			return false
		}
		answer := strings.ToLower(strings.TrimSpace(line))
		return answer == "y" || answer == "yes"
	}
	return mg
}

// RunAll walks the whole step sequence, resuming past completed steps.
//
// Existing state is never silently discarded: a prior document means the
// operator is asked to resume, and declining aborts with the explicit
// reset command named.
func (mg *Migrator) RunAll(ctx context.Context) error {
	if mg.store.Exists(mg.site) {
		if !mg.opts.AssumeYes && !mg.confirm(fmt.Sprintf("A migration for %s is already in progress. Resume it?", mg.site)) {
			return fmt.Errorf("aborted: migration state for %s already exists (resume, or discard it with `wpshift state clear %s` and start over)",
				mg.site, mg.site)
		}
		m, err := mg.store.Load(mg.site)
		if err != nil {
			return err
		}
		mg.m = m
		mg.logger.Info().
			Int("completed_steps", len(m.CompletedSteps)).
			Msg("resuming migration")
	} else {
		sourceProfile := mg.opts.SourceProfile
		if mg.opts.SeedPath != "" {
			sourceProfile = state.CustomProfile
		}
		m, err := mg.store.Init(mg.site, sourceProfile, mg.opts.DestProfile)
		if err != nil {
			return err
		}
		mg.m = m
		mg.logger.Info().Msg("starting new migration")
	}

	for _, step := range Steps() {
		if mg.m.IsStepComplete(string(step.ID)) {
			mg.skipLog(step)
			continue
		}
		if err := mg.runStep(ctx, step); err != nil {
			return err
		}
	}

	mg.logger.Info().Msg("migration complete")
	return nil
}

// RunStep executes exactly the requested step (or a group's sub-steps),
// regardless of completion status, and does not advance past it. It never
// initializes state: targeting a step without prior context is an error.
func (mg *Migrator) RunStep(ctx context.Context, id string) error {
	m, err := mg.store.Load(mg.site)
	if err != nil {
		return err
	}
	mg.m = m

	steps, err := Find(id)
	if err != nil {
		return err
	}
	for _, step := range steps {
		if err := mg.runStep(ctx, step); err != nil {
			return err
		}
	}
	return nil
}

// runStep executes one step and, on success, durably records completion.
// Failure halts the caller: later steps depend on this one's facts.
func (mg *Migrator) runStep(ctx context.Context, step Step) error {
	logger := mg.logger.With().Str("step", string(step.ID)).Logger()
	logger.Info().Msg(step.Title)

	if err := step.Run(ctx, mg); err != nil {
		logger.Error().Err(err).Msg("step failed")
		return fmt.Errorf("step %s (%s): %w", step.ID, step.Title, err)
	}

	// A rehearsal produced no side effects, so nothing may be recorded as
	// done: the operator's real run must execute every step for real.
	if mg.opts.DryRun {
		logger.Info().Msg("dry-run: step not recorded as complete")
		return nil
	}

	mg.m.MarkStepComplete(string(step.ID))
	if err := mg.store.Save(mg.m); err != nil {
		return err
	}
	logger.Info().Msg("step complete")
	return nil
}

// skipLog reports a skipped step and re-displays what it discovered, so a
// resumed session keeps continuity of visibility.
func (mg *Migrator) skipLog(step Step) {
	event := mg.logger.Info().Str("step", string(step.ID))
	if step.Summary != nil {
		if s := step.Summary(mg); s != "" {
			event = event.Str("discovered", s)
		}
	}
	event.Msg("already complete, skipping: " + step.Title)
}

// need returns a fact's value, or the precondition error naming which
// step produces it.
func need(value, fact string, producedBy StepID) (string, error) {
	if value == "" {
		return "", fmt.Errorf("missing fact %s (run step %s first, or a full run)", fact, producedBy)
	}
	return value, nil
}

// sourceHost builds the SSH endpoint for the source from recorded facts.
// Source and destination can differ in user and port, so parameters are
// always resolved from the side whose IP is being dialed.
func (mg *Migrator) sourceHost() (sshexec.Host, error) {
	f := mg.m.Facts
	ip, err := need(f.SourceIP, "source_ip", StepValidate)
	if err != nil {
		return sshexec.Host{}, err
	}
	user, err := need(f.SourceUser, "source_user", StepValidate)
	if err != nil {
		return sshexec.Host{}, err
	}
	return sshexec.Host{IP: ip, Port: portOrDefault(f.SourcePort), User: user}, nil
}

// destHost builds the SSH endpoint for the destination from recorded
// facts.
func (mg *Migrator) destHost() (sshexec.Host, error) {
	f := mg.m.Facts
	ip, err := need(f.DestIP, "dest_ip", StepValidate)
	if err != nil {
		return sshexec.Host{}, err
	}
	user, err := need(f.DestUser, "dest_user", StepValidate)
	if err != nil {
		return sshexec.Host{}, err
	}
	return sshexec.Host{IP: ip, Port: portOrDefault(f.DestPort), User: user}, nil
}

func portOrDefault(port string) string {
	if port == "" {
		return "22"
	}
	return port
}

// sourceCreds reassembles the source database credentials from facts.
func (mg *Migrator) sourceCreds() (dbxfer.Creds, error) {
	f := mg.m.Facts
	name, err := need(f.SourceDBName, "source_db_name", StepCreds)
	if err != nil {
		return dbxfer.Creds{}, err
	}
	return dbxfer.Creds{Name: name, User: f.SourceDBUser, Pass: f.SourceDBPass, Prefix: f.SourceTablePrefix}, nil
}

// destCreds reassembles the destination database credentials from facts.
func (mg *Migrator) destCreds() (dbxfer.Creds, error) {
	f := mg.m.Facts
	name, err := need(f.DestDBName, "dest_db_name", StepCreds)
	if err != nil {
		return dbxfer.Creds{}, err
	}
	return dbxfer.Creds{Name: name, User: f.DestDBUser, Pass: f.DestDBPass, Prefix: f.DestTablePrefix}, nil
}

// save persists facts mid-step so a crash after expensive discovery work
// does not lose it.
func (mg *Migrator) save() error {
	return mg.store.Save(mg.m)
}
