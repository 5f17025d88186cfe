package migrate

import (
	"context"
	"fmt"
	"strings"
)

// StepID identifies one unit of migration work. IDs are stable: they are
// what operators pass to --step and what the state document records.
type StepID string

const (
	StepValidate   StepID = "1"
	StepAutodetect StepID = "1.1"
	StepRoutes     StepID = "1.2"
	StepConnect    StepID = "1.3"

	// Group 2: database. Ordered by data dependency, not number —
	// credentials (2.5) must be extracted before existence can be
	// checked (2.3).
	GroupDatabase  StepID = "2"
	StepPaths      StepID = "2.2"
	StepCreds      StepID = "2.5"
	StepDBCheck    StepID = "2.3"
	StepDBTransfer StepID = "2.4"

	// Group 3: files.
	GroupFiles    StepID = "3"
	StepAuthKeys  StepID = "3.1"
	StepSyncCheck StepID = "3.2"
	StepFileSync  StepID = "3.3"
	StepSyncAudit StepID = "3.4"

	StepNginx    StepID = "4"
	StepRouting  StepID = "5"
	StepFinalize StepID = "6"
)

// Step is one unit of work: its preconditions are the facts it reads (it
// fails when one is absent), its postconditions are the facts it writes
// plus its completion marker.
type Step struct {
	ID     StepID
	Parent StepID // group this step belongs to, "" for top-level
	Title  string
	Run    func(ctx context.Context, mg *Migrator) error

	// Summary renders the facts this step discovered, shown again when a
	// resumed run skips it so the operator keeps visibility.
	Summary func(mg *Migrator) string
}

// Steps returns the canonical ordered sequence. The order encodes data
// dependencies; it is not sorted numerically.
func Steps() []Step {
	return []Step{
		{ID: StepValidate, Title: "validate input", Run: stepValidate, Summary: summaryValidate},
		{ID: StepAutodetect, Title: "autodetect destination identifiers", Run: stepAutodetect, Summary: summaryAutodetect},
		{ID: StepRoutes, Title: "capture canonical routing", Run: stepRoutes, Summary: summaryRoutes},
		{ID: StepConnect, Title: "validate SSH connectivity", Run: stepConnect, Summary: summaryConnect},

		{ID: StepPaths, Parent: GroupDatabase, Title: "locate site configuration", Run: stepPaths, Summary: summaryPaths},
		{ID: StepCreds, Parent: GroupDatabase, Title: "extract database credentials", Run: stepCreds, Summary: summaryCreds},
		{ID: StepDBCheck, Parent: GroupDatabase, Title: "verify database existence", Run: stepDBCheck, Summary: summaryDBCheck},
		{ID: StepDBTransfer, Parent: GroupDatabase, Title: "transfer database", Run: stepDBTransfer, Summary: summaryDBTransfer},

		{ID: StepAuthKeys, Parent: GroupFiles, Title: "authorize destination key on source", Run: stepAuthKeys, Summary: nil},
		{ID: StepSyncCheck, Parent: GroupFiles, Title: "verify sync connectivity", Run: stepSyncCheck, Summary: summarySyncCheck},
		{ID: StepFileSync, Parent: GroupFiles, Title: "synchronize site files", Run: stepFileSync, Summary: summarySyncCheck},
		{ID: StepSyncAudit, Parent: GroupFiles, Title: "audit file sync", Run: stepSyncAudit, Summary: nil},

		{ID: StepNginx, Title: "migrate nginx configuration", Run: stepNginx, Summary: summaryNginx},
		{ID: StepRouting, Title: "sync routing and SSL", Run: stepRouting, Summary: summaryRouting},
		{ID: StepFinalize, Title: "finalize", Run: stepFinalize, Summary: nil},
	}
}

// Find resolves a --step argument: an exact ID yields that one step, a
// group ID yields its children in declared order.
func Find(id string) ([]Step, error) {
	all := Steps()

	var group []Step
	for _, s := range all {
		if string(s.ID) == id {
			return []Step{s}, nil
		}
		if s.Parent != "" && string(s.Parent) == id {
			group = append(group, s)
		}
	}
	if len(group) > 0 {
		return group, nil
	}

	valid := make([]string, 0, len(all))
	for _, s := range all {
		valid = append(valid, string(s.ID))
	}
	return nil, fmt.Errorf("unknown step %q (valid steps: %s; group ids %s and %s run their sub-steps)",
		id, strings.Join(valid, ", "), GroupDatabase, GroupFiles)
}
