package main

import (
	"fmt"
	"sort"

	"github.com/cheynewallace/tabby"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/wpshift/wpshift/pkg/migrate"
)

var reportCmd = &cobra.Command{
	Use:   "report <domain>",
	Short: "Summarize a migration's progress and discovered facts",
	Long: `Print a read-only summary of a migration: which steps completed,
which remain, and everything discovery has recorded about the site.
Secrets are redacted.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		m, err := store.Load(args[0])
		if err != nil {
			return err
		}

		fmt.Printf("Migration: %s (%s -> %s)\n", m.Site, m.SourceProfile, m.DestProfile)
		fmt.Printf("Started:   %s\n", humanize.Time(m.Started))
		fmt.Printf("Updated:   %s\n\n", humanize.Time(m.LastUpdated))

		t := tabby.New()
		t.AddHeader("STEP", "TITLE", "STATUS")
		for _, s := range migrate.Steps() {
			status := "pending"
			if m.IsStepComplete(string(s.ID)) {
				status = "done"
			}
			t.AddLine(string(s.ID), s.Title, status)
		}
		t.Print()

		f := m.Facts
		facts := map[string]string{
			"source":             fmt.Sprintf("%s@%s:%s", f.SourceUser, f.SourceIP, f.SourcePort),
			"destination":        fmt.Sprintf("%s@%s:%s", f.DestUser, f.DestIP, f.DestPort),
			"source web root":    f.SourceWebRoot,
			"dest web root":      f.DestWebRoot,
			"source database":    f.SourceDBName,
			"dest database":      f.DestDBName,
			"table prefix":       f.SourceTablePrefix,
			"canonical route":    f.Route,
			"source ssl":         f.SourceSSL,
			"sync mode":          f.SyncMode,
			"nginx fragments":    f.NginxIncludes,
			"migration marker":   f.MarkerID,
			"verification check": verificationCheck(m.Site, f.Route, m.IsStepComplete(string(migrate.StepFinalize))),
		}

		fmt.Println()
		ft := tabby.New()
		ft.AddHeader("FACT", "VALUE")
		for _, k := range sortedKeys(facts) {
			if v := facts[k]; v != "" && v != "@:" {
				ft.AddLine(k, v)
			}
		}
		ft.Print()
		return nil
	},
}

func verificationCheck(site, route string, finalized bool) string {
	if !finalized {
		return ""
	}
	return migrate.VerificationURL(site, route)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
