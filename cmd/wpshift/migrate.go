package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wpshift/wpshift/pkg/dbxfer"
	"github.com/wpshift/wpshift/pkg/directory"
	"github.com/wpshift/wpshift/pkg/filesync"
	"github.com/wpshift/wpshift/pkg/log"
	"github.com/wpshift/wpshift/pkg/migrate"
	"github.com/wpshift/wpshift/pkg/sshexec"
	"github.com/wpshift/wpshift/pkg/state"
	"github.com/wpshift/wpshift/pkg/webroute"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate <domain>",
	Short: "Migrate a WordPress site to a destination server",
	Long: `Migrate a WordPress site from a source server to a destination server.

The source is either a provider profile (--source) or an arbitrary SSH
host described by a seed file (--seed). The destination is always a
provider profile, and the site must already exist there.

Without --step, the full step sequence runs, skipping anything a prior
run already completed. With --step, exactly that step (or group) runs
again, using the facts recorded by earlier steps.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		site := args[0]

		sourceProfile, _ := cmd.Flags().GetString("source")
		destProfile, _ := cmd.Flags().GetString("dest")
		seedPath, _ := cmd.Flags().GetString("seed")
		step, _ := cmd.Flags().GetString("step")

		opts := migrate.Options{
			SourceProfile: sourceProfile,
			DestProfile:   destProfile,
			SeedPath:      seedPath,
			Verbose:       flagVerbose,
		}
		opts.DryRun, _ = cmd.Flags().GetBool("dry-run")
		opts.Relay, _ = cmd.Flags().GetBool("relay")
		opts.StagedDB, _ = cmd.Flags().GetBool("staged-db")
		opts.ForceDB, _ = cmd.Flags().GetBool("force-db")
		opts.SkipDB, _ = cmd.Flags().GetBool("skip-db")
		opts.AssumeYes, _ = cmd.Flags().GetBool("yes")

		if seedPath == "" && sourceProfile == "" && step == "" {
			return fmt.Errorf("either --source <profile> or --seed <file> is required")
		}
		if destProfile == "" {
			return fmt.Errorf("--dest <profile> is required")
		}

		dir, err := dataDir()
		if err != nil {
			return err
		}
		store, err := state.NewStore(dir)
		if err != nil {
			return err
		}

		profiles, cache, err := openDirectory()
		if err != nil {
			return err
		}
		defer cache.Close()

		logger := log.WithSite(site)

		var source *directory.Client
		if sourceProfile != "" {
			p, err := profiles.Profile(sourceProfile)
			if err != nil {
				return err
			}
			source = directory.NewClient(p, cache, logger)
		}
		destP, err := profiles.Profile(destProfile)
		if err != nil {
			return err
		}
		dest := directory.NewClient(destP, cache, logger)

		runner := sshexec.New(store.KnownHostsPath(site), logger)
		mg := migrate.New(site, migrate.Deps{
			Store:    store,
			Runner:   runner,
			Syncer:   filesync.NewSyncer(runner, logger),
			DB:       dbxfer.New(runner, logger),
			Source:   source,
			Dest:     dest,
			Detector: webroute.NewDetector(nil),
			Logger:   logger,
		}, opts)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if step != "" {
			return mg.RunStep(ctx, step)
		}
		return mg.RunAll(ctx)
	},
}

func init() {
	migrateCmd.Flags().String("source", "", "source provider profile")
	migrateCmd.Flags().String("dest", "", "destination provider profile (required)")
	migrateCmd.Flags().String("seed", "", "seed file (JSON or CSV) describing a non-provider source")
	migrateCmd.Flags().String("step", "", "run only this step or step group (e.g. 2.4, or 2 for the whole group)")
	migrateCmd.Flags().Bool("dry-run", false, "report planned actions without mutating either server")
	migrateCmd.Flags().Bool("relay", false, "route the file sync through this machine when the hosts cannot reach each other")
	migrateCmd.Flags().Bool("staged-db", false, "transfer the database via a compressed staging file instead of a live pipe")
	migrateCmd.Flags().Bool("force-db", false, "overwrite a destination database that already carries a migration marker")
	migrateCmd.Flags().Bool("skip-db", false, "keep an already-migrated destination database untouched")
	migrateCmd.Flags().BoolP("yes", "y", false, "assume yes on confirmation prompts")
}

// openDirectory loads the profile configuration and opens the listing
// cache; both live under the data directory.
func openDirectory() (*directory.Config, *directory.Cache, error) {
	pp, err := profilesPath()
	if err != nil {
		return nil, nil, err
	}
	profiles, err := directory.LoadConfig(pp)
	if err != nil {
		return nil, nil, err
	}
	cp, err := cachePath()
	if err != nil {
		return nil, nil, err
	}
	cache, err := directory.OpenCache(cp)
	if err != nil {
		return nil, nil, err
	}
	return profiles, cache, nil
}
