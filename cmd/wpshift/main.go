package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/wpshift/wpshift/pkg/log"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

var (
	flagDataDir string
	flagVerbose bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "wpshift",
	Short: "wpshift - WordPress site migration orchestrator",
	Long: `wpshift migrates WordPress sites between servers as a sequence of
resumable steps: discovery, database transfer, file sync, web server
configuration and routing cutover. Progress is recorded after every
step, so an interrupted migration picks up where it left off.`,
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		dir, err := dataDir()
		if err != nil {
			return err
		}
		level := log.InfoLevel
		if flagVerbose {
			level = log.DebugLevel
		}
		return log.Init(log.Config{Level: level, LogDir: filepath.Join(dir, "logs")})
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		log.Close()
	},
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"wpshift version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().StringVar(&flagDataDir, "data-dir", "",
		"directory for state, caches and logs (default ~/.wpshift)")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false,
		"enable debug logging and remote diagnostics")

	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(stateCmd)
	rootCmd.AddCommand(cacheCmd)
	rootCmd.AddCommand(reportCmd)
}

// dataDir resolves the working directory for everything wpshift persists,
// creating it if needed.
func dataDir() (string, error) {
	dir := flagDataDir
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("cannot determine home directory: %w (pass --data-dir)", err)
		}
		dir = filepath.Join(home, ".wpshift")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("failed to create data directory: %w", err)
	}
	return dir, nil
}

// profilesPath is where directory-service profiles are configured.
func profilesPath() (string, error) {
	dir, err := dataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "profiles.yml"), nil
}

// cachePath is the bbolt database holding cached directory listings.
func cachePath() (string, error) {
	dir, err := dataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "directory.db"), nil
}
