package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/cheynewallace/tabby"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/wpshift/wpshift/pkg/migrate"
	"github.com/wpshift/wpshift/pkg/state"
)

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Inspect and manage migration state",
}

var stateListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all tracked migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		migrations, err := store.List()
		if err != nil {
			return err
		}
		if len(migrations) == 0 {
			fmt.Println("No migrations tracked.")
			return nil
		}

		total := len(migrate.Steps())
		t := tabby.New()
		t.AddHeader("SITE", "SOURCE", "DEST", "PROGRESS", "UPDATED")
		for _, m := range migrations {
			t.AddLine(m.Site, m.SourceProfile, m.DestProfile,
				fmt.Sprintf("%d/%d steps", len(m.CompletedSteps), total),
				humanize.Time(m.LastUpdated))
		}
		t.Print()
		return nil
	},
}

var stateShowCmd = &cobra.Command{
	Use:   "show <domain>",
	Short: "Show the full state document for a site",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		m, err := store.Load(args[0])
		if err != nil {
			return err
		}
		out, err := json.MarshalIndent(m, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	},
}

var stateClearCmd = &cobra.Command{
	Use:   "clear <domain>",
	Short: "Discard a site's migration state",
	Long: `Discard a site's migration state and its recorded host keys.

The next migrate run for the site starts from scratch. The servers
themselves are not touched.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		site := args[0]
		store, err := openStore()
		if err != nil {
			return err
		}
		yes, _ := cmd.Flags().GetBool("yes")
		if !yes && !confirmStdin(fmt.Sprintf("Discard all migration state for %s?", site)) {
			fmt.Println("Aborted.")
			return nil
		}
		if err := store.Clear(site); err != nil {
			return err
		}
		fmt.Printf("State for %s cleared.\n", site)
		return nil
	},
}

var stateFixCmd = &cobra.Command{
	Use:   "fix <domain>",
	Short: "Repair a site's state document",
	Long:  "Remove duplicate completed-step entries left behind by older versions.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		removed, err := store.Deduplicate(args[0])
		if err != nil {
			return err
		}
		if removed == 0 {
			fmt.Println("Nothing to fix.")
			return nil
		}
		fmt.Printf("Removed %d duplicate step entries.\n", removed)
		return nil
	},
}

func init() {
	stateClearCmd.Flags().BoolP("yes", "y", false, "skip the confirmation prompt")
	stateCmd.AddCommand(stateListCmd)
	stateCmd.AddCommand(stateShowCmd)
	stateCmd.AddCommand(stateClearCmd)
	stateCmd.AddCommand(stateFixCmd)
}

func openStore() (*state.Store, error) {
	dir, err := dataDir()
	if err != nil {
		return nil, err
	}
	return state.NewStore(dir)
}

func confirmStdin(prompt string) bool {
	fmt.Fprintf(os.Stderr, "%s [y/N]: ", prompt)
	var line string
	if _, err := fmt.Fscanln(os.Stdin, &line); err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}
