package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wpshift/wpshift/pkg/directory"
	"github.com/wpshift/wpshift/pkg/log"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage cached directory listings",
	Long: `Manage the local cache of directory-service listings.

Lookups during a migration read only from this cache; refresh it before
starting a migration so site, server and domain listings are current.`,
}

var cacheRefreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Fetch fresh listings for a profile",
	RunE: func(cmd *cobra.Command, args []string) error {
		profile, _ := cmd.Flags().GetString("profile")
		if profile == "" {
			return fmt.Errorf("--profile is required")
		}

		profiles, cache, err := openDirectory()
		if err != nil {
			return err
		}
		defer cache.Close()

		p, err := profiles.Profile(profile)
		if err != nil {
			return err
		}
		client := directory.NewClient(p, cache, log.WithComponent("directory"))
		if err := client.Refresh(cmd.Context()); err != nil {
			return err
		}
		fmt.Printf("Cache refreshed for profile %s.\n", profile)
		return nil
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Drop cached listings for a profile",
	RunE: func(cmd *cobra.Command, args []string) error {
		profile, _ := cmd.Flags().GetString("profile")
		if profile == "" {
			return fmt.Errorf("--profile is required")
		}

		cp, err := cachePath()
		if err != nil {
			return err
		}
		cache, err := directory.OpenCache(cp)
		if err != nil {
			return err
		}
		defer cache.Close()

		if err := cache.ClearProfile(profile); err != nil {
			return err
		}
		fmt.Printf("Cache cleared for profile %s.\n", profile)
		return nil
	},
}

func init() {
	cacheRefreshCmd.Flags().String("profile", "", "provider profile to refresh (required)")
	cacheClearCmd.Flags().String("profile", "", "provider profile to clear (required)")
	cacheCmd.AddCommand(cacheRefreshCmd)
	cacheCmd.AddCommand(cacheClearCmd)
}
