package main

import (
	"fmt"

	"github.com/ethpandaops/avataroor/pkg/dircache"
	"github.com/spf13/cobra"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the local cache of Drive folder ids",
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Forget all cached Drive folder ids",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		store := dircache.NewStore(log, &cfg.DirectoryCache)
		if err := store.Start(cmd.Context()); err != nil {
			return fmt.Errorf("opening directory cache: %w", err)
		}

		defer func() {
			if err := store.Stop(); err != nil {
				log.WithError(err).Warn("Failed to close directory cache")
			}
		}()

		removed, err := store.Clear(cmd.Context())
		if err != nil {
			return err
		}

		log.WithField("entries", removed).Info("Directory cache cleared")

		return nil
	},
}

func init() {
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.AddCommand(cacheClearCmd)
}
