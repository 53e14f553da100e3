package main

import (
	"fmt"

	"github.com/ethpandaops/avataroor/pkg/upload"
	"github.com/spf13/cobra"
)

var checkToken string

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Verify the Google Drive credential",
	Long:  `Call the Drive about endpoint with the configured token to verify it before uploading.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		token, err := resolveToken(cfg, checkToken)
		if err != nil {
			return err
		}

		orchestrator := upload.NewOrchestrator(log, &cfg.Bundle, clientFactory(&cfg.Drive))

		if err := orchestrator.Preflight(cmd.Context(), token); err != nil {
			return fmt.Errorf("checking credential: %w", err)
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(checkCmd)
	checkCmd.Flags().StringVar(&checkToken, "token", "",
		"OAuth access token (overrides "+tokenEnv+" and the stored token)")
}
