package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/ethpandaops/avataroor/pkg/credential"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// readPassword reads a line from a terminal without echo. Replaced in tests.
var readPassword = term.ReadPassword

var tokenValue string

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Manage the stored Google Drive OAuth token",
}

var tokenSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Store an OAuth access token",
	Long:  `Store an OAuth access token. Without --value the token is read from the terminal without echo.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		store, err := credentialStore(cfg)
		if err != nil {
			return err
		}

		token := tokenValue
		if token == "" {
			token, err = promptToken()
			if err != nil {
				return err
			}
		}

		if err := store.Save(token); err != nil {
			return fmt.Errorf("saving token: %w", err)
		}

		log.WithField("token", credential.Mask(token)).Info("Token stored")

		return nil
	},
}

var tokenClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove the stored OAuth token",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		store, err := credentialStore(cfg)
		if err != nil {
			return err
		}

		if err := store.Delete(); err != nil {
			return fmt.Errorf("removing token: %w", err)
		}

		log.Info("Token removed")

		return nil
	},
}

var tokenShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the stored OAuth token, masked",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		store, err := credentialStore(cfg)
		if err != nil {
			return err
		}

		token, err := store.Load()
		if errors.Is(err, credential.ErrNoToken) {
			fmt.Println("no token stored")

			return nil
		}

		if err != nil {
			return fmt.Errorf("loading token: %w", err)
		}

		fmt.Println(credential.Mask(token))

		return nil
	},
}

func init() {
	rootCmd.AddCommand(tokenCmd)
	tokenCmd.AddCommand(tokenSetCmd, tokenClearCmd, tokenShowCmd)

	tokenSetCmd.Flags().StringVar(&tokenValue, "value", "",
		"Token to store (prompted for when omitted)")
}

func promptToken() (string, error) {
	fmt.Fprint(os.Stderr, "OAuth token: ")

	raw, err := readPassword(int(os.Stdin.Fd()))

	fmt.Fprintln(os.Stderr)

	if err != nil {
		return "", fmt.Errorf("reading token: %w", err)
	}

	token := strings.TrimSpace(string(raw))
	if token == "" {
		return "", errors.New("no token entered")
	}

	return token, nil
}
