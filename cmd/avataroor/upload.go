package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/ethpandaops/avataroor/pkg/config"
	"github.com/ethpandaops/avataroor/pkg/credential"
	"github.com/ethpandaops/avataroor/pkg/dircache"
	"github.com/ethpandaops/avataroor/pkg/drive"
	"github.com/ethpandaops/avataroor/pkg/progress"
	"github.com/ethpandaops/avataroor/pkg/upload"
	"github.com/spf13/cobra"
)

// tokenEnv overrides the stored token.
const tokenEnv = "AVATAROOR_TOKEN"

var (
	avatarName  string
	uploadToken string
	bundleDir   string
)

var uploadCmd = &cobra.Command{
	Use:   "upload",
	Short: "Upload the local avatar bundle to Google Drive",
	Long: `Find the avatar bundle in the configured bundle directory and upload it to
BasisVr/Avatars/<name>.BEE on Google Drive, replacing an earlier upload of the
same avatar. Press Ctrl+C to cancel a running upload.`,
	RunE: runUpload,
}

func init() {
	rootCmd.AddCommand(uploadCmd)
	uploadCmd.Flags().StringVar(&avatarName, "name", "",
		"Avatar name, used as the remote file name")
	uploadCmd.Flags().StringVar(&uploadToken, "token", "",
		"OAuth access token (overrides "+tokenEnv+" and the stored token)")
	uploadCmd.Flags().StringVar(&bundleDir, "bundle-dir", "",
		"Directory holding the built bundle (overrides bundle.directory)")

	_ = uploadCmd.MarkFlagRequired("name")
}

func runUpload(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if bundleDir != "" {
		cfg.Bundle.Directory = bundleDir
	}

	token, err := resolveToken(cfg, uploadToken)
	if err != nil {
		return err
	}

	chunkSize, err := cfg.Drive.ChunkSizeBytes()
	if err != nil {
		return fmt.Errorf("drive.chunk_size: %w", err)
	}

	interval, err := cfg.Progress.IntervalDuration()
	if err != nil {
		return fmt.Errorf("progress.interval: %w", err)
	}

	// Setup context with signal handling.
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		select {
		case sig := <-sigCh:
			log.WithField("signal", sig).Info("Received signal, cancelling upload")
			cancel()
		case <-ctx.Done():
		}
	}()

	opts := []upload.Option{
		upload.WithReporter(progress.NewReporter(log, interval)),
		upload.WithResultHandler(&resultPrinter{}),
		upload.WithChunkSize(chunkSize),
	}

	if cfg.DirectoryCache.Enabled {
		store := dircache.NewStore(log, &cfg.DirectoryCache)
		if err := store.Start(ctx); err != nil {
			log.WithError(err).Warn("Directory cache unavailable, resolving without it")
		} else {
			defer func() {
				if err := store.Stop(); err != nil {
					log.WithError(err).Warn("Failed to close directory cache")
				}
			}()

			opts = append(opts, upload.WithDirectoryResolver(
				drive.NewCachedResolver(log, store, drive.NewResolver(log)),
			))
		}
	}

	orchestrator := upload.NewOrchestrator(log, &cfg.Bundle, clientFactory(&cfg.Drive), opts...)

	out := orchestrator.Upload(ctx, upload.Request{
		Token:      token,
		AvatarName: avatarName,
	})

	switch out.State {
	case upload.StateSucceeded, upload.StateCancelled:
		return nil
	default:
		return fmt.Errorf("uploading avatar %q: %w", avatarName, out.Err)
	}
}

// resolveToken picks the token from the flag, the environment, then the
// credential store. A missing token is left for the uploader to reject.
func resolveToken(cfg *config.Config, flagValue string) (string, error) {
	if token := strings.TrimSpace(flagValue); token != "" {
		return token, nil
	}

	if token := strings.TrimSpace(os.Getenv(tokenEnv)); token != "" {
		return token, nil
	}

	store, err := credentialStore(cfg)
	if err != nil {
		return "", err
	}

	token, err := store.Load()
	if errors.Is(err, credential.ErrNoToken) {
		return "", nil
	}

	if err != nil {
		return "", fmt.Errorf("loading stored token: %w", err)
	}

	return token, nil
}

func clientFactory(cfg *config.DriveConfig) upload.ClientFactory {
	return func(ctx context.Context, token string) (drive.Client, error) {
		return drive.NewClient(ctx, cfg, token)
	}
}

// resultPrinter prints the public download link of a finished upload.
type resultPrinter struct{}

func (resultPrinter) Succeeded(avatarName, fileID string) {
	fmt.Printf("%s uploaded: %s\n", drive.FileName(avatarName), drive.DownloadURL(fileID))
}
