package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"runtime/debug"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	pflag "github.com/spf13/pflag"

	"github.com/ampship/ampship"
	"github.com/ampship/ampship/internal/cliconfig"
)

const helpDescription = `
Migrate event data between Amplitude projects.

The pipeline has four stages, runnable individually or end to end:
  export    download an Export API archive and unpack it to JSON files
  convert   normalize exported records into the Batch Upload schema
  bundle    partition events into request payloads under the API limits
  upload    POST the payloads with pacing, retries, and resume

Credentials: the source project's API and secret keys authenticate the
export; the destination project's API key rides inside every upload payload.
Configure via file ($HOME/.ampship/config.toml), AMPSHIP_* environment
variables, or flags.
`

var exampleUsage = strings.TrimSpace(`
  ampship export --source-api-key KEY --source-secret-key SECRET --start 20240101T00 --end 20240101T23
  ampship convert && ampship bundle --api-key DEST_KEY && ampship upload
  ampship run --api-key DEST_KEY --source-api-key KEY --source-secret-key SECRET --start 20240101T00 --end 20240101T23
`)

func getVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

func main() {
	cfg := cliconfig.DefaultConfig()
	var cfgPath string

	log := cliconfig.Logger()

	root := &cobra.Command{
		Use:     "ampship",
		Short:   "Migrate event data between Amplitude projects",
		Long:    strings.TrimSpace(helpDescription),
		Example: exampleUsage,
		Version: fmt.Sprintf("%s %s/%s", getVersion(), runtime.GOOS, runtime.GOARCH),
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Load config file first (default $HOME/.ampship/config.toml),
			// then environment, with explicitly set flags winning over both.
			cfgFile := cfgPath
			if cfgFile == "" {
				cfgFile = cliconfig.DefaultConfigPath()
			}

			changed := map[string]bool{}
			cmd.Flags().Visit(func(f *pflag.Flag) { changed[f.Name] = true })

			if cfgFile != "" && cliconfig.FileExists(cfgFile) {
				fc, err := cliconfig.LoadFileConfig(cfgFile)
				if err != nil {
					return fmt.Errorf("load config: %w", err)
				}
				if err := cliconfig.ApplyFileConfig(&cfg, fc, changed); err != nil {
					return err
				}
			}

			if err := cliconfig.ApplyEnvConfig(&cfg, changed); err != nil {
				return err
			}

			if err := cliconfig.SetLogLevel(cfg.LogLevel); err != nil {
				return fmt.Errorf("log level: %w", err)
			}
			log = cliconfig.Logger()

			if err := cfg.Validate(); err != nil {
				return err
			}

			// Log configuration (masking credentials)
			logCfg := cfg
			if len(logCfg.APIKey) > 0 {
				logCfg.APIKey = "*****"
			}
			if len(logCfg.SourceAPIKey) > 0 {
				logCfg.SourceAPIKey = "*****"
			}
			if len(logCfg.SourceSecretKey) > 0 {
				logCfg.SourceSecretKey = "*****"
			}
			log.Debug().Interface("config", logCfg).Msg("configuration")
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&cfgPath, "config", "", "path to config file (default: $HOME/.ampship/config.toml)")
	pf.StringVar(&cfg.APIKey, "api-key", cfg.APIKey, "destination project API key (embedded in upload payloads)")
	pf.StringVar(&cfg.SourceAPIKey, "source-api-key", cfg.SourceAPIKey, "source project API key (Export API auth)")
	pf.StringVar(&cfg.SourceSecretKey, "source-secret-key", cfg.SourceSecretKey, "source project secret key (Export API auth)")
	pf.StringVar(&cfg.Region, "region", cfg.Region, "data residency region: us or eu")
	pf.StringVar(&cfg.ExportDir, "export-dir", cfg.ExportDir, "directory for exported JSON files")
	pf.StringVar(&cfg.ConvertDir, "convert-dir", cfg.ConvertDir, "directory for converted JSON files")
	pf.StringVar(&cfg.RequestsDir, "requests-dir", cfg.RequestsDir, "directory for request payloads and manifest")
	pf.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (trace, debug, info, warn, error)")
	pf.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "serve Prometheus metrics on this address (e.g. :9091)")

	pf.StringVar(&cfg.ExportURL, "export-url", cfg.ExportURL, "override the Export API base URL")
	pf.StringVar(&cfg.UploadURL, "upload-url", cfg.UploadURL, "override the Upload API base URL")
	for _, hidden := range []string{"export-url", "upload-url"} {
		if err := pf.MarkHidden(hidden); err != nil {
			log.Info().Err(err).Str("flag", hidden).Msg("failed to hide flag")
		}
	}

	root.AddCommand(
		newExportCmd(&cfg),
		newConvertCmd(&cfg),
		newBundleCmd(&cfg),
		newUploadCmd(&cfg),
		newRunCmd(&cfg),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		log.Error().Err(err).Msg("ampship")
		os.Exit(1)
	}
}

func newExportCmd(cfg *cliconfig.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Download an Export API archive and unpack it to JSON files",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := ampship.New(*cfg)
			if err != nil {
				return err
			}
			return p.Export(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&cfg.Start, "start", cfg.Start, "range start, YYYYMMDDTHH (e.g. 20240101T00)")
	cmd.Flags().StringVar(&cfg.End, "end", cfg.End, "range end, YYYYMMDDTHH (e.g. 20240101T23)")
	return cmd
}

func newConvertCmd(cfg *cliconfig.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "convert",
		Short: "Normalize exported records into the Batch Upload schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := ampship.New(*cfg)
			if err != nil {
				return err
			}
			return p.Convert(cmd.Context())
		},
	}
	cmd.Flags().BoolVar(&cfg.Watch, "watch", cfg.Watch, "keep converting new export files until interrupted")
	cmd.Flags().BoolVar(&cfg.SetInsertID, "set-insert-id", cfg.SetInsertID, "assign a UUID insert_id to events that lack one")
	return cmd
}

func newBundleCmd(cfg *cliconfig.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bundle",
		Short: "Partition converted events into request payloads under the API limits",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := ampship.New(*cfg)
			if err != nil {
				return err
			}
			return p.Bundle(cmd.Context())
		},
	}
	cmd.Flags().IntVar(&cfg.MaxBatchEvents, "max-batch-events", cfg.MaxBatchEvents, "maximum events per batch")
	cmd.Flags().IntVar(&cfg.MaxBatchBytes, "max-batch-bytes", cfg.MaxBatchBytes, "maximum payload bytes per batch")
	cmd.Flags().BoolVar(&cfg.Scripts, "scripts", cfg.Scripts, "also emit curl scripts (inlines the API key)")
	cmd.Flags().DurationVar(&cfg.UploadDelay, "delay", cfg.UploadDelay, "delay between batches in run_all.sh")
	return cmd
}

func newUploadCmd(cfg *cliconfig.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "upload",
		Short: "POST the bundled payloads with pacing, retries, and resume",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := ampship.New(*cfg)
			if err != nil {
				return err
			}
			return p.Upload(cmd.Context())
		},
	}
	cmd.Flags().DurationVar(&cfg.UploadDelay, "delay", cfg.UploadDelay, "minimum interval between requests")
	cmd.Flags().DurationVar(&cfg.HTTPTimeout, "timeout", cfg.HTTPTimeout, "HTTP timeout per request")
	cmd.Flags().IntVar(&cfg.MaxAttempts, "max-attempts", cfg.MaxAttempts, "attempts per batch before giving up")
	cmd.Flags().BoolVar(&cfg.ForceOversize, "force-oversize", cfg.ForceOversize, "send batches that exceed the byte ceiling anyway")
	return cmd
}

func newRunCmd(cfg *cliconfig.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run export, convert, bundle, and upload in sequence",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := ampship.New(*cfg)
			if err != nil {
				return err
			}
			return p.Run(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&cfg.Start, "start", cfg.Start, "range start, YYYYMMDDTHH")
	cmd.Flags().StringVar(&cfg.End, "end", cfg.End, "range end, YYYYMMDDTHH")
	cmd.Flags().BoolVar(&cfg.SetInsertID, "set-insert-id", cfg.SetInsertID, "assign a UUID insert_id to events that lack one")
	cmd.Flags().IntVar(&cfg.MaxBatchEvents, "max-batch-events", cfg.MaxBatchEvents, "maximum events per batch")
	cmd.Flags().IntVar(&cfg.MaxBatchBytes, "max-batch-bytes", cfg.MaxBatchBytes, "maximum payload bytes per batch")
	cmd.Flags().BoolVar(&cfg.Scripts, "scripts", cfg.Scripts, "also emit curl scripts (inlines the API key)")
	cmd.Flags().DurationVar(&cfg.UploadDelay, "delay", cfg.UploadDelay, "minimum interval between requests")
	cmd.Flags().DurationVar(&cfg.HTTPTimeout, "timeout", cfg.HTTPTimeout, "HTTP timeout per upload request")
	cmd.Flags().IntVar(&cfg.MaxAttempts, "max-attempts", cfg.MaxAttempts, "attempts per batch before giving up")
	cmd.Flags().BoolVar(&cfg.ForceOversize, "force-oversize", cfg.ForceOversize, "send batches that exceed the byte ceiling anyway")
	return cmd
}
