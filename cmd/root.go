// Package cmd defines and implements the CLI for the uploader executable.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/adaletdata/uploader/internal/app"
	"github.com/adaletdata/uploader/internal/clock/system"
	"github.com/adaletdata/uploader/internal/config"
	"github.com/adaletdata/uploader/internal/hash/sha256"
	uuidgen "github.com/adaletdata/uploader/internal/id/uuid"
	"github.com/adaletdata/uploader/internal/logging"
	"github.com/adaletdata/uploader/internal/source/yargitay"
	"github.com/adaletdata/uploader/internal/uploader"
)

var (
	cfgFile    string
	fetchTerm  string
	fetchLimit int
)

// newRootCmd creates and configures the root command. The uploader is a
// one-shot tool, so the fetch operation lives on the root command itself.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "uploader --fetch <term> --limit <n>",
		Short: "Fetches Yargıtay decisions and persists them to local or remote storage.",
		Long: `uploader retrieves court decisions matching a search term from the
Yargıtay decision search API and persists them, skipping records that were
already stored. The storage backend is selected with STORAGE_MODE: "local"
writes JSON documents to the filesystem, "remote" indexes metadata in
PostgreSQL with full texts optionally offloaded to a GCS bucket.`,

		SilenceUsage: true,
		RunE:         runFetch,
	}

	cmd.Flags().StringVar(&fetchTerm, "fetch", "", "search term to fetch (required)")
	cmd.Flags().IntVar(&fetchLimit, "limit", 100, "maximum number of records to persist")
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path")
	if err := cmd.MarkFlagRequired("fetch"); err != nil {
		// Only fails for unknown flag names, which is a programming error.
		panic(err)
	}

	cmd.AddCommand(newReadCmd())

	return cmd
}

func runFetch(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logging.InitLogger(cfg.Logging.Development)

	application, err := app.New(cmd.Context(), cfg)
	if err != nil {
		return fmt.Errorf("initialize application services: %w", err)
	}
	defer application.Close()

	source := yargitay.NewSource(
		application.Client,
		sha256.New(),
		system.New(),
		fetchTerm,
		cfg.Source.PageSize,
		application.Logger,
	)
	retry := uploader.NewExponentialRetryPolicy(
		cfg.Pipeline.MaxPutAttempts,
		cfg.BackoffInitial(),
		cfg.BackoffMax(),
	)
	pipeline := uploader.New(
		source,
		application.Store,
		retry,
		application.Publisher,
		system.New(),
		uuidgen.New(),
		uploader.Config{
			FailureThreshold: cfg.Pipeline.FailureThreshold,
			SummaryTopic:     cfg.PubSub.Topic,
		},
		application.Logger,
	)

	result, runErr := pipeline.Run(cmd.Context(), uploader.Query{Term: fetchTerm, Limit: fetchLimit})

	// Counts gathered so far are reported even when the run aborted.
	application.Logger.Info("run summary",
		zap.String("run_id", result.RunID),
		zap.String("term", result.Term),
		zap.String("state", string(result.State)),
		zap.Int("fetched", result.Fetched),
		zap.Int("persisted", result.Persisted),
		zap.Int("skipped_duplicate", result.SkippedDuplicate),
		zap.Int("failed", result.Failed),
	)
	if runErr != nil {
		return fmt.Errorf("run ended in state %s: %w", result.State, runErr)
	}
	return nil
}

// Execute is the main entry point. An interrupt cancels the run context so
// the pipeline can close its backend and report partial counts.
func Execute() {
	logging.InitLogger(true)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		logging.L.Fatal("Command execution failed", zap.Error(err))
	}
}
