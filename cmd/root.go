package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/courtdata/results-ingest/config"
	"github.com/courtdata/results-ingest/mailbox"
	"github.com/courtdata/results-ingest/notify"
	"github.com/courtdata/results-ingest/service"
	"github.com/courtdata/results-ingest/store"
)

var rootCmd = &cobra.Command{
	Use:   "results-ingest",
	Short: "Poll a mailbox for league result reports and reconcile them into the store",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig(cmd)
		if err != nil {
			return err
		}

		logger, cleanup, err := setupLogger(cfg)
		if err != nil {
			return err
		}
		defer func() {
			_ = cleanup()
		}()
		slog.SetDefault(logger)

		scanner, err := mailbox.NewScanner(mailbox.Options{
			Host:               cfg.IMAPHost,
			Port:               cfg.IMAPPort,
			Username:           cfg.IMAPUser,
			Password:           cfg.IMAPPass,
			InsecureSkipVerify: cfg.InsecureSkipVerify,
			Senders:            cfg.Senders,
			Subject:            cfg.Subject,
			AttachmentFilter:   cfg.AttachmentFilter,
		}, logger)
		if err != nil {
			return fmt.Errorf("mailbox.NewScanner: %w", err)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		st, err := store.New(ctx, cfg.DatabaseDSN)
		if err != nil {
			return fmt.Errorf("store.New: %w", err)
		}
		defer func() {
			_ = st.Close()
		}()

		notifier := notify.NewWebhook(cfg.WebhookURL, logger)

		svc := service.New(scanner, st, notifier, service.Options{
			Interval: cfg.Interval,
			Once:     cfg.Once,
		}, logger)

		if err := svc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}

func init() {
	config.RegisterFlags(rootCmd)
}

// Execute runs the CLI and exits nonzero on any startup or command error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
