package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/courtdata/results-ingest/config"
	"github.com/courtdata/results-ingest/model"
	"github.com/courtdata/results-ingest/notify"
	"github.com/courtdata/results-ingest/service"
	"github.com/courtdata/results-ingest/store"
)

var ingestForce bool

// ingestCmd feeds a report CSV from disk through the same validation and
// gate path as the mailbox pipeline. --force overrides the shrink guard for
// deliberate corrections.
var ingestCmd = &cobra.Command{
	Use:   "ingest [csv file]",
	Short: "Ingest a result report CSV from disk",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]

		cfg, err := config.LoadOfflineConfig(cmd)
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

		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read report: %w", err)
		}

		ctx := cmd.Context()
		st, err := store.New(ctx, cfg.DatabaseDSN)
		if err != nil {
			return fmt.Errorf("store.New: %w", err)
		}
		defer func() {
			_ = st.Close()
		}()

		att := &model.Attachment{
			Filename: filepath.Base(path),
			Subject:  fmt.Sprintf("Manual ingest of %s", filepath.Base(path)),
			Date:     time.Now(),
			Data:     data,
		}

		notifier := notify.NewWebhook(cfg.WebhookURL, logger)
		svc := service.New(nil, st, notifier, service.Options{}, logger)
		return svc.Ingest(ctx, att, ingestForce)
	},
}

func init() {
	ingestCmd.Flags().BoolVar(&ingestForce, "force", false, "Replace the dataset even if it would shrink")
	rootCmd.AddCommand(ingestCmd)
}
