package cmd

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	mboxlib "github.com/emersion/go-mbox"
	"github.com/spf13/cobra"

	"github.com/courtdata/results-ingest/config"
	"github.com/courtdata/results-ingest/mailbox"
	"github.com/courtdata/results-ingest/notify"
	"github.com/courtdata/results-ingest/service"
	"github.com/courtdata/results-ingest/store"
)

var mboxForce bool

// mboxCmd reprocesses an exported mailbox archive offline: it applies the
// same sender/subject selection and attachment extraction as the live
// scanner, then runs the newest matching report through the pipeline.
var mboxCmd = &cobra.Command{
	Use:   "mbox [mbox file]",
	Short: "Ingest the newest result report found in a local mbox archive",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]

		cfg, err := config.LoadOfflineConfig(cmd)
		if err != nil {
			return err
		}
		if cfg.AttachmentFilter == "" {
			return fmt.Errorf("attachment filter must be provided via --attachment or TARGET_FILENAME env var")
		}

		logger, cleanup, err := setupLogger(cfg)
		if err != nil {
			return err
		}
		defer func() {
			_ = cleanup()
		}()
		slog.SetDefault(logger)

		candidates, err := scanArchive(path, cfg)
		if err != nil {
			return err
		}
		if len(candidates) == 0 {
			logger.Info("no matching report mail in archive", "path", path)
			return nil
		}

		selected := candidates[mailbox.PickNewest(candidates)]
		att, err := mailbox.ExtractReport(selected.Raw, cfg.AttachmentFilter)
		if err != nil {
			return err
		}
		if att == nil {
			logger.Info("newest matching mail has no matching attachment", "subject", selected.Subject)
			return nil
		}

		ctx := cmd.Context()
		st, err := store.New(ctx, cfg.DatabaseDSN)
		if err != nil {
			return fmt.Errorf("store.New: %w", err)
		}
		defer func() {
			_ = st.Close()
		}()

		notifier := notify.NewWebhook(cfg.WebhookURL, logger)
		svc := service.New(nil, st, notifier, service.Options{}, logger)
		return svc.Ingest(ctx, att, mboxForce)
	},
}

func init() {
	mboxCmd.Flags().BoolVar(&mboxForce, "force", false, "Replace the dataset even if it would shrink")
	rootCmd.AddCommand(mboxCmd)
}

// scanArchive reads every message of the archive and keeps those matching
// the configured sender and subject filters.
func scanArchive(path string, cfg config.Config) ([]mailbox.Candidate, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open mbox: %w", err)
	}
	defer file.Close()

	var candidates []mailbox.Candidate
	reader := mboxlib.NewReader(file)
	for {
		msgReader, err := reader.NextMessage()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return candidates, nil
			}
			return nil, fmt.Errorf("read mbox message: %w", err)
		}

		raw, err := io.ReadAll(msgReader)
		if err != nil {
			return nil, fmt.Errorf("read mbox message: %w", err)
		}

		cand := mailbox.NewCandidate(raw)
		if !matchesFilters(cand, cfg) {
			continue
		}
		candidates = append(candidates, cand)
	}
}

func matchesFilters(cand mailbox.Candidate, cfg config.Config) bool {
	if cfg.Subject != "" && !strings.Contains(strings.ToLower(cand.Subject), strings.ToLower(cfg.Subject)) {
		return false
	}
	if len(cfg.Senders) == 0 {
		return true
	}
	from := strings.ToLower(cand.From)
	for _, sender := range cfg.Senders {
		if strings.Contains(from, strings.ToLower(sender)) {
			return true
		}
	}
	return false
}
