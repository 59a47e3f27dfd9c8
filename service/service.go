// Package service drives the ingestion pipeline: each cycle scans the
// mailbox, validates the report, runs the reconciliation gate and emits an
// outcome notification. A failed cycle never terminates the loop.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/courtdata/results-ingest/gate"
	"github.com/courtdata/results-ingest/ingest"
	"github.com/courtdata/results-ingest/model"
	"github.com/courtdata/results-ingest/notify"
)

// maxReportedDiagnostics caps how many row diagnostics a notification
// carries; the rest collapse into an overflow counter.
const maxReportedDiagnostics = 10

// Scanner produces the newest unread report attachment, or nil when the
// mailbox has nothing new.
type Scanner interface {
	Scan(ctx context.Context) (*model.Attachment, error)
}

// Store is the league store as the service consumes it.
type Store interface {
	Divisions(ctx context.Context) ([]model.Division, error)
	Teams(ctx context.Context) ([]model.Team, error)
	CountMatches(ctx context.Context) (int, error)
	ReplaceMatches(ctx context.Context, matches []model.Match) error
}

// Notifier delivers outcome summaries. Implementations must not propagate
// delivery failures.
type Notifier interface {
	Send(ctx context.Context, outcome notify.Outcome)
}

type Options struct {
	Interval time.Duration
	Once     bool
}

type Service struct {
	scanner  Scanner
	store    Store
	notifier Notifier
	gate     *gate.Gate
	opts     Options
	logger   *slog.Logger
}

// New builds a Service. scanner may be nil for offline use where callers
// invoke Ingest directly instead of Run.
func New(scanner Scanner, store Store, notifier Notifier, opts Options, logger *slog.Logger) *Service {
	return &Service{
		scanner:  scanner,
		store:    store,
		notifier: notifier,
		gate:     gate.New(store, logger),
		opts:     opts,
		logger:   logger,
	}
}

// Run executes one cycle immediately, then keeps polling at the configured
// interval until the context is cancelled. In once mode it returns after
// the first cycle.
func (s *Service) Run(ctx context.Context) error {
	s.logger.Info("starting ingestion service", "interval", s.opts.Interval, "once", s.opts.Once)

	s.cycle(ctx)
	if s.opts.Once {
		return nil
	}

	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("ingestion service stopping")
			return ctx.Err()
		case <-ticker.C:
			s.cycle(ctx)
		}
	}
}

// cycle is the containment boundary: any error or panic inside is logged,
// reported as a service error, and swallowed so the next cycle still runs.
func (s *Service) cycle(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("panic in cycle: %v", r)
			s.logger.Error("cycle panicked", "err", err)
			s.reportError(ctx, err)
		}
	}()

	s.logger.Info("checking for report mail")

	att, err := s.scanner.Scan(ctx)
	if err != nil {
		s.logger.Error("mailbox scan failed", "err", err)
		s.reportError(ctx, err)
		return
	}
	if att == nil {
		s.logger.Info("no new report mail")
		return
	}

	if err := s.Ingest(ctx, att, false); err != nil {
		s.logger.Error("ingestion failed", "err", err)
		s.reportError(ctx, err)
	}
}

// Ingest validates the attachment and reconciles it into the store. Gate
// rejections and empty reports are business outcomes, notified as skips and
// returned as nil; only connectivity failures surface as errors.
func (s *Service) Ingest(ctx context.Context, att *model.Attachment, force bool) error {
	s.logger.Info("processing report", "filename", att.Filename, "subject", att.Subject, "date", att.Date)

	divisions, err := s.store.Divisions(ctx)
	if err != nil {
		return err
	}
	teams, err := s.store.Teams(ctx)
	if err != nil {
		return err
	}

	validator := ingest.NewValidator(divisions, teams, s.logger)
	matches, diagnostics := validator.Validate(att.Data)
	for _, d := range diagnostics {
		s.logger.Warn("report row rejected", "row", d.Row, "reason", d.Message)
	}

	if len(matches) == 0 {
		count, err := s.store.CountMatches(ctx)
		if err != nil {
			return err
		}
		s.logger.Warn("report has no valid rows, skipping", "current", count)
		s.notify(ctx, skipOutcome(att, "Report contained no valid match rows.", count, 0, diagnostics))
		return nil
	}

	replaced, priorCount, err := s.gate.Reconcile(ctx, matches, force)
	if err != nil {
		return err
	}
	if !replaced {
		s.notify(ctx, skipOutcome(att,
			fmt.Sprintf("Replacement would shrink the dataset from %d to %d rows.", priorCount, len(matches)),
			priorCount, len(matches), diagnostics))
		return nil
	}

	s.logger.Info("ingestion complete", "previous", priorCount, "inserted", len(matches))
	s.notify(ctx, notify.Outcome{
		Title:       "Ingestion complete",
		Description: fmt.Sprintf("Replaced %d matches with %d.", priorCount, len(matches)),
		Success:     true,
		Fields:      summaryFields(att, priorCount, len(matches), diagnostics),
		Timestamp:   time.Now(),
	})
	return nil
}

func (s *Service) reportError(ctx context.Context, err error) {
	s.notify(ctx, notify.Outcome{
		Title:       "Service error",
		Description: err.Error(),
		Success:     false,
		Timestamp:   time.Now(),
	})
}

func (s *Service) notify(ctx context.Context, outcome notify.Outcome) {
	if s.notifier != nil {
		s.notifier.Send(ctx, outcome)
	}
}

func skipOutcome(att *model.Attachment, reason string, priorCount, newCount int, diagnostics []ingest.Diagnostic) notify.Outcome {
	return notify.Outcome{
		Title:       "Ingestion skipped",
		Description: reason,
		Success:     false,
		Fields:      summaryFields(att, priorCount, newCount, diagnostics),
		Timestamp:   time.Now(),
	}
}

func summaryFields(att *model.Attachment, priorCount, newCount int, diagnostics []ingest.Diagnostic) []notify.Field {
	fields := []notify.Field{
		{Name: "Subject", Value: att.Subject, Inline: false},
		{Name: "Email date", Value: att.Date.Format("02 Jan 2006 15:04"), Inline: true},
		{Name: "Previous rows", Value: strconv.Itoa(priorCount), Inline: true},
		{Name: "New rows", Value: strconv.Itoa(newCount), Inline: true},
	}

	if len(diagnostics) > 0 {
		var b strings.Builder
		for i, d := range diagnostics {
			if i == maxReportedDiagnostics {
				fmt.Fprintf(&b, "(+%d more)", len(diagnostics)-maxReportedDiagnostics)
				break
			}
			if i > 0 {
				b.WriteByte('\n')
			}
			b.WriteString(d.String())
		}
		fields = append(fields, notify.Field{Name: "Diagnostics", Value: b.String()})
	}

	return fields
}
