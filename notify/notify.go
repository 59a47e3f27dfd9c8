// Package notify posts cycle outcomes to a webhook endpoint. Delivery is
// fire-and-forget: a failed notification is logged and never affects the
// cycle's primary outcome.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

const (
	colorSuccess = 0x2ECC71
	colorFailure = 0xE74C3C
)

// Field is one ordered key-value pair of an outcome summary.
type Field struct {
	Name   string
	Value  string
	Inline bool
}

// Outcome is the structured summary of one ingestion cycle.
type Outcome struct {
	Title       string
	Description string
	Success     bool
	Fields      []Field
	Timestamp   time.Time
}

// Webhook delivers outcomes as Discord-compatible embeds. A Webhook with an
// empty endpoint is a no-op, so callers never need to branch on whether
// notifications are configured.
type Webhook struct {
	endpoint string
	client   *http.Client
	logger   *slog.Logger
}

func NewWebhook(endpoint string, logger *slog.Logger) *Webhook {
	return &Webhook{
		endpoint: endpoint,
		client:   http.DefaultClient,
		logger:   logger,
	}
}

// Send posts the outcome. Errors are logged, not returned.
func (w *Webhook) Send(ctx context.Context, outcome Outcome) {
	if w.endpoint == "" {
		return
	}

	body, err := json.Marshal(buildPayload(outcome))
	if err != nil {
		w.logf("encode notification: %v", err)
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.endpoint, bytes.NewReader(body))
	if err != nil {
		w.logf("build notification request: %v", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		w.logf("post notification: %v", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		w.logf("notification rejected: %s", resp.Status)
		return
	}

	if w.logger != nil {
		w.logger.Debug("notification sent", "title", outcome.Title, "success", outcome.Success)
	}
}

func (w *Webhook) logf(format string, args ...any) {
	if w.logger != nil {
		w.logger.Warn(fmt.Sprintf(format, args...))
	}
}

type payload struct {
	Embeds []embed `json:"embeds"`
}

type embed struct {
	Title       string       `json:"title"`
	Description string       `json:"description,omitempty"`
	Color       int          `json:"color"`
	Fields      []embedField `json:"fields,omitempty"`
	Timestamp   string       `json:"timestamp,omitempty"`
}

type embedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

func buildPayload(outcome Outcome) payload {
	color := colorFailure
	if outcome.Success {
		color = colorSuccess
	}

	fields := make([]embedField, 0, len(outcome.Fields))
	for _, f := range outcome.Fields {
		fields = append(fields, embedField{Name: f.Name, Value: f.Value, Inline: f.Inline})
	}

	var timestamp string
	if !outcome.Timestamp.IsZero() {
		timestamp = outcome.Timestamp.UTC().Format(time.RFC3339)
	}

	return payload{Embeds: []embed{{
		Title:       outcome.Title,
		Description: outcome.Description,
		Color:       color,
		Fields:      fields,
		Timestamp:   timestamp,
	}}}
}
