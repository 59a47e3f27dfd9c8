package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// Config captures all settings required to run the ingestion service.
// Every value can come from a CLI flag or, where noted, an environment
// variable; flags win over the environment.
type Config struct {
	IMAPHost           string
	IMAPPort           int
	IMAPUser           string
	IMAPPass           string
	InsecureSkipVerify bool

	Senders          []string
	Subject          string
	AttachmentFilter string

	DatabaseDSN string
	WebhookURL  string

	Interval time.Duration
	Once     bool
	LogLevel string
	LogDir   string
}

// RegisterFlags attaches all CLI flags to the provided command as persistent
// flags so that subcommands share them.
func RegisterFlags(cmd *cobra.Command) {
	flags := cmd.PersistentFlags()
	flags.String("imap-host", "imap.gmail.com", "IMAP server hostname")
	flags.Int("imap-port", 993, "IMAP server port")
	flags.String("imap-user", "", "IMAP account (falls back to GMAIL_USER / IMAP_USER env vars)")
	flags.String("imap-pass", "", "IMAP app password (falls back to GMAIL_APP_PASSWORD / IMAP_PASS env vars)")
	flags.Bool("insecure-skip-verify", false, "Skip TLS certificate verification (not recommended)")
	flags.StringArray("sender", nil, "Sender address to search for, repeatable (falls back to TARGET_SENDER, comma separated)")
	flags.String("subject", "", "Subject substring the report mail must contain (falls back to TARGET_SUBJECT)")
	flags.String("attachment", "", "Filename substring identifying the report attachment (falls back to TARGET_FILENAME)")
	flags.String("db-dsn", "", "Postgres DSN of the league store (falls back to DATABASE_URL / SUPABASE_DB_URL)")
	flags.String("webhook-url", "", "Optional webhook endpoint for outcome notifications (falls back to WEBHOOK_URL)")
	flags.Duration("interval", 15*time.Minute, "Polling interval between ingestion cycles")
	flags.Bool("once", false, "Run exactly one cycle and exit (for external schedulers)")
	flags.String("log-level", "info", "Logging level: debug, info, warn, error")
	flags.String("log-dir", "", "Directory for log files (in addition to stdout)")
}

// LoadConfig converts the parsed Cobra flags into a Config struct with full
// validation, including the mailbox settings the polling service needs.
func LoadConfig(cmd *cobra.Command) (Config, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return Config{}, err
	}
	if err := validateMailbox(cfg); err != nil {
		return Config{}, err
	}
	if err := validateStore(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadOfflineConfig validates only the store-side settings. The ingest and
// mbox subcommands read their input from disk and never touch the mailbox.
func LoadOfflineConfig(cmd *cobra.Command) (Config, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return Config{}, err
	}
	if err := validateStore(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadConfig(cmd *cobra.Command) (Config, error) {
	flags := cmd.Flags()

	imapHost, err := flags.GetString("imap-host")
	if err != nil {
		return Config{}, err
	}
	imapPort, err := flags.GetInt("imap-port")
	if err != nil {
		return Config{}, err
	}
	imapUser, err := flags.GetString("imap-user")
	if err != nil {
		return Config{}, err
	}
	imapPass, err := flags.GetString("imap-pass")
	if err != nil {
		return Config{}, err
	}
	insecureSkipVerify, err := flags.GetBool("insecure-skip-verify")
	if err != nil {
		return Config{}, err
	}
	senders, err := flags.GetStringArray("sender")
	if err != nil {
		return Config{}, err
	}
	subject, err := flags.GetString("subject")
	if err != nil {
		return Config{}, err
	}
	attachment, err := flags.GetString("attachment")
	if err != nil {
		return Config{}, err
	}
	dsn, err := flags.GetString("db-dsn")
	if err != nil {
		return Config{}, err
	}
	webhookURL, err := flags.GetString("webhook-url")
	if err != nil {
		return Config{}, err
	}
	interval, err := flags.GetDuration("interval")
	if err != nil {
		return Config{}, err
	}
	once, err := flags.GetBool("once")
	if err != nil {
		return Config{}, err
	}
	logLevel, err := flags.GetString("log-level")
	if err != nil {
		return Config{}, err
	}
	logDir, err := flags.GetString("log-dir")
	if err != nil {
		return Config{}, err
	}

	if imapUser == "" {
		imapUser = firstEnv("GMAIL_USER", "IMAP_USER")
	}
	if imapPass == "" {
		imapPass = firstEnv("GMAIL_APP_PASSWORD", "IMAP_PASS")
	}
	if len(senders) == 0 {
		senders = splitList(os.Getenv("TARGET_SENDER"))
	}
	if subject == "" {
		subject = os.Getenv("TARGET_SUBJECT")
	}
	if attachment == "" {
		attachment = os.Getenv("TARGET_FILENAME")
	}
	if dsn == "" {
		dsn = firstEnv("DATABASE_URL", "SUPABASE_DB_URL")
	}
	if webhookURL == "" {
		webhookURL = os.Getenv("WEBHOOK_URL")
	}

	logLevel = strings.ToLower(logLevel)
	if logLevel == "warning" {
		logLevel = "warn"
	}

	cfg := Config{
		IMAPHost:           imapHost,
		IMAPPort:           imapPort,
		IMAPUser:           imapUser,
		IMAPPass:           imapPass,
		InsecureSkipVerify: insecureSkipVerify,
		Senders:            senders,
		Subject:            subject,
		AttachmentFilter:   attachment,
		DatabaseDSN:        dsn,
		WebhookURL:         webhookURL,
		Interval:           interval,
		Once:               once,
		LogLevel:           logLevel,
		LogDir:             logDir,
	}

	if err := validateCommon(cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func validateCommon(cfg Config) error {
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid --log-level: %s", cfg.LogLevel)
	}
	if cfg.Interval <= 0 {
		return fmt.Errorf("--interval must be positive")
	}
	return nil
}

func validateMailbox(cfg Config) error {
	if cfg.IMAPHost == "" {
		return fmt.Errorf("--imap-host is required")
	}
	if cfg.IMAPPort <= 0 || cfg.IMAPPort > 65535 {
		return fmt.Errorf("--imap-port must be between 1 and 65535")
	}
	if cfg.IMAPUser == "" {
		return fmt.Errorf("IMAP account must be provided via --imap-user or GMAIL_USER env var")
	}
	if cfg.IMAPPass == "" {
		return fmt.Errorf("IMAP password must be provided via --imap-pass or GMAIL_APP_PASSWORD env var")
	}
	if len(cfg.Senders) == 0 {
		return fmt.Errorf("at least one sender must be provided via --sender or TARGET_SENDER env var")
	}
	if cfg.Subject == "" {
		return fmt.Errorf("subject filter must be provided via --subject or TARGET_SUBJECT env var")
	}
	if cfg.AttachmentFilter == "" {
		return fmt.Errorf("attachment filter must be provided via --attachment or TARGET_FILENAME env var")
	}
	return nil
}

func validateStore(cfg Config) error {
	if cfg.DatabaseDSN == "" {
		return fmt.Errorf("database DSN must be provided via --db-dsn or DATABASE_URL env var")
	}
	return nil
}

func firstEnv(keys ...string) string {
	for _, key := range keys {
		if v := os.Getenv(key); v != "" {
			return v
		}
	}
	return ""
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
