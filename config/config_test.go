package config

import (
	"testing"
	"time"

	"github.com/spf13/cobra"
)

func newCommand(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	cmd := &cobra.Command{Use: "test"}
	RegisterFlags(cmd)
	if err := cmd.ParseFlags(args); err != nil {
		t.Fatalf("ParseFlags() error = %v", err)
	}
	return cmd
}

func fullArgs() []string {
	return []string{
		"--imap-user", "league@example.com",
		"--imap-pass", "app-password",
		"--sender", "jerry@example.com",
		"--subject", "Corporate League Results",
		"--attachment", "results.csv",
		"--db-dsn", "postgres://localhost/league",
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	cmd := newCommand(t, fullArgs()...)

	cfg, err := LoadConfig(cmd)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.IMAPHost != "imap.gmail.com" {
		t.Errorf("IMAPHost = %q", cfg.IMAPHost)
	}
	if cfg.IMAPPort != 993 {
		t.Errorf("IMAPPort = %d", cfg.IMAPPort)
	}
	if cfg.Interval != 15*time.Minute {
		t.Errorf("Interval = %v", cfg.Interval)
	}
	if cfg.Once {
		t.Error("Once = true, want false")
	}
}

func TestLoadConfig_MissingRequiredValues(t *testing.T) {
	tests := []struct {
		name string
		omit string
	}{
		{"imap user", "--imap-user"},
		{"imap pass", "--imap-pass"},
		{"sender", "--sender"},
		{"subject", "--subject"},
		{"attachment", "--attachment"},
		{"db dsn", "--db-dsn"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, key := range []string{
				"GMAIL_USER", "IMAP_USER", "GMAIL_APP_PASSWORD", "IMAP_PASS",
				"TARGET_SENDER", "TARGET_SUBJECT", "TARGET_FILENAME",
				"DATABASE_URL", "SUPABASE_DB_URL",
			} {
				t.Setenv(key, "")
			}

			var args []string
			full := fullArgs()
			for i := 0; i < len(full); i += 2 {
				if full[i] == tt.omit {
					continue
				}
				args = append(args, full[i], full[i+1])
			}

			cmd := newCommand(t, args...)
			if _, err := LoadConfig(cmd); err == nil {
				t.Errorf("LoadConfig() without %s succeeded, want error", tt.omit)
			}
		})
	}
}

func TestLoadConfig_EnvFallbacks(t *testing.T) {
	t.Setenv("GMAIL_USER", "league@example.com")
	t.Setenv("GMAIL_APP_PASSWORD", "app-password")
	t.Setenv("TARGET_SENDER", "jerry@example.com, backup@example.com")
	t.Setenv("TARGET_SUBJECT", "Corporate League Results")
	t.Setenv("TARGET_FILENAME", "results.csv")
	t.Setenv("DATABASE_URL", "postgres://localhost/league")
	t.Setenv("WEBHOOK_URL", "https://hooks.example.com/abc")

	cmd := newCommand(t)
	cfg, err := LoadConfig(cmd)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.IMAPUser != "league@example.com" {
		t.Errorf("IMAPUser = %q", cfg.IMAPUser)
	}
	if len(cfg.Senders) != 2 || cfg.Senders[0] != "jerry@example.com" || cfg.Senders[1] != "backup@example.com" {
		t.Errorf("Senders = %v", cfg.Senders)
	}
	if cfg.WebhookURL != "https://hooks.example.com/abc" {
		t.Errorf("WebhookURL = %q", cfg.WebhookURL)
	}
}

func TestLoadConfig_FlagsWinOverEnv(t *testing.T) {
	t.Setenv("GMAIL_USER", "env@example.com")

	cmd := newCommand(t, fullArgs()...)
	cfg, err := LoadConfig(cmd)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.IMAPUser != "league@example.com" {
		t.Errorf("IMAPUser = %q, want flag value", cfg.IMAPUser)
	}
}

func TestLoadConfig_LogLevel(t *testing.T) {
	cmd := newCommand(t, append(fullArgs(), "--log-level", "WARNING")...)
	cfg, err := LoadConfig(cmd)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("LogLevel = %q, want warn", cfg.LogLevel)
	}

	cmd = newCommand(t, append(fullArgs(), "--log-level", "loud")...)
	if _, err := LoadConfig(cmd); err == nil {
		t.Error("LoadConfig() with invalid log level succeeded, want error")
	}
}

func TestLoadOfflineConfig_SkipsMailboxValidation(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("SUPABASE_DB_URL", "")

	cmd := newCommand(t, "--db-dsn", "postgres://localhost/league")
	cfg, err := LoadOfflineConfig(cmd)
	if err != nil {
		t.Fatalf("LoadOfflineConfig() error = %v", err)
	}
	if cfg.DatabaseDSN != "postgres://localhost/league" {
		t.Errorf("DatabaseDSN = %q", cfg.DatabaseDSN)
	}

	cmd = newCommand(t)
	if _, err := LoadOfflineConfig(cmd); err == nil {
		t.Error("LoadOfflineConfig() without DSN succeeded, want error")
	}
}
