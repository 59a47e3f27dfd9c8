package cmd

import (
	"bufio"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/courtdata/results-ingest/config"
)

const backupDir = "backups"

// backupCmd and restoreCmd wrap the external Postgres utilities. They carry
// no pipeline logic; restore is guarded by an interactive confirmation
// because it overwrites the live store.

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Write a SQL backup of the league store via pg_dump",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadOfflineConfig(cmd)
		if err != nil {
			return err
		}
		if err := checkTool("pg_dump"); err != nil {
			return err
		}

		if err := os.MkdirAll(backupDir, 0o755); err != nil {
			return err
		}
		filename := filepath.Join(backupDir, fmt.Sprintf("backup_%s.sql", time.Now().Format("20060102_150405")))

		fmt.Printf("Creating backup: %s ...\n", filename)
		dump := exec.CommandContext(cmd.Context(), "pg_dump", cfg.DatabaseDSN, "-f", filename)
		dump.Stdout = os.Stdout
		dump.Stderr = os.Stderr
		if err := dump.Run(); err != nil {
			return fmt.Errorf("pg_dump failed: %w", err)
		}

		fmt.Printf("Backup written to %s\n", filename)
		return nil
	},
}

var restoreCmd = &cobra.Command{
	Use:   "restore [backup.sql]",
	Short: "Restore the league store from a SQL backup via psql",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]

		cfg, err := config.LoadOfflineConfig(cmd)
		if err != nil {
			return err
		}
		if err := checkTool("psql"); err != nil {
			return err
		}
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("backup file: %w", err)
		}

		fmt.Println("WARNING: this will overwrite the configured database.")
		fmt.Printf("Restoring from: %s\n", path)
		fmt.Print("Type 'yes' to proceed: ")

		line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		if err != nil {
			return fmt.Errorf("read confirmation: %w", err)
		}
		if strings.ToLower(strings.TrimSpace(line)) != "yes" {
			fmt.Println("Restore cancelled.")
			return nil
		}

		restore := exec.CommandContext(cmd.Context(), "psql", cfg.DatabaseDSN, "-f", path)
		restore.Stdout = os.Stdout
		restore.Stderr = os.Stderr
		if err := restore.Run(); err != nil {
			return fmt.Errorf("psql failed: %w", err)
		}

		fmt.Println("Restore successful.")
		return nil
	},
}

func checkTool(name string) error {
	if _, err := exec.LookPath(name); err != nil {
		return fmt.Errorf("%s is not in PATH; install the PostgreSQL client tools", name)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(restoreCmd)
}
