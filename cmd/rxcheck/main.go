package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/rxcheck/rxcheck/internal/config"
	"github.com/rxcheck/rxcheck/internal/domain/retention"
	"github.com/rxcheck/rxcheck/internal/platform/db"
	"github.com/rxcheck/rxcheck/migrations"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "rxcheck",
		Short: "RxCheck prescription and symptom analysis API",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(pruneCmd())
	rootCmd.AddCommand(debugEnvCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger() zerolog.Logger {
	if os.Getenv("ENV") == "development" || os.Getenv("ENV") == "" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			migrate, _ := cmd.Flags().GetBool("migrate")
			return runServer(migrate)
		},
	}
	cmd.Flags().Bool("migrate", false, "Apply pending Postgres migrations before serving")
	return cmd
}

func openPool(ctx context.Context, cfg *config.Config) (*db.Migrator, func(), error) {
	if cfg.DatabaseURL == "" {
		return nil, nil, fmt.Errorf("DATABASE_URL is required for migrations")
	}
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return nil, nil, err
	}
	return db.NewMigrator(pool, migrations.FS), pool.Close, nil
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run Postgres migrations for the relational profile store",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			migrator, closePool, err := openPool(ctx, cfg)
			if err != nil {
				return err
			}
			defer closePool()

			count, err := migrator.Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			color.Green("✓ Applied %d migration(s)", count)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			migrator, closePool, err := openPool(ctx, cfg)
			if err != nil {
				return err
			}
			defer closePool()

			statuses, err := migrator.Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			faint := color.New(color.Faint)
			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			for _, s := range statuses {
				status := color.YellowString("%-10s", "pending")
				appliedAt := ""
				if s.Applied {
					status = color.GreenString("%-10s", "applied")
					if s.AppliedAt != nil {
						appliedAt = faint.Sprint(s.AppliedAt.Format("2006-01-02 15:04:05"))
					}
				}
				fmt.Printf("%-10d %-40s %s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	})

	return cmd
}

func pruneCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Trim stored reports to the newest REPORTS_TO_KEEP per user",
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, _ := cmd.Flags().GetString("user")
			all, _ := cmd.Flags().GetBool("all")
			if userID == "" && !all {
				return fmt.Errorf("--user or --all is required")
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := newLogger()

			ctx := context.Background()
			st, err := openStore(ctx, cfg, false, logger)
			if err != nil {
				return err
			}
			defer st.Close()

			pruner := retention.NewPruner(st.repo, cfg.ReportsToKeep, logger)
			if userID != "" {
				n, err := pruner.Prune(ctx, userID)
				if err != nil {
					return err
				}
				color.Green("✓ Deleted %d report(s) for %s", n, userID)
				return nil
			}

			res, err := pruner.PruneAll(ctx)
			if err != nil {
				return err
			}
			color.Green("✓ Swept %d user(s), deleted %d report(s)", res.Users, res.Deleted)
			if res.Failed > 0 {
				color.Yellow("⚠ %d user(s) failed, see log", res.Failed)
			}
			return nil
		},
	}
	cmd.Flags().String("user", "", "Prune a single user's reports")
	cmd.Flags().Bool("all", false, "Prune every user's reports")
	return cmd
}

func debugEnvCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "debug-env",
		Short: "Report which external-service settings are present",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			for _, item := range envReport(cfg) {
				if item.set {
					color.Green("✓ %s", item.name)
				} else {
					color.Yellow("✗ %s", item.name)
				}
			}
			fmt.Printf("store=%s uploads=%s auth=%s\n", cfg.StoreBackend, cfg.UploadBackend, cfg.AuthMode)
			return nil
		},
	}
}

type envItem struct {
	name string
	set  bool
}

// envReport lists secret-bearing settings by presence only.
func envReport(cfg *config.Config) []envItem {
	return []envItem{
		{"GEMINI_API_KEY", cfg.GeminiAPIKey != ""},
		{"RETELL_API_KEY", cfg.RetellAPIKey != ""},
		{"RETELL_AGENT_ID", cfg.RetellAgentID != ""},
		{"RETELL_WEBHOOK_SECRET", cfg.RetellWebhookSecret != ""},
		{"SENTRY_DSN", cfg.SentryDSN != ""},
	}
}
