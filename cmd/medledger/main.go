package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ehr/medledger/internal/config"
	"github.com/ehr/medledger/internal/domain/indent"
	"github.com/ehr/medledger/internal/domain/ledger"
	"github.com/ehr/medledger/internal/platform/db"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "medledger",
		Short: "Medicine inventory ledger and indent service",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(departmentCmd())
	rootCmd.AddCommand(reconcileCmd())
	rootCmd.AddCommand(indentCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(env string) zerolog.Logger {
	if env == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func runServer() error {
	logger := newLogger(os.Getenv("ENV"))

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	ctx := context.Background()
	st, err := openStorage(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open storage")
	}
	defer st.Close()
	logger.Info().Str("driver", st.driver).Msg("connected to database")

	e := newServer(cfg, st, logger)

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}

func loadStorage(ctx context.Context) (*config.Config, *storage, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	st, err := openStorage(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	return cfg, st, nil
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	// migrate up
	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			department, _ := cmd.Flags().GetString("department")

			ctx := context.Background()
			cfg, st, err := loadStorage(ctx)
			if err != nil {
				return err
			}
			defer st.Close()

			if st.pool == nil {
				fmt.Printf("SQLite schema at %s is up to date.\n", cfg.SQLitePath)
				return nil
			}
			if department == "" {
				department = cfg.DefaultDepartment
			}
			if err := db.CreateDepartmentSchema(ctx, st.pool, department, nil); err != nil {
				return err
			}
			schema := db.SchemaName(department)
			fmt.Printf("Running migrations on schema: %s\n", schema)
			count, err := db.NewMigrator(st.pool, db.EmbeddedMigrations()).Up(ctx, schema)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("department", "", "Department whose schema is migrated (defaults to DEFAULT_DEPARTMENT)")
	cmd.AddCommand(upCmd)

	// migrate status
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			department, _ := cmd.Flags().GetString("department")

			ctx := context.Background()
			cfg, st, err := loadStorage(ctx)
			if err != nil {
				return err
			}
			defer st.Close()

			if st.pool == nil {
				return fmt.Errorf("migration status is only tracked for the %s driver", config.DriverPostgres)
			}
			if department == "" {
				department = cfg.DefaultDepartment
			}
			schema := db.SchemaName(department)
			statuses, err := db.NewMigrator(st.pool, db.EmbeddedMigrations()).Status(ctx, schema)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("Migration status for schema: %s\n", schema)
			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			fmt.Println("---------- ---------------------------------------- ---------- --------------------")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.Modified {
						status = "modified"
					}
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("department", "", "Department whose schema is inspected (defaults to DEFAULT_DEPARTMENT)")
	cmd.AddCommand(statusCmd)

	return cmd
}

func departmentCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "department",
		Short: "Manage department schemas",
	}

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a department schema and migrate it",
		RunE: func(cmd *cobra.Command, args []string) error {
			name, _ := cmd.Flags().GetString("name")
			if name == "" {
				return fmt.Errorf("--name is required")
			}

			ctx := context.Background()
			_, st, err := loadStorage(ctx)
			if err != nil {
				return err
			}
			defer st.Close()
			if st.pool == nil {
				return fmt.Errorf("departments require the %s driver", config.DriverPostgres)
			}

			fmt.Printf("Creating department schema: %s\n", db.SchemaName(name))
			migrator := db.NewMigrator(st.pool, db.EmbeddedMigrations())
			if err := db.CreateDepartmentSchema(ctx, st.pool, name, migrator); err != nil {
				return fmt.Errorf("failed to create department: %w", err)
			}
			fmt.Println("Department created successfully.")
			return nil
		},
	}
	createCmd.Flags().String("name", "", "Department name (letters, digits and underscores)")
	cmd.AddCommand(createCmd)

	return cmd
}

// institutePreamble parses the shared --institute and --department flags and
// returns a context scoped to the department.
func institutePreamble(cmd *cobra.Command, st *storage, cfg *config.Config) (context.Context, uuid.UUID, func(), error) {
	raw, _ := cmd.Flags().GetString("institute")
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, uuid.Nil, nil, fmt.Errorf("--institute must be a uuid: %w", err)
	}
	department, _ := cmd.Flags().GetString("department")
	if department == "" {
		department = cfg.DefaultDepartment
	}
	ctx, release, err := st.scope(cmd.Context(), department)
	if err != nil {
		return nil, uuid.Nil, nil, err
	}
	return ctx, id, release, nil
}

func reconcileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Compare inventory quantities with the ledger for one institute",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, st, err := loadStorage(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close()
			ctx, id, release, err := institutePreamble(cmd, st, cfg)
			if err != nil {
				return err
			}
			defer release()

			rec, err := ledger.NewService(st.ledger, st.store, st.catalog).Reconcile(ctx, id)
			if err != nil {
				return err
			}
			out := json.NewEncoder(cmd.OutOrStdout())
			out.SetIndent("", "  ")
			if err := out.Encode(rec); err != nil {
				return err
			}
			if !rec.Balanced() {
				return fmt.Errorf("%d discrepancies across %d keys", len(rec.Discrepancies), rec.KeysChecked)
			}
			return nil
		},
	}
	cmd.Flags().String("institute", "", "Institute id")
	cmd.Flags().String("department", "", "Department schema (postgres only)")
	return cmd
}

func indentCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "indent",
		Short: "Print the replenishment indent for one institute",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, st, err := loadStorage(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close()
			ctx, id, release, err := institutePreamble(cmd, st, cfg)
			if err != nil {
				return err
			}
			defer release()

			ind, err := indent.NewGenerator(st.catalog, st.store).Generate(ctx, id)
			if err != nil {
				return err
			}
			printIndent(cmd, ind)
			return nil
		},
	}
	cmd.Flags().String("institute", "", "Institute id")
	cmd.Flags().String("department", "", "Department schema (postgres only)")
	return cmd
}

func printIndent(cmd *cobra.Command, ind *indent.Indent) {
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Indent for %s (%s) generated %s\n", ind.InstituteName, ind.InstituteCode, ind.GeneratedAt.Format(time.RFC3339))
	fmt.Fprintf(w, "%-32s %10s %10s %10s %-12s %s\n", "MEDICINE", "ON HAND", "BUFFER", "REQUIRED", "STATUS", "REMARK")
	for _, l := range ind.Lines {
		fmt.Fprintf(w, "%-32s %10d %10d %10d %-12s %s\n", l.MedicineName, l.StockOnHand, l.BufferQty, l.RequiredQty, l.Status, l.Remark)
	}
}
