package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ksred/hoopstats/internal/config"
	"github.com/ksred/hoopstats/internal/database"
	"github.com/ksred/hoopstats/internal/migration"
	"github.com/ksred/hoopstats/internal/models"
	"github.com/ksred/hoopstats/internal/storage"
	"github.com/ksred/hoopstats/internal/utils"
)

var (
	configPath string
	batchSize  int
	workers    int
	dryRun     bool
	sequential bool
	noRollback bool
	filters    []string
	tableFlag  string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run and manage row migrations over scraped stat tables",
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to configuration file")

	rootCmd.AddCommand(listCmd())
	rootCmd.AddCommand(executeCmd())
	rootCmd.AddCommand(historyCmd())
	rootCmd.AddCommand(rollbackCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type app struct {
	cfg      *config.Config
	db       *database.Database
	executor *migration.Executor
	registry *migration.Registry
}

func newApp() (*app, error) {
	cfg := config.LoadConfigOrDefault(configPath)

	logger := utils.NewLogger(utils.LoggerConfig{
		Level:  cfg.Server.LogLevel,
		Pretty: true,
	})

	db := database.NewDatabase(cfg.Database)
	if err := db.Connect(cfg.Server.LogLevel); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := db.Migrate(&models.SchemaChange{}, &models.MigrationLog{}); err != nil {
		return nil, fmt.Errorf("failed to prepare bookkeeping tables: %w", err)
	}

	execConfig := migration.ExecutorConfig{
		BatchSize:      cfg.Migration.BatchSize,
		MaxWorkers:     cfg.Migration.MaxWorkers,
		EnableRollback: cfg.Migration.EnableRollback,
	}
	if batchSize > 0 {
		execConfig.BatchSize = batchSize
	}
	if workers > 0 {
		execConfig.MaxWorkers = workers
	}
	if noRollback {
		execConfig.EnableRollback = false
	}

	store := storage.NewStore(db.DB())
	registry := migration.NewRegistry(logger)
	if err := migration.RegisterBuiltins(registry, logger); err != nil {
		return nil, err
	}

	return &app{
		cfg:      cfg,
		db:       db,
		executor: migration.NewExecutor(store, execConfig, logger),
		registry: registry,
	}, nil
}

func (a *app) close() {
	if err := a.db.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to close database: %v\n", err)
	}
}

func listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered migration functions",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tVERSION\tTARGETS\tDESCRIPTION")
			for _, fn := range a.registry.List() {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
					fn.Name, fn.Version, strings.Join(fn.TargetColumns, ","), fn.Description)
			}
			return w.Flush()
		},
	}
}

func executeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "execute <function> <table>",
		Short: "Apply a migration function to existing rows",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			fn, err := a.registry.Get(args[0])
			if err != nil {
				return err
			}

			filter, err := parseFilters(filters)
			if err != nil {
				return err
			}

			run := a.executor.Execute(context.Background(), fn, args[1], migration.ExecuteOptions{
				Filter:     filter,
				DryRun:     dryRun,
				Sequential: sequential,
			})

			printRun(run)
			if run.Status == models.RunFailed {
				return fmt.Errorf("migration run %s failed: %s", run.ID, run.ErrorMessage)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "Rows per batch (default from config)")
	cmd.Flags().IntVar(&workers, "workers", 0, "Parallel workers (default from config)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Preview without writing rows")
	cmd.Flags().BoolVar(&sequential, "sequential", false, "Process batches in order instead of in parallel")
	cmd.Flags().BoolVar(&noRollback, "no-rollback", false, "Skip the backup table snapshot")
	cmd.Flags().StringArrayVar(&filters, "filter", nil, "Row filter as column=value (repeatable)")
	return cmd
}

func historyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show past migration runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			records, err := a.executor.History(context.Background(), tableFlag)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "RUN ID\tFUNCTION\tTABLE\tSTATUS\tPROCESSED\tFAILED\tSTARTED\tROLLBACK")
			for _, r := range records {
				rollback := "no"
				if r.CanRollback() {
					rollback = "yes"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%s\t%s\n",
					r.ID, r.Name, r.TableName, r.Status,
					r.RecordsProcessed, r.RecordsFailed,
					r.StartedAt.Format(time.RFC3339), rollback)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&tableFlag, "table", "", "Filter history by table")
	return cmd
}

func rollbackCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rollback <run-id>",
		Short: "Restore a table from the backup taken for a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			if err := a.executor.Rollback(context.Background(), args[0]); err != nil {
				return err
			}
			fmt.Printf("Rolled back migration run %s\n", args[0])
			return nil
		},
	}
}

func parseFilters(raw []string) (map[string]interface{}, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	filter := make(map[string]interface{}, len(raw))
	for _, entry := range raw {
		parts := strings.SplitN(entry, "=", 2)
		if len(parts) != 2 || parts[0] == "" {
			return nil, utils.InvalidFieldError("filter", fmt.Sprintf("%q is not column=value", entry))
		}
		filter[parts[0]] = parts[1]
	}
	return filter, nil
}

func printRun(run *migration.Run) {
	out, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		fmt.Printf("run %s finished with status %s\n", run.ID, run.Status)
		return
	}
	fmt.Println(string(out))
}
