package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/crmigrate/crmigrate/internal/config"
	"github.com/crmigrate/crmigrate/internal/db"
	"github.com/crmigrate/crmigrate/internal/mapping"
	"github.com/crmigrate/crmigrate/internal/migration"
	"github.com/crmigrate/crmigrate/internal/repository"
	"github.com/crmigrate/crmigrate/internal/rollback"
)

func newRootCmd() *cobra.Command {
	var configDir string

	root := &cobra.Command{
		Use:           "crmigrate",
		Short:         "Migrate spreadsheet CRM data into the relational schema",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configDir, "config", ".", "directory containing config.yaml")

	root.AddCommand(newRunCmd(&configDir))
	root.AddCommand(newRollbackCmd(&configDir))
	root.AddCommand(newCheckpointsCmd(&configDir))
	return root
}

func newRunCmd(configDir *string) *cobra.Command {
	var (
		dryRun     bool
		reportPath string
		jsonPath   string
		overrides  []string
	)

	cmd := &cobra.Command{
		Use:   "run <workbook.xlsx>",
		Short: "Run a full migration of the given workbook",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg, err := config.Load(*configDir)
			if err != nil {
				return err
			}
			if dryRun {
				cfg.Engine.DryRun = true
			}

			logger, err := zap.NewProduction()
			if err != nil {
				return err
			}
			defer logger.Sync()

			opts := engineOptions(cfg.Engine)
			opts.Overrides, err = parseOverrides(overrides)
			if err != nil {
				return err
			}

			store, states, cleanup, err := buildStores(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer cleanup()

			sink := migration.SinkFunc(func(e migration.Event) {
				logger.Info(e.Name, zap.String("table", e.Table), zap.Any("payload", e.Payload))
			})

			orch := migration.New(store, states, logger, sink, opts)
			report, err := orch.Run(ctx, args[0])
			if report != nil {
				if writeErr := writeReport(report, reportPath, jsonPath); writeErr != nil {
					return writeErr
				}
			}
			if err != nil {
				return err
			}
			if report.Exit == migration.ExitFailure || report.Exit == migration.ExitRolledBack {
				return fmt.Errorf("migration ended with %s: %s", report.Exit, report.Reason)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "run mapping and validation without persisting")
	cmd.Flags().StringVar(&reportPath, "report", "", "write the markdown report to this file (default stdout)")
	cmd.Flags().StringVar(&jsonPath, "json", "", "also write the JSON report to this file")
	cmd.Flags().StringArrayVar(&overrides, "map", nil, "mapping override as sheet:source:target (repeatable)")
	return cmd
}

func newRollbackCmd(configDir *string) *cobra.Command {
	var execute bool

	cmd := &cobra.Command{
		Use:   "rollback <migration-id>",
		Short: "Evaluate (and optionally execute) rollback for a migration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid migration id: %w", err)
			}

			cfg, err := config.Load(*configDir)
			if err != nil {
				return err
			}
			logger, err := zap.NewProduction()
			if err != nil {
				return err
			}
			defer logger.Sync()

			ctx := cmd.Context()
			store, states, cleanup, err := buildStores(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer cleanup()

			state, err := states.Get(ctx, id)
			if err != nil {
				return err
			}

			if cp, ok := state.LastCheckpoint(); ok {
				fmt.Printf("Last checkpoint: %s %s/%s (%d records, confidence %.1f)\n",
					cp.Timestamp.Format("2006-01-02 15:04:05"), cp.Phase, cp.Table, cp.RecordsProcessed, cp.Confidence)
			}

			manager := rollback.NewManager(store, states, logger)
			strategy := manager.DetermineRollbackStrategy(state)
			fmt.Printf("Recommended strategy: %s (confidence %.1f)\n", strategy.Type, strategy.Confidence)
			fmt.Printf("Reason: %s\n", strategy.Reason)

			if !execute {
				return nil
			}
			result, err := manager.ExecuteRollback(ctx, state, strategy)
			if err != nil {
				return err
			}
			fmt.Printf("Rolled back %d records across %s in %s\n",
				result.RecordsAffected, strings.Join(result.TablesAffected, ", "), result.Duration)
			return nil
		},
	}

	cmd.Flags().BoolVar(&execute, "execute", false, "execute the recommended strategy")
	return cmd
}

func newCheckpointsCmd(configDir *string) *cobra.Command {
	var (
		prune  bool
		retain int
	)

	cmd := &cobra.Command{
		Use:   "checkpoints <migration-id>",
		Short: "List (and optionally prune) a migration's checkpoints",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid migration id: %w", err)
			}

			cfg, err := config.Load(*configDir)
			if err != nil {
				return err
			}
			logger, err := zap.NewProduction()
			if err != nil {
				return err
			}
			defer logger.Sync()

			ctx := cmd.Context()
			store, states, cleanup, err := buildStores(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer cleanup()

			manager := rollback.NewManager(store, states, logger)
			if prune {
				pruned, err := manager.PruneCheckpoints(ctx, id, retain)
				if err != nil {
					return err
				}
				fmt.Printf("Pruned %d checkpoints\n", pruned)
			}

			checkpoints, err := manager.ListCheckpoints(ctx, id)
			if err != nil {
				return err
			}
			for _, cp := range checkpoints {
				fmt.Printf("%s  %-16s %-15s records=%-6d confidence=%.1f\n",
					cp.Timestamp.Format("2006-01-02 15:04:05"), cp.Phase, cp.Table, cp.RecordsProcessed, cp.Confidence)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&prune, "prune", false, "prune automatic checkpoints beyond the retention count")
	cmd.Flags().IntVar(&retain, "retain", rollback.DefaultCheckpointRetention, "automatic checkpoints to keep when pruning")
	return cmd
}

// buildStores connects the Postgres-backed stores, or in-memory ones for a
// dry run where no database is touched at all.
func buildStores(ctx context.Context, cfg config.Config, logger *zap.Logger) (repository.RecordStore, repository.MigrationStateRepository, func(), error) {
	if cfg.Engine.DryRun {
		return repository.NewMemoryRecordStore(), repository.NewMemoryStateRepository(), func() {}, nil
	}

	conn, err := db.NewConnection(ctx, cfg.Database, logger)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := db.RunMigrations(cfg.Database, "migrations", logger); err != nil {
		conn.Close()
		return nil, nil, nil, err
	}
	return repository.NewPostgresRecordStore(conn.Pool),
		repository.NewPostgresStateRepository(conn.Pool),
		conn.Close,
		nil
}

func engineOptions(e config.EngineConfig) migration.Options {
	return migration.Options{
		BatchSize:           e.BatchSize,
		StopOnError:         e.StopOnError,
		ValidateReferences:  e.ValidateReferences,
		CheckDuplicates:     e.CheckDuplicates,
		CalculateQuality:    e.CalculateQuality,
		MinQualityScore:     e.MinQualityScore,
		EnableRollback:      e.EnableRollback,
		DryRun:              e.DryRun,
		CheckpointFrequency: e.CheckpointFrequency,
		SampleSize:          e.SampleSize,
	}
}

// parseOverrides turns sheet:source:target triples into mapper overrides.
func parseOverrides(raw []string) ([]mapping.Override, error) {
	var out []mapping.Override
	for _, entry := range raw {
		parts := strings.SplitN(entry, ":", 3)
		if len(parts) != 3 {
			return nil, fmt.Errorf("invalid mapping override %q, want sheet:source:target", entry)
		}
		out = append(out, mapping.Override{Sheet: parts[0], SourceField: parts[1], TargetField: parts[2]})
	}
	return out, nil
}

func writeReport(report *migration.Report, reportPath, jsonPath string) error {
	markdown := report.Markdown()
	if reportPath == "" {
		fmt.Print(markdown)
	} else if err := os.WriteFile(reportPath, []byte(markdown), 0o644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	if jsonPath != "" {
		payload, err := report.JSON()
		if err != nil {
			return err
		}
		if err := os.WriteFile(jsonPath, payload, 0o644); err != nil {
			return fmt.Errorf("failed to write JSON report: %w", err)
		}
	}
	return nil
}
