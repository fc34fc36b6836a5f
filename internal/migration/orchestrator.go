// Package migration sequences a full workbook-to-CRM migration run: mapping,
// sample validation, batched transformation and loading, verification and,
// when needed, rollback.
package migration

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/crmigrate/crmigrate/internal/domain"
	"github.com/crmigrate/crmigrate/internal/mapping"
	"github.com/crmigrate/crmigrate/internal/quality"
	"github.com/crmigrate/crmigrate/internal/repository"
	"github.com/crmigrate/crmigrate/internal/rollback"
	"github.com/crmigrate/crmigrate/internal/validation"
	"github.com/crmigrate/crmigrate/internal/workbook"
)

// Sample validation thresholds. The sample error rate extrapolates to the
// whole table; crossing the critical threshold aborts the run before any load.
const (
	sampleWarnRate     = 0.10
	sampleCriticalRate = 0.25
)

// Options is the engine's recognized configuration surface.
type Options struct {
	BatchSize           int
	StopOnError         bool
	ValidateReferences  bool
	CheckDuplicates     bool
	CalculateQuality    bool
	MinQualityScore     int
	EnableRollback      bool
	DryRun              bool
	CheckpointFrequency int
	SampleSize          int
	Overrides           []mapping.Override
}

// DefaultOptions returns the standard engine configuration.
func DefaultOptions() Options {
	return Options{
		BatchSize:           500,
		ValidateReferences:  true,
		CheckDuplicates:     true,
		CalculateQuality:    true,
		EnableRollback:      true,
		CheckpointFrequency: 1000,
		SampleSize:          100,
	}
}

// Orchestrator drives one migration run through its phases. Phases execute
// sequentially; cancellation is cooperative and checked between batches.
type Orchestrator struct {
	analyzer *workbook.Analyzer
	mapper   *mapping.Mapper
	store    repository.RecordStore
	manager  *rollback.Manager
	sink     ProgressSink
	logger   *zap.Logger
	opts     Options
}

// New wires an orchestrator. A dry run swaps both stores for in-memory
// implementations, so mapping and validation run in full while nothing is
// persisted.
func New(store repository.RecordStore, states repository.MigrationStateRepository, logger *zap.Logger, sink ProgressSink, opts Options) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if sink == nil {
		sink = NopSink{}
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultOptions().BatchSize
	}
	if opts.CheckpointFrequency <= 0 {
		opts.CheckpointFrequency = DefaultOptions().CheckpointFrequency
	}
	if opts.SampleSize <= 0 {
		opts.SampleSize = DefaultOptions().SampleSize
	}
	if opts.DryRun {
		store = repository.NewMemoryRecordStore()
		states = repository.NewMemoryStateRepository()
	}
	return &Orchestrator{
		analyzer: workbook.NewAnalyzer(),
		mapper:   mapping.NewMapper(),
		store:    store,
		manager:  rollback.NewManager(store, states, logger),
		sink:     sink,
		logger:   logger,
		opts:     opts,
	}
}

// Manager exposes the run's rollback manager for operational tooling.
func (o *Orchestrator) Manager() *rollback.Manager { return o.manager }

// Run executes a full migration of the given workbook. The returned report is
// non-nil whenever the run got far enough to say anything; the error reports
// infrastructure-level faults only. Data-quality problems never surface as
// errors, they land in the report.
func (o *Orchestrator) Run(ctx context.Context, workbookPath string) (*Report, error) {
	report := &Report{
		MigrationID:  uuid.New(),
		WorkbookFile: workbookPath,
		DryRun:       o.opts.DryRun,
		StartedAt:    time.Now().UTC(),
	}

	monitor := quality.NewMonitor(quality.DefaultConfig(), func(alert quality.Alert) {
		report.QualityAlerts = append(report.QualityAlerts, alert)
		o.sink.Publish(Event{Name: EventQualityAlert, Table: alert.Table, Payload: map[string]any{
			"score":   alert.Score,
			"message": alert.Message,
		}})
	})

	o.sink.Publish(Event{Name: EventMigrationStart, Payload: map[string]any{
		"migration_id": report.MigrationID.String(),
		"workbook":     workbookPath,
	}})

	state, err := o.manager.InitializeMigration(ctx, report.MigrationID)
	if err != nil {
		return nil, err
	}

	// Phase: mapping.
	analysis, err := o.analyzer.AnalyzeFile(workbookPath)
	if err != nil {
		return o.fail(ctx, state, report, domain.PhaseMapping, fmt.Sprintf("workbook unreadable: %v", err)), err
	}
	report.Mapping = o.mapper.MapWorkbook(analysis, o.opts.Overrides)
	if _, err := o.manager.CreateCheckpoint(ctx, state, domain.PhaseMapping, "", 0, report.Mapping.OverallConfidence,
		map[string]string{rollback.MetaKind: rollback.KindPhase}); err != nil {
		return o.fail(ctx, state, report, domain.PhaseMapping, err.Error()), err
	}
	if report.Mapping.RequiresHumanReview {
		return o.fail(ctx, state, report, domain.PhaseMapping,
			"mapping requires human review: low-confidence field mappings present"), nil
	}
	if len(report.Mapping.TableMappings) == 0 {
		return o.fail(ctx, state, report, domain.PhaseMapping, "no sheet could be mapped to a target table"), nil
	}

	run, err := o.newRunState(ctx, report.MigrationID)
	if err != nil {
		return o.fail(ctx, state, report, domain.PhaseMapping, err.Error()), err
	}

	// Phase: sample validation.
	if abortReason, err := o.validateSamples(ctx, state, report, run, analysis); err != nil {
		return o.fail(ctx, state, report, domain.PhaseValidation, err.Error()), err
	} else if abortReason != "" {
		return o.fail(ctx, state, report, domain.PhaseValidation, abortReason), nil
	}

	// Phase: transformation and loading.
	if err := o.loadTables(ctx, state, report, run, analysis, monitor); err != nil {
		return o.failWithRollback(ctx, state, report, err), err
	}

	// Phase: verification.
	if err := o.verify(ctx, state, report); err != nil {
		return o.failWithRollback(ctx, state, report, err), err
	}

	if err := state.Transition(domain.MigrationCompleted); err != nil {
		o.logger.Warn("could not mark migration completed", zap.Error(err))
	}
	if _, err := o.manager.CreateCheckpoint(ctx, state, domain.PhaseComplete, "", totalLoaded(report), report.Mapping.OverallConfidence,
		map[string]string{rollback.MetaKind: rollback.KindPhase}); err != nil {
		o.logger.Warn("could not record completion checkpoint", zap.Error(err))
	}

	report.Exit = ExitSuccess
	if hasWarnings(report) {
		report.Exit = ExitSuccessWithWarnings
	}
	report.FinishedAt = time.Now().UTC()
	o.sink.Publish(Event{Name: EventMigrationComplete, Payload: map[string]any{
		"migration_id": report.MigrationID.String(),
		"exit":         string(report.Exit),
	}})
	return report, nil
}

// runState carries the per-run collaborators built after mapping.
type runState struct {
	refs        *validation.ReferenceCache
	dups        *validation.DuplicateCache
	resolver    *Resolver
	transformer *Transformer
}

// newRunState preloads the reference and duplicate caches from the target
// store, once, before any phase that needs them.
func (o *Orchestrator) newRunState(ctx context.Context, migrationID uuid.UUID) (*runState, error) {
	run := &runState{
		refs:     validation.NewReferenceCache(),
		dups:     validation.NewDuplicateCache(),
		resolver: NewResolver(),
	}
	run.transformer = NewTransformer(migrationID, run.resolver)

	for _, table := range domain.TableLoadOrder {
		existing, err := o.store.FindMany(ctx, table, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to preload %s cache: %w", table, err)
		}
		run.refs.AddAll(existing)
		run.dups.AddAll(existing)
		for _, rec := range existing {
			run.resolver.Register(rec)
		}
	}
	return run, nil
}

// validateSamples validates a capped sample per table and extrapolates the
// error rate. Reference checks are disabled here: earlier tables have not
// been loaded yet, so every cross-table reference would be a false dangling.
func (o *Orchestrator) validateSamples(ctx context.Context, state *domain.MigrationState, report *Report, run *runState, analysis domain.WorkbookAnalysis) (string, error) {
	o.sink.Publish(Event{Name: EventValidationStart})

	svc := validation.NewService(nil, run.refs, run.dups, validation.Options{
		CheckDuplicates:  o.opts.CheckDuplicates,
		CalculateQuality: o.opts.CalculateQuality,
		MinQualityScore:  o.opts.MinQualityScore,
	})

	for _, tm := range o.mappingsInLoadOrder(report) {
		sheet, ok := analysis.Sheet(tm.SourceSheet)
		if !ok {
			continue
		}

		sample := sheet.Rows
		if len(sample) > o.opts.SampleSize {
			sample = sample[:o.opts.SampleSize]
		}

		batch := make([]validation.RowRecord, 0, len(sample))
		for i, row := range sample {
			rec, _, err := run.transformer.TransformRow(tm, sheet, row)
			if err != nil {
				return "", err
			}
			batch = append(batch, validation.RowRecord{Row: rowNumber(sheet, i), Record: rec})
		}

		result := svc.ValidateBatch(batch)
		badRows := len(validation.RowsWithErrors(result))
		rate := 0.0
		if len(batch) > 0 {
			rate = float64(badRows) / float64(len(batch))
		}
		estimated := int(rate * float64(len(sheet.Rows)))

		o.sink.Publish(Event{Name: EventValidationComplete, Table: tm.TargetTable, Payload: map[string]any{
			"sample_size":      len(batch),
			"error_rate":       rate,
			"estimated_errors": estimated,
		}})

		switch {
		case rate > sampleCriticalRate:
			if err := o.manager.RecordError(ctx, state, domain.PhaseValidation, tm.TargetTable,
				fmt.Sprintf("sample error rate %.0f%% exceeds critical threshold", rate*100),
				domain.SeverityCriticalRun); err != nil {
				return "", err
			}
			reason := fmt.Sprintf("%s sample error rate %.0f%% exceeds %.0f%%, not safe to continue",
				tm.TargetTable, rate*100, sampleCriticalRate*100)
			for _, rr := range batch {
				if rowErrs := result.ErrorsForRow(rr.Row); len(rowErrs) > 0 {
					reason = fmt.Sprintf("%s (example: row %d %s: %s)",
						reason, rr.Row, rowErrs[0].Field, rowErrs[0].Message)
					break
				}
			}
			return reason, nil
		case rate > sampleWarnRate:
			if err := o.manager.RecordError(ctx, state, domain.PhaseValidation, tm.TargetTable,
				fmt.Sprintf("sample error rate %.0f%%, estimated %d bad rows", rate*100, estimated),
				domain.SeverityMedium); err != nil {
				return "", err
			}
		}
	}
	return "", nil
}

// loadTables transforms, validates and persists every mapped table in
// referential order. Rows with errors are skipped and counted, never silently
// dropped.
func (o *Orchestrator) loadTables(ctx context.Context, state *domain.MigrationState, report *Report, run *runState, analysis domain.WorkbookAnalysis, monitor *quality.Monitor) error {
	for _, tm := range o.mappingsInLoadOrder(report) {
		sheet, ok := analysis.Sheet(tm.SourceSheet)
		if !ok {
			continue
		}

		tr := TableReport{
			Table:      tm.TargetTable,
			SourceRows: len(sheet.Rows),
			Confidence: tm.Confidence,
		}
		o.sink.Publish(Event{Name: EventEntityStart, Table: tm.TargetTable, Payload: map[string]any{
			"source_rows": tr.SourceRows,
		}})

		svc := validation.NewService(nil, run.refs, run.dups, validation.Options{
			StopOnError:        o.opts.StopOnError,
			ValidateReferences: o.opts.ValidateReferences,
			CheckDuplicates:    o.opts.CheckDuplicates,
			CalculateQuality:   o.opts.CalculateQuality,
			MinQualityScore:    o.opts.MinQualityScore,
		})

		var qualitySum, qualityBatches, sinceCheckpoint int
		for start := 0; start < len(sheet.Rows); start += o.opts.BatchSize {
			if err := ctx.Err(); err != nil {
				return fmt.Errorf("migration aborted during %s: %w", tm.TargetTable, err)
			}

			end := start + o.opts.BatchSize
			if end > len(sheet.Rows) {
				end = len(sheet.Rows)
			}

			batch := make([]validation.RowRecord, 0, end-start)
			for i := start; i < end; i++ {
				rec, notes, err := run.transformer.TransformRow(tm, sheet, sheet.Rows[i])
				if err != nil {
					return err
				}
				row := rowNumber(sheet, i)
				for _, note := range notes {
					if err := o.manager.RecordRowError(ctx, state.ID, tm.TargetTable, &row, note); err != nil {
						return err
					}
				}
				batch = append(batch, validation.RowRecord{Row: row, Record: rec})
			}

			result := svc.ValidateBatch(batch)
			badRows := validation.RowsWithErrors(result)
			for _, e := range result.Errors {
				row := e.Row
				if err := o.manager.RecordRowError(ctx, state.ID, tm.TargetTable, &row,
					fmt.Sprintf("%s: %s", e.Field, e.Message)); err != nil {
					return err
				}
			}

			// CRITICAL errors escalate to the run level so rollback
			// evaluation sees them, even though the rows themselves are
			// skipped and the load continues.
			if result.HasCritical() {
				criticals := 0
				for _, e := range result.Errors {
					if e.Severity == domain.SeverityCritical {
						criticals++
					}
				}
				if err := o.manager.RecordError(ctx, state, domain.PhaseTransformation, tm.TargetTable,
					fmt.Sprintf("%d critical validation errors while loading", criticals),
					domain.SeverityCriticalRun); err != nil {
					return err
				}
			}

			accepted := make([]domain.Record, 0, len(batch))
			for _, rr := range batch {
				if badRows[rr.Row] {
					continue
				}
				accepted = append(accepted, rr.Record)
			}

			inserted, err := o.store.CreateMany(ctx, tm.TargetTable, accepted, true)
			if err != nil {
				return fmt.Errorf("failed to load %s: %w", tm.TargetTable, err)
			}

			// Freshly created ids feed the reference checks of later
			// tables and the duplicate checks of later batches.
			run.refs.AddAll(accepted)
			run.dups.AddAll(accepted)
			for _, rec := range accepted {
				run.resolver.Register(rec)
			}

			tr.Processed += len(batch)
			tr.Loaded += inserted
			tr.Skipped += len(batch) - len(accepted)
			tr.ErrorCount += result.ErrorCount
			tr.WarningCount += result.WarningCount
			if o.opts.CalculateQuality && result.ProcessedCount > 0 {
				qualitySum += result.DataQualityScore
				qualityBatches++
			}
			report.TopErrors = capErrors(append(report.TopErrors, result.Errors...), topErrorLimit)

			monitor.Record(tm.TargetTable, result)
			o.sink.Publish(Event{Name: EventEntityProgress, Table: tm.TargetTable, Payload: map[string]any{
				"processed": tr.Processed,
				"loaded":    tr.Loaded,
				"skipped":   tr.Skipped,
			}})

			sinceCheckpoint += len(batch)
			if sinceCheckpoint >= o.opts.CheckpointFrequency {
				if _, err := o.manager.CreateCheckpoint(ctx, state, domain.PhaseTransformation, tm.TargetTable,
					tr.Processed, tm.Confidence, map[string]string{rollback.MetaKind: rollback.KindAuto}); err != nil {
					return err
				}
				sinceCheckpoint = 0
			}

			if o.opts.StopOnError && result.ErrorCount > 0 {
				break
			}
		}

		if qualityBatches > 0 {
			tr.QualityScore = qualitySum / qualityBatches
		}

		status := domain.TableCompleted
		if tr.Loaded == 0 && tr.SourceRows > 0 {
			status = domain.TableFailed
		}
		if err := o.manager.UpdateTableStatus(ctx, state, domain.TableProgress{
			Table:       tm.TargetTable,
			RecordCount: tr.Processed,
			ErrorCount:  tr.Skipped,
			Confidence:  tm.Confidence,
			Status:      status,
		}); err != nil {
			return err
		}
		if _, err := o.manager.CreateCheckpoint(ctx, state, domain.PhaseTransformation, tm.TargetTable,
			tr.Processed, tm.Confidence, map[string]string{rollback.MetaKind: rollback.KindTableComplete}); err != nil {
			return err
		}

		report.Tables = append(report.Tables, tr)
		if o.opts.CalculateQuality {
			report.QualityTrends = append(report.QualityTrends, QualityTrend{
				Table:  tm.TargetTable,
				Trend:  monitor.TrendFor(tm.TargetTable),
				Scores: snapshotScores(monitor.Snapshots(tm.TargetTable)),
			})
		}
		o.sink.Publish(Event{Name: EventEntityComplete, Table: tm.TargetTable, Payload: map[string]any{
			"loaded":  tr.Loaded,
			"skipped": tr.Skipped,
		}})
	}
	return nil
}

// verify compares persisted per-table counts for this run against source row
// counts and flags shortfalls above 10%.
func (o *Orchestrator) verify(ctx context.Context, state *domain.MigrationState, report *Report) error {
	for i := range report.Tables {
		tr := &report.Tables[i]
		persisted, err := o.store.FindMany(ctx, tr.Table, repository.Filter{"migration_id": state.ID})
		if err != nil {
			return fmt.Errorf("failed to verify %s: %w", tr.Table, err)
		}
		if tr.SourceRows == 0 {
			continue
		}
		if float64(len(persisted)) < 0.9*float64(tr.SourceRows) {
			tr.ShortfallFlagged = true
			if err := o.manager.RecordError(ctx, state, domain.PhaseVerification, tr.Table,
				fmt.Sprintf("persisted %d of %d source rows", len(persisted), tr.SourceRows),
				domain.SeverityMedium); err != nil {
				return err
			}
		}
	}
	return nil
}

// fail terminates a run without rollback: nothing was loaded, or the failure
// is a decision rather than damage.
func (o *Orchestrator) fail(ctx context.Context, state *domain.MigrationState, report *Report, phase domain.Phase, reason string) *Report {
	if recErr := o.manager.RecordError(ctx, state, phase, "", reason, domain.SeverityHigh); recErr != nil {
		o.logger.Warn("could not record run error", zap.Error(recErr))
	}
	if err := state.Transition(domain.MigrationFailed); err != nil {
		o.logger.Warn("could not mark migration failed", zap.Error(err))
	}

	report.Exit = ExitFailure
	if ctx.Err() != nil {
		report.Exit = ExitAborted
	}
	report.Reason = reason
	report.FinishedAt = time.Now().UTC()
	o.sink.Publish(Event{Name: EventMigrationComplete, Payload: map[string]any{
		"migration_id": report.MigrationID.String(),
		"exit":         string(report.Exit),
		"reason":       reason,
	}})
	return report
}

// failWithRollback handles unrecoverable faults mid-load: it records the
// error, evaluates the rollback ladder and executes the chosen strategy.
func (o *Orchestrator) failWithRollback(ctx context.Context, state *domain.MigrationState, report *Report, cause error) *Report {
	if recErr := o.manager.RecordError(ctx, state, domain.PhaseTransformation, "", cause.Error(), domain.SeverityCriticalRun); recErr != nil {
		o.logger.Warn("could not record run error", zap.Error(recErr))
	}

	report.Reason = cause.Error()
	report.Exit = ExitFailure
	if ctx.Err() != nil {
		report.Exit = ExitAborted
	}

	if o.opts.EnableRollback {
		strategy := o.manager.DetermineRollbackStrategy(state)
		report.Strategy = &strategy
		// Rollback executes against a background context: the run may have
		// been cancelled, but the cleanup must still go through.
		result, err := o.manager.ExecuteRollback(context.WithoutCancel(ctx), state, strategy)
		report.Rollback = &result
		if err != nil {
			o.logger.Error("rollback failed", zap.Error(err))
		} else if report.Exit == ExitFailure {
			report.Exit = ExitRolledBack
		}
	} else {
		if err := state.Transition(domain.MigrationFailed); err != nil {
			o.logger.Warn("could not mark migration failed", zap.Error(err))
		}
	}

	report.FinishedAt = time.Now().UTC()
	o.sink.Publish(Event{Name: EventMigrationComplete, Payload: map[string]any{
		"migration_id": report.MigrationID.String(),
		"exit":         string(report.Exit),
		"reason":       report.Reason,
	}})
	return report
}

// mappingsInLoadOrder returns the run's table mappings in referential order.
func (o *Orchestrator) mappingsInLoadOrder(report *Report) []domain.TableMapping {
	var out []domain.TableMapping
	for _, table := range domain.TableLoadOrder {
		for _, tm := range report.Mapping.TableMappings {
			if tm.TargetTable == table {
				out = append(out, tm)
				break
			}
		}
	}
	return out
}

// rowNumber converts a zero-based data row index into the one-based
// spreadsheet row it came from.
func rowNumber(sheet domain.SheetAnalysis, i int) int {
	return sheet.HeaderRowIndex + 2 + i
}

func totalLoaded(report *Report) int {
	total := 0
	for _, t := range report.Tables {
		total += t.Loaded
	}
	return total
}

func hasWarnings(report *Report) bool {
	if len(report.QualityAlerts) > 0 {
		return true
	}
	for _, t := range report.Tables {
		if t.Skipped > 0 || t.WarningCount > 0 || t.ShortfallFlagged {
			return true
		}
	}
	return false
}
