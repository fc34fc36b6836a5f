package migration

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/crmigrate/crmigrate/internal/domain"
	"github.com/crmigrate/crmigrate/internal/repository"
	"github.com/crmigrate/crmigrate/internal/rollback"
)

func writeWorkbook(t *testing.T, sheets map[string][][]any) string {
	t.Helper()

	f := excelize.NewFile()
	first := true
	for name, rows := range sheets {
		if first {
			require.NoError(t, f.SetSheetName(f.GetSheetName(0), name))
			first = false
		} else {
			_, err := f.NewSheet(name)
			require.NoError(t, err)
		}
		for i, row := range rows {
			cell, err := excelize.CoordinatesToCellName(1, i+1)
			require.NoError(t, err)
			values := row
			require.NoError(t, f.SetSheetRow(name, cell, &values))
		}
	}

	path := filepath.Join(t.TempDir(), "crm_export.xlsx")
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())
	return path
}

func crmWorkbook(t *testing.T) string {
	return writeWorkbook(t, map[string][][]any{
		"Organizations": {
			{"Company Name", "Priority", "Segment", "Phone", "Email", "City", "State", "Estimated Revenue"},
			{"Acme Restaurant Group", "A", "Restaurant", "(212) 555-0100", "ops@acme.example", "New York", "NY", "250000"},
			{"Blue Harbor Seafood", "B", "Distributor", "(415) 555-0199", "info@blueharbor.example", "San Francisco", "CA", "120000"},
			{"Cedar Valley Provisions", "C", "Retail", "(303) 555-0142", "sales@cedarvalley.example", "Denver", "CO", "90000"},
		},
		"Contacts": {
			{"Organization", "First Name", "Last Name", "Title", "Email"},
			{"Acme Restaurant Group", "Dana", "Reyes", "Purchasing Manager", "dana@acme.example"},
			{"Blue Harbor Seafood", "Sam", "Ortiz", "Owner", "sam@blueharbor.example"},
		},
	})
}

func dryRunOptions() Options {
	opts := DefaultOptions()
	opts.DryRun = true
	return opts
}

func TestRunDryRunEndToEnd(t *testing.T) {
	path := crmWorkbook(t)

	var events []string
	sink := SinkFunc(func(e Event) { events = append(events, e.Name) })
	o := New(nil, nil, nil, sink, dryRunOptions())

	report, err := o.Run(context.Background(), path)
	require.NoError(t, err)
	require.NotNil(t, report)

	assert.Equal(t, ExitSuccess, report.Exit)
	assert.True(t, report.DryRun)
	assert.False(t, report.Mapping.RequiresHumanReview)
	assert.Greater(t, report.Mapping.OverallConfidence, 7.0)

	require.Len(t, report.Tables, 2)

	// Organizations load before the tables that reference them.
	orgs := report.Tables[0]
	assert.Equal(t, domain.TableOrganizations, orgs.Table)
	assert.Equal(t, 3, orgs.SourceRows)
	assert.Equal(t, 3, orgs.Processed)
	assert.Equal(t, 3, orgs.Loaded)
	assert.Equal(t, 0, orgs.Skipped)
	assert.False(t, orgs.ShortfallFlagged)

	contacts := report.Tables[1]
	assert.Equal(t, domain.TableContacts, contacts.Table)
	assert.Equal(t, 2, contacts.Loaded)
	assert.Equal(t, 0, contacts.Skipped)

	require.Len(t, report.QualityTrends, 2)
	for _, qt := range report.QualityTrends {
		assert.NotEmpty(t, qt.Scores, "each loaded table reports its batch scores")
	}

	assert.Contains(t, events, EventMigrationStart)
	assert.Contains(t, events, EventValidationStart)
	assert.Contains(t, events, EventEntityComplete)
	assert.Contains(t, events, EventMigrationComplete)

	checkpoints, err := o.Manager().ListCheckpoints(context.Background(), report.MigrationID)
	require.NoError(t, err)

	kinds := map[string]int{}
	for _, cp := range checkpoints {
		kinds[cp.Metadata[rollback.MetaKind]]++
	}
	assert.Equal(t, 2, kinds[rollback.KindTableComplete], "one completion checkpoint per loaded table")
	assert.GreaterOrEqual(t, kinds[rollback.KindPhase], 2, "mapping and completion phase checkpoints")
}

func TestRunAbortsOnCancelledContext(t *testing.T) {
	path := crmWorkbook(t)

	o := New(nil, nil, nil, nil, dryRunOptions())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := o.Run(ctx, path)
	require.Error(t, err)
	require.NotNil(t, report)

	assert.Equal(t, ExitAborted, report.Exit)
	assert.Contains(t, report.Reason, "aborted")

	// Cleanup still runs to completion on a cancelled run.
	require.NotNil(t, report.Strategy)
	assert.Equal(t, domain.RollbackFull, report.Strategy.Type)
	require.NotNil(t, report.Rollback)
	assert.True(t, report.Rollback.Success)
}

func TestRunAbortsOnCriticalSampleErrorRate(t *testing.T) {
	path := writeWorkbook(t, map[string][][]any{
		"Organizations": {
			{"Company Name", "Priority", "Phone", "Email"},
			{"Acme Restaurant Group", "B", "(212) 555-0100", "ops@acme.example"},
			{"", "B", "(415) 555-0199", "info@blueharbor.example"},
			{"", "C", "(303) 555-0142", "sales@cedarvalley.example"},
			{"Cedar Valley Provisions", "C", "(303) 555-0143", "hello@cedarvalley.example"},
		},
	})

	o := New(nil, nil, nil, nil, dryRunOptions())

	report, err := o.Run(context.Background(), path)
	require.NoError(t, err)
	require.NotNil(t, report)

	assert.Equal(t, ExitFailure, report.Exit)
	assert.Contains(t, report.Reason, "not safe to continue")
	assert.Empty(t, report.Tables, "nothing may load after a critical sample failure")
}

func TestRunEscalatesCriticalLoadErrors(t *testing.T) {
	// Every contact names an organization that does not exist, so the
	// reference layer rejects them all during the load phase.
	path := writeWorkbook(t, map[string][][]any{
		"Organizations": {
			{"Company Name", "Priority", "Phone", "Email", "Estimated Revenue"},
			{"Acme Restaurant Group", "A", "(212) 555-0100", "ops@acme.example", "250000"},
			{"Blue Harbor Seafood", "B", "(415) 555-0199", "info@blueharbor.example", "120000"},
		},
		"Contacts": {
			{"Organization", "First Name", "Last Name", "Title", "Email"},
			{"Summit Provisions", "Dana", "Reyes", "Purchasing Manager", "dana@summit.example"},
			{"North Peak Catering", "Sam", "Ortiz", "Owner", "sam@northpeak.example"},
		},
	})

	store := repository.NewMemoryRecordStore()
	states := repository.NewMemoryStateRepository()
	o := New(store, states, nil, nil, DefaultOptions())

	ctx := context.Background()
	report, err := o.Run(ctx, path)
	require.NoError(t, err)
	require.NotNil(t, report)

	state, err := states.Get(ctx, report.MigrationID)
	require.NoError(t, err)

	// Dangling references are skipped rows, but the run record carries them
	// at critical-run severity so rollback evaluation can see them.
	var critical []domain.MigrationError
	for _, e := range state.Errors {
		if e.Severity == domain.SeverityCriticalRun {
			critical = append(critical, e)
		}
	}
	require.NotEmpty(t, critical)
	assert.Equal(t, domain.TableContacts, critical[0].Table)
	assert.Contains(t, critical[0].Message, "critical validation errors")

	tp, ok := state.TableFor(domain.TableContacts)
	require.True(t, ok)
	assert.Equal(t, domain.TableFailed, tp.Status)

	strategy := o.Manager().DetermineRollbackStrategy(state)
	assert.Equal(t, domain.RollbackFull, strategy.Type)
	assert.Equal(t, 0.9, strategy.Confidence)
}

func TestRunFailsWhenNoSheetMaps(t *testing.T) {
	path := writeWorkbook(t, map[string][][]any{
		"Data": {
			{"alpha", "beta", "gamma"},
			{"1", "2", "3"},
		},
	})

	o := New(nil, nil, nil, nil, dryRunOptions())

	report, err := o.Run(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, ExitFailure, report.Exit)
	assert.Contains(t, report.Reason, "no sheet could be mapped")
	assert.Equal(t, []string{"Data"}, report.Mapping.UnmappedSheets)
}

func TestRunFailsOnUnreadableWorkbook(t *testing.T) {
	o := New(nil, nil, nil, nil, dryRunOptions())

	report, err := o.Run(context.Background(), filepath.Join(t.TempDir(), "missing.xlsx"))
	require.Error(t, err)
	require.NotNil(t, report)
	assert.Equal(t, ExitFailure, report.Exit)
}

func TestResolverRoundTrip(t *testing.T) {
	r := NewResolver()

	org := domain.Organization{ID: uuid.New(), Name: "Acme Restaurant Group"}
	r.Register(org)

	id, ok := r.Organization("  acme restaurant group ")
	require.True(t, ok)
	assert.Equal(t, org.ID, id)

	_, ok = r.Organization("unknown")
	assert.False(t, ok)
}
