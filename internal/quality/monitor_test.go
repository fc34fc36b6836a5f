package quality

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crmigrate/crmigrate/internal/domain"
)

func resultWithScore(score int) domain.ValidationResult {
	return domain.ValidationResult{
		IsValid:          true,
		ProcessedCount:   10,
		DataQualityScore: score,
	}
}

func TestRecordRaisesBelowMinimumAlert(t *testing.T) {
	var seen []Alert
	m := NewMonitor(DefaultConfig(), func(a Alert) { seen = append(seen, a) })

	m.Record("organizations", resultWithScore(85))
	m.Record("organizations", resultWithScore(60))

	alerts := m.Alerts()
	require.NotEmpty(t, alerts)
	assert.Equal(t, "organizations", alerts[0].Table)
	assert.Equal(t, 60, alerts[0].Score)
	assert.Contains(t, alerts[0].Message, "below minimum")
	assert.Equal(t, alerts, seen, "callback should see the same alerts")
}

func TestRecordRaisesDropAlert(t *testing.T) {
	m := NewMonitor(Config{MinScore: 50, DropThreshold: 15}, nil)

	m.Record("contacts", resultWithScore(95))
	m.Record("contacts", resultWithScore(78))

	alerts := m.Alerts()
	require.Len(t, alerts, 1)
	assert.Contains(t, alerts[0].Message, "dropped 17 points")
}

func TestRecordDropBelowThresholdIsQuiet(t *testing.T) {
	m := NewMonitor(Config{MinScore: 50, DropThreshold: 15}, nil)

	m.Record("contacts", resultWithScore(95))
	m.Record("contacts", resultWithScore(85))

	assert.Empty(t, m.Alerts())
}

func TestTrendFor(t *testing.T) {
	m := NewMonitor(DefaultConfig(), nil)

	assert.Equal(t, TrendStable, m.TrendFor("organizations"), "no history is stable")

	m.Record("organizations", resultWithScore(80))
	m.Record("organizations", resultWithScore(90))
	assert.Equal(t, TrendImproving, m.TrendFor("organizations"))

	m.Record("contacts", resultWithScore(90))
	m.Record("contacts", resultWithScore(82))
	assert.Equal(t, TrendDegrading, m.TrendFor("contacts"))

	m.Record("opportunities", resultWithScore(88))
	m.Record("opportunities", resultWithScore(90))
	assert.Equal(t, TrendStable, m.TrendFor("opportunities"))
}

func TestSnapshotHistoryIsTrimmedToWindow(t *testing.T) {
	m := NewMonitor(Config{MinScore: 0, DropThreshold: 100, TrendWindow: 3}, nil)

	for _, score := range []int{70, 75, 80, 85, 90} {
		m.Record("organizations", resultWithScore(score))
	}

	history := m.Snapshots("organizations")
	require.Len(t, history, 3)
	assert.Equal(t, 80, history[0].Score)
	assert.Equal(t, 90, history[2].Score)
}
