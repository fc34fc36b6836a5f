// Package quality aggregates validation outputs over time into trend and
// alert data. It sits downstream of the pipeline, off the critical path of a
// single run.
package quality

import (
	"fmt"
	"sync"
	"time"

	"github.com/crmigrate/crmigrate/internal/domain"
)

// Trend describes the direction of recent quality snapshots.
type Trend string

const (
	TrendImproving Trend = "improving"
	TrendStable    Trend = "stable"
	TrendDegrading Trend = "degrading"
)

// Snapshot captures one validation pass for one table.
type Snapshot struct {
	Table        string    `json:"table"`
	Score        int       `json:"score"`
	ErrorCount   int       `json:"error_count"`
	WarningCount int       `json:"warning_count"`
	Processed    int       `json:"processed"`
	TakenAt      time.Time `json:"taken_at"`
}

// Alert is raised when a snapshot crosses a quality threshold.
type Alert struct {
	Table    string    `json:"table"`
	Score    int       `json:"score"`
	Message  string    `json:"message"`
	RaisedAt time.Time `json:"raised_at"`
}

// Config sets the monitor's alerting thresholds.
type Config struct {
	// MinScore triggers an alert when a snapshot's score falls below it.
	MinScore int
	// DropThreshold triggers an alert when a table's score falls by at
	// least this much against its previous snapshot.
	DropThreshold int
	// TrendWindow is the number of recent snapshots considered per table.
	TrendWindow int
}

// DefaultConfig returns the standard alerting thresholds.
func DefaultConfig() Config {
	return Config{
		MinScore:      70,
		DropThreshold: 15,
		TrendWindow:   5,
	}
}

// Monitor accumulates snapshots and raises alerts. Safe for concurrent use.
type Monitor struct {
	mu        sync.Mutex
	cfg       Config
	snapshots map[string][]Snapshot
	alerts    []Alert
	onAlert   func(Alert)
	now       func() time.Time
}

// NewMonitor creates a monitor. onAlert may be nil.
func NewMonitor(cfg Config, onAlert func(Alert)) *Monitor {
	if cfg.TrendWindow <= 0 {
		cfg.TrendWindow = DefaultConfig().TrendWindow
	}
	return &Monitor{
		cfg:       cfg,
		snapshots: map[string][]Snapshot{},
		onAlert:   onAlert,
		now:       time.Now,
	}
}

// Record folds one validation result into the trend data and evaluates the
// alert thresholds.
func (m *Monitor) Record(table string, result domain.ValidationResult) Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := Snapshot{
		Table:        table,
		Score:        result.DataQualityScore,
		ErrorCount:   result.ErrorCount,
		WarningCount: result.WarningCount,
		Processed:    result.ProcessedCount,
		TakenAt:      m.now(),
	}

	history := m.snapshots[table]

	if snap.Score < m.cfg.MinScore {
		m.raise(Alert{
			Table:    table,
			Score:    snap.Score,
			Message:  fmt.Sprintf("quality score %d below minimum %d", snap.Score, m.cfg.MinScore),
			RaisedAt: snap.TakenAt,
		})
	}
	if len(history) > 0 {
		previous := history[len(history)-1]
		if drop := previous.Score - snap.Score; drop >= m.cfg.DropThreshold {
			m.raise(Alert{
				Table:    table,
				Score:    snap.Score,
				Message:  fmt.Sprintf("quality score dropped %d points since previous run", drop),
				RaisedAt: snap.TakenAt,
			})
		}
	}

	history = append(history, snap)
	if len(history) > m.cfg.TrendWindow {
		history = history[len(history)-m.cfg.TrendWindow:]
	}
	m.snapshots[table] = history

	return snap
}

func (m *Monitor) raise(alert Alert) {
	m.alerts = append(m.alerts, alert)
	if m.onAlert != nil {
		m.onAlert(alert)
	}
}

// TrendFor reports the direction of a table's recent scores.
func (m *Monitor) TrendFor(table string) Trend {
	m.mu.Lock()
	defer m.mu.Unlock()

	history := m.snapshots[table]
	if len(history) < 2 {
		return TrendStable
	}

	first := history[0].Score
	last := history[len(history)-1].Score
	switch {
	case last-first >= 5:
		return TrendImproving
	case first-last >= 5:
		return TrendDegrading
	default:
		return TrendStable
	}
}

// Alerts returns every alert raised so far, oldest first.
func (m *Monitor) Alerts() []Alert {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Alert, len(m.alerts))
	copy(out, m.alerts)
	return out
}

// Snapshots returns the retained history for one table, oldest first.
func (m *Monitor) Snapshots(table string) []Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	history := m.snapshots[table]
	out := make([]Snapshot, len(history))
	copy(out, history)
	return out
}
