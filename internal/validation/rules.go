// Package validation applies the four integrity layers (entity/domain,
// business rule, referential, duplicate) to transformed records and scores
// data quality.
package validation

import (
	"regexp"
	"time"

	"github.com/crmigrate/crmigrate/internal/domain"
)

// ProbabilityBand is the allowed probability range for a pipeline stage.
type ProbabilityBand struct {
	Min int
	Max int
}

// ServiceWindow is a daily time window during which in-person interactions
// should not be scheduled.
type ServiceWindow struct {
	StartHour int
	EndHour   int
}

// QualityPenalties holds the fixed deductions applied when scoring a record's
// completeness. Scores start at 100 and floor at 0.
type QualityPenalties struct {
	MissingName       int
	MissingPriority   int
	NoContactMethod   int
	MissingSegment    int
	MissingAddress    int
	MissingTitle      int
	MissingStage      int
	MissingValue      int
	MissingCloseDate  int
	MissingSubject    int
	StaleContact      int
	VeryStaleContact  int
	StaleContactAfter time.Duration
	VeryStaleAfter    time.Duration
}

// RuleSet carries the declarative rule data for the schema/domain layer and
// quality scoring. It is plain data so tests and callers can substitute their
// own thresholds without touching the validator code.
type RuleSet struct {
	EmailPattern   *regexp.Regexp
	PhonePattern   *regexp.Regexp
	MinPhoneDigits int
	ZipPattern     *regexp.Regexp
	StatePattern   *regexp.Regexp
	URLPattern     *regexp.Regexp

	MaxRevenue          float64
	MaxEmployees        int
	MaxProbability      int
	MaxInteractionAge   time.Duration
	MaxCloseDateHorizon time.Duration

	Priorities       []domain.Priority
	Segments         []domain.Segment
	Stages           []domain.Stage
	InteractionTypes []domain.InteractionType

	StageBands     map[domain.Stage]ProbabilityBand
	ServiceWindows []ServiceWindow

	// HighValueThreshold is the opportunity value above which an assigned
	// contact is required.
	HighValueThreshold float64

	Penalties QualityPenalties
}

// DefaultRuleSet returns the production rule data.
func DefaultRuleSet() *RuleSet {
	return &RuleSet{
		EmailPattern:   regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`),
		PhonePattern:   regexp.MustCompile(`^[\d\s()+.\-]+$`),
		MinPhoneDigits: 10,
		ZipPattern:     regexp.MustCompile(`^\d{5}(-\d{4})?$`),
		StatePattern:   regexp.MustCompile(`^[A-Z]{2}$`),
		URLPattern:     regexp.MustCompile(`^(https?://)?[\w.-]+\.[a-zA-Z]{2,}`),

		MaxRevenue:          1e9,
		MaxEmployees:        100000,
		MaxProbability:      100,
		MaxInteractionAge:   5 * 365 * 24 * time.Hour,
		MaxCloseDateHorizon: 2 * 365 * 24 * time.Hour,

		Priorities: []domain.Priority{domain.PriorityA, domain.PriorityB, domain.PriorityC, domain.PriorityD},
		Segments: []domain.Segment{
			domain.SegmentRestaurant, domain.SegmentRetail, domain.SegmentDistributor,
			domain.SegmentHospitality, domain.SegmentOther,
		},
		Stages: []domain.Stage{
			domain.StageProspect, domain.StageQualified, domain.StageProposal,
			domain.StageNegotiation, domain.StageClosedWon, domain.StageClosedLost,
		},
		InteractionTypes: []domain.InteractionType{
			domain.InteractionCall, domain.InteractionEmail, domain.InteractionMeeting,
			domain.InteractionVisit, domain.InteractionDemo, domain.InteractionTasting,
		},

		StageBands: map[domain.Stage]ProbabilityBand{
			domain.StageProspect:    {Min: 0, Max: 25},
			domain.StageQualified:   {Min: 20, Max: 50},
			domain.StageProposal:    {Min: 40, Max: 75},
			domain.StageNegotiation: {Min: 60, Max: 90},
			domain.StageClosedWon:   {Min: 100, Max: 100},
			domain.StageClosedLost:  {Min: 0, Max: 0},
		},

		// Lunch and dinner service; on-site interactions should avoid both.
		ServiceWindows: []ServiceWindow{
			{StartHour: 11, EndHour: 14},
			{StartHour: 17, EndHour: 22},
		},

		HighValueThreshold: 10000,

		Penalties: QualityPenalties{
			MissingName:       20,
			MissingPriority:   10,
			NoContactMethod:   15,
			MissingSegment:    5,
			MissingAddress:    5,
			MissingTitle:      5,
			MissingStage:      10,
			MissingValue:      10,
			MissingCloseDate:  10,
			MissingSubject:    5,
			StaleContact:      10,
			VeryStaleContact:  20,
			StaleContactAfter: 180 * 24 * time.Hour,
			VeryStaleAfter:    365 * 24 * time.Hour,
		},
	}
}

func (r *RuleSet) validPriority(p domain.Priority) bool {
	for _, v := range r.Priorities {
		if v == p {
			return true
		}
	}
	return false
}

func (r *RuleSet) validSegment(s domain.Segment) bool {
	for _, v := range r.Segments {
		if v == s {
			return true
		}
	}
	return false
}

func (r *RuleSet) validStage(s domain.Stage) bool {
	for _, v := range r.Stages {
		if v == s {
			return true
		}
	}
	return false
}

func (r *RuleSet) validInteractionType(t domain.InteractionType) bool {
	for _, v := range r.InteractionTypes {
		if v == t {
			return true
		}
	}
	return false
}

// insideServiceWindow reports whether a timestamp's local hour falls inside
// any configured service window.
func (r *RuleSet) insideServiceWindow(ts time.Time) bool {
	hour := ts.Hour()
	for _, w := range r.ServiceWindows {
		if hour >= w.StartHour && hour < w.EndHour {
			return true
		}
	}
	return false
}
