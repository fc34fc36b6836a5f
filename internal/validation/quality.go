package validation

import (
	"time"

	"github.com/crmigrate/crmigrate/internal/domain"
)

// QualityScore rates a record's completeness and freshness in [0, 100]. It
// starts at 100, subtracts the configured penalty for each missing or stale
// field, and floors at zero. Distinct from mapping confidence.
func (s *Service) QualityScore(rec domain.Record) int {
	score := 100
	p := s.rules.Penalties

	switch r := rec.(type) {
	case domain.Organization:
		if r.Name == "" {
			score -= p.MissingName
		}
		if r.Priority == "" {
			score -= p.MissingPriority
		}
		if r.Phone == "" && r.Email == "" {
			score -= p.NoContactMethod
		}
		if r.Segment == "" {
			score -= p.MissingSegment
		}
		if r.City == "" || r.State == "" {
			score -= p.MissingAddress
		}
		score -= s.stalenessPenalty(r.LastContactedAt)
	case domain.Contact:
		if r.FirstName == "" && r.LastName == "" {
			score -= p.MissingName
		}
		if r.Phone == "" && r.Email == "" {
			score -= p.NoContactMethod
		}
		if r.Title == "" {
			score -= p.MissingTitle
		}
		score -= s.stalenessPenalty(r.LastContactedAt)
	case domain.Opportunity:
		if r.Name == "" {
			score -= p.MissingName
		}
		if r.Stage == "" {
			score -= p.MissingStage
		}
		if r.Value == 0 {
			score -= p.MissingValue
		}
		if r.CloseDate == nil && !r.Stage.IsClosed() {
			score -= p.MissingCloseDate
		}
	case domain.Interaction:
		if r.Subject == "" {
			score -= p.MissingSubject
		}
	}

	if score < 0 {
		score = 0
	}
	return score
}

func (s *Service) stalenessPenalty(lastContact *time.Time) int {
	if lastContact == nil || lastContact.IsZero() {
		return 0
	}
	age := s.now().Sub(*lastContact)
	switch {
	case age > s.rules.Penalties.VeryStaleAfter:
		return s.rules.Penalties.VeryStaleContact
	case age > s.rules.Penalties.StaleContactAfter:
		return s.rules.Penalties.StaleContact
	default:
		return 0
	}
}
