// Package domain defines the core types shared across the migration engine.
package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Target table names, in referential load order.
const (
	TableOrganizations = "organizations"
	TableContacts      = "contacts"
	TableOpportunities = "opportunities"
	TableInteractions  = "interactions"
)

// TableLoadOrder lists the target tables in dependency order. Organizations
// must exist before any table that references them.
var TableLoadOrder = []string{
	TableOrganizations,
	TableContacts,
	TableOpportunities,
	TableInteractions,
}

// Priority ranks an organization from A (highest) to D.
type Priority string

const (
	PriorityA Priority = "A"
	PriorityB Priority = "B"
	PriorityC Priority = "C"
	PriorityD Priority = "D"
)

// Segment classifies an organization's market segment.
type Segment string

const (
	SegmentRestaurant  Segment = "RESTAURANT"
	SegmentRetail      Segment = "RETAIL"
	SegmentDistributor Segment = "DISTRIBUTOR"
	SegmentHospitality Segment = "HOSPITALITY"
	SegmentOther       Segment = "OTHER"
)

// Stage tracks an opportunity through the sales pipeline.
type Stage string

const (
	StageProspect    Stage = "PROSPECT"
	StageQualified   Stage = "QUALIFIED"
	StageProposal    Stage = "PROPOSAL"
	StageNegotiation Stage = "NEGOTIATION"
	StageClosedWon   Stage = "CLOSED_WON"
	StageClosedLost  Stage = "CLOSED_LOST"
)

// IsClosed reports whether the stage is terminal.
func (s Stage) IsClosed() bool {
	return s == StageClosedWon || s == StageClosedLost
}

// InteractionType identifies how a customer touchpoint happened.
type InteractionType string

const (
	InteractionCall    InteractionType = "CALL"
	InteractionEmail   InteractionType = "EMAIL"
	InteractionMeeting InteractionType = "MEETING"
	InteractionVisit   InteractionType = "VISIT"
	InteractionDemo    InteractionType = "DEMO"
	InteractionTasting InteractionType = "TASTING"
)

// IsInPerson reports whether the interaction requires being on site.
func (t InteractionType) IsInPerson() bool {
	return t == InteractionVisit || t == InteractionDemo || t == InteractionTasting
}

// Record is the tagged variant flowing through transform, validation and the
// record store. Each target entity type has its own concrete implementation so
// field access stays type checked end to end.
type Record interface {
	Table() string
	RecordID() uuid.UUID
}

// Organization is a customer account row in the target schema.
type Organization struct {
	ID               uuid.UUID  `json:"id"`
	MigrationID      uuid.UUID  `json:"migration_id"`
	Name             string     `json:"name"`
	Priority         Priority   `json:"priority"`
	Segment          Segment    `json:"segment"`
	Phone            string     `json:"phone"`
	Email            string     `json:"email"`
	Website          string     `json:"website"`
	AddressLine      string     `json:"address_line"`
	City             string     `json:"city"`
	State            string     `json:"state"`
	Zip              string     `json:"zip"`
	EstimatedRevenue *float64   `json:"estimated_revenue"`
	EmployeeCount    *int       `json:"employee_count"`
	Active           bool       `json:"active"`
	Notes            string     `json:"notes"`
	LastContactedAt  *time.Time `json:"last_contacted_at"`
	Confidence       float64    `json:"confidence"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

func (o Organization) Table() string       { return TableOrganizations }
func (o Organization) RecordID() uuid.UUID { return o.ID }

// Contact is a person attached to an organization.
type Contact struct {
	ID              uuid.UUID  `json:"id"`
	MigrationID     uuid.UUID  `json:"migration_id"`
	OrganizationID  uuid.UUID  `json:"organization_id"`
	FirstName       string     `json:"first_name"`
	LastName        string     `json:"last_name"`
	Title           string     `json:"title"`
	Email           string     `json:"email"`
	Phone           string     `json:"phone"`
	IsPrimary       bool       `json:"is_primary"`
	Notes           string     `json:"notes"`
	LastContactedAt *time.Time `json:"last_contacted_at"`
	Confidence      float64    `json:"confidence"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

func (c Contact) Table() string       { return TableContacts }
func (c Contact) RecordID() uuid.UUID { return c.ID }

// FullName joins the contact name parts for display and duplicate matching.
func (c Contact) FullName() string {
	return strings.TrimSpace(c.FirstName + " " + c.LastName)
}

// Opportunity is a potential deal against an organization.
type Opportunity struct {
	ID             uuid.UUID  `json:"id"`
	MigrationID    uuid.UUID  `json:"migration_id"`
	OrganizationID uuid.UUID  `json:"organization_id"`
	ContactID      *uuid.UUID `json:"contact_id"`
	Name           string     `json:"name"`
	Stage          Stage      `json:"stage"`
	Probability    int        `json:"probability"`
	Value          float64    `json:"value"`
	CloseDate      *time.Time `json:"close_date"`
	ClosedReason   string     `json:"closed_reason"`
	Confidence     float64    `json:"confidence"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

func (o Opportunity) Table() string       { return TableOpportunities }
func (o Opportunity) RecordID() uuid.UUID { return o.ID }

// Interaction is a logged touchpoint with a customer.
type Interaction struct {
	ID             uuid.UUID       `json:"id"`
	MigrationID    uuid.UUID       `json:"migration_id"`
	OrganizationID uuid.UUID       `json:"organization_id"`
	ContactID      *uuid.UUID      `json:"contact_id"`
	OpportunityID  *uuid.UUID      `json:"opportunity_id"`
	Type           InteractionType `json:"type"`
	OccurredAt     time.Time       `json:"occurred_at"`
	Subject        string          `json:"subject"`
	Notes          string          `json:"notes"`
	Confidence     float64         `json:"confidence"`
	CreatedAt      time.Time       `json:"created_at"`
}

func (i Interaction) Table() string       { return TableInteractions }
func (i Interaction) RecordID() uuid.UUID { return i.ID }
