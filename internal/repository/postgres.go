package repository

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/crmigrate/crmigrate/internal/domain"
)

type postgresRecordStore struct {
	pool *pgxpool.Pool
}

// NewPostgresRecordStore wires a RecordStore backed by pgxpool.
func NewPostgresRecordStore(pool *pgxpool.Pool) RecordStore {
	return &postgresRecordStore{pool: pool}
}

var identifierPattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

func (s *postgresRecordStore) CreateMany(ctx context.Context, table string, records []domain.Record, skipDuplicates bool) (int, error) {
	if s.pool == nil {
		return 0, fmt.Errorf("record store not initialized")
	}
	if len(records) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	for _, rec := range records {
		if rec.Table() != table {
			return 0, fmt.Errorf("record for table %s given to batch for %s", rec.Table(), table)
		}
		query, args, err := insertStatement(rec, skipDuplicates)
		if err != nil {
			return 0, err
		}
		batch.Queue(query, args...)
	}

	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()

	inserted := 0
	for range records {
		tag, err := results.Exec()
		if err != nil {
			return inserted, fmt.Errorf("failed to insert into %s: %w", table, err)
		}
		inserted += int(tag.RowsAffected())
	}
	return inserted, nil
}

func insertStatement(rec domain.Record, skipDuplicates bool) (string, []any, error) {
	conflict := ""
	if skipDuplicates {
		conflict = " ON CONFLICT DO NOTHING"
	}

	switch r := rec.(type) {
	case domain.Organization:
		return `INSERT INTO organizations
			(id, migration_id, name, priority, segment, phone, email, website,
			 address_line, city, state, zip, estimated_revenue, employee_count,
			 active, notes, last_contacted_at, confidence)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)` + conflict,
			[]any{r.ID, r.MigrationID, r.Name, r.Priority, r.Segment, r.Phone, r.Email, r.Website,
				r.AddressLine, r.City, r.State, r.Zip, r.EstimatedRevenue, r.EmployeeCount,
				r.Active, r.Notes, r.LastContactedAt, r.Confidence}, nil
	case domain.Contact:
		return `INSERT INTO contacts
			(id, migration_id, organization_id, first_name, last_name, title,
			 email, phone, is_primary, notes, last_contacted_at, confidence)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)` + conflict,
			[]any{r.ID, r.MigrationID, r.OrganizationID, r.FirstName, r.LastName, r.Title,
				r.Email, r.Phone, r.IsPrimary, r.Notes, r.LastContactedAt, r.Confidence}, nil
	case domain.Opportunity:
		return `INSERT INTO opportunities
			(id, migration_id, organization_id, contact_id, name, stage,
			 probability, value, close_date, closed_reason, confidence)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)` + conflict,
			[]any{r.ID, r.MigrationID, r.OrganizationID, r.ContactID, r.Name, r.Stage,
				r.Probability, r.Value, r.CloseDate, r.ClosedReason, r.Confidence}, nil
	case domain.Interaction:
		return `INSERT INTO interactions
			(id, migration_id, organization_id, contact_id, opportunity_id,
			 type, occurred_at, subject, notes, confidence)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)` + conflict,
			[]any{r.ID, r.MigrationID, r.OrganizationID, r.ContactID, r.OpportunityID,
				r.Type, r.OccurredAt, r.Subject, r.Notes, r.Confidence}, nil
	default:
		return "", nil, fmt.Errorf("unsupported record type for table %s", rec.Table())
	}
}

func (s *postgresRecordStore) FindMany(ctx context.Context, table string, filter Filter) ([]domain.Record, error) {
	if s.pool == nil {
		return nil, fmt.Errorf("record store not initialized")
	}

	columns, scan, err := tableColumns(table)
	if err != nil {
		return nil, err
	}
	where, args, err := whereClause(filter)
	if err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx,
		fmt.Sprintf(`SELECT %s FROM %s%s ORDER BY created_at`, columns, table, where),
		args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", table, err)
	}
	defer rows.Close()

	var records []domain.Record
	for rows.Next() {
		rec, scanErr := scan(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan %s row: %w", table, scanErr)
		}
		records = append(records, rec)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("failed to iterate %s rows: %w", table, rowsErr)
	}
	return records, nil
}

func (s *postgresRecordStore) FindFirst(ctx context.Context, table string, filter Filter) (domain.Record, error) {
	records, err := s.FindMany(ctx, table, filter)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, ErrNotFound
	}
	return records[0], nil
}

func (s *postgresRecordStore) Count(ctx context.Context, table string) (int64, error) {
	if s.pool == nil {
		return 0, fmt.Errorf("record store not initialized")
	}
	if _, _, err := tableColumns(table); err != nil {
		return 0, err
	}

	var count int64
	if err := s.pool.QueryRow(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, table)).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", table, err)
	}
	return count, nil
}

func (s *postgresRecordStore) Update(ctx context.Context, table string, id uuid.UUID, fields map[string]any) error {
	if s.pool == nil {
		return fmt.Errorf("record store not initialized")
	}
	if _, _, err := tableColumns(table); err != nil {
		return err
	}
	if len(fields) == 0 {
		return nil
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		if !identifierPattern.MatchString(k) {
			return fmt.Errorf("invalid update field %q", k)
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	assignments := make([]string, 0, len(keys))
	args := make([]any, 0, len(keys)+1)
	for i, k := range keys {
		assignments = append(assignments, fmt.Sprintf("%s = $%d", k, i+1))
		args = append(args, fields[k])
	}
	args = append(args, id)

	tag, err := s.pool.Exec(ctx,
		fmt.Sprintf(`UPDATE %s SET %s WHERE id = $%d`, table, strings.Join(assignments, ", "), len(args)),
		args...)
	if err != nil {
		return fmt.Errorf("failed to update %s: %w", table, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *postgresRecordStore) DeleteWhere(ctx context.Context, table string, filter Filter) (int64, error) {
	if s.pool == nil {
		return 0, fmt.Errorf("record store not initialized")
	}
	if _, _, err := tableColumns(table); err != nil {
		return 0, err
	}
	if len(filter) == 0 {
		return 0, errors.New("refusing to delete without a filter")
	}

	where, args, err := whereClause(filter)
	if err != nil {
		return 0, err
	}

	tag, err := s.pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %s%s`, table, where), args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete from %s: %w", table, err)
	}
	return tag.RowsAffected(), nil
}

// whereClause renders a Filter as SQL. Keys are validated as identifiers
// before interpolation; values always bind as parameters.
func whereClause(filter Filter) (string, []any, error) {
	if len(filter) == 0 {
		return "", nil, nil
	}

	keys := make([]string, 0, len(filter))
	for k := range filter {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	conditions := make([]string, 0, len(keys))
	args := make([]any, 0, len(keys))
	for _, k := range keys {
		switch k {
		case "confidence_lt":
			args = append(args, filter[k])
			conditions = append(conditions, fmt.Sprintf("confidence < $%d", len(args)))
		case "created_after":
			args = append(args, filter[k])
			conditions = append(conditions, fmt.Sprintf("created_at > $%d", len(args)))
		case "id_in":
			ids, ok := filter[k].([]uuid.UUID)
			if !ok {
				return "", nil, fmt.Errorf("id_in filter requires []uuid.UUID")
			}
			args = append(args, ids)
			conditions = append(conditions, fmt.Sprintf("id = ANY($%d)", len(args)))
		default:
			if !identifierPattern.MatchString(k) {
				return "", nil, fmt.Errorf("invalid filter key %q", k)
			}
			args = append(args, filter[k])
			conditions = append(conditions, fmt.Sprintf("%s = $%d", k, len(args)))
		}
	}
	return " WHERE " + strings.Join(conditions, " AND "), args, nil
}

type rowScanner func(pgx.Rows) (domain.Record, error)

func tableColumns(table string) (string, rowScanner, error) {
	switch table {
	case domain.TableOrganizations:
		return `id, migration_id, name, priority, segment, phone, email, website,
			address_line, city, state, zip, estimated_revenue, employee_count,
			active, notes, last_contacted_at, confidence, created_at, updated_at`, scanOrganization, nil
	case domain.TableContacts:
		return `id, migration_id, organization_id, first_name, last_name, title,
			email, phone, is_primary, notes, last_contacted_at, confidence,
			created_at, updated_at`, scanContact, nil
	case domain.TableOpportunities:
		return `id, migration_id, organization_id, contact_id, name, stage,
			probability, value, close_date, closed_reason, confidence,
			created_at, updated_at`, scanOpportunity, nil
	case domain.TableInteractions:
		return `id, migration_id, organization_id, contact_id, opportunity_id,
			type, occurred_at, subject, notes, confidence, created_at`, scanInteraction, nil
	default:
		return "", nil, fmt.Errorf("unknown table %q", table)
	}
}

func scanOrganization(rows pgx.Rows) (domain.Record, error) {
	var (
		org           domain.Organization
		lastContacted pgtype.Timestamptz
	)
	if err := rows.Scan(
		&org.ID, &org.MigrationID, &org.Name, &org.Priority, &org.Segment,
		&org.Phone, &org.Email, &org.Website, &org.AddressLine, &org.City,
		&org.State, &org.Zip, &org.EstimatedRevenue, &org.EmployeeCount,
		&org.Active, &org.Notes, &lastContacted, &org.Confidence,
		&org.CreatedAt, &org.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if lastContacted.Valid {
		t := lastContacted.Time
		org.LastContactedAt = &t
	}
	return org, nil
}

func scanContact(rows pgx.Rows) (domain.Record, error) {
	var (
		c             domain.Contact
		lastContacted pgtype.Timestamptz
	)
	if err := rows.Scan(
		&c.ID, &c.MigrationID, &c.OrganizationID, &c.FirstName, &c.LastName,
		&c.Title, &c.Email, &c.Phone, &c.IsPrimary, &c.Notes, &lastContacted,
		&c.Confidence, &c.CreatedAt, &c.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if lastContacted.Valid {
		t := lastContacted.Time
		c.LastContactedAt = &t
	}
	return c, nil
}

func scanOpportunity(rows pgx.Rows) (domain.Record, error) {
	var (
		o         domain.Opportunity
		closeDate pgtype.Date
	)
	if err := rows.Scan(
		&o.ID, &o.MigrationID, &o.OrganizationID, &o.ContactID, &o.Name,
		&o.Stage, &o.Probability, &o.Value, &closeDate, &o.ClosedReason,
		&o.Confidence, &o.CreatedAt, &o.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if closeDate.Valid {
		t := closeDate.Time
		o.CloseDate = &t
	}
	return o, nil
}

func scanInteraction(rows pgx.Rows) (domain.Record, error) {
	var i domain.Interaction
	if err := rows.Scan(
		&i.ID, &i.MigrationID, &i.OrganizationID, &i.ContactID, &i.OpportunityID,
		&i.Type, &i.OccurredAt, &i.Subject, &i.Notes, &i.Confidence, &i.CreatedAt,
	); err != nil {
		return nil, err
	}
	return i, nil
}
