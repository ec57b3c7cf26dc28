package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/Santonastaso/crm-demo-sub000/internal/domain"
	"github.com/Santonastaso/crm-demo-sub000/internal/service/segment"
)

// SegmentRepo implements segment.Repository against PostgreSQL.
type SegmentRepo struct{ db *sqlx.DB }

// NewSegmentRepo creates a Postgres-backed segment repository.
func NewSegmentRepo(db *sqlx.DB) *SegmentRepo { return &SegmentRepo{db: db} }

type segmentRow struct {
	domain.Segment
	CriteriaJSON []byte `db:"criteria"`
}

func (r *SegmentRepo) Get(ctx context.Context, id string) (*domain.Segment, error) {
	var row segmentRow
	err := r.db.GetContext(ctx, &row, `
		SELECT id, owner_id, name, criteria, auto_refresh, contact_count,
		       last_refreshed_at, created_at, updated_at
		FROM segments WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, segment.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get segment: %w", err)
	}
	s := row.Segment
	if len(row.CriteriaJSON) > 0 {
		if err := json.Unmarshal(row.CriteriaJSON, &s.Criteria); err != nil {
			return nil, fmt.Errorf("decode segment criteria: %w", err)
		}
	}
	return &s, nil
}

// ReplaceMembers locks the segment row so refreshes of one segment
// serialize, then swaps the membership inside the same transaction. Readers
// keep seeing the previous membership until commit.
func (r *SegmentRepo) ReplaceMembers(ctx context.Context, segmentID string, f segment.Filter, refreshedAt time.Time) (int, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin refresh: %w", err)
	}
	defer tx.Rollback()

	var locked string
	err = tx.GetContext(ctx, &locked, `SELECT id FROM segments WHERE id = $1 FOR UPDATE`, segmentID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, segment.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("lock segment: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM segment_members WHERE segment_id = $1`, segmentID); err != nil {
		return 0, fmt.Errorf("clear segment members: %w", err)
	}

	where, args := filterWhere(f, 3)
	res, err := tx.ExecContext(ctx, `
		INSERT INTO segment_members (segment_id, contact_id, added_at)
		SELECT $1, c.id, $2 FROM contacts c
		WHERE `+where,
		append([]any{segmentID, refreshedAt}, args...)...)
	if err != nil {
		return 0, fmt.Errorf("insert segment members: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE segments SET contact_count = $2, last_refreshed_at = $3, updated_at = $3
		WHERE id = $1`, segmentID, n, refreshedAt); err != nil {
		return 0, fmt.Errorf("update segment count: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit refresh: %w", err)
	}
	return int(n), nil
}

type contactRow struct {
	ID            string          `db:"id"`
	FirstName     string          `db:"first_name"`
	LastName      string          `db:"last_name"`
	Email         string          `db:"email"`
	Phone         string          `db:"phone"`
	Company       string          `db:"company"`
	City          string          `db:"city"`
	Status        string          `db:"status"`
	Source        string          `db:"source"`
	ProjectID     string          `db:"project_id"`
	LeadScore     int             `db:"lead_score"`
	Budget        sql.NullFloat64 `db:"budget"`
	Tags          pq.StringArray  `db:"tags"`
	PropertyTypes pq.StringArray  `db:"property_types"`
	CustomFields  []byte          `db:"custom_fields"`
	CreatedAt     time.Time       `db:"created_at"`
}

func (row contactRow) toDomain() (domain.Contact, error) {
	c := domain.Contact{
		ID:            row.ID,
		FirstName:     row.FirstName,
		LastName:      row.LastName,
		Email:         row.Email,
		Phone:         row.Phone,
		Company:       row.Company,
		City:          row.City,
		Status:        row.Status,
		Source:        row.Source,
		ProjectID:     row.ProjectID,
		LeadScore:     row.LeadScore,
		Tags:          []string(row.Tags),
		PropertyTypes: []string(row.PropertyTypes),
		CreatedAt:     row.CreatedAt,
	}
	if row.Budget.Valid {
		b := row.Budget.Float64
		c.Budget = &b
	}
	if len(row.CustomFields) > 0 {
		if err := json.Unmarshal(row.CustomFields, &c.Custom); err != nil {
			return domain.Contact{}, fmt.Errorf("decode custom fields for %s: %w", row.ID, err)
		}
	}
	return c, nil
}

func (r *SegmentRepo) Members(ctx context.Context, segmentID string) ([]domain.Contact, error) {
	var rows []contactRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT c.id, c.first_name, c.last_name, c.email, c.phone, c.company, c.city,
		       c.status, c.source, c.project_id, c.lead_score, c.budget, c.tags,
		       c.property_types, c.custom_fields, c.created_at
		FROM segment_members m
		JOIN contacts c ON c.id = m.contact_id
		WHERE m.segment_id = $1
		ORDER BY c.id`, segmentID)
	if err != nil {
		return nil, fmt.Errorf("list segment members: %w", err)
	}
	out := make([]domain.Contact, 0, len(rows))
	for _, row := range rows {
		c, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}
