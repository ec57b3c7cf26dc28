package domain

import "time"

// Operator is a comparison used by a segment criterion.
type Operator string

const (
	OpEq       Operator = "eq"
	OpNeq      Operator = "neq"
	OpGt       Operator = "gt"
	OpLt       Operator = "lt"
	OpGte      Operator = "gte"
	OpLte      Operator = "lte"
	OpContains Operator = "contains"
	OpIn       Operator = "in"
	OpNotIn    Operator = "not_in"
)

// Known reports whether op is one of the supported operators.
func (op Operator) Known() bool {
	switch op {
	case OpEq, OpNeq, OpGt, OpLt, OpGte, OpLte, OpContains, OpIn, OpNotIn:
		return true
	}
	return false
}

// Ordering reports whether op is an ordering comparison.
func (op Operator) Ordering() bool {
	return op == OpGt || op == OpLt || op == OpGte || op == OpLte
}

// Criterion is one (field, operator, value) filter of a segment. Value is
// whatever JSON decoded into: a string, a number, a bool or a list.
type Criterion struct {
	Field    string   `json:"field"`
	Operator Operator `json:"operator"`
	Value    any      `json:"value"`
}

// Segment is a dynamically computed audience. Its membership is recomputed
// from Criteria on every refresh.
type Segment struct {
	ID              string      `json:"id" db:"id"`
	OwnerID         string      `json:"owner_id" db:"owner_id"`
	Name            string      `json:"name" db:"name"`
	Criteria        []Criterion `json:"criteria" db:"-"`
	AutoRefresh     bool        `json:"auto_refresh" db:"auto_refresh"`
	ContactCount    int         `json:"contact_count" db:"contact_count"`
	LastRefreshedAt *time.Time  `json:"last_refreshed_at" db:"last_refreshed_at"`
	CreatedAt       time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at" db:"updated_at"`
}
