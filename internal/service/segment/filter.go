package segment

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/Santonastaso/crm-demo-sub000/internal/domain"
)

// Predicate is a criterion that passed validation. Operands are normalized
// for the field kind: Values for text and array fields, Numbers for numeric
// fields, Times for time fields.
type Predicate struct {
	Field    string
	Kind     domain.FieldKind
	Operator domain.Operator
	Values   []string
	Numbers  []float64
	Times    []time.Time
}

// Filter is a conjunction of predicates. The zero Filter matches every
// contact.
type Filter struct {
	Predicates []Predicate
}

// And returns a new Filter narrowed by c. The receiver is left unchanged so
// a malformed criterion can be dropped without losing the previous fold.
func (f Filter) And(c domain.Criterion) (Filter, error) {
	p, err := compile(c)
	if err != nil {
		return f, err
	}
	preds := make([]Predicate, len(f.Predicates), len(f.Predicates)+1)
	copy(preds, f.Predicates)
	return Filter{Predicates: append(preds, p)}, nil
}

// BuildFilter folds criteria in order. Criteria that fail validation are
// left out of the Filter and reported in the returned slice.
func BuildFilter(criteria []domain.Criterion) (Filter, []error) {
	var (
		f       Filter
		skipped []error
	)
	for i, c := range criteria {
		next, err := f.And(c)
		if err != nil {
			skipped = append(skipped, fmt.Errorf("criterion %d (%s %s): %w", i, c.Field, c.Operator, err))
			continue
		}
		f = next
	}
	return f, skipped
}

// Matches reports whether the contact satisfies every predicate.
func (f Filter) Matches(c domain.Contact) bool {
	for _, p := range f.Predicates {
		if !p.Matches(c) {
			return false
		}
	}
	return true
}

// Matches evaluates one predicate. Null values fail every comparison.
func (p Predicate) Matches(c domain.Contact) bool {
	v, ok := c.Field(p.Field)
	if !ok {
		return false
	}
	switch p.Kind {
	case domain.FieldArray:
		arr, _ := v.([]string)
		return p.matchArray(arr)
	case domain.FieldNumber:
		n, _ := v.(float64)
		return p.matchNumber(n)
	case domain.FieldTime:
		t, _ := v.(time.Time)
		return p.matchTime(t)
	default:
		s, _ := v.(string)
		return p.matchText(s)
	}
}

// ListOperand reports whether the operator takes a list of operands for the
// predicate's field kind.
func (p Predicate) ListOperand() bool {
	return takesList(p.Kind, p.Operator)
}

func takesList(kind domain.FieldKind, op domain.Operator) bool {
	return kind == domain.FieldArray || op == domain.OpIn || op == domain.OpNotIn
}

func compile(c domain.Criterion) (Predicate, error) {
	if !c.Operator.Known() {
		return Predicate{}, fmt.Errorf("%w: unknown operator %q", ErrMalformedCriterion, c.Operator)
	}
	kind, ok := domain.ContactFields[c.Field]
	if !ok {
		return Predicate{}, fmt.Errorf("%w: unknown field %q", ErrMalformedCriterion, c.Field)
	}
	if kind == domain.FieldArray && c.Operator.Ordering() {
		return Predicate{}, fmt.Errorf("%w: %s is not valid on array field %q", ErrMalformedCriterion, c.Operator, c.Field)
	}
	if c.Operator == domain.OpContains && (kind == domain.FieldNumber || kind == domain.FieldTime) {
		return Predicate{}, fmt.Errorf("%w: contains is not valid on %s field %q", ErrMalformedCriterion, kind, c.Field)
	}

	list := takesList(kind, c.Operator)
	raw, err := operands(c.Value, list)
	if err != nil {
		return Predicate{}, err
	}
	if !list && len(raw) != 1 {
		return Predicate{}, fmt.Errorf("%w: %s expects a single value", ErrMalformedCriterion, c.Operator)
	}
	if list && len(raw) == 0 && kind != domain.FieldArray {
		return Predicate{}, fmt.Errorf("%w: %s expects at least one value", ErrMalformedCriterion, c.Operator)
	}

	p := Predicate{Field: c.Field, Kind: kind, Operator: c.Operator}
	switch kind {
	case domain.FieldNumber:
		for _, s := range raw {
			n, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
			if err != nil {
				return Predicate{}, fmt.Errorf("%w: %q is not a number", ErrMalformedCriterion, s)
			}
			p.Numbers = append(p.Numbers, n)
		}
	case domain.FieldTime:
		for _, s := range raw {
			t, err := parseTime(s)
			if err != nil {
				return Predicate{}, err
			}
			p.Times = append(p.Times, t)
		}
	case domain.FieldArray:
		p.Values = dedupe(raw)
	default:
		p.Values = raw
	}
	return p, nil
}

var timeLayouts = []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"}

func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q is not a timestamp", ErrMalformedCriterion, s)
}

// operands flattens a JSON-decoded criterion value into strings. For list
// operators a comma-separated string is accepted as well as a JSON array.
func operands(v any, list bool) ([]string, error) {
	switch x := v.(type) {
	case nil:
		return nil, fmt.Errorf("%w: missing value", ErrMalformedCriterion)
	case []string:
		if !list {
			return nil, fmt.Errorf("%w: unexpected list value", ErrMalformedCriterion)
		}
		return slices.Clone(x), nil
	case []any:
		if !list {
			return nil, fmt.Errorf("%w: unexpected list value", ErrMalformedCriterion)
		}
		out := make([]string, 0, len(x))
		for _, item := range x {
			s, err := scalar(item)
			if err != nil {
				return nil, err
			}
			out = append(out, s)
		}
		return out, nil
	case string:
		if !list {
			return []string{x}, nil
		}
		var out []string
		for _, part := range strings.Split(x, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		return out, nil
	}
	s, err := scalar(v)
	if err != nil {
		return nil, err
	}
	return []string{s}, nil
}

func scalar(v any) (string, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), nil
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32), nil
	case int:
		return strconv.Itoa(x), nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	case bool:
		return strconv.FormatBool(x), nil
	}
	return "", fmt.Errorf("%w: unsupported value type %T", ErrMalformedCriterion, v)
}

func dedupe(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if !slices.Contains(out, s) {
			out = append(out, s)
		}
	}
	return out
}

func (p Predicate) matchText(s string) bool {
	switch p.Operator {
	case domain.OpEq:
		return s == p.Values[0]
	case domain.OpNeq:
		return s != p.Values[0]
	case domain.OpGt:
		return s > p.Values[0]
	case domain.OpLt:
		return s < p.Values[0]
	case domain.OpGte:
		return s >= p.Values[0]
	case domain.OpLte:
		return s <= p.Values[0]
	case domain.OpContains:
		return strings.Contains(strings.ToLower(s), strings.ToLower(p.Values[0]))
	case domain.OpIn:
		return slices.Contains(p.Values, s)
	case domain.OpNotIn:
		return !slices.Contains(p.Values, s)
	}
	return false
}

func (p Predicate) matchNumber(n float64) bool {
	switch p.Operator {
	case domain.OpEq:
		return n == p.Numbers[0]
	case domain.OpNeq:
		return n != p.Numbers[0]
	case domain.OpGt:
		return n > p.Numbers[0]
	case domain.OpLt:
		return n < p.Numbers[0]
	case domain.OpGte:
		return n >= p.Numbers[0]
	case domain.OpLte:
		return n <= p.Numbers[0]
	case domain.OpIn:
		return slices.Contains(p.Numbers, n)
	case domain.OpNotIn:
		return !slices.Contains(p.Numbers, n)
	}
	return false
}

func (p Predicate) matchTime(t time.Time) bool {
	switch p.Operator {
	case domain.OpEq:
		return t.Equal(p.Times[0])
	case domain.OpNeq:
		return !t.Equal(p.Times[0])
	case domain.OpGt:
		return t.After(p.Times[0])
	case domain.OpLt:
		return t.Before(p.Times[0])
	case domain.OpGte:
		return !t.Before(p.Times[0])
	case domain.OpLte:
		return !t.After(p.Times[0])
	case domain.OpIn, domain.OpNotIn:
		found := slices.ContainsFunc(p.Times, t.Equal)
		return found == (p.Operator == domain.OpIn)
	}
	return false
}

// matchArray applies set semantics: contains is all-of, in is any-of,
// not_in is none-of and eq compares the whole set.
func (p Predicate) matchArray(have []string) bool {
	switch p.Operator {
	case domain.OpContains:
		for _, want := range p.Values {
			if !slices.Contains(have, want) {
				return false
			}
		}
		return true
	case domain.OpIn:
		return anyOf(have, p.Values)
	case domain.OpNotIn:
		return !anyOf(have, p.Values)
	case domain.OpEq:
		return sameSet(have, p.Values)
	case domain.OpNeq:
		return !sameSet(have, p.Values)
	}
	return false
}

func anyOf(have, want []string) bool {
	for _, w := range want {
		if slices.Contains(have, w) {
			return true
		}
	}
	return false
}

func sameSet(have, want []string) bool {
	for _, h := range have {
		if !slices.Contains(want, h) {
			return false
		}
	}
	for _, w := range want {
		if !slices.Contains(have, w) {
			return false
		}
	}
	return true
}
