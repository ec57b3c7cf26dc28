package postgres

import (
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/Santonastaso/crm-demo-sub000/internal/domain"
	"github.com/Santonastaso/crm-demo-sub000/internal/service/segment"
)

var comparisonSQL = map[domain.Operator]string{
	domain.OpEq:  "=",
	domain.OpNeq: "<>",
	domain.OpGt:  ">",
	domain.OpLt:  "<",
	domain.OpGte: ">=",
	domain.OpLte: "<=",
}

// filterWhere renders f as a WHERE condition over contacts aliased "c".
// Placeholders start at $next. Column names come from
// domain.ContactFields, never from user input.
func filterWhere(f segment.Filter, next int) (string, []any) {
	if len(f.Predicates) == 0 {
		return "TRUE", nil
	}
	b := &whereBuilder{next: next}
	parts := make([]string, 0, len(f.Predicates))
	for _, p := range f.Predicates {
		parts = append(parts, b.predicate(p))
	}
	return strings.Join(parts, " AND "), b.args
}

type whereBuilder struct {
	next int
	args []any
}

func (b *whereBuilder) bind(v any) string {
	b.args = append(b.args, v)
	ph := fmt.Sprintf("$%d", b.next)
	b.next++
	return ph
}

func (b *whereBuilder) predicate(p segment.Predicate) string {
	col := "c." + p.Field
	switch p.Kind {
	case domain.FieldArray:
		return b.array(col, p)
	case domain.FieldNumber:
		return b.number(col, p)
	case domain.FieldTime:
		return b.time(col, p)
	default:
		return b.text(col, p)
	}
}

// array applies set semantics: contains is all-of, in is any-of, not_in is
// none-of and eq compares the whole set.
func (b *whereBuilder) array(col string, p segment.Predicate) string {
	ph := b.bind(pq.Array(p.Values)) + "::text[]"
	switch p.Operator {
	case domain.OpContains:
		return fmt.Sprintf("%s @> %s", col, ph)
	case domain.OpIn:
		return fmt.Sprintf("%s && %s", col, ph)
	case domain.OpNotIn:
		return fmt.Sprintf("NOT (%s && %s)", col, ph)
	case domain.OpEq:
		return fmt.Sprintf("(%s @> %s AND %s <@ %s)", col, ph, col, ph)
	case domain.OpNeq:
		return fmt.Sprintf("NOT (%s @> %s AND %s <@ %s)", col, ph, col, ph)
	}
	return "FALSE"
}

func (b *whereBuilder) text(col string, p segment.Predicate) string {
	switch p.Operator {
	case domain.OpContains:
		return fmt.Sprintf(`%s ILIKE %s ESCAPE '\'`, col, b.bind("%"+escapeLike(p.Values[0])+"%"))
	case domain.OpIn:
		return fmt.Sprintf("%s = ANY(%s::text[])", col, b.bind(pq.Array(p.Values)))
	case domain.OpNotIn:
		return fmt.Sprintf("NOT (%s = ANY(%s::text[]))", col, b.bind(pq.Array(p.Values)))
	}
	if p.Operator.Ordering() {
		// Byte-wise ordering, independent of the database locale.
		return fmt.Sprintf(`%s COLLATE "C" %s %s`, col, comparisonSQL[p.Operator], b.bind(p.Values[0]))
	}
	return fmt.Sprintf("%s %s %s", col, comparisonSQL[p.Operator], b.bind(p.Values[0]))
}

func (b *whereBuilder) number(col string, p segment.Predicate) string {
	switch p.Operator {
	case domain.OpIn:
		return fmt.Sprintf("%s = ANY(%s::float8[])", col, b.bind(pq.Array(p.Numbers)))
	case domain.OpNotIn:
		return fmt.Sprintf("NOT (%s = ANY(%s::float8[]))", col, b.bind(pq.Array(p.Numbers)))
	}
	// Typed so a fractional operand compares against integer columns.
	return fmt.Sprintf("%s %s %s::float8", col, comparisonSQL[p.Operator], b.bind(p.Numbers[0]))
}

func (b *whereBuilder) time(col string, p segment.Predicate) string {
	if p.Operator == domain.OpIn || p.Operator == domain.OpNotIn {
		alts := make([]string, 0, len(p.Times))
		for _, t := range p.Times {
			alts = append(alts, fmt.Sprintf("%s = %s", col, b.bind(t)))
		}
		cond := "(" + strings.Join(alts, " OR ") + ")"
		if p.Operator == domain.OpNotIn {
			return "NOT " + cond
		}
		return cond
	}
	return fmt.Sprintf("%s %s %s", col, comparisonSQL[p.Operator], b.bind(p.Times[0]))
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string { return likeEscaper.Replace(s) }
