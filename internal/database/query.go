package database

import (
	"fmt"
	"strings"
)

type FilterOp string

const (
	OpEq     FilterOp = "eq"
	OpNe     FilterOp = "ne"
	OpGt     FilterOp = "gt"
	OpGte    FilterOp = "gte"
	OpLt     FilterOp = "lt"
	OpLte    FilterOp = "lte"
	OpIn     FilterOp = "in"
	OpIsNull FilterOp = "is_null"
)

var comparisons = map[FilterOp]string{
	OpEq:  "=",
	OpNe:  "!=",
	OpGt:  ">",
	OpGte: ">=",
	OpLt:  "<",
	OpLte: "<=",
}

type SortOrder string

const (
	SortAsc  SortOrder = "ASC"
	SortDesc SortOrder = "DESC"
)

type condition struct {
	field string
	op    FilterOp
	value any
}

type order struct {
	field string
	dir   SortOrder
}

// QueryBuilder assembles SELECT statements for the record stores. Field names
// are trusted; only values become placeholders.
type QueryBuilder struct {
	table   string
	columns string
	where   []condition
	orders  []order
	limit   int
	offset  int
}

func NewQuery(table string) *QueryBuilder {
	return &QueryBuilder{table: table, columns: "*"}
}

func (q *QueryBuilder) Select(fields ...string) *QueryBuilder {
	q.columns = strings.Join(fields, ", ")
	return q
}

func (q *QueryBuilder) Filter(field string, op FilterOp, value any) *QueryBuilder {
	q.where = append(q.where, condition{field: field, op: op, value: value})
	return q
}

func (q *QueryBuilder) Where(field string, value any) *QueryBuilder {
	return q.Filter(field, OpEq, value)
}

func (q *QueryBuilder) Sort(field string, dir SortOrder) *QueryBuilder {
	q.orders = append(q.orders, order{field: field, dir: dir})
	return q
}

func (q *QueryBuilder) OrderBy(field string) *QueryBuilder {
	return q.Sort(field, SortAsc)
}

func (q *QueryBuilder) OrderByDesc(field string) *QueryBuilder {
	return q.Sort(field, SortDesc)
}

func (q *QueryBuilder) Limit(n int) *QueryBuilder {
	q.limit = n
	return q
}

func (q *QueryBuilder) Offset(n int) *QueryBuilder {
	q.offset = n
	return q
}

func (q *QueryBuilder) Build() (string, []any) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "SELECT %s FROM %s", q.columns, q.table)
	args := q.writeWhere(&sb)

	for i, o := range q.orders {
		if i == 0 {
			sb.WriteString(" ORDER BY ")
		} else {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "%s %s", o.field, o.dir)
	}

	// SQLite only accepts OFFSET after a LIMIT; -1 means no limit.
	switch {
	case q.limit > 0:
		fmt.Fprintf(&sb, " LIMIT %d", q.limit)
	case q.offset > 0:
		sb.WriteString(" LIMIT -1")
	}
	if q.offset > 0 {
		fmt.Fprintf(&sb, " OFFSET %d", q.offset)
	}

	return sb.String(), args
}

// BuildCount counts the rows Build would match, ignoring order and paging.
func (q *QueryBuilder) BuildCount() (string, []any) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "SELECT COUNT(*) FROM %s", q.table)
	args := q.writeWhere(&sb)
	return sb.String(), args
}

func (q *QueryBuilder) writeWhere(sb *strings.Builder) []any {
	var args []any
	for i, c := range q.where {
		if i == 0 {
			sb.WriteString(" WHERE ")
		} else {
			sb.WriteString(" AND ")
		}

		switch c.op {
		case OpIsNull:
			fmt.Fprintf(sb, "%s IS NULL", c.field)
		case OpIn:
			values, ok := c.value.([]any)
			if !ok || len(values) == 0 {
				// An empty set matches nothing.
				sb.WriteString("1 = 0")
				continue
			}
			fmt.Fprintf(sb, "%s IN (?%s)", c.field, strings.Repeat(", ?", len(values)-1))
			args = append(args, values...)
		default:
			op, ok := comparisons[c.op]
			if !ok {
				op = "="
			}
			fmt.Fprintf(sb, "%s %s ?", c.field, op)
			args = append(args, c.value)
		}
	}
	return args
}

// ParseSortString reads "-field" as descending and "field" or "+field" as ascending.
func ParseSortString(s string) (field string, dir SortOrder) {
	if rest, ok := strings.CutPrefix(s, "-"); ok {
		return rest, SortDesc
	}
	return strings.TrimPrefix(s, "+"), SortAsc
}
