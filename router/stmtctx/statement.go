package stmtctx

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/pkg/errors"
)

type Kind int

const (
	KindSelect = Kind(iota)
	KindInsert
	KindUpdate
	KindDelete
	KindDDL
)

func (k Kind) String() string {
	switch k {
	case KindSelect:
		return "SELECT"
	case KindInsert:
		return "INSERT"
	case KindUpdate:
		return "UPDATE"
	case KindDelete:
		return "DELETE"
	case KindDDL:
		return "DDL"
	}
	return "UNKNOWN"
}

func (k Kind) MarshalText() ([]byte, error) {
	return []byte(strings.ToLower(k.String())), nil
}

func (k *Kind) UnmarshalText(b []byte) error {
	for _, c := range []Kind{KindSelect, KindInsert, KindUpdate, KindDelete, KindDDL} {
		if strings.EqualFold(c.String(), string(b)) {
			*k = c
			return nil
		}
	}
	return errors.Errorf("unknown statement kind %q", string(b))
}

// IsWrite reports whether the statement modifies data or schema.
func (k Kind) IsWrite() bool {
	return k != KindSelect
}

// TableRef is one textual occurrence of a logical table name.
// SQL[Start:Stop] is the name token.
type TableRef struct {
	Name  string `json:"name"`
	Alias string `json:"alias,omitempty"`
	Start int    `json:"start"`
	Stop  int    `json:"stop"`
}

// Value is either a literal or a reference to a bound parameter.
// Param is 1-based, 0 means Literal holds the value.
type Value struct {
	Literal any `json:"literal,omitempty"`
	Param   int `json:"param,omitempty"`
}

func Lit(v any) Value {
	return Value{Literal: v}
}

func Param(idx int) Value {
	return Value{Param: idx}
}

func (v Value) IsParam() bool {
	return v.Param > 0
}

func (v Value) Resolve(params []any) (any, error) {
	if !v.IsParam() {
		return v.Literal, nil
	}
	if v.Param > len(params) {
		return nil, fmt.Errorf("parameter $%d is not bound, %d parameters given", v.Param, len(params))
	}
	return params[v.Param-1], nil
}

// Condition is a sharding-relevant predicate on Table.Column. Either
// Values (equality or IN) or at least one of Lower/Upper is set.
type Condition struct {
	Table  string  `json:"table"`
	Column string  `json:"column"`
	Values []Value `json:"values,omitempty"`

	Lower          *Value `json:"lower,omitempty"`
	Upper          *Value `json:"upper,omitempty"`
	LowerInclusive bool   `json:"lower_inclusive,omitempty"`
	UpperInclusive bool   `json:"upper_inclusive,omitempty"`
}

func (c Condition) IsRange() bool {
	return len(c.Values) == 0 && (c.Lower != nil || c.Upper != nil)
}

type AggregateType int

const (
	AggregateNone = AggregateType(iota)
	AggregateCount
	AggregateSum
	AggregateAvg
	AggregateMin
	AggregateMax
)

func (a AggregateType) String() string {
	switch a {
	case AggregateCount:
		return "COUNT"
	case AggregateSum:
		return "SUM"
	case AggregateAvg:
		return "AVG"
	case AggregateMin:
		return "MIN"
	case AggregateMax:
		return "MAX"
	}
	return ""
}

type Projection struct {
	Expression string        `json:"expression"`
	Alias      string        `json:"alias,omitempty"`
	Aggregate  AggregateType `json:"aggregate,omitempty"`
	// aggregate argument, e.g. "amount" for SUM(amount)
	Argument string `json:"argument,omitempty"`
}

// Label is the name a backend gives to the projected column.
func (p Projection) Label() string {
	if p.Alias != "" {
		return p.Alias
	}
	return unqualified(p.Expression)
}

// IsStar reports "*" or "x.*".
func (p Projection) IsStar() bool {
	return p.Expression == "*" || strings.HasSuffix(p.Expression, ".*")
}

type OrderItem struct {
	Column string `json:"column"`
	Desc   bool   `json:"desc,omitempty"`
	// nulls sort last unless set
	NullsFirst bool `json:"nulls_first,omitempty"`
}

// PaginationValue is the offset or row count and the position of its token.
type PaginationValue struct {
	Value Value `json:"value"`
	Start int   `json:"start"`
	Stop  int   `json:"stop"`
}

type Pagination struct {
	Offset   *PaginationValue `json:"offset,omitempty"`
	RowCount *PaginationValue `json:"row_count,omitempty"`
}

// Placeholder is one parameter marker in SQL; Param is the 1-based index
// of the parameter it binds.
type Placeholder struct {
	Start int `json:"start"`
	Stop  int `json:"stop"`
	Param int `json:"param"`
}

// InsertRow is one parenthesized VALUES row, SQL[Start:Stop] spans the
// parentheses. Values are keyed by lower-case column name.
type InsertRow struct {
	Start  int              `json:"start"`
	Stop   int              `json:"stop"`
	Values map[string]Value `json:"values"`
}

// GeneratedKey asks for Column to be filled by the key generator.
// ColumnsStop is the offset of the ')' closing the insert column list.
type GeneratedKey struct {
	Column      string `json:"column"`
	ColumnsStop int    `json:"columns_stop"`
}

// GeneratedKeyRef stands in the parameter list for a key that will be
// produced by the execution layer, one per inserted row.
type GeneratedKeyRef struct {
	Table  string
	Column string
	Row    int
}

// Statement is the parsed form of one SQL statement, produced by the parser
// and read-only afterwards.
type Statement struct {
	Kind Kind   `json:"kind"`
	SQL  string `json:"sql"`

	Tables     []TableRef  `json:"tables,omitempty"`
	Conditions []Condition `json:"conditions,omitempty"`

	Projections     []Projection `json:"projections,omitempty"`
	ProjectionsStop int          `json:"projections_stop,omitempty"`
	OrderBy         []OrderItem  `json:"order_by,omitempty"`
	GroupBy         []OrderItem  `json:"group_by,omitempty"`
	GroupByStop     int          `json:"group_by_stop,omitempty"`
	// end of the HAVING clause, zero without one
	HavingStop int         `json:"having_stop,omitempty"`
	Pagination *Pagination `json:"pagination,omitempty"`

	Placeholders []Placeholder `json:"placeholders,omitempty"`

	InsertColumns []string      `json:"insert_columns,omitempty"`
	InsertRows    []InsertRow   `json:"insert_rows,omitempty"`
	GeneratedKey  *GeneratedKey `json:"generated_key,omitempty"`

	Parameters []any `json:"parameters,omitempty"`
}

// LogicalTables lists distinct table names in order of first occurrence.
func (s *Statement) LogicalTables() []string {
	var res []string
	seen := map[string]struct{}{}
	for _, t := range s.Tables {
		name := strings.ToLower(t.Name)
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		res = append(res, name)
	}
	return res
}

// HasAggregates reports aggregate projections or an ORDER BY on an
// aggregate call.
func (s *Statement) HasAggregates() bool {
	for _, p := range s.Projections {
		if p.Aggregate != AggregateNone {
			return true
		}
	}
	for _, o := range s.OrderBy {
		if _, _, ok := ParseAggregateCall(o.Column); ok {
			return true
		}
	}
	return false
}

// GroupedInMemory reports whether merged rows must be grouped without
// relying on the input order: GROUP BY with a different ORDER BY, or
// aggregates without GROUP BY.
func (s *Statement) GroupedInMemory() bool {
	if len(s.GroupBy) == 0 {
		return s.HasAggregates()
	}
	return len(s.OrderBy) > 0 && !sameColumns(s.OrderBy, s.GroupBy)
}

// ConditionsOn returns the conditions that name table, either by its name
// or by its alias.
func (s *Statement) ConditionsOn(table string) []Condition {
	names := map[string]struct{}{strings.ToLower(table): {}}
	for _, t := range s.Tables {
		if strings.EqualFold(t.Name, table) && t.Alias != "" {
			names[strings.ToLower(t.Alias)] = struct{}{}
		}
	}
	var res []Condition
	for _, c := range s.Conditions {
		if _, ok := names[strings.ToLower(c.Table)]; ok {
			res = append(res, c)
		}
	}
	return res
}

func sameColumns(a, b []OrderItem) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !strings.EqualFold(unqualified(a[i].Column), unqualified(b[i].Column)) {
			return false
		}
	}
	return true
}

func unqualified(col string) string {
	if i := strings.LastIndexByte(col, '.'); i >= 0 && !strings.ContainsAny(col, "()") {
		return col[i+1:]
	}
	return col
}

// DecodeStatement reads one JSON encoded statement from r.
func DecodeStatement(r io.Reader) (*Statement, error) {
	stmt := &Statement{}
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(stmt); err != nil {
		return nil, errors.Wrap(err, "failed to decode statement")
	}
	return stmt, nil
}
