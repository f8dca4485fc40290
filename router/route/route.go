package route

import (
	"sort"
	"strings"
)

type Type int

const (
	// one physical unit
	Single = Type(iota)
	// every table is broadcast, units are replicas of each other
	Broadcast
	// several units whose results must be merged
	Multi
)

func (t Type) String() string {
	switch t {
	case Single:
		return "single"
	case Broadcast:
		return "broadcast"
	case Multi:
		return "multi"
	}
	return "unknown"
}

// TableMapper pairs a logical table with the physical table it becomes
// inside one unit.
type TableMapper struct {
	LogicalTable string
	ActualTable  string
}

// Unit is one physical target of a statement.
type Unit struct {
	DataSource   string
	TableMappers []TableMapper
	// indexes of the INSERT VALUES rows owned by this unit; nil for other statements
	InsertRows []int
}

// ActualTable returns the physical name of a logical table in this unit.
func (u *Unit) ActualTable(logical string) (string, bool) {
	for _, m := range u.TableMappers {
		if strings.EqualFold(m.LogicalTable, logical) {
			return m.ActualTable, true
		}
	}
	return "", false
}

func (u *Unit) key() string {
	var sb strings.Builder
	sb.WriteString(u.DataSource)
	for _, m := range u.TableMappers {
		sb.WriteByte('\x00')
		sb.WriteString(m.ActualTable)
	}
	return sb.String()
}

func (u *Unit) String() string {
	parts := make([]string, 0, len(u.TableMappers))
	for _, m := range u.TableMappers {
		parts = append(parts, m.LogicalTable+"->"+m.ActualTable)
	}
	return u.DataSource + "[" + strings.Join(parts, ",") + "]"
}

type Context struct {
	Units []*Unit
	Type  Type
}

// NewContext orders units by data source and physical tables, so that the
// same statement always yields the same unit order.
func NewContext(units []*Unit, typ Type) *Context {
	sort.SliceStable(units, func(i, j int) bool {
		return units[i].key() < units[j].key()
	})
	return &Context{Units: units, Type: typ}
}

// DataSources lists the distinct data sources of the route.
func (c *Context) DataSources() []string {
	var res []string
	for _, u := range c.Units {
		if len(res) == 0 || res[len(res)-1] != u.DataSource {
			res = append(res, u.DataSource)
		}
	}
	return res
}
