package qrouter

import (
	"fmt"
	"strings"

	"github.com/pg-sharding/shardsql/router/route"
)

// Explain renders a route context, one line per unit:
//
//	multi ds_0 t_order->t_order_0
func Explain(rc *route.Context) []string {
	lines := make([]string, 0, len(rc.Units))
	for _, u := range rc.Units {
		mappers := make([]string, 0, len(u.TableMappers))
		for _, m := range u.TableMappers {
			mappers = append(mappers, m.LogicalTable+"->"+m.ActualTable)
		}
		line := fmt.Sprintf("%s %s %s", rc.Type, u.DataSource, strings.Join(mappers, ","))
		if u.InsertRows != nil {
			line += fmt.Sprintf(" rows=%v", u.InsertRows)
		}
		lines = append(lines, strings.TrimSpace(line))
	}
	return lines
}
