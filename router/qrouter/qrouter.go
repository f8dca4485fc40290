package qrouter

import (
	"context"

	"github.com/pg-sharding/shardsql/pkg/models/shrule"
	"github.com/pg-sharding/shardsql/router/route"
	"github.com/pg-sharding/shardsql/router/stmtctx"
)

//go:generate -command mockgen -source=router/qrouter/qrouter.go -destination=router/mock/qrouter/qrouter_mock.go -package=mock_qrouter

type QueryRouter interface {
	// Route computes the physical units of stmt under the rule set rs.
	Route(ctx context.Context, stmt *stmtctx.Statement, rs *shrule.RuleSet) (*route.Context, error)
}

func NewQrouter() QueryRouter {
	return NewProxyRouter()
}
