package datashard

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pg-sharding/shardsql/pkg/config"
	"github.com/pg-sharding/shardsql/pkg/models/sherror"
	"github.com/pg-sharding/shardsql/pkg/shlog"
	"github.com/pg-sharding/shardsql/router/executor"
	"github.com/pg-sharding/shardsql/router/rewrite"
	"github.com/pkg/errors"
	retry "github.com/sethvargo/go-retry"
	"go.uber.org/multierr"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

const defaultMaxOpenConns = 50

// driverNames maps configured drivers to database/sql driver names.
var driverNames = map[string]string{
	"postgres": "pgx",
	"pgx":      "pgx",
	"pq":       "postgres",
	"mysql":    "mysql",
	"sqlite":   "sqlite",
}

// Pool owns one database/sql pool per data source and runs units on
// them. Retrying a failed connection is up to Open; statements are
// never retried.
type Pool struct {
	mu  sync.RWMutex
	dbs map[string]*sqlx.DB
}

var _ executor.Driver = &Pool{}

func NewPool() *Pool {
	return &Pool{dbs: map[string]*sqlx.DB{}}
}

// Open connects to every shard and checks it is reachable.
func Open(ctx context.Context, shards map[string]*config.ShardCfg) (*Pool, error) {
	names := make([]string, 0, len(shards))
	for name := range shards {
		names = append(names, name)
	}
	sort.Strings(names)

	p := NewPool()
	for _, name := range names {
		db, err := connect(ctx, name, shards[name])
		if err != nil {
			_ = p.Close()
			return nil, err
		}
		p.Register(name, db)
	}
	return p, nil
}

func connect(ctx context.Context, name string, cfg *config.ShardCfg) (*sqlx.DB, error) {
	driver, ok := driverNames[cfg.Driver]
	if !ok {
		return nil, sherror.New(sherror.SH_CONFIGURATION, "shard %s: unknown driver %q", name, cfg.Driver)
	}
	db, err := sqlx.Open(driver, cfg.DSN)
	if err != nil {
		return nil, errors.Wrapf(err, "shard %s", name)
	}
	maxOpen := cfg.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = defaultMaxOpenConns
	}
	db.SetMaxOpenConns(maxOpen)

	if err := retry.Do(ctx, retry.WithMaxRetries(cfg.ConnectRetries, retry.NewFibonacci(100*time.Millisecond)), func(ctx context.Context) error {
		if err := db.PingContext(ctx); err != nil {
			shlog.Zero.Warn().
				Str("data-source", name).
				Err(err).
				Msg("shard is not reachable yet")
			return retry.RetryableError(err)
		}
		return nil
	}); err != nil {
		_ = db.Close()
		return nil, errors.Wrapf(err, "failed to connect to shard %s", name)
	}

	shlog.Zero.Debug().
		Str("data-source", name).
		Str("driver", driver).
		Int("max-open-conns", maxOpen).
		Msg("shard connected")
	return db, nil
}

func (p *Pool) Register(name string, db *sqlx.DB) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dbs[name] = db
}

func (p *Pool) DataSources() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	res := make([]string, 0, len(p.dbs))
	for name := range p.dbs {
		res = append(res, name)
	}
	sort.Strings(res)
	return res
}

func (p *Pool) db(name string) (*sqlx.DB, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	db, ok := p.dbs[name]
	if !ok {
		return nil, sherror.New(sherror.SH_CONFIGURATION, "no connection pool for data source %s", name)
	}
	return db, nil
}

func (p *Pool) Query(ctx context.Context, unit rewrite.SQLUnit) (executor.RowStream, error) {
	db, err := p.db(unit.DataSource)
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryxContext(ctx, unit.SQL, unit.Params...)
	if err != nil {
		return nil, err
	}
	rs, err := newRowStream(rows)
	if err != nil {
		_ = rows.Close()
		return nil, err
	}
	return rs, nil
}

func (p *Pool) Exec(ctx context.Context, unit rewrite.SQLUnit) (int64, error) {
	db, err := p.db(unit.DataSource)
	if err != nil {
		return 0, err
	}
	res, err := db.ExecContext(ctx, unit.SQL, unit.Params...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var err error
	for name, db := range p.dbs {
		err = multierr.Append(err, db.Close())
		delete(p.dbs, name)
	}
	return err
}
