package rulesource

import (
	"context"
	"time"

	"github.com/pg-sharding/shardsql/pkg/config"
	"github.com/pg-sharding/shardsql/pkg/models/sherror"
	"github.com/pg-sharding/shardsql/pkg/shlog"
	"github.com/pg-sharding/shardsql/router/routingstate"
	"github.com/pkg/errors"
	"go.etcd.io/etcd/api/v3/mvccpb"
	clientv3 "go.etcd.io/etcd/client/v3"
)

const defaultDialTimeout = 5 * time.Second

// EtcdWatcher keeps a Holder in sync with a rules document stored under
// one etcd key.
type EtcdWatcher struct {
	kv      clientv3.KV
	watcher clientv3.Watcher
	closer  func() error

	key    string
	format string

	holder *routingstate.Holder
}

func NewEtcdWatcher(kv clientv3.KV, w clientv3.Watcher, key, format string, holder *routingstate.Holder) *EtcdWatcher {
	return &EtcdWatcher{
		kv:      kv,
		watcher: w,
		closer:  func() error { return nil },
		key:     key,
		format:  format,
		holder:  holder,
	}
}

// DialEtcd connects to the cluster described by cfg.
func DialEtcd(cfg *config.EtcdRulesCfg, holder *routingstate.Holder) (*EtcdWatcher, error) {
	timeout := cfg.DialTimeout
	if timeout <= 0 {
		timeout = defaultDialTimeout
	}
	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   cfg.Endpoints,
		DialTimeout: timeout,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to etcd")
	}

	shlog.Zero.Debug().
		Strs("endpoints", cfg.Endpoints).
		Str("key", cfg.Key).
		Msg("etcd rule source connected")

	w := NewEtcdWatcher(cli, cli, cfg.Key, cfg.Format, holder)
	w.closer = cli.Close
	return w, nil
}

// Load reads the key once and swaps its rules in. It returns the etcd
// revision the rules were read at.
func (w *EtcdWatcher) Load(ctx context.Context) (int64, error) {
	resp, err := w.kv.Get(ctx, w.key)
	if err != nil {
		return 0, errors.Wrapf(err, "failed to get %s", w.key)
	}
	if len(resp.Kvs) == 0 {
		return 0, sherror.New(sherror.SH_CONFIGURATION, "no rules stored at %s", w.key)
	}
	if err := w.apply(resp.Kvs[0].Value); err != nil {
		return 0, err
	}
	return resp.Header.GetRevision(), nil
}

func (w *EtcdWatcher) apply(data []byte) error {
	cfg, err := config.ParseRulesCfg(data, w.format)
	if err != nil {
		return sherror.Wrap(sherror.SH_CONFIGURATION, errors.Wrapf(err, "rules at %s", w.key))
	}
	_, err = w.holder.ReloadFromConfig(cfg)
	return err
}

// Run loads the rules and then applies every update of the key until ctx
// is done. A broken update is logged and the previous rules stay active.
func (w *EtcdWatcher) Run(ctx context.Context) error {
	rev, err := w.Load(ctx)
	if err != nil {
		return err
	}

	wch := w.watcher.Watch(ctx, w.key, clientv3.WithRev(rev+1))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case resp, ok := <-wch:
			if !ok {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return errors.Errorf("watch on %s closed", w.key)
			}
			if err := resp.Err(); err != nil {
				return errors.Wrapf(err, "watch on %s", w.key)
			}
			for _, ev := range resp.Events {
				switch ev.Type {
				case mvccpb.PUT:
					if err := w.apply(ev.Kv.Value); err != nil {
						shlog.Zero.Error().
							Err(err).
							Int64("revision", ev.Kv.ModRevision).
							Msg("failed to apply rules update")
					}
				case mvccpb.DELETE:
					shlog.Zero.Warn().
						Str("key", w.key).
						Msg("rules key deleted, keeping current rules")
				}
			}
		}
	}
}

func (w *EtcdWatcher) Close() error {
	return w.closer()
}
