package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/xizzxy/atlas/internal/config"
)

// Etcd stores one JSON document per client under a key prefix.
type Etcd struct {
	client    *clientv3.Client
	kv        clientv3.KV
	prefix    string
	endpoints []string
	now       func() time.Time
}

func NewEtcd(cfg config.EtcdConfig, prefix string) (*Etcd, error) {
	client, err := clientv3.New(clientv3.Config{
		Endpoints:   cfg.Endpoints,
		DialTimeout: cfg.DialTimeout,
		Username:    cfg.Username,
		Password:    cfg.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to etcd: %w", err)
	}

	e := newEtcdKV(client, prefix)
	e.client = client
	e.endpoints = cfg.Endpoints
	return e, nil
}

func newEtcdKV(kv clientv3.KV, prefix string) *Etcd {
	return &Etcd{
		kv:     kv,
		prefix: normalizePrefix(prefix),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func normalizePrefix(prefix string) string {
	if prefix == "" {
		prefix = "/atlas/policies/"
	}
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return prefix
}

func (e *Etcd) key(client string) string {
	return e.prefix + client
}

// Put writes p only if the key has not changed since it was read, so a
// concurrent writer cannot make it lose the original creation time. On a
// conflict it reads again and retries until ctx is done.
func (e *Etcd) Put(ctx context.Context, p Policy) (Policy, error) {
	key := e.key(p.Client)
	for {
		resp, err := e.kv.Get(ctx, key)
		if err != nil {
			return Policy{}, fmt.Errorf("etcd get %s: %w", p.Client, err)
		}

		now := e.now()
		p.Created, p.Updated = now, now
		// ModRevision 0 matches a key that does not exist.
		var rev int64
		if len(resp.Kvs) > 0 {
			existing, err := decodePolicy(resp.Kvs[0].Value)
			if err != nil {
				return Policy{}, fmt.Errorf("key %s: %w", key, err)
			}
			p.Created = existing.Created
			rev = resp.Kvs[0].ModRevision
		}

		data, err := json.Marshal(p)
		if err != nil {
			return Policy{}, fmt.Errorf("marshal policy: %w", err)
		}

		txn, err := e.kv.Txn(ctx).
			If(clientv3.Compare(clientv3.ModRevision(key), "=", rev)).
			Then(clientv3.OpPut(key, string(data))).
			Commit()
		if err != nil {
			return Policy{}, fmt.Errorf("etcd put %s: %w", p.Client, err)
		}
		if txn.Succeeded {
			return p, nil
		}
		if err := ctx.Err(); err != nil {
			return Policy{}, fmt.Errorf("etcd put %s: %w", p.Client, err)
		}
	}
}

func (e *Etcd) Get(ctx context.Context, client string) (Policy, error) {
	resp, err := e.kv.Get(ctx, e.key(client))
	if err != nil {
		return Policy{}, fmt.Errorf("etcd get %s: %w", client, err)
	}
	if len(resp.Kvs) == 0 {
		return Policy{}, ErrNotFound
	}
	return decodePolicy(resp.Kvs[0].Value)
}

func (e *Etcd) Delete(ctx context.Context, client string) error {
	resp, err := e.kv.Delete(ctx, e.key(client))
	if err != nil {
		return fmt.Errorf("etcd delete %s: %w", client, err)
	}
	if resp.Deleted == 0 {
		return ErrNotFound
	}
	return nil
}

func (e *Etcd) List(ctx context.Context) ([]Policy, error) {
	resp, err := e.kv.Get(ctx, e.prefix, clientv3.WithPrefix())
	if err != nil {
		return nil, fmt.Errorf("etcd list: %w", err)
	}

	out := make([]Policy, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		p, err := decodePolicy(kv.Value)
		if err != nil {
			return nil, fmt.Errorf("key %s: %w", kv.Key, err)
		}
		out = append(out, p)
	}
	sortPolicies(out)
	return out, nil
}

func (e *Etcd) Ping(ctx context.Context) error {
	if e.client == nil || len(e.endpoints) == 0 {
		return fmt.Errorf("no etcd endpoints configured")
	}
	_, err := e.client.Status(ctx, e.endpoints[0])
	return err
}

func (e *Etcd) Close() error {
	if e.client == nil {
		return nil
	}
	return e.client.Close()
}

func decodePolicy(data []byte) (Policy, error) {
	var p Policy
	if err := json.Unmarshal(data, &p); err != nil {
		return Policy{}, fmt.Errorf("decode policy: %w", err)
	}
	return p, nil
}
