// Package registry provides service discovery for JSON-RPC servers.
//
// The etcd implementation stores one key per instance:
//
//	Key:   /jsonrpc-gen/{ServiceName}/{Addr}
//	Value: JSON-encoded ServiceInstance
//
// Registration uses TTL leases: if a server dies without deregistering, its
// lease expires and the entry disappears.
package registry

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"jsonrpc-gen/logger"

	"github.com/pkg/errors"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"
)

const keyPrefix = "/jsonrpc-gen/"

func servicePrefix(serviceName string) string {
	return keyPrefix + serviceName + "/"
}

// EtcdRegistry implements Registry on etcd v3.
type EtcdRegistry struct {
	client *clientv3.Client

	mu     sync.Mutex
	leases map[string]leaseHandle // key → lease kept alive for it
}

type leaseHandle struct {
	id     clientv3.LeaseID
	cancel context.CancelFunc
}

// NewEtcdRegistry connects to the given endpoints.
func NewEtcdRegistry(endpoints []string, dialTimeout time.Duration) (*EtcdRegistry, error) {
	c, err := clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: dialTimeout,
		Logger:      logger.L().Named("etcd"),
	})
	if err != nil {
		return nil, errors.Wrap(err, "registry: connect etcd")
	}
	return &EtcdRegistry{client: c, leases: make(map[string]leaseHandle)}, nil
}

// Register stores instance under a fresh lease and keeps the lease alive
// until Deregister or Close.
func (r *EtcdRegistry) Register(ctx context.Context, serviceName string, instance ServiceInstance, ttl int64) error {
	lease, err := r.client.Grant(ctx, ttl)
	if err != nil {
		return errors.Wrap(err, "registry: grant lease")
	}

	val, err := json.Marshal(instance)
	if err != nil {
		return errors.Wrap(err, "registry: encode instance")
	}

	key := servicePrefix(serviceName) + instance.Addr
	if _, err := r.client.Put(ctx, key, string(val), clientv3.WithLease(lease.ID)); err != nil {
		return errors.Wrapf(err, "registry: put %s", key)
	}

	// the keepalive outlives ctx, which only bounds registration
	keepCtx, cancel := context.WithCancel(context.Background())
	ch, err := r.client.KeepAlive(keepCtx, lease.ID)
	if err != nil {
		cancel()
		return errors.Wrap(err, "registry: keep lease alive")
	}
	go func() {
		for range ch {
		}
		logger.L().Debug("lease keepalive stopped", zap.String("key", key))
	}()

	r.mu.Lock()
	if old, ok := r.leases[key]; ok {
		old.cancel()
	}
	r.leases[key] = leaseHandle{id: lease.ID, cancel: cancel}
	r.mu.Unlock()

	logger.L().Info("registered instance", zap.String("service", serviceName), zap.String("addr", instance.Addr))
	return nil
}

// Deregister removes an instance and stops renewing its lease.
func (r *EtcdRegistry) Deregister(ctx context.Context, serviceName string, addr string) error {
	key := servicePrefix(serviceName) + addr

	r.mu.Lock()
	handle, ok := r.leases[key]
	delete(r.leases, key)
	r.mu.Unlock()
	if ok {
		handle.cancel()
	}

	if _, err := r.client.Delete(ctx, key); err != nil {
		return errors.Wrapf(err, "registry: delete %s", key)
	}
	if ok {
		if _, err := r.client.Revoke(ctx, handle.id); err != nil {
			logger.L().Warn("revoke lease failed", zap.String("key", key), zap.Error(err))
		}
	}
	return nil
}

// Discover returns every instance currently registered for serviceName.
func (r *EtcdRegistry) Discover(ctx context.Context, serviceName string) ([]ServiceInstance, error) {
	resp, err := r.client.Get(ctx, servicePrefix(serviceName), clientv3.WithPrefix())
	if err != nil {
		return nil, errors.Wrapf(err, "registry: discover %s", serviceName)
	}

	instances := make([]ServiceInstance, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var instance ServiceInstance
		if err := json.Unmarshal(kv.Value, &instance); err != nil {
			logger.L().Warn("skipping malformed instance", zap.ByteString("key", kv.Key), zap.Error(err))
			continue
		}
		instances = append(instances, instance)
	}
	return instances, nil
}

// Watch emits the current instance list, then the full list again after
// every change under the service prefix. The channel closes when ctx is
// done.
func (r *EtcdRegistry) Watch(ctx context.Context, serviceName string) <-chan []ServiceInstance {
	ch := make(chan []ServiceInstance, 1)

	go func() {
		defer close(ch)
		watchChan := r.client.Watch(ctx, servicePrefix(serviceName), clientv3.WithPrefix())

		refresh := func() bool {
			// re-fetch instead of applying individual events
			instances, err := r.Discover(ctx, serviceName)
			if err != nil {
				logger.L().Warn("watch refresh failed", zap.String("service", serviceName), zap.Error(err))
				return ctx.Err() == nil
			}
			select {
			case ch <- instances:
				return true
			case <-ctx.Done():
				return false
			}
		}

		if !refresh() {
			return
		}
		for range watchChan {
			if !refresh() {
				return
			}
		}
	}()

	return ch
}

// Close stops all keepalives and closes the etcd client. Registered keys
// expire with their leases.
func (r *EtcdRegistry) Close() error {
	r.mu.Lock()
	for key, handle := range r.leases {
		handle.cancel()
		delete(r.leases, key)
	}
	r.mu.Unlock()
	return r.client.Close()
}
