// Package client resolves where a generated client's calls go.
//
// Client is a discovering Transport: every call looks up live instances of
// one service in a registry, lets a balancer choose one (keyed by the
// call's wire method name) and sends the request over a pool of framed
// connections to that instance.
//
//	Call ─► Registry.Discover ─► Balancer.Pick(method) ─► Pool(addr) ─► Framed ─► Server
package client

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"jsonrpc-gen/loadbalance"
	"jsonrpc-gen/logger"
	"jsonrpc-gen/registry"
	"jsonrpc-gen/rpcclient"
	"jsonrpc-gen/transport"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Client implements rpcclient.Transport over service discovery.
type Client struct {
	registry    registry.Registry
	balancer    loadbalance.Balancer
	service     string
	poolSize    int
	dialTimeout time.Duration

	mu    sync.Mutex
	pools map[string]*transport.Pool // addr → connections

	cancel context.CancelFunc
}

// NewClient returns a client for service. It watches the registry and
// drops connections to instances that go away.
func NewClient(reg registry.Registry, bal loadbalance.Balancer, service string, poolSize int, dialTimeout time.Duration) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		registry:    reg,
		balancer:    bal,
		service:     service,
		poolSize:    poolSize,
		dialTimeout: dialTimeout,
		pools:       make(map[string]*transport.Pool),
		cancel:      cancel,
	}
	go c.watch(ctx)
	return c
}

func (c *Client) Call(request string) *rpcclient.Future[string] {
	pool, err := c.route(request)
	if err != nil {
		return rpcclient.Failed[string](err)
	}
	return pool.Call(request)
}

func (c *Client) route(request string) (*transport.Pool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), c.dialTimeout)
	defer cancel()

	instances, err := c.registry.Discover(ctx, c.service)
	if err != nil {
		return nil, err
	}
	instance, err := c.balancer.Pick(methodOf(request), instances)
	if err != nil {
		return nil, errors.Wrapf(err, "client: route %s", c.service)
	}
	return c.poolFor(instance.Addr)
}

func (c *Client) poolFor(addr string) (*transport.Pool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if pool, ok := c.pools[addr]; ok {
		if pool.Live() > 0 {
			return pool, nil
		}
		pool.Close()
	}
	pool, err := transport.DialPool(addr, c.poolSize, c.dialTimeout)
	if err != nil {
		return nil, err
	}
	c.pools[addr] = pool
	logger.L().Debug("opened pool", zap.String("service", c.service), zap.String("addr", addr), zap.Int("size", c.poolSize))
	return pool, nil
}

// watch closes pools for instances that left the registry.
func (c *Client) watch(ctx context.Context) {
	for instances := range c.registry.Watch(ctx, c.service) {
		live := make(map[string]bool, len(instances))
		for _, inst := range instances {
			live[inst.Addr] = true
		}

		c.mu.Lock()
		for addr, pool := range c.pools {
			if !live[addr] {
				pool.Close()
				delete(c.pools, addr)
				logger.L().Info("instance left", zap.String("service", c.service), zap.String("addr", addr))
			}
		}
		c.mu.Unlock()
	}
}

// Close stops watching and closes every connection.
func (c *Client) Close() error {
	c.cancel()

	c.mu.Lock()
	defer c.mu.Unlock()
	var first error
	for addr, pool := range c.pools {
		if err := pool.Close(); err != nil && first == nil {
			first = err
		}
		delete(c.pools, addr)
	}
	return first
}

func methodOf(request string) string {
	var probe struct {
		Method string `json:"method"`
	}
	_ = json.Unmarshal([]byte(request), &probe)
	return probe.Method
}
