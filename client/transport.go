package client

import (
	"context"
	"io"

	"jsonrpc-gen/config"
	"jsonrpc-gen/loadbalance"
	"jsonrpc-gen/middleware"
	"jsonrpc-gen/registry"
	"jsonrpc-gen/rpcclient"
	"jsonrpc-gen/transport"

	"github.com/pkg/errors"
)

// NewTransport builds the transport described by cfg, decorated with
// logging and whichever of rate limiting, retries and per-attempt timeouts
// cfg enables. The returned closer releases connections.
func NewTransport(ctx context.Context, cfg config.Transport) (rpcclient.Transport, io.Closer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	base, closer, err := dial(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	mws := []middleware.Middleware{middleware.Logging()}
	if cfg.RateLimit > 0 {
		mws = append(mws, middleware.RateLimit(cfg.RateLimit, cfg.Burst))
	}
	if cfg.Retries > 0 {
		mws = append(mws, middleware.Retry(cfg.Retries, cfg.RetryDelay))
	}
	if cfg.Timeout > 0 {
		mws = append(mws, middleware.Timeout(cfg.Timeout))
	}
	return middleware.Chain(mws...)(base), closer, nil
}

func dial(ctx context.Context, cfg config.Transport) (rpcclient.Transport, io.Closer, error) {
	switch cfg.Kind {
	case config.KindTCP:
		pool, err := transport.DialPool(cfg.Address, cfg.PoolSize, cfg.DialTimeout)
		if err != nil {
			return nil, nil, err
		}
		return pool, pool, nil

	case config.KindWebSocket:
		ws, err := transport.DialWebSocket(ctx, cfg.Address)
		if err != nil {
			return nil, nil, err
		}
		return ws, ws, nil

	case config.KindHTTP:
		return transport.NewHTTP(cfg.Address, cfg.DialTimeout), closers(nil), nil

	case config.KindEtcd:
		bal, err := loadbalance.New(cfg.Balancer)
		if err != nil {
			return nil, nil, err
		}
		reg, err := registry.NewEtcdRegistry(cfg.Endpoints, cfg.DialTimeout)
		if err != nil {
			return nil, nil, err
		}
		c := NewClient(reg, bal, cfg.Service, cfg.PoolSize, cfg.DialTimeout)
		return c, closers{c, reg}, nil
	}
	return nil, nil, errors.Errorf("client: unknown transport kind %q", cfg.Kind)
}

type closers []io.Closer

func (cs closers) Close() error {
	var first error
	for _, c := range cs {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
