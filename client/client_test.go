package client

import (
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	"jsonrpc-gen/config"
	"jsonrpc-gen/dispatch"
	"jsonrpc-gen/loadbalance"
	"jsonrpc-gen/message"
	"jsonrpc-gen/registration"
	"jsonrpc-gen/registry"
	"jsonrpc-gen/rpcclient"
	"jsonrpc-gen/server"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startInstance serves an "add" and a "whereami" method, the latter
// returning the instance's own address.
func startInstance(t *testing.T, reg registry.Registry) string {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := listener.Addr().String()

	d := dispatch.New()
	require.NoError(t, d.Register(registration.MethodDescriptor{LocalName: "Add", WireName: "add"},
		func(_ context.Context, _ any, params json.RawMessage) (any, error) {
			var args [2]uint64
			if err := json.Unmarshal(params, &args); err != nil {
				return nil, message.NewError(message.InvalidParams)
			}
			return args[0] + args[1], nil
		}))
	require.NoError(t, d.Register(registration.MethodDescriptor{LocalName: "Whereami", WireName: "whereami"},
		func(context.Context, any, json.RawMessage) (any, error) {
			return addr, nil
		}))

	var opts []server.Option
	if reg != nil {
		opts = append(opts, server.WithRegistry(reg, "Calculator", addr, 10))
	}
	svr := server.NewServer(d, opts...)
	go svr.ServeListener(listener)
	t.Cleanup(func() { svr.Shutdown(time.Second) })

	if reg != nil {
		require.Eventually(t, func() bool {
			instances, _ := reg.Discover(context.Background(), "Calculator")
			for _, inst := range instances {
				if inst.Addr == addr {
					return true
				}
			}
			return false
		}, time.Second, 10*time.Millisecond)
	}
	return addr
}

func wait[T any](t *testing.T, f *rpcclient.Future[T]) (T, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	return f.Await(ctx)
}

func TestClientDiscoversAndBalances(t *testing.T) {
	reg := registry.NewMemoryRegistry()
	first := startInstance(t, reg)
	second := startInstance(t, reg)

	c := NewClient(reg, &loadbalance.RoundRobinBalancer{}, "Calculator", 2, time.Second)
	defer c.Close()

	var ids rpcclient.IDGenerator
	seen := map[string]bool{}
	for i := 0; i < 4; i++ {
		addr, err := wait(t, rpcclient.Invoke(c, &ids, "whereami", rpcclient.DecodeResponse[string]))
		require.NoError(t, err)
		seen[addr] = true
	}
	assert.Equal(t, map[string]bool{first: true, second: true}, seen)

	sum, err := wait(t, rpcclient.Invoke(c, &ids, "add", rpcclient.DecodeResponse[uint64], 2, 3))
	require.NoError(t, err)
	assert.Equal(t, uint64(5), sum)
}

func TestClientConsistentHashSticks(t *testing.T) {
	reg := registry.NewMemoryRegistry()
	startInstance(t, reg)
	startInstance(t, reg)
	startInstance(t, reg)

	c := NewClient(reg, loadbalance.NewConsistentHashBalancer(), "Calculator", 1, time.Second)
	defer c.Close()

	var ids rpcclient.IDGenerator
	first, err := wait(t, rpcclient.Invoke(c, &ids, "whereami", rpcclient.DecodeResponse[string]))
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		addr, err := wait(t, rpcclient.Invoke(c, &ids, "whereami", rpcclient.DecodeResponse[string]))
		require.NoError(t, err)
		assert.Equal(t, first, addr)
	}
}

func TestClientDropsDepartedInstances(t *testing.T) {
	reg := registry.NewMemoryRegistry()
	addr := startInstance(t, reg)

	c := NewClient(reg, &loadbalance.RoundRobinBalancer{}, "Calculator", 1, time.Second)
	defer c.Close()

	var ids rpcclient.IDGenerator
	_, err := wait(t, rpcclient.Invoke(c, &ids, "add", rpcclient.DecodeResponse[uint64], 1, 1))
	require.NoError(t, err)

	require.NoError(t, reg.Deregister(context.Background(), "Calculator", addr))
	assert.Eventually(t, func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		return len(c.pools) == 0
	}, time.Second, 10*time.Millisecond)

	_, err = wait(t, rpcclient.Invoke(c, &ids, "add", rpcclient.DecodeResponse[uint64], 1, 1))
	assert.ErrorIs(t, err, loadbalance.ErrNoInstances)
}

func TestNewTransportTCP(t *testing.T) {
	addr := startInstance(t, nil)

	tr, closer, err := NewTransport(context.Background(), config.Transport{
		Kind:        config.KindTCP,
		Address:     addr,
		PoolSize:    2,
		DialTimeout: time.Second,
		Timeout:     time.Second,
		Retries:     2,
		RetryDelay:  10 * time.Millisecond,
		RateLimit:   1000,
		Burst:       10,
	})
	require.NoError(t, err)
	defer closer.Close()

	var ids rpcclient.IDGenerator
	sum, err := wait(t, rpcclient.Invoke(tr, &ids, "add", rpcclient.DecodeResponse[uint64], 40, 2))
	require.NoError(t, err)
	assert.Equal(t, uint64(42), sum)
}

func TestNewTransportRejectsBadConfig(t *testing.T) {
	_, _, err := NewTransport(context.Background(), config.Transport{Kind: config.KindTCP, PoolSize: 1})
	assert.Error(t, err)

	_, _, err = NewTransport(context.Background(), config.Transport{Kind: config.KindTCP, Address: "127.0.0.1:1", PoolSize: 1, DialTimeout: 100 * time.Millisecond})
	assert.Error(t, err)
}
