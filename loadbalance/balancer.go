// Package loadbalance picks which server instance receives a call.
//
// Three strategies are implemented:
//   - RoundRobin:      equal-capacity instances
//   - WeightedRandom:  heterogeneous instances, chosen in proportion to Weight
//   - ConsistentHash:  the same wire method always lands on the same instance
package loadbalance

import (
	"jsonrpc-gen/registry"

	"github.com/pkg/errors"
)

// ErrNoInstances is returned when there is nothing to pick from.
var ErrNoInstances = errors.New("loadbalance: no instances available")

// Balancer selects one instance per call. key is the JSON-RPC wire method
// name of the call; strategies that do not need affinity ignore it.
// Implementations must be goroutine-safe.
type Balancer interface {
	Pick(key string, instances []registry.ServiceInstance) (*registry.ServiceInstance, error)
	Name() string
}

// New returns the strategy with the given configuration name.
func New(name string) (Balancer, error) {
	switch name {
	case "", "round_robin":
		return &RoundRobinBalancer{}, nil
	case "weighted_random":
		return &WeightedRandomBalancer{}, nil
	case "consistent_hash":
		return NewConsistentHashBalancer(), nil
	}
	return nil, errors.Errorf("loadbalance: unknown strategy %q", name)
}
