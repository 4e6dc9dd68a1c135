package registry

import "context"

// ServiceInstance is one server offering a JSON-RPC interface.
type ServiceInstance struct {
	Addr    string `json:"addr"`
	Weight  int    `json:"weight"` // for weighted load balancing
	Version string `json:"version,omitempty"`
}

// Registry is a service phonebook: servers register under the interface
// name they serve, clients discover live instances by the same name.
type Registry interface {
	Register(ctx context.Context, serviceName string, instance ServiceInstance, ttl int64) error
	Deregister(ctx context.Context, serviceName string, addr string) error
	Discover(ctx context.Context, serviceName string) ([]ServiceInstance, error)
	Watch(ctx context.Context, serviceName string) <-chan []ServiceInstance
}
