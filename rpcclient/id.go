package rpcclient

import "sync/atomic"

// IDGenerator hands out call ids. The zero value is ready to use and its
// first id is 0. Concurrent callers never observe the same value; ids are
// never reclaimed and wrap silently after math.MaxUint64.
type IDGenerator struct {
	next atomic.Uint64
}

// Next returns a fresh id.
func (g *IDGenerator) Next() uint64 {
	return g.next.Add(1) - 1
}
