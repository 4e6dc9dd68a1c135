package dispatch

import "github.com/google/uuid"

// Session is the metadata a transport attaches to each call: one per
// connection for network servers, one per adapter for in-process calls.
type Session struct {
	ID   string
	Peer string
}

// NewSession returns a session with a fresh random id.
func NewSession(peer string) Session {
	return Session{ID: uuid.NewString(), Peer: peer}
}
