// Package rpcclient is the runtime shared by generated JSON-RPC clients.
//
// A generated method packs its arguments, builds a request envelope with a
// fresh id, hands the text to a Transport and chains the transport's answer
// into the method's own response decoder:
//
//	Add(2, 3) ──EncodeRequest──► Transport.Call ──► Future[string] ──DecodeResponse[uint64]──► Future[uint64]
//
// Correlation is structural: every call site is paired with its decoder when
// the client is generated, so the id is only there for the wire protocol.
package rpcclient

// Transport moves one request string to the remote side and yields the
// response string. Anything offering this single operation can back every
// generated client: an in-process dispatcher, a pooled connection, an HTTP
// client. Transports that multiplex calls over one stream correlate
// responses by id themselves.
type Transport interface {
	Call(request string) *Future[string]
}

// TransportFunc adapts a plain function to Transport.
type TransportFunc func(request string) *Future[string]

func (f TransportFunc) Call(request string) *Future[string] {
	return f(request)
}

// MetadataTransport is implemented by transports that can hand session
// metadata to the remote dispatcher out of band. Metadata never goes on the
// wire as part of the request envelope.
type MetadataTransport interface {
	Transport
	CallWithMetadata(meta any, request string) *Future[string]
}
