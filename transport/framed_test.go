package transport

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"jsonrpc-gen/protocol"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// echoServer answers every request frame with "echo:" + body. Frames are
// collected first and answered in reverse order so replies arrive out of
// order whenever batch > 1.
func echoServer(t *testing.T, conn net.Conn, batch int) {
	t.Helper()
	go func() {
		defer conn.Close()
		var held []*protocol.Header
		var bodies [][]byte
		for {
			h, body, err := protocol.Decode(conn)
			if err != nil {
				return
			}
			if h.MsgType != protocol.MsgTypeRequest {
				continue
			}
			held = append(held, h)
			bodies = append(bodies, body)
			if len(held) < batch {
				continue
			}
			for i := len(held) - 1; i >= 0; i-- {
				reply := append([]byte("echo:"), bodies[i]...)
				rh := protocol.Header{MsgType: protocol.MsgTypeResponse, Seq: held[i].Seq, BodyLen: uint32(len(reply))}
				if err := protocol.Encode(conn, &rh, reply); err != nil {
					return
				}
			}
			held, bodies = nil, nil
		}
	}()
}

func await(t *testing.T, f interface {
	Await(context.Context) (string, error)
}) (string, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return f.Await(ctx)
}

func TestFramedRoutesOutOfOrderReplies(t *testing.T) {
	client, server := net.Pipe()
	echoServer(t, server, 2)

	tr := NewFramed(client, 0)
	defer tr.Close()

	first := tr.Call("first")
	second := tr.Call("second")

	got, err := await(t, first)
	require.NoError(t, err)
	assert.Equal(t, "echo:first", got)
	got, err = await(t, second)
	require.NoError(t, err)
	assert.Equal(t, "echo:second", got)
	assert.Zero(t, tr.Pending())
}

func TestFramedConcurrent(t *testing.T) {
	client, server := net.Pipe()
	echoServer(t, server, 1)

	tr := NewFramed(client, 0)
	defer tr.Close()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			request := string(rune('a' + i%26))
			got, err := await(t, tr.Call(request))
			assert.NoError(t, err)
			assert.Equal(t, "echo:"+request, got)
		}(i)
	}
	wg.Wait()
}

func TestFramedConnectionLossFailsPending(t *testing.T) {
	client, server := net.Pipe()
	tr := NewFramed(client, 0)

	// drain the request, then hang up without answering
	go func() {
		protocol.Decode(server)
		server.Close()
	}()

	_, err := await(t, tr.Call("lost"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection lost")

	<-tr.Done()
	_, err = await(t, tr.Call("after"))
	assert.Error(t, err)
}

func TestFramedCloseFailsPending(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()
	go func() {
		for {
			if _, _, err := protocol.Decode(server); err != nil {
				return
			}
		}
	}()

	tr := NewFramed(client, 0)
	pending := tr.Call("never answered")
	require.NoError(t, tr.Close())

	_, err := await(t, pending)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestFramedHeartbeat(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()

	tr := NewFramed(client, 10*time.Millisecond)
	defer tr.Close()

	server.SetReadDeadline(time.Now().Add(time.Second))
	h, body, err := protocol.Decode(server)
	require.NoError(t, err)
	assert.Equal(t, protocol.MsgTypeHeartbeat, h.MsgType)
	assert.Empty(t, body)
}

type brokenWriter struct{ net.Conn }

func (brokenWriter) Write([]byte) (int, error) { return 0, errors.New("short write") }

func TestFramedWriteErrorClosesConnection(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()
	tr := NewFramed(brokenWriter{client}, 0)

	_, err := await(t, tr.Call("first"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "write frame")

	select {
	case <-tr.Done():
	case <-time.After(time.Second):
		t.Fatal("transport still usable after a failed write")
	}
	_, err = await(t, tr.Call("second"))
	assert.Contains(t, err.Error(), "write frame")
}

func TestFramedRejectsOversizedRequest(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()
	tr := NewFramed(client, 0)
	defer tr.Close()

	_, err := await(t, tr.Call(string(make([]byte, protocol.MaxBodySize+1))))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds frame limit")

	select {
	case <-tr.Done():
		t.Fatal("an oversized request must not close the connection")
	default:
	}
}

func TestFramedReleasesAbandonedCalls(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()
	go func() {
		for {
			if _, _, err := protocol.Decode(server); err != nil {
				return
			}
		}
	}()

	tr := NewFramed(client, 0)
	defer tr.Close()

	call := tr.Call("never answered")
	assert.Equal(t, 1, tr.Pending())

	call.Reject(errors.New("caller gave up"))
	assert.Eventually(t, func() bool { return tr.Pending() == 0 }, time.Second, 5*time.Millisecond)
}
