package transport

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"

	"jsonrpc-gen/rpcclient"

	"github.com/pkg/errors"
)

// HTTP posts each request to one URL and treats the response body as the
// reply envelope. Every call runs on its own goroutine.
type HTTP struct {
	URL    string
	Client *http.Client
}

// NewHTTP returns an HTTP transport with its own client bounded by timeout.
func NewHTTP(url string, timeout time.Duration) *HTTP {
	return &HTTP{URL: url, Client: &http.Client{Timeout: timeout}}
}

func (h *HTTP) Call(request string) *rpcclient.Future[string] {
	future := rpcclient.NewFuture[string]()
	go func() {
		body, err := h.post(context.Background(), request)
		if err != nil {
			future.Reject(err)
			return
		}
		future.Resolve(body)
	}()
	return future
}

func (h *HTTP) post(ctx context.Context, request string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.URL, bytes.NewBufferString(request))
	if err != nil {
		return "", errors.Wrap(err, "transport: build http request")
	}
	req.Header.Set("Content-Type", "application/json")

	client := h.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", errors.Wrapf(err, "transport: post %s", h.URL)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", errors.Wrap(err, "transport: read http body")
	}
	if resp.StatusCode != http.StatusOK {
		return "", errors.Errorf("transport: http status %d", resp.StatusCode)
	}
	return string(data), nil
}
