package http

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"git.sr.ht/~spc/go-log"
)

// chunkSize is the size of the reads used to hand a response body to the
// caller.
const chunkSize = 128

// Result describes a completed HTTP exchange.
type Result struct {
	StatusCode    int
	ContentLength int
}

// Doer sends a POST request and streams the response body to onData. A
// non-2xx response is a Result, not an error.
type Doer interface {
	Post(ctx context.Context, url string, headers map[string]string, body []byte, onData func([]byte)) (*Result, error)
}

// Client is a specialized HTTP client that sets a user-agent on every request
// and bounds each exchange by a timeout.
type Client struct {
	http.Client
	userAgent string
}

// NewHTTPClient creates a client with the given user-agent string and
// request timeout.
func NewHTTPClient(ua string, timeout time.Duration) *Client {
	client := http.Client{
		Transport: http.DefaultTransport.(*http.Transport).Clone(),
		Timeout:   timeout,
	}

	return &Client{
		Client:    client,
		userAgent: ua,
	}
}

// Post sends body to url and calls onData for each chunk of the response body
// as it is read. onData may be nil.
func (c *Client) Post(ctx context.Context, url string, headers map[string]string, body []byte, onData func([]byte)) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("cannot create HTTP request: %w", err)
	}

	for k, v := range headers {
		req.Header.Add(k, strings.TrimSpace(v))
	}
	req.Header.Set("User-Agent", c.userAgent)

	log.Debugf("sending HTTP request: %v %v", req.Method, req.URL)
	log.Tracef("request: %v", req)

	resp, err := c.Do(req)
	if err != nil {
		return nil, fmt.Errorf("cannot do HTTP request: %w", err)
	}
	defer resp.Body.Close()

	log.Debugf("received HTTP response: %v", resp.Status)

	buf := make([]byte, chunkSize)
	for {
		n, err := resp.Body.Read(buf)
		if n > 0 && onData != nil {
			onData(buf[:n])
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("cannot read response body: %w", err)
		}
	}

	return &Result{
		StatusCode:    resp.StatusCode,
		ContentLength: int(resp.ContentLength),
	}, nil
}
