// Package delivery posts telemetry samples to an HTTP endpoint and keeps
// statistics on the outcome of every request.
//
// A Client is not safe for concurrent use. Requests are issued one at a time
// from a single goroutine; calling any method concurrently with a request in
// flight is undefined.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"git.sr.ht/~spc/go-log"
	"github.com/devicelink/telemd"
	"github.com/devicelink/telemd/internal/http"
)

// Defaults applied by New to zero Config fields.
const (
	DefaultTimeout            = 5000 * time.Millisecond
	DefaultResponseBufferSize = 512
)

// OutcomeKind classifies the result of a request.
type OutcomeKind int

const (
	OutcomeOK OutcomeKind = iota
	OutcomeTimeout
	OutcomeTransportError
	OutcomeApplicationError
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeOK:
		return "ok"
	case OutcomeTimeout:
		return "timeout"
	case OutcomeTransportError:
		return "transport-error"
	case OutcomeApplicationError:
		return "application-error"
	default:
		return fmt.Sprintf("unknown(%d)", k)
	}
}

// Outcome is the typed result of a request. Response is set for OutcomeOK;
// Status is set for OutcomeApplicationError.
type Outcome struct {
	Kind     OutcomeKind
	Response Response
	Status   int
}

// Config holds the values a Client needs.
type Config struct {
	Endpoint string
	Timeout  time.Duration

	// UserAgent is sent with every request. Defaults to telemd.UserAgent.
	UserAgent string

	// ResponseBufferSize bounds the stored response body, terminator
	// included.
	ResponseBufferSize int
}

// Client delivers payloads to the configured endpoint.
type Client struct {
	config Config
	doer   http.Doer

	initialized bool
	initTime    time.Time
	buffer      *ResponseBuffer
	response    Response
	stats       Stats
}

// New creates a Client. If doer is nil, an HTTP client is created from
// config. Init must be called before use.
func New(config Config, doer http.Doer) *Client {
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	if config.UserAgent == "" {
		config.UserAgent = telemd.UserAgent
	}
	if config.ResponseBufferSize == 0 {
		config.ResponseBufferSize = DefaultResponseBufferSize
	}
	if doer == nil {
		doer = http.NewHTTPClient(config.UserAgent, config.Timeout)
	}

	return &Client{
		config: config,
		doer:   doer,
	}
}

// Init allocates the response buffer and zeroes the statistics.
func (c *Client) Init() error {
	if c.initialized {
		log.Warn("delivery client already initialized")
		return nil
	}
	if c.config.ResponseBufferSize <= 0 {
		return fmt.Errorf("cannot allocate response buffer of %v bytes: %w", c.config.ResponseBufferSize, telemd.ErrNoMemory)
	}

	log.Debugf("initializing delivery client for %v", c.config.Endpoint)

	c.buffer = NewResponseBuffer(c.config.ResponseBufferSize)
	c.response = Response{}
	c.stats = Stats{Initialized: true}
	c.initTime = time.Now()
	c.initialized = true

	return nil
}

// Post serializes p and sends it to the configured endpoint.
func (c *Client) Post(p Payload) (Outcome, error) {
	return c.PostTo(p, c.config.Endpoint)
}

// PostTo serializes p and sends it to url. Statistics are shared with Post.
func (c *Client) PostTo(p Payload, url string) (Outcome, error) {
	if !c.initialized {
		return Outcome{}, fmt.Errorf("cannot post: %w", telemd.ErrInvalidState)
	}
	if url == "" {
		return Outcome{}, fmt.Errorf("cannot post: empty url: %w", telemd.ErrInvalidArgument)
	}

	c.resetResponse()

	body, err := Marshal(p)
	if err != nil {
		log.Errorf("cannot serialize payload: %v", err)
		return Outcome{Kind: OutcomeTransportError}, fmt.Errorf("%v: %w", err, telemd.ErrTransport)
	}

	return c.send(url, body)
}

// PostRaw sends text, which must be well-formed JSON, to the configured
// endpoint.
func (c *Client) PostRaw(text string) (Outcome, error) {
	if !c.initialized {
		return Outcome{}, fmt.Errorf("cannot post: %w", telemd.ErrInvalidState)
	}
	if text == "" {
		return Outcome{}, fmt.Errorf("cannot post: empty body: %w", telemd.ErrInvalidArgument)
	}
	if !Valid([]byte(text)) {
		log.Errorf("invalid JSON payload: %v", text)
		return Outcome{}, fmt.Errorf("cannot post: malformed JSON: %w", telemd.ErrInvalidArgument)
	}

	c.resetResponse()

	return c.send(c.config.Endpoint, []byte(text))
}

// TestConnectivity posts a fixed probe document to the configured endpoint.
func (c *Client) TestConnectivity() (Outcome, error) {
	if !c.initialized {
		return Outcome{}, fmt.Errorf("cannot test connectivity: %w", telemd.ErrInvalidState)
	}

	log.Info("testing endpoint connectivity...")

	c.resetResponse()

	outcome, err := c.send(c.config.Endpoint, testPayload)
	if err != nil {
		log.Warnf("connectivity test failed: %v", err)
	} else {
		log.Info("connectivity test passed")
	}
	return outcome, err
}

// LastResponse returns a copy of the record of the most recent request.
func (c *Client) LastResponse() (Response, error) {
	if !c.initialized || c.stats.Total == 0 {
		return Response{}, fmt.Errorf("cannot get last response: %w", telemd.ErrInvalidState)
	}

	return c.copyResponse(), nil
}

// Stats returns a copy of the delivery statistics.
func (c *Client) Stats() Stats {
	return c.stats
}

// ResetStats zeroes the statistics.
func (c *Client) ResetStats() error {
	if !c.initialized {
		return fmt.Errorf("cannot reset statistics: %w", telemd.ErrInvalidState)
	}
	c.stats = Stats{Initialized: true}
	log.Info("delivery statistics reset")
	return nil
}

// Cleanup releases the response buffer. Init must be called again before the
// Client is reused.
func (c *Client) Cleanup() error {
	if !c.initialized {
		return nil
	}

	log.Debug("cleaning up delivery client")

	c.buffer = nil
	c.response = Response{}
	c.stats = Stats{}
	c.initTime = time.Time{}
	c.initialized = false

	return nil
}

func (c *Client) resetResponse() {
	c.response = Response{}
	c.buffer.Reset()
}

// send performs one counted exchange. The response record and buffer must
// already be reset.
func (c *Client) send(url string, body []byte) (Outcome, error) {
	headers := map[string]string{
		"Content-Type": "application/json",
	}

	c.stats.Total++
	c.stats.LastRequestTime = time.Since(c.initTime).Microseconds()

	log.Tracef("sending %s", body)

	ctx, cancel := context.WithTimeout(context.Background(), c.config.Timeout)
	defer cancel()

	result, err := c.doer.Post(ctx, url, headers, body, func(chunk []byte) {
		c.buffer.Append(chunk)
	})
	if err != nil {
		c.stats.Failed++
		if http.IsTimeout(err) || errors.Is(err, telemd.ErrTimeout) {
			c.stats.Timeouts++
			log.Errorf("request to %v timed out: %v", url, err)
			return Outcome{Kind: OutcomeTimeout}, fmt.Errorf("cannot post to %v: %w", url, telemd.ErrTimeout)
		}
		c.stats.NetworkErrors++
		log.Errorf("request to %v failed: %v", url, err)
		return Outcome{Kind: OutcomeTransportError}, fmt.Errorf("cannot post to %v: %v: %w", url, err, telemd.ErrTransport)
	}

	c.stats.LastStatusCode = result.StatusCode
	c.response.StatusCode = result.StatusCode
	c.response.ContentLength = result.ContentLength
	c.response.Body = c.buffer.Bytes()
	c.response.BodyLen = c.buffer.Len()

	if result.StatusCode < 200 || result.StatusCode >= 300 {
		c.response.Success = false
		c.stats.Failed++
		log.Errorf("request to %v returned status %v", url, result.StatusCode)
		return Outcome{Kind: OutcomeApplicationError, Status: result.StatusCode},
			&telemd.ApplicationError{Status: result.StatusCode, Body: string(c.response.Body)}
	}

	c.response.Success = true
	c.stats.Successful++
	log.Debugf("request to %v succeeded: status %v, %v bytes", url, result.StatusCode, c.response.BodyLen)

	return Outcome{Kind: OutcomeOK, Response: c.copyResponse()}, nil
}

func (c *Client) copyResponse() Response {
	r := c.response
	r.Body = append([]byte(nil), c.response.Body...)
	return r
}
