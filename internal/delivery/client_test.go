package delivery

import (
	"bytes"
	"context"
	"errors"
	"io"
	"math"
	nethttp "net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/devicelink/telemd"
	"github.com/devicelink/telemd/internal/http"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

// fakeDoer answers every request with a fixed status and body chunks, or err.
type fakeDoer struct {
	status int
	chunks [][]byte
	err    error

	calls   int
	url     string
	headers map[string]string
	body    []byte
}

func (f *fakeDoer) Post(ctx context.Context, url string, headers map[string]string, body []byte, onData func([]byte)) (*http.Result, error) {
	f.calls++
	f.url = url
	f.headers = headers
	f.body = body

	if f.err != nil {
		return nil, f.err
	}

	var n int
	for _, c := range f.chunks {
		onData(c)
		n += len(c)
	}
	return &http.Result{StatusCode: f.status, ContentLength: n}, nil
}

func newClient(t *testing.T, config Config, doer http.Doer) *Client {
	t.Helper()

	if config.Endpoint == "" {
		config.Endpoint = "http://collector.example/telemetry"
	}
	c := New(config, doer)
	if err := c.Init(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := c.Cleanup(); err != nil {
			t.Error(err)
		}
	})
	return c
}

var ignoreTime = cmpopts.IgnoreFields(Stats{}, "LastRequestTime")

func TestPost(t *testing.T) {
	tests := []struct {
		description string
		doer        *fakeDoer
		wantKind    OutcomeKind
		wantError   error
		wantStats   Stats
	}{
		{
			description: "ok",
			doer:        &fakeDoer{status: 200, chunks: [][]byte{[]byte(`{"ok":true}`)}},
			wantKind:    OutcomeOK,
			wantStats:   Stats{Initialized: true, Total: 1, Successful: 1, LastStatusCode: 200},
		},
		{
			description: "not found",
			doer:        &fakeDoer{status: 404, chunks: [][]byte{[]byte("no such route")}},
			wantKind:    OutcomeApplicationError,
			wantStats:   Stats{Initialized: true, Total: 1, Failed: 1, LastStatusCode: 404},
		},
		{
			description: "timeout",
			doer:        &fakeDoer{err: context.DeadlineExceeded},
			wantKind:    OutcomeTimeout,
			wantError:   telemd.ErrTimeout,
			wantStats:   Stats{Initialized: true, Total: 1, Failed: 1, Timeouts: 1},
		},
		{
			description: "transport failure",
			doer:        &fakeDoer{err: io.ErrUnexpectedEOF},
			wantKind:    OutcomeTransportError,
			wantError:   telemd.ErrTransport,
			wantStats:   Stats{Initialized: true, Total: 1, Failed: 1, NetworkErrors: 1},
		},
	}

	for _, test := range tests {
		t.Run(test.description, func(t *testing.T) {
			c := newClient(t, Config{}, test.doer)

			got, err := c.Post(Payload{Temperature: 25.4, Uptime: "1h 30m 45s"})

			if test.wantError != nil && !errors.Is(err, test.wantError) {
				t.Errorf("%v is not %v", err, test.wantError)
			}
			if test.wantKind == OutcomeOK && err != nil {
				t.Fatal(err)
			}
			if got.Kind != test.wantKind {
				t.Errorf("%v != %v", got.Kind, test.wantKind)
			}
			if gotStats := c.Stats(); !cmp.Equal(gotStats, test.wantStats, ignoreTime) {
				t.Errorf("%v", cmp.Diff(gotStats, test.wantStats, ignoreTime))
			}
			if test.doer.calls != 1 {
				t.Errorf("%v != 1", test.doer.calls)
			}
		})
	}
}

func TestPostApplicationError(t *testing.T) {
	c := newClient(t, Config{}, &fakeDoer{status: 404, chunks: [][]byte{[]byte("missing")}})

	got, err := c.Post(Payload{Temperature: 30, Uptime: "0h 0m 5s"})

	var appErr *telemd.ApplicationError
	if !errors.As(err, &appErr) {
		t.Fatalf("%v is not an ApplicationError", err)
	}
	if appErr.Status != 404 || appErr.Body != "missing" {
		t.Errorf("%+v", appErr)
	}
	if got.Status != 404 {
		t.Errorf("%v != 404", got.Status)
	}

	resp, err := c.LastResponse()
	if err != nil {
		t.Fatal(err)
	}
	want := Response{StatusCode: 404, ContentLength: 7, Body: []byte("missing"), BodyLen: 7}
	if !cmp.Equal(resp, want) {
		t.Errorf("%v", cmp.Diff(resp, want))
	}
}

func TestPostRequest(t *testing.T) {
	doer := &fakeDoer{status: 201}
	c := newClient(t, Config{Endpoint: "http://collector.example/in"}, doer)

	if _, err := c.Post(Payload{Temperature: 25.4, Uptime: "1h 30m 45s"}); err != nil {
		t.Fatal(err)
	}

	if doer.url != "http://collector.example/in" {
		t.Errorf("%v", doer.url)
	}
	if got := doer.headers["Content-Type"]; got != "application/json" {
		t.Errorf("%v != application/json", got)
	}
	if got := string(doer.body); got != `{"cpu_temp":25.4,"sys_uptime":"1h 30m 45s"}` {
		t.Errorf("%v", got)
	}
}

func TestPostTruncatesBody(t *testing.T) {
	chunk := bytes.Repeat([]byte("z"), 150)
	doer := &fakeDoer{status: 200, chunks: [][]byte{chunk, chunk, chunk}}
	c := newClient(t, Config{ResponseBufferSize: 256}, doer)

	got, err := c.Post(Payload{Temperature: 21, Uptime: "0h 1m 0s"})
	if err != nil {
		t.Fatal(err)
	}

	if got.Response.BodyLen != 255 {
		t.Errorf("%v != 255", got.Response.BodyLen)
	}
	if len(got.Response.Body) != 255 {
		t.Errorf("%v != 255", len(got.Response.Body))
	}
	if !c.buffer.Terminated() {
		t.Error("body not terminated")
	}
	if got.Response.ContentLength != 450 {
		t.Errorf("%v != 450", got.Response.ContentLength)
	}
}

func TestPostSerializationFailure(t *testing.T) {
	doer := &fakeDoer{status: 200}
	c := newClient(t, Config{}, doer)

	got, err := c.Post(Payload{Temperature: float32(math.NaN())})

	if !errors.Is(err, telemd.ErrTransport) {
		t.Errorf("%v is not %v", err, telemd.ErrTransport)
	}
	if got.Kind != OutcomeTransportError {
		t.Errorf("%v != %v", got.Kind, OutcomeTransportError)
	}
	if want := (Stats{Initialized: true}); !cmp.Equal(c.Stats(), want) {
		t.Errorf("%v", cmp.Diff(c.Stats(), want))
	}
	if doer.calls != 0 {
		t.Errorf("%v != 0", doer.calls)
	}
}

func TestPostNotInitialized(t *testing.T) {
	c := New(Config{Endpoint: "http://collector.example"}, &fakeDoer{status: 200})

	if _, err := c.Post(Payload{}); !errors.Is(err, telemd.ErrInvalidState) {
		t.Errorf("%v is not %v", err, telemd.ErrInvalidState)
	}
	if _, err := c.LastResponse(); !errors.Is(err, telemd.ErrInvalidState) {
		t.Errorf("%v is not %v", err, telemd.ErrInvalidState)
	}
	if err := c.ResetStats(); !errors.Is(err, telemd.ErrInvalidState) {
		t.Errorf("%v is not %v", err, telemd.ErrInvalidState)
	}
}

func TestPostRaw(t *testing.T) {
	tests := []struct {
		description string
		input       string
		wantError   error
		wantCalls   int
	}{
		{description: "valid", input: `{"cpu_temp":1.5}`, wantCalls: 1},
		{description: "empty", input: "", wantError: telemd.ErrInvalidArgument},
		{description: "malformed", input: `{"cpu_temp":`, wantError: telemd.ErrInvalidArgument},
	}

	for _, test := range tests {
		t.Run(test.description, func(t *testing.T) {
			doer := &fakeDoer{status: 200}
			c := newClient(t, Config{}, doer)

			_, err := c.PostRaw(test.input)

			if test.wantError != nil {
				if !errors.Is(err, test.wantError) {
					t.Errorf("%v is not %v", err, test.wantError)
				}
			} else if err != nil {
				t.Fatal(err)
			}
			if doer.calls != test.wantCalls {
				t.Errorf("%v != %v", doer.calls, test.wantCalls)
			}
			if test.wantCalls > 0 && string(doer.body) != test.input {
				t.Errorf("%s != %v", doer.body, test.input)
			}
		})
	}
}

func TestPostTo(t *testing.T) {
	doer := &fakeDoer{status: 200}
	c := newClient(t, Config{}, doer)

	if _, err := c.PostTo(Payload{Uptime: "0h 0m 1s"}, ""); !errors.Is(err, telemd.ErrInvalidArgument) {
		t.Errorf("%v is not %v", err, telemd.ErrInvalidArgument)
	}

	if _, err := c.PostTo(Payload{Uptime: "0h 0m 1s"}, "http://backup.example/in"); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Post(Payload{Uptime: "0h 0m 2s"}); err != nil {
		t.Fatal(err)
	}

	if doer.url != "http://collector.example/telemetry" {
		t.Errorf("%v", doer.url)
	}
	if got := c.Stats(); got.Total != 2 || got.Successful != 2 {
		t.Errorf("%+v", got)
	}
}

func TestLastResponse(t *testing.T) {
	c := newClient(t, Config{}, &fakeDoer{status: 200, chunks: [][]byte{[]byte("accepted")}})

	if _, err := c.LastResponse(); !errors.Is(err, telemd.ErrInvalidState) {
		t.Errorf("%v is not %v", err, telemd.ErrInvalidState)
	}

	if _, err := c.Post(Payload{Uptime: "0h 0m 1s"}); err != nil {
		t.Fatal(err)
	}

	got, err := c.LastResponse()
	if err != nil {
		t.Fatal(err)
	}
	want := Response{StatusCode: 200, ContentLength: 8, Body: []byte("accepted"), BodyLen: 8, Success: true}
	if !cmp.Equal(got, want) {
		t.Errorf("%v", cmp.Diff(got, want))
	}

	// The returned body is a copy.
	got.Body[0] = 'X'
	again, _ := c.LastResponse()
	if string(again.Body) != "accepted" {
		t.Errorf("%s", again.Body)
	}
}

func TestResetStats(t *testing.T) {
	c := newClient(t, Config{}, &fakeDoer{status: 500})

	for i := 0; i < 3; i++ {
		_, _ = c.Post(Payload{Uptime: "0h 0m 1s"})
	}
	if got := c.Stats().Failed; got != 3 {
		t.Fatalf("%v != 3", got)
	}

	if err := c.ResetStats(); err != nil {
		t.Fatal(err)
	}

	if want := (Stats{Initialized: true}); !cmp.Equal(c.Stats(), want) {
		t.Errorf("%v", cmp.Diff(c.Stats(), want))
	}
}

func TestTestConnectivity(t *testing.T) {
	doer := &fakeDoer{status: 204}
	c := newClient(t, Config{}, doer)

	got, err := c.TestConnectivity()
	if err != nil {
		t.Fatal(err)
	}
	if got.Kind != OutcomeOK {
		t.Errorf("%v != %v", got.Kind, OutcomeOK)
	}
	if string(doer.body) != `{"test":"connectivity"}` {
		t.Errorf("%s", doer.body)
	}
	if c.Stats().Total != 1 {
		t.Errorf("%v != 1", c.Stats().Total)
	}
}

func TestInit(t *testing.T) {
	c := New(Config{ResponseBufferSize: -1}, &fakeDoer{})
	if err := c.Init(); !errors.Is(err, telemd.ErrNoMemory) {
		t.Errorf("%v is not %v", err, telemd.ErrNoMemory)
	}

	c = New(Config{}, &fakeDoer{})
	if err := c.Init(); err != nil {
		t.Fatal(err)
	}
	if err := c.Init(); err != nil {
		t.Errorf("second init: %v", err)
	}
	if !c.Stats().Initialized {
		t.Error("not initialized")
	}
	if err := c.Cleanup(); err != nil {
		t.Fatal(err)
	}
	if c.Stats().Initialized {
		t.Error("initialized after cleanup")
	}
	if err := c.Cleanup(); err != nil {
		t.Errorf("second cleanup: %v", err)
	}
}

func TestPostHTTP(t *testing.T) {
	t.Run("not found", func(t *testing.T) {
		srv := httptest.NewServer(nethttp.NotFoundHandler())
		defer srv.Close()

		c := newClient(t, Config{Endpoint: srv.URL}, nil)

		got, err := c.Post(Payload{Temperature: 25.4, Uptime: "1h 30m 45s"})

		var appErr *telemd.ApplicationError
		if !errors.As(err, &appErr) || appErr.Status != nethttp.StatusNotFound {
			t.Errorf("%v", err)
		}
		if got.Kind != OutcomeApplicationError || got.Status != nethttp.StatusNotFound {
			t.Errorf("%+v", got)
		}
		want := Stats{Initialized: true, Total: 1, Failed: 1, LastStatusCode: 404}
		if !cmp.Equal(c.Stats(), want, ignoreTime) {
			t.Errorf("%v", cmp.Diff(c.Stats(), want, ignoreTime))
		}
	})

	t.Run("user agent", func(t *testing.T) {
		var ua string
		srv := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
			ua = r.UserAgent()
		}))
		defer srv.Close()

		c := newClient(t, Config{Endpoint: srv.URL}, nil)

		if _, err := c.Post(Payload{Uptime: "0h 0m 1s"}); err != nil {
			t.Fatal(err)
		}
		if ua != telemd.UserAgent {
			t.Errorf("%v != %v", ua, telemd.UserAgent)
		}
	})

	t.Run("timeout", func(t *testing.T) {
		release := make(chan struct{})
		srv := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
			<-release
		}))
		defer srv.Close()
		defer close(release)

		c := newClient(t, Config{Endpoint: srv.URL, Timeout: 50 * time.Millisecond}, nil)

		got, err := c.Post(Payload{Uptime: "0h 0m 1s"})
		if !errors.Is(err, telemd.ErrTimeout) {
			t.Errorf("%v is not %v", err, telemd.ErrTimeout)
		}
		if got.Kind != OutcomeTimeout {
			t.Errorf("%v != %v", got.Kind, OutcomeTimeout)
		}
		if c.Stats().Timeouts != 1 {
			t.Errorf("%v != 1", c.Stats().Timeouts)
		}
	})

	t.Run("connection refused", func(t *testing.T) {
		srv := httptest.NewServer(nethttp.NotFoundHandler())
		url := srv.URL
		srv.Close()

		c := newClient(t, Config{Endpoint: url}, nil)

		got, err := c.Post(Payload{Uptime: "0h 0m 1s"})
		if !errors.Is(err, telemd.ErrTransport) {
			t.Errorf("%v is not %v", err, telemd.ErrTransport)
		}
		if got.Kind != OutcomeTransportError {
			t.Errorf("%v != %v", got.Kind, OutcomeTransportError)
		}
		if c.Stats().NetworkErrors != 1 {
			t.Errorf("%v != 1", c.Stats().NetworkErrors)
		}
	})
}
