package fetcher

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"

	"github.com/aluiziolira/pricetrack/config"
	"github.com/aluiziolira/pricetrack/models"
)

func newTestClient(t *testing.T, transport *httpmock.MockTransport) *Client {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.DomainSpacing = 0
	cfg.Timeout = 2 * time.Second

	client, err := New(cfg)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	client.SetTransport(transport)
	return client
}

func TestFetchReturnsBody(t *testing.T) {
	transport := httpmock.NewMockTransport()
	page := "<html><body><span class=\"price\">10.00</span></body></html>"
	resp := httpmock.NewStringResponse(200, page)
	resp.Header.Set("Content-Type", "text/html")
	transport.RegisterResponder("GET", "http://shop.example/widget", httpmock.ResponderFromResponse(resp))

	client := newTestClient(t, transport)

	body, status, err := client.Fetch(context.Background(), "http://shop.example/widget", "shop.example")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if status != 200 {
		t.Fatalf("status=%d, want 200", status)
	}
	if !strings.Contains(string(body), "price") {
		t.Fatalf("unexpected body: %q", body)
	}
}

func TestFetchHTTPStatusError(t *testing.T) {
	tests := []struct {
		status    int
		transient bool
	}{
		{status: 404, transient: false},
		{status: 403, transient: false},
		{status: 500, transient: true},
		{status: 503, transient: true},
	}

	for _, tt := range tests {
		transport := httpmock.NewMockTransport()
		transport.RegisterResponder("GET", "http://shop.example/widget",
			httpmock.NewStringResponder(tt.status, ""))

		client := newTestClient(t, transport)

		_, status, err := client.Fetch(context.Background(), "http://shop.example/widget", "shop.example")
		if err == nil {
			t.Fatalf("status %d: expected error", tt.status)
		}
		if status != tt.status {
			t.Fatalf("reported status=%d, want %d", status, tt.status)
		}
		var httpErr ErrHTTPStatus
		if !errors.As(err, &httpErr) || httpErr.Status != tt.status {
			t.Fatalf("status %d: error=%v, want ErrHTTPStatus", tt.status, err)
		}
		if IsTransient(err) != tt.transient {
			t.Fatalf("status %d: transient=%v, want %v", tt.status, IsTransient(err), tt.transient)
		}
	}
}

func TestFetchInvalidURL(t *testing.T) {
	client := newTestClient(t, httpmock.NewMockTransport())

	_, _, err := client.Fetch(context.Background(), "not a url", "shop.example")
	if err == nil {
		t.Fatalf("expected error")
	}
	if Kind(err) != models.ErrorKindMalformed {
		t.Fatalf("kind=%q, want malformed", Kind(err))
	}
}

func TestFetchConnectionError(t *testing.T) {
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", "http://shop.example/widget",
		httpmock.NewErrorResponder(errors.New("connection refused")))

	client := newTestClient(t, transport)

	_, _, err := client.Fetch(context.Background(), "http://shop.example/widget", "shop.example")
	if err == nil {
		t.Fatalf("expected error")
	}
	if !IsTransient(err) {
		t.Fatalf("connection failures are transient, got %v", err)
	}
}

func TestFetchSameURLTwice(t *testing.T) {
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", "http://shop.example/widget",
		httpmock.NewStringResponder(200, "<html><body>ok</body></html>"))

	client := newTestClient(t, transport)

	// Retries and repeated cycles revisit the same URL; the collector's
	// visit dedupe must never turn the second fetch into an error.
	for i := 0; i < 2; i++ {
		_, status, err := client.Fetch(context.Background(), "http://shop.example/widget", "shop.example")
		if err != nil {
			t.Fatalf("fetch %d: %v", i+1, err)
		}
		if status != 200 {
			t.Fatalf("fetch %d: status=%d, want 200", i+1, status)
		}
	}
}

func TestFetchRespectsSpacing(t *testing.T) {
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", "http://shop.example/widget",
		httpmock.NewStringResponder(200, "<html><body>ok</body></html>"))

	cfg := config.DefaultConfig()
	cfg.DomainSpacing = 40 * time.Millisecond
	cfg.Timeout = 2 * time.Second

	client, err := New(cfg)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	client.SetTransport(transport)

	start := time.Now()
	for i := 0; i < 3; i++ {
		if _, _, err := client.Fetch(context.Background(), "http://shop.example/widget", "shop.example"); err != nil {
			t.Fatalf("fetch %d: %v", i, err)
		}
	}
	if elapsed := time.Since(start); elapsed < 2*cfg.DomainSpacing {
		t.Fatalf("three fetches in %v, want at least %v of pacing", elapsed, 2*cfg.DomainSpacing)
	}
}
