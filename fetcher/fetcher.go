// Package fetcher issues single-shot, rate-limited page fetches. Retry
// policy lives with the orchestrator, not here.
package fetcher

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/aluiziolira/pricetrack/config"
)

// Client fetches product pages with per-domain pacing and a request
// timeout. A base colly collector carries the shared transport and
// user-agent configuration; each fetch runs on a handler-free clone so
// concurrent requests never share callback state.
type Client struct {
	base    *colly.Collector
	pacer   *domainPacer
	timeout time.Duration

	transport http.RoundTripper
}

// New builds a fetch client from cfg.
func New(cfg *config.Config) (*Client, error) {
	// Clones share the base collector's visited-URL store, and colly marks a
	// URL visited before the request runs. Revisits must stay allowed or a
	// retry of the same URL fails with ErrAlreadyVisited; duplicate
	// suppression belongs to the pipeline.
	collector := colly.NewCollector(
		colly.UserAgent(cfg.UserAgent),
		colly.IgnoreRobotsTxt(),
		colly.AllowURLRevisit(),
	)
	collector.SetRequestTimeout(cfg.Timeout)

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}
	collector.WithTransport(transport)

	return &Client{
		base:      collector,
		pacer:     newDomainPacer(cfg.DomainSpacing, cfg.RandomDelay),
		timeout:   cfg.Timeout,
		transport: transport,
	}, nil
}

// SetTransport swaps the HTTP transport used for subsequent fetches. Used
// by tests to install a mock transport.
func (c *Client) SetTransport(rt http.RoundTripper) {
	c.transport = rt
}

// Fetch retrieves one page. It blocks on the domain's pacing slot, issues a
// single request, and returns the raw body, the HTTP status, and a tagged
// error from the taxonomy in errors.go. No retries happen here.
func (c *Client) Fetch(ctx context.Context, rawURL, domain string) ([]byte, int, error) {
	if _, err := url.ParseRequestURI(rawURL); err != nil {
		return nil, 0, ErrMalformed{Err: fmt.Errorf("parse url: %w", err)}
	}

	release, err := c.pacer.acquire(ctx, domain)
	if err != nil {
		return nil, 0, err
	}
	defer release()

	collector := c.base.Clone()
	collector.SetRequestTimeout(c.timeout)
	if c.transport != nil {
		collector.WithTransport(c.transport)
	}

	var body []byte
	var status int
	collector.OnResponse(func(r *colly.Response) {
		status = r.StatusCode
		body = r.Body
	})
	collector.OnError(func(r *colly.Response, _ error) {
		if r != nil && r.StatusCode != 0 {
			status = r.StatusCode
		}
	})

	if err := collector.Visit(rawURL); err != nil {
		return nil, status, Classify(err, status)
	}
	if status >= 400 {
		return nil, status, Classify(nil, status)
	}
	return body, status, nil
}
