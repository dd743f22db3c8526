// Package probe reports whether socket.io servers answer an engine.io
// long-polling handshake. It only reports; it never picks an endpoint.
package probe

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/dostenterprises/socketlink/pkg/engineio"
	sockerrors "github.com/dostenterprises/socketlink/pkg/errors"
	"github.com/dostenterprises/socketlink/pkg/logger"
	"github.com/go-resty/resty/v2"
)

const handshakePath = "/socket.io/"

// Result is the outcome of probing one endpoint
type Result struct {
	URL          string        `json:"url"`
	Reachable    bool          `json:"reachable"`
	SID          string        `json:"sid,omitempty"`
	Upgrades     []string      `json:"upgrades,omitempty"`
	PingInterval time.Duration `json:"ping_interval,omitempty"`
	Latency      time.Duration `json:"latency"`
	Error        string        `json:"error,omitempty"`
}

// Prober performs handshake probes over HTTP
type Prober struct {
	client *resty.Client
}

// New creates a prober whose requests time out after timeout
func New(timeout time.Duration) *Prober {
	client := resty.New()
	client.SetTimeout(timeout)
	client.SetHeader("User-Agent", "socketlink-probe/0.1.0")

	client.OnBeforeRequest(func(c *resty.Client, req *resty.Request) error {
		logger.Debug("Probe request", "method", req.Method, "url", req.URL)
		return nil
	})
	client.OnAfterResponse(func(c *resty.Client, resp *resty.Response) error {
		logger.Debug("Probe response", "status", resp.StatusCode(), "url", resp.Request.URL)
		return nil
	})

	return &Prober{client: client}
}

// Check probes a single endpoint. Failures are reported in the result.
func (p *Prober) Check(ctx context.Context, rawURL string) Result {
	result := Result{URL: rawURL}

	target, err := handshakeURL(rawURL)
	if err != nil {
		result.Error = err.Error()
		return result
	}

	start := time.Now()
	resp, err := p.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"EIO":       engineio.Protocol,
			"transport": "polling",
		}).
		Get(target)
	result.Latency = time.Since(start)
	if err != nil {
		result.Error = sockerrors.CategorizeError(err).Error()
		return result
	}
	if resp.StatusCode() != http.StatusOK {
		result.Error = fmt.Sprintf("unexpected status %d", resp.StatusCode())
		return result
	}

	packets, err := engineio.DecodePayload(resp.Body())
	if err != nil {
		result.Error = err.Error()
		return result
	}
	hs, err := engineio.ParseHandshake(packets[0])
	if err != nil {
		result.Error = err.Error()
		return result
	}

	result.Reachable = true
	result.SID = hs.SID
	result.Upgrades = hs.Upgrades
	result.PingInterval = hs.PingIntervalDuration()
	return result
}

// CheckAll probes every endpoint concurrently and returns the results in
// input order.
func (p *Prober) CheckAll(ctx context.Context, urls []string) []Result {
	results := make([]Result, len(urls))

	var wg sync.WaitGroup
	for i, u := range urls {
		wg.Add(1)
		go func(i int, u string) {
			defer wg.Done()
			results[i] = p.Check(ctx, u)
		}(i, u)
	}
	wg.Wait()

	return results
}

// handshakeURL maps a server base URL onto its engine.io polling endpoint
func handshakeURL(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", sockerrors.InvalidURLError(rawURL, err)
	}

	switch strings.ToLower(u.Scheme) {
	case "http", "ws":
		u.Scheme = "http"
	case "https", "wss":
		u.Scheme = "https"
	default:
		return "", sockerrors.InvalidURLError(rawURL, fmt.Errorf("unsupported scheme %q", u.Scheme))
	}
	if u.Host == "" {
		return "", sockerrors.InvalidURLError(rawURL, fmt.Errorf("missing host"))
	}

	u.Path = handshakePath
	u.RawPath = ""
	u.RawQuery = ""
	u.Fragment = ""
	return u.String(), nil
}
