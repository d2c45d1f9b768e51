package remote

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"ridesync/internal/config"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const maxErrorBody = 512

// Client talks to a PostgREST-style HTTP front of the remote store. It
// implements the write gateway, the connectivity probe and the reader.
type Client struct {
	baseURL      string
	apiKey       string
	httpClient   *http.Client
	limiter      *rate.Limiter
	probeTimeout time.Duration
	logger       zerolog.Logger
}

func NewClient(cfg config.RemoteConfig, logger *zerolog.Logger) *Client {
	l := zerolog.Nop()
	if logger != nil {
		l = logger.With().Str("component", "remote").Logger()
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	probeTimeout := cfg.ProbeTimeout
	if probeTimeout <= 0 {
		probeTimeout = 3 * time.Second
	}

	var limiter *rate.Limiter
	if cfg.RateLimit.RPS > 0 {
		burst := cfg.RateLimit.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit.RPS), burst)
	}

	return &Client{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:       cfg.APIKey,
		httpClient:   &http.Client{Timeout: timeout},
		limiter:      limiter,
		probeTimeout: probeTimeout,
		logger:       l,
	}
}

type request struct {
	method string
	table  string
	query  url.Values
	body   []byte
	prefer string
}

// do sends req and returns the response body of a 2xx reply. Non-2xx replies
// come back as *StatusError.
func (c *Client) do(ctx context.Context, r request) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
	}

	endpoint := c.baseURL + "/" + r.table
	if len(r.query) > 0 {
		endpoint += "?" + r.query.Encode()
	}

	var body io.Reader
	if r.body != nil {
		body = bytes.NewReader(r.body)
	}
	req, err := http.NewRequestWithContext(ctx, r.method, endpoint, body)
	if err != nil {
		return nil, err
	}
	if r.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if r.prefer != "" {
		req.Header.Set("Prefer", r.prefer)
	}
	req.Header.Set("Accept", "application/json")
	c.addHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := strings.TrimSpace(string(data))
		if len(msg) > maxErrorBody {
			msg = msg[:maxErrorBody]
		}
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: msg}
	}
	return data, nil
}

func (c *Client) addHeaders(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("apikey", c.apiKey)
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}
