package telephony

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

var (
	ErrNumberRequired = errors.New("telephony: number is required")

	// ErrNoCallSID means the proxy answered 2xx but the payload did not carry
	// the expected call identifier. Treated the same as transport failure at
	// the dispatch site: the target is marked failed, never a crash.
	ErrNoCallSID = errors.New("telephony: response carries no Call-sid")
)

// proxyRequest and proxyResponse mirror the outbound-call trigger contract.
// The non-standard field casing ("Success", "Call-sid") is part of the real
// backend contract and must be preserved exactly.
type proxyRequest struct {
	Number string `json:"number"`
}

type proxyResponse struct {
	Success bool   `json:"Success"`
	CallSID string `json:"Call-sid"`
}

// ProxyClient places outbound calls through the telephony trigger proxy.
// It implements Caller.
type ProxyClient struct {
	url        string
	httpClient *http.Client
}

type ProxyOption func(*ProxyClient)

func WithHTTPClient(h *http.Client) ProxyOption {
	return func(c *ProxyClient) { c.httpClient = h }
}

func NewProxyClient(proxyURL string, opts ...ProxyOption) (*ProxyClient, error) {
	proxyURL = strings.TrimSpace(proxyURL)
	if proxyURL == "" {
		return nil, errors.New("telephony: proxy URL is required")
	}
	c := &ProxyClient{
		url:        proxyURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *ProxyClient) Name() string { return "call-proxy" }

func (c *ProxyClient) StartCall(ctx context.Context, number string) (string, error) {
	if strings.TrimSpace(number) == "" {
		return "", ErrNumberRequired
	}

	body, err := json.Marshal(proxyRequest{Number: number})
	if err != nil {
		return "", fmt.Errorf("telephony: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("telephony: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("telephony: request failed: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return "", fmt.Errorf("telephony: unexpected status %d: %s", res.StatusCode, string(buf))
	}

	raw, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("telephony: read response body: %w", err)
	}

	var payload proxyResponse
	if err := json.Unmarshal(raw, &payload); err != nil {
		return "", fmt.Errorf("telephony: decode response: %w", err)
	}
	if !payload.Success || payload.CallSID == "" {
		return "", ErrNoCallSID
	}
	return payload.CallSID, nil
}
