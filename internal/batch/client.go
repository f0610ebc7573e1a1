package batch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

var (
	ErrGroupRequired     = errors.New("batch: group id is required")
	ErrMalformedResponse = errors.New("batch: response carries neither batchCall nor group.batchMetadata")
)

// AllowedPageSizes are the page sizes the batch-status endpoint accepts.
var AllowedPageSizes = []int{10, 25, 50, 100}

func PageSizeAllowed(n int) bool {
	for _, v := range AllowedPageSizes {
		if v == n {
			return true
		}
	}
	return false
}

// HTTPStatusError captures non-2xx upstream responses with status-aware
// context. The monitor uses the status code purely for surfacing; it never
// changes polling behavior.
type HTTPStatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("batch: unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

// Client fetches remote batch state for a group. One-shot request/response:
// no retries, no polling here. Polling lifecycle belongs to the monitor.
type Client struct {
	baseURL    string
	httpClient *http.Client
	now        func() time.Time
}

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.httpClient = h }
}

func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// NewClient creates a client against the groups API base URL
// (e.g. https://backend.example.com/api/groups).
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("batch: base URL is required")
	}
	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// FetchStatus retrieves one page of a group's batch recipient list plus the
// aggregate counters, normalized into a Snapshot.
func (c *Client) FetchStatus(ctx context.Context, groupID, userID string, page, limit int) (Snapshot, error) {
	if strings.TrimSpace(groupID) == "" {
		return Snapshot{}, ErrGroupRequired
	}
	if page < 1 {
		page = 1
	}
	if !PageSizeAllowed(limit) {
		return Snapshot{}, fmt.Errorf("batch: page size %d not allowed", limit)
	}

	q := url.Values{}
	q.Set("userId", userID)
	q.Set("page", strconv.Itoa(page))
	q.Set("limit", strconv.Itoa(limit))
	endpoint := fmt.Sprintf("%s/%s/batch-status?%s", c.baseURL, url.PathEscape(groupID), q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Snapshot{}, fmt.Errorf("batch: create request: %w", err)
	}

	raw, err := c.doJSON(req, endpoint)
	if err != nil {
		return Snapshot{}, err
	}

	var env statusEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Snapshot{}, fmt.Errorf("batch: decode response: %w", err)
	}
	if !env.Success {
		return Snapshot{}, ErrMalformedResponse
	}
	return env.toSnapshot(groupID, c.now().UTC())
}

// StartGroupCallRequest triggers the server-side batch over all group members.
type StartGroupCallRequest struct {
	UserID             string `json:"userId"`
	AgentPhoneNumberID string `json:"agentPhoneNumberId"`
	ScheduledTimeUnix  int64  `json:"scheduledTimeUnix"`
}

type StartGroupCallResult struct {
	BatchID         string `json:"batchId"`
	RecipientsCount int    `json:"recipientsCount"`
	Message         string `json:"message,omitempty"`
}

// StartGroupCall POSTs {base}/{groupId}/call to launch a remote batch.
func (c *Client) StartGroupCall(ctx context.Context, groupID string, in StartGroupCallRequest) (StartGroupCallResult, error) {
	if strings.TrimSpace(groupID) == "" {
		return StartGroupCallResult{}, ErrGroupRequired
	}

	body, err := json.Marshal(in)
	if err != nil {
		return StartGroupCallResult{}, fmt.Errorf("batch: marshal request: %w", err)
	}
	endpoint := fmt.Sprintf("%s/%s/call", c.baseURL, url.PathEscape(groupID))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return StartGroupCallResult{}, fmt.Errorf("batch: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	raw, err := c.doJSON(req, endpoint)
	if err != nil {
		return StartGroupCallResult{}, err
	}

	var payload struct {
		Success bool                 `json:"success"`
		Message string               `json:"message"`
		Data    StartGroupCallResult `json:"data"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return StartGroupCallResult{}, fmt.Errorf("batch: decode response: %w", err)
	}
	if !payload.Success {
		return StartGroupCallResult{}, fmt.Errorf("batch: start group call rejected: %s", payload.Message)
	}
	out := payload.Data
	out.Message = payload.Message
	return out, nil
}

func (c *Client) doJSON(req *http.Request, endpoint string) ([]byte, error) {
	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("batch: request failed: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return nil, &HTTPStatusError{StatusCode: res.StatusCode, URL: endpoint, Body: string(buf)}
	}

	buf, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("batch: read response body: %w", err)
	}
	return buf, nil
}
