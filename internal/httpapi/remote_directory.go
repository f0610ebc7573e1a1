package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// RemoteDirectory resolves groups against the groups backend. The backend
// owns all group CRUD; this service only ever reads one group at a time,
// right before a dispatch or session open.
type RemoteDirectory struct {
	baseURL    string
	httpClient *http.Client
}

func NewRemoteDirectory(baseURL string, httpClient *http.Client) (*RemoteDirectory, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("httpapi: groups base URL is required")
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &RemoteDirectory{baseURL: baseURL, httpClient: httpClient}, nil
}

type remoteGroupEnvelope struct {
	Success bool `json:"success"`
	Data    struct {
		ID                 string `json:"_id"`
		Name               string `json:"name"`
		Color              string `json:"color"`
		AgentID            string `json:"agentId"`
		AgentPhoneNumberID string `json:"agentPhoneNumberId"`
		Members            []struct {
			ID          string `json:"_id"`
			Name        string `json:"name"`
			PhoneNumber string `json:"phoneNumber"`
		} `json:"members"`
	} `json:"data"`
}

func (d *RemoteDirectory) GetGroup(ctx context.Context, userID, groupID string) (Group, error) {
	if strings.TrimSpace(groupID) == "" {
		return Group{}, ErrGroupNotFound
	}

	q := url.Values{}
	q.Set("userId", userID)
	endpoint := fmt.Sprintf("%s/%s?%s", d.baseURL, url.PathEscape(groupID), q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Group{}, fmt.Errorf("httpapi: create group request: %w", err)
	}

	res, err := d.httpClient.Do(req)
	if err != nil {
		return Group{}, fmt.Errorf("httpapi: group request failed: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode == http.StatusNotFound {
		return Group{}, ErrGroupNotFound
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return Group{}, fmt.Errorf("httpapi: unexpected status %d fetching group %s: %s", res.StatusCode, groupID, string(buf))
	}

	raw, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return Group{}, fmt.Errorf("httpapi: read group response: %w", err)
	}

	var env remoteGroupEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Group{}, fmt.Errorf("httpapi: decode group response: %w", err)
	}
	if !env.Success || env.Data.ID == "" {
		return Group{}, ErrGroupNotFound
	}

	g := Group{
		ID:                 env.Data.ID,
		Name:               env.Data.Name,
		Color:              env.Data.Color,
		AgentID:            env.Data.AgentID,
		AgentPhoneNumberID: env.Data.AgentPhoneNumberID,
	}
	for _, m := range env.Data.Members {
		g.Members = append(g.Members, Member{ID: m.ID, Name: m.Name, PhoneNumber: m.PhoneNumber})
	}
	return g, nil
}
