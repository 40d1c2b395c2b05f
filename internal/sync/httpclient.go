package sync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
)

// HTTPRemoteClient talks to a peer register over plain JSON endpoints.
type HTTPRemoteClient struct {
	BaseURL string
	Client  *http.Client
}

// NewHTTPRemoteClient constructs HTTPRemoteClient.
func NewHTTPRemoteClient(baseURL string, client *http.Client) *HTTPRemoteClient {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPRemoteClient{BaseURL: baseURL, Client: client}
}

// Push posts a changelog batch. The peer deduplicates on entry id, so a
// retried batch is harmless.
func (c *HTTPRemoteClient) Push(ctx context.Context, entries []Entry) error {
	body, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("sync: marshal push batch: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/push", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.Client.Do(req)
	if err != nil {
		return fmt.Errorf("sync: push: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("sync: push: peer returned %d", resp.StatusCode)
	}
	return nil
}

// Pull fetches remote-confirmed changes after the cursor.
func (c *HTTPRemoteClient) Pull(ctx context.Context, cursor int64) ([]RemoteChange, int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/pull?cursor="+strconv.FormatInt(cursor, 10), nil)
	if err != nil {
		return nil, 0, err
	}

	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("sync: pull: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, 0, fmt.Errorf("sync: pull: peer returned %d", resp.StatusCode)
	}

	var payload struct {
		Changes []RemoteChange `json:"changes"`
		Cursor  int64          `json:"cursor"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, 0, fmt.Errorf("sync: decode pull response: %w", err)
	}
	return payload.Changes, payload.Cursor, nil
}
