package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const defaultPageSize = 100

// HTTPClient talks to the provider's /transactions/sync endpoint.
type HTTPClient struct {
	BaseURL  string
	ClientID string
	Secret   string
	PageSize int

	HTTP *http.Client
}

func NewHTTPClient(baseURL, clientID, secret string) *HTTPClient {
	return &HTTPClient{
		BaseURL:  baseURL,
		ClientID: clientID,
		Secret:   secret,
		PageSize: defaultPageSize,
		HTTP:     &http.Client{Timeout: 30 * time.Second},
	}
}

type syncRequest struct {
	ClientID    string `json:"client_id"`
	Secret      string `json:"secret"`
	AccessToken string `json:"access_token"`
	Cursor      string `json:"cursor,omitempty"`
	Count       int    `json:"count"`
}

type removedTxn struct {
	ExternalID string `json:"transaction_id"`
}

type syncResponse struct {
	Added      []ProviderTxn `json:"added"`
	Modified   []ProviderTxn `json:"modified"`
	Removed    []removedTxn  `json:"removed"`
	NextCursor string        `json:"next_cursor"`
	HasMore    bool          `json:"has_more"`
}

// FetchPage implements Client. Any transport error, timeout or non-200
// response is a fetch failure; the caller decides how far to unwind.
func (c *HTTPClient) FetchPage(ctx context.Context, accessToken, cursor string) (Page, error) {
	count := c.PageSize
	if count <= 0 {
		count = defaultPageSize
	}
	body, err := json.Marshal(syncRequest{
		ClientID:    c.ClientID,
		Secret:      c.Secret,
		AccessToken: accessToken,
		Cursor:      cursor,
		Count:       count,
	})
	if err != nil {
		return Page{}, fmt.Errorf("encode sync request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.BaseURL+"/transactions/sync", bytes.NewReader(body))
	if err != nil {
		return Page{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return Page{}, fmt.Errorf("sync request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Page{}, fmt.Errorf("sync request: status %d: %s", resp.StatusCode, snippet)
	}

	var sr syncResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return Page{}, fmt.Errorf("decode sync response: %w", err)
	}

	page := Page{
		Added:      sr.Added,
		Modified:   sr.Modified,
		NextCursor: sr.NextCursor,
		HasMore:    sr.HasMore,
	}
	for _, r := range sr.Removed {
		page.RemovedIDs = append(page.RemovedIDs, r.ExternalID)
	}
	return page, nil
}
