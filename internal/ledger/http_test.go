package ledger

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHTTPClientFetchPage(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/transactions/sync", r.URL.Path)

		var req map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "client-1", req["client_id"])
		require.Equal(t, "hush", req["secret"])
		require.Equal(t, "tok-abc", req["access_token"])
		require.Equal(t, "cursor-7", req["cursor"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"added": [{
				"transaction_id": "ext-1",
				"account_id": "acct-9",
				"amount": 12.34,
				"name": "COFFEE SHOP",
				"merchant_name": "COFFEE SHOP",
				"date": "2026-02-10",
				"pending": false,
				"category_code": "FOOD_AND_DRINK_COFFEE"
			}],
			"modified": [],
			"removed": [{"transaction_id": "ext-0"}],
			"next_cursor": "cursor-8",
			"has_more": true
		}`))
	}))
	t.Cleanup(srv.Close)

	c := NewHTTPClient(srv.URL, "client-1", "hush")
	page, err := c.FetchPage(context.Background(), "tok-abc", "cursor-7")
	require.NoError(t, err)

	require.Len(t, page.Added, 1)
	require.Equal(t, "ext-1", page.Added[0].ExternalID)
	require.Equal(t, "acct-9", page.Added[0].AccountExternalID)
	require.Equal(t, "12.34", page.Added[0].Amount.String())
	require.Equal(t, "FOOD_AND_DRINK_COFFEE", page.Added[0].CategoryCode)
	require.Equal(t, []string{"ext-0"}, page.RemovedIDs)
	require.Equal(t, "cursor-8", page.NextCursor)
	require.True(t, page.HasMore)
}

func TestHTTPClientNon200IsError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error_code":"INVALID_ACCESS_TOKEN"}`, http.StatusBadRequest)
	}))
	t.Cleanup(srv.Close)

	c := NewHTTPClient(srv.URL, "client-1", "hush")
	_, err := c.FetchPage(context.Background(), "bad", "")
	require.Error(t, err)
	require.Contains(t, err.Error(), "status 400")
}

func TestHTTPClientHonorsContext(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := NewHTTPClient(srv.URL, "client-1", "hush")
	_, err := c.FetchPage(ctx, "tok", "")
	require.Error(t, err)
}
