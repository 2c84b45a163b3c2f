package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearch_OrganicResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-API-KEY"))

		var req searchRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "fitness memes viral trending", req.Q)
		assert.Equal(t, 5, req.Num)
		assert.Equal(t, "qdr:w", req.TBS)

		json.NewEncoder(w).Encode(map[string]any{
			"organic": []map[string]any{
				{"title": "Gym fails are everywhere", "link": "https://a.example", "snippet": "viral gym fails"},
				{"title": "Protein memes", "link": "https://b.example", "snippet": "trending this week"},
			},
		})
	}))
	defer srv.Close()

	c := NewSearchClient(Config{
		BaseURL: srv.URL,
		APIKey:  "test-key",
		Timeout: 2 * time.Second,
		Retry:   RetryPolicy{MaxAttempts: 1},
	}, NewBreakerRegistry(DefaultBreakerConfig()))

	results, err := c.Search(context.Background(), "fitness memes viral trending", SearchOptions{
		Num:     5,
		Recency: "qdr:w",
	})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "Gym fails are everywhere", results[0].Title)
	assert.Equal(t, "https://b.example", results[1].Link)
}

func TestSearch_TruncatesToRequestedNum(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		organic := make([]map[string]any, 10)
		for i := range organic {
			organic[i] = map[string]any{"title": "t", "link": "l", "snippet": "s"}
		}
		json.NewEncoder(w).Encode(map[string]any{"organic": organic})
	}))
	defer srv.Close()

	c := NewSearchClient(Config{
		BaseURL: srv.URL,
		APIKey:  "k",
		Retry:   RetryPolicy{MaxAttempts: 1},
	}, NewBreakerRegistry(DefaultBreakerConfig()))

	results, err := c.Search(context.Background(), "q", SearchOptions{Num: 3})
	require.NoError(t, err)
	assert.Len(t, results, 3)
}

func TestSearch_EmptyOrganic(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := NewSearchClient(Config{
		BaseURL: srv.URL,
		APIKey:  "k",
		Retry:   RetryPolicy{MaxAttempts: 1},
	}, NewBreakerRegistry(DefaultBreakerConfig()))

	results, err := c.Search(context.Background(), "q", SearchOptions{})
	require.NoError(t, err)
	assert.Empty(t, results)
}
