package spotify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, tracks []Track) (*httptest.Server, *int32) {
	t.Helper()
	var tokenCalls int32
	mux := http.NewServeMux()
	mux.HandleFunc("/api/token", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&tokenCalls, 1)
		user, pass, ok := r.BasicAuth()
		if !ok || user != "id" || pass != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"access_token": "app-token", "token_type": "Bearer", "expires_in": 3600})
	})
	mux.HandleFunc("/v1/search", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer app-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var resp SearchResponse
		resp.Tracks.Items = tracks
		_ = json.NewEncoder(w).Encode(resp)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &tokenCalls
}

func TestLookup_ReturnsStats(t *testing.T) {
	srv, tokenCalls := newTestServer(t, []Track{{
		ID:       "t1",
		Name:     "Under Pressure",
		Artists:  []Artist{{Name: "Queen"}, {Name: "David Bowie"}},
		Duration: 248000,
		Album:    Album{Name: "Hot Space"},
	}})
	c := NewClient("id", "secret").WithBaseURLs(srv.URL, srv.URL+"/v1")

	stats, err := c.Lookup(context.Background(), "under pressure", "queen", "")
	require.NoError(t, err)
	assert.Equal(t, "Under Pressure", stats.Title)
	assert.Equal(t, "Queen, David Bowie", stats.Artist)
	assert.Equal(t, "Hot Space", stats.Album)
	assert.Equal(t, 248, stats.Duration)

	_, err = c.Lookup(context.Background(), "again", "queen", "")
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(tokenCalls), "app token is reused")
}

func TestLookup_NoMatch(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	c := NewClient("id", "secret").WithBaseURLs(srv.URL, srv.URL+"/v1")

	_, err := c.Lookup(context.Background(), "nothing", "nobody", "")
	assert.ErrorIs(t, err, ErrNoMatch)
}

func TestLookup_BadCredentials(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	c := NewClient("id", "wrong").WithBaseURLs(srv.URL, srv.URL+"/v1")

	_, err := c.Lookup(context.Background(), "x", "y", "")
	assert.Error(t, err)
}
