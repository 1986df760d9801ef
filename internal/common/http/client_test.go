package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"model_version":"v3"}`))
	}))
	defer srv.Close()

	client := NewClient(2 * time.Second)

	body, err := client.Fetch(context.Background(), srv.URL+"/model.json", 1<<20)
	require.NoError(t, err)
	assert.JSONEq(t, `{"model_version":"v3"}`, string(body))

	_, err = client.Fetch(context.Background(), srv.URL+"/missing", 1<<20)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestFetch_Truncates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("0123456789"))
	}))
	defer srv.Close()

	body, err := NewClient(time.Second).Fetch(context.Background(), srv.URL, 4)
	require.NoError(t, err)
	assert.Equal(t, "0123", string(body))
}
