package scraper

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"apt_scrooper/httputil"
)

func TestHTTPRenderer(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html><head><title>Parkside Commons</title></head></html>"))
	})
	mux.HandleFunc("/old", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/", http.StatusMovedPermanently)
	})
	mux.HandleFunc("/gone", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	r := NewHTTPRenderer(resty.New(), httputil.NewHostQueue(0))
	ctx := context.Background()
	require.NoError(t, r.Start(ctx))
	defer r.Close()

	page, err := r.Render(ctx, srv.URL+"/old", nil)
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/", page.URL)
	assert.Contains(t, page.HTML, "Parkside Commons")

	_, err = r.Render(ctx, srv.URL+"/gone", nil)
	assert.EqualError(t, err, "navigate: status 404")
}
