package sitemap

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const urlsetDoc = `<?xml version="1.0" encoding="UTF-8"?>
<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <url><loc>https://example.com/</loc></url>
  <url><loc>https://example.com/about</loc></url>
  <url><loc>https://example.com/blog</loc></url>
</urlset>`

func TestFetchUrlset(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, urlsetDoc)
	}))
	defer ts.Close()

	f := NewFetcher(nil)
	urls, err := f.Fetch(context.Background(), ts.URL+"/sitemap.xml")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"https://example.com/",
		"https://example.com/about",
		"https://example.com/blog",
	}, urls)
}

func TestFetchSitemapIndex(t *testing.T) {
	mux := http.NewServeMux()
	ts := httptest.NewServer(mux)
	defer ts.Close()

	mux.HandleFunc("/sitemap.xml", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `<sitemapindex xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <sitemap><loc>%v/pages.xml</loc></sitemap>
  <sitemap><loc>%v/missing.xml</loc></sitemap>
</sitemapindex>`, ts.URL, ts.URL)
	})
	mux.HandleFunc("/pages.xml", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, urlsetDoc)
	})
	mux.HandleFunc("/missing.xml", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	f := NewFetcher(nil)
	urls, err := f.Fetch(context.Background(), ts.URL+"/sitemap.xml")
	require.NoError(t, err)
	// the unreachable child is skipped, not fatal
	assert.Len(t, urls, 3)
}

func TestFetchErrors(t *testing.T) {
	mux := http.NewServeMux()
	ts := httptest.NewServer(mux)
	defer ts.Close()

	mux.HandleFunc("/404.xml", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	mux.HandleFunc("/garbage.xml", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html><body>not a sitemap</body></html>")
	})
	mux.HandleFunc("/empty.xml", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9"></urlset>`)
	})

	f := NewFetcher(nil)

	_, err := f.Fetch(context.Background(), ts.URL+"/404.xml")
	assert.Error(t, err)

	_, err = f.Fetch(context.Background(), ts.URL+"/garbage.xml")
	assert.ErrorIs(t, err, ErrNotSitemap)

	_, err = f.Fetch(context.Background(), ts.URL+"/empty.xml")
	assert.ErrorIs(t, err, ErrEmptySitemap)

	_, err = f.Fetch(context.Background(), "http://127.0.0.1:1/sitemap.xml")
	assert.Error(t, err)
}

func TestFetchCapsURLCount(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<urlset>`)
		for i := 0; i < 10; i++ {
			fmt.Fprintf(w, `<url><loc>https://example.com/page-%v</loc></url>`, i)
		}
		fmt.Fprint(w, `</urlset>`)
	}))
	defer ts.Close()

	f := NewFetcher(Configure().MaxURLs(4))
	urls, err := f.Fetch(context.Background(), ts.URL+"/sitemap.xml")
	require.NoError(t, err)
	assert.Len(t, urls, 4)
}
