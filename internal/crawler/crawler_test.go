package crawler

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sitePage(body string, links ...string) string {
	page := "<html><head><title>Test</title></head><body><p>" + body + "</p>"
	for _, l := range links {
		page += fmt.Sprintf(`<a href=%q>link</a>`, l)
	}
	return page + "</body></html>"
}

func testSite(t *testing.T, pages map[string]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page, ok := pages[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, page)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func pageURLs(pages []Page) []string {
	urls := make([]string, len(pages))
	for i, p := range pages {
		urls[i] = p.URL
	}
	return urls
}

func newTestCrawler(maxPages int) *Crawler {
	return New(Config{
		MaxPages:        maxPages,
		Concurrency:     2,
		FetchTimeout:    5 * time.Second,
		MinContentChars: 10,
	})
}

func TestCrawlFollowsInternalLinks(t *testing.T) {
	srv := testSite(t, map[string]string{
		"/":        sitePage("The landing page talks about anvils.", "/about", "/pricing"),
		"/about":   sitePage("We have been making anvils for decades."),
		"/pricing": sitePage("Anvils start at ninety-nine dollars.", "/about"),
	})

	pages, err := newTestCrawler(10).Crawl(context.Background(), srv.URL+"/")
	require.NoError(t, err)

	urls := pageURLs(pages)
	assert.Len(t, urls, 3)
	assert.Contains(t, urls, srv.URL+"/")
	assert.Contains(t, urls, srv.URL+"/about")
	assert.Contains(t, urls, srv.URL+"/pricing")
}

func TestCrawlRespectsPageBudget(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Every page links to two fresh pages, so the frontier never dries up.
		next := r.URL.Path + "x"
		fmt.Fprint(w, sitePage("Endless content about anvils and anvil care.", next, next+"y"))
	}))
	defer srv.Close()

	pages, err := newTestCrawler(5).Crawl(context.Background(), srv.URL+"/")
	require.NoError(t, err)

	assert.LessOrEqual(t, len(pages), 5)
	assert.NotEmpty(t, pages)
}

func TestCrawlDoesNotRevisit(t *testing.T) {
	var mu sync.Mutex
	visits := make(map[string]int)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		visits[r.URL.Path]++
		mu.Unlock()
		// Cyclic graph: every page links back to the root and to /loop.
		fmt.Fprint(w, sitePage("Page content that clears the filter easily.", "/", "/loop"))
	}))
	defer srv.Close()

	_, err := New(Config{
		MaxPages:        10,
		Concurrency:     1,
		MinContentChars: 10,
	}).Crawl(context.Background(), srv.URL+"/")
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	for path, count := range visits {
		assert.Equal(t, 1, count, "path %s fetched %d times", path, count)
	}
}

func TestCrawlSkipsFailedPages(t *testing.T) {
	srv := testSite(t, map[string]string{
		"/": sitePage("The root links to a dead page.", "/missing", "/alive"),
		// "/missing" 404s.
		"/alive": sitePage("This page is reachable and has content."),
	})

	pages, err := newTestCrawler(10).Crawl(context.Background(), srv.URL+"/")
	require.NoError(t, err)

	urls := pageURLs(pages)
	assert.Contains(t, urls, srv.URL+"/")
	assert.Contains(t, urls, srv.URL+"/alive")
	assert.NotContains(t, urls, srv.URL+"/missing")
}

func TestCrawlFiltersThinPages(t *testing.T) {
	srv := testSite(t, map[string]string{
		"/":     sitePage("Plenty of words on the root page of this site.", "/thin"),
		"/thin": sitePage("x"),
	})

	crawler := New(Config{
		MaxPages:        10,
		Concurrency:     2,
		MinContentChars: 20,
	})

	pages, err := crawler.Crawl(context.Background(), srv.URL+"/")
	require.NoError(t, err)

	urls := pageURLs(pages)
	assert.Contains(t, urls, srv.URL+"/")
	assert.NotContains(t, urls, srv.URL+"/thin")
}

func TestCrawlInvalidSeed(t *testing.T) {
	_, err := newTestCrawler(5).Crawl(context.Background(), "")
	assert.Error(t, err)

	_, err = newTestCrawler(5).Crawl(context.Background(), "http://")
	assert.Error(t, err)
}

func TestCrawlContextCancellation(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer srv.Close()
	defer close(block)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	_, err := newTestCrawler(5).Crawl(ctx, srv.URL+"/")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNormalizeSeed(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "https://acme.example/start", want: "https://acme.example/start"},
		{in: "acme.example", want: "https://acme.example"},
		{in: "  acme.example/path  ", want: "https://acme.example/path"},
		{in: "http://acme.example/page#frag", want: "http://acme.example/page"},
		{in: "", wantErr: true},
		{in: "https://", wantErr: true},
	}

	for _, tt := range tests {
		u, err := normalizeSeed(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, u.String(), tt.in)
	}
}
