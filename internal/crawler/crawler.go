package crawler

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sitechat/backend/internal/metrics"
	"github.com/sitechat/backend/pkg/logger"
)

const maxBodyBytes = 2 << 20

// Page is one crawled page that passed the content filter.
type Page struct {
	URL  string
	Text string
}

type Config struct {
	MaxPages        int
	Concurrency     int
	FetchTimeout    time.Duration
	MinContentChars int
	MinSentences    int
	UserAgent       string
}

// Crawler performs a bounded breadth-first traversal of one site. Fetches
// run on a bounded worker pool; the queue and visited set are owned by the
// coordinating goroutine only.
type Crawler struct {
	httpClient      *http.Client
	maxPages        int
	concurrency     int
	minContentChars int
	minSentences    int
	userAgent       string
}

func New(cfg Config) *Crawler {
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 10
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 10 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "SiteChatBot/1.0"
	}

	return &Crawler{
		httpClient:      &http.Client{Timeout: cfg.FetchTimeout},
		maxPages:        cfg.MaxPages,
		concurrency:     cfg.Concurrency,
		minContentChars: cfg.MinContentChars,
		minSentences:    cfg.MinSentences,
		userAgent:       cfg.UserAgent,
	}
}

type fetchResult struct {
	url   string
	text  string
	links []string
	err   error
}

// Crawl visits up to MaxPages same-origin pages starting from seedURL and
// returns the pages whose extracted text passed the content filter. Fetch
// and parse failures skip the page without aborting the crawl.
func (c *Crawler) Crawl(ctx context.Context, seedURL string) ([]Page, error) {
	seed, err := normalizeSeed(seedURL)
	if err != nil {
		return nil, fmt.Errorf("invalid seed URL: %w", err)
	}

	logger.Info("Starting crawl",
		zap.String("seed", seed.String()),
		zap.Int("max_pages", c.maxPages),
	)

	jobs := make(chan string)
	results := make(chan fetchResult, c.concurrency)

	var wg sync.WaitGroup
	for i := 0; i < c.concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for pageURL := range jobs {
				results <- c.fetchPage(ctx, pageURL, seed)
			}
		}()
	}
	defer func() {
		close(jobs)
		wg.Wait()
	}()

	visited := make(map[string]bool)
	queued := make(map[string]bool)
	queue := []string{seed.String()}
	queued[seed.String()] = true

	var pages []Page
	inFlight := 0

	for {
		for inFlight < c.concurrency && len(queue) > 0 && len(visited) < c.maxPages {
			next := queue[0]
			queue = queue[1:]

			if visited[next] {
				continue
			}
			visited[next] = true
			inFlight++

			select {
			case jobs <- next:
			case <-ctx.Done():
				return pages, ctx.Err()
			}
		}

		if inFlight == 0 {
			break
		}

		select {
		case res := <-results:
			inFlight--

			if res.err != nil {
				logger.Warn("Page skipped", zap.String("url", res.url), zap.Error(res.err))
				continue
			}

			if hasEnoughContent(res.text, c.minContentChars, c.minSentences) {
				pages = append(pages, Page{URL: res.url, Text: res.text})
			} else {
				logger.Debug("Page below content threshold", zap.String("url", res.url))
			}

			for _, link := range res.links {
				if visited[link] || queued[link] {
					continue
				}
				if len(visited)+len(queue) >= c.maxPages {
					break
				}
				queued[link] = true
				queue = append(queue, link)
			}

		case <-ctx.Done():
			return pages, ctx.Err()
		}
	}

	metrics.PagesCrawled.Add(float64(len(visited)))

	logger.Info("Crawl finished",
		zap.Int("visited", len(visited)),
		zap.Int("pages", len(pages)),
	)

	return pages, nil
}

func (c *Crawler) fetchPage(ctx context.Context, pageURL string, base *url.URL) fetchResult {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return fetchResult{url: pageURL, err: err}
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fetchResult{url: pageURL, err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fetchResult{url: pageURL, err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return fetchResult{url: pageURL, err: err}
	}

	html := string(body)
	parsed, err := url.Parse(pageURL)
	if err != nil {
		parsed = base
	}

	return fetchResult{
		url:   pageURL,
		text:  ExtractText(html, parsed),
		links: ExtractLinks(html, base),
	}
}

// normalizeSeed parses the seed URL, assuming https when no scheme is given,
// and strips any fragment.
func normalizeSeed(seedURL string) (*url.URL, error) {
	seedURL = strings.TrimSpace(seedURL)
	if seedURL == "" {
		return nil, fmt.Errorf("empty URL")
	}

	if !strings.Contains(seedURL, "://") {
		seedURL = "https://" + seedURL
	}

	u, err := url.Parse(seedURL)
	if err != nil {
		return nil, err
	}
	if u.Host == "" {
		return nil, fmt.Errorf("URL has no host: %q", seedURL)
	}

	u.Fragment = ""
	return u, nil
}
