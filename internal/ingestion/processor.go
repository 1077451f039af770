package ingestion

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sitechat/backend/internal/crawler"
	"github.com/sitechat/backend/internal/metrics"
	"github.com/sitechat/backend/internal/storage/models"
	"github.com/sitechat/backend/internal/vector/milvus"
	"github.com/sitechat/backend/pkg/logger"
)

// ErrIngestInProgress is returned when an ingestion run for the same tenant
// is already running. Concurrent runs would interleave the delete and insert
// phases, so a second run is rejected rather than queued.
var ErrIngestInProgress = errors.New("ingestion already in progress for tenant")

const seedPageTitle = "Website"

type SiteCrawler interface {
	Crawl(ctx context.Context, seedURL string) ([]crawler.Page, error)
}

type TenantResolver interface {
	BySlug(ctx context.Context, slug string) (*models.Tenant, error)
}

type ItemStore interface {
	InsertKnowledgeItem(ctx context.Context, item *models.KnowledgeItem) error
	DeleteKnowledgeItems(ctx context.Context, tenantID string) error
}

type VectorStore interface {
	Insert(ctx context.Context, records []milvus.EmbeddingRecord) error
	DeleteByTenant(ctx context.Context, tenantID string) error
}

type Embedder interface {
	GenerateBatchEmbeddings(ctx context.Context, texts []string) ([][]float32, error)
}

type CacheInvalidator interface {
	InvalidateTenant(ctx context.Context, tenantID string) error
}

// PageDescriptor identifies one ingested page in the ingestion response.
type PageDescriptor struct {
	URL   string `json:"url"`
	Title string `json:"title"`
}

type Result struct {
	Tenant         *models.Tenant
	PagesProcessed int
	Items          []PageDescriptor
}

type Config struct {
	ChunkSize        int
	ChunkOverlap     int
	EmbedConcurrency int
	MaxContentChars  int
}

// Processor runs the full-replace knowledge refresh for one tenant:
// crawl, chunk, embed, persist. Prior knowledge for the tenant is deleted
// before the new run's rows are written.
type Processor struct {
	resolver         TenantResolver
	store            ItemStore
	vectors          VectorStore
	embedder         Embedder
	crawler          SiteCrawler
	cache            CacheInvalidator
	chunker          *Chunker
	embedConcurrency int
	maxContentChars  int

	tenantLocks sync.Map
}

func NewProcessor(resolver TenantResolver, store ItemStore, vectors VectorStore, embedder Embedder, siteCrawler SiteCrawler, cache CacheInvalidator, cfg Config) *Processor {
	if cfg.EmbedConcurrency <= 0 {
		cfg.EmbedConcurrency = 4
	}
	if cfg.MaxContentChars <= 0 {
		cfg.MaxContentChars = 20000
	}

	return &Processor{
		resolver:         resolver,
		store:            store,
		vectors:          vectors,
		embedder:         embedder,
		crawler:          siteCrawler,
		cache:            cache,
		chunker:          NewChunker(cfg.ChunkSize, cfg.ChunkOverlap),
		embedConcurrency: cfg.EmbedConcurrency,
		maxContentChars:  cfg.MaxContentChars,
	}
}

// IngestSite replaces the tenant's knowledge base with the crawl of seedURL.
// A failure on one page or chunk is logged and skipped; only tenant
// resolution, the delete phase, and the crawl itself abort the run.
func (p *Processor) IngestSite(ctx context.Context, slug, seedURL string) (*Result, error) {
	tenant, err := p.resolver.BySlug(ctx, slug)
	if err != nil {
		return nil, err
	}

	lock := p.lockFor(tenant.ID)
	if !lock.TryLock() {
		return nil, ErrIngestInProgress
	}
	defer lock.Unlock()

	start := time.Now()
	runID := uuid.New().String()

	logger.Info("Starting ingestion",
		zap.String("tenant", tenant.Slug),
		zap.String("seed_url", seedURL),
		zap.String("crawl_run", runID),
	)

	// Dependents first: embeddings reference knowledge items.
	if err := p.vectors.DeleteByTenant(ctx, tenant.ID); err != nil {
		return nil, fmt.Errorf("failed to clear tenant embeddings: %w", err)
	}
	if err := p.store.DeleteKnowledgeItems(ctx, tenant.ID); err != nil {
		return nil, fmt.Errorf("failed to clear knowledge items: %w", err)
	}

	pages, err := p.crawler.Crawl(ctx, seedURL)
	if err != nil {
		return nil, fmt.Errorf("crawl failed: %w", err)
	}

	result := &Result{Tenant: tenant}

	for _, page := range pages {
		title := titleForPage(page.URL)

		content := page.Text
		if len(content) > p.maxContentChars {
			content = content[:p.maxContentChars]
		}

		item := &models.KnowledgeItem{
			ID:        uuid.New().String(),
			TenantID:  tenant.ID,
			URL:       page.URL,
			Title:     title,
			Content:   content,
			CrawlRun:  runID,
			CreatedAt: time.Now(),
		}

		if err := p.store.InsertKnowledgeItem(ctx, item); err != nil {
			logger.Error("Failed to persist knowledge item, page skipped",
				zap.String("url", page.URL),
				zap.Error(err),
			)
			continue
		}

		chunks := p.chunker.Split(content)
		records := p.embedChunks(ctx, tenant.ID, item.ID, chunks)

		if len(records) > 0 {
			if err := p.vectors.Insert(ctx, records); err != nil {
				logger.Error("Failed to persist embeddings, page retrieval degraded",
					zap.String("url", page.URL),
					zap.Error(err),
				)
			} else {
				metrics.ChunksEmbedded.Add(float64(len(records)))
			}
		}

		result.PagesProcessed++
		result.Items = append(result.Items, PageDescriptor{URL: page.URL, Title: title})
	}

	if p.cache != nil {
		if err := p.cache.InvalidateTenant(ctx, tenant.ID); err != nil {
			logger.Warn("Failed to invalidate tenant cache", zap.Error(err))
		}
	}

	metrics.PagesIngested.Add(float64(result.PagesProcessed))
	metrics.IngestDuration.Observe(time.Since(start).Seconds())

	logger.Info("Ingestion finished",
		zap.String("tenant", tenant.Slug),
		zap.Int("pages", result.PagesProcessed),
		zap.Duration("elapsed", time.Since(start)),
	)

	return result, nil
}

// embedChunks embeds a page's chunks in bounded-concurrency batches and
// returns the records that embedded successfully. A failed batch drops only
// its own chunks.
func (p *Processor) embedChunks(ctx context.Context, tenantID, itemID string, chunks []string) []milvus.EmbeddingRecord {
	if len(chunks) == 0 {
		return nil
	}

	const batchSize = 16

	type batch struct {
		offset int
		texts  []string
	}

	var batches []batch
	for i := 0; i < len(chunks); i += batchSize {
		end := i + batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batches = append(batches, batch{offset: i, texts: chunks[i:end]})
	}

	embeddings := make([][]float32, len(chunks))

	var wg sync.WaitGroup
	sem := make(chan struct{}, p.embedConcurrency)

	for _, b := range batches {
		wg.Add(1)
		sem <- struct{}{}
		go func(b batch) {
			defer wg.Done()
			defer func() { <-sem }()

			vectors, err := p.embedder.GenerateBatchEmbeddings(ctx, b.texts)
			if err != nil || len(vectors) != len(b.texts) {
				logger.Warn("Embedding batch failed, chunks skipped",
					zap.Int("offset", b.offset),
					zap.Int("size", len(b.texts)),
					zap.Error(err),
				)
				return
			}

			for i, v := range vectors {
				embeddings[b.offset+i] = v
			}
		}(b)
	}
	wg.Wait()

	records := make([]milvus.EmbeddingRecord, 0, len(chunks))
	for i, chunk := range chunks {
		if embeddings[i] == nil {
			continue
		}
		records = append(records, milvus.EmbeddingRecord{
			ID:        fmt.Sprintf("%s_%d", itemID, i),
			TenantID:  tenantID,
			Content:   chunk,
			Embedding: embeddings[i],
		})
	}

	return records
}

func (p *Processor) lockFor(tenantID string) *sync.Mutex {
	lock, _ := p.tenantLocks.LoadOrStore(tenantID, &sync.Mutex{})
	return lock.(*sync.Mutex)
}

// titleForPage derives a display title from the page URL: the URL path, or
// "Website" for the site root.
func titleForPage(pageURL string) string {
	u, err := url.Parse(pageURL)
	if err != nil {
		return seedPageTitle
	}

	if u.Path == "" || u.Path == "/" {
		return seedPageTitle
	}

	return u.Path
}
