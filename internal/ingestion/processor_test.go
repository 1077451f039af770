package ingestion

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sitechat/backend/internal/crawler"
	"github.com/sitechat/backend/internal/storage/models"
	"github.com/sitechat/backend/internal/vector/milvus"
)

type fakeResolver struct {
	tenant *models.Tenant
	err    error
}

func (f *fakeResolver) BySlug(ctx context.Context, slug string) (*models.Tenant, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.tenant, nil
}

type fakeItemStore struct {
	mu        sync.Mutex
	ops       []string
	inserted  []*models.KnowledgeItem
	insertErr error
	deleteErr error
}

func (f *fakeItemStore) InsertKnowledgeItem(ctx context.Context, item *models.KnowledgeItem) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return f.insertErr
	}
	f.ops = append(f.ops, "insert_item")
	f.inserted = append(f.inserted, item)
	return nil
}

func (f *fakeItemStore) DeleteKnowledgeItems(ctx context.Context, tenantID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.ops = append(f.ops, "delete_items")
	return nil
}

type fakeVectorStore struct {
	mu        sync.Mutex
	ops       []string
	records   []milvus.EmbeddingRecord
	insertErr error
	deleteErr error
}

func (f *fakeVectorStore) Insert(ctx context.Context, records []milvus.EmbeddingRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return f.insertErr
	}
	f.ops = append(f.ops, "insert_vectors")
	f.records = append(f.records, records...)
	return nil
}

func (f *fakeVectorStore) DeleteByTenant(ctx context.Context, tenantID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.ops = append(f.ops, "delete_vectors")
	return nil
}

type fakeEmbedder struct {
	mu   sync.Mutex
	dim  int
	err  error
	seen [][]string
}

func (f *fakeEmbedder) GenerateBatchEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	f.seen = append(f.seen, texts)
	f.mu.Unlock()

	if f.err != nil {
		return nil, f.err
	}

	dim := f.dim
	if dim == 0 {
		dim = 3
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = make([]float32, dim)
		out[i][0] = 1
	}
	return out, nil
}

type fakeCrawler struct {
	pages   []crawler.Page
	err     error
	started chan struct{}
	release chan struct{}
}

func (f *fakeCrawler) Crawl(ctx context.Context, seedURL string) ([]crawler.Page, error) {
	if f.started != nil {
		close(f.started)
	}
	if f.release != nil {
		<-f.release
	}
	return f.pages, f.err
}

type fakeInvalidator struct {
	mu      sync.Mutex
	tenants []string
}

func (f *fakeInvalidator) InvalidateTenant(ctx context.Context, tenantID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tenants = append(f.tenants, tenantID)
	return nil
}

func testTenant() *models.Tenant {
	return &models.Tenant{ID: "t-1", Slug: "acme", Name: "Acme"}
}

func newTestProcessor(resolver TenantResolver, store *fakeItemStore, vectors *fakeVectorStore, embedder *fakeEmbedder, siteCrawler SiteCrawler, cache CacheInvalidator) *Processor {
	return NewProcessor(resolver, store, vectors, embedder, siteCrawler, cache, Config{
		ChunkSize:        100,
		ChunkOverlap:     20,
		EmbedConcurrency: 2,
	})
}

func TestIngestSiteHappyPath(t *testing.T) {
	store := &fakeItemStore{}
	vectors := &fakeVectorStore{}
	embedder := &fakeEmbedder{}
	invalidator := &fakeInvalidator{}
	crawl := &fakeCrawler{pages: []crawler.Page{
		{URL: "https://acme.example/", Text: "Acme sells anvils. Shipping is free over fifty dollars."},
		{URL: "https://acme.example/about", Text: "Founded in 1999, Acme has shipped anvils worldwide ever since."},
	}}

	p := newTestProcessor(&fakeResolver{tenant: testTenant()}, store, vectors, embedder, crawl, invalidator)

	result, err := p.IngestSite(context.Background(), "acme", "https://acme.example")
	require.NoError(t, err)

	assert.Equal(t, 2, result.PagesProcessed)
	require.Len(t, result.Items, 2)
	assert.Equal(t, "Website", result.Items[0].Title)
	assert.Equal(t, "/about", result.Items[1].Title)

	require.Len(t, store.inserted, 2)
	assert.Equal(t, "t-1", store.inserted[0].TenantID)
	assert.NotEmpty(t, store.inserted[0].CrawlRun)
	assert.Equal(t, store.inserted[0].CrawlRun, store.inserted[1].CrawlRun)

	assert.NotEmpty(t, vectors.records)
	for _, rec := range vectors.records {
		assert.Equal(t, "t-1", rec.TenantID)
		assert.NotEmpty(t, rec.Content)
	}

	assert.Equal(t, []string{"t-1"}, invalidator.tenants)
}

func TestIngestSiteDeletesBeforeInserting(t *testing.T) {
	store := &fakeItemStore{}
	vectors := &fakeVectorStore{}
	crawl := &fakeCrawler{pages: []crawler.Page{
		{URL: "https://acme.example/", Text: "Some page content for the knowledge base."},
	}}

	p := newTestProcessor(&fakeResolver{tenant: testTenant()}, store, vectors, &fakeEmbedder{}, crawl, nil)

	_, err := p.IngestSite(context.Background(), "acme", "https://acme.example")
	require.NoError(t, err)

	// Vectors reference items, so embeddings are cleared first, then rows;
	// all deletes precede any insert.
	require.Equal(t, []string{"delete_vectors", "insert_vectors"}, vectors.ops)
	require.Equal(t, []string{"delete_items", "insert_item"}, store.ops)
}

func TestIngestSiteUnknownTenant(t *testing.T) {
	wantErr := errors.New("tenant not found")
	p := newTestProcessor(&fakeResolver{err: wantErr}, &fakeItemStore{}, &fakeVectorStore{}, &fakeEmbedder{}, &fakeCrawler{}, nil)

	_, err := p.IngestSite(context.Background(), "ghost", "https://ghost.example")
	require.ErrorIs(t, err, wantErr)
}

func TestIngestSiteCrawlFailureAborts(t *testing.T) {
	store := &fakeItemStore{}
	crawl := &fakeCrawler{err: errors.New("connection refused")}

	p := newTestProcessor(&fakeResolver{tenant: testTenant()}, store, &fakeVectorStore{}, &fakeEmbedder{}, crawl, nil)

	_, err := p.IngestSite(context.Background(), "acme", "https://acme.example")
	require.Error(t, err)
	assert.Empty(t, store.inserted)
}

func TestIngestSiteDeleteFailureAborts(t *testing.T) {
	vectors := &fakeVectorStore{deleteErr: errors.New("milvus down")}
	store := &fakeItemStore{}

	p := newTestProcessor(&fakeResolver{tenant: testTenant()}, store, vectors, &fakeEmbedder{}, &fakeCrawler{}, nil)

	_, err := p.IngestSite(context.Background(), "acme", "https://acme.example")
	require.Error(t, err)
	assert.Empty(t, store.ops)
}

func TestIngestSitePageInsertFailureSkipsPage(t *testing.T) {
	store := &fakeItemStore{insertErr: errors.New("disk full")}
	vectors := &fakeVectorStore{}
	crawl := &fakeCrawler{pages: []crawler.Page{
		{URL: "https://acme.example/", Text: "Content that will fail to persist."},
	}}

	p := newTestProcessor(&fakeResolver{tenant: testTenant()}, store, vectors, &fakeEmbedder{}, crawl, nil)

	result, err := p.IngestSite(context.Background(), "acme", "https://acme.example")
	require.NoError(t, err)
	assert.Equal(t, 0, result.PagesProcessed)
	assert.Empty(t, vectors.records)
}

func TestIngestSiteEmbeddingFailureKeepsPage(t *testing.T) {
	store := &fakeItemStore{}
	vectors := &fakeVectorStore{}
	embedder := &fakeEmbedder{err: errors.New("rate limited")}
	crawl := &fakeCrawler{pages: []crawler.Page{
		{URL: "https://acme.example/", Text: "The page row survives even when embedding fails."},
	}}

	p := newTestProcessor(&fakeResolver{tenant: testTenant()}, store, vectors, embedder, crawl, nil)

	result, err := p.IngestSite(context.Background(), "acme", "https://acme.example")
	require.NoError(t, err)

	assert.Equal(t, 1, result.PagesProcessed)
	require.Len(t, store.inserted, 1)
	assert.Empty(t, vectors.records)
}

func TestIngestSiteConcurrentRunRejected(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	crawl := &fakeCrawler{started: started, release: release}

	p := newTestProcessor(&fakeResolver{tenant: testTenant()}, &fakeItemStore{}, &fakeVectorStore{}, &fakeEmbedder{}, crawl, nil)

	done := make(chan error, 1)
	go func() {
		_, err := p.IngestSite(context.Background(), "acme", "https://acme.example")
		done <- err
	}()

	<-started

	_, err := p.IngestSite(context.Background(), "acme", "https://acme.example")
	require.ErrorIs(t, err, ErrIngestInProgress)

	close(release)
	require.NoError(t, <-done)
}

func TestIngestSiteTruncatesOversizedContent(t *testing.T) {
	store := &fakeItemStore{}
	long := make([]byte, 0, 40000)
	for len(long) < 40000 {
		long = append(long, "lorem ipsum "...)
	}
	crawl := &fakeCrawler{pages: []crawler.Page{
		{URL: "https://acme.example/history", Text: string(long)},
	}}

	p := NewProcessor(&fakeResolver{tenant: testTenant()}, store, &fakeVectorStore{}, &fakeEmbedder{}, crawl, nil, Config{
		ChunkSize:       100,
		ChunkOverlap:    20,
		MaxContentChars: 500,
	})

	_, err := p.IngestSite(context.Background(), "acme", "https://acme.example")
	require.NoError(t, err)

	require.Len(t, store.inserted, 1)
	assert.Len(t, store.inserted[0].Content, 500)
}

func TestTitleForPage(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://acme.example/", "Website"},
		{"https://acme.example", "Website"},
		{"https://acme.example/pricing", "/pricing"},
		{"https://acme.example/docs/start", "/docs/start"},
		{"://bad", "Website"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, titleForPage(tt.url), tt.url)
	}
}
