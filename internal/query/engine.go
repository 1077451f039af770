package query

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sitechat/backend/internal/llm"
	"github.com/sitechat/backend/internal/metrics"
	"github.com/sitechat/backend/internal/storage/models"
	"github.com/sitechat/backend/internal/vector/milvus"
	"github.com/sitechat/backend/pkg/logger"
	"github.com/sitechat/backend/pkg/utils"
)

type TenantDirectory interface {
	BySlug(ctx context.Context, slug string) (*models.Tenant, error)
	Settings(ctx context.Context, tenantID string) *models.TenantSettings
}

type Embedder interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
}

type Searcher interface {
	Search(ctx context.Context, tenantID string, queryEmbedding []float32, topK int) ([]milvus.Match, error)
}

type Generator interface {
	Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error)
}

type ChatLog interface {
	InsertChatRecord(ctx context.Context, record *models.ChatRecord) error
	GetChatHistory(ctx context.Context, tenantID string, limit int) ([]models.ChatRecord, error)
}

type ResponseCache interface {
	GetResponse(ctx context.Context, key string, out *Response) (bool, error)
	SetResponse(ctx context.Context, key string, response *Response) error
}

// EmbeddingCache is optionally implemented by the response cache. When
// available, query embeddings are reused across identical questions.
type EmbeddingCache interface {
	GetEmbedding(ctx context.Context, textHash string) ([]float32, bool, error)
	SetEmbedding(ctx context.Context, textHash string, embedding []float32) error
}

type Request struct {
	Slug    string
	Message string
	Debug   bool
}

type Response struct {
	Text           string `json:"text"`
	WelcomeMessage string `json:"welcome_message"`
	FromKB         bool   `json:"from_kb"`

	Debug *DebugInfo `json:"debug,omitempty"`
}

type DebugInfo struct {
	Matches   []milvus.Match `json:"matches"`
	Threshold float64        `json:"threshold"`
}

type Config struct {
	SimilarityThreshold float64
	MaxMatches          int
}

// Engine answers one end-user question for one tenant. Each request is
// stateless: resolve tenant, embed the question, search the tenant's
// knowledge, rank, generate. Every external call past tenant resolution
// degrades instead of failing, so the user always gets a response.
type Engine struct {
	tenants   TenantDirectory
	embedder  Embedder
	searcher  Searcher
	generator Generator
	chatLog   ChatLog
	cache     ResponseCache
	threshold float64
	topK      int
}

func NewEngine(tenants TenantDirectory, embedder Embedder, searcher Searcher, generator Generator, chatLog ChatLog, cache ResponseCache, cfg Config) *Engine {
	threshold := cfg.SimilarityThreshold
	if threshold <= 0 {
		threshold = 0.20
	}
	topK := cfg.MaxMatches
	if topK <= 0 {
		topK = 5
	}

	return &Engine{
		tenants:   tenants,
		embedder:  embedder,
		searcher:  searcher,
		generator: generator,
		chatLog:   chatLog,
		cache:     cache,
		threshold: threshold,
		topK:      topK,
	}
}

// Answer runs the query pipeline. The only fatal failure is tenant
// resolution; generation failure substitutes the tenant's fallback message.
func (e *Engine) Answer(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()

	tenant, err := e.tenants.BySlug(ctx, req.Slug)
	if err != nil {
		return nil, err
	}

	settings := e.tenants.Settings(ctx, tenant.ID)

	cacheKey := tenant.ID + ":" + utils.HashString(req.Message)
	if e.cache != nil && !req.Debug {
		var cached Response
		if hit, err := e.cache.GetResponse(ctx, cacheKey, &cached); err == nil && hit {
			metrics.CacheHits.WithLabelValues("chat").Inc()
			return &cached, nil
		}
		metrics.CacheMisses.WithLabelValues("chat").Inc()
	}

	matches := e.retrieve(ctx, tenant.ID, req.Message)

	if req.Debug {
		return &Response{
			WelcomeMessage: settings.WelcomeMessage,
			Debug: &DebugInfo{
				Matches:   matches,
				Threshold: e.threshold,
			},
		}, nil
	}

	selected := selectMatches(matches, e.threshold, e.topK)

	var response *Response
	if len(selected) == 0 {
		metrics.NoKnowledgeTotal.Inc()
		response = &Response{
			Text:           settings.FallbackMessage,
			WelcomeMessage: settings.WelcomeMessage,
			FromKB:         false,
		}
	} else {
		response = e.generate(ctx, tenant, settings, req.Message, selected)
	}

	e.recordExchange(ctx, tenant.ID, req.Message, response, time.Since(start))

	if e.cache != nil && response.FromKB {
		if err := e.cache.SetResponse(ctx, cacheKey, response); err != nil {
			logger.Debug("Failed to cache chat response", zap.Error(err))
		}
	}

	metrics.ChatDuration.Observe(time.Since(start).Seconds())
	metrics.ChatTotal.WithLabelValues(statusLabel(response.FromKB)).Inc()

	return response, nil
}

// History returns the tenant's recent chat exchanges, newest first.
func (e *Engine) History(ctx context.Context, slug string, limit int) ([]models.ChatRecord, error) {
	tenant, err := e.tenants.BySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return e.chatLog.GetChatHistory(ctx, tenant.ID, limit)
}

// retrieve embeds the question and searches the tenant's knowledge. Both
// calls degrade to an empty match set on failure; the pipeline then routes
// to the no-knowledge response instead of erroring.
func (e *Engine) retrieve(ctx context.Context, tenantID, message string) []milvus.Match {
	embedding := e.queryEmbedding(ctx, message)
	if embedding == nil {
		logger.Warn("Query embedding failed, degrading to no knowledge",
			zap.String("tenant_id", tenantID),
		)
		return nil
	}

	matches, err := e.searcher.Search(ctx, tenantID, embedding, e.topK)
	if err != nil {
		logger.Warn("Vector search failed, degrading to no knowledge",
			zap.String("tenant_id", tenantID),
			zap.Error(err),
		)
		return nil
	}

	return matches
}

// queryEmbedding embeds the question, reusing a cached vector for identical
// text when the cache supports it. Returns nil when embedding fails.
func (e *Engine) queryEmbedding(ctx context.Context, message string) []float32 {
	textHash := utils.HashString(message)

	embCache, cacheable := e.cache.(EmbeddingCache)
	if cacheable {
		if embedding, hit, err := embCache.GetEmbedding(ctx, textHash); err == nil && hit {
			metrics.CacheHits.WithLabelValues("embedding").Inc()
			return embedding
		}
		metrics.CacheMisses.WithLabelValues("embedding").Inc()
	}

	embedding, err := e.embedder.GenerateEmbedding(ctx, message)
	if err != nil {
		logger.Debug("Embedding call failed", zap.Error(err))
		return nil
	}

	if cacheable {
		if err := embCache.SetEmbedding(ctx, textHash, embedding); err != nil {
			logger.Debug("Failed to cache query embedding", zap.Error(err))
		}
	}

	return embedding
}

// generate calls the generation capability. The LLM client already retries;
// if it still fails (or returns nothing) the tenant's fallback message is
// substituted so the request itself succeeds.
func (e *Engine) generate(ctx context.Context, tenant *models.Tenant, settings *models.TenantSettings, message string, selected []milvus.Match) *Response {
	chunks := make([]string, len(selected))
	for i, m := range selected {
		chunks[i] = m.Content
	}

	resp, err := e.generator.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: composeSystemPrompt(tenant.Name, settings.FallbackMessage),
		UserPrompt:   composeUserPrompt(message, chunks),
	})
	if err != nil || resp == nil || resp.Content == "" {
		logger.Error("Generation failed, substituting fallback message",
			zap.String("tenant", tenant.Slug),
			zap.Error(err),
		)
		return &Response{
			Text:           settings.FallbackMessage,
			WelcomeMessage: settings.WelcomeMessage,
			FromKB:         false,
		}
	}

	return &Response{
		Text:           resp.Content,
		WelcomeMessage: settings.WelcomeMessage,
		FromKB:         true,
	}
}

func (e *Engine) recordExchange(ctx context.Context, tenantID, message string, response *Response, latency time.Duration) {
	if e.chatLog == nil {
		return
	}

	record := &models.ChatRecord{
		ID:        uuid.New().String(),
		TenantID:  tenantID,
		Message:   message,
		Response:  response.Text,
		FromKB:    response.FromKB,
		LatencyMS: int(latency.Milliseconds()),
		CreatedAt: time.Now(),
	}

	if err := e.chatLog.InsertChatRecord(ctx, record); err != nil {
		logger.Warn("Failed to record chat exchange", zap.Error(err))
	}
}

func statusLabel(fromKB bool) string {
	if fromKB {
		return "answered"
	}
	return "fallback"
}
