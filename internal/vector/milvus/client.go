package milvus

import (
	"context"
	"fmt"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"go.uber.org/zap"

	"github.com/sitechat/backend/pkg/logger"
)

type Client struct {
	client         client.Client
	collectionName string
	vectorDim      int
}

// EmbeddingRecord is one stored chunk embedding. Content is duplicated from
// the knowledge item so a search hit is self-contained.
type EmbeddingRecord struct {
	ID        string
	TenantID  string
	Content   string
	Embedding []float32
}

// Match is a similarity search hit. Similarity is cosine, higher is closer.
type Match struct {
	ID         string
	Content    string
	Similarity float64
}

func NewClient(endpoint, collectionName string, vectorDim int) (*Client, error) {
	c, err := client.NewGrpcClient(context.Background(), endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to create milvus client: %w", err)
	}

	logger.Info("Milvus client initialized",
		zap.String("endpoint", endpoint),
		zap.String("collection", collectionName),
	)

	return &Client{
		client:         c,
		collectionName: collectionName,
		vectorDim:      vectorDim,
	}, nil
}

func (m *Client) Close() error {
	return m.client.Close()
}

func (m *Client) EnsureCollection(ctx context.Context) error {
	has, err := m.client.HasCollection(ctx, m.collectionName)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}

	if has {
		logger.Info("Collection already exists", zap.String("collection", m.collectionName))
		return nil
	}

	schema := &entity.Schema{
		CollectionName: m.collectionName,
		Description:    "Tenant knowledge chunk embeddings",
		Fields: []*entity.Field{
			{
				Name:       "chunk_id",
				DataType:   entity.FieldTypeVarChar,
				PrimaryKey: true,
				AutoID:     false,
				TypeParams: map[string]string{
					"max_length": "64",
				},
			},
			{
				Name:     "tenant_id",
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "64",
				},
			},
			{
				Name:     "content",
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "4096",
				},
			},
			{
				Name:     "embedding",
				DataType: entity.FieldTypeFloatVector,
				TypeParams: map[string]string{
					"dim": fmt.Sprintf("%d", m.vectorDim),
				},
			},
		},
	}

	if err := m.client.CreateCollection(ctx, schema, entity.DefaultShardNumber); err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	idx, err := entity.NewIndexIvfFlat(entity.COSINE, 1024)
	if err != nil {
		return fmt.Errorf("failed to build index definition: %w", err)
	}
	if err := m.client.CreateIndex(ctx, m.collectionName, "embedding", idx, false); err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	if err := m.client.LoadCollection(ctx, m.collectionName, false); err != nil {
		return fmt.Errorf("failed to load collection: %w", err)
	}

	logger.Info("Collection created and loaded", zap.String("collection", m.collectionName))

	return nil
}

func (m *Client) Insert(ctx context.Context, records []EmbeddingRecord) error {
	if len(records) == 0 {
		return nil
	}

	ids := make([]string, len(records))
	tenantIDs := make([]string, len(records))
	contents := make([]string, len(records))
	embeddings := make([][]float32, len(records))

	for i, r := range records {
		ids[i] = r.ID
		tenantIDs[i] = r.TenantID
		contents[i] = r.Content
		embeddings[i] = r.Embedding
	}

	_, err := m.client.Insert(
		ctx,
		m.collectionName,
		"",
		entity.NewColumnVarChar("chunk_id", ids),
		entity.NewColumnVarChar("tenant_id", tenantIDs),
		entity.NewColumnVarChar("content", contents),
		entity.NewColumnFloatVector("embedding", m.vectorDim, embeddings),
	)
	if err != nil {
		return fmt.Errorf("failed to insert embeddings: %w", err)
	}

	if err := m.client.Flush(ctx, m.collectionName, false); err != nil {
		return fmt.Errorf("failed to flush: %w", err)
	}

	logger.Info("Embeddings inserted", zap.Int("count", len(records)))

	return nil
}

// DeleteByTenant removes every embedding belonging to a tenant. Used by the
// ingestion pipeline's full-replace step.
func (m *Client) DeleteByTenant(ctx context.Context, tenantID string) error {
	expr := fmt.Sprintf(`tenant_id == "%s"`, tenantID)
	if err := m.client.Delete(ctx, m.collectionName, "", expr); err != nil {
		return fmt.Errorf("failed to delete tenant embeddings: %w", err)
	}

	logger.Info("Tenant embeddings deleted", zap.String("tenant_id", tenantID))
	return nil
}

// Search returns the topK nearest chunks for one tenant, ordered by
// descending cosine similarity.
func (m *Client) Search(ctx context.Context, tenantID string, queryEmbedding []float32, topK int) ([]Match, error) {
	expr := fmt.Sprintf(`tenant_id == "%s"`, tenantID)

	sp, err := entity.NewIndexIvfFlatSearchParam(16)
	if err != nil {
		return nil, fmt.Errorf("failed to build search params: %w", err)
	}

	searchResult, err := m.client.Search(
		ctx,
		m.collectionName,
		[]string{},
		expr,
		[]string{"chunk_id", "content"},
		[]entity.Vector{entity.FloatVector(queryEmbedding)},
		"embedding",
		entity.COSINE,
		topK,
		sp,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}

	matches := make([]Match, 0)
	for _, sr := range searchResult {
		idCol := sr.Fields.GetColumn("chunk_id")
		contentCol := sr.Fields.GetColumn("content")

		for i := 0; i < sr.ResultCount; i++ {
			id, _ := idCol.Get(i)
			content, _ := contentCol.Get(i)

			matches = append(matches, Match{
				ID:         id.(string),
				Content:    content.(string),
				Similarity: float64(sr.Scores[i]),
			})
		}
	}

	logger.Debug("Vector search completed",
		zap.String("tenant_id", tenantID),
		zap.Int("topK", topK),
		zap.Int("results", len(matches)),
	)

	return matches, nil
}
