package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/sitechat/backend/internal/storage/models"
	"github.com/sitechat/backend/pkg/logger"
)

var ErrNotFound = errors.New("record not found")

type Client struct {
	db *sql.DB
}

func NewClient(dbPath string) (*Client, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	logger.Info("SQLite client initialized", zap.String("path", dbPath))

	return &Client{db: db}, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS tenants (
		id TEXT PRIMARY KEY,
		slug TEXT UNIQUE NOT NULL,
		name TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_tenants_slug ON tenants(slug);

	CREATE TABLE IF NOT EXISTS tenant_settings (
		tenant_id TEXT PRIMARY KEY,
		welcome_message TEXT NOT NULL,
		fallback_message TEXT NOT NULL,
		updated_at INTEGER NOT NULL,
		FOREIGN KEY (tenant_id) REFERENCES tenants(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS knowledge_items (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		url TEXT NOT NULL,
		title TEXT NOT NULL,
		content TEXT NOT NULL,
		crawl_run TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		FOREIGN KEY (tenant_id) REFERENCES tenants(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_items_tenant ON knowledge_items(tenant_id);

	CREATE TABLE IF NOT EXISTS chat_history (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		message TEXT NOT NULL,
		response TEXT,
		from_kb INTEGER DEFAULT 0,
		latency_ms INTEGER,
		created_at INTEGER NOT NULL,
		FOREIGN KEY (tenant_id) REFERENCES tenants(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_chat_tenant ON chat_history(tenant_id);
	CREATE INDEX IF NOT EXISTS idx_chat_created ON chat_history(created_at);
	`

	if _, err := c.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("SQLite schema initialized")
	return nil
}

func (c *Client) CreateTenant(ctx context.Context, tenant *models.Tenant) error {
	query := `
		INSERT INTO tenants (id, slug, name, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(slug) DO UPDATE SET name = excluded.name
	`

	_, err := c.db.ExecContext(ctx, query, tenant.ID, tenant.Slug, tenant.Name, tenant.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to create tenant: %w", err)
	}

	logger.Debug("Tenant created", zap.String("slug", tenant.Slug))
	return nil
}

func (c *Client) GetTenantBySlug(ctx context.Context, slug string) (*models.Tenant, error) {
	query := `SELECT id, slug, name, created_at FROM tenants WHERE slug = ?`

	var tenant models.Tenant
	var createdAt int64

	err := c.db.QueryRowContext(ctx, query, slug).Scan(&tenant.ID, &tenant.Slug, &tenant.Name, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tenant: %w", err)
	}

	tenant.CreatedAt = time.Unix(createdAt, 0)
	return &tenant, nil
}

func (c *Client) GetTenantSettings(ctx context.Context, tenantID string) (*models.TenantSettings, error) {
	query := `SELECT tenant_id, welcome_message, fallback_message, updated_at FROM tenant_settings WHERE tenant_id = ?`

	var settings models.TenantSettings
	var updatedAt int64

	err := c.db.QueryRowContext(ctx, query, tenantID).Scan(
		&settings.TenantID,
		&settings.WelcomeMessage,
		&settings.FallbackMessage,
		&updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tenant settings: %w", err)
	}

	settings.UpdatedAt = time.Unix(updatedAt, 0)
	return &settings, nil
}

func (c *Client) UpsertTenantSettings(ctx context.Context, settings *models.TenantSettings) error {
	query := `
		INSERT INTO tenant_settings (tenant_id, welcome_message, fallback_message, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(tenant_id) DO UPDATE SET
			welcome_message = excluded.welcome_message,
			fallback_message = excluded.fallback_message,
			updated_at = excluded.updated_at
	`

	_, err := c.db.ExecContext(ctx, query,
		settings.TenantID,
		settings.WelcomeMessage,
		settings.FallbackMessage,
		time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert tenant settings: %w", err)
	}

	return nil
}

func (c *Client) InsertKnowledgeItem(ctx context.Context, item *models.KnowledgeItem) error {
	query := `
		INSERT INTO knowledge_items (id, tenant_id, url, title, content, crawl_run, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := c.db.ExecContext(ctx, query,
		item.ID,
		item.TenantID,
		item.URL,
		item.Title,
		item.Content,
		item.CrawlRun,
		item.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert knowledge item: %w", err)
	}

	return nil
}

func (c *Client) DeleteKnowledgeItems(ctx context.Context, tenantID string) error {
	_, err := c.db.ExecContext(ctx, `DELETE FROM knowledge_items WHERE tenant_id = ?`, tenantID)
	if err != nil {
		return fmt.Errorf("failed to delete knowledge items: %w", err)
	}

	logger.Debug("Knowledge items deleted", zap.String("tenant_id", tenantID))
	return nil
}

func (c *Client) CountKnowledgeItems(ctx context.Context, tenantID string) (int, error) {
	var count int
	err := c.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM knowledge_items WHERE tenant_id = ?`, tenantID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count knowledge items: %w", err)
	}
	return count, nil
}

func (c *Client) InsertChatRecord(ctx context.Context, record *models.ChatRecord) error {
	query := `
		INSERT INTO chat_history (id, tenant_id, message, response, from_kb, latency_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	fromKB := 0
	if record.FromKB {
		fromKB = 1
	}

	_, err := c.db.ExecContext(ctx, query,
		record.ID,
		record.TenantID,
		record.Message,
		record.Response,
		fromKB,
		record.LatencyMS,
		record.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert chat record: %w", err)
	}

	return nil
}

func (c *Client) GetChatHistory(ctx context.Context, tenantID string, limit int) ([]models.ChatRecord, error) {
	query := `
		SELECT id, tenant_id, message, response, from_kb, latency_ms, created_at
		FROM chat_history
		WHERE tenant_id = ?
		ORDER BY created_at DESC
		LIMIT ?
	`

	rows, err := c.db.QueryContext(ctx, query, tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get chat history: %w", err)
	}
	defer rows.Close()

	var records []models.ChatRecord
	for rows.Next() {
		var r models.ChatRecord
		var fromKB int
		var createdAt int64

		if err := rows.Scan(&r.ID, &r.TenantID, &r.Message, &r.Response, &fromKB, &r.LatencyMS, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		r.FromKB = fromKB == 1
		r.CreatedAt = time.Unix(createdAt, 0)
		records = append(records, r)
	}

	return records, rows.Err()
}
