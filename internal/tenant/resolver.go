package tenant

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sitechat/backend/internal/storage/models"
	"github.com/sitechat/backend/internal/storage/sqlite"
	"github.com/sitechat/backend/pkg/logger"
)

var ErrTenantNotFound = errors.New("tenant not found")

const (
	DefaultWelcomeMessage  = "Hi! Ask me anything about our business."
	DefaultFallbackMessage = "I'm sorry, I don't have that information. Please contact us directly and we'll be happy to help."
)

type Store interface {
	GetTenantBySlug(ctx context.Context, slug string) (*models.Tenant, error)
	GetTenantSettings(ctx context.Context, tenantID string) (*models.TenantSettings, error)
	CreateTenant(ctx context.Context, tenant *models.Tenant) error
	UpsertTenantSettings(ctx context.Context, settings *models.TenantSettings) error
}

type Resolver struct {
	store Store
}

func NewResolver(store Store) *Resolver {
	return &Resolver{store: store}
}

// BySlug loads the tenant for a slug. Any lookup anomaly collapses to
// ErrTenantNotFound; the caller never sees store internals.
func (r *Resolver) BySlug(ctx context.Context, slug string) (*models.Tenant, error) {
	if slug == "" {
		return nil, ErrTenantNotFound
	}

	tenant, err := r.store.GetTenantBySlug(ctx, slug)
	if err != nil {
		if !errors.Is(err, sqlite.ErrNotFound) {
			logger.Warn("Tenant lookup failed", zap.String("slug", slug), zap.Error(err))
		}
		return nil, ErrTenantNotFound
	}

	return tenant, nil
}

// Settings loads the tenant's response customization. It never fails the
// caller: missing or unreadable settings synthesize the documented defaults.
func (r *Resolver) Settings(ctx context.Context, tenantID string) *models.TenantSettings {
	settings, err := r.store.GetTenantSettings(ctx, tenantID)
	if err != nil {
		if !errors.Is(err, sqlite.ErrNotFound) {
			logger.Warn("Settings lookup failed, using defaults",
				zap.String("tenant_id", tenantID),
				zap.Error(err),
			)
		}
		return &models.TenantSettings{
			TenantID:        tenantID,
			WelcomeMessage:  DefaultWelcomeMessage,
			FallbackMessage: DefaultFallbackMessage,
		}
	}

	if settings.WelcomeMessage == "" {
		settings.WelcomeMessage = DefaultWelcomeMessage
	}
	if settings.FallbackMessage == "" {
		settings.FallbackMessage = DefaultFallbackMessage
	}

	return settings
}

// EnsureTenant provisions a tenant record and default settings for a slug if
// none exist. Provisioning proper is out-of-band; this covers bootstrap and
// local development.
func (r *Resolver) EnsureTenant(ctx context.Context, slug, name string) (*models.Tenant, error) {
	if existing, err := r.store.GetTenantBySlug(ctx, slug); err == nil {
		return existing, nil
	}

	tenant := &models.Tenant{
		ID:        uuid.New().String(),
		Slug:      slug,
		Name:      name,
		CreatedAt: time.Now(),
	}

	if err := r.store.CreateTenant(ctx, tenant); err != nil {
		return nil, err
	}

	settings := &models.TenantSettings{
		TenantID:        tenant.ID,
		WelcomeMessage:  DefaultWelcomeMessage,
		FallbackMessage: DefaultFallbackMessage,
	}
	if err := r.store.UpsertTenantSettings(ctx, settings); err != nil {
		logger.Warn("Failed to write default settings", zap.String("slug", slug), zap.Error(err))
	}

	logger.Info("Tenant provisioned", zap.String("slug", slug), zap.String("id", tenant.ID))

	return tenant, nil
}
