package store

import (
	"context"
	"time"

	"github.com/prixcenter/wlink/internal/domain"
)

// Store is the persistence boundary shared by every component. Two
// implementations exist: a gorm/Postgres store for production and an
// in-memory store used when no database is configured and by tests.
// Selection happens once at application construction, never at call time.
type Store interface {
	// Tenants
	UpsertTenant(ctx context.Context, t *domain.GhlTenant) error
	GetTenant(ctx context.Context, locationID string) (*domain.GhlTenant, error)
	ListTenants(ctx context.Context) ([]domain.GhlTenant, error)
	UpdateTenantTokens(ctx context.Context, locationID, accessToken, refreshToken string, expiresAt time.Time) error

	// Instances
	CreateInstance(ctx context.Context, inst *domain.Instance) error
	GetInstanceByName(ctx context.Context, name string) (*domain.Instance, error)
	GetInstanceByID(ctx context.Context, id int64) (*domain.Instance, error)
	FindInstanceByGatewayID(ctx context.Context, gatewayID string) (*domain.Instance, error)
	GetInstancesByLocation(ctx context.Context, locationID string) ([]domain.Instance, error)
	ListInstances(ctx context.Context) ([]domain.Instance, error)
	RemoveInstance(ctx context.Context, id int64) error
	UpdateInstanceCustomName(ctx context.Context, id int64, customName string) error
	UpdateInstanceState(ctx context.Context, name string, state string) error
	UpdateInstanceSettings(ctx context.Context, name string, settings domain.Settings) error
}
