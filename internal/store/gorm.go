package store

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/prixcenter/wlink/internal/domain"
)

// GormStore persists tenants and instances through gorm.
type GormStore struct {
	db *gorm.DB
}

var _ Store = (*GormStore)(nil)

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) UpsertTenant(ctx context.Context, t *domain.GhlTenant) error {
	var existing domain.GhlTenant
	err := s.db.WithContext(ctx).Where("location_id = ?", t.LocationID).First(&existing).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		t.CreatedAt = time.Now()
		t.UpdatedAt = time.Now()
		return errors.Wrap(s.db.WithContext(ctx).Create(t).Error, "create tenant")
	case err != nil:
		return errors.Wrap(err, "query tenant")
	}

	updates := map[string]interface{}{
		"access_token":     t.AccessToken,
		"refresh_token":    t.RefreshToken,
		"token_expires_at": t.TokenExpiresAt,
		"updated_at":       time.Now(),
	}
	if t.CompanyID != "" {
		updates["company_id"] = t.CompanyID
	}
	return errors.Wrap(s.db.WithContext(ctx).Model(&domain.GhlTenant{}).
		Where("location_id = ?", t.LocationID).Updates(updates).Error, "update tenant")
}

func (s *GormStore) GetTenant(ctx context.Context, locationID string) (*domain.GhlTenant, error) {
	var t domain.GhlTenant
	err := s.db.WithContext(ctx).Where("location_id = ?", locationID).First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.NewNotFound("tenant", locationID)
	}
	if err != nil {
		return nil, errors.Wrap(err, "query tenant")
	}
	return &t, nil
}

func (s *GormStore) ListTenants(ctx context.Context) ([]domain.GhlTenant, error) {
	var list []domain.GhlTenant
	err := s.db.WithContext(ctx).Order("location_id").Find(&list).Error
	return list, errors.Wrap(err, "query tenants")
}

func (s *GormStore) UpdateTenantTokens(ctx context.Context, locationID, accessToken, refreshToken string, expiresAt time.Time) error {
	result := s.db.WithContext(ctx).Model(&domain.GhlTenant{}).
		Where("location_id = ?", locationID).
		Updates(map[string]interface{}{
			"access_token":     accessToken,
			"refresh_token":    refreshToken,
			"token_expires_at": expiresAt,
			"updated_at":       time.Now(),
		})
	if result.Error != nil {
		return errors.Wrap(result.Error, "update tenant tokens")
	}
	if result.RowsAffected == 0 {
		return domain.NewNotFound("tenant", locationID)
	}
	return nil
}

func (s *GormStore) CreateInstance(ctx context.Context, inst *domain.Instance) error {
	if inst.Settings == nil {
		inst.Settings = domain.Settings{}
	}
	inst.CreatedAt = time.Now()
	inst.UpdatedAt = time.Now()
	return errors.Wrap(s.db.WithContext(ctx).Create(inst).Error, "create instance")
}

func (s *GormStore) getInstance(ctx context.Context, query string, arg interface{}, key string) (*domain.Instance, error) {
	var inst domain.Instance
	err := s.db.WithContext(ctx).Where(query, arg).First(&inst).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.NewNotFound("instance", key)
	}
	if err != nil {
		return nil, errors.Wrap(err, "query instance")
	}
	return &inst, nil
}

func (s *GormStore) GetInstanceByName(ctx context.Context, name string) (*domain.Instance, error) {
	return s.getInstance(ctx, "instance_name = ?", name, name)
}

func (s *GormStore) GetInstanceByID(ctx context.Context, id int64) (*domain.Instance, error) {
	var inst domain.Instance
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&inst).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.NewNotFound("instance", "id")
	}
	if err != nil {
		return nil, errors.Wrap(err, "query instance")
	}
	return &inst, nil
}

func (s *GormStore) FindInstanceByGatewayID(ctx context.Context, gatewayID string) (*domain.Instance, error) {
	return s.getInstance(ctx, "gateway_id = ?", gatewayID, gatewayID)
}

func (s *GormStore) GetInstancesByLocation(ctx context.Context, locationID string) ([]domain.Instance, error) {
	var list []domain.Instance
	err := s.db.WithContext(ctx).Where("location_id = ?", locationID).Order("id").Find(&list).Error
	return list, errors.Wrap(err, "query instances by location")
}

func (s *GormStore) ListInstances(ctx context.Context) ([]domain.Instance, error) {
	var list []domain.Instance
	err := s.db.WithContext(ctx).Order("id").Find(&list).Error
	return list, errors.Wrap(err, "query instances")
}

func (s *GormStore) RemoveInstance(ctx context.Context, id int64) error {
	return errors.Wrap(s.db.WithContext(ctx).Where("id = ?", id).
		Delete(&domain.Instance{}).Error, "delete instance")
}

func (s *GormStore) UpdateInstanceCustomName(ctx context.Context, id int64, customName string) error {
	return s.updateInstance(ctx, "id = ?", id, map[string]interface{}{"custom_name": customName})
}

func (s *GormStore) UpdateInstanceState(ctx context.Context, name string, state string) error {
	return s.updateInstance(ctx, "instance_name = ?", name, map[string]interface{}{"state": state})
}

func (s *GormStore) UpdateInstanceSettings(ctx context.Context, name string, settings domain.Settings) error {
	return s.updateInstance(ctx, "instance_name = ?", name, map[string]interface{}{"settings": settings})
}

func (s *GormStore) updateInstance(ctx context.Context, query string, arg interface{}, updates map[string]interface{}) error {
	updates["updated_at"] = time.Now()
	result := s.db.WithContext(ctx).Model(&domain.Instance{}).Where(query, arg).Updates(updates)
	if result.Error != nil {
		return errors.Wrap(result.Error, "update instance")
	}
	if result.RowsAffected == 0 {
		return domain.NewNotFound("instance", "update target")
	}
	return nil
}
