package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/prixcenter/wlink/internal/domain"
)

// MemoryStore keeps tenants and instances in process memory. It backs
// the service when no database is configured and every package test.
type MemoryStore struct {
	mu        sync.RWMutex
	tenants   map[string]*domain.GhlTenant
	instances map[int64]*domain.Instance
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tenants:   make(map[string]*domain.GhlTenant),
		instances: make(map[int64]*domain.Instance),
	}
}

func copyTenant(t *domain.GhlTenant) *domain.GhlTenant {
	c := *t
	return &c
}

func copyInstance(inst *domain.Instance) *domain.Instance {
	c := *inst
	c.Settings = inst.Settings.Clone()
	return &c
}

func (s *MemoryStore) UpsertTenant(_ context.Context, t *domain.GhlTenant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.tenants[t.LocationID]
	if !ok {
		t.CreatedAt = time.Now()
		t.UpdatedAt = time.Now()
		s.tenants[t.LocationID] = copyTenant(t)
		return nil
	}
	existing.AccessToken = t.AccessToken
	existing.RefreshToken = t.RefreshToken
	existing.TokenExpiresAt = t.TokenExpiresAt
	if t.CompanyID != "" {
		existing.CompanyID = t.CompanyID
	}
	existing.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) GetTenant(_ context.Context, locationID string) (*domain.GhlTenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tenants[locationID]
	if !ok {
		return nil, domain.NewNotFound("tenant", locationID)
	}
	return copyTenant(t), nil
}

func (s *MemoryStore) ListTenants(_ context.Context) ([]domain.GhlTenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var list []domain.GhlTenant
	for _, t := range s.tenants {
		list = append(list, *copyTenant(t))
	}
	sort.Slice(list, func(i, j int) bool { return list[i].LocationID < list[j].LocationID })
	return list, nil
}

func (s *MemoryStore) UpdateTenantTokens(_ context.Context, locationID, accessToken, refreshToken string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tenants[locationID]
	if !ok {
		return domain.NewNotFound("tenant", locationID)
	}
	t.AccessToken = accessToken
	t.RefreshToken = refreshToken
	t.TokenExpiresAt = expiresAt
	t.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) CreateInstance(_ context.Context, inst *domain.Instance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if inst.Settings == nil {
		inst.Settings = domain.Settings{}
	}
	inst.CreatedAt = time.Now()
	inst.UpdatedAt = time.Now()
	s.instances[inst.ID] = copyInstance(inst)
	return nil
}

func (s *MemoryStore) GetInstanceByName(_ context.Context, name string) (*domain.Instance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, inst := range s.instances {
		if inst.Name == name {
			return copyInstance(inst), nil
		}
	}
	return nil, domain.NewNotFound("instance", name)
}

func (s *MemoryStore) GetInstanceByID(_ context.Context, id int64) (*domain.Instance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inst, ok := s.instances[id]
	if !ok {
		return nil, domain.NewNotFound("instance", "id")
	}
	return copyInstance(inst), nil
}

func (s *MemoryStore) FindInstanceByGatewayID(_ context.Context, gatewayID string) (*domain.Instance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, inst := range s.instances {
		if inst.GatewayID != "" && inst.GatewayID == gatewayID {
			return copyInstance(inst), nil
		}
	}
	return nil, domain.NewNotFound("instance", gatewayID)
}

func (s *MemoryStore) GetInstancesByLocation(_ context.Context, locationID string) ([]domain.Instance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var list []domain.Instance
	for _, inst := range s.instances {
		if inst.LocationID == locationID {
			list = append(list, *copyInstance(inst))
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list, nil
}

func (s *MemoryStore) ListInstances(_ context.Context) ([]domain.Instance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var list []domain.Instance
	for _, inst := range s.instances {
		list = append(list, *copyInstance(inst))
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list, nil
}

func (s *MemoryStore) RemoveInstance(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.instances, id)
	return nil
}

func (s *MemoryStore) UpdateInstanceCustomName(_ context.Context, id int64, customName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	inst, ok := s.instances[id]
	if !ok {
		return domain.NewNotFound("instance", "id")
	}
	inst.CustomName = customName
	inst.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) UpdateInstanceState(_ context.Context, name string, state string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, inst := range s.instances {
		if inst.Name == name {
			inst.State = state
			inst.UpdatedAt = time.Now()
			return nil
		}
	}
	return domain.NewNotFound("instance", name)
}

func (s *MemoryStore) UpdateInstanceSettings(_ context.Context, name string, settings domain.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, inst := range s.instances {
		if inst.Name == name {
			inst.Settings = settings.Clone()
			inst.UpdatedAt = time.Now()
			return nil
		}
	}
	return domain.NewNotFound("instance", name)
}
