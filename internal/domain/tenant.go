package domain

import "time"

// GhlTenant is one platform workspace (GHL location). Every instance,
// webhook and token set is scoped by LocationID.
type GhlTenant struct {
	LocationID     string    `json:"location_id" gorm:"column:location_id;primaryKey"`
	CompanyID      string    `json:"company_id" gorm:"column:company_id"`
	AccessToken    string    `json:"-"`
	RefreshToken   string    `json:"-"`
	TokenExpiresAt time.Time `json:"token_expires_at"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (GhlTenant) TableName() string {
	return "ghl_tenant"
}
