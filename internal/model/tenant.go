package model

import (
	"time"

	"gorm.io/gorm"
)

// Tenant represents the isolation boundary every domain row belongs to.
// The code chosen at signup is what travels in the TenantId cookie and token
// claim, and it is the partitioning key on every other table. It is unique
// among live tenants only, so a deleted tenant does not reserve its code
// forever.
type Tenant struct {
	ID          uint           `json:"id" gorm:"primaryKey"`
	Code        string         `json:"code" gorm:"type:varchar(50);uniqueIndex:idx_tenants_code,where:deleted_at IS NULL;not null"`
	Name        string         `json:"name" gorm:"type:varchar(100);not null"`
	Description string         `json:"description" gorm:"type:text"`
	Active      bool           `json:"active" gorm:"default:true"`
	Settings    string         `json:"settings" gorm:"type:jsonb"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `json:"-" gorm:"index"`
}

// TenantAddress is the postal address of a tenant. At most one per tenant,
// enforced by the unique index on TenantID.
type TenantAddress struct {
	ID         uint           `json:"id" gorm:"primaryKey"`
	TenantID   string         `json:"tenant_id" gorm:"type:varchar(50);uniqueIndex:idx_tenant_addresses_tenant,where:deleted_at IS NULL;not null"`
	Line1      string         `json:"line1" gorm:"type:varchar(200)"`
	Line2      string         `json:"line2" gorm:"type:varchar(200)"`
	City       string         `json:"city" gorm:"type:varchar(100)"`
	State      string         `json:"state" gorm:"type:varchar(100)"`
	Country    string         `json:"country" gorm:"type:varchar(100)"`
	PostalCode string         `json:"postal_code" gorm:"type:varchar(20)"`
	CreatedBy  uint           `json:"created_by" gorm:"index"`
	UpdatedBy  uint           `json:"updated_by"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
	DeletedAt  gorm.DeletedAt `json:"-" gorm:"index"`
}

// EmailConfirmationToken is issued when a user registers and is consumed
// exactly once when the address is confirmed.
type EmailConfirmationToken struct {
	ID          uint           `json:"id" gorm:"primaryKey"`
	TenantID    string         `json:"tenant_id" gorm:"type:varchar(50);index;not null"`
	UserID      uint           `json:"user_id" gorm:"index;not null"`
	Token       string         `json:"-" gorm:"type:varchar(100);uniqueIndex;not null"`
	ExpiresAt   time.Time      `json:"expires_at"`
	ConfirmedAt *time.Time     `json:"confirmed_at,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `json:"-" gorm:"index"`
}
