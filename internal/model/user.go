package model

import (
	"time"

	"gorm.io/gorm"
)

// User represents the user model stored in the database. A user belongs to
// exactly one tenant; the email is unique across all tenants so it can be
// used as the login identifier without a tenant hint.
type User struct {
	ID               uint           `json:"id" gorm:"primaryKey"`
	TenantID         string         `json:"tenant_id" gorm:"type:varchar(50);index;not null"`
	Email            string         `json:"email" gorm:"type:varchar(100);uniqueIndex:idx_users_email,where:deleted_at IS NULL;not null"`
	Password         string         `json:"-" gorm:"type:varchar(255)"`
	FirstName        string         `json:"first_name" gorm:"type:varchar(100)"`
	LastName         string         `json:"last_name" gorm:"type:varchar(100)"`
	EmailConfirmed   bool           `json:"email_confirmed" gorm:"default:false"`
	ExternalProvider string         `json:"external_provider,omitempty" gorm:"type:varchar(100)"`
	ExternalSubject  string         `json:"external_subject,omitempty" gorm:"type:varchar(200)"`
	Active           bool           `json:"active" gorm:"default:true"`
	CreatedBy        uint           `json:"created_by" gorm:"index"`
	UpdatedBy        uint           `json:"updated_by"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
	DeletedAt        gorm.DeletedAt `json:"-" gorm:"index"`

	// Relations
	Roles []Role `json:"roles,omitempty" gorm:"foreignKey:UserID"`
}
