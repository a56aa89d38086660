package models

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"
)

const (
	ROLE_OWNER   = "owner"
	ROLE_ADMIN   = "admin"
	ROLE_MEMBER  = "member"
	ROLE_SERVICE = "service"

	STATUS_ACTIVE   = "active"
	STATUS_INACTIVE = "inactive"
	STATUS_DISABLED = "disabled"
)

// User is a workspace principal. Integrations get their own service user on
// first connect so external actions are attributed to "the integration"
// instead of the human who clicked connect.
type User struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	WorkspaceID uint           `gorm:"index" json:"workspace_id" validate:"required"`
	Name        string         `gorm:"type:varchar(150)" json:"name" validate:"required,min=3,max=150"`
	Email       string         `gorm:"uniqueIndex;type:varchar(200) CHARACTER SET utf8 COLLATE utf8_bin" json:"email" validate:"required,email,min=5,max=200"`
	Role        string         `gorm:"type:varchar(50);default:'member'" json:"role" validate:"oneof=owner admin member service"`
	Status      string         `gorm:"type:varchar(50);default:'active'" json:"status" validate:"oneof=active inactive disabled"`
	APIKeyHash  string         `gorm:"type:varchar(64);index" json:"-"`
	LastLoginAt *time.Time     `gorm:"type:timestamp;default:null" json:"last_login_at"`
	CreatedAt   time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
}

func (u *User) Validate() error {
	v := validator.New()

	return v.Struct(u)
}

// NewServiceUser builds the service principal an integration acts as.
func NewServiceUser(workspaceID uint, integrationType string) *User {
	return &User{
		WorkspaceID: workspaceID,
		Name:        fmt.Sprintf("%s integration", integrationType),
		Email:       fmt.Sprintf("%s-ws%d@service.echoboard.local", integrationType, workspaceID),
		Role:        ROLE_SERVICE,
		Status:      STATUS_ACTIVE,
	}
}

// HashAPIKey derives the stored lookup hash for a raw API key.
func HashAPIKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}
