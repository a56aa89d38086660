package repository

import (
	"github.com/echoboardhq/echoboard/app/models"
)

// UserRepository defines the interface for user-related database operations
type UserRepository interface {
	Create(user *models.User) error
	GetByID(id uint) (*models.User, error)
	GetByEmail(email string) (*models.User, error)
	GetByAPIKeyHash(hash string) (*models.User, error)
	Update(user *models.User) error
}

// IntegrationConnectionRepository defines the interface for connection rows.
// Upsert targets the (workspace_id, type) unique key so a reconnect never
// produces a second row.
type IntegrationConnectionRepository interface {
	Upsert(conn *models.IntegrationConnection) error
	GetByID(id uint) (*models.IntegrationConnection, error)
	GetByWorkspaceAndType(workspaceID uint, integrationType string) (*models.IntegrationConnection, error)
	GetActiveByWorkspace(workspaceID uint) ([]models.IntegrationConnection, error)
	UpdateSecrets(id uint, secretsCiphertext, configJSON string) error
	RecordError(id uint, message string) error
	RecordSuccess(id uint) error
	SetStatus(id uint, status string) error
	Delete(workspaceID uint, integrationType string) error
}

// EventMappingRepository defines the interface for event-to-action mappings
type EventMappingRepository interface {
	GetEnabled(connectionID uint, eventType string) ([]models.EventMapping, error)
	ListByConnection(connectionID uint) ([]models.EventMapping, error)
	Set(mapping *models.EventMapping) error
	DeleteByConnection(connectionID uint) error
}

// LinkedRecordRepository defines the interface for linked external records
type LinkedRecordRepository interface {
	GetByID(id uint) (*models.LinkedExternalRecord, error)
	GetActiveByPost(postID uint) ([]models.LinkedExternalRecord, error)
	CreateOrUpdate(link *models.LinkedExternalRecord) error
	UpdateStatus(id uint, status, lastError string) error
}
