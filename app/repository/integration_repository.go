package repository

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/echoboardhq/echoboard/app/models"
)

// integrationConnectionRepository implements IntegrationConnectionRepository
type integrationConnectionRepository struct {
	db *gorm.DB
}

// NewIntegrationConnectionRepository creates a new connection repository instance
func NewIntegrationConnectionRepository(db *gorm.DB) IntegrationConnectionRepository {
	return &integrationConnectionRepository{db: db}
}

// Upsert writes the connection, replacing the existing row for the same
// (workspace_id, type) pair. The second connect's values win.
func (r *integrationConnectionRepository) Upsert(conn *models.IntegrationConnection) error {
	return r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "workspace_id"}, {Name: "type"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"status", "secrets_ciphertext", "config_json",
			"external_team_id", "external_team_name",
			"connected_by_id", "service_user_id",
			"last_error", "last_error_at", "error_count", "updated_at",
		}),
	}).Create(conn).Error
}

func (r *integrationConnectionRepository) GetByID(id uint) (*models.IntegrationConnection, error) {
	var conn models.IntegrationConnection
	if err := r.db.First(&conn, id).Error; err != nil {
		return nil, err
	}
	return &conn, nil
}

func (r *integrationConnectionRepository) GetByWorkspaceAndType(workspaceID uint, integrationType string) (*models.IntegrationConnection, error) {
	var conn models.IntegrationConnection
	err := r.db.Where("workspace_id = ? AND type = ?", workspaceID, integrationType).First(&conn).Error
	if err != nil {
		return nil, err
	}
	return &conn, nil
}

func (r *integrationConnectionRepository) GetActiveByWorkspace(workspaceID uint) ([]models.IntegrationConnection, error) {
	var conns []models.IntegrationConnection
	err := r.db.Where("workspace_id = ? AND status = ?", workspaceID, models.ConnectionStatusActive).Find(&conns).Error
	return conns, err
}

// UpdateSecrets persists a refreshed token bundle and its expiry config in
// a single-row write.
func (r *integrationConnectionRepository) UpdateSecrets(id uint, secretsCiphertext, configJSON string) error {
	return r.db.Model(&models.IntegrationConnection{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"secrets_ciphertext": secretsCiphertext,
			"config_json":        configJSON,
		}).Error
}

// RecordError increments the health counters. Status stays untouched;
// pausing on repeated failure is a caller policy.
func (r *integrationConnectionRepository) RecordError(id uint, message string) error {
	now := time.Now()
	return r.db.Model(&models.IntegrationConnection{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"last_error":    message,
			"last_error_at": now,
			"error_count":   gorm.Expr("error_count + 1"),
		}).Error
}

func (r *integrationConnectionRepository) RecordSuccess(id uint) error {
	return r.db.Model(&models.IntegrationConnection{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"last_error":    "",
			"last_error_at": nil,
			"error_count":   0,
		}).Error
}

func (r *integrationConnectionRepository) SetStatus(id uint, status string) error {
	return r.db.Model(&models.IntegrationConnection{}).
		Where("id = ?", id).
		Update("status", status).Error
}

// Delete removes the connection row. Deleting a missing row is a no-op
// success, which makes disconnect idempotent.
func (r *integrationConnectionRepository) Delete(workspaceID uint, integrationType string) error {
	return r.db.Where("workspace_id = ? AND type = ?", workspaceID, integrationType).
		Delete(&models.IntegrationConnection{}).Error
}

// eventMappingRepository implements EventMappingRepository
type eventMappingRepository struct {
	db *gorm.DB
}

// NewEventMappingRepository creates a new event mapping repository instance
func NewEventMappingRepository(db *gorm.DB) EventMappingRepository {
	return &eventMappingRepository{db: db}
}

func (r *eventMappingRepository) GetEnabled(connectionID uint, eventType string) ([]models.EventMapping, error) {
	var mappings []models.EventMapping
	err := r.db.Where("connection_id = ? AND event_type = ? AND enabled = ?", connectionID, eventType, true).
		Find(&mappings).Error
	return mappings, err
}

func (r *eventMappingRepository) ListByConnection(connectionID uint) ([]models.EventMapping, error) {
	var mappings []models.EventMapping
	err := r.db.Where("connection_id = ?", connectionID).Find(&mappings).Error
	return mappings, err
}

// Set upserts on the (connection_id, event_type, action_type) unique key.
func (r *eventMappingRepository) Set(mapping *models.EventMapping) error {
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "connection_id"}, {Name: "event_type"}, {Name: "action_type"}},
		DoUpdates: clause.AssignmentColumns([]string{"enabled", "updated_at"}),
	}).Create(mapping).Error
}

func (r *eventMappingRepository) DeleteByConnection(connectionID uint) error {
	return r.db.Where("connection_id = ?", connectionID).Delete(&models.EventMapping{}).Error
}

// linkedRecordRepository implements LinkedRecordRepository
type linkedRecordRepository struct {
	db *gorm.DB
}

// NewLinkedRecordRepository creates a new linked record repository instance
func NewLinkedRecordRepository(db *gorm.DB) LinkedRecordRepository {
	return &linkedRecordRepository{db: db}
}

func (r *linkedRecordRepository) GetByID(id uint) (*models.LinkedExternalRecord, error) {
	var link models.LinkedExternalRecord
	if err := r.db.First(&link, id).Error; err != nil {
		return nil, err
	}
	return &link, nil
}

func (r *linkedRecordRepository) GetActiveByPost(postID uint) ([]models.LinkedExternalRecord, error) {
	var links []models.LinkedExternalRecord
	err := r.db.Where("post_id = ? AND status = ?", postID, models.LinkStatusActive).Find(&links).Error
	return links, err
}

// CreateOrUpdate upserts on the (post_id, connection_id, external_id) key so
// redelivery of the same event enriches rather than duplicates.
func (r *linkedRecordRepository) CreateOrUpdate(link *models.LinkedExternalRecord) error {
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "post_id"}, {Name: "connection_id"}, {Name: "external_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"external_url", "status", "updated_at"}),
	}).Create(link).Error
}

func (r *linkedRecordRepository) UpdateStatus(id uint, status, lastError string) error {
	return r.db.Model(&models.LinkedExternalRecord{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":     status,
			"last_error": lastError,
		}).Error
}
