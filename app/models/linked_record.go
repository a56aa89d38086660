package models

import "time"

const (
	LinkStatusActive   = "active"
	LinkStatusArchived = "archived"
	LinkStatusClosed   = "closed" // provider-specific terminal state (e.g. Jira "Done")
	LinkStatusError    = "error"
)

// LinkedExternalRecord ties one feedback post to one record inside one
// integration (a Slack message, a Jira issue, a Zendesk ticket, ...).
// Created by successful hook delivery, archived by the cascade
// orchestrator when the post is deleted.
type LinkedExternalRecord struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	PostID          uint      `gorm:"index:idx_post_conn_external,unique" json:"post_id"`
	ConnectionID    uint      `gorm:"index:idx_post_conn_external,unique" json:"connection_id"`
	IntegrationType string    `gorm:"type:varchar(50)" json:"integration_type"`
	ExternalID      string    `gorm:"index:idx_post_conn_external,unique;type:varchar(191)" json:"external_id"`
	ExternalURL     string    `gorm:"type:varchar(512)" json:"external_url"`
	Status          string    `gorm:"type:varchar(30);default:'active'" json:"status"`
	LastError       string    `gorm:"type:text" json:"last_error,omitempty"`
	CreatedAt       time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
