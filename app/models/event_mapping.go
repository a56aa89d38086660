package models

import "time"

// Domain event types delivered to integrations.
const (
	EventPostCreated       = "post.created"
	EventPostStatusChanged = "post.status_changed"
	EventPostDeleted       = "post.deleted"
)

// Action types a mapping can bind an event to.
const (
	ActionCreateRecord = "create_record"
	ActionPostMessage  = "post_message"
)

// EventMapping governs whether the dispatcher calls a connection's handler
// for a given (event type, action type) pair. Unique per connection, event
// and action.
type EventMapping struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	ConnectionID uint      `gorm:"index:idx_conn_event_action,unique" json:"connection_id"`
	EventType    string    `gorm:"index:idx_conn_event_action,unique;type:varchar(100)" json:"event_type"`
	ActionType   string    `gorm:"index:idx_conn_event_action,unique;type:varchar(100)" json:"action_type"`
	Enabled      bool      `gorm:"default:true" json:"enabled"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
