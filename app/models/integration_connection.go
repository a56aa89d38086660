package models

import (
	"encoding/json"
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	ConnectionStatusActive = "active"
	ConnectionStatusPaused = "paused"
	ConnectionStatusError  = "error"
)

// Supported integration type identifiers.
const (
	IntegrationSlack      = "slack"
	IntegrationJira       = "jira"
	IntegrationTeams      = "teams"
	IntegrationSalesforce = "salesforce"
	IntegrationZendesk    = "zendesk"
	IntegrationHubspot    = "hubspot"
	IntegrationClickup    = "clickup"
)

// Config keys stored inside ConfigJSON.
const (
	ConfigKeyTokenExpiresAt = "token_expires_at" // RFC3339
	ConfigKeyCascadePolicy  = "cascade_policy"   // "archive" or "nothing"
)

const (
	CascadePolicyArchive = "archive"
	CascadePolicyNothing = "nothing"
)

// IntegrationConnection is a workspace's authorized link to one external
// integration type. Secrets are stored encrypted; the composite unique index
// on (workspace_id, type) guarantees at most one row per pair.
type IntegrationConnection struct {
	ID                uint       `gorm:"primaryKey" json:"id"`
	WorkspaceID       uint       `gorm:"index:idx_workspace_type,unique" json:"workspace_id" validate:"required"`
	Type              string     `gorm:"index:idx_workspace_type,unique;type:varchar(50)" json:"type" validate:"required,oneof=slack jira teams salesforce zendesk hubspot clickup"`
	Status            string     `gorm:"type:varchar(20);default:'active'" json:"status" validate:"oneof=active paused error"`
	SecretsCiphertext string     `gorm:"type:text" json:"-"`
	ConfigJSON        string     `gorm:"type:text" json:"-"`
	ExternalTeamID    string     `gorm:"type:varchar(191)" json:"external_team_id"`
	ExternalTeamName  string     `gorm:"type:varchar(191)" json:"external_team_name"`
	ConnectedByID     uint       `gorm:"index" json:"connected_by_id"`
	ServiceUserID     uint       `gorm:"index" json:"service_user_id"`
	LastError         string     `gorm:"type:text" json:"last_error,omitempty"`
	LastErrorAt       *time.Time `gorm:"type:timestamp;default:null" json:"last_error_at,omitempty"`
	ErrorCount        int        `gorm:"default:0" json:"error_count"`
	ConnectedAt       time.Time  `gorm:"autoCreateTime" json:"connected_at"`
	UpdatedAt         time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (c *IntegrationConnection) Validate() error {
	v := validator.New()

	return v.Struct(c)
}

// Config decodes ConfigJSON; an empty column yields an empty map.
func (c *IntegrationConnection) Config() (map[string]any, error) {
	cfg := map[string]any{}
	if c.ConfigJSON == "" {
		return cfg, nil
	}
	if err := json.Unmarshal([]byte(c.ConfigJSON), &cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *IntegrationConnection) SetConfig(cfg map[string]any) error {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	c.ConfigJSON = string(raw)
	return nil
}

// TokenExpiresAt reads the access token expiry from config. The second
// return is false when the provider issued a non-expiring token.
func (c *IntegrationConnection) TokenExpiresAt() (time.Time, bool) {
	cfg, err := c.Config()
	if err != nil {
		return time.Time{}, false
	}
	raw, ok := cfg[ConfigKeyTokenExpiresAt].(string)
	if !ok || raw == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// CascadePolicy returns the per-connection default shown in the cascade
// choice UI. It only pre-selects; execution always needs an explicit choice.
func (c *IntegrationConnection) CascadePolicy() string {
	cfg, err := c.Config()
	if err != nil {
		return CascadePolicyNothing
	}
	if policy, ok := cfg[ConfigKeyCascadePolicy].(string); ok && policy == CascadePolicyArchive {
		return CascadePolicyArchive
	}
	return CascadePolicyNothing
}
