package connections

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"

	"github.com/echoboardhq/echoboard/app/models"
	"github.com/echoboardhq/echoboard/app/repository"
	"github.com/echoboardhq/echoboard/internal/pkg/secretbox"
)

// RefreshBuffer is how long before expiry a token is already treated as
// stale, so deliveries never run into mid-call expiry.
const RefreshBuffer = 5 * time.Minute

var ErrNotConnected = errors.New("connections: integration not connected")

// AppConfigSource resolves an integration type to its OAuth app config.
type AppConfigSource interface {
	Config(integrationType string) (*oauth2.Config, error)
}

type secretBundle struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

// Store owns the persistence-facing lifecycle of integration connections:
// upsert-on-connect, refresh-on-demand token freshness, health bookkeeping
// and idempotent disconnect.
type Store struct {
	conns    repository.IntegrationConnectionRepository
	mappings repository.EventMappingRepository
	users    repository.UserRepository
	box      *secretbox.Box
	apps     AppConfigSource

	// refresh serializes token refresh per connection so two concurrent
	// deliveries cannot race the provider's refresh-token rotation.
	refresh singleflight.Group
	now     func() time.Time
}

func NewStore(
	conns repository.IntegrationConnectionRepository,
	mappings repository.EventMappingRepository,
	users repository.UserRepository,
	box *secretbox.Box,
	apps AppConfigSource,
) *Store {
	return &Store{
		conns:    conns,
		mappings: mappings,
		users:    users,
		box:      box,
		apps:     apps,
		now:      time.Now,
	}
}

// SaveParams carries everything a successful OAuth code exchange produced.
type SaveParams struct {
	WorkspaceID      uint
	Type             string
	ConnectedByID    uint
	AccessToken      string
	RefreshToken     string
	ExpiresIn        int64
	ExternalTeamID   string
	ExternalTeamName string
	Config           map[string]any
}

// SaveConnection encrypts the token bundle and upserts the connection row.
// A fresh connect or reconnect is assumed healthy: error counters reset.
// On first connection a service user is provisioned so later external
// actions are attributed to the integration, not the connecting human.
func (s *Store) SaveConnection(p SaveParams) (*models.IntegrationConnection, error) {
	if p.AccessToken == "" {
		return nil, fmt.Errorf("connections: save %s: empty access token", p.Type)
	}

	ciphertext, err := s.encryptBundle(secretBundle{
		AccessToken:  p.AccessToken,
		RefreshToken: p.RefreshToken,
	})
	if err != nil {
		return nil, err
	}

	cfg := map[string]any{}
	for k, v := range p.Config {
		cfg[k] = v
	}
	if p.ExpiresIn > 0 {
		expiry := s.now().Add(time.Duration(p.ExpiresIn) * time.Second)
		cfg[models.ConfigKeyTokenExpiresAt] = expiry.UTC().Format(time.RFC3339)
	}

	serviceUserID, err := s.serviceUserID(p.WorkspaceID, p.Type)
	if err != nil {
		return nil, err
	}

	conn := &models.IntegrationConnection{
		WorkspaceID:       p.WorkspaceID,
		Type:              p.Type,
		Status:            models.ConnectionStatusActive,
		SecretsCiphertext: ciphertext,
		ExternalTeamID:    p.ExternalTeamID,
		ExternalTeamName:  p.ExternalTeamName,
		ConnectedByID:     p.ConnectedByID,
		ServiceUserID:     serviceUserID,
	}
	if err := conn.SetConfig(cfg); err != nil {
		return nil, fmt.Errorf("connections: encode config: %w", err)
	}
	if err := conn.Validate(); err != nil {
		return nil, fmt.Errorf("connections: invalid connection: %w", err)
	}
	if err := s.conns.Upsert(conn); err != nil {
		return nil, fmt.Errorf("connections: upsert %s: %w", p.Type, err)
	}

	// Re-read so callers get the canonical row id after an on-conflict
	// update.
	return s.conns.GetByWorkspaceAndType(p.WorkspaceID, p.Type)
}

// serviceUserID reuses the existing service identity on reconnect and
// provisions one on first connect.
func (s *Store) serviceUserID(workspaceID uint, integrationType string) (uint, error) {
	existing, err := s.conns.GetByWorkspaceAndType(workspaceID, integrationType)
	if err == nil && existing.ServiceUserID != 0 {
		return existing.ServiceUserID, nil
	}
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, fmt.Errorf("connections: lookup existing connection: %w", err)
	}

	svc := models.NewServiceUser(workspaceID, integrationType)
	if err := s.users.Create(svc); err != nil {
		// A leftover service user from a previous connect cycle.
		if found, lookupErr := s.users.GetByEmail(svc.Email); lookupErr == nil {
			return found.ID, nil
		}
		return 0, fmt.Errorf("connections: provision service user: %w", err)
	}
	return svc.ID, nil
}

// FreshAccessToken returns a decrypted access token guaranteed fresh for at
// least RefreshBuffer. It may refresh and persist a new token pair, so
// callers must treat it as a read with side effects. Refresh is
// single-flighted per connection.
func (s *Store) FreshAccessToken(ctx context.Context, conn *models.IntegrationConnection) (string, error) {
	bundle, err := s.decryptBundle(conn.SecretsCiphertext)
	if err != nil {
		return "", err
	}

	expiry, hasExpiry := conn.TokenExpiresAt()
	if bundle.RefreshToken == "" || !hasExpiry || s.now().Before(expiry.Add(-RefreshBuffer)) {
		return bundle.AccessToken, nil
	}

	token, err, _ := s.refresh.Do(strconv.FormatUint(uint64(conn.ID), 10), func() (any, error) {
		return s.refreshLocked(ctx, conn)
	})
	if err != nil {
		return "", err
	}
	return token.(string), nil
}

func (s *Store) refreshLocked(ctx context.Context, conn *models.IntegrationConnection) (string, error) {
	// Re-read: a concurrent flight that just finished already rotated the
	// stored bundle.
	current, err := s.conns.GetByID(conn.ID)
	if err != nil {
		return "", fmt.Errorf("connections: reload before refresh: %w", err)
	}
	bundle, err := s.decryptBundle(current.SecretsCiphertext)
	if err != nil {
		return "", err
	}
	if expiry, ok := current.TokenExpiresAt(); !ok || s.now().Before(expiry.Add(-RefreshBuffer)) {
		return bundle.AccessToken, nil
	}

	cfg, err := s.apps.Config(conn.Type)
	if err != nil {
		return "", err
	}
	newTok, err := cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: bundle.RefreshToken}).Token()
	if err != nil {
		return "", fmt.Errorf("connections: refresh %s token: %w", conn.Type, err)
	}

	rotated := secretBundle{
		AccessToken:  newTok.AccessToken,
		RefreshToken: newTok.RefreshToken,
	}
	if rotated.RefreshToken == "" {
		// Providers that don't rotate keep the old refresh token valid.
		rotated.RefreshToken = bundle.RefreshToken
	}
	ciphertext, err := s.encryptBundle(rotated)
	if err != nil {
		return "", err
	}

	cfgMap, err := current.Config()
	if err != nil {
		return "", fmt.Errorf("connections: decode config: %w", err)
	}
	if !newTok.Expiry.IsZero() {
		cfgMap[models.ConfigKeyTokenExpiresAt] = newTok.Expiry.UTC().Format(time.RFC3339)
	} else {
		delete(cfgMap, models.ConfigKeyTokenExpiresAt)
	}
	if err := current.SetConfig(cfgMap); err != nil {
		return "", err
	}
	if err := s.conns.UpdateSecrets(conn.ID, ciphertext, current.ConfigJSON); err != nil {
		return "", fmt.Errorf("connections: persist refreshed token: %w", err)
	}

	// Keep the caller's copy coherent with what was just persisted.
	conn.SecretsCiphertext = ciphertext
	conn.ConfigJSON = current.ConfigJSON

	log.Infof("[Connections] refreshed %s token for connection %d", conn.Type, conn.ID)
	return newTok.AccessToken, nil
}

// Connection resolves the workspace's connection for an integration type,
// returning ErrNotConnected when there is none.
func (s *Store) Connection(workspaceID uint, integrationType string) (*models.IntegrationConnection, error) {
	conn, err := s.conns.GetByWorkspaceAndType(workspaceID, integrationType)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotConnected, integrationType)
	}
	if err != nil {
		return nil, fmt.Errorf("connections: lookup %s: %w", integrationType, err)
	}
	return conn, nil
}

// RecordDeliveryError bumps health counters; status is left alone because
// pausing on repeated failure is a caller policy, not store behavior.
func (s *Store) RecordDeliveryError(conn *models.IntegrationConnection, deliveryErr error) error {
	return s.conns.RecordError(conn.ID, deliveryErr.Error())
}

func (s *Store) RecordDeliverySuccess(conn *models.IntegrationConnection) error {
	return s.conns.RecordSuccess(conn.ID)
}

// Disconnect removes the connection and its mappings. Disconnecting an
// already-disconnected integration is a no-op success.
func (s *Store) Disconnect(workspaceID uint, integrationType string) error {
	conn, err := s.conns.GetByWorkspaceAndType(workspaceID, integrationType)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("connections: disconnect lookup: %w", err)
	}
	if err := s.mappings.DeleteByConnection(conn.ID); err != nil {
		return fmt.Errorf("connections: delete mappings: %w", err)
	}
	return s.conns.Delete(workspaceID, integrationType)
}

// Pause and Resume flip the lifecycle status without touching secrets.
func (s *Store) Pause(conn *models.IntegrationConnection) error {
	return s.conns.SetStatus(conn.ID, models.ConnectionStatusPaused)
}

func (s *Store) Resume(conn *models.IntegrationConnection) error {
	return s.conns.SetStatus(conn.ID, models.ConnectionStatusActive)
}

func (s *Store) encryptBundle(bundle secretBundle) (string, error) {
	raw, err := json.Marshal(bundle)
	if err != nil {
		return "", fmt.Errorf("connections: marshal secrets: %w", err)
	}
	ciphertext, err := s.box.Encrypt(raw, secretbox.PurposeIntegrationTokens)
	if err != nil {
		return "", fmt.Errorf("connections: encrypt secrets: %w", err)
	}
	return ciphertext, nil
}

func (s *Store) decryptBundle(ciphertext string) (secretBundle, error) {
	var bundle secretBundle
	raw, err := s.box.Decrypt(ciphertext, secretbox.PurposeIntegrationTokens)
	if err != nil {
		// Corrupt or tampered secrets are an internal fault, never to be
		// masked as "not connected".
		return bundle, fmt.Errorf("connections: decrypt secrets: %w", err)
	}
	if err := json.Unmarshal(raw, &bundle); err != nil {
		return bundle, fmt.Errorf("connections: parse secrets: %w", err)
	}
	return bundle, nil
}
