package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/echoboardhq/echoboard/app/models"
	"github.com/echoboardhq/echoboard/internal/pkg/hooks"
)

type fakeConnRepo struct {
	conns []models.IntegrationConnection
}

func (f *fakeConnRepo) Upsert(conn *models.IntegrationConnection) error { return nil }

func (f *fakeConnRepo) GetByID(id uint) (*models.IntegrationConnection, error) {
	for i := range f.conns {
		if f.conns[i].ID == id {
			c := f.conns[i]
			return &c, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeConnRepo) GetByWorkspaceAndType(workspaceID uint, integrationType string) (*models.IntegrationConnection, error) {
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeConnRepo) GetActiveByWorkspace(workspaceID uint) ([]models.IntegrationConnection, error) {
	var out []models.IntegrationConnection
	for _, c := range f.conns {
		if c.WorkspaceID == workspaceID && c.Status == models.ConnectionStatusActive {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeConnRepo) UpdateSecrets(id uint, secretsCiphertext, configJSON string) error { return nil }
func (f *fakeConnRepo) RecordError(id uint, message string) error { return nil }
func (f *fakeConnRepo) RecordSuccess(id uint) error { return nil }
func (f *fakeConnRepo) SetStatus(id uint, status string) error { return nil }
func (f *fakeConnRepo) Delete(workspaceID uint, integrationType string) error { return nil }

type fakeMappingRepo struct {
	mappings []models.EventMapping
}

func (f *fakeMappingRepo) GetEnabled(connectionID uint, eventType string) ([]models.EventMapping, error) {
	var out []models.EventMapping
	for _, m := range f.mappings {
		if m.ConnectionID == connectionID && m.EventType == eventType && m.Enabled {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeMappingRepo) ListByConnection(connectionID uint) ([]models.EventMapping, error) {
	return nil, nil
}
func (f *fakeMappingRepo) Set(mapping *models.EventMapping) error { return nil }
func (f *fakeMappingRepo) DeleteByConnection(connectionID uint) error { return nil }

type fakeLinkRepo struct {
	mu    sync.Mutex
	links []models.LinkedExternalRecord
}

func (f *fakeLinkRepo) GetByID(id uint) (*models.LinkedExternalRecord, error) {
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeLinkRepo) GetActiveByPost(postID uint) ([]models.LinkedExternalRecord, error) {
	return nil, nil
}

func (f *fakeLinkRepo) CreateOrUpdate(link *models.LinkedExternalRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.links = append(f.links, *link)
	return nil
}

func (f *fakeLinkRepo) UpdateStatus(id uint, status, lastError string) error { return nil }

type fakeSource struct {
	mu        sync.Mutex
	successes map[uint]int
	errors    map[uint][]string
	tokenErr  error
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		successes: make(map[uint]int),
		errors:    make(map[uint][]string),
	}
}

func (f *fakeSource) FreshAccessToken(ctx context.Context, conn *models.IntegrationConnection) (string, error) {
	if f.tokenErr != nil {
		return "", f.tokenErr
	}
	return "fresh-token", nil
}

func (f *fakeSource) RecordDeliveryError(conn *models.IntegrationConnection, deliveryErr error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errors[conn.ID] = append(f.errors[conn.ID], deliveryErr.Error())
	return nil
}

func (f *fakeSource) RecordDeliverySuccess(conn *models.IntegrationConnection) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.successes[conn.ID]++
	return nil
}

// stubHandler lets each test script one integration type's behavior.
type stubHandler struct {
	integrationType string
	run             func(event hooks.Event, target hooks.Target) hooks.Result
	calls           int
	mu              sync.Mutex
}

func (s *stubHandler) Type() string { return s.integrationType }

func (s *stubHandler) Run(ctx context.Context, event hooks.Event, target hooks.Target) hooks.Result {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.run == nil {
		return hooks.Success()
	}
	return s.run(event, target)
}

func (s *stubHandler) Archive(ctx context.Context, target hooks.Target, externalID string) hooks.Result {
	return hooks.Archived(models.LinkStatusArchived)
}

func (s *stubHandler) TestConnection(ctx context.Context, target hooks.Target) error { return nil }

func activeConn(id uint, integrationType string) models.IntegrationConnection {
	return models.IntegrationConnection{
		ID:          id,
		WorkspaceID: 1,
		Type:        integrationType,
		Status:      models.ConnectionStatusActive,
	}
}

func enabledMapping(connID uint, eventType string) models.EventMapping {
	return models.EventMapping{
		ConnectionID: connID,
		EventType:    eventType,
		ActionType:   models.ActionCreateRecord,
		Enabled:      true,
	}
}

func TestDispatchIsolationUnderPartialFailure(t *testing.T) {
	conns := &fakeConnRepo{conns: []models.IntegrationConnection{
		activeConn(1, models.IntegrationSlack),
		activeConn(2, models.IntegrationJira),
		activeConn(3, models.IntegrationTeams),
	}}
	mappings := &fakeMappingRepo{mappings: []models.EventMapping{
		enabledMapping(1, models.EventPostCreated),
		enabledMapping(2, models.EventPostCreated),
		enabledMapping(3, models.EventPostCreated),
	}}
	links := &fakeLinkRepo{}
	source := newFakeSource()

	registry := hooks.NewRegistry()
	registry.Register(&stubHandler{integrationType: models.IntegrationSlack})
	registry.Register(&stubHandler{
		integrationType: models.IntegrationJira,
		run: func(event hooks.Event, target hooks.Target) hooks.Result {
			panic("jira handler blew up")
		},
	})
	registry.Register(&stubHandler{integrationType: models.IntegrationTeams})

	d := NewDispatcher(conns, mappings, links, source, registry)

	// Must not panic through to the event producer.
	d.Dispatch(context.Background(), 1, hooks.Event{Type: models.EventPostCreated, Data: map[string]any{}})

	assert.Equal(t, 1, source.successes[1])
	assert.Equal(t, 1, source.successes[3])
	assert.Empty(t, source.errors[1])
	assert.Empty(t, source.errors[3])
	require.Len(t, source.errors[2], 1)
	assert.Contains(t, source.errors[2][0], "panic")
}

func TestDispatchPersistsLinkedRecord(t *testing.T) {
	conns := &fakeConnRepo{conns: []models.IntegrationConnection{activeConn(1, models.IntegrationSlack)}}
	mappings := &fakeMappingRepo{mappings: []models.EventMapping{enabledMapping(1, models.EventPostCreated)}}
	links := &fakeLinkRepo{}
	source := newFakeSource()

	registry := hooks.NewRegistry()
	registry.Register(&stubHandler{
		integrationType: models.IntegrationSlack,
		run: func(event hooks.Event, target hooks.Target) hooks.Result {
			return hooks.SuccessWithRecord("C123", "https://slack.com/archives/C123/p1")
		},
	})

	d := NewDispatcher(conns, mappings, links, source, registry)
	d.Dispatch(context.Background(), 1, hooks.Event{
		Type: models.EventPostCreated,
		Data: map[string]any{"post_id": float64(42), "title": "Dark mode"},
	})

	require.Len(t, links.links, 1)
	link := links.links[0]
	assert.Equal(t, uint(42), link.PostID)
	assert.Equal(t, models.IntegrationSlack, link.IntegrationType)
	assert.Equal(t, "C123", link.ExternalID)
	assert.Equal(t, models.LinkStatusActive, link.Status)

	// Healthy delivery: success recorded, no errors.
	assert.Equal(t, 1, source.successes[1])
	assert.Empty(t, source.errors[1])
}

func TestDispatchSkipsDisabledMappingsAndPausedConnections(t *testing.T) {
	paused := activeConn(2, models.IntegrationJira)
	paused.Status = models.ConnectionStatusPaused

	conns := &fakeConnRepo{conns: []models.IntegrationConnection{
		activeConn(1, models.IntegrationSlack),
		paused,
	}}
	disabled := enabledMapping(1, models.EventPostCreated)
	disabled.Enabled = false
	mappings := &fakeMappingRepo{mappings: []models.EventMapping{
		disabled,
		enabledMapping(2, models.EventPostCreated),
	}}
	source := newFakeSource()

	slack := &stubHandler{integrationType: models.IntegrationSlack}
	jira := &stubHandler{integrationType: models.IntegrationJira}
	registry := hooks.NewRegistry()
	registry.Register(slack)
	registry.Register(jira)

	d := NewDispatcher(conns, mappings, &fakeLinkRepo{}, source, registry)
	d.Dispatch(context.Background(), 1, hooks.Event{Type: models.EventPostCreated, Data: map[string]any{}})

	assert.Zero(t, slack.calls, "disabled mapping must not invoke the handler")
	assert.Zero(t, jira.calls, "paused connection must not be resolved")
}

func TestDispatchTerminalFailureRecordsError(t *testing.T) {
	conns := &fakeConnRepo{conns: []models.IntegrationConnection{activeConn(1, models.IntegrationSlack)}}
	mappings := &fakeMappingRepo{mappings: []models.EventMapping{enabledMapping(1, models.EventPostCreated)}}
	source := newFakeSource()

	registry := hooks.NewRegistry()
	registry.Register(&stubHandler{
		integrationType: models.IntegrationSlack,
		run: func(event hooks.Event, target hooks.Target) hooks.Result {
			return hooks.Failure(errors.New("slack: unexpected status 401"), false)
		},
	})

	d := NewDispatcher(conns, mappings, &fakeLinkRepo{}, source, registry)
	d.Dispatch(context.Background(), 1, hooks.Event{Type: models.EventPostCreated, Data: map[string]any{}})

	require.Len(t, source.errors[1], 1)
	assert.Contains(t, source.errors[1][0], "401")
	assert.Zero(t, source.successes[1])
}

func TestDispatchTokenFailureRecordsError(t *testing.T) {
	conns := &fakeConnRepo{conns: []models.IntegrationConnection{activeConn(1, models.IntegrationSlack)}}
	mappings := &fakeMappingRepo{mappings: []models.EventMapping{enabledMapping(1, models.EventPostCreated)}}
	source := newFakeSource()
	source.tokenErr = errors.New("connections: refresh slack token: oauth2: cannot fetch token")

	slack := &stubHandler{integrationType: models.IntegrationSlack}
	registry := hooks.NewRegistry()
	registry.Register(slack)

	d := NewDispatcher(conns, mappings, &fakeLinkRepo{}, source, registry)
	d.Dispatch(context.Background(), 1, hooks.Event{Type: models.EventPostCreated, Data: map[string]any{}})

	assert.Zero(t, slack.calls, "handler must not run without a token")
	require.Len(t, source.errors[1], 1)
}
