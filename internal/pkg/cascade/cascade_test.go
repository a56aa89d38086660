package cascade

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
	conns map[uint]models.IntegrationConnection
}

func (f *fakeConnRepo) Upsert(conn *models.IntegrationConnection) error { return nil }

func (f *fakeConnRepo) GetByID(id uint) (*models.IntegrationConnection, error) {
	if c, ok := f.conns[id]; ok {
		return &c, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeConnRepo) GetByWorkspaceAndType(workspaceID uint, integrationType string) (*models.IntegrationConnection, error) {
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeConnRepo) GetActiveByWorkspace(workspaceID uint) ([]models.IntegrationConnection, error) {
	return nil, nil
}

func (f *fakeConnRepo) UpdateSecrets(id uint, secretsCiphertext, configJSON string) error { return nil }
func (f *fakeConnRepo) RecordError(id uint, message string) error { return nil }
func (f *fakeConnRepo) RecordSuccess(id uint) error { return nil }
func (f *fakeConnRepo) SetStatus(id uint, status string) error { return nil }
func (f *fakeConnRepo) Delete(workspaceID uint, integrationType string) error { return nil }

type statusChange struct {
	status    string
	lastError string
}

type fakeLinkRepo struct {
	mu      sync.Mutex
	links   map[uint]models.LinkedExternalRecord
	changes map[uint]statusChange
}

func newFakeLinkRepo(links ...models.LinkedExternalRecord) *fakeLinkRepo {
	f := &fakeLinkRepo{
		links:   make(map[uint]models.LinkedExternalRecord),
		changes: make(map[uint]statusChange),
	}
	for _, l := range links {
		f.links[l.ID] = l
	}
	return f
}

func (f *fakeLinkRepo) GetByID(id uint) (*models.LinkedExternalRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if l, ok := f.links[id]; ok {
		return &l, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeLinkRepo) GetActiveByPost(postID uint) ([]models.LinkedExternalRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.LinkedExternalRecord
	for _, l := range f.links {
		if l.PostID == postID && l.Status == models.LinkStatusActive {
			out = append(out, l)
		}
	}
	return out, nil
}

func (f *fakeLinkRepo) CreateOrUpdate(link *models.LinkedExternalRecord) error { return nil }

func (f *fakeLinkRepo) UpdateStatus(id uint, status, lastError string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	l := f.links[id]
	l.Status = status
	f.links[id] = l
	f.changes[id] = statusChange{status: status, lastError: lastError}
	return nil
}

type fakeTokenSource struct{}

func (fakeTokenSource) FreshAccessToken(ctx context.Context, conn *models.IntegrationConnection) (string, error) {
	return "fresh-token", nil
}

type stubHandler struct {
	integrationType string
	archive         func(externalID string) hooks.Result
}

func (s *stubHandler) Type() string { return s.integrationType }

func (s *stubHandler) Run(ctx context.Context, event hooks.Event, target hooks.Target) hooks.Result {
	return hooks.Success()
}

func (s *stubHandler) Archive(ctx context.Context, target hooks.Target, externalID string) hooks.Result {
	if s.archive == nil {
		return hooks.Archived(models.LinkStatusArchived)
	}
	return s.archive(externalID)
}

func (s *stubHandler) TestConnection(ctx context.Context, target hooks.Target) error { return nil }

func connWithPolicy(id uint, integrationType, policy string) models.IntegrationConnection {
	conn := models.IntegrationConnection{
		ID:          id,
		WorkspaceID: 1,
		Type:        integrationType,
		Status:      models.ConnectionStatusActive,
	}
	if policy != "" {
		_ = conn.SetConfig(map[string]any{models.ConfigKeyCascadePolicy: policy})
	}
	return conn
}

func activeLink(id, postID, connID uint, integrationType, externalID string) models.LinkedExternalRecord {
	return models.LinkedExternalRecord{
		ID:              id,
		PostID:          postID,
		ConnectionID:    connID,
		IntegrationType: integrationType,
		ExternalID:      externalID,
		Status:          models.LinkStatusActive,
	}
}

func TestLinkedRecordsSuggestsFromPolicy(t *testing.T) {
	conns := &fakeConnRepo{conns: map[uint]models.IntegrationConnection{
		1: connWithPolicy(1, models.IntegrationJira, models.CascadePolicyArchive),
		2: connWithPolicy(2, models.IntegrationSlack, models.CascadePolicyNothing),
	}}
	links := newFakeLinkRepo(
		activeLink(10, 42, 1, models.IntegrationJira, "PROJ-7"),
		activeLink(11, 42, 2, models.IntegrationSlack, "C123"),
	)

	o := NewOrchestrator(conns, links, fakeTokenSource{}, hooks.NewRegistry())
	views, err := o.LinkedRecords(1, 42)
	require.NoError(t, err)
	require.Len(t, views, 2)

	byLink := map[uint]LinkView{}
	for _, v := range views {
		byLink[v.LinkID] = v
	}
	assert.True(t, byLink[10].Suggested)
	assert.False(t, byLink[11].Suggested)
	assert.Equal(t, models.ConnectionStatusActive, byLink[10].ConnectionStatus)
	assert.Equal(t, "PROJ-7", byLink[10].ExternalID)
}

func TestExecutePartialFailure(t *testing.T) {
	conns := &fakeConnRepo{conns: map[uint]models.IntegrationConnection{
		1: connWithPolicy(1, models.IntegrationJira, models.CascadePolicyArchive),
		2: connWithPolicy(2, models.IntegrationSlack, models.CascadePolicyArchive),
	}}
	links := newFakeLinkRepo(
		activeLink(10, 42, 1, models.IntegrationJira, "PROJ-7"),
		activeLink(11, 42, 2, models.IntegrationSlack, "C123"),
	)

	registry := hooks.NewRegistry()
	registry.Register(&stubHandler{
		integrationType: models.IntegrationJira,
		archive: func(externalID string) hooks.Result {
			return hooks.Archived(models.LinkStatusClosed)
		},
	})
	registry.Register(&stubHandler{
		integrationType: models.IntegrationSlack,
		archive: func(externalID string) hooks.Result {
			return hooks.Failure(errors.New("slack: post closing note: connection reset"), true)
		},
	})

	o := NewOrchestrator(conns, links, fakeTokenSource{}, registry)
	results := o.Execute(context.Background(), 1, []Choice{
		{LinkID: 10, ShouldArchive: true},
		{LinkID: 11, ShouldArchive: true},
	})
	require.Len(t, results, 2)

	assert.True(t, results[0].Success)
	assert.Equal(t, models.LinkStatusClosed, results[0].Status)

	assert.False(t, results[1].Success)
	assert.Equal(t, models.LinkStatusError, results[1].Status)
	assert.Contains(t, results[1].Error, "connection reset")

	// Each link settled on its own; the failed one keeps the reason.
	assert.Equal(t, models.LinkStatusClosed, links.changes[10].status)
	assert.Equal(t, models.LinkStatusError, links.changes[11].status)
	assert.Contains(t, links.changes[11].lastError, "connection reset")
}

func TestExecuteRespectsExplicitChoice(t *testing.T) {
	conns := &fakeConnRepo{conns: map[uint]models.IntegrationConnection{
		1: connWithPolicy(1, models.IntegrationJira, models.CascadePolicyArchive),
	}}
	links := newFakeLinkRepo(activeLink(10, 42, 1, models.IntegrationJira, "PROJ-7"))

	called := false
	registry := hooks.NewRegistry()
	registry.Register(&stubHandler{
		integrationType: models.IntegrationJira,
		archive: func(externalID string) hooks.Result {
			called = true
			return hooks.Archived(models.LinkStatusClosed)
		},
	})

	o := NewOrchestrator(conns, links, fakeTokenSource{}, registry)
	results := o.Execute(context.Background(), 1, []Choice{{LinkID: 10, ShouldArchive: false}})

	assert.Empty(t, results)
	assert.False(t, called, "a declined link must never reach the provider")
	assert.Equal(t, models.LinkStatusActive, links.links[10].Status)
}

func TestExecuteAlreadySettledLinkIsIdempotent(t *testing.T) {
	settled := activeLink(10, 42, 1, models.IntegrationJira, "PROJ-7")
	settled.Status = models.LinkStatusClosed

	conns := &fakeConnRepo{conns: map[uint]models.IntegrationConnection{
		1: connWithPolicy(1, models.IntegrationJira, models.CascadePolicyArchive),
	}}
	links := newFakeLinkRepo(settled)

	called := false
	registry := hooks.NewRegistry()
	registry.Register(&stubHandler{
		integrationType: models.IntegrationJira,
		archive: func(externalID string) hooks.Result {
			called = true
			return hooks.Archived(models.LinkStatusClosed)
		},
	})

	o := NewOrchestrator(conns, links, fakeTokenSource{}, registry)
	results := o.Execute(context.Background(), 1, []Choice{{LinkID: 10, ShouldArchive: true}})

	require.Len(t, results, 1)
	assert.True(t, results[0].Success)
	assert.Equal(t, models.LinkStatusClosed, results[0].Status)
	assert.False(t, called)
}

func TestExecuteMissingHandlerMarksLinkErrored(t *testing.T) {
	conns := &fakeConnRepo{conns: map[uint]models.IntegrationConnection{
		1: connWithPolicy(1, models.IntegrationJira, models.CascadePolicyArchive),
	}}
	links := newFakeLinkRepo(activeLink(10, 42, 1, models.IntegrationJira, "PROJ-7"))

	o := NewOrchestrator(conns, links, fakeTokenSource{}, hooks.NewRegistry())
	results := o.Execute(context.Background(), 1, []Choice{{LinkID: 10, ShouldArchive: true}})

	require.Len(t, results, 1)
	assert.False(t, results[0].Success)
	assert.Equal(t, models.LinkStatusError, links.changes[10].status)
}

func TestCascadeIsScopedToCallerWorkspace(t *testing.T) {
	foreign := connWithPolicy(99, models.IntegrationJira, models.CascadePolicyArchive)
	foreign.WorkspaceID = 2

	conns := &fakeConnRepo{conns: map[uint]models.IntegrationConnection{
		1:  connWithPolicy(1, models.IntegrationSlack, models.CascadePolicyArchive),
		99: foreign,
	}}
	links := newFakeLinkRepo(
		activeLink(10, 42, 1, models.IntegrationSlack, "C123"),
		activeLink(11, 42, 99, models.IntegrationJira, "PROJ-7"),
	)

	called := false
	registry := hooks.NewRegistry()
	registry.Register(&stubHandler{
		integrationType: models.IntegrationJira,
		archive: func(externalID string) hooks.Result {
			called = true
			return hooks.Archived(models.LinkStatusClosed)
		},
	})

	o := NewOrchestrator(conns, links, fakeTokenSource{}, registry)

	// Query phase: the other workspace's link is invisible.
	views, err := o.LinkedRecords(1, 42)
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, uint(10), views[0].LinkID)

	// Execute phase: guessing the foreign link id looks like a missing
	// link, and its row is left untouched.
	results := o.Execute(context.Background(), 1, []Choice{{LinkID: 11, ShouldArchive: true}})
	require.Len(t, results, 1)
	assert.False(t, results[0].Success)
	assert.Equal(t, "link not found", results[0].Error)
	assert.False(t, called, "the foreign workspace's handler must never run")
	assert.Empty(t, links.changes)
	assert.Equal(t, models.LinkStatusActive, links.links[11].Status)
}
