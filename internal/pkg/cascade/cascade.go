package cascade

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/echoboardhq/echoboard/app/models"
	"github.com/echoboardhq/echoboard/app/repository"
	"github.com/echoboardhq/echoboard/internal/pkg/hooks"
)

// DefaultTimeout bounds the whole archive fan-out.
const DefaultTimeout = 30 * time.Second

// TokenSource yields a fresh access token for a connection.
type TokenSource interface {
	FreshAccessToken(ctx context.Context, conn *models.IntegrationConnection) (string, error)
}

// Orchestrator best-effort closes external records linked to a deleted
// post. It never gates the deletion itself: the caller deletes first,
// archives after, and a failed archive only marks its own link.
type Orchestrator struct {
	conns    repository.IntegrationConnectionRepository
	links    repository.LinkedRecordRepository
	source   TokenSource
	registry *hooks.Registry
	timeout  time.Duration
}

func NewOrchestrator(
	conns repository.IntegrationConnectionRepository,
	links repository.LinkedRecordRepository,
	source TokenSource,
	registry *hooks.Registry,
) *Orchestrator {
	return &Orchestrator{
		conns:    conns,
		links:    links,
		source:   source,
		registry: registry,
		timeout:  DefaultTimeout,
	}
}

// LinkView is one archivable link presented for the caller's choice.
// Suggested mirrors the connection's cascade_policy default; it only
// pre-selects, it never executes by itself.
type LinkView struct {
	LinkID           uint   `json:"link_id"`
	ConnectionID     uint   `json:"connection_id"`
	IntegrationType  string `json:"integration_type"`
	ExternalID       string `json:"external_id"`
	ExternalURL      string `json:"external_url"`
	ConnectionStatus string `json:"connection_status"`
	Suggested        bool   `json:"suggested"`
}

// Choice is the caller's explicit per-link decision.
type Choice struct {
	LinkID        uint `json:"link_id" validate:"required"`
	ShouldArchive bool `json:"should_archive"`
}

// Result is the per-link outcome returned to the caller. Failures are
// retained here, never silently dropped.
type Result struct {
	LinkID          uint   `json:"link_id"`
	IntegrationType string `json:"integration_type"`
	Success         bool   `json:"success"`
	Status          string `json:"status"`
	Error           string `json:"error,omitempty"`
}

// LinkedRecords is the query phase: all active links of the post joined
// with their connection's status and archive-policy default. Links whose
// connection belongs to another workspace (or is gone) are invisible to the
// caller.
func (o *Orchestrator) LinkedRecords(workspaceID, postID uint) ([]LinkView, error) {
	links, err := o.links.GetActiveByPost(postID)
	if err != nil {
		return nil, fmt.Errorf("cascade: load links for post %d: %w", postID, err)
	}

	views := make([]LinkView, 0, len(links))
	for _, link := range links {
		conn, err := o.conns.GetByID(link.ConnectionID)
		if err != nil || conn.WorkspaceID != workspaceID {
			continue
		}
		views = append(views, LinkView{
			LinkID:           link.ID,
			ConnectionID:     link.ConnectionID,
			IntegrationType:  link.IntegrationType,
			ExternalID:       link.ExternalID,
			ExternalURL:      link.ExternalURL,
			ConnectionStatus: conn.Status,
			Suggested:        conn.CascadePolicy() == models.CascadePolicyArchive,
		})
	}
	return views, nil
}

// Execute is the execute phase: archive every chosen link concurrently,
// each call isolated. The returned slice has one entry per chosen link in
// choice order.
func (o *Orchestrator) Execute(ctx context.Context, workspaceID uint, choices []Choice) []Result {
	var chosen []Choice
	for _, c := range choices {
		if c.ShouldArchive {
			chosen = append(chosen, c)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	results := make([]Result, len(chosen))
	var wg sync.WaitGroup
	for i, choice := range chosen {
		wg.Add(1)
		go func(i int, choice Choice) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					log.Errorf("[Cascade] archive of link %d panicked: %v", choice.LinkID, r)
					results[i] = Result{LinkID: choice.LinkID, Success: false, Status: models.LinkStatusError, Error: fmt.Sprintf("handler panic: %v", r)}
				}
			}()
			results[i] = o.archiveOne(ctx, workspaceID, choice.LinkID)
		}(i, choice)
	}
	wg.Wait()
	return results
}

func (o *Orchestrator) archiveOne(ctx context.Context, workspaceID, linkID uint) Result {
	link, err := o.links.GetByID(linkID)
	if err != nil {
		return linkNotFound(linkID)
	}
	conn, err := o.conns.GetByID(link.ConnectionID)
	if err != nil || conn.WorkspaceID != workspaceID {
		// Another workspace's link looks exactly like a missing one, and its
		// row is never touched.
		return linkNotFound(linkID)
	}
	res := Result{LinkID: linkID, IntegrationType: link.IntegrationType}

	if link.Status != models.LinkStatusActive {
		// Already settled by an earlier run.
		res.Success = true
		res.Status = link.Status
		return res
	}

	handler, ok := o.registry.Get(link.IntegrationType)
	if !ok {
		return o.failed(res, link.ID, "no handler registered for "+link.IntegrationType)
	}

	token, err := o.source.FreshAccessToken(ctx, conn)
	if err != nil {
		return o.failed(res, link.ID, err.Error())
	}
	cfg, err := conn.Config()
	if err != nil {
		return o.failed(res, link.ID, "decode config: "+err.Error())
	}

	outcome := handler.Archive(ctx, hooks.Target{
		WorkspaceID: conn.WorkspaceID,
		AccessToken: token,
		Config:      cfg,
	}, link.ExternalID)
	if !outcome.OK {
		return o.failed(res, link.ID, outcome.Err.Error())
	}

	status := outcome.TerminalStatus
	if status == "" {
		status = models.LinkStatusArchived
	}
	if err := o.links.UpdateStatus(link.ID, status, ""); err != nil {
		log.Errorf("[Cascade] persist archived status for link %d: %v", link.ID, err)
	}
	res.Success = true
	res.Status = status
	return res
}

func linkNotFound(linkID uint) Result {
	return Result{LinkID: linkID, Success: false, Status: models.LinkStatusError, Error: "link not found"}
}

func (o *Orchestrator) failed(res Result, linkID uint, reason string) Result {
	if err := o.links.UpdateStatus(linkID, models.LinkStatusError, reason); err != nil {
		log.Errorf("[Cascade] persist error status for link %d: %v", linkID, err)
	}
	res.Success = false
	res.Status = models.LinkStatusError
	res.Error = reason
	return res
}
