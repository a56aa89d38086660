package dispatch

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

// DefaultTimeout bounds one whole dispatch so a single unresponsive
// provider cannot hold the task forever.
const DefaultTimeout = 30 * time.Second

// ConnectionSource is the slice of the connection store the dispatcher
// needs: fresh tokens and health bookkeeping.
type ConnectionSource interface {
	FreshAccessToken(ctx context.Context, conn *models.IntegrationConnection) (string, error)
	RecordDeliveryError(conn *models.IntegrationConnection, deliveryErr error) error
	RecordDeliverySuccess(conn *models.IntegrationConnection) error
}

// Dispatcher fans a raised domain event out to every connected integration
// whose mapping enables it. Delivery failures are recorded against the
// connection, never propagated to the event producer.
type Dispatcher struct {
	conns    repository.IntegrationConnectionRepository
	mappings repository.EventMappingRepository
	links    repository.LinkedRecordRepository
	source   ConnectionSource
	registry *hooks.Registry
	timeout  time.Duration
}

func NewDispatcher(
	conns repository.IntegrationConnectionRepository,
	mappings repository.EventMappingRepository,
	links repository.LinkedRecordRepository,
	source ConnectionSource,
	registry *hooks.Registry,
) *Dispatcher {
	return &Dispatcher{
		conns:    conns,
		mappings: mappings,
		links:    links,
		source:   source,
		registry: registry,
		timeout:  DefaultTimeout,
	}
}

// Raise fires the event without blocking the caller. The business operation
// that raised the event is already committed; delivery is best effort.
func (d *Dispatcher) Raise(workspaceID uint, event hooks.Event) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()
		d.Dispatch(ctx, workspaceID, event)
	}()
}

// Dispatch resolves interested (connection, mapping) pairs and delivers to
// each concurrently. Total latency is bounded by the slowest single call,
// and one failing handler never affects another's invocation.
func (d *Dispatcher) Dispatch(ctx context.Context, workspaceID uint, event hooks.Event) {
	conns, err := d.conns.GetActiveByWorkspace(workspaceID)
	if err != nil {
		log.Errorf("[Dispatch] load connections for workspace %d: %v", workspaceID, err)
		return
	}

	var wg sync.WaitGroup
	for i := range conns {
		conn := conns[i]
		enabled, err := d.mappings.GetEnabled(conn.ID, event.Type)
		if err != nil {
			log.Errorf("[Dispatch] load mappings for connection %d: %v", conn.ID, err)
			continue
		}
		for _, mapping := range enabled {
			wg.Add(1)
			go func(conn models.IntegrationConnection, mapping models.EventMapping) {
				defer wg.Done()
				defer func() {
					if r := recover(); r != nil {
						log.Errorf("[Dispatch] handler %s panicked: %v", conn.Type, r)
						_ = d.source.RecordDeliveryError(&conn, fmt.Errorf("handler panic: %v", r))
					}
				}()
				d.deliver(ctx, &conn, mapping, event)
			}(conn, mapping)
		}
	}
	wg.Wait()
}

func (d *Dispatcher) deliver(ctx context.Context, conn *models.IntegrationConnection, mapping models.EventMapping, event hooks.Event) {
	handler, ok := d.registry.Get(conn.Type)
	if !ok {
		log.Errorf("[Dispatch] no handler registered for type %s", conn.Type)
		return
	}

	token, err := d.source.FreshAccessToken(ctx, conn)
	if err != nil {
		log.Errorf("[Dispatch] token for %s connection %d: %v", conn.Type, conn.ID, err)
		_ = d.source.RecordDeliveryError(conn, err)
		return
	}
	cfg, err := conn.Config()
	if err != nil {
		_ = d.source.RecordDeliveryError(conn, fmt.Errorf("decode config: %w", err))
		return
	}

	scoped := event
	scoped.Action = mapping.ActionType
	res := handler.Run(ctx, scoped, hooks.Target{
		WorkspaceID: conn.WorkspaceID,
		AccessToken: token,
		Config:      cfg,
	})

	if !res.OK {
		retry := "terminal"
		if res.Retry {
			retry = "retryable"
		}
		log.Errorf("[Dispatch] %s delivery of %s failed (%s): %v", conn.Type, event.Type, retry, res.Err)
		if err := d.source.RecordDeliveryError(conn, res.Err); err != nil {
			log.Errorf("[Dispatch] record error for connection %d: %v", conn.ID, err)
		}
		return
	}

	if err := d.source.RecordDeliverySuccess(conn); err != nil {
		log.Errorf("[Dispatch] record success for connection %d: %v", conn.ID, err)
	}

	if res.ExternalID != "" {
		if postID := eventPostID(event); postID != 0 {
			link := &models.LinkedExternalRecord{
				PostID:          postID,
				ConnectionID:    conn.ID,
				IntegrationType: conn.Type,
				ExternalID:      res.ExternalID,
				ExternalURL:     res.ExternalURL,
				Status:          models.LinkStatusActive,
			}
			if err := d.links.CreateOrUpdate(link); err != nil {
				log.Errorf("[Dispatch] persist link for connection %d: %v", conn.ID, err)
			}
		}
	}
}

// eventPostID tolerates the numeric types JSON decoding produces.
func eventPostID(event hooks.Event) uint {
	switch v := event.Data["post_id"].(type) {
	case uint:
		return v
	case int:
		if v > 0 {
			return uint(v)
		}
	case float64:
		if v > 0 {
			return uint(v)
		}
	}
	return 0
}
