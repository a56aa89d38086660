package hooks

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/echoboardhq/echoboard/app/models"
)

// ZendeskHandler mirrors feedback posts as Zendesk tickets.
// Connection config: subdomain.
type ZendeskHandler struct {
	// baseOverride replaces the per-subdomain base URL in tests.
	baseOverride string
	http         *http.Client
}

func NewZendeskHandler() *ZendeskHandler {
	return &ZendeskHandler{http: newHTTPClient(defaultTimeout)}
}

func (h *ZendeskHandler) Type() string { return models.IntegrationZendesk }

func (h *ZendeskHandler) base(target Target) (string, Result) {
	if h.baseOverride != "" {
		return h.baseOverride, Result{OK: true}
	}
	subdomain := target.ConfigStr("subdomain")
	if subdomain == "" {
		return "", ConfigError(h.Type(), "subdomain")
	}
	return "https://" + subdomain + ".zendesk.com", Result{OK: true}
}

func (h *ZendeskHandler) Run(ctx context.Context, event Event, target Target) Result {
	if event.Type != models.EventPostCreated {
		return Success()
	}
	base, ok := h.base(target)
	if !ok.OK {
		return ok
	}

	var out struct {
		Ticket struct {
			ID  int64  `json:"id"`
			URL string `json:"url"`
		} `json:"ticket"`
	}
	payload := map[string]any{
		"ticket": map[string]any{
			"subject": event.Str("title"),
			"comment": map[string]any{"body": event.Str("body")},
		},
	}
	code, err := doJSON(ctx, h.http, http.MethodPost, base+"/api/v2/tickets.json", target.AccessToken, payload, &out)
	if err != nil || code != http.StatusCreated {
		return classifyHTTP("zendesk: create ticket", code, err)
	}
	id := strconv.FormatInt(out.Ticket.ID, 10)
	return SuccessWithRecord(id, base+"/agent/tickets/"+id)
}

func (h *ZendeskHandler) Archive(ctx context.Context, target Target, externalID string) Result {
	base, ok := h.base(target)
	if !ok.OK {
		return ok
	}
	payload := map[string]any{"ticket": map[string]any{"status": "solved"}}
	code, err := doJSON(ctx, h.http, http.MethodPut, base+"/api/v2/tickets/"+externalID+".json", target.AccessToken, payload, nil)
	if err != nil || code != http.StatusOK {
		return classifyHTTP("zendesk: solve ticket", code, err)
	}
	return Archived(models.LinkStatusClosed)
}

func (h *ZendeskHandler) TestConnection(ctx context.Context, target Target) error {
	base, ok := h.base(target)
	if !ok.OK {
		return ok.Err
	}
	code, err := doJSON(ctx, h.http, http.MethodGet, base+"/api/v2/users/me.json", target.AccessToken, nil, nil)
	if err != nil {
		return fmt.Errorf("zendesk: me: %w", err)
	}
	if code != http.StatusOK {
		return fmt.Errorf("zendesk: me rejected (status %d)", code)
	}
	return nil
}
