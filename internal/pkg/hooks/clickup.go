package hooks

import (
	"context"
	"fmt"
	"net/http"

	"github.com/echoboardhq/echoboard/app/models"
)

// ClickupHandler mirrors feedback posts as ClickUp tasks.
// Connection config: list_id.
type ClickupHandler struct {
	apiBase string
	http    *http.Client
}

func NewClickupHandler() *ClickupHandler {
	return &ClickupHandler{
		apiBase: "https://api.clickup.com/api/v2",
		http:    newHTTPClient(defaultTimeout),
	}
}

func (h *ClickupHandler) Type() string { return models.IntegrationClickup }

func (h *ClickupHandler) Run(ctx context.Context, event Event, target Target) Result {
	if event.Type != models.EventPostCreated {
		return Success()
	}
	listID := target.ConfigStr("list_id")
	if listID == "" {
		return ConfigError(h.Type(), "list_id")
	}

	var out struct {
		ID  string `json:"id"`
		URL string `json:"url"`
	}
	payload := map[string]any{
		"name":        event.Str("title"),
		"description": event.Str("body"),
	}
	code, err := doJSON(ctx, h.http, http.MethodPost, h.apiBase+"/list/"+listID+"/task", target.AccessToken, payload, &out)
	if err != nil || code != http.StatusOK {
		return classifyHTTP("clickup: create task", code, err)
	}
	return SuccessWithRecord(out.ID, out.URL)
}

func (h *ClickupHandler) Archive(ctx context.Context, target Target, externalID string) Result {
	payload := map[string]any{"status": "complete"}
	code, err := doJSON(ctx, h.http, http.MethodPut, h.apiBase+"/task/"+externalID, target.AccessToken, payload, nil)
	if err != nil || code != http.StatusOK {
		return classifyHTTP("clickup: complete task", code, err)
	}
	return Archived(models.LinkStatusClosed)
}

func (h *ClickupHandler) TestConnection(ctx context.Context, target Target) error {
	code, err := doJSON(ctx, h.http, http.MethodGet, h.apiBase+"/user", target.AccessToken, nil, nil)
	if err != nil {
		return fmt.Errorf("clickup: user: %w", err)
	}
	if code != http.StatusOK {
		return fmt.Errorf("clickup: user rejected (status %d)", code)
	}
	return nil
}
