package hooks

import (
	"context"
	"fmt"
	"net/http"

	"github.com/echoboardhq/echoboard/app/models"
)

// HubspotHandler mirrors feedback posts as HubSpot tickets on the default
// support pipeline.
type HubspotHandler struct {
	apiBase string
	http    *http.Client
}

func NewHubspotHandler() *HubspotHandler {
	return &HubspotHandler{
		apiBase: "https://api.hubapi.com",
		http:    newHTTPClient(defaultTimeout),
	}
}

func (h *HubspotHandler) Type() string { return models.IntegrationHubspot }

func (h *HubspotHandler) Run(ctx context.Context, event Event, target Target) Result {
	if event.Type != models.EventPostCreated {
		return Success()
	}

	pipeline := target.ConfigStr("pipeline_id")
	if pipeline == "" {
		pipeline = "0" // HubSpot's default support pipeline
	}
	stage := target.ConfigStr("open_stage_id")
	if stage == "" {
		stage = "1"
	}

	var out struct {
		ID string `json:"id"`
	}
	payload := map[string]any{
		"properties": map[string]any{
			"subject":           event.Str("title"),
			"content":           event.Str("body"),
			"hs_pipeline":       pipeline,
			"hs_pipeline_stage": stage,
		},
	}
	code, err := doJSON(ctx, h.http, http.MethodPost, h.apiBase+"/crm/v3/objects/tickets", target.AccessToken, payload, &out)
	if err != nil || code != http.StatusCreated {
		return classifyHTTP("hubspot: create ticket", code, err)
	}
	return SuccessWithRecord(out.ID, "https://app.hubspot.com/contacts/tickets/"+out.ID)
}

func (h *HubspotHandler) Archive(ctx context.Context, target Target, externalID string) Result {
	closedStage := target.ConfigStr("closed_stage_id")
	if closedStage == "" {
		closedStage = "4"
	}
	payload := map[string]any{"properties": map[string]any{"hs_pipeline_stage": closedStage}}
	code, err := doJSON(ctx, h.http, http.MethodPatch, h.apiBase+"/crm/v3/objects/tickets/"+externalID, target.AccessToken, payload, nil)
	if err != nil || code != http.StatusOK {
		return classifyHTTP("hubspot: close ticket", code, err)
	}
	return Archived(models.LinkStatusClosed)
}

func (h *HubspotHandler) TestConnection(ctx context.Context, target Target) error {
	code, err := doJSON(ctx, h.http, http.MethodGet, h.apiBase+"/account-info/v3/details", target.AccessToken, nil, nil)
	if err != nil {
		return fmt.Errorf("hubspot: account details: %w", err)
	}
	if code != http.StatusOK {
		return fmt.Errorf("hubspot: account details rejected (status %d)", code)
	}
	return nil
}
