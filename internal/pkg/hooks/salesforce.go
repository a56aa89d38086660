package hooks

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/echoboardhq/echoboard/app/models"
)

const salesforceAPIVersion = "v59.0"

// SalesforceHandler mirrors feedback posts as Salesforce Cases.
// Connection config: instance_url (assigned per org during OAuth).
type SalesforceHandler struct {
	http *http.Client
}

func NewSalesforceHandler() *SalesforceHandler {
	return &SalesforceHandler{http: newHTTPClient(defaultTimeout)}
}

func (h *SalesforceHandler) Type() string { return models.IntegrationSalesforce }

func (h *SalesforceHandler) instance(target Target) (string, Result) {
	instance := strings.TrimRight(target.ConfigStr("instance_url"), "/")
	if instance == "" {
		return "", ConfigError(h.Type(), "instance_url")
	}
	return instance, Result{OK: true}
}

func (h *SalesforceHandler) Run(ctx context.Context, event Event, target Target) Result {
	if event.Type != models.EventPostCreated {
		return Success()
	}
	instance, ok := h.instance(target)
	if !ok.OK {
		return ok
	}

	var out struct {
		ID string `json:"id"`
	}
	url := fmt.Sprintf("%s/services/data/%s/sobjects/Case", instance, salesforceAPIVersion)
	payload := map[string]any{
		"Subject":     event.Str("title"),
		"Description": event.Str("body"),
		"Origin":      "Web",
	}
	code, err := doJSON(ctx, h.http, http.MethodPost, url, target.AccessToken, payload, &out)
	if err != nil || code != http.StatusCreated {
		return classifyHTTP("salesforce: create case", code, err)
	}
	return SuccessWithRecord(out.ID, instance+"/lightning/r/Case/"+out.ID+"/view")
}

func (h *SalesforceHandler) Archive(ctx context.Context, target Target, externalID string) Result {
	instance, ok := h.instance(target)
	if !ok.OK {
		return ok
	}
	url := fmt.Sprintf("%s/services/data/%s/sobjects/Case/%s", instance, salesforceAPIVersion, externalID)
	payload := map[string]any{"Status": "Closed"}
	code, err := doJSON(ctx, h.http, http.MethodPatch, url, target.AccessToken, payload, nil)
	if err != nil || code != http.StatusNoContent {
		return classifyHTTP("salesforce: close case", code, err)
	}
	return Archived(models.LinkStatusClosed)
}

func (h *SalesforceHandler) TestConnection(ctx context.Context, target Target) error {
	instance, ok := h.instance(target)
	if !ok.OK {
		return ok.Err
	}
	code, err := doJSON(ctx, h.http, http.MethodGet, instance+"/services/data/", target.AccessToken, nil, nil)
	if err != nil {
		return fmt.Errorf("salesforce: version probe: %w", err)
	}
	if code != http.StatusOK {
		return fmt.Errorf("salesforce: version probe rejected (status %d)", code)
	}
	return nil
}
