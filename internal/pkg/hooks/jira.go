package hooks

import (
	"context"
	"fmt"
	"net/http"

	"github.com/echoboardhq/echoboard/app/models"
)

// JiraHandler creates and transitions Jira issues via the Atlassian cloud
// API. Connection config: cloud_id, project_key, site_url, and optionally
// done_transition_id for the workflow's closing transition.
type JiraHandler struct {
	apiBase string
	http    *http.Client
}

func NewJiraHandler() *JiraHandler {
	return &JiraHandler{
		apiBase: "https://api.atlassian.com",
		http:    newHTTPClient(defaultTimeout),
	}
}

func (h *JiraHandler) Type() string { return models.IntegrationJira }

func (h *JiraHandler) issueURL(target Target, path string) (string, Result) {
	cloudID := target.ConfigStr("cloud_id")
	if cloudID == "" {
		return "", ConfigError(h.Type(), "cloud_id")
	}
	return fmt.Sprintf("%s/ex/jira/%s/rest/api/3%s", h.apiBase, cloudID, path), Result{OK: true}
}

func (h *JiraHandler) Run(ctx context.Context, event Event, target Target) Result {
	switch event.Type {
	case models.EventPostCreated:
		return h.createIssue(ctx, event, target)
	case models.EventPostStatusChanged:
		return h.commentStatus(ctx, event, target)
	default:
		return Success()
	}
}

func (h *JiraHandler) createIssue(ctx context.Context, event Event, target Target) Result {
	projectKey := target.ConfigStr("project_key")
	if projectKey == "" {
		return ConfigError(h.Type(), "project_key")
	}
	url, ok := h.issueURL(target, "/issue")
	if !ok.OK {
		return ok
	}

	payload := map[string]any{
		"fields": map[string]any{
			"project":   map[string]any{"key": projectKey},
			"summary":   event.Str("title"),
			"issuetype": map[string]any{"name": "Task"},
			"description": map[string]any{
				"type":    "doc",
				"version": 1,
				"content": []any{map[string]any{
					"type":    "paragraph",
					"content": []any{map[string]any{"type": "text", "text": event.Str("body")}},
				}},
			},
		},
	}

	var out struct {
		ID  string `json:"id"`
		Key string `json:"key"`
	}
	code, err := doJSON(ctx, h.http, http.MethodPost, url, target.AccessToken, payload, &out)
	if err != nil || code != http.StatusCreated {
		return classifyHTTP("jira: create issue", code, err)
	}
	return SuccessWithRecord(out.Key, target.ConfigStr("site_url")+"/browse/"+out.Key)
}

func (h *JiraHandler) commentStatus(ctx context.Context, event Event, target Target) Result {
	issueKey := event.Str("external_id")
	if issueKey == "" {
		// No linked issue for this post yet; nothing to annotate.
		return Success()
	}
	url, ok := h.issueURL(target, "/issue/"+issueKey+"/comment")
	if !ok.OK {
		return ok
	}

	payload := map[string]any{
		"body": map[string]any{
			"type":    "doc",
			"version": 1,
			"content": []any{map[string]any{
				"type":    "paragraph",
				"content": []any{map[string]any{"type": "text", "text": "Feedback status changed to " + event.Str("status")}},
			}},
		},
	}
	code, err := doJSON(ctx, h.http, http.MethodPost, url, target.AccessToken, payload, nil)
	if err != nil || code != http.StatusCreated {
		return classifyHTTP("jira: add comment", code, err)
	}
	return Success()
}

func (h *JiraHandler) Archive(ctx context.Context, target Target, externalID string) Result {
	url, ok := h.issueURL(target, "/issue/"+externalID+"/transitions")
	if !ok.OK {
		return ok
	}
	transitionID := target.ConfigStr("done_transition_id")
	if transitionID == "" {
		transitionID = "31" // default "Done" transition in Jira's standard workflow
	}
	payload := map[string]any{"transition": map[string]any{"id": transitionID}}
	code, err := doJSON(ctx, h.http, http.MethodPost, url, target.AccessToken, payload, nil)
	if err != nil || code != http.StatusNoContent {
		return classifyHTTP("jira: transition issue", code, err)
	}
	return Archived(models.LinkStatusClosed)
}

func (h *JiraHandler) TestConnection(ctx context.Context, target Target) error {
	url, ok := h.issueURL(target, "/myself")
	if !ok.OK {
		return ok.Err
	}
	code, err := doJSON(ctx, h.http, http.MethodGet, url, target.AccessToken, nil, nil)
	if err != nil {
		return fmt.Errorf("jira: myself: %w", err)
	}
	if code != http.StatusOK {
		return fmt.Errorf("jira: myself rejected (status %d)", code)
	}
	return nil
}
