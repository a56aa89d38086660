package hooks

import (
	"context"
	"fmt"
	"net/http"

	"github.com/echoboardhq/echoboard/app/models"
)

// TeamsHandler posts channel messages through the Microsoft Graph API.
// Connection config: team_id, channel_id.
type TeamsHandler struct {
	apiBase string
	http    *http.Client
}

func NewTeamsHandler() *TeamsHandler {
	return &TeamsHandler{
		apiBase: "https://graph.microsoft.com/v1.0",
		http:    newHTTPClient(defaultTimeout),
	}
}

func (h *TeamsHandler) Type() string { return models.IntegrationTeams }

func (h *TeamsHandler) Run(ctx context.Context, event Event, target Target) Result {
	var content string
	switch event.Type {
	case models.EventPostCreated:
		content = fmt.Sprintf("<b>New feedback:</b> %s<br>%s", event.Str("title"), event.Str("body"))
	case models.EventPostStatusChanged:
		content = fmt.Sprintf("Feedback <b>%s</b> moved to %s", event.Str("title"), event.Str("status"))
	default:
		return Success()
	}

	teamID := target.ConfigStr("team_id")
	channelID := target.ConfigStr("channel_id")
	if teamID == "" {
		return ConfigError(h.Type(), "team_id")
	}
	if channelID == "" {
		return ConfigError(h.Type(), "channel_id")
	}

	var out struct {
		ID     string `json:"id"`
		WebURL string `json:"webUrl"`
	}
	url := fmt.Sprintf("%s/teams/%s/channels/%s/messages", h.apiBase, teamID, channelID)
	payload := map[string]any{"body": map[string]any{"contentType": "html", "content": content}}
	code, err := doJSON(ctx, h.http, http.MethodPost, url, target.AccessToken, payload, &out)
	if err != nil || code != http.StatusCreated {
		return classifyHTTP("teams: post message", code, err)
	}
	return SuccessWithRecord(out.ID, out.WebURL)
}

func (h *TeamsHandler) Archive(ctx context.Context, target Target, externalID string) Result {
	teamID := target.ConfigStr("team_id")
	channelID := target.ConfigStr("channel_id")
	if teamID == "" || channelID == "" {
		return ConfigError(h.Type(), "team_id")
	}
	url := fmt.Sprintf("%s/teams/%s/channels/%s/messages/%s/replies", h.apiBase, teamID, channelID, externalID)
	payload := map[string]any{"body": map[string]any{"content": "The linked feedback post was deleted; this thread is closed."}}
	code, err := doJSON(ctx, h.http, http.MethodPost, url, target.AccessToken, payload, nil)
	if err != nil || code != http.StatusCreated {
		return classifyHTTP("teams: archive reply", code, err)
	}
	return Archived(models.LinkStatusArchived)
}

func (h *TeamsHandler) TestConnection(ctx context.Context, target Target) error {
	code, err := doJSON(ctx, h.http, http.MethodGet, h.apiBase+"/me", target.AccessToken, nil, nil)
	if err != nil {
		return fmt.Errorf("teams: me: %w", err)
	}
	if code != http.StatusOK {
		return fmt.Errorf("teams: me rejected (status %d)", code)
	}
	return nil
}
