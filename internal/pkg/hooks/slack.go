package hooks

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/echoboardhq/echoboard/app/models"
)

// SlackHandler posts feedback events into a configured Slack channel.
type SlackHandler struct {
	apiBase string
	http    *http.Client
}

func NewSlackHandler() *SlackHandler {
	return &SlackHandler{
		apiBase: "https://slack.com/api",
		http:    newHTTPClient(defaultTimeout),
	}
}

func (h *SlackHandler) Type() string { return models.IntegrationSlack }

type slackResponse struct {
	OK      bool   `json:"ok"`
	Error   string `json:"error"`
	TS      string `json:"ts"`
	Channel string `json:"channel"`
}

func (h *SlackHandler) Run(ctx context.Context, event Event, target Target) Result {
	var text string
	switch event.Type {
	case models.EventPostCreated:
		text = fmt.Sprintf("New feedback: *%s*\n%s", event.Str("title"), event.Str("body"))
	case models.EventPostStatusChanged:
		text = fmt.Sprintf("Feedback *%s* moved to `%s`", event.Str("title"), event.Str("status"))
	default:
		return Success()
	}

	channel := target.ConfigStr("channel_id")
	if channel == "" {
		return ConfigError(h.Type(), "channel_id")
	}

	var out slackResponse
	code, err := doJSON(ctx, h.http, http.MethodPost, h.apiBase+"/chat.postMessage", target.AccessToken,
		map[string]any{"channel": channel, "text": text}, &out)
	if err != nil || code != http.StatusOK {
		return classifyHTTP("slack: post message", code, err)
	}
	if !out.OK {
		// Slack signals most failures inside a 200 body.
		return Failure(fmt.Errorf("slack: post message: %s", out.Error), out.Error == "ratelimited")
	}

	url := fmt.Sprintf("https://slack.com/archives/%s/p%s", out.Channel, strings.ReplaceAll(out.TS, ".", ""))
	return SuccessWithRecord(out.Channel, url)
}

func (h *SlackHandler) Archive(ctx context.Context, target Target, externalID string) Result {
	var out slackResponse
	code, err := doJSON(ctx, h.http, http.MethodPost, h.apiBase+"/chat.postMessage", target.AccessToken,
		map[string]any{"channel": externalID, "text": "The linked feedback post was deleted; this thread is closed."}, &out)
	if err != nil || code != http.StatusOK {
		return classifyHTTP("slack: archive notice", code, err)
	}
	if !out.OK {
		return Failure(fmt.Errorf("slack: archive notice: %s", out.Error), out.Error == "ratelimited")
	}
	return Archived(models.LinkStatusArchived)
}

func (h *SlackHandler) TestConnection(ctx context.Context, target Target) error {
	var out slackResponse
	code, err := doJSON(ctx, h.http, http.MethodPost, h.apiBase+"/auth.test", target.AccessToken, nil, &out)
	if err != nil {
		return fmt.Errorf("slack: auth test: %w", err)
	}
	if code != http.StatusOK || !out.OK {
		return fmt.Errorf("slack: auth test rejected (status %d, error %q)", code, out.Error)
	}
	return nil
}
