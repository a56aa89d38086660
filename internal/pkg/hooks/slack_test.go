package hooks

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/echoboardhq/echoboard/app/models"
)

func slackTestHandler(t *testing.T, respond func(w http.ResponseWriter, r *http.Request)) *SlackHandler {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(respond))
	t.Cleanup(srv.Close)

	h := NewSlackHandler()
	h.apiBase = srv.URL
	return h
}

func slackTarget() Target {
	return Target{
		AccessToken: "xoxb-test",
		Config:      map[string]any{"channel_id": "C123"},
	}
}

func TestSlackRunPostCreated(t *testing.T) {
	var gotAuth string
	h := slackTestHandler(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		require.Equal(t, "/chat.postMessage", r.URL.Path)

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "C123", body["channel"])

		json.NewEncoder(w).Encode(slackResponse{OK: true, TS: "1700000000.000100", Channel: "C123"})
	})

	event := Event{
		Type:   models.EventPostCreated,
		Action: models.ActionPostMessage,
		Data:   map[string]any{"title": "Dark mode", "body": "Please add dark mode"},
	}
	res := h.Run(context.Background(), event, slackTarget())

	require.NoError(t, res.Err)
	assert.True(t, res.OK)
	assert.Equal(t, "C123", res.ExternalID)
	assert.Contains(t, res.ExternalURL, "C123")
	assert.Equal(t, "Bearer xoxb-test", gotAuth)
}

func TestSlackRunIgnoresUnhandledEvent(t *testing.T) {
	h := slackTestHandler(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no API call expected for an unhandled event type")
	})

	res := h.Run(context.Background(), Event{Type: "comment.created"}, slackTarget())
	assert.True(t, res.OK)
	assert.Empty(t, res.ExternalID)
}

func TestSlackRunUnauthorizedIsTerminal(t *testing.T) {
	h := slackTestHandler(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	res := h.Run(context.Background(), Event{Type: models.EventPostCreated, Data: map[string]any{"title": "x"}}, slackTarget())
	assert.False(t, res.OK)
	assert.False(t, res.Retry)
}

func TestSlackRunRateLimitIsRetryable(t *testing.T) {
	h := slackTestHandler(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	res := h.Run(context.Background(), Event{Type: models.EventPostCreated, Data: map[string]any{"title": "x"}}, slackTarget())
	assert.False(t, res.OK)
	assert.True(t, res.Retry)
}

func TestSlackRunInBodyErrorIsTerminal(t *testing.T) {
	h := slackTestHandler(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(slackResponse{OK: false, Error: "channel_not_found"})
	})

	res := h.Run(context.Background(), Event{Type: models.EventPostCreated, Data: map[string]any{"title": "x"}}, slackTarget())
	assert.False(t, res.OK)
	assert.False(t, res.Retry)
	assert.ErrorContains(t, res.Err, "channel_not_found")
}

func TestSlackRunMissingChannelConfig(t *testing.T) {
	h := slackTestHandler(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no API call expected without channel config")
	})

	res := h.Run(context.Background(), Event{Type: models.EventPostCreated}, Target{AccessToken: "xoxb"})
	assert.False(t, res.OK)
	assert.False(t, res.Retry)
}

func TestSlackArchive(t *testing.T) {
	h := slackTestHandler(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(slackResponse{OK: true, TS: "1.2", Channel: "C123"})
	})

	res := h.Archive(context.Background(), slackTarget(), "C123")
	require.NoError(t, res.Err)
	assert.True(t, res.OK)
	assert.Equal(t, models.LinkStatusArchived, res.TerminalStatus)
}

func TestSlackTestConnection(t *testing.T) {
	h := slackTestHandler(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/auth.test", r.URL.Path)
		json.NewEncoder(w).Encode(slackResponse{OK: true})
	})
	assert.NoError(t, h.TestConnection(context.Background(), slackTarget()))

	h = slackTestHandler(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(slackResponse{OK: false, Error: "invalid_auth"})
	})
	assert.Error(t, h.TestConnection(context.Background(), slackTarget()))
}

func TestZendeskRunCreatesTicket(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v2/tickets.json", r.URL.Path)
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"ticket":{"id":987}}`))
	}))
	t.Cleanup(srv.Close)

	h := NewZendeskHandler()
	h.baseOverride = srv.URL

	event := Event{Type: models.EventPostCreated, Data: map[string]any{"title": "Bug", "body": "It broke"}}
	res := h.Run(context.Background(), event, Target{AccessToken: "zd-token"})

	require.NoError(t, res.Err)
	assert.True(t, res.OK)
	assert.Equal(t, "987", res.ExternalID)
}
