package controllers

import (
	"context"
	"errors"
	"net/url"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"golang.org/x/oauth2"

	"github.com/echoboardhq/echoboard/app/models"
	"github.com/echoboardhq/echoboard/app/repository"
	"github.com/echoboardhq/echoboard/internal/pkg/connections"
	"github.com/echoboardhq/echoboard/internal/pkg/env"
	"github.com/echoboardhq/echoboard/internal/pkg/hooks"
	"github.com/echoboardhq/echoboard/internal/pkg/oauthapp"
	"github.com/echoboardhq/echoboard/internal/pkg/statetoken"
	"github.com/echoboardhq/echoboard/internal/pkg/usercontext"
)

var (
	connStore    *connections.Store
	oauthApps    *oauthapp.Registry
	stateSigner  *statetoken.Signer
	hookRegistry *hooks.Registry
)

// InitializeIntegrationController wires the integration handlers with their
// services. Must run during startup before the router installs routes.
func InitializeIntegrationController(store *connections.Store, apps *oauthapp.Registry, signer *statetoken.Signer, registry *hooks.Registry) {
	connStore = store
	oauthApps = apps
	stateSigner = signer
	hookRegistry = registry
}

// HandleIntegrationConnect begins the OAuth handshake for an integration.
// It signs a state token carrying workspace, member and return domain, then
// redirects the browser to the provider's consent screen.
func HandleIntegrationConnect(c *fiber.Ctx) error {
	integrationType := c.Params("type")
	if !oauthapp.Known(integrationType) {
		return jsonError(c, fiber.StatusNotFound, "not_found", "Unknown integration type")
	}

	cfg, err := oauthApps.Config(integrationType)
	if err != nil {
		if errors.Is(err, oauthapp.ErrNotConfigured) {
			return jsonError(c, fiber.StatusServiceUnavailable, "not_configured", "This integration is not configured for this deployment")
		}
		log.Errorf("[Integration] oauth config for %s: %v", integrationType, err)
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to prepare handshake")
	}

	userCtx := usercontext.GetUserContext(c)
	returnDomain := c.Query("return_domain")
	if returnDomain == "" {
		returnDomain = env.GetEnv("PUBLIC_DOMAIN", "")
	}

	state := stateSigner.NewState(integrationType, userCtx.WorkspaceID, userCtx.UserID, returnDomain)

	opts := []oauth2.AuthCodeOption{oauth2.AccessTypeOffline}
	if oauthapp.UsesPKCE(integrationType) {
		verifier := oauth2.GenerateVerifier()
		encrypted, err := stateSigner.EncryptCodeVerifier(verifier)
		if err != nil {
			log.Errorf("[Integration] encrypt code verifier: %v", err)
			return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to prepare handshake")
		}
		state.CodeVerifier = encrypted
		opts = append(opts, oauth2.S256ChallengeOption(verifier))
	}

	token, err := stateSigner.Sign(state)
	if err != nil {
		log.Errorf("[Integration] sign state: %v", err)
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to prepare handshake")
	}

	return c.Redirect(cfg.AuthCodeURL(token, opts...), fiber.StatusFound)
}

// HandleIntegrationCallback finishes the OAuth handshake: verify the state
// token, exchange the code, persist the encrypted token bundle and bounce the
// browser back to the workspace settings page.
func HandleIntegrationCallback(c *fiber.Ctx) error {
	integrationType := c.Params("type")
	if !oauthapp.Known(integrationType) {
		return jsonError(c, fiber.StatusNotFound, "not_found", "Unknown integration type")
	}

	state, err := stateSigner.Verify(c.Context(), c.Query("state"))
	if err != nil {
		// Without a verifiable state there is no trusted return domain to
		// bounce to, so the failure surfaces as a plain error response.
		log.Warnf("[Integration] %s callback with bad state: %v", integrationType, err)
		return jsonError(c, fiber.StatusBadRequest, "invalid_state", "OAuth state is invalid, expired or already used")
	}
	if state.Type != integrationType {
		return jsonError(c, fiber.StatusBadRequest, "invalid_state", "OAuth state was issued for a different integration")
	}

	if provErr := c.Query("error"); provErr != "" {
		// User denied consent or the provider refused; nothing was connected.
		return redirectWithError(c, state.ReturnDomain, integrationType, provErr)
	}
	code := c.Query("code")
	if code == "" {
		return redirectWithError(c, state.ReturnDomain, integrationType, "missing_code")
	}

	cfg, err := oauthApps.Config(integrationType)
	if err != nil {
		log.Errorf("[Integration] oauth config for %s: %v", integrationType, err)
		return redirectWithError(c, state.ReturnDomain, integrationType, "not_configured")
	}

	var opts []oauth2.AuthCodeOption
	if state.CodeVerifier != "" {
		verifier, err := stateSigner.DecryptCodeVerifier(state.CodeVerifier)
		if err != nil {
			log.Errorf("[Integration] decrypt code verifier: %v", err)
			return redirectWithError(c, state.ReturnDomain, integrationType, "handshake_failed")
		}
		opts = append(opts, oauth2.VerifierOption(verifier))
	}

	ctx, cancel := context.WithTimeout(c.Context(), 15*time.Second)
	defer cancel()
	token, err := cfg.Exchange(ctx, code, opts...)
	if err != nil {
		log.Errorf("[Integration] %s code exchange: %v", integrationType, err)
		return redirectWithError(c, state.ReturnDomain, integrationType, "exchange_failed")
	}

	extraConfig := providerConfig(integrationType, token)
	if state.OIDCConfig != "" {
		if oidc, err := stateSigner.DecryptOIDCConfig(state.OIDCConfig); err == nil {
			for k, v := range oidc {
				extraConfig[k] = v
			}
		}
	}

	teamID, teamName := externalTeam(integrationType, token)
	var expiresIn int64
	if !token.Expiry.IsZero() {
		expiresIn = int64(time.Until(token.Expiry).Seconds())
	}

	conn, err := connStore.SaveConnection(connections.SaveParams{
		WorkspaceID:      state.WorkspaceID,
		Type:             integrationType,
		ConnectedByID:    state.MemberID,
		AccessToken:      token.AccessToken,
		RefreshToken:     token.RefreshToken,
		ExpiresIn:        expiresIn,
		ExternalTeamID:   teamID,
		ExternalTeamName: teamName,
		Config:           extraConfig,
	})
	if err != nil {
		log.Errorf("[Integration] save %s connection: %v", integrationType, err)
		return redirectWithError(c, state.ReturnDomain, integrationType, "save_failed")
	}

	seedDefaultMappings(conn)

	log.Infof("[Integration] workspace %d connected %s", state.WorkspaceID, integrationType)
	return c.Redirect(settingsRedirectURL(state.ReturnDomain, "connected="+integrationType), fiber.StatusFound)
}

func redirectWithError(c *fiber.Ctx, returnDomain, integrationType, reason string) error {
	query := url.Values{}
	query.Set("integration_error", reason)
	query.Set("type", integrationType)
	return c.Redirect(settingsRedirectURL(returnDomain, query.Encode()), fiber.StatusFound)
}

// providerConfig collects connect-time settings that handlers later read
// from the connection config. Without these a fresh Salesforce or Zendesk
// connection has no API base to call.
func providerConfig(integrationType string, token *oauth2.Token) map[string]any {
	cfg := map[string]any{}
	switch integrationType {
	case models.IntegrationSalesforce:
		if instance, ok := token.Extra("instance_url").(string); ok && instance != "" {
			cfg["instance_url"] = instance
		}
	case models.IntegrationZendesk:
		if subdomain := env.GetEnv("ZENDESK_SUBDOMAIN", ""); subdomain != "" {
			cfg["subdomain"] = subdomain
		}
	}
	return cfg
}

// externalTeam pulls the connected account identity out of provider-specific
// token payload extras, best effort.
func externalTeam(integrationType string, token *oauth2.Token) (string, string) {
	switch integrationType {
	case models.IntegrationSlack:
		if team, ok := token.Extra("team").(map[string]any); ok {
			id, _ := team["id"].(string)
			name, _ := team["name"].(string)
			return id, name
		}
	case models.IntegrationSalesforce:
		if instance, ok := token.Extra("instance_url").(string); ok {
			return instance, ""
		}
	case models.IntegrationHubspot:
		if hub, ok := token.Extra("hub_domain").(string); ok {
			return hub, hub
		}
	}
	return "", ""
}

// seedDefaultMappings enables the baseline event set on a fresh connection so
// a workspace sees deliveries immediately. Existing mappings win on
// reconnect.
func seedDefaultMappings(conn *models.IntegrationConnection) {
	repo := repository.GetGlobalFactory().GetMappingRepository()
	existing, err := repo.ListByConnection(conn.ID)
	if err != nil || len(existing) > 0 {
		return
	}
	defaults := []models.EventMapping{
		{ConnectionID: conn.ID, EventType: models.EventPostCreated, ActionType: models.ActionCreateRecord, Enabled: true},
		{ConnectionID: conn.ID, EventType: models.EventPostStatusChanged, ActionType: models.ActionPostMessage, Enabled: true},
	}
	for i := range defaults {
		if err := repo.Set(&defaults[i]); err != nil {
			log.Errorf("[Integration] seed mapping for connection %d: %v", conn.ID, err)
		}
	}
}

// HandleListIntegrations returns the workspace's connections without any
// secret material.
func HandleListIntegrations(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	conns, err := repository.GetGlobalFactory().GetConnectionRepository().GetActiveByWorkspace(userCtx.WorkspaceID)
	if err != nil {
		log.Errorf("[Integration] list for workspace %d: %v", userCtx.WorkspaceID, err)
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to load integrations")
	}

	out := make([]fiber.Map, 0, len(conns))
	for _, conn := range conns {
		out = append(out, connectionJSON(&conn))
	}
	return c.JSON(fiber.Map{"integrations": out})
}

func connectionJSON(conn *models.IntegrationConnection) fiber.Map {
	m := fiber.Map{
		"type":               conn.Type,
		"status":             conn.Status,
		"external_team_id":   conn.ExternalTeamID,
		"external_team_name": conn.ExternalTeamName,
		"error_count":        conn.ErrorCount,
		"connected_at":       conn.ConnectedAt.UTC().Format(time.RFC3339),
	}
	if conn.LastError != "" {
		m["last_error"] = conn.LastError
	}
	if conn.LastErrorAt != nil {
		m["last_error_at"] = conn.LastErrorAt.UTC().Format(time.RFC3339)
	}
	return m
}

// HandleIntegrationDisconnect removes the connection and its mappings.
// Disconnecting something that is not connected succeeds quietly.
func HandleIntegrationDisconnect(c *fiber.Ctx) error {
	integrationType := c.Params("type")
	if !oauthapp.Known(integrationType) {
		return jsonError(c, fiber.StatusNotFound, "not_found", "Unknown integration type")
	}
	userCtx := usercontext.GetUserContext(c)
	if err := connStore.Disconnect(userCtx.WorkspaceID, integrationType); err != nil {
		log.Errorf("[Integration] disconnect %s for workspace %d: %v", integrationType, userCtx.WorkspaceID, err)
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to disconnect integration")
	}
	log.Infof("[Integration] workspace %d disconnected %s", userCtx.WorkspaceID, integrationType)
	return c.JSON(fiber.Map{"disconnected": integrationType})
}

// HandleIntegrationTest performs a live credential check against the
// provider without touching any workspace data.
func HandleIntegrationTest(c *fiber.Ctx) error {
	conn, err := workspaceConnection(c)
	if err != nil {
		return err
	}

	handler, ok := hookRegistry.Get(conn.Type)
	if !ok {
		return jsonError(c, fiber.StatusNotFound, "not_found", "No handler for this integration type")
	}

	ctx, cancel := context.WithTimeout(c.Context(), 15*time.Second)
	defer cancel()

	token, err := connStore.FreshAccessToken(ctx, conn)
	if err != nil {
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"ok": false, "error": err.Error()})
	}
	cfg, err := conn.Config()
	if err != nil {
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"ok": false, "error": "connection config unreadable"})
	}

	target := hooks.Target{WorkspaceID: conn.WorkspaceID, AccessToken: token, Config: cfg}
	if err := handler.TestConnection(ctx, target); err != nil {
		_ = connStore.RecordDeliveryError(conn, err)
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"ok": false, "error": err.Error()})
	}

	_ = connStore.RecordDeliverySuccess(conn)
	return c.JSON(fiber.Map{"ok": true})
}

// HandleIntegrationPause stops deliveries without discarding credentials.
func HandleIntegrationPause(c *fiber.Ctx) error {
	conn, err := workspaceConnection(c)
	if err != nil {
		return err
	}
	if err := connStore.Pause(conn); err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to pause integration")
	}
	return c.JSON(fiber.Map{"type": conn.Type, "status": models.ConnectionStatusPaused})
}

// HandleIntegrationResume re-enables deliveries for a paused connection.
func HandleIntegrationResume(c *fiber.Ctx) error {
	conn, err := workspaceConnection(c)
	if err != nil {
		return err
	}
	if err := connStore.Resume(conn); err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to resume integration")
	}
	return c.JSON(fiber.Map{"type": conn.Type, "status": models.ConnectionStatusActive})
}

// HandleGetMappings lists the connection's event-to-action mappings.
func HandleGetMappings(c *fiber.Ctx) error {
	conn, err := workspaceConnection(c)
	if err != nil {
		return err
	}
	mappings, err := repository.GetGlobalFactory().GetMappingRepository().ListByConnection(conn.ID)
	if err != nil {
		log.Errorf("[Integration] list mappings for connection %d: %v", conn.ID, err)
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to load mappings")
	}
	return c.JSON(fiber.Map{"type": conn.Type, "mappings": mappings})
}

type mappingUpdateRequest struct {
	Mappings []struct {
		EventType  string `json:"event_type" validate:"required,oneof=post.created post.status_changed post.deleted"`
		ActionType string `json:"action_type" validate:"required,oneof=create_record post_message"`
		Enabled    bool   `json:"enabled"`
	} `json:"mappings" validate:"required,dive"`
}

// HandlePutMappings replaces the enablement of the given event-to-action
// pairs. Pairs not mentioned keep their current state.
func HandlePutMappings(c *fiber.Ctx) error {
	conn, err := workspaceConnection(c)
	if err != nil {
		return err
	}

	var req mappingUpdateRequest
	if err := c.BodyParser(&req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "Invalid request body")
	}
	if err := validateStruct(&req); err != nil {
		return jsonError(c, fiber.StatusUnprocessableEntity, "validation_failed", err.Error())
	}

	repo := repository.GetGlobalFactory().GetMappingRepository()
	for _, m := range req.Mappings {
		mapping := models.EventMapping{
			ConnectionID: conn.ID,
			EventType:    m.EventType,
			ActionType:   m.ActionType,
			Enabled:      m.Enabled,
		}
		if err := repo.Set(&mapping); err != nil {
			log.Errorf("[Integration] set mapping %s/%s for connection %d: %v", m.EventType, m.ActionType, conn.ID, err)
			return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to save mappings")
		}
	}

	mappings, err := repo.ListByConnection(conn.ID)
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to reload mappings")
	}
	return c.JSON(fiber.Map{"type": conn.Type, "mappings": mappings})
}

// workspaceConnection resolves the :type route param to the caller
// workspace's connection, already scoped so one workspace can never address
// another's rows.
func workspaceConnection(c *fiber.Ctx) (*models.IntegrationConnection, error) {
	integrationType := c.Params("type")
	if !oauthapp.Known(integrationType) {
		return nil, jsonError(c, fiber.StatusNotFound, "not_found", "Unknown integration type")
	}
	userCtx := usercontext.GetUserContext(c)
	conn, err := connStore.Connection(userCtx.WorkspaceID, integrationType)
	if err != nil {
		if errors.Is(err, connections.ErrNotConnected) {
			return nil, jsonError(c, fiber.StatusNotFound, "not_found", "Integration not connected")
		}
		log.Errorf("[Integration] load %s for workspace %d: %v", integrationType, userCtx.WorkspaceID, err)
		return nil, jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to load integration")
	}
	return conn, nil
}
