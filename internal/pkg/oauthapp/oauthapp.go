package oauthapp

import (
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/oauth2"

	"github.com/echoboardhq/echoboard/app/models"
	"github.com/echoboardhq/echoboard/internal/pkg/env"
	"github.com/echoboardhq/echoboard/internal/pkg/secretbox"
)

// ErrNotConfigured is wrapped by Config when a provider's client id/secret
// are missing from the deployment. Surfaced to the connect flow, never
// swallowed.
var ErrNotConfigured = fmt.Errorf("oauthapp: provider credentials not configured")

type provider struct {
	envPrefix string
	authURL   string
	tokenURL  string
	scopes    []string
	usesPKCE  bool
}

var providers = map[string]provider{
	models.IntegrationSlack: {
		envPrefix: "SLACK",
		authURL:   "https://slack.com/oauth/v2/authorize",
		tokenURL:  "https://slack.com/api/oauth.v2.access",
		scopes:    []string{"chat:write", "channels:read"},
	},
	models.IntegrationJira: {
		envPrefix: "JIRA",
		authURL:   "https://auth.atlassian.com/authorize",
		tokenURL:  "https://auth.atlassian.com/oauth/token",
		scopes:    []string{"read:jira-work", "write:jira-work", "offline_access"},
	},
	models.IntegrationTeams: {
		envPrefix: "TEAMS",
		authURL:   "https://login.microsoftonline.com/common/oauth2/v2.0/authorize",
		tokenURL:  "https://login.microsoftonline.com/common/oauth2/v2.0/token",
		scopes:    []string{"ChannelMessage.Send", "offline_access"},
	},
	models.IntegrationSalesforce: {
		envPrefix: "SALESFORCE",
		authURL:   "https://login.salesforce.com/services/oauth2/authorize",
		tokenURL:  "https://login.salesforce.com/services/oauth2/token",
		scopes:    []string{"api", "refresh_token"},
		usesPKCE:  true,
	},
	models.IntegrationZendesk: {
		envPrefix: "ZENDESK",
		authURL:   "", // built from ZENDESK_SUBDOMAIN below
		tokenURL:  "",
		scopes:    []string{"read", "write"},
	},
	models.IntegrationHubspot: {
		envPrefix: "HUBSPOT",
		authURL:   "https://app.hubspot.com/oauth/authorize",
		tokenURL:  "https://api.hubapi.com/oauth/v1/token",
		scopes:    []string{"tickets", "oauth"},
	},
	models.IntegrationClickup: {
		envPrefix: "CLICKUP",
		authURL:   "https://app.clickup.com/api",
		tokenURL:  "https://api.clickup.com/api/v2/oauth/token",
	},
}

// Registry resolves per-provider OAuth app credentials into oauth2 configs.
// Credentials come from <PREFIX>_CLIENT_ID / <PREFIX>_CLIENT_SECRET, or from
// <PREFIX>_CLIENT_CREDENTIALS_ENC, a secretbox ciphertext holding
// {"client_id":...,"client_secret":...} for deployments that refuse raw
// secrets in the environment.
type Registry struct {
	box          *secretbox.Box
	publicDomain string
}

func NewRegistry(box *secretbox.Box, publicDomain string) *Registry {
	return &Registry{
		box:          box,
		publicDomain: strings.TrimRight(publicDomain, "/"),
	}
}

// Known reports whether the integration type has a registered provider.
func Known(integrationType string) bool {
	_, ok := providers[integrationType]
	return ok
}

// UsesPKCE reports whether the provider requires a PKCE code verifier.
func UsesPKCE(integrationType string) bool {
	return providers[integrationType].usesPKCE
}

// CallbackURL is where the provider redirects after consent.
func (r *Registry) CallbackURL(integrationType string) string {
	return r.publicDomain + "/oauth/" + integrationType + "/callback"
}

// Config builds the oauth2 config for the provider, failing fast when the
// deployment has no client credentials for it.
func (r *Registry) Config(integrationType string) (*oauth2.Config, error) {
	p, ok := providers[integrationType]
	if !ok {
		return nil, fmt.Errorf("oauthapp: unknown integration type %q", integrationType)
	}

	clientID, clientSecret, err := r.credentials(p.envPrefix)
	if err != nil {
		return nil, err
	}
	if clientID == "" || clientSecret == "" {
		return nil, fmt.Errorf("%w: %s", ErrNotConfigured, integrationType)
	}

	authURL, tokenURL := p.authURL, p.tokenURL
	if integrationType == models.IntegrationZendesk {
		subdomain := env.GetEnv("ZENDESK_SUBDOMAIN", "")
		if subdomain == "" {
			return nil, fmt.Errorf("%w: ZENDESK_SUBDOMAIN missing", ErrNotConfigured)
		}
		authURL = fmt.Sprintf("https://%s.zendesk.com/oauth/authorizations/new", subdomain)
		tokenURL = fmt.Sprintf("https://%s.zendesk.com/oauth/tokens", subdomain)
	}

	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  r.CallbackURL(integrationType),
		Scopes:       p.scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:   authURL,
			TokenURL:  tokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}, nil
}

func (r *Registry) credentials(prefix string) (string, string, error) {
	clientID := strings.TrimSpace(env.GetEnv(prefix+"_CLIENT_ID", ""))
	clientSecret := strings.TrimSpace(env.GetEnv(prefix+"_CLIENT_SECRET", ""))
	if clientID != "" && clientSecret != "" {
		return clientID, clientSecret, nil
	}

	enc := strings.TrimSpace(env.GetEnv(prefix+"_CLIENT_CREDENTIALS_ENC", ""))
	if enc == "" {
		return clientID, clientSecret, nil
	}
	raw, err := r.box.Decrypt(enc, secretbox.PurposePlatformCredentials)
	if err != nil {
		return "", "", fmt.Errorf("oauthapp: decrypt platform credentials for %s: %w", prefix, err)
	}
	var creds struct {
		ClientID     string `json:"client_id"`
		ClientSecret string `json:"client_secret"`
	}
	if err := json.Unmarshal(raw, &creds); err != nil {
		return "", "", fmt.Errorf("oauthapp: parse platform credentials for %s: %w", prefix, err)
	}
	return creds.ClientID, creds.ClientSecret, nil
}
