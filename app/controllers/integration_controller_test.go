package controllers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/oauth2"

	"github.com/echoboardhq/echoboard/app/models"
)

func TestProviderConfigSalesforceInstanceURL(t *testing.T) {
	token := (&oauth2.Token{AccessToken: "at"}).WithExtra(map[string]interface{}{
		"instance_url": "https://acme.my.salesforce.com",
	})

	cfg := providerConfig(models.IntegrationSalesforce, token)
	assert.Equal(t, "https://acme.my.salesforce.com", cfg["instance_url"])
}

func TestProviderConfigZendeskSubdomain(t *testing.T) {
	t.Setenv("ZENDESK_SUBDOMAIN", "acme")

	cfg := providerConfig(models.IntegrationZendesk, (&oauth2.Token{AccessToken: "at"}))
	assert.Equal(t, "acme", cfg["subdomain"])
}

func TestProviderConfigOtherTypesEmpty(t *testing.T) {
	token := (&oauth2.Token{AccessToken: "at"}).WithExtra(map[string]interface{}{
		"team": map[string]any{"id": "T1", "name": "Acme"},
	})

	cfg := providerConfig(models.IntegrationSlack, token)
	assert.Empty(t, cfg)
}
