package constants

// Static route constants
const (
	OAuthConnectRoute  = "/oauth/:type/connect"
	OAuthCallbackRoute = "/oauth/:type/callback"
	APIv1Route         = "/api/v1"
)
