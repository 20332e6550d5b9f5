package strava

import (
	"golang.org/x/oauth2"
)

// Production endpoints. Overridable on Client for tests.
const (
	DefaultAuthorizeURL = "https://www.strava.com/oauth/authorize"
	DefaultTokenURL     = "https://www.strava.com/oauth/token"
	DefaultAPIBaseURL   = "https://www.strava.com/api/v3"
)

// Scope requested at authorization. Strava wants a comma-joined list in
// a single scope parameter, so it is one element, not two.
var Scopes = []string{"read,activity:read_all"}

// OAuthConfig returns the oauth2 config for the Strava authorize flow.
// Strava is not in the x/oauth2 endpoint catalog, so the endpoint is
// built here.
func (c *Client) OAuthConfig(redirectURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     c.clientID,
		ClientSecret: c.clientSecret,
		RedirectURL:  redirectURL,
		Scopes:       Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:   c.AuthorizeURL,
			TokenURL:  c.TokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}
