package oauth2

import (
	"os"
	"strings"

	sa "github.com/panyam/secretauth"
	"golang.org/x/oauth2"
)

var RedditEndpoint = oauth2.Endpoint{
	AuthURL:   "https://www.reddit.com/api/v1/authorize",
	TokenURL:  "https://www.reddit.com/api/v1/access_token",
	AuthStyle: oauth2.AuthStyleInHeader,
}

// RedditOAuth2 differs from the others only in configuration: reddit wants
// a fixed state echoed back, a duration flag on the authorization URL and a
// descriptive User-Agent on every API call.
type RedditOAuth2 struct {
	*BaseOAuth2

	// Sent as the state of every attempt. Defaults to OAUTH2_REDDIT_STATE,
	// then "false".
	State string

	// "permanent" asks for a non-expiring grant, "temporary" for a one hour one.
	Duration string
}

func NewRedditOAuth2(clientId string, clientSecret string, callbackUrl string) *RedditOAuth2 {
	out := RedditOAuth2{
		BaseOAuth2: NewBaseOAuth2(sa.ProviderReddit, clientId, clientSecret, callbackUrl),
		State:      strings.TrimSpace(os.Getenv("OAUTH2_REDDIT_STATE")),
		Duration:   "permanent",
	}
	if out.State == "" {
		out.State = "false"
	}
	out.UserInfoURL = "https://oauth.reddit.com/api/v1/me"
	out.oauthConfig.Endpoint = RedditEndpoint
	out.oauthConfig.Scopes = []string{"identity"}
	out.SetUserAgent("secretauth/1.0")
	return &out
}

func (r *RedditOAuth2) FixedState() string {
	return r.State
}

// SetUserAgent replaces the User-Agent sent to reddit.
func (r *RedditOAuth2) SetUserAgent(userAgent string) {
	r.Header.Set("User-Agent", userAgent)
}

func (r *RedditOAuth2) Begin(state string, scopes []string) string {
	if r.Duration == "" {
		return r.authCodeURL(state, scopes)
	}
	return r.authCodeURL(state, scopes, oauth2.SetAuthURLParam("duration", r.Duration))
}
