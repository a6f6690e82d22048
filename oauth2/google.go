package oauth2

import (
	sa "github.com/panyam/secretauth"
	"golang.org/x/oauth2/google"
)

type GoogleOAuth2 struct {
	*BaseOAuth2
}

func NewGoogleOAuth2(clientId string, clientSecret string, callbackUrl string) *GoogleOAuth2 {
	out := GoogleOAuth2{
		BaseOAuth2: NewBaseOAuth2(sa.ProviderGoogle, clientId, clientSecret, callbackUrl),
	}
	out.UserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"
	out.oauthConfig.Endpoint = google.Endpoint
	out.oauthConfig.Scopes = []string{"profile"}
	return &out
}
