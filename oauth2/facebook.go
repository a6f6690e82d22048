package oauth2

import (
	sa "github.com/panyam/secretauth"
	"golang.org/x/oauth2/facebook"
)

type FacebookOAuth2 struct {
	*BaseOAuth2
}

func NewFacebookOAuth2(clientId string, clientSecret string, callbackUrl string) *FacebookOAuth2 {
	out := FacebookOAuth2{
		BaseOAuth2: NewBaseOAuth2(sa.ProviderFacebook, clientId, clientSecret, callbackUrl),
	}
	out.UserInfoURL = "https://graph.facebook.com/me?fields=id,name"
	out.oauthConfig.Endpoint = facebook.Endpoint
	out.oauthConfig.Scopes = []string{"public_profile"}
	return &out
}
