package oauth2

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"

	sa "github.com/panyam/secretauth"
	"golang.org/x/oauth2"
)

// BaseOAuth2 carries the handshake shared by every provider: build the
// authorization URL, exchange the returned code and fetch a profile whose
// IDField becomes the external identity.
type BaseOAuth2 struct {
	ClientId     string
	ClientSecret string
	CallbackURL  string

	// UserInfoURL is the profile endpoint. Can be overridden for testing.
	UserInfoURL string

	// Name of the profile field holding the provider's user id
	IDField string

	// Sent on every request to the provider (token exchange and profile)
	Header http.Header

	Logger *slog.Logger

	provider    sa.Provider
	oauthConfig oauth2.Config
	httpClient  *http.Client
}

// NewBaseOAuth2 builds the base for provider. Empty arguments fall back to
// OAUTH2_<PROVIDER>_CLIENT_ID, OAUTH2_<PROVIDER>_CLIENT_SECRET and
// OAUTH2_<PROVIDER>_CALLBACK_URL.
func NewBaseOAuth2(provider sa.Provider, clientId string, clientSecret string, callbackUrl string) *BaseOAuth2 {
	if clientId == "" {
		clientId = providerEnv(provider, "CLIENT_ID")
	}
	if clientSecret == "" {
		clientSecret = providerEnv(provider, "CLIENT_SECRET")
	}
	if callbackUrl == "" {
		callbackUrl = providerEnv(provider, "CALLBACK_URL")
	}
	return &BaseOAuth2{
		ClientId:     clientId,
		ClientSecret: clientSecret,
		CallbackURL:  callbackUrl,
		IDField:      "id",
		Header:       http.Header{},
		provider:     provider,
		oauthConfig: oauth2.Config{
			ClientID:     clientId,
			ClientSecret: clientSecret,
			RedirectURL:  callbackUrl,
		},
	}
}

func providerEnv(provider sa.Provider, name string) string {
	return strings.TrimSpace(os.Getenv(fmt.Sprintf("OAUTH2_%s_%s", strings.ToUpper(string(provider)), name)))
}

func (b *BaseOAuth2) logger() *slog.Logger {
	if b.Logger != nil {
		return b.Logger
	}
	return slog.Default()
}

func (b *BaseOAuth2) Name() sa.Provider {
	return b.provider
}

// FixedState is empty: a fresh state is generated for every attempt.
func (b *BaseOAuth2) FixedState() string {
	return ""
}

// Configured reports whether the client credentials are present.
func (b *BaseOAuth2) Configured() bool {
	return b.ClientId != "" && b.ClientSecret != ""
}

// Scopes requested when Begin is called without any.
func (b *BaseOAuth2) Scopes() []string {
	return b.oauthConfig.Scopes
}

// SetHTTPClient replaces the client used for the token exchange and the
// profile fetch.
func (b *BaseOAuth2) SetHTTPClient(client *http.Client) {
	b.httpClient = client
}

// SetOAuthEndpoint overrides the provider's authorization and token URLs.
func (b *BaseOAuth2) SetOAuthEndpoint(endpoint oauth2.Endpoint) {
	b.oauthConfig.Endpoint = endpoint
}

func (b *BaseOAuth2) Begin(state string, scopes []string) string {
	return b.authCodeURL(state, scopes)
}

func (b *BaseOAuth2) authCodeURL(state string, scopes []string, opts ...oauth2.AuthCodeOption) string {
	config := b.oauthConfig
	if len(scopes) > 0 {
		config.Scopes = scopes
	}
	return config.AuthCodeURL(state, opts...)
}

// Complete exchanges the callback's code for a token and fetches the
// profile. It makes exactly one attempt at each.
func (b *BaseOAuth2) Complete(ctx context.Context, params url.Values) (*sa.ExternalIdentity, error) {
	if reason := params.Get("error"); reason != "" {
		return nil, sa.NewHandshakeError(b.provider, "authorize", fmt.Errorf("provider returned %q", reason))
	}
	code := params.Get("code")
	if code == "" {
		return nil, sa.NewHandshakeError(b.provider, "authorize", fmt.Errorf("missing code"))
	}

	client := b.client()
	token, err := b.oauthConfig.Exchange(context.WithValue(ctx, oauth2.HTTPClient, client), code)
	if err != nil {
		b.logger().Info("invalid code exchange", "provider", b.provider, "err", err)
		return nil, sa.NewHandshakeError(b.provider, "exchange", err)
	}

	profile, err := b.getUserData(ctx, client, token)
	if err != nil {
		b.logger().Info("error fetching profile", "provider", b.provider, "err", err)
		return nil, sa.NewHandshakeError(b.provider, "profile", err)
	}
	externalID, err := profileID(profile, b.IDField)
	if err != nil {
		return nil, sa.NewHandshakeError(b.provider, "profile", err)
	}
	return &sa.ExternalIdentity{Provider: b.provider, ExternalID: externalID, Profile: profile}, nil
}

func (b *BaseOAuth2) getUserData(ctx context.Context, client *http.Client, token *oauth2.Token) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.UserInfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)
	req.Header.Set("Accept", "application/json")

	response, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed getting user info: %w", err)
	}
	defer response.Body.Close()

	contents, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, fmt.Errorf("failed read response: %w", err)
	}
	if response.StatusCode < 200 || response.StatusCode > 299 {
		return nil, fmt.Errorf("user info returned status %d", response.StatusCode)
	}

	var userInfo map[string]any
	decoder := json.NewDecoder(bytes.NewReader(contents))
	decoder.UseNumber()
	if err := decoder.Decode(&userInfo); err != nil {
		return nil, fmt.Errorf("failed to parse user info: %w", err)
	}
	return userInfo, nil
}

func (b *BaseOAuth2) client() *http.Client {
	client := b.httpClient
	if client == nil {
		client = http.DefaultClient
	}
	if len(b.Header) == 0 {
		return client
	}
	out := *client
	out.Transport = &HeaderTransport{Base: client.Transport, Header: b.Header}
	return &out
}

func profileID(profile map[string]any, field string) (string, error) {
	switch id := profile[field].(type) {
	case string:
		if id != "" {
			return id, nil
		}
	case json.Number:
		return id.String(), nil
	}
	return "", fmt.Errorf("profile has no %q", field)
}
