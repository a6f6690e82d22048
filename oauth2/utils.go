package oauth2

import (
	"net/http"

	sa "github.com/panyam/secretauth"
)

var (
	_ sa.ProviderAdapter = (*GoogleOAuth2)(nil)
	_ sa.ProviderAdapter = (*FacebookOAuth2)(nil)
	_ sa.ProviderAdapter = (*RedditOAuth2)(nil)
)

// HeaderTransport wraps an http.RoundTripper to add fixed headers
type HeaderTransport struct {
	Base   http.RoundTripper
	Header http.Header
}

// RoundTrip implements http.RoundTripper
func (t *HeaderTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if len(t.Header) > 0 {
		// Clone the request to avoid mutating the original
		req2 := req.Clone(req.Context())
		for name, values := range t.Header {
			req2.Header[name] = values
		}
		req = req2
	}

	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(req)
}

// NewAdapter builds the adapter for provider from the OAUTH2_* environment.
// It returns nil for providers without client credentials.
func NewAdapter(provider sa.Provider) sa.ProviderAdapter {
	var base *BaseOAuth2
	var adapter sa.ProviderAdapter
	switch provider {
	case sa.ProviderGoogle:
		a := NewGoogleOAuth2("", "", "")
		base, adapter = a.BaseOAuth2, a
	case sa.ProviderFacebook:
		a := NewFacebookOAuth2("", "", "")
		base, adapter = a.BaseOAuth2, a
	case sa.ProviderReddit:
		a := NewRedditOAuth2("", "", "")
		base, adapter = a.BaseOAuth2, a
	default:
		return nil
	}
	if !base.Configured() {
		return nil
	}
	return adapter
}
