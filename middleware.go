package secretauth

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

type accountCtxKey struct{}

// WithAccount returns a context carrying the current account.
func WithAccount(ctx context.Context, account *Account) context.Context {
	return context.WithValue(ctx, accountCtxKey{}, account)
}

// AccountFromContext returns the account placed by ExtractAccount, or nil.
func AccountFromContext(ctx context.Context) *Account {
	account, _ := ctx.Value(accountCtxKey{}).(*Account)
	return account
}

// Middleware resolves the current account of a request.
type Middleware struct {
	Sessions *SessionManager

	// Optional. Enables "Authorization: Bearer <jwt>" as an alternative to
	// the session cookie.
	Tokens *TokenIssuer

	AuthTokenHeaderName string
	CallbackURLParam    string

	// Where EnsureAccount sends anonymous requests. Empty means a 401.
	LoginURL string
}

/**
 * Ensures that config values have reasonable defaults.
 */
func (a *Middleware) EnsureReasonableDefaults() {
	if a.AuthTokenHeaderName == "" {
		a.AuthTokenHeaderName = "Authorization"
	}
	if a.CallbackURLParam == "" {
		a.CallbackURLParam = "callbackURL"
	}
}

// CurrentAccount resolves the account from the session first and then from
// any bearer token. Failures of either degrade to nil.
func (a *Middleware) CurrentAccount(r *http.Request) *Account {
	a.EnsureReasonableDefaults()
	ctx := r.Context()
	if account := AccountFromContext(ctx); account != nil {
		return account
	}

	if account, err := a.Sessions.Deserialize(ctx); err == nil {
		return account
	}

	if a.Tokens == nil {
		return nil
	}
	for _, header := range r.Header.Values(a.AuthTokenHeaderName) {
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			continue
		}
		accountId, err := a.Tokens.Verify(token)
		if err != nil {
			slog.Warn("error verifying bearer token", "err", err)
			continue
		}
		if account, err := a.Sessions.DeserializeToken(ctx, accountId); err == nil {
			return account
		}
	}
	return nil
}

// ExtractAccount places the current account, if any, in the request context.
// It never rejects a request; use EnsureAccount for that.
func (a *Middleware) ExtractAccount(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if account := a.CurrentAccount(r); account != nil {
			r = r.WithContext(WithAccount(r.Context(), account))
		}
		next.ServeHTTP(w, r)
	})
}

// EnsureAccount is ExtractAccount that redirects (or 401s) anonymous requests.
func (a *Middleware) EnsureAccount(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		account := a.CurrentAccount(r)
		if account == nil {
			if a.LoginURL == "" {
				http.Error(w, "Login Required", http.StatusUnauthorized)
				return
			}
			encodedUrl := strings.Replace(url.QueryEscape(r.URL.Path), "+", "%20", -1)
			http.Redirect(w, r, fmt.Sprintf("%s?%s=%s", a.LoginURL, a.CallbackURLParam, encodedUrl), http.StatusFound)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithAccount(r.Context(), account)))
	})
}
