package secretauth

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
)

// SecretsApp is the thin controller layer of the secrets application. It
// turns requests into orchestrator calls and attempt outcomes into redirects.
type SecretsApp struct {
	Orchestrator *Orchestrator
	Secrets      *SecretsService
	Local        LocalAuth
	Middleware   Middleware

	// Optional. Enables GET /api/token.
	Tokens *TokenIssuer

	Logger *slog.Logger

	router *mux.Router
}

// NewSecretsApp wires the controllers around an orchestrator and the store
// it was built on.
func NewSecretsApp(o *Orchestrator, store AccountStore) *SecretsApp {
	return (&SecretsApp{
		Orchestrator: o,
		Secrets:      &SecretsService{Store: store},
	}).EnsureDefaults()
}

func (a *SecretsApp) EnsureDefaults() *SecretsApp {
	a.Local.Orchestrator = a.Orchestrator
	a.Local.EnsureDefaults()
	if a.Middleware.Sessions == nil {
		a.Middleware.Sessions = a.Orchestrator.Sessions
	}
	if a.Middleware.Tokens == nil {
		a.Middleware.Tokens = a.Tokens
	}
	if a.Middleware.LoginURL == "" {
		a.Middleware.LoginURL = a.Local.LoginURL
	}
	a.Middleware.EnsureReasonableDefaults()
	return a
}

func (a *SecretsApp) logger() *slog.Logger {
	if a.Logger != nil {
		return a.Logger
	}
	return slog.Default()
}

// Handler returns the routes wrapped in session loading.
func (a *SecretsApp) Handler() http.Handler {
	return a.Orchestrator.Sessions.LoadAndSave(a.setupRoutes().router)
}

func (a *SecretsApp) setupRoutes() *SecretsApp {
	if a.router != nil {
		return a
	}
	a.EnsureDefaults()
	r := mux.NewRouter()
	r.HandleFunc("/register", a.Local.HandleSignup).Methods(http.MethodPost)
	r.Handle("/login", &a.Local).Methods(http.MethodPost)
	r.HandleFunc("/auth/{provider}", a.onBeginFederated).Methods(http.MethodGet)
	r.HandleFunc("/auth/{provider}/secrets", a.onFederatedCallback).Methods(http.MethodGet)
	r.HandleFunc("/logout", a.onLogout).Methods(http.MethodGet)

	r.Handle("/secrets", a.Middleware.EnsureAccount(http.HandlerFunc(a.onListSecrets))).Methods(http.MethodGet)
	r.Handle("/submit", a.Middleware.EnsureAccount(http.HandlerFunc(a.onSubmitSecret))).Methods(http.MethodPost)
	r.Handle("/delete", a.Middleware.EnsureAccount(http.HandlerFunc(a.onDeleteSecret))).Methods(http.MethodGet)
	if a.Tokens != nil {
		r.Handle("/api/token", a.Middleware.EnsureAccount(http.HandlerFunc(a.onIssueToken))).Methods(http.MethodGet)
	}
	a.router = r
	return a
}

func (a *SecretsApp) onBeginFederated(w http.ResponseWriter, r *http.Request) {
	provider := Provider(mux.Vars(r)["provider"])
	redirectURL, att := a.Orchestrator.BeginFederated(r.Context(), provider)
	if att.State == StateFailed {
		if errors.Is(att.Err, ErrUnknownProvider) {
			http.NotFound(w, r)
			return
		}
		http.Redirect(w, r, a.Local.LoginURL, http.StatusFound)
		return
	}
	http.Redirect(w, r, redirectURL, http.StatusFound)
}

func (a *SecretsApp) onFederatedCallback(w http.ResponseWriter, r *http.Request) {
	provider := Provider(mux.Vars(r)["provider"])
	att := a.Orchestrator.CompleteFederated(r.Context(), provider, r.URL.Query())
	if !att.Succeeded() {
		http.Redirect(w, r, a.Local.LoginURL, http.StatusFound)
		return
	}
	http.Redirect(w, r, a.Local.SuccessURL, http.StatusFound)
}

func (a *SecretsApp) onLogout(w http.ResponseWriter, r *http.Request) {
	if err := a.Orchestrator.Logout(r.Context()); err != nil {
		a.logger().Warn("error clearing session", "err", err)
	}
	http.Redirect(w, r, a.Local.LoginURL, http.StatusFound)
}

func (a *SecretsApp) onListSecrets(w http.ResponseWriter, r *http.Request) {
	accounts, err := a.Secrets.List(r.Context())
	if err != nil {
		a.logger().Warn("error listing secrets", "err", err)
		writeJSON(w, http.StatusServiceUnavailable, NewAuthError(err))
		return
	}
	secrets := make([]string, 0, len(accounts))
	for _, account := range accounts {
		secrets = append(secrets, account.Secret)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"secrets":   secrets,
		"hasSecret": AccountFromContext(r.Context()).Secret != "",
	})
}

func (a *SecretsApp) onSubmitSecret(w http.ResponseWriter, r *http.Request) {
	account := AccountFromContext(r.Context())
	if err := a.Secrets.Submit(r.Context(), account.ID, r.FormValue("secret")); err != nil {
		if errors.Is(err, ErrMissingField) {
			http.Error(w, "secret required", http.StatusBadRequest)
			return
		}
		a.logger().Warn("error saving secret", "accountId", account.ID, "err", err)
		http.Error(w, "could not save secret", http.StatusServiceUnavailable)
		return
	}
	http.Redirect(w, r, a.Local.SuccessURL, http.StatusFound)
}

func (a *SecretsApp) onDeleteSecret(w http.ResponseWriter, r *http.Request) {
	account := AccountFromContext(r.Context())
	if err := a.Secrets.Delete(r.Context(), account.ID); err != nil {
		a.logger().Warn("error deleting secret", "accountId", account.ID, "err", err)
		http.Error(w, "could not delete secret", http.StatusServiceUnavailable)
		return
	}
	http.Redirect(w, r, a.Local.SuccessURL, http.StatusFound)
}

func (a *SecretsApp) onIssueToken(w http.ResponseWriter, r *http.Request) {
	account := AccountFromContext(r.Context())
	token, err := a.Tokens.Issue(account)
	if err != nil {
		a.logger().Warn("error signing token", "err", err)
		http.Error(w, "could not issue token", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"access_token": token,
		"token_type":   "Bearer",
		"expires_in":   int(a.Tokens.TTL.Seconds()),
	})
}
