package secretauth

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Error codes returned to JSON clients
const (
	ErrCodeMissingField      = "missing_field"
	ErrCodeInvalidCreds      = "invalid_credentials"
	ErrCodeDuplicateUsername = "username_taken"
	ErrCodeHandshakeFailed   = "handshake_failed"
	ErrCodeUnavailable       = "unavailable"
)

// AuthError is the client facing form of a failed attempt.
type AuthError struct {
	Code    string `json:"code"`
	Message string `json:"error"`
	Field   string `json:"field,omitempty"`
}

func (e *AuthError) Error() string { return e.Message }

// NewAuthError maps an attempt failure to what the client is told. Unknown
// usernames and wrong passwords get the same answer.
func NewAuthError(err error) *AuthError {
	switch {
	case errors.Is(err, ErrMissingField):
		field := ""
		if _, after, ok := strings.Cut(err.Error(), ": "); ok && (after == "username" || after == "password") {
			field = after
		}
		return &AuthError{Code: ErrCodeMissingField, Message: "username and password required", Field: field}
	case errors.Is(err, ErrDuplicateUsername):
		return &AuthError{Code: ErrCodeDuplicateUsername, Message: "Username already taken", Field: "username"}
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrInvalidCredential):
		return &AuthError{Code: ErrCodeInvalidCreds, Message: "Invalid credentials", Field: "password"}
	case errors.Is(err, ErrHandshakeFailed), errors.Is(err, ErrUnknownProvider):
		return &AuthError{Code: ErrCodeHandshakeFailed, Message: "Login with provider failed"}
	}
	return &AuthError{Code: ErrCodeUnavailable, Message: "Please try again later"}
}

// AuthErrorHandler can take over the response for a failed attempt. It
// returns false to fall back to the default handling.
type AuthErrorHandler func(err *AuthError, w http.ResponseWriter, r *http.Request) bool

// Allows local username/password based authentication
type LocalAuth struct {
	Orchestrator *Orchestrator

	// Form field names
	UsernameField string
	PasswordField string

	// Where browsers go after a successful login or signup
	SuccessURL string

	// Where browsers go after a failed login (LoginURL) or signup (SignupURL)
	LoginURL  string
	SignupURL string

	// OnLoginError and OnSignupError are called when an attempt fails. If nil
	// (or returning false), JSON clients get a JSON error and browsers a redirect.
	OnLoginError  AuthErrorHandler
	OnSignupError AuthErrorHandler
}

// EnsureDefaults fills in the routes of the original secrets app.
func (a *LocalAuth) EnsureDefaults() *LocalAuth {
	if a.UsernameField == "" {
		a.UsernameField = "username"
	}
	if a.PasswordField == "" {
		a.PasswordField = "password"
	}
	if a.SuccessURL == "" {
		a.SuccessURL = "/secrets"
	}
	if a.LoginURL == "" {
		a.LoginURL = "/login"
	}
	if a.SignupURL == "" {
		a.SignupURL = "/register"
	}
	return a
}

// ServeHTTP handles login requests
func (a *LocalAuth) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.EnsureDefaults()
	creds, err := a.parseCredentials(r)
	if err != nil {
		a.handleError(NewAuthError(err), a.OnLoginError, a.LoginURL, w, r)
		return
	}
	att := a.Orchestrator.VerifyLocal(r.Context(), creds.Username, creds.Password)
	a.finish(att, a.OnLoginError, a.LoginURL, w, r)
}

// HandleSignup registers a new local account and logs it in
func (a *LocalAuth) HandleSignup(w http.ResponseWriter, r *http.Request) {
	a.EnsureDefaults()
	creds, err := a.parseCredentials(r)
	if err != nil {
		a.handleError(NewAuthError(err), a.OnSignupError, a.SignupURL, w, r)
		return
	}
	att := a.Orchestrator.Register(r.Context(), creds.Username, creds.Password)
	a.finish(att, a.OnSignupError, a.SignupURL, w, r)
}

func (a *LocalAuth) finish(att *Attempt, onError AuthErrorHandler, failureURL string, w http.ResponseWriter, r *http.Request) {
	if !att.Succeeded() {
		a.handleError(NewAuthError(att.Err), onError, failureURL, w, r)
		return
	}
	if wantsJSON(r) {
		writeJSON(w, http.StatusOK, map[string]any{
			"id":       att.Account.ID,
			"username": att.Account.Username,
		})
		return
	}
	http.Redirect(w, r, a.SuccessURL, http.StatusFound)
}

func (a *LocalAuth) parseCredentials(r *http.Request) (*Credentials, error) {
	creds := &Credentials{}
	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "application/json") {
		var data map[string]any
		if err := json.NewDecoder(r.Body).Decode(&data); err != nil || data == nil {
			return nil, fmt.Errorf("%w: invalid post body", ErrMissingField)
		}
		if u, ok := data[a.UsernameField].(string); ok {
			creds.Username = u
		}
		if p, ok := data[a.PasswordField].(string); ok {
			creds.Password = p
		}
	} else {
		if err := r.ParseForm(); err != nil {
			return nil, fmt.Errorf("%w: error parsing form", ErrMissingField)
		}
		creds.Username = r.FormValue(a.UsernameField)
		creds.Password = r.FormValue(a.PasswordField)
	}
	if err := creds.Validate(); err != nil {
		return nil, err
	}
	return creds, nil
}

func (a *LocalAuth) handleError(err *AuthError, onError AuthErrorHandler, failureURL string, w http.ResponseWriter, r *http.Request) {
	if onError != nil && onError(err, w, r) {
		return
	}
	if !wantsJSON(r) {
		http.Redirect(w, r, failureURL, http.StatusFound)
		return
	}
	// Use 400 for validation errors, 409 for taken usernames, 401 for invalid credentials
	statusCode := http.StatusUnauthorized
	switch err.Code {
	case ErrCodeMissingField:
		statusCode = http.StatusBadRequest
	case ErrCodeDuplicateUsername:
		statusCode = http.StatusConflict
	case ErrCodeUnavailable:
		statusCode = http.StatusServiceUnavailable
	}
	writeJSON(w, statusCode, err)
}

// wantsJSON reports whether the client is an API client rather than a browser.
func wantsJSON(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") ||
		strings.Contains(r.Header.Get("Accept"), "application/json")
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
