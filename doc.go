// Package secretauth authenticates users of the secrets app, either with a
// local username and password or through Google, Facebook or Reddit.
//
// Every login method resolves to the same kind of record, an Account. An
// Account has one local facet (username and password hash) and one facet per
// federated provider (that provider's external id). Facets are never merged:
// an account created by a Google login has only a Google id, and a local
// registration has only a username.
//
// # Components
//
// CredentialVerifier registers local accounts and checks passwords. Hashes
// are argon2id by default (bcrypt via BcryptHasher) and an unknown username
// costs the same hash computation as a wrong password.
//
// ProviderAdapter implementations live in the oauth2 subpackage. Each one
// builds the authorization redirect and, on callback, exchanges the code and
// fetches the stable external id.
//
// Reconciler maps (provider, external id) to exactly one Account through
// AccountStore.UpsertByExternalID. Stores in stores/fs, stores/gorm and
// stores/gae make that upsert atomic; for other stores the reconciler
// serializes concurrent first logins per key.
//
// SessionManager binds an scs session to an account id and resolves it back
// on later requests.
//
// Orchestrator runs each attempt through the states Idle, Challenging or
// Verifying, HandshakePending, and finally Authenticated or Failed.
//
// # Basic Usage
//
//	store := fs.NewFSAccountStore("/path/to/storage")
//	o := secretauth.NewOrchestrator(store, scs.New(), oauth2.NewAdapter(secretauth.ProviderGoogle))
//	app := secretauth.NewSecretsApp(o, store)
//	http.ListenAndServe(":8080", app.Handler())
//
// Orchestrator methods need a context carrying a loaded session, which
// SessionManager.LoadAndSave provides for HTTP handlers.
//
// # Errors
//
// Failed attempts carry one of the sentinel errors (ErrDuplicateUsername,
// ErrNotFound, ErrInvalidCredential, ErrHandshakeFailed, ErrStoreUnavailable,
// ErrUnknownSession). NewAuthError turns them into what a client is shown.
package secretauth
