package secretauth

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/singleflight"
)

// Reconciler maps an external identity to exactly one Account.
type Reconciler struct {
	Store  AccountStore
	Logger *slog.Logger

	// SerializeByKey funnels concurrent resolutions of the same
	// (provider, externalID) through a single store call. NewReconciler turns
	// it on for stores that do not implement AtomicUpserter.
	SerializeByKey bool

	group singleflight.Group
}

func NewReconciler(store AccountStore) *Reconciler {
	atomic := false
	if au, ok := store.(AtomicUpserter); ok {
		atomic = au.AtomicUpsert()
	}
	return &Reconciler{Store: store, SerializeByKey: !atomic}
}

func (r *Reconciler) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}

// Resolve returns the account owning (provider, externalID), creating one with
// only that provider's facet when none exists. Existing accounts are returned
// as stored; their profile is not refreshed.
func (r *Reconciler) Resolve(ctx context.Context, provider Provider, externalID string) (*Account, error) {
	if strings.TrimSpace(externalID) == "" {
		return nil, NewHandshakeError(provider, "profile", fmt.Errorf("empty external id"))
	}
	if err := (&Account{}).SetExternalID(provider, externalID); err != nil {
		return nil, fmt.Errorf("%w: %s", err, provider)
	}

	if !r.SerializeByKey {
		return r.upsert(ctx, provider, externalID)
	}

	// attempts joined on the key must not inherit the first caller's cancellation
	flightCtx := context.WithoutCancel(ctx)
	key := string(provider) + ":" + externalID
	v, err, _ := r.group.Do(key, func() (any, error) {
		return r.upsert(flightCtx, provider, externalID)
	})
	if err != nil {
		return nil, err
	}
	// callers sharing a flight must not share a pointer
	return v.(*Account).Clone(), nil
}

func (r *Reconciler) upsert(ctx context.Context, provider Provider, externalID string) (*Account, error) {
	account, created, err := r.Store.UpsertByExternalID(ctx, provider, externalID, &Account{})
	if err != nil {
		return nil, err
	}
	if created {
		r.logger().Info("created account for external identity", "provider", provider, "accountId", account.ID)
	}
	return account, nil
}
