//go:build !wasm
// +build !wasm

// Package gae provides a Google Cloud Datastore implementation of
// sa.AccountStore. It supports multi-tenancy through Datastore namespaces.
//
// # Datastore Kinds
//
//   - Account: one entity per account, keyed by account id
//   - Username: username -> account id, the uniqueness guard for usernames
//   - ExternalID: "<provider>:<external id>" -> account id
//
// Index entities are only ever written in the same transaction as the
// account they point to, which makes the upsert atomic.
//
// # Usage
//
//	client, _ := datastore.NewClient(ctx, projectID)
//	accountStore := gae.NewAccountStore(client, "")  // default namespace
package gae
