//go:build !wasm
// +build !wasm

// Package gorm provides a GORM-based implementation of sa.AccountStore.
// It supports any database that GORM supports (PostgreSQL, SQLite, etc.)
// and is suitable for production deployments requiring relational database storage.
//
// # Database Schema
//
// The package auto-migrates a single accounts table. Username and each
// provider id column carry a unique index; upserts rely on them through
// INSERT ... ON CONFLICT DO NOTHING.
//
// # Usage
//
//	db, _ := gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
//	gormstore.AutoMigrate(db)
//	accountStore := gormstore.NewAccountStore(db)
package gorm
