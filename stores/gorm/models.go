//go:build !wasm
// +build !wasm

package gorm

import (
	"time"

	sa "github.com/panyam/secretauth"
)

// AccountModel is the GORM model for accounts.
//
// Every unique key is a nullable column so that accounts lacking a facet do
// not collide on the empty string.
type AccountModel struct {
	ID           string    `gorm:"primaryKey;size:64"`
	Username     *string   `gorm:"size:255;uniqueIndex"`
	Salt         string    `gorm:"size:128"`
	PasswordHash string    `gorm:"size:255"`
	GoogleID     *string   `gorm:"size:255;uniqueIndex"`
	FacebookID   *string   `gorm:"size:255;uniqueIndex"`
	RedditID     *string   `gorm:"size:255;uniqueIndex"`
	Secret       string    `gorm:"type:text"`
	CreatedAt    time.Time `gorm:"autoCreateTime"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime"`
}

func (AccountModel) TableName() string {
	return "accounts"
}

func (m *AccountModel) ToAccount() *sa.Account {
	return &sa.Account{
		ID:           m.ID,
		Username:     deref(m.Username),
		Salt:         m.Salt,
		PasswordHash: m.PasswordHash,
		GoogleID:     deref(m.GoogleID),
		FacebookID:   deref(m.FacebookID),
		RedditID:     deref(m.RedditID),
		Secret:       m.Secret,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

func AccountToModel(a *sa.Account) *AccountModel {
	return &AccountModel{
		ID:           a.ID,
		Username:     nullable(a.Username),
		Salt:         a.Salt,
		PasswordHash: a.PasswordHash,
		GoogleID:     nullable(a.GoogleID),
		FacebookID:   nullable(a.FacebookID),
		RedditID:     nullable(a.RedditID),
		Secret:       a.Secret,
		CreatedAt:    a.CreatedAt,
		UpdatedAt:    a.UpdatedAt,
	}
}

// externalColumn maps a provider to the column holding its external id.
func externalColumn(provider sa.Provider) (string, bool) {
	switch provider {
	case sa.ProviderGoogle:
		return "google_id", true
	case sa.ProviderFacebook:
		return "facebook_id", true
	case sa.ProviderReddit:
		return "reddit_id", true
	}
	return "", false
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
