//go:build !wasm
// +build !wasm

package gorm

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	sa "github.com/panyam/secretauth"
)

// AutoMigrate runs database migrations for the accounts table
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&AccountModel{})
}

// AccountStore implements sa.AccountStore using GORM
type AccountStore struct {
	db *gorm.DB
}

func NewAccountStore(db *gorm.DB) *AccountStore {
	return &AccountStore{db: db}
}

// AtomicUpsert is true: the unique index on each provider column decides
// which of two concurrent inserts wins.
func (s *AccountStore) AtomicUpsert() bool { return true }

func (s *AccountStore) FindByID(ctx context.Context, id string) (*sa.Account, error) {
	return s.findBy(ctx, "id", id)
}

func (s *AccountStore) FindByUsername(ctx context.Context, username string) (*sa.Account, error) {
	return s.findBy(ctx, "username", username)
}

func (s *AccountStore) findBy(ctx context.Context, column, value string) (*sa.Account, error) {
	if value == "" {
		return nil, sa.ErrNotFound
	}
	var model AccountModel
	if err := s.db.WithContext(ctx).First(&model, column+" = ?", value).Error; err != nil {
		return nil, mapError("find by "+column, err)
	}
	return model.ToAccount(), nil
}

func (s *AccountStore) UpsertByExternalID(ctx context.Context, provider sa.Provider, externalID string, defaults *sa.Account) (*sa.Account, bool, error) {
	column, ok := externalColumn(provider)
	if !ok {
		return nil, false, sa.ErrUnknownProvider
	}
	if externalID == "" {
		return nil, false, fmt.Errorf("%w: external id", sa.ErrMissingField)
	}

	account := defaults.Clone()
	if account == nil {
		account = &sa.Account{}
	}
	if account.ID == "" {
		account.ID = uuid.NewString()
	}
	account.SetExternalID(provider, externalID)

	var out AccountModel
	created := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: column}},
			DoNothing: true,
		}).Create(AccountToModel(account))
		if result.Error != nil {
			return result.Error
		}
		created = result.RowsAffected == 1
		return tx.First(&out, column+" = ?", externalID).Error
	})
	if err != nil {
		return nil, false, mapError("upsert", err)
	}
	return out.ToAccount(), created, nil
}

func (s *AccountStore) Create(ctx context.Context, account *sa.Account) error {
	if account.ID == "" {
		account.ID = uuid.NewString()
	}
	model := AccountToModel(account)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if model.Username != nil {
			var count int64
			if err := tx.Model(&AccountModel{}).Where("username = ?", *model.Username).Count(&count).Error; err != nil {
				return err
			}
			if count > 0 {
				return sa.ErrDuplicateUsername
			}
		}
		return tx.Create(model).Error
	})
	if err != nil {
		return s.writeError(ctx, "create", account, err)
	}
	account.CreatedAt, account.UpdatedAt = model.CreatedAt, model.UpdatedAt
	return nil
}

func (s *AccountStore) Save(ctx context.Context, account *sa.Account) error {
	model := AccountToModel(account)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current AccountModel
		if err := tx.First(&current, "id = ?", account.ID).Error; err != nil {
			return err
		}
		model.CreatedAt = current.CreatedAt
		return tx.Save(model).Error
	})
	if err != nil {
		return s.writeError(ctx, "save", account, err)
	}
	account.CreatedAt, account.UpdatedAt = model.CreatedAt, model.UpdatedAt
	return nil
}

func (s *AccountStore) ListWithSecrets(ctx context.Context) ([]*sa.Account, error) {
	var models []AccountModel
	if err := s.db.WithContext(ctx).Where("secret <> ?", "").Order("created_at").Find(&models).Error; err != nil {
		return nil, mapError("list", err)
	}
	accounts := make([]*sa.Account, len(models))
	for i := range models {
		accounts[i] = models[i].ToAccount()
	}
	return accounts, nil
}

func mapError(op string, err error) error {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return sa.ErrNotFound
	case errors.Is(err, sa.ErrDuplicateUsername):
		return err
	}
	return sa.StoreError(op, err)
}

// writeError maps a failed Create or Save. A unique violation is reported as
// ErrDuplicateUsername only when another account holds the username; a taken
// provider id is a store error.
func (s *AccountStore) writeError(ctx context.Context, op string, account *sa.Account, err error) error {
	if !errors.Is(err, gorm.ErrDuplicatedKey) || account.Username == "" {
		return mapError(op, err)
	}
	var count int64
	if cerr := s.db.WithContext(ctx).Model(&AccountModel{}).
		Where("username = ? AND id <> ?", account.Username, account.ID).
		Count(&count).Error; cerr == nil && count > 0 {
		return sa.ErrDuplicateUsername
	}
	return mapError(op, err)
}
