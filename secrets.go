package secretauth

import (
	"context"
	"fmt"
)

// SecretsService owns the application payload of an account. It never reads
// or writes any auth facet.
type SecretsService struct {
	Store AccountStore
}

// List returns every account that has submitted a secret.
func (s *SecretsService) List(ctx context.Context) ([]*Account, error) {
	return s.Store.ListWithSecrets(ctx)
}

// Submit replaces the account's secret.
func (s *SecretsService) Submit(ctx context.Context, accountId, secret string) error {
	if secret == "" {
		return fmt.Errorf("%w: secret", ErrMissingField)
	}
	return s.set(ctx, accountId, secret)
}

// Delete clears the account's secret. The account itself stays.
func (s *SecretsService) Delete(ctx context.Context, accountId string) error {
	return s.set(ctx, accountId, "")
}

func (s *SecretsService) set(ctx context.Context, accountId, secret string) error {
	account, err := s.Store.FindByID(ctx, accountId)
	if err != nil {
		return err
	}
	account.Secret = secret
	return s.Store.Save(ctx, account)
}
