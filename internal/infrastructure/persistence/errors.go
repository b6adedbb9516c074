package persistence

import (
	"errors"
	"fmt"

	"github.com/mandi/backend/internal/domain/shared"
	"gorm.io/gorm"
)

// translateError maps gorm errors onto the domain taxonomy.
// Domain errors pass through, anything unrecognised becomes a storage failure.
func translateError(err error, op string) error {
	if err == nil {
		return nil
	}
	var de *shared.DomainError
	if errors.As(err, &de) {
		return err
	}
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return shared.ErrNotFound.WithCause(err)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return shared.ErrAlreadyExists.WithCause(err)
	case IsRetryableTxError(err):
		// left untranslated so the transaction manager can retry it
		return err
	}
	return shared.ErrStorageFailure.WithCause(fmt.Errorf("%s: %w", op, err))
}
