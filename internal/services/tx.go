package services

import (
	"gorm.io/gorm"

	"crm_backend/pkg/apperrors"
)

// inTx выполняет fn в транзакции. Если db уже транзакция (тесты, DBMiddleware),
// gorm использует savepoint. AppError из fn возвращается как есть.
func inTx(db *gorm.DB, fn func(tx *gorm.DB) error) error {
	err := db.Transaction(fn)
	if err == nil {
		return nil
	}
	if _, ok := apperrors.AsAppError(err); ok {
		return err
	}
	return apperrors.InternalError(err)
}
