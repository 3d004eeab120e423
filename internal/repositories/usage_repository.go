package repositories

import (
	"errors"

	"crm_backend/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrUsageRecordNotFound = errors.New("usage record not found")

// UsageRepository - хранилище месячных счетчиков использования фич
type UsageRepository interface {
	// FindOrCreate возвращает запись (account, feature, month), создавая ее с нулем.
	// Конкурентные вызовы безопасны: дубликат по уникальному индексу игнорируется.
	FindOrCreate(db *gorm.DB, accountID, feature, month string, limitSnapshot *int64) (*models.UsageRecord, error)
	// Increment безусловно прибавляет amount
	Increment(db *gorm.DB, recordID string, amount int64) error
	// IncrementWithinLimit прибавляет amount, только если итог не превысит limit.
	// Возвращает false, если строка не обновилась.
	IncrementWithinLimit(db *gorm.DB, recordID string, amount, limit int64) (bool, error)
	FindByID(db *gorm.DB, id string) (*models.UsageRecord, error)
	FindByAccountMonth(db *gorm.DB, accountID, month string) ([]models.UsageRecord, error)
}

type UsageRepositoryImpl struct{}

func NewUsageRepository() UsageRepository {
	return &UsageRepositoryImpl{}
}

func (r *UsageRepositoryImpl) FindOrCreate(db *gorm.DB, accountID, feature, month string, limitSnapshot *int64) (*models.UsageRecord, error) {
	record := &models.UsageRecord{
		AccountID:   accountID,
		FeatureName: feature,
		Month:       month,
		UsageLimit:  limitSnapshot,
	}

	err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "account_id"}, {Name: "feature_name"}, {Name: "month"}},
		DoNothing: true,
	}).Create(record).Error
	if err != nil {
		return nil, err
	}

	var stored models.UsageRecord
	err = db.Where("account_id = ? AND feature_name = ? AND month = ?", accountID, feature, month).
		First(&stored).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUsageRecordNotFound
		}
		return nil, err
	}
	return &stored, nil
}

func (r *UsageRepositoryImpl) Increment(db *gorm.DB, recordID string, amount int64) error {
	result := db.Model(&models.UsageRecord{}).
		Where("id = ?", recordID).
		Update("usage_count", gorm.Expr("usage_count + ?", amount))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrUsageRecordNotFound
	}
	return nil
}

func (r *UsageRepositoryImpl) IncrementWithinLimit(db *gorm.DB, recordID string, amount, limit int64) (bool, error) {
	result := db.Model(&models.UsageRecord{}).
		Where("id = ? AND usage_count + ? <= ?", recordID, amount, limit).
		Update("usage_count", gorm.Expr("usage_count + ?", amount))
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *UsageRepositoryImpl) FindByID(db *gorm.DB, id string) (*models.UsageRecord, error) {
	var record models.UsageRecord
	if err := db.First(&record, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUsageRecordNotFound
		}
		return nil, err
	}
	return &record, nil
}

func (r *UsageRepositoryImpl) FindByAccountMonth(db *gorm.DB, accountID, month string) ([]models.UsageRecord, error) {
	var records []models.UsageRecord
	err := db.Where("account_id = ? AND month = ?", accountID, month).
		Order("feature_name ASC").
		Find(&records).Error
	return records, err
}
