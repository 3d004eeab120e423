package repositories

import (
	"errors"

	"crm_backend/internal/models"

	"gorm.io/gorm"
)

var ErrCampaignNotFound = errors.New("campaign not found")

type CampaignRepository interface {
	Create(db *gorm.DB, campaign *models.Campaign) error
	FindByID(db *gorm.DB, id string) (*models.Campaign, error)
	List(db *gorm.DB, filter CampaignFilter) ([]models.Campaign, int64, error)
	Update(db *gorm.DB, campaign *models.Campaign) error
	// ClaimForSending атомарно переводит кампанию из from в sending
	ClaimForSending(db *gorm.DB, id string, from ...models.CampaignStatus) (bool, error)
	Delete(db *gorm.DB, id string) error
	CountActive(db *gorm.DB, subAccountIDs []string) (int64, error)
}

type CampaignFilter struct {
	SubAccountIDs []string
	Status        models.CampaignStatus
	Type          models.CampaignType
	Page          int
	PageSize      int
}

type CampaignRepositoryImpl struct{}

func NewCampaignRepository() CampaignRepository {
	return &CampaignRepositoryImpl{}
}

func (r *CampaignRepositoryImpl) Create(db *gorm.DB, campaign *models.Campaign) error {
	return db.Create(campaign).Error
}

func (r *CampaignRepositoryImpl) FindByID(db *gorm.DB, id string) (*models.Campaign, error) {
	var campaign models.Campaign
	if err := db.First(&campaign, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCampaignNotFound
		}
		return nil, err
	}
	return &campaign, nil
}

func (r *CampaignRepositoryImpl) List(db *gorm.DB, filter CampaignFilter) ([]models.Campaign, int64, error) {
	var campaigns []models.Campaign
	var total int64

	query := db.Model(&models.Campaign{}).Where("sub_account_id IN ?", filter.SubAccountIDs)
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.Type != "" {
		query = query.Where("type = ?", filter.Type)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (filter.Page - 1) * filter.PageSize
	err := query.Order("created_at DESC").Limit(filter.PageSize).Offset(offset).Find(&campaigns).Error
	return campaigns, total, err
}

func (r *CampaignRepositoryImpl) Update(db *gorm.DB, campaign *models.Campaign) error {
	return db.Save(campaign).Error
}

// ClaimForSending возвращает false, если статус уже не из from:
// кампанию забрал параллельный запрос или она завершена
func (r *CampaignRepositoryImpl) ClaimForSending(db *gorm.DB, id string, from ...models.CampaignStatus) (bool, error) {
	result := db.Model(&models.Campaign{}).
		Where("id = ? AND status IN ?", id, from).
		Update("status", models.CampaignStatusSending)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *CampaignRepositoryImpl) Delete(db *gorm.DB, id string) error {
	result := db.Delete(&models.Campaign{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrCampaignNotFound
	}
	return nil
}

func (r *CampaignRepositoryImpl) CountActive(db *gorm.DB, subAccountIDs []string) (int64, error) {
	var count int64
	err := db.Model(&models.Campaign{}).
		Where("sub_account_id IN ? AND status = ?", subAccountIDs, models.CampaignStatusActive).
		Count(&count).Error
	return count, err
}
