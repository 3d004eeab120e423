package repositories

import (
	"errors"

	"crm_backend/internal/models"

	"gorm.io/gorm"
)

var ErrSubAccountNotFound = errors.New("sub account not found")

type TenantRepository interface {
	CreateAgency(db *gorm.DB, agency *models.Agency) error
	CreateSubAccount(db *gorm.DB, sub *models.SubAccount) error
	FindSubAccountByID(db *gorm.DB, id string) (*models.SubAccount, error)
	FindDefaultSubAccount(db *gorm.DB, ownerID string) (*models.SubAccount, error)
	FindSubAccountsByOwner(db *gorm.DB, ownerID string) ([]models.SubAccount, error)
}

type TenantRepositoryImpl struct{}

func NewTenantRepository() TenantRepository {
	return &TenantRepositoryImpl{}
}

func (r *TenantRepositoryImpl) CreateAgency(db *gorm.DB, agency *models.Agency) error {
	return db.Create(agency).Error
}

func (r *TenantRepositoryImpl) CreateSubAccount(db *gorm.DB, sub *models.SubAccount) error {
	return db.Create(sub).Error
}

func (r *TenantRepositoryImpl) FindSubAccountByID(db *gorm.DB, id string) (*models.SubAccount, error) {
	var sub models.SubAccount
	if err := db.First(&sub, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSubAccountNotFound
		}
		return nil, err
	}
	return &sub, nil
}

func (r *TenantRepositoryImpl) FindDefaultSubAccount(db *gorm.DB, ownerID string) (*models.SubAccount, error) {
	var sub models.SubAccount
	err := db.Where("owner_id = ?", ownerID).Order("is_default DESC, created_at ASC").First(&sub).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSubAccountNotFound
		}
		return nil, err
	}
	return &sub, nil
}

func (r *TenantRepositoryImpl) FindSubAccountsByOwner(db *gorm.DB, ownerID string) ([]models.SubAccount, error) {
	var subs []models.SubAccount
	err := db.Where("owner_id = ?", ownerID).Order("created_at ASC").Find(&subs).Error
	return subs, err
}
