package repositories

import (
	"errors"
	"strings"

	"crm_backend/internal/models"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrContactNotFound = errors.New("contact not found")

type ContactRepository interface {
	Create(db *gorm.DB, contact *models.Contact) error
	FindByID(db *gorm.DB, id string) (*models.Contact, error)
	FindWithDetails(db *gorm.DB, id string) (*models.Contact, error)
	List(db *gorm.DB, filter ContactFilter) ([]models.Contact, int64, error)
	Update(db *gorm.DB, contact *models.Contact) error
	Delete(db *gorm.DB, id string) error
	UpdateLeadScore(db *gorm.DB, id string, score int) error
	CountBySubAccount(db *gorm.DB, subAccountID string) (int64, error)
	FindAudience(db *gorm.DB, subAccountID string, audience models.CampaignAudience) ([]models.Contact, error)

	CreateActivity(db *gorm.DB, activity *models.ContactActivity) error
	CreateNote(db *gorm.DB, note *models.ContactNote) error
	CreateTask(db *gorm.DB, task *models.ContactTask) error
}

// ContactFilter - фильтры списка контактов
type ContactFilter struct {
	SubAccountIDs []string
	Search        string
	Status        models.ContactStatus
	Tags          []string
	Page          int
	PageSize      int
}

type ContactRepositoryImpl struct{}

func NewContactRepository() ContactRepository {
	return &ContactRepositoryImpl{}
}

func (r *ContactRepositoryImpl) Create(db *gorm.DB, contact *models.Contact) error {
	return db.Create(contact).Error
}

func (r *ContactRepositoryImpl) FindByID(db *gorm.DB, id string) (*models.Contact, error) {
	var contact models.Contact
	if err := db.First(&contact, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrContactNotFound
		}
		return nil, err
	}
	return &contact, nil
}

func (r *ContactRepositoryImpl) FindWithDetails(db *gorm.DB, id string) (*models.Contact, error) {
	var contact models.Contact
	err := db.
		Preload("Activities", func(db *gorm.DB) *gorm.DB { return db.Order("created_at DESC").Limit(50) }).
		Preload("Notes", func(db *gorm.DB) *gorm.DB { return db.Order("created_at DESC") }).
		Preload("Tasks", func(db *gorm.DB) *gorm.DB { return db.Order("created_at DESC") }).
		First(&contact, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrContactNotFound
		}
		return nil, err
	}
	return &contact, nil
}

func (r *ContactRepositoryImpl) List(db *gorm.DB, filter ContactFilter) ([]models.Contact, int64, error) {
	var contacts []models.Contact
	var total int64

	query := db.Model(&models.Contact{}).Where("sub_account_id IN ?", filter.SubAccountIDs)

	if filter.Search != "" {
		like := "%" + strings.ToLower(filter.Search) + "%"
		query = query.Where(
			"LOWER(first_name) LIKE ? OR LOWER(last_name) LIKE ? OR LOWER(email) LIKE ? OR LOWER(company) LIKE ?",
			like, like, like, like,
		)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	for _, tag := range filter.Tags {
		query = query.Where(datatypes.JSONArrayQuery("tags").Contains(tag))
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (filter.Page - 1) * filter.PageSize
	err := query.Order("created_at DESC").Limit(filter.PageSize).Offset(offset).Find(&contacts).Error
	return contacts, total, err
}

func (r *ContactRepositoryImpl) Update(db *gorm.DB, contact *models.Contact) error {
	result := db.Omit(clause.Associations).Save(contact)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrContactNotFound
	}
	return nil
}

func (r *ContactRepositoryImpl) Delete(db *gorm.DB, id string) error {
	return db.Transaction(func(tx *gorm.DB) error {
		for _, m := range []interface{}{&models.ContactActivity{}, &models.ContactNote{}, &models.ContactTask{}} {
			if err := tx.Where("contact_id = ?", id).Delete(m).Error; err != nil {
				return err
			}
		}
		result := tx.Delete(&models.Contact{}, "id = ?", id)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrContactNotFound
		}
		return nil
	})
}

func (r *ContactRepositoryImpl) UpdateLeadScore(db *gorm.DB, id string, score int) error {
	result := db.Model(&models.Contact{}).Where("id = ?", id).Update("lead_score", score)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrContactNotFound
	}
	return nil
}

func (r *ContactRepositoryImpl) CountBySubAccount(db *gorm.DB, subAccountID string) (int64, error) {
	var count int64
	err := db.Model(&models.Contact{}).Where("sub_account_id = ?", subAccountID).Count(&count).Error
	return count, err
}

func (r *ContactRepositoryImpl) FindAudience(db *gorm.DB, subAccountID string, audience models.CampaignAudience) ([]models.Contact, error) {
	var contacts []models.Contact

	status := audience.Status
	if status == "" {
		status = models.ContactStatusActive
	}
	query := db.Where("sub_account_id = ? AND status = ?", subAccountID, status)
	for _, tag := range audience.Tags {
		query = query.Where(datatypes.JSONArrayQuery("tags").Contains(tag))
	}

	// порядок стабильный: на нем держится курсор прерванной рассылки
	err := query.Order("created_at ASC, id ASC").Find(&contacts).Error
	return contacts, err
}

func (r *ContactRepositoryImpl) CreateActivity(db *gorm.DB, activity *models.ContactActivity) error {
	return db.Create(activity).Error
}

func (r *ContactRepositoryImpl) CreateNote(db *gorm.DB, note *models.ContactNote) error {
	return db.Create(note).Error
}

func (r *ContactRepositoryImpl) CreateTask(db *gorm.DB, task *models.ContactTask) error {
	return db.Create(task).Error
}
