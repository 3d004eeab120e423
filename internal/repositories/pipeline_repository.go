package repositories

import (
	"errors"

	"crm_backend/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrPipelineNotFound    = errors.New("pipeline not found")
	ErrOpportunityNotFound = errors.New("opportunity not found")
)

type PipelineRepository interface {
	CreatePipeline(db *gorm.DB, pipeline *models.Pipeline) error
	FindPipelineByID(db *gorm.DB, id string) (*models.Pipeline, error)
	ListPipelines(db *gorm.DB, subAccountIDs []string) ([]models.Pipeline, error)

	CreateOpportunity(db *gorm.DB, opp *models.Opportunity) error
	FindOpportunityByID(db *gorm.DB, id string) (*models.Opportunity, error)
	ListOpportunities(db *gorm.DB, pipelineID string) ([]models.Opportunity, error)
	UpdateOpportunity(db *gorm.DB, opp *models.Opportunity) error
	CreateOpportunityActivity(db *gorm.DB, activity *models.OpportunityActivity) error
}

type PipelineRepositoryImpl struct{}

func NewPipelineRepository() PipelineRepository {
	return &PipelineRepositoryImpl{}
}

func (r *PipelineRepositoryImpl) CreatePipeline(db *gorm.DB, pipeline *models.Pipeline) error {
	return db.Create(pipeline).Error
}

func (r *PipelineRepositoryImpl) FindPipelineByID(db *gorm.DB, id string) (*models.Pipeline, error) {
	var pipeline models.Pipeline
	if err := db.First(&pipeline, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPipelineNotFound
		}
		return nil, err
	}
	return &pipeline, nil
}

func (r *PipelineRepositoryImpl) ListPipelines(db *gorm.DB, subAccountIDs []string) ([]models.Pipeline, error) {
	var pipelines []models.Pipeline
	err := db.Where("sub_account_id IN ?", subAccountIDs).
		Order("is_default DESC, created_at ASC").
		Find(&pipelines).Error
	return pipelines, err
}

func (r *PipelineRepositoryImpl) CreateOpportunity(db *gorm.DB, opp *models.Opportunity) error {
	return db.Create(opp).Error
}

func (r *PipelineRepositoryImpl) FindOpportunityByID(db *gorm.DB, id string) (*models.Opportunity, error) {
	var opp models.Opportunity
	err := db.Preload("Contact").
		Preload("Activities", func(db *gorm.DB) *gorm.DB { return db.Order("created_at DESC") }).
		First(&opp, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOpportunityNotFound
		}
		return nil, err
	}
	return &opp, nil
}

func (r *PipelineRepositoryImpl) ListOpportunities(db *gorm.DB, pipelineID string) ([]models.Opportunity, error) {
	var opps []models.Opportunity
	err := db.Preload("Contact").
		Where("pipeline_id = ?", pipelineID).
		Order("created_at DESC").
		Find(&opps).Error
	return opps, err
}

func (r *PipelineRepositoryImpl) UpdateOpportunity(db *gorm.DB, opp *models.Opportunity) error {
	result := db.Omit(clause.Associations).Save(opp)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrOpportunityNotFound
	}
	return nil
}

func (r *PipelineRepositoryImpl) CreateOpportunityActivity(db *gorm.DB, activity *models.OpportunityActivity) error {
	return db.Create(activity).Error
}
