package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"crm_backend/internal/models"
)

type CreatePipelineRequest struct {
	SubAccountID string                 `json:"sub_account_id" validate:"omitempty,uuid"`
	Name         string                 `json:"name" validate:"required,max=255"`
	Description  string                 `json:"description" validate:"omitempty,max=5000"`
	Stages       []models.PipelineStage `json:"stages" validate:"omitempty,max=20,dive"`
	IsDefault    bool                   `json:"is_default"`
}

type CreateOpportunityRequest struct {
	PipelineID        string          `json:"pipeline_id" validate:"required,uuid"`
	ContactID         string          `json:"contact_id" validate:"required,uuid"`
	Title             string          `json:"title" validate:"required,max=255"`
	Description       string          `json:"description" validate:"omitempty,max=5000"`
	Stage             string          `json:"stage" validate:"omitempty,max=100"`
	Value             decimal.Decimal `json:"value"`
	Probability       int             `json:"probability" validate:"omitempty,min=0,max=100"`
	ExpectedCloseDate *time.Time      `json:"expected_close_date"`
	Source            string          `json:"source" validate:"omitempty,max=64"`
}

type UpdateStageRequest struct {
	Stage       string `json:"stage" validate:"required,max=100"`
	Probability *int   `json:"probability" validate:"omitempty,min=0,max=100"`
}

type UpdateOpportunityRequest struct {
	Title             *string          `json:"title" validate:"omitempty,min=1,max=255"`
	Description       *string          `json:"description" validate:"omitempty,max=5000"`
	Value             *decimal.Decimal `json:"value"`
	Probability       *int             `json:"probability" validate:"omitempty,min=0,max=100"`
	ExpectedCloseDate *time.Time       `json:"expected_close_date"`
	Status            *string          `json:"status" validate:"omitempty,is-opportunity-status"`
}

// StageColumn - колонка канбан-доски
type StageColumn struct {
	Stage         models.PipelineStage `json:"stage"`
	Count         int                  `json:"count"`
	TotalValue    decimal.Decimal      `json:"total_value"`
	Opportunities []models.Opportunity `json:"opportunities"`
}

type PipelineBoard struct {
	Pipeline   *models.Pipeline `json:"pipeline"`
	Columns    []StageColumn    `json:"columns"`
	TotalValue decimal.Decimal  `json:"total_value"`
}
