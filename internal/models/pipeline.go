package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// PipelineStage - элемент JSON-массива Pipeline.Stages
type PipelineStage struct {
	Name        string `json:"name" validate:"required,max=100"`
	Order       int    `json:"order"`
	Color       string `json:"color,omitempty"`
	Probability int    `json:"probability" validate:"min=0,max=100"`
}

type Pipeline struct {
	BaseModel
	SubAccountID string                             `gorm:"type:varchar(36);not null;index" json:"sub_account_id"`
	Name         string                             `gorm:"size:255;not null" json:"name"`
	Description  string                             `gorm:"type:text" json:"description,omitempty"`
	Stages       datatypes.JSONSlice[PipelineStage] `json:"stages"`
	Settings     datatypes.JSON                     `json:"settings,omitempty"`
	IsDefault    bool                               `gorm:"default:false" json:"is_default"`
}

type Opportunity struct {
	BaseModel
	PipelineID        string            `gorm:"type:varchar(36);not null;index" json:"pipeline_id"`
	ContactID         string            `gorm:"type:varchar(36);not null;index" json:"contact_id"`
	UserID            string            `gorm:"type:varchar(36);index" json:"user_id,omitempty"`
	Title             string            `gorm:"size:255;not null" json:"title"`
	Description       string            `gorm:"type:text" json:"description,omitempty"`
	Stage             string            `gorm:"size:100;not null;index" json:"stage"`
	Value             decimal.Decimal   `gorm:"type:numeric(12,2);default:0" json:"value"`
	Probability       int               `gorm:"default:0" json:"probability"`
	ExpectedCloseDate *time.Time        `json:"expected_close_date,omitempty"`
	Status            OpportunityStatus `gorm:"type:varchar(20);default:'open';index" json:"status"`
	Source            string            `gorm:"size:64" json:"source,omitempty"`
	CustomFields      datatypes.JSON    `json:"custom_fields,omitempty"`
	ClosedAt          *time.Time        `json:"closed_at,omitempty"`

	Contact    *Contact              `gorm:"foreignKey:ContactID" json:"contact,omitempty"`
	Activities []OpportunityActivity `gorm:"foreignKey:OpportunityID" json:"activities,omitempty"`
}

type OpportunityActivity struct {
	BaseModel
	OpportunityID string `gorm:"type:varchar(36);not null;index" json:"opportunity_id"`
	UserID        string `gorm:"type:varchar(36);index" json:"user_id,omitempty"`
	Type          string `gorm:"size:64;not null" json:"type"`
	Description   string `json:"description"`
	OldValue      string `gorm:"size:255" json:"old_value,omitempty"`
	NewValue      string `gorm:"size:255" json:"new_value,omitempty"`
}
