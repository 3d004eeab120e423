package models

import "gorm.io/datatypes"

// Agency - верхний уровень мульти-тенантности
type Agency struct {
	BaseModel
	Name    string `gorm:"size:255;not null" json:"name"`
	OwnerID string `gorm:"type:varchar(36);not null;index" json:"owner_id"`
}

// SubAccount - тенант, к которому привязаны все CRM-записи
type SubAccount struct {
	BaseModel
	AgencyID  string         `gorm:"type:varchar(36);not null;index" json:"agency_id"`
	OwnerID   string         `gorm:"type:varchar(36);not null;index" json:"owner_id"`
	Name      string         `gorm:"size:255;not null" json:"name"`
	Industry  string         `gorm:"size:100" json:"industry,omitempty"`
	Settings  datatypes.JSON `json:"settings,omitempty"`
	IsDefault bool           `gorm:"default:false" json:"is_default"`
}
