package dto

// LeadScoringRequest - либо contact_id, либо поля контакта
type LeadScoringRequest struct {
	ContactID       string `json:"contact_id" validate:"omitempty,uuid"`
	Name            string `json:"name" validate:"omitempty,max=200"`
	Email           string `json:"email" validate:"omitempty,email"`
	Phone           string `json:"phone" validate:"omitempty,max=32"`
	Company         string `json:"company" validate:"omitempty,max=255"`
	Title           string `json:"title" validate:"omitempty,max=255"`
	Source          string `json:"source" validate:"omitempty,max=64"`
	EmailOpens      int    `json:"email_opens" validate:"omitempty,min=0"`
	PageViews       int    `json:"page_views" validate:"omitempty,min=0"`
	FormSubmissions int    `json:"form_submissions" validate:"omitempty,min=0"`
	CompanySize     int    `json:"company_size" validate:"omitempty,min=0"`
}

type ConversationAnalysisRequest struct {
	ConversationID string `json:"conversation_id" validate:"required,uuid"`
}

type ContentSuggestionRequest struct {
	ContactID      string `json:"contact_id" validate:"omitempty,uuid"`
	ConversationID string `json:"conversation_id" validate:"omitempty,uuid"`
	Intent         string `json:"intent" validate:"omitempty,max=64"`
	LastMessage    string `json:"last_message" validate:"omitempty,max=5000"`
}
