package services

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"crm_backend/internal/ai"
	"crm_backend/internal/logger"
	"crm_backend/internal/models"
	"crm_backend/internal/repositories"
	"crm_backend/internal/services/dto"
	"crm_backend/internal/subscription"
	"crm_backend/pkg/apperrors"
)

// ConversationAnalysis - инсайт диалога с вычисленным приоритетом
type ConversationAnalysis struct {
	ConversationID string `json:"conversation_id"`
	ai.ConversationInsight
	Priority string `json:"priority"`
}

// ContentSuggestionResult - варианты ответа и остаток квоты content_pieces
type ContentSuggestionResult struct {
	ai.ContentSuggestions
	Usage *UsageStatus `json:"usage"`
}

type AIService interface {
	// ScoreLead не списывает квоту
	ScoreLead(ctx context.Context, db *gorm.DB, user *models.User, req *dto.LeadScoringRequest) (*ai.LeadScore, error)
	AnalyzeConversation(ctx context.Context, db *gorm.DB, user *models.User, req *dto.ConversationAnalysisRequest) (*ConversationAnalysis, error)
	// SuggestContent списывает одну единицу content_pieces_per_month
	SuggestContent(ctx context.Context, db *gorm.DB, user *models.User, req *dto.ContentSuggestionRequest) (*ContentSuggestionResult, error)
}

type aiService struct {
	analyzer         *ai.Analyzer
	contactService   ContactService
	conversationRepo repositories.ConversationRepository
	tenantService    TenantService
	usageService     UsageService
}

func NewAIService(
	analyzer *ai.Analyzer,
	contactService ContactService,
	conversationRepo repositories.ConversationRepository,
	tenantService TenantService,
	usageService UsageService,
) AIService {
	return &aiService{
		analyzer:         analyzer,
		contactService:   contactService,
		conversationRepo: conversationRepo,
		tenantService:    tenantService,
		usageService:     usageService,
	}
}

func (s *aiService) ScoreLead(ctx context.Context, db *gorm.DB, user *models.User, req *dto.LeadScoringRequest) (*ai.LeadScore, error) {
	if req.ContactID != "" {
		return s.contactService.Score(ctx, db, user, req.ContactID)
	}
	if req.Name == "" && req.Email == "" && req.Company == "" {
		return nil, apperrors.ValidationError(map[string]string{"contact_id": "contact_id or contact fields are required"})
	}

	score := s.analyzer.ScoreLead(ctx, ai.LeadSignals{
		Name:            req.Name,
		Email:           req.Email,
		Phone:           req.Phone,
		Company:         req.Company,
		Title:           req.Title,
		Source:          req.Source,
		EmailOpens:      req.EmailOpens,
		PageViews:       req.PageViews,
		FormSubmissions: req.FormSubmissions,
		CompanySize:     req.CompanySize,
	})
	return &score, nil
}

func (s *aiService) loadConversation(ctx context.Context, db *gorm.DB, user *models.User, conversationID string) (*models.Conversation, error) {
	conv, err := s.conversationRepo.FindConversationWithMessages(db, conversationID)
	if err != nil {
		return nil, handleConversationError(err)
	}
	if err := s.tenantService.CanAccess(ctx, db, user, conv.SubAccountID); err != nil {
		return nil, err
	}
	return conv, nil
}

func (s *aiService) AnalyzeConversation(ctx context.Context, db *gorm.DB, user *models.User, req *dto.ConversationAnalysisRequest) (*ConversationAnalysis, error) {
	conv, err := s.loadConversation(ctx, db, user, req.ConversationID)
	if err != nil {
		return nil, err
	}

	window := conv.Messages
	if len(window) > analysisWindow {
		window = window[len(window)-analysisWindow:]
	}
	messages := make([]ai.ConversationMessage, 0, len(window))
	for _, m := range window {
		messages = append(messages, ai.ConversationMessage{Direction: string(m.Direction), Content: m.Content})
	}

	insight := s.analyzer.AnalyzeConversation(ctx, messages)
	out := &ConversationAnalysis{
		ConversationID:      conv.ID,
		ConversationInsight: insight,
		Priority:            ai.PriorityOf(insight),
	}

	conv.AISentiment = insight.Sentiment
	conv.AIIntent = insight.Intent
	conv.AIPriority = out.Priority
	conv.AISummary = insight.Summary
	conv.Messages = nil
	if err := s.conversationRepo.UpdateConversation(db, conv); err != nil {
		logger.CtxWarn(ctx, "conversation insight not saved", "conversation_id", conv.ID, "error", err.Error())
	}
	return out, nil
}

func (s *aiService) SuggestContent(ctx context.Context, db *gorm.DB, user *models.User, req *dto.ContentSuggestionRequest) (*ContentSuggestionResult, error) {
	sc := ai.SuggestionContext{Intent: req.Intent, LastMessage: req.LastMessage}

	if req.ContactID != "" {
		contact, err := s.contactService.Load(ctx, db, user, req.ContactID)
		if err != nil {
			return nil, err
		}
		sc.ContactName = contact.FullName()
		sc.Company = contact.Company
	}
	if req.ConversationID != "" {
		conv, err := s.loadConversation(ctx, db, user, req.ConversationID)
		if err != nil {
			return nil, err
		}
		if sc.ContactName == "" && conv.Contact != nil {
			sc.ContactName = conv.Contact.FullName()
			sc.Company = conv.Contact.Company
		}
		if sc.Intent == "" {
			sc.Intent = conv.AIIntent
		}
		if sc.LastMessage == "" {
			sc.LastMessage = lastInbound(conv.Messages)
		}
	}
	if strings.TrimSpace(sc.Intent) == "" {
		sc.Intent = ai.IntentGeneralInquiry
	}

	usage, err := s.usageService.TryConsume(ctx, db, user, subscription.FeatureContentPieces, 1, "")
	if err != nil {
		return nil, err
	}
	return &ContentSuggestionResult{
		ContentSuggestions: s.analyzer.SuggestContent(ctx, sc),
		Usage:              usage,
	}, nil
}

func lastInbound(messages []models.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Direction == models.DirectionInbound {
			return messages[i].Content
		}
	}
	return ""
}
