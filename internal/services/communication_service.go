package services

import (
	"context"
	"errors"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"crm_backend/internal/ai"
	"crm_backend/internal/logger"
	"crm_backend/internal/models"
	"crm_backend/internal/repositories"
	"crm_backend/internal/services/dto"
	"crm_backend/pkg/apperrors"
)

// Сколько последних сообщений отдаем анализатору
const analysisWindow = 10

type CommunicationService interface {
	ListConversations(ctx context.Context, db *gorm.DB, user *models.User, query dto.ConversationListQuery) (*dto.ListResponse[models.Conversation], error)
	CreateConversation(ctx context.Context, db *gorm.DB, user *models.User, req *dto.CreateConversationRequest) (*models.Conversation, error)
	GetConversation(ctx context.Context, db *gorm.DB, user *models.User, conversationID string) (*models.Conversation, error)
	UpdateConversation(ctx context.Context, db *gorm.DB, user *models.User, conversationID string, req *dto.UpdateConversationRequest) (*models.Conversation, error)
	MarkRead(ctx context.Context, db *gorm.DB, user *models.User, conversationID string) error
	// SendMessage: входящие анализируются, исходящие email/sms уходят через провайдера
	SendMessage(ctx context.Context, db *gorm.DB, user *models.User, conversationID string, req *dto.SendMessageRequest) (*dto.MessageResult, error)
	Stats(ctx context.Context, db *gorm.DB, user *models.User, subAccountID string) (*repositories.ConversationStats, error)
}

type communicationService struct {
	conversationRepo    repositories.ConversationRepository
	contactRepo         repositories.ContactRepository
	tenantService       TenantService
	usageService        UsageService
	notificationService NotificationService
	analyzer            *ai.Analyzer
	outbound            *Outbound
	publisher           EventPublisher
	now                 func() time.Time
}

func NewCommunicationService(
	conversationRepo repositories.ConversationRepository,
	contactRepo repositories.ContactRepository,
	tenantService TenantService,
	usageService UsageService,
	notificationService NotificationService,
	analyzer *ai.Analyzer,
	outbound *Outbound,
	publisher EventPublisher,
) CommunicationService {
	return &communicationService{
		conversationRepo:    conversationRepo,
		contactRepo:         contactRepo,
		tenantService:       tenantService,
		usageService:        usageService,
		notificationService: notificationService,
		analyzer:            analyzer,
		outbound:            outbound,
		publisher:           publisherOrNoop(publisher),
		now:                 time.Now,
	}
}

func (s *communicationService) ListConversations(ctx context.Context, db *gorm.DB, user *models.User, query dto.ConversationListQuery) (*dto.ListResponse[models.Conversation], error) {
	scope, err := s.tenantService.Scope(ctx, db, user, query.SubAccountID)
	if err != nil {
		return nil, err
	}
	page, pageSize := normalizePage(query.Page, query.PageSize)

	convs, total, err := s.conversationRepo.ListConversations(db, repositories.ConversationFilter{
		SubAccountIDs: scope,
		Status:        models.ConversationStatus(query.Status),
		Channel:       models.Channel(query.Channel),
		ContactID:     query.ContactID,
		UnreadOnly:    query.UnreadOnly,
		Page:          page,
		PageSize:      pageSize,
	})
	if err != nil {
		return nil, apperrors.InternalError(err)
	}
	return dto.NewListResponse(convs, total, page, pageSize), nil
}

func (s *communicationService) CreateConversation(ctx context.Context, db *gorm.DB, user *models.User, req *dto.CreateConversationRequest) (*models.Conversation, error) {
	contact, err := s.contactRepo.FindByID(db, req.ContactID)
	if err != nil {
		return nil, handleContactError(err)
	}
	if err := s.tenantService.CanAccess(ctx, db, user, contact.SubAccountID); err != nil {
		return nil, err
	}
	if req.SubAccountID != "" && req.SubAccountID != contact.SubAccountID {
		return nil, apperrors.ErrInvalidOperation("communication", "contact belongs to another sub-account")
	}

	conv := &models.Conversation{
		SubAccountID: contact.SubAccountID,
		ContactID:    contact.ID,
		Channel:      models.Channel(req.Channel),
		Status:       models.ConversationStatusOpen,
		Subject:      req.Subject,
		AssignedTo:   req.AssignedTo,
		Tags:         datatypes.JSONSlice[string]{},
	}
	if err := s.conversationRepo.CreateConversation(db, conv); err != nil {
		return nil, apperrors.InternalError(err)
	}
	conv.Contact = contact
	return conv, nil
}

func (s *communicationService) load(ctx context.Context, db *gorm.DB, user *models.User, conversationID string, withMessages bool) (*models.Conversation, error) {
	var (
		conv *models.Conversation
		err  error
	)
	if withMessages {
		conv, err = s.conversationRepo.FindConversationWithMessages(db, conversationID)
	} else {
		conv, err = s.conversationRepo.FindConversationByID(db, conversationID)
	}
	if err != nil {
		return nil, handleConversationError(err)
	}
	if err := s.tenantService.CanAccess(ctx, db, user, conv.SubAccountID); err != nil {
		return nil, err
	}
	return conv, nil
}

func (s *communicationService) GetConversation(ctx context.Context, db *gorm.DB, user *models.User, conversationID string) (*models.Conversation, error) {
	return s.load(ctx, db, user, conversationID, true)
}

func (s *communicationService) UpdateConversation(ctx context.Context, db *gorm.DB, user *models.User, conversationID string, req *dto.UpdateConversationRequest) (*models.Conversation, error) {
	conv, err := s.load(ctx, db, user, conversationID, false)
	if err != nil {
		return nil, err
	}
	if req.Status != nil {
		conv.Status = models.ConversationStatus(*req.Status)
	}
	if req.AssignedTo != nil {
		conv.AssignedTo = req.AssignedTo
		if *req.AssignedTo == "" {
			conv.AssignedTo = nil
		}
	}
	if req.Tags != nil {
		conv.Tags = normalizeTags(req.Tags)
	}
	if err := s.conversationRepo.UpdateConversation(db, conv); err != nil {
		return nil, handleConversationError(err)
	}

	s.publisher.PublishToUser(user.ID, EventConversationUpdated, conv)
	return conv, nil
}

func (s *communicationService) MarkRead(ctx context.Context, db *gorm.DB, user *models.User, conversationID string) error {
	if _, err := s.load(ctx, db, user, conversationID, false); err != nil {
		return err
	}
	if err := s.conversationRepo.MarkRead(db, conversationID); err != nil {
		return handleConversationError(err)
	}
	return nil
}

func (s *communicationService) SendMessage(ctx context.Context, db *gorm.DB, user *models.User, conversationID string, req *dto.SendMessageRequest) (*dto.MessageResult, error) {
	direction := models.MessageDirection(req.Direction)
	conv, err := s.load(ctx, db, user, conversationID, direction == models.DirectionInbound)
	if err != nil {
		return nil, err
	}
	if conv.Status != models.ConversationStatusOpen {
		return nil, apperrors.ErrConversationClosed
	}

	msg := &models.Message{
		ConversationID: conv.ID,
		Direction:      direction,
		Content:        req.Content,
		Subject:        req.Subject,
	}
	msg.CreatedAt = s.now()
	result := &dto.MessageResult{Message: msg}

	if direction == models.DirectionInbound {
		s.analyzeInbound(ctx, conv, msg)
		msg.Status = models.MessageStatusDelivered
		msg.FromAddress = Recipient(conv.Channel, conv.Contact)
		result.Delivered = true
	} else {
		msg.UserID = user.ID
		if err := s.deliver(ctx, db, user, conv, msg, result); err != nil {
			return nil, err
		}
	}

	if err := s.conversationRepo.CreateMessage(db, msg); err != nil {
		return nil, apperrors.InternalError(err)
	}
	if err := s.conversationRepo.TouchAfterMessage(db, conv.ID, msg.CreatedAt, direction == models.DirectionInbound); err != nil {
		return nil, handleConversationError(err)
	}
	if direction == models.DirectionInbound {
		// AI-поля диалога; Messages не сохраняем повторно
		conv.Messages = nil
		conv.LastMessageAt = &msg.CreatedAt
		conv.UnreadCount++
		conv.MessageCount++
		if err := s.conversationRepo.UpdateConversation(db, conv); err != nil {
			logger.CtxWarn(ctx, "conversation insight not saved", "conversation_id", conv.ID, "error", err.Error())
		}
	}

	recipients := s.audience(user, conv)
	for _, id := range recipients {
		s.publisher.PublishToUser(id, EventMessageCreated, msg)
	}
	if direction == models.DirectionInbound {
		for _, id := range recipients {
			if err := s.notificationService.NotifyInboundMessage(ctx, db, id, conv, msg.Content); err != nil {
				logger.CtxWarn(ctx, "inbound message notification failed", "user_id", id, "error", err.Error())
			}
		}
	}
	return result, nil
}

// deliver списывает квоту канала и отправляет сообщение. Выключенный провайдер
// квоту не тратит, сообщение сохраняется со статусом failed.
func (s *communicationService) deliver(ctx context.Context, db *gorm.DB, user *models.User, conv *models.Conversation, msg *models.Message, result *dto.MessageResult) error {
	msg.ToAddress = Recipient(conv.Channel, conv.Contact)

	feature, metered := QuotaFeature(conv.Channel)
	if !metered {
		msg.Status = models.MessageStatusSent
		result.Delivered = true
		return nil
	}
	if !s.outbound.Enabled(conv.Channel) {
		msg.Status = models.MessageStatusFailed
		result.ProviderError = errProviderDisabled.Error()
		return nil
	}
	if msg.ToAddress == "" {
		msg.Status = models.MessageStatusFailed
		result.ProviderError = errNoRecipient.Error()
		return nil
	}

	if _, err := s.usageService.TryConsume(ctx, db, user, feature, 1, ""); err != nil {
		return err
	}

	subject := msg.Subject
	if subject == "" {
		subject = conv.Subject
	}
	start := time.Now()
	externalID, err := s.outbound.Send(ctx, conv.Channel, msg.ToAddress, subject, msg.Content)
	logger.ProviderLog(string(conv.Channel), "send_message", time.Since(start), err)
	if err != nil {
		msg.Status = models.MessageStatusFailed
		result.ProviderError = err.Error()
		return nil
	}
	msg.Status = models.MessageStatusSent
	msg.ExternalID = externalID
	result.Delivered = true
	return nil
}

func (s *communicationService) analyzeInbound(ctx context.Context, conv *models.Conversation, msg *models.Message) {
	history := conv.Messages
	if len(history) > analysisWindow-1 {
		history = history[len(history)-(analysisWindow-1):]
	}
	window := make([]ai.ConversationMessage, 0, len(history)+1)
	for _, m := range history {
		window = append(window, ai.ConversationMessage{Direction: string(m.Direction), Content: m.Content})
	}
	window = append(window, ai.ConversationMessage{Direction: string(msg.Direction), Content: msg.Content})

	insight := s.analyzer.AnalyzeConversation(ctx, window)
	msg.AISentiment = insight.Sentiment
	msg.AIIntent = insight.Intent

	conv.AISentiment = insight.Sentiment
	conv.AIIntent = insight.Intent
	conv.AIPriority = ai.PriorityOf(insight)
	conv.AISummary = insight.Summary
}

// audience - кому показывать событие: автор и ответственный
func (s *communicationService) audience(user *models.User, conv *models.Conversation) []string {
	ids := []string{user.ID}
	if conv.AssignedTo != nil && *conv.AssignedTo != "" && *conv.AssignedTo != user.ID {
		ids = append(ids, *conv.AssignedTo)
	}
	return ids
}

func (s *communicationService) Stats(ctx context.Context, db *gorm.DB, user *models.User, subAccountID string) (*repositories.ConversationStats, error) {
	scope, err := s.tenantService.Scope(ctx, db, user, subAccountID)
	if err != nil {
		return nil, err
	}
	stats, err := s.conversationRepo.Stats(db, scope)
	if err != nil {
		return nil, apperrors.InternalError(err)
	}
	return stats, nil
}

func handleConversationError(err error) error {
	switch {
	case errors.Is(err, repositories.ErrConversationNotFound), errors.Is(err, repositories.ErrMessageNotFound):
		return apperrors.ErrNotFound(err)
	default:
		return apperrors.InternalError(err)
	}
}
