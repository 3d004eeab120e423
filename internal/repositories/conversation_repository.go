package repositories

import (
	"errors"
	"time"

	"crm_backend/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrMessageNotFound      = errors.New("message not found")
)

type ConversationRepository interface {
	CreateConversation(db *gorm.DB, conv *models.Conversation) error
	FindConversationByID(db *gorm.DB, id string) (*models.Conversation, error)
	FindConversationWithMessages(db *gorm.DB, id string) (*models.Conversation, error)
	ListConversations(db *gorm.DB, filter ConversationFilter) ([]models.Conversation, int64, error)
	UpdateConversation(db *gorm.DB, conv *models.Conversation) error
	MarkRead(db *gorm.DB, conversationID string) error

	CreateMessage(db *gorm.DB, msg *models.Message) error
	UpdateMessageStatus(db *gorm.DB, messageID string, status models.MessageStatus, externalID string) error
	// TouchAfterMessage обновляет счетчики диалога после нового сообщения
	TouchAfterMessage(db *gorm.DB, conversationID string, at time.Time, inbound bool) error

	Stats(db *gorm.DB, subAccountIDs []string) (*ConversationStats, error)
}

type ConversationFilter struct {
	SubAccountIDs []string
	Status        models.ConversationStatus
	Channel       models.Channel
	ContactID     string
	UnreadOnly    bool
	Page          int
	PageSize      int
}

type ConversationStats struct {
	Total         int64            `json:"total"`
	Open          int64            `json:"open"`
	Unread        int64            `json:"unread_conversations"`
	ByChannel     map[string]int64 `json:"by_channel"`
	BySentiment   map[string]int64 `json:"by_sentiment"`
	HighPriority  int64            `json:"high_priority"`
	MessagesToday int64            `json:"messages_today"`
}

type ConversationRepositoryImpl struct{}

func NewConversationRepository() ConversationRepository {
	return &ConversationRepositoryImpl{}
}

func (r *ConversationRepositoryImpl) CreateConversation(db *gorm.DB, conv *models.Conversation) error {
	return db.Create(conv).Error
}

func (r *ConversationRepositoryImpl) FindConversationByID(db *gorm.DB, id string) (*models.Conversation, error) {
	var conv models.Conversation
	if err := db.Preload("Contact").First(&conv, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrConversationNotFound
		}
		return nil, err
	}
	return &conv, nil
}

func (r *ConversationRepositoryImpl) FindConversationWithMessages(db *gorm.DB, id string) (*models.Conversation, error) {
	var conv models.Conversation
	err := db.Preload("Contact").
		Preload("Messages", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC") }).
		First(&conv, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrConversationNotFound
		}
		return nil, err
	}
	return &conv, nil
}

func (r *ConversationRepositoryImpl) ListConversations(db *gorm.DB, filter ConversationFilter) ([]models.Conversation, int64, error) {
	var convs []models.Conversation
	var total int64

	query := db.Model(&models.Conversation{}).Where("sub_account_id IN ?", filter.SubAccountIDs)
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.Channel != "" {
		query = query.Where("channel = ?", filter.Channel)
	}
	if filter.ContactID != "" {
		query = query.Where("contact_id = ?", filter.ContactID)
	}
	if filter.UnreadOnly {
		query = query.Where("unread_count > 0")
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (filter.Page - 1) * filter.PageSize
	err := query.Preload("Contact").
		Order("last_message_at DESC").
		Order("created_at DESC").
		Limit(filter.PageSize).Offset(offset).
		Find(&convs).Error
	return convs, total, err
}

func (r *ConversationRepositoryImpl) UpdateConversation(db *gorm.DB, conv *models.Conversation) error {
	return db.Omit(clause.Associations).Save(conv).Error
}

func (r *ConversationRepositoryImpl) MarkRead(db *gorm.DB, conversationID string) error {
	return db.Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.Conversation{}).Where("id = ?", conversationID).Update("unread_count", 0)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrConversationNotFound
		}
		return tx.Model(&models.Message{}).
			Where("conversation_id = ? AND direction = ? AND status = ?",
				conversationID, models.DirectionInbound, models.MessageStatusDelivered).
			Update("status", models.MessageStatusRead).Error
	})
}

func (r *ConversationRepositoryImpl) CreateMessage(db *gorm.DB, msg *models.Message) error {
	return db.Create(msg).Error
}

func (r *ConversationRepositoryImpl) UpdateMessageStatus(db *gorm.DB, messageID string, status models.MessageStatus, externalID string) error {
	updates := map[string]interface{}{"status": status}
	if externalID != "" {
		updates["external_id"] = externalID
	}
	result := db.Model(&models.Message{}).Where("id = ?", messageID).Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrMessageNotFound
	}
	return nil
}

func (r *ConversationRepositoryImpl) TouchAfterMessage(db *gorm.DB, conversationID string, at time.Time, inbound bool) error {
	updates := map[string]interface{}{
		"last_message_at": at,
		"message_count":   gorm.Expr("message_count + 1"),
	}
	if inbound {
		updates["unread_count"] = gorm.Expr("unread_count + 1")
	}
	result := db.Model(&models.Conversation{}).Where("id = ?", conversationID).Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrConversationNotFound
	}
	return nil
}

func (r *ConversationRepositoryImpl) Stats(db *gorm.DB, subAccountIDs []string) (*ConversationStats, error) {
	stats := &ConversationStats{
		ByChannel:   map[string]int64{},
		BySentiment: map[string]int64{},
	}
	base := func() *gorm.DB {
		return db.Model(&models.Conversation{}).Where("sub_account_id IN ?", subAccountIDs)
	}

	if err := base().Count(&stats.Total).Error; err != nil {
		return nil, err
	}
	if err := base().Where("status = ?", models.ConversationStatusOpen).Count(&stats.Open).Error; err != nil {
		return nil, err
	}
	if err := base().Where("unread_count > 0").Count(&stats.Unread).Error; err != nil {
		return nil, err
	}
	if err := base().Where("ai_priority = ?", "high").Count(&stats.HighPriority).Error; err != nil {
		return nil, err
	}

	type bucket struct {
		Name  string
		Total int64
	}
	var channels []bucket
	if err := base().Select("channel AS name, COUNT(*) AS total").Group("channel").Scan(&channels).Error; err != nil {
		return nil, err
	}
	for _, b := range channels {
		stats.ByChannel[b.Name] = b.Total
	}

	var sentiments []bucket
	if err := base().Select("ai_sentiment AS name, COUNT(*) AS total").
		Where("ai_sentiment <> ''").Group("ai_sentiment").Scan(&sentiments).Error; err != nil {
		return nil, err
	}
	for _, b := range sentiments {
		stats.BySentiment[b.Name] = b.Total
	}

	startOfDay := time.Now().UTC().Truncate(24 * time.Hour)
	err := db.Model(&models.Message{}).
		Joins("JOIN conversations ON conversations.id = messages.conversation_id").
		Where("conversations.sub_account_id IN ? AND messages.created_at >= ?", subAccountIDs, startOfDay).
		Count(&stats.MessagesToday).Error
	if err != nil {
		return nil, err
	}

	return stats, nil
}
