package repositories

import (
	"time"

	"crm_backend/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// DashboardRepository - агрегаты для дашборда
type DashboardRepository interface {
	CountContacts(db *gorm.DB, subAccountIDs []string, since *time.Time) (int64, error)
	CountOpportunities(db *gorm.DB, subAccountIDs []string, status models.OpportunityStatus) (int64, error)
	SumWonValue(db *gorm.DB, subAccountIDs []string, since time.Time) (decimal.Decimal, error)
	AverageWonValue(db *gorm.DB, subAccountIDs []string) (decimal.Decimal, error)
	StageOverview(db *gorm.DB, subAccountIDs []string) ([]StageSummary, error)
	RecentActivities(db *gorm.DB, subAccountIDs []string, limit int) ([]models.ContactActivity, error)

	// отчеты
	ContactsPerDay(db *gorm.DB, subAccountIDs []string, since time.Time) ([]DailyCount, error)
	RecentCampaigns(db *gorm.DB, subAccountIDs []string, limit int) ([]models.Campaign, error)
	UpcomingTasks(db *gorm.DB, subAccountIDs []string, now time.Time, limit int) ([]models.ContactTask, error)
	ContactsBySource(db *gorm.DB, subAccountIDs []string) ([]SourceCount, error)
	WonBySource(db *gorm.DB, subAccountIDs []string) ([]SourceCount, error)
	OpportunityStages(db *gorm.DB, pipelineID string) ([]StageStatusCount, error)
	ConversationsByChannel(db *gorm.DB, subAccountIDs []string) ([]ChannelCount, error)
	MessagesByChannel(db *gorm.DB, subAccountIDs []string) ([]ChannelMessageCount, error)
}

type StageSummary struct {
	Stage      string          `json:"stage"`
	Count      int64           `json:"count"`
	TotalValue decimal.Decimal `json:"total_value"`
}

// DailyCount.Day начинается с YYYY-MM-DD; драйверы отдают DATE по-разному
type DailyCount struct {
	Day   string
	Count int64
}

// SourceCount - контакты (или выигранные сделки) по источнику лида.
// Пустой источник приходит как "unknown".
type SourceCount struct {
	Source string
	Count  int64
	Value  decimal.Decimal
}

type StageStatusCount struct {
	Stage  string
	Status models.OpportunityStatus
	Count  int64
	Value  decimal.Decimal
}

type ChannelCount struct {
	Channel models.Channel
	Count   int64
}

type ChannelMessageCount struct {
	Channel   models.Channel
	Direction models.MessageDirection
	Status    models.MessageStatus
	Count     int64
}

type DashboardRepositoryImpl struct{}

func NewDashboardRepository() DashboardRepository {
	return &DashboardRepositoryImpl{}
}

func opportunitiesOf(db *gorm.DB, subAccountIDs []string) *gorm.DB {
	return db.Model(&models.Opportunity{}).
		Joins("JOIN contacts ON contacts.id = opportunities.contact_id").
		Where("contacts.sub_account_id IN ?", subAccountIDs)
}

func (r *DashboardRepositoryImpl) CountContacts(db *gorm.DB, subAccountIDs []string, since *time.Time) (int64, error) {
	var count int64
	query := db.Model(&models.Contact{}).Where("sub_account_id IN ?", subAccountIDs)
	if since != nil {
		query = query.Where("created_at >= ?", *since)
	}
	err := query.Count(&count).Error
	return count, err
}

func (r *DashboardRepositoryImpl) CountOpportunities(db *gorm.DB, subAccountIDs []string, status models.OpportunityStatus) (int64, error) {
	var count int64
	query := opportunitiesOf(db, subAccountIDs)
	if status != "" {
		query = query.Where("opportunities.status = ?", status)
	}
	err := query.Count(&count).Error
	return count, err
}

func (r *DashboardRepositoryImpl) SumWonValue(db *gorm.DB, subAccountIDs []string, since time.Time) (decimal.Decimal, error) {
	var total decimal.NullDecimal
	err := opportunitiesOf(db, subAccountIDs).
		Where("opportunities.status = ? AND opportunities.closed_at >= ?", models.OpportunityStatusWon, since).
		Select("SUM(opportunities.value)").
		Scan(&total).Error
	if err != nil || !total.Valid {
		return decimal.Zero, err
	}
	return total.Decimal, nil
}

func (r *DashboardRepositoryImpl) AverageWonValue(db *gorm.DB, subAccountIDs []string) (decimal.Decimal, error) {
	var avg decimal.NullDecimal
	err := opportunitiesOf(db, subAccountIDs).
		Where("opportunities.status = ?", models.OpportunityStatusWon).
		Select("AVG(opportunities.value)").
		Scan(&avg).Error
	if err != nil || !avg.Valid {
		return decimal.Zero, err
	}
	return avg.Decimal.Round(2), nil
}

func (r *DashboardRepositoryImpl) StageOverview(db *gorm.DB, subAccountIDs []string) ([]StageSummary, error) {
	type row struct {
		Stage      string
		Count      int64
		TotalValue decimal.NullDecimal
	}
	var rows []row
	err := opportunitiesOf(db, subAccountIDs).
		Where("opportunities.status = ?", models.OpportunityStatusOpen).
		Select("opportunities.stage AS stage, COUNT(opportunities.id) AS count, SUM(opportunities.value) AS total_value").
		Group("opportunities.stage").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make([]StageSummary, 0, len(rows))
	for _, r := range rows {
		s := StageSummary{Stage: r.Stage, Count: r.Count, TotalValue: decimal.Zero}
		if r.TotalValue.Valid {
			s.TotalValue = r.TotalValue.Decimal
		}
		out = append(out, s)
	}
	return out, nil
}

func (r *DashboardRepositoryImpl) RecentActivities(db *gorm.DB, subAccountIDs []string, limit int) ([]models.ContactActivity, error) {
	var activities []models.ContactActivity
	err := db.Model(&models.ContactActivity{}).
		Joins("JOIN contacts ON contacts.id = contact_activities.contact_id").
		Where("contacts.sub_account_id IN ?", subAccountIDs).
		Order("contact_activities.created_at DESC").
		Limit(limit).
		Find(&activities).Error
	return activities, err
}

func (r *DashboardRepositoryImpl) ContactsPerDay(db *gorm.DB, subAccountIDs []string, since time.Time) ([]DailyCount, error) {
	var rows []DailyCount
	err := db.Model(&models.Contact{}).
		Select("DATE(created_at) AS day, COUNT(id) AS count").
		Where("sub_account_id IN ? AND created_at >= ?", subAccountIDs, since).
		Group("DATE(created_at)").
		Order("day ASC").
		Scan(&rows).Error
	return rows, err
}

func (r *DashboardRepositoryImpl) RecentCampaigns(db *gorm.DB, subAccountIDs []string, limit int) ([]models.Campaign, error) {
	var campaigns []models.Campaign
	started := []models.CampaignStatus{
		models.CampaignStatusActive, models.CampaignStatusSending, models.CampaignStatusPaused, models.CampaignStatusCompleted,
	}
	err := db.Where("sub_account_id IN ? AND status IN ?", subAccountIDs, started).
		Order("updated_at DESC").
		Limit(limit).
		Find(&campaigns).Error
	return campaigns, err
}

func (r *DashboardRepositoryImpl) UpcomingTasks(db *gorm.DB, subAccountIDs []string, now time.Time, limit int) ([]models.ContactTask, error) {
	var tasks []models.ContactTask
	err := db.Model(&models.ContactTask{}).
		Joins("JOIN contacts ON contacts.id = contact_tasks.contact_id").
		Where("contacts.sub_account_id IN ?", subAccountIDs).
		Where("contact_tasks.status = ? AND contact_tasks.due_date >= ?", models.TaskStatusPending, now).
		Order("contact_tasks.due_date ASC").
		Limit(limit).
		Find(&tasks).Error
	return tasks, err
}

const sourceExpr = "COALESCE(NULLIF(contacts.source, ''), 'unknown')"

func (r *DashboardRepositoryImpl) ContactsBySource(db *gorm.DB, subAccountIDs []string) ([]SourceCount, error) {
	var rows []SourceCount
	err := db.Model(&models.Contact{}).
		Select(sourceExpr+" AS source, COUNT(contacts.id) AS count").
		Where("contacts.sub_account_id IN ?", subAccountIDs).
		Group(sourceExpr).
		Order("count DESC").
		Scan(&rows).Error
	return rows, err
}

// WonBySource: Count - контакты хотя бы с одной выигранной сделкой, Value - сумма сделок
func (r *DashboardRepositoryImpl) WonBySource(db *gorm.DB, subAccountIDs []string) ([]SourceCount, error) {
	type row struct {
		Source string
		Count  int64
		Value  decimal.NullDecimal
	}
	var rows []row
	err := opportunitiesOf(db, subAccountIDs).
		Where("opportunities.status = ?", models.OpportunityStatusWon).
		Select(sourceExpr + " AS source, COUNT(DISTINCT contacts.id) AS count, SUM(opportunities.value) AS value").
		Group(sourceExpr).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make([]SourceCount, 0, len(rows))
	for _, r := range rows {
		sc := SourceCount{Source: r.Source, Count: r.Count, Value: decimal.Zero}
		if r.Value.Valid {
			sc.Value = r.Value.Decimal
		}
		out = append(out, sc)
	}
	return out, nil
}

func (r *DashboardRepositoryImpl) OpportunityStages(db *gorm.DB, pipelineID string) ([]StageStatusCount, error) {
	type row struct {
		Stage  string
		Status models.OpportunityStatus
		Count  int64
		Value  decimal.NullDecimal
	}
	var rows []row
	err := db.Model(&models.Opportunity{}).
		Select("stage, status, COUNT(id) AS count, SUM(value) AS value").
		Where("pipeline_id = ?", pipelineID).
		Group("stage, status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make([]StageStatusCount, 0, len(rows))
	for _, r := range rows {
		sc := StageStatusCount{Stage: r.Stage, Status: r.Status, Count: r.Count, Value: decimal.Zero}
		if r.Value.Valid {
			sc.Value = r.Value.Decimal
		}
		out = append(out, sc)
	}
	return out, nil
}

func (r *DashboardRepositoryImpl) ConversationsByChannel(db *gorm.DB, subAccountIDs []string) ([]ChannelCount, error) {
	var rows []ChannelCount
	err := db.Model(&models.Conversation{}).
		Select("channel, COUNT(id) AS count").
		Where("sub_account_id IN ?", subAccountIDs).
		Group("channel").
		Scan(&rows).Error
	return rows, err
}

func (r *DashboardRepositoryImpl) MessagesByChannel(db *gorm.DB, subAccountIDs []string) ([]ChannelMessageCount, error) {
	var rows []ChannelMessageCount
	err := db.Model(&models.Message{}).
		Joins("JOIN conversations ON conversations.id = messages.conversation_id").
		Select("conversations.channel AS channel, messages.direction AS direction, messages.status AS status, COUNT(messages.id) AS count").
		Where("conversations.sub_account_id IN ?", subAccountIDs).
		Group("conversations.channel, messages.direction, messages.status").
		Scan(&rows).Error
	return rows, err
}
