package services

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"crm_backend/internal/models"
	"crm_backend/internal/repositories"
	"crm_backend/pkg/apperrors"
)

const recentActivityLimit = 10

// DashboardOverview - сводка по субаккаунтам пользователя
type DashboardOverview struct {
	TotalContacts        int64                       `json:"total_contacts"`
	NewContactsThisMonth int64                       `json:"new_contacts_this_month"`
	OpenOpportunities    int64                       `json:"open_opportunities"`
	PipelineValue        decimal.Decimal             `json:"pipeline_value"`
	WonValueThisMonth    decimal.Decimal             `json:"won_value_this_month"`
	AverageDealSize      decimal.Decimal             `json:"average_deal_size"`
	UnreadConversations  int64                       `json:"unread_conversations"`
	ActiveCampaigns      int64                       `json:"active_campaigns"`
	Stages               []repositories.StageSummary `json:"stages"`
	RecentActivities     []models.ContactActivity    `json:"recent_activities"`
	Usage                *UsageSummary               `json:"usage"`
}

type DashboardService interface {
	Overview(ctx context.Context, db *gorm.DB, user *models.User, subAccountID string) (*DashboardOverview, error)

	PipelineOverview(ctx context.Context, db *gorm.DB, user *models.User, subAccountID string) (*PipelineOverviewReport, error)
	LeadsOverTime(ctx context.Context, db *gorm.DB, user *models.User, subAccountID string, days int) (*LeadsOverTimeReport, error)
	CampaignPerformance(ctx context.Context, db *gorm.DB, user *models.User, subAccountID string) ([]CampaignPerformance, error)
	UpcomingTasks(ctx context.Context, db *gorm.DB, user *models.User, subAccountID string) (*UpcomingTasksReport, error)

	// расширенная аналитика, тариф с FeatureAdvancedReporting
	LeadSources(ctx context.Context, db *gorm.DB, user *models.User, subAccountID string) (*LeadSourcesReport, error)
	PipelineConversion(ctx context.Context, db *gorm.DB, user *models.User, pipelineID string) (*PipelineConversionReport, error)
	ChannelPerformance(ctx context.Context, db *gorm.DB, user *models.User, subAccountID string) (*ChannelPerformanceReport, error)
}

type dashboardService struct {
	dashboardRepo    repositories.DashboardRepository
	conversationRepo repositories.ConversationRepository
	campaignRepo     repositories.CampaignRepository
	pipelineRepo     repositories.PipelineRepository
	tenantService    TenantService
	usageService     UsageService
	now              func() time.Time
}

func NewDashboardService(
	dashboardRepo repositories.DashboardRepository,
	conversationRepo repositories.ConversationRepository,
	campaignRepo repositories.CampaignRepository,
	pipelineRepo repositories.PipelineRepository,
	tenantService TenantService,
	usageService UsageService,
) DashboardService {
	return &dashboardService{
		dashboardRepo:    dashboardRepo,
		conversationRepo: conversationRepo,
		campaignRepo:     campaignRepo,
		pipelineRepo:     pipelineRepo,
		tenantService:    tenantService,
		usageService:     usageService,
		now:              time.Now,
	}
}

func (s *dashboardService) Overview(ctx context.Context, db *gorm.DB, user *models.User, subAccountID string) (*DashboardOverview, error) {
	scope, err := s.tenantService.Scope(ctx, db, user, subAccountID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)

	out := &DashboardOverview{
		PipelineValue:     decimal.Zero,
		WonValueThisMonth: decimal.Zero,
		AverageDealSize:   decimal.Zero,
		Stages:            []repositories.StageSummary{},
		RecentActivities:  []models.ContactActivity{},
	}

	usage, err := s.usageService.Summary(ctx, db, user, "")
	if err != nil {
		return nil, err
	}
	out.Usage = usage

	if len(scope) == 0 {
		return out, nil
	}

	if out.TotalContacts, err = s.dashboardRepo.CountContacts(db, scope, nil); err != nil {
		return nil, apperrors.InternalError(err)
	}
	if out.NewContactsThisMonth, err = s.dashboardRepo.CountContacts(db, scope, &monthStart); err != nil {
		return nil, apperrors.InternalError(err)
	}
	if out.OpenOpportunities, err = s.dashboardRepo.CountOpportunities(db, scope, models.OpportunityStatusOpen); err != nil {
		return nil, apperrors.InternalError(err)
	}
	if out.WonValueThisMonth, err = s.dashboardRepo.SumWonValue(db, scope, monthStart); err != nil {
		return nil, apperrors.InternalError(err)
	}
	if out.AverageDealSize, err = s.dashboardRepo.AverageWonValue(db, scope); err != nil {
		return nil, apperrors.InternalError(err)
	}

	stages, err := s.dashboardRepo.StageOverview(db, scope)
	if err != nil {
		return nil, apperrors.InternalError(err)
	}
	for _, st := range stages {
		out.PipelineValue = out.PipelineValue.Add(st.TotalValue)
	}
	out.Stages = stages

	stats, err := s.conversationRepo.Stats(db, scope)
	if err != nil {
		return nil, apperrors.InternalError(err)
	}
	out.UnreadConversations = stats.Unread

	if out.ActiveCampaigns, err = s.campaignRepo.CountActive(db, scope); err != nil {
		return nil, apperrors.InternalError(err)
	}

	activities, err := s.dashboardRepo.RecentActivities(db, scope, recentActivityLimit)
	if err != nil {
		return nil, apperrors.InternalError(err)
	}
	if activities != nil {
		out.RecentActivities = activities
	}
	return out, nil
}
