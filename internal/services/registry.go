package services

import (
	"crm_backend/internal/ai"
	"crm_backend/internal/storage"
	"crm_backend/internal/subscription"
)

// ServiceContainer содержит все сервисы приложения.
type ServiceContainer struct {
	AuthService          AuthService
	TenantService        TenantService
	UsageService         UsageService
	SubscriptionService  SubscriptionService
	NotificationService  NotificationService
	ContactService       ContactService
	PipelineService      PipelineService
	CommunicationService CommunicationService
	CampaignService      CampaignService
	AIService            AIService
	DashboardService     DashboardService

	Resolver *subscription.Resolver
	Analyzer *ai.Analyzer
	Outbound *Outbound
	Storage  storage.Storage
}
