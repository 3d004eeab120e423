package handlers

// AppHandlers содержит все хэндлеры приложения.
type AppHandlers struct {
	AuthHandler          *AuthHandler
	SubscriptionHandler  *SubscriptionHandler
	ContactHandler       *ContactHandler
	PipelineHandler      *PipelineHandler
	CommunicationHandler *CommunicationHandler
	CampaignHandler      *CampaignHandler
	AIHandler            *AIHandler
	NotificationHandler  *NotificationHandler
	DashboardHandler     *DashboardHandler
	FileHandler          *FileHandler
}
