package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"crm_backend/database"
	"crm_backend/internal/ai"
	"crm_backend/internal/auth"
	"crm_backend/internal/config"
	"crm_backend/internal/email"
	"crm_backend/internal/handlers"
	"crm_backend/internal/lock"
	"crm_backend/internal/logger"
	"crm_backend/internal/middleware"
	"crm_backend/internal/payments"
	"crm_backend/internal/repositories"
	"crm_backend/internal/routes"
	"crm_backend/internal/services"
	"crm_backend/internal/sms"
	"crm_backend/internal/storage"
	"crm_backend/internal/subscription"
	"crm_backend/internal/validator"
	"crm_backend/internal/workers"
	"crm_backend/pkg/apperrors"
	"crm_backend/ws"
)

// Application - собранное приложение: сервисы, хэндлеры, роутер и фоновые задачи
type Application struct {
	Config             *config.Config
	DB                 *gorm.DB
	Services           *services.ServiceContainer
	Handlers           *handlers.AppHandlers
	Router             *gin.Engine
	WSManager          *ws.WebSocketManager
	TrialWorker        *workers.TrialWorker
	SubscriptionWorker *workers.SubscriptionWorker

	redis *redis.Client
}

// Run - точка входа HTTP сервера (cmd/web и crmctl serve)
func Run() {
	config.LoadConfig()
	cfg := config.AppConfig
	logger.Init(cfg.Server.Env)
	logger.Info("Logger initialized", "env", cfg.Server.Env)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("Connecting to database...", "driver", cfg.Database.Driver)
	gormDB, err := database.Open(cfg)
	if err != nil {
		logger.Fatal("Failed to connect to database", "error", err)
	}
	logger.Info("Database connected")

	if err := database.AutoMigrate(gormDB); err != nil {
		logger.Fatal("Failed to migrate database", "error", err)
	}

	application, err := New(ctx, cfg, gormDB)
	if err != nil {
		logger.Fatal("Failed to build application", "error", err)
	}
	defer application.Close()

	if err := application.SeedMaster(ctx); err != nil {
		// без master-аккаунта не стартуем: значит БД недоступна или конфиг битый
		logger.Fatal("Failed to seed master account", "error", err)
	}

	if cfg.Scheduler.Enabled {
		scheduler := workers.NewScheduler(application.TrialWorker, application.SubscriptionWorker)
		if err := scheduler.Start(ctx, cfg.Scheduler.TrialNotification); err != nil {
			logger.Fatal("Failed to start scheduler", "error", err)
		}
	}

	address := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              address,
		Handler:           application.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Server starting", "address", address)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server startup error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", "error", err.Error())
	}
}

// SetupRouter собирает роутер без фоновых задач (используется в интеграционных тестах)
func SetupRouter(cfg *config.Config, gormDB *gorm.DB) *gin.Engine {
	application, err := New(context.Background(), cfg, gormDB)
	if err != nil {
		logger.Fatal("Failed to build application", "error", err)
	}
	return application.Router
}

// New собирает зависимости. ctx ограничивает жизнь WebSocket менеджера.
func New(ctx context.Context, cfg *config.Config, gormDB *gorm.DB) (*Application, error) {
	apperrors.SetDebug(cfg.Server.Env == "development")
	auth.Configure(cfg.JWT.Secret, time.Duration(cfg.JWT.TTL)*time.Minute)

	storageInstance, err := storage.NewStorage(storage.ConfigFrom(cfg))
	if err != nil {
		return nil, fmt.Errorf("initialize storage: %w", err)
	}
	logger.Info("Storage initialized", "type", cfg.Storage.Type)

	resolver, err := newResolver(cfg)
	if err != nil {
		return nil, err
	}

	redisClient := lock.NewRedisClient(cfg)
	locker := lock.New(redisClient, cfg.Quota.LockExpiry, cfg.Quota.LockTries)
	if redisClient == nil {
		logger.Warn("Redis not configured, quota locks are process-local")
	}

	// 1. WebSocket
	wsManager := ws.NewWebSocketManager()
	go wsManager.Run(ctx)

	// 2. Сервисы
	mailer, err := newMailer(cfg)
	if err != nil {
		return nil, err
	}
	serviceContainer := initializeServices(cfg, resolver, locker, storageInstance, mailer, wsManager)

	// 3. Хэндлеры
	authGuard := middleware.AuthMiddleware(serviceContainer.AuthService)
	appHandlers := initializeHandlers(serviceContainer, authGuard)

	wsHandler := ws.NewWebSocketHandler(wsManager, allowedOrigins(cfg)...)

	// 4. Gin
	ginRouter := initializeGinRouter(gormDB, cfg)
	routes.RegisterRoutes(ginRouter, appHandlers, wsHandler, authGuard, healthCheck(gormDB, redisClient))

	// 5. Фоновые задачи
	userRepo := repositories.NewUserRepository()
	trialWorker := workers.NewTrialWorker(gormDB, userRepo, serviceContainer.NotificationService,
		mailer, locker, cfg.Trial.WarningDays, cfg.Trial.WindowHours)

	return &Application{
		Config:             cfg,
		DB:                 gormDB,
		Services:           serviceContainer,
		Handlers:           appHandlers,
		Router:             ginRouter,
		WSManager:          wsManager,
		TrialWorker:        trialWorker,
		SubscriptionWorker: workers.NewSubscriptionWorker(gormDB, userRepo),
		redis:              redisClient,
	}, nil
}

// SeedMaster создает master-аккаунт из admin.email / admin.password
func (a *Application) SeedMaster(ctx context.Context) error {
	if a.Config.Admin.Email == "" || a.Config.Admin.Password == "" {
		logger.Warn("ADMIN_EMAIL or ADMIN_PASSWORD is not set. Skipping master seeding.")
		return nil
	}
	return a.Services.AuthService.EnsureMasterAccount(ctx, a.DB, a.Config.Admin.Email, a.Config.Admin.Password)
}

func (a *Application) Close() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			logger.Warn("failed to close redis client", "error", err.Error())
		}
	}
}

func initializeServices(
	cfg *config.Config,
	resolver *subscription.Resolver,
	locker lock.Locker,
	storageInstance storage.Storage,
	mailer *email.Mailer,
	publisher services.EventPublisher,
) *services.ServiceContainer {
	smsNotifier := sms.NewNotifier(sms.NewTwilioSender(cfg), productName(cfg), cfg.Server.FrontendURL, cfg.Trial.Days)
	analyzer := ai.NewAnalyzer(ai.NewOpenAIClient(cfg))
	gateway := payments.NewStripeGateway(cfg)
	outbound := &services.Outbound{Mailer: mailer, SMS: smsNotifier}

	logger.Info("Providers configured",
		"email", mailer.Enabled(),
		"sms", smsNotifier.Enabled(),
		"payments", gateway.Enabled(),
		"ai", analyzer.Enabled(),
	)

	// --- Инициализация репозиториев ---
	userRepo := repositories.NewUserRepository()
	tenantRepo := repositories.NewTenantRepository()
	usageRepo := repositories.NewUsageRepository()
	subscriptionRepo := repositories.NewSubscriptionRepository()
	notificationRepo := repositories.NewNotificationRepository()
	contactRepo := repositories.NewContactRepository()
	pipelineRepo := repositories.NewPipelineRepository()
	conversationRepo := repositories.NewConversationRepository()
	campaignRepo := repositories.NewCampaignRepository()
	dashboardRepo := repositories.NewDashboardRepository()

	// --- Инициализация сервисов ---
	tenantService := services.NewTenantService(tenantRepo)
	usageService := services.NewUsageService(usageRepo, resolver, locker)
	notificationService := services.NewNotificationService(notificationRepo, publisher)
	authService := services.NewAuthService(userRepo, tenantService, notificationService, mailer, smsNotifier, cfg.Trial.Days)
	subscriptionService := services.NewSubscriptionService(userRepo, subscriptionRepo, resolver, gateway, notificationService, mailer)
	contactService := services.NewContactService(contactRepo, conversationRepo, tenantService, usageService, resolver, analyzer, storageInstance)
	pipelineService := services.NewPipelineService(pipelineRepo, contactRepo, tenantService)
	communicationService := services.NewCommunicationService(conversationRepo, contactRepo, tenantService, usageService, notificationService, analyzer, outbound, publisher)
	campaignService := services.NewCampaignService(campaignRepo, contactRepo, tenantService, usageService, outbound)
	aiService := services.NewAIService(analyzer, contactService, conversationRepo, tenantService, usageService)
	dashboardService := services.NewDashboardService(dashboardRepo, conversationRepo, campaignRepo, pipelineRepo, tenantService, usageService)

	return &services.ServiceContainer{
		AuthService:          authService,
		TenantService:        tenantService,
		UsageService:         usageService,
		SubscriptionService:  subscriptionService,
		NotificationService:  notificationService,
		ContactService:       contactService,
		PipelineService:      pipelineService,
		CommunicationService: communicationService,
		CampaignService:      campaignService,
		AIService:            aiService,
		DashboardService:     dashboardService,
		Resolver:             resolver,
		Analyzer:             analyzer,
		Outbound:             outbound,
		Storage:              storageInstance,
	}
}

func initializeHandlers(services *services.ServiceContainer, authGuard gin.HandlerFunc) *handlers.AppHandlers {
	customValidator := validator.New()
	featureGate := func(feature string) gin.HandlerFunc {
		return middleware.FeatureRequired(services.Resolver, feature)
	}
	baseHandler := handlers.NewBaseHandler(customValidator, handlers.Guards{
		Auth:         authGuard,
		Subscription: middleware.SubscriptionRequired(),
		Admin:        middleware.AdminOnly(),
		Feature:      featureGate,
	})

	return &handlers.AppHandlers{
		AuthHandler:          handlers.NewAuthHandler(baseHandler, services.AuthService),
		SubscriptionHandler:  handlers.NewSubscriptionHandler(baseHandler, services.SubscriptionService, services.UsageService),
		ContactHandler:       handlers.NewContactHandler(baseHandler, services.ContactService),
		PipelineHandler:      handlers.NewPipelineHandler(baseHandler, services.PipelineService),
		CommunicationHandler: handlers.NewCommunicationHandler(baseHandler, services.CommunicationService),
		CampaignHandler:      handlers.NewCampaignHandler(baseHandler, services.CampaignService),
		AIHandler:            handlers.NewAIHandler(baseHandler, services.AIService),
		NotificationHandler:  handlers.NewNotificationHandler(baseHandler, services.NotificationService),
		DashboardHandler:     handlers.NewDashboardHandler(baseHandler, services.DashboardService),
		FileHandler:          handlers.NewFileHandler(baseHandler, services.Storage),
	}
}

func initializeGinRouter(db *gorm.DB, cfg *config.Config) *gin.Engine {
	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.LoggingMiddleware())
	router.Use(middleware.CORSMiddleware(allowedOrigins(cfg)...))
	router.Use(middleware.DBMiddleware(db))
	return router
}

func newResolver(cfg *config.Config) (*subscription.Resolver, error) {
	if cfg.Quota.LimitsFile == "" {
		return subscription.NewResolver(nil), nil
	}
	table, err := subscription.LoadFeatureLimitTable(cfg.Quota.LimitsFile)
	if err != nil {
		return nil, fmt.Errorf("load feature limits: %w", err)
	}
	logger.Info("Feature limits loaded", "file", cfg.Quota.LimitsFile)
	return subscription.NewResolver(table), nil
}

func newMailer(cfg *config.Config) (*email.Mailer, error) {
	templates, err := email.NewDefaultTemplateManager(cfg.Email.TemplatesDir)
	if err != nil {
		return nil, fmt.Errorf("load email templates: %w", err)
	}
	provider := email.NewSMTPProvider(email.ConfigFrom(cfg), templates)
	return email.NewMailer(provider, cfg.Server.FrontendURL, productName(cfg), cfg.Trial.Days), nil
}

func productName(cfg *config.Config) string {
	if cfg.Email.FromName != "" {
		return cfg.Email.FromName
	}
	return "CRM"
}

// allowedOrigins - frontend_url через запятую, пусто - любой origin
func allowedOrigins(cfg *config.Config) []string {
	var out []string
	for _, o := range strings.Split(cfg.Server.FrontendURL, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}

func healthCheck(db *gorm.DB, redisClient *redis.Client) routes.HealthCheck {
	return func(ctx context.Context) error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		if err := sqlDB.PingContext(ctx); err != nil {
			return fmt.Errorf("database: %w", err)
		}
		if redisClient != nil {
			if err := redisClient.Ping(ctx).Err(); err != nil {
				return fmt.Errorf("redis: %w", err)
			}
		}
		return nil
	}
}
