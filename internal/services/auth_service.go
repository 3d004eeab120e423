package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"crm_backend/internal/auth"
	"crm_backend/internal/email"
	"crm_backend/internal/logger"
	"crm_backend/internal/models"
	"crm_backend/internal/repositories"
	"crm_backend/internal/services/dto"
	"crm_backend/internal/sms"
	"crm_backend/internal/subscription"
	"crm_backend/pkg/apperrors"
)

type AuthService interface {
	Register(ctx context.Context, db *gorm.DB, req *dto.RegisterRequest) (*dto.AuthResponse, error)
	Login(ctx context.Context, db *gorm.DB, req *dto.LoginRequest) (*dto.AuthResponse, error)
	Me(ctx context.Context, db *gorm.DB, userID string) (*dto.MeResponse, error)
	// CurrentUser - аккаунт для гейта подписки в middleware
	CurrentUser(ctx context.Context, db *gorm.DB, userID string) (*models.User, error)
	// EnsureMasterAccount создает master-аккаунт при первом старте
	EnsureMasterAccount(ctx context.Context, db *gorm.DB, emailAddr, password string) error
}

type authService struct {
	userRepo            repositories.UserRepository
	tenantService       TenantService
	notificationService NotificationService
	mailer              *email.Mailer
	smsNotifier         *sms.Notifier
	trialDays           int
	now                 func() time.Time
	// dispatch запускает best-effort отправку писем и SMS
	dispatch func(func())
}

func NewAuthService(
	userRepo repositories.UserRepository,
	tenantService TenantService,
	notificationService NotificationService,
	mailer *email.Mailer,
	smsNotifier *sms.Notifier,
	trialDays int,
) AuthService {
	return &authService{
		userRepo:            userRepo,
		tenantService:       tenantService,
		notificationService: notificationService,
		mailer:              mailer,
		smsNotifier:         smsNotifier,
		trialDays:           trialDays,
		now:                 time.Now,
		dispatch:            func(f func()) { go f() },
	}
}

// Register - регистрация с пробным периодом и тенантом по умолчанию
func (s *authService) Register(ctx context.Context, db *gorm.DB, req *dto.RegisterRequest) (*dto.AuthResponse, error) {
	if err := auth.ValidatePassword(req.Password); err != nil {
		return nil, apperrors.ValidationError(map[string]string{"password": err.Error()})
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, apperrors.InternalError(err)
	}

	user := &models.User{
		Email:        strings.ToLower(strings.TrimSpace(req.Email)),
		PasswordHash: hash,
		FirstName:    strings.TrimSpace(req.FirstName),
		LastName:     strings.TrimSpace(req.LastName),
		Role:         models.UserRoleUser,
		IsActive:     true,
	}
	if req.Phone != "" {
		user.Phone = sms.NormalizeE164(req.Phone)
	}
	subscription.NewTrial(user, s.now(), s.trialDays)

	err = inTx(db, func(tx *gorm.DB) error {
		if err := s.userRepo.Create(tx, user); err != nil {
			if errors.Is(err, repositories.ErrUserAlreadyExists) {
				return apperrors.ErrEmailAlreadyExists
			}
			return apperrors.InternalError(err)
		}
		_, err := s.tenantService.CreateDefaults(ctx, tx, user, req.CompanyName)
		return err
	})
	if err != nil {
		return nil, err
	}

	logger.CtxInfo(ctx, "account registered", "user_id", user.ID, "trial_expires_at", user.TrialExpiresAt)

	if err := s.notificationService.NotifyWelcome(ctx, db, user, s.trialDays); err != nil {
		logger.CtxWarn(ctx, "welcome notification failed", "user_id", user.ID, "error", err.Error())
	}
	s.sendWelcome(ctx, user)

	return s.buildAuthResponse(user)
}

// sendWelcome - письмо и SMS не влияют на исход регистрации
func (s *authService) sendWelcome(ctx context.Context, user *models.User) {
	bg := context.WithoutCancel(ctx)
	name := user.FullName()
	emailAddr, phone := user.Email, user.Phone

	s.dispatch(func() {
		if s.mailer != nil && s.mailer.Enabled() {
			if res := s.mailer.SendWelcome(bg, emailAddr, name); !res.Success {
				logger.CtxWarn(bg, "welcome email not sent", "error", res.Error)
			}
		}
		if phone != "" && s.smsNotifier != nil && s.smsNotifier.Enabled() {
			if res := s.smsNotifier.SendWelcome(bg, phone, user.FirstName); !res.Success {
				logger.CtxWarn(bg, "welcome sms not sent", "error", res.Error)
			}
		}
	})
}

// Login - аутентификация. Истекший триал не мешает входу,
// клиент получает access.allowed=false и уводит на апгрейд.
func (s *authService) Login(ctx context.Context, db *gorm.DB, req *dto.LoginRequest) (*dto.AuthResponse, error) {
	user, err := s.userRepo.FindByEmail(db, req.Email)
	if err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			return nil, apperrors.ErrInvalidCredentials
		}
		return nil, apperrors.InternalError(err)
	}

	if !auth.CheckPasswordHash(req.Password, user.PasswordHash) {
		return nil, apperrors.ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, apperrors.NewForbiddenError("Account is disabled")
	}

	now := s.now()
	if err := s.userRepo.UpdateLastLogin(db, user.ID, now); err != nil {
		logger.CtxWarn(ctx, "failed to update last login", "user_id", user.ID, "error", err.Error())
	} else {
		user.LastLoginAt = &now
	}

	return s.buildAuthResponse(user)
}

func (s *authService) Me(ctx context.Context, db *gorm.DB, userID string) (*dto.MeResponse, error) {
	user, err := s.CurrentUser(ctx, db, userID)
	if err != nil {
		return nil, err
	}
	subs, err := s.tenantService.ListSubAccounts(ctx, db, userID)
	if err != nil {
		return nil, err
	}
	return &dto.MeResponse{
		User:        dto.NewUserDTO(user),
		Access:      subscription.EvaluateAccess(user, s.now()),
		SubAccounts: subs,
	}, nil
}

func (s *authService) CurrentUser(ctx context.Context, db *gorm.DB, userID string) (*models.User, error) {
	user, err := s.userRepo.FindByID(db, userID)
	if err != nil {
		return nil, handleUserError(err)
	}
	return user, nil
}

func (s *authService) EnsureMasterAccount(ctx context.Context, db *gorm.DB, emailAddr, password string) error {
	if emailAddr == "" || password == "" {
		return nil
	}
	n, err := s.userRepo.CountByRole(db, models.UserRoleMaster)
	if err != nil {
		return apperrors.InternalError(err)
	}
	if n > 0 {
		return nil
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return apperrors.InternalError(err)
	}
	master := &models.User{
		Email:        emailAddr,
		PasswordHash: hash,
		FirstName:    "Master",
		Role:         models.UserRoleMaster,
		IsActive:     true,
	}
	// поля триала заполняем, хотя master их игнорирует
	subscription.NewTrial(master, s.now(), s.trialDays)
	master.SubscriptionTier = models.TierWhiteLabel

	err = inTx(db, func(tx *gorm.DB) error {
		if err := s.userRepo.Create(tx, master); err != nil {
			if errors.Is(err, repositories.ErrUserAlreadyExists) {
				return apperrors.ErrEmailAlreadyExists
			}
			return apperrors.InternalError(err)
		}
		_, err := s.tenantService.CreateDefaults(ctx, tx, master, "Master Agency")
		return err
	})
	if err != nil {
		return err
	}
	logger.CtxInfo(ctx, "master account created", "email", master.Email)
	return nil
}

func (s *authService) buildAuthResponse(user *models.User) (*dto.AuthResponse, error) {
	token, err := auth.GenerateToken(user.ID, string(user.Role))
	if err != nil {
		return nil, apperrors.InternalError(err)
	}
	return &dto.AuthResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int64(auth.TokenTTL().Seconds()),
		User:        dto.NewUserDTO(user),
		Access:      subscription.EvaluateAccess(user, s.now()),
	}, nil
}

func handleUserError(err error) error {
	if errors.Is(err, repositories.ErrUserNotFound) {
		return apperrors.ErrNotFound(err)
	}
	return apperrors.InternalError(err)
}
