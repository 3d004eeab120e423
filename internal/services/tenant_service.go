package services

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"crm_backend/internal/auth"
	"crm_backend/internal/models"
	"crm_backend/internal/repositories"
	"crm_backend/pkg/apperrors"
)

// TenantService - агентства и субаккаунты, ключ мульти-тенантности CRM-записей
type TenantService interface {
	CreateDefaults(ctx context.Context, db *gorm.DB, owner *models.User, agencyName string) (*models.SubAccount, error)
	ListSubAccounts(ctx context.Context, db *gorm.DB, userID string) ([]models.SubAccount, error)
	DefaultSubAccount(ctx context.Context, db *gorm.DB, userID string) (*models.SubAccount, error)
	// Scope возвращает субаккаунты, к которым у пользователя есть доступ.
	// Непустой subAccountID сужает выборку до одного субаккаунта.
	Scope(ctx context.Context, db *gorm.DB, user *models.User, subAccountID string) ([]string, error)
	// TargetSubAccount - куда писать новую запись
	TargetSubAccount(ctx context.Context, db *gorm.DB, user *models.User, subAccountID string) (string, error)
	CanAccess(ctx context.Context, db *gorm.DB, user *models.User, subAccountID string) error
}

type tenantService struct {
	tenantRepo repositories.TenantRepository
}

func NewTenantService(tenantRepo repositories.TenantRepository) TenantService {
	return &tenantService{tenantRepo: tenantRepo}
}

func (s *tenantService) CreateDefaults(ctx context.Context, db *gorm.DB, owner *models.User, agencyName string) (*models.SubAccount, error) {
	if agencyName == "" {
		agencyName = fmt.Sprintf("%s's Agency", owner.FirstName)
	}

	agency := &models.Agency{Name: agencyName, OwnerID: owner.ID}
	if err := s.tenantRepo.CreateAgency(db, agency); err != nil {
		return nil, apperrors.InternalError(err)
	}

	sub := &models.SubAccount{
		AgencyID:  agency.ID,
		OwnerID:   owner.ID,
		Name:      agencyName,
		IsDefault: true,
	}
	if err := s.tenantRepo.CreateSubAccount(db, sub); err != nil {
		return nil, apperrors.InternalError(err)
	}
	return sub, nil
}

func (s *tenantService) ListSubAccounts(ctx context.Context, db *gorm.DB, userID string) ([]models.SubAccount, error) {
	subs, err := s.tenantRepo.FindSubAccountsByOwner(db, userID)
	if err != nil {
		return nil, apperrors.InternalError(err)
	}
	if subs == nil {
		subs = []models.SubAccount{}
	}
	return subs, nil
}

func (s *tenantService) DefaultSubAccount(ctx context.Context, db *gorm.DB, userID string) (*models.SubAccount, error) {
	sub, err := s.tenantRepo.FindDefaultSubAccount(db, userID)
	if err != nil {
		return nil, handleTenantError(err)
	}
	return sub, nil
}

func (s *tenantService) Scope(ctx context.Context, db *gorm.DB, user *models.User, subAccountID string) ([]string, error) {
	if subAccountID != "" {
		if err := s.CanAccess(ctx, db, user, subAccountID); err != nil {
			return nil, err
		}
		return []string{subAccountID}, nil
	}

	subs, err := s.ListSubAccounts(ctx, db, user.ID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(subs))
	for _, sub := range subs {
		ids = append(ids, sub.ID)
	}
	return ids, nil
}

func (s *tenantService) TargetSubAccount(ctx context.Context, db *gorm.DB, user *models.User, subAccountID string) (string, error) {
	if subAccountID != "" {
		if err := s.CanAccess(ctx, db, user, subAccountID); err != nil {
			return "", err
		}
		return subAccountID, nil
	}
	sub, err := s.DefaultSubAccount(ctx, db, user.ID)
	if err != nil {
		return "", err
	}
	return sub.ID, nil
}

func (s *tenantService) CanAccess(ctx context.Context, db *gorm.DB, user *models.User, subAccountID string) error {
	sub, err := s.tenantRepo.FindSubAccountByID(db, subAccountID)
	if err != nil {
		return handleTenantError(err)
	}
	if sub.OwnerID == user.ID || auth.CanAccessAnyTenant(string(user.Role)) {
		return nil
	}
	// чужой субаккаунт отдаем как несуществующий
	return apperrors.ErrNotFound(repositories.ErrSubAccountNotFound)
}

func handleTenantError(err error) error {
	if errors.Is(err, repositories.ErrSubAccountNotFound) {
		return apperrors.ErrNotFound(err)
	}
	return apperrors.InternalError(err)
}
