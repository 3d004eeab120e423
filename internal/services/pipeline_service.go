package services

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"crm_backend/internal/models"
	"crm_backend/internal/repositories"
	"crm_backend/internal/services/dto"
	"crm_backend/pkg/apperrors"
)

const (
	OpportunityActivityCreated      = "created"
	OpportunityActivityStageChange  = "stage_change"
	OpportunityActivityStatusChange = "status_change"
	OpportunityActivityValueChange  = "value_change"
)

// DefaultStages - этапы нового пайплайна, если клиент их не передал
func DefaultStages() []models.PipelineStage {
	return []models.PipelineStage{
		{Name: "Lead", Order: 0, Color: "#3b82f6", Probability: 10},
		{Name: "Qualified", Order: 1, Color: "#10b981", Probability: 25},
		{Name: "Proposal", Order: 2, Color: "#f59e0b", Probability: 50},
		{Name: "Negotiation", Order: 3, Color: "#ef4444", Probability: 75},
		{Name: "Closed Won", Order: 4, Color: "#22c55e", Probability: 100},
	}
}

type PipelineService interface {
	ListPipelines(ctx context.Context, db *gorm.DB, user *models.User, subAccountID string) ([]models.Pipeline, error)
	CreatePipeline(ctx context.Context, db *gorm.DB, user *models.User, req *dto.CreatePipelineRequest) (*models.Pipeline, error)
	GetBoard(ctx context.Context, db *gorm.DB, user *models.User, pipelineID string) (*dto.PipelineBoard, error)

	ListOpportunities(ctx context.Context, db *gorm.DB, user *models.User, pipelineID string) ([]models.Opportunity, error)
	CreateOpportunity(ctx context.Context, db *gorm.DB, user *models.User, req *dto.CreateOpportunityRequest) (*models.Opportunity, error)
	GetOpportunity(ctx context.Context, db *gorm.DB, user *models.User, opportunityID string) (*models.Opportunity, error)
	UpdateStage(ctx context.Context, db *gorm.DB, user *models.User, opportunityID string, req *dto.UpdateStageRequest) (*models.Opportunity, error)
	UpdateOpportunity(ctx context.Context, db *gorm.DB, user *models.User, opportunityID string, req *dto.UpdateOpportunityRequest) (*models.Opportunity, error)
}

type pipelineService struct {
	pipelineRepo  repositories.PipelineRepository
	contactRepo   repositories.ContactRepository
	tenantService TenantService
	now           func() time.Time
}

func NewPipelineService(
	pipelineRepo repositories.PipelineRepository,
	contactRepo repositories.ContactRepository,
	tenantService TenantService,
) PipelineService {
	return &pipelineService{
		pipelineRepo:  pipelineRepo,
		contactRepo:   contactRepo,
		tenantService: tenantService,
		now:           time.Now,
	}
}

func (s *pipelineService) ListPipelines(ctx context.Context, db *gorm.DB, user *models.User, subAccountID string) ([]models.Pipeline, error) {
	scope, err := s.tenantService.Scope(ctx, db, user, subAccountID)
	if err != nil {
		return nil, err
	}
	if len(scope) == 0 {
		return []models.Pipeline{}, nil
	}
	pipelines, err := s.pipelineRepo.ListPipelines(db, scope)
	if err != nil {
		return nil, apperrors.InternalError(err)
	}
	if pipelines == nil {
		pipelines = []models.Pipeline{}
	}
	return pipelines, nil
}

func (s *pipelineService) CreatePipeline(ctx context.Context, db *gorm.DB, user *models.User, req *dto.CreatePipelineRequest) (*models.Pipeline, error) {
	subAccountID, err := s.tenantService.TargetSubAccount(ctx, db, user, req.SubAccountID)
	if err != nil {
		return nil, err
	}

	stages := req.Stages
	if len(stages) == 0 {
		stages = DefaultStages()
	}
	stages, err = normalizeStages(stages)
	if err != nil {
		return nil, err
	}

	pipeline := &models.Pipeline{
		SubAccountID: subAccountID,
		Name:         strings.TrimSpace(req.Name),
		Description:  req.Description,
		Stages:       stages,
		IsDefault:    req.IsDefault,
	}
	if err := s.pipelineRepo.CreatePipeline(db, pipeline); err != nil {
		return nil, apperrors.InternalError(err)
	}
	return pipeline, nil
}

func (s *pipelineService) loadPipeline(ctx context.Context, db *gorm.DB, user *models.User, pipelineID string) (*models.Pipeline, error) {
	pipeline, err := s.pipelineRepo.FindPipelineByID(db, pipelineID)
	if err != nil {
		return nil, handlePipelineError(err)
	}
	if err := s.tenantService.CanAccess(ctx, db, user, pipeline.SubAccountID); err != nil {
		return nil, err
	}
	return pipeline, nil
}

func (s *pipelineService) GetBoard(ctx context.Context, db *gorm.DB, user *models.User, pipelineID string) (*dto.PipelineBoard, error) {
	pipeline, err := s.loadPipeline(ctx, db, user, pipelineID)
	if err != nil {
		return nil, err
	}
	opps, err := s.pipelineRepo.ListOpportunities(db, pipelineID)
	if err != nil {
		return nil, apperrors.InternalError(err)
	}

	board := &dto.PipelineBoard{Pipeline: pipeline, TotalValue: decimal.Zero}
	index := make(map[string]int, len(pipeline.Stages))
	for i, st := range pipeline.Stages {
		index[st.Name] = i
		board.Columns = append(board.Columns, dto.StageColumn{
			Stage:         st,
			TotalValue:    decimal.Zero,
			Opportunities: []models.Opportunity{},
		})
	}
	for _, opp := range opps {
		i, ok := index[opp.Stage]
		if !ok {
			// этап удален из пайплайна, карточка не теряется
			i = len(board.Columns)
			index[opp.Stage] = i
			board.Columns = append(board.Columns, dto.StageColumn{
				Stage:         models.PipelineStage{Name: opp.Stage, Order: i},
				TotalValue:    decimal.Zero,
				Opportunities: []models.Opportunity{},
			})
		}
		col := &board.Columns[i]
		col.Count++
		col.TotalValue = col.TotalValue.Add(opp.Value)
		col.Opportunities = append(col.Opportunities, opp)
		if opp.Status == models.OpportunityStatusOpen {
			board.TotalValue = board.TotalValue.Add(opp.Value)
		}
	}
	return board, nil
}

func (s *pipelineService) ListOpportunities(ctx context.Context, db *gorm.DB, user *models.User, pipelineID string) ([]models.Opportunity, error) {
	if _, err := s.loadPipeline(ctx, db, user, pipelineID); err != nil {
		return nil, err
	}
	opps, err := s.pipelineRepo.ListOpportunities(db, pipelineID)
	if err != nil {
		return nil, apperrors.InternalError(err)
	}
	if opps == nil {
		opps = []models.Opportunity{}
	}
	return opps, nil
}

func (s *pipelineService) CreateOpportunity(ctx context.Context, db *gorm.DB, user *models.User, req *dto.CreateOpportunityRequest) (*models.Opportunity, error) {
	pipeline, err := s.loadPipeline(ctx, db, user, req.PipelineID)
	if err != nil {
		return nil, err
	}
	contact, err := s.contactRepo.FindByID(db, req.ContactID)
	if err != nil {
		return nil, handleContactError(err)
	}
	if contact.SubAccountID != pipeline.SubAccountID {
		return nil, apperrors.ErrInvalidOperation("pipeline", "contact belongs to another sub-account")
	}
	if req.Value.IsNegative() {
		return nil, apperrors.ValidationError(map[string]string{"value": "must not be negative"})
	}

	stage, ok := firstStage(pipeline)
	if req.Stage != "" {
		stage, ok = findStage(pipeline, req.Stage)
	}
	if !ok {
		return nil, apperrors.ErrInvalidStage
	}

	probability := req.Probability
	if probability == 0 {
		probability = stage.Probability
	}

	opp := &models.Opportunity{
		PipelineID:        pipeline.ID,
		ContactID:         contact.ID,
		UserID:            user.ID,
		Title:             strings.TrimSpace(req.Title),
		Description:       req.Description,
		Stage:             stage.Name,
		Value:             req.Value,
		Probability:       probability,
		ExpectedCloseDate: req.ExpectedCloseDate,
		Status:            models.OpportunityStatusOpen,
		Source:            req.Source,
	}
	if err := s.pipelineRepo.CreateOpportunity(db, opp); err != nil {
		return nil, apperrors.InternalError(err)
	}
	if err := s.pipelineRepo.CreateOpportunityActivity(db, &models.OpportunityActivity{
		OpportunityID: opp.ID,
		UserID:        user.ID,
		Type:          OpportunityActivityCreated,
		Description:   "Opportunity created in " + stage.Name,
		NewValue:      stage.Name,
	}); err != nil {
		return nil, apperrors.InternalError(err)
	}
	return opp, nil
}

func (s *pipelineService) loadOpportunity(ctx context.Context, db *gorm.DB, user *models.User, opportunityID string) (*models.Opportunity, *models.Pipeline, error) {
	opp, err := s.pipelineRepo.FindOpportunityByID(db, opportunityID)
	if err != nil {
		return nil, nil, handlePipelineError(err)
	}
	pipeline, err := s.loadPipeline(ctx, db, user, opp.PipelineID)
	if err != nil {
		return nil, nil, err
	}
	return opp, pipeline, nil
}

func (s *pipelineService) GetOpportunity(ctx context.Context, db *gorm.DB, user *models.User, opportunityID string) (*models.Opportunity, error) {
	opp, _, err := s.loadOpportunity(ctx, db, user, opportunityID)
	return opp, err
}

// UpdateStage переносит карточку и пишет stage_change со старым и новым этапом
func (s *pipelineService) UpdateStage(ctx context.Context, db *gorm.DB, user *models.User, opportunityID string, req *dto.UpdateStageRequest) (*models.Opportunity, error) {
	opp, pipeline, err := s.loadOpportunity(ctx, db, user, opportunityID)
	if err != nil {
		return nil, err
	}
	stage, ok := findStage(pipeline, req.Stage)
	if !ok {
		return nil, apperrors.ErrInvalidStage
	}

	oldStage := opp.Stage
	opp.Stage = stage.Name
	if req.Probability != nil {
		opp.Probability = *req.Probability
	} else {
		opp.Probability = stage.Probability
	}

	err = inTx(db, func(tx *gorm.DB) error {
		if err := s.pipelineRepo.UpdateOpportunity(tx, opp); err != nil {
			return handlePipelineError(err)
		}
		if oldStage == stage.Name {
			return nil
		}
		return s.recordActivity(tx, opp.ID, user.ID, OpportunityActivityStageChange,
			"Moved from "+oldStage+" to "+stage.Name, oldStage, stage.Name)
	})
	if err != nil {
		return nil, err
	}
	return opp, nil
}

func (s *pipelineService) UpdateOpportunity(ctx context.Context, db *gorm.DB, user *models.User, opportunityID string, req *dto.UpdateOpportunityRequest) (*models.Opportunity, error) {
	opp, _, err := s.loadOpportunity(ctx, db, user, opportunityID)
	if err != nil {
		return nil, err
	}

	var activities []models.OpportunityActivity
	if req.Title != nil {
		opp.Title = strings.TrimSpace(*req.Title)
	}
	if req.Description != nil {
		opp.Description = *req.Description
	}
	if req.Probability != nil {
		opp.Probability = *req.Probability
	}
	if req.ExpectedCloseDate != nil {
		opp.ExpectedCloseDate = req.ExpectedCloseDate
	}
	if req.Value != nil && !req.Value.Equal(opp.Value) {
		if req.Value.IsNegative() {
			return nil, apperrors.ValidationError(map[string]string{"value": "must not be negative"})
		}
		activities = append(activities, models.OpportunityActivity{
			Type: OpportunityActivityValueChange, Description: "Value changed",
			OldValue: opp.Value.StringFixed(2), NewValue: req.Value.StringFixed(2),
		})
		opp.Value = *req.Value
	}
	if req.Status != nil && models.OpportunityStatus(*req.Status) != opp.Status {
		next := models.OpportunityStatus(*req.Status)
		activities = append(activities, models.OpportunityActivity{
			Type: OpportunityActivityStatusChange, Description: "Status changed to " + string(next),
			OldValue: string(opp.Status), NewValue: string(next),
		})
		opp.Status = next
		if next == models.OpportunityStatusOpen {
			opp.ClosedAt = nil
		} else {
			now := s.now()
			opp.ClosedAt = &now
		}
	}

	err = inTx(db, func(tx *gorm.DB) error {
		if err := s.pipelineRepo.UpdateOpportunity(tx, opp); err != nil {
			return handlePipelineError(err)
		}
		for _, a := range activities {
			if err := s.recordActivity(tx, opp.ID, user.ID, a.Type, a.Description, a.OldValue, a.NewValue); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return opp, nil
}

func (s *pipelineService) recordActivity(db *gorm.DB, opportunityID, userID, activityType, description, oldValue, newValue string) error {
	err := s.pipelineRepo.CreateOpportunityActivity(db, &models.OpportunityActivity{
		OpportunityID: opportunityID,
		UserID:        userID,
		Type:          activityType,
		Description:   description,
		OldValue:      oldValue,
		NewValue:      newValue,
	})
	if err != nil {
		return apperrors.InternalError(err)
	}
	return nil
}

func normalizeStages(stages []models.PipelineStage) ([]models.PipelineStage, error) {
	seen := make(map[string]struct{}, len(stages))
	out := make([]models.PipelineStage, 0, len(stages))
	for _, st := range stages {
		st.Name = strings.TrimSpace(st.Name)
		if st.Name == "" {
			return nil, apperrors.ValidationError(map[string]string{"stages": "stage name is required"})
		}
		key := strings.ToLower(st.Name)
		if _, dup := seen[key]; dup {
			return nil, apperrors.ValidationError(map[string]string{"stages": "duplicate stage " + st.Name})
		}
		seen[key] = struct{}{}
		out = append(out, st)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	for i := range out {
		out[i].Order = i
	}
	return out, nil
}

func firstStage(p *models.Pipeline) (models.PipelineStage, bool) {
	if len(p.Stages) == 0 {
		return models.PipelineStage{}, false
	}
	return p.Stages[0], true
}

func findStage(p *models.Pipeline, name string) (models.PipelineStage, bool) {
	for _, st := range p.Stages {
		if strings.EqualFold(st.Name, strings.TrimSpace(name)) {
			return st, true
		}
	}
	return models.PipelineStage{}, false
}

func handlePipelineError(err error) error {
	switch {
	case errors.Is(err, repositories.ErrPipelineNotFound), errors.Is(err, repositories.ErrOpportunityNotFound):
		return apperrors.ErrNotFound(err)
	default:
		return apperrors.InternalError(err)
	}
}
