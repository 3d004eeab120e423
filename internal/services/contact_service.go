package services

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"crm_backend/internal/ai"
	"crm_backend/internal/logger"
	"crm_backend/internal/models"
	"crm_backend/internal/repositories"
	"crm_backend/internal/services/dto"
	"crm_backend/internal/storage"
	"crm_backend/internal/subscription"
	"crm_backend/pkg/apperrors"
)

// Типы активностей контакта
const (
	ActivityCreated    = "created"
	ActivityUpdated    = "updated"
	ActivityNoteAdded  = "note_added"
	ActivityTaskAdded  = "task_added"
	ActivityLeadScored = "lead_scored"
)

const exportURLTTL = 24 * time.Hour

var exportHeader = []string{
	"id", "first_name", "last_name", "email", "phone", "company", "job_title",
	"status", "source", "tags", "lead_score", "created_at",
}

type ContactService interface {
	List(ctx context.Context, db *gorm.DB, user *models.User, query dto.ContactListQuery) (*dto.ListResponse[models.Contact], error)
	Create(ctx context.Context, db *gorm.DB, user *models.User, req *dto.CreateContactRequest) (*models.Contact, error)
	Get(ctx context.Context, db *gorm.DB, user *models.User, contactID string) (*dto.ContactDetails, error)
	Update(ctx context.Context, db *gorm.DB, user *models.User, contactID string, req *dto.UpdateContactRequest) (*models.Contact, error)
	Delete(ctx context.Context, db *gorm.DB, user *models.User, contactID string) error

	AddNote(ctx context.Context, db *gorm.DB, user *models.User, contactID string, req *dto.CreateNoteRequest) (*models.ContactNote, error)
	AddTask(ctx context.Context, db *gorm.DB, user *models.User, contactID string, req *dto.CreateTaskRequest) (*models.ContactTask, error)
	// Score пересчитывает lead_score контакта
	Score(ctx context.Context, db *gorm.DB, user *models.User, contactID string) (*ai.LeadScore, error)
	Export(ctx context.Context, db *gorm.DB, user *models.User, req *dto.ContactExportRequest) (*dto.ContactExportResponse, error)

	// Load - контакт с проверкой доступа к субаккаунту
	Load(ctx context.Context, db *gorm.DB, user *models.User, contactID string) (*models.Contact, error)
}

type contactService struct {
	contactRepo      repositories.ContactRepository
	conversationRepo repositories.ConversationRepository
	tenantService    TenantService
	usageService     UsageService
	resolver         *subscription.Resolver
	analyzer         *ai.Analyzer
	storage          storage.Storage
	now              func() time.Time
}

func NewContactService(
	contactRepo repositories.ContactRepository,
	conversationRepo repositories.ConversationRepository,
	tenantService TenantService,
	usageService UsageService,
	resolver *subscription.Resolver,
	analyzer *ai.Analyzer,
	store storage.Storage,
) ContactService {
	return &contactService{
		contactRepo:      contactRepo,
		conversationRepo: conversationRepo,
		tenantService:    tenantService,
		usageService:     usageService,
		resolver:         resolver,
		analyzer:         analyzer,
		storage:          store,
		now:              time.Now,
	}
}

func (s *contactService) List(ctx context.Context, db *gorm.DB, user *models.User, query dto.ContactListQuery) (*dto.ListResponse[models.Contact], error) {
	scope, err := s.tenantService.Scope(ctx, db, user, query.SubAccountID)
	if err != nil {
		return nil, err
	}
	page, pageSize := normalizePage(query.Page, query.PageSize)

	contacts, total, err := s.contactRepo.List(db, repositories.ContactFilter{
		SubAccountIDs: scope,
		Search:        strings.TrimSpace(query.Search),
		Status:        models.ContactStatus(query.Status),
		Tags:          query.Tags,
		Page:          page,
		PageSize:      pageSize,
	})
	if err != nil {
		return nil, apperrors.InternalError(err)
	}
	return dto.NewListResponse(contacts, total, page, pageSize), nil
}

// Create - квота contacts проверяется до записи и списывается после
func (s *contactService) Create(ctx context.Context, db *gorm.DB, user *models.User, req *dto.CreateContactRequest) (*models.Contact, error) {
	status, err := s.usageService.Check(ctx, db, user, subscription.FeatureContacts, "")
	if err != nil {
		return nil, err
	}
	if !status.Allowed {
		return nil, apperrors.ErrQuotaExceeded(subscription.FeatureContacts, status.UsageCount, status.Limit)
	}

	subAccountID, err := s.tenantService.TargetSubAccount(ctx, db, user, req.SubAccountID)
	if err != nil {
		return nil, err
	}

	contact := &models.Contact{
		SubAccountID: subAccountID,
		Email:        strings.ToLower(strings.TrimSpace(req.Email)),
		Phone:        strings.TrimSpace(req.Phone),
		FirstName:    strings.TrimSpace(req.FirstName),
		LastName:     strings.TrimSpace(req.LastName),
		Company:      req.Company,
		JobTitle:     req.JobTitle,
		Tags:         normalizeTags(req.Tags),
		Status:       models.ContactStatusActive,
		Source:       req.Source,
		CompanySize:  req.CompanySize,
	}
	if req.Status != "" {
		contact.Status = models.ContactStatus(req.Status)
	}
	if req.CustomFields != nil {
		raw, err := json.Marshal(req.CustomFields)
		if err != nil {
			return nil, apperrors.ErrInvalidOperation("contact", "custom_fields must be a JSON object")
		}
		contact.CustomFields = datatypes.JSON(raw)
	}

	err = inTx(db, func(tx *gorm.DB) error {
		if err := s.contactRepo.Create(tx, contact); err != nil {
			return apperrors.InternalError(err)
		}
		return s.addActivity(tx, contact.ID, user.ID, ActivityCreated, "Contact created", nil)
	})
	if err != nil {
		return nil, err
	}

	if _, err := s.usageService.Increment(ctx, db, user, subscription.FeatureContacts, 1, ""); err != nil {
		logger.CtxWarn(ctx, "contact created but usage not incremented", "contact_id", contact.ID, "error", err.Error())
	}
	return contact, nil
}

func (s *contactService) Load(ctx context.Context, db *gorm.DB, user *models.User, contactID string) (*models.Contact, error) {
	contact, err := s.contactRepo.FindByID(db, contactID)
	if err != nil {
		return nil, handleContactError(err)
	}
	if err := s.tenantService.CanAccess(ctx, db, user, contact.SubAccountID); err != nil {
		return nil, err
	}
	return contact, nil
}

func (s *contactService) Get(ctx context.Context, db *gorm.DB, user *models.User, contactID string) (*dto.ContactDetails, error) {
	contact, err := s.contactRepo.FindWithDetails(db, contactID)
	if err != nil {
		return nil, handleContactError(err)
	}
	if err := s.tenantService.CanAccess(ctx, db, user, contact.SubAccountID); err != nil {
		return nil, err
	}

	_, open, err := s.conversationRepo.ListConversations(db, repositories.ConversationFilter{
		SubAccountIDs: []string{contact.SubAccountID},
		ContactID:     contact.ID,
		Status:        models.ConversationStatusOpen,
		Page:          1,
		PageSize:      1,
	})
	if err != nil {
		return nil, apperrors.InternalError(err)
	}
	return &dto.ContactDetails{Contact: contact, OpenConversations: open}, nil
}

func (s *contactService) Update(ctx context.Context, db *gorm.DB, user *models.User, contactID string, req *dto.UpdateContactRequest) (*models.Contact, error) {
	contact, err := s.Load(ctx, db, user, contactID)
	if err != nil {
		return nil, err
	}

	var changed []string
	set := func(field string, dst *string, v *string) {
		if v != nil && *dst != *v {
			*dst = *v
			changed = append(changed, field)
		}
	}
	set("email", &contact.Email, req.Email)
	set("phone", &contact.Phone, req.Phone)
	set("first_name", &contact.FirstName, req.FirstName)
	set("last_name", &contact.LastName, req.LastName)
	set("company", &contact.Company, req.Company)
	set("job_title", &contact.JobTitle, req.JobTitle)
	set("source", &contact.Source, req.Source)

	if req.Status != nil && contact.Status != models.ContactStatus(*req.Status) {
		contact.Status = models.ContactStatus(*req.Status)
		changed = append(changed, "status")
	}
	if req.CompanySize != nil && contact.CompanySize != *req.CompanySize {
		contact.CompanySize = *req.CompanySize
		changed = append(changed, "company_size")
	}
	if req.Tags != nil {
		contact.Tags = normalizeTags(req.Tags)
		changed = append(changed, "tags")
	}
	if req.CustomFields != nil {
		raw, err := json.Marshal(req.CustomFields)
		if err != nil {
			return nil, apperrors.ErrInvalidOperation("contact", "custom_fields must be a JSON object")
		}
		contact.CustomFields = datatypes.JSON(raw)
		changed = append(changed, "custom_fields")
	}

	if len(changed) == 0 {
		return contact, nil
	}
	if err := s.contactRepo.Update(db, contact); err != nil {
		return nil, handleContactError(err)
	}
	if err := s.addActivity(db, contact.ID, user.ID, ActivityUpdated, "Contact updated", map[string]interface{}{"fields": changed}); err != nil {
		logger.CtxWarn(ctx, "contact activity not recorded", "contact_id", contact.ID, "error", err.Error())
	}
	return contact, nil
}

// Delete не возвращает квоту contacts: счетчик месячный
func (s *contactService) Delete(ctx context.Context, db *gorm.DB, user *models.User, contactID string) error {
	if _, err := s.Load(ctx, db, user, contactID); err != nil {
		return err
	}
	if err := s.contactRepo.Delete(db, contactID); err != nil {
		return handleContactError(err)
	}
	return nil
}

func (s *contactService) AddNote(ctx context.Context, db *gorm.DB, user *models.User, contactID string, req *dto.CreateNoteRequest) (*models.ContactNote, error) {
	if _, err := s.Load(ctx, db, user, contactID); err != nil {
		return nil, err
	}
	note := &models.ContactNote{
		ContactID: contactID,
		UserID:    user.ID,
		Content:   req.Content,
		IsPrivate: req.IsPrivate,
	}
	if err := s.contactRepo.CreateNote(db, note); err != nil {
		return nil, apperrors.InternalError(err)
	}
	if err := s.addActivity(db, contactID, user.ID, ActivityNoteAdded, "Note added", nil); err != nil {
		logger.CtxWarn(ctx, "contact activity not recorded", "contact_id", contactID, "error", err.Error())
	}
	return note, nil
}

func (s *contactService) AddTask(ctx context.Context, db *gorm.DB, user *models.User, contactID string, req *dto.CreateTaskRequest) (*models.ContactTask, error) {
	if _, err := s.Load(ctx, db, user, contactID); err != nil {
		return nil, err
	}
	task := &models.ContactTask{
		ContactID:   contactID,
		UserID:      user.ID,
		Title:       req.Title,
		Description: req.Description,
		DueDate:     req.DueDate,
		Status:      models.TaskStatusPending,
		Priority:    models.TaskPriorityMedium,
	}
	if req.Priority != "" {
		task.Priority = models.TaskPriority(req.Priority)
	}
	if err := s.contactRepo.CreateTask(db, task); err != nil {
		return nil, apperrors.InternalError(err)
	}
	if err := s.addActivity(db, contactID, user.ID, ActivityTaskAdded, "Task added: "+task.Title, nil); err != nil {
		logger.CtxWarn(ctx, "contact activity not recorded", "contact_id", contactID, "error", err.Error())
	}
	return task, nil
}

func (s *contactService) Score(ctx context.Context, db *gorm.DB, user *models.User, contactID string) (*ai.LeadScore, error) {
	contact, err := s.Load(ctx, db, user, contactID)
	if err != nil {
		return nil, err
	}

	score := s.analyzer.ScoreLead(ctx, LeadSignalsOf(contact))
	rounded := int(score.Score + 0.5)
	if err := s.contactRepo.UpdateLeadScore(db, contactID, rounded); err != nil {
		return nil, handleContactError(err)
	}
	meta := map[string]interface{}{"score": rounded, "source": score.Source}
	if err := s.addActivity(db, contactID, user.ID, ActivityLeadScored, fmt.Sprintf("Lead score %d", rounded), meta); err != nil {
		logger.CtxWarn(ctx, "contact activity not recorded", "contact_id", contactID, "error", err.Error())
	}
	return &score, nil
}

// Export пишет CSV в хранилище. Тарифы без storage_gb выгрузку не получают.
func (s *contactService) Export(ctx context.Context, db *gorm.DB, user *models.User, req *dto.ContactExportRequest) (*dto.ContactExportResponse, error) {
	if !s.resolver.ResolveFor(user, subscription.FeatureStorageGB).Enabled() {
		return nil, apperrors.ErrQuotaExceeded(subscription.FeatureStorageGB, 0, 0)
	}
	if s.storage == nil {
		return nil, apperrors.ErrProviderUnavailable("storage", errors.New("storage is not configured"))
	}

	scope, err := s.tenantService.Scope(ctx, db, user, req.SubAccountID)
	if err != nil {
		return nil, err
	}

	var contacts []models.Contact
	for page := 1; ; page++ {
		batch, total, err := s.contactRepo.List(db, repositories.ContactFilter{
			SubAccountIDs: scope,
			Status:        models.ContactStatus(req.Status),
			Page:          page,
			PageSize:      500,
		})
		if err != nil {
			return nil, apperrors.InternalError(err)
		}
		contacts = append(contacts, batch...)
		if len(batch) == 0 || int64(len(contacts)) >= total {
			break
		}
	}

	body, err := contactsCSV(contacts)
	if err != nil {
		return nil, apperrors.InternalError(err)
	}

	now := s.now()
	path := fmt.Sprintf("exports/%s/contacts-%s.csv", user.ID, now.UTC().Format("20060102-150405"))
	n, err := s.storage.Save(ctx, path, bytes.NewReader(body), "text/csv")
	if err != nil {
		return nil, apperrors.ErrProviderUnavailable("storage", err)
	}
	url, err := s.storage.GetSignedURL(ctx, path, exportURLTTL)
	if err != nil {
		return nil, apperrors.ErrProviderUnavailable("storage", err)
	}

	logger.CtxInfo(ctx, "contacts exported", "user_id", user.ID, "count", len(contacts), "path", path)
	return &dto.ContactExportResponse{
		Path:      path,
		URL:       url,
		Count:     len(contacts),
		Bytes:     n,
		ExpiresAt: now.Add(exportURLTTL),
	}, nil
}

func (s *contactService) addActivity(db *gorm.DB, contactID, userID, activityType, description string, meta map[string]interface{}) error {
	activity := &models.ContactActivity{
		ContactID:   contactID,
		UserID:      userID,
		Type:        activityType,
		Description: description,
	}
	if meta != nil {
		raw, err := json.Marshal(meta)
		if err != nil {
			return err
		}
		activity.Metadata = datatypes.JSON(raw)
	}
	if err := s.contactRepo.CreateActivity(db, activity); err != nil {
		return apperrors.InternalError(err)
	}
	return nil
}

// LeadSignalsOf - сигналы скоринга из контакта
func LeadSignalsOf(c *models.Contact) ai.LeadSignals {
	return ai.LeadSignals{
		Name:            c.FullName(),
		Email:           c.Email,
		Phone:           c.Phone,
		Company:         c.Company,
		Title:           c.JobTitle,
		Source:          c.Source,
		EmailOpens:      c.EmailOpens,
		PageViews:       c.PageViews,
		FormSubmissions: c.FormSubmissions,
		CompanySize:     c.CompanySize,
		LastActivityAt:  c.LastActivityAt,
	}
}

func contactsCSV(contacts []models.Contact) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(exportHeader); err != nil {
		return nil, err
	}
	for _, c := range contacts {
		row := []string{
			c.ID, c.FirstName, c.LastName, c.Email, c.Phone, c.Company, c.JobTitle,
			string(c.Status), c.Source, strings.Join(c.Tags, ";"), strconv.Itoa(c.LeadScore),
			c.CreatedAt.UTC().Format(time.RFC3339),
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

func normalizeTags(tags []string) datatypes.JSONSlice[string] {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return datatypes.JSONSlice[string](out)
}

func handleContactError(err error) error {
	if errors.Is(err, repositories.ErrContactNotFound) {
		return apperrors.ErrNotFound(err)
	}
	return apperrors.InternalError(err)
}
