package services

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"crm_backend/internal/models"
	"crm_backend/internal/repositories"
	"crm_backend/pkg/apperrors"
)

const (
	reportListLimit   = 10
	defaultReportDays = 30
	maxReportDays     = 365
)

type PipelineOverviewReport struct {
	Stages     []repositories.StageSummary `json:"stages"`
	TotalCount int64                       `json:"total_count"`
	TotalValue decimal.Decimal             `json:"total_value"`
}

type DailyPoint struct {
	Date  string `json:"date"`
	Count int64  `json:"count"`
}

type LeadsOverTimeReport struct {
	Days   int          `json:"days"`
	Total  int64        `json:"total"`
	Points []DailyPoint `json:"points"`
}

type CampaignPerformance struct {
	ID           string                `json:"id"`
	Name         string                `json:"name"`
	Type         models.CampaignType   `json:"type"`
	Status       models.CampaignStatus `json:"status"`
	Sent         int                   `json:"sent"`
	Failed       int                   `json:"failed"`
	DeliveryRate float64               `json:"delivery_rate"`
	SentAt       *time.Time            `json:"sent_at,omitempty"`
}

type UpcomingTasksReport struct {
	Tasks []models.ContactTask `json:"tasks"`
}

type LeadSource struct {
	Source         string          `json:"source"`
	Leads          int64           `json:"leads"`
	Share          float64         `json:"share"`
	Converted      int64           `json:"converted"`
	ConversionRate float64         `json:"conversion_rate"`
	WonValue       decimal.Decimal `json:"won_value"`
}

type LeadSourcesReport struct {
	TotalLeads int64        `json:"total_leads"`
	Sources    []LeadSource `json:"sources"`
}

// FunnelStage: Reached - сделки, дошедшие до этапа или дальше (выигранные доходят до конца)
type FunnelStage struct {
	Stage          string  `json:"stage"`
	Reached        int64   `json:"reached"`
	Open           int64   `json:"open"`
	ConversionRate float64 `json:"conversion_rate"`
}

type PipelineConversionReport struct {
	PipelineID        string          `json:"pipeline_id"`
	Stages            []FunnelStage   `json:"stages"`
	Total             int64           `json:"total"`
	Won               int64           `json:"won"`
	Lost              int64           `json:"lost"`
	WonValue          decimal.Decimal `json:"won_value"`
	OverallConversion float64         `json:"overall_conversion"`
}

type ChannelPerformance struct {
	Channel       models.Channel `json:"channel"`
	Conversations int64          `json:"conversations"`
	Inbound       int64          `json:"inbound"`
	Outbound      int64          `json:"outbound"`
	Delivered     int64          `json:"delivered"`
	Failed        int64          `json:"failed"`
	DeliveryRate  float64        `json:"delivery_rate"`
}

type ChannelPerformanceReport struct {
	Channels []ChannelPerformance `json:"channels"`
}

func (s *dashboardService) PipelineOverview(ctx context.Context, db *gorm.DB, user *models.User, subAccountID string) (*PipelineOverviewReport, error) {
	scope, err := s.tenantService.Scope(ctx, db, user, subAccountID)
	if err != nil {
		return nil, err
	}
	out := &PipelineOverviewReport{Stages: []repositories.StageSummary{}, TotalValue: decimal.Zero}
	if len(scope) == 0 {
		return out, nil
	}

	stages, err := s.dashboardRepo.StageOverview(db, scope)
	if err != nil {
		return nil, apperrors.InternalError(err)
	}
	for _, st := range stages {
		out.TotalCount += st.Count
		out.TotalValue = out.TotalValue.Add(st.TotalValue)
	}
	if stages != nil {
		out.Stages = stages
	}
	return out, nil
}

func (s *dashboardService) LeadsOverTime(ctx context.Context, db *gorm.DB, user *models.User, subAccountID string, days int) (*LeadsOverTimeReport, error) {
	scope, err := s.tenantService.Scope(ctx, db, user, subAccountID)
	if err != nil {
		return nil, err
	}
	days = clampDays(days)
	now := s.now().UTC()
	since := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, -(days - 1))

	var rows []repositories.DailyCount
	if len(scope) > 0 {
		if rows, err = s.dashboardRepo.ContactsPerDay(db, scope, since); err != nil {
			return nil, apperrors.InternalError(err)
		}
	}

	points := fillDays(since, days, rows)
	out := &LeadsOverTimeReport{Days: days, Points: points}
	for _, p := range points {
		out.Total += p.Count
	}
	return out, nil
}

func (s *dashboardService) CampaignPerformance(ctx context.Context, db *gorm.DB, user *models.User, subAccountID string) ([]CampaignPerformance, error) {
	scope, err := s.tenantService.Scope(ctx, db, user, subAccountID)
	if err != nil {
		return nil, err
	}
	out := []CampaignPerformance{}
	if len(scope) == 0 {
		return out, nil
	}

	campaigns, err := s.dashboardRepo.RecentCampaigns(db, scope, reportListLimit)
	if err != nil {
		return nil, apperrors.InternalError(err)
	}
	for _, c := range campaigns {
		out = append(out, CampaignPerformance{
			ID:           c.ID,
			Name:         c.Name,
			Type:         c.Type,
			Status:       c.Status,
			Sent:         c.SentCount,
			Failed:       c.FailedCount,
			DeliveryRate: rate(int64(c.SentCount), int64(c.SentCount+c.FailedCount)),
			SentAt:       c.SentAt,
		})
	}
	return out, nil
}

func (s *dashboardService) UpcomingTasks(ctx context.Context, db *gorm.DB, user *models.User, subAccountID string) (*UpcomingTasksReport, error) {
	scope, err := s.tenantService.Scope(ctx, db, user, subAccountID)
	if err != nil {
		return nil, err
	}
	out := &UpcomingTasksReport{Tasks: []models.ContactTask{}}
	if len(scope) == 0 {
		return out, nil
	}

	tasks, err := s.dashboardRepo.UpcomingTasks(db, scope, s.now().UTC(), reportListLimit)
	if err != nil {
		return nil, apperrors.InternalError(err)
	}
	if tasks != nil {
		out.Tasks = tasks
	}
	return out, nil
}

func (s *dashboardService) LeadSources(ctx context.Context, db *gorm.DB, user *models.User, subAccountID string) (*LeadSourcesReport, error) {
	scope, err := s.tenantService.Scope(ctx, db, user, subAccountID)
	if err != nil {
		return nil, err
	}
	if len(scope) == 0 {
		return &LeadSourcesReport{Sources: []LeadSource{}}, nil
	}

	leads, err := s.dashboardRepo.ContactsBySource(db, scope)
	if err != nil {
		return nil, apperrors.InternalError(err)
	}
	won, err := s.dashboardRepo.WonBySource(db, scope)
	if err != nil {
		return nil, apperrors.InternalError(err)
	}
	return buildLeadSources(leads, won), nil
}

func (s *dashboardService) PipelineConversion(ctx context.Context, db *gorm.DB, user *models.User, pipelineID string) (*PipelineConversionReport, error) {
	pipeline, err := s.pipelineRepo.FindPipelineByID(db, pipelineID)
	if err != nil {
		return nil, handlePipelineError(err)
	}
	if err := s.tenantService.CanAccess(ctx, db, user, pipeline.SubAccountID); err != nil {
		return nil, err
	}

	rows, err := s.dashboardRepo.OpportunityStages(db, pipeline.ID)
	if err != nil {
		return nil, apperrors.InternalError(err)
	}
	out := buildFunnel(pipeline.Stages, rows)
	out.PipelineID = pipeline.ID
	return out, nil
}

func (s *dashboardService) ChannelPerformance(ctx context.Context, db *gorm.DB, user *models.User, subAccountID string) (*ChannelPerformanceReport, error) {
	scope, err := s.tenantService.Scope(ctx, db, user, subAccountID)
	if err != nil {
		return nil, err
	}
	if len(scope) == 0 {
		return &ChannelPerformanceReport{Channels: []ChannelPerformance{}}, nil
	}

	conversations, err := s.dashboardRepo.ConversationsByChannel(db, scope)
	if err != nil {
		return nil, apperrors.InternalError(err)
	}
	messages, err := s.dashboardRepo.MessagesByChannel(db, scope)
	if err != nil {
		return nil, apperrors.InternalError(err)
	}
	return &ChannelPerformanceReport{Channels: buildChannelPerformance(conversations, messages)}, nil
}

func clampDays(days int) int {
	switch {
	case days <= 0:
		return defaultReportDays
	case days > maxReportDays:
		return maxReportDays
	}
	return days
}

// rate - процент с одним знаком после запятой, 0 при пустом знаменателе
func rate(part, total int64) float64 {
	if total <= 0 {
		return 0
	}
	return math.Round(float64(part)/float64(total)*1000) / 10
}

// fillDays добавляет нулевые дни, чтобы график не рвался
func fillDays(since time.Time, days int, rows []repositories.DailyCount) []DailyPoint {
	counts := make(map[string]int64, len(rows))
	for _, r := range rows {
		if len(r.Day) >= len("2006-01-02") {
			counts[r.Day[:len("2006-01-02")]] += r.Count
		}
	}
	points := make([]DailyPoint, 0, days)
	for i := 0; i < days; i++ {
		day := since.AddDate(0, 0, i).Format("2006-01-02")
		points = append(points, DailyPoint{Date: day, Count: counts[day]})
	}
	return points
}

func buildLeadSources(leads, won []repositories.SourceCount) *LeadSourcesReport {
	wonBySource := make(map[string]repositories.SourceCount, len(won))
	for _, w := range won {
		wonBySource[w.Source] = w
	}

	out := &LeadSourcesReport{Sources: make([]LeadSource, 0, len(leads))}
	for _, l := range leads {
		out.TotalLeads += l.Count
	}
	for _, l := range leads {
		w := wonBySource[l.Source]
		out.Sources = append(out.Sources, LeadSource{
			Source:         l.Source,
			Leads:          l.Count,
			Share:          rate(l.Count, out.TotalLeads),
			Converted:      w.Count,
			ConversionRate: rate(w.Count, l.Count),
			WonValue:       w.Value,
		})
	}
	return out
}

// buildFunnel: проигранная сделка дошла до своего этапа, выигранная - до последнего.
// Сделки с этапом, которого нет в воронке, считаются на первом этапе.
func buildFunnel(stages []models.PipelineStage, rows []repositories.StageStatusCount) *PipelineConversionReport {
	ordered := make([]models.PipelineStage, len(stages))
	copy(ordered, stages)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Order < ordered[j].Order })

	out := &PipelineConversionReport{Stages: make([]FunnelStage, len(ordered)), WonValue: decimal.Zero}
	pos := make(map[string]int, len(ordered))
	for i, st := range ordered {
		pos[st.Name] = i
		out.Stages[i].Stage = st.Name
	}
	if len(ordered) == 0 {
		return out
	}
	last := len(ordered) - 1

	for _, r := range rows {
		out.Total += r.Count
		reached := pos[r.Stage]
		switch r.Status {
		case models.OpportunityStatusWon:
			out.Won += r.Count
			out.WonValue = out.WonValue.Add(r.Value)
			reached = last
		case models.OpportunityStatusLost:
			out.Lost += r.Count
		default:
			out.Stages[reached].Open += r.Count
		}
		for i := 0; i <= reached; i++ {
			out.Stages[i].Reached += r.Count
		}
	}

	for i := range out.Stages {
		next := out.Won
		if i < last {
			next = out.Stages[i+1].Reached
		}
		out.Stages[i].ConversionRate = rate(next, out.Stages[i].Reached)
	}
	out.OverallConversion = rate(out.Won, out.Total)
	return out
}

func buildChannelPerformance(conversations []repositories.ChannelCount, messages []repositories.ChannelMessageCount) []ChannelPerformance {
	byChannel := map[models.Channel]*ChannelPerformance{}
	get := func(ch models.Channel) *ChannelPerformance {
		cp, ok := byChannel[ch]
		if !ok {
			cp = &ChannelPerformance{Channel: ch}
			byChannel[ch] = cp
		}
		return cp
	}

	for _, c := range conversations {
		get(c.Channel).Conversations += c.Count
	}
	for _, m := range messages {
		cp := get(m.Channel)
		if m.Direction == models.DirectionInbound {
			cp.Inbound += m.Count
			continue
		}
		cp.Outbound += m.Count
		if m.Status == models.MessageStatusFailed {
			cp.Failed += m.Count
		} else {
			cp.Delivered += m.Count
		}
	}

	out := make([]ChannelPerformance, 0, len(byChannel))
	for _, cp := range byChannel {
		cp.DeliveryRate = rate(cp.Delivered, cp.Outbound)
		out = append(out, *cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Channel < out[j].Channel })
	return out
}
