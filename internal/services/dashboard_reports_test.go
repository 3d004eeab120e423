package services

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crm_backend/internal/models"
	"crm_backend/internal/repositories"
)

func TestBuildFunnel(t *testing.T) {
	// порядок этапов задается Order, а не позицией в массиве
	stages := []models.PipelineStage{
		{Name: "Proposal", Order: 2},
		{Name: "Lead", Order: 0},
		{Name: "Qualified", Order: 1},
	}
	rows := []repositories.StageStatusCount{
		{Stage: "Lead", Status: models.OpportunityStatusOpen, Count: 5, Value: decimal.NewFromInt(500)},
		{Stage: "Qualified", Status: models.OpportunityStatusOpen, Count: 3, Value: decimal.NewFromInt(300)},
		{Stage: "Proposal", Status: models.OpportunityStatusLost, Count: 1, Value: decimal.NewFromInt(50)},
		{Stage: "Qualified", Status: models.OpportunityStatusWon, Count: 1, Value: decimal.NewFromInt(1000)},
	}

	out := buildFunnel(stages, rows)

	require.Len(t, out.Stages, 3)
	assert.Equal(t, "Lead", out.Stages[0].Stage)
	assert.Equal(t, "Proposal", out.Stages[2].Stage)

	assert.Equal(t, int64(10), out.Stages[0].Reached)
	assert.Equal(t, int64(5), out.Stages[1].Reached)
	assert.Equal(t, int64(2), out.Stages[2].Reached)

	assert.Equal(t, int64(5), out.Stages[0].Open)
	assert.Equal(t, int64(3), out.Stages[1].Open)
	assert.Equal(t, int64(0), out.Stages[2].Open)

	assert.Equal(t, 50.0, out.Stages[0].ConversionRate)
	assert.Equal(t, 40.0, out.Stages[1].ConversionRate)
	assert.Equal(t, 50.0, out.Stages[2].ConversionRate)

	assert.Equal(t, int64(10), out.Total)
	assert.Equal(t, int64(1), out.Won)
	assert.Equal(t, int64(1), out.Lost)
	assert.True(t, out.WonValue.Equal(decimal.NewFromInt(1000)))
	assert.Equal(t, 10.0, out.OverallConversion)
}

func TestBuildFunnel_UnknownStageAndEmptyPipeline(t *testing.T) {
	stages := []models.PipelineStage{{Name: "New", Order: 0}, {Name: "Done", Order: 1}}
	rows := []repositories.StageStatusCount{
		{Stage: "Renamed", Status: models.OpportunityStatusOpen, Count: 2, Value: decimal.Zero},
	}

	out := buildFunnel(stages, rows)
	assert.Equal(t, int64(2), out.Stages[0].Reached)
	assert.Equal(t, int64(2), out.Stages[0].Open)
	assert.Equal(t, 0.0, out.Stages[0].ConversionRate)
	assert.Equal(t, 0.0, out.OverallConversion)

	empty := buildFunnel(nil, rows)
	assert.Empty(t, empty.Stages)
	assert.Equal(t, int64(0), empty.Total)
}

func TestFillDays(t *testing.T) {
	since := time.Date(2024, 2, 27, 0, 0, 0, 0, time.UTC)
	rows := []repositories.DailyCount{
		{Day: "2024-02-28", Count: 4},
		{Day: "2024-03-01T00:00:00Z", Count: 1},
	}

	points := fillDays(since, 4, rows)

	assert.Equal(t, []DailyPoint{
		{Date: "2024-02-27", Count: 0},
		{Date: "2024-02-28", Count: 4},
		{Date: "2024-02-29", Count: 0},
		{Date: "2024-03-01", Count: 1},
	}, points)
}

func TestClampDays(t *testing.T) {
	assert.Equal(t, defaultReportDays, clampDays(0))
	assert.Equal(t, defaultReportDays, clampDays(-3))
	assert.Equal(t, 7, clampDays(7))
	assert.Equal(t, maxReportDays, clampDays(1000))
}

func TestBuildLeadSources(t *testing.T) {
	leads := []repositories.SourceCount{
		{Source: "webinar", Count: 6},
		{Source: "unknown", Count: 2},
	}
	won := []repositories.SourceCount{
		{Source: "webinar", Count: 3, Value: decimal.RequireFromString("1250.50")},
	}

	out := buildLeadSources(leads, won)

	assert.Equal(t, int64(8), out.TotalLeads)
	require.Len(t, out.Sources, 2)

	assert.Equal(t, 75.0, out.Sources[0].Share)
	assert.Equal(t, int64(3), out.Sources[0].Converted)
	assert.Equal(t, 50.0, out.Sources[0].ConversionRate)
	assert.Equal(t, "1250.5", out.Sources[0].WonValue.String())

	assert.Equal(t, 25.0, out.Sources[1].Share)
	assert.Equal(t, int64(0), out.Sources[1].Converted)
	assert.Equal(t, 0.0, out.Sources[1].ConversionRate)
	assert.True(t, out.Sources[1].WonValue.IsZero())
}

func TestBuildChannelPerformance(t *testing.T) {
	conversations := []repositories.ChannelCount{
		{Channel: models.ChannelSMS, Count: 2},
		{Channel: models.ChannelEmail, Count: 1},
	}
	messages := []repositories.ChannelMessageCount{
		{Channel: models.ChannelSMS, Direction: models.DirectionOutbound, Status: models.MessageStatusDelivered, Count: 6},
		{Channel: models.ChannelSMS, Direction: models.DirectionOutbound, Status: models.MessageStatusSent, Count: 1},
		{Channel: models.ChannelSMS, Direction: models.DirectionOutbound, Status: models.MessageStatusFailed, Count: 1},
		{Channel: models.ChannelSMS, Direction: models.DirectionInbound, Status: models.MessageStatusRead, Count: 4},
		{Channel: models.ChannelEmail, Direction: models.DirectionInbound, Status: models.MessageStatusRead, Count: 2},
	}

	out := buildChannelPerformance(conversations, messages)

	require.Len(t, out, 2)
	assert.Equal(t, models.ChannelEmail, out[0].Channel)
	assert.Equal(t, int64(2), out[0].Inbound)
	assert.Equal(t, 0.0, out[0].DeliveryRate)

	sms := out[1]
	assert.Equal(t, int64(2), sms.Conversations)
	assert.Equal(t, int64(4), sms.Inbound)
	assert.Equal(t, int64(8), sms.Outbound)
	assert.Equal(t, int64(7), sms.Delivered)
	assert.Equal(t, int64(1), sms.Failed)
	assert.Equal(t, 87.5, sms.DeliveryRate)
}
