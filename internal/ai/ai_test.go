package ai

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type stubCompleter struct {
	enabled bool
	reply   string
	err     error
	calls   int
}

func (s *stubCompleter) Enabled() bool { return s.enabled }

func (s *stubCompleter) Complete(ctx context.Context, system, prompt string, temperature float32) (string, error) {
	s.calls++
	return s.reply, s.err
}

func TestRuleBasedLeadScore(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	recent := now.Add(-48 * time.Hour)

	t.Run("base score", func(t *testing.T) {
		got := RuleBasedLeadScore(LeadSignals{}, now)
		assert.Equal(t, 50.0, got.Score)
		assert.Equal(t, 75.0, got.Confidence)
		assert.Empty(t, got.Factors)
		assert.Equal(t, SourceRules, got.Source)
	})

	t.Run("capped at 100 with top three factors", func(t *testing.T) {
		got := RuleBasedLeadScore(LeadSignals{
			EmailOpens: 6, PageViews: 11, FormSubmissions: 1, CompanySize: 500, LastActivityAt: &recent,
		}, now)
		assert.Equal(t, 100.0, got.Score)
		assert.Equal(t, []string{"High email engagement", "Active website visitor", "Form submissions"}, got.Factors)
	})

	t.Run("thresholds are strict", func(t *testing.T) {
		old := now.Add(-8 * 24 * time.Hour)
		got := RuleBasedLeadScore(LeadSignals{EmailOpens: 5, PageViews: 10, CompanySize: 100, LastActivityAt: &old}, now)
		assert.Equal(t, 50.0, got.Score)
	})
}

func TestProfileLeadScore(t *testing.T) {
	assert.Equal(t, 50.0, ProfileLeadScore(LeadSignals{Email: "not-an-email"}))
	assert.Equal(t, 100.0, ProfileLeadScore(LeadSignals{
		Email: "a@b.co", Company: "Acme", Phone: "+1555", Source: "referral",
	}))
	assert.Equal(t, 85.0, ProfileLeadScore(LeadSignals{Email: "a@b.co", Company: "Acme", Phone: "+1"}))
}

func TestRuleBasedConversationInsight(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		got := RuleBasedConversationInsight(nil)
		assert.Equal(t, SentimentNeutral, got.Sentiment)
		assert.Equal(t, IntentUnknown, got.Intent)
		assert.Zero(t, got.IntentConfidence)
		assert.Equal(t, "Start conversation", got.NextBestAction)
	})

	t.Run("only the last message counts", func(t *testing.T) {
		got := RuleBasedConversationInsight([]ConversationMessage{
			{Direction: "inbound", Content: "This is terrible"},
			{Direction: "inbound", Content: "Thanks, can you show me a DEMO?"},
		})
		assert.Equal(t, SentimentPositive, got.Sentiment)
		assert.Equal(t, 0.7, got.SentimentScore)
		assert.Equal(t, IntentDemoRequest, got.Intent)
		assert.Equal(t, 70.0, got.IntentConfidence)
	})

	t.Run("problem is negative and support", func(t *testing.T) {
		got := RuleBasedConversationInsight([]ConversationMessage{{Content: "I have a problem with billing"}})
		assert.Equal(t, SentimentNegative, got.Sentiment)
		assert.Equal(t, IntentSupportRequest, got.Intent)
	})

	t.Run("tie is neutral", func(t *testing.T) {
		s, score := SentimentOf("great but awful pricing")
		assert.Equal(t, SentimentNeutral, s)
		assert.Zero(t, score)
		assert.Equal(t, IntentPricingInquiry, IntentOf("what does it cost"))
		assert.Equal(t, IntentGeneralInquiry, IntentOf("hello"))
	})
}

func TestTemplateSuggestions(t *testing.T) {
	got := TemplateSuggestions(IntentPricingInquiry, "")
	assert.Len(t, got, 3)
	assert.Contains(t, got[0], "Hi there")
	assert.Contains(t, TemplateSuggestions(IntentDemoRequest, "Ann")[2], "Ann, I can set up a 30-minute demo")
}

func TestAnalyzer_FallsBackWhenDisabled(t *testing.T) {
	stub := &stubCompleter{}
	a := NewAnalyzer(stub)

	got := a.ScoreLead(context.Background(), LeadSignals{FormSubmissions: 2})
	assert.Equal(t, 70.0, got.Score)
	assert.Equal(t, SourceRules, got.Source)
	assert.Zero(t, stub.calls)
}

func TestAnalyzer_FallsBackOnProviderError(t *testing.T) {
	stub := &stubCompleter{enabled: true, err: errors.New("503")}
	a := NewAnalyzer(stub)

	got := a.AnalyzeConversation(context.Background(), []ConversationMessage{{Content: "pricing please"}})
	assert.Equal(t, IntentPricingInquiry, got.Intent)
	assert.Equal(t, SourceRules, got.Source)
	assert.Equal(t, 1, stub.calls)
}

func TestAnalyzer_FallsBackOnGarbage(t *testing.T) {
	a := NewAnalyzer(&stubCompleter{enabled: true, reply: "sure! here is a score: 80"})
	got := a.ScoreLead(context.Background(), LeadSignals{})
	assert.Equal(t, SourceRules, got.Source)
}

func TestAnalyzer_UsesProviderResult(t *testing.T) {
	a := NewAnalyzer(&stubCompleter{enabled: true,
		reply: `{"score": 88, "confidence": 90, "factors": ["a","b","c","d"], "reasoning": "r"}`})

	got := a.ScoreLead(context.Background(), LeadSignals{})
	assert.Equal(t, 88.0, got.Score)
	assert.Len(t, got.Factors, 3)
	assert.Equal(t, SourceAI, got.Source)

	s := NewAnalyzer(&stubCompleter{enabled: true, reply: `["one","two","three"]`}).
		SuggestContent(context.Background(), SuggestionContext{Intent: IntentDemoRequest})
	assert.Equal(t, []string{"one", "two", "three"}, s.Suggestions)
}

func TestStripCodeFence(t *testing.T) {
	assert.Equal(t, `{"a":1}`, stripCodeFence("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `[1]`, stripCodeFence("  [1] "))
}

func TestPriorityOf(t *testing.T) {
	assert.Equal(t, PriorityHigh, PriorityOf(ConversationInsight{Sentiment: SentimentNegative, Intent: IntentGeneralInquiry}))
	assert.Equal(t, PriorityHigh, PriorityOf(ConversationInsight{Sentiment: SentimentPositive, Intent: IntentSupportRequest}))
	assert.Equal(t, PriorityMedium, PriorityOf(ConversationInsight{Sentiment: SentimentNeutral, Intent: IntentPricingInquiry}))
	assert.Equal(t, PriorityLow, PriorityOf(ConversationInsight{Sentiment: SentimentPositive, Intent: IntentGeneralInquiry}))
}
