package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"crm_backend/internal/logger"
)

const (
	leadScoringSystem  = "You are an expert sales AI that analyzes leads and provides accurate scoring based on behavioral patterns, demographics, and engagement data."
	conversationSystem = "You are an expert conversation analyst that provides accurate sentiment analysis, intent detection, and actionable insights for customer service teams."
	copywriterSystem   = "You are an expert copywriter that creates personalized, effective business communications."
)

// Analyzer пробует completion провайдер и откатывается на правила.
// Ошибки провайдера наружу не выходят.
type Analyzer struct {
	completer Completer
	now       func() time.Time
}

func NewAnalyzer(completer Completer) *Analyzer {
	return &Analyzer{completer: completer, now: time.Now}
}

func (a *Analyzer) Enabled() bool {
	return a.completer != nil && a.completer.Enabled()
}

func (a *Analyzer) ScoreLead(ctx context.Context, s LeadSignals) LeadScore {
	fallback := RuleBasedLeadScore(s, a.now())
	if !a.Enabled() {
		return fallback
	}

	prompt := fmt.Sprintf(`Analyze this lead and provide a comprehensive scoring assessment:

Contact Information:
%s

Respond with JSON only:
{"score": <0-100>, "confidence": <0-100>, "factors": ["factor1", "factor2", "factor3"], "reasoning": "explanation"}`, leadContext(s))

	raw, err := a.completer.Complete(ctx, leadScoringSystem, prompt, 0.3)
	if err != nil {
		logger.CtxWarn(ctx, "lead scoring fell back to rules", "error", err)
		return fallback
	}

	var out LeadScore
	if err := json.Unmarshal([]byte(raw), &out); err != nil || out.Score < 0 || out.Score > 100 {
		logger.CtxWarn(ctx, "unparseable lead score from provider", "error", err)
		return fallback
	}
	if len(out.Factors) > 3 {
		out.Factors = out.Factors[:3]
	}
	if out.Factors == nil {
		out.Factors = []string{}
	}
	out.Source = SourceAI
	return out
}

func (a *Analyzer) AnalyzeConversation(ctx context.Context, messages []ConversationMessage) ConversationInsight {
	fallback := RuleBasedConversationInsight(messages)
	if len(messages) == 0 || !a.Enabled() {
		return fallback
	}

	var b strings.Builder
	for _, m := range messages {
		who := "Agent"
		if m.Direction == "inbound" {
			who = "Customer"
		}
		fmt.Fprintf(&b, "%s: %s\n", who, m.Content)
	}

	prompt := fmt.Sprintf(`Analyze this customer conversation and provide insights:

Conversation:
%s
Respond with JSON only:
{"sentiment": "positive|neutral|negative", "sentiment_score": <-1..1>, "intent": "demo_request|pricing_inquiry|support_request|general_inquiry", "intent_confidence": <0-100>, "entities": {"type": "value"}, "summary": "brief summary", "next_action": "recommended action"}`, b.String())

	raw, err := a.completer.Complete(ctx, conversationSystem, prompt, 0.2)
	if err != nil {
		logger.CtxWarn(ctx, "conversation analysis fell back to rules", "error", err)
		return fallback
	}

	var parsed struct {
		Sentiment        string            `json:"sentiment"`
		SentimentScore   float64           `json:"sentiment_score"`
		Intent           string            `json:"intent"`
		IntentConfidence float64           `json:"intent_confidence"`
		Entities         map[string]string `json:"entities"`
		Summary          string            `json:"summary"`
		NextAction       string            `json:"next_action"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil || parsed.Sentiment == "" {
		logger.CtxWarn(ctx, "unparseable conversation insight from provider", "error", err)
		return fallback
	}
	if parsed.Entities == nil {
		parsed.Entities = map[string]string{}
	}
	return ConversationInsight{
		Sentiment:        parsed.Sentiment,
		SentimentScore:   parsed.SentimentScore,
		Intent:           parsed.Intent,
		IntentConfidence: parsed.IntentConfidence,
		Entities:         parsed.Entities,
		Summary:          parsed.Summary,
		NextBestAction:   parsed.NextAction,
		Source:           SourceAI,
	}
}

// SuggestionContext - контекст для генерации ответов
type SuggestionContext struct {
	ContactName string `json:"contact_name"`
	Company     string `json:"company"`
	Intent      string `json:"intent"`
	LastMessage string `json:"last_message"`
}

type ContentSuggestions struct {
	Suggestions []string `json:"suggestions"`
	Source      string   `json:"source"`
}

func (a *Analyzer) SuggestContent(ctx context.Context, sc SuggestionContext) ContentSuggestions {
	fallback := ContentSuggestions{Suggestions: TemplateSuggestions(sc.Intent, sc.ContactName), Source: SourceRules}
	if !a.Enabled() {
		return fallback
	}

	last := sc.LastMessage
	if last == "" {
		last = "No recent messages"
	}
	prompt := fmt.Sprintf(`Generate 3 personalized message suggestions for this context:

Contact: %s
Company: %s
Intent: %s
Recent conversation: %s

Provide 3 options: professional and formal, friendly and conversational, direct and action-oriented.
Respond with a JSON array only: ["message1", "message2", "message3"]`,
		orDefault(sc.ContactName, "Customer"), orDefault(sc.Company, "Unknown"), orDefault(sc.Intent, "general"), last)

	raw, err := a.completer.Complete(ctx, copywriterSystem, prompt, 0.7)
	if err != nil {
		logger.CtxWarn(ctx, "content suggestions fell back to templates", "error", err)
		return fallback
	}
	var out []string
	if err := json.Unmarshal([]byte(raw), &out); err != nil || len(out) == 0 {
		return fallback
	}
	return ContentSuggestions{Suggestions: out, Source: SourceAI}
}

func leadContext(s LeadSignals) string {
	var parts []string
	add := func(label, v string) {
		if v != "" {
			parts = append(parts, label+": "+v)
		}
	}
	addInt := func(label string, v int) {
		if v > 0 {
			parts = append(parts, fmt.Sprintf("%s: %d", label, v))
		}
	}

	add("Name", s.Name)
	add("Email", s.Email)
	add("Company", s.Company)
	add("Title", s.Title)
	addInt("Company Size", s.CompanySize)
	addInt("Email Opens", s.EmailOpens)
	addInt("Page Views", s.PageViews)
	addInt("Form Submissions", s.FormSubmissions)
	if s.LastActivityAt != nil {
		add("Last Activity", s.LastActivityAt.Format(time.RFC3339))
	}
	add("Lead Source", s.Source)
	return strings.Join(parts, "\n")
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
