package ai

import (
	"net/mail"
	"strings"
	"time"
)

// LeadSignals - данные контакта, на которых строится оценка лида
type LeadSignals struct {
	Name            string     `json:"name,omitempty"`
	Email           string     `json:"email,omitempty"`
	Phone           string     `json:"phone,omitempty"`
	Company         string     `json:"company,omitempty"`
	Title           string     `json:"title,omitempty"`
	Source          string     `json:"source,omitempty"`
	EmailOpens      int        `json:"email_opens"`
	PageViews       int        `json:"page_views"`
	FormSubmissions int        `json:"form_submissions"`
	CompanySize     int        `json:"company_size"`
	LastActivityAt  *time.Time `json:"last_activity_at,omitempty"`
}

type LeadScore struct {
	Score      float64  `json:"score"`
	Confidence float64  `json:"confidence"`
	Factors    []string `json:"factors"`
	Reasoning  string   `json:"reasoning"`
	Source     string   `json:"source"`
}

const (
	SourceAI    = "ai"
	SourceRules = "rules"
)

// RuleBasedLeadScore - детерминированная оценка по вовлеченности
func RuleBasedLeadScore(s LeadSignals, now time.Time) LeadScore {
	score := 50.0
	var factors []string

	if s.EmailOpens > 5 {
		score += 15
		factors = append(factors, "High email engagement")
	}
	if s.PageViews > 10 {
		score += 10
		factors = append(factors, "Active website visitor")
	}
	if s.FormSubmissions > 0 {
		score += 20
		factors = append(factors, "Form submissions")
	}
	if s.CompanySize > 100 {
		score += 10
		factors = append(factors, "Large company")
	}
	if s.LastActivityAt != nil && now.Sub(*s.LastActivityAt) < 7*24*time.Hour {
		score += 5
		factors = append(factors, "Recent activity")
	}

	if len(factors) > 3 {
		factors = factors[:3]
	}
	if factors == nil {
		factors = []string{}
	}

	return LeadScore{
		Score:      minScore(score),
		Confidence: 75,
		Factors:    factors,
		Reasoning:  "Rule-based scoring using engagement and behavioral data",
		Source:     SourceRules,
	}
}

// ProfileLeadScore - быстрая оценка по заполненности профиля, считается при создании контакта
func ProfileLeadScore(s LeadSignals) float64 {
	score := 50.0
	if s.Email != "" {
		if _, err := mail.ParseAddress(s.Email); err == nil {
			score += 10
		}
	}
	if s.Company != "" {
		score += 15
	}
	if s.Phone != "" {
		score += 10
	}
	if s.Source == "referral" {
		score += 15
	}
	return minScore(score)
}

func minScore(v float64) float64 {
	if v > 100 {
		return 100
	}
	return v
}

// ConversationMessage - одно сообщение для анализа
type ConversationMessage struct {
	Direction string `json:"direction"`
	Content   string `json:"content"`
}

type ConversationInsight struct {
	Sentiment        string            `json:"sentiment"`
	SentimentScore   float64           `json:"sentiment_score"`
	Intent           string            `json:"intent"`
	IntentConfidence float64           `json:"intent_confidence"`
	Entities         map[string]string `json:"entities"`
	Summary          string            `json:"summary"`
	NextBestAction   string            `json:"next_best_action"`
	Source           string            `json:"source"`
}

const (
	SentimentPositive = "positive"
	SentimentNeutral  = "neutral"
	SentimentNegative = "negative"

	IntentDemoRequest    = "demo_request"
	IntentPricingInquiry = "pricing_inquiry"
	IntentSupportRequest = "support_request"
	IntentGeneralInquiry = "general_inquiry"
	IntentUnknown        = "unknown"
)

var (
	positiveWords = []string{"great", "excellent", "love", "amazing", "perfect", "thank you", "thanks"}
	negativeWords = []string{"bad", "terrible", "hate", "awful", "problem", "issue", "disappointed"}

	intentKeywords = []struct {
		intent string
		words  []string
	}{
		{IntentDemoRequest, []string{"demo", "demonstration", "show"}},
		{IntentPricingInquiry, []string{"price", "cost", "pricing"}},
		{IntentSupportRequest, []string{"help", "support", "problem"}},
	}
)

// RuleBasedConversationInsight анализирует только последнее сообщение
func RuleBasedConversationInsight(messages []ConversationMessage) ConversationInsight {
	if len(messages) == 0 {
		return ConversationInsight{
			Sentiment:      SentimentNeutral,
			Intent:         IntentUnknown,
			Entities:       map[string]string{},
			Summary:        "No messages to analyze",
			NextBestAction: "Start conversation",
			Source:         SourceRules,
		}
	}

	last := strings.ToLower(messages[len(messages)-1].Content)
	sentiment, score := SentimentOf(last)

	return ConversationInsight{
		Sentiment:        sentiment,
		SentimentScore:   score,
		Intent:           IntentOf(last),
		IntentConfidence: 70,
		Entities:         map[string]string{},
		Summary:          "Conversation analyzed using rule-based approach",
		NextBestAction:   "Follow up based on customer intent",
		Source:           SourceRules,
	}
}

// SentimentOf - подсчет позитивных и негативных слов (подстрокой)
func SentimentOf(text string) (string, float64) {
	text = strings.ToLower(text)
	pos := countMatches(text, positiveWords)
	neg := countMatches(text, negativeWords)
	switch {
	case pos > neg:
		return SentimentPositive, 0.7
	case neg > pos:
		return SentimentNegative, -0.7
	default:
		return SentimentNeutral, 0
	}
}

// IntentOf - первое совпавшее намерение по порядку demo, pricing, support
func IntentOf(text string) string {
	text = strings.ToLower(text)
	for _, k := range intentKeywords {
		if countMatches(text, k.words) > 0 {
			return k.intent
		}
	}
	return IntentGeneralInquiry
}

func countMatches(text string, words []string) int {
	n := 0
	for _, w := range words {
		if strings.Contains(text, w) {
			n++
		}
	}
	return n
}

// TemplateSuggestions - три варианта ответа под намерение
func TemplateSuggestions(intent, name string) []string {
	if name == "" {
		name = "there"
	}
	switch intent {
	case IntentDemoRequest:
		return []string{
			"Hi " + name + ", I'd be happy to schedule a personalized demo for you. When would be a good time this week?",
			"Thanks for your interest, " + name + "! Let me show you how our platform can help your business grow.",
			name + ", I can set up a 30-minute demo today. Are you available this afternoon?",
		}
	case IntentPricingInquiry:
		return []string{
			"Hi " + name + ", I'll send you our pricing information right away. Let me know if you have any questions.",
			"Thanks for asking about pricing, " + name + "! I'll share our plans and help you find the best fit.",
			name + ", here's our pricing guide. I'm happy to discuss which plan works best for your needs.",
		}
	default:
		return []string{
			"Hi " + name + ", thanks for reaching out! How can I help you today?",
			"Hello " + name + "! I'm here to assist you with any questions you might have.",
			"Hi " + name + ", I'd be happy to help. What can I do for you?",
		}
	}
}

const (
	PriorityHigh   = "high"
	PriorityMedium = "medium"
	PriorityLow    = "low"
)

// PriorityOf - негатив и запросы поддержки разбираем первыми
func PriorityOf(in ConversationInsight) string {
	switch {
	case in.Sentiment == SentimentNegative || in.Intent == IntentSupportRequest:
		return PriorityHigh
	case in.Intent == IntentDemoRequest || in.Intent == IntentPricingInquiry:
		return PriorityMedium
	default:
		return PriorityLow
	}
}
