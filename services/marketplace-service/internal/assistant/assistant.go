// Package assistant wraps the AI model with the marketplace prompts. Every
// call degrades to a fixed default on failure, so callers never see an error.
package assistant

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/allowork/allowork/services/marketplace-service/internal/model"
	"google.golang.org/genai"
)

type Intent string

const (
	IntentSearch         Intent = "search"
	IntentRecommendation Intent = "recommendation"
	IntentGeneral        Intent = "general"
)

// Analysis is the structured reading of a free-text search query.
type Analysis struct {
	Category string `json:"category,omitempty"`
	Location string `json:"location,omitempty"`
	Intent   Intent `json:"intent"`
}

const (
	DefaultRecommendation      = "Découvrez ce service exceptionnel !"
	FallbackRecommendation     = "Service recommandé pour vous."
	DefaultChatReply           = "Je ne suis pas sûr de comprendre, pouvez-vous reformuler ?"
	FallbackChatReply          = "Désolé, je rencontre des problèmes techniques pour le moment."
	defaultTimeout             = 15 * time.Second
	searchAnalysisPromptFormat = `User query: "%s".
Context: This is for a local service marketplace "Allowork" in Libreville, Gabon.
Task: Extract the service category (if any) and the location/neighborhood (if any).
Neighborhoods are like: %s.

Return JSON.`
)

var analysisSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"category": {Type: genai.TypeString, Description: "The likely service category, e.g., Plomberie, Ménage"},
		"location": {Type: genai.TypeString, Description: "The recognized Libreville neighborhood"},
		"intent":   {Type: genai.TypeString, Enum: []string{string(IntentSearch), string(IntentRecommendation), string(IntentGeneral)}},
	},
}

type Assistant struct {
	model   Model
	cache   AnalysisCache
	timeout time.Duration
	logger  *slog.Logger
}

type Options struct {
	Timeout time.Duration
	// Cache is optional.
	Cache AnalysisCache
}

func New(m Model, logger *slog.Logger, opts Options) *Assistant {
	if m == nil {
		m = Disabled{}
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	return &Assistant{model: m, cache: opts.Cache, timeout: opts.Timeout, logger: logger}
}

// AnalyzeSearchQuery extracts category, location and intent. Any failure,
// empty answer or unparseable JSON yields intent general.
func (a *Assistant) AnalyzeSearchQuery(ctx context.Context, query string) Analysis {
	if a.cache != nil {
		if cached, ok := a.cache.Get(ctx, query); ok {
			return cached
		}
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	prompt := fmt.Sprintf(searchAnalysisPromptFormat, query, strings.Join(model.Quartiers[:6], ", ")+", etc")
	raw, err := a.model.GenerateJSON(ctx, prompt, analysisSchema)
	if err != nil {
		a.logger.Warn("search analysis failed", "err", err)
		return Analysis{Intent: IntentGeneral}
	}
	if strings.TrimSpace(raw) == "" {
		return Analysis{Intent: IntentGeneral}
	}
	var out Analysis
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		a.logger.Warn("search analysis returned invalid json", "err", err)
		return Analysis{Intent: IntentGeneral}
	}
	out.Category = strings.TrimSpace(out.Category)
	out.Location = strings.TrimSpace(out.Location)
	switch out.Intent {
	case IntentSearch, IntentRecommendation:
	default:
		out.Intent = IntentGeneral
	}
	if a.cache != nil {
		a.cache.Set(ctx, query, out)
	}
	return out
}

// GenerateRequestDescription drafts a French request description, or "" on failure.
func (a *Assistant) GenerateRequestDescription(ctx context.Context, title, category string) string {
	prompt := fmt.Sprintf(`The user wants to post a service request on Allowork (Libreville) with title "%s" in category "%s".
Write a clear, polite, and detailed description (in French) that they can use. Keep it under 50 words.`, title, category)
	text, err := a.text(ctx, prompt)
	if err != nil {
		a.logger.Warn("request description failed", "err", err)
		return ""
	}
	return text
}

func (a *Assistant) GenerateServiceRecommendation(ctx context.Context, svc model.Service) string {
	prompt := fmt.Sprintf(`Write a very short, catchy 1-sentence promotion in French for this service in Libreville:
Service: %s by %s located in %s.`, svc.Title, svc.ProviderName, svc.Location)
	text, err := a.text(ctx, prompt)
	if err != nil {
		a.logger.Warn("service recommendation failed", "service_id", svc.ID, "err", err)
		return FallbackRecommendation
	}
	if text == "" {
		return DefaultRecommendation
	}
	return text
}

func (a *Assistant) ChatReply(ctx context.Context, message string) string {
	prompt := fmt.Sprintf(`You are the AI assistant for Allowork, a service marketplace in Libreville (Gabon).
Answer the user's question helpfully in French. Keep it brief.
User: %s`, message)
	text, err := a.text(ctx, prompt)
	if err != nil {
		a.logger.Warn("chat reply failed", "err", err)
		return FallbackChatReply
	}
	if text == "" {
		return DefaultChatReply
	}
	return text
}

func (a *Assistant) text(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	text, err := a.model.GenerateText(ctx, prompt)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}
