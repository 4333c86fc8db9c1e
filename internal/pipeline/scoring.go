package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/communitysignals/scout/config"
	"github.com/communitysignals/scout/internal/content"
	"github.com/communitysignals/scout/internal/llm"
)

// Scorer classifies content items against the engagement rubric and drafts
// suggested actions for qualifying tiers.
type Scorer struct {
	provider llm.Provider
	routing  config.LLMRoutingConfig
	rubric   config.RubricConfig
	logger   *log.Logger
}

// NewScorer creates a scoring engine with an injected rubric. The rubric is
// external configuration; changing it requires no code change.
func NewScorer(provider llm.Provider, routing config.LLMRoutingConfig, rubric config.RubricConfig) *Scorer {
	return &Scorer{
		provider: provider,
		routing:  routing,
		rubric:   rubric,
		logger:   log.New(log.Writer(), "[SCORING] ", log.LstdFlags),
	}
}

const scorerSystemPrompt = `You score community content for engagement opportunity using a fixed rubric. Respond with ONLY a JSON object, no prose.`

func (s *Scorer) userPrompt(it content.Item, situational string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Rubric version %s.\n", s.rubric.Version)
	if s.rubric.Instructions != "" {
		fmt.Fprintf(&sb, "Rubric instructions:\n%s\n\n", s.rubric.Instructions)
	}
	if situational != "" {
		fmt.Fprintf(&sb, "Situational context:\n%s\n\n", situational)
	}
	fmt.Fprintf(&sb, "Content to score:\nPlatform: %s\nAuthor: %s\nIs reply: %t\nText:\n%s\n\n", it.Platform, it.Author, it.IsReply, it.Text)
	fmt.Fprintf(&sb, `Score four factors:
- engagement_value: 0-4, how much a thoughtful response would help this person
- urgency: 0-3, how active and time-sensitive the conversation is
- platform_fit: 0-3, how well the topic matches our platforms (%s)
- commercial_context: 0-2, whether the author is evaluating tools or solutions

Return JSON:
{
  "engagement_value": 0,
  "urgency": 0,
  "platform_fit": 0,
  "commercial_context": 0,
  "reasoning": "one paragraph",
  "suggested_action": "draft response, or empty string if total < 4"
}

If the total is 4 or 5 the suggested_action must be purely helpful and must NOT mention %s or any product.`, strings.Join(s.rubric.Platforms, ", "), s.rubric.ProductName)
	return sb.String()
}

// Score evaluates one item. An unparsable oracle response yields the
// non-engaging default with a nil error; an oracle call failure (after the
// provider's own retries) returns the same default alongside the error so the
// caller can record it.
func (s *Scorer) Score(ctx context.Context, it content.Item, situational string) (ScoredCandidate, error) {
	raw, err := s.provider.Complete(ctx, scorerSystemPrompt, s.userPrompt(it, situational), s.routing.Model("scoring"), 1000)
	if err != nil {
		return nonEngaging(it.Permalink, "scoring call failed"), fmt.Errorf("scoring %s: %w", it.Permalink, err)
	}

	var parsed struct {
		EngagementValue   int    `json:"engagement_value"`
		Urgency           int    `json:"urgency"`
		PlatformFit       int    `json:"platform_fit"`
		CommercialContext int    `json:"commercial_context"`
		Reasoning         string `json:"reasoning"`
		SuggestedAction   string `json:"suggested_action"`
	}
	if err := json.Unmarshal([]byte(extractFirstJSON(raw)), &parsed); err != nil {
		s.logger.Printf("unparsable score for %s, treating as non-engaging: %v", it.Permalink, err)
		return nonEngaging(it.Permalink, "unparsable scoring response"), nil
	}

	score := clamp(parsed.EngagementValue, 0, 4) +
		clamp(parsed.Urgency, 0, 3) +
		clamp(parsed.PlatformFit, 0, 3) +
		clamp(parsed.CommercialContext, 0, 2)

	cand := ScoredCandidate{
		ContentRef:         it.Permalink,
		Score:              score,
		Tier:               TierForScore(score),
		Reasoning:          parsed.Reasoning,
		SuggestedAction:    strings.TrimSpace(parsed.SuggestedAction),
		EngagementDecision: score >= 4,
	}
	if !cand.EngagementDecision {
		cand.SuggestedAction = ""
	}
	if cand.Tier == TierPureHelp && s.rubric.ProductName != "" &&
		strings.Contains(strings.ToLower(cand.SuggestedAction), strings.ToLower(s.rubric.ProductName)) {
		s.logger.Printf("pure-help action for %s mentioned the product, dropping mention", it.Permalink)
		cand.SuggestedAction = scrubProduct(cand.SuggestedAction, s.rubric.ProductName)
	}
	return cand, nil
}

func nonEngaging(permalink, reason string) ScoredCandidate {
	return ScoredCandidate{
		ContentRef:         permalink,
		Score:              0,
		Tier:               TierSkip,
		Reasoning:          reason,
		EngagementDecision: false,
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func scrubProduct(action, product string) string {
	lower := strings.ToLower(action)
	target := strings.ToLower(product)
	var sb strings.Builder
	for {
		i := strings.Index(lower, target)
		if i < 0 {
			sb.WriteString(action)
			break
		}
		sb.WriteString(action[:i])
		action = action[i+len(target):]
		lower = lower[i+len(target):]
	}
	return strings.Join(strings.Fields(sb.String()), " ")
}
