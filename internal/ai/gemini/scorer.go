package gemini

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/spigell/hh-checkpoint/internal/ai"
	"github.com/spigell/hh-checkpoint/internal/dedup"
	"github.com/spigell/hh-checkpoint/internal/utils"
)

type jsonGenerator interface {
	GenerateJSON(ctx context.Context, system, prompt string) (string, error)
}

const (
	systemInstruction   = "You are a precise assistant. Answer with valid JSON only."
	defaultMaxLogLength = 200
)

//go:embed prompt_score.md
var scorePrompt string

// Scorer asks Gemini for a multi-dimensional fit score.
type Scorer struct {
	generator jsonGenerator
	logger    *zap.Logger
	maxLogLen int
}

var _ ai.Scorer = (*Scorer)(nil)

func NewScorer(generator jsonGenerator, maxLogLength int, logger *zap.Logger) *Scorer {
	if maxLogLength <= 0 {
		maxLogLength = defaultMaxLogLength
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Scorer{
		generator: generator,
		logger:    logger,
		maxLogLen: maxLogLength,
	}
}

// Score performs exactly one generation call.
func (s *Scorer) Score(ctx context.Context, profile string, posting dedup.PostingSnapshot, dimensions []string) (*ai.ScoreResult, error) {
	if strings.TrimSpace(profile) == "" {
		return nil, fmt.Errorf("profile is required")
	}

	postingJSON, err := json.MarshalIndent(posting, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal posting payload: %w", err)
	}

	prompt := fillTemplate(scorePrompt, map[string]string{
		"{{DIMENSIONS}}":   dimensionList(dimensions),
		"{{PROFILE}}":      profile,
		"{{POSTING_JSON}}": string(postingJSON),
	})

	s.logger.Debug("gemini score request",
		zap.String("posting_url", posting.URL),
		zap.Int("prompt_length", utf8.RuneCountInString(prompt)),
		zap.String("prompt_preview", utils.TruncateForLog(prompt, s.maxLogLen)),
	)

	raw, err := s.generator.GenerateJSON(ctx, systemInstruction, prompt)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("gemini score response",
		zap.String("posting_url", posting.URL),
		zap.Int("response_length", utf8.RuneCountInString(raw)),
		zap.String("response_preview", utils.TruncateForLog(raw, s.maxLogLen)),
	)

	result, err := parseScore(raw)
	if err != nil {
		return nil, err
	}
	result.Raw = raw

	return result, nil
}

func parseScore(raw string) (*ai.ScoreResult, error) {
	var data map[string]any
	if err := json.Unmarshal([]byte(extractJSON(raw)), &data); err != nil {
		return nil, fmt.Errorf("parse gemini response: %w", err)
	}

	dimensions := map[string]any{}
	if scores, ok := data["scores"].(map[string]any); ok {
		for name, value := range scores {
			dimensions[strings.ToLower(strings.TrimSpace(name))] = value
		}
	}

	return &ai.ScoreResult{
		Dimensions: dimensions,
		Overall:    data["overall"],
		Reasoning:  coerceString(data["reasoning"]),
	}, nil
}

func dimensionList(dimensions []string) string {
	var b strings.Builder
	for _, d := range dimensions {
		b.WriteString("- ")
		b.WriteString(d)
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func fillTemplate(template string, values map[string]string) string {
	out := template
	for placeholder, value := range values {
		out = strings.ReplaceAll(out, placeholder, value)
	}
	return out
}

func extractJSON(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```json")
		raw = strings.TrimPrefix(raw, "```")
		raw = strings.TrimSpace(raw)
		if idx := strings.LastIndex(raw, "```"); idx != -1 {
			raw = raw[:idx]
		}
	}
	raw = strings.Trim(raw, "`")
	return strings.TrimSpace(raw)
}

func coerceString(v any) string {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case fmt.Stringer:
		return strings.TrimSpace(val.String())
	default:
		if v == nil {
			return ""
		}
		bytes, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(bytes)
	}
}
