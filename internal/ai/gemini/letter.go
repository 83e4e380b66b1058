package gemini

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/spigell/hh-checkpoint/internal/ai"
	"github.com/spigell/hh-checkpoint/internal/dedup"
)

//go:embed prompt_letter.md
var letterPrompt string

// LetterWriter drafts application letters with Gemini.
type LetterWriter struct {
	generator jsonGenerator
	logger    *zap.Logger
}

var _ ai.LetterWriter = (*LetterWriter)(nil)

func NewLetterWriter(generator jsonGenerator, logger *zap.Logger) *LetterWriter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LetterWriter{generator: generator, logger: logger}
}

func (w *LetterWriter) WriteLetter(ctx context.Context, profile string, rec dedup.Record) (*ai.Letter, error) {
	postingJSON, err := json.MarshalIndent(rec.Posting, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal posting payload: %w", err)
	}

	prompt := fillTemplate(letterPrompt, map[string]string{
		"{{PROFILE}}":      profile,
		"{{POSTING_JSON}}": string(postingJSON),
		"{{OVERALL}}":      strconv.Itoa(rec.Overall),
		"{{REASONING}}":    rec.Reasoning,
	})

	raw, err := w.generator.GenerateJSON(ctx, systemInstruction, prompt)
	if err != nil {
		return nil, err
	}

	var data map[string]any
	if err := json.Unmarshal([]byte(extractJSON(raw)), &data); err != nil {
		return nil, fmt.Errorf("parse gemini letter: %w", err)
	}

	letter := &ai.Letter{
		Subject: coerceString(data["subject"]),
		Body:    coerceString(data["body"]),
	}
	if letter.Body == "" {
		return nil, errors.New("gemini letter body is empty")
	}

	w.logger.Debug("letter drafted",
		zap.String("posting_key", string(rec.Key.Posting)),
		zap.Int("body_length", len(letter.Body)),
	)

	return letter, nil
}
