// Package matching turns one scoring provider answer into a stored evaluation.
package matching

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/hh-checkpoint/internal/ai"
	"github.com/spigell/hh-checkpoint/internal/dedup"
	"github.com/spigell/hh-checkpoint/internal/logger"
)

// DefaultDimensions are scored when no explicit list is configured.
var DefaultDimensions = []string{"skills", "experience", "seniority", "location", "compensation"}

// Store is the write side of the dedup store used by the evaluator.
type Store interface {
	Insert(ctx context.Context, rec dedup.Record) (dedup.Record, bool, error)
}

type Config struct {
	Dimensions []string
}

type Deps struct {
	Scorer ai.Scorer
	Store  Store
	Logger *zap.Logger
	// Now is used for record timestamps. Defaults to time.Now.
	Now func() time.Time
}

// Evaluation is the outcome of one Evaluate call.
type Evaluation struct {
	Record   dedup.Record
	WasNew   bool
	Warnings []ValidationWarning
}

type Evaluator struct {
	dimensions []string
	deps       Deps
}

func New(cfg Config, deps Deps) (*Evaluator, error) {
	if deps.Scorer == nil {
		return nil, errors.New("scorer is required")
	}
	if deps.Store == nil {
		return nil, errors.New("store is required")
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	dimensions := make([]string, 0, len(cfg.Dimensions))
	seen := make(map[string]bool)
	for _, d := range cfg.Dimensions {
		d = strings.ToLower(strings.TrimSpace(d))
		if d == "" || seen[d] {
			continue
		}
		seen[d] = true
		dimensions = append(dimensions, d)
	}
	if len(dimensions) == 0 {
		dimensions = append(dimensions, DefaultDimensions...)
	}

	return &Evaluator{dimensions: dimensions, deps: deps}, nil
}

// Dimensions returns the required dimension names in scoring order.
func (e *Evaluator) Dimensions() []string {
	return append([]string(nil), e.dimensions...)
}

// Evaluate calls the scorer exactly once for the posting and records the
// validated result. Callers are expected to have checked the dedup store first.
func (e *Evaluator) Evaluate(ctx context.Context, posting dedup.PostingSnapshot, profile string, key dedup.Key) (*Evaluation, error) {
	log := logger.WithFields(e.deps.Logger, logger.KeyFields(string(key.Posting), string(key.Query), string(key.Profile))...)

	result, err := e.deps.Scorer.Score(ctx, profile, posting, e.dimensions)
	if err != nil {
		log.Warn("scoring failed, posting skipped", zap.String("posting_url", posting.URL), zap.Error(err))
		return nil, &ExternalServiceError{Key: key, Err: err}
	}
	if result == nil {
		return nil, &ExternalServiceError{Key: key, Err: errors.New("empty score result")}
	}

	scores, warnings := normalizeScores(e.dimensions, result.Dimensions)
	overall := normalizeOverall(result.Overall, scores[:len(e.dimensions)], &warnings)

	for _, w := range warnings {
		log.Warn("score corrected",
			zap.String("dimension", w.Dimension),
			zap.String("reason", w.Reason),
			zap.Any("raw", w.Raw),
		)
	}

	stored, wasNew, err := e.deps.Store.Insert(ctx, dedup.Record{
		Key:       key,
		Posting:   posting,
		Scores:    scores,
		Reasoning: strings.TrimSpace(result.Reasoning),
		Overall:   overall,
		CreatedAt: e.deps.Now().UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("record evaluation: %w", err)
	}

	if !wasNew {
		log.Info("evaluation already recorded by a concurrent worker")
	}

	log.Debug("posting evaluated", zap.Int("overall", stored.Overall), zap.Int("warnings", len(warnings)))

	return &Evaluation{Record: stored, WasNew: wasNew, Warnings: warnings}, nil
}
