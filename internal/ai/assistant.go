// Package ai describes the external scoring and writing collaborators.
package ai

import (
	"context"

	"github.com/spigell/hh-checkpoint/internal/dedup"
)

// ScoreResult is the unvalidated answer of a scoring provider.
// Dimension and overall values are kept as decoded so the caller can
// decide how to treat malformed entries.
type ScoreResult struct {
	Dimensions map[string]any
	Overall    any
	Reasoning  string
	Raw        string
}

// Scorer rates how well a candidate profile fits a posting.
// Every call is assumed to be billed.
type Scorer interface {
	Score(ctx context.Context, profile string, posting dedup.PostingSnapshot, dimensions []string) (*ScoreResult, error)
}

// Letter is generated application prose.
type Letter struct {
	Subject string
	Body    string
}

// LetterWriter drafts an application letter for a stored evaluation.
type LetterWriter interface {
	WriteLetter(ctx context.Context, profile string, rec dedup.Record) (*Letter, error)
}
