package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/hh-checkpoint/internal/dedup"
	"github.com/spigell/hh-checkpoint/internal/extraction"
	"github.com/spigell/hh-checkpoint/internal/identity"
	"github.com/spigell/hh-checkpoint/internal/matching"
)

const manualQuery = "manual"

var evaluateCmd = &cobra.Command{
	Use:   "evaluate URL|FILE",
	Short: "Evaluate a single posting from a URL or a text file",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		evaluate(cmd, args[0])
	},
}

func init() {
	rootCmd.AddCommand(evaluateCmd)

	evaluateCmd.Flags().StringP("query", "q", manualQuery, "query key to store the evaluation under")
}

func evaluate(cmd *cobra.Command, source string) {
	ctx := context.Background()

	a := setup(ctx)
	defer a.Close()

	posting, raw, err := loadPosting(ctx, a, source)
	if err != nil {
		a.logger.Fatal("reading the posting", zap.Error(err), zap.String("source", source))
	}

	query, _ := cmd.Flags().GetString("query")
	key := dedup.Key{
		Posting: identity.NormalizePosting(raw),
		Query:   identity.QueryKey(query),
		Profile: a.profile.Key,
	}

	evaluation, err := evaluateOnce(ctx, a.store, func(ctx context.Context) (postingEvaluator, error) {
		return a.evaluator(ctx)
	}, posting, a.profile.Summary, key)
	if err != nil {
		a.logger.Fatal("evaluating", zap.Error(err))
	}

	if !evaluation.WasNew {
		a.logger.Info("already evaluated, returning the stored evaluation",
			zap.Int64("id", evaluation.Record.ID),
		)
	}

	printJSON(evaluation)
}

type recordGetter interface {
	Get(ctx context.Context, key dedup.Key) (*dedup.Record, error)
}

type postingEvaluator interface {
	Evaluate(ctx context.Context, posting dedup.PostingSnapshot, profile string, key dedup.Key) (*matching.Evaluation, error)
}

// evaluateOnce returns the stored evaluation when key is already known.
// Otherwise it builds the evaluator and scores the posting.
func evaluateOnce(
	ctx context.Context,
	store recordGetter,
	newEvaluator func(context.Context) (postingEvaluator, error),
	posting dedup.PostingSnapshot,
	profile string,
	key dedup.Key,
) (*matching.Evaluation, error) {
	stored, err := store.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("looking up %s: %w", key.Posting, err)
	}
	if stored != nil {
		return &matching.Evaluation{Record: *stored}, nil
	}

	evaluator, err := newEvaluator(ctx)
	if err != nil {
		return nil, fmt.Errorf("building the evaluator: %w", err)
	}

	return evaluator.Evaluate(ctx, posting, profile, key)
}

// loadPosting returns the posting and the raw identifier its key is derived
// from. Text files are identified by their absolute file URL.
func loadPosting(ctx context.Context, a *application, source string) (dedup.PostingSnapshot, string, error) {
	if extraction.IsURL(source) {
		extractor := extraction.New(nil, a.config.HeadHunter.UserAgent, a.logger)
		posting, err := extractor.Extract(ctx, source)
		return posting, source, err
	}

	path, err := filepath.Abs(source)
	if err != nil {
		return dedup.PostingSnapshot{}, "", err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return dedup.PostingSnapshot{}, "", err
	}

	return extraction.FromText(string(data)), "file://" + filepath.ToSlash(path), nil
}
