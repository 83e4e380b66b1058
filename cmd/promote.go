package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/hh-checkpoint/internal/ai"
	"github.com/spigell/hh-checkpoint/internal/ai/gemini"
	"github.com/spigell/hh-checkpoint/internal/checkpoint"
	"github.com/spigell/hh-checkpoint/internal/dedup"
	"github.com/spigell/hh-checkpoint/internal/filtering"
	"github.com/spigell/hh-checkpoint/internal/identity"
	"github.com/spigell/hh-checkpoint/internal/logger"
	"github.com/spigell/hh-checkpoint/internal/rendering"
)

const (
	PromptAll    = "Promote all"
	PromptSelect = "Select one by one"
	PromptNo     = "No"
	PromptBack   = "back"
)

var errExit = errors.New("exit requested")

var promoteCmd = &cobra.Command{
	Use:   "promote",
	Short: "Draft letters for accepted evaluations and write checkpoints",
	Run: func(cmd *cobra.Command, _ []string) {
		promote(cmd)
	},
}

func init() {
	rootCmd.AddCommand(promoteCmd)

	promoteCmd.Flags().Int("min-score", -1, "override promote.min-score")
	promoteCmd.Flags().StringP("query", "q", "", "only evaluations of this query")
	promoteCmd.Flags().BoolP("auto-approve", "y", false, "promote every candidate without asking")
	promoteCmd.Flags().Bool("replace", false, "regenerate existing checkpoints")
	promoteCmd.Flags().BoolP("do-not-exclude-applied", "f", false, "do not exclude vacancies if already applied")
	promoteCmd.Flags().Int("limit", dedup.MaxPageSize, "maximum number of candidates")
}

type promoter struct {
	app       *application
	letters   ai.LetterWriter
	writer    *checkpoint.Writer
	replace   bool
	candidate string
}

func promote(cmd *cobra.Command) {
	ctx := context.Background()

	a := setup(ctx)
	defer a.Close()

	flags := cmd.Flags()
	minScore := a.config.Promote.MinScore
	if n, _ := flags.GetInt("min-score"); n >= 0 {
		minScore = n
	}
	replace, _ := flags.GetBool("replace")

	writer, err := checkpoint.New(a.config.CheckpointRoot, a.store, checkpoint.WithLogger(a.logger))
	if err != nil {
		a.logger.Fatal("opening the checkpoint root", zap.Error(err))
	}

	records, err := promotionCandidates(ctx, cmd, a, minScore)
	if err != nil {
		a.logger.Fatal("listing evaluations", zap.Error(err))
	}

	filters := preparePromoteFilters(cmd, a, writer, minScore)
	if replace {
		filters.DisableByName("checkpointed", "replace requested")
	}

	records, err = filters.RunFilters(ctx, records)
	if err != nil {
		a.logger.Fatal("filtering failed", zap.Error(err))
	}

	if len(records) == 0 {
		a.logger.Info("exiting", zap.String("reason", "no evaluations left after filters"))
		return
	}

	gen, err := a.generator(ctx)
	if err != nil {
		a.logger.Fatal("building the letter writer", zap.Error(err))
	}

	p := &promoter{
		app:       a,
		letters:   gemini.NewLetterWriter(gen, logger.WithCommonFields(a.logger, providerGemini, gen.Model())),
		writer:    writer,
		replace:   replace,
		candidate: a.config.Candidate,
	}

	if auto, _ := flags.GetBool("auto-approve"); auto {
		if err := p.promoteAll(ctx, records); err != nil {
			a.logger.Fatal("promoting", zap.Error(err))
		}
		return
	}

	if err := p.interactive(ctx, records); err != nil && !errors.Is(err, errExit) {
		a.logger.Fatal("promoting", zap.Error(err))
	}
}

// promotionCandidates returns the current profile's evaluations at or above
// minScore, best first.
func promotionCandidates(ctx context.Context, cmd *cobra.Command, a *application, minScore int) ([]dedup.Record, error) {
	query, _ := cmd.Flags().GetString("query")
	limit, _ := cmd.Flags().GetInt("limit")

	var records []dedup.Record
	for page := 1; len(records) < limit; page++ {
		result, err := a.store.Query(ctx, dedup.Filter{
			QueryKey:   identity.QueryKey(query),
			ProfileKey: a.profile.Key,
			MinScore:   &minScore,
			SortBy:     dedup.SortByScore,
			Page:       page,
			PageSize:   dedup.MaxPageSize,
		})
		if err != nil {
			return nil, err
		}
		records = append(records, result.Items...)
		if page*result.PageSize >= result.TotalCount {
			break
		}
	}

	if len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

func preparePromoteFilters(cmd *cobra.Command, a *application, writer *checkpoint.Writer, minScore int) *filtering.Filtering {
	ignoreApplied := a.config.Promote.IgnoreApplied
	if force, _ := cmd.Flags().GetBool("do-not-exclude-applied"); force {
		ignoreApplied = true
	}

	steps := []filtering.Filter{
		filtering.NewMinScore(minScore),
		filtering.NewExludedEmployers(a.config.Promote.Exclude.Employers),
		filtering.NewCheckpointed(writer, a.logger),
	}

	if a.config.HeadHunter.TokenFile != "" {
		hh, err := a.headhunter(true)
		if err != nil {
			a.logger.Warn("skipping applied history filter", zap.Error(err))
		} else {
			steps = append(steps, filtering.NewAppliedHistory(
				&filtering.AppliedHistoryConfig{Ignore: ignoreApplied},
				&filtering.AppliedHistoryDeps{HH: hh, Logger: a.logger},
			))
		}
	}

	return filtering.New(steps, a.logger)
}

func (p *promoter) interactive(ctx context.Context, records []dedup.Record) error {
	for len(records) > 0 {
		p.app.logger.Info("current list of evaluations", zap.Int("count", len(records)))

		action := promptui.Select{
			Label: "Proceed?",
			Items: []string{PromptAll, PromptSelect, PromptNo},
		}
		_, choice, err := action.Run()
		if err != nil {
			return err
		}

		switch choice {
		case PromptAll:
			return p.promoteAll(ctx, records)
		case PromptNo:
			p.app.logger.Info("exiting", zap.String("reason", "got no from prompt"))
			return errExit
		case PromptSelect:
			records, err = p.selectOne(ctx, records)
			if err != nil {
				return err
			}
		}
	}

	return nil
}

// selectOne promotes a single chosen record and returns the remaining ones.
func (p *promoter) selectOne(ctx context.Context, records []dedup.Record) ([]dedup.Record, error) {
	items := make([]string, 0, len(records)+1)
	for _, rec := range records {
		items = append(items, fmt.Sprintf("[%d] %s / %s / %s",
			rec.Overall, rec.Posting.Title, rec.Posting.Company, rec.Key.Posting,
		))
	}

	selector := promptui.Select{
		Label: "Choose an evaluation and press ENTER",
		Items: append(items, PromptBack),
		Size:  10,
		Searcher: func(input string, index int) bool {
			return index < len(items) && strings.Contains(strings.ToLower(items[index]), strings.ToLower(input))
		},
	}

	idx, _, err := selector.Run()
	if err != nil {
		return records, err
	}
	if idx >= len(records) {
		return records, nil
	}

	if err := p.promoteOne(ctx, records[idx]); err != nil {
		return records, err
	}

	return append(records[:idx:idx], records[idx+1:]...), nil
}

func (p *promoter) promoteAll(ctx context.Context, records []dedup.Record) error {
	for _, rec := range records {
		if err := p.promoteOne(ctx, rec); err != nil {
			return err
		}
	}

	p.app.logger.Info("promoted evaluations", zap.Int("count", len(records)), zap.String("root", p.writer.Root()))
	return nil
}

func (p *promoter) promoteOne(ctx context.Context, rec dedup.Record) error {
	log := p.app.logger.With(logger.KeyFields(rec.Key.Posting.String(), rec.Key.Query.String(), rec.Key.Profile.String())...)

	letter, err := p.letters.WriteLetter(ctx, p.app.profile.Summary, rec)
	if err != nil {
		return fmt.Errorf("drafting the letter for %s: %w", rec.Key.Posting, err)
	}

	artifacts, err := rendering.Render(letter, rec, p.candidate)
	if err != nil {
		return fmt.Errorf("rendering the letter for %s: %w", rec.Key.Posting, err)
	}

	dir, err := p.writer.CreateOrUpdate(ctx, checkpoint.Request{
		Key:         rec.Key,
		Artifacts:   artifacts,
		ProfilePath: p.app.config.Profile,
		Replace:     p.replace,
	})
	if err != nil {
		return fmt.Errorf("writing the checkpoint for %s: %w", rec.Key.Posting, err)
	}

	log.Info("checkpoint ready", zap.String("dir", dir), zap.Int("overall", rec.Overall))
	return nil
}
