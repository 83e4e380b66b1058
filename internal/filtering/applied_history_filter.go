package filtering

import (
	"context"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/spigell/hh-checkpoint/internal/dedup"
	"github.com/spigell/hh-checkpoint/internal/headhunter"
)

const forceFlagSetMsg = "force flag is set"

// NegotiationsGetter lists the applications already sent from the account.
type NegotiationsGetter interface {
	GetNegotiations(ctx context.Context) (*headhunter.Negotations, error)
}

type appliedHistoryFilter struct {
	deps   *AppliedHistoryDeps
	ignore bool
}

type AppliedHistoryDeps struct {
	HH     NegotiationsGetter
	Logger *zap.Logger
}

type AppliedHistoryConfig struct {
	Ignore bool
}

// NewAppliedHistory creates a filter that removes postings found in negotiation history.
func NewAppliedHistory(cfg *AppliedHistoryConfig, deps *AppliedHistoryDeps) Filter {
	ignore := false
	if cfg != nil {
		ignore = cfg.Ignore
	}

	return &appliedHistoryFilter{
		deps:   deps,
		ignore: ignore,
	}
}

func (f *appliedHistoryFilter) Name() string { return "applied_history" }

func (f *appliedHistoryFilter) Disable(string) {
	f.ignore = true
}

func (f *appliedHistoryFilter) IsEnabled() bool { return true }

func (f *appliedHistoryFilter) Validate() error {
	if f.deps == nil || f.deps.HH == nil {
		return fmt.Errorf("headhunter client is required")
	}

	if f.deps.Logger == nil {
		return fmt.Errorf("logger is required")
	}

	return nil
}

func (f *appliedHistoryFilter) Apply(ctx context.Context, records []dedup.Record) ([]dedup.Record, Step, error) {
	if f.ignore {
		f.deps.Logger.Info("ignoring already applied vacancies", zap.String("reason", forceFlagSetMsg))
		return records, step(len(records), records), nil
	}

	negotiations, err := f.deps.HH.GetNegotiations(ctx)
	if err != nil {
		return records, Step{}, fmt.Errorf("get my negotiations: %w", err)
	}

	applied := make(map[string]struct{})
	for _, id := range negotiations.VacanciesIDs() {
		applied[id] = struct{}{}
	}

	kept, dropped := keep(records, func(rec dedup.Record) bool {
		if rec.Posting.SourceID == "" {
			return true
		}
		_, ok := applied[rec.Posting.SourceID]
		return !ok
	})
	if len(dropped) > 0 {
		f.deps.Logger.Info("excluding vacancies based on my negotiations",
			zap.Strings("excluded_postings", dropped),
			zap.Int("left", len(kept)),
		)
	}

	return kept, step(len(records), kept), nil
}

func (f *appliedHistoryFilter) Status() Status {
	reason := ""
	if f.ignore {
		reason = "skip requested via flag"
	}
	return Status{
		Name:    f.Name(),
		Enabled: true,
		Reason:  reason,
		Details: map[string]string{"exclude_applied": strconv.FormatBool(!f.ignore)},
	}
}
