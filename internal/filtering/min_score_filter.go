package filtering

import (
	"context"
	"strconv"

	"github.com/spigell/hh-checkpoint/internal/dedup"
)

type minScoreFilter struct {
	min      int
	disabled bool
	reason   string
}

// NewMinScore drops evaluations with an overall score below min.
func NewMinScore(min int) Filter {
	return &minScoreFilter{min: min}
}

func (f *minScoreFilter) Name() string { return "min_score" }

func (f *minScoreFilter) Disable(reason string) {
	f.disabled = true
	f.reason = reason
}

func (f *minScoreFilter) IsEnabled() bool { return !f.disabled }

func (f *minScoreFilter) Validate() error { return nil }

func (f *minScoreFilter) Apply(_ context.Context, records []dedup.Record) ([]dedup.Record, Step, error) {
	kept, _ := keep(records, func(rec dedup.Record) bool {
		return rec.Overall >= f.min
	})
	return kept, step(len(records), kept), nil
}

func (f *minScoreFilter) Status() Status {
	return Status{
		Name:    f.Name(),
		Enabled: f.IsEnabled(),
		Reason:  f.reason,
		Details: map[string]string{"min_score": strconv.Itoa(f.min)},
	}
}
