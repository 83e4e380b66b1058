package filtering

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/spigell/hh-checkpoint/internal/dedup"
)

// CheckpointLookup reports whether a checkpoint already exists for a key.
type CheckpointLookup interface {
	Lookup(key dedup.Key) (string, bool, error)
}

type checkpointedFilter struct {
	lookup   CheckpointLookup
	logger   *zap.Logger
	disabled bool
	reason   string
}

// NewCheckpointed drops evaluations that already have a checkpoint.
// Disable it to regenerate existing checkpoints.
func NewCheckpointed(lookup CheckpointLookup, logger *zap.Logger) Filter {
	return &checkpointedFilter{lookup: lookup, logger: logger}
}

func (f *checkpointedFilter) Name() string { return "checkpointed" }

func (f *checkpointedFilter) Disable(reason string) {
	f.disabled = true
	f.reason = reason
}

func (f *checkpointedFilter) IsEnabled() bool { return !f.disabled }

func (f *checkpointedFilter) Validate() error {
	if f.lookup == nil {
		return fmt.Errorf("checkpoint writer is required")
	}
	if f.logger == nil {
		f.logger = zap.NewNop()
	}
	return nil
}

func (f *checkpointedFilter) Apply(_ context.Context, records []dedup.Record) ([]dedup.Record, Step, error) {
	kept := make([]dedup.Record, 0, len(records))
	for _, rec := range records {
		dir, ok, err := f.lookup.Lookup(rec.Key)
		if err != nil {
			return records, Step{}, fmt.Errorf("checkpoint lookup: %w", err)
		}
		if ok {
			f.logger.Debug("checkpoint exists",
				zap.String("posting_key", rec.Key.Posting.String()),
				zap.String("dir", dir),
			)
			continue
		}
		kept = append(kept, rec)
	}

	return kept, step(len(records), kept), nil
}

func (f *checkpointedFilter) Status() Status {
	return Status{Name: f.Name(), Enabled: f.IsEnabled(), Reason: f.reason}
}
