package acquisition

import (
	"context"

	"github.com/spigell/hh-checkpoint/internal/dedup"
	"github.com/spigell/hh-checkpoint/internal/identity"
	"github.com/spigell/hh-checkpoint/internal/matching"
)

const (
	DefaultMaxPages            = 10
	DefaultWorkers             = 4
	DefaultFetchErrorThreshold = 3
)

// StopReason explains why a run stopped requesting pages.
type StopReason string

const (
	StopExhaustedPages      StopReason = "exhausted_pages"
	StopZeroNewOnPage       StopReason = "zero_new_on_page"
	StopFetchErrorThreshold StopReason = "fetch_error_threshold"
	StopCancelled           StopReason = "cancelled"
	StopStorageUnavailable  StopReason = "storage_unavailable"
	StopIntegrityViolation  StopReason = "integrity_violation"
)

// Posting is one search result as returned by a Source.
type Posting struct {
	// RawID is the source identifier the posting key is derived from.
	// Snapshot.URL is used when it is empty.
	RawID    string
	Snapshot dedup.PostingSnapshot
}

// Source returns one page of search results. Pages are 1-based and
// assumed to be ordered newest first. An empty page means no more results.
type Source interface {
	FetchPage(ctx context.Context, query string, page int) ([]Posting, error)
}

// Store is the read side of the dedup store used for classification.
type Store interface {
	Exists(ctx context.Context, key dedup.Key) (bool, error)
}

type Evaluator interface {
	Evaluate(ctx context.Context, posting dedup.PostingSnapshot, profile string, key dedup.Key) (*matching.Evaluation, error)
}

// Profile is the candidate profile a run evaluates against.
type Profile struct {
	Key     identity.ProfileKey
	Summary string
}

// Config bounds a single run.
type Config struct {
	MaxPages            int
	Workers             int
	FetchErrorThreshold int
}

func (c Config) withDefaults() Config {
	if c.MaxPages <= 0 {
		c.MaxPages = DefaultMaxPages
	}
	if c.Workers <= 0 {
		c.Workers = DefaultWorkers
	}
	if c.FetchErrorThreshold <= 0 {
		c.FetchErrorThreshold = DefaultFetchErrorThreshold
	}
	return c
}

// RunSummary is the observable outcome of one run.
type RunSummary struct {
	RunID        string     `json:"run_id"`
	Query        string     `json:"query_key"`
	PagesFetched int        `json:"pages_fetched"`
	NewPerPage   []int      `json:"new_per_page"`
	NewSeen      int        `json:"new_seen"`
	NewEvaluated int        `json:"new_evaluated"`
	Failed       int        `json:"failed"`
	StopReason   StopReason `json:"stop_reason"`
}
