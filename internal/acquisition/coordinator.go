// Package acquisition drives paginated fetching for a query and hands new
// postings to the evaluator.
//
// Pages are fetched one at a time and a page with no new postings ends the
// run. This assumes listings are ordered newest first; when a source
// reorders results some new postings are only picked up by a later run with
// a higher page limit.
package acquisition

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spigell/hh-checkpoint/internal/dedup"
	"github.com/spigell/hh-checkpoint/internal/identity"
	"github.com/spigell/hh-checkpoint/internal/logger"
)

type Deps struct {
	Source    Source
	Store     Store
	Evaluator Evaluator
	Logger    *zap.Logger
}

type Coordinator struct {
	deps Deps
}

func New(deps Deps) (*Coordinator, error) {
	if deps.Source == nil {
		return nil, errors.New("source is required")
	}
	if deps.Store == nil {
		return nil, errors.New("store is required")
	}
	if deps.Evaluator == nil {
		return nil, errors.New("evaluator is required")
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	return &Coordinator{deps: deps}, nil
}

type candidate struct {
	key      dedup.Key
	snapshot dedup.PostingSnapshot
}

// Run fetches pages for query until a stop condition is met. The returned
// error is non-nil only when the dedup store failed; the summary is filled
// in either case.
func (c *Coordinator) Run(ctx context.Context, query identity.QueryKey, cfg Config, profile Profile) (RunSummary, error) {
	cfg = cfg.withDefaults()

	summary := RunSummary{
		RunID: uuid.NewString(),
		Query: string(query),
	}
	log := logger.WithRun(c.deps.Logger, summary.RunID, string(query), string(profile.Key))

	threshold := uint32(cfg.FetchErrorThreshold)
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "fetch:" + string(query),
		MaxRequests: 1,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
	})

	log.Info("starting acquisition run", zap.Int("max_pages", cfg.MaxPages), zap.Int("workers", cfg.Workers))

	for page := 1; page <= cfg.MaxPages; page++ {
		if ctx.Err() != nil {
			return c.stop(log, summary, StopCancelled), nil
		}

		pageLog := log.With(zap.Int(logger.FieldPage, page))

		result, err := breaker.Execute(func() (interface{}, error) {
			return c.deps.Source.FetchPage(ctx, string(query), page)
		})
		summary.PagesFetched++

		if err != nil {
			if ctx.Err() != nil {
				return c.stop(log, summary, StopCancelled), nil
			}

			summary.NewPerPage = append(summary.NewPerPage, 0)
			pageLog.Warn("page fetch failed, counted as zero new", zap.Error(err))

			if breaker.State() == gobreaker.StateOpen {
				return c.stop(log, summary, StopFetchErrorThreshold), nil
			}
			continue
		}

		postings, _ := result.([]Posting)
		if len(postings) == 0 {
			summary.NewPerPage = append(summary.NewPerPage, 0)
			pageLog.Debug("source returned an empty page")
			return c.stop(log, summary, StopExhaustedPages), nil
		}

		fresh, err := c.classify(ctx, postings, query, profile.Key, pageLog)
		if err != nil {
			return c.stop(log, summary, stopReasonFor(err)), err
		}

		summary.NewPerPage = append(summary.NewPerPage, len(fresh))
		summary.NewSeen += len(fresh)

		pageLog.Info("page classified", zap.Int("postings", len(postings)), zap.Int("new", len(fresh)))

		if len(fresh) == 0 {
			return c.stop(log, summary, StopZeroNewOnPage), nil
		}

		evaluated, failed, err := c.evaluate(ctx, fresh, profile.Summary, cfg.Workers, pageLog)
		summary.NewEvaluated += evaluated
		summary.Failed += failed
		if err != nil {
			return c.stop(log, summary, stopReasonFor(err)), err
		}
	}

	return c.stop(log, summary, StopExhaustedPages), nil
}

// RunAll runs every query in order with the same config and profile.
// It stops at the first store failure.
func (c *Coordinator) RunAll(ctx context.Context, queries []identity.QueryKey, cfg Config, profile Profile) ([]RunSummary, error) {
	summaries := make([]RunSummary, 0, len(queries))
	for _, query := range queries {
		summary, err := c.Run(ctx, query, cfg, profile)
		summaries = append(summaries, summary)
		if err != nil {
			return summaries, fmt.Errorf("query %q: %w", query, err)
		}
	}
	return summaries, nil
}

// classify returns the postings of a page that are not in the store yet,
// deduplicated within the page. A page is always classified in full, so
// store calls do not observe run cancellation.
func (c *Coordinator) classify(ctx context.Context, postings []Posting, query identity.QueryKey, profile identity.ProfileKey, log *zap.Logger) ([]candidate, error) {
	workCtx := context.WithoutCancel(ctx)
	seen := make(map[identity.PostingKey]bool, len(postings))
	fresh := make([]candidate, 0, len(postings))

	for _, p := range postings {
		raw := p.RawID
		if raw == "" {
			raw = p.Snapshot.URL
		}

		key := dedup.Key{Posting: identity.NormalizePosting(raw), Query: query, Profile: profile}
		if key.Posting == "" {
			log.Warn("posting without identifier skipped", zap.String("title", p.Snapshot.Title))
			continue
		}
		if seen[key.Posting] {
			continue
		}
		seen[key.Posting] = true

		exists, err := c.deps.Store.Exists(workCtx, key)
		if err != nil {
			return nil, fmt.Errorf("classify %s: %w", key.Posting, err)
		}
		if exists {
			continue
		}

		snapshot := p.Snapshot
		if snapshot.URL == "" {
			snapshot.URL = raw
		}
		fresh = append(fresh, candidate{key: key, snapshot: snapshot})
	}

	return fresh, nil
}

// evaluate scores the candidates on a bounded pool. Evaluations are never
// interrupted by run cancellation so a paid scoring call always gets recorded.
func (c *Coordinator) evaluate(ctx context.Context, fresh []candidate, profile string, workers int, log *zap.Logger) (evaluated, failed int, err error) {
	workCtx := context.WithoutCancel(ctx)
	g, gctx := errgroup.WithContext(workCtx)
	g.SetLimit(workers)

	var mu sync.Mutex
	for _, cand := range fresh {
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}

			out, err := c.deps.Evaluator.Evaluate(workCtx, cand.snapshot, profile, cand.key)
			if err != nil {
				if isStoreFailure(err) {
					return err
				}
				log.Warn("evaluation failed",
					append(logger.KeyFields(string(cand.key.Posting), "", ""), zap.Error(err))...,
				)
				mu.Lock()
				failed++
				mu.Unlock()
				return nil
			}

			if out.WasNew {
				mu.Lock()
				evaluated++
				mu.Unlock()
			}
			return nil
		})
	}

	err = g.Wait()
	return evaluated, failed, err
}

func (c *Coordinator) stop(log *zap.Logger, summary RunSummary, reason StopReason) RunSummary {
	summary.StopReason = reason
	log.Info("acquisition run stopped",
		zap.String("stop_reason", string(reason)),
		zap.Int("pages_fetched", summary.PagesFetched),
		zap.Int("new_seen", summary.NewSeen),
		zap.Int("new_evaluated", summary.NewEvaluated),
		zap.Int("failed", summary.Failed),
	)
	return summary
}

func isStoreFailure(err error) bool {
	return errors.Is(err, dedup.ErrStorageUnavailable) || errors.Is(err, dedup.ErrIntegrityViolation)
}

func stopReasonFor(err error) StopReason {
	if errors.Is(err, dedup.ErrIntegrityViolation) {
		return StopIntegrityViolation
	}
	return StopStorageUnavailable
}
