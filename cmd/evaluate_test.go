package cmd

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spigell/hh-checkpoint/internal/dedup"
	"github.com/spigell/hh-checkpoint/internal/identity"
	"github.com/spigell/hh-checkpoint/internal/matching"
)

type countingEvaluator struct {
	calls int
}

func (e *countingEvaluator) Evaluate(_ context.Context, posting dedup.PostingSnapshot, _ string, key dedup.Key) (*matching.Evaluation, error) {
	e.calls++
	return &matching.Evaluation{
		Record: dedup.Record{Key: key, Posting: posting, Overall: 7},
		WasNew: true,
	}, nil
}

func openEvaluateStore(t *testing.T) *dedup.Store {
	t.Helper()

	store, err := dedup.Open(context.Background(), filepath.Join(t.TempDir(), "dedup.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func evaluateKey() dedup.Key {
	return dedup.Key{
		Posting: identity.NormalizePosting("https://hh.ru/vacancy/42"),
		Query:   identity.QueryKey(manualQuery),
		Profile: identity.ProfileKey("analyst profile"),
	}
}

func TestEvaluateOnceSkipsStoredPostings(t *testing.T) {
	ctx := context.Background()
	store := openEvaluateStore(t)
	key := evaluateKey()

	stored, inserted, err := store.Insert(ctx, dedup.Record{
		Key:       key,
		Posting:   dedup.PostingSnapshot{URL: "https://hh.ru/vacancy/42", Title: "Data Analyst"},
		Scores:    []dedup.Score{{Name: "skills", Value: 8}},
		Overall:   8,
		CreatedAt: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.True(t, inserted)

	builds := 0
	evaluator := &countingEvaluator{}
	build := func(context.Context) (postingEvaluator, error) {
		builds++
		return evaluator, nil
	}

	for i := 0; i < 2; i++ {
		out, err := evaluateOnce(ctx, store, build, dedup.PostingSnapshot{Title: "Data Analyst"}, "profile", key)
		require.NoError(t, err)

		assert.False(t, out.WasNew)
		assert.Equal(t, stored.ID, out.Record.ID)
		assert.Equal(t, 8, out.Record.Overall)
	}

	assert.Zero(t, builds, "the evaluator must not be built for a stored posting")
	assert.Zero(t, evaluator.calls)
}

func TestEvaluateOnceScoresUnknownPostings(t *testing.T) {
	ctx := context.Background()
	store := openEvaluateStore(t)
	key := evaluateKey()

	evaluator := &countingEvaluator{}
	out, err := evaluateOnce(ctx, store, func(context.Context) (postingEvaluator, error) {
		return evaluator, nil
	}, dedup.PostingSnapshot{Title: "Data Analyst"}, "profile", key)
	require.NoError(t, err)

	assert.True(t, out.WasNew)
	assert.Equal(t, 1, evaluator.calls)
	assert.Equal(t, key, out.Record.Key)
}

func TestEvaluateOnceReportsBuildErrors(t *testing.T) {
	store := openEvaluateStore(t)
	errNoKey := errors.New("no api key")

	_, err := evaluateOnce(context.Background(), store, func(context.Context) (postingEvaluator, error) {
		return nil, errNoKey
	}, dedup.PostingSnapshot{}, "profile", evaluateKey())
	require.ErrorIs(t, err, errNoKey)
}
