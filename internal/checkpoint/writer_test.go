package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/spigell/hh-checkpoint/internal/dedup"
	"github.com/spigell/hh-checkpoint/internal/identity"
)

type mapReader map[dedup.Key]*dedup.Record

func (m mapReader) Get(_ context.Context, key dedup.Key) (*dedup.Record, error) {
	return m[key], nil
}

var testNow = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

func record(url, company, title string) *dedup.Record {
	return &dedup.Record{
		ID: 1,
		Key: dedup.Key{
			Posting: identity.NormalizePosting(url),
			Query:   "data-analyst",
			Profile: identity.DeriveProfileKey([]byte("P1")),
		},
		Posting:   dedup.PostingSnapshot{URL: url, Title: title, Company: company, Location: "Berlin"},
		Scores:    []dedup.Score{{Name: "skills", Value: 8}},
		Reasoning: "good fit",
		Overall:   8,
		CreatedAt: testNow,
	}
}

func artifacts(letter string) map[string][]byte {
	return map[string][]byte{
		"letter.md":    []byte(letter),
		FileLetterHTML: []byte("<p>" + letter + "</p>"),
		FileEmailText:  []byte(letter),
	}
}

func writeProfile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "CV.MD")
	require.NoError(t, os.WriteFile(path, []byte("# Jane"), 0o644))
	return path
}

func newWriter(t *testing.T, root string, reader RecordReader, opts ...Option) *Writer {
	t.Helper()
	opts = append([]Option{WithClock(func() time.Time { return testNow })}, opts...)
	w, err := New(root, reader, opts...)
	require.NoError(t, err)
	return w
}

func listDir(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func readJSON(t *testing.T, path string, v any) {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, v))
}

func TestCreateWritesContract(t *testing.T) {
	root := t.TempDir()
	rec := record("https://hh.ru/vacancy/1", "Acme Corp.", "Data Analyst (Senior)")
	w := newWriter(t, root, mapReader{rec.Key: rec})

	path, err := w.CreateOrUpdate(context.Background(), Request{
		Key:         rec.Key,
		Artifacts:   artifacts("Dear Acme"),
		ProfilePath: writeProfile(t),
	})
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(root, "001_acme-corp_data-analyst-senior"), path)
	assert.ElementsMatch(t, []string{
		"letter.md", FileLetterHTML, FileEmailText, "profile.md",
		FileEvaluation, FilePosting, FileMetadata, FileStatus,
	}, listDir(t, path))

	var meta Metadata
	readJSON(t, filepath.Join(path, FileMetadata), &meta)
	assert.Equal(t, Metadata{
		SequenceID:    1,
		Company:       "Acme Corp.",
		Title:         "Data Analyst (Senior)",
		CreatedAt:     testNow,
		PostingKey:    "https://hh.ru/vacancy/1",
		ProfileKey:    string(rec.Key.Profile),
		QueryKey:      "data-analyst",
		SchemaVersion: 1,
	}, meta)

	var status map[string]any
	readJSON(t, filepath.Join(path, FileStatus), &status)
	assert.Equal(t, map[string]any{"status": "draft", "sent_at": nil, "notes": ""}, status)

	var stored dedup.Record
	readJSON(t, filepath.Join(path, FileEvaluation), &stored)
	assert.Equal(t, rec.Scores, stored.Scores)
	assert.Equal(t, rec.Key, stored.Key)

	var posting dedup.PostingSnapshot
	readJSON(t, filepath.Join(path, FilePosting), &posting)
	assert.Equal(t, rec.Posting, posting)

	assert.ElementsMatch(t, []string{"001_acme-corp_data-analyst-senior", indexFile}, listDir(t, root))

	found, ok, err := w.Lookup(rec.Key)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, path, found)
}

func TestCreateIsIdempotent(t *testing.T) {
	root := t.TempDir()
	rec := record("https://hh.ru/vacancy/1", "Acme", "Analyst")
	w := newWriter(t, root, mapReader{rec.Key: rec})

	first, err := w.CreateOrUpdate(context.Background(), Request{Key: rec.Key, Artifacts: artifacts("v1")})
	require.NoError(t, err)

	// Same posting and profile found through another query maps to the same checkpoint.
	other := rec.Key
	other.Query = "analyst"
	w.reader = mapReader{rec.Key: rec, other: rec}

	second, err := w.CreateOrUpdate(context.Background(), Request{Key: other, Artifacts: artifacts("v2")})
	require.NoError(t, err)

	assert.Equal(t, first, second)
	letter, err := os.ReadFile(filepath.Join(first, "letter.md"))
	require.NoError(t, err)
	assert.Equal(t, "v1", string(letter))
	assert.Len(t, listDir(t, root), 2)
}

func TestReplaceRewritesAndKeepsStatus(t *testing.T) {
	root := t.TempDir()
	rec := record("https://hh.ru/vacancy/1", "Acme", "Analyst")
	w := newWriter(t, root, mapReader{rec.Key: rec})

	path, err := w.CreateOrUpdate(context.Background(), Request{Key: rec.Key, Artifacts: artifacts("v1")})
	require.NoError(t, err)

	sent := `{"status":"sent","sent_at":"2026-05-05T09:00:00Z","notes":"via email"}`
	require.NoError(t, os.WriteFile(filepath.Join(path, FileStatus), []byte(sent), 0o644))

	replaced, err := w.CreateOrUpdate(context.Background(), Request{Key: rec.Key, Artifacts: artifacts("v2"), Replace: true})
	require.NoError(t, err)
	assert.Equal(t, path, replaced)

	letter, err := os.ReadFile(filepath.Join(path, "letter.md"))
	require.NoError(t, err)
	assert.Equal(t, "v2", string(letter))

	status, err := os.ReadFile(filepath.Join(path, FileStatus))
	require.NoError(t, err)
	assert.JSONEq(t, sent, string(status))

	assert.ElementsMatch(t, []string{"001_acme_analyst", indexFile}, listDir(t, root))
}

func TestSequenceIncrements(t *testing.T) {
	root := t.TempDir()
	a := record("https://hh.ru/vacancy/1", "Acme", "Analyst")
	b := record("https://hh.ru/vacancy/2", "Globex", "Engineer")
	w := newWriter(t, root, mapReader{a.Key: a, b.Key: b})

	_, err := w.CreateOrUpdate(context.Background(), Request{Key: a.Key, Artifacts: artifacts("a")})
	require.NoError(t, err)
	path, err := w.CreateOrUpdate(context.Background(), Request{Key: b.Key, Artifacts: artifacts("b")})
	require.NoError(t, err)

	assert.Equal(t, "002_globex_engineer", filepath.Base(path))
}

func TestSequenceSurvivesLostIndex(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, "007_old_checkpoint"), 0o755))

	rec := record("https://hh.ru/vacancy/1", "Acme", "Analyst")
	w := newWriter(t, root, mapReader{rec.Key: rec})

	path, err := w.CreateOrUpdate(context.Background(), Request{Key: rec.Key, Artifacts: artifacts("a")})
	require.NoError(t, err)
	assert.Equal(t, "008_acme_analyst", filepath.Base(path))
}

func TestMissingArtifact(t *testing.T) {
	root := t.TempDir()
	rec := record("https://hh.ru/vacancy/1", "Acme", "Analyst")
	w := newWriter(t, root, mapReader{rec.Key: rec})

	arts := artifacts("a")
	delete(arts, FileEmailText)

	_, err := w.CreateOrUpdate(context.Background(), Request{Key: rec.Key, Artifacts: arts})
	require.ErrorIs(t, err, ErrMissingArtifact)
	assert.Contains(t, err.Error(), FileEmailText)
	assert.Empty(t, listDir(t, root))
}

func TestMissingLetterDocument(t *testing.T) {
	root := t.TempDir()
	rec := record("https://hh.ru/vacancy/1", "Acme", "Analyst")
	w := newWriter(t, root, mapReader{rec.Key: rec})

	arts := artifacts("a")
	delete(arts, "letter.md")

	_, err := w.CreateOrUpdate(context.Background(), Request{Key: rec.Key, Artifacts: arts})
	require.ErrorIs(t, err, ErrMissingArtifact)
}

func TestProfileCopyFailureIsNotFatal(t *testing.T) {
	root := t.TempDir()
	rec := record("https://hh.ru/vacancy/1", "Acme", "Analyst")
	core, observed := observer.New(zapcore.WarnLevel)
	w := newWriter(t, root, mapReader{rec.Key: rec}, WithLogger(zap.New(core)))

	path, err := w.CreateOrUpdate(context.Background(), Request{
		Key:         rec.Key,
		Artifacts:   artifacts("a"),
		ProfilePath: filepath.Join(t.TempDir(), "missing.pdf"),
	})
	require.NoError(t, err)

	assert.NotContains(t, listDir(t, path), "profile.pdf")
	assert.Equal(t, 1, observed.FilterMessage("profile copy skipped").Len())
}

func TestRecordNotFound(t *testing.T) {
	root := t.TempDir()
	rec := record("https://hh.ru/vacancy/1", "Acme", "Analyst")
	w := newWriter(t, root, mapReader{})

	_, err := w.CreateOrUpdate(context.Background(), Request{Key: rec.Key, Artifacts: artifacts("a")})
	require.ErrorIs(t, err, ErrRecordNotFound)
}

func TestFailedWriteLeavesNothingVisible(t *testing.T) {
	root := t.TempDir()
	rec := record("https://hh.ru/vacancy/1", "Acme", "Analyst")
	w := newWriter(t, root, mapReader{rec.Key: rec})

	written := 0
	w.afterWrite = func(string) error {
		written++
		if written == 3 {
			return errors.New("disk full")
		}
		return nil
	}

	_, err := w.CreateOrUpdate(context.Background(), Request{Key: rec.Key, Artifacts: artifacts("a")})
	require.Error(t, err)
	assert.Empty(t, listDir(t, root))

	w.afterWrite = nil
	path, err := w.CreateOrUpdate(context.Background(), Request{Key: rec.Key, Artifacts: artifacts("a")})
	require.NoError(t, err)
	assert.Equal(t, "001_acme_analyst", filepath.Base(path))
}

func TestRecoverAfterCrash(t *testing.T) {
	root := t.TempDir()

	// A process killed after writing 3 of 8 files leaves its temp dir behind.
	crashed := filepath.Join(root, tmpPrefix+"123456")
	require.NoError(t, os.Mkdir(crashed, 0o755))
	for _, name := range []string{"email-text.txt", "letter.html", "letter.md"} {
		require.NoError(t, os.WriteFile(filepath.Join(crashed, name), []byte("x"), 0o644))
	}
	require.NoError(t, os.WriteFile(filepath.Join(root, tmpPrefix+"index.json-99"), []byte("{"), 0o644))

	rec := record("https://hh.ru/vacancy/1", "Acme", "Analyst")
	w := newWriter(t, root, mapReader{rec.Key: rec})
	assert.Empty(t, listDir(t, root))

	path, err := w.CreateOrUpdate(context.Background(), Request{Key: rec.Key, Artifacts: artifacts("a")})
	require.NoError(t, err)
	assert.Len(t, listDir(t, path), 7)
	assert.ElementsMatch(t, []string{"001_acme_analyst", indexFile}, listDir(t, root))
}

func TestCommittedCheckpointWithoutIndexEntryIsReused(t *testing.T) {
	root := t.TempDir()
	rec := record("https://hh.ru/vacancy/1", "Acme", "Analyst")
	reader := mapReader{rec.Key: rec}

	first, err := newWriter(t, root, reader).CreateOrUpdate(context.Background(), Request{Key: rec.Key, Artifacts: artifacts("a")})
	require.NoError(t, err)

	// The directory was renamed into place but the process died before the index was saved.
	require.NoError(t, os.Remove(filepath.Join(root, indexFile)))

	w := newWriter(t, root, reader)
	again, err := w.CreateOrUpdate(context.Background(), Request{Key: rec.Key, Artifacts: artifacts("b")})
	require.NoError(t, err)

	assert.Equal(t, first, again)
	assert.ElementsMatch(t, []string{"001_acme_analyst", indexFile}, listDir(t, root))

	letter, err := os.ReadFile(filepath.Join(again, "letter.md"))
	require.NoError(t, err)
	assert.Equal(t, "a", string(letter), "an existing checkpoint is not rewritten without Replace")

	path, ok, err := w.Lookup(rec.Key)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, first, path)
	assert.Equal(t, root, w.Root())
}

func TestRecoverSkipsDirectoriesWithoutMetadata(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, "004_manual_copy"), 0o755))

	core, observed := observer.New(zapcore.WarnLevel)
	newWriter(t, root, mapReader{}, WithLogger(zap.New(core)))

	assert.Equal(t, []string{"004_manual_copy"}, listDir(t, root))
	assert.Equal(t, 1, observed.FilterMessage("checkpoint left out of the index").Len())
}

func TestRecoverRestoresInterruptedReplace(t *testing.T) {
	root := t.TempDir()
	moved := filepath.Join(root, oldPrefix+"001_acme_analyst")
	require.NoError(t, os.Mkdir(moved, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(moved, FileStatus), []byte(`{}`), 0o644))

	newWriter(t, root, mapReader{})

	assert.Equal(t, []string{"001_acme_analyst"}, listDir(t, root))
}

func TestNewRejectsRelativeRoot(t *testing.T) {
	_, err := New("checkpoints", mapReader{})
	require.ErrorIs(t, err, ErrRelativeRoot)
}

func TestValidateMetadata(t *testing.T) {
	valid := Metadata{
		SequenceID:    1,
		CreatedAt:     testNow,
		PostingKey:    "https://hh.ru/vacancy/1",
		ProfileKey:    string(identity.DeriveProfileKey([]byte("P1"))),
		SchemaVersion: SchemaVersion,
	}
	data, err := json.Marshal(valid)
	require.NoError(t, err)
	require.NoError(t, validateMetadata(data))

	invalid := valid
	invalid.SchemaVersion = 2
	invalid.ProfileKey = "not-a-key"
	data, err = json.Marshal(invalid)
	require.NoError(t, err)

	err = validateMetadata(data)
	var schemaErr *SchemaError
	require.ErrorAs(t, err, &schemaErr)
	assert.Len(t, schemaErr.Fields, 2)
	assert.True(t, strings.Contains(err.Error(), "schema_version"))
}
