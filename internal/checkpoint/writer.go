// Package checkpoint writes one self-contained output directory per
// promoted application.
//
// A checkpoint is assembled in a temporary directory under the root and
// renamed into place, so readers never see a partially written one.
package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/hh-checkpoint/internal/dedup"
	"github.com/spigell/hh-checkpoint/internal/logger"
)

const (
	SchemaVersion = 1

	FileLetterHTML = "letter.html"
	FileEmailText  = "email-text.txt"
	FileEvaluation = "evaluation.json"
	FilePosting    = "posting.json"
	FileMetadata   = "metadata.json"
	FileStatus     = "status.json"

	letterPrefix   = "letter."
	profilePrefix  = "profile"
	defaultProfile = ".txt"
	tmpPrefix      = ".tmp-"
	dirPerm        = 0o755
	filePerm       = 0o644
)

var (
	ErrMissingArtifact = errors.New("checkpoint: required artifact missing")
	ErrRecordNotFound  = errors.New("checkpoint: evaluation record not found")
	ErrRelativeRoot    = errors.New("checkpoint: root must be an absolute path")
)

// RecordReader is the query side of the dedup store.
type RecordReader interface {
	Get(ctx context.Context, key dedup.Key) (*dedup.Record, error)
}

// Request describes one checkpoint to create or refresh.
type Request struct {
	Key dedup.Key
	// Artifacts are rendered documents keyed by file name. A letter.<format>
	// document, letter.html and email-text.txt are required.
	Artifacts map[string][]byte
	// ProfilePath is copied in as profile.<ext>. A failed copy is not fatal.
	ProfilePath string
	// Replace rewrites the files of an existing checkpoint for the same
	// posting and profile. Without it an existing checkpoint is returned as is.
	Replace bool
}

// Metadata is the content of metadata.json.
type Metadata struct {
	SequenceID    int       `json:"sequence_id"`
	Company       string    `json:"company"`
	Title         string    `json:"title"`
	CreatedAt     time.Time `json:"created_at"`
	PostingKey    string    `json:"posting_key"`
	ProfileKey    string    `json:"profile_key"`
	QueryKey      string    `json:"query_key"`
	SchemaVersion int       `json:"schema_version"`
}

// Status is the content of status.json. Only the initial value is written here.
type Status struct {
	Status string     `json:"status"`
	SentAt *time.Time `json:"sent_at"`
	Notes  string     `json:"notes"`
}

type Option func(*Writer)

func WithLogger(l *zap.Logger) Option {
	return func(w *Writer) {
		if l != nil {
			w.logger = l
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(w *Writer) {
		if now != nil {
			w.now = now
		}
	}
}

type Writer struct {
	root   string
	reader RecordReader
	logger *zap.Logger
	now    func() time.Time

	// mu guards the index and the directory layout under root.
	mu sync.Mutex

	// afterWrite is called after every file written into a temporary directory.
	afterWrite func(name string) error
}

// New creates the root directory if needed and removes leftovers of
// interrupted writes.
func New(root string, reader RecordReader, opts ...Option) (*Writer, error) {
	if !filepath.IsAbs(root) {
		return nil, fmt.Errorf("%w: %q", ErrRelativeRoot, root)
	}
	if reader == nil {
		return nil, errors.New("checkpoint: record reader is required")
	}

	w := &Writer{
		root:   filepath.Clean(root),
		reader: reader,
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}

	if err := os.MkdirAll(w.root, dirPerm); err != nil {
		return nil, fmt.Errorf("create checkpoint root: %w", err)
	}

	if err := w.Recover(); err != nil {
		return nil, err
	}

	return w, nil
}

func (w *Writer) Root() string {
	return w.root
}

// Lookup returns the checkpoint directory already assigned to the key.
func (w *Writer) Lookup(key dedup.Key) (string, bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	idx, err := w.loadIndex()
	if err != nil {
		return "", false, err
	}

	entry, ok := idx.Entries[indexKey(key)]
	if !ok {
		return "", false, nil
	}
	return filepath.Join(w.root, entry.Dir), true, nil
}

// CreateOrUpdate writes the checkpoint for req.Key and returns its path.
func (w *Writer) CreateOrUpdate(ctx context.Context, req Request) (string, error) {
	if err := checkArtifacts(req.Artifacts); err != nil {
		return "", err
	}

	rec, err := w.reader.Get(ctx, req.Key)
	if err != nil {
		return "", fmt.Errorf("read evaluation: %w", err)
	}
	if rec == nil {
		return "", fmt.Errorf("%w: %s", ErrRecordNotFound, req.Key.Posting)
	}

	log := logger.WithFields(w.logger, logger.KeyFields(string(req.Key.Posting), string(req.Key.Query), string(req.Key.Profile))...)

	w.mu.Lock()
	defer w.mu.Unlock()

	idx, err := w.loadIndex()
	if err != nil {
		return "", err
	}

	entry, exists := idx.Entries[indexKey(req.Key)]
	if exists {
		path := filepath.Join(w.root, entry.Dir)
		if _, statErr := os.Stat(path); statErr != nil {
			log.Warn("indexed checkpoint directory is missing, recreating", zap.String("dir", entry.Dir))
			exists = false
		} else if !req.Replace {
			log.Debug("checkpoint already exists", zap.String("dir", entry.Dir))
			return path, nil
		}
	}

	if !exists && entry.Dir == "" {
		seq, err := w.nextSequence(idx)
		if err != nil {
			return "", err
		}
		entry = indexEntry{
			Dir:        fmt.Sprintf("%03d_%s_%s", seq, SanitizeLabel(rec.Posting.Company), SanitizeLabel(rec.Posting.Title)),
			Sequence:   seq,
			PostingKey: string(req.Key.Posting),
			ProfileKey: string(req.Key.Profile),
		}
	}

	final := filepath.Join(w.root, entry.Dir)

	tmp, err := w.build(req, rec, entry, exists, log)
	if err != nil {
		return "", err
	}

	if exists {
		err = w.swap(tmp, final)
	} else {
		err = os.Rename(tmp, final)
	}
	if err != nil {
		_ = os.RemoveAll(tmp)
		return "", fmt.Errorf("commit checkpoint %s: %w", entry.Dir, err)
	}

	idx.Entries[indexKey(req.Key)] = entry
	if err := w.saveIndex(idx); err != nil {
		return "", err
	}

	log.Info("checkpoint written", zap.String("dir", entry.Dir), zap.Bool("replaced", exists))

	return final, nil
}

// build writes every file into a fresh temporary directory. The directory
// is removed on any error.
func (w *Writer) build(req Request, rec *dedup.Record, entry indexEntry, replacing bool, log *zap.Logger) (dir string, err error) {
	dir, err = os.MkdirTemp(w.root, tmpPrefix)
	if err != nil {
		return "", fmt.Errorf("create temp checkpoint: %w", err)
	}
	defer func() {
		if err != nil {
			_ = os.RemoveAll(dir)
		}
	}()

	names := make([]string, 0, len(req.Artifacts))
	for name := range req.Artifacts {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if err = w.writeFile(dir, name, req.Artifacts[name]); err != nil {
			return "", err
		}
	}

	if err = w.writeJSON(dir, FileEvaluation, rec); err != nil {
		return "", err
	}
	if err = w.writeJSON(dir, FilePosting, rec.Posting); err != nil {
		return "", err
	}

	if req.ProfilePath != "" {
		if copyErr := w.copyProfile(dir, req.ProfilePath); copyErr != nil {
			log.Warn("profile copy skipped", zap.String("profile_path", req.ProfilePath), zap.Error(copyErr))
		}
	}

	meta := Metadata{
		SequenceID:    entry.Sequence,
		Company:       rec.Posting.Company,
		Title:         rec.Posting.Title,
		CreatedAt:     w.now().UTC(),
		PostingKey:    string(rec.Key.Posting),
		ProfileKey:    string(rec.Key.Profile),
		QueryKey:      string(rec.Key.Query),
		SchemaVersion: SchemaVersion,
	}
	metaJSON, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode metadata: %w", err)
	}
	if err = validateMetadata(metaJSON); err != nil {
		return "", err
	}
	if err = w.writeFile(dir, FileMetadata, metaJSON); err != nil {
		return "", err
	}

	status, err := w.statusFor(filepath.Join(w.root, entry.Dir), replacing)
	if err != nil {
		return "", err
	}
	if err = w.writeFile(dir, FileStatus, status); err != nil {
		return "", err
	}

	return dir, nil
}

// statusFor keeps the status of an existing checkpoint since downstream
// tools own it after creation.
func (w *Writer) statusFor(existing string, replacing bool) ([]byte, error) {
	if replacing {
		data, err := os.ReadFile(filepath.Join(existing, FileStatus))
		if err == nil {
			return data, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("read existing status: %w", err)
		}
	}

	data, err := json.MarshalIndent(Status{Status: "draft"}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode status: %w", err)
	}
	return data, nil
}

// swap replaces final with tmp using two renames. A crash between them
// leaves a .tmp-old- directory that Recover puts back.
func (w *Writer) swap(tmp, final string) error {
	old := filepath.Join(w.root, tmpPrefix+"old-"+filepath.Base(final))
	_ = os.RemoveAll(old)

	if err := os.Rename(final, old); err != nil {
		return err
	}
	if err := os.Rename(tmp, final); err != nil {
		if rbErr := os.Rename(old, final); rbErr != nil {
			w.logger.Error("restoring checkpoint after failed swap", zap.String("dir", final), zap.Error(rbErr))
		}
		return err
	}

	return os.RemoveAll(old)
}

func (w *Writer) writeFile(dir, name string, data []byte) error {
	if name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return fmt.Errorf("invalid artifact name %q", name)
	}
	if err := os.WriteFile(filepath.Join(dir, name), data, filePerm); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	if w.afterWrite != nil {
		if err := w.afterWrite(name); err != nil {
			return err
		}
	}
	return nil
}

func (w *Writer) writeJSON(dir, name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	return w.writeFile(dir, name, data)
}

func (w *Writer) copyProfile(dir, src string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}

	ext := strings.ToLower(filepath.Ext(src))
	if ext == "" {
		ext = defaultProfile
	}
	return w.writeFile(dir, profilePrefix+ext, data)
}

func checkArtifacts(artifacts map[string][]byte) error {
	var missing []string

	hasLetter := false
	for name := range artifacts {
		if strings.HasPrefix(name, letterPrefix) && name != FileLetterHTML {
			hasLetter = true
		}
	}
	if !hasLetter {
		missing = append(missing, letterPrefix+"<format>")
	}

	for _, name := range []string{FileLetterHTML, FileEmailText} {
		if _, ok := artifacts[name]; !ok {
			missing = append(missing, name)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingArtifact, strings.Join(missing, ", "))
	}
	return nil
}
