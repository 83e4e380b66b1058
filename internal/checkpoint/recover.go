package checkpoint

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

const oldPrefix = tmpPrefix + "old-"

// Recover cleans up after an interrupted write. Temporary checkpoints are
// removed, and a checkpoint moved aside during a replace is put back when
// its final directory is missing. Checkpoints committed without an index
// entry are indexed again from their metadata.json.
func (w *Writer) Recover() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	entries, err := os.ReadDir(w.root)
	if err != nil {
		return fmt.Errorf("list checkpoint root: %w", err)
	}

	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, tmpPrefix) {
			continue
		}
		path := filepath.Join(w.root, name)

		if e.IsDir() && strings.HasPrefix(name, oldPrefix) {
			final := filepath.Join(w.root, strings.TrimPrefix(name, oldPrefix))
			if _, err := os.Stat(final); os.IsNotExist(err) {
				if err := os.Rename(path, final); err != nil {
					return fmt.Errorf("restore %s: %w", name, err)
				}
				w.logger.Warn("restored checkpoint from interrupted replace", zap.String("dir", filepath.Base(final)))
				continue
			}
		}

		if err := os.RemoveAll(path); err != nil {
			return fmt.Errorf("remove %s: %w", name, err)
		}
		w.logger.Warn("removed leftover of interrupted checkpoint write", zap.String("path", name))
	}

	return w.reindex()
}

// reindex adds index entries for sequence directories the index does not know.
func (w *Writer) reindex() error {
	idx, err := w.loadIndex()
	if err != nil {
		return err
	}

	known := make(map[string]struct{}, len(idx.Entries))
	for _, entry := range idx.Entries {
		known[entry.Dir] = struct{}{}
	}

	entries, err := os.ReadDir(w.root)
	if err != nil {
		return fmt.Errorf("list checkpoint root: %w", err)
	}

	added := 0
	for _, e := range entries {
		name := e.Name()
		if !e.IsDir() || !sequenceDir.MatchString(name) {
			continue
		}
		if _, ok := known[name]; ok {
			continue
		}

		meta, err := readMetadata(filepath.Join(w.root, name))
		if err != nil {
			w.logger.Warn("checkpoint left out of the index", zap.String("dir", name), zap.Error(err))
			continue
		}

		key := entryKey(meta.PostingKey, meta.ProfileKey)
		if _, ok := idx.Entries[key]; ok {
			continue
		}
		idx.Entries[key] = indexEntry{
			Dir:        name,
			Sequence:   meta.SequenceID,
			PostingKey: meta.PostingKey,
			ProfileKey: meta.ProfileKey,
		}
		added++
		w.logger.Warn("indexed checkpoint missing from the index", zap.String("dir", name))
	}

	if added == 0 {
		return nil
	}
	return w.saveIndex(idx)
}

func readMetadata(dir string) (*Metadata, error) {
	data, err := os.ReadFile(filepath.Join(dir, FileMetadata))
	if err != nil {
		return nil, fmt.Errorf("read metadata: %w", err)
	}

	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	if meta.PostingKey == "" || meta.ProfileKey == "" {
		return nil, errors.New("metadata has no posting or profile key")
	}
	return &meta, nil
}
