package checkpoint

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"

	"github.com/spigell/hh-checkpoint/internal/dedup"
)

const indexFile = "index.json"

var sequenceDir = regexp.MustCompile(`^(\d{3,})_`)

// indexEntry maps one logical application to its checkpoint directory.
type indexEntry struct {
	Dir        string `json:"dir"`
	Sequence   int    `json:"sequence"`
	PostingKey string `json:"posting_key"`
	ProfileKey string `json:"profile_key"`
}

type index struct {
	Entries map[string]indexEntry `json:"entries"`
}

// indexKey deliberately ignores the query: the same posting found by two
// searches is one application.
func indexKey(k dedup.Key) string {
	return entryKey(string(k.Posting), string(k.Profile))
}

func entryKey(posting, profile string) string {
	return posting + "|" + profile
}

func (w *Writer) loadIndex() (*index, error) {
	idx := &index{Entries: map[string]indexEntry{}}

	data, err := os.ReadFile(filepath.Join(w.root, indexFile))
	if errors.Is(err, os.ErrNotExist) {
		return idx, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read index: %w", err)
	}

	if err := json.Unmarshal(data, idx); err != nil {
		return nil, fmt.Errorf("decode index: %w", err)
	}
	if idx.Entries == nil {
		idx.Entries = map[string]indexEntry{}
	}

	return idx, nil
}

func (w *Writer) saveIndex(idx *index) error {
	data, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return fmt.Errorf("encode index: %w", err)
	}

	return writeFileAtomic(w.root, indexFile, data)
}

// nextSequence looks at both the index and the directories on disk so a
// lost index never causes a sequence number to be reused.
func (w *Writer) nextSequence(idx *index) (int, error) {
	maxSeq := 0
	for _, entry := range idx.Entries {
		maxSeq = max(maxSeq, entry.Sequence)
	}

	entries, err := os.ReadDir(w.root)
	if err != nil {
		return 0, fmt.Errorf("list checkpoints: %w", err)
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		m := sequenceDir.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		if seq, err := strconv.Atoi(m[1]); err == nil {
			maxSeq = max(maxSeq, seq)
		}
	}

	return maxSeq + 1, nil
}

func writeFileAtomic(dir, name string, data []byte) error {
	tmp, err := os.CreateTemp(dir, tmpPrefix+name+"-*")
	if err != nil {
		return fmt.Errorf("create temp file for %s: %w", name, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", name, err)
	}

	if err := os.Rename(tmpName, filepath.Join(dir, name)); err != nil {
		return fmt.Errorf("commit %s: %w", name, err)
	}
	return nil
}
