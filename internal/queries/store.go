// Package queries keeps the list of saved searches in a versioned YAML file.
// Every write bumps the version and keeps a copy of the previous file.
package queries

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/spigell/hh-checkpoint/internal/identity"
)

var (
	ErrRelativePath = errors.New("queries: path must be absolute")
	ErrExists       = errors.New("queries: query already exists")
	ErrNotFound     = errors.New("queries: query not found")
	ErrConflict     = errors.New("queries: file changed since it was read")
)

// Query is one saved search. Its text is the query key.
type Query struct {
	Text string `yaml:"text"`
	// MaxPages overrides the configured page limit for this query.
	MaxPages int `yaml:"max_pages,omitempty"`
}

func (q Query) Key() identity.QueryKey {
	return identity.QueryKey(q.Text)
}

// List is the content of the queries file.
type List struct {
	Version int     `yaml:"version"`
	Queries []Query `yaml:"queries"`
}

// Keys returns the query keys in file order.
func (l *List) Keys() []identity.QueryKey {
	keys := make([]identity.QueryKey, 0, len(l.Queries))
	for _, q := range l.Queries {
		keys = append(keys, q.Key())
	}
	return keys
}

func (l *List) find(text string) int {
	for i, q := range l.Queries {
		if strings.EqualFold(q.Text, text) {
			return i
		}
	}
	return -1
}

type Store struct {
	path string
	mu   sync.Mutex
}

func New(path string) (*Store, error) {
	if !filepath.IsAbs(path) {
		return nil, fmt.Errorf("%w: %q", ErrRelativePath, path)
	}
	return &Store{path: filepath.Clean(path)}, nil
}

func (s *Store) Path() string {
	return s.path
}

// Load reads the list. A missing file is an empty list at version 0.
func (s *Store) Load() (*List, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.load()
}

// Add appends a query. Texts are compared case-insensitively.
func (s *Store) Add(q Query) (*List, error) {
	q.Text = strings.TrimSpace(q.Text)
	if q.Text == "" {
		return nil, errors.New("queries: text is required")
	}

	return s.update(func(l *List) error {
		if l.find(q.Text) >= 0 {
			return fmt.Errorf("%w: %q", ErrExists, q.Text)
		}
		l.Queries = append(l.Queries, q)
		return nil
	})
}

// Remove deletes the query with the given text.
func (s *Store) Remove(text string) (*List, error) {
	return s.update(func(l *List) error {
		idx := l.find(strings.TrimSpace(text))
		if idx < 0 {
			return fmt.Errorf("%w: %q", ErrNotFound, text)
		}
		l.Queries = append(l.Queries[:idx], l.Queries[idx+1:]...)
		return nil
	})
}

// Save replaces the list if the file is still at l.Version.
func (s *Store) Save(l *List) (*List, error) {
	return s.update(func(current *List) error {
		if current.Version != l.Version {
			return fmt.Errorf("%w: have version %d, file is at %d", ErrConflict, l.Version, current.Version)
		}
		current.Queries = append([]Query(nil), l.Queries...)
		return nil
	})
}

func (s *Store) update(change func(*List) error) (*List, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list, err := s.load()
	if err != nil {
		return nil, err
	}
	previous := list.Version

	if err := change(list); err != nil {
		return nil, err
	}
	list.Version = previous + 1

	if err := s.backup(previous); err != nil {
		return nil, err
	}
	if err := s.write(list); err != nil {
		return nil, err
	}

	return list, nil
}

func (s *Store) load() (*List, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return &List{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read queries: %w", err)
	}

	var list List
	if err := yaml.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("parse queries %s: %w", s.path, err)
	}
	return &list, nil
}

// BackupPath is where the file at the given version is kept after it is replaced.
func (s *Store) BackupPath(version int) string {
	return fmt.Sprintf("%s.bak.%d", s.path, version)
}

func (s *Store) backup(version int) error {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read queries for backup: %w", err)
	}

	if err := os.WriteFile(s.BackupPath(version), data, 0o644); err != nil {
		return fmt.Errorf("write queries backup: %w", err)
	}
	return nil
}

func (s *Store) write(list *List) error {
	data, err := yaml.Marshal(list)
	if err != nil {
		return fmt.Errorf("encode queries: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create queries directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".queries-*")
	if err != nil {
		return fmt.Errorf("create temp queries file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write queries: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close queries: %w", err)
	}

	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("commit queries: %w", err)
	}
	return nil
}
