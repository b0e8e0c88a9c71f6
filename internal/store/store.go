package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/mankindli/sub-gateway/internal/model"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

var (
	// ErrNotFound indicates no customer record carries the given token.
	ErrNotFound = errors.New("store: customer not found")
	// ErrCorrupt indicates the backing document exists but cannot be parsed.
	// There is no safe fallback state, so callers should treat it as fatal.
	ErrCorrupt = errors.New("store: corrupt document")
	// ErrTokenExists indicates a mutation tried to insert a token that is
	// already live.
	ErrTokenExists = errors.New("store: token already exists")

	errMissingPath = errors.New("store: document path is required")
)

// Store owns the single durable YAML document holding all customer records.
// It is the only component that touches the file; every other part of the
// gateway operates on snapshots it loads or mutations it applies.
type Store struct {
	path   string
	logger *zap.Logger

	// mu serializes load-mutate-replace cycles. The backing file has no
	// transaction support, so concurrent blind overwrites would silently
	// drop each other's changes. Reads deliberately do not take it: the
	// rename-based replace guarantees they always see one complete
	// document version.
	mu sync.Mutex
}

// New constructs a Store over the given document path. The file does not need
// to exist yet; a missing document loads as empty.
func New(path string, logger *zap.Logger) (*Store, error) {
	if path == "" {
		return nil, errMissingPath
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{path: path, logger: logger}, nil
}

// Load reads and parses the current document. A missing file yields an empty
// document so first runs need no setup step. Parse failures wrap ErrCorrupt;
// the document is operator-editable, so this is a real runtime condition, not
// just a programming error.
func (s *Store) Load() (model.Document, error) {
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return model.Document{}, nil
	}
	if err != nil {
		return model.Document{}, fmt.Errorf("store: read %s: %w", s.path, err)
	}

	var doc model.Document
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return model.Document{}, fmt.Errorf("%w: %s: %v", ErrCorrupt, s.path, err)
	}
	return doc, nil
}

// ReplaceAll atomically overwrites the backing document with the given
// complete state. The bytes go to a temporary file in the same directory
// which is then renamed over the target, so a crash mid-write or a concurrent
// reader never observes a truncated document. On any failure the previous
// document remains intact and the error surfaces to the caller.
func (s *Store) ReplaceAll(doc model.Document) error {
	raw, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("store: encode document: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("store: create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("store: create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("store: write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("store: sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("store: close temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("store: commit %s: %w", s.path, err)
	}
	return nil
}

// FindByToken loads the current document and returns the record carrying the
// token, or ErrNotFound. Lock-free: it only needs a consistent snapshot, not
// linearizability with in-flight mutations.
func (s *Store) FindByToken(token string) (model.Customer, error) {
	doc, err := s.Load()
	if err != nil {
		return model.Customer{}, err
	}
	for _, customer := range doc.Customers {
		if customer.Token == token {
			return customer.Clone(), nil
		}
	}
	return model.Customer{}, ErrNotFound
}

// DefaultOverride loads the current document and returns the store-wide
// emergency override, or nil when none is configured.
func (s *Store) DefaultOverride() (*model.Override, error) {
	doc, err := s.Load()
	if err != nil {
		return nil, err
	}
	return doc.DefaultOverride, nil
}

// Mutate runs a load-apply-replace cycle under the store's mutation lock.
// The callback mutates the loaded document in place; returning an error
// discards the change and leaves the previous document untouched.
func (s *Store) Mutate(apply func(doc *model.Document) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.Load()
	if err != nil {
		return err
	}
	if err := apply(&doc); err != nil {
		return err
	}
	if err := s.ReplaceAll(doc); err != nil {
		s.logger.Error("persist failed, document unchanged",
			zap.String("path", s.path), zap.Error(err))
		return err
	}
	return nil
}

// TokenLive reports whether any record in the document carries the token.
func TokenLive(doc *model.Document, token string) bool {
	for _, customer := range doc.Customers {
		if customer.Token == token {
			return true
		}
	}
	return false
}
