// Package local implements the filesystem-backed storage variant, used for
// development and testing.
package local

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/adaletdata/uploader/internal/uploader"
)

// Identities become file names, so they are restricted to a safe charset.
var validIdentity = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// Config captures the parameters for the local store.
type Config struct {
	// BaseDir is the root directory where decision documents are stored.
	BaseDir string `mapstructure:"base_dir"`
}

// Store writes one JSON document per record identity under a base
// directory. Existence of the file doubles as the dedup index.
type Store struct {
	baseDir string
	logger  *zap.Logger
}

// New creates a local store, failing fast when the base directory is
// missing, not a directory, or not writable.
func New(cfg Config, logger *zap.Logger) (*Store, error) {
	if strings.TrimSpace(cfg.BaseDir) == "" {
		return nil, fmt.Errorf("base directory is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	info, err := os.Stat(cfg.BaseDir)
	if err != nil {
		if os.IsNotExist(err) {
			if mkErr := os.MkdirAll(cfg.BaseDir, 0o750); mkErr != nil {
				return nil, fmt.Errorf("failed to create base directory: %w", mkErr)
			}
		} else {
			return nil, fmt.Errorf("failed to stat base directory: %w", err)
		}
	} else if !info.IsDir() {
		return nil, fmt.Errorf("base directory path is not a directory")
	}

	probe := filepath.Join(cfg.BaseDir, ".writable_test")
	if err := os.WriteFile(probe, []byte("probe"), 0o600); err != nil {
		return nil, fmt.Errorf("base directory is not writable: %w", err)
	}
	if err := os.Remove(probe); err != nil {
		return nil, fmt.Errorf("failed to clean up probe file: %w", err)
	}

	return &Store{baseDir: cfg.BaseDir, logger: logger}, nil
}

// Exists reports whether a document for this identity is already on disk.
func (s *Store) Exists(_ context.Context, identity string) (bool, error) {
	path, err := s.path(identity)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("stat document: %w", err)
	}
	return true, nil
}

// Put writes the record as a JSON document. An already-present identity is
// reported as a constraint violation, never overwritten.
func (s *Store) Put(_ context.Context, record uploader.Record) error {
	path, err := s.path(record.Identity)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: marshal record %s: %v", uploader.ErrPermanentWrite, record.Identity, err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		if os.IsExist(err) {
			return fmt.Errorf("%w: document %s already stored", uploader.ErrConstraintViolation, record.Identity)
		}
		return fmt.Errorf("%w: create document %s: %v", uploader.ErrPermanentWrite, record.Identity, err)
	}

	if _, err := f.Write(data); err != nil {
		closeErr := f.Close()
		if closeErr != nil {
			s.logger.Warn("failed to close document after write failure", zap.Error(closeErr))
		}
		if rmErr := os.Remove(path); rmErr != nil {
			s.logger.Warn("failed to remove partial document", zap.Error(rmErr))
		}
		return fmt.Errorf("%w: write document %s: %v", uploader.ErrPermanentWrite, record.Identity, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("%w: close document %s: %v", uploader.ErrPermanentWrite, record.Identity, err)
	}

	s.logger.Debug("document stored", zap.String("path", path))
	return nil
}

// Get loads one stored decision document by identity.
func (s *Store) Get(_ context.Context, identity string) (uploader.Record, error) {
	path, err := s.path(identity)
	if err != nil {
		return uploader.Record{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return uploader.Record{}, fmt.Errorf("%w: %s", uploader.ErrNotFound, identity)
		}
		return uploader.Record{}, fmt.Errorf("read document %s: %w", identity, err)
	}
	var rec uploader.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return uploader.Record{}, fmt.Errorf("decode document %s: %w", identity, err)
	}
	return rec, nil
}

// Search scans the stored documents and returns those matching the filter.
// The full text is already part of each document, so results carry it.
func (s *Store) Search(_ context.Context, filter uploader.Filter) ([]uploader.Record, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}

	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}

	var results []uploader.Record
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.baseDir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read document %s: %w", entry.Name(), err)
		}
		var rec uploader.Record
		if err := json.Unmarshal(data, &rec); err != nil {
			s.logger.Warn("skipping undecodable document", zap.String("name", entry.Name()), zap.Error(err))
			continue
		}
		if !matches(rec.Decision, filter) {
			continue
		}
		results = append(results, rec)
		if len(results) == limit {
			break
		}
	}
	return results, nil
}

func matches(d uploader.Decision, f uploader.Filter) bool {
	if f.Daire != "" && !strings.Contains(strings.ToLower(d.Daire), strings.ToLower(f.Daire)) {
		return false
	}
	if f.EsasNo != "" && d.EsasNo != f.EsasNo {
		return false
	}
	if f.KararNo != "" && d.KararNo != f.KararNo {
		return false
	}
	if f.Keyword != "" && !strings.Contains(strings.ToLower(d.Ozet), strings.ToLower(f.Keyword)) {
		return false
	}
	if f.Year != "" && !strings.HasPrefix(d.KararTarihi, f.Year+"-") {
		return false
	}
	return true
}

// Close is a no-op; the store holds no long-lived resources.
func (s *Store) Close() {}

// path maps an identity to its document path, rejecting anything that could
// escape the base directory.
func (s *Store) path(identity string) (string, error) {
	if !validIdentity.MatchString(identity) {
		return "", fmt.Errorf("%w: unsafe identity %q", uploader.ErrPermanentWrite, identity)
	}
	full := filepath.Join(s.baseDir, identity+".json")
	cleanBase := filepath.Clean(s.baseDir)
	if !strings.HasPrefix(filepath.Clean(full), cleanBase+string(filepath.Separator)) {
		return "", errors.New("path traversal detected")
	}
	return full, nil
}
