// Package backup keeps exported settings documents on disk so an import,
// reset or restore can be undone.
package backup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dgnsrekt/booktabs/internal/apperr"
)

const (
	metaSuffix = ".meta.json"
	dataSuffix = ".settings.json"
)

// Meta describes a stored backup.
type Meta struct {
	ID        string    `json:"id"`
	Reason    string    `json:"reason"`
	SizeBytes int       `json:"size_bytes"`
	CreatedAt time.Time `json:"created_at"`
}

// Settings is the part of the settings store a backup needs.
type Settings interface {
	Export(ctx context.Context) ([]byte, error)
	Import(ctx context.Context, data []byte) error
}

// Store manages backup files on disk. Each backup is an exported settings
// document plus a metadata sidecar.
type Store struct {
	dir string
	now func() time.Time
	mu  sync.RWMutex
}

// NewStore creates a Store and ensures the directory exists.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("backup store: mkdir %s: %w", dir, err)
	}
	return &Store{dir: dir, now: time.Now}, nil
}

func validateID(id string) error {
	if _, err := uuid.Parse(id); err != nil || len(id) != 36 {
		return apperr.Validation(fmt.Sprintf("invalid backup id: %q", id))
	}
	return nil
}

func (s *Store) metaPath(id string) string { return filepath.Join(s.dir, id+metaSuffix) }
func (s *Store) dataPath(id string) string { return filepath.Join(s.dir, id+dataSuffix) }

// Create exports src and stores it under a fresh id.
func (s *Store) Create(ctx context.Context, src Settings, reason string) (Meta, error) {
	data, err := src.Export(ctx)
	if err != nil {
		return Meta{}, err
	}
	meta := Meta{
		ID:        uuid.NewString(),
		Reason:    strings.TrimSpace(reason),
		SizeBytes: len(data),
		CreatedAt: s.now().UTC(),
	}
	if meta.Reason == "" {
		meta.Reason = "manual"
	}
	if err := s.Save(meta, data); err != nil {
		return Meta{}, err
	}
	slog.Info("settings backup created", "id", meta.ID, "reason", meta.Reason, "size_bytes", meta.SizeBytes)
	return meta, nil
}

// Save writes both the settings document and the metadata sidecar.
func (s *Store) Save(meta Meta, data []byte) error {
	if err := validateID(meta.ID); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dataPath := s.dataPath(meta.ID)
	if err := os.WriteFile(dataPath, data, 0o644); err != nil {
		return apperr.New(apperr.CodeStorage, "failed to write backup", err)
	}

	raw, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		_ = os.Remove(dataPath)
		return apperr.New(apperr.CodeStorage, "failed to encode backup metadata", err)
	}
	if err := os.WriteFile(s.metaPath(meta.ID), raw, 0o644); err != nil {
		_ = os.Remove(dataPath)
		return apperr.New(apperr.CodeStorage, "failed to write backup metadata", err)
	}
	return nil
}

// Get reads backup metadata by ID.
func (s *Store) Get(id string) (Meta, error) {
	if err := validateID(id); err != nil {
		return Meta{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getLocked(id)
}

func (s *Store) getLocked(id string) (Meta, error) {
	raw, err := os.ReadFile(s.metaPath(id))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Meta{}, apperr.New(apperr.CodeNotFound, "backup not found: "+id, nil)
		}
		return Meta{}, apperr.New(apperr.CodeStorage, "failed to read backup metadata", err)
	}
	var meta Meta
	if err := json.Unmarshal(raw, &meta); err != nil {
		return Meta{}, apperr.New(apperr.CodeStorage, "failed to decode backup metadata", err)
	}
	return meta, nil
}

// List returns all backups sorted by creation time (newest first).
// Unreadable sidecars are skipped.
func (s *Store) List() ([]Meta, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matches, err := filepath.Glob(filepath.Join(s.dir, "*"+metaSuffix))
	if err != nil {
		return nil, apperr.New(apperr.CodeStorage, "failed to list backups", err)
	}

	metas := make([]Meta, 0, len(matches))
	for _, path := range matches {
		raw, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var meta Meta
		if err := json.Unmarshal(raw, &meta); err != nil {
			slog.Debug("skipping unreadable backup metadata", "path", path, "error", err)
			continue
		}
		metas = append(metas, meta)
	}

	sort.Slice(metas, func(i, j int) bool {
		return metas[i].CreatedAt.After(metas[j].CreatedAt)
	})
	return metas, nil
}

// Read returns the stored settings document.
func (s *Store) Read(id string) ([]byte, error) {
	if _, err := s.Get(id); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(s.dataPath(id))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperr.New(apperr.CodeNotFound, "backup data not found: "+id, nil)
		}
		return nil, apperr.New(apperr.CodeStorage, "failed to read backup", err)
	}
	return data, nil
}

// Delete removes both the settings document and metadata files.
func (s *Store) Delete(id string) error {
	if _, err := s.Get(id); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.dataPath(id)); err != nil {
		slog.Debug("backup data cleanup failed", "id", id, "error", err)
	}
	if err := os.Remove(s.metaPath(id)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return apperr.New(apperr.CodeStorage, "failed to delete backup", err)
	}
	return nil
}

// Restore imports backup id into dst. The current settings are backed up
// first so a restore can itself be undone.
func (s *Store) Restore(ctx context.Context, dst Settings, id string) (Meta, error) {
	data, err := s.Read(id)
	if err != nil {
		return Meta{}, err
	}
	pre, err := s.Create(ctx, dst, "pre-restore")
	if err != nil {
		return Meta{}, err
	}
	if err := dst.Import(ctx, data); err != nil {
		return Meta{}, err
	}
	slog.Info("settings restored from backup", "id", id, "pre_restore_id", pre.ID)
	return pre, nil
}
