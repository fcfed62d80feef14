package settings

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/dgnsrekt/booktabs/internal/apperr"
	"github.com/dgnsrekt/booktabs/internal/books"
)

// Store reads and writes versioned settings through a KV.
type Store struct {
	kv       KV
	defaults Settings

	// mu serializes read-modify-write cycles issued by this process.
	mu sync.Mutex
}

// NewStore returns a store over kv. defaults fills anything the stored
// record lacks; pass Defaults() for the compiled-in set.
func NewStore(kv KV, defaults Settings) *Store {
	return &Store{kv: kv, defaults: defaults.Clone()}
}

// Defaults returns a copy of the store's defaults.
func (s *Store) Defaults() Settings {
	return s.defaults.Clone()
}

// Get returns the current settings. Read failures are logged and yield the
// defaults; Get never writes.
func (s *Store) Get(ctx context.Context) Settings {
	rec, err := s.kv.Get(ctx, Keys()...)
	if err != nil {
		slog.Warn("settings read failed, using defaults", "error", err)
		return s.Defaults()
	}
	return MigrateWithDefaults(Record(rec), s.defaults)
}

// Set merges u into the stored settings.
func (s *Store) Set(ctx context.Context, u Update) error {
	return s.mutate(ctx, func(cur Settings) (Settings, error) {
		return u.Apply(cur), nil
	})
}

// Replace stores next wholesale.
func (s *Store) Replace(ctx context.Context, next Settings) error {
	return s.mutate(ctx, func(Settings) (Settings, error) {
		return next.fillMissing(s.defaults), nil
	})
}

// Reset clears every stored key so reads fall back to defaults.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.kv.Clear(ctx); err != nil {
		return apperr.New(apperr.CodeStorage, "failed to reset settings", err)
	}
	slog.Info("settings reset to defaults")
	return nil
}

// Export returns the current settings as an indented {"v2": {...}} record.
func (s *Store) Export(ctx context.Context) ([]byte, error) {
	rec, err := s.Get(ctx).Record()
	if err != nil {
		return nil, apperr.New(apperr.CodeStorage, "failed to export settings", err)
	}
	return json.MarshalIndent(rec, "", "  ")
}

// Import replaces the stored settings with an exported document. Any known
// version is accepted and upgraded; malformed input fails as a storage write.
func (s *Store) Import(ctx context.Context, data []byte) error {
	cands, err := ParsePayload(data)
	if err != nil {
		return apperr.New(apperr.CodeStorage, "malformed settings import", err)
	}
	next, err := ToCurrent(cands[0])
	if err != nil {
		return apperr.New(apperr.CodeStorage, "malformed settings import", err)
	}
	return s.Replace(ctx, next)
}

// StoreActiveBooks saves a named preset of active books.
func (s *Store) StoreActiveBooks(ctx context.Context, name string, list []string) error {
	if err := validateName("active books", name); err != nil {
		return err
	}
	return s.mutate(ctx, func(cur Settings) (Settings, error) {
		cur.ActiveBooksMap[name] = append([]string{}, list...)
		return cur, nil
	})
}

// StoreBookWeightings saves a named preset of book weightings.
func (s *Store) StoreBookWeightings(ctx context.Context, name string, weights map[string]float64) error {
	if err := validateName("book weightings", name); err != nil {
		return err
	}
	return s.mutate(ctx, func(cur Settings) (Settings, error) {
		w := make(map[string]float64, len(weights))
		for book, v := range weights {
			w[book] = v
		}
		cur.ActiveBookWeightingsMap[name] = w
		return cur, nil
	})
}

// SavePlaymark adds or updates a playmark. An existing playmark keeps its
// sort order; a new one is appended after the last.
func (s *Store) SavePlaymark(ctx context.Context, name, url string) error {
	if err := validateName("playmark", name); err != nil {
		return err
	}
	return s.mutate(ctx, func(cur Settings) (Settings, error) {
		pd, ok := cur.PlaymarkDetailsMap[name]
		if !ok {
			pd.SortOrder = nextSortOrder(cur.PlaymarkDetailsMap)
		}
		pd.Playmark = url
		cur.PlaymarkDetailsMap[name] = pd
		return cur, nil
	})
}

// DeletePlaymark removes a playmark.
func (s *Store) DeletePlaymark(ctx context.Context, name string) error {
	if err := validateName("playmark", name); err != nil {
		return err
	}
	return s.mutate(ctx, func(cur Settings) (Settings, error) {
		if _, ok := cur.PlaymarkDetailsMap[name]; !ok {
			return cur, apperr.New(apperr.CodeNotFound, fmt.Sprintf("playmark %q not found", name), nil)
		}
		delete(cur.PlaymarkDetailsMap, name)
		return cur, nil
	})
}

// mutate runs one read-modify-write cycle. The read surfaces errors, unlike
// Get, so a failing backend never gets overwritten with defaults.
func (s *Store) mutate(ctx context.Context, fn func(Settings) (Settings, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.kv.Get(ctx, Keys()...)
	if err != nil {
		return apperr.New(apperr.CodeStorage, "failed to read settings", err)
	}
	cur := MigrateWithDefaults(Record(rec), s.defaults)

	next, err := fn(cur)
	if err != nil {
		return err
	}
	if err := validate(next); err != nil {
		return err
	}
	return s.write(ctx, next)
}

func (s *Store) write(ctx context.Context, next Settings) error {
	rec, err := next.Record()
	if err != nil {
		return apperr.New(apperr.CodeStorage, "failed to encode settings", err)
	}
	if err := s.kv.Set(ctx, rec); err != nil {
		slog.Error("settings write failed", "error", err)
		return apperr.New(apperr.CodeStorage, "failed to save settings", err)
	}
	if err := s.kv.Remove(ctx, StaleKeys()...); err != nil {
		slog.Warn("stale settings cleanup failed", "keys", StaleKeys(), "error", err)
	}
	slog.Debug("settings saved", "version", Current, "books", next.BookDetailsMap.Len())
	return nil
}

func validate(s Settings) error {
	if !s.BookLinkTarget.Valid() {
		return apperr.Validation(fmt.Sprintf("bookLinkTarget must be %q or %q", NewTab, BookTab))
	}
	for name := range s.PlaymarkDetailsMap {
		if strings.TrimSpace(name) == "" {
			return apperr.Validation("playmark name must not be empty")
		}
	}
	var bad string
	s.BookDetailsMap.Each(func(book string, _ books.BookDetail) {
		if bad == "" && strings.TrimSpace(book) == "" {
			bad = "book name must not be empty"
		}
	})
	if bad != "" {
		return apperr.Validation(bad)
	}
	return nil
}

func validateName(kind, name string) error {
	if strings.TrimSpace(name) == "" {
		return apperr.Validation(kind + " name must not be empty")
	}
	return nil
}

func nextSortOrder(m map[string]PlaymarkDetail) int {
	next := 0
	for _, pd := range m {
		if pd.SortOrder >= next {
			next = pd.SortOrder + 1
		}
	}
	return next
}
