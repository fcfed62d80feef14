package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Sync-storage limits mirrored by FileKV.
const (
	QuotaBytes        = 102400
	QuotaBytesPerItem = 8192
	MaxItems          = 512
)

// ErrQuotaExceeded is returned when a write would exceed a storage quota.
var ErrQuotaExceeded = errors.New("storage quota exceeded")

// KV is a small synced key/value store. Get with no keys returns every item.
type KV interface {
	Get(ctx context.Context, keys ...string) (map[string]json.RawMessage, error)
	Set(ctx context.Context, items map[string]json.RawMessage) error
	Remove(ctx context.Context, keys ...string) error
	Clear(ctx context.Context) error
}

// Quota bounds a store's size. Zero fields are unlimited.
type Quota struct {
	Bytes        int
	BytesPerItem int
	Items        int
}

// SyncQuota is the quota browsers apply to synced extension storage.
var SyncQuota = Quota{Bytes: QuotaBytes, BytesPerItem: QuotaBytesPerItem, Items: MaxItems}

func (q Quota) check(items map[string]json.RawMessage) error {
	if q.Items > 0 && len(items) > q.Items {
		return fmt.Errorf("%w: %d items exceeds %d", ErrQuotaExceeded, len(items), q.Items)
	}
	total := 0
	for k, v := range items {
		size := len(k) + len(v)
		if q.BytesPerItem > 0 && size > q.BytesPerItem {
			return fmt.Errorf("%w: item %q is %d bytes, limit %d", ErrQuotaExceeded, k, size, q.BytesPerItem)
		}
		total += size
	}
	if q.Bytes > 0 && total > q.Bytes {
		return fmt.Errorf("%w: %d bytes exceeds %d", ErrQuotaExceeded, total, q.Bytes)
	}
	return nil
}

// MemoryKV is an in-process KV.
type MemoryKV struct {
	mu    sync.Mutex
	quota Quota
	items map[string]json.RawMessage
}

// NewMemoryKV returns an empty store with the given quota.
func NewMemoryKV(q Quota) *MemoryKV {
	return &MemoryKV{quota: q, items: make(map[string]json.RawMessage)}
}

func (m *MemoryKV) Get(_ context.Context, keys ...string) (map[string]json.RawMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return selectKeys(m.items, keys), nil
}

func (m *MemoryKV) Set(_ context.Context, items map[string]json.RawMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	next := mergeItems(m.items, items)
	if err := m.quota.check(next); err != nil {
		return err
	}
	m.items = next
	return nil
}

func (m *MemoryKV) Remove(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.items, k)
	}
	return nil
}

func (m *MemoryKV) Clear(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = make(map[string]json.RawMessage)
	return nil
}

// FileKV persists items as one JSON object on disk. Writes go through a
// temp file and rename so a crash never leaves a torn file.
type FileKV struct {
	mu    sync.Mutex
	path  string
	quota Quota
}

// NewFileKV returns a store backed by path. The file is created on first write.
func NewFileKV(path string, q Quota) *FileKV {
	return &FileKV{path: path, quota: q}
}

// Path returns the backing file path.
func (f *FileKV) Path() string { return f.path }

func (f *FileKV) Get(ctx context.Context, keys ...string) (map[string]json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	items, err := f.load()
	if err != nil {
		return nil, err
	}
	return selectKeys(items, keys), nil
}

func (f *FileKV) Set(ctx context.Context, items map[string]json.RawMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	current, err := f.load()
	if err != nil {
		return err
	}
	next := mergeItems(current, items)
	if err := f.quota.check(next); err != nil {
		return err
	}
	return f.save(next)
}

func (f *FileKV) Remove(ctx context.Context, keys ...string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	current, err := f.load()
	if err != nil {
		return err
	}
	changed := false
	for _, k := range keys {
		if _, ok := current[k]; ok {
			delete(current, k)
			changed = true
		}
	}
	if !changed {
		return nil
	}
	return f.save(current)
}

func (f *FileKV) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.save(map[string]json.RawMessage{})
}

func (f *FileKV) load() (map[string]json.RawMessage, error) {
	b, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]json.RawMessage{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", f.path, err)
	}
	items := map[string]json.RawMessage{}
	if len(b) == 0 {
		return items, nil
	}
	if err := json.Unmarshal(b, &items); err != nil {
		return nil, fmt.Errorf("decode %s: %w", f.path, err)
	}
	return items, nil
}

func (f *FileKV) save(items map[string]json.RawMessage) error {
	b, err := json.Marshal(items)
	if err != nil {
		return err
	}
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".settings-*.tmp")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return nil
}

func selectKeys(items map[string]json.RawMessage, keys []string) map[string]json.RawMessage {
	out := make(map[string]json.RawMessage)
	if len(keys) == 0 {
		for k, v := range items {
			out[k] = append(json.RawMessage(nil), v...)
		}
		return out
	}
	for _, k := range keys {
		if v, ok := items[k]; ok {
			out[k] = append(json.RawMessage(nil), v...)
		}
	}
	return out
}

func mergeItems(current, items map[string]json.RawMessage) map[string]json.RawMessage {
	next := make(map[string]json.RawMessage, len(current)+len(items))
	for k, v := range current {
		next[k] = v
	}
	for k, v := range items {
		next[k] = append(json.RawMessage(nil), v...)
	}
	return next
}
