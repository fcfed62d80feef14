package settings

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/dgnsrekt/booktabs/internal/apperr"
)

type failingKV struct {
	KV
	getErr    error
	setErr    error
	removeErr error
	sets      int
}

func (f *failingKV) Get(ctx context.Context, keys ...string) (map[string]json.RawMessage, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.KV.Get(ctx, keys...)
}

func (f *failingKV) Set(ctx context.Context, items map[string]json.RawMessage) error {
	f.sets++
	if f.setErr != nil {
		return f.setErr
	}
	return f.KV.Set(ctx, items)
}

func (f *failingKV) Remove(ctx context.Context, keys ...string) error {
	if f.removeErr != nil {
		return f.removeErr
	}
	return f.KV.Remove(ctx, keys...)
}

func seeded(t *testing.T, pairs map[string]string) *MemoryKV {
	t.Helper()
	kv := NewMemoryKV(SyncQuota)
	if err := kv.Set(context.Background(), rec(t, pairs)); err != nil {
		t.Fatalf("seed: %v", err)
	}
	return kv
}

func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	old := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(func() { slog.SetDefault(old) })
	return &buf
}

func boolPtr(b bool) *bool { return &b }

func TestGetOnEmptyStoreReturnsDefaults(t *testing.T) {
	s := NewStore(NewMemoryKV(SyncQuota), Defaults())
	got := s.Get(context.Background())
	if got.BookDetailsMap.Len() == 0 {
		t.Fatal("default bookDetailsMap is empty")
	}
	if got.PlaymarkDetailsMap == nil || got.ActiveBooksMap == nil || got.ActiveBookWeightingsMap == nil {
		t.Fatalf("defaults missing collections: %+v", got)
	}
	if !got.BookLinkTarget.Valid() {
		t.Fatalf("BookLinkTarget = %q", got.BookLinkTarget)
	}
}

func TestGetIsSideEffectFree(t *testing.T) {
	ctx := context.Background()
	kv := seeded(t, map[string]string{"v1": v1Data})
	s := NewStore(kv, Defaults())

	_ = s.Get(ctx)

	items, _ := kv.Get(ctx)
	if _, ok := items["v1"]; !ok {
		t.Fatal("Get() removed the v1 key")
	}
	if _, ok := items["v2"]; ok {
		t.Fatal("Get() wrote the v2 key")
	}
}

func TestGetReadFailureReturnsDefaults(t *testing.T) {
	buf := captureLogs(t)
	s := NewStore(&failingKV{KV: NewMemoryKV(SyncQuota), getErr: errors.New("sync offline")}, Defaults())
	got := s.Get(context.Background())
	if !reflect.DeepEqual(got, Defaults()) {
		t.Fatalf("Get() = %+v; want defaults", got)
	}
	if !strings.Contains(buf.String(), "settings read failed") {
		t.Fatalf("expected read failure log, got %q", buf.String())
	}
}

func TestSetWritesCanonicalAndRemovesStaleKeys(t *testing.T) {
	ctx := context.Background()
	kv := seeded(t, map[string]string{"v1": v1Data, "settings": legacyData})
	s := NewStore(kv, Defaults())

	if err := s.Set(ctx, Update{ShowMeg: boolPtr(true)}); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	items, _ := kv.Get(ctx)
	if len(items) != 1 || items["v2"] == nil {
		t.Fatalf("stored keys = %v; want only v2", keysOf(items))
	}
	got := s.Get(ctx)
	if !got.ShowMeg {
		t.Fatal("update not applied")
	}
	if _, ok := got.BookDetailsMap.Get("A"); !ok {
		t.Fatal("v1 books not carried into the write")
	}
}

func TestSetStorageFailure(t *testing.T) {
	ctx := context.Background()
	s := NewStore(&failingKV{KV: NewMemoryKV(SyncQuota), setErr: ErrQuotaExceeded}, Defaults())

	err := s.Set(ctx, Update{NotifyPlays: boolPtr(true)})
	if !apperr.HasCode(err, apperr.CodeStorage) {
		t.Fatalf("Set() error = %v; want STORAGE", err)
	}
	if !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("Set() error = %v; want wrapped ErrQuotaExceeded", err)
	}
	if s.Get(ctx).NotifyPlays {
		t.Fatal("failed write took effect")
	}
}

func TestSetReadFailureDoesNotWrite(t *testing.T) {
	kv := &failingKV{KV: NewMemoryKV(SyncQuota), getErr: errors.New("corrupt")}
	s := NewStore(kv, Defaults())

	err := s.Set(context.Background(), Update{ShowMeg: boolPtr(true)})
	if !apperr.HasCode(err, apperr.CodeStorage) {
		t.Fatalf("Set() error = %v; want STORAGE", err)
	}
	if kv.sets != 0 {
		t.Fatalf("Set() wrote %d times after a failed read", kv.sets)
	}
}

func TestSetStaleCleanupFailureIsOnlyLogged(t *testing.T) {
	buf := captureLogs(t)
	kv := &failingKV{KV: seeded(t, map[string]string{"v1": v1Data}), removeErr: errors.New("busy")}
	s := NewStore(kv, Defaults())

	if err := s.Set(context.Background(), Update{ShowMeg: boolPtr(true)}); err != nil {
		t.Fatalf("Set() error = %v; want nil", err)
	}
	if !strings.Contains(buf.String(), "stale settings cleanup failed") {
		t.Fatalf("expected cleanup log, got %q", buf.String())
	}
}

func TestSetQuotaExceeded(t *testing.T) {
	s := NewStore(NewMemoryKV(Quota{BytesPerItem: 64}), Defaults())
	err := s.Set(context.Background(), Update{ShowMeg: boolPtr(true)})
	if !errors.Is(err, ErrQuotaExceeded) || !apperr.HasCode(err, apperr.CodeStorage) {
		t.Fatalf("Set() error = %v; want STORAGE quota error", err)
	}
}

func TestSetRejectsUnknownLinkTarget(t *testing.T) {
	lt := LinkTarget("sideways")
	err := NewStore(NewMemoryKV(SyncQuota), Defaults()).Set(context.Background(), Update{BookLinkTarget: &lt})
	if !apperr.HasCode(err, apperr.CodeValidation) {
		t.Fatalf("Set() error = %v; want VALIDATION", err)
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	ctx := context.Background()
	src := NewStore(seeded(t, map[string]string{"v2": v2Data}), Defaults())

	data, err := src.Export(ctx)
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	var wrapper map[string]json.RawMessage
	if err := json.Unmarshal(data, &wrapper); err != nil {
		t.Fatalf("export is not JSON: %v", err)
	}
	if len(wrapper) != 1 || wrapper["v2"] == nil {
		t.Fatalf("export keys = %v; want only v2", keysOf(wrapper))
	}

	dst := NewStore(NewMemoryKV(SyncQuota), Defaults())
	if err := dst.Import(ctx, data); err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	if !reflect.DeepEqual(dst.Get(ctx), src.Get(ctx)) {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", dst.Get(ctx), src.Get(ctx))
	}
}

func TestImportOlderVersionIsUpgraded(t *testing.T) {
	ctx := context.Background()
	s := NewStore(NewMemoryKV(SyncQuota), Defaults())
	if err := s.Import(ctx, []byte(`{"v1": `+v1Data+`}`)); err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	got := s.Get(ctx)
	if got.PlaymarkDetailsMap["Zeta"].SortOrder != 1 {
		t.Fatalf("playmarks = %+v", got.PlaymarkDetailsMap)
	}
}

func TestImportMalformedIsStorageError(t *testing.T) {
	ctx := context.Background()
	kv := seeded(t, map[string]string{"v2": v2Data})
	s := NewStore(kv, Defaults())
	before := s.Get(ctx)

	for _, payload := range []string{`not json`, `{"v3": {}}`, `{"v2": [1]}`} {
		err := s.Import(ctx, []byte(payload))
		if !apperr.HasCode(err, apperr.CodeStorage) {
			t.Fatalf("Import(%s) error = %v; want STORAGE", payload, err)
		}
	}
	if !reflect.DeepEqual(s.Get(ctx), before) {
		t.Fatal("malformed import changed stored settings")
	}
}

func TestResetRestoresDefaults(t *testing.T) {
	ctx := context.Background()
	s := NewStore(seeded(t, map[string]string{"v2": v2Data}), Defaults())
	if err := s.Reset(ctx); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}
	if !reflect.DeepEqual(s.Get(ctx), Defaults()) {
		t.Fatal("Reset() did not restore defaults")
	}
}

func TestPlaymarks(t *testing.T) {
	ctx := context.Background()
	s := NewStore(NewMemoryKV(SyncQuota), Defaults())

	for _, name := range []string{"Props", "Dogs"} {
		if err := s.SavePlaymark(ctx, name, "https://host.example.com/"+name); err != nil {
			t.Fatalf("SavePlaymark(%s) error = %v", name, err)
		}
	}
	if err := s.SavePlaymark(ctx, "Props", "https://host.example.com/new"); err != nil {
		t.Fatalf("SavePlaymark() update error = %v", err)
	}

	got := s.Get(ctx).SortedPlaymarks()
	want := []NamedPlaymark{
		{Name: "Props", PlaymarkDetail: PlaymarkDetail{Playmark: "https://host.example.com/new", SortOrder: 0}},
		{Name: "Dogs", PlaymarkDetail: PlaymarkDetail{Playmark: "https://host.example.com/Dogs", SortOrder: 1}},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("SortedPlaymarks() = %+v; want %+v", got, want)
	}

	if err := s.DeletePlaymark(ctx, "Props"); err != nil {
		t.Fatalf("DeletePlaymark() error = %v", err)
	}
	if err := s.DeletePlaymark(ctx, "Props"); !apperr.HasCode(err, apperr.CodeNotFound) {
		t.Fatalf("DeletePlaymark(missing) error = %v; want NOT_FOUND", err)
	}
	if err := s.SavePlaymark(ctx, "  ", "x"); !apperr.HasCode(err, apperr.CodeValidation) {
		t.Fatalf("SavePlaymark(blank) error = %v; want VALIDATION", err)
	}
}

func TestPresets(t *testing.T) {
	ctx := context.Background()
	s := NewStore(NewMemoryKV(SyncQuota), Defaults())

	if err := s.StoreActiveBooks(ctx, "arizona", []string{"FanDuel", "DraftKings"}); err != nil {
		t.Fatalf("StoreActiveBooks() error = %v", err)
	}
	if err := s.StoreBookWeightings(ctx, "arizona", map[string]float64{"FanDuel": 2}); err != nil {
		t.Fatalf("StoreBookWeightings() error = %v", err)
	}
	got := s.Get(ctx)
	if !reflect.DeepEqual(got.ActiveBooksMap["arizona"], []string{"FanDuel", "DraftKings"}) {
		t.Fatalf("ActiveBooksMap = %+v", got.ActiveBooksMap)
	}
	if got.ActiveBookWeightingsMap["arizona"]["FanDuel"] != 2 {
		t.Fatalf("ActiveBookWeightingsMap = %+v", got.ActiveBookWeightingsMap)
	}
	if err := s.StoreActiveBooks(ctx, "", nil); !apperr.HasCode(err, apperr.CodeValidation) {
		t.Fatalf("StoreActiveBooks(blank) error = %v; want VALIDATION", err)
	}
	if err := s.StoreBookWeightings(ctx, "", nil); !apperr.HasCode(err, apperr.CodeValidation) {
		t.Fatalf("StoreBookWeightings(blank) error = %v; want VALIDATION", err)
	}
}

func TestFileKVPersistsAndEnforcesQuota(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "settings.json")
	kv := NewFileKV(path, Quota{BytesPerItem: 32})

	if err := kv.Set(ctx, map[string]json.RawMessage{"a": json.RawMessage(`{"x":1}`)}); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	err := kv.Set(ctx, map[string]json.RawMessage{"b": json.RawMessage(`"` + strings.Repeat("y", 64) + `"`)})
	if !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("Set(oversized) error = %v; want ErrQuotaExceeded", err)
	}

	reopened := NewFileKV(path, SyncQuota)
	items, err := reopened.Get(ctx)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if string(items["a"]) != `{"x":1}` || items["b"] != nil {
		t.Fatalf("items = %v", items)
	}

	if err := reopened.Remove(ctx, "a"); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if items, _ := reopened.Get(ctx, "a"); len(items) != 0 {
		t.Fatalf("Remove() left %v", items)
	}
	if err := reopened.Clear(ctx); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
}

func TestFileKVCorruptFile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "settings.json")
	if err := os.WriteFile(path, []byte("{broken"), 0o644); err != nil {
		t.Fatal(err)
	}
	kv := NewFileKV(path, SyncQuota)
	if _, err := kv.Get(ctx); err == nil {
		t.Fatal("Get() on corrupt file = nil error")
	}

	s := NewStore(kv, Defaults())
	if !reflect.DeepEqual(s.Get(ctx), Defaults()) {
		t.Fatal("Store.Get() on corrupt file should return defaults")
	}
	if err := s.Set(ctx, Update{ShowMeg: boolPtr(true)}); !apperr.HasCode(err, apperr.CodeStorage) {
		t.Fatalf("Set() on corrupt file error = %v; want STORAGE", err)
	}
}

func TestMaxItemsQuota(t *testing.T) {
	kv := NewMemoryKV(Quota{Items: 1})
	ctx := context.Background()
	if err := kv.Set(ctx, map[string]json.RawMessage{"a": json.RawMessage(`1`)}); err != nil {
		t.Fatal(err)
	}
	if err := kv.Set(ctx, map[string]json.RawMessage{"b": json.RawMessage(`2`)}); !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("Set() error = %v; want ErrQuotaExceeded", err)
	}
}

func keysOf(m map[string]json.RawMessage) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
