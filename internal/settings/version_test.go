package settings

import (
	"encoding/json"
	"reflect"
	"testing"

	"github.com/dgnsrekt/booktabs/internal/books"
)

func rec(t *testing.T, pairs map[string]string) Record {
	t.Helper()
	out := Record{}
	for k, v := range pairs {
		out[k] = json.RawMessage(v)
	}
	return out
}

const v1Data = `{
	"playmarksMap": {"Zeta": "https://host.example.com/z", "Alpha": "https://host.example.com/a"},
	"bookDetailsMap": {
		"A": {"oddsGroup": "X", "urlTemplate": "https://a.example.com/search?q=${homeTeam}"},
		"B": {"oddsGroup": "X", "urlTemplate": "https://b.example.com/"}
	},
	"activeBooksMap": {"main": ["A", "B"]},
	"activeBookWeightingsMap": {"main": {"A": 1.5}}
}`

const v2Data = `{
	"playmarkDetailsMap": {"Only": {"playmark": "https://host.example.com/o", "sortOrder": 0}},
	"bookDetailsMap": {"C": {"oddsGroup": "Y", "urlTemplate": "https://c.example.com/"}},
	"activeBooksMap": {},
	"activeBookWeightingsMap": {},
	"bookLinkTarget": "book tab",
	"showMeg": true,
	"notifyPlays": true
}`

const legacyData = `{
	"FanDuel": {"domain": "sportsbook.fanduel.com", "urlTemplate": "https://sportsbook.fanduel.com/search?q=${homeTeam}"},
	"DraftKings": {"domain": "sportsbook.draftkings.com", "urlTemplate": "https://sportsbook.draftkings.com/"}
}`

func remigrate(t *testing.T, s Settings) Settings {
	t.Helper()
	r, err := s.Record()
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	return Migrate(r)
}

func TestMigrateIdempotent(t *testing.T) {
	tests := []struct {
		name string
		rec  map[string]string
	}{
		{"empty", nil},
		{"null canonical", map[string]string{"v2": "null"}},
		{"empty canonical", map[string]string{"v2": "{}"}},
		{"v1 only", map[string]string{"v1": v1Data}},
		{"v2 only", map[string]string{"v2": v2Data}},
		{"both", map[string]string{"v1": v1Data, "v2": v2Data}},
		{"legacy only", map[string]string{"settings": legacyData}},
		{"partial canonical", map[string]string{"v2": `{"showMeg": true}`}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			once := Migrate(rec(t, tt.rec))
			twice := remigrate(t, once)
			if !reflect.DeepEqual(once, twice) {
				t.Fatalf("migrate not idempotent:\nonce  = %+v\ntwice = %+v", once, twice)
			}
		})
	}
}

func TestMigrateEmptyReturnsDefaults(t *testing.T) {
	for _, r := range []Record{nil, {}, rec(t, map[string]string{"v2": "{}", "v1": "null"})} {
		got := Migrate(r)
		if !reflect.DeepEqual(got, Defaults()) {
			t.Fatalf("Migrate(%v) = %+v; want defaults", r, got)
		}
	}
}

func TestMigrateV1Completeness(t *testing.T) {
	got := Migrate(rec(t, map[string]string{"v1": v1Data}))

	want := books.NewMap()
	want.Set("A", books.MustBookDetail("X", "https://a.example.com/search?q=${homeTeam}"))
	want.Set("B", books.MustBookDetail("X", "https://b.example.com/"))
	if !got.BookDetailsMap.Equal(want) {
		t.Fatalf("BookDetailsMap = %+v; want %+v", got.BookDetailsMap.Entries(), want.Entries())
	}
	if got.ShowMeg || got.NotifyPlays {
		t.Fatalf("showMeg=%v notifyPlays=%v; want false, false", got.ShowMeg, got.NotifyPlays)
	}
	if got.BookLinkTarget != NewTab {
		t.Fatalf("BookLinkTarget = %q; want %q", got.BookLinkTarget, NewTab)
	}
	wantPlaymarks := map[string]PlaymarkDetail{
		"Alpha": {Playmark: "https://host.example.com/a", SortOrder: 0},
		"Zeta":  {Playmark: "https://host.example.com/z", SortOrder: 1},
	}
	if !reflect.DeepEqual(got.PlaymarkDetailsMap, wantPlaymarks) {
		t.Fatalf("PlaymarkDetailsMap = %+v; want %+v", got.PlaymarkDetailsMap, wantPlaymarks)
	}
	if !reflect.DeepEqual(got.ActiveBooksMap, map[string][]string{"main": {"A", "B"}}) {
		t.Fatalf("ActiveBooksMap = %+v", got.ActiveBooksMap)
	}
	if got.ActiveBookWeightingsMap["main"]["A"] != 1.5 {
		t.Fatalf("ActiveBookWeightingsMap = %+v", got.ActiveBookWeightingsMap)
	}
}

func TestMigrateCanonicalWinsWholesale(t *testing.T) {
	got := Migrate(rec(t, map[string]string{"v1": v1Data, "v2": v2Data}))
	if got.BookDetailsMap.Len() != 1 {
		t.Fatalf("books = %v; want only the v2 book", got.BookDetailsMap.Keys())
	}
	if _, ok := got.BookDetailsMap.Get("A"); ok {
		t.Fatal("v1 book leaked into canonical settings")
	}
	if _, ok := got.PlaymarkDetailsMap["Alpha"]; ok {
		t.Fatal("v1 playmark leaked into canonical settings")
	}
	if got.BookLinkTarget != BookTab || !got.ShowMeg || !got.NotifyPlays {
		t.Fatalf("canonical fields lost: %+v", got)
	}
}

func TestMigrateCorruptCanonicalFallsThrough(t *testing.T) {
	got := Migrate(rec(t, map[string]string{"v1": v1Data, "v2": `[1, 2, 3]`}))
	if _, ok := got.BookDetailsMap.Get("A"); !ok {
		t.Fatalf("corrupt v2 should fall back to v1, got books %v", got.BookDetailsMap.Keys())
	}

	got = Migrate(rec(t, map[string]string{"v2": `{"bookDetailsMap": {"A": {"urlTemplate": "no host"}}}`}))
	if !reflect.DeepEqual(got, Defaults()) {
		t.Fatalf("corrupt v2 alone should yield defaults, got %+v", got)
	}
}

func TestMigrateFillsMissingCanonicalFields(t *testing.T) {
	got := Migrate(rec(t, map[string]string{"v2": `{"showMeg": true, "bookLinkTarget": "sideways"}`}))
	if !got.ShowMeg {
		t.Fatal("showMeg lost")
	}
	if got.BookLinkTarget != NewTab {
		t.Fatalf("BookLinkTarget = %q; want default", got.BookLinkTarget)
	}
	if !got.BookDetailsMap.Equal(Defaults().BookDetailsMap) {
		t.Fatal("missing bookDetailsMap should come from defaults")
	}
	if got.PlaymarkDetailsMap == nil || got.ActiveBooksMap == nil || got.ActiveBookWeightingsMap == nil {
		t.Fatalf("collections not normalized: %+v", got)
	}
}

func TestMigrateLegacy(t *testing.T) {
	got := Migrate(rec(t, map[string]string{"settings": legacyData}))
	if got := got.BookDetailsMap.Keys(); !reflect.DeepEqual(got, []string{"FanDuel", "DraftKings"}) {
		t.Fatalf("books = %v", got)
	}
	fd, _ := got.BookDetailsMap.Get("FanDuel")
	if fd.OddsGroup != "FanDuel" || fd.Hostname != "sportsbook.fanduel.com" {
		t.Fatalf("FanDuel = %+v", fd)
	}
}

func TestUpgradeTableReachesCurrent(t *testing.T) {
	for _, v := range Versions {
		seen := map[Version]bool{}
		for cur := v; cur != Current; {
			if seen[cur] {
				t.Fatalf("upgrade cycle at %q", cur)
			}
			seen[cur] = true
			up, ok := upgrades[cur]
			if !ok {
				t.Fatalf("no upgrade from %q", cur)
			}
			cur = up.to
		}
	}
	if len(upgrades) != len(Versions)-1 {
		t.Fatalf("len(upgrades) = %d; want %d", len(upgrades), len(Versions)-1)
	}
}

func TestParsePayload(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    Version
		wantErr bool
	}{
		{"tagged", `{"version": "v1", "data": ` + v1Data + `}`, V1, false},
		{"wrapper", `{"v2": ` + v2Data + `}`, V2, false},
		{"wrapper both", `{"v1": ` + v1Data + `, "v2": ` + v2Data + `}`, V2, false},
		{"bare current", v2Data, V2, false},
		{"bare v1", v1Data, V1, false},
		{"tagged unknown", `{"version": "v9", "data": {}}`, "", true},
		{"unrecognized", `{"hello": "world"}`, "", true},
		{"not json", `nope`, "", true},
		{"array", `[]`, "", true},
		{"null", `null`, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParsePayload([]byte(tt.payload))
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParsePayload() = %+v; want error", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParsePayload() error = %v", err)
			}
			if got[0].Version != tt.want {
				t.Fatalf("ParsePayload()[0].Version = %q; want %q", got[0].Version, tt.want)
			}
		})
	}
}

func TestRecordUsesCanonicalKey(t *testing.T) {
	r, err := Defaults().Record()
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if len(r) != 1 || r["v2"] == nil {
		t.Fatalf("Record() keys = %v; want only v2", r)
	}
}

func TestFromPayloadShapes(t *testing.T) {
	defaults := Defaults()

	wrapped, err := FromPayload([]byte(`{"v1":`+v1Data+`}`), defaults)
	if err != nil {
		t.Fatalf("FromPayload(v1 wrapper) = %v", err)
	}
	if got := wrapped.BookDetailsMap.Keys(); !reflect.DeepEqual(got, []string{"A", "B"}) {
		t.Fatalf("books = %v", got)
	}
	if wrapped.PlaymarkDetailsMap["Alpha"].Playmark != "https://host.example.com/a" {
		t.Fatalf("playmarks = %+v", wrapped.PlaymarkDetailsMap)
	}

	bare, err := FromPayload([]byte(`{"bookDetailsMap":{"C":{"oddsGroup":"Y","urlTemplate":"https://c.example.com/"}}}`), defaults)
	if err != nil {
		t.Fatalf("FromPayload(bare) = %v", err)
	}
	if bare.BookLinkTarget != NewTab || bare.PlaymarkDetailsMap == nil || bare.BookDetailsMap.Len() != 1 {
		t.Fatalf("bare = %+v", bare)
	}

	if _, err := FromPayload([]byte(`{"unrelated":true}`), defaults); err == nil {
		t.Fatal("FromPayload(unknown shape) = nil error")
	}
	if _, err := FromPayload([]byte(`[1,2]`), defaults); err == nil {
		t.Fatal("FromPayload(array) = nil error")
	}
}
