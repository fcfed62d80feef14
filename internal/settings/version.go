package settings

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"

	"github.com/dgnsrekt/booktabs/internal/books"
)

// Version is a settings schema tag; it doubles as the storage key the
// version's data lives under.
type Version string

const (
	// Legacy is the pre-versioning layout: {"settings": {book: {domain, urlTemplate}}}.
	Legacy Version = "settings"
	V1     Version = "v1"
	V2     Version = "v2"

	// Current is the canonical version every read migrates to.
	Current = V2
)

// Versions lists every known schema version, oldest first.
var Versions = []Version{Legacy, V1, V2}

// Record is a raw storage record keyed by version tag.
type Record map[string]json.RawMessage

// Versioned is one schema version's data, tagged explicitly.
type Versioned struct {
	Version Version         `json:"version"`
	Data    json.RawMessage `json:"data"`
}

// upgrade converts one version's data into the next version's data.
type upgrade struct {
	to Version
	fn func(json.RawMessage) (json.RawMessage, error)
}

// upgrades holds exactly one transition per non-current version.
var upgrades = map[Version]upgrade{
	Legacy: {to: V1, fn: upgradeLegacy},
	V1:     {to: V2, fn: upgradeV1},
}

// Keys returns the storage keys of every known version.
func Keys() []string {
	out := make([]string, 0, len(Versions))
	for _, v := range Versions {
		out = append(out, string(v))
	}
	return out
}

// StaleKeys returns the storage keys of every non-current version.
func StaleKeys() []string {
	out := make([]string, 0, len(Versions)-1)
	for _, v := range Versions {
		if v != Current {
			out = append(out, string(v))
		}
	}
	return out
}

// Candidates returns the non-empty versions present in the record, newest
// first, so the canonical version is always tried before older ones.
func Candidates(rec Record) []Versioned {
	out := make([]Versioned, 0, len(Versions))
	for i := len(Versions) - 1; i >= 0; i-- {
		v := Versions[i]
		data, ok := rec[string(v)]
		if !ok || isEmpty(data) {
			continue
		}
		out = append(out, Versioned{Version: v, Data: data})
	}
	return out
}

// Decode selects the version a record resolves to: the canonical key when
// present, else the newest non-empty prior version.
func Decode(rec Record) (Versioned, bool) {
	c := Candidates(rec)
	if len(c) == 0 {
		return Versioned{}, false
	}
	return c[0], true
}

// ParsePayload interprets an externally supplied settings document. Three
// shapes are accepted: a tagged {"version", "data"} object, a record wrapper
// such as {"v1": {...}}, or a bare settings object of the current or v1
// shape. The result is newest first.
func ParsePayload(data []byte) ([]Versioned, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, fmt.Errorf("settings payload: %w", err)
	}
	if obj == nil {
		return nil, fmt.Errorf("settings payload: expected object")
	}

	if rawVer, ok := obj["version"]; ok {
		if _, ok := obj["data"]; ok {
			var v Versioned
			if err := json.Unmarshal(data, &v); err != nil {
				return nil, fmt.Errorf("settings payload: %w", err)
			}
			if !known(v.Version) {
				return nil, fmt.Errorf("settings payload: unknown version %s", rawVer)
			}
			if isEmpty(v.Data) {
				return nil, fmt.Errorf("settings payload: empty %s data", v.Version)
			}
			return []Versioned{v}, nil
		}
	}

	if c := Candidates(Record(obj)); len(c) > 0 {
		return c, nil
	}

	switch {
	case obj["bookDetailsMap"] != nil && obj["playmarksMap"] != nil:
		return []Versioned{{Version: V1, Data: data}}, nil
	case obj["bookDetailsMap"] != nil || obj["playmarkDetailsMap"] != nil:
		return []Versioned{{Version: Current, Data: data}}, nil
	}
	return nil, fmt.Errorf("settings payload: no known settings version")
}

func known(v Version) bool {
	for _, k := range Versions {
		if k == v {
			return true
		}
	}
	return false
}

// Record wraps the settings under the canonical version key.
func (s Settings) Record() (Record, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshal settings: %w", err)
	}
	return Record{string(Current): data}, nil
}

// Migrate returns the current-version settings for a storage record using
// the compiled-in defaults.
func Migrate(rec Record) Settings {
	return MigrateWithDefaults(rec, Defaults())
}

// MigrateWithDefaults resolves a record to current-version settings. The
// canonical version wins wholesale when present; otherwise the newest prior
// version is upgraded step by step; otherwise defaults are returned. Never
// fails: undecodable versions are skipped.
func MigrateWithDefaults(rec Record, defaults Settings) Settings {
	for _, cand := range Candidates(rec) {
		s, err := ToCurrent(cand)
		if err != nil {
			slog.Warn("settings version unreadable, trying older", "version", cand.Version, "error", err)
			continue
		}
		return s.fillMissing(defaults)
	}
	return defaults.Clone()
}

// FromPayload resolves an externally supplied settings document to the
// current version, trying each candidate newest first. Missing fields are
// taken from defaults.
func FromPayload(data []byte, defaults Settings) (Settings, error) {
	cands, err := ParsePayload(data)
	if err != nil {
		return Settings{}, err
	}
	var lastErr error
	for _, cand := range cands {
		s, err := ToCurrent(cand)
		if err != nil {
			lastErr = err
			continue
		}
		return s.fillMissing(defaults), nil
	}
	return Settings{}, lastErr
}

// ToCurrent runs every upgrade from v's version up to Current and decodes
// the result.
func ToCurrent(v Versioned) (Settings, error) {
	data := v.Data
	ver := v.Version
	for ver != Current {
		up, ok := upgrades[ver]
		if !ok {
			return Settings{}, fmt.Errorf("no upgrade from settings version %q", ver)
		}
		next, err := up.fn(data)
		if err != nil {
			return Settings{}, fmt.Errorf("upgrade %s to %s: %w", ver, up.to, err)
		}
		data, ver = next, up.to
	}

	var s Settings
	if err := json.Unmarshal(data, &s); err != nil {
		return Settings{}, fmt.Errorf("decode settings %s: %w", Current, err)
	}
	return s, nil
}

type legacyBook struct {
	Domain      string `json:"domain"`
	URLTemplate string `json:"urlTemplate"`
}

type v1Settings struct {
	PlaymarksMap            map[string]string             `json:"playmarksMap"`
	BookDetailsMap          *books.Map                    `json:"bookDetailsMap"`
	ActiveBooksMap          map[string][]string           `json:"activeBooksMap"`
	ActiveBookWeightingsMap map[string]map[string]float64 `json:"activeBookWeightingsMap"`
}

// upgradeLegacy maps the flat book table to v1. Legacy books had no odds
// group, so each book becomes its own group.
func upgradeLegacy(data json.RawMessage) (json.RawMessage, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("legacy settings: expected object")
	}

	m := books.NewMap()
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		name, _ := tok.(string)
		var lb legacyBook
		if err := dec.Decode(&lb); err != nil {
			return nil, fmt.Errorf("legacy settings: %q: %w", name, err)
		}
		bd, err := books.NewBookDetail(name, lb.URLTemplate)
		if err != nil {
			return nil, err
		}
		m.Set(name, bd)
	}

	return json.Marshal(v1Settings{
		PlaymarksMap:            map[string]string{},
		BookDetailsMap:          m,
		ActiveBooksMap:          map[string][]string{},
		ActiveBookWeightingsMap: map[string]map[string]float64{},
	})
}

// upgradeV1 carries every v1 field forward; plain playmark URLs gain a sort
// order (alphabetical) and the v2-only fields take their defaults.
func upgradeV1(data json.RawMessage) (json.RawMessage, error) {
	var old v1Settings
	if err := json.Unmarshal(data, &old); err != nil {
		return nil, err
	}

	names := make([]string, 0, len(old.PlaymarksMap))
	for name := range old.PlaymarksMap {
		names = append(names, name)
	}
	sort.Strings(names)
	playmarks := make(map[string]PlaymarkDetail, len(names))
	for i, name := range names {
		playmarks[name] = PlaymarkDetail{Playmark: old.PlaymarksMap[name], SortOrder: i}
	}

	return json.Marshal(Settings{
		PlaymarkDetailsMap:      playmarks,
		BookDetailsMap:          old.BookDetailsMap,
		ActiveBooksMap:          old.ActiveBooksMap,
		ActiveBookWeightingsMap: old.ActiveBookWeightingsMap,
		BookLinkTarget:          NewTab,
		ShowMeg:                 false,
		NotifyPlays:             false,
	})
}

func isEmpty(data json.RawMessage) bool {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return true
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &obj); err == nil && len(obj) == 0 {
		return true
	}
	return false
}
