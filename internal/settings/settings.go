package settings

import (
	"sort"

	"github.com/dgnsrekt/booktabs/internal/books"
)

// LinkTarget selects how a book click opens tabs.
type LinkTarget string

const (
	// NewTab always opens fresh tabs next to the anchor.
	NewTab LinkTarget = "new tab"
	// BookTab reuses one tab per book, navigating it in place.
	BookTab LinkTarget = "book tab"
)

// Valid reports whether t is a known link target.
func (t LinkTarget) Valid() bool {
	return t == NewTab || t == BookTab
}

// PlaymarkDetail is a saved bookmark to a filtered view on the host site.
type PlaymarkDetail struct {
	Playmark  string `json:"playmark"`
	SortOrder int    `json:"sortOrder"`
}

// NamedPlaymark pairs a playmark name with its detail.
type NamedPlaymark struct {
	Name string `json:"name"`
	PlaymarkDetail
}

// Settings is the current (v2) settings shape.
type Settings struct {
	PlaymarkDetailsMap      map[string]PlaymarkDetail     `json:"playmarkDetailsMap"`
	BookDetailsMap          *books.Map                    `json:"bookDetailsMap"`
	ActiveBooksMap          map[string][]string           `json:"activeBooksMap"`
	ActiveBookWeightingsMap map[string]map[string]float64 `json:"activeBookWeightingsMap"`
	BookLinkTarget          LinkTarget                    `json:"bookLinkTarget"`
	ShowMeg                 bool                          `json:"showMeg"`
	NotifyPlays             bool                          `json:"notifyPlays"`
}

// Clone returns a deep copy.
func (s Settings) Clone() Settings {
	out := s
	out.PlaymarkDetailsMap = make(map[string]PlaymarkDetail, len(s.PlaymarkDetailsMap))
	for k, v := range s.PlaymarkDetailsMap {
		out.PlaymarkDetailsMap[k] = v
	}
	out.BookDetailsMap = s.BookDetailsMap.Clone()
	out.ActiveBooksMap = make(map[string][]string, len(s.ActiveBooksMap))
	for k, v := range s.ActiveBooksMap {
		out.ActiveBooksMap[k] = append([]string(nil), v...)
	}
	out.ActiveBookWeightingsMap = make(map[string]map[string]float64, len(s.ActiveBookWeightingsMap))
	for k, v := range s.ActiveBookWeightingsMap {
		w := make(map[string]float64, len(v))
		for book, weight := range v {
			w[book] = weight
		}
		out.ActiveBookWeightingsMap[k] = w
	}
	return out
}

// SortedPlaymarks returns playmarks ordered by sort order, then name.
func (s Settings) SortedPlaymarks() []NamedPlaymark {
	out := make([]NamedPlaymark, 0, len(s.PlaymarkDetailsMap))
	for name, pd := range s.PlaymarkDetailsMap {
		out = append(out, NamedPlaymark{Name: name, PlaymarkDetail: pd})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SortOrder != out[j].SortOrder {
			return out[i].SortOrder < out[j].SortOrder
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// fillMissing replaces absent fields with the matching field of defaults so
// the result is always fully populated.
func (s Settings) fillMissing(defaults Settings) Settings {
	if s.PlaymarkDetailsMap == nil {
		s.PlaymarkDetailsMap = defaults.Clone().PlaymarkDetailsMap
	}
	if s.BookDetailsMap == nil {
		s.BookDetailsMap = defaults.BookDetailsMap.Clone()
	}
	if s.ActiveBooksMap == nil {
		s.ActiveBooksMap = map[string][]string{}
	}
	if s.ActiveBookWeightingsMap == nil {
		s.ActiveBookWeightingsMap = map[string]map[string]float64{}
	}
	if !s.BookLinkTarget.Valid() {
		s.BookLinkTarget = defaults.BookLinkTarget
		if !s.BookLinkTarget.Valid() {
			s.BookLinkTarget = NewTab
		}
	}
	return s
}

// Update is a partial settings change. Nil fields are left untouched.
type Update struct {
	PlaymarkDetailsMap      map[string]PlaymarkDetail     `json:"playmarkDetailsMap,omitempty"`
	BookDetailsMap          *books.Map                    `json:"bookDetailsMap,omitempty"`
	ActiveBooksMap          map[string][]string           `json:"activeBooksMap,omitempty"`
	ActiveBookWeightingsMap map[string]map[string]float64 `json:"activeBookWeightingsMap,omitempty"`
	BookLinkTarget          *LinkTarget                   `json:"bookLinkTarget,omitempty"`
	ShowMeg                 *bool                         `json:"showMeg,omitempty"`
	NotifyPlays             *bool                         `json:"notifyPlays,omitempty"`
}

// Apply returns s with the update merged in.
func (u Update) Apply(s Settings) Settings {
	out := s.Clone()
	if u.PlaymarkDetailsMap != nil {
		out.PlaymarkDetailsMap = u.PlaymarkDetailsMap
	}
	if u.BookDetailsMap != nil {
		out.BookDetailsMap = u.BookDetailsMap.Clone()
	}
	if u.ActiveBooksMap != nil {
		out.ActiveBooksMap = u.ActiveBooksMap
	}
	if u.ActiveBookWeightingsMap != nil {
		out.ActiveBookWeightingsMap = u.ActiveBookWeightingsMap
	}
	if u.BookLinkTarget != nil {
		out.BookLinkTarget = *u.BookLinkTarget
	}
	if u.ShowMeg != nil {
		out.ShowMeg = *u.ShowMeg
	}
	if u.NotifyPlays != nil {
		out.NotifyPlays = *u.NotifyPlays
	}
	return out
}
