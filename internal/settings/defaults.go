package settings

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/dgnsrekt/booktabs/internal/books"
)

type defaultBook struct {
	name        string
	oddsGroup   string
	urlTemplate string
}

// Kambi-powered books display identical lines and launch together.
var defaultBooks = []defaultBook{
	{"BetMGM", "BetMGM", "https://sports.az.betmgm.com/en/sports"},
	{"BetRivers", "Kambi", "https://az.betrivers.com"},
	{"Desert Diamond", "Kambi", "https://www.playdesertdiamond.com/en/sports#home"},
	{"Unibet", "Kambi", "https://az.unibet.com/sports#home"},
	{"Betway", "Betway", "https://az.betway.com/sports/home"},
	{"Caesars", "Caesars", "https://sportsbook.caesars.com/us/az/bet/"},
	{"ESPN Bet", "ESPN Bet", "https://espnbet.com/search?searchTerm=${homeTeam}"},
	{"Fliff", "Fliff", "https://sports.getfliff.com/"},
	{"Hard Rock Bet", "Hard Rock Bet", "https://app.hardrock.bet"},
	{"FanDuel", "FanDuel", "https://sportsbook.fanduel.com/search?q=${homeTeam}"},
	{"DraftKings", "DraftKings", "https://sportsbook.draftkings.com/"},
	{"Pinnacle", "Pinnacle", "https://www.pinnacle.com/en/search/${homeTeam}"},
	{"SuperBook", "SuperBook", "https://az.superbook.com/sports"},
	{"WynnBET", "WynnBET", "https://bet.wynnbet.com/sports/us/sports/recommendations"},
}

// Defaults returns the compiled-in settings. Every call returns a fresh copy.
func Defaults() Settings {
	m := books.NewMap()
	for _, b := range defaultBooks {
		m.Set(b.name, books.MustBookDetail(b.oddsGroup, b.urlTemplate))
	}
	return Settings{
		PlaymarkDetailsMap:      map[string]PlaymarkDetail{},
		BookDetailsMap:          m,
		ActiveBooksMap:          map[string][]string{},
		ActiveBookWeightingsMap: map[string]map[string]float64{},
		BookLinkTarget:          NewTab,
		ShowMeg:                 false,
		NotifyPlays:             false,
	}
}

// DefaultsFile is the YAML layout accepted by LoadDefaultsFile. Books and
// playmarks are lists so their order survives decoding.
type DefaultsFile struct {
	BookLinkTarget string `yaml:"bookLinkTarget"`
	ShowMeg        bool   `yaml:"showMeg"`
	NotifyPlays    bool   `yaml:"notifyPlays"`
	Books          []struct {
		Name        string `yaml:"name"`
		OddsGroup   string `yaml:"oddsGroup"`
		URLTemplate string `yaml:"urlTemplate"`
	} `yaml:"books"`
	Playmarks []struct {
		Name string `yaml:"name"`
		URL  string `yaml:"url"`
	} `yaml:"playmarks"`
	ActiveBooks map[string][]string           `yaml:"activeBooks"`
	Weightings  map[string]map[string]float64 `yaml:"weightings"`
}

// LoadDefaultsFile reads a YAML defaults file. An empty path returns the
// compiled-in defaults.
func LoadDefaultsFile(path string) (Settings, error) {
	if strings.TrimSpace(path) == "" {
		return Defaults(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("read defaults file: %w", err)
	}
	return ParseDefaults(b)
}

// ParseDefaults decodes YAML defaults. Fields left out fall back to the
// compiled-in defaults; a file with no books keeps the compiled-in books.
func ParseDefaults(b []byte) (Settings, error) {
	var f DefaultsFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return Settings{}, fmt.Errorf("parse defaults file: %w", err)
	}

	out := Defaults()
	if len(f.Books) > 0 {
		m := books.NewMap()
		for _, fb := range f.Books {
			if strings.TrimSpace(fb.Name) == "" {
				return Settings{}, fmt.Errorf("defaults file: book with empty name")
			}
			bd, err := books.NewBookDetail(fb.OddsGroup, fb.URLTemplate)
			if err != nil {
				return Settings{}, fmt.Errorf("defaults file: book %q: %w", fb.Name, err)
			}
			m.Set(fb.Name, bd)
		}
		out.BookDetailsMap = m
	}
	for i, p := range f.Playmarks {
		if strings.TrimSpace(p.Name) == "" {
			return Settings{}, fmt.Errorf("defaults file: playmark with empty name")
		}
		out.PlaymarkDetailsMap[p.Name] = PlaymarkDetail{Playmark: p.URL, SortOrder: i}
	}
	for name, list := range f.ActiveBooks {
		out.ActiveBooksMap[name] = list
	}
	for name, w := range f.Weightings {
		out.ActiveBookWeightingsMap[name] = w
	}
	if f.BookLinkTarget != "" {
		lt := LinkTarget(f.BookLinkTarget)
		if !lt.Valid() {
			return Settings{}, fmt.Errorf("defaults file: unknown bookLinkTarget %q", f.BookLinkTarget)
		}
		out.BookLinkTarget = lt
	}
	out.ShowMeg = f.ShowMeg
	out.NotifyPlays = f.NotifyPlays
	return out, nil
}
