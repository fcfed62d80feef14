package tabs

import (
	"strings"

	"github.com/dgnsrekt/booktabs/internal/books"
)

// GameInfo is the context scraped from the host page at click time. Every
// field is optional.
type GameInfo struct {
	HomeTeam string `json:"homeTeam,omitempty"`
	Sport    string `json:"sport,omitempty"`
	League   string `json:"league,omitempty"`
}

// Override builds a book-specific URL. ok=false defers to the template.
type Override func(detail books.BookDetail, gi *GameInfo) (url string, ok bool)

// Overrides maps a book identifier to its URL strategy.
type Overrides map[string]Override

// DefaultOverrides returns the books whose landing pages are built from
// sport and league rather than a home-team search.
func DefaultOverrides() Overrides {
	return Overrides{
		"DraftKings": draftKingsLeague,
		"BetMGM":     betMGMSport,
	}
}

// ResolveURL computes the URL to open for a book. An override wins when it
// applies; otherwise the home team replaces the placeholder. With no home
// team the placeholder is left in place.
func ResolveURL(book string, detail books.BookDetail, gi *GameInfo, overrides Overrides) string {
	if fn, ok := overrides[book]; ok && fn != nil {
		if u, ok := fn(detail, gi); ok {
			return u
		}
	}
	if gi == nil {
		return detail.URLTemplate
	}
	team := strings.TrimSpace(gi.HomeTeam)
	if team == "" {
		return detail.URLTemplate
	}
	return strings.ReplaceAll(detail.URLTemplate, books.HomeTeamPlaceholder, team)
}

func draftKingsLeague(detail books.BookDetail, gi *GameInfo) (string, bool) {
	if gi == nil {
		return "", false
	}
	sport, league := slug(gi.Sport), slug(gi.League)
	if sport == "" || league == "" {
		return "", false
	}
	return "https://" + detail.Hostname + "/leagues/" + sport + "/" + league, true
}

func betMGMSport(detail books.BookDetail, gi *GameInfo) (string, bool) {
	if gi == nil {
		return "", false
	}
	sport := slug(gi.Sport)
	if sport == "" {
		return "", false
	}
	return "https://" + detail.Hostname + "/en/sports/" + sport, true
}

func slug(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), "-")
}
