package books

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

// HomeTeamPlaceholder is replaced with the detected home team before navigation.
const HomeTeamPlaceholder = "${homeTeam}"

// BookDetail describes how to reach one sportsbook.
type BookDetail struct {
	Hostname    string `json:"hostname"`
	OddsGroup   string `json:"oddsGroup"`
	URLTemplate string `json:"urlTemplate"`
}

// NewBookDetail builds a BookDetail, deriving the hostname from the template's
// authority component.
func NewBookDetail(oddsGroup, urlTemplate string) (BookDetail, error) {
	host, err := HostnameOf(urlTemplate)
	if err != nil {
		return BookDetail{}, err
	}
	return BookDetail{
		Hostname:    host,
		OddsGroup:   oddsGroup,
		URLTemplate: urlTemplate,
	}, nil
}

// MustBookDetail is NewBookDetail for compiled-in tables.
func MustBookDetail(oddsGroup, urlTemplate string) BookDetail {
	bd, err := NewBookDetail(oddsGroup, urlTemplate)
	if err != nil {
		panic(err)
	}
	return bd
}

// HostnameOf returns the lower-cased hostname of a URL template. The
// placeholder is blanked first so it can never leak into the authority.
func HostnameOf(urlTemplate string) (string, error) {
	raw := strings.TrimSpace(strings.ReplaceAll(urlTemplate, HomeTeamPlaceholder, ""))
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("book url template %q: %w", urlTemplate, err)
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return "", fmt.Errorf("book url template %q: missing host", urlTemplate)
	}
	return host, nil
}

// UnmarshalJSON decodes a stored detail and re-derives the hostname; any
// stored hostname (or legacy "domain") is ignored.
func (bd *BookDetail) UnmarshalJSON(data []byte) error {
	var raw struct {
		OddsGroup   string `json:"oddsGroup"`
		URLTemplate string `json:"urlTemplate"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	built, err := NewBookDetail(raw.OddsGroup, raw.URLTemplate)
	if err != nil {
		return err
	}
	*bd = built
	return nil
}

// Named pairs a book identifier with its detail.
type Named struct {
	Book   string     `json:"book"`
	Detail BookDetail `json:"detail"`
}

// ByHostname indexes the map by hostname. When two books share a hostname the
// first in map order wins.
func ByHostname(m *Map) map[string]BookDetail {
	out := make(map[string]BookDetail, m.Len())
	m.Each(func(_ string, bd BookDetail) {
		if _, ok := out[bd.Hostname]; !ok {
			out[bd.Hostname] = bd
		}
	})
	return out
}

// OddsGroupPeers returns every entry sharing book's odds group, in map order,
// including book itself. An unknown book yields an empty slice. A book with
// an empty odds group has no peers but itself.
func OddsGroupPeers(m *Map, book string) []Named {
	bd, ok := m.Get(book)
	if !ok {
		return []Named{}
	}
	if bd.OddsGroup == "" {
		return []Named{{Book: book, Detail: bd}}
	}
	peers := make([]Named, 0, 1)
	m.Each(func(name string, other BookDetail) {
		if other.OddsGroup == bd.OddsGroup {
			peers = append(peers, Named{Book: name, Detail: other})
		}
	})
	return peers
}

// Hostnames returns the distinct hostnames of the map in map order.
func Hostnames(m *Map) []string {
	seen := make(map[string]bool, m.Len())
	out := make([]string, 0, m.Len())
	m.Each(func(_ string, bd BookDetail) {
		if bd.Hostname == "" || seen[bd.Hostname] {
			return
		}
		seen[bd.Hostname] = true
		out = append(out, bd.Hostname)
	})
	return out
}
