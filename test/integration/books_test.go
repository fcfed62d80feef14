//go:build integration

package integration

import (
	"net/http"
	"net/url"
	"testing"
)

type bookEntry struct {
	Book        string `json:"book"`
	Hostname    string `json:"hostname"`
	OddsGroup   string `json:"odds_group"`
	URLTemplate string `json:"url_template"`
}

func TestListBooksAndPeers(t *testing.T) {
	resp := env.GET(t, "/api/v1/books")
	requireStatus(t, resp, http.StatusOK)
	list := decodeJSON[struct {
		Books []bookEntry `json:"books"`
	}](t, resp)
	if len(list.Books) == 0 {
		t.Skip("no books configured")
	}
	first := list.Books[0]
	if first.Hostname == "" {
		t.Fatalf("book entry = %+v", first)
	}

	resp = env.GET(t, "/api/v1/books/"+url.PathEscape(first.Book)+"/peers")
	requireStatus(t, resp, http.StatusOK)
	peers := decodeJSON[struct {
		Book  string      `json:"book"`
		Peers []bookEntry `json:"peers"`
	}](t, resp)
	found := false
	for _, p := range peers.Peers {
		if p.OddsGroup != first.OddsGroup {
			t.Fatalf("peer %s in group %s; want %s", p.Book, p.OddsGroup, first.OddsGroup)
		}
		if p.Book == first.Book {
			found = true
		}
	}
	if !found {
		t.Fatalf("%s missing from its own peers: %+v", first.Book, peers.Peers)
	}
}

func TestBookURLUnknownBook(t *testing.T) {
	resp := env.GET(t, "/api/v1/books/NoSuchBook/url?home_team=Lakers")
	requireStatus(t, resp, http.StatusNotFound)
	resp.Body.Close()
}
