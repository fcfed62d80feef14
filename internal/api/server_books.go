package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/dgnsrekt/booktabs/internal/books"
	"github.com/dgnsrekt/booktabs/internal/tabs"
)

type bookEntry struct {
	Book        string `json:"book"`
	Hostname    string `json:"hostname"`
	OddsGroup   string `json:"odds_group"`
	URLTemplate string `json:"url_template"`
}

func toEntries(named []books.Named) []bookEntry {
	out := make([]bookEntry, 0, len(named))
	for _, n := range named {
		out = append(out, bookEntry{
			Book:        n.Book,
			Hostname:    n.Detail.Hostname,
			OddsGroup:   n.Detail.OddsGroup,
			URLTemplate: n.Detail.URLTemplate,
		})
	}
	return out
}

func registerBookHandlers(api huma.API, d Deps) {
	type listOutput struct {
		Body struct {
			Books []bookEntry `json:"books"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "list-books", Method: http.MethodGet, Path: "/api/v1/books", Summary: "List configured books in open order", Tags: []string{"Books"}},
		func(ctx context.Context, input *struct{}) (*listOutput, error) {
			out := &listOutput{}
			out.Body.Books = toEntries(d.Settings.Get(ctx).BookDetailsMap.Entries())
			return out, nil
		})

	type bookInput struct {
		Book string `path:"book" doc:"Book identifier, e.g. DraftKings"`
	}

	type peersOutput struct {
		Body struct {
			Book  string      `json:"book"`
			Peers []bookEntry `json:"peers"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "book-peers", Method: http.MethodGet, Path: "/api/v1/books/{book}/peers", Summary: "List books sharing an odds group", Tags: []string{"Books"}},
		func(ctx context.Context, input *bookInput) (*peersOutput, error) {
			m := d.Settings.Get(ctx).BookDetailsMap
			if _, ok := m.Get(input.Book); !ok {
				return nil, huma.Error404NotFound("book not found: " + input.Book)
			}
			out := &peersOutput{}
			out.Body.Book = input.Book
			out.Body.Peers = toEntries(books.OddsGroupPeers(m, input.Book))
			return out, nil
		})

	type urlOutput struct {
		Body struct {
			Book string `json:"book"`
			URL  string `json:"url"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "book-url", Method: http.MethodGet, Path: "/api/v1/books/{book}/url", Summary: "Resolve the URL a book would open for a game", Tags: []string{"Books"}},
		func(ctx context.Context, input *struct {
			Book     string `path:"book" doc:"Book identifier, e.g. DraftKings"`
			HomeTeam string `query:"home_team" doc:"Home team substituted into the URL template"`
			Sport    string `query:"sport"`
			League   string `query:"league"`
		}) (*urlOutput, error) {
			detail, ok := d.Settings.Get(ctx).BookDetailsMap.Get(input.Book)
			if !ok {
				return nil, huma.Error404NotFound("book not found: " + input.Book)
			}
			var gi *tabs.GameInfo
			if input.HomeTeam != "" || input.Sport != "" || input.League != "" {
				gi = &tabs.GameInfo{HomeTeam: input.HomeTeam, Sport: input.Sport, League: input.League}
			}
			out := &urlOutput{}
			out.Body.Book = input.Book
			out.Body.URL = tabs.ResolveURL(input.Book, detail, gi, d.Overrides)
			return out, nil
		})
}
