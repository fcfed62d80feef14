package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/dgnsrekt/booktabs/internal/tabs"
)

func registerTabHandlers(api huma.API, d Deps) {
	type listOutput struct {
		Body struct {
			Tabs []tabs.Tab `json:"tabs"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "list-tabs", Method: http.MethodGet, Path: "/api/v1/tabs", Summary: "List open tabs in strip order", Tags: []string{"Tabs"}},
		func(ctx context.Context, input *struct {
			Pattern string `query:"pattern" default:"<all_urls>" doc:"Match pattern, e.g. https://*/*"`
		}) (*listOutput, error) {
			open, err := d.Browser.Query(ctx, input.Pattern)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &listOutput{}
			out.Body.Tabs = open
			if out.Body.Tabs == nil {
				out.Body.Tabs = []tabs.Tab{}
			}
			return out, nil
		})
}
