package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/dgnsrekt/booktabs/internal/apperr"
	"github.com/dgnsrekt/booktabs/internal/events"
	"github.com/dgnsrekt/booktabs/internal/settings"
)

type settingsOutput struct {
	Body settings.Settings
}

type statusOutput struct {
	Body struct {
		Status   string `json:"status"`
		BackupID string `json:"backup_id,omitempty"`
	}
}

type settingsEvent struct {
	Op   string `json:"op"`
	Name string `json:"name,omitempty"`
}

// settingsChanged reports the outcome of a settings write: a storage failure
// goes to the notifier, a success to the event stream.
func settingsChanged(ctx context.Context, d Deps, op, name string, err error) error {
	if err == nil {
		d.Events.Publish(events.TypeSettings, settingsEvent{Op: op, Name: name})
		return nil
	}
	if apperr.HasCode(err, apperr.CodeStorage) && d.Notifier != nil {
		go func(ctx context.Context) {
			_ = d.Notifier.StorageFailure(ctx, op+" settings", err)
		}(context.WithoutCancel(ctx))
	}
	return mapErr(err)
}

func statusOK(backupID string) *statusOutput {
	out := &statusOutput{}
	out.Body.Status = "ok"
	out.Body.BackupID = backupID
	return out
}

func registerSettingsHandlers(api huma.API, d Deps) {
	huma.Register(api, huma.Operation{OperationID: "get-settings", Method: http.MethodGet, Path: "/api/v1/settings", Summary: "Get current settings", Tags: []string{"Settings"}},
		func(ctx context.Context, input *struct{}) (*settingsOutput, error) {
			out := &settingsOutput{}
			out.Body = d.Settings.Get(ctx)
			return out, nil
		})

	type rawInput struct {
		RawBody []byte `contentType:"application/json"`
	}

	huma.Register(api, huma.Operation{
		OperationID: "patch-settings",
		Method:      http.MethodPatch,
		Path:        "/api/v1/settings",
		Summary:     "Merge a partial settings update",
		Description: "Fields absent from the body are left untouched.",
		Tags:        []string{"Settings"},
	}, func(ctx context.Context, input *rawInput) (*settingsOutput, error) {
		var u settings.Update
		if err := json.Unmarshal(input.RawBody, &u); err != nil {
			return nil, huma.Error400BadRequest("malformed settings update", err)
		}
		if err := settingsChanged(ctx, d, "update", "", d.Settings.Set(ctx, u)); err != nil {
			return nil, err
		}
		out := &settingsOutput{}
		out.Body = d.Settings.Get(ctx)
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "put-settings",
		Method:      http.MethodPut,
		Path:        "/api/v1/settings",
		Summary:     "Replace settings",
		Description: "Accepts the latest settings object or any versioned wrapper such as {\"v1\": {...}}.",
		Tags:        []string{"Settings"},
	}, func(ctx context.Context, input *rawInput) (*settingsOutput, error) {
		next, err := settings.FromPayload(input.RawBody, d.Settings.Defaults())
		if err != nil {
			return nil, huma.Error400BadRequest("malformed settings", err)
		}
		if err := settingsChanged(ctx, d, "replace", "", d.Settings.Replace(ctx, next)); err != nil {
			return nil, err
		}
		out := &settingsOutput{}
		out.Body = d.Settings.Get(ctx)
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "reset-settings",
		Method:      http.MethodPost,
		Path:        "/api/v1/settings/reset",
		Summary:     "Reset settings to defaults",
		Description: "The current settings are backed up first.",
		Tags:        []string{"Settings"},
	}, func(ctx context.Context, input *struct{}) (*statusOutput, error) {
		pre, err := d.Backups.Create(ctx, d.Settings, "pre-reset")
		if err != nil {
			return nil, mapErr(err)
		}
		if err := settingsChanged(ctx, d, "reset", "", d.Settings.Reset(ctx)); err != nil {
			return nil, err
		}
		return statusOK(pre.ID), nil
	})

	type exportOutput struct {
		ContentType        string `header:"Content-Type"`
		ContentDisposition string `header:"Content-Disposition"`
		Body               []byte
	}
	huma.Register(api, huma.Operation{OperationID: "export-settings", Method: http.MethodGet, Path: "/api/v1/settings/export", Summary: "Export settings as a versioned JSON document", Tags: []string{"Settings"}},
		func(ctx context.Context, input *struct{}) (*exportOutput, error) {
			data, err := d.Settings.Export(ctx)
			if err != nil {
				return nil, mapErr(err)
			}
			return &exportOutput{
				ContentType:        "application/json",
				ContentDisposition: `attachment; filename="booktabs-settings-` + time.Now().UTC().Format("20060102") + `.json"`,
				Body:               data,
			}, nil
		})

	huma.Register(api, huma.Operation{
		OperationID: "import-settings",
		Method:      http.MethodPost,
		Path:        "/api/v1/settings/import",
		Summary:     "Import an exported settings document",
		Description: "Any known settings version is accepted. The current settings are backed up first.",
		Tags:        []string{"Settings"},
	}, func(ctx context.Context, input *rawInput) (*statusOutput, error) {
		pre, err := d.Backups.Create(ctx, d.Settings, "pre-import")
		if err != nil {
			return nil, mapErr(err)
		}
		if err := settingsChanged(ctx, d, "import", "", d.Settings.Import(ctx, input.RawBody)); err != nil {
			return nil, err
		}
		slog.Info("settings imported", "bytes", len(input.RawBody), "backup_id", pre.ID)
		return statusOK(pre.ID), nil
	})

	type nameInput struct {
		Name string `path:"name" doc:"Preset or playmark name"`
	}

	huma.Register(api, huma.Operation{OperationID: "store-active-books", Method: http.MethodPut, Path: "/api/v1/settings/active-books/{name}", Summary: "Save a named active-books preset", Tags: []string{"Settings"}},
		func(ctx context.Context, input *struct {
			Name string `path:"name" doc:"Preset or playmark name"`
			Body struct {
				Books []string `json:"books" doc:"Book identifiers in the preset"`
			}
		}) (*statusOutput, error) {
			err := d.Settings.StoreActiveBooks(ctx, input.Name, input.Body.Books)
			if err := settingsChanged(ctx, d, "store active books", input.Name, err); err != nil {
				return nil, err
			}
			return statusOK(""), nil
		})

	huma.Register(api, huma.Operation{OperationID: "store-book-weightings", Method: http.MethodPut, Path: "/api/v1/settings/weightings/{name}", Summary: "Save a named book-weightings preset", Tags: []string{"Settings"}},
		func(ctx context.Context, input *struct {
			Name string `path:"name" doc:"Preset or playmark name"`
			Body struct {
				Weights map[string]float64 `json:"weights" doc:"Weight per book identifier"`
			}
		}) (*statusOutput, error) {
			err := d.Settings.StoreBookWeightings(ctx, input.Name, input.Body.Weights)
			if err := settingsChanged(ctx, d, "store book weightings", input.Name, err); err != nil {
				return nil, err
			}
			return statusOK(""), nil
		})

	huma.Register(api, huma.Operation{OperationID: "save-playmark", Method: http.MethodPut, Path: "/api/v1/settings/playmarks/{name}", Summary: "Add or update a playmark", Tags: []string{"Settings"}},
		func(ctx context.Context, input *struct {
			Name string `path:"name" doc:"Preset or playmark name"`
			Body struct {
				URL string `json:"url" required:"true" doc:"Host-site URL the playmark opens"`
			}
		}) (*statusOutput, error) {
			err := d.Settings.SavePlaymark(ctx, input.Name, input.Body.URL)
			if err := settingsChanged(ctx, d, "save playmark", input.Name, err); err != nil {
				return nil, err
			}
			return statusOK(""), nil
		})

	huma.Register(api, huma.Operation{OperationID: "delete-playmark", Method: http.MethodDelete, Path: "/api/v1/settings/playmarks/{name}", Summary: "Delete a playmark", Tags: []string{"Settings"}},
		func(ctx context.Context, input *nameInput) (*statusOutput, error) {
			err := d.Settings.DeletePlaymark(ctx, input.Name)
			if err := settingsChanged(ctx, d, "delete playmark", input.Name, err); err != nil {
				return nil, err
			}
			return statusOK(""), nil
		})

	type playmarksOutput struct {
		Body struct {
			Playmarks []settings.NamedPlaymark `json:"playmarks"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "list-playmarks", Method: http.MethodGet, Path: "/api/v1/settings/playmarks", Summary: "List playmarks in display order", Tags: []string{"Settings"}},
		func(ctx context.Context, input *struct{}) (*playmarksOutput, error) {
			out := &playmarksOutput{}
			out.Body.Playmarks = d.Settings.Get(ctx).SortedPlaymarks()
			return out, nil
		})
}
