package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/dgnsrekt/booktabs/internal/backup"
)

func registerBackupHandlers(api huma.API, d Deps) {
	type metaOutput struct {
		Body backup.Meta
	}
	type listOutput struct {
		Body struct {
			Backups []backup.Meta `json:"backups"`
		}
	}
	type idInput struct {
		ID string `path:"id" doc:"Backup UUID"`
	}

	huma.Register(api, huma.Operation{OperationID: "list-backups", Method: http.MethodGet, Path: "/api/v1/backups", Summary: "List settings backups, newest first", Tags: []string{"Backups"}},
		func(ctx context.Context, input *struct{}) (*listOutput, error) {
			metas, err := d.Backups.List()
			if err != nil {
				return nil, mapErr(err)
			}
			out := &listOutput{}
			out.Body.Backups = metas
			return out, nil
		})

	huma.Register(api, huma.Operation{OperationID: "get-backup", Method: http.MethodGet, Path: "/api/v1/backups/{id}", Summary: "Get backup metadata", Tags: []string{"Backups"}},
		func(ctx context.Context, input *idInput) (*metaOutput, error) {
			meta, err := d.Backups.Get(input.ID)
			if err != nil {
				return nil, mapErr(err)
			}
			return &metaOutput{Body: meta}, nil
		})

	type rawOutput struct {
		ContentType string `header:"Content-Type"`
		Body        []byte
	}
	huma.Register(api, huma.Operation{OperationID: "download-backup", Method: http.MethodGet, Path: "/api/v1/backups/{id}/settings", Summary: "Download the backed-up settings document", Tags: []string{"Backups"}},
		func(ctx context.Context, input *idInput) (*rawOutput, error) {
			data, err := d.Backups.Read(input.ID)
			if err != nil {
				return nil, mapErr(err)
			}
			return &rawOutput{ContentType: "application/json", Body: data}, nil
		})

	huma.Register(api, huma.Operation{OperationID: "create-backup", Method: http.MethodPost, Path: "/api/v1/backups", Summary: "Back up the current settings", Tags: []string{"Backups"}},
		func(ctx context.Context, input *struct {
			Body struct {
				Reason string `json:"reason,omitempty" doc:"Free-form label, defaults to manual"`
			}
		}) (*metaOutput, error) {
			meta, err := d.Backups.Create(ctx, d.Settings, input.Body.Reason)
			if err != nil {
				return nil, mapErr(err)
			}
			return &metaOutput{Body: meta}, nil
		})

	huma.Register(api, huma.Operation{
		OperationID: "restore-backup",
		Method:      http.MethodPost,
		Path:        "/api/v1/backups/{id}/restore",
		Summary:     "Restore settings from a backup",
		Description: "The current settings are backed up first; the returned backup_id names that backup.",
		Tags:        []string{"Backups"},
	}, func(ctx context.Context, input *idInput) (*statusOutput, error) {
		pre, err := d.Backups.Restore(ctx, d.Settings, input.ID)
		if err := settingsChanged(ctx, d, "restore", input.ID, err); err != nil {
			return nil, err
		}
		return statusOK(pre.ID), nil
	})

	huma.Register(api, huma.Operation{OperationID: "delete-backup", Method: http.MethodDelete, Path: "/api/v1/backups/{id}", Summary: "Delete a backup", Tags: []string{"Backups"}},
		func(ctx context.Context, input *idInput) (*struct{}, error) {
			if err := d.Backups.Delete(input.ID); err != nil {
				return nil, mapErr(err)
			}
			return nil, nil
		})
}
