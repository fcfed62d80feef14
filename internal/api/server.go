package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dgnsrekt/booktabs/internal/apperr"
	"github.com/dgnsrekt/booktabs/internal/backup"
	"github.com/dgnsrekt/booktabs/internal/bridge"
	"github.com/dgnsrekt/booktabs/internal/events"
	"github.com/dgnsrekt/booktabs/internal/notify"
	"github.com/dgnsrekt/booktabs/internal/settings"
	"github.com/dgnsrekt/booktabs/internal/tabs"
)

// MessageHandler runs bridge messages.
type MessageHandler interface {
	Handle(ctx context.Context, msg bridge.Message) bridge.Reply
}

// SettingsStore is the settings surface exposed over HTTP.
type SettingsStore interface {
	Get(ctx context.Context) settings.Settings
	Set(ctx context.Context, u settings.Update) error
	Replace(ctx context.Context, s settings.Settings) error
	Reset(ctx context.Context) error
	Export(ctx context.Context) ([]byte, error)
	Import(ctx context.Context, data []byte) error
	Defaults() settings.Settings
	StoreActiveBooks(ctx context.Context, name string, list []string) error
	StoreBookWeightings(ctx context.Context, name string, weights map[string]float64) error
	SavePlaymark(ctx context.Context, name, url string) error
	DeletePlaymark(ctx context.Context, name string) error
}

// Deps wires the server to the rest of the controller. Events and Notifier
// may be nil.
type Deps struct {
	Messages  MessageHandler
	Settings  SettingsStore
	Browser   tabs.Browser
	Backups   *backup.Store
	Events    *events.Broker
	Notifier  *notify.Notifier
	Overrides tabs.Overrides
}

type healthOutput struct {
	Body struct {
		Status   string `json:"status"`
		CDP      string `json:"cdp"`
		Tabs     int    `json:"tabs"`
		Error    string `json:"error,omitempty"`
		Watchers int    `json:"event_subscribers"`
	}
}

func NewServer(d Deps) http.Handler {
	if d.Overrides == nil {
		d.Overrides = tabs.DefaultOverrides()
	}

	router := chi.NewMux()
	router.Use(middleware.RequestID)
	router.Use(requestLogger)
	router.Use(middleware.Recoverer)

	cfg := huma.DefaultConfig("Booktabs Controller API", "1.0.0")
	cfg.DocsPath = ""
	api := humachi.New(router, cfg)

	router.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		if _, err := w.Write([]byte(docsHTML)); err != nil {
			slog.Debug("docs response write failed", "error", err)
		}
	})
	router.Get("/docs/bridge", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		if _, err := w.Write([]byte(bridgeDocsHTML)); err != nil {
			slog.Debug("bridge docs response write failed", "error", err)
		}
	})
	router.Get("/api/v1/messages/ws", messagesWSHandler(d.Messages))
	router.Get("/api/v1/events", events.SSEHandler(d.Events))

	huma.Register(api, huma.Operation{OperationID: "health", Method: http.MethodGet, Path: "/health", Summary: "Controller and CDP health", Tags: []string{"Health"}},
		func(ctx context.Context, input *struct{}) (*healthOutput, error) {
			out := &healthOutput{}
			out.Body.Status = "ok"
			out.Body.CDP = "ok"
			out.Body.Watchers = d.Events.ClientCount()
			open, err := d.Browser.Query(ctx, "<all_urls>")
			if err != nil {
				out.Body.Status = "degraded"
				out.Body.CDP = "unavailable"
				out.Body.Error = err.Error()
				return out, nil
			}
			out.Body.Tabs = len(open)
			return out, nil
		})

	registerMessageHandlers(api, d)
	registerSettingsHandlers(api, d)
	registerBookHandlers(api, d)
	registerTabHandlers(api, d)
	registerBackupHandlers(api, d)

	return router
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	var coded *apperr.CodedError
	if errors.As(err, &coded) {
		switch coded.Code {
		case apperr.CodeValidation:
			return huma.Error400BadRequest(coded.Message)
		case apperr.CodeNotFound:
			return huma.Error404NotFound(coded.Message)
		case apperr.CodeStorage:
			return huma.NewError(http.StatusInsufficientStorage, errText(coded))
		case apperr.CodeTimeout:
			return huma.Error504GatewayTimeout(coded.Message)
		case apperr.CodeCDPUnavailable:
			return huma.Error502BadGateway(coded.Message)
		default:
			return huma.Error500InternalServerError(fmt.Sprintf("%s: %s", coded.Code, coded.Message))
		}
	}
	return huma.Error500InternalServerError(err.Error())
}

func errText(coded *apperr.CodedError) string {
	if coded.Cause == nil {
		return coded.Message
	}
	return coded.Message + ": " + coded.Cause.Error()
}
