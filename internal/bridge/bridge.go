// Package bridge dispatches messages from the host-site page to the tab
// orchestrator, the close sweep and the options opener.
package bridge

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/dgnsrekt/booktabs/internal/events"
	"github.com/dgnsrekt/booktabs/internal/journal"
	"github.com/dgnsrekt/booktabs/internal/settings"
	"github.com/dgnsrekt/booktabs/internal/tabs"
)

// Action identifiers.
const (
	ActionCloseSportsBookTabs = "closeSportsBookTabs"
	ActionOpenSportsBookTabs  = "openSportsBookTabs"
	ActionOpenOptionsTab      = "openOptionsTab"
)

// Message is one request from the page. Settings may be any known settings
// shape; when absent the stored settings are used. HomeTeam is the older
// top-level form of GameInfo.HomeTeam.
type Message struct {
	Action      string          `json:"action"`
	Settings    json.RawMessage `json:"settings,omitempty"`
	Book        string          `json:"book,omitempty"`
	GameInfo    *tabs.GameInfo  `json:"gameInfo,omitempty"`
	HomeTeam    string          `json:"homeTeam,omitempty"`
	SenderTabID string          `json:"senderTabId,omitempty"`
}

// Reply is the fixed acknowledgement.
type Reply struct {
	Result string `json:"result"`
}

// OK is the only reply the dispatcher sends.
var OK = Reply{Result: "OK"}

// SettingsSource supplies stored settings when a message carries none.
type SettingsSource interface {
	Get(ctx context.Context) settings.Settings
	Defaults() settings.Settings
}

// Options configures a Dispatcher.
type Options struct {
	// HostSite is the odds-comparison site's hostname. Its tabs anchor new
	// book tabs and are never swept.
	HostSite string
	// OptionsURL is opened by the openOptionsTab action.
	OptionsURL string
	Overrides  tabs.Overrides
	Journal    *journal.Journal
	Events     *events.Broker
}

// Dispatcher routes messages. It keeps no state between messages and does
// not serialize them.
type Dispatcher struct {
	browser      tabs.Browser
	store        SettingsSource
	orchestrator *tabs.Orchestrator
	sweeper      *tabs.Sweeper
	optionsURL   string
	journal      *journal.Journal
	events       *events.Broker
}

func NewDispatcher(b tabs.Browser, store SettingsSource, opts Options) *Dispatcher {
	if opts.Overrides == nil {
		opts.Overrides = tabs.DefaultOverrides()
	}
	return &Dispatcher{
		browser:      b,
		store:        store,
		orchestrator: tabs.NewOrchestrator(b, opts.Overrides),
		sweeper:      tabs.NewSweeper(b, opts.HostSite),
		optionsURL:   opts.OptionsURL,
		journal:      opts.Journal,
		events:       opts.Events,
	}
}

// Handle runs one message and always acknowledges it. Failures are logged.
func (d *Dispatcher) Handle(ctx context.Context, msg Message) Reply {
	start := time.Now()
	entry := journal.Entry{
		RequestID: RequestIDFrom(ctx),
		Action:    msg.Action,
		Book:      msg.Book,
		Anchor:    -1,
	}

	switch msg.Action {
	case ActionOpenSportsBookTabs:
		s := d.settingsFor(ctx, msg)
		anchor := d.anchorIndex(ctx, msg.SenderTabID)
		entry.Anchor = anchor
		entry.LinkTarget = string(s.BookLinkTarget)
		entry.Result = d.orchestrator.OpenOrUpdate(ctx, tabs.OpenRequest{
			Book:        msg.Book,
			GameInfo:    gameInfo(msg),
			Books:       s.BookDetailsMap,
			AnchorIndex: anchor,
			LinkTarget:  s.BookLinkTarget,
		})
	case ActionCloseSportsBookTabs:
		s := d.settingsFor(ctx, msg)
		entry.Result = d.sweeper.CloseAll(ctx, s.BookDetailsMap)
	case ActionOpenOptionsTab:
		entry.Result = d.openOptions(ctx)
	default:
		slog.Warn("bridge unknown action", "action", msg.Action)
	}

	entry.DurationMS = time.Since(start).Milliseconds()
	entry.Time = time.Now().UTC()
	d.events.Publish(events.TypeMessage, entry)
	if err := d.journal.Record(entry); err != nil {
		slog.Debug("bridge journal record failed", "error", err)
	}
	slog.Info("bridge message handled",
		"action", msg.Action,
		"book", msg.Book,
		"anchor", entry.Anchor,
		"failed", entry.Result.Failed,
		"duration_ms", entry.DurationMS)
	return OK
}

// settingsFor migrates the message's settings payload, falling back to the
// store when it is absent or unreadable.
func (d *Dispatcher) settingsFor(ctx context.Context, msg Message) settings.Settings {
	raw := strings.TrimSpace(string(msg.Settings))
	if raw == "" || raw == "null" {
		return d.store.Get(ctx)
	}
	s, err := settings.FromPayload(msg.Settings, d.store.Defaults())
	if err != nil {
		slog.Warn("bridge message settings unreadable, using stored settings", "action", msg.Action, "error", err)
		return d.store.Get(ctx)
	}
	return s
}

// anchorIndex picks the tab new book tabs are placed after: the sender tab,
// else the active tab, else the first host-site tab. -1 appends.
func (d *Dispatcher) anchorIndex(ctx context.Context, senderID string) int {
	open, err := d.browser.Query(ctx, "<all_urls>")
	if err != nil {
		slog.Warn("bridge anchor query failed", "error", err)
		return -1
	}
	if senderID != "" {
		for _, t := range open {
			if t.ID == senderID {
				return t.Index
			}
		}
	}
	for _, t := range open {
		if t.Active {
			return t.Index
		}
	}
	for _, t := range open {
		if d.sweeper.IsHostSite(t.URL) {
			return t.Index
		}
	}
	return -1
}

func (d *Dispatcher) openOptions(ctx context.Context) tabs.Result {
	var res tabs.Result
	if d.optionsURL == "" {
		slog.Warn("bridge options url not configured")
		return res
	}

	open, err := d.browser.Query(ctx, "<all_urls>")
	if err != nil {
		slog.Warn("bridge options query failed", "error", err)
	}
	for _, t := range open {
		if strings.HasPrefix(t.URL, d.optionsURL) {
			if _, err := d.browser.Update(ctx, t.ID, tabs.UpdateOptions{Highlighted: true}); err != nil {
				slog.Warn("bridge options activate failed", "tab_id", t.ID, "error", err)
				res.Failed++
				return res
			}
			res.Updated++
			return res
		}
	}

	if _, err := d.browser.Create(ctx, tabs.CreateOptions{URL: d.optionsURL, Index: -1, Active: true}); err != nil {
		slog.Warn("bridge options create failed", "error", err)
		res.Failed++
		return res
	}
	res.Created++
	return res
}

func gameInfo(msg Message) *tabs.GameInfo {
	if msg.GameInfo != nil {
		gi := *msg.GameInfo
		if strings.TrimSpace(gi.HomeTeam) == "" {
			gi.HomeTeam = msg.HomeTeam
		}
		return &gi
	}
	if strings.TrimSpace(msg.HomeTeam) != "" {
		return &tabs.GameInfo{HomeTeam: msg.HomeTeam}
	}
	return nil
}

type requestIDKey struct{}

// WithRequestID tags ctx so journal entries can be correlated with HTTP
// request logs.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFrom returns the id set by WithRequestID.
func RequestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
