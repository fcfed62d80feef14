package tabs

import (
	"context"
	"log/slog"

	"github.com/dgnsrekt/booktabs/internal/books"
	"github.com/dgnsrekt/booktabs/internal/settings"
)

// OpenRequest is one "open this book" click.
type OpenRequest struct {
	Book        string
	GameInfo    *GameInfo
	Books       *books.Map
	AnchorIndex int // -1 when there is no anchor tab
	LinkTarget  settings.LinkTarget
}

// Orchestrator opens or refreshes a book's odds-group tabs next to the
// anchor tab. It keeps no state between calls.
type Orchestrator struct {
	browser   Browser
	overrides Overrides
}

// NewOrchestrator returns an orchestrator. A nil overrides table disables
// book-specific URL construction.
func NewOrchestrator(b Browser, overrides Overrides) *Orchestrator {
	return &Orchestrator{browser: b, overrides: overrides}
}

// placement tracks where the next peer goes: directly after the anchor and
// after every peer placed so far in this call.
type placement struct {
	anchor int
	placed int
}

func (p placement) next() int {
	if p.anchor < 0 {
		return -1
	}
	return p.anchor + 1 + p.placed
}

// OpenOrUpdate opens every odds-group peer of req.Book. Platform errors are
// logged and counted, never retried.
func (o *Orchestrator) OpenOrUpdate(ctx context.Context, req OpenRequest) Result {
	peers := books.OddsGroupPeers(req.Books, req.Book)
	res := Result{Peers: len(peers)}
	if len(peers) == 0 {
		slog.Info("tabs open skipped, unknown book", "book", req.Book)
		return res
	}

	pos := placement{anchor: req.AnchorIndex}
	for _, peer := range peers {
		target := ResolveURL(peer.Book, peer.Detail, req.GameInfo, o.overrides)
		active := peer.Book == req.Book
		if req.LinkTarget == settings.BookTab {
			o.openInBookTab(ctx, peer, target, active, &pos, &res)
			continue
		}
		o.create(ctx, peer.Book, target, active, &pos, &res)
	}

	slog.Info("tabs open done",
		"book", req.Book,
		"link_target", string(req.LinkTarget),
		"peers", res.Peers,
		"created", res.Created,
		"updated", res.Updated,
		"moved", res.Moved,
		"failed", res.Failed,
	)
	return res
}

func (o *Orchestrator) create(ctx context.Context, book, target string, active bool, pos *placement, res *Result) {
	index := pos.next()
	tab, err := o.browser.Create(ctx, CreateOptions{URL: target, Index: index, Active: active})
	if err != nil {
		res.Failed++
		slog.Warn("tabs create failed", "book", book, "url", target, "index", index, "error", err)
		return
	}
	res.Created++
	pos.placed++
	slog.Debug("tabs created", "book", book, "tab_id", tab.ID, "index", index)
}

func (o *Orchestrator) openInBookTab(ctx context.Context, peer books.Named, target string, active bool, pos *placement, res *Result) {
	open, err := o.browser.Query(ctx, AllHTTPS)
	if err != nil {
		res.Failed++
		slog.Warn("tabs query failed", "book", peer.Book, "error", err)
		return
	}

	existing, found := findByHost(open, peer.Detail.Hostname)
	if !found {
		o.create(ctx, peer.Book, target, active, pos, res)
		return
	}

	if _, err := o.browser.Update(ctx, existing.ID, UpdateOptions{URL: target, Highlighted: true}); err != nil {
		res.Failed++
		slog.Warn("tabs update failed", "book", peer.Book, "tab_id", existing.ID, "error", err)
		return
	}
	res.Updated++

	if pos.anchor < 0 {
		return
	}

	var dest int
	switch i := existing.Index; {
	case i == pos.anchor:
		return
	case i < pos.anchor:
		// Pulling the tab out from in front of the anchor shifts the anchor left.
		pos.anchor--
		dest = pos.next()
		pos.placed++
	case i <= pos.anchor+pos.placed:
		// Already inside this call's run of peers; keep it at the end of the run.
		dest = pos.anchor + pos.placed
	default:
		dest = pos.next()
		pos.placed++
	}

	if dest == existing.Index {
		return
	}
	if err := o.browser.Move(ctx, existing.ID, dest); err != nil {
		res.Failed++
		slog.Warn("tabs move failed", "book", peer.Book, "tab_id", existing.ID, "index", dest, "error", err)
		return
	}
	res.Moved++
	slog.Debug("tabs moved", "book", peer.Book, "tab_id", existing.ID, "from", existing.Index, "to", dest)
}

// findByHost returns the first tab whose parsed hostname equals host.
func findByHost(open []Tab, host string) (Tab, bool) {
	for _, t := range open {
		if HostOf(t.URL) == host {
			return t, true
		}
	}
	return Tab{}, false
}
