// Package tabstest provides an in-memory tabs.Browser for tests.
package tabstest

import (
	"context"
	"fmt"
	"sync"

	"github.com/dgnsrekt/booktabs/internal/tabs"
)

// Op records one call made against the fake.
type Op struct {
	Kind  string
	ID    string
	URL   string
	Index int
}

// Browser is an in-memory tab strip with chrome.tabs move semantics.
type Browser struct {
	mu     sync.Mutex
	strip  tabs.Strip
	urls   map[string]string
	active string
	nextID int

	// Errs injects a failure per method: "query", "create", "update",
	// "move" or "remove".
	Errs map[string]error
	Ops  []Op
}

// New returns a fake holding one tab per url, in order. No tab is active.
func New(urls ...string) *Browser {
	b := &Browser{urls: make(map[string]string), Errs: make(map[string]error)}
	for _, u := range urls {
		b.add(u, -1)
	}
	return b
}

func (b *Browser) add(url string, index int) string {
	b.nextID++
	id := fmt.Sprintf("tab-%d", b.nextID)
	b.urls[id] = url
	b.strip.Insert(id, index)
	return id
}

// Activate marks the tab at index as active.
func (b *Browser) Activate(index int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ids := b.strip.IDs()
	if index >= 0 && index < len(ids) {
		b.active = ids[index]
	}
}

// URLs returns the tab URLs in strip order.
func (b *Browser) URLs() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	ids := b.strip.IDs()
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = b.urls[id]
	}
	return out
}

// ActiveURL returns the active tab's URL, or "".
func (b *Browser) ActiveURL() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.urls[b.active]
}

// Mutations returns every recorded op except queries.
func (b *Browser) Mutations() []Op {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Op, 0, len(b.Ops))
	for _, op := range b.Ops {
		if op.Kind != "query" {
			out = append(out, op)
		}
	}
	return out
}

func (b *Browser) record(op Op) error {
	b.Ops = append(b.Ops, op)
	return b.Errs[op.Kind]
}

func (b *Browser) tabLocked(id string, index int) tabs.Tab {
	return tabs.Tab{ID: id, URL: b.urls[id], Index: index, Active: id == b.active}
}

func (b *Browser) Query(_ context.Context, pattern string) ([]tabs.Tab, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.record(Op{Kind: "query", URL: pattern}); err != nil {
		return nil, err
	}
	var out []tabs.Tab
	for i, id := range b.strip.IDs() {
		if tabs.MatchPattern(pattern, b.urls[id]) {
			out = append(out, b.tabLocked(id, i))
		}
	}
	return out, nil
}

func (b *Browser) Create(_ context.Context, opts tabs.CreateOptions) (tabs.Tab, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.record(Op{Kind: "create", URL: opts.URL, Index: opts.Index}); err != nil {
		return tabs.Tab{}, err
	}
	id := b.add(opts.URL, opts.Index)
	if opts.Active {
		b.active = id
	}
	return b.tabLocked(id, b.strip.Index(id)), nil
}

func (b *Browser) Update(_ context.Context, id string, opts tabs.UpdateOptions) (tabs.Tab, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.record(Op{Kind: "update", ID: id, URL: opts.URL}); err != nil {
		return tabs.Tab{}, err
	}
	if _, ok := b.urls[id]; !ok {
		return tabs.Tab{}, fmt.Errorf("no tab with id %s", id)
	}
	if opts.URL != "" {
		b.urls[id] = opts.URL
	}
	if opts.Highlighted {
		b.active = id
	}
	return b.tabLocked(id, b.strip.Index(id)), nil
}

func (b *Browser) Move(_ context.Context, id string, index int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.record(Op{Kind: "move", ID: id, Index: index}); err != nil {
		return err
	}
	if !b.strip.Move(id, index) {
		return fmt.Errorf("no tab with id %s", id)
	}
	return nil
}

func (b *Browser) Remove(_ context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.record(Op{Kind: "remove", ID: id}); err != nil {
		return err
	}
	if _, ok := b.urls[id]; !ok {
		return fmt.Errorf("no tab with id %s", id)
	}
	b.strip.Remove(id)
	delete(b.urls, id)
	if b.active == id {
		b.active = ""
	}
	return nil
}

var _ tabs.Browser = (*Browser)(nil)
