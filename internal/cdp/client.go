// Package cdp is the chromedp-backed tabs.Browser driver.
package cdp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	protocdp "github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"

	"github.com/dgnsrekt/booktabs/internal/apperr"
	"github.com/dgnsrekt/booktabs/internal/tabs"
)

const focusProbe = `({visible: document.visibilityState === "visible", focused: document.hasFocus()})`

// Client drives tabs through chromedp. Browser-level Target commands go
// through the shared browser executor; page commands run in a short-lived
// session that is detached, never closed, when done.
type Client struct {
	cdpURL      string
	timeout     time.Duration
	tabRegistry *TabRegistry

	mu            sync.Mutex
	allocCtx      context.Context
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
	strip         tabs.Strip
}

func NewClient(cdpURL string, timeout time.Duration, tabRegistry *TabRegistry) *Client {
	if tabRegistry == nil {
		tabRegistry = NewTabRegistry()
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		cdpURL:      strings.TrimRight(cdpURL, "/"),
		timeout:     timeout,
		tabRegistry: tabRegistry,
	}
}

func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectLocked(ctx)
}

func (c *Client) connectLocked(ctx context.Context) error {
	slog.Info("connecting to chromium", "url", c.cdpURL)

	pages, err := listPages(ctx, c.cdpURL)
	if err != nil {
		return apperr.New(apperr.CodeCDPUnavailable, "failed to list targets", err)
	}

	// Attach the browser context to an existing page so connecting does not
	// open a blank tab.
	opts := []chromedp.ContextOption{
		chromedp.WithErrorf(slogf(slog.LevelWarn)),
		chromedp.WithLogf(slogf(slog.LevelDebug)),
	}
	if len(pages) > 0 {
		opts = append(opts, chromedp.WithTargetID(pages[0].TargetID))
	}

	c.allocCtx, c.allocCancel = chromedp.NewRemoteAllocator(context.Background(), c.cdpURL)
	c.browserCtx, c.browserCancel = chromedp.NewContext(c.allocCtx, opts...)

	runCtx, cancel := context.WithTimeout(c.browserCtx, c.timeout)
	defer cancel()
	if err := chromedp.Run(runCtx); err != nil {
		c.cleanupLocked()
		return apperr.New(apperr.CodeCDPUnavailable, "failed to connect to browser", err)
	}

	slog.Info("found browser targets", "pages", len(pages))
	return nil
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cleanupLocked()
	slog.Info("cdp client closed")
	return nil
}

func (c *Client) cleanupLocked() {
	if c.browserCtx != nil {
		detach(c.browserCtx)
		c.browserCancel()
	}
	if c.allocCancel != nil {
		c.allocCancel()
	}
	c.allocCtx, c.allocCancel = nil, nil
	c.browserCtx, c.browserCancel = nil, nil
}

// executor returns ctx bound to the browser-level executor, connecting first
// if needed.
func (c *Client) executor(ctx context.Context) (context.Context, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.browserCtx == nil {
		if err := c.connectLocked(ctx); err != nil {
			return nil, err
		}
	}
	cc := chromedp.FromContext(c.browserCtx)
	if cc == nil || cc.Browser == nil {
		return nil, apperr.New(apperr.CodeCDPUnavailable, "browser not connected", nil)
	}
	return protocdp.WithExecutor(ctx, cc.Browser), nil
}

// Query lists page tabs matching pattern in strip order.
func (c *Client) Query(ctx context.Context, pattern string) ([]tabs.Tab, error) {
	opCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	exec, err := c.executor(opCtx)
	if err != nil {
		return nil, err
	}

	infos, err := target.GetTargets().Do(exec)
	if err != nil {
		return nil, c.wrapErr("failed to list targets", err)
	}
	var pages []*target.Info
	ids := make([]string, 0, len(infos))
	for _, t := range infos {
		if t.Type != "page" {
			continue
		}
		pages = append(pages, t)
		ids = append(ids, string(t.TargetID))
	}
	c.tabRegistry.Sync(pages)
	c.strip.Sync(ids)

	var out []tabs.Tab
	activeIdx, activeFocused := -1, false
	for i, id := range c.strip.IDs() {
		info, ok := c.tabRegistry.GetByStringID(id)
		if !ok {
			continue
		}
		var st struct {
			Visible bool `json:"visible"`
			Focused bool `json:"focused"`
		}
		if err := c.withTab(ctx, target.ID(id), chromedp.Evaluate(focusProbe, &st)); err != nil {
			slog.Debug("cdp focus probe failed", "target_id", id, "error", err)
		} else if st.Visible && (activeIdx < 0 || (st.Focused && !activeFocused)) {
			activeIdx, activeFocused = i, st.Focused
		}
		out = append(out, tabs.Tab{ID: id, URL: info.URL, Title: info.Title, Index: i})
	}

	matched := out[:0]
	for _, t := range out {
		t.Active = t.Index == activeIdx
		if tabs.MatchPattern(pattern, t.URL) {
			matched = append(matched, t)
		}
	}
	return matched, nil
}

func (c *Client) Create(ctx context.Context, opts tabs.CreateOptions) (tabs.Tab, error) {
	opCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	exec, err := c.executor(opCtx)
	if err != nil {
		return tabs.Tab{}, err
	}

	id, err := target.CreateTarget(opts.URL).WithBackground(!opts.Active).Do(exec)
	if err != nil {
		return tabs.Tab{}, c.wrapErr("create target failed", err)
	}
	c.tabRegistry.Register(id, opts.URL, "")
	c.strip.Insert(string(id), opts.Index)

	slog.Debug("cdp target created", "target_id", id, "index", opts.Index, "url", truncateURL(opts.URL))
	return tabs.Tab{ID: string(id), URL: opts.URL, Index: c.strip.Index(string(id)), Active: opts.Active}, nil
}

func (c *Client) Update(ctx context.Context, id string, opts tabs.UpdateOptions) (tabs.Tab, error) {
	if _, ok := c.tabRegistry.GetByStringID(id); !ok {
		return tabs.Tab{}, apperr.New(apperr.CodeNotFound, "tab not found: "+id, nil)
	}
	tid := target.ID(id)

	if opts.URL != "" {
		nav := chromedp.ActionFunc(func(ctx context.Context) error {
			_, _, errText, _, err := page.Navigate(opts.URL).Do(ctx)
			if err != nil {
				return err
			}
			if errText != "" {
				return fmt.Errorf("navigate: %s", errText)
			}
			return nil
		})
		if err := c.withTab(ctx, tid, nav); err != nil {
			return tabs.Tab{}, c.wrapErr("navigate failed", err)
		}
		c.tabRegistry.Register(tid, opts.URL, "")
	}

	if opts.Highlighted {
		opCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()
		exec, err := c.executor(opCtx)
		if err != nil {
			return tabs.Tab{}, err
		}
		if err := target.ActivateTarget(tid).Do(exec); err != nil {
			return tabs.Tab{}, c.wrapErr("activate target failed", err)
		}
	}

	slog.Debug("cdp target updated", "target_id", id, "url", truncateURL(opts.URL), "highlighted", opts.Highlighted)
	return tabs.Tab{ID: id, URL: opts.URL, Index: c.strip.Index(id), Active: opts.Highlighted}, nil
}

// Move reorders the tab in the controller's strip; CDP has no tab order.
func (c *Client) Move(_ context.Context, id string, index int) error {
	if !c.strip.Move(id, index) {
		return apperr.New(apperr.CodeNotFound, "tab not found: "+id, nil)
	}
	return nil
}

func (c *Client) Remove(ctx context.Context, id string) error {
	opCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	exec, err := c.executor(opCtx)
	if err != nil {
		return err
	}
	if err := target.CloseTarget(target.ID(id)).Do(exec); err != nil {
		return c.wrapErr("close target failed", err)
	}
	c.tabRegistry.Remove(target.ID(id))
	c.strip.Remove(id)
	return nil
}

// withTab runs actions against an existing tab in a fresh session and
// detaches afterwards so cancelling the chromedp context leaves the tab open.
func (c *Client) withTab(ctx context.Context, id target.ID, actions ...chromedp.Action) error {
	c.mu.Lock()
	parent := c.browserCtx
	c.mu.Unlock()
	if parent == nil {
		return apperr.New(apperr.CodeCDPUnavailable, "browser not connected", nil)
	}

	tabCtx, tabCancel := chromedp.NewContext(parent, chromedp.WithTargetID(id))
	runCtx, runCancel := context.WithTimeout(tabCtx, c.timeout)
	err := chromedp.Run(runCtx, actions...)
	runCancel()
	detach(tabCtx)
	tabCancel()
	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// detach ends the chromedp session on a tab and clears the context's target
// so its cancellation does not close the tab.
func detach(ctx context.Context) {
	cc := chromedp.FromContext(ctx)
	if cc == nil || cc.Target == nil {
		return
	}
	if sid := cc.Target.SessionID; sid != "" && cc.Browser != nil {
		dctx, cancel := context.WithTimeout(context.Background(), time.Second)
		if err := target.DetachFromTarget().WithSessionID(sid).Do(protocdp.WithExecutor(dctx, cc.Browser)); err != nil {
			slog.Debug("cdp detach failed", "session_id", sid, "error", err)
		}
		cancel()
	}
	cc.Target = nil
}

func (c *Client) wrapErr(msg string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return apperr.New(apperr.CodeTimeout, msg, err)
	}
	if errors.Is(err, chromedp.ErrChannelClosed) {
		c.mu.Lock()
		c.cleanupLocked()
		c.mu.Unlock()
		return apperr.New(apperr.CodeCDPUnavailable, msg, err)
	}
	return apperr.New(apperr.CodeCDPFailure, msg, err)
}

// listPages fetches page targets over the DevTools HTTP endpoint. It runs
// before any chromedp context exists.
func listPages(ctx context.Context, base string) ([]*target.Info, error) {
	listCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(listCtx, http.MethodGet, base+"/json/list", nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("/json/list: HTTP %d", resp.StatusCode)
	}

	var entries []struct {
		ID    string `json:"id"`
		Type  string `json:"type"`
		Title string `json:"title"`
		URL   string `json:"url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, err
	}
	var out []*target.Info
	for _, e := range entries {
		if e.Type != "page" {
			continue
		}
		out = append(out, &target.Info{TargetID: target.ID(e.ID), Type: e.Type, Title: e.Title, URL: e.URL})
	}
	return out, nil
}

func slogf(level slog.Level) func(string, ...any) {
	return func(format string, args ...any) {
		slog.Log(context.Background(), level, "chromedp", "message", fmt.Sprintf(format, args...))
	}
}

func truncateURL(url string) string {
	if len(url) > 120 {
		return url[:120] + "..."
	}
	return url
}

var _ tabs.Browser = (*Client)(nil)
