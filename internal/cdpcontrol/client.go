package cdpcontrol

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/target"

	"github.com/dgnsrekt/booktabs/internal/apperr"
	"github.com/dgnsrekt/booktabs/internal/tabs"
)

// disconnectHints are substrings in error causes that mean the browser
// connection is gone and the next call must redial.
var disconnectHints = []string{
	"not connected",
	"connection closed",
	"connection reset",
	"broken pipe",
	"eof",
	"connection refused",
}

type tabSession struct {
	mu        sync.Mutex
	sessionID string // CDP session ID from Target.attachToTarget
}

// Client drives browser tabs over a raw CDP WebSocket. It implements
// tabs.Browser; tab order is kept in a Strip because CDP has no notion of
// tab indices.
type Client struct {
	cdpURL      string
	evalTimeout time.Duration

	mu       sync.Mutex
	cdp      *rawCDP
	sessions map[target.ID]*tabSession
	strip    tabs.Strip
}

type evalEnvelope struct {
	OK           bool            `json:"ok"`
	Data         json.RawMessage `json:"data,omitempty"`
	ErrorCode    string          `json:"error_code,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
}

func NewClient(cdpURL string, evalTimeout time.Duration) *Client {
	return &Client{
		cdpURL:      cdpURL,
		evalTimeout: evalTimeout,
		sessions:    make(map[target.ID]*tabSession),
	}
}

func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectLocked(ctx)
}

func (c *Client) connectLocked(ctx context.Context) error {
	if c.cdpURL == "" {
		return apperr.New(apperr.CodeCDPUnavailable, "missing CDP URL", nil)
	}

	slog.Info("cdpcontrol connect start", "cdp_url", c.cdpURL)
	c.cleanupLocked()

	c.cdp = newRawCDP(c.cdpURL)
	if err := c.cdp.connect(ctx); err != nil {
		c.cdp = nil
		return apperr.New(apperr.CodeCDPUnavailable, "connect to CDP failed", err)
	}

	targets, err := c.syncTargetsLocked(ctx)
	if err != nil {
		slog.Error("cdpcontrol initial tab sync failed", "error", err)
		c.cleanupLocked()
		return err
	}

	slog.Info("cdpcontrol connect ok", "cdp_url", c.cdpURL, "tabs", len(targets))
	return nil
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cleanupLocked()
	return nil
}

func (c *Client) cleanupLocked() {
	// Detach from any active sessions without closing targets.
	if c.cdp != nil {
		for targetID, session := range c.sessions {
			if session == nil {
				continue
			}
			session.mu.Lock()
			if session.sessionID != "" {
				ctx, cancel := context.WithTimeout(context.Background(), time.Second)
				if err := c.cdp.detachFromTarget(ctx, session.sessionID); err != nil {
					slog.Debug("cdpcontrol detach cleanup failed", "target_id", targetID, "error", err)
				}
				cancel()
				session.sessionID = ""
			}
			session.mu.Unlock()
		}
		c.cdp.close()
		c.cdp = nil
	}
	c.sessions = make(map[target.ID]*tabSession)
}

// Query lists page tabs matching pattern in strip order. The active tab is
// detected by asking each page whether it is visible and focused.
func (c *Client) Query(ctx context.Context, pattern string) ([]tabs.Tab, error) {
	cdp, err := c.ensureConnected(ctx)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	targets, err := c.syncTargetsLocked(ctx)
	c.mu.Unlock()
	if err != nil {
		return nil, err
	}

	byID := make(map[target.ID]*target.Info, len(targets))
	for _, t := range targets {
		byID[t.TargetID] = t
	}

	var out []tabs.Tab
	var focus focusState
	activeIdx := -1
	for i, id := range c.strip.IDs() {
		t, ok := byID[target.ID(id)]
		if !ok {
			continue
		}
		st := c.probeFocus(ctx, cdp, t.TargetID)
		if st.Visible && (activeIdx < 0 || (st.Focused && !focus.Focused)) {
			activeIdx, focus = i, st
		}
		out = append(out, tabs.Tab{ID: id, URL: t.URL, Title: t.Title, Index: i})
	}

	matched := out[:0]
	for _, t := range out {
		t.Active = t.Index == activeIdx
		if tabs.MatchPattern(pattern, t.URL) {
			matched = append(matched, t)
		}
	}
	slog.Debug("cdpcontrol query", "pattern", pattern, "targets", len(targets), "matched", len(matched))
	return matched, nil
}

// Create opens a tab and records it at opts.Index in the strip.
func (c *Client) Create(ctx context.Context, opts tabs.CreateOptions) (tabs.Tab, error) {
	cdp, err := c.ensureConnected(ctx)
	if err != nil {
		return tabs.Tab{}, err
	}

	id, err := cdp.createTarget(ctx, opts.URL, !opts.Active)
	if err != nil {
		return tabs.Tab{}, c.wrapCDPError(ctx, "create target failed", err)
	}

	c.mu.Lock()
	c.sessions[id] = &tabSession{}
	c.mu.Unlock()
	c.strip.Insert(string(id), opts.Index)

	slog.Debug("cdpcontrol target created", "target_id", id, "index", opts.Index, "url", opts.URL)
	return tabs.Tab{ID: string(id), URL: opts.URL, Index: c.strip.Index(string(id)), Active: opts.Active}, nil
}

// Update navigates the tab and, when highlighted, brings it to the front.
func (c *Client) Update(ctx context.Context, id string, opts tabs.UpdateOptions) (tabs.Tab, error) {
	cdp, err := c.ensureConnected(ctx)
	if err != nil {
		return tabs.Tab{}, err
	}
	if c.strip.Index(id) < 0 {
		return tabs.Tab{}, apperr.New(apperr.CodeNotFound, "tab not found: "+id, nil)
	}
	tid := target.ID(id)

	if opts.URL != "" {
		session := c.session(tid)
		sessionID, err := c.ensureSession(ctx, cdp, session, tid)
		if err != nil {
			return tabs.Tab{}, err
		}
		if err := cdp.navigate(ctx, sessionID, opts.URL); err != nil {
			c.resetSession(session)
			return tabs.Tab{}, c.wrapCDPError(ctx, "navigate failed", err)
		}
	}
	if opts.Highlighted {
		if err := cdp.activateTarget(ctx, tid); err != nil {
			return tabs.Tab{}, c.wrapCDPError(ctx, "activate target failed", err)
		}
	}

	slog.Debug("cdpcontrol target updated", "target_id", id, "url", opts.URL, "highlighted", opts.Highlighted)
	return tabs.Tab{ID: id, URL: opts.URL, Index: c.strip.Index(id), Active: opts.Highlighted}, nil
}

// Move reorders the tab in the strip. Chromium exposes no CDP command for
// tab order, so only the controller's view changes.
func (c *Client) Move(_ context.Context, id string, index int) error {
	if !c.strip.Move(id, index) {
		return apperr.New(apperr.CodeNotFound, "tab not found: "+id, nil)
	}
	slog.Debug("cdpcontrol target moved", "target_id", id, "index", index)
	return nil
}

// Remove closes the tab.
func (c *Client) Remove(ctx context.Context, id string) error {
	cdp, err := c.ensureConnected(ctx)
	if err != nil {
		return err
	}
	if err := cdp.closeTarget(ctx, target.ID(id)); err != nil {
		return c.wrapCDPError(ctx, "close target failed", err)
	}

	c.mu.Lock()
	delete(c.sessions, target.ID(id))
	c.mu.Unlock()
	c.strip.Remove(id)

	slog.Debug("cdpcontrol target closed", "target_id", id)
	return nil
}

type focusState struct {
	Visible bool `json:"visible"`
	Focused bool `json:"focused"`
}

// probeFocus reports a page's visibility. Failures read as hidden.
func (c *Client) probeFocus(ctx context.Context, cdp *rawCDP, id target.ID) focusState {
	var st focusState
	if err := c.evalOnTarget(ctx, cdp, id, jsFocusProbe(), &st); err != nil {
		slog.Debug("cdpcontrol focus probe failed", "target_id", id, "error", err)
		return focusState{}
	}
	return st
}

func (c *Client) evalOnTarget(ctx context.Context, cdp *rawCDP, id target.ID, js string, out any) error {
	session := c.session(id)
	sessionID, err := c.ensureSession(ctx, cdp, session, id)
	if err != nil {
		return err
	}

	evalCtx, evalCancel := context.WithTimeout(ctx, c.evalTimeout)
	defer evalCancel()

	raw, err := cdp.evaluate(evalCtx, sessionID, js)
	if err != nil {
		c.resetSession(session)
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(evalCtx.Err(), context.DeadlineExceeded) {
			return apperr.New(apperr.CodeTimeout, "evaluation timed out", err)
		}
		return apperr.New(apperr.CodeCDPFailure, "evaluation failed", err)
	}

	var env evalEnvelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return apperr.New(apperr.CodeCDPFailure, "invalid evaluation envelope", err)
	}
	if !env.OK {
		code := env.ErrorCode
		if code == "" {
			code = apperr.CodeCDPFailure
		}
		return apperr.New(code, env.ErrorMessage, nil)
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return apperr.New(apperr.CodeCDPFailure, "invalid evaluation data", err)
	}
	return nil
}

func (c *Client) session(id target.ID) *tabSession {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.sessions[id]
	if !ok {
		s = &tabSession{}
		c.sessions[id] = s
	}
	return s
}

// ensureSession returns a CDP session ID for the target, attaching if needed.
func (c *Client) ensureSession(ctx context.Context, cdp *rawCDP, session *tabSession, id target.ID) (string, error) {
	session.mu.Lock()
	defer session.mu.Unlock()

	if session.sessionID != "" {
		return session.sessionID, nil
	}

	sid, err := cdp.attachToTarget(ctx, id)
	if err != nil {
		return "", c.wrapCDPError(ctx, "attach to target failed", err)
	}
	session.sessionID = sid
	slog.Debug("cdpcontrol session attached", "target_id", id, "session_id", sid)
	return sid, nil
}

func (c *Client) resetSession(session *tabSession) {
	session.mu.Lock()
	session.sessionID = ""
	session.mu.Unlock()
}

// syncTargetsLocked lists page targets, reconciles the strip and prunes
// sessions of closed tabs.
func (c *Client) syncTargetsLocked(ctx context.Context) ([]*target.Info, error) {
	if c.cdp == nil {
		return nil, apperr.New(apperr.CodeCDPUnavailable, "CDP client not connected", nil)
	}

	all, err := c.cdp.listTargets(ctx)
	if err != nil {
		return nil, apperr.New(apperr.CodeCDPUnavailable, "failed to list targets", err)
	}

	pages := make([]*target.Info, 0, len(all))
	ids := make([]string, 0, len(all))
	live := make(map[target.ID]bool, len(all))
	for _, t := range all {
		if t.Type != "page" {
			continue
		}
		pages = append(pages, t)
		ids = append(ids, string(t.TargetID))
		live[t.TargetID] = true
	}
	c.strip.Sync(ids)

	for id := range c.sessions {
		if !live[id] {
			delete(c.sessions, id)
		}
	}

	slog.Debug("cdpcontrol tab sync", "targets", len(all), "pages", len(pages))
	return pages, nil
}

func (c *Client) ensureConnected(ctx context.Context) (*rawCDP, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cdp != nil {
		return c.cdp, nil
	}
	if err := c.connectLocked(ctx); err != nil {
		return nil, err
	}
	return c.cdp, nil
}

// wrapCDPError classifies a command failure. A dropped connection is torn
// down so the next call redials; the failed call itself is not retried.
func (c *Client) wrapCDPError(ctx context.Context, msg string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return apperr.New(apperr.CodeTimeout, msg, err)
	}
	if isDisconnect(err) {
		c.mu.Lock()
		if c.cdp != nil && !c.cdp.connected() {
			c.cleanupLocked()
		}
		c.mu.Unlock()
		return apperr.New(apperr.CodeCDPUnavailable, msg, err)
	}
	return apperr.New(apperr.CodeCDPFailure, msg, err)
}

func isDisconnect(err error) bool {
	if err == nil {
		return false
	}
	cause := strings.ToLower(err.Error())
	for _, hint := range disconnectHints {
		if strings.Contains(cause, hint) {
			return true
		}
	}
	return false
}

var _ tabs.Browser = (*Client)(nil)
