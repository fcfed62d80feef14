package tabs

import (
	"context"
	"log/slog"
	"strings"

	"github.com/dgnsrekt/booktabs/internal/books"
)

// Sweeper closes every sportsbook tab except the active one and the host
// site's own tabs.
type Sweeper struct {
	browser  Browser
	hostSite string
}

// NewSweeper returns a sweeper. hostSite is the hostname of the odds site
// the controller serves; its tabs are never closed.
func NewSweeper(b Browser, hostSite string) *Sweeper {
	return &Sweeper{browser: b, hostSite: strings.ToLower(strings.TrimSpace(hostSite))}
}

// CloseAll removes every non-active tab whose URL contains any book
// hostname. Matching is a substring test on the full URL, so a tab is also
// closed when a book hostname only appears in its path or query.
func (s *Sweeper) CloseAll(ctx context.Context, m *books.Map) Result {
	hosts := books.Hostnames(m)
	res := Result{Peers: len(hosts)}
	if len(hosts) == 0 {
		return res
	}

	open, err := s.browser.Query(ctx, AllHTTPS)
	if err != nil {
		res.Failed++
		slog.Warn("tabs sweep query failed", "error", err)
		return res
	}

	for _, t := range open {
		if t.Active || s.IsHostSite(t.URL) {
			continue
		}
		if !containsAny(t.URL, hosts) {
			continue
		}
		if err := s.browser.Remove(ctx, t.ID); err != nil {
			res.Failed++
			slog.Warn("tabs close failed", "tab_id", t.ID, "url", t.URL, "error", err)
			continue
		}
		res.Closed++
	}

	slog.Info("tabs sweep done", "open", len(open), "closed", res.Closed, "failed", res.Failed)
	return res
}

// IsHostSite reports whether rawURL belongs to the host site or one of its
// subdomains.
func (s *Sweeper) IsHostSite(rawURL string) bool {
	if s.hostSite == "" {
		return false
	}
	host := HostOf(rawURL)
	return host == s.hostSite || strings.HasSuffix(host, "."+s.hostSite)
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if sub != "" && strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
