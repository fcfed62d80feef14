package tabs

import (
	"context"
	"net/url"
	"regexp"
	"strings"
)

// AllHTTPS is the query pattern used to look for sportsbook tabs.
const AllHTTPS = "https://*/*"

// Tab is one open browser tab.
type Tab struct {
	ID     string `json:"id"`
	URL    string `json:"url"`
	Title  string `json:"title,omitempty"`
	Index  int    `json:"index"`
	Active bool   `json:"active"`
}

// CreateOptions configures a new tab. Index < 0 appends.
type CreateOptions struct {
	URL    string
	Index  int
	Active bool
}

// UpdateOptions changes an existing tab. An empty URL leaves it unchanged.
type UpdateOptions struct {
	URL         string
	Highlighted bool
}

// Browser is the host platform's tab API. Indices follow chrome.tabs
// semantics: Move places the tab so it ends up at index, -1 means last.
type Browser interface {
	Query(ctx context.Context, pattern string) ([]Tab, error)
	Create(ctx context.Context, opts CreateOptions) (Tab, error)
	Update(ctx context.Context, id string, opts UpdateOptions) (Tab, error)
	Move(ctx context.Context, id string, index int) error
	Remove(ctx context.Context, id string) error
}

// Result counts the tab operations one call issued. It is informational
// only; nothing branches on it beyond logging.
type Result struct {
	Peers   int `json:"peers"`
	Created int `json:"created"`
	Updated int `json:"updated"`
	Moved   int `json:"moved"`
	Closed  int `json:"closed"`
	Failed  int `json:"failed"`
}

// HostOf returns the lower-cased hostname of rawURL, or "" when it has none.
func HostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

// MatchPattern reports whether rawURL matches a browser match pattern such
// as "https://*/*" or "*://*.example.com/path*". "<all_urls>" matches any
// http(s) URL.
func MatchPattern(pattern, rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" {
		return false
	}
	scheme := strings.ToLower(u.Scheme)
	if pattern == "<all_urls>" {
		return scheme == "http" || scheme == "https"
	}

	pScheme, rest, ok := strings.Cut(pattern, "://")
	if !ok {
		return false
	}
	pHost, pPath, _ := strings.Cut(rest, "/")
	pPath = "/" + pPath

	switch pScheme {
	case "*":
		if scheme != "http" && scheme != "https" {
			return false
		}
	default:
		if !strings.EqualFold(pScheme, scheme) {
			return false
		}
	}

	host := strings.ToLower(u.Hostname())
	pHost = strings.ToLower(pHost)
	switch {
	case pHost == "*":
	case strings.HasPrefix(pHost, "*."):
		base := pHost[2:]
		if host != base && !strings.HasSuffix(host, "."+base) {
			return false
		}
	default:
		if host != pHost {
			return false
		}
	}

	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}
	return globMatch(pPath, path)
}

func globMatch(pattern, s string) bool {
	expr := "^" + strings.ReplaceAll(regexp.QuoteMeta(pattern), `\*`, ".*") + "$"
	re, err := regexp.Compile(expr)
	if err != nil {
		return false
	}
	return re.MatchString(s)
}
