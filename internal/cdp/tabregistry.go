package cdp

import (
	"sync"

	"github.com/chromedp/cdproto/target"

	"github.com/dgnsrekt/booktabs/internal/tabs"
)

// TabInfo is the last known state of a page target.
type TabInfo struct {
	TargetID string `json:"target_id"`
	URL      string `json:"url"`
	Title    string `json:"title,omitempty"`
	Host     string `json:"host"`
}

// TabRegistry maps CDP target IDs to tab metadata.
type TabRegistry struct {
	tabs map[target.ID]*TabInfo
	mu   sync.RWMutex
}

func NewTabRegistry() *TabRegistry {
	return &TabRegistry{tabs: make(map[target.ID]*TabInfo)}
}

func (r *TabRegistry) Register(targetID target.ID, url, title string) *TabInfo {
	info := &TabInfo{
		TargetID: string(targetID),
		URL:      url,
		Title:    title,
		Host:     tabs.HostOf(url),
	}

	r.mu.Lock()
	r.tabs[targetID] = info
	r.mu.Unlock()

	return info
}

// Sync replaces the registry contents with the given page targets.
func (r *TabRegistry) Sync(pages []*target.Info) {
	next := make(map[target.ID]*TabInfo, len(pages))
	for _, p := range pages {
		next[p.TargetID] = &TabInfo{
			TargetID: string(p.TargetID),
			URL:      p.URL,
			Title:    p.Title,
			Host:     tabs.HostOf(p.URL),
		}
	}
	r.mu.Lock()
	r.tabs = next
	r.mu.Unlock()
}

func (r *TabRegistry) Get(targetID target.ID) (*TabInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	info, ok := r.tabs[targetID]
	return info, ok
}

func (r *TabRegistry) GetByStringID(tabID string) (*TabInfo, bool) {
	return r.Get(target.ID(tabID))
}

func (r *TabRegistry) Remove(targetID target.ID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tabs, targetID)
}

func (r *TabRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tabs)
}
