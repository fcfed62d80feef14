package tabs

import "sync"

// Strip tracks tab order for drivers whose protocol has no tab indices.
// Index arguments follow chrome.tabs semantics: a negative or out-of-range
// index means the end of the strip, and Move leaves the tab at exactly the
// requested index.
type Strip struct {
	mu  sync.Mutex
	ids []string
}

// Sync reconciles the strip with the set of live tabs. Known tabs keep
// their order, unknown ones are appended in the given order and vanished
// ones are dropped.
func (s *Strip) Sync(live []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	present := make(map[string]bool, len(live))
	for _, id := range live {
		present[id] = true
	}
	kept := make([]string, 0, len(live))
	known := make(map[string]bool, len(s.ids))
	for _, id := range s.ids {
		if present[id] && !known[id] {
			kept = append(kept, id)
			known[id] = true
		}
	}
	for _, id := range live {
		if !known[id] {
			kept = append(kept, id)
			known[id] = true
		}
	}
	s.ids = kept
}

// Insert places a new tab at index. An already known tab is moved instead.
func (s *Strip) Insert(id string, index int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(id)
	s.insertLocked(id, index)
}

// Move relocates a known tab to index. Unknown tabs are ignored.
func (s *Strip) Move(id string, index int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.removeLocked(id) {
		return false
	}
	s.insertLocked(id, index)
	return true
}

// Remove drops a tab.
func (s *Strip) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(id)
}

// Index returns the tab's position, or -1.
func (s *Strip) Index(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, v := range s.ids {
		if v == id {
			return i
		}
	}
	return -1
}

// IDs returns the tab ids in strip order.
func (s *Strip) IDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.ids))
	copy(out, s.ids)
	return out
}

// Len returns the number of tabs.
func (s *Strip) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ids)
}

func (s *Strip) removeLocked(id string) bool {
	for i, v := range s.ids {
		if v == id {
			s.ids = append(s.ids[:i], s.ids[i+1:]...)
			return true
		}
	}
	return false
}

func (s *Strip) insertLocked(id string, index int) {
	if index < 0 || index >= len(s.ids) {
		s.ids = append(s.ids, id)
		return
	}
	s.ids = append(s.ids, "")
	copy(s.ids[index+1:], s.ids[index:])
	s.ids[index] = id
}
