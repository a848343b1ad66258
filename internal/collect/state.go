// Package collect holds the records harvested from intercepted listing responses
// and drives the multi-page collection run that fills it.
package collect

import (
	"strings"
	"sync"

	"github.com/jonathan/compass-harvester/internal/listing"
	"github.com/jonathan/compass-harvester/internal/types"
)

// State is the shared context object for harvested data.
//
// The interception worker is its only writer. Readers (HTTP handlers, the
// harvest loop, the terminal selector) take copies.
type State struct {
	mu          sync.RWMutex
	items       []types.ListingRecord
	currentView []types.ListingRecord
	collecting  bool
	inject      bool
}

// NewState returns an empty, disarmed state.
func NewState() *State {
	return &State{}
}

// SetCollecting arms or disarms collection.
func (s *State) SetCollecting(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collecting = on
}

// SetInject arms or disarms injection of accumulated items into the next response.
func (s *State) SetInject(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inject = on
}

// Mode reports the current collecting and inject flags.
func (s *State) Mode() (collecting, inject bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collecting, s.inject
}

// Append adds records to the collected list in arrival order.
func (s *State) Append(recs ...types.ListingRecord) {
	if len(recs) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append(s.items, recs...)
}

// Replace swaps the collected list for recs.
func (s *State) Replace(recs []types.ListingRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append([]types.ListingRecord(nil), recs...)
}

// Clear empties the collected list and the current view.
func (s *State) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = nil
	s.currentView = nil
}

// Items returns a copy of the collected list.
func (s *State) Items() []types.ListingRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]types.ListingRecord(nil), s.items...)
}

// Len returns the number of collected records.
func (s *State) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// SetCurrentView replaces the snapshot of the latest response's list.
func (s *State) SetCurrentView(recs []types.ListingRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.currentView = append([]types.ListingRecord(nil), recs...)
}

// CurrentView returns a copy of the latest response's list.
func (s *State) CurrentView() []types.ListingRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]types.ListingRecord(nil), s.currentView...)
}

// Source returns the list rows are aligned with: the collected list when it is
// non-empty, otherwise the current view.
func (s *State) Source() []types.ListingRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.items) > 0 {
		return append([]types.ListingRecord(nil), s.items...)
	}
	return append([]types.ListingRecord(nil), s.currentView...)
}

// Resolve maps a rendered row to its backing record.
//
// The row index is trusted only when the record at that position carries the
// same title as the row. Otherwise the row key ("<id>_<n>") and then the
// title are looked up. ok is false when every lookup fails.
func (s *State) Resolve(row types.Row) (types.ListingRecord, bool) {
	src := s.Source()
	want := squash(row.Title)

	if row.Index >= 0 && row.Index < len(src) {
		rec := src[row.Index]
		got := squash(listing.Title(rec))
		if want == "" || got == "" || got == want {
			return rec, true
		}
	}
	if id, _, _ := strings.Cut(row.RowKey, "_"); id != "" {
		for _, rec := range src {
			if listing.Identity(rec) == id {
				return rec, true
			}
		}
	}
	if want == "" {
		return nil, false
	}
	for _, rec := range src {
		if squash(listing.Title(rec)) == want {
			return rec, true
		}
	}
	return nil, false
}

// squash drops all whitespace so rendered and raw titles compare equal.
func squash(s string) string {
	return strings.Join(strings.Fields(s), "")
}
