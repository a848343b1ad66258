package collect

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/jonathan/compass-harvester/internal/listing"
	"github.com/jonathan/compass-harvester/internal/types"
)

// Filter narrows collected records for display and selection.
// Zero-value fields do not constrain.
type Filter struct {
	Title string `json:"title,omitempty"`
	Shop  string `json:"shop,omitempty"`
	// Days is "N" (at most N days online) or "A-B" (inclusive range).
	Days string `json:"days,omitempty"`
}

// DaysRange is a parsed days-online constraint.
type DaysRange struct {
	Min, Max int
}

// ParseDays parses "N" into [0, N] and "A-B" into [A, B].
func ParseDays(s string) (*DaysRange, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if lo, hi, ok := strings.Cut(s, "-"); ok {
		minDays, err := strconv.Atoi(strings.TrimSpace(lo))
		if err != nil {
			return nil, fmt.Errorf("invalid days range %q: %w", s, err)
		}
		maxDays, err := strconv.Atoi(strings.TrimSpace(hi))
		if err != nil {
			return nil, fmt.Errorf("invalid days range %q: %w", s, err)
		}
		if minDays > maxDays {
			return nil, fmt.Errorf("invalid days range %q: min exceeds max", s)
		}
		return &DaysRange{Min: minDays, Max: maxDays}, nil
	}
	maxDays, err := strconv.Atoi(s)
	if err != nil {
		return nil, fmt.Errorf("invalid days %q: %w", s, err)
	}
	return &DaysRange{Min: 0, Max: maxDays}, nil
}

// Matcher is a compiled Filter.
type Matcher struct {
	title string
	shop  string
	days  *DaysRange
}

// Compile validates f and returns its matcher.
func (f Filter) Compile() (*Matcher, error) {
	days, err := ParseDays(f.Days)
	if err != nil {
		return nil, err
	}
	return &Matcher{
		title: strings.ToLower(strings.TrimSpace(f.Title)),
		shop:  strings.ToLower(strings.TrimSpace(f.Shop)),
		days:  days,
	}, nil
}

// Match reports whether rec passes every constraint. A record without a
// days_online annotation fails any days constraint.
func (m *Matcher) Match(rec types.ListingRecord) bool {
	if m.title != "" && !strings.Contains(strings.ToLower(listing.Title(rec)), m.title) {
		return false
	}
	if m.shop != "" && !strings.Contains(strings.ToLower(listing.Shop(rec)), m.shop) {
		return false
	}
	if m.days != nil {
		d, ok := listing.Days(rec)
		if !ok || d < m.days.Min || d > m.days.Max {
			return false
		}
	}
	return true
}

// Indexed is a record with its position in the source list.
type Indexed struct {
	Index  int                 `json:"index"`
	Record types.ListingRecord `json:"record"`
}

// Apply returns the records of recs that match, keeping their source index.
func (m *Matcher) Apply(recs []types.ListingRecord) []Indexed {
	out := make([]Indexed, 0, len(recs))
	for i, rec := range recs {
		if m.Match(rec) {
			out = append(out, Indexed{Index: i, Record: rec})
		}
	}
	return out
}
