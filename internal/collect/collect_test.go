package collect

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/compass-harvester/internal/listing"
	"github.com/jonathan/compass-harvester/internal/types"
)

func rec(id, title string) types.ListingRecord {
	return types.ListingRecord{"id": id, "product_name": title}
}

func TestState_SourcePrefersCollected(t *testing.T) {
	s := NewState()
	s.SetCurrentView([]types.ListingRecord{rec("v1", "View")})
	assert.Equal(t, "v1", s.Source()[0]["id"])

	s.Append(rec("c1", "Collected"))
	assert.Equal(t, "c1", s.Source()[0]["id"])

	s.Clear()
	assert.Equal(t, 0, s.Len())
	assert.Empty(t, s.Source())
}

func TestState_ItemsIsCopy(t *testing.T) {
	s := NewState()
	s.Append(rec("a", "A"))
	items := s.Items()
	items[0] = rec("z", "Z")
	assert.Equal(t, "a", s.Items()[0]["id"])
}

func TestState_Resolve(t *testing.T) {
	s := NewState()
	s.Append(rec("a", "Red Mug"), rec("b", "Blue Cup"), rec("c", "Green Bowl"))

	tests := []struct {
		name   string
		row    types.Row
		wantID string
		wantOK bool
	}{
		{"aligned", types.Row{Index: 1, Title: "Blue Cup"}, "b", true},
		{"aligned ignoring spaces", types.Row{Index: 1, Title: "Blue  Cup "}, "b", true},
		{"untitled row trusts index", types.Row{Index: 2}, "c", true},
		{"misaligned falls back to title", types.Row{Index: 0, Title: "Green Bowl"}, "c", true},
		{"row key", types.Row{Index: 0, Title: "Unknown", RowKey: "b_1"}, "b", true},
		{"out of range with title", types.Row{Index: 9, Title: "Red Mug"}, "a", true},
		{"no match", types.Row{Index: 9, Title: "Nothing"}, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := s.Resolve(tt.row)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.wantID, got["id"])
			}
		})
	}
}

func TestParseDays(t *testing.T) {
	r, err := ParseDays("30")
	require.NoError(t, err)
	assert.Equal(t, &DaysRange{Min: 0, Max: 30}, r)

	r, err = ParseDays(" 7 - 30 ")
	require.NoError(t, err)
	assert.Equal(t, &DaysRange{Min: 7, Max: 30}, r)

	r, err = ParseDays("")
	require.NoError(t, err)
	assert.Nil(t, r)

	_, err = ParseDays("abc")
	assert.Error(t, err)

	_, err = ParseDays("30-7")
	assert.Error(t, err)
}

func TestMatcher(t *testing.T) {
	recs := []types.ListingRecord{
		{"id": "1", "product_name": "Steel Water Bottle", "shop_name": "Hydro", listing.DaysOnlineKey: 5},
		{"id": "2", "product_name": "Glass Bottle", "shop_name": "ClearCo", listing.DaysOnlineKey: 40},
		{"id": "3", "product_name": "Bottle Brush", "shop_name": "Hydro"},
	}

	tests := []struct {
		name   string
		filter Filter
		want   []int
	}{
		{"empty matches all", Filter{}, []int{0, 1, 2}},
		{"title case-insensitive", Filter{Title: "BOTTLE"}, []int{0, 1, 2}},
		{"shop", Filter{Shop: "hydro"}, []int{0, 2}},
		{"max days drops unannotated", Filter{Days: "30"}, []int{0}},
		{"days range", Filter{Days: "10-50"}, []int{1}},
		{"combined", Filter{Title: "bottle", Shop: "hydro", Days: "7"}, []int{0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := tt.filter.Compile()
			require.NoError(t, err)
			var got []int
			for _, ix := range m.Apply(recs) {
				got = append(got, ix.Index)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

type fakePager struct {
	state     *State
	pages     int
	clicked   int
	firstSeen bool
	injectAt  bool
}

func (p *fakePager) NextPage(context.Context) (bool, error) {
	if p.clicked >= p.pages {
		return false, nil
	}
	p.clicked++
	p.state.Append(rec(string(rune('a'+p.clicked)), "item"))
	return true, nil
}

func (p *fakePager) FirstPage(context.Context) (bool, error) {
	p.firstSeen = true
	_, p.injectAt = p.state.Mode()
	return true, nil
}

func TestCollector_Run(t *testing.T) {
	s := NewState()
	s.Append(rec("stale", "old"))
	pager := &fakePager{state: s, pages: 3}
	now := time.Unix(1700000000, 0).Add(48 * time.Hour)

	c := NewCollector(s, pager, Options{PollInterval: time.Millisecond, InjectSettle: 0, Now: func() time.Time { return now }}, nil)

	var seen []int
	res, err := c.Run(context.Background(), func(page, _ int) { seen = append(seen, page) })
	require.NoError(t, err)

	assert.Equal(t, 3, res.Pages)
	assert.Equal(t, 3, res.Collected)
	assert.True(t, res.Injected)
	assert.True(t, pager.injectAt, "inject must be armed before returning to page 1")
	assert.Equal(t, []int{1, 2, 3}, seen)

	collecting, _ := s.Mode()
	assert.False(t, collecting)
	for _, r := range s.Items() {
		assert.NotEqual(t, "stale", r["id"])
	}
}

func TestCollector_AnnotatesDaysOnline(t *testing.T) {
	s := NewState()
	now := time.Unix(1700000000, 0).Add(72*time.Hour + time.Minute)
	pager := &recordPager{state: s, recs: []types.ListingRecord{
		{"id": "dated", "video_list": []any{map[string]any{"publish_ts": float64(1700000000)}}},
		{"id": "undated"},
	}}
	c := NewCollector(s, pager, Options{Now: func() time.Time { return now }}, nil)

	_, err := c.Run(context.Background(), nil)
	require.NoError(t, err)

	items := s.Items()
	require.Len(t, items, 2)
	assert.Equal(t, 3, items[0][listing.DaysOnlineKey])
	_, has := items[1][listing.DaysOnlineKey]
	assert.False(t, has)
}

// recordPager delivers one page holding recs.
type recordPager struct {
	state *State
	recs  []types.ListingRecord
	done  bool
}

func (p *recordPager) NextPage(context.Context) (bool, error) {
	if p.done {
		return false, nil
	}
	p.done = true
	p.state.Append(p.recs...)
	return true, nil
}

func (p *recordPager) FirstPage(context.Context) (bool, error) { return false, nil }

func TestCollector_StopsOnCancel(t *testing.T) {
	s := NewState()
	pager := &stallPager{}
	c := NewCollector(s, pager, Options{PollInterval: 10 * time.Millisecond}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Run(ctx, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

// stallPager advances but never produces data.
type stallPager struct{}

func (stallPager) NextPage(context.Context) (bool, error)  { return true, nil }
func (stallPager) FirstPage(context.Context) (bool, error) { return false, nil }
