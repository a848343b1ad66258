package harvest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/compass-harvester/internal/collect"
	"github.com/jonathan/compass-harvester/internal/inventory"
	"github.com/jonathan/compass-harvester/internal/store"
	"github.com/jonathan/compass-harvester/internal/types"
)

var testDay = time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)

type fakeNavigator struct {
	current string
	fail    map[string]bool
	calls   []string
}

func (n *fakeNavigator) CurrentCategory(context.Context) (string, error) {
	return n.current, nil
}

func (n *fakeNavigator) NavigateTo(_ context.Context, path []string) (bool, error) {
	target := strings.Join(path, "/")
	n.calls = append(n.calls, target)
	if n.fail[target] {
		return false, nil
	}
	n.current = target
	return true, nil
}

// fakePage renders results per keyword into the shared record state, the way
// intercepted responses would.
type fakePage struct {
	state    *collect.State
	results  map[string][]types.ListingRecord
	searches []string
	clears   int
	onSearch func(keyword string)
	noInput  bool
	current  string
}

func (p *fakePage) Search(_ context.Context, keyword string) error {
	if p.noInput {
		return errors.New("search input not found")
	}
	p.searches = append(p.searches, keyword)
	p.current = keyword
	p.state.SetCurrentView(p.results[keyword])
	if p.onSearch != nil {
		p.onSearch(keyword)
	}
	return nil
}

func (p *fakePage) ClearSearch(context.Context) error {
	p.clears++
	return nil
}

func (p *fakePage) Rows(context.Context) ([]types.Row, error) {
	recs := p.results[p.current]
	rows := make([]types.Row, len(recs))
	for i, r := range recs {
		rows[i] = types.Row{Index: i, Title: fmt.Sprint(r["product_name"])}
	}
	return rows, nil
}

type fakeMedia struct {
	fail  map[string]bool
	calls []string
	after func(url string)
}

func (m *fakeMedia) Download(_ context.Context, url string, w io.Writer) (int64, error) {
	m.calls = append(m.calls, url)
	if m.fail[url] {
		return 0, errors.New("connection reset")
	}
	n, err := io.WriteString(w, "video:"+url)
	if m.after != nil {
		m.after(url)
	}
	return int64(n), err
}

type noPacer struct{}

func (noPacer) Sleep(ctx context.Context, _ time.Duration) error { return ctx.Err() }

// spyCheckpoints records the global id set on every save.
type spyCheckpoints struct {
	*store.Checkpoints
	saves     int
	globalIDs []string
}

func (s *spyCheckpoints) Save(ctx context.Context, cp *types.HarvestCheckpoint) error {
	s.saves++
	s.globalIDs = cp.GlobalExistingIDs.Slice()
	return s.Checkpoints.Save(ctx, cp)
}

type harness struct {
	t       *testing.T
	root    string
	cps     *spyCheckpoints
	handles *store.Handles
	nav     *fakeNavigator
	page    *fakePage
	state   *collect.State
	media   *fakeMedia
	events  []ProgressEvent
	sel     Selector
	m       *Machine
}

func newHarness(t *testing.T, grant bool) *harness {
	t.Helper()
	kv, err := store.NewFileKV(t.TempDir())
	require.NoError(t, err)

	h := &harness{
		t:       t,
		root:    t.TempDir(),
		cps:     &spyCheckpoints{Checkpoints: store.NewCheckpoints(kv)},
		handles: store.NewHandles(kv),
		nav:     &fakeNavigator{current: "Tools", fail: map[string]bool{}},
		state:   collect.NewState(),
		media:   &fakeMedia{fail: map[string]bool{}},
		sel:     AcceptPreselected,
	}
	h.page = &fakePage{state: h.state, results: map[string][]types.ListingRecord{}}
	if grant {
		_, err := h.handles.Grant(context.Background(), types.DirectoryCapability{Root: h.root})
		require.NoError(t, err)
	}
	h.m = New(Deps{
		Checkpoints: h.cps,
		Handles:     h.handles,
		Navigator:   h.nav,
		Page:        h.page,
		Records:     h.state,
		Selector:    SelectorFunc(func(ctx context.Context, req SelectionRequest) ([]types.Row, error) { return h.sel.Select(ctx, req) }),
		Media:       h.media,
		Pacer:       noPacer{},
		Timings:     DefaultTimings(),
		Now:         func() time.Time { return testDay },
		OnProgress:  func(e ProgressEvent) { h.events = append(h.events, e) },
	})
	return h
}

func product(title string, videoIDs ...string) types.ListingRecord {
	videos := make([]any, len(videoIDs))
	for i, id := range videoIDs {
		videos[i] = map[string]any{"video_id": id, "play_url": "https://cdn.example.com/" + id + ".mp4"}
	}
	return types.ListingRecord{"product_name": title, "video_list": videos}
}

func entry(title, category string, existing ...string) types.WorkQueueEntry {
	return types.WorkQueueEntry{Title: title, Category: category, ExistingIDs: types.NewIDSet(existing...), Path: []string{}}
}

func (h *harness) dayFile(name string) string {
	return filepath.Join(h.root, testDay.Format(inventory.DayLayout), name)
}

func TestDeriveKeyword(t *testing.T) {
	tests := []struct {
		title string
		want  string
	}{
		{title: "【热销】超薄蓝牙耳机新款", want: "蓝牙耳机"},
		{title: "Widget Pro (2024 Edition)", want: "dget"},
		{title: "abc", want: "ab"},
		{title: "AB", want: "AB"},
		{title: "A", want: "A"},
		{title: "【】!!", want: "【】!!"},
		{title: "!!!?????", want: "!!!??"},
	}

	for _, tt := range tests {
		t.Run(tt.title, func(t *testing.T) {
			got := DeriveKeyword(tt.title)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStart_EndToEnd(t *testing.T) {
	h := newHarness(t, true)
	h.nav.fail["Home/Kitchen"] = true
	h.page.results[DeriveKeyword("Gadget Max")] = []types.ListingRecord{product("Gadget Max", "v1", "old")}

	queue := []types.WorkQueueEntry{
		entry("Widget ", "Home/Kitchen"),
		entry("Gadget Max", "Tools"),
	}
	summary, err := h.m.Start(context.Background(), queue, types.NewIDSet("old"))
	require.NoError(t, err)

	assert.True(t, summary.Completed)
	assert.Equal(t, 1, summary.SuccessCount)
	assert.Equal(t, 1, summary.ErrorCount)
	assert.Equal(t, 2, summary.Processed)

	assert.Equal(t, []string{"Home/Kitchen"}, h.nav.calls)
	assert.Equal(t, []string{"https://cdn.example.com/v1.mp4"}, h.media.calls)
	assert.FileExists(t, h.dayFile("Gadget MaxLMToolsID_1_[v1].mp4"))
	assert.Equal(t, []string{"old", "v1"}, h.cps.globalIDs)

	cp, err := h.cps.Load(context.Background())
	require.NoError(t, err)
	assert.Nil(t, cp, "checkpoint is deleted on completion")

	last := h.events[len(h.events)-1]
	assert.Equal(t, StepComplete, last.Step)
}

func TestStart_RefusesWhileRunning(t *testing.T) {
	h := newHarness(t, true)
	ctx := context.Background()
	require.NoError(t, h.cps.Checkpoints.Save(ctx, &types.HarvestCheckpoint{
		Status: types.StatusRunning,
		Queue:  []types.WorkQueueEntry{entry("A", "Tools")},
	}))

	_, err := h.m.Start(ctx, []types.WorkQueueEntry{entry("B", "Tools")}, nil)
	assert.ErrorIs(t, err, ErrHarvestRunning)
}

func TestResume_ContinuesFromCurrentIndex(t *testing.T) {
	h := newHarness(t, true)
	ctx := context.Background()
	for _, title := range []string{"First product", "Second product", "Third product"} {
		h.page.results[DeriveKeyword(title)] = []types.ListingRecord{product(title, "id-"+title[:3])}
	}
	require.NoError(t, h.cps.Checkpoints.Save(ctx, &types.HarvestCheckpoint{
		RunID:        "crashed-run",
		Status:       types.StatusRunning,
		Queue:        []types.WorkQueueEntry{entry("First product", "Tools"), entry("Second product", "Tools"), entry("Third product", "Tools")},
		CurrentIndex: 2,
		SuccessCount: 1,
	}))

	summary, err := h.m.Resume(ctx)
	require.NoError(t, err)
	assert.True(t, summary.Resumed)
	assert.True(t, summary.Completed)
	assert.Equal(t, 1, summary.Processed)
	assert.Equal(t, 2, summary.SuccessCount)
	assert.Equal(t, []string{DeriveKeyword("Third product")}, h.page.searches)
}

func TestResume_NoCheckpointIsNoop(t *testing.T) {
	h := newHarness(t, true)

	summary, err := h.m.Resume(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Summary{}, *summary)
	assert.Empty(t, h.page.searches)
}

func TestCapabilityLossAbortsAndKeepsCheckpoint(t *testing.T) {
	h := newHarness(t, false)
	h.page.results[DeriveKeyword("Gadget Max")] = []types.ListingRecord{product("Gadget Max", "v1")}

	_, err := h.m.Start(context.Background(), []types.WorkQueueEntry{entry("Gadget Max", "Tools")}, nil)
	require.Error(t, err)
	var capErr *types.CapabilityError
	assert.True(t, errors.As(err, &capErr))
	assert.ErrorIs(t, err, ErrNoCapability)

	cp, err := h.cps.Load(context.Background())
	require.NoError(t, err)
	require.NotNil(t, cp)
	assert.Equal(t, types.StatusRunning, cp.Status)
	assert.Equal(t, 0, cp.CurrentIndex)
	assert.Equal(t, 0, cp.ErrorCount)
}

func TestMovedRootAbortsOnResume(t *testing.T) {
	h := newHarness(t, true)
	h.page.results[DeriveKeyword("Gadget Max")] = []types.ListingRecord{product("Gadget Max", "v1")}
	require.NoError(t, os.RemoveAll(h.root))

	_, err := h.m.Start(context.Background(), []types.WorkQueueEntry{entry("Gadget Max", "Tools")}, nil)
	var capErr *types.CapabilityError
	require.True(t, errors.As(err, &capErr))
	assert.Empty(t, h.media.calls)
}

func TestSkipDuringSearch(t *testing.T) {
	h := newHarness(t, true)
	h.page.onSearch = func(string) { h.m.Skip() }

	summary, err := h.m.Start(context.Background(), []types.WorkQueueEntry{entry("Skipped one", "Tools"), entry("Next one", "Tools")}, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.ErrorCount)
	assert.Equal(t, 0, summary.SuccessCount)
	assert.Len(t, h.page.searches, 2, "skip only abandons the current entry")
}

func TestSkipDuringDownloads(t *testing.T) {
	h := newHarness(t, true)
	h.page.results[DeriveKeyword("Gadget Max")] = []types.ListingRecord{product("Gadget Max", "v1", "v2", "v3")}
	h.page.results[DeriveKeyword("Next product")] = []types.ListingRecord{product("Next product", "n1")}
	h.media.after = func(url string) {
		if url == "https://cdn.example.com/v1.mp4" {
			h.m.Skip()
		}
	}

	summary, err := h.m.Start(context.Background(), []types.WorkQueueEntry{entry("Gadget Max", "Tools"), entry("Next product", "Tools")}, nil)
	require.NoError(t, err)
	assert.True(t, summary.Completed)
	assert.Equal(t, 0, summary.ErrorCount)
	assert.Equal(t, 2, summary.SuccessCount, "the skipped entry keeps its one download")

	assert.Equal(t, []string{"https://cdn.example.com/v1.mp4", "https://cdn.example.com/n1.mp4"}, h.media.calls)
	assert.Equal(t, []string{"v1", "n1"}, h.cps.globalIDs)
	assert.FileExists(t, h.dayFile("Gadget MaxLMToolsID_1_[v1].mp4"))
	assert.NoFileExists(t, h.dayFile("Gadget MaxLMToolsID_2_[v2].mp4"))
	assert.FileExists(t, h.dayFile("Next productLMToolsID_1_[n1].mp4"))
}

func TestSearchFailureCountsAsEntryError(t *testing.T) {
	h := newHarness(t, true)
	h.page.noInput = true

	summary, err := h.m.Start(context.Background(), []types.WorkQueueEntry{entry("A product", "Tools")}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.ErrorCount)
	assert.True(t, summary.Completed)
}

func TestStopAtEntryBoundary(t *testing.T) {
	h := newHarness(t, true)
	ctx := context.Background()
	h.page.onSearch = func(string) {
		require.NoError(t, h.m.Stop(ctx))
	}

	summary, err := h.m.Start(ctx, []types.WorkQueueEntry{entry("First product", "Tools"), entry("Second product", "Tools")}, nil)
	require.NoError(t, err)
	assert.True(t, summary.Stopped)
	assert.False(t, summary.Completed)
	assert.Len(t, h.page.searches, 1)

	cp, err := h.cps.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, cp)
}

func TestStopWithoutLoopClearsCheckpoint(t *testing.T) {
	h := newHarness(t, true)
	ctx := context.Background()
	require.NoError(t, h.cps.Checkpoints.Save(ctx, &types.HarvestCheckpoint{
		Status: types.StatusRunning,
		Queue:  []types.WorkQueueEntry{entry("A", "Tools")},
	}))

	require.NoError(t, h.m.Stop(ctx))
	cp, err := h.cps.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, cp)

	summary, err := h.m.Resume(ctx)
	require.NoError(t, err)
	assert.False(t, summary.Resumed)
}

func TestConcurrentStartIsRefused(t *testing.T) {
	h := newHarness(t, true)
	ctx := context.Background()
	var nested error
	h.page.onSearch = func(string) {
		_, nested = h.m.Start(ctx, nil, nil)
	}

	_, err := h.m.Start(ctx, []types.WorkQueueEntry{entry("A product", "Tools")}, nil)
	require.NoError(t, err)
	assert.ErrorIs(t, nested, ErrAlreadyRunning)
}

func TestFailedDownloadIsNotMarkedExisting(t *testing.T) {
	h := newHarness(t, true)
	h.page.results[DeriveKeyword("Gadget Max")] = []types.ListingRecord{product("Gadget Max", "v1", "v2")}
	h.media.fail["https://cdn.example.com/v1.mp4"] = true

	summary, err := h.m.Start(context.Background(), []types.WorkQueueEntry{entry("Gadget Max", "Tools")}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.SuccessCount)
	assert.Equal(t, 0, summary.ErrorCount)
	assert.Equal(t, []string{"v2"}, h.cps.globalIDs)

	entries, err := os.ReadDir(filepath.Join(h.root, testDay.Format(inventory.DayLayout)))
	require.NoError(t, err)
	require.Len(t, entries, 1, "no partial file is left for the failed download")
	assert.Contains(t, entries[0].Name(), "[v2]")
}

func TestExistingVideosAreNotDownloaded(t *testing.T) {
	h := newHarness(t, true)
	h.page.results[DeriveKeyword("Gadget Max")] = []types.ListingRecord{product("Gadget Max", "g1", "e1")}

	summary, err := h.m.Start(context.Background(), []types.WorkQueueEntry{entry("Gadget Max", "Tools", "e1")}, types.NewIDSet("g1"))
	require.NoError(t, err)
	assert.Empty(t, h.media.calls)
	assert.Equal(t, 0, summary.SuccessCount)
}

func TestEmptySelectionSkipsDownloads(t *testing.T) {
	h := newHarness(t, true)
	h.page.results[DeriveKeyword("Gadget Max")] = []types.ListingRecord{product("Gadget Max", "v1")}
	var req SelectionRequest
	h.sel = SelectorFunc(func(_ context.Context, r SelectionRequest) ([]types.Row, error) {
		req = r
		return nil, nil
	})

	summary, err := h.m.Start(context.Background(), []types.WorkQueueEntry{entry("Gadget Max", "Tools")}, nil)
	require.NoError(t, err)
	assert.Empty(t, h.media.calls)
	assert.Equal(t, 0, summary.ErrorCount)

	require.Len(t, req.Candidates, 1)
	assert.True(t, req.Candidates[0].Resolved)
	assert.Equal(t, 1, req.Candidates[0].NewVideos)
	assert.Equal(t, []int{0}, req.Preselected)
}

func TestSelectionRequestRows(t *testing.T) {
	req := SelectionRequest{Candidates: []Candidate{
		{Row: types.Row{Index: 0, Title: "a"}},
		{Row: types.Row{Index: 1, Title: "b"}},
	}}
	rows := req.Rows([]int{1, 1, 5, -1, 0})
	require.Len(t, rows, 2)
	assert.Equal(t, "b", rows[0].Title)
	assert.Equal(t, "a", rows[1].Title)
}

func TestBatch_SkipsExistingIDs(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "2024-01-01"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "2024-01-01", "old_1_[v1].mp4"), []byte("x"), 0o644))

	media := &fakeMedia{fail: map[string]bool{}}
	b := &Batch{
		Library: inventory.NewLibrary(types.DirectoryCapability{Root: root}, nil),
		Media:   media,
		Pacer:   noPacer{},
		Now:     func() time.Time { return testDay },
	}

	res, err := b.Run(context.Background(), "Home/Kitchen", []BatchItem{{Title: "Pan 28cm!", Record: product("Pan", "v1", "v2")}})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Downloaded)
	assert.Equal(t, 1, res.Skipped)
	require.Len(t, res.Files, 1)
	assert.Equal(t, "Pan_28cm_LMHome_KitchenID_2_[v2].mp4", filepath.Base(res.Files[0]))
}
