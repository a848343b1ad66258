package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/compass-harvester/internal/config"
	"github.com/jonathan/compass-harvester/internal/harvest"
	"github.com/jonathan/compass-harvester/internal/navigation"
	"github.com/jonathan/compass-harvester/internal/store"
	"github.com/jonathan/compass-harvester/internal/types"
)

func nullLog() *logrus.Entry {
	logger, _ := test.NewNullLogger()
	return logrus.NewEntry(logger)
}

func newHandles(t *testing.T) *store.Handles {
	t.Helper()
	kv, err := store.NewFileKV(t.TempDir())
	require.NoError(t, err)
	return store.NewHandles(kv)
}

func TestTimings_MapsConfig(t *testing.T) {
	cfg := config.Default()
	got := Timings(cfg.Timing)

	assert.Equal(t, cfg.Timing.CategorySettle, got.CategorySettle)
	assert.Equal(t, cfg.Timing.SearchWait, got.SearchWait)
	assert.Equal(t, cfg.Timing.SearchPoll, got.SearchPoll)
	assert.Equal(t, cfg.Timing.SelectionSettle, got.SelectionSettle)
	assert.Equal(t, cfg.Timing.DownloadPause, got.DownloadPause)
	assert.Equal(t, cfg.Timing.ExistingPause, got.ExistingPause)
	assert.Equal(t, cfg.Timing.ErrorPause, got.ErrorPause)
	assert.Equal(t, cfg.Timing.EntryPause, got.EntryPause)
}

func TestNavigatorOptions(t *testing.T) {
	defaults := navigation.DefaultOptions()

	got := NavigatorOptions(config.TimingConfig{
		MenuAttempts:   7,
		MenuBackoff:    time.Second,
		NavigateSettle: 2 * time.Second,
	})
	assert.Equal(t, 7, got.MenuAttempts)
	assert.Equal(t, time.Second, got.MenuBackoff)
	assert.Equal(t, 2*time.Second, got.FinalSettle)
	assert.Equal(t, defaults.OpenSettle, got.OpenSettle)
	assert.Equal(t, defaults.ClickSettle, got.ClickSettle)

	got = NavigatorOptions(config.TimingConfig{})
	assert.Equal(t, defaults.MenuAttempts, got.MenuAttempts)
}

func TestCollectOptions(t *testing.T) {
	got := CollectOptions(config.CollectConfig{MaxPages: 3, GrowthPolls: 4, PollInterval: time.Millisecond, InjectSettle: time.Second})
	assert.Equal(t, 3, got.MaxPages)
	assert.Equal(t, 4, got.GrowthPolls)
	assert.Equal(t, time.Millisecond, got.PollInterval)
	assert.Equal(t, time.Second, got.InjectSettle)
}

func TestBrowserOptions(t *testing.T) {
	got := BrowserOptions(config.BrowserConfig{RemoteURL: "http://127.0.0.1:9222", Headless: true, LoadTimeout: time.Minute})
	assert.Equal(t, "http://127.0.0.1:9222", got.RemoteURL)
	assert.True(t, got.Headless)
	assert.Equal(t, time.Minute, got.LoadTimeout)
}

func TestScanLibrary_NoGrant(t *testing.T) {
	_, err := ScanLibrary(context.Background(), newHandles(t), "", nullLog())
	require.Error(t, err)

	var capErr *types.CapabilityError
	require.ErrorAs(t, err, &capErr)
	assert.ErrorIs(t, err, harvest.ErrNoCapability)
}

func TestScanLibrary_GrantsAndScans(t *testing.T) {
	root := t.TempDir()
	day := filepath.Join(root, "2024-01-01")
	require.NoError(t, os.MkdirAll(day, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(day, "Widget LMHome_Storage ID_1_[abc123].mp4"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(day, "Widget LMHome_Storage ID_2_[def456].mp4"), []byte("x"), 0o644))

	handles := newHandles(t)
	res, err := ScanLibrary(context.Background(), handles, root, nullLog())
	require.NoError(t, err)
	require.Len(t, res.Queue, 1)
	assert.Equal(t, "Home/Storage", res.Queue[0].Category)
	assert.Equal(t, 2, res.Files)

	// The grant persists, so a later scan needs no root.
	res, err = ScanLibrary(context.Background(), handles, "", nullLog())
	require.NoError(t, err)
	assert.Equal(t, 2, res.GlobalIDs.Len())
}

func TestScanLibrary_MovedRoot(t *testing.T) {
	root := t.TempDir()
	handles := newHandles(t)
	_, err := OpenLibrary(context.Background(), handles, root, nullLog())
	require.NoError(t, err)

	require.NoError(t, os.RemoveAll(root))
	_, err = ScanLibrary(context.Background(), handles, "", nullLog())

	var capErr *types.CapabilityError
	assert.ErrorAs(t, err, &capErr)
}

func TestLogProgress_Levels(t *testing.T) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	cb := LogProgress(logrus.NewEntry(logger))

	cb(harvest.ProgressEvent{Step: harvest.StepEntry, Message: "entry 1/2", Index: 0, Total: 2})
	cb(harvest.ProgressEvent{Step: harvest.StepDownload, Message: "saved"})
	cb(harvest.ProgressEvent{Step: harvest.StepError, Message: "boom", ErrorCount: 1})

	entries := hook.AllEntries()
	require.Len(t, entries, 3)
	assert.Equal(t, logrus.InfoLevel, entries[0].Level)
	assert.Equal(t, 2, entries[0].Data["total"])
	assert.Equal(t, logrus.DebugLevel, entries[1].Level)
	assert.Equal(t, logrus.WarnLevel, entries[2].Level)
	assert.Equal(t, 1, entries[2].Data["errors"])
}

func TestTee(t *testing.T) {
	var steps []string
	record := func(ev harvest.ProgressEvent) { steps = append(steps, ev.Step) }

	Tee(record, nil, record)(harvest.ProgressEvent{Step: harvest.StepStart})
	assert.Equal(t, []string{harvest.StepStart, harvest.StepStart}, steps)
}
