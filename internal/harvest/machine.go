// Package harvest runs the resumable update workflow: for every title/category
// pair found in the local library it re-finds the product on the analytics
// page, lets the operator pick the matching rows and downloads the videos that
// are not on disk yet. Progress is checkpointed after every file so a restart
// resumes where the previous process stopped.
package harvest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/jonathan/compass-harvester/internal/db"
	"github.com/jonathan/compass-harvester/internal/inventory"
	"github.com/jonathan/compass-harvester/internal/listing"
	"github.com/jonathan/compass-harvester/internal/navigation"
	"github.com/jonathan/compass-harvester/internal/store"
	"github.com/jonathan/compass-harvester/internal/types"
)

// Sentinel errors
var (
	// ErrHarvestRunning is returned by Start while a running checkpoint exists.
	ErrHarvestRunning = errors.New("a harvest is already in progress; resume or stop it first")
	// ErrAlreadyRunning is returned when the run loop is already active in this process.
	ErrAlreadyRunning = errors.New("harvest loop is already running")
	// ErrNoCapability is wrapped by the capability error raised when no directory was granted.
	ErrNoCapability = errors.New("no directory granted")
)

// errSkipped marks an entry the operator skipped while its search was pending.
var errSkipped = errors.New("skipped by operator")

// CheckpointStore persists the single harvest checkpoint.
type CheckpointStore interface {
	Load(ctx context.Context) (*types.HarvestCheckpoint, error)
	Save(ctx context.Context, cp *types.HarvestCheckpoint) error
	Clear(ctx context.Context) error
}

// HandleStore returns the stored directory grant, nil when none was made.
type HandleStore interface {
	Load(ctx context.Context) (*types.DirectoryCapability, error)
}

// Navigator switches the page's category.
type Navigator interface {
	CurrentCategory(ctx context.Context) (string, error)
	NavigateTo(ctx context.Context, path []string) (bool, error)
}

// Page is the search box and result table of the analytics page.
type Page interface {
	Search(ctx context.Context, keyword string) error
	ClearSearch(ctx context.Context) error
	Rows(ctx context.Context) ([]types.Row, error)
}

// RecordSource maps a rendered row to its listing record.
type RecordSource interface {
	Resolve(row types.Row) (types.ListingRecord, bool)
}

// Media downloads one media URL into w.
type Media interface {
	Download(ctx context.Context, url string, w io.Writer) (int64, error)
}

// Pacer waits between page actions.
type Pacer interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// Timings holds the delays between steps of one entry.
type Timings struct {
	CategorySettle  time.Duration
	SearchWait      time.Duration
	SearchPoll      time.Duration
	SelectionSettle time.Duration
	DownloadPause   time.Duration
	ExistingPause   time.Duration
	ErrorPause      time.Duration
	EntryPause      time.Duration
}

// DefaultTimings returns the pacing the host site tolerates.
func DefaultTimings() Timings {
	return Timings{
		CategorySettle:  3 * time.Second,
		SearchWait:      5 * time.Second,
		SearchPoll:      500 * time.Millisecond,
		SelectionSettle: time.Second,
		DownloadPause:   300 * time.Millisecond,
		ExistingPause:   time.Second,
		ErrorPause:      2 * time.Second,
		EntryPause:      time.Second,
	}
}

// Deps are the collaborators of a Machine. History, Pacer, Now and Log are optional.
type Deps struct {
	Checkpoints CheckpointStore
	Handles     HandleStore
	Navigator   Navigator
	Page        Page
	Records     RecordSource
	Selector    Selector
	Media       Media
	History     store.RunHistory
	Pacer       Pacer
	Timings     Timings
	Now         func() time.Time
	OnProgress  ProgressCallback
	Log         *logrus.Entry
}

// Machine is the harvest state machine. One Machine drives at most one run
// loop at a time.
type Machine struct {
	deps    Deps
	control Control
	running chan struct{}
}

// New creates a Machine.
func New(deps Deps) *Machine {
	if deps.Pacer == nil {
		deps.Pacer = TimerPacer{}
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Log == nil {
		deps.Log = logrus.NewEntry(logrus.StandardLogger())
	}
	if deps.Timings.SearchPoll <= 0 {
		deps.Timings.SearchPoll = DefaultTimings().SearchPoll
	}
	return &Machine{deps: deps, running: make(chan struct{}, 1)}
}

// Running reports whether the run loop is active.
func (m *Machine) Running() bool {
	return len(m.running) > 0
}

// Status is a point-in-time view of the harvest.
type Status struct {
	Running    bool                     `json:"running" yaml:"running"`
	Checkpoint *types.HarvestCheckpoint `json:"checkpoint,omitempty" yaml:"checkpoint,omitempty"`
}

// Status reads the stored checkpoint.
func (m *Machine) Status(ctx context.Context) (*Status, error) {
	cp, err := m.deps.Checkpoints.Load(ctx)
	if err != nil {
		return nil, err
	}
	return &Status{Running: m.Running(), Checkpoint: cp}, nil
}

// Skip abandons the current entry of a running loop.
func (m *Machine) Skip() {
	m.control.Skip()
}

// Start creates a fresh checkpoint for queue and runs it to completion.
func (m *Machine) Start(ctx context.Context, queue []types.WorkQueueEntry, globalIDs *types.IDSet) (*Summary, error) {
	if !m.acquire() {
		return nil, ErrAlreadyRunning
	}
	defer m.release()

	existing, err := m.deps.Checkpoints.Load(ctx)
	if err != nil {
		return nil, err
	}
	if existing != nil && existing.Status == types.StatusRunning {
		return nil, ErrHarvestRunning
	}

	if globalIDs == nil {
		globalIDs = types.NewIDSet()
	}
	cp := &types.HarvestCheckpoint{
		RunID:             uuid.NewString(),
		Status:            types.StatusRunning,
		Queue:             queue,
		GlobalExistingIDs: globalIDs.Clone(),
		StartedAt:         m.deps.Now().UTC(),
	}
	if err := m.deps.Checkpoints.Save(ctx, cp); err != nil {
		return nil, err
	}
	m.emit(cp, StepStart, fmt.Sprintf("harvest started with %d entries", len(cp.Queue)), nil)
	return m.run(ctx, cp, false)
}

// Resume continues a running checkpoint from its current index. With no
// checkpoint, or an idle one, it does nothing.
func (m *Machine) Resume(ctx context.Context) (*Summary, error) {
	if !m.acquire() {
		return nil, ErrAlreadyRunning
	}
	defer m.release()

	cp, err := m.deps.Checkpoints.Load(ctx)
	if err != nil {
		return nil, err
	}
	if cp == nil || cp.Status != types.StatusRunning {
		return &Summary{}, nil
	}
	m.emit(cp, StepStart, fmt.Sprintf("resuming at entry %d of %d", cp.CurrentIndex+1, len(cp.Queue)), nil)
	return m.run(ctx, cp, true)
}

// Stop ends the harvest. A running loop stops at its next entry boundary;
// otherwise the stored checkpoint is marked idle and deleted right away.
func (m *Machine) Stop(ctx context.Context) error {
	if m.Running() {
		m.control.RequestStop()
		return nil
	}
	cp, err := m.deps.Checkpoints.Load(ctx)
	if err != nil {
		var corrupt *store.CorruptCheckpointError
		if !errors.As(err, &corrupt) {
			return err
		}
		// An unreadable checkpoint is still cleared.
		return m.deps.Checkpoints.Clear(ctx)
	}
	if cp == nil {
		return nil
	}
	return m.finishStopped(ctx, cp)
}

func (m *Machine) acquire() bool {
	select {
	case m.running <- struct{}{}:
		m.control.reset()
		return true
	default:
		return false
	}
}

func (m *Machine) release() {
	<-m.running
}

func (m *Machine) run(ctx context.Context, cp *types.HarvestCheckpoint, resumed bool) (*Summary, error) {
	log := m.deps.Log.WithField("run_id", cp.RunID)
	runID, idErr := uuid.Parse(cp.RunID)
	if m.deps.History != nil && idErr == nil {
		if err := m.deps.History.CreateRun(ctx, runID, len(cp.Queue)); err != nil {
			log.WithError(err).Warn("failed to record run start")
		}
	}
	record := func(status string) {
		if m.deps.History == nil || idErr != nil {
			return
		}
		// The run context may already be cancelled.
		if err := m.deps.History.CompleteRun(context.WithoutCancel(ctx), runID, status, cp.SuccessCount, cp.ErrorCount); err != nil {
			log.WithError(err).Warn("failed to record run end")
		}
	}

	start := cp.CurrentIndex
	summary := func() *Summary {
		return &Summary{
			RunID:        cp.RunID,
			Resumed:      resumed,
			Processed:    cp.CurrentIndex - start,
			SuccessCount: cp.SuccessCount,
			ErrorCount:   cp.ErrorCount,
		}
	}

	for !cp.Done() {
		if m.stopRequested(ctx) {
			if err := m.finishStopped(ctx, cp); err != nil {
				return summary(), err
			}
			record(db.RunStatusStopped)
			s := summary()
			s.Stopped = true
			m.emit(cp, StepStopped, "harvest stopped", nil)
			return s, nil
		}
		m.control.nextEntry()
		entry := cp.Current()
		m.emit(cp, StepEntry, entry.Title, entry)

		err := m.processEntry(ctx, cp, entry)
		switch {
		case err == nil:
		case errors.Is(err, errSkipped):
			cp.ErrorCount++
			m.emit(cp, StepSkip, "entry skipped", nil)
			cp.CurrentIndex++
			if err := m.deps.Checkpoints.Save(ctx, cp); err != nil {
				record(db.RunStatusAborted)
				return summary(), err
			}
			continue
		case isFatal(ctx, err):
			log.WithError(err).Error("harvest aborted, checkpoint kept for resume")
			record(db.RunStatusAborted)
			m.emit(cp, StepAborted, err.Error(), nil)
			return summary(), err
		default:
			cp.ErrorCount++
			log.WithError(err).WithField("title", entry.Title).Warn("entry failed")
			m.emit(cp, StepError, err.Error(), nil)
			if err := m.deps.Pacer.Sleep(ctx, m.deps.Timings.ErrorPause); err != nil {
				record(db.RunStatusAborted)
				return summary(), err
			}
		}

		if err := m.deps.Page.ClearSearch(ctx); err != nil {
			log.WithError(err).Debug("failed to clear search")
		}
		cp.CurrentIndex++
		if err := m.deps.Checkpoints.Save(ctx, cp); err != nil {
			record(db.RunStatusAborted)
			return summary(), err
		}
		if err := m.deps.Pacer.Sleep(ctx, m.deps.Timings.EntryPause); err != nil {
			record(db.RunStatusAborted)
			return summary(), err
		}
	}

	if err := m.deps.Checkpoints.Clear(ctx); err != nil {
		return summary(), err
	}
	record(db.RunStatusCompleted)
	s := summary()
	s.Completed = true
	m.emit(cp, StepComplete, fmt.Sprintf("harvest complete: %d succeeded, %d failed", cp.SuccessCount, cp.ErrorCount), s)
	log.WithFields(logrus.Fields{"success": cp.SuccessCount, "errors": cp.ErrorCount}).Info("harvest complete")
	return s, nil
}

// stopRequested reports an operator stop, either through Control or by the
// stored checkpoint having been stopped from another process.
func (m *Machine) stopRequested(ctx context.Context) bool {
	if m.control.Stopped() {
		return true
	}
	stored, err := m.deps.Checkpoints.Load(ctx)
	if err != nil {
		return false
	}
	return stored == nil || stored.Status != types.StatusRunning
}

func (m *Machine) finishStopped(ctx context.Context, cp *types.HarvestCheckpoint) error {
	cp.Status = types.StatusIdle
	if err := m.deps.Checkpoints.Save(ctx, cp); err != nil {
		return err
	}
	return m.deps.Checkpoints.Clear(ctx)
}

// isFatal reports errors that end the run instead of counting against one entry.
func isFatal(ctx context.Context, err error) bool {
	var capErr *types.CapabilityError
	if errors.As(err, &capErr) {
		return true
	}
	return ctx.Err() != nil
}

func (m *Machine) processEntry(ctx context.Context, cp *types.HarvestCheckpoint, entry *types.WorkQueueEntry) error {
	t := m.deps.Timings

	// 1. category
	current, err := m.deps.Navigator.CurrentCategory(ctx)
	if err != nil {
		return err
	}
	if current == "" || !navigation.SameCategory(current, entry.Category) {
		m.emit(cp, StepNavigate, "switching category to "+entry.Category, nil)
		ok, err := m.deps.Navigator.NavigateTo(ctx, navigation.ParsePath(entry.Category))
		if err != nil {
			return err
		}
		if !ok {
			return &navigation.Error{Path: navigation.ParsePath(entry.Category), Message: "category not reached"}
		}
		if err := m.deps.Pacer.Sleep(ctx, t.CategorySettle); err != nil {
			return err
		}
	}

	// 2. search
	keyword := DeriveKeyword(entry.Title)
	m.emit(cp, StepSearch, "searching "+keyword, nil)
	if err := m.deps.Page.Search(ctx, keyword); err != nil {
		return err
	}
	for waited := time.Duration(0); waited < t.SearchWait && !m.control.Skipped(); waited += t.SearchPoll {
		if err := m.deps.Pacer.Sleep(ctx, t.SearchPoll); err != nil {
			return err
		}
	}
	if m.control.Skipped() {
		return errSkipped
	}

	// 3. selection
	if err := m.deps.Pacer.Sleep(ctx, t.SelectionSettle); err != nil {
		return err
	}
	rows, err := m.deps.Page.Rows(ctx)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		m.emit(cp, StepSelect, "search returned no rows", nil)
		return nil
	}
	req := m.selectionRequest(cp, entry, keyword, rows)
	m.emit(cp, StepSelect, fmt.Sprintf("waiting for selection among %d rows", len(rows)), req)
	selected, err := m.deps.Selector.Select(ctx, req)
	if err != nil {
		return err
	}
	if len(selected) == 0 {
		m.emit(cp, StepSelect, "operator selected nothing", nil)
		return nil
	}

	// 4. downloads
	lib, err := m.library(ctx)
	if err != nil {
		return err
	}
	day := m.deps.Now()
	seq := entry.ExistingIDs.Len()
	for _, row := range selected {
		rec, ok := m.deps.Records.Resolve(row)
		if !ok {
			m.deps.Log.WithField("row", row.Index).Warn("no record for selected row")
			continue
		}
		fresh := m.newVideos(cp, entry, rec)
		if len(fresh) == 0 {
			m.emit(cp, StepDownload, "all videos already exist", nil)
			if err := m.deps.Pacer.Sleep(ctx, t.ExistingPause); err != nil {
				return err
			}
			continue
		}

		downloaded := 0
		for k, v := range fresh {
			// A skip also ends every later row of this entry.
			if m.control.Skipped() {
				break
			}
			seq++
			name := inventory.Filename(entry.Title, entry.Category, seq, v.ID)
			m.emit(cp, StepDownload, fmt.Sprintf("downloading %d/%d", k+1, len(fresh)), v)
			if _, err := saveMedia(ctx, lib, m.deps.Media, day, name, v.URL); err != nil {
				if isFatal(ctx, err) {
					return err
				}
				m.deps.Log.WithError(err).WithField("video_id", v.ID).Warn("download failed")
			} else {
				downloaded++
				cp.GlobalExistingIDs.Add(v.ID)
				if err := m.deps.Checkpoints.Save(ctx, cp); err != nil {
					return fmt.Errorf("failed to persist downloaded id: %w", err)
				}
			}
			if err := m.deps.Pacer.Sleep(ctx, t.DownloadPause); err != nil {
				return err
			}
		}
		if downloaded > 0 {
			cp.SuccessCount++
		}
	}
	return nil
}

// library opens the granted media root, failing with a capability error
// when there is none or it is no longer usable.
func (m *Machine) library(ctx context.Context) (*inventory.Library, error) {
	grant, err := m.deps.Handles.Load(ctx)
	if err != nil {
		return nil, &types.CapabilityError{Message: "cannot read directory grant", Cause: err}
	}
	if grant == nil {
		return nil, &types.CapabilityError{Message: "cannot restore directory", Cause: ErrNoCapability}
	}
	lib := inventory.NewLibrary(*grant, m.deps.Log)
	if err := lib.Check(); err != nil {
		return nil, err
	}
	return lib, nil
}

// newVideos filters out videos already on disk globally or for the entry.
func (m *Machine) newVideos(cp *types.HarvestCheckpoint, entry *types.WorkQueueEntry, rec types.ListingRecord) []types.VideoRef {
	var fresh []types.VideoRef
	for _, v := range listing.Videos(rec) {
		if cp.GlobalExistingIDs.Has(v.ID) || entry.ExistingIDs.Has(v.ID) {
			continue
		}
		fresh = append(fresh, v)
	}
	return fresh
}

func (m *Machine) emit(cp *types.HarvestCheckpoint, step, message string, content any) {
	if m.deps.OnProgress == nil {
		return
	}
	m.deps.OnProgress(ProgressEvent{
		Step:         step,
		Message:      message,
		RunID:        cp.RunID,
		Index:        cp.CurrentIndex,
		Total:        len(cp.Queue),
		SuccessCount: cp.SuccessCount,
		ErrorCount:   cp.ErrorCount,
		Content:      content,
	})
}
