package collect

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jonathan/compass-harvester/internal/listing"
)

// Pager drives the host page's pagination control.
type Pager interface {
	// NextPage clicks "next page". It returns false when the control is
	// missing or disabled.
	NextPage(ctx context.Context) (bool, error)
	// FirstPage clicks the page "1" item. It returns false when the item is absent.
	FirstPage(ctx context.Context) (bool, error)
}

// Options tunes a collection run.
type Options struct {
	MaxPages     int
	GrowthPolls  int
	PollInterval time.Duration
	InjectSettle time.Duration
	// Now stamps days_online; defaults to time.Now.
	Now func() time.Time
}

// DefaultOptions returns the timings of the interactive tool.
func DefaultOptions() Options {
	return Options{
		MaxPages:     25,
		GrowthPolls:  30,
		PollInterval: 200 * time.Millisecond,
		InjectSettle: 3 * time.Second,
		Now:          time.Now,
	}
}

// Progress reports collection progress after each page.
type Progress func(page, collected int)

// Result summarizes a collection run.
type Result struct {
	Pages     int  `json:"pages"`
	Collected int  `json:"collected"`
	Injected  bool `json:"injected"`
}

// Collector pages through the listing and accumulates every response in State.
type Collector struct {
	state *State
	pager Pager
	opts  Options
	log   *logrus.Entry
}

// NewCollector wires a collector. Zero option fields take defaults.
func NewCollector(state *State, pager Pager, opts Options, log *logrus.Entry) *Collector {
	def := DefaultOptions()
	if opts.MaxPages <= 0 {
		opts.MaxPages = def.MaxPages
	}
	if opts.GrowthPolls <= 0 {
		opts.GrowthPolls = def.GrowthPolls
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = def.PollInterval
	}
	if opts.InjectSettle < 0 {
		opts.InjectSettle = 0
	}
	if opts.Now == nil {
		opts.Now = def.Now
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Collector{state: state, pager: pager, opts: opts, log: log}
}

// Run clears the store, collects up to MaxPages pages, then arms injection and
// returns to page 1 so the page renders the accumulated list. Every record is
// annotated with days_online before returning. Collection is disarmed on exit.
func (c *Collector) Run(ctx context.Context, progress Progress) (*Result, error) {
	c.state.Clear()
	c.state.SetInject(false)
	c.state.SetCollecting(true)
	defer c.state.SetCollecting(false)

	res := &Result{}
	for page := 0; page < c.opts.MaxPages; page++ {
		before := c.state.Len()
		ok, err := c.pager.NextPage(ctx)
		if err != nil {
			return res, fmt.Errorf("failed to advance page %d: %w", page+1, err)
		}
		if !ok {
			c.log.WithField("page", page+1).Debug("next page unavailable, stopping")
			break
		}
		res.Pages++
		if err := c.waitForGrowth(ctx, before); err != nil {
			return res, err
		}
		if progress != nil {
			progress(res.Pages, c.state.Len())
		}
	}

	c.state.SetInject(true)
	ok, err := c.pager.FirstPage(ctx)
	if err != nil {
		return res, fmt.Errorf("failed to return to first page: %w", err)
	}
	if ok {
		res.Injected = true
		if err := sleep(ctx, c.opts.InjectSettle); err != nil {
			return res, err
		}
	}

	c.annotate()
	res.Collected = c.state.Len()
	c.log.WithFields(logrus.Fields{"pages": res.Pages, "collected": res.Collected}).Info("collection finished")
	return res, nil
}

func (c *Collector) waitForGrowth(ctx context.Context, before int) error {
	for i := 0; i < c.opts.GrowthPolls; i++ {
		if c.state.Len() > before {
			return nil
		}
		if err := sleep(ctx, c.opts.PollInterval); err != nil {
			return err
		}
	}
	return nil
}

func (c *Collector) annotate() {
	now := c.opts.Now()
	items := c.state.Items()
	for _, rec := range items {
		if days, ok := listing.DaysOnline(rec, now); ok {
			rec[listing.DaysOnlineKey] = days
		}
	}
	c.state.Replace(items)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
