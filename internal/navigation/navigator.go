// Package navigation switches the host page's category without reloading it.
package navigation

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// AllSegment is the picker entry meaning "no further narrowing".
const AllSegment = "全部"

// Option is one rendered picker entry.
type Option struct {
	Text  string
	Level int
	Index int
}

// Picker is the page-side primitive set the navigator drives.
// Implementations only ever report visible, non-zero-size elements.
type Picker interface {
	// Open clicks the visible picker trigger. It returns false when no trigger is visible.
	Open(ctx context.Context) (bool, error)
	// Options lists the entries of every open menu level.
	Options(ctx context.Context) ([]Option, error)
	// MenuCount returns the number of open menu levels.
	MenuCount(ctx context.Context) (int, error)
	// Click selects opt with a full pointer down/up/click sequence.
	Click(ctx context.Context, opt Option) error
	// Confirm clicks the picker's confirm control. It returns false when there is none.
	Confirm(ctx context.Context) (bool, error)
	// Dismiss closes the picker by clicking outside it.
	Dismiss(ctx context.Context) error
	// Label returns the visible category label text, or "" when none is visible.
	Label(ctx context.Context) (string, error)
}

// Options tunes retry counts and settle delays.
type Options struct {
	MenuAttempts int
	MenuBackoff  time.Duration
	OpenSettle   time.Duration
	ClickSettle  time.Duration
	StepSettle   time.Duration
	FinalSettle  time.Duration
}

// DefaultOptions mirrors the pacing the host page tolerates.
func DefaultOptions() Options {
	return Options{
		MenuAttempts: 5,
		MenuBackoff:  500 * time.Millisecond,
		OpenSettle:   time.Second,
		ClickSettle:  time.Second,
		StepSettle:   500 * time.Millisecond,
		FinalSettle:  2 * time.Second,
	}
}

// Navigator drives a Picker through a category path.
type Navigator struct {
	picker Picker
	opts   Options
	log    *logrus.Entry
}

// New creates a navigator. A zero Options uses DefaultOptions.
func New(picker Picker, opts Options, log *logrus.Entry) *Navigator {
	if opts == (Options{}) {
		opts = DefaultOptions()
	}
	if opts.MenuAttempts <= 0 {
		opts.MenuAttempts = 1
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Navigator{picker: picker, opts: opts, log: log}
}

// ParsePath splits "A/B/C/全部" into its selectable segments.
func ParsePath(s string) []string {
	var out []string
	for _, seg := range strings.Split(s, "/") {
		seg = strings.TrimSpace(seg)
		if seg == "" || seg == AllSegment {
			continue
		}
		out = append(out, seg)
	}
	return out
}

var slashSpaces = regexp.MustCompile(`\s*/\s*`)

// NormalizeLabel collapses spacing around slashes and drops a trailing "/全部".
func NormalizeLabel(s string) string {
	s = slashSpaces.ReplaceAllString(strings.TrimSpace(s), "/")
	return strings.TrimSuffix(s, "/"+AllSegment)
}

// SameCategory compares two category strings ignoring all whitespace.
func SameCategory(a, b string) bool {
	return squash(a) == squash(b)
}

// CurrentCategory returns the normalized label of the visible picker.
func (n *Navigator) CurrentCategory(ctx context.Context) (string, error) {
	label, err := n.picker.Label(ctx)
	if err != nil {
		return "", &Error{Message: "failed to read category label", Cause: err}
	}
	return NormalizeLabel(label), nil
}

// NavigateTo selects path in the picker and verifies the displayed label.
//
// It returns false when the picker is not visible or the label does not end up
// containing the final segment. The page is never reloaded. Errors are
// reserved for driver failures and cancellation.
func (n *Navigator) NavigateTo(ctx context.Context, path []string) (bool, error) {
	segs := make([]string, 0, len(path))
	for _, p := range path {
		segs = append(segs, ParsePath(p)...)
	}
	if len(segs) == 0 {
		return false, nil
	}
	log := n.log.WithField("path", strings.Join(segs, " > "))
	fail := func(msg string, err error) (bool, error) {
		return false, &Error{Path: segs, Message: msg, Cause: err}
	}

	opened, err := n.picker.Open(ctx)
	if err != nil {
		return fail("failed to open picker", err)
	}
	if !opened {
		log.Warn("no visible category picker")
		return false, nil
	}
	if err := sleep(ctx, n.opts.OpenSettle); err != nil {
		return fail("interrupted", err)
	}

	for _, seg := range segs {
		opt, found, err := n.find(ctx, seg)
		if err != nil {
			return fail("failed to list picker options", err)
		}
		if !found {
			log.WithField("segment", seg).Warn("category node not found")
			continue
		}
		if err := n.picker.Click(ctx, opt); err != nil {
			return fail("failed to select "+seg, err)
		}
		if err := sleep(ctx, n.opts.ClickSettle); err != nil {
			return fail("interrupted", err)
		}
	}

	if err := sleep(ctx, n.opts.StepSettle); err != nil {
		return fail("interrupted", err)
	}
	if err := n.closeExtraLevel(ctx, len(segs)); err != nil {
		return fail("failed to close extra menu level", err)
	}

	if err := sleep(ctx, n.opts.StepSettle); err != nil {
		return fail("interrupted", err)
	}
	confirmed, err := n.picker.Confirm(ctx)
	if err != nil {
		return fail("failed to confirm selection", err)
	}
	if !confirmed {
		if err := n.picker.Dismiss(ctx); err != nil {
			return fail("failed to dismiss picker", err)
		}
	}
	if err := sleep(ctx, n.opts.FinalSettle); err != nil {
		return fail("interrupted", err)
	}

	current, err := n.CurrentCategory(ctx)
	if err != nil {
		return false, err
	}
	want := squash(segs[len(segs)-1])
	if got := squash(current); got == "" || !strings.Contains(got, want) {
		log.WithField("current", current).Warn("category verification failed")
		return false, nil
	}
	log.Info("category selected")
	return true, nil
}

// find polls the open menus for a visible option whose text equals seg.
func (n *Navigator) find(ctx context.Context, seg string) (Option, bool, error) {
	want := squash(seg)
	for attempt := 0; attempt < n.opts.MenuAttempts; attempt++ {
		if attempt > 0 {
			if err := sleep(ctx, n.opts.MenuBackoff); err != nil {
				return Option{}, false, err
			}
		}
		opts, err := n.picker.Options(ctx)
		if err != nil {
			return Option{}, false, err
		}
		for _, o := range opts {
			if squash(o.Text) == want {
				return o, true, nil
			}
		}
	}
	return Option{}, false, nil
}

// closeExtraLevel picks "全部"/"All" when the picker opened one more level than
// the path consumed.
func (n *Navigator) closeExtraLevel(ctx context.Context, consumed int) error {
	menus, err := n.picker.MenuCount(ctx)
	if err != nil || menus <= consumed {
		return err
	}
	opts, err := n.picker.Options(ctx)
	if err != nil {
		return err
	}
	last := menus - 1
	for _, o := range opts {
		text := strings.TrimSpace(o.Text)
		if o.Level == last && (text == AllSegment || text == "All") {
			n.log.Debug("closing extra menu level")
			if err := n.picker.Click(ctx, o); err != nil {
				return err
			}
			return sleep(ctx, n.opts.StepSettle)
		}
	}
	return nil
}

func squash(s string) string {
	return strings.Join(strings.Fields(s), "")
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
