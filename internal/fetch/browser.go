// Package fetch - browser.go owns the Chrome instance that renders the analytics page.
package fetch

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/sirupsen/logrus"
)

// DefaultLoadTimeout bounds the initial page load.
const DefaultLoadTimeout = 60 * time.Second

// BrowserOptions selects how Chrome is obtained.
type BrowserOptions struct {
	// RemoteURL attaches to an already running Chrome (its DevTools endpoint).
	RemoteURL   string
	ExecPath    string
	UserDataDir string
	Headless    bool
	UserAgent   string
	LoadTimeout time.Duration
}

// Browser is one Chrome tab plus the allocator that owns it.
type Browser struct {
	ctx     context.Context
	cancels []context.CancelFunc
	opts    BrowserOptions
	log     *logrus.Entry
}

// allocatorOptions returns the exec allocator flags for opts.
func allocatorOptions(opts BrowserOptions) []chromedp.ExecAllocatorOption {
	flags := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	flags = append(flags,
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("disable-gpu", opts.Headless),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if opts.ExecPath != "" {
		flags = append(flags, chromedp.ExecPath(opts.ExecPath))
	}
	if opts.UserDataDir != "" {
		flags = append(flags, chromedp.UserDataDir(opts.UserDataDir))
	}
	if opts.UserAgent != "" {
		flags = append(flags, chromedp.UserAgent(opts.UserAgent))
	}
	return flags
}

// OpenBrowser launches Chrome, or attaches to RemoteURL, and opens a tab.
// The tab lives until Close or until parent is cancelled.
func OpenBrowser(parent context.Context, opts BrowserOptions, log *logrus.Entry) (*Browser, error) {
	if opts.LoadTimeout <= 0 {
		opts.LoadTimeout = DefaultLoadTimeout
	}

	var (
		allocCtx    context.Context
		allocCancel context.CancelFunc
	)
	if opts.RemoteURL != "" {
		allocCtx, allocCancel = chromedp.NewRemoteAllocator(parent, opts.RemoteURL)
	} else {
		allocCtx, allocCancel = chromedp.NewExecAllocator(parent, allocatorOptions(opts)...)
	}

	tabCtx, tabCancel := chromedp.NewContext(allocCtx, chromedp.WithLogf(log.Debugf), chromedp.WithErrorf(log.Errorf))

	// Run with no actions starts the browser and allocates the tab.
	if err := chromedp.Run(tabCtx); err != nil {
		tabCancel()
		allocCancel()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}

	log.WithFields(logrus.Fields{
		"remote":   opts.RemoteURL != "",
		"headless": opts.Headless,
	}).Info("browser started")

	return &Browser{
		ctx:     tabCtx,
		cancels: []context.CancelFunc{tabCancel, allocCancel},
		opts:    opts,
		log:     log,
	}, nil
}

// Context returns the chromedp tab context.
func (b *Browser) Context() context.Context {
	return b.ctx
}

// Run executes actions in the tab, aborting when ctx is cancelled.
func (b *Browser) Run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(b.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return nil
}

// Open navigates the tab to url and waits for the body to be ready.
func (b *Browser) Open(ctx context.Context, url string) error {
	loadCtx, cancel := context.WithTimeout(ctx, b.opts.LoadTimeout)
	defer cancel()

	b.log.WithField("url", url).Info("opening page")
	if err := b.Run(loadCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body"),
	); err != nil {
		return &Error{URL: url, Message: "page load failed", Cause: err}
	}
	return nil
}

// Close closes the tab and, for a launched Chrome, the browser.
func (b *Browser) Close() {
	for _, cancel := range b.cancels {
		cancel()
	}
	b.cancels = nil
}
