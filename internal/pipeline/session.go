// Package pipeline wires configuration, storage, the browser session and the
// harvest state machine together for the commands and the control API.
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/jonathan/compass-harvester/internal/collect"
	"github.com/jonathan/compass-harvester/internal/config"
	"github.com/jonathan/compass-harvester/internal/fetch"
	"github.com/jonathan/compass-harvester/internal/harvest"
	"github.com/jonathan/compass-harvester/internal/interceptor"
	"github.com/jonathan/compass-harvester/internal/navigation"
	"github.com/jonathan/compass-harvester/internal/page"
	"github.com/jonathan/compass-harvester/internal/store"
)

// OpenStore opens the configured backend and takes the single-process run lock.
// With forceUnlock an existing lock is removed first.
func OpenStore(ctx context.Context, cfg *config.Config, forceUnlock bool, log *logrus.Entry) (*store.Backend, error) {
	backend, err := store.Open(ctx, cfg.Store, log)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	if forceUnlock {
		if err := backend.ForceUnlock(); err != nil {
			backend.Close() //nolint:errcheck
			return nil, err
		}
		log.WithField("dir", cfg.Store.Dir).Warn("run lock removed")
	}
	if err := backend.Lock(); err != nil {
		backend.Close() //nolint:errcheck
		return nil, err
	}
	return backend, nil
}

// Session is one open analytics page with response interception enabled.
type Session struct {
	Config       *config.Config
	Browser      *fetch.Browser
	Interception *page.Interception
	Page         *page.Page
	Navigator    *navigation.Navigator
	Records      *collect.State
	Log          *logrus.Entry
}

// OpenSession starts Chrome, enables interception of the listing endpoints
// and loads the analytics page.
func OpenSession(ctx context.Context, cfg *config.Config, log *logrus.Entry) (*Session, error) {
	browser, err := fetch.OpenBrowser(ctx, BrowserOptions(cfg.Browser), log.WithField("component", "browser"))
	if err != nil {
		return nil, err
	}

	records := collect.NewState()
	ic := interceptor.New(records, interceptor.Options{
		Targets:   cfg.Targets,
		ListField: cfg.ListField,
	}, log.WithField("component", "interceptor"))

	in, err := page.Intercept(ctx, browser, ic, log.WithField("component", "intercept"))
	if err != nil {
		browser.Close()
		return nil, err
	}
	if err := browser.Open(ctx, cfg.Page.URL); err != nil {
		in.Stop(context.Background()) //nolint:errcheck
		browser.Close()
		return nil, err
	}

	pg := page.New(browser, cfg.Selectors, PageOptions(cfg.Timing), log.WithField("component", "page"))
	s := &Session{
		Config:       cfg,
		Browser:      browser,
		Interception: in,
		Page:         pg,
		Navigator:    navigation.New(pg.Picker(), NavigatorOptions(cfg.Timing), log.WithField("component", "navigation")),
		Records:      records,
		Log:          log,
	}
	log.WithField("url", cfg.Page.URL).Info("analytics page loaded")
	return s, nil
}

// Close disables interception and closes the browser.
func (s *Session) Close() error {
	var errs []error
	if s.Interception != nil {
		if err := s.Interception.Stop(context.Background()); err != nil {
			errs = append(errs, err)
		}
	}
	if s.Browser != nil {
		s.Browser.Close()
	}
	return errors.Join(errs...)
}

// Collector returns a collection run over the session's pagination control.
func (s *Session) Collector() *collect.Collector {
	return collect.NewCollector(s.Records, s.Page.Pager(), CollectOptions(s.Config.Collect), s.Log.WithField("component", "collect"))
}

// MachineOptions are the per-command parts of a harvest machine.
type MachineOptions struct {
	Selector   harvest.Selector
	OnProgress harvest.ProgressCallback
}

// Machine builds the harvest state machine over the session and backend.
func (s *Session) Machine(backend *store.Backend, opts MachineOptions) *harvest.Machine {
	return harvest.New(harvest.Deps{
		Checkpoints: backend.Checkpoints,
		Handles:     backend.Handles,
		Navigator:   s.Navigator,
		Page:        s.Page,
		Records:     s.Records,
		Selector:    opts.Selector,
		Media:       Downloader(s.Config.Download),
		History:     backend.Runs,
		Timings:     Timings(s.Config.Timing),
		OnProgress:  opts.OnProgress,
		Log:         s.Log.WithField("component", "harvest"),
	})
}
