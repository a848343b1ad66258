package page

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"sync"

	cdpfetch "github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/chromedp"
	"github.com/sirupsen/logrus"

	"github.com/jonathan/compass-harvester/internal/fetch"
	"github.com/jonathan/compass-harvester/internal/interceptor"
)

// Interception pauses matching responses in the tab and hands them to the
// interceptor one at a time, in arrival order.
type Interception struct {
	browser *fetch.Browser
	ic      *interceptor.Interceptor
	log     *logrus.Entry

	mu      sync.Mutex
	pending []*cdpfetch.EventRequestPaused
	notify  chan struct{}

	cancel context.CancelFunc
	done   chan struct{}
}

// patterns returns response-stage patterns for each URL substring target.
func patterns(targets []string) []*cdpfetch.RequestPattern {
	out := make([]*cdpfetch.RequestPattern, 0, len(targets))
	for _, t := range targets {
		out = append(out, &cdpfetch.RequestPattern{
			URLPattern:   "*" + t + "*",
			RequestStage: cdpfetch.RequestStageResponse,
		})
	}
	return out
}

// Intercept enables response interception for the interceptor's targets.
// Call Stop to disable it.
func Intercept(ctx context.Context, browser *fetch.Browser, ic *interceptor.Interceptor, log *logrus.Entry) (*Interception, error) {
	in := &Interception{
		browser: browser,
		ic:      ic,
		log:     log,
		notify:  make(chan struct{}, 1),
		done:    make(chan struct{}),
	}

	chromedp.ListenTarget(browser.Context(), func(ev any) {
		if e, ok := ev.(*cdpfetch.EventRequestPaused); ok {
			in.enqueue(e)
		}
	})

	if err := browser.Run(ctx, cdpfetch.Enable().WithPatterns(patterns(ic.Targets()))); err != nil {
		return nil, fmt.Errorf("failed to enable interception: %w", err)
	}

	workerCtx, cancel := context.WithCancel(context.Background())
	in.cancel = cancel
	go in.work(workerCtx)

	log.WithField("targets", ic.Targets()).Info("response interception enabled")
	return in, nil
}

// enqueue never blocks the CDP event loop.
func (in *Interception) enqueue(e *cdpfetch.EventRequestPaused) {
	in.mu.Lock()
	in.pending = append(in.pending, e)
	in.mu.Unlock()
	select {
	case in.notify <- struct{}{}:
	default:
	}
}

func (in *Interception) next() *cdpfetch.EventRequestPaused {
	in.mu.Lock()
	defer in.mu.Unlock()
	if len(in.pending) == 0 {
		return nil
	}
	e := in.pending[0]
	in.pending = in.pending[1:]
	return e
}

func (in *Interception) work(ctx context.Context) {
	defer close(in.done)
	for {
		for e := in.next(); e != nil; e = in.next() {
			if err := in.handle(ctx, e); err != nil && ctx.Err() == nil {
				in.log.WithError(err).WithField("url", e.Request.URL).Warn("failed to handle paused response")
			}
		}
		select {
		case <-ctx.Done():
			return
		case <-in.notify:
		}
	}
}

func (in *Interception) handle(ctx context.Context, e *cdpfetch.EventRequestPaused) error {
	return in.browser.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		status := int(e.ResponseStatusCode)
		if e.ResponseErrorReason != "" || status < 200 || status > 299 {
			return cdpfetch.ContinueRequest(e.RequestID).Do(ctx)
		}

		body, err := cdpfetch.GetResponseBody(e.RequestID).Do(ctx)
		if err != nil {
			_ = cdpfetch.ContinueRequest(e.RequestID).Do(ctx)
			return fmt.Errorf("failed to read response body: %w", err)
		}

		resp := in.ic.Wrap(string(e.RequestID), e.Request.URL, status, body)
		if !resp.Rewritten() {
			return cdpfetch.ContinueRequest(e.RequestID).Do(ctx)
		}
		return cdpfetch.FulfillRequest(e.RequestID, e.ResponseStatusCode).
			WithResponseHeaders(fulfillHeaders(e.ResponseHeaders)).
			WithBody(base64.StdEncoding.EncodeToString(resp.Body())).
			Do(ctx)
	}))
}

// fulfillHeaders drops headers that no longer describe the rewritten body.
func fulfillHeaders(in []*cdpfetch.HeaderEntry) []*cdpfetch.HeaderEntry {
	out := make([]*cdpfetch.HeaderEntry, 0, len(in))
	for _, h := range in {
		switch strings.ToLower(h.Name) {
		case "content-length", "content-encoding":
			continue
		}
		out = append(out, h)
	}
	return out
}

// Stop disables interception and waits for the worker to exit.
func (in *Interception) Stop(ctx context.Context) error {
	in.cancel()
	<-in.done
	if err := in.browser.Run(ctx, cdpfetch.Disable()); err != nil {
		return fmt.Errorf("failed to disable interception: %w", err)
	}
	return nil
}
