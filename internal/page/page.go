// Package page binds the harvester to the live analytics page through chromedp:
// response interception, the category picker, the search box, result rows and
// pagination.
package page

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/sirupsen/logrus"

	"github.com/jonathan/compass-harvester/internal/config"
	"github.com/jonathan/compass-harvester/internal/fetch"
)

// Options holds the page-side settle delays.
type Options struct {
	InputSettle time.Duration
	ClearSettle time.Duration
}

// DefaultOptions returns the delays the host page needs between input and submit.
func DefaultOptions() Options {
	return Options{
		InputSettle: 500 * time.Millisecond,
		ClearSettle: 200 * time.Millisecond,
	}
}

// Page drives the rendered analytics page.
type Page struct {
	browser *fetch.Browser
	sel     config.SelectorsConfig
	opts    Options
	log     *logrus.Entry
}

// New creates a Page over an open browser tab.
func New(browser *fetch.Browser, sel config.SelectorsConfig, opts Options, log *logrus.Entry) *Page {
	return &Page{browser: browser, sel: sel, opts: opts, log: log}
}

// eval runs a script in the tab and decodes its result into out.
func (p *Page) eval(ctx context.Context, script string, out any) error {
	if err := p.browser.Run(ctx, chromedp.Evaluate(script, out)); err != nil {
		return fmt.Errorf("page script failed: %w", err)
	}
	return nil
}

// sleep waits d or until ctx is done.
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

// jsString quotes s as a JavaScript string literal.
func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

// helpers is prepended to every page script.
const helpers = `
const __visible = (el) => {
	if (!el) return false;
	const r = el.getBoundingClientRect();
	if (r.width === 0 || r.height === 0) return false;
	const s = window.getComputedStyle(el);
	return s.display !== 'none' && s.visibility !== 'hidden';
};
const __first = (sel) => Array.from(document.querySelectorAll(sel)).find(__visible) || null;
const __press = (el) => {
	for (const type of ['pointerdown', 'mousedown', 'pointerup', 'mouseup', 'click']) {
		el.dispatchEvent(new MouseEvent(type, {bubbles: true, cancelable: true, view: window}));
	}
};
const __enter = (el) => {
	for (const type of ['keydown', 'keypress', 'keyup']) {
		el.dispatchEvent(new KeyboardEvent(type, {key: 'Enter', code: 'Enter', keyCode: 13, which: 13, bubbles: true}));
	}
};
const __setValue = (el, value) => {
	const setter = Object.getOwnPropertyDescriptor(HTMLInputElement.prototype, 'value').set;
	setter.call(el, value);
	el.dispatchEvent(new Event('input', {bubbles: true}));
	el.dispatchEvent(new Event('change', {bubbles: true}));
};
`

// script wraps body in an expression that returns its value.
func script(body string) string {
	return "(() => {" + helpers + body + "})()"
}
