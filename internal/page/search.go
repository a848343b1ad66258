package page

import (
	"context"
	"fmt"
)

// Search types keyword into the listing search box and submits it with Enter,
// then clicks the search button when one is rendered.
func (p *Page) Search(ctx context.Context, keyword string) error {
	if err := p.setSearch(ctx, keyword); err != nil {
		return err
	}
	if err := sleep(ctx, p.opts.InputSettle); err != nil {
		return err
	}
	var ok bool
	if err := p.eval(ctx, script(fmt.Sprintf(`
		const el = __first(%s);
		if (!el) return false;
		__enter(el);
		const btn = %s ? __first(%s) : null;
		if (btn) btn.click();
		return true;`, jsString(p.sel.SearchInput), jsString(p.sel.SearchButton), jsString(p.sel.SearchButton))), &ok); err != nil {
		return err
	}
	if !ok {
		return &ControlNotFoundError{Control: "search input", Selector: p.sel.SearchInput}
	}
	p.log.WithField("keyword", keyword).Debug("search submitted")
	return nil
}

// ClearSearch empties the search box and submits the empty query.
func (p *Page) ClearSearch(ctx context.Context) error {
	if err := p.setSearch(ctx, ""); err != nil {
		return err
	}
	if err := sleep(ctx, p.opts.ClearSettle); err != nil {
		return err
	}
	var ok bool
	return p.eval(ctx, script(fmt.Sprintf(`
		const el = __first(%s);
		if (el) __enter(el);
		return true;`, jsString(p.sel.SearchInput))), &ok)
}

func (p *Page) setSearch(ctx context.Context, value string) error {
	var ok bool
	if err := p.eval(ctx, script(fmt.Sprintf(`
		const el = __first(%s);
		if (!el) return false;
		el.focus();
		__setValue(el, %s);
		return true;`, jsString(p.sel.SearchInput), jsString(value))), &ok); err != nil {
		return err
	}
	if !ok {
		return &ControlNotFoundError{Control: "search input", Selector: p.sel.SearchInput}
	}
	return nil
}
