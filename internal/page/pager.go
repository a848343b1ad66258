package page

import (
	"context"
	"fmt"

	"github.com/jonathan/compass-harvester/internal/collect"
)

// Pager implements collect.Pager over the page's pagination control.
type Pager struct {
	p *Page
}

var _ collect.Pager = (*Pager)(nil)

// Pager returns the pagination driver of the page.
func (p *Page) Pager() *Pager {
	return &Pager{p: p}
}

// NextPage clicks "next page" unless it is missing or disabled.
func (g *Pager) NextPage(ctx context.Context) (bool, error) {
	var ok bool
	err := g.p.eval(ctx, script(fmt.Sprintf(`
		const el = __first(%s);
		if (!el) return false;
		const disabled = %s;
		if ((disabled && el.classList.contains(disabled)) || el.getAttribute('aria-disabled') === 'true') return false;
		el.click();
		return true;`, jsString(g.p.sel.NextPage), jsString(g.p.sel.DisabledClass))), &ok)
	return ok, err
}

// FirstPage clicks the page item labelled "1".
func (g *Pager) FirstPage(ctx context.Context) (bool, error) {
	var ok bool
	err := g.p.eval(ctx, script(fmt.Sprintf(`
		const el = Array.from(document.querySelectorAll(%s))
			.find((n) => __visible(n) && ((n.getAttribute('title') || '').trim() === '1' || (n.textContent || '').trim() === '1'));
		if (!el) return false;
		(el.querySelector('a') || el).click();
		return true;`, jsString(g.p.sel.PageItem))), &ok)
	return ok, err
}
