package page

import (
	"context"
	"fmt"
	"strings"

	"github.com/jonathan/compass-harvester/internal/navigation"
)

// Picker implements navigation.Picker over the page's cascader control.
type Picker struct {
	p *Page
}

var _ navigation.Picker = (*Picker)(nil)

// Picker returns the category picker of the page.
func (p *Page) Picker() *Picker {
	return &Picker{p: p}
}

func (k *Picker) menusExpr() string {
	return fmt.Sprintf(`Array.from(document.querySelectorAll(%s)).filter(__visible)`, jsString(k.p.sel.Menu))
}

// Open clicks the visible picker trigger.
func (k *Picker) Open(ctx context.Context) (bool, error) {
	var ok bool
	err := k.p.eval(ctx, script(fmt.Sprintf(`
		const el = __first(%s);
		if (!el) return false;
		__press(el);
		return true;`, jsString(k.p.sel.PickerTrigger))), &ok)
	return ok, err
}

type rawOption struct {
	Text  string `json:"text"`
	Level int    `json:"level"`
	Index int    `json:"index"`
}

// Options lists the visible entries of every open menu level.
func (k *Picker) Options(ctx context.Context) ([]navigation.Option, error) {
	var raw []rawOption
	err := k.p.eval(ctx, script(fmt.Sprintf(`
		const out = [];
		%s.forEach((menu, level) => {
			Array.from(menu.querySelectorAll(%s)).forEach((item, index) => {
				if (__visible(item)) out.push({text: (item.textContent || '').trim(), level, index});
			});
		});
		return out;`, k.menusExpr(), jsString(k.p.sel.MenuItem))), &raw)
	if err != nil {
		return nil, err
	}
	opts := make([]navigation.Option, len(raw))
	for i, r := range raw {
		opts[i] = navigation.Option{Text: r.Text, Level: r.Level, Index: r.Index}
	}
	return opts, nil
}

// MenuCount returns the number of visible menu levels.
func (k *Picker) MenuCount(ctx context.Context) (int, error) {
	var n int
	err := k.p.eval(ctx, script(fmt.Sprintf(`return %s.length;`, k.menusExpr())), &n)
	return n, err
}

// Click presses the option at (opt.Level, opt.Index).
func (k *Picker) Click(ctx context.Context, opt navigation.Option) error {
	var ok bool
	err := k.p.eval(ctx, script(fmt.Sprintf(`
		const menu = %s[%d];
		if (!menu) return false;
		const item = menu.querySelectorAll(%s)[%d];
		if (!item) return false;
		__press(item);
		return true;`, k.menusExpr(), opt.Level, jsString(k.p.sel.MenuItem), opt.Index)), &ok)
	if err != nil {
		return err
	}
	if !ok {
		return &ControlNotFoundError{Control: "menu option " + opt.Text, Selector: k.p.sel.MenuItem}
	}
	return nil
}

// Confirm clicks the picker's confirm button when one is rendered.
func (k *Picker) Confirm(ctx context.Context) (bool, error) {
	var ok bool
	err := k.p.eval(ctx, script(fmt.Sprintf(`
		const el = __first(%s);
		if (!el) return false;
		__press(el);
		return true;`, jsString(k.p.sel.Confirm))), &ok)
	return ok, err
}

// Dismiss closes the picker by clicking the page body.
func (k *Picker) Dismiss(ctx context.Context) error {
	var ok bool
	return k.p.eval(ctx, script(`document.body.click(); return true;`), &ok)
}

// Label returns the visible category label text.
func (k *Picker) Label(ctx context.Context) (string, error) {
	var text string
	err := k.p.eval(ctx, script(fmt.Sprintf(`
		const el = __first(%s);
		return el ? (el.textContent || '') : '';`, jsString(k.p.sel.PickerLabel))), &text)
	return strings.TrimSpace(text), err
}
