package page

import (
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/chromedp"

	"github.com/jonathan/compass-harvester/internal/config"
	"github.com/jonathan/compass-harvester/internal/types"
)

// Rows returns the result rows currently rendered, in display order.
func (p *Page) Rows(ctx context.Context) ([]types.Row, error) {
	var html string
	if err := p.browser.Run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return nil, fmt.Errorf("failed to read page HTML: %w", err)
	}
	return parseRows(html, p.sel)
}

// parseRows extracts rows from rendered page HTML. The row title prefers the
// title attribute of the title cell over its text.
func parseRows(html string, sel config.SelectorsConfig) ([]types.Row, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	rows := []types.Row{}
	doc.Find(sel.Row).Each(func(i int, s *goquery.Selection) {
		row := types.Row{Index: len(rows)}
		row.RowKey, _ = s.Attr("data-row-key")

		cell := s.Find(sel.RowTitle).First()
		if title, ok := cell.Attr("title"); ok && strings.TrimSpace(title) != "" {
			row.Title = strings.TrimSpace(title)
		} else {
			row.Title = strings.TrimSpace(cell.Text())
		}
		rows = append(rows, row)
	})
	return rows, nil
}
