// Package observability provides formatted output utilities for verbose CLI mode.
package observability

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/jonathan/compass-harvester/internal/collect"
	"github.com/jonathan/compass-harvester/internal/harvest"
	"github.com/jonathan/compass-harvester/internal/inventory"
	"github.com/jonathan/compass-harvester/internal/types"
)

const (
	// boxWidth is the default width for formatted output boxes
	boxWidth = 60
	// maxItemsToShow is the default number of items to display in lists
	maxItemsToShow = 5
)

// Printer handles formatted output for verbose mode
type Printer struct {
	out io.Writer
}

// NewPrinter creates a new Printer that writes to the given writer
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

// truncate shortens s to at most width terminal cells.
func truncate(s string, width int) string {
	if lipgloss.Width(s) <= width {
		return s
	}
	runes := []rune(s)
	for len(runes) > 0 && lipgloss.Width(string(runes))+3 > width {
		runes = runes[:len(runes)-1]
	}
	return string(runes) + "..."
}

// pad right-pads s to width terminal cells.
func pad(s string, width int) string {
	if w := lipgloss.Width(s); w < width {
		return s + strings.Repeat(" ", width-w)
	}
	return s
}

// printBox prints a formatted box with a title and content
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) printBox(title string, content string) {
	inner := boxWidth - 4
	border := strings.Repeat("─", boxWidth-2)
	fmt.Fprintf(p.out, "┌%s┐\n", border)
	fmt.Fprintf(p.out, "│ %s │\n", pad(title, inner))
	fmt.Fprintf(p.out, "├%s┤\n", border)

	for _, line := range strings.Split(content, "\n") {
		fmt.Fprintf(p.out, "│ %s │\n", pad(truncate(line, inner), inner))
	}

	fmt.Fprintf(p.out, "└%s┘\n", border)
}

// PrintQueue outputs the work queue rebuilt from the library.
func (p *Printer) PrintQueue(res *inventory.Result) {
	if res == nil {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Files:    %d\n", res.Files))
	sb.WriteString(fmt.Sprintf("Videos:   %d\n", res.GlobalIDs.Len()))
	sb.WriteString(fmt.Sprintf("Products: %d\n", len(res.Queue)))

	if len(res.Queue) > 0 {
		sb.WriteString("\n")
		count := min(len(res.Queue), maxItemsToShow)
		for i := 0; i < count; i++ {
			e := res.Queue[i]
			sb.WriteString(fmt.Sprintf("  • %s [%s] %d videos\n", strings.TrimSpace(e.Title), e.Category, e.ExistingIDs.Len()))
		}
		if len(res.Queue) > maxItemsToShow {
			sb.WriteString(fmt.Sprintf("  ... and %d more\n", len(res.Queue)-maxItemsToShow))
		}
	}

	p.printBox("WORK QUEUE", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintCheckpoint outputs the stored harvest position.
func (p *Printer) PrintCheckpoint(cp *types.HarvestCheckpoint) {
	if cp == nil {
		p.printBox("HARVEST", "No harvest pending")
		return
	}

	var sb strings.Builder
	if cp.RunID != "" {
		sb.WriteString(fmt.Sprintf("Run:      %s\n", cp.RunID))
	}
	sb.WriteString(fmt.Sprintf("Status:   %s\n", cp.Status))
	sb.WriteString(fmt.Sprintf("Progress: %d / %d\n", min(cp.CurrentIndex, len(cp.Queue)), len(cp.Queue)))
	sb.WriteString(fmt.Sprintf("Success:  %d\n", cp.SuccessCount))
	sb.WriteString(fmt.Sprintf("Errors:   %d\n", cp.ErrorCount))
	if !cp.Done() {
		next := cp.Queue[cp.CurrentIndex]
		sb.WriteString(fmt.Sprintf("Next:     %s [%s]\n", strings.TrimSpace(next.Title), next.Category))
	}
	if !cp.UpdatedAt.IsZero() {
		sb.WriteString(fmt.Sprintf("Updated:  %s\n", cp.UpdatedAt.Format("2006-01-02 15:04:05")))
	}

	p.printBox("HARVEST", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintSummary outputs the outcome of a start or resume.
func (p *Printer) PrintSummary(s *harvest.Summary) {
	if s == nil {
		return
	}

	var sb strings.Builder
	switch {
	case s.Completed:
		sb.WriteString("Outcome:   completed\n")
	case s.Stopped:
		sb.WriteString("Outcome:   stopped\n")
	case s.RunID == "" && s.Processed == 0:
		sb.WriteString("Outcome:   nothing to resume\n")
	default:
		sb.WriteString("Outcome:   interrupted\n")
	}
	if s.RunID != "" {
		sb.WriteString(fmt.Sprintf("Run:       %s\n", s.RunID))
	}
	if s.Resumed {
		sb.WriteString("Resumed:   yes\n")
	}
	sb.WriteString(fmt.Sprintf("Processed: %d\n", s.Processed))
	sb.WriteString(fmt.Sprintf("Success:   %d\n", s.SuccessCount))
	sb.WriteString(fmt.Sprintf("Errors:    %d", s.ErrorCount))

	p.printBox("HARVEST SUMMARY", sb.String())
}

// PrintCollection outputs a collection run and the records kept by the filter.
func (p *Printer) PrintCollection(res *collect.Result, kept []collect.Indexed, titleOf func(types.ListingRecord) string) {
	if res == nil {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Pages:     %d\n", res.Pages))
	sb.WriteString(fmt.Sprintf("Collected: %d\n", res.Collected))
	sb.WriteString(fmt.Sprintf("Kept:      %d\n", len(kept)))

	if len(kept) > 0 && titleOf != nil {
		sb.WriteString("\n")
		count := min(len(kept), maxItemsToShow)
		for i := 0; i < count; i++ {
			sb.WriteString(fmt.Sprintf("  #%d  %s\n", kept[i].Index, titleOf(kept[i].Record)))
		}
		if len(kept) > maxItemsToShow {
			sb.WriteString(fmt.Sprintf("  ... and %d more\n", len(kept)-maxItemsToShow))
		}
	}

	p.printBox("COLLECTED LISTING", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintBatch outputs the outcome of a manual download.
func (p *Printer) PrintBatch(res *harvest.BatchResult) {
	if res == nil {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Downloaded: %d\n", res.Downloaded))
	sb.WriteString(fmt.Sprintf("Skipped:    %d\n", res.Skipped))
	sb.WriteString(fmt.Sprintf("Failed:     %d", res.Failed))
	if len(res.Files) > 0 {
		sb.WriteString("\n\n")
		count := min(len(res.Files), maxItemsToShow)
		for i := 0; i < count; i++ {
			sb.WriteString(fmt.Sprintf("  • %s\n", res.Files[i]))
		}
		if len(res.Files) > maxItemsToShow {
			sb.WriteString(fmt.Sprintf("  ... and %d more\n", len(res.Files)-maxItemsToShow))
		}
	}

	p.printBox("DOWNLOADS", strings.TrimSuffix(sb.String(), "\n"))
}
