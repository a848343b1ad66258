package tui

import (
	"context"
	"errors"
	"fmt"
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jonathan/compass-harvester/internal/harvest"
	"github.com/jonathan/compass-harvester/internal/types"
)

// ErrAborted is returned when the operator stops the harvest from the dialog.
var ErrAborted = errors.New("harvest stopped from the selection dialog")

// Selector shows one dialog per selection request. It implements
// harvest.Selector.
type Selector struct {
	// Abort is called when the operator presses ctrl+c, before Select
	// returns. It normally cancels the run context.
	Abort func()

	mu   sync.Mutex
	opts []tea.ProgramOption
}

// NewSelector creates a selector; opts are passed to every program.
func NewSelector(abort func(), opts ...tea.ProgramOption) *Selector {
	return &Selector{Abort: abort, opts: opts}
}

// Select blocks until the operator confirms, skips or aborts.
func (s *Selector) Select(ctx context.Context, req harvest.SelectionRequest) ([]types.Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	opts := append([]tea.ProgramOption{tea.WithContext(ctx)}, s.opts...)
	final, err := tea.NewProgram(newSelectModel(req), opts...).Run()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("selection dialog failed: %w", err)
	}
	m, ok := final.(selectModel)
	if !ok {
		return nil, fmt.Errorf("selection dialog returned %T", final)
	}
	if m.aborted {
		if s.Abort != nil {
			s.Abort()
		}
		return nil, ErrAborted
	}
	return req.Rows(m.selected()), nil
}
