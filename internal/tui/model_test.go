package tui

import (
	"context"
	"io"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/compass-harvester/internal/harvest"
	"github.com/jonathan/compass-harvester/internal/types"
)

func testRequest() harvest.SelectionRequest {
	return harvest.SelectionRequest{
		ID:      "sel-1",
		Entry:   types.WorkQueueEntry{Title: "Cast Iron Pan", Category: "Home/Kitchen", ExistingIDs: types.NewIDSet("v1")},
		Keyword: "Iron",
		Candidates: []harvest.Candidate{
			{Row: types.Row{Index: 0, Title: "Cast Iron Pan 28cm"}, Resolved: true, Shop: "Kitchen Co", Videos: 3, NewVideos: 2},
			{Row: types.Row{Index: 1, Title: "Iron Pot"}, Resolved: true, Shop: "Pots", Videos: 1, NewVideos: 1},
			{Row: types.Row{Index: 2, Title: "Cast Iron Lid"}},
		},
		Preselected: []int{0},
	}
}

func press(t *testing.T, m selectModel, msgs ...tea.KeyMsg) selectModel {
	t.Helper()
	for _, msg := range msgs {
		next, _ := m.Update(msg)
		var ok bool
		m, ok = next.(selectModel)
		require.True(t, ok)
	}
	return m
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestSelectModel_PreselectedConfirm(t *testing.T) {
	m := press(t, newSelectModel(testRequest()), tea.KeyMsg{Type: tea.KeyEnter})
	assert.True(t, m.confirmed)
	assert.Equal(t, []int{0}, m.selected())
}

func TestSelectModel_ToggleAndMove(t *testing.T) {
	m := press(t, newSelectModel(testRequest()),
		runes("j"),
		tea.KeyMsg{Type: tea.KeySpace},
		tea.KeyMsg{Type: tea.KeyDown},
		tea.KeyMsg{Type: tea.KeyDown}, // clamped at the last row
		tea.KeyMsg{Type: tea.KeySpace},
		runes("k"),
		runes("k"),
		tea.KeyMsg{Type: tea.KeySpace},
		tea.KeyMsg{Type: tea.KeyEnter},
	)
	assert.Equal(t, []int{1, 2}, m.selected())
}

func TestSelectModel_ToggleAll(t *testing.T) {
	m := press(t, newSelectModel(testRequest()), runes("a"))
	assert.Equal(t, map[int]bool{0: true, 1: true, 2: true}, m.checked)

	m = press(t, m, runes("a"), tea.KeyMsg{Type: tea.KeyEnter})
	assert.Empty(t, m.selected())
}

func TestSelectModel_Skip(t *testing.T) {
	m := press(t, newSelectModel(testRequest()), runes("s"))
	assert.True(t, m.confirmed)
	assert.False(t, m.aborted)
	assert.Empty(t, m.selected())
}

func TestSelectModel_Abort(t *testing.T) {
	m := press(t, newSelectModel(testRequest()), tea.KeyMsg{Type: tea.KeyCtrlC})
	assert.True(t, m.aborted)
	assert.Nil(t, m.selected())
}

func TestSelectModel_Filter(t *testing.T) {
	m := press(t, newSelectModel(testRequest()), runes("/"))
	require.True(t, m.filtering)

	m = press(t, m, runes("c"), runes("a"), runes("s"), runes("t"), tea.KeyMsg{Type: tea.KeyEnter})
	assert.False(t, m.filtering)
	assert.Equal(t, []int{0, 2}, m.visible())

	// The cursor walks the filtered rows only.
	m = press(t, m, runes("j"), tea.KeyMsg{Type: tea.KeySpace}, tea.KeyMsg{Type: tea.KeyEnter})
	assert.Equal(t, []int{0, 2}, m.selected())
}

func TestSelectModel_View(t *testing.T) {
	m := newSelectModel(testRequest())
	view := m.View()
	assert.Contains(t, view, "Cast Iron Pan")
	assert.Contains(t, view, "Kitchen Co")
	assert.Contains(t, view, "not collected")
	assert.Contains(t, view, "skip entry")

	m = press(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	assert.Empty(t, m.View())
}

func TestSelector_RunsProgram(t *testing.T) {
	s := NewSelector(nil, tea.WithInput(strings.NewReader("\r")), tea.WithOutput(io.Discard))
	rows, err := s.Select(context.Background(), testRequest())
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Cast Iron Pan 28cm", rows[0].Title)
}

func TestSelector_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := NewSelector(nil, tea.WithInput(strings.NewReader("")), tea.WithOutput(io.Discard))
	_, err := s.Select(ctx, testRequest())
	assert.ErrorIs(t, err, context.Canceled)
}
