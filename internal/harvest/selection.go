package harvest

import (
	"context"

	"github.com/google/uuid"

	"github.com/jonathan/compass-harvester/internal/listing"
	"github.com/jonathan/compass-harvester/internal/types"
)

// Candidate is one result row offered to the operator.
type Candidate struct {
	Row       types.Row `json:"row"`
	Resolved  bool      `json:"resolved"`
	Shop      string    `json:"shop,omitempty"`
	Videos    int       `json:"videos"`
	NewVideos int       `json:"new_videos"`
}

// SelectionRequest asks the operator which rows belong to the entry.
type SelectionRequest struct {
	ID         string               `json:"id"`
	Entry      types.WorkQueueEntry `json:"entry"`
	Keyword    string               `json:"keyword"`
	Candidates []Candidate          `json:"candidates"`
	// Preselected lists the row indexes checked by default.
	Preselected []int `json:"preselected"`
}

// Rows returns the rows of the request's candidates at the given indexes,
// ignoring indexes out of range.
func (r SelectionRequest) Rows(indexes []int) []types.Row {
	var rows []types.Row
	seen := make(map[int]bool, len(indexes))
	for _, i := range indexes {
		if i < 0 || i >= len(r.Candidates) || seen[i] {
			continue
		}
		seen[i] = true
		rows = append(rows, r.Candidates[i].Row)
	}
	return rows
}

// Selector blocks until the operator confirms a subset of the candidates.
// An empty result skips the entry.
type Selector interface {
	Select(ctx context.Context, req SelectionRequest) ([]types.Row, error)
}

// SelectorFunc adapts a function to Selector.
type SelectorFunc func(ctx context.Context, req SelectionRequest) ([]types.Row, error)

// Select calls f.
func (f SelectorFunc) Select(ctx context.Context, req SelectionRequest) ([]types.Row, error) {
	return f(ctx, req)
}

// AcceptPreselected confirms the default selection without asking anyone.
var AcceptPreselected = SelectorFunc(func(_ context.Context, req SelectionRequest) ([]types.Row, error) {
	return req.Rows(req.Preselected), nil
})

func (m *Machine) selectionRequest(cp *types.HarvestCheckpoint, entry *types.WorkQueueEntry, keyword string, rows []types.Row) SelectionRequest {
	req := SelectionRequest{
		ID:          uuid.NewString(),
		Entry:       *entry,
		Keyword:     keyword,
		Candidates:  make([]Candidate, len(rows)),
		Preselected: []int{0},
	}
	for i, row := range rows {
		c := Candidate{Row: row}
		if rec, ok := m.deps.Records.Resolve(row); ok {
			c.Resolved = true
			c.Shop = listing.Shop(rec)
			c.Videos = len(listing.Videos(rec))
			c.NewVideos = len(m.newVideos(cp, entry, rec))
		}
		req.Candidates[i] = c
	}
	return req
}
