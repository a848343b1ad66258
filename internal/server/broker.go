package server

import (
	"context"
	"fmt"
	"sync"

	"github.com/jonathan/compass-harvester/internal/harvest"
	"github.com/jonathan/compass-harvester/internal/types"
)

// Broker hands selection requests of the harvest loop to API clients and
// blocks the loop until one answers. It implements harvest.Selector.
type Broker struct {
	hub *Hub

	mu      sync.Mutex
	pending *pendingSelection
}

type pendingSelection struct {
	req    harvest.SelectionRequest
	answer chan []int
}

// NewBroker creates a broker announcing requests on hub.
func NewBroker(hub *Hub) *Broker {
	return &Broker{hub: hub}
}

// Select publishes req and waits for an answer or for ctx to end.
func (b *Broker) Select(ctx context.Context, req harvest.SelectionRequest) ([]types.Row, error) {
	p := &pendingSelection{req: req, answer: make(chan []int, 1)}
	b.mu.Lock()
	b.pending = p
	b.mu.Unlock()
	defer func() {
		b.mu.Lock()
		if b.pending == p {
			b.pending = nil
		}
		b.mu.Unlock()
	}()

	if b.hub != nil {
		b.hub.Publish(Event{Name: EventSelection, Data: req})
	}

	select {
	case indexes := <-p.answer:
		return req.Rows(indexes), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Pending returns the request awaiting an answer, if any.
func (b *Broker) Pending() (harvest.SelectionRequest, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pending == nil {
		return harvest.SelectionRequest{}, false
	}
	return b.pending.req, true
}

// Answer confirms the rows at indexes for the pending request id. An empty
// list skips the entry.
func (b *Broker) Answer(id string, indexes []int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	p := b.pending
	if p == nil || p.req.ID != id {
		return &ErrNoSelection{ID: id}
	}
	for _, i := range indexes {
		if i < 0 || i >= len(p.req.Candidates) {
			return &ErrValidation{Field: "indexes", Message: fmt.Sprintf("index %d out of range", i)}
		}
	}
	p.answer <- indexes
	b.pending = nil
	return nil
}
