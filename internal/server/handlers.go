package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/jonathan/compass-harvester/internal/collect"
	"github.com/jonathan/compass-harvester/internal/harvest"
	"github.com/jonathan/compass-harvester/internal/types"
)

// StatusResponse is the body of GET /status.
type StatusResponse struct {
	Running    bool                      `json:"running"`
	Checkpoint *types.HarvestCheckpoint  `json:"checkpoint,omitempty"`
	Selection  *harvest.SelectionRequest `json:"selection,omitempty"`
	Items      int                       `json:"items"`
}

// SelectionAnswer is the body of POST /selection/{id}.
type SelectionAnswer struct {
	Indexes []int `json:"indexes" validate:"dive,gte=0"`
}

// handleHealth returns server health status
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) status(ctx context.Context) (*StatusResponse, error) {
	st, err := s.deps.Harvester.Status(ctx)
	if err != nil {
		return nil, err
	}
	resp := &StatusResponse{
		Running:    st.Running,
		Checkpoint: st.Checkpoint,
		Items:      s.deps.Records.Len(),
	}
	if s.deps.Broker != nil {
		if req, ok := s.deps.Broker.Pending(); ok {
			resp.Selection = &req
		}
	}
	return resp, nil
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp, err := s.status(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, resp)
}

// handleStart scans the library and starts a fresh run in the background.
func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if s.deps.Harvester.Running() {
		s.fail(w, harvest.ErrAlreadyRunning)
		return
	}
	st, err := s.deps.Harvester.Status(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	if st.Checkpoint != nil && st.Checkpoint.Status == types.StatusRunning {
		s.fail(w, harvest.ErrHarvestRunning)
		return
	}
	if s.deps.Plan == nil {
		s.errorResponse(w, http.StatusNotImplemented, "library scanning is not configured")
		return
	}

	plan, err := s.deps.Plan(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	s.launch("start", func(ctx context.Context) (*harvest.Summary, error) {
		return s.deps.Harvester.Start(ctx, plan.Queue, plan.GlobalIDs)
	})
	s.jsonResponse(w, http.StatusAccepted, map[string]any{
		"status":  "started",
		"entries": len(plan.Queue),
		"videos":  plan.GlobalIDs.Len(),
	})
}

// handleResume continues the stored run in the background.
func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	if s.deps.Harvester.Running() {
		s.fail(w, harvest.ErrAlreadyRunning)
		return
	}
	st, err := s.deps.Harvester.Status(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	if st.Checkpoint == nil || st.Checkpoint.Status != types.StatusRunning {
		s.jsonResponse(w, http.StatusOK, map[string]string{"status": "idle"})
		return
	}
	s.launch("resume", s.deps.Harvester.Resume)
	s.jsonResponse(w, http.StatusAccepted, map[string]any{
		"status": "resumed",
		"index":  st.Checkpoint.CurrentIndex,
		"total":  len(st.Checkpoint.Queue),
	})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	running := s.deps.Harvester.Running()
	if err := s.deps.Harvester.Stop(r.Context()); err != nil {
		s.fail(w, err)
		return
	}
	status := "stopped"
	if running {
		status = "stopping"
	}
	s.jsonResponse(w, http.StatusOK, map[string]string{"status": status})
}

func (s *Server) handleSkip(w http.ResponseWriter, _ *http.Request) {
	if !s.deps.Harvester.Running() {
		s.errorResponse(w, http.StatusConflict, "no harvest loop is running")
		return
	}
	s.deps.Harvester.Skip()
	s.jsonResponse(w, http.StatusOK, map[string]string{"status": "skipping"})
}

// handleItems lists collected records, optionally filtered by the title, shop
// and days query parameters.
func (s *Server) handleItems(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	m, err := collect.Filter{
		Title: q.Get("title"),
		Shop:  q.Get("shop"),
		Days:  q.Get("days"),
	}.Compile()
	if err != nil {
		s.fail(w, &ErrValidation{Field: "days", Message: err.Error()})
		return
	}
	items := s.deps.Records.Items()
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"total": len(items),
		"items": m.Apply(items),
	})
}

func (s *Server) handleSelection(w http.ResponseWriter, _ *http.Request) {
	if s.deps.Broker == nil {
		s.fail(w, &ErrNoSelection{})
		return
	}
	req, ok := s.deps.Broker.Pending()
	if !ok {
		s.fail(w, &ErrNoSelection{})
		return
	}
	s.jsonResponse(w, http.StatusOK, req)
}

func (s *Server) handleAnswer(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var body SelectionAnswer
	if err := decodeJSON(r, &body); err != nil {
		s.fail(w, err)
		return
	}
	if s.deps.Broker == nil {
		s.fail(w, &ErrNoSelection{ID: id})
		return
	}
	if err := s.deps.Broker.Answer(id, body.Indexes); err != nil {
		s.fail(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{"status": "confirmed", "rows": len(body.Indexes)})
}

// handleEvents streams harvest progress, selection requests and run outcomes.
// The first event is the current status.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	events, unsubscribe := s.deps.Hub.Subscribe()
	defer unsubscribe()

	sse, err := NewSSEWriter(w)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}
	if resp, err := s.status(r.Context()); err == nil {
		if err := sse.WriteEvent(EventStatus, resp); err != nil {
			return
		}
	} else if !errors.Is(err, context.Canceled) {
		sse.WriteError(err.Error())
	}

	ticker := time.NewTicker(keepAlive)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if err := sse.WriteComment("keep-alive"); err != nil {
				return
			}
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := sse.WriteEvent(ev.Name, ev.Data); err != nil {
				return
			}
		}
	}
}
