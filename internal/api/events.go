package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/tapline/internal/scheduler"
)

// Duration accepts either a Go duration string ("5s", "300ms") or a
// number of milliseconds.
type Duration time.Duration

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(b []byte) error {
	var ms float64
	if err := json.Unmarshal(b, &ms); err == nil {
		*d = Duration(time.Duration(ms * float64(time.Millisecond)))
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("duration must be a string or milliseconds")
	}
	if s == "" {
		*d = 0
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// eventRequest is the body of POST /events.
type eventRequest struct {
	ID       string         `json:"id"`
	Kind     scheduler.Kind `json:"kind"`
	Interval Duration       `json:"interval"`
	Enabled  *bool          `json:"enabled"`
	X        int            `json:"x"`
	Y        int            `json:"y"`
	X2       int            `json:"x2"`
	Y2       int            `json:"y2"`
	Duration Duration       `json:"duration"`
}

func (r eventRequest) spec() scheduler.Spec {
	enabled := true
	if r.Enabled != nil {
		enabled = *r.Enabled
	}
	return scheduler.Spec{
		ID:       r.ID,
		Kind:     r.Kind,
		Interval: time.Duration(r.Interval),
		Enabled:  enabled,
		X:        r.X,
		Y:        r.Y,
		X2:       r.X2,
		Y2:       r.Y2,
		Duration: time.Duration(r.Duration),
	}
}

// eventResponse renders durations as strings for humans.
type eventResponse struct {
	scheduler.TimedEvent
	Interval string `json:"interval"`
	Duration string `json:"duration,omitempty"`
}

func toEventResponse(e scheduler.TimedEvent) eventResponse {
	resp := eventResponse{TimedEvent: e, Interval: e.Interval.String()}
	if e.Duration > 0 {
		resp.Duration = e.Duration.String()
	}
	return resp
}

// handleListEvents lists timed events in insertion order.
func (s *Server) handleListEvents(w http.ResponseWriter, _ *http.Request) {
	events := s.controller.ListEvents()
	out := make([]eventResponse, len(events))
	for i, e := range events {
		out[i] = toEventResponse(e)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"events": out,
		"count":  len(out),
	})
}

// handleAddEvent registers a timed event. Events are enabled unless the
// body says otherwise.
func (s *Server) handleAddEvent(w http.ResponseWriter, r *http.Request) {
	var req eventRequest
	if !decodeBody(w, r, &req) {
		return
	}
	ev, err := s.controller.AddEvent(req.spec())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toEventResponse(ev))
}

func (s *Server) handleRemoveEvent(w http.ResponseWriter, r *http.Request) {
	if err := s.controller.RemoveEvent(chi.URLParam(r, "id")); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleTriggerEvent fires an event now and reports the device result.
func (s *Server) handleTriggerEvent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.controller.TriggerEvent(r.Context(), id); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "fired": true})
}

func (s *Server) handleEnableEvent(w http.ResponseWriter, r *http.Request) {
	s.eventChange(w, r, s.controller.EnableEvent)
}

func (s *Server) handleDisableEvent(w http.ResponseWriter, r *http.Request) {
	s.eventChange(w, r, s.controller.DisableEvent)
}

type intervalRequest struct {
	Interval Duration `json:"interval"`
}

func (s *Server) handleAdjustInterval(w http.ResponseWriter, r *http.Request) {
	var req intervalRequest
	if !decodeBody(w, r, &req) {
		return
	}
	s.eventChange(w, r, func(id string) error {
		return s.controller.AdjustInterval(id, time.Duration(req.Interval))
	})
}

// eventChange applies fn and responds with the updated event.
func (s *Server) eventChange(w http.ResponseWriter, r *http.Request, fn func(id string) error) {
	id := chi.URLParam(r, "id")
	if err := fn(id); err != nil {
		writeDomainError(w, err)
		return
	}
	for _, e := range s.controller.ListEvents() {
		if e.ID == id {
			writeJSON(w, http.StatusOK, toEventResponse(e))
			return
		}
	}
	writeNotFound(w, scheduler.ErrEventNotFound.Error())
}

// decodeBody decodes a JSON body into v, writing a 400 on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, ErrCodeBadRequest, "request body too large")
			return false
		}
		writeBadRequest(w, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}
