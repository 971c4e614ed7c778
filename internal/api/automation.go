package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/nerrad567/tapline/internal/audit"
	"github.com/nerrad567/tapline/internal/status"
)

// handleGetState returns the full observable snapshot plus status history.
func (s *Server) handleGetState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"state":   s.board.Snapshot(),
		"history": s.board.History(),
	})
}

// handleGetScreenshot serves the latest frame as PNG.
func (s *Server) handleGetScreenshot(w http.ResponseWriter, _ *http.Request) {
	frame, at := s.board.Frame()
	if frame == nil {
		writeNotFound(w, "no screenshot available")
		return
	}
	writePNG(w, frame, at)
}

// handleTakeScreenshot captures a new frame and returns it.
func (s *Server) handleTakeScreenshot(w http.ResponseWriter, r *http.Request) {
	frame, err := s.controller.TakeScreenshot(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writePNG(w, frame, time.Now())
}

func writePNG(w http.ResponseWriter, frame []byte, at time.Time) {
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(frame)))
	w.Header().Set("Cache-Control", "no-store")
	if !at.IsZero() {
		w.Header().Set("Last-Modified", at.UTC().Format(http.TimeFormat))
	}
	w.WriteHeader(http.StatusOK)
	//nolint:errcheck // Best-effort write to response; connection may be closed
	w.Write(frame)
}

func (s *Server) handleStart(w http.ResponseWriter, _ *http.Request) {
	s.runStateChange(w, s.controller.Start)
}

func (s *Server) handleStop(w http.ResponseWriter, _ *http.Request) {
	s.runStateChange(w, s.controller.Stop)
}

func (s *Server) handlePause(w http.ResponseWriter, _ *http.Request) {
	s.runStateChange(w, s.controller.Pause)
}

func (s *Server) handleResume(w http.ResponseWriter, _ *http.Request) {
	s.runStateChange(w, s.controller.Resume)
}

func (s *Server) runStateChange(w http.ResponseWriter, fn func() error) {
	if err := fn(); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"run_state": s.board.Snapshot().RunState})
}

type tapRequest struct {
	X *int `json:"x"`
	Y *int `json:"y"`
}

type swipeRequest struct {
	X1       *int     `json:"x1"`
	Y1       *int     `json:"y1"`
	X2       *int     `json:"x2"`
	Y2       *int     `json:"y2"`
	Duration Duration `json:"duration"`
}

// handleTap sends one tap.
func (s *Server) handleTap(w http.ResponseWriter, r *http.Request) {
	var req tapRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.X == nil || req.Y == nil {
		writeBadRequest(w, "x and y are required")
		return
	}
	if err := s.controller.Tap(r.Context(), *req.X, *req.Y); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// handleSwipe sends one swipe. Duration defaults on the session side.
func (s *Server) handleSwipe(w http.ResponseWriter, r *http.Request) {
	var req swipeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.X1 == nil || req.Y1 == nil || req.X2 == nil || req.Y2 == nil {
		writeBadRequest(w, "x1, y1, x2 and y2 are required")
		return
	}
	if req.Duration < 0 {
		writeBadRequest(w, "duration must not be negative")
		return
	}
	err := s.controller.Swipe(r.Context(), *req.X1, *req.Y1, *req.X2, *req.Y2, time.Duration(req.Duration))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleClearTouch(w http.ResponseWriter, _ *http.Request) {
	s.controller.ClearTouch()
	writeJSON(w, http.StatusOK, s.board.Snapshot().Part(status.SectionTouch))
}

func (s *Server) handleRecordTouch(w http.ResponseWriter, _ *http.Request) {
	s.controller.RecordTouch()
	writeJSON(w, http.StatusOK, s.board.Snapshot().Part(status.SectionTouch))
}

// handleReconnect drops the current session and skips any backoff wait.
func (s *Server) handleReconnect(w http.ResponseWriter, _ *http.Request) {
	s.controller.Reconnect()
	writeJSON(w, http.StatusAccepted, map[string]any{"ok": true})
}

// handleShutdown responds before the controller starts tearing down.
func (s *Server) handleShutdown(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusAccepted, map[string]any{"ok": true})
	go s.controller.Shutdown()
}

// handleHistory lists persisted command history.
//
// Query parameters: kind, outcome, limit, offset.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "command history is disabled")
		return
	}

	q := r.URL.Query()
	filter := audit.Filter{Kind: q.Get("kind"), Outcome: q.Get("outcome")}
	var err error
	if filter.Limit, err = intParam(q.Get("limit")); err != nil {
		writeBadRequest(w, "limit: "+err.Error())
		return
	}
	if filter.Offset, err = intParam(q.Get("offset")); err != nil {
		writeBadRequest(w, "offset: "+err.Error())
		return
	}

	result, err := s.history.ListCommands(r.Context(), filter)
	if err != nil {
		s.logger.Error("listing command history", "error", err)
		writeInternalError(w, "failed to list command history")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func intParam(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, errors.New("must be an integer")
	}
	if n < 0 {
		return 0, errors.New("must not be negative")
	}
	return n, nil
}
