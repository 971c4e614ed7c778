package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/state", s.handleGetState)
		r.Get("/history", s.handleHistory)

		r.Route("/screenshot", func(r chi.Router) {
			r.Get("/", s.handleGetScreenshot)
			r.Post("/", s.handleTakeScreenshot)
		})

		r.Route("/automation", func(r chi.Router) {
			r.Post("/start", s.handleStart)
			r.Post("/stop", s.handleStop)
			r.Post("/pause", s.handlePause)
			r.Post("/resume", s.handleResume)
		})

		r.Route("/actions", func(r chi.Router) {
			r.Post("/tap", s.handleTap)
			r.Post("/swipe", s.handleSwipe)
		})

		r.Route("/events", func(r chi.Router) {
			r.Get("/", s.handleListEvents)
			r.Post("/", s.handleAddEvent)

			r.Route("/{id}", func(r chi.Router) {
				r.Delete("/", s.handleRemoveEvent)
				r.Post("/trigger", s.handleTriggerEvent)
				r.Post("/enable", s.handleEnableEvent)
				r.Post("/disable", s.handleDisableEvent)
				r.Put("/interval", s.handleAdjustInterval)
			})
		})

		r.Route("/touch", func(r chi.Router) {
			r.Post("/clear", s.handleClearTouch)
			r.Post("/record", s.handleRecordTouch)
		})

		r.Post("/reconnect", s.handleReconnect)
		r.Post("/shutdown", s.handleShutdown)

		r.Get(s.wsPath(), s.handleWebSocket)
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	snap := s.board.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"version":    s.version,
		"connection": snap.Connection.State,
		"run_state":  snap.RunState,
	})
}

func (s *Server) wsPath() string {
	if s.wsCfg.Path == "" {
		return "/ws"
	}
	return s.wsCfg.Path
}
