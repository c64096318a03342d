package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"f2_scrooper/models"
	"f2_scrooper/scheduler"
	"f2_scrooper/scraper"
)

type triggerResponse struct {
	Success   bool                               `json:"success"`
	Message   string                             `json:"message,omitempty"`
	Error     string                             `json:"error,omitempty"`
	Timestamp time.Time                          `json:"timestamp"`
	Outcomes  map[models.DataKind]models.Outcome `json:"outcomes,omitempty"`
}

type statusResponse struct {
	scheduler.Status
	Kinds []models.KindStats `json:"kinds,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeFailure(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, triggerResponse{Success: false, Error: message, Timestamp: time.Now()})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{Status: s.trigger.State()}
	if s.stats != nil {
		kinds, err := s.stats.GetKindStats()
		if err != nil {
			s.log.Warn("load kind stats", zap.Error(err))
		}
		resp.Kinds = kinds
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) cron(w http.ResponseWriter, r *http.Request) {
	s.run(w, r, "")
}

func (s *Server) scrapeKind(w http.ResponseWriter, r *http.Request) {
	kind, ok := models.ParseKind(chi.URLParam(r, "kind"))
	if !ok {
		writeFailure(w, http.StatusBadRequest, "unknown kind: "+chi.URLParam(r, "kind"))
		return
	}
	s.run(w, r, kind)
}

func (s *Server) run(w http.ResponseWriter, r *http.Request, kind models.DataKind) {
	ctx := r.Context()
	if s.cfg.TriggerTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.TriggerTimeout)
		defer cancel()
	}

	report, err := s.trigger.Trigger(ctx, kind)
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, scheduler.ErrStopped):
			status = http.StatusServiceUnavailable
		case errors.Is(err, scraper.ErrUnknownKind):
			status = http.StatusBadRequest
		case errors.Is(err, context.DeadlineExceeded):
			status = http.StatusGatewayTimeout
		}
		s.log.Error("manual trigger failed", zap.String("kind", string(kind)), zap.Error(err))
		writeFailure(w, status, err.Error())
		return
	}

	resp := triggerResponse{
		Success:   report.Success(),
		Timestamp: time.Now(),
		Outcomes:  report.Outcomes,
	}
	status := http.StatusOK
	if resp.Success {
		resp.Message = "Scraping completed successfully"
	} else {
		resp.Error = "one or more kinds failed"
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, resp)
}
