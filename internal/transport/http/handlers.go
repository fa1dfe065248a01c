package http

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"vehicle-telematics/processing/internal/metrics"
	"vehicle-telematics/processing/internal/service"
)

type Server struct {
	processor *service.Processor
	log       *zap.Logger
}

func NewServer(processor *service.Processor, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{processor: processor, log: log}
}

// Routes builds the operational mux. The control endpoints sit behind the
// API-key middleware; health, metrics and status are open.
func (s *Server) Routes(authMW *AuthMiddleware) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /metrics", metrics.HandleMetrics)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.Handle("POST /control/start", authMW.Wrap(http.HandlerFunc(s.handleStart)))
	mux.Handle("POST /control/stop", authMW.Wrap(http.HandlerFunc(s.handleStop)))
	return mux
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.processor.Status(r.Context()))
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if err := s.processor.Start(); err != nil {
		s.log.Error("start failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "started"})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	s.processor.Stop()
	writeJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
