package main

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/daniacca/stochkin/internal/kinetics"
	"github.com/daniacca/stochkin/internal/kinetics/notifiers"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 4 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusForError maps core errors onto HTTP status codes.
func statusForError(err error) int {
	var verr *kinetics.ValidationError
	switch {
	case errors.Is(err, kinetics.ErrInvalidConfig), errors.As(err, &verr):
		return http.StatusBadRequest
	case errors.Is(err, kinetics.ErrModelNotFound), errors.Is(err, kinetics.ErrRunNotFound):
		return http.StatusNotFound
	case errors.Is(err, kinetics.ErrRunActive):
		return http.StatusConflict
	case errors.Is(err, kinetics.ErrManagerClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusForError(err)
	if status >= http.StatusInternalServerError {
		s.logger.Errorw("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	} else {
		s.logger.Debugw("request rejected", "method", r.Method, "path", r.URL.Path, "status", status, "error", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// limitBody caps r.Body at maxBodyBytes. Reading past the cap fails with
// *http.MaxBytesError.
func limitBody(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	limitBody(w, r)
	defer r.Body.Close()
	return io.ReadAll(r.Body)
}

// writeBodyError reports a body that could not be read or decoded: 413 when
// it exceeded the size cap, 400 otherwise.
func writeBodyError(w http.ResponseWriter, prefix string, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "request body exceeds the size limit"})
		return
	}
	writeJSON(w, http.StatusBadRequest, map[string]string{"error": prefix + err.Error()})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// GET /models
func (s *Server) handleListModels(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"models": s.manager.ListModels()})
}

// POST|PUT /models/{id}
// Body: ModelConfig as JSON, or YAML with a yaml Content-Type.
// Registers the model, replacing any model with the same ID.
func (s *Server) handlePutModel(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	data, err := readBody(w, r)
	if err != nil {
		writeBodyError(w, "cannot read body: ", err)
		return
	}
	cfg, err := kinetics.DecodeModelConfig(data, kinetics.FormatFromContentType(r.Header.Get("Content-Type")))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if err := kinetics.ValidateModelConfig(cfg); err != nil {
		s.writeError(w, r, err)
		return
	}
	model, err := kinetics.BuildModelFromConfig(cfg)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "cannot build model: " + err.Error()})
		return
	}
	if err := s.manager.PutModel(id, model); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.logger.Infow("model applied", "model_id", id, "name", cfg.Name,
		"species", model.NumSpecies(), "reactions", model.NumReactions())
	writeJSON(w, http.StatusOK, kinetics.ModelInfo{
		ID:           id,
		Name:         model.Name(),
		Species:      model.SpeciesNames(),
		NumReactions: model.NumReactions(),
	})
}

// GET /models/{id}
func (s *Server) handleGetModel(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	model, ok := s.manager.GetModel(id)
	if !ok {
		s.writeError(w, r, kinetics.ErrModelNotFound)
		return
	}
	writeJSON(w, http.StatusOK, model.Config())
}

// DELETE /models/{id}
func (s *Server) handleDeleteModel(w http.ResponseWriter, r *http.Request) {
	if err := s.manager.DeleteModel(r.PathValue("id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// POST /models/{id}/runs
// Body: RunRequest JSON, or YAML with a yaml Content-Type.
func (s *Server) handleStartRun(w http.ResponseWriter, r *http.Request) {
	data, err := readBody(w, r)
	if err != nil {
		writeBodyError(w, "cannot read body: ", err)
		return
	}
	req, err := kinetics.DecodeRunRequest(data, kinetics.FormatFromContentType(r.Header.Get("Content-Type")))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	id, err := s.manager.Submit(r.Context(), r.PathValue("id"), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"run_id": string(id)})
}

// ensembleRequest is the body of POST /models/{id}/ensembles.
type ensembleRequest struct {
	Config     kinetics.RunConfig `json:"config" yaml:"config"`
	Replicates int                `json:"replicates" yaml:"replicates"`
}

// POST /models/{id}/ensembles
// Runs the ensemble synchronously and returns the aggregated result.
func (s *Server) handleEnsemble(w http.ResponseWriter, r *http.Request) {
	model, ok := s.manager.GetModel(r.PathValue("id"))
	if !ok {
		s.writeError(w, r, kinetics.ErrModelNotFound)
		return
	}
	var req ensembleRequest
	limitBody(w, r)
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeBodyError(w, "invalid json: ", err)
		return
	}

	start := time.Now()
	res, err := kinetics.RunEnsemble(r.Context(), model, req.Config, kinetics.EnsembleOptions{
		Replicates: req.Replicates,
		Workers:    s.ensembleWorkers,
		Logger:     s.logger,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.logger.Infow("ensemble served", "model_id", r.PathValue("id"),
		"replicates", res.Replicates, "elapsed", time.Since(start))
	writeJSON(w, http.StatusOK, res)
}

// GET /runs
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.manager.ListRuns(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

// GET /runs/{id}
func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	rec, err := s.manager.GetRun(r.Context(), kinetics.RunID(r.PathValue("id")))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// DELETE /runs/{id}
func (s *Server) handleDeleteRun(w http.ResponseWriter, r *http.Request) {
	if err := s.manager.DeleteRun(r.Context(), kinetics.RunID(r.PathValue("id"))); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GET /runs/{id}/trajectory
func (s *Server) handleTrajectory(w http.ResponseWriter, r *http.Request) {
	traj, err := s.manager.Trajectory(r.Context(), kinetics.RunID(r.PathValue("id")))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, traj)
}

// POST /runs/{id}/cancel
func (s *Server) handleCancelRun(w http.ResponseWriter, r *http.Request) {
	id := kinetics.RunID(r.PathValue("id"))
	if err := s.manager.Cancel(id); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.logger.Infow("run cancel requested", "run_id", id)
	writeJSON(w, http.StatusAccepted, map[string]string{"run_id": string(id)})
}

// GET /notifiers
func (s *Server) handleListNotifiers(w http.ResponseWriter, _ *http.Request) {
	list := []kinetics.NotifierInfo{}
	if s.notifications != nil {
		list = s.notifications.ListNotifiers()
	}
	writeJSON(w, http.StatusOK, map[string]any{"notifiers": list})
}

// POST /notifiers
// Body: notifiers.Config, e.g.
// { "id": "my-hook", "type": "webhook", "url": "http://...", "secret": "...", "events": ["run.finished"] }
func (s *Server) handleRegisterNotifier(w http.ResponseWriter, r *http.Request) {
	if s.notifications == nil {
		http.Error(w, "notifications are disabled", http.StatusServiceUnavailable)
		return
	}
	limitBody(w, r)
	defer r.Body.Close()
	var cfg notifiers.Config
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeBodyError(w, "invalid json: ", err)
		return
	}
	n, err := notifiers.New(cfg)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.notifications.RegisterNotifier(n); err != nil {
		_ = n.Close()
		http.Error(w, "cannot register notifier: "+err.Error(), http.StatusConflict)
		return
	}
	s.logger.Infow("notifier registered", "notifier_id", n.ID(), "type", n.Type())
	writeJSON(w, http.StatusCreated, kinetics.NotifierInfo{ID: n.ID(), Type: n.Type()})
}

// DELETE /notifiers/{id}
func (s *Server) handleUnregisterNotifier(w http.ResponseWriter, r *http.Request) {
	if s.notifications == nil {
		http.Error(w, "notifications are disabled", http.StatusServiceUnavailable)
		return
	}
	id := r.PathValue("id")
	if err := s.notifications.UnregisterNotifier(id); err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	s.logger.Infow("notifier unregistered", "notifier_id", id)
	w.WriteHeader(http.StatusNoContent)
}

// GET /ws/{id}
// Upgrades to a websocket subscribed to the websocket notifier {id}.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.notifications == nil {
		http.Error(w, "notifications are disabled", http.StatusServiceUnavailable)
		return
	}
	n, ok := s.notifications.GetNotifier(r.PathValue("id"))
	if !ok {
		http.Error(w, "notifier not found", http.StatusNotFound)
		return
	}
	hub, ok := n.(http.Handler)
	if !ok {
		http.Error(w, "notifier "+n.ID()+" is not a websocket notifier", http.StatusBadRequest)
		return
	}
	hub.ServeHTTP(w, r)
}
