package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/markdave123-py/crawlvec/internal/models"
)

// StatusSource exposes the live checkpoint of a run.
type StatusSource interface {
	Status() models.ProgressCheckpoint
}

type StatusHandler struct {
	src   StatusSource
	pause func()
	log   *slog.Logger
}

// NewStatusHandler serves progress from src. pause stops the run gracefully.
func NewStatusHandler(src StatusSource, pause func()) *StatusHandler {
	return &StatusHandler{src: src, pause: pause, log: slog.Default().With("component", "status_handler")}
}

type statusResponse struct {
	State    models.RunState           `json:"state"`
	Percent  float64                   `json:"percent"`
	Progress models.ProgressCheckpoint `json:"progress"`
}

func (h *StatusHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetStatus returns the checkpoint snapshot with a completion percentage.
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	cp := h.src.Status()
	resp := statusResponse{State: cp.State, Progress: cp}
	if cp.TotalFiles > 0 {
		resp.Percent = float64(cp.ProcessedFiles) * 100 / float64(cp.TotalFiles)
	}
	writeJSON(w, http.StatusOK, resp)
}

// Pause asks the pipeline to stop after the batch in flight.
func (h *StatusHandler) Pause(w http.ResponseWriter, r *http.Request) {
	cp := h.src.Status()
	if cp.State != models.StateRunning {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "no running ingestion", "state": string(cp.State)})
		return
	}
	h.log.Warn("pause requested", "run_id", cp.RunID, "batch", cp.CurrentBatch)
	h.pause()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "pausing", "run_id": cp.RunID})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
