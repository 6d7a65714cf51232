package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/mubayin/signseq/internal/store"
)

// RunsHandler serves training history: GET /api/runs and GET /api/runs/{id}.
type RunsHandler struct {
	store *store.Store
}

// NewRunsHandler creates a RunsHandler.
func NewRunsHandler(s *store.Store) *RunsHandler {
	return &RunsHandler{store: s}
}

type listRunsResponse struct {
	Runs []*store.Run `json:"runs"`
}

type runResponse struct {
	*store.Run
	Epochs []store.Epoch `json:"epochs"`
}

func (h *RunsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id, ok := mux.Vars(r)["id"]
	if !ok {
		h.list(w, r)
		return
	}
	h.get(w, r, id)
}

func (h *RunsHandler) list(w http.ResponseWriter, r *http.Request) {
	runs, err := h.store.Runs().List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list runs")
		return
	}
	if runs == nil {
		runs = []*store.Run{}
	}
	writeJSON(w, http.StatusOK, listRunsResponse{Runs: runs})
}

func (h *RunsHandler) get(w http.ResponseWriter, r *http.Request, id string) {
	run, err := h.store.Runs().GetByID(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Run not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get run")
		return
	}

	epochs, err := h.store.Epochs().ListByRun(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get run epochs")
		return
	}
	if epochs == nil {
		epochs = []store.Epoch{}
	}
	writeJSON(w, http.StatusOK, runResponse{Run: run, Epochs: epochs})
}

// PredictionsHandler serves GET /api/predictions?limit=N.
type PredictionsHandler struct {
	store *store.Store
}

// NewPredictionsHandler creates a PredictionsHandler.
func NewPredictionsHandler(s *store.Store) *PredictionsHandler {
	return &PredictionsHandler{store: s}
}

type listPredictionsResponse struct {
	Predictions []*store.Prediction `json:"predictions"`
}

// defaultPredictionLimit applies when no limit is given.
const defaultPredictionLimit = 50

func (h *PredictionsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	limit := defaultPredictionLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		limit = n
	}

	preds, err := h.store.Predictions().List(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list predictions")
		return
	}
	if preds == nil {
		preds = []*store.Prediction{}
	}
	writeJSON(w, http.StatusOK, listPredictionsResponse{Predictions: preds})
}
