package api

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/mubayin/signseq/internal/app"
	"github.com/mubayin/signseq/internal/capture"
)

// Predictor serves one prediction from the staged frames.
type Predictor interface {
	Predict(ctx context.Context) (app.Result, error)
}

// PredictHandler handles POST /predict.
type PredictHandler struct {
	predictor Predictor
	log       *zap.Logger
}

// NewPredictHandler creates a PredictHandler.
func NewPredictHandler(p Predictor, log *zap.Logger) *PredictHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &PredictHandler{predictor: p, log: log}
}

// ServeHTTP assembles the oldest staged frames and returns the predicted
// sign. Missing or unreadable frames are client errors.
func (h *PredictHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	res, err := h.predictor.Predict(r.Context())
	if err != nil {
		status := predictStatus(err)
		if status == http.StatusInternalServerError {
			h.log.Error("prediction failed", zap.Error(err))
		}
		writeError(w, status, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, res)
}

func predictStatus(err error) int {
	switch {
	case errors.Is(err, capture.ErrInsufficientFrames), errors.Is(err, capture.ErrUnreadableFrame):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
