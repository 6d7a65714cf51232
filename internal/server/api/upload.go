package api

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/mubayin/signseq/internal/relay"
)

// Relay classifies a single uploaded image through the remote model.
type Relay interface {
	Process(ctx context.Context, name string, data []byte) (*relay.Response, error)
}

// UploadHandler handles POST /upload.
type UploadHandler struct {
	relay    Relay
	maxBytes int64
	log      *zap.Logger
}

// NewUploadHandler creates an UploadHandler.
func NewUploadHandler(r Relay, maxBytes int64, log *zap.Logger) *UploadHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &UploadHandler{relay: r, maxBytes: maxBytes, log: log}
}

func (h *UploadHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	name, data, err := readUpload(w, r, h.maxBytes)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := h.relay.Process(r.Context(), name, data)
	if err != nil {
		if errors.Is(err, relay.ErrUnreadableImage) {
			writeError(w, http.StatusBadRequest, "Failed to read image")
			return
		}
		h.log.Error("upload processing failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, resp)
}
