package api

import (
	"bytes"
	"net/http"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/mubayin/signseq/internal/capture"
)

// FramesHandler handles POST /frames, staging one uploaded frame.
type FramesHandler struct {
	stage    *capture.Stage
	maxBytes int64
	log      *zap.Logger
}

// NewFramesHandler creates a FramesHandler writing into stage.
func NewFramesHandler(stage *capture.Stage, maxBytes int64, log *zap.Logger) *FramesHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &FramesHandler{stage: stage, maxBytes: maxBytes, log: log}
}

type frameResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	File    string `json:"file"`
}

func (h *FramesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	name, data, err := readUpload(w, r, h.maxBytes)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ext := filepath.Ext(name)
	if !capture.IsFrameFile(name) {
		ext = ".jpg"
	}
	staged, err := h.stage.Put(ext, bytes.NewReader(data))
	if err != nil {
		h.log.Error("failed to stage frame", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to save frame")
		return
	}

	writeJSON(w, http.StatusCreated, frameResponse{
		Success: true,
		Message: "Frame uploaded successfully",
		File:    staged,
	})
}
