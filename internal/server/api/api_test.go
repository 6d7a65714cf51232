package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mubayin/signseq/internal/app"
	"github.com/mubayin/signseq/internal/capture"
	"github.com/mubayin/signseq/internal/relay"
	"github.com/mubayin/signseq/internal/store"
)

type fakePredictor struct {
	res app.Result
	err error
}

func (f *fakePredictor) Predict(ctx context.Context) (app.Result, error) {
	return f.res, f.err
}

type fakeRelay struct {
	resp *relay.Response
	err  error
	name string
	data []byte
}

func (f *fakeRelay) Process(ctx context.Context, name string, data []byte) (*relay.Response, error) {
	f.name, f.data = name, data
	return f.resp, f.err
}

// multipartRequest builds a POST with data in the "file" part, or with an
// unrelated part when field is empty.
func multipartRequest(t *testing.T, target, field, filename string, data []byte) *http.Request {
	t.Helper()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if field == "" {
		require.NoError(t, mw.WriteField("other", "value"))
	} else {
		part, err := mw.CreateFormFile(field, filename)
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, target, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp errorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp.Error
}

func TestPredictHandler(t *testing.T) {
	tests := []struct {
		name       string
		predictor  *fakePredictor
		wantStatus int
	}{
		{"success", &fakePredictor{res: app.Result{Prediction: "thank you", Confidence: 0.8}}, http.StatusOK},
		{"insufficient frames", &fakePredictor{err: fmt.Errorf("take: %w", capture.ErrInsufficientFrames)}, http.StatusBadRequest},
		{"unreadable frame", &fakePredictor{err: fmt.Errorf("frame a.jpg: %w", capture.ErrUnreadableFrame)}, http.StatusBadRequest},
		{"internal failure", &fakePredictor{err: errors.New("detector died")}, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewPredictHandler(tt.predictor, nil)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/predict", nil))

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

			if tt.wantStatus != http.StatusOK {
				assert.Equal(t, tt.predictor.err.Error(), decodeError(t, rec))
				return
			}
			var got app.Result
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
			assert.Equal(t, tt.predictor.res, got)
		})
	}

	t.Run("rejects GET", func(t *testing.T) {
		rec := httptest.NewRecorder()
		NewPredictHandler(&fakePredictor{}, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/predict", nil))
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	})
}

func TestFramesHandler(t *testing.T) {
	newHandler := func(t *testing.T) (*FramesHandler, *capture.Stage) {
		stage, err := capture.NewStage(t.TempDir())
		require.NoError(t, err)
		return NewFramesHandler(stage, 0, nil), stage
	}

	t.Run("stages the upload", func(t *testing.T) {
		h, stage := newHandler(t)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, multipartRequest(t, "/frames", "file", "frame.png", []byte("png bytes")))

		require.Equal(t, http.StatusCreated, rec.Code)
		var resp frameResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		assert.True(t, resp.Success)
		assert.Equal(t, ".png", filepath.Ext(resp.File))

		pending, err := stage.Pending()
		require.NoError(t, err)
		require.Len(t, pending, 1)
		assert.Equal(t, resp.File, pending[0].Name)
		data, err := os.ReadFile(pending[0].Path)
		require.NoError(t, err)
		assert.Equal(t, "png bytes", string(data))
	})

	t.Run("unknown extension is staged as jpg", func(t *testing.T) {
		h, _ := newHandler(t)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, multipartRequest(t, "/frames", "file", "blob", []byte("x")))

		require.Equal(t, http.StatusCreated, rec.Code)
		var resp frameResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		assert.True(t, strings.HasSuffix(resp.File, ".jpg"))
	})

	t.Run("missing file", func(t *testing.T) {
		h, stage := newHandler(t)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, multipartRequest(t, "/frames", "", "", nil))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "No file provided", decodeError(t, rec))
		pending, err := stage.Pending()
		require.NoError(t, err)
		assert.Empty(t, pending)
	})

	t.Run("not multipart", func(t *testing.T) {
		h, _ := newHandler(t)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/frames", strings.NewReader("raw")))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestUploadHandler(t *testing.T) {
	t.Run("returns the relay response", func(t *testing.T) {
		fr := &fakeRelay{resp: &relay.Response{
			Message:       relay.MessageProcessed,
			PredictedSign: "3",
			SignArabic:    "شكرا",
			Keypoints:     []float64{0.1, 0.2},
		}}
		rec := httptest.NewRecorder()
		NewUploadHandler(fr, 0, nil).ServeHTTP(rec, multipartRequest(t, "/upload", "file", "hand.jpg", []byte("jpeg")))

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "hand.jpg", fr.name)
		assert.Equal(t, []byte("jpeg"), fr.data)

		var got relay.Response
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
		assert.Equal(t, *fr.resp, got)
	})

	t.Run("no hands", func(t *testing.T) {
		fr := &fakeRelay{resp: &relay.Response{Message: relay.MessageNoHands}}
		rec := httptest.NewRecorder()
		NewUploadHandler(fr, 0, nil).ServeHTTP(rec, multipartRequest(t, "/upload", "file", "hand.jpg", []byte("jpeg")))

		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"message":"No hands detected!"}`, rec.Body.String())
	})

	t.Run("unreadable image", func(t *testing.T) {
		fr := &fakeRelay{err: fmt.Errorf("decode: %w", relay.ErrUnreadableImage)}
		rec := httptest.NewRecorder()
		NewUploadHandler(fr, 0, nil).ServeHTTP(rec, multipartRequest(t, "/upload", "file", "hand.jpg", []byte("jpeg")))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "Failed to read image", decodeError(t, rec))
	})

	t.Run("missing file", func(t *testing.T) {
		fr := &fakeRelay{}
		rec := httptest.NewRecorder()
		NewUploadHandler(fr, 0, nil).ServeHTTP(rec, multipartRequest(t, "/upload", "", "", nil))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Empty(t, fr.name)
	})

	t.Run("too large", func(t *testing.T) {
		fr := &fakeRelay{}
		rec := httptest.NewRecorder()
		big := bytes.Repeat([]byte("x"), 4096)
		NewUploadHandler(fr, 1024, nil).ServeHTTP(rec, multipartRequest(t, "/upload", "file", "big.jpg", big))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Empty(t, fr.name)
	})
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRunsHandler(t *testing.T) {
	s := newTestStore(t)
	run := &store.Run{
		ID:        "run-1",
		Status:    store.RunRunning,
		Labels:    []string{"hello", "yes"},
		Layout:    "hands",
		Folders:   []string{"data"},
		StartedAt: time.Now(),
	}
	require.NoError(t, s.Runs().Create(run))
	require.NoError(t, s.Epochs().Add(&store.Epoch{RunID: "run-1", Epoch: 1, Loss: 1.2, ValLoss: 1.3}))
	require.NoError(t, s.Epochs().Add(&store.Epoch{RunID: "run-1", Epoch: 2, Loss: 0.9, ValLoss: 1.1}))

	h := NewRunsHandler(s)

	t.Run("list", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/runs", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		var resp struct {
			Runs []store.Run `json:"runs"`
		}
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		require.Len(t, resp.Runs, 1)
		assert.Equal(t, "run-1", resp.Runs[0].ID)
		assert.Equal(t, []string{"hello", "yes"}, resp.Runs[0].Labels)
	})

	t.Run("get with epochs", func(t *testing.T) {
		req := mux.SetURLVars(httptest.NewRequest(http.MethodGet, "/api/runs/run-1", nil), map[string]string{"id": "run-1"})
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		var resp struct {
			ID     string        `json:"id"`
			Status string        `json:"status"`
			Epochs []store.Epoch `json:"epochs"`
		}
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		assert.Equal(t, "run-1", resp.ID)
		assert.Equal(t, "running", resp.Status)
		require.Len(t, resp.Epochs, 2)
		assert.Equal(t, 1, resp.Epochs[0].Epoch)
		assert.Equal(t, 2, resp.Epochs[1].Epoch)
	})

	t.Run("unknown run", func(t *testing.T) {
		req := mux.SetURLVars(httptest.NewRequest(http.MethodGet, "/api/runs/nope", nil), map[string]string{"id": "nope"})
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "Run not found", decodeError(t, rec))
	})

	t.Run("empty list is an empty array", func(t *testing.T) {
		rec := httptest.NewRecorder()
		NewRunsHandler(newTestStore(t)).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/runs", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"runs":[]}`, rec.Body.String())
	})
}

func TestPredictionsHandler(t *testing.T) {
	s := newTestStore(t)
	base := time.Now().Add(-time.Hour)
	for i := 0; i < 3; i++ {
		require.NoError(t, s.Predictions().Create(&store.Prediction{
			ID:         fmt.Sprintf("p%d", i),
			Label:      "hello",
			Confidence: 0.5,
			Source:     store.SourcePredict,
			CreatedAt:  base.Add(time.Duration(i) * time.Minute),
		}))
	}
	h := NewPredictionsHandler(s)

	list := func(t *testing.T, target string) []store.Prediction {
		t.Helper()
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
		require.Equal(t, http.StatusOK, rec.Code)
		var resp struct {
			Predictions []store.Prediction `json:"predictions"`
		}
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		return resp.Predictions
	}

	assert.Len(t, list(t, "/api/predictions"), 3)
	assert.Len(t, list(t, "/api/predictions?limit=2"), 2)

	for _, bad := range []string{"abc", "-1"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/predictions?limit="+bad, nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code, "limit=%s", bad)
	}
}
