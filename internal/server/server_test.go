package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/mubayin/signseq/internal/app"
	"github.com/mubayin/signseq/internal/capture"
	"github.com/mubayin/signseq/internal/model"
)

// fakeService returns a fixed result and publishes it to subscribers.
type fakeService struct {
	res    app.Result
	err    error
	bundle model.Bundle
	panics bool

	mu   sync.Mutex
	subs map[int]func(app.Event)
	next int
}

func newFakeService(res app.Result) *fakeService {
	return &fakeService{
		res:    res,
		bundle: model.DefaultBundle([]string{"hello", "yes"}),
		subs:   make(map[int]func(app.Event)),
	}
}

func (f *fakeService) Predict(ctx context.Context) (app.Result, error) {
	if f.panics {
		panic("classifier exploded")
	}
	if f.err != nil {
		return app.Result{}, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, fn := range f.subs {
		fn(app.Event{Type: "prediction", Prediction: f.res.Prediction, Confidence: f.res.Confidence})
	}
	return f.res, nil
}

func (f *fakeService) Subscribe(fn func(app.Event)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.next
	f.next++
	f.subs[id] = fn
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.subs, id)
	}
}

func (f *fakeService) Bundle() model.Bundle { return f.bundle }

func (f *fakeService) subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

func TestServer_Health(t *testing.T) {
	s := New(Config{})

	t.Run("returns 200 with JSON response", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
		rec := httptest.NewRecorder()

		s.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("expected status %d, got %d", http.StatusOK, rec.Code)
		}

		contentType := rec.Header().Get("Content-Type")
		if contentType != "application/json" {
			t.Errorf("expected Content-Type application/json, got %s", contentType)
		}

		var response map[string]interface{}
		if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}

		if response["status"] != "ok" {
			t.Errorf("expected status 'ok', got %v", response["status"])
		}
		if _, exists := response["uptime"]; !exists {
			t.Error("expected 'uptime' field in response")
		}
		if _, exists := response["model"]; exists {
			t.Error("expected no 'model' field without a service")
		}
	})

	t.Run("only allows GET method", func(t *testing.T) {
		methods := []string{http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodPatch}

		for _, method := range methods {
			req := httptest.NewRequest(method, "/api/health", nil)
			rec := httptest.NewRecorder()

			s.ServeHTTP(rec, req)

			if rec.Code != http.StatusMethodNotAllowed {
				t.Errorf("method %s: expected status %d, got %d", method, http.StatusMethodNotAllowed, rec.Code)
			}
		}
	})
}

func TestServer_HealthReportsModelAndStage(t *testing.T) {
	stage, err := capture.NewStage(t.TempDir())
	if err != nil {
		t.Fatalf("NewStage() error = %v", err)
	}
	if err := os.WriteFile(filepath.Join(stage.Dir(), "a.jpg"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	s := New(Config{Service: newFakeService(app.Result{}), Stage: stage})
	defer s.Close()

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	var health healthResponse
	if err := json.NewDecoder(rec.Body).Decode(&health); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if health.Model == nil {
		t.Fatal("expected model info")
	}
	if health.Model.SequenceLength != 5 || health.Model.FeatureWidth != 126 {
		t.Errorf("model = %+v, want sequence length 5 and width 126", health.Model)
	}
	if len(health.Model.Labels) != 2 {
		t.Errorf("labels = %v, want 2 labels", health.Model.Labels)
	}
	if health.Pending == nil || *health.Pending != 1 {
		t.Errorf("pending_frames = %v, want 1", health.Pending)
	}
}

func TestServer_NotFound(t *testing.T) {
	s := New(Config{})

	for _, path := range []string{"/api/nonexistent", "/predict", "/upload", "/api/runs"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()

		s.ServeHTTP(rec, req)

		if rec.Code != http.StatusNotFound {
			t.Errorf("%s: expected status %d, got %d", path, http.StatusNotFound, rec.Code)
		}
	}
}

func TestServer_RecoversPanics(t *testing.T) {
	svc := newFakeService(app.Result{})
	svc.panics = true
	s := New(Config{Service: svc})
	defer s.Close()

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/predict", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected status %d, got %d", http.StatusInternalServerError, rec.Code)
	}
	var resp map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp["error"] == "" {
		t.Error("expected an error message")
	}
}

func TestServer_PredictRoute(t *testing.T) {
	s := New(Config{Service: newFakeService(app.Result{Prediction: "Excuse Me", Confidence: 0.92})})
	defer s.Close()

	t.Run("POST predicts", func(t *testing.T) {
		rec := httptest.NewRecorder()
		s.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/predict", nil))

		if rec.Code != http.StatusOK {
			t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
		}
		var got app.Result
		if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if got.Prediction != "Excuse Me" || got.Confidence != 0.92 {
			t.Errorf("got %+v", got)
		}
	})

	t.Run("GET is not allowed", func(t *testing.T) {
		rec := httptest.NewRecorder()
		s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/predict", nil))

		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("expected status %d, got %d", http.StatusMethodNotAllowed, rec.Code)
		}
	})
}

func TestServer_CloseUnsubscribes(t *testing.T) {
	svc := newFakeService(app.Result{})
	s := New(Config{Service: svc})

	if n := svc.subscribers(); n != 1 {
		t.Fatalf("subscribers = %d, want 1", n)
	}
	s.Close()
	if n := svc.subscribers(); n != 0 {
		t.Errorf("subscribers after Close = %d, want 0", n)
	}
}

func TestServer_StaticFiles(t *testing.T) {
	tmpDir := t.TempDir()

	testContent := "<html><body>Hello, World!</body></html>"
	if err := os.WriteFile(filepath.Join(tmpDir, "index.html"), []byte(testContent), 0644); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}

	cssContent := "body { color: red; }"
	if err := os.WriteFile(filepath.Join(tmpDir, "style.css"), []byte(cssContent), 0644); err != nil {
		t.Fatalf("failed to create test CSS file: %v", err)
	}

	s := New(Config{StaticDir: tmpDir})

	t.Run("serves index.html at root path", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rec := httptest.NewRecorder()

		s.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("expected status %d, got %d", http.StatusOK, rec.Code)
		}
		if rec.Body.String() != testContent {
			t.Errorf("expected body %q, got %q", testContent, rec.Body.String())
		}
	})

	t.Run("serves static files from configured directory", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/style.css", nil)
		rec := httptest.NewRecorder()

		s.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("expected status %d, got %d", http.StatusOK, rec.Code)
		}
		if rec.Body.String() != cssContent {
			t.Errorf("expected body %q, got %q", cssContent, rec.Body.String())
		}
	})

	t.Run("returns 404 for non-existent static files", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/nonexistent.html", nil)
		rec := httptest.NewRecorder()

		s.ServeHTTP(rec, req)

		if rec.Code != http.StatusNotFound {
			t.Errorf("expected status %d, got %d", http.StatusNotFound, rec.Code)
		}
	})
}
