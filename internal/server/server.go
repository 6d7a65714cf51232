// Package server provides the HTTP surface of the sign recognition service.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/codegangsta/negroni"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/mubayin/signseq/internal/app"
	"github.com/mubayin/signseq/internal/capture"
	"github.com/mubayin/signseq/internal/model"
	"github.com/mubayin/signseq/internal/server/api"
	"github.com/mubayin/signseq/internal/store"
)

// Service is the prediction side of the server.
type Service interface {
	Predict(ctx context.Context) (app.Result, error)
	Subscribe(fn func(app.Event)) func()
	Bundle() model.Bundle
}

// Config holds the server configuration. Every collaborator is optional;
// routes are registered only for the ones that are set.
type Config struct {
	Service Service
	Stage   *capture.Stage
	Relay   api.Relay
	Store   *store.Store
	// Camera enables the MJPEG preview at /api/stream.
	Camera         capture.Camera
	StaticDir      string
	MaxUploadBytes int64
	Logger         *zap.Logger
}

// Server is the HTTP front of the service.
type Server struct {
	config  Config
	log     *zap.Logger
	router  *mux.Router
	handler http.Handler
	events  *EventsHandler
	start   time.Time
}

// New creates a new Server with the given configuration.
func New(config Config) *Server {
	log := config.Logger
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{
		config: config,
		log:    log,
		router: mux.NewRouter(),
		start:  time.Now(),
	}
	s.setupRoutes()
	s.handler = negroni.New(NewRecovery(log), NewLogger(log), negroni.Wrap(s.router))
	return s
}

func (s *Server) setupRoutes() {
	r := s.router
	r.HandleFunc("/api/health", s.handleHealth).Methods(http.MethodGet)

	if s.config.Service != nil {
		r.Handle("/predict", api.NewPredictHandler(s.config.Service, s.log)).Methods(http.MethodPost)
		s.events = NewEventsHandler(s.config.Service, s.log)
		r.Handle("/api/events", s.events).Methods(http.MethodGet)
	}

	if s.config.Stage != nil {
		r.Handle("/frames", api.NewFramesHandler(s.config.Stage, s.config.MaxUploadBytes, s.log)).Methods(http.MethodPost)
	}

	if s.config.Relay != nil {
		r.Handle("/upload", api.NewUploadHandler(s.config.Relay, s.config.MaxUploadBytes, s.log)).Methods(http.MethodPost)
	}

	if s.config.Store != nil {
		runs := api.NewRunsHandler(s.config.Store)
		r.Handle("/api/runs", runs).Methods(http.MethodGet)
		r.Handle("/api/runs/{id}", runs).Methods(http.MethodGet)
		r.Handle("/api/predictions", api.NewPredictionsHandler(s.config.Store)).Methods(http.MethodGet)
	}

	if s.config.Camera != nil {
		r.Handle("/api/stream", NewStreamHandler(s.config.Camera, s.log)).Methods(http.MethodGet)
	}

	if s.config.StaticDir != "" {
		r.PathPrefix("/").Handler(http.FileServer(http.Dir(s.config.StaticDir)))
	}
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

type modelInfo struct {
	Labels         []string `json:"labels"`
	Layout         string   `json:"layout"`
	FeatureWidth   int      `json:"feature_width"`
	SequenceLength int      `json:"sequence_length"`
}

type healthResponse struct {
	Status  string     `json:"status"`
	Uptime  string     `json:"uptime"`
	Model   *modelInfo `json:"model,omitempty"`
	Pending *int       `json:"pending_frames,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status: "ok",
		Uptime: time.Since(s.start).Round(time.Second).String(),
	}

	if s.config.Service != nil {
		b := s.config.Service.Bundle()
		resp.Model = &modelInfo{
			Labels:         b.Labels,
			Layout:         string(b.Layout),
			FeatureWidth:   b.FeatureWidth,
			SequenceLength: b.SequenceLength,
		}
	}

	if s.config.Stage != nil {
		if pending, err := s.config.Stage.Pending(); err == nil {
			n := len(pending)
			resp.Pending = &n
		}
	}

	api.WriteJSON(w, http.StatusOK, resp)
}

// Close detaches the server from the prediction service and drops
// websocket clients.
func (s *Server) Close() {
	if s.events != nil {
		s.events.Close()
	}
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s}

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	s.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
