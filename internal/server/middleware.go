package server

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/codegangsta/negroni"
	"go.uber.org/zap"

	"github.com/mubayin/signseq/internal/server/api"
)

// Recovery is a negroni.Handler that turns handler panics into 500
// responses.
type Recovery struct {
	log       *zap.Logger
	StackSize int
}

// NewRecovery returns a new Recovery negroni.Handler.
func NewRecovery(log *zap.Logger) *Recovery {
	return &Recovery{log: log, StackSize: 8 << 10}
}

// ServeHTTP implements negroni.Handler.
func (rec *Recovery) ServeHTTP(w http.ResponseWriter, r *http.Request, next http.HandlerFunc) {
	defer func() {
		if err := recover(); err != nil {
			stack := make([]byte, rec.StackSize)
			stack = stack[:runtime.Stack(stack, false)]
			rec.log.Error("panic serving request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("panic", fmt.Sprint(err)),
				zap.ByteString("stack", stack),
			)

			// A hijacked websocket connection cannot take a response.
			if rw, ok := w.(negroni.ResponseWriter); ok && rw.Written() {
				return
			}
			api.WriteError(w, http.StatusInternalServerError, "Internal server error")
		}
	}()

	next(w, r)
}

// Logger is a negroni.Handler that logs every request.
type Logger struct {
	log *zap.Logger
}

// NewLogger returns a Logger negroni.Handler.
func NewLogger(log *zap.Logger) *Logger {
	return &Logger{log: log}
}

// ServeHTTP implements negroni.Handler.
func (l *Logger) ServeHTTP(w http.ResponseWriter, r *http.Request, next http.HandlerFunc) {
	start := time.Now()
	next(w, r)

	fields := []zap.Field{
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.Duration("elapsed", time.Since(start)),
	}
	if rw, ok := w.(negroni.ResponseWriter); ok {
		fields = append(fields, zap.Int("status", rw.Status()), zap.Int("size", rw.Size()))
	}
	l.log.Info("request", fields...)
}
