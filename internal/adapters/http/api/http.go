// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/okian/gaitlog/internal/adapters/repository"
	service "github.com/okian/gaitlog/internal/app"
	"github.com/okian/gaitlog/internal/domain/model"
	"github.com/okian/gaitlog/internal/domain/types"
	"github.com/okian/gaitlog/pkg/logger"
)

const defaultMaxBodyBytes = 4 << 20

// Dependencies required by HTTP handlers.
type Dependencies interface {
	Ingest(ctx context.Context, req types.IngestRequest) (service.IngestResult, error)
	DeleteSession(ctx context.Context, sessionID string) (string, error)
	List(ctx context.Context) ([]types.Entry, error)
	Detail(ctx context.Context, sessionID string) (types.Detail, error)
	Session(ctx context.Context, sessionID string) (model.Session, error)
}

// Server wires HTTP routes for the session API.
type Server struct {
	healthHandler *HealthHandler
	statsHandler  *StatsHandler
	itemsHandler  *ItemsHandler
}

// Option configures a Server.
type Option func(*serverOptions)

type serverOptions struct {
	maxBodyBytes int64
	logger       logger.Logger
}

// WithMaxBodyBytes caps the size of an ingest request body.
func WithMaxBodyBytes(n int64) Option {
	return func(o *serverOptions) {
		if n > 0 {
			o.maxBodyBytes = n
		}
	}
}

// WithLogger sets the logger used for request failures.
func WithLogger(l logger.Logger) Option {
	return func(o *serverOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, opts ...Option) *Server {
	o := serverOptions{maxBodyBytes: defaultMaxBodyBytes}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logger.Get()
	}
	health := NewHealthHandler()
	return &Server{
		healthHandler: health,
		statsHandler:  NewStatsHandler(statsProvider, health),
		itemsHandler:  NewItemsHandler(deps, o.maxBodyBytes, o.logger),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	route := func(pattern, endpoint string, h http.HandlerFunc) {
		mux.HandleFunc(pattern, RequestID(CORS(MetricsMiddleware(h, endpoint))))
	}

	route("GET /healthz", "healthz", s.healthHandler.HandleHealth)
	route("GET /stats", "stats", s.statsHandler.HandleStats)
	mux.Handle("GET /metrics", s.healthHandler.MetricsHandler())

	route("POST /items", "items", s.itemsHandler.HandleIngest)
	route("GET /items", "items", s.itemsHandler.HandleList)
	route("OPTIONS /items", "items", preflight)
	route("GET /items/{id}", "item", s.itemsHandler.HandleDetail)
	route("DELETE /items/{id}", "item", s.itemsHandler.HandleDelete)
	route("OPTIONS /items/{id}", "item", preflight)
	route("GET /items/{id}/samples", "samples", s.itemsHandler.HandleSamples)
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError answers the read routes with a {code, message} object.
func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// classify maps an error from the service or this package to a status and code.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, ErrBadRequest), errors.Is(err, ErrPayloadTooLarge), errors.Is(err, service.ErrValidation):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, repository.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, service.ErrAnalysis):
		return http.StatusUnprocessableEntity, "bad_data"
	case errors.Is(err, service.ErrNotStarted):
		return http.StatusServiceUnavailable, "unavailable"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// cause returns the message of the error underneath the operation and kind
// tags, as devices expect it in a rejected write.
func cause(err error) string {
	var se *service.Error
	if errors.As(err, &se) {
		if se.Err != nil {
			return se.Err.Error()
		}
		return se.Kind.Error()
	}
	var oe *opError
	if errors.As(err, &oe) {
		if oe.err != nil {
			return oe.err.Error()
		}
		return oe.kind.Error()
	}
	return err.Error()
}
