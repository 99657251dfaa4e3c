package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/okian/gaitlog/internal/domain/types"
	"github.com/okian/gaitlog/pkg/logger"
)

// ItemsHandler serves /items: ingest, listing, detail, samples and delete.
type ItemsHandler struct {
	deps         Dependencies
	maxBodyBytes int64
	logger       logger.Logger
}

// NewItemsHandler creates a new items handler.
func NewItemsHandler(deps Dependencies, maxBodyBytes int64, l logger.Logger) *ItemsHandler {
	return &ItemsHandler{deps: deps, maxBodyBytes: maxBodyBytes, logger: l}
}

// HandleIngest handles POST /items. The reply is a JSON string, and so is
// the 400 body of a rejected batch.
func (h *ItemsHandler) HandleIngest(w http.ResponseWriter, r *http.Request) {
	const op = "api.ingest"

	var req types.IngestRequest
	body := http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.reject(w, r, WrapKind(op, ErrPayloadTooLarge, err))
			return
		}
		h.reject(w, r, WrapKind(op, ErrBadRequest, err))
		return
	}

	res, err := h.deps.Ingest(r.Context(), req)
	if err != nil {
		h.reject(w, r, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, res.Message)
}

// HandleDelete handles DELETE /items/{id}. Failures answer like ingest.
func (h *ItemsHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	msg, err := h.deps.DeleteSession(r.Context(), r.PathValue("id"))
	if err != nil {
		h.reject(w, r, Wrap("api.delete", err))
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

// HandleList handles GET /items.
func (h *ItemsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	entries, err := h.deps.List(r.Context())
	if err != nil {
		h.fail(w, r, Wrap("api.list", err))
		return
	}
	if entries == nil {
		entries = []types.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// HandleDetail handles GET /items/{id}: the entry plus gait features.
func (h *ItemsHandler) HandleDetail(w http.ResponseWriter, r *http.Request) {
	d, err := h.deps.Detail(r.Context(), r.PathValue("id"))
	if err != nil {
		h.fail(w, r, Wrap("api.detail", err))
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// HandleSamples handles GET /items/{id}/samples: the full accumulated record.
func (h *ItemsHandler) HandleSamples(w http.ResponseWriter, r *http.Request) {
	s, err := h.deps.Session(r.Context(), r.PathValue("id"))
	if err != nil {
		h.fail(w, r, Wrap("api.samples", err))
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// fail answers a read route with the status classify picks.
func (h *ItemsHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)
	h.log(r, status, status >= http.StatusInternalServerError, err)
	writeError(w, status, code, err)
}

// reject answers a write route with 400 and the underlying error message
// as a JSON string.
func (h *ItemsHandler) reject(w http.ResponseWriter, r *http.Request, err error) {
	status, _ := classify(err)
	h.log(r, http.StatusBadRequest, status >= http.StatusInternalServerError, err)
	writeJSON(w, http.StatusBadRequest, cause(err))
}

// log reports a failure; server-side faults are logged as errors.
func (h *ItemsHandler) log(r *http.Request, status int, fault bool, err error) {
	fields := []logger.Field{
		logger.String("request_id", RequestIDFrom(r.Context())),
		logger.String("path", r.URL.Path),
		logger.Int("status", status),
		logger.Error(err),
	}
	if fault {
		h.logger.Error(r.Context(), "request failed", fields...)
	} else {
		h.logger.Debug(r.Context(), "request rejected", fields...)
	}
}
