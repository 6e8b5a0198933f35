package widget

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrymomot/auditkit/pkg/audit"
	"github.com/dmitrymomot/auditkit/pkg/logger"
)

const (
	defaultLimit = 20
	maxLimit     = 100
)

// Response is the JSON envelope of every endpoint.
type Response struct {
	Data  any            `json:"data,omitempty"`
	Meta  map[string]any `json:"meta,omitempty"`
	Error *ErrorDetail   `json:"error,omitempty"`
}

type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Handler serves the widget catalogue and its audit history.
type Handler struct {
	service *Service
	reader  *audit.Reader
	log     *slog.Logger
}

func NewHandler(service *Service, reader *audit.Reader, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{service: service, reader: reader, log: log}
}

// Register mounts the routes on r.
func (h *Handler) Register(r chi.Router) {
	r.Route("/widgets", func(r chi.Router) {
		r.Get("/", h.handleList)
		r.Post("/", h.handleCreate)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.handleGet)
			r.Patch("/", h.handleUpdate)
			r.Delete("/", h.handleDelete)
			r.Get("/audit_logs", h.handleItemHistory)
		})
	})
	r.Get("/audit_logs", h.handleAuditLogs)
}

type createRequest struct {
	Name  string `json:"name"`
	Price int64  `json:"price"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	widget, err := h.service.Create(r.Context(), req.Name, req.Price)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, Response{Data: widget})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, Response{Data: h.service.List(r.Context())})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	widget, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Data: widget})
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var patch Patch
	if err := decode(r, &patch); err != nil {
		h.writeError(w, r, err)
		return
	}
	widget, err := h.service.Update(r.Context(), chi.URLParam(r, "id"), patch)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Data: widget})
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleItemHistory(w http.ResponseWriter, r *http.Request) {
	c, err := criteria(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	c.ItemType = ItemType
	c.ItemID = chi.URLParam(r, "id")
	h.page(w, r, c)
}

func (h *Handler) handleAuditLogs(w http.ResponseWriter, r *http.Request) {
	c, err := criteria(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	c.ItemType = r.URL.Query().Get("item_type")
	c.ItemID = r.URL.Query().Get("item_id")
	c.Whodunnit = r.URL.Query().Get("whodunnit")
	h.page(w, r, c)
}

func (h *Handler) page(w http.ResponseWriter, r *http.Request, c audit.Criteria) {
	records, next, err := h.reader.FindWithCursor(r.Context(), c, r.URL.Query().Get("cursor"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	total, err := h.reader.Count(r.Context(), c)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if records == nil {
		records = []audit.Record{}
	}
	writeJSON(w, http.StatusOK, Response{
		Data: records,
		Meta: map[string]any{"next_cursor": next, "total": total},
	})
}

// criteria reads the query parameters shared by the history endpoints.
func criteria(r *http.Request) (audit.Criteria, error) {
	q := r.URL.Query()
	c := audit.Criteria{Limit: defaultLimit}

	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return c, errors.Join(ErrInvalid, errors.New("limit must be a positive number"))
		}
		c.Limit = min(n, maxLimit)
	}
	for _, e := range q["event"] {
		c.Events = append(c.Events, audit.Event(e))
	}
	for name, dst := range map[string]*time.Time{"since": &c.Since, "until": &c.Until} {
		v := q.Get(name)
		if v == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return c, errors.Join(ErrInvalid, errors.New(name+" must be an RFC 3339 time"))
		}
		*dst = t
	}
	return c, nil
}

var errInvalidJSON = errors.New("widget: invalid JSON body")

func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.Join(errInvalidJSON, err)
	}
	return nil
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := http.StatusInternalServerError, "internal"
	switch {
	case errors.Is(err, ErrNotFound):
		status, code = http.StatusNotFound, "not_found"
	case errors.Is(err, ErrInvalid):
		status, code = http.StatusBadRequest, "invalid_input"
	case errors.Is(err, errInvalidJSON):
		status, code = http.StatusBadRequest, "invalid_json"
	case errors.Is(err, audit.ErrInvalidCursor):
		status, code = http.StatusBadRequest, "invalid_cursor"
	}

	msg := err.Error()
	if status == http.StatusInternalServerError {
		h.log.ErrorContext(r.Context(), "request failed", logger.Error(err))
		msg = http.StatusText(status)
	}
	writeJSON(w, status, Response{Error: &ErrorDetail{Code: code, Message: msg}})
}

func writeJSON(w http.ResponseWriter, status int, body Response) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
