package audit

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/dplaneos/dplaned/internal/platform/httpx"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

// Handler exposes the audit read and verification API.
type Handler struct {
	repo     Repository
	verifier *Verifier
}

// NewHandler constructs a Handler.
func NewHandler(repo Repository, verifier *Verifier) *Handler {
	return &Handler{repo: repo, verifier: verifier}
}

// Routes mounts the audit API. The caller wraps these with RequireAuth and an
// audit:read permission check.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/events", h.listEvents)
	r.Post("/verify", h.verify)
	return r
}

func (h *Handler) listEvents(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", defaultPageSize)
	if limit <= 0 || limit > maxPageSize {
		limit = defaultPageSize
	}
	offset := queryInt(r, "offset", 0)
	if offset < 0 {
		offset = 0
	}

	events, err := h.repo.ListEvents(r.Context(), limit, offset)
	if err != nil {
		httpx.Problem(w, http.StatusInternalServerError, "Internal Server Error", "failed to load audit events")
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"events": events,
		"limit":  limit,
		"offset": offset,
	})
}

type verifyRequest struct {
	FromID int64 `json:"from_id"`
	ToID   int64 `json:"to_id"`
}

func (h *Handler) verify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if r.ContentLength > 0 {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
			return
		}
	}
	if req.FromID < 0 || req.ToID < 0 || (req.ToID > 0 && req.FromID > req.ToID) {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid id range")
		return
	}

	report, err := h.verifier.Verify(r.Context(), req.FromID, req.ToID)
	if err != nil {
		httpx.Problem(w, http.StatusInternalServerError, "Internal Server Error", "chain verification failed")
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}
