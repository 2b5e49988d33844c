package auth

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/dplaneos/dplaned/internal/platform/httpx"
	"github.com/dplaneos/dplaned/internal/shared"
)

// Handler exposes login and logout endpoints.
type Handler struct {
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs a Handler.
func NewHandler(service *Service) *Handler {
	return &Handler{
		service:  service,
		validate: validator.New(),
	}
}

// Routes mounts the auth API. Login is unauthenticated by nature; logout
// identifies the session by its token.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/login", h.login)
	r.Post("/logout", h.logout)
	return r
}

type loginRequest struct {
	Username string `json:"username" validate:"required,min=1,max=64"`
	Password string `json:"password" validate:"required,min=1,max=256"`
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}

	sess, err := h.service.Login(r.Context(), req.Username, req.Password, clientIP(r))
	if err != nil {
		if errors.Is(err, shared.ErrInvalidCredentials) {
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "invalid credentials")
			return
		}
		httpx.Problem(w, http.StatusInternalServerError, "Internal Server Error", "login failed")
		return
	}
	httpx.JSON(w, http.StatusOK, sess)
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	token := r.Header.Get("X-Session-Token")
	if token == "" {
		if cookie, err := r.Cookie("session_token"); err == nil {
			token = cookie.Value
		}
	}
	if token == "" {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "no session token provided")
		return
	}
	if err := h.service.Logout(r.Context(), token, clientIP(r)); err != nil {
		if errors.Is(err, shared.ErrSessionInvalid) {
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "invalid session token")
			return
		}
		httpx.Problem(w, http.StatusInternalServerError, "Internal Server Error", "logout failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// clientIP returns the request's remote address. chi's RealIP middleware has
// already rewritten RemoteAddr from X-Forwarded-For when applicable.
func clientIP(r *http.Request) string {
	return r.RemoteAddr
}
