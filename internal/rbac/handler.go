package rbac

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/dplaneos/dplaned/internal/platform/httpx"
	"github.com/dplaneos/dplaned/internal/shared"
)

// Handler exposes role and assignment administration endpoints.
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

// Routes mounts the admin API. The caller wraps these with RequireAuth and a
// roles:manage permission check.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/roles", h.listRoles)
	r.Post("/roles", h.createRole)
	r.Get("/roles/{roleID}", h.getRole)
	r.Put("/roles/{roleID}", h.updateRole)
	r.Delete("/roles/{roleID}", h.deleteRole)
	r.Post("/roles/{roleID}/permissions/{permissionID}", h.attachPermission)
	r.Delete("/roles/{roleID}/permissions/{permissionID}", h.detachPermission)
	r.Get("/permissions", h.listPermissions)
	r.Get("/users/{userID}/roles", h.userRoles)
	r.Post("/users/{userID}/roles", h.assignRole)
	r.Delete("/users/{userID}/roles/{roleID}", h.removeRole)
	return r
}

type createRoleRequest struct {
	Name        string `json:"name" validate:"required,min=2,max=64"`
	DisplayName string `json:"display_name" validate:"required,max=128"`
	Description string `json:"description" validate:"max=512"`
}

type updateRoleRequest struct {
	DisplayName string `json:"display_name" validate:"required,max=128"`
	Description string `json:"description" validate:"max=512"`
}

type assignRoleRequest struct {
	RoleID    int64      `json:"role_id" validate:"required,gt=0"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.service.ListRoles(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, roles)
}

func (h *Handler) createRole(w http.ResponseWriter, r *http.Request) {
	var req createRoleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	role, err := h.service.CreateRole(r.Context(), req.Name, req.DisplayName, req.Description)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, role)
}

func (h *Handler) getRole(w http.ResponseWriter, r *http.Request) {
	roleID, ok := pathID(w, r, "roleID")
	if !ok {
		return
	}
	role, err := h.service.GetRole(r.Context(), roleID)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, role)
}

func (h *Handler) updateRole(w http.ResponseWriter, r *http.Request) {
	roleID, ok := pathID(w, r, "roleID")
	if !ok {
		return
	}
	var req updateRoleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	if err := h.service.UpdateRole(r.Context(), roleID, req.DisplayName, req.Description); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) deleteRole(w http.ResponseWriter, r *http.Request) {
	roleID, ok := pathID(w, r, "roleID")
	if !ok {
		return
	}
	if err := h.service.DeleteRole(r.Context(), roleID); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) attachPermission(w http.ResponseWriter, r *http.Request) {
	roleID, ok := pathID(w, r, "roleID")
	if !ok {
		return
	}
	permissionID, ok := pathID(w, r, "permissionID")
	if !ok {
		return
	}
	if err := h.service.AttachPermission(r.Context(), roleID, permissionID); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) detachPermission(w http.ResponseWriter, r *http.Request) {
	roleID, ok := pathID(w, r, "roleID")
	if !ok {
		return
	}
	permissionID, ok := pathID(w, r, "permissionID")
	if !ok {
		return
	}
	if err := h.service.DetachPermission(r.Context(), roleID, permissionID); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listPermissions(w http.ResponseWriter, r *http.Request) {
	permissions, err := h.service.ListPermissions(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, permissions)
}

func (h *Handler) userRoles(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r, "userID")
	if !ok {
		return
	}
	roles, err := h.service.UserRoles(r.Context(), userID)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, roles)
}

func (h *Handler) assignRole(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r, "userID")
	if !ok {
		return
	}
	var req assignRoleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	var grantedBy *int64
	if user := shared.UserFromContext(r.Context()); user != nil {
		grantedBy = &user.ID
	}
	if err := h.service.AssignRoleToUser(r.Context(), userID, req.RoleID, grantedBy, req.ExpiresAt); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) removeRole(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r, "userID")
	if !ok {
		return
	}
	roleID, ok := pathID(w, r, "roleID")
	if !ok {
		return
	}
	if err := h.service.RemoveRoleFromUser(r.Context(), userID, roleID); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", "role not found")
	case errors.Is(err, shared.ErrSystemRoleProtected):
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "system roles cannot be modified")
	case errors.Is(err, shared.ErrValidation):
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
	default:
		httpx.Problem(w, http.StatusInternalServerError, "Internal Server Error", "operation failed")
	}
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid "+name)
		return 0, false
	}
	return id, true
}
