// Package storage exposes the appliance management API for pools, datasets,
// snapshots and containers. Every mutating endpoint goes through the command
// broker and leaves an audit trail.
package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/dplaneos/dplaned/internal/audit"
	"github.com/dplaneos/dplaned/internal/broker"
	"github.com/dplaneos/dplaned/internal/platform/httpx"
	"github.com/dplaneos/dplaned/internal/shared"
)

// Enqueuer schedules long-running storage operations on the job queue.
type Enqueuer interface {
	EnqueuePoolScrub(ctx context.Context, pool, user, ip string) error
	EnqueueReplicationSend(ctx context.Context, snapshot, target, user, ip string) error
}

// Handler wires the storage endpoints.
type Handler struct {
	broker   *broker.Service
	recorder *audit.Recorder
	enqueuer Enqueuer
	logger   *slog.Logger
	validate *validator.Validate
}

// NewHandler constructs a Handler.
func NewHandler(b *broker.Service, recorder *audit.Recorder, enqueuer Enqueuer, logger *slog.Logger) *Handler {
	return &Handler{
		broker:   b,
		recorder: recorder,
		enqueuer: enqueuer,
		logger:   logger,
		validate: validator.New(),
	}
}

// Routes mounts the storage API. The caller wraps these with RequireAuth and
// per-route permission checks.
func (h *Handler) Routes(mw func(resource, action string) func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()

	r.Group(func(r chi.Router) {
		r.Use(mw("storage", "read"))
		r.Get("/pools", h.listPools)
		r.Get("/pools/{pool}/status", h.poolStatus)
		r.Get("/datasets", h.listDatasets)
		r.Get("/snapshots", h.listSnapshots)
		r.Get("/disks", h.listDisks)
		r.Get("/containers", h.listContainers)
	})

	r.Group(func(r chi.Router) {
		r.Use(mw("storage", "write"))
		r.Post("/pools", h.createPool)
		r.Delete("/pools/{pool}", h.destroyPool)
		r.Post("/pools/{pool}/scrub", h.scrubPool)
		r.Post("/datasets", h.createDataset)
		r.Delete("/datasets/*", h.destroyDataset)
		r.Post("/snapshots", h.createSnapshot)
		r.Post("/replication/send", h.replicationSend)
		r.Put("/properties", h.setProperty)
	})

	r.Group(func(r chi.Router) {
		r.Use(mw("containers", "manage"))
		r.Post("/containers/{name}/start", h.startContainer)
		r.Post("/containers/{name}/stop", h.stopContainer)
	})

	return r
}

type createPoolRequest struct {
	Name     string   `json:"name" validate:"required,max=255"`
	RaidType string   `json:"raid_type" validate:"omitempty,oneof=mirror raidz raidz1 raidz2 raidz3"`
	Devices  []string `json:"devices" validate:"required,min=1,dive,required"`
	Force    bool     `json:"force"`
}

type createDatasetRequest struct {
	Name string `json:"name" validate:"required,max=255"`
}

type createSnapshotRequest struct {
	Dataset string `json:"dataset" validate:"required,max=255"`
	Name    string `json:"name" validate:"required,max=128"`
}

type setPropertyRequest struct {
	Dataset  string `json:"dataset" validate:"required,max=255"`
	Property string `json:"property" validate:"required,max=128"`
	Value    string `json:"value" validate:"required,max=255"`
}

type replicationSendRequest struct {
	Snapshot string `json:"snapshot" validate:"required,max=384"`
	Target   string `json:"target" validate:"required,max=255"`
}

func (h *Handler) listPools(w http.ResponseWriter, r *http.Request) {
	h.runAndRespond(w, r, "zpool_list", nil)
}

func (h *Handler) poolStatus(w http.ResponseWriter, r *http.Request) {
	h.runAndRespond(w, r, "zpool_status", map[string]string{
		"name": chi.URLParam(r, "pool"),
	})
}

func (h *Handler) listDatasets(w http.ResponseWriter, r *http.Request) {
	h.runAndRespond(w, r, "zfs_list", nil)
}

func (h *Handler) listSnapshots(w http.ResponseWriter, r *http.Request) {
	dataset := r.URL.Query().Get("dataset")
	if dataset == "" {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "dataset query parameter required")
		return
	}
	h.runAndRespond(w, r, "zfs_list_snapshots", map[string]string{"name": dataset})
}

func (h *Handler) listDisks(w http.ResponseWriter, r *http.Request) {
	h.runAndRespond(w, r, "lsblk_list", nil)
}

func (h *Handler) listContainers(w http.ResponseWriter, r *http.Request) {
	h.runAndRespond(w, r, "docker_ps", nil)
}

func (h *Handler) createPool(w http.ResponseWriter, r *http.Request) {
	var req createPoolRequest
	if !h.decode(w, r, &req) {
		return
	}
	vdev := req.RaidType
	for _, dev := range req.Devices {
		if vdev == "" {
			vdev = dev
		} else {
			vdev += " " + dev
		}
	}
	params := map[string]string{
		"name": req.Name,
		"vdev": vdev,
	}
	if req.Force {
		params["flags"] = "-f"
	}
	h.runAudited(w, r, "zpool_create", params, "storage.pool.create", req.Name)
}

func (h *Handler) destroyPool(w http.ResponseWriter, r *http.Request) {
	pool := chi.URLParam(r, "pool")
	h.runAudited(w, r, "zpool_destroy", map[string]string{"name": pool}, "storage.pool.destroy", pool)
}

func (h *Handler) scrubPool(w http.ResponseWriter, r *http.Request) {
	pool := chi.URLParam(r, "pool")
	user := shared.UserFromContext(r.Context())
	if user == nil {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "no valid session")
		return
	}
	if err := h.enqueuer.EnqueuePoolScrub(r.Context(), pool, user.Username, r.RemoteAddr); err != nil {
		h.logger.Error("enqueue pool scrub", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Server Error", "failed to schedule scrub")
		return
	}
	h.record(r, "storage.pool.scrub", pool, "scheduled", true)
	httpx.JSON(w, http.StatusAccepted, map[string]string{"status": "scheduled", "pool": pool})
}

func (h *Handler) createDataset(w http.ResponseWriter, r *http.Request) {
	var req createDatasetRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.runAudited(w, r, "zfs_create", map[string]string{"name": req.Name}, "storage.dataset.create", req.Name)
}

func (h *Handler) destroyDataset(w http.ResponseWriter, r *http.Request) {
	dataset := chi.URLParam(r, "*")
	h.runAudited(w, r, "zfs_destroy", map[string]string{"name": dataset}, "storage.dataset.destroy", dataset)
}

func (h *Handler) createSnapshot(w http.ResponseWriter, r *http.Request) {
	var req createSnapshotRequest
	if !h.decode(w, r, &req) {
		return
	}
	snapshot := req.Dataset + "@" + req.Name
	h.runAudited(w, r, "zfs_snapshot", map[string]string{"name": snapshot}, "storage.snapshot.create", snapshot)
}

func (h *Handler) setProperty(w http.ResponseWriter, r *http.Request) {
	var req setPropertyRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.runAudited(w, r, "zfs_set_property", map[string]string{
		"property": req.Property + "=" + req.Value,
		"name":     req.Dataset,
	}, "storage.property.set", req.Dataset)
}

func (h *Handler) replicationSend(w http.ResponseWriter, r *http.Request) {
	var req replicationSendRequest
	if !h.decode(w, r, &req) {
		return
	}
	user := shared.UserFromContext(r.Context())
	if user == nil {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "no valid session")
		return
	}
	if err := h.enqueuer.EnqueueReplicationSend(r.Context(), req.Snapshot, req.Target, user.Username, r.RemoteAddr); err != nil {
		h.logger.Error("enqueue replication send", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Server Error", "failed to schedule replication")
		return
	}
	h.record(r, "storage.replication.send", req.Snapshot, "scheduled to "+req.Target, true)
	httpx.JSON(w, http.StatusAccepted, map[string]string{"status": "scheduled", "snapshot": req.Snapshot})
}

func (h *Handler) startContainer(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	h.runAudited(w, r, "docker_start", map[string]string{"name": name}, "container.start", name)
}

func (h *Handler) stopContainer(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	h.runAudited(w, r, "docker_stop", map[string]string{"name": name}, "container.stop", name)
}

// runAndRespond executes a read-only command and returns its output verbatim.
func (h *Handler) runAndRespond(w http.ResponseWriter, r *http.Request, key string, params map[string]string) {
	result, err := h.broker.Execute(r.Context(), key, params)
	if err != nil {
		h.brokerError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"output":    result.Output,
		"exit_code": result.ExitCode,
	})
}

// runAudited executes a mutating command and records the outcome either way.
func (h *Handler) runAudited(w http.ResponseWriter, r *http.Request, key string, params map[string]string, action, resource string) {
	result, err := h.broker.Execute(r.Context(), key, params)
	if err != nil {
		h.record(r, action, resource, err.Error(), false)
		h.brokerError(w, err)
		return
	}
	success := result.ExitCode == 0
	h.record(r, action, resource, fmt.Sprintf("exit=%d", result.ExitCode), success)
	status := http.StatusOK
	if !success {
		status = http.StatusBadGateway
	}
	httpx.JSON(w, status, map[string]any{
		"output":    result.Output,
		"exit_code": result.ExitCode,
	})
}

func (h *Handler) record(r *http.Request, action, resource, details string, success bool) {
	username := ""
	if user := shared.UserFromContext(r.Context()); user != nil {
		username = user.Username
	}
	if err := h.recorder.RecordAction(r.Context(), username, action, resource, details, r.RemoteAddr, success); err != nil {
		h.logger.Warn("audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := httpx.DecodeJSON(r, target); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return false
	}
	if err := h.validate.Struct(target); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return false
	}
	return true
}

func (h *Handler) brokerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrNotWhitelisted):
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "command not permitted")
	case errors.Is(err, shared.ErrValidation):
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
	default:
		httpx.Problem(w, http.StatusInternalServerError, "Internal Server Error", "command execution failed")
	}
}
