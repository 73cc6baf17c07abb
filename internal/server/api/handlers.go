package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"

	"merkaz/internal/server/database"
	"merkaz/internal/server/metrics"
	"merkaz/internal/server/presence"
	"merkaz/internal/server/service"

	"github.com/labstack/echo/v4"
)

// HealthChecker reports whether a backing dependency is reachable.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Handler contains the HTTP handlers for the portal API.
type Handler struct {
	uploads   *service.UploadService
	review    *service.ReviewService
	presence  presence.Store
	directory database.Directory
	metrics   *metrics.Metrics
	db        HealthChecker
}

// NewHandler creates a new handler. db may be nil when the user directory
// is held in memory.
func NewHandler(
	uploads *service.UploadService,
	review *service.ReviewService,
	tracker presence.Store,
	directory database.Directory,
	m *metrics.Metrics,
	db HealthChecker,
) *Handler {
	return &Handler{
		uploads:   uploads,
		review:    review,
		presence:  tracker,
		directory: directory,
		metrics:   m,
		db:        db,
	}
}

type moveRequest struct {
	TargetPath string `json:"target_path" form:"target_path" validate:"max=1024"`
}

type declineRequest struct {
	Email  string `json:"email" form:"email" validate:"omitempty,max=254,printascii"`
	UserID string `json:"user_id" form:"user_id" validate:"omitempty,max=64"`
}

type userView struct {
	*database.User
	OnlineStatus bool `json:"online_status"`
}

// HandleUpload handles POST /upload.
// Accepts a multipart form with one or more "file" parts and an optional
// "subpath" destination hint.
func (h *Handler) HandleUpload(c echo.Context) error {
	sess := sessionFrom(c)

	form, err := c.MultipartForm()
	if err != nil {
		var he *echo.HTTPError
		if errors.As(err, &he) {
			return he
		}
		if errors.As(err, new(*http.MaxBytesError)) {
			return echo.ErrStatusRequestEntityTooLarge
		}
		return c.JSON(http.StatusBadRequest, echo.Map{
			"error": "multipart form with field 'file' is required",
		})
	}
	headers := form.File["file"]

	files := make([]service.IncomingFile, 0, len(headers))
	for _, fh := range headers {
		src, err := fh.Open()
		if err != nil {
			slog.Error("failed to open multipart part", "filename", fh.Filename, "error", err)
			return c.JSON(http.StatusInternalServerError, echo.Map{
				"error": "failed to read uploaded file",
			})
		}
		defer src.Close()
		files = append(files, service.IncomingFile{Name: partFilename(fh), Content: src})
	}

	result, err := h.uploads.Submit(
		c.Request().Context(),
		service.Submitter{Identity: sess.Identity, UserID: sess.UserID},
		c.FormValue("subpath"),
		files,
	)
	if err != nil {
		return mapServiceError(c, err)
	}

	for range result.Succeeded {
		h.metrics.UploadAccepted()
	}
	for _, r := range result.Rejected {
		h.metrics.UploadRejected(string(r.Kind))
	}

	status := http.StatusOK
	if len(result.Succeeded) == 0 {
		status = http.StatusBadRequest
	}
	return c.JSON(status, result)
}

// partFilename returns the filename exactly as the client sent it. The
// multipart reader keeps only the base name, which would flatten folder
// uploads.
func partFilename(fh *multipart.FileHeader) string {
	_, params, err := mime.ParseMediaType(fh.Header.Get("Content-Disposition"))
	if err == nil && params["filename"] != "" {
		return params["filename"]
	}
	return fh.Filename
}

// HandleMyUploads handles GET /my_uploads.
func (h *Handler) HandleMyUploads(c echo.Context) error {
	sess := sessionFrom(c)

	uploads, err := h.review.MyUploads(c.Request().Context(), service.Submitter{
		Identity: sess.Identity,
		UserID:   sess.UserID,
	})
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"uploads": uploads})
}

// HandlePendingUploads handles GET /admin/uploads.
func (h *Handler) HandlePendingUploads(c echo.Context) error {
	items, err := h.review.PendingReview(c.Request().Context())
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"uploads": items})
}

// HandleMoveUpload handles POST /admin/move_upload/*.
func (h *Handler) HandleMoveUpload(c echo.Context) error {
	item, err := itemParam(c)
	if err != nil {
		return mapServiceError(c, err)
	}

	var req moveRequest
	if err := bindAndValidate(c, &req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}

	target, err := h.review.Move(c.Request().Context(), item, req.TargetPath)
	h.metrics.ReviewAction("move", outcome(err))
	if err != nil {
		return mapServiceError(c, err)
	}

	return c.JSON(http.StatusOK, echo.Map{
		"message": fmt.Sprintf("Successfully moved '%s' to '%s'", item, target),
		"item":    item,
		"target":  target,
	})
}

// HandleDeclineUpload handles POST /admin/decline_upload/*.
// The body optionally names the submitter being declined.
func (h *Handler) HandleDeclineUpload(c echo.Context) error {
	item, err := itemParam(c)
	if err != nil {
		return mapServiceError(c, err)
	}

	var req declineRequest
	if err := bindAndValidate(c, &req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}

	err = h.review.Decline(c.Request().Context(), item, service.Submitter{
		Identity: req.Email,
		UserID:   req.UserID,
	})
	h.metrics.ReviewAction("decline", outcome(err))
	if err != nil {
		return mapServiceError(c, err)
	}

	return c.JSON(http.StatusOK, echo.Map{
		"message": fmt.Sprintf("Declined and deleted '%s'", item),
		"item":    item,
	})
}

// HandleHeartbeat handles POST /heartbeat.
func (h *Handler) HandleHeartbeat(c echo.Context) error {
	sess := sessionFrom(c)
	if err := h.presence.MarkOnline(c.Request().Context(), sess.Identity); err != nil {
		return mapServiceError(c, err)
	}
	h.metrics.Heartbeat()
	return c.JSON(http.StatusOK, echo.Map{"status": "online"})
}

// HandleLogout handles POST /logout. Tokens are stateless, so logging out
// only clears presence.
func (h *Handler) HandleLogout(c echo.Context) error {
	sess := sessionFrom(c)
	if err := h.presence.MarkOffline(c.Request().Context(), sess.Identity); err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"status": "offline"})
}

// HandleUsers handles GET /admin/users.
// Lists directory users with their online status. Viewing the list counts
// as activity for the calling admin.
func (h *Handler) HandleUsers(c echo.Context) error {
	ctx := c.Request().Context()
	sess := sessionFrom(c)

	if err := h.presence.MarkOnline(ctx, sess.Identity); err != nil {
		slog.Warn("failed to mark admin online", "identity", sess.Identity, "error", err)
	}

	users, err := h.directory.List(ctx)
	if err != nil {
		return mapServiceError(c, err)
	}
	active, err := h.presence.Active(ctx)
	if err != nil {
		return mapServiceError(c, err)
	}

	views := make([]userView, 0, len(users))
	for _, u := range users {
		views = append(views, userView{User: u, OnlineStatus: presence.IsOnline(active, u.Identity)})
	}
	return c.JSON(http.StatusOK, echo.Map{"users": views})
}

// HandlePresence handles GET /admin/presence.
func (h *Handler) HandlePresence(c echo.Context) error {
	active, err := h.presence.Active(c.Request().Context())
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"active": active})
}

// HandleHealth handles GET /health.
// Returns the health status of the server, including database connectivity.
func (h *Handler) HandleHealth(c echo.Context) error {
	status := "healthy"
	dbStatus := "connected"

	if h.db == nil {
		dbStatus = "in-memory"
	} else if err := h.db.HealthCheck(c.Request().Context()); err != nil {
		status = "degraded"
		dbStatus = fmt.Sprintf("error: %v", err)
	}

	return c.JSON(http.StatusOK, echo.Map{
		"status":   status,
		"database": dbStatus,
	})
}

// itemParam extracts the top-level item name from the wildcard segment.
func itemParam(c echo.Context) (string, error) {
	item, err := url.PathUnescape(c.Param("*"))
	if err != nil {
		return "", fmt.Errorf("%w: %v", service.ErrInvalidItem, err)
	}
	return item, nil
}

func bindAndValidate(c echo.Context, req any) error {
	if err := c.Bind(req); err != nil {
		var he *echo.HTTPError
		if errors.As(err, &he) {
			return fmt.Errorf("invalid request body: %v", he.Message)
		}
		return fmt.Errorf("invalid request body: %w", err)
	}
	return c.Validate(req)
}

// outcome labels a review action for metrics.
func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, service.ErrNotFound):
		return "not_found"
	case errors.Is(err, service.ErrInvalidItem), errors.Is(err, service.ErrInvalidTarget):
		return "invalid"
	default:
		return "error"
	}
}

// mapServiceError translates service-layer errors into appropriate HTTP responses.
func mapServiceError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, service.ErrNoFiles):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "no files selected"})
	case errors.Is(err, service.ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": err.Error()})
	case errors.Is(err, service.ErrInvalidItem):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	case errors.Is(err, service.ErrInvalidTarget):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid target path"})
	case errors.Is(err, service.ErrUnauthenticated):
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "login required"})
	case errors.Is(err, service.ErrForbidden):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "access denied"})
	default:
		slog.Error("request failed",
			"path", c.Path(),
			"request_id", c.Response().Header().Get(echo.HeaderXRequestID),
			"error", err,
		)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal server error"})
	}
}
