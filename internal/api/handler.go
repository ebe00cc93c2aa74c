package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/jameshendricken/iot-dashboard/internal/models"
	"github.com/jameshendricken/iot-dashboard/internal/service"
)

// Handler holds the API handlers
type Handler struct {
	svc service.Service
}

// NewHandler creates a new API handler
func NewHandler(svc service.Service) *Handler {
	return &Handler{svc: svc}
}

// SetupRoutes registers all routes on the router
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	// Ingestion and auth: no identity required
	router.POST("/ingest", h.Ingest)
	router.POST("/register", h.Register)
	router.POST("/login", h.Login)

	// Device-keyed aggregation
	data := router.Group("/data")
	{
		data.GET("/:device_id", h.ListReadings)
		data.GET("/:device_id/summary", h.Summary)
		data.GET("/:device_id/histogram", h.Histogram)
	}

	// Organisation-scoped aggregation (session identity required)
	router.GET("/summary/:device_id", h.OrganisationSummary)
	router.GET("/histogram/:device_id", h.OrganisationHistogram)
	router.GET("/dashboard", h.Dashboard)

	// Directory
	router.GET("/devices", h.ListDevices)
	router.PUT("/devices/:device_id", h.UpdateDevice)
	router.GET("/users", h.ListUsers)
	router.GET("/users/:user_id", h.GetUser)
	router.PUT("/users/:user_id", h.UpdateUser)
	router.GET("/organisations", h.ListOrganisations)
}

// Auth handlers
func (h *Handler) Register(c *gin.Context) {
	var req models.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid registration request")
		return
	}

	if err := h.svc.Register(c.Request.Context(), req); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.StatusResponse{Status: "ok"})
}

func (h *Handler) Login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid login request")
		return
	}

	resp, err := h.svc.Login(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}

	// Session cookie: the email is the session token, resolved against the
	// store on every request. Max-Age 0 keeps it a browser-session cookie.
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(SessionCookieName, resp.Email, 0, "/", "", true, true)

	c.JSON(http.StatusOK, resp)
}

// Ingestion handler
func (h *Handler) Ingest(c *gin.Context) {
	var req models.IngestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid ingest payload")
		return
	}

	if err := h.svc.Ingest(c.Request.Context(), req); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.StatusResponse{Status: "ok"})
}

// Aggregation handlers

// ListReadings answers 404 when the range matches nothing; Summary answers 0
// for the same situation. The asymmetry is part of the API contract.
func (h *Handler) ListReadings(c *gin.Context) {
	rng, ok := parseTimeRange(c)
	if !ok {
		return
	}

	points, err := h.svc.ListReadings(c.Request.Context(), c.Param("device_id"), rng)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, points)
}

func (h *Handler) Summary(c *gin.Context) {
	rng, ok := parseTimeRange(c)
	if !ok {
		return
	}

	total, err := h.svc.Summary(c.Request.Context(), c.Param("device_id"), rng)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.SummaryResponse{TotalVolume: total})
}

func (h *Handler) Histogram(c *gin.Context) {
	rng, ok := parseTimeRange(c)
	if !ok {
		return
	}

	buckets, err := h.svc.Histogram(c.Request.Context(), c.Param("device_id"), rng, c.Query("interval"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, buckets)
}

func (h *Handler) OrganisationSummary(c *gin.Context) {
	rng, ok := parseTimeRange(c)
	if !ok {
		return
	}

	total, err := h.svc.OrganisationSummary(c.Request.Context(), CurrentIdentity(c), c.Param("device_id"), rng)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.SummaryResponse{TotalVolume: total})
}

func (h *Handler) OrganisationHistogram(c *gin.Context) {
	rng, ok := parseTimeRange(c)
	if !ok {
		return
	}

	buckets, err := h.svc.OrganisationHistogram(c.Request.Context(), CurrentIdentity(c), c.Param("device_id"), rng, c.Query("interval"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, buckets)
}

func (h *Handler) Dashboard(c *gin.Context) {
	totals, err := h.svc.Dashboard(c.Request.Context(), CurrentIdentity(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, totals)
}

// Directory handlers
func (h *Handler) ListDevices(c *gin.Context) {
	devices, err := h.svc.ListDevices(c.Request.Context(), CurrentIdentity(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, devices)
}

func (h *Handler) UpdateDevice(c *gin.Context) {
	var update models.DeviceUpdate
	if err := c.ShouldBindJSON(&update); err != nil {
		badRequest(c, "Invalid device update")
		return
	}

	device, err := h.svc.UpdateDevice(c.Request.Context(), CurrentIdentity(c), c.Param("device_id"), update)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, device)
}

func (h *Handler) ListUsers(c *gin.Context) {
	users, err := h.svc.ListUsers(c.Request.Context(), CurrentIdentity(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, users)
}

func (h *Handler) GetUser(c *gin.Context) {
	userID, ok := parseUserID(c)
	if !ok {
		return
	}

	user, err := h.svc.GetUser(c.Request.Context(), CurrentIdentity(c), userID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, user)
}

func (h *Handler) UpdateUser(c *gin.Context) {
	userID, ok := parseUserID(c)
	if !ok {
		return
	}

	var update models.UserUpdate
	if err := c.ShouldBindJSON(&update); err != nil {
		badRequest(c, "Invalid user update")
		return
	}

	user, err := h.svc.UpdateUser(c.Request.Context(), CurrentIdentity(c), userID, update)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, user)
}

func (h *Handler) ListOrganisations(c *gin.Context) {
	organisations, err := h.svc.ListOrganisations(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, organisations)
}

// Helpers

// parseTimeRange reads the optional start/end query parameters (RFC 3339).
// On a malformed bound it writes a 400 and returns ok=false.
func parseTimeRange(c *gin.Context) (models.TimeRange, bool) {
	var rng models.TimeRange

	if raw := c.Query("start"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			badRequest(c, "Invalid start timestamp")
			return rng, false
		}
		rng.Start = &t
	}

	if raw := c.Query("end"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			badRequest(c, "Invalid end timestamp")
			return rng, false
		}
		rng.End = &t
	}

	return rng, true
}

func parseUserID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("user_id"), 10, 64)
	if err != nil {
		badRequest(c, "Invalid user id")
		return 0, false
	}
	return id, true
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, models.ErrorResponse{
		Status:  "error",
		Code:    "BAD_REQUEST",
		Message: message,
	})
}

// respondError translates service errors to response codes. Unrecognized
// errors become an opaque 500; the detail goes to the log, not the caller.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, models.ErrorResponse{
			Status:  "error",
			Code:    "NOT_FOUND",
			Message: "Not found",
		})
	case errors.Is(err, service.ErrUnauthenticated):
		c.JSON(http.StatusUnauthorized, models.ErrorResponse{
			Status:  "error",
			Code:    "UNAUTHORIZED",
			Message: "Authentication required",
		})
	case errors.Is(err, service.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, models.ErrorResponse{
			Status:  "error",
			Code:    "INVALID_CREDENTIALS",
			Message: "Invalid email or password",
		})
	case errors.Is(err, service.ErrEmailTaken):
		c.JSON(http.StatusConflict, models.ErrorResponse{
			Status:  "error",
			Code:    "EMAIL_TAKEN",
			Message: "Email already registered",
		})
	case errors.Is(err, service.ErrInvalidReading):
		badRequest(c, "Invalid reading")
	default:
		log.Error().Err(err).Str("path", c.Request.URL.Path).Msg("internal error")
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Status:  "error",
			Code:    "INTERNAL_ERROR",
			Message: "Internal server error",
		})
	}
}
