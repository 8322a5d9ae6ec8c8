package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"booking-service/internal/idempotency"
	"booking-service/internal/service"
	"booking-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler contains HTTP handlers
type Handler struct {
	bookingService   *service.BookingService
	orchestrator     *service.ConfirmationOrchestrator
	cancelService    *service.CancelService
	amendmentService *service.AmendmentService
	refundService    *service.RefundCaseService
}

// NewHandler creates a new HTTP handler
func NewHandler(
	bookingService *service.BookingService,
	orchestrator *service.ConfirmationOrchestrator,
	cancelService *service.CancelService,
	amendmentService *service.AmendmentService,
	refundService *service.RefundCaseService,
) *Handler {
	return &Handler{
		bookingService:   bookingService,
		orchestrator:     orchestrator,
		cancelService:    cancelService,
		amendmentService: amendmentService,
		refundService:    refundService,
	}
}

// RegisterValidators installs custom binding validators. Call once before
// serving.
func RegisterValidators() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		_ = v.RegisterValidation("currency", func(fl validator.FieldLevel) bool {
			code := fl.Field().String()
			if len(code) != 3 {
				return false
			}
			return code == strings.ToUpper(code)
		})
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.POST("/bookings", h.createBooking)
		v1.GET("/bookings/:id", h.getBooking)
		v1.POST("/bookings/:id/confirm", h.confirmBooking)
		v1.POST("/bookings/:id/cancel", h.cancelBooking)
		v1.POST("/bookings/:id/amend/quote", h.proposeAmendment)
		v1.POST("/bookings/:id/amend/confirm", h.confirmAmendment)
		v1.POST("/refund-cases", h.openRefundCase)
		v1.POST("/refund-cases/:id/transition", h.transitionRefundCase)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck handles readiness check requests
func (h *Handler) readinessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// organizationID extracts the mandatory organization context
func organizationID(c *gin.Context) (string, bool) {
	org := c.GetHeader("X-Organization-ID")
	if org == "" {
		writeErrorEnvelope(c, http.StatusForbidden, service.CodeOrgContextRequired,
			"X-Organization-ID header is required", nil)
		return "", false
	}
	return org, true
}

func actorFrom(c *gin.Context) service.Actor {
	actor := service.Actor{
		Type:  c.GetHeader("X-Actor-Type"),
		Email: c.GetHeader("X-Actor-Email"),
	}
	if actor.Type == "" {
		actor.Type = "user"
	}
	if roles := c.GetHeader("X-Actor-Roles"); roles != "" {
		actor.Roles = strings.Split(roles, ",")
	}
	return actor
}

// createBooking handles priced booking draft creation
func (h *Handler) createBooking(c *gin.Context) {
	org, ok := organizationID(c)
	if !ok {
		return
	}

	var req service.CreateBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErrorEnvelope(c, http.StatusBadRequest, "INVALID_REQUEST",
			"invalid request body", map[string]interface{}{"error": err.Error()})
		return
	}
	req.OrganizationID = org
	req.AgencyID = c.GetHeader("X-Agency-ID")

	status, body, err := h.bookingService.CreateBooking(c.Request.Context(), &req,
		c.GetHeader("Idempotency-Key"))
	if err != nil {
		writeError(c, err)
		return
	}

	c.Data(status, "application/json", body)
}

// getBooking handles booking detail with lifecycle timeline
func (h *Handler) getBooking(c *gin.Context) {
	org, ok := organizationID(c)
	if !ok {
		return
	}

	booking, timeline, err := h.bookingService.GetBooking(c.Request.Context(), org, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"booking":  booking,
		"timeline": timeline,
	})
}

// confirmBooking runs the confirmation flow
func (h *Handler) confirmBooking(c *gin.Context) {
	org, ok := organizationID(c)
	if !ok {
		return
	}

	outcome, err := h.orchestrator.Confirm(c.Request.Context(), service.ConfirmRequest{
		OrganizationID: org,
		BookingID:      c.Param("id"),
		TenantID:       c.GetHeader("X-Tenant-ID"),
		CallerID:       c.GetHeader("X-Caller-ID"),
		RequestID:      c.GetHeader("X-Request-ID"),
		Actor:          actorFrom(c),
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(outcome.HTTPStatus, outcome)
}

// cancelBooking cancels a confirmed booking
func (h *Handler) cancelBooking(c *gin.Context) {
	org, ok := organizationID(c)
	if !ok {
		return
	}

	outcome, err := h.cancelService.Cancel(c.Request.Context(), service.CancelRequest{
		OrganizationID: org,
		BookingID:      c.Param("id"),
		AgencyID:       c.GetHeader("X-Agency-ID"),
		IdempotencyKey: c.GetHeader("Idempotency-Key"),
		Actor:          actorFrom(c),
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, outcome)
}

type proposeAmendmentRequest struct {
	RequestID   string    `json:"request_id" binding:"required"`
	NewCheckIn  time.Time `json:"new_check_in" binding:"required"`
	NewCheckOut time.Time `json:"new_check_out" binding:"required,gtfield=NewCheckIn"`
}

// proposeAmendment quotes a date change without mutating the booking
func (h *Handler) proposeAmendment(c *gin.Context) {
	org, ok := organizationID(c)
	if !ok {
		return
	}

	var req proposeAmendmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErrorEnvelope(c, http.StatusBadRequest, "INVALID_REQUEST",
			"invalid request body", map[string]interface{}{"error": err.Error()})
		return
	}

	quote, err := h.amendmentService.ProposeQuote(c.Request.Context(), service.ProposeQuoteRequest{
		OrganizationID: org,
		BookingID:      c.Param("id"),
		RequestID:      req.RequestID,
		NewCheckIn:     req.NewCheckIn,
		NewCheckOut:    req.NewCheckOut,
		Actor:          actorFrom(c),
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, quote)
}

type confirmAmendmentRequest struct {
	AmendID string `json:"amend_id" binding:"required"`
}

// confirmAmendment applies a stored amendment quote
func (h *Handler) confirmAmendment(c *gin.Context) {
	org, ok := organizationID(c)
	if !ok {
		return
	}

	var req confirmAmendmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErrorEnvelope(c, http.StatusBadRequest, "INVALID_REQUEST",
			"invalid request body", map[string]interface{}{"error": err.Error()})
		return
	}

	outcome, err := h.amendmentService.ConfirmAmendment(c.Request.Context(), org, req.AmendID, actorFrom(c))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, outcome)
}

type openRefundCaseRequest struct {
	BookingID string `json:"booking_id" binding:"required"`
	Amount    int64  `json:"amount" binding:"required,gt=0"`
	Currency  string `json:"currency" binding:"required,currency"`
}

// openRefundCase opens a refund case for a booking
func (h *Handler) openRefundCase(c *gin.Context) {
	org, ok := organizationID(c)
	if !ok {
		return
	}

	var req openRefundCaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErrorEnvelope(c, http.StatusBadRequest, "INVALID_REQUEST",
			"invalid request body", map[string]interface{}{"error": err.Error()})
		return
	}

	rc, err := h.refundService.Open(c.Request.Context(), org, req.BookingID,
		req.Amount, req.Currency, actorFrom(c))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, rc)
}

type transitionRefundCaseRequest struct {
	ToState string `json:"to_state" binding:"required"`
}

// transitionRefundCase moves a refund case through its state machine
func (h *Handler) transitionRefundCase(c *gin.Context) {
	org, ok := organizationID(c)
	if !ok {
		return
	}

	var req transitionRefundCaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErrorEnvelope(c, http.StatusBadRequest, "INVALID_REQUEST",
			"invalid request body", map[string]interface{}{"error": err.Error()})
		return
	}

	rc, err := h.refundService.Transition(c.Request.Context(), org, c.Param("id"),
		req.ToState, actorFrom(c))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, rc)
}

// writeError translates service and idempotency errors into the error
// envelope. Unrecognized errors surface as 500 internal_error without the
// underlying message.
func writeError(c *gin.Context, err error) {
	var svcErr *service.Error
	if errors.As(err, &svcErr) {
		writeErrorEnvelope(c, svcErr.Status, svcErr.Code, svcErr.Message, svcErr.Details)
		return
	}

	var keyConflict *idempotency.ErrKeyConflict
	if errors.As(err, &keyConflict) {
		writeErrorEnvelope(c, http.StatusConflict, service.CodeIdempotencyKeyConflict,
			"idempotency key reused with a different payload", nil)
		return
	}

	var inProgress *idempotency.ErrInProgress
	if errors.As(err, &inProgress) {
		writeErrorEnvelope(c, http.StatusConflict, "REQUEST_IN_PROGRESS",
			"a request with this idempotency key is still in progress", nil)
		return
	}

	util.GetLogger().Error("Unhandled request error: " + err.Error())
	writeErrorEnvelope(c, http.StatusInternalServerError, "internal_error",
		"internal server error", nil)
}

func writeErrorEnvelope(c *gin.Context, status int, code, message string, details map[string]interface{}) {
	body := gin.H{
		"code":    code,
		"message": message,
	}
	if len(details) > 0 {
		body["details"] = details
	}
	c.JSON(status, gin.H{"error": body})
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
