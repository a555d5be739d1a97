package ingress

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"storehook/internal/constants"
	"storehook/internal/logger"
	apperrors "storehook/pkg/errors"
	"storehook/pkg/metrics"
)

const (
	statusReceived  = "received"
	statusDuplicate = "duplicate"
)

type ReceivedResponse struct {
	Status         string `json:"status" example:"received"`
	EventType      string `json:"event_type" example:"renewal"`
	SubscriptionID string `json:"subscription_id" example:"1000000123456789"`
	EventStatus    string `json:"event_status" example:"success"`
}

type DuplicateResponse struct {
	Status string `json:"status" example:"duplicate"`
}

// ErrorResponse documents the body written by errors.ToErrorResponse.
type ErrorResponse struct {
	Error     string                 `json:"error"`
	ErrorCode string                 `json:"error_code"`
	Reason    string                 `json:"reason"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

type Handler struct {
	pipeline     *Pipeline
	maxBodyBytes int64
	logger       logger.Logger
}

func NewHandler(pipeline *Pipeline, maxBodyBytes int64, log logger.Logger) *Handler {
	if log == nil {
		log = logger.NopLogger()
	}
	if maxBodyBytes <= 0 {
		maxBodyBytes = constants.DefaultMaxBodyBytes
	}
	return &Handler{
		pipeline:     pipeline,
		maxBodyBytes: maxBodyBytes,
		logger:       log,
	}
}

func (h *Handler) RegisterRoutes(router gin.IRouter) {
	webhooks := router.Group("/webhooks")
	{
		webhooks.POST("/subscriptions", h.Receive)
		webhooks.POST("/subscriptions/:platform", h.ReceiveForPlatform)
	}
}

// Receive godoc
// @Summary      Receive a subscription webhook
// @Description  Detects the platform by trying each registered handler in order
// @Tags         webhooks
// @Accept       json
// @Produce      json
// @Param        payload  body      object  true  "Raw platform notification"
// @Success      200      {object}  ReceivedResponse
// @Failure      400      {object}  ErrorResponse
// @Failure      401      {object}  ErrorResponse
// @Failure      413      {object}  ErrorResponse
// @Failure      503      {object}  ErrorResponse
// @Router       /webhooks/subscriptions [post]
func (h *Handler) Receive(c *gin.Context) {
	h.handle(c, "")
}

// ReceiveForPlatform godoc
// @Summary      Receive a webhook for a known platform
// @Description  Skips detection; platform is appstore (apple) or googleplay (google)
// @Tags         webhooks
// @Accept       json
// @Produce      json
// @Param        platform  path      string  true  "Platform name"
// @Param        payload   body      object  true  "Raw platform notification"
// @Success      200       {object}  ReceivedResponse
// @Failure      400       {object}  ErrorResponse
// @Failure      401       {object}  ErrorResponse
// @Failure      404       {object}  ErrorResponse
// @Failure      413       {object}  ErrorResponse
// @Failure      503       {object}  ErrorResponse
// @Router       /webhooks/subscriptions/{platform} [post]
func (h *Handler) ReceiveForPlatform(c *gin.Context) {
	h.handle(c, c.Param("platform"))
}

func (h *Handler) handle(c *gin.Context, platform string) {
	ctx := c.Request.Context()

	raw, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			err = apperrors.ErrPayloadTooLarge.WithDetail("limit_bytes", tooLarge.Limit)
		} else {
			err = apperrors.ErrValidation.WithCause(err).WithDetail("message", "failed to read request body")
		}
		metrics.IncRejection(apperrors.ReasonCode(err))
		h.HandleError(c, err)
		return
	}

	out, err := h.pipeline.Process(ctx, platform, raw)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	if out.Duplicate {
		c.JSON(http.StatusOK, DuplicateResponse{Status: statusDuplicate})
		return
	}

	c.JSON(http.StatusOK, ReceivedResponse{
		Status:         statusReceived,
		EventType:      out.Event.EventType,
		SubscriptionID: out.Event.SubscriptionID,
		EventStatus:    string(out.Event.Status),
	})
}

// HandleError answers with the error's status. A failed key fetch answers
// 503 wherever it sits in the chain so the platform redelivers.
func (h *Handler) HandleError(c *gin.Context, err error) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.ErrorwCtx(c.Request.Context(), "Request error", "error", err, "path", c.Request.URL.Path)
	} else {
		h.logger.WarnwCtx(c.Request.Context(), "Delivery rejected",
			"reason", apperrors.ReasonCode(err),
			"error", err,
			"path", c.Request.URL.Path,
		)
	}

	c.JSON(status, apperrors.ToErrorResponse(err))
}

func StatusFor(err error) int {
	if errors.Is(err, apperrors.ErrKeyFetchFailed) {
		return http.StatusServiceUnavailable
	}
	return apperrors.ToHTTPStatus(err)
}
