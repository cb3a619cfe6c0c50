package notification

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/notification-service/internal/handler"
	"github.com/jwalitptl/notification-service/internal/model"
	notificationService "github.com/jwalitptl/notification-service/internal/service/notification"
	"github.com/jwalitptl/notification-service/pkg/logger"
)

type Handler struct {
	service notificationService.Service
	logger  *logger.Logger
}

func NewHandler(service notificationService.Service, log *logger.Logger) *Handler {
	registerValidators()
	return &Handler{
		service: service,
		logger:  log.WithFields(map[string]interface{}{"component": "notification-api"}),
	}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	notifications := r.Group("/notifications")
	{
		notifications.POST("/send", h.SendNotification)
		notifications.GET("", h.ListNotifications)
		notifications.GET("/stats", h.GetStats)
		notifications.GET("/:id", h.GetNotification)
		notifications.POST("/:id/retry", h.RetryNotification)
	}
}

type sendRequest struct {
	NotificationType model.NotificationType `json:"notification_type" binding:"required,notification_type"`
	EventType        model.EventType        `json:"event_type" binding:"required,event_type"`
	RecipientName    string                 `json:"recipient_name" binding:"required,max=255"`
	RecipientEmail   string                 `json:"recipient_email" binding:"required_if=NotificationType EMAIL,omitempty,email"`
	RecipientPhone   string                 `json:"recipient_phone" binding:"required_if=NotificationType SMS,omitempty,max=15,phone"`
	Subject          string                 `json:"subject" binding:"required,max=500"`
	Message          string                 `json:"message" binding:"required"`
	OrderID          *int64                 `json:"order_id"`
	PaymentID        *int64                 `json:"payment_id"`
	ShipmentID       *int64                 `json:"shipment_id"`
	Metadata         map[string]interface{} `json:"metadata"`
}

func (r *sendRequest) toDispatch() notificationService.DispatchRequest {
	return notificationService.DispatchRequest{
		RecipientName:  r.RecipientName,
		RecipientEmail: optional(r.RecipientEmail),
		RecipientPhone: optional(r.RecipientPhone),
		Type:           r.NotificationType,
		EventType:      r.EventType,
		Subject:        r.Subject,
		Message:        r.Message,
		OrderID:        r.OrderID,
		PaymentID:      r.PaymentID,
		ShipmentID:     r.ShipmentID,
		Metadata:       model.JSONMap(r.Metadata),
	}
}

// SendNotification creates a record and attempts delivery synchronously.
func (h *Handler) SendNotification(c *gin.Context) {
	var req sendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("validation_error", validationMessage(err)))
		return
	}

	n, err := h.service.Dispatch(c.Request.Context(), req.toDispatch())
	if err != nil {
		h.logger.Error(err, "Error creating notification", "event_type", string(req.EventType))
		handler.RespondError(c, err)
		return
	}

	switch n.Status {
	case model.NotificationStatusSent:
		c.JSON(http.StatusCreated, handler.NewMessageResponse("Notification sent successfully", n))
	case model.NotificationStatusFailed:
		msg := ""
		if n.ErrorMessage != nil {
			msg = *n.ErrorMessage
		}
		c.JSON(http.StatusInternalServerError, &handler.Response{
			Status:  "error",
			Error:   "send_failed",
			Message: msg,
			Data:    n,
		})
	default:
		c.JSON(http.StatusAccepted, handler.NewMessageResponse("Notification recorded", n))
	}
}

func (h *Handler) GetNotification(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	n, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(n))
}

type listResponse struct {
	Count    int64                 `json:"count"`
	Page     int                   `json:"page"`
	PageSize int                   `json:"page_size"`
	Results  []*model.Notification `json:"results"`
}

func (h *Handler) ListNotifications(c *gin.Context) {
	var filter model.NotificationFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("validation_error", err.Error()))
		return
	}
	filter.Type = model.NotificationType(strings.ToUpper(string(filter.Type)))
	filter.Status = model.NotificationStatus(strings.ToUpper(string(filter.Status)))
	if filter.Type != "" && !filter.Type.Valid() {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("validation_error", "invalid notification type"))
		return
	}
	if filter.Status != "" && !filter.Status.Valid() {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("validation_error", "invalid status"))
		return
	}

	var page model.Pagination
	if err := c.ShouldBindQuery(&page); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("validation_error", err.Error()))
		return
	}
	page = page.Normalize()

	items, total, err := h.service.List(c.Request.Context(), filter, page)
	if err != nil {
		h.logger.Error(err, "Failed to list notifications")
		handler.RespondError(c, err)
		return
	}
	if items == nil {
		items = []*model.Notification{}
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(listResponse{
		Count:    total,
		Page:     page.Page,
		PageSize: page.PageSize,
		Results:  items,
	}))
}

func (h *Handler) RetryNotification(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	n, err := h.service.Retry(c.Request.Context(), id)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewMessageResponse("Retry completed", n))
}

func (h *Handler) GetStats(c *gin.Context) {
	stats, err := h.service.Stats(c.Request.Context())
	if err != nil {
		h.logger.Error(err, "Failed to compute notification stats")
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(stats))
}

func parseID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("validation_error", "invalid notification ID"))
		return uuid.Nil, false
	}
	return id, true
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
