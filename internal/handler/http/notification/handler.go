package notification

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"chatgrid-backend/internal/service/notification"
	"chatgrid-backend/pkg/response"
)

// Handler handles notification HTTP requests
type Handler struct {
	notificationService *notification.Service
}

// NewHandler creates a new notification handler
func NewHandler(notificationService *notification.Service) *Handler {
	return &Handler{
		notificationService: notificationService,
	}
}

func currentUser(c *gin.Context) (uuid.UUID, bool) {
	val, exists := c.Get("user_id")
	if !exists {
		response.Unauthorized(c, "Not authenticated")
		return uuid.Nil, false
	}

	userID, ok := val.(uuid.UUID)
	if !ok {
		response.InternalError(c, "Invalid user ID")
		return uuid.Nil, false
	}

	return userID, true
}

// List retrieves a page of the user's notifications, newest first
// GET /v1/notifications?lastId=&limit=
func (h *Handler) List(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var lastID *uuid.UUID
	if raw := c.Query("lastId"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			response.ValidationError(c, "Invalid lastId")
			return
		}
		lastID = &id
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))

	notifications, err := h.notificationService.List(c.Request.Context(), userID, lastID, limit)
	if err != nil {
		response.AppError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"notifications": notifications,
		"count":         len(notifications),
	})
}

// Poll returns the user's unread notifications grouped for catch-up
// GET /v1/notifications/poll
func (h *Handler) Poll(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	grouped, err := h.notificationService.Poll(c.Request.Context(), userID)
	if err != nil {
		response.AppError(c, err)
		return
	}

	response.Success(c, http.StatusOK, grouped)
}

// UnreadCount returns unread badge counts per group
// GET /v1/notifications/unread/count
func (h *Handler) UnreadCount(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	counts, err := h.notificationService.UnreadCounts(c.Request.Context(), userID)
	if err != nil {
		response.AppError(c, err)
		return
	}

	response.Success(c, http.StatusOK, counts)
}

// IDsRequest carries a batch of notification ids
type IDsRequest struct {
	IDs []string `json:"ids" binding:"required,min=1"`
}

func (r *IDsRequest) parse(c *gin.Context) ([]uuid.UUID, bool) {
	ids := make([]uuid.UUID, len(r.IDs))
	for i, raw := range r.IDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			response.ValidationError(c, "Invalid notification ID: "+raw)
			return nil, false
		}
		ids[i] = id
	}
	return ids, true
}

// MarkAsRead marks the given notifications read. Ids owned by other users
// are silently left untouched.
// POST /v1/notifications/read
func (h *Handler) MarkAsRead(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var req IDsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	ids, ok := req.parse(c)
	if !ok {
		return
	}

	updated, err := h.notificationService.MarkAsRead(c.Request.Context(), userID, ids)
	if err != nil {
		response.AppError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"updated": updated})
}

// Delete removes the given notifications. Ids owned by other users are
// silently left untouched.
// DELETE /v1/notifications
func (h *Handler) Delete(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var req IDsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	ids, ok := req.parse(c)
	if !ok {
		return
	}

	deleted, err := h.notificationService.Delete(c.Request.Context(), userID, ids)
	if err != nil {
		response.AppError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"deleted": deleted})
}
