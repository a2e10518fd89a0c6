package call

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"chatgrid-backend/internal/domain"
	"chatgrid-backend/internal/service/call"
	"chatgrid-backend/pkg/response"
)

// Handler handles call HTTP requests
type Handler struct {
	callService *call.Service
}

// NewHandler creates a new call handler
func NewHandler(callService *call.Service) *Handler {
	return &Handler{
		callService: callService,
	}
}

// currentUser pulls the authenticated user id set by the auth middleware
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

// callParam parses the :id path parameter
func callParam(c *gin.Context) (uuid.UUID, bool) {
	callID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.ValidationError(c, "Invalid call ID")
		return uuid.Nil, false
	}
	return callID, true
}

// authorize loads a call and checks the actor's role before any mutation
// runs. receiverOnly restricts the operation to the callee; otherwise either
// participant passes. Outsiders get 403 regardless of call state.
func (h *Handler) authorize(c *gin.Context, callID, userID uuid.UUID, receiverOnly bool) (*domain.Call, bool) {
	existing, err := h.callService.GetCall(c.Request.Context(), callID)
	if err != nil {
		response.AppError(c, err)
		return nil, false
	}

	if !existing.HasParticipant(userID) {
		response.Forbidden(c, "Not a participant in this call")
		return nil, false
	}
	if receiverOnly && existing.ReceiverID != userID {
		response.Forbidden(c, "Only the receiver may perform this action")
		return nil, false
	}

	return existing, true
}

// InitiateCallRequest represents a call initiation request
type InitiateCallRequest struct {
	ReceiverID string `json:"receiverId" binding:"required,uuid"`
	Type       string `json:"type" binding:"required,oneof=audio video"`
	SDPOffer   string `json:"sdpOffer"`
	ChannelID  string `json:"channelId"`
	ServerID   string `json:"serverId"`
}

// InitiateCall starts a new call
// POST /v1/calls
func (h *Handler) InitiateCall(c *gin.Context) {
	var req InitiateCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	callerID, ok := currentUser(c)
	if !ok {
		return
	}

	receiverID, err := uuid.Parse(req.ReceiverID)
	if err != nil {
		response.ValidationError(c, "Invalid receiver ID")
		return
	}

	created, err := h.callService.Initiate(c.Request.Context(), &call.InitiateInput{
		CallerID:   callerID,
		ReceiverID: receiverID,
		Type:       domain.CallType(req.Type),
		SDPOffer:   req.SDPOffer,
		ChannelID:  req.ChannelID,
		ServerID:   req.ServerID,
	})
	if err != nil {
		response.AppError(c, err)
		return
	}

	response.Success(c, http.StatusCreated, created)
}

// RingCall acknowledges the call is ringing on the receiver's device
// POST /v1/calls/:id/ring
func (h *Handler) RingCall(c *gin.Context) {
	callID, ok := callParam(c)
	if !ok {
		return
	}
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	if _, ok := h.authorize(c, callID, userID, true); !ok {
		return
	}

	updated, err := h.callService.Ring(c.Request.Context(), callID)
	if err != nil {
		response.AppError(c, err)
		return
	}

	response.Success(c, http.StatusOK, updated)
}

// AcceptCallRequest carries the receiver's SDP answer
type AcceptCallRequest struct {
	SDPAnswer string `json:"sdpAnswer"`
}

// AcceptCall connects a call
// POST /v1/calls/:id/accept
func (h *Handler) AcceptCall(c *gin.Context) {
	callID, ok := callParam(c)
	if !ok {
		return
	}
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	if _, ok := h.authorize(c, callID, userID, true); !ok {
		return
	}

	// the answer body is optional; an empty body means no SDP yet
	var req AcceptCallRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		response.ValidationError(c, err.Error())
		return
	}

	updated, err := h.callService.Accept(c.Request.Context(), callID, &call.AcceptInput{
		SDPAnswer: req.SDPAnswer,
	})
	if err != nil {
		response.AppError(c, err)
		return
	}

	response.Success(c, http.StatusOK, updated)
}

// RejectCall declines a call
// POST /v1/calls/:id/reject
func (h *Handler) RejectCall(c *gin.Context) {
	callID, ok := callParam(c)
	if !ok {
		return
	}
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	if _, ok := h.authorize(c, callID, userID, true); !ok {
		return
	}

	updated, err := h.callService.Reject(c.Request.Context(), callID)
	if err != nil {
		response.AppError(c, err)
		return
	}

	response.Success(c, http.StatusOK, updated)
}

// CancelCall withdraws an unanswered call, marking it missed
// POST /v1/calls/:id/cancel
func (h *Handler) CancelCall(c *gin.Context) {
	callID, ok := callParam(c)
	if !ok {
		return
	}
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	existing, ok := h.authorize(c, callID, userID, false)
	if !ok {
		return
	}
	if existing.CallerID != userID {
		response.Forbidden(c, "Only the caller may cancel a call")
		return
	}

	updated, err := h.callService.Cancel(c.Request.Context(), callID)
	if err != nil {
		response.AppError(c, err)
		return
	}

	response.Success(c, http.StatusOK, updated)
}

// EndCall hangs up a connected call
// POST /v1/calls/:id/end
func (h *Handler) EndCall(c *gin.Context) {
	callID, ok := callParam(c)
	if !ok {
		return
	}
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	if _, ok := h.authorize(c, callID, userID, false); !ok {
		return
	}

	updated, err := h.callService.End(c.Request.Context(), callID)
	if err != nil {
		response.AppError(c, err)
		return
	}

	response.Success(c, http.StatusOK, updated)
}

// ICECandidatesRequest carries trickle ICE candidates
type ICECandidatesRequest struct {
	Candidates []string `json:"candidates" binding:"required,min=1"`
}

// UpdateICECandidates appends ICE candidates to the call metadata
// POST /v1/calls/:id/ice-candidates
func (h *Handler) UpdateICECandidates(c *gin.Context) {
	callID, ok := callParam(c)
	if !ok {
		return
	}
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	if _, ok := h.authorize(c, callID, userID, false); !ok {
		return
	}

	var req ICECandidatesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	updated, err := h.callService.UpdateICECandidates(c.Request.Context(), callID, req.Candidates)
	if err != nil {
		response.AppError(c, err)
		return
	}

	response.Success(c, http.StatusOK, updated)
}

// GetCall retrieves a call; participants only
// GET /v1/calls/:id
func (h *Handler) GetCall(c *gin.Context) {
	callID, ok := callParam(c)
	if !ok {
		return
	}
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	existing, ok := h.authorize(c, callID, userID, false)
	if !ok {
		return
	}

	response.Success(c, http.StatusOK, existing)
}

// GetHistory retrieves the user's call history
// GET /v1/calls/history
func (h *Handler) GetHistory(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	calls, err := h.callService.History(c.Request.Context(), userID, limit, offset)
	if err != nil {
		response.AppError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"calls": calls,
		"count": len(calls),
	})
}

// GetActiveCall retrieves the user's current non-terminal call, if any
// GET /v1/calls/active
func (h *Handler) GetActiveCall(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	active, err := h.callService.ActiveCall(c.Request.Context(), userID)
	if err != nil {
		response.AppError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"call": active})
}
