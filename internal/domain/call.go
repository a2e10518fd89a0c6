package domain

import (
	"time"

	"github.com/google/uuid"
)

// CallStatus represents the lifecycle state of a call
type CallStatus string

const (
	CallStatusInitiated CallStatus = "initiated"
	CallStatusRinging   CallStatus = "ringing"
	CallStatusConnected CallStatus = "connected"
	CallStatusEnded     CallStatus = "ended"
	CallStatusRejected  CallStatus = "rejected"
	CallStatusMissed    CallStatus = "missed"
)

// CallType represents the media type of a call
type CallType string

const (
	CallTypeAudio CallType = "audio"
	CallTypeVideo CallType = "video"
)

// callTransitions lists the allowed outgoing edges per status.
// ended, rejected and missed are terminal: no outgoing edges.
var callTransitions = map[CallStatus][]CallStatus{
	CallStatusInitiated: {CallStatusRinging, CallStatusConnected, CallStatusRejected, CallStatusMissed},
	CallStatusRinging:   {CallStatusConnected, CallStatusRejected, CallStatusMissed},
	CallStatusConnected: {CallStatusEnded},
}

// callStatusOrder fixes the iteration order of the status set
var callStatusOrder = []CallStatus{
	CallStatusInitiated, CallStatusRinging, CallStatusConnected,
	CallStatusEnded, CallStatusRejected, CallStatusMissed,
}

// CanTransition reports whether moving from one status to another is a valid edge
func CanTransition(from, to CallStatus) bool {
	for _, next := range callTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// TransitionSources returns every status that may transition into the given
// one. The result is the compare-and-set guard for a lifecycle update.
func TransitionSources(to CallStatus) []CallStatus {
	var sources []CallStatus
	for _, from := range callStatusOrder {
		if CanTransition(from, to) {
			sources = append(sources, from)
		}
	}
	return sources
}

// IsTerminal reports whether the status has no outgoing transitions
func (s CallStatus) IsTerminal() bool {
	return len(callTransitions[s]) == 0
}

// IsValidCallStatus reports whether s is a known call status
func IsValidCallStatus(s CallStatus) bool {
	switch s {
	case CallStatusInitiated, CallStatusRinging, CallStatusConnected,
		CallStatusEnded, CallStatusRejected, CallStatusMissed:
		return true
	}
	return false
}

// CallMetadata holds the signaling payload attached to a call.
// Updates merge key by key: accept only sets SDPAnswer, ICE updates
// only set ICECandidates.
type CallMetadata struct {
	ICEServers    []string `json:"iceServers,omitempty"`
	SDPOffer      string   `json:"sdpOffer,omitempty"`
	SDPAnswer     string   `json:"sdpAnswer,omitempty"`
	ICECandidates []string `json:"iceCandidates,omitempty"`
	ChannelID     string   `json:"channelId,omitempty"`
	ServerID      string   `json:"serverId,omitempty"`
}

// Call represents an audio/video call between two users.
// Terminal calls are never deleted; they are retained as history.
type Call struct {
	ID         uuid.UUID    `json:"id"`
	CallerID   uuid.UUID    `json:"caller_id"`
	ReceiverID uuid.UUID    `json:"receiver_id"`
	Type       CallType     `json:"type"`
	Status     CallStatus   `json:"status"`
	StartTime  *time.Time   `json:"start_time,omitempty"`
	EndTime    *time.Time   `json:"end_time,omitempty"`
	Duration   *int         `json:"duration,omitempty"` // whole seconds, set only when both times are present
	Metadata   CallMetadata `json:"metadata"`
	CreatedAt  time.Time    `json:"created_at"`
	UpdatedAt  time.Time    `json:"updated_at"`
}

// HasParticipant reports whether the user is the caller or the receiver
func (c *Call) HasParticipant(userID uuid.UUID) bool {
	return c.CallerID == userID || c.ReceiverID == userID
}

// ComputeDuration returns the call duration in whole seconds, rounded down.
// Returns nil unless both start and end times are set.
func ComputeDuration(start, end *time.Time) *int {
	if start == nil || end == nil {
		return nil
	}
	d := int(end.Sub(*start).Seconds())
	return &d
}
