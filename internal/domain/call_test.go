package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		name    string
		from    CallStatus
		to      CallStatus
		allowed bool
	}{
		{"initiated to ringing", CallStatusInitiated, CallStatusRinging, true},
		{"initiated to connected", CallStatusInitiated, CallStatusConnected, true},
		{"initiated to rejected", CallStatusInitiated, CallStatusRejected, true},
		{"initiated to missed", CallStatusInitiated, CallStatusMissed, true},
		{"initiated to ended", CallStatusInitiated, CallStatusEnded, false},
		{"ringing to connected", CallStatusRinging, CallStatusConnected, true},
		{"ringing to rejected", CallStatusRinging, CallStatusRejected, true},
		{"ringing to missed", CallStatusRinging, CallStatusMissed, true},
		{"ringing to ended", CallStatusRinging, CallStatusEnded, false},
		{"ringing back to initiated", CallStatusRinging, CallStatusInitiated, false},
		{"connected to ended", CallStatusConnected, CallStatusEnded, true},
		{"connected to rejected", CallStatusConnected, CallStatusRejected, false},
		{"ended is terminal", CallStatusEnded, CallStatusConnected, false},
		{"rejected is terminal", CallStatusRejected, CallStatusConnected, false},
		{"missed is terminal", CallStatusMissed, CallStatusRinging, false},
		{"self transition is invalid", CallStatusConnected, CallStatusConnected, false},
		{"unknown status has no edges", CallStatus("bogus"), CallStatusRinging, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.allowed, CanTransition(tt.from, tt.to))
		})
	}
}

func TestTransitionSources(t *testing.T) {
	assert.Equal(t, []CallStatus{CallStatusInitiated}, TransitionSources(CallStatusRinging))
	assert.Equal(t, []CallStatus{CallStatusInitiated, CallStatusRinging}, TransitionSources(CallStatusConnected))
	assert.Equal(t, []CallStatus{CallStatusInitiated, CallStatusRinging}, TransitionSources(CallStatusRejected))
	assert.Equal(t, []CallStatus{CallStatusInitiated, CallStatusRinging}, TransitionSources(CallStatusMissed))
	assert.Equal(t, []CallStatus{CallStatusConnected}, TransitionSources(CallStatusEnded))
	assert.Empty(t, TransitionSources(CallStatusInitiated))
}

func TestIsTerminal(t *testing.T) {
	assert.False(t, CallStatusInitiated.IsTerminal())
	assert.False(t, CallStatusRinging.IsTerminal())
	assert.False(t, CallStatusConnected.IsTerminal())
	assert.True(t, CallStatusEnded.IsTerminal())
	assert.True(t, CallStatusRejected.IsTerminal())
	assert.True(t, CallStatusMissed.IsTerminal())
}

func TestIsValidCallStatus(t *testing.T) {
	assert.True(t, IsValidCallStatus(CallStatusInitiated))
	assert.True(t, IsValidCallStatus(CallStatusMissed))
	assert.False(t, IsValidCallStatus(CallStatus("paused")))
	assert.False(t, IsValidCallStatus(CallStatus("")))
}

func TestComputeDuration(t *testing.T) {
	start := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	t.Run("rounds down to whole seconds", func(t *testing.T) {
		end := start.Add(95*time.Second + 900*time.Millisecond)
		d := ComputeDuration(&start, &end)
		assert.NotNil(t, d)
		assert.Equal(t, 95, *d)
	})

	t.Run("zero length call", func(t *testing.T) {
		d := ComputeDuration(&start, &start)
		assert.NotNil(t, d)
		assert.Equal(t, 0, *d)
	})

	t.Run("nil when start missing", func(t *testing.T) {
		end := start.Add(time.Minute)
		assert.Nil(t, ComputeDuration(nil, &end))
	})

	t.Run("nil when end missing", func(t *testing.T) {
		assert.Nil(t, ComputeDuration(&start, nil))
	})
}

func TestHasParticipant(t *testing.T) {
	caller := uuid.New()
	receiver := uuid.New()
	call := &Call{CallerID: caller, ReceiverID: receiver}

	assert.True(t, call.HasParticipant(caller))
	assert.True(t, call.HasParticipant(receiver))
	assert.False(t, call.HasParticipant(uuid.New()))
}
