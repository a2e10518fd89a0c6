package call

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"chatgrid-backend/internal/domain"
	"chatgrid-backend/internal/realtime"
	"chatgrid-backend/internal/repository/cockroach"
	"chatgrid-backend/pkg/constants"
	apperrors "chatgrid-backend/pkg/errors"
	"chatgrid-backend/pkg/logger"
	"chatgrid-backend/pkg/metrics"
)

// CallRepository is the storage contract the service depends on
type CallRepository interface {
	Create(ctx context.Context, call *domain.Call) error
	GetByID(ctx context.Context, callID uuid.UUID) (*domain.Call, error)
	UpdateTransition(ctx context.Context, callID uuid.UUID, allowedFrom []domain.CallStatus, mut cockroach.TransitionMutation) (*domain.Call, error)
	UpdateMetadata(ctx context.Context, callID uuid.UUID, patch *domain.CallMetadata) (*domain.Call, error)
	GetUserCalls(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.Call, error)
	GetActiveCall(ctx context.Context, userID uuid.UUID) (*domain.Call, error)
}

// EventPublisher appends lifecycle events to the event log
type EventPublisher interface {
	Publish(ctx context.Context, topic string, payload interface{}) error
}

// RealtimePublisher pushes low-latency signals toward live delivery sessions
type RealtimePublisher interface {
	Push(ctx context.Context, userID uuid.UUID, event string, data interface{}) error
}

// Service drives the call lifecycle state machine. Every status change goes
// through a compare-and-set update in the repository, so concurrent
// transitions on the same call resolve to exactly one winner.
type Service struct {
	repo     CallRepository
	events   EventPublisher
	realtime RealtimePublisher
	metrics  *metrics.Metrics
}

// NewService creates a new call service
func NewService(repo CallRepository, events EventPublisher, rt RealtimePublisher, m *metrics.Metrics) *Service {
	return &Service{
		repo:     repo,
		events:   events,
		realtime: rt,
		metrics:  m,
	}
}

// InitiateInput contains call initiation data
type InitiateInput struct {
	CallerID   uuid.UUID
	ReceiverID uuid.UUID
	Type       domain.CallType
	SDPOffer   string
	ChannelID  string
	ServerID   string
}

// Initiate creates a new call in the initiated status, records the started
// lifecycle event and signals the receiver's live sessions
func (s *Service) Initiate(ctx context.Context, input *InitiateInput) (*domain.Call, error) {
	if input.CallerID == input.ReceiverID {
		return nil, apperrors.ValidationError("cannot call yourself")
	}
	if input.Type != domain.CallTypeAudio && input.Type != domain.CallTypeVideo {
		return nil, apperrors.ValidationError("call type must be audio or video")
	}

	call := &domain.Call{
		ID:         uuid.New(),
		CallerID:   input.CallerID,
		ReceiverID: input.ReceiverID,
		Type:       input.Type,
		Status:     domain.CallStatusInitiated,
		Metadata: domain.CallMetadata{
			SDPOffer:  input.SDPOffer,
			ChannelID: input.ChannelID,
			ServerID:  input.ServerID,
		},
	}

	if err := s.repo.Create(ctx, call); err != nil {
		s.metrics.RecordCallFailure("initiate", "database")
		return nil, err
	}

	s.publishLifecycleEvent(ctx, call)
	s.push(ctx, call.ReceiverID, realtime.EventIncomingCall, call)

	return call, nil
}

// Ring marks the call as ringing on the receiver's device
func (s *Service) Ring(ctx context.Context, callID uuid.UUID) (*domain.Call, error) {
	call, err := s.repo.UpdateTransition(ctx, callID,
		domain.TransitionSources(domain.CallStatusRinging),
		cockroach.TransitionMutation{Status: domain.CallStatusRinging},
	)
	if err != nil {
		return nil, err
	}

	return call, nil
}

// AcceptInput contains the answer the receiver produced
type AcceptInput struct {
	SDPAnswer string
}

// Accept connects the call. The transition is only legal from initiated or
// ringing; a call already rejected, missed or ended stays untouched and the
// caller gets an InvalidTransition error.
func (s *Service) Accept(ctx context.Context, callID uuid.UUID, input *AcceptInput) (*domain.Call, error) {
	mut := cockroach.TransitionMutation{
		Status:     domain.CallStatusConnected,
		StampStart: true,
	}
	if input != nil && input.SDPAnswer != "" {
		mut.Metadata = &domain.CallMetadata{SDPAnswer: input.SDPAnswer}
	}

	call, err := s.repo.UpdateTransition(ctx, callID,
		domain.TransitionSources(domain.CallStatusConnected), mut)
	if err != nil {
		s.recordTransitionFailure("accept", err)
		return nil, err
	}

	s.metrics.RecordCallConnected()
	s.publishLifecycleEvent(ctx, call)
	s.push(ctx, call.CallerID, realtime.EventCallAccepted, call)

	return call, nil
}

// Reject declines a call that has not connected yet
func (s *Service) Reject(ctx context.Context, callID uuid.UUID) (*domain.Call, error) {
	call, err := s.repo.UpdateTransition(ctx, callID,
		domain.TransitionSources(domain.CallStatusRejected),
		cockroach.TransitionMutation{Status: domain.CallStatusRejected},
	)
	if err != nil {
		s.recordTransitionFailure("reject", err)
		return nil, err
	}

	s.metrics.RecordCall(string(call.Type), string(call.Status))
	s.publishLifecycleEvent(ctx, call)
	s.push(ctx, call.CallerID, realtime.EventCallRejected, call)

	return call, nil
}

// Cancel withdraws a call the receiver never answered, marking it missed
func (s *Service) Cancel(ctx context.Context, callID uuid.UUID) (*domain.Call, error) {
	call, err := s.repo.UpdateTransition(ctx, callID,
		domain.TransitionSources(domain.CallStatusMissed),
		cockroach.TransitionMutation{Status: domain.CallStatusMissed},
	)
	if err != nil {
		s.recordTransitionFailure("cancel", err)
		return nil, err
	}

	s.metrics.RecordCall(string(call.Type), string(call.Status))
	s.publishLifecycleEvent(ctx, call)
	s.push(ctx, call.ReceiverID, realtime.EventCallEnded, call)

	return call, nil
}

// End hangs up a connected call. Only the connected status allows ending, so
// duration is always computed against a real start time.
func (s *Service) End(ctx context.Context, callID uuid.UUID) (*domain.Call, error) {
	call, err := s.repo.UpdateTransition(ctx, callID,
		domain.TransitionSources(domain.CallStatusEnded),
		cockroach.TransitionMutation{Status: domain.CallStatusEnded, StampEnd: true},
	)
	if err != nil {
		s.recordTransitionFailure("end", err)
		return nil, err
	}

	s.metrics.RecordCall(string(call.Type), string(call.Status))
	if call.Duration != nil {
		s.metrics.RecordCallFinished(time.Duration(*call.Duration) * time.Second)
	}

	s.publishLifecycleEvent(ctx, call)
	s.push(ctx, call.CallerID, realtime.EventCallEnded, call)
	s.push(ctx, call.ReceiverID, realtime.EventCallEnded, call)

	return call, nil
}

// UpdateICECandidates appends trickle ICE candidates to the call metadata.
// Candidate exchange is legal in any call state and produces no lifecycle
// event.
func (s *Service) UpdateICECandidates(ctx context.Context, callID uuid.UUID, candidates []string) (*domain.Call, error) {
	if len(candidates) == 0 {
		return nil, apperrors.ValidationError("no candidates provided")
	}

	call, err := s.repo.GetByID(ctx, callID)
	if err != nil {
		return nil, err
	}

	merged := append(call.Metadata.ICECandidates, candidates...)
	return s.repo.UpdateMetadata(ctx, callID, &domain.CallMetadata{ICECandidates: merged})
}

// GetCall retrieves a call by id
func (s *Service) GetCall(ctx context.Context, callID uuid.UUID) (*domain.Call, error) {
	return s.repo.GetByID(ctx, callID)
}

// History retrieves the user's call history, newest first
func (s *Service) History(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.Call, error) {
	if limit <= 0 {
		limit = constants.DefaultPageSize
	}
	if limit > constants.MaxPageSize {
		limit = constants.MaxPageSize
	}
	if offset < 0 {
		offset = 0
	}

	return s.repo.GetUserCalls(ctx, userID, limit, offset)
}

// ActiveCall returns the call the user is currently connected to, or nil
func (s *Service) ActiveCall(ctx context.Context, userID uuid.UUID) (*domain.Call, error) {
	call, err := s.repo.GetActiveCall(ctx, userID)
	if err != nil {
		if apperrors.HasCode(err, apperrors.ErrCodeCallNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return call, nil
}

// publishLifecycleEvent appends a lifecycle event to the calls topic after
// the transition has committed. The action is derived from the committed
// status. A publish failure is retried once and then logged; it never rolls
// back the committed transition.
func (s *Service) publishLifecycleEvent(ctx context.Context, call *domain.Call) {
	action := domain.CallActionForStatus(call.Status)
	event := &domain.CallEvent{
		CallID:      call.ID.String(),
		CallerID:    call.CallerID.String(),
		RecipientID: call.ReceiverID.String(),
		Type:        string(call.Type),
		Status:      string(call.Status),
		Action:      action,
		ChannelID:   call.Metadata.ChannelID,
		ServerID:    call.Metadata.ServerID,
		Timestamp:   time.Now().UTC(),
	}

	err := s.events.Publish(ctx, domain.TopicCalls, event)
	if err != nil {
		err = s.events.Publish(ctx, domain.TopicCalls, event)
	}
	if err != nil {
		s.metrics.RecordEventLogError(domain.TopicCalls, "publish")
		logger.Error("Failed to publish call lifecycle event",
			zap.String("call_id", call.ID.String()),
			zap.String("action", action),
			zap.Error(err))
		return
	}

	s.metrics.RecordEventPublished(domain.TopicCalls)
}

// push signals a user's live sessions, best effort
func (s *Service) push(ctx context.Context, userID uuid.UUID, event string, call *domain.Call) {
	if err := s.realtime.Push(ctx, userID, event, call); err != nil {
		logger.Warn("Failed to push call signal",
			zap.String("call_id", call.ID.String()),
			zap.String("event", event),
			zap.String("user_id", userID.String()),
			zap.Error(err))
	}
}

func (s *Service) recordTransitionFailure(operation string, err error) {
	switch {
	case apperrors.HasCode(err, apperrors.ErrCodeInvalidTransition):
		s.metrics.RecordCallFailure(operation, "invalid_transition")
	case apperrors.HasCode(err, apperrors.ErrCodeCallNotFound):
		s.metrics.RecordCallFailure(operation, "not_found")
	default:
		s.metrics.RecordCallFailure(operation, "database")
	}
}
