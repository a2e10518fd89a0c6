package cockroach

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"chatgrid-backend/internal/domain"
	apperrors "chatgrid-backend/pkg/errors"
)

// CallRepository handles call data operations
type CallRepository struct {
	pool *pgxpool.Pool
}

// NewCallRepository creates a new call repository
func NewCallRepository(pool *pgxpool.Pool) *CallRepository {
	return &CallRepository{pool: pool}
}

const callColumns = `
	call_id, caller_id, receiver_id, call_type, status,
	start_time, end_time, duration, metadata, created_at, updated_at
`

// TransitionMutation describes the fields written together with a status
// change. Metadata is merged key by key into the existing document.
type TransitionMutation struct {
	Status     domain.CallStatus
	StampStart bool // set start_time = now()
	StampEnd   bool // set end_time = now() and compute duration
	Metadata   *domain.CallMetadata
}

// Create inserts a new call record
func (r *CallRepository) Create(ctx context.Context, call *domain.Call) error {
	query := `
		INSERT INTO calls (
			call_id, caller_id, receiver_id, call_type, status, metadata
		) VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at
	`

	metadata, err := json.Marshal(call.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal call metadata: %w", err)
	}

	err = r.pool.QueryRow(ctx, query,
		call.ID,
		call.CallerID,
		call.ReceiverID,
		call.Type,
		call.Status,
		metadata,
	).Scan(&call.CreatedAt, &call.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to create call: %w", err)
	}

	return nil
}

// GetByID retrieves a call by ID
func (r *CallRepository) GetByID(ctx context.Context, callID uuid.UUID) (*domain.Call, error) {
	query := `SELECT ` + callColumns + ` FROM calls WHERE call_id = $1`

	call, err := scanCall(r.pool.QueryRow(ctx, query, callID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.CallNotFoundError()
		}
		return nil, fmt.Errorf("failed to get call: %w", err)
	}

	return call, nil
}

// UpdateTransition atomically moves a call to a new status, guarded by the set
// of statuses the transition is allowed from. The guard and the write happen in
// a single conditional UPDATE, so of two racing transitions exactly one wins.
// Returns CallNotFoundError when the call does not exist and
// InvalidTransitionError when it exists but is not in an allowed status.
func (r *CallRepository) UpdateTransition(ctx context.Context, callID uuid.UUID, allowedFrom []domain.CallStatus, mut TransitionMutation) (*domain.Call, error) {
	query := `
		UPDATE calls
		SET status = $3,
		    start_time = CASE WHEN $4 THEN now() ELSE start_time END,
		    end_time = CASE WHEN $5 THEN now() ELSE end_time END,
		    duration = CASE WHEN $5 THEN FLOOR(EXTRACT(EPOCH FROM (now() - start_time)))::INT ELSE duration END,
		    metadata = metadata || $6,
		    updated_at = now()
		WHERE call_id = $1 AND status = ANY($2)
		RETURNING ` + callColumns

	patch, err := marshalMetadataPatch(mut.Metadata)
	if err != nil {
		return nil, err
	}

	from := make([]string, len(allowedFrom))
	for i, s := range allowedFrom {
		from[i] = string(s)
	}

	call, err := scanCall(r.pool.QueryRow(ctx, query,
		callID,
		from,
		mut.Status,
		mut.StampStart,
		mut.StampEnd,
		patch,
	))

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, r.classifyTransitionMiss(ctx, callID, mut.Status)
		}
		return nil, fmt.Errorf("failed to update call transition: %w", err)
	}

	return call, nil
}

// classifyTransitionMiss distinguishes a missing call from a lost CAS race
// after a conditional update matched zero rows
func (r *CallRepository) classifyTransitionMiss(ctx context.Context, callID uuid.UUID, to domain.CallStatus) error {
	var current string
	err := r.pool.QueryRow(ctx, `SELECT status FROM calls WHERE call_id = $1`, callID).Scan(&current)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.CallNotFoundError()
		}
		return fmt.Errorf("failed to check call status: %w", err)
	}
	return apperrors.InvalidTransitionError(current, string(to))
}

// UpdateMetadata merges a metadata patch into a call without changing status.
// Used for ICE candidate trickle, which is legal in any call state.
func (r *CallRepository) UpdateMetadata(ctx context.Context, callID uuid.UUID, patch *domain.CallMetadata) (*domain.Call, error) {
	query := `
		UPDATE calls
		SET metadata = metadata || $2,
		    updated_at = now()
		WHERE call_id = $1
		RETURNING ` + callColumns

	data, err := marshalMetadataPatch(patch)
	if err != nil {
		return nil, err
	}

	call, err := scanCall(r.pool.QueryRow(ctx, query, callID, data))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.CallNotFoundError()
		}
		return nil, fmt.Errorf("failed to update call metadata: %w", err)
	}

	return call, nil
}

// GetUserCalls retrieves a user's call history, newest first
func (r *CallRepository) GetUserCalls(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.Call, error) {
	query := `
		SELECT ` + callColumns + `
		FROM calls
		WHERE caller_id = $1 OR receiver_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.pool.Query(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to get user calls: %w", err)
	}
	defer rows.Close()

	var calls []*domain.Call
	for rows.Next() {
		call, err := scanCall(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan call: %w", err)
		}
		calls = append(calls, call)
	}

	return calls, rows.Err()
}

// GetActiveCall returns the call the user is currently connected to, if any.
// Calls still initiating or ringing are not active.
func (r *CallRepository) GetActiveCall(ctx context.Context, userID uuid.UUID) (*domain.Call, error) {
	query := `
		SELECT ` + callColumns + `
		FROM calls
		WHERE (caller_id = $1 OR receiver_id = $1)
		  AND status = $2
		ORDER BY created_at DESC
		LIMIT 1
	`

	call, err := scanCall(r.pool.QueryRow(ctx, query, userID, domain.CallStatusConnected))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.CallNotFoundError()
		}
		return nil, fmt.Errorf("failed to get active call: %w", err)
	}

	return call, nil
}

func marshalMetadataPatch(patch *domain.CallMetadata) ([]byte, error) {
	if patch == nil {
		return []byte(`{}`), nil
	}
	data, err := json.Marshal(patch)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal metadata patch: %w", err)
	}
	return data, nil
}

func scanCall(row pgx.Row) (*domain.Call, error) {
	call := &domain.Call{}
	var metadata []byte
	err := row.Scan(
		&call.ID,
		&call.CallerID,
		&call.ReceiverID,
		&call.Type,
		&call.Status,
		&call.StartTime,
		&call.EndTime,
		&call.Duration,
		&metadata,
		&call.CreatedAt,
		&call.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &call.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal call metadata: %w", err)
		}
	}
	return call, nil
}
