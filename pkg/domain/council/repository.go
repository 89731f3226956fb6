package council

import "context"

// Repository persists completed decisions.
type Repository interface {
	// CreateSession stores the session and its plan actions atomically.
	CreateSession(ctx context.Context, session *Session, actions []PlanAction) error
}
