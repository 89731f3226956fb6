package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/archoncouncil/api/pkg/domain/council"
)

// CouncilRepository implements council.Repository using PostgreSQL.
type CouncilRepository struct {
	db *DB
}

var _ council.Repository = (*CouncilRepository)(nil)

// NewCouncilRepository creates a new PostgreSQL council repository.
func NewCouncilRepository(db *DB) *CouncilRepository {
	return &CouncilRepository{db: db}
}

// CreateSession inserts the session and its plan actions in one transaction.
func (r *CouncilRepository) CreateSession(ctx context.Context, s *council.Session, actions []council.PlanAction) error {
	err := r.db.Transaction(ctx, func(tx *sql.Tx) error {
		if err := insertSession(ctx, tx, s); err != nil {
			return err
		}
		return insertPlanActions(ctx, tx, s, actions)
	})
	if isForeignKeyViolation(err) {
		return fmt.Errorf("%w: %s", council.ErrObjectNotFound, s.ObjectID)
	}
	return err
}

func insertSession(ctx context.Context, tx *sql.Tx, s *council.Session) error {
	query := `
		INSERT INTO sessions (
			id, user_id, object_id, question, horizon, status,
			archon_sintese, akira_estrategia, maya_conteudo, chen_dados, yuki_psicologia,
			processing_time_ms, model_used, error_message, created_at, updated_at
		) VALUES (
			$1, $2::uuid, $3, $4, $5::time_horizon, $6::session_status,
			$7, $8, $9, $10, $11,
			$12, $13, $14, $15, $15
		)`

	_, err := tx.ExecContext(ctx, query,
		s.ID.String(),
		s.UserID,
		s.ObjectID.String(),
		s.Question,
		string(s.Horizon),
		string(s.Status),
		nullString(s.Advice.ArchonSintese),
		nullString(s.Advice.AkiraEstrategia),
		nullString(s.Advice.MayaConteudo),
		nullString(s.Advice.ChenDados),
		nullString(s.Advice.YukiPsicologia),
		nullInt64(s.ProcessingTimeMS),
		nullString(s.ModelUsed),
		nullString(s.ErrorMessage),
		s.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func insertPlanActions(ctx context.Context, tx *sql.Tx, s *council.Session, actions []council.PlanAction) error {
	if len(actions) == 0 {
		return nil
	}

	ids := make([]string, len(actions))
	texts := make([]string, len(actions))
	priorities := make([]string, len(actions))
	statuses := make([]string, len(actions))
	for i, a := range actions {
		ids[i] = a.ID.String()
		texts[i] = a.ActionText
		priorities[i] = string(a.Priority)
		statuses[i] = string(a.Status)
	}

	query := `
		INSERT INTO plan_actions (id, session_id, user_id, action_text, priority, status, created_at, updated_at)
		SELECT a.id, $1, $2::uuid, a.action_text, a.priority::action_priority, a.status::action_status, $3, $3
		FROM unnest($4::uuid[], $5::text[], $6::text[], $7::text[]) AS a(id, action_text, priority, status)`

	_, err := tx.ExecContext(ctx, query,
		s.ID.String(),
		s.UserID,
		s.CreatedAt,
		pq.Array(ids),
		pq.Array(texts),
		pq.Array(priorities),
		pq.Array(statuses),
	)
	if err != nil {
		return fmt.Errorf("insert plan actions: %w", err)
	}
	return nil
}
