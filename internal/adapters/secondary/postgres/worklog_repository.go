package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lorrc/ticket-collab/internal/core/domain"
	apperrors "github.com/lorrc/ticket-collab/internal/core/errors"
	"github.com/lorrc/ticket-collab/internal/core/ports"
)

// Postgres error codes mapped onto domain errors.
const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

const worklogColumns = `id, ticket_id, agent_id, started_at, ended_at, duration_seconds, reason_id, stop_reason`

// WorklogRepository stores worklog sessions. The partial unique index
// worklogs_one_active_idx guarantees one open session per (ticket, agent).
type WorklogRepository struct {
	pool *pgxpool.Pool
}

var _ ports.WorklogRepository = (*WorklogRepository)(nil)

// NewWorklogRepository creates a new worklog repository.
func NewWorklogRepository(pool *pgxpool.Pool) *WorklogRepository {
	return &WorklogRepository{pool: pool}
}

func scanWorklog(row pgx.Row) (*domain.Worklog, error) {
	var w domain.Worklog
	err := row.Scan(&w.ID, &w.TicketID, &w.AgentID, &w.StartedAt, &w.EndedAt, &w.DurationSeconds, &w.ReasonID, &w.StopReason)
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// Create opens a session. It fails with ErrWorklogAlreadyActive when the
// agent already has one running on the ticket.
func (r *WorklogRepository) Create(ctx context.Context, w *domain.Worklog) (*domain.Worklog, error) {
	const query = `
INSERT INTO worklogs (id, ticket_id, agent_id, started_at)
VALUES ($1, $2, $3, $4)
RETURNING ` + worklogColumns

	created, err := scanWorklog(GetDBTX(ctx, r.pool).QueryRow(ctx, query, w.ID, w.TicketID, w.AgentID, w.StartedAt))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case uniqueViolation:
				return nil, apperrors.ErrWorklogAlreadyActive
			case foreignKeyViolation:
				return nil, apperrors.ErrTicketNotFound
			}
		}
		return nil, err
	}
	return created, nil
}

// GetActive returns the running session of the pair.
func (r *WorklogRepository) GetActive(ctx context.Context, ticketID int64, agentID uuid.UUID) (*domain.Worklog, error) {
	const query = `SELECT ` + worklogColumns + ` FROM worklogs
WHERE ticket_id = $1 AND agent_id = $2 AND ended_at IS NULL`

	w, err := scanWorklog(GetDBTX(ctx, r.pool).QueryRow(ctx, query, ticketID, agentID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.ErrNoActiveWorklog
	}
	return w, err
}

// Close ends a running session. Ended sessions are never rewritten.
func (r *WorklogRepository) Close(ctx context.Context, w *domain.Worklog) (*domain.Worklog, error) {
	const query = `
UPDATE worklogs
SET ended_at = $2, duration_seconds = $3, reason_id = $4, stop_reason = $5
WHERE id = $1 AND ended_at IS NULL
RETURNING ` + worklogColumns

	closed, err := scanWorklog(GetDBTX(ctx, r.pool).QueryRow(ctx, query, w.ID, w.EndedAt, w.DurationSeconds, w.ReasonID, w.StopReason))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.ErrNoActiveWorklog
	}
	return closed, err
}

// ListByTicketAndAgent returns every session of the pair, oldest first.
func (r *WorklogRepository) ListByTicketAndAgent(ctx context.Context, ticketID int64, agentID uuid.UUID) ([]*domain.Worklog, error) {
	const query = `SELECT ` + worklogColumns + ` FROM worklogs
WHERE ticket_id = $1 AND agent_id = $2
ORDER BY started_at`

	rows, err := GetDBTX(ctx, r.pool).Query(ctx, query, ticketID, agentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]*domain.Worklog, 0)
	for rows.Next() {
		w, err := scanWorklog(rows)
		if err != nil {
			return nil, err
		}
		logs = append(logs, w)
	}
	return logs, rows.Err()
}
