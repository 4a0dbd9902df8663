package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"quiz-payment-relay/internal/domain"
	"quiz-payment-relay/internal/domain/model"
	"quiz-payment-relay/internal/domain/ports/repository"
)

var _ repository.SessionRepository = (*sessionRepo)(nil)

type sessionRepo struct{ pool *pgxpool.Pool }

func NewSessionRepo(pool *pgxpool.Pool) *sessionRepo {
	return &sessionRepo{pool: pool}
}

const sessionColumns = `session_id, user_id, category_id, user_email, expected_amount, status, created_at, expires_at, processed_at, transaction_id, actual_amount, matching_method, coupon_used`

func (r *sessionRepo) Save(ctx context.Context, tx repository.Tx, s *model.PaymentSession) error {
	const q = `
INSERT INTO payment_sessions (
  session_id, user_id, category_id, user_email, expected_amount, status, created_at, expires_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8);`

	_, err := execSQL(ctx, r.pool, tx, q,
		s.SessionID, s.UserID, s.CategoryID, s.UserEmail, s.ExpectedAmount, s.Status, s.CreatedAt, s.ExpiresAt)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidArgument) || errors.Is(err, domain.ErrInvalidExecContext) {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *sessionRepo) FindByID(ctx context.Context, tx repository.Tx, sessionID string) (*model.PaymentSession, error) {
	q := `SELECT ` + sessionColumns + ` FROM payment_sessions WHERE session_id=$1;`
	row, err := pickRow(ctx, r.pool, tx, q, sessionID)
	if err != nil {
		return nil, err
	}
	return scanSession(row)
}

func (r *sessionRepo) FindRecentByEmail(ctx context.Context, tx repository.Tx, email string, statuses []model.SessionStatus, since time.Time, limit int) ([]*model.PaymentSession, error) {
	q := `SELECT ` + sessionColumns + ` FROM payment_sessions
WHERE lower(user_email)=lower($1)
  AND (cardinality($2::text[]) = 0 OR status = ANY($2::text[]))
  AND ($3::timestamptz IS NULL OR created_at >= $3)
ORDER BY created_at DESC
LIMIT $4;`

	st := make([]string, 0, len(statuses))
	for _, s := range statuses {
		st = append(st, string(s))
	}
	var sinceArg *time.Time
	if !since.IsZero() {
		sinceArg = &since
	}

	rows, err := queryRows(ctx, r.pool, tx, q, email, st, sinceArg, limit)
	if err != nil {
		return nil, domain.ErrOperationFailed
	}
	defer rows.Close()
	return scanSessions(rows)
}

func (r *sessionRepo) ListByUser(ctx context.Context, tx repository.Tx, userID string, limit int) ([]*model.PaymentSession, error) {
	q := `SELECT ` + sessionColumns + ` FROM payment_sessions WHERE user_id=$1 ORDER BY created_at DESC LIMIT $2;`
	rows, err := queryRows(ctx, r.pool, tx, q, userID, limit)
	if err != nil {
		return nil, domain.ErrOperationFailed
	}
	defer rows.Close()
	return scanSessions(rows)
}

func (r *sessionRepo) UpdateStatusIf(ctx context.Context, tx repository.Tx, sessionID string, from, to model.SessionStatus) (bool, error) {
	const q = `UPDATE payment_sessions SET status=$3 WHERE session_id=$1 AND status=$2;`
	tag, err := execSQL(ctx, r.pool, tx, q, sessionID, from, to)
	if err != nil {
		return false, domain.ErrOperationFailed
	}
	return tag.RowsAffected() > 0, nil
}

func (r *sessionRepo) CompleteIf(ctx context.Context, tx repository.Tx, sessionID string, from []model.SessionStatus, c repository.SessionCompletion) (bool, error) {
	const q = `
UPDATE payment_sessions SET
  status='completed',
  processed_at=$3,
  transaction_id=NULLIF($4,''),
  actual_amount=$5,
  matching_method=NULLIF($6,''),
  coupon_used=NULLIF($7,'')
WHERE session_id=$1 AND status = ANY($2::text[]);`

	st := make([]string, 0, len(from))
	for _, s := range from {
		st = append(st, string(s))
	}
	tag, err := execSQL(ctx, r.pool, tx, q, sessionID, st,
		c.ProcessedAt, c.TransactionID, c.ActualAmount, c.MatchingMethod, c.CouponUsed)
	if err != nil {
		return false, domain.ErrOperationFailed
	}
	return tag.RowsAffected() > 0, nil
}

func (r *sessionRepo) ExpireOlderThan(ctx context.Context, tx repository.Tx, now time.Time) (int, error) {
	const q = `UPDATE payment_sessions SET status='expired' WHERE status='pending' AND expires_at < $1;`
	tag, err := execSQL(ctx, r.pool, tx, q, now)
	if err != nil {
		return 0, domain.ErrOperationFailed
	}
	return int(tag.RowsAffected()), nil
}

func scanSession(row pgx.Row) (*model.PaymentSession, error) {
	s := &model.PaymentSession{}
	err := row.Scan(&s.SessionID, &s.UserID, &s.CategoryID, &s.UserEmail, &s.ExpectedAmount, &s.Status,
		&s.CreatedAt, &s.ExpiresAt, &s.ProcessedAt, &s.TransactionID, &s.ActualAmount, &s.MatchingMethod, &s.CouponUsed)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return s, nil
}

func scanSessions(rows pgx.Rows) ([]*model.PaymentSession, error) {
	var out []*model.PaymentSession
	for rows.Next() {
		s := &model.PaymentSession{}
		err := rows.Scan(&s.SessionID, &s.UserID, &s.CategoryID, &s.UserEmail, &s.ExpectedAmount, &s.Status,
			&s.CreatedAt, &s.ExpiresAt, &s.ProcessedAt, &s.TransactionID, &s.ActualAmount, &s.MatchingMethod, &s.CouponUsed)
		if err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, s)
	}
	if rows.Err() != nil {
		return nil, domain.ErrOperationFailed
	}
	return out, nil
}
