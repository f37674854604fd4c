package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/AlexZinkM/solwallet/internal/model"

	"github.com/gagliardetto/solana-go"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres stores records in the submissions table (sql/postgres).
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPool connects to Postgres and verifies the connection.
func NewPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return pool, nil
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// Save inserts record, or overwrites a non-terminal row with the same id.
func (s *Postgres) Save(ctx context.Context, r *model.SubmissionRecord) error {
	query := `
		INSERT INTO submissions (
			tx_id, request_id, sender, recipient, lamports, state, reason,
			retry_count, payload, submitted_at, expires_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (tx_id) DO UPDATE SET
			state = EXCLUDED.state,
			reason = EXCLUDED.reason,
			retry_count = EXCLUDED.retry_count,
			updated_at = EXCLUDED.updated_at
		WHERE submissions.state = 'pending'
	`

	tag, err := s.pool.Exec(ctx, query,
		r.ID.String(),
		r.RequestID,
		r.Sender.String(),
		r.Recipient.String(),
		int64(r.Lamports),
		string(r.State),
		r.Reason,
		r.RetryCount,
		r.Payload,
		r.SubmittedAt,
		r.ExpiresAt,
		r.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert submission: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrTerminalRecord
	}
	return nil
}

// Update changes state, reason and retry count of a pending row.
func (s *Postgres) Update(ctx context.Context, r *model.SubmissionRecord) error {
	query := `
		UPDATE submissions
		SET state = $2, reason = $3, retry_count = $4, updated_at = $5
		WHERE tx_id = $1 AND state = 'pending'
	`

	tag, err := s.pool.Exec(ctx, query,
		r.ID.String(),
		string(r.State),
		r.Reason,
		r.RetryCount,
		r.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update submission: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	if _, err := s.Get(ctx, r.ID); err != nil {
		return err
	}
	return model.ErrTerminalRecord
}

func (s *Postgres) Get(ctx context.Context, id solana.Signature) (*model.SubmissionRecord, error) {
	query := `
		SELECT tx_id, request_id, sender, recipient, lamports, state, reason,
		       retry_count, payload, submitted_at, expires_at, updated_at
		FROM submissions
		WHERE tx_id = $1
	`

	rec, err := scanRecord(s.pool.QueryRow(ctx, query, id.String()))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrUnknownRecord
		}
		return nil, fmt.Errorf("get submission: %w", err)
	}
	return rec, nil
}

// ListBySender returns the sender's records, newest first.
func (s *Postgres) ListBySender(ctx context.Context, sender solana.PublicKey, limit int) ([]*model.SubmissionRecord, error) {
	query := `
		SELECT tx_id, request_id, sender, recipient, lamports, state, reason,
		       retry_count, payload, submitted_at, expires_at, updated_at
		FROM submissions
		WHERE sender = $1
		ORDER BY submitted_at DESC
		LIMIT $2
	`
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.pool.Query(ctx, query, sender.String(), limit)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	defer rows.Close()

	var out []*model.SubmissionRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan submission: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate submissions: %w", err)
	}
	return out, nil
}

func scanRecord(row pgx.Row) (*model.SubmissionRecord, error) {
	var (
		r                     model.SubmissionRecord
		id, sender, recipient string
		lamports              int64
		state                 string
	)
	err := row.Scan(
		&id, &r.RequestID, &sender, &recipient, &lamports, &state, &r.Reason,
		&r.RetryCount, &r.Payload, &r.SubmittedAt, &r.ExpiresAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if r.ID, err = solana.SignatureFromBase58(id); err != nil {
		return nil, fmt.Errorf("decode tx_id: %w", err)
	}
	if r.Sender, err = solana.PublicKeyFromBase58(sender); err != nil {
		return nil, fmt.Errorf("decode sender: %w", err)
	}
	if r.Recipient, err = solana.PublicKeyFromBase58(recipient); err != nil {
		return nil, fmt.Errorf("decode recipient: %w", err)
	}
	r.Lamports = uint64(lamports)
	r.State = model.SubmissionState(state)
	return &r, nil
}
