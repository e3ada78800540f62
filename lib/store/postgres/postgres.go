// Package postgres implements the store interface for PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/lib/pq" //nolint:gci // load the postgres driver that is used by the system

	"github.com/tarancss/txd/lib/store"
)

type Postgres struct {
	db *sql.DB
}

const schema = `CREATE TABLE IF NOT EXISTS tx_status (
	chain         text        NOT NULL,
	hash          text        NOT NULL,
	state         text        NOT NULL,
	confirmations bigint      NOT NULL DEFAULT 0,
	sender        text        NOT NULL DEFAULT '',
	recipient     text        NOT NULL DEFAULT '',
	amount        text        NOT NULL DEFAULT '',
	block         bigint      NOT NULL DEFAULT 0,
	observed      timestamptz NOT NULL,
	PRIMARY KEY (chain, hash)
)`

// New returns a postgres client connection to the specified database in 'connection'.
func New(connection string) (*Postgres, error) {
	db, err := sql.Open("postgres", connection)
	if err != nil {
		return nil, fmt.Errorf("cannot connect to DB in %s: %w", connection, err)
	}

	if _, err = db.Exec(schema); err != nil {
		return nil, fmt.Errorf("cannot ensure schema: %w", err)
	}

	return &Postgres{db: db}, nil
}

// ClosePostgres will close the database connection. Must be called at termination time.
func (p *Postgres) ClosePostgres() error {
	return p.db.Close()
}

// UpsertStatus saves the status, replacing any row already stored for the same transaction.
func (p *Postgres) UpsertStatus(ctx context.Context, t store.TxStatus) error {
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO tx_status (chain, hash, state, confirmations, sender, recipient, amount, block, observed)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (chain, hash) DO UPDATE SET
		   state = EXCLUDED.state, confirmations = EXCLUDED.confirmations, sender = EXCLUDED.sender,
		   recipient = EXCLUDED.recipient, amount = EXCLUDED.amount, block = EXCLUDED.block,
		   observed = EXCLUDED.observed`,
		t.Chain, t.Hash, t.State, t.Confirmations, t.From, t.To, t.Amount, t.Block, t.Observed)
	if err != nil {
		return fmt.Errorf("could not upsert status in db: %w", err)
	}

	return nil
}

// GetStatus returns the latest status for a transaction.
func (p *Postgres) GetStatus(ctx context.Context, chain, hash string) (store.TxStatus, error) {
	var t store.TxStatus

	err := p.db.QueryRowContext(ctx,
		`SELECT chain, hash, state, confirmations, sender, recipient, amount, block, observed
		 FROM tx_status WHERE chain = $1 AND hash = $2`, chain, hash).
		Scan(&t.Chain, &t.Hash, &t.State, &t.Confirmations, &t.From, &t.To, &t.Amount, &t.Block, &t.Observed)
	if errors.Is(err, sql.ErrNoRows) {
		return store.TxStatus{}, store.ErrNotFound
	}

	if err != nil {
		return store.TxStatus{}, fmt.Errorf("could not read status from db: %w", err)
	}

	return t, nil
}

// ListStatuses returns matching statuses newest first.
func (p *Postgres) ListStatuses(ctx context.Context, f store.Filter) ([]store.TxStatus, error) {
	limit := f.Limit
	if limit <= 0 || limit > store.DefaultListLimit {
		limit = store.DefaultListLimit
	}

	rows, err := p.db.QueryContext(ctx,
		`SELECT chain, hash, state, confirmations, sender, recipient, amount, block, observed
		 FROM tx_status
		 WHERE ($1 = '' OR chain = $1) AND ($2 = '' OR state = $2)
		 ORDER BY observed DESC LIMIT $3`, f.Chain, f.State, limit)
	if err != nil {
		return nil, fmt.Errorf("could not list statuses from db: %w", err)
	}
	defer rows.Close()

	var out []store.TxStatus

	for rows.Next() {
		var t store.TxStatus

		if err = rows.Scan(
			&t.Chain, &t.Hash, &t.State, &t.Confirmations, &t.From, &t.To, &t.Amount, &t.Block, &t.Observed,
		); err != nil {
			return nil, fmt.Errorf("could not scan status row: %w", err)
		}

		out = append(out, t)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("could not list statuses from db: %w", err)
	}

	return out, nil
}
