// Package memqueue is a same-process, sqlite-backed stand-in for the
// bucket service, used in tests and local development in place of a
// real HTTP queue. It implements the same atomic-dequeue contract:
// at-most-one caller ever withdraws a given Work into the running
// state, serialized by sqlite's own locking.
package memqueue

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/sitefed/labwork/internal/bucket"
	"github.com/sitefed/labwork/internal/work"
)

// Queue is an in-process bucket-service fake.
type Queue struct {
	db *sql.DB
}

// Open creates (or reuses) a sqlite database at path ("file::memory:"
// for an ephemeral in-test queue shared across connections within the
// process): WAL mode, a bounded busy timeout, foreign keys on, and a
// single open connection (sqlite's locking model does not benefit
// from a pool).
func Open(path string) (*Queue, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("memqueue: open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("memqueue: ping database: %w", err)
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			return nil, fmt.Errorf("memqueue: %s: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schemaDDL); err != nil {
		return nil, fmt.Errorf("memqueue: create schema: %w", err)
	}

	return &Queue{db: db}, nil
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS work (
	id TEXT PRIMARY KEY,
	pipeline TEXT NOT NULL,
	site TEXT,
	priority INTEGER NOT NULL,
	creation REAL NOT NULL,
	status TEXT NOT NULL,
	payload TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_work_withdraw ON work(pipeline, status, priority, creation);
`

// Close releases the underlying database handle.
func (q *Queue) Close() error { return q.db.Close() }

// Deposit inserts items as status=queued and returns their ids,
// assigning one via uuid when unset.
func (q *Queue) Deposit(ctx context.Context, items []*work.Work) ([]string, error) {
	ids := make([]string, 0, len(items))
	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("memqueue: begin deposit: %w", err)
	}
	defer tx.Rollback()

	for _, w := range items {
		if w.ID == "" {
			w.ID = uuid.NewString()
		}
		w.Status = work.StatusQueued
		payload, err := json.Marshal(w)
		if err != nil {
			return nil, fmt.Errorf("memqueue: marshal work %s: %w", w.ID, err)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO work (id, pipeline, site, priority, creation, status, payload) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			w.ID, w.Pipeline, w.Site, w.Priority, w.Creation, string(w.Status), string(payload))
		if err != nil {
			return nil, fmt.Errorf("memqueue: insert work %s: %w", w.ID, err)
		}
		ids = append(ids, w.ID)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("memqueue: commit deposit: %w", err)
	}
	return ids, nil
}

// Withdraw atomically selects the highest-priority, oldest-creation
// queued Work for pipeline and transitions it to running within the
// same transaction, so two concurrent withdrawers never observe the
// same row. Of filter, only Site and Priority are applied (an empty
// Site or zero Priority matches any); Event, User, Tags and Parent
// are ignored.
func (q *Queue) Withdraw(ctx context.Context, pipeline string, filter bucket.Filter) (*work.Work, error) {
	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("memqueue: begin withdraw: %w", err)
	}
	defer tx.Rollback()

	query := strings.Builder{}
	query.WriteString(`SELECT id, payload FROM work WHERE pipeline = ? AND status = ?`)
	args := []interface{}{pipeline, string(work.StatusQueued)}
	if filter.Site != "" {
		query.WriteString(` AND site = ?`)
		args = append(args, filter.Site)
	}
	if filter.Priority != 0 {
		query.WriteString(` AND priority = ?`)
		args = append(args, filter.Priority)
	}
	query.WriteString(` ORDER BY priority DESC, creation ASC LIMIT 1`)

	row := tx.QueryRowContext(ctx, query.String(), args...)
	var id, payload string
	if err := row.Scan(&id, &payload); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("memqueue: withdraw scan: %w", err)
	}

	var w work.Work
	if err := json.Unmarshal([]byte(payload), &w); err != nil {
		return nil, fmt.Errorf("memqueue: unmarshal withdrawn work %s: %w", id, err)
	}
	w.Status = work.StatusRunning
	w.Attempt++
	updated, err := json.Marshal(&w)
	if err != nil {
		return nil, fmt.Errorf("memqueue: marshal withdrawn work %s: %w", id, err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE work SET status = ?, payload = ? WHERE id = ?`, string(w.Status), string(updated), id); err != nil {
		return nil, fmt.Errorf("memqueue: mark running %s: %w", id, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("memqueue: commit withdraw: %w", err)
	}
	return &w, nil
}

// Update overwrites the stored payload for w.ID.
func (q *Queue) Update(ctx context.Context, w *work.Work) error {
	payload, err := json.Marshal(w)
	if err != nil {
		return fmt.Errorf("memqueue: marshal update %s: %w", w.ID, err)
	}
	res, err := q.db.ExecContext(ctx, `UPDATE work SET status = ?, priority = ?, payload = ? WHERE id = ?`,
		string(w.Status), w.Priority, string(payload), w.ID)
	if err != nil {
		return fmt.Errorf("memqueue: update %s: %w", w.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("memqueue: update rows affected %s: %w", w.ID, err)
	}
	if n == 0 {
		return fmt.Errorf("memqueue: update: no such work %s", w.ID)
	}
	return nil
}

// Delete removes the given ids.
func (q *Queue) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders := strings.TrimRight(strings.Repeat("?,", len(ids)), ",")
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	_, err := q.db.ExecContext(ctx, `DELETE FROM work WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return fmt.Errorf("memqueue: delete %v: %w", ids, err)
	}
	return nil
}

// ListTerminal returns up to limit terminal-status Work items for
// pipeline/site, ordered oldest-creation first, as consumed by the
// transfer and audit daemons. limit <= 0 means unbounded: SQLite
// treats a negative LIMIT as "no limit", unlike zero, which returns no
// rows at all, so a non-positive limit is rewritten to -1.
func (q *Queue) ListTerminal(ctx context.Context, pipeline, site string, limit int) ([]*work.Work, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := q.db.QueryContext(ctx,
		`SELECT payload FROM work WHERE pipeline = ? AND site = ? AND status IN (?, ?, ?, ?) ORDER BY creation ASC LIMIT ?`,
		pipeline, site, string(work.StatusSuccess), string(work.StatusFailure), string(work.StatusCancelled), string(work.StatusExpired), limit)
	if err != nil {
		return nil, fmt.Errorf("memqueue: list terminal: %w", err)
	}
	defer rows.Close()

	var items []*work.Work
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("memqueue: scan terminal row: %w", err)
		}
		var w work.Work
		if err := json.Unmarshal([]byte(payload), &w); err != nil {
			return nil, fmt.Errorf("memqueue: unmarshal terminal row: %w", err)
		}
		items = append(items, &w)
	}
	return items, rows.Err()
}

// ListActive returns every non-terminal (queued or running) Work item
// for pipeline/site, as consumed by the audit daemon's expired/orphan
// classification.
func (q *Queue) ListActive(ctx context.Context, pipeline, site string) ([]*work.Work, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT payload FROM work WHERE pipeline = ? AND site = ? AND status IN (?, ?) ORDER BY creation ASC`,
		pipeline, site, string(work.StatusQueued), string(work.StatusRunning))
	if err != nil {
		return nil, fmt.Errorf("memqueue: list active: %w", err)
	}
	defer rows.Close()

	var items []*work.Work
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("memqueue: scan active row: %w", err)
		}
		var w work.Work
		if err := json.Unmarshal([]byte(payload), &w); err != nil {
			return nil, fmt.Errorf("memqueue: unmarshal active row: %w", err)
		}
		items = append(items, &w)
	}
	return items, rows.Err()
}

// ListByIDs returns whichever of ids currently exist in the queue,
// regardless of status, as consumed by the pipeline stage driver to
// poll a deposited stage for its Work items reaching a terminal state.
func (q *Queue) ListByIDs(ctx context.Context, ids []string) ([]*work.Work, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimRight(strings.Repeat("?,", len(ids)), ",")
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := q.db.QueryContext(ctx, `SELECT payload FROM work WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("memqueue: list by ids: %w", err)
	}
	defer rows.Close()

	var items []*work.Work
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("memqueue: scan row: %w", err)
		}
		var w work.Work
		if err := json.Unmarshal([]byte(payload), &w); err != nil {
			return nil, fmt.Errorf("memqueue: unmarshal row: %w", err)
		}
		items = append(items, &w)
	}
	return items, rows.Err()
}
