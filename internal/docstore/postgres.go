package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	notifyChannel = "docstore_changes"
	maxTxRetries  = 3
)

// PostgresStore keeps every document in a single jsonb table and fires a
// pg_notify on each write, so changes made by any instance reach every
// subscriber through the shared LISTEN connection.
type PostgresStore struct {
	pool      *pgxpool.Pool
	hub       *hub
	log       *slog.Logger
	listening atomic.Bool
}

func NewPostgresStore(pool *pgxpool.Pool, log *slog.Logger) *PostgresStore {
	return &PostgresStore{pool: pool, hub: newHub(), log: log}
}

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	collection text NOT NULL,
	id         text NOT NULL,
	doc        jsonb NOT NULL,
	updated_at timestamptz NOT NULL DEFAULT now(),
	PRIMARY KEY (collection, id)
);
CREATE INDEX IF NOT EXISTS documents_doc_gin ON documents USING gin (doc);
`

func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, collection, id string) (Doc, error) {
	var data []byte
	err := s.pool.QueryRow(ctx,
		`SELECT doc FROM documents WHERE collection = $1 AND id = $2`, collection, id,
	).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Doc{}, ErrNotFound
		}
		return Doc{}, fmt.Errorf("get document: %w", err)
	}
	return Doc{ID: id, Data: data}, nil
}

func (s *PostgresStore) GetAll(ctx context.Context, collection string, ids []string) ([]Doc, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, doc FROM documents WHERE collection = $1 AND id = ANY($2)`, collection, ids,
	)
	if err != nil {
		return nil, fmt.Errorf("get documents: %w", err)
	}
	defer rows.Close()
	return scanDocs(rows)
}

func (s *PostgresStore) Query(ctx context.Context, collection string, filters []Filter, orderBy string, descending bool) ([]Doc, error) {
	var sb strings.Builder
	sb.WriteString(`SELECT id, doc FROM documents WHERE collection = $1`)
	args := []any{collection}
	for _, f := range filters {
		fmt.Fprintf(&sb, ` AND doc->>$%d = $%d`, len(args)+1, len(args)+2)
		args = append(args, f.Field, f.Value)
	}
	if orderBy != "" {
		dir := "ASC"
		if descending {
			dir = "DESC"
		}
		fmt.Fprintf(&sb, ` ORDER BY doc->>$%d %s`, len(args)+1, dir)
		args = append(args, orderBy)
	}

	rows, err := s.pool.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	defer rows.Close()
	return scanDocs(rows)
}

func (s *PostgresStore) Count(ctx context.Context, collection string, filters []Filter) (int, error) {
	var sb strings.Builder
	sb.WriteString(`SELECT count(*) FROM documents WHERE collection = $1`)
	args := []any{collection}
	for _, f := range filters {
		fmt.Fprintf(&sb, ` AND doc->>$%d = $%d`, len(args)+1, len(args)+2)
		args = append(args, f.Field, f.Value)
	}

	var n int
	if err := s.pool.QueryRow(ctx, sb.String(), args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count documents: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) Set(ctx context.Context, collection, id string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}
	if _, err := s.pool.Exec(ctx,
		`INSERT INTO documents (collection, id, doc) VALUES ($1, $2, $3)
		 ON CONFLICT (collection, id) DO UPDATE SET doc = EXCLUDED.doc, updated_at = now()`,
		collection, id, data,
	); err != nil {
		return fmt.Errorf("set document: %w", err)
	}
	s.notify(ctx, s.pool, collection, id)
	return nil
}

func (s *PostgresStore) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	patch, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("marshal patch: %w", err)
	}
	ct, err := s.pool.Exec(ctx,
		`UPDATE documents SET doc = doc || $3, updated_at = now() WHERE collection = $1 AND id = $2`,
		collection, id, patch,
	)
	if err != nil {
		return fmt.Errorf("update document: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	s.notify(ctx, s.pool, collection, id)
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, collection, id string) error {
	ct, err := s.pool.Exec(ctx,
		`DELETE FROM documents WHERE collection = $1 AND id = $2`, collection, id,
	)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	s.notify(ctx, s.pool, collection, id)
	return nil
}

// RunTransaction runs fn with reads locking their documents (FOR UPDATE) so a
// read-then-conditional-write commits in isolation. Serialization and deadlock
// failures are retried a few times before surfacing.
func (s *PostgresStore) RunTransaction(ctx context.Context, fn func(tx Tx) error) error {
	var err error
	for attempt := 0; attempt < maxTxRetries; attempt++ {
		err = s.runTransactionOnce(ctx, fn)
		if err == nil || !isRetryable(err) {
			return err
		}
		s.log.Warn("transaction conflict, retrying", "attempt", attempt+1, "error", err)
	}
	return err
}

func (s *PostgresStore) runTransactionOnce(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&pgTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (s *PostgresStore) Subscribe(collection string) *Subscription {
	return s.hub.subscribe(collection)
}

// Listen holds a dedicated connection on the notify channel and republishes
// incoming events to local subscribers. Blocks until ctx is cancelled,
// reconnecting with backoff on connection loss.
func (s *PostgresStore) Listen(ctx context.Context) {
	for {
		if err := s.listenOnce(ctx); err != nil && ctx.Err() == nil {
			s.log.Error("notify listener disconnected", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Second):
		}
	}
}

// Listening reports whether the notify listener currently holds a
// connection. Exposed for readiness reporting; subscriptions made while this
// is false miss events until the listener reconnects.
func (s *PostgresStore) Listening() bool {
	return s.listening.Load()
}

func (s *PostgresStore) listenOnce(ctx context.Context) error {
	conn, err := pgx.ConnectConfig(ctx, s.pool.Config().ConnConfig.Copy())
	if err != nil {
		return fmt.Errorf("connect listener: %w", err)
	}
	defer conn.Close(context.Background())

	if _, err := conn.Exec(ctx, `LISTEN `+notifyChannel); err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	s.listening.Store(true)
	defer s.listening.Store(false)

	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			return err
		}
		collection, id, ok := strings.Cut(n.Payload, ":")
		if !ok {
			continue
		}
		s.hub.publish(Event{Collection: collection, ID: id})
	}
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func (s *PostgresStore) notify(ctx context.Context, q execer, collection, id string) {
	if _, err := q.Exec(ctx, `SELECT pg_notify($1, $2)`, notifyChannel, collection+":"+id); err != nil {
		s.log.Warn("notify change", "collection", collection, "error", err)
	}
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) Get(ctx context.Context, collection, id string) (Doc, error) {
	var data []byte
	err := t.tx.QueryRow(ctx,
		`SELECT doc FROM documents WHERE collection = $1 AND id = $2 FOR UPDATE`, collection, id,
	).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Doc{}, ErrNotFound
		}
		return Doc{}, fmt.Errorf("get document: %w", err)
	}
	return Doc{ID: id, Data: data}, nil
}

func (t *pgTx) Set(ctx context.Context, collection, id string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}
	if _, err := t.tx.Exec(ctx,
		`INSERT INTO documents (collection, id, doc) VALUES ($1, $2, $3)
		 ON CONFLICT (collection, id) DO UPDATE SET doc = EXCLUDED.doc, updated_at = now()`,
		collection, id, data,
	); err != nil {
		return fmt.Errorf("set document: %w", err)
	}
	// pg_notify inside the transaction is delivered only on commit.
	_, err = t.tx.Exec(ctx, `SELECT pg_notify($1, $2)`, notifyChannel, collection+":"+id)
	return err
}

func (t *pgTx) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	patch, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("marshal patch: %w", err)
	}
	ct, err := t.tx.Exec(ctx,
		`UPDATE documents SET doc = doc || $3, updated_at = now() WHERE collection = $1 AND id = $2`,
		collection, id, patch,
	)
	if err != nil {
		return fmt.Errorf("update document: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	_, err = t.tx.Exec(ctx, `SELECT pg_notify($1, $2)`, notifyChannel, collection+":"+id)
	return err
}

func scanDocs(rows pgx.Rows) ([]Doc, error) {
	var docs []Doc
	for rows.Next() {
		var d Doc
		var data []byte
		if err := rows.Scan(&d.ID, &data); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		d.Data = data
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// serialization_failure or deadlock_detected
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}
