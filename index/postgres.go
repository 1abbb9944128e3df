package index

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/lib/pq"
)

const (
	postgresTableName        = "ledgerfs_index"
	postgresOperationTimeout = 5 * time.Second
)

type sqlOpenFunc func(driverName, dsn string) (*sql.DB, error)

// PostgresIndex stores records in a PostgreSQL table. The record JSON is
// kept verbatim next to the columns used for lookups.
type PostgresIndex struct {
	dsn       string
	tableName string
	openDB    sqlOpenFunc

	initOnce sync.Once
	initErr  error
	db       *sql.DB
}

var _ Index = (*PostgresIndex)(nil)

// NewPostgresIndex returns an index backed by dsn. The connection and
// table are created on first use.
func NewPostgresIndex(dsn string) (*PostgresIndex, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, ErrInvalidDSN
	}
	return &PostgresIndex{dsn: dsn, tableName: postgresTableName, openDB: sql.Open}, nil
}

func (p *PostgresIndex) ensureReady() error {
	p.initOnce.Do(func() {
		db, err := p.openDB("postgres", p.dsn)
		if err != nil {
			p.initErr = err
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), postgresOperationTimeout)
		defer cancel()

		table := postgresQuoteIdentifier(p.tableName)
		stmts := []string{
			fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				object_id TEXT PRIMARY KEY,
				owner_id TEXT NOT NULL,
				parent_id TEXT NOT NULL DEFAULT '',
				created_at BIGINT NOT NULL,
				record TEXT NOT NULL,
				updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)`, table),
			fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (owner_id)`,
				postgresQuoteIdentifier(p.tableName+"_owner_idx"), table),
			fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (parent_id)`,
				postgresQuoteIdentifier(p.tableName+"_parent_idx"), table),
		}
		for _, q := range stmts {
			if _, err := db.ExecContext(ctx, q); err != nil {
				_ = db.Close()
				p.initErr = err
				return
			}
		}
		p.db = db
	})
	return p.initErr
}

func (p *PostgresIndex) Put(ctx context.Context, r *Record) error {
	if err := r.Validate(); err != nil {
		return err
	}
	if err := p.ensureReady(); err != nil {
		return fmt.Errorf("index: postgres: %w", err)
	}
	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("index: encode record: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, postgresOperationTimeout)
	defer cancel()

	query := fmt.Sprintf(`
		INSERT INTO %s (object_id, owner_id, parent_id, created_at, record, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (object_id)
		DO UPDATE SET owner_id = EXCLUDED.owner_id, parent_id = EXCLUDED.parent_id,
			created_at = EXCLUDED.created_at, record = EXCLUDED.record, updated_at = NOW()`,
		postgresQuoteIdentifier(p.tableName))
	if _, err := p.db.ExecContext(ctx, query, r.ObjectID, r.OwnerID, r.ParentID, r.CreatedAt, string(payload)); err != nil {
		return fmt.Errorf("index: put %s: %w", r.ObjectID, err)
	}
	return nil
}

func (p *PostgresIndex) getPayload(ctx context.Context, objectID string) ([]byte, error) {
	if err := p.ensureReady(); err != nil {
		return nil, fmt.Errorf("index: postgres: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, postgresOperationTimeout)
	defer cancel()

	query := fmt.Sprintf("SELECT record FROM %s WHERE object_id = $1", postgresQuoteIdentifier(p.tableName))
	var payload string
	err := p.db.QueryRowContext(ctx, query, objectID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, objectID)
	}
	if err != nil {
		return nil, fmt.Errorf("index: get %s: %w", objectID, err)
	}
	return []byte(payload), nil
}

func (p *PostgresIndex) Get(ctx context.Context, objectID string) (*Record, error) {
	payload, err := p.getPayload(ctx, objectID)
	if err != nil {
		return nil, err
	}
	var r Record
	if err := json.Unmarshal(payload, &r); err != nil {
		return nil, fmt.Errorf("index: decode record: %w", err)
	}
	return &r, nil
}

func (p *PostgresIndex) GetRaw(ctx context.Context, objectID string) (map[string]json.RawMessage, error) {
	payload, err := p.getPayload(ctx, objectID)
	if err != nil {
		return nil, err
	}
	return decodeRaw(payload)
}

func (p *PostgresIndex) Delete(ctx context.Context, objectID string) error {
	if err := p.ensureReady(); err != nil {
		return fmt.Errorf("index: postgres: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, postgresOperationTimeout)
	defer cancel()

	query := fmt.Sprintf("DELETE FROM %s WHERE object_id = $1", postgresQuoteIdentifier(p.tableName))
	res, err := p.db.ExecContext(ctx, query, objectID)
	if err != nil {
		return fmt.Errorf("index: delete %s: %w", objectID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("index: delete %s: %w", objectID, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, objectID)
	}
	return nil
}

func (p *PostgresIndex) ListByOwner(ctx context.Context, ownerID string) ([]Record, error) {
	return p.list(ctx, "owner_id", ownerID)
}

func (p *PostgresIndex) ListByParent(ctx context.Context, parentID string) ([]Record, error) {
	return p.list(ctx, "parent_id", parentID)
}

func (p *PostgresIndex) list(ctx context.Context, column, value string) ([]Record, error) {
	if err := p.ensureReady(); err != nil {
		return nil, fmt.Errorf("index: postgres: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, postgresOperationTimeout)
	defer cancel()

	query := fmt.Sprintf("SELECT record FROM %s WHERE %s = $1 ORDER BY created_at, object_id",
		postgresQuoteIdentifier(p.tableName), column)
	rows, err := p.db.QueryContext(ctx, query, value)
	if err != nil {
		return nil, fmt.Errorf("index: list by %s: %w", column, err)
	}
	defer rows.Close()

	out := make([]Record, 0)
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("index: scan: %w", err)
		}
		var r Record
		if err := json.Unmarshal([]byte(payload), &r); err != nil {
			return nil, fmt.Errorf("index: decode record: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("index: list by %s: %w", column, err)
	}
	return out, nil
}

// Close releases the connection pool.
func (p *PostgresIndex) Close() error {
	if p == nil || p.db == nil {
		return nil
	}
	return p.db.Close()
}

func postgresQuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
