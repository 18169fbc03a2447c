package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/GispoCoding/CFSI/internal/cfsierrors"
)

// PGCatalog implements Catalog over a Postgres dataset_docs table, grounded
// on the connection-pool setup in the teacher's cmd/geo-index and the
// hand-written-query fallback in its internal/db/sqlcgen package (sqlc
// cannot generate queries for this schema's jsonb-shaped document column).
type PGCatalog struct {
	pool *pgxpool.Pool
}

// NewPGCatalog wraps an already-connected pool. Connection lifecycle
// (MaxConns, context) is the caller's responsibility, matching the
// teacher's main() pattern of opening one pool per process.
func NewPGCatalog(pool *pgxpool.Pool) *PGCatalog {
	return &PGCatalog{pool: pool}
}

// InitSchema creates the dataset_docs table if it does not already exist.
// Backs the CLI's "init" action.
func (c *PGCatalog) InitSchema(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS dataset_docs (
	id text PRIMARY KEY,
	schema text NOT NULL,
	product_name text NOT NULL,
	crs text NOT NULL,
	uri text NOT NULL,
	doc jsonb NOT NULL,
	datetime timestamptz,
	created_at timestamptz NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS dataset_docs_product_idx ON dataset_docs (product_name);
CREATE INDEX IF NOT EXISTS dataset_docs_uri_idx ON dataset_docs (uri);
CREATE INDEX IF NOT EXISTS dataset_docs_datetime_idx ON dataset_docs (datetime);
`
	_, err := c.pool.Exec(ctx, ddl)
	if err != nil {
		return cfsierrors.RasterIOFailed(fmt.Errorf("init schema: %w", err))
	}
	return nil
}

type docPayload struct {
	Grids        map[string]Grid       `json:"grids"`
	Measurements map[string]Measurement `json:"measurements"`
	Properties   map[string]any        `json:"properties"`
}

func (c *PGCatalog) Get(ctx context.Context, id string) (DatasetDoc, error) {
	row := c.pool.QueryRow(ctx, `SELECT id, schema, product_name, crs, uri, doc, created_at FROM dataset_docs WHERE id = $1`, id)
	doc, err := scanDoc(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return DatasetDoc{}, cfsierrors.ErrCatalogNotFound
	}
	if err != nil {
		return DatasetDoc{}, fmt.Errorf("catalog get %s: %w", id, err)
	}
	return doc, nil
}

func (c *PGCatalog) Search(ctx context.Context, q SearchQuery) ([]DatasetDoc, error) {
	sql := `SELECT id, schema, product_name, crs, uri, doc, created_at FROM dataset_docs WHERE 1=1`
	args := []any{}
	n := 0
	next := func() int { n++; return n }

	if q.Product != "" {
		sql += fmt.Sprintf(" AND product_name = $%d", next())
		args = append(args, q.Product)
	}
	if q.URI != "" {
		sql += fmt.Sprintf(" AND uri = $%d", next())
		args = append(args, q.URI)
	}
	if !q.After.IsZero() {
		sql += fmt.Sprintf(" AND datetime >= $%d", next())
		args = append(args, q.After)
	}
	if !q.Before.IsZero() {
		sql += fmt.Sprintf(" AND datetime <= $%d", next())
		args = append(args, q.Before)
	}
	sql += " ORDER BY datetime ASC"
	if q.Limit > 0 {
		sql += fmt.Sprintf(" LIMIT %d", q.Limit)
	}

	rows, err := c.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("catalog search: %w", err)
	}
	defer rows.Close()

	var docs []DatasetDoc
	for rows.Next() {
		doc, err := scanDoc(rows)
		if err != nil {
			return nil, fmt.Errorf("catalog search scan: %w", err)
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func (c *PGCatalog) Add(ctx context.Context, doc DatasetDoc) error {
	payload, err := json.Marshal(docPayload{Grids: doc.Grids, Measurements: doc.Measurements, Properties: doc.Properties})
	if err != nil {
		return fmt.Errorf("marshal doc payload: %w", err)
	}

	var datetime any
	if dt, ok := doc.Properties["datetime"].(time.Time); ok {
		datetime = dt
	}

	_, err = c.pool.Exec(ctx, `
INSERT INTO dataset_docs (id, schema, product_name, crs, uri, doc, datetime, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, now())`,
		doc.ID, doc.Schema, doc.ProductName, doc.CRS, doc.URI, payload, datetime)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" { // unique_violation
			return cfsierrors.DocumentMismatch(err)
		}
		return fmt.Errorf("catalog add %s: %w", doc.ID, err)
	}
	return nil
}

func (c *PGCatalog) Update(ctx context.Context, doc DatasetDoc) error {
	payload, err := json.Marshal(docPayload{Grids: doc.Grids, Measurements: doc.Measurements, Properties: doc.Properties})
	if err != nil {
		return fmt.Errorf("marshal doc payload: %w", err)
	}

	var datetime any
	if dt, ok := doc.Properties["datetime"].(time.Time); ok {
		datetime = dt
	}

	tag, err := c.pool.Exec(ctx, `
UPDATE dataset_docs SET schema = $2, product_name = $3, crs = $4, uri = $5, doc = $6, datetime = $7
WHERE id = $1`,
		doc.ID, doc.Schema, doc.ProductName, doc.CRS, doc.URI, payload, datetime)
	if err != nil {
		return fmt.Errorf("catalog update %s: %w", doc.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return cfsierrors.ErrCatalogNotFound
	}
	return nil
}

func (c *PGCatalog) Exists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := c.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM dataset_docs WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("catalog exists %s: %w", id, err)
	}
	return exists, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDoc(row rowScanner) (DatasetDoc, error) {
	var (
		doc       DatasetDoc
		payload   []byte
		createdAt time.Time
	)
	if err := row.Scan(&doc.ID, &doc.Schema, &doc.ProductName, &doc.CRS, &doc.URI, &payload, &createdAt); err != nil {
		return DatasetDoc{}, err
	}
	doc.CreatedAt = createdAt

	var p docPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return DatasetDoc{}, fmt.Errorf("unmarshal doc payload: %w", err)
	}
	doc.Grids = p.Grids
	doc.Measurements = p.Measurements
	doc.Properties = p.Properties
	return doc, nil
}
