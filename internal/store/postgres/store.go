// Package postgres implements the remote storage variant: decision metadata
// rows in PostgreSQL, with the full text optionally offloaded to a blob
// store.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/adaletdata/uploader/internal/uploader"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// BlobStore uploads full decision texts and returns a URI for the row, and
// fetches them back by that URI for lazy reads.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
	GetObject(ctx context.Context, uri string) ([]byte, error)
}

// Config controls the Postgres connection pool and row layout.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	// BlobPrefix is the object path prefix used when a blob store is wired.
	BlobPrefix string
}

type pgxPool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// Store persists decision records into Postgres.
type Store struct {
	pool       pgxPool
	blobs      BlobStore
	table      string
	blobPrefix string
	logger     *zap.Logger
}

// New connects a pool, verifies it with a ping, and ensures the schema
// exists. blobs may be nil, in which case rows carry no full-text URI.
func New(ctx context.Context, cfg Config, blobs BlobStore, logger *zap.Logger) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	store, err := newStore(nil, blobs, cfg, logger)
	if err != nil {
		return nil, err
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	store.pool = pool

	if err := store.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

// NewWithPool constructs a store from an existing pool (primarily for
// testing). Schema initialization is skipped.
func NewWithPool(pool pgxPool, blobs BlobStore, cfg Config, logger *zap.Logger) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	store, err := newStore(pool, blobs, cfg, logger)
	if err != nil {
		return nil, err
	}
	return store, nil
}

func newStore(pool pgxPool, blobs BlobStore, cfg Config, logger *zap.Logger) (*Store, error) {
	table := cfg.Table
	if table == "" {
		table = "decisions"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	prefix := strings.Trim(cfg.BlobPrefix, "/")
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		pool:       pool,
		blobs:      blobs,
		table:      table,
		blobPrefix: prefix,
		logger:     logger,
	}, nil
}

// ensureSchema creates the decisions table and its search indexes when they
// are missing. The id column is TEXT because identities may be content
// digests rather than upstream numeric ids.
func (s *Store) ensureSchema(ctx context.Context) error {
	ddl := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %[1]s (
	id TEXT PRIMARY KEY,
	daire TEXT,
	esas_no TEXT,
	karar_no TEXT,
	karar_tarihi DATE,
	ozet TEXT,
	aranan_kelime TEXT,
	full_text_url TEXT,
	fetched_at TIMESTAMPTZ NOT NULL,
	created_at TIMESTAMPTZ DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_%[1]s_daire ON %[1]s(daire);
CREATE INDEX IF NOT EXISTS idx_%[1]s_esas_no ON %[1]s(esas_no);
CREATE INDEX IF NOT EXISTS idx_%[1]s_karar_no ON %[1]s(karar_no);
`, s.table)
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("initialize schema: %w", err)
	}
	return nil
}

// Exists reports whether a row with this identity is already indexed.
func (s *Store) Exists(ctx context.Context, identity string) (bool, error) {
	query := fmt.Sprintf("SELECT EXISTS (SELECT 1 FROM %s WHERE id = $1)", s.table)
	var exists bool
	if err := s.pool.QueryRow(ctx, query, identity).Scan(&exists); err != nil {
		return false, classify(err)
	}
	return exists, nil
}

// Put uploads the full text (when a blob store is wired) and inserts the
// metadata row. A duplicate identity surfaces as a constraint violation.
func (s *Store) Put(ctx context.Context, record uploader.Record) error {
	fullTextURL, err := s.uploadFullText(ctx, record)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`
INSERT INTO %s (
	id,
	daire,
	esas_no,
	karar_no,
	karar_tarihi,
	ozet,
	aranan_kelime,
	full_text_url,
	fetched_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9
)`, s.table)

	args := []any{
		record.Identity,
		record.Decision.Daire,
		record.Decision.EsasNo,
		record.Decision.KararNo,
		nullableDate(record.Decision.KararTarihi),
		record.Decision.Ozet,
		record.Decision.ArananKelime,
		fullTextURL,
		record.FetchedAt,
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return classify(err)
	}
	return nil
}

const readColumns = "id, daire, esas_no, karar_no, karar_tarihi, ozet, aranan_kelime, full_text_url, fetched_at"

// Get loads one record by identity. When the row carries a full-text URI and
// a blob store is wired, the decision body is fetched from blob storage.
func (s *Store) Get(ctx context.Context, identity string) (uploader.Record, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE id = $1", readColumns, s.table)
	rec, fullTextURL, err := scanRecord(s.pool.QueryRow(ctx, query, identity))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uploader.Record{}, fmt.Errorf("%w: %s", uploader.ErrNotFound, identity)
		}
		return uploader.Record{}, classify(err)
	}

	if fullTextURL != "" && s.blobs != nil {
		data, err := s.blobs.GetObject(ctx, fullTextURL)
		if err != nil {
			return uploader.Record{}, fmt.Errorf("%w: fetch full text for %s: %v", uploader.ErrConnection, identity, err)
		}
		var stored uploader.Decision
		if err := json.Unmarshal(data, &stored); err != nil {
			return uploader.Record{}, fmt.Errorf("decode full text document for %s: %w", identity, err)
		}
		rec.Decision.IcerikHam = stored.IcerikHam
	}
	return rec, nil
}

// Search returns index metadata for the rows matching the filter. Full texts
// are not loaded; Get retrieves them lazily per record.
func (s *Store) Search(ctx context.Context, filter uploader.Filter) ([]uploader.Record, error) {
	var (
		clauses []string
		args    []any
	)
	if filter.Daire != "" {
		args = append(args, "%"+filter.Daire+"%")
		clauses = append(clauses, fmt.Sprintf("daire ILIKE $%d", len(args)))
	}
	if filter.EsasNo != "" {
		args = append(args, filter.EsasNo)
		clauses = append(clauses, fmt.Sprintf("esas_no = $%d", len(args)))
	}
	if filter.KararNo != "" {
		args = append(args, filter.KararNo)
		clauses = append(clauses, fmt.Sprintf("karar_no = $%d", len(args)))
	}
	if filter.Keyword != "" {
		args = append(args, "%"+filter.Keyword+"%")
		clauses = append(clauses, fmt.Sprintf("ozet ILIKE $%d", len(args)))
	}
	if filter.Year != "" {
		args = append(args, filter.Year+"-01-01", filter.Year+"-12-31")
		clauses = append(clauses, fmt.Sprintf("karar_tarihi BETWEEN $%d AND $%d", len(args)-1, len(args)))
	}

	query := fmt.Sprintf("SELECT %s FROM %s", readColumns, s.table)
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY id LIMIT $%d", len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var results []uploader.Record
	for rows.Next() {
		rec, _, err := scanRecord(rows)
		if err != nil {
			return nil, classify(err)
		}
		results = append(results, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return results, nil
}

// scanRecord reads one row of readColumns into a Record, returning the
// full-text URI alongside since the Record itself does not carry it.
func scanRecord(row pgx.Row) (uploader.Record, string, error) {
	var (
		rec         uploader.Record
		kararTarihi *time.Time
		fullTextURL string
	)
	err := row.Scan(
		&rec.Identity,
		&rec.Decision.Daire,
		&rec.Decision.EsasNo,
		&rec.Decision.KararNo,
		&kararTarihi,
		&rec.Decision.Ozet,
		&rec.Decision.ArananKelime,
		&fullTextURL,
		&rec.FetchedAt,
	)
	if err != nil {
		return uploader.Record{}, "", err
	}
	rec.Decision.ID = rec.Identity
	if kararTarihi != nil {
		rec.Decision.KararTarihi = kararTarihi.Format("2006-01-02")
	}
	return rec, fullTextURL, nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *Store) uploadFullText(ctx context.Context, record uploader.Record) (string, error) {
	if s.blobs == nil {
		return "", nil
	}
	doc, err := json.Marshal(record.Decision)
	if err != nil {
		return "", fmt.Errorf("%w: marshal decision %s: %v", uploader.ErrPermanentWrite, record.Identity, err)
	}
	path := record.Identity + ".json"
	if s.blobPrefix != "" {
		path = s.blobPrefix + "/" + path
	}
	uri, err := s.blobs.PutObject(ctx, path, "application/json", strings.NewReader(string(doc)))
	if err != nil {
		// Blob uploads fail on network trouble; treat as transient.
		return "", fmt.Errorf("%w: upload full text for %s: %v", uploader.ErrConnection, record.Identity, err)
	}
	return uri, nil
}

// nullableDate keeps empty dates out of the DATE column.
func nullableDate(date string) any {
	if date == "" {
		return nil
	}
	return date
}

// classify maps driver errors onto the pipeline's failure taxonomy.
// Unique-key conflicts are duplicates; connection-class SQLSTATEs and
// transport errors are transient; everything else is a permanent write
// failure for that record.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == "23505":
			return fmt.Errorf("%w: %s", uploader.ErrConstraintViolation, pgErr.Message)
		case strings.HasPrefix(pgErr.Code, "08"), // connection exception class
			pgErr.Code == "53300", // too many connections
			pgErr.Code == "57P01": // admin shutdown
			return fmt.Errorf("%w: %s", uploader.ErrConnection, pgErr.Message)
		default:
			return fmt.Errorf("%w: %s (SQLSTATE %s)", uploader.ErrPermanentWrite, pgErr.Message, pgErr.Code)
		}
	}
	// Non-SQLSTATE errors from the driver are transport-level.
	return fmt.Errorf("%w: %v", uploader.ErrConnection, err)
}
