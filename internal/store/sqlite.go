package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/fastsearch/fastsearch/internal/fserr"
)

// querier abstracts *sql.DB and *sql.Tx so write helpers can run either
// standalone or inside a caller-managed transaction.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// sqliteStore is the SQLite-backed Store implementation shared by both
// build variants; only the driver name differs.
type sqliteStore struct {
	db        *sql.DB
	dimension int
	path      string
}

const dimensionMetaKey = "dimension"

// Open opens or creates a store at path, locking it to dimension on first
// creation. Opening an existing store with a different dimension fails
// with fserr.DimensionMismatch.
func Open(path string, dimension int) (Store, error) {
	if dimension <= 0 {
		return nil, fserr.Newf(fserr.InvalidArgument, "store: dimension must be positive, got %d", dimension)
	}

	db, err := sql.Open(DriverName, path+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	ctx := context.Background()
	if _, err := db.ExecContext(ctx, `PRAGMA journal_mode=WAL`); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: set WAL mode: %w", err)
	}
	if _, err := db.ExecContext(ctx, `PRAGMA foreign_keys=ON`); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: enable foreign keys: %w", err)
	}

	if err := ApplyMigrations(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	locked, err := lockDimension(ctx, db, dimension)
	if err != nil {
		db.Close()
		return nil, err
	}

	return &sqliteStore{db: db, dimension: locked, path: path}, nil
}

func lockDimension(ctx context.Context, db *sql.DB, want int) (int, error) {
	row := db.QueryRowContext(ctx, `SELECT value FROM store_meta WHERE key = ?`, dimensionMetaKey)
	var raw string
	err := row.Scan(&raw)
	switch {
	case err == sql.ErrNoRows:
		if _, err := db.ExecContext(ctx, `INSERT INTO store_meta(key, value) VALUES (?, ?)`, dimensionMetaKey, strconv.Itoa(want)); err != nil {
			return 0, fmt.Errorf("store: record dimension: %w", err)
		}
		return want, nil
	case err != nil:
		return 0, fmt.Errorf("store: read dimension: %w", err)
	}

	existing, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("store: parse stored dimension %q: %w", raw, err)
	}
	if existing != want {
		return 0, fserr.Newf(fserr.DimensionMismatch, "store: opened with dimension %d but was created with %d", want, existing)
	}
	return existing, nil
}

func (s *sqliteStore) Dimension() int { return s.dimension }

func (s *sqliteStore) Close() error { return s.db.Close() }

func (s *sqliteStore) Insert(ctx context.Context, item InsertItem) (int64, error) {
	if err := s.validateItem(item); err != nil {
		return 0, err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("store: begin insert: %w", err)
	}
	id, err := insertWithQuerier(ctx, tx, item)
	if err != nil {
		tx.Rollback()
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("store: commit insert: %w", err)
	}
	return id, nil
}

func (s *sqliteStore) InsertBatch(ctx context.Context, items []InsertItem) ([]int64, error) {
	for _, item := range items {
		if err := s.validateItem(item); err != nil {
			return nil, err
		}
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("store: begin insert batch: %w", err)
	}
	ids := make([]int64, 0, len(items))
	for _, item := range items {
		id, err := insertWithQuerier(ctx, tx, item)
		if err != nil {
			tx.Rollback()
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("store: commit insert batch: %w", err)
	}
	return ids, nil
}

func (s *sqliteStore) validateItem(item InsertItem) error {
	if len(item.Embedding) != s.dimension {
		return fserr.Newf(fserr.DimensionMismatch, "store: embedding has %d dims, store expects %d", len(item.Embedding), s.dimension)
	}
	if strings.TrimSpace(item.Content) == "" {
		return fserr.New(fserr.InvalidArgument, "store: content must not be empty")
	}
	if item.Source == "" {
		return fserr.New(fserr.InvalidArgument, "store: source must not be empty")
	}
	return nil
}

func insertWithQuerier(ctx context.Context, q querier, item InsertItem) (int64, error) {
	metaJSON, err := marshalMetadata(item.Metadata)
	if err != nil {
		return 0, err
	}

	res, err := q.ExecContext(ctx,
		`INSERT INTO chunks(source, chunk_index, content, metadata) VALUES (?, ?, ?, ?)`,
		item.Source, item.ChunkIndex, item.Content, metaJSON,
	)
	if err != nil {
		return 0, fmt.Errorf("store: insert chunk: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("store: read inserted id: %w", err)
	}

	blob, err := serializeVector(item.Embedding)
	if err != nil {
		return 0, err
	}
	if _, err := q.ExecContext(ctx, `INSERT INTO chunks_vec(id, embedding) VALUES (?, ?)`, id, blob); err != nil {
		return 0, fmt.Errorf("store: insert embedding: %w", err)
	}
	return id, nil
}

func marshalMetadata(m map[string]string) (string, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("store: marshal metadata: %w", err)
	}
	return string(b), nil
}

func unmarshalMetadata(raw string) map[string]string {
	if raw == "" {
		return nil
	}
	var m map[string]string
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil
	}
	return m
}

func (s *sqliteStore) DeleteSource(ctx context.Context, sourceOrSuffix string, exact bool) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("store: begin delete: %w", err)
	}
	defer tx.Rollback()

	ids, err := resolveSourceIDs(ctx, tx, sourceOrSuffix, exact)
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}
	if err := deleteByIDs(ctx, tx, ids); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("store: commit delete: %w", err)
	}
	return len(ids), nil
}

// resolveSourceIDs returns every chunk id belonging to the matched source.
// With exact=false, a suffix that matches chunks under more than one
// distinct source is rejected as ambiguous and nothing is deleted.
func resolveSourceIDs(ctx context.Context, q querier, sourceOrSuffix string, exact bool) ([]int64, error) {
	var rows *sql.Rows
	var err error
	if exact {
		rows, err = q.QueryContext(ctx, `SELECT id, source FROM chunks WHERE source = ?`, sourceOrSuffix)
	} else {
		rows, err = q.QueryContext(ctx, `SELECT id, source FROM chunks WHERE source LIKE '%' || ?`, sourceOrSuffix)
	}
	if err != nil {
		return nil, fmt.Errorf("store: query source: %w", err)
	}
	defer rows.Close()

	var ids []int64
	sources := map[string]bool{}
	for rows.Next() {
		var id int64
		var src string
		if err := rows.Scan(&id, &src); err != nil {
			return nil, fmt.Errorf("store: scan source row: %w", err)
		}
		if !exact && !strings.HasSuffix(src, sourceOrSuffix) {
			continue
		}
		ids = append(ids, id)
		sources[src] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate source rows: %w", err)
	}

	if !exact && len(sources) > 1 {
		matched := make([]string, 0, len(sources))
		for src := range sources {
			matched = append(matched, src)
		}
		return nil, fserr.Newf(fserr.AmbiguousSource, "store: suffix %q matches %d distinct sources", sourceOrSuffix, len(sources)).
			WithData(map[string]any{"sources": matched})
	}
	return ids, nil
}

func deleteByIDs(ctx context.Context, q querier, ids []int64) error {
	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}
	query := fmt.Sprintf(`DELETE FROM chunks WHERE id IN (%s)`, strings.Join(placeholders, ","))
	if _, err := q.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("store: delete chunks: %w", err)
	}
	return nil
}

func (s *sqliteStore) ReindexSource(ctx context.Context, source string, items []InsertItem) ([]int64, error) {
	for _, item := range items {
		item.Source = source
		if err := s.validateItem(item); err != nil {
			return nil, err
		}
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("store: begin reindex: %w", err)
	}
	defer tx.Rollback()

	ids, err := resolveSourceIDs(ctx, tx, source, true)
	if err != nil {
		return nil, err
	}
	if len(ids) > 0 {
		if err := deleteByIDs(ctx, tx, ids); err != nil {
			return nil, err
		}
	}

	newIDs := make([]int64, 0, len(items))
	for _, item := range items {
		item.Source = source
		id, err := insertWithQuerier(ctx, tx, item)
		if err != nil {
			return nil, err
		}
		newIDs = append(newIDs, id)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("store: commit reindex: %w", err)
	}
	return newIDs, nil
}

func (s *sqliteStore) GetChunks(ctx context.Context, ids []int64) (map[int64]Chunk, error) {
	result := make(map[int64]Chunk, len(ids))
	if len(ids) == 0 {
		return result, nil
	}
	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}
	query := fmt.Sprintf(
		`SELECT id, source, chunk_index, content, metadata, created_at FROM chunks WHERE id IN (%s)`,
		strings.Join(placeholders, ","),
	)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: get chunks: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var c Chunk
		var metaRaw string
		if err := rows.Scan(&c.ID, &c.Source, &c.ChunkIndex, &c.Content, &metaRaw, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scan chunk: %w", err)
		}
		c.Metadata = unmarshalMetadata(metaRaw)
		result[c.ID] = c
	}
	return result, rows.Err()
}

func (s *sqliteStore) Stats(ctx context.Context) (Stats, error) {
	var stats Stats

	row := s.db.QueryRowContext(ctx, `SELECT COUNT(*), COUNT(DISTINCT source) FROM chunks`)
	if err := row.Scan(&stats.ChunkCount, &stats.SourceCount); err != nil {
		return Stats{}, fmt.Errorf("store: count chunks: %w", err)
	}

	var pageCount, pageSize int64
	if err := s.db.QueryRowContext(ctx, `PRAGMA page_count`).Scan(&pageCount); err != nil {
		return Stats{}, fmt.Errorf("store: page_count: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, `PRAGMA page_size`).Scan(&pageSize); err != nil {
		return Stats{}, fmt.Errorf("store: page_size: %w", err)
	}
	stats.Bytes = pageCount * pageSize

	rows, err := s.db.QueryContext(ctx,
		`SELECT source, COUNT(*) as n FROM chunks GROUP BY source ORDER BY n DESC LIMIT 10`)
	if err != nil {
		return Stats{}, fmt.Errorf("store: top sources: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var sc SourceCount
		if err := rows.Scan(&sc.Source, &sc.Chunks); err != nil {
			return Stats{}, fmt.Errorf("store: scan top source: %w", err)
		}
		stats.TopSources = append(stats.TopSources, sc)
	}
	return stats, rows.Err()
}
