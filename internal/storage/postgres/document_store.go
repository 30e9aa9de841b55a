// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/story-crawler/internal/store"
)

var validIdentifier = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool backing the document store.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pgxPool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Ping(context.Context) error
	Close()
}

// DocumentStore implements store.Store over plain SQL tables. Table and
// column names are validated identifiers; values are always bound.
type DocumentStore struct {
	pool pgxPool
}

var _ store.Store = (*DocumentStore)(nil)

// NewDocumentStore connects a pgx pool using the provided config.
func NewDocumentStore(ctx context.Context, cfg Config) (*DocumentStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("store.dsn is required")
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
	return &DocumentStore{pool: pool}, nil
}

// NewDocumentStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewDocumentStoreWithPool(pool pgxPool) (*DocumentStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &DocumentStore{pool: pool}, nil
}

// Close releases the underlying pool resources.
func (s *DocumentStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Ping checks connectivity.
func (s *DocumentStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// Find selects matching rows.
func (s *DocumentStore) Find(ctx context.Context, table string, filter store.Filter, opts store.FindOptions) ([]store.Row, error) {
	if err := checkIdentifier(table); err != nil {
		return nil, err
	}
	where, args, err := buildWhere(filter, 1)
	if err != nil {
		return nil, err
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "SELECT * FROM %s%s", table, where)
	if opts.OrderBy != "" {
		if err := checkIdentifier(opts.OrderBy); err != nil {
			return nil, err
		}
		dir := "ASC"
		if opts.Desc {
			dir = "DESC"
		}
		fmt.Fprintf(&sb, " ORDER BY %s %s", opts.OrderBy, dir)
	}
	if opts.Limit > 0 {
		fmt.Fprintf(&sb, " LIMIT %d", opts.Limit)
	}

	rows, err := s.pool.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", table, err)
	}
	maps, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, fmt.Errorf("collect %s: %w", table, err)
	}
	return toRows(maps), nil
}

// Insert writes row and returns it as stored, including the generated id.
func (s *DocumentStore) Insert(ctx context.Context, table string, row store.Row) (store.Row, error) {
	if err := checkIdentifier(table); err != nil {
		return nil, err
	}
	cols, args, err := sortedColumns(row)
	if err != nil {
		return nil, err
	}
	var query string
	if len(cols) == 0 {
		query = fmt.Sprintf("INSERT INTO %s DEFAULT VALUES RETURNING *", table)
	} else {
		placeholders := make([]string, len(cols))
		for i := range cols {
			placeholders[i] = fmt.Sprintf("$%d", i+1)
		}
		query = fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING *",
			table, strings.Join(cols, ", "), strings.Join(placeholders, ", "))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("insert %s: %w", table, err)
	}
	stored, err := pgx.CollectExactlyOneRow(rows, pgx.RowToMap)
	if err != nil {
		return nil, fmt.Errorf("insert %s: %w", table, err)
	}
	return store.Row(stored), nil
}

// Update sets columns on matching rows and returns them.
func (s *DocumentStore) Update(ctx context.Context, table string, filter store.Filter, set store.Row) ([]store.Row, error) {
	if err := checkIdentifier(table); err != nil {
		return nil, err
	}
	set = set.Clone()
	delete(set, "id")
	cols, args, err := sortedColumns(set)
	if err != nil {
		return nil, err
	}
	if len(cols) == 0 {
		return s.Find(ctx, table, filter, store.FindOptions{})
	}
	assignments := make([]string, len(cols))
	for i, col := range cols {
		assignments[i] = fmt.Sprintf("%s = $%d", col, i+1)
	}
	where, whereArgs, err := buildWhere(filter, len(args)+1)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf("UPDATE %s SET %s%s RETURNING *", table, strings.Join(assignments, ", "), where)

	rows, err := s.pool.Query(ctx, query, append(args, whereArgs...)...)
	if err != nil {
		return nil, fmt.Errorf("update %s: %w", table, err)
	}
	maps, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, fmt.Errorf("update %s: %w", table, err)
	}
	return toRows(maps), nil
}

// Delete removes matching rows.
func (s *DocumentStore) Delete(ctx context.Context, table string, filter store.Filter) error {
	if err := checkIdentifier(table); err != nil {
		return err
	}
	where, args, err := buildWhere(filter, 1)
	if err != nil {
		return err
	}
	if _, err := s.pool.Exec(ctx, fmt.Sprintf("DELETE FROM %s%s", table, where), args...); err != nil {
		return fmt.Errorf("delete %s: %w", table, err)
	}
	return nil
}

// Count returns the number of matching rows.
func (s *DocumentStore) Count(ctx context.Context, table string, filter store.Filter) (int64, error) {
	if err := checkIdentifier(table); err != nil {
		return 0, err
	}
	where, args, err := buildWhere(filter, 1)
	if err != nil {
		return 0, err
	}
	var n int64
	if err := s.pool.QueryRow(ctx, fmt.Sprintf("SELECT count(*) FROM %s%s", table, where), args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return n, nil
}

// buildWhere renders filter as a WHERE clause with placeholders starting at $start.
func buildWhere(filter store.Filter, start int) (string, []any, error) {
	var (
		parts []string
		args  []any
		next  = start
	)
	render := func(c store.Cond) (string, error) {
		if err := checkIdentifier(c.Field); err != nil {
			return "", err
		}
		var expr string
		switch c.Op {
		case store.OpEq:
			expr = fmt.Sprintf("%s = $%d", c.Field, next)
			args = append(args, c.Value)
		case store.OpNeq:
			expr = fmt.Sprintf("%s <> $%d", c.Field, next)
			args = append(args, c.Value)
		case store.OpEqualFold:
			expr = fmt.Sprintf("lower(%s) = lower($%d)", c.Field, next)
			args = append(args, c.Value)
		case store.OpContainsFold:
			expr = fmt.Sprintf("%s ILIKE $%d", c.Field, next)
			args = append(args, "%"+escapeLike(fmt.Sprint(c.Value))+"%")
		default:
			return "", fmt.Errorf("unsupported operator %q", c.Op)
		}
		next++
		return expr, nil
	}

	for _, c := range filter.All {
		expr, err := render(c)
		if err != nil {
			return "", nil, err
		}
		parts = append(parts, expr)
	}
	if len(filter.Any) > 0 {
		ors := make([]string, 0, len(filter.Any))
		for _, c := range filter.Any {
			expr, err := render(c)
			if err != nil {
				return "", nil, err
			}
			ors = append(ors, expr)
		}
		parts = append(parts, "("+strings.Join(ors, " OR ")+")")
	}
	if len(parts) == 0 {
		return "", nil, nil
	}
	return " WHERE " + strings.Join(parts, " AND "), args, nil
}

func sortedColumns(row store.Row) ([]string, []any, error) {
	cols := make([]string, 0, len(row))
	for col := range row {
		if err := checkIdentifier(col); err != nil {
			return nil, nil, err
		}
		cols = append(cols, col)
	}
	sort.Strings(cols)
	args := make([]any, len(cols))
	for i, col := range cols {
		args[i] = row[col]
	}
	return cols, args, nil
}

func checkIdentifier(name string) error {
	if !validIdentifier.MatchString(name) {
		return fmt.Errorf("invalid identifier %q", name)
	}
	return nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

func toRows(maps []map[string]any) []store.Row {
	out := make([]store.Row, len(maps))
	for i, m := range maps {
		out[i] = store.Row(m)
	}
	return out
}
