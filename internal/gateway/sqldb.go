package gateway

import (
	"context"
	"database/sql"
	"sort"
	"strings"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"etl-pipeline-manager/internal/model"
)

// SQLConnector extracts from and loads into SQLite tables.
// Config keys: "path" (database file, required), "table" (required).
type SQLConnector struct{}

// NewSQLConnector returns the SQLite connector
func NewSQLConnector() *SQLConnector { return &SQLConnector{} }

func sqlTarget(ds model.DataSource) (path, table string, err error) {
	path, _ = ds.Config["path"].(string)
	table, _ = ds.Config["table"].(string)
	if path == "" || table == "" {
		return "", "", errors.Errorf("data source %s needs path and table configured", ds.Name)
	}
	if strings.ContainsAny(table, `"';`) {
		return "", "", errors.Errorf("invalid table name %q", table)
	}
	return path, table, nil
}

func (c *SQLConnector) Extract(ctx context.Context, ds model.DataSource) ([]model.Record, error) {
	path, table, err := sqlTarget(ds)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.Wrap(err, "open database")
	}
	defer db.Close()

	query, args, err := sq.Select("*").From(table).ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "build query")
	}
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrapf(err, "query %s", table)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, errors.Wrap(err, "read columns")
	}

	var recs []model.Record
	values := make([]interface{}, len(cols))
	ptrs := make([]interface{}, len(cols))
	for i := range values {
		ptrs[i] = &values[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, errors.Wrap(err, "scan row")
		}
		rec := make(model.Record, len(cols))
		for i, col := range cols {
			if b, ok := values[i].([]byte); ok {
				rec[col] = string(b)
			} else {
				rec[col] = values[i]
			}
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

func (c *SQLConnector) Load(ctx context.Context, ds model.DataSource, recs []model.Record) (int, error) {
	if len(recs) == 0 {
		return 0, nil
	}
	path, table, err := sqlTarget(ds)
	if err != nil {
		return 0, err
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return 0, errors.Wrap(err, "open database")
	}
	defer db.Close()

	cols := columnUnion(recs)
	if err := ensureTable(ctx, db, table, cols); err != nil {
		return 0, err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, errors.Wrap(err, "begin transaction")
	}
	defer tx.Rollback()

	loaded := 0
	for _, rec := range recs {
		vals := make([]interface{}, len(cols))
		for i, col := range cols {
			vals[i] = rec[col]
		}
		query, args, err := sq.Insert(table).Columns(cols...).Values(vals...).ToSql()
		if err != nil {
			return loaded, errors.Wrap(err, "build insert")
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return loaded, errors.Wrapf(err, "insert into %s", table)
		}
		loaded++
	}
	if err := tx.Commit(); err != nil {
		return 0, errors.Wrap(err, "commit")
	}
	return loaded, nil
}

func (c *SQLConnector) TestConnection(ctx context.Context, ds model.DataSource) (model.ConnectionStatus, error) {
	path, _, err := sqlTarget(ds)
	if err != nil {
		return model.ConnectionStatus{}, err
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return model.ConnectionStatus{Success: false, Message: err.Error()}, nil
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		return model.ConnectionStatus{Success: false, Message: err.Error()}, nil
	}
	return model.ConnectionStatus{Success: true, Message: "database reachable"}, nil
}

func columnUnion(recs []model.Record) []string {
	set := map[string]bool{}
	for _, rec := range recs {
		for k := range rec {
			set[k] = true
		}
	}
	cols := make([]string, 0, len(set))
	for k := range set {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	return cols
}

// ensureTable creates the destination table when missing. SQLite's dynamic
// typing makes untyped columns acceptable for loaded records.
func ensureTable(ctx context.Context, db *sql.DB, table string, cols []string) error {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = `"` + strings.ReplaceAll(c, `"`, "") + `"`
	}
	stmt := `CREATE TABLE IF NOT EXISTS "` + table + `" (` + strings.Join(quoted, ", ") + `)`
	_, err := db.ExecContext(ctx, stmt)
	return errors.Wrap(err, "ensure table")
}
