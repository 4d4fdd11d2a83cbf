// Package collector turns a live PostgreSQL connection into structured,
// versioned observations for a downstream tuning pipeline.
package collector

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	cerrors "github.com/ovoronin/pgobserve/internal/errors"
	models "github.com/ovoronin/pgobserve/internal/model"
)

// Queryer executes fully rendered statements against the catalog and
// statistics views. Implementations wrap any execution failure into a
// *errors.QueryError carrying the statement text; callers never receive
// partial rows on failure.
type Queryer interface {
	// Execute runs query and fetches the full result: rows as ordered
	// tuples in column order, plus the ordered column names.
	Execute(ctx context.Context, query string) (rows [][]any, columns []string, err error)

	// ExecuteNoFetch runs a statement whose result is discarded, such as a
	// statistics reset.
	ExecuteNoFetch(ctx context.Context, query string) error
}

// CatalogQuery is the database/sql-backed Queryer used against a live
// server. The connection is owned by the caller; the query layer never
// closes it.
type CatalogQuery struct {
	db *sql.DB
}

// NewCatalogQuery wraps an already established connection.
func NewCatalogQuery(db *sql.DB) *CatalogQuery {
	return &CatalogQuery{db: db}
}

func (q *CatalogQuery) Execute(ctx context.Context, query string) ([][]any, []string, error) {
	res, err := q.db.QueryContext(ctx, query)
	if err != nil {
		return nil, nil, cerrors.NewQueryError(query, err)
	}
	defer res.Close()

	columns, err := res.Columns()
	if err != nil {
		return nil, nil, cerrors.NewQueryError(query, err)
	}

	var rows [][]any
	for res.Next() {
		row := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range row {
			ptrs[i] = &row[i]
		}
		if err := res.Scan(ptrs...); err != nil {
			return nil, nil, cerrors.NewQueryError(query, err)
		}
		rows = append(rows, row)
	}
	if err := res.Err(); err != nil {
		return nil, nil, cerrors.NewQueryError(query, err)
	}
	return rows, columns, nil
}

func (q *CatalogQuery) ExecuteNoFetch(ctx context.Context, query string) error {
	if _, err := q.db.ExecContext(ctx, query); err != nil {
		return cerrors.NewQueryError(query, err)
	}
	return nil
}

// queryFields maps each result row to a field mapping keyed by column name.
// Nulls are dropped from the mapping entirely, timestamps become ISO-8601
// strings, fixed-point decimals become floats, and text has whitespace runs
// collapsed to single spaces.
func queryFields(ctx context.Context, q Queryer, query string) ([]*models.Fields, error) {
	rows, columns, err := q.Execute(ctx, query)
	if err != nil {
		return nil, err
	}

	fields := make([]*models.Fields, 0, len(rows))
	for _, row := range rows {
		f := models.NewFields()
		for i, raw := range row {
			v, ok := normalizeValue(raw)
			if !ok {
				continue
			}
			f.Set(columns[i], v)
		}
		fields = append(fields, f)
	}
	return fields, nil
}

// normalizeValue converts a driver value into a portable scalar. The second
// return value is false for SQL nulls, which have no representation in a
// field mapping.
func normalizeValue(raw any) (models.Value, bool) {
	switch v := raw.(type) {
	case nil:
		return models.Value{}, false
	case int64:
		return models.Int(v), true
	case float64:
		return models.Float(v), true
	case bool:
		return models.Text(strconv.FormatBool(v)), true
	case time.Time:
		return models.Text(v.Format(time.RFC3339Nano)), true
	case string:
		return models.Text(normalizeText(v)), true
	case []byte:
		// numeric columns reach database/sql as decimal text
		if f, err := strconv.ParseFloat(string(v), 64); err == nil {
			return models.Float(f), true
		}
		return models.Text(normalizeText(string(v))), true
	default:
		return models.Text(normalizeText(fmt.Sprint(v))), true
	}
}

// normalizeText strips tabs and newlines and collapses internal whitespace
// runs to single spaces.
func normalizeText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
