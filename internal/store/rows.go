package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/lib/pq"
	apperrors "github.com/vlikcc/yargisalzeka.V2/pkg/errors"
)

// Row is one relational row keyed by column name. Values are nil, string,
// int64, float64, bool or time.Time.
type Row map[string]any

// TableExists reports whether table (or view) exists.
func (s *Store) TableExists(ctx context.Context, table string) (bool, error) {
	return s.db.TableExists(ctx, table)
}

// CountRows returns the number of rows in table.
func (s *Store) CountRows(ctx context.Context, table string) (int64, error) {
	var n int64
	query := "SELECT COUNT(*) FROM " + pq.QuoteIdentifier(table)
	if err := s.db.DB.QueryRowContext(ctx, query).Scan(&n); err != nil {
		return 0, apperrors.Newf(apperrors.ErrPersistence, "store.count", "%s: %v", table, err)
	}
	return n, nil
}

// StreamRows reads columns of table in id order through a server-side
// cursor and hands them to fn batchSize rows at a time, so memory use is
// bounded by one batch. An error from fn stops the stream and is returned.
func (s *Store) StreamRows(ctx context.Context, table string, columns []string, batchSize int, fn func([]Row) error) error {
	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = pq.QuoteIdentifier(c)
	}
	cursor := pq.QuoteIdentifier("reindex_" + table)
	declare := fmt.Sprintf("DECLARE %s NO SCROLL CURSOR FOR SELECT %s FROM %s ORDER BY id",
		cursor, strings.Join(quoted, ", "), pq.QuoteIdentifier(table))
	fetch := fmt.Sprintf("FETCH FORWARD %d FROM %s", batchSize, cursor)

	return s.db.InTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, declare); err != nil {
			return apperrors.Newf(apperrors.ErrPersistence, "store.stream", "declaring cursor on %s: %v", table, err)
		}
		for {
			batch, err := fetchBatch(ctx, tx, fetch)
			if err != nil {
				return apperrors.Newf(apperrors.ErrPersistence, "store.stream", "fetching from %s: %v", table, err)
			}
			if len(batch) == 0 {
				break
			}
			if err := fn(batch); err != nil {
				return err
			}
			if len(batch) < batchSize {
				break
			}
		}
		_, err := tx.ExecContext(ctx, "CLOSE "+cursor)
		return err
	})
}

func fetchBatch(ctx context.Context, tx *sql.Tx, query string) ([]Row, error) {
	rows, err := tx.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var batch []Row
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(Row, len(cols))
		for i, c := range cols {
			if b, ok := values[i].([]byte); ok {
				row[c] = string(b)
			} else {
				row[c] = values[i]
			}
		}
		batch = append(batch, row)
	}
	return batch, rows.Err()
}
