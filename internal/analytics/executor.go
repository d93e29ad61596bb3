package analytics

import (
	"context"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/datachat/datachat/internal/apperr"
)

// Result is one executed query: column names plus row values. Byte slices
// are converted to strings so results serialize cleanly.
type Result struct {
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

// Executor runs generated SQL against the analytical datasource. The
// datasource account must be SELECT-only: privilege-level rejection of
// DDL/DML is the defense in depth behind the safety filter.
type Executor interface {
	Query(ctx context.Context, sqlText string) (*Result, error)
}

type DB struct {
	gdb *gorm.DB
}

func Connect(dsn string) (*DB, error) {
	gdb, err := gorm.Open(mysql.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}
	return &DB{gdb: gdb}, nil
}

// NewDB wraps an existing gorm connection; used by tests with sqlite.
func NewDB(gdb *gorm.DB) *DB {
	return &DB{gdb: gdb}
}

func (d *DB) Query(ctx context.Context, sqlText string) (*Result, error) {
	rows, err := d.gdb.WithContext(ctx).Raw(sqlText).Rows()
	if err != nil {
		return nil, &apperr.Execution{Err: err}
	}
	// The connection is scoped to this request; release it on every exit
	// path.
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, &apperr.Execution{Err: err}
	}

	result := &Result{Columns: cols}
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, &apperr.Execution{Err: err}
		}
		for i, v := range values {
			if b, ok := v.([]byte); ok {
				values[i] = string(b)
			}
		}
		result.Rows = append(result.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, &apperr.Execution{Err: err}
	}
	return result, nil
}

var _ Executor = (*DB)(nil)
