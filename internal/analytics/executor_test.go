package analytics

import (
	"context"
	"errors"
	"testing"

	gormsqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/datachat/datachat/internal/apperr"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(gormsqlite.Open("file:analytics_test?mode=memory&cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	return db
}

func TestQuery(t *testing.T) {
	gdb := openTestDB(t)
	for _, stmt := range []string{
		"DROP TABLE IF EXISTS restaurants",
		"CREATE TABLE restaurants (name TEXT, city TEXT, rating REAL)",
		"INSERT INTO restaurants VALUES ('Papa Del''s', 'Champaign', 4.5)",
		"INSERT INTO restaurants VALUES ('Black Dog', 'Urbana', 4.8)",
	} {
		if err := gdb.Exec(stmt).Error; err != nil {
			t.Fatalf("setup %q: %v", stmt, err)
		}
	}

	d := NewDB(gdb)
	res, err := d.Query(context.Background(), "SELECT name, rating FROM restaurants ORDER BY rating DESC")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(res.Columns) != 2 || res.Columns[0] != "name" {
		t.Fatalf("unexpected columns: %v", res.Columns)
	}
	if len(res.Rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(res.Rows))
	}
	name, ok := res.Rows[0][0].(string)
	if !ok || name != "Black Dog" {
		t.Fatalf("unexpected first row: %v", res.Rows[0])
	}
}

func TestQuery_ErrorIsExecution(t *testing.T) {
	d := NewDB(openTestDB(t))
	_, err := d.Query(context.Background(), "SELECT * FROM no_such_table")
	var execErr *apperr.Execution
	if !errors.As(err, &execErr) {
		t.Fatalf("expected execution error, got %v", err)
	}
}

func TestLoadSchemaDescription_Default(t *testing.T) {
	schema, err := LoadSchemaDescription("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if schema == "" {
		t.Fatalf("default schema description is empty")
	}
}
