package mirror

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/alfredjeanlab/sgcache/internal/entity"
)

// executor is the interface satisfied by both *sql.DB and *sql.Tx.
type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// dataColumns returns the schema fields stored as columns, sorted. "id" and
// "type" are implicit.
func dataColumns(s entity.Schema) []string {
	var cols []string
	for _, name := range s.FieldNames() {
		if name != "id" && name != "type" {
			cols = append(cols, name)
		}
	}
	return cols
}

func queryMirrorExists(ctx context.Context, db executor) (bool, error) {
	var exists bool
	err := db.QueryRowContext(ctx, `SELECT to_regclass('mirror_types') IS NOT NULL`).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check for mirror tables: %w", err)
	}
	return exists, nil
}

func queryCreateTypeTable(ctx context.Context, db executor, d dialect, typeName string, columns []string) error {
	var b strings.Builder
	b.WriteString("CREATE TABLE " + quoteIdent(typeName) + " (" + quoteIdent("id") + " " + d.idType + " PRIMARY KEY")
	for _, col := range columns {
		b.WriteString(", " + quoteIdent(col) + " TEXT")
	}
	b.WriteString(")")
	if _, err := db.ExecContext(ctx, b.String()); err != nil {
		return fmt.Errorf("create table %s: %w", typeName, err)
	}
	return nil
}

func queryInsertTypeMeta(ctx context.Context, db executor, d dialect, typeName string, s entity.Schema, now time.Time) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO mirror_types (type_name, created_at) VALUES (`+d.placeholder(1)+`, `+d.placeholder(2)+`)`,
		typeName, now.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("record type %s: %w", typeName, err)
	}

	insert := `INSERT INTO mirror_fields (type_name, field_name, data_type, mandatory, properties) VALUES (` +
		d.placeholder(1) + `, ` + d.placeholder(2) + `, ` + d.placeholder(3) + `, ` + d.placeholder(4) + `, ` + d.placeholder(5) + `)`
	for _, field := range s.FieldNames() {
		fs := s[field]
		var props any
		if len(fs.Properties) > 0 {
			if props, err = encodeColumn(entity.Object(fs.Properties)); err != nil {
				return fmt.Errorf("encode properties of %s.%s: %w", typeName, field, err)
			}
		}
		if _, err := db.ExecContext(ctx, insert, typeName, field, fs.DataType, fs.Mandatory, props); err != nil {
			return fmt.Errorf("record field %s.%s: %w", typeName, field, err)
		}
	}
	return nil
}

func queryLoadSchemas(ctx context.Context, db executor) (map[string]entity.Schema, error) {
	out := map[string]entity.Schema{}

	rows, err := db.QueryContext(ctx, `SELECT type_name FROM mirror_types ORDER BY type_name`)
	if err != nil {
		return nil, fmt.Errorf("list mirrored types: %w", err)
	}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return nil, err
		}
		out[name] = entity.Schema{}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	rows, err = db.QueryContext(ctx, `SELECT type_name, field_name, data_type, mandatory, properties FROM mirror_fields ORDER BY type_name, field_name`)
	if err != nil {
		return nil, fmt.Errorf("list mirrored fields: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		typeName, field, fs, err := scanFieldSchema(rows)
		if err != nil {
			return nil, err
		}
		if out[typeName] == nil {
			out[typeName] = entity.Schema{}
		}
		out[typeName][field] = fs
	}
	return out, rows.Err()
}

func queryInsertRecord(ctx context.Context, db executor, d dialect, typeName string, columns []string, rec entity.Record) error {
	names := []string{quoteIdent("id")}
	args := []any{rec.ID()}
	for _, col := range columns {
		v, ok := rec[col]
		if !ok {
			continue
		}
		enc, err := encodeColumn(v)
		if err != nil {
			return fmt.Errorf("encode %s.%s of %d: %w", typeName, col, rec.ID(), err)
		}
		names = append(names, quoteIdent(col))
		args = append(args, enc)
	}
	ph := make([]string, len(args))
	for i := range args {
		ph[i] = d.placeholder(i + 1)
	}
	query := "INSERT INTO " + quoteIdent(typeName) + " (" + strings.Join(names, ", ") + ") VALUES (" + strings.Join(ph, ", ") + ")"
	if _, err := db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert %s %d: %w", typeName, rec.ID(), err)
	}
	return nil
}

func selectList(columns []string) string {
	cols := make([]string, 0, len(columns)+1)
	cols = append(cols, quoteIdent("id"))
	for _, c := range columns {
		cols = append(cols, quoteIdent(c))
	}
	return strings.Join(cols, ", ")
}

func queryFind(ctx context.Context, db executor, typeName string, columns []string, where string, args []any, limit int) ([]entity.Record, error) {
	query := "SELECT " + selectList(columns) + " FROM " + quoteIdent(typeName)
	if where != "" {
		query += " WHERE " + where
	}
	query += " ORDER BY " + quoteIdent("id")
	if limit > 0 {
		query += " LIMIT " + strconv.Itoa(limit)
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", typeName, err)
	}
	defer rows.Close()

	var out []entity.Record
	for rows.Next() {
		rec, err := scanRecord(rows, typeName, columns)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", typeName, err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// queryGetRecord returns nil when no row has the id.
func queryGetRecord(ctx context.Context, db executor, d dialect, typeName string, columns []string, id int64) (entity.Record, error) {
	query := "SELECT " + selectList(columns) + " FROM " + quoteIdent(typeName) + " WHERE " + quoteIdent("id") + " = " + d.placeholder(1)
	rec, err := scanRecord(db.QueryRowContext(ctx, query, id), typeName, columns)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get %s %d: %w", typeName, id, err)
	}
	return rec, nil
}

func queryNextID(ctx context.Context, db executor, typeName string) (int64, error) {
	var maxID int64
	err := db.QueryRowContext(ctx, "SELECT COALESCE(MAX("+quoteIdent("id")+"), 0) FROM "+quoteIdent(typeName)).Scan(&maxID)
	if err != nil {
		return 0, fmt.Errorf("next id of %s: %w", typeName, err)
	}
	return maxID + 1, nil
}

// queryUpdateRecord reports whether a row with the id existed.
func queryUpdateRecord(ctx context.Context, db executor, d dialect, typeName string, id int64, changes entity.Record, columns []string) (bool, error) {
	var (
		sets []string
		args []any
	)
	for _, col := range columns {
		v, ok := changes[col]
		if !ok {
			continue
		}
		enc, err := encodeColumn(v)
		if err != nil {
			return false, fmt.Errorf("encode %s.%s of %d: %w", typeName, col, id, err)
		}
		args = append(args, enc)
		sets = append(sets, quoteIdent(col)+" = "+d.placeholder(len(args)))
	}
	args = append(args, id)
	where := " WHERE " + quoteIdent("id") + " = " + d.placeholder(len(args))

	if len(sets) == 0 {
		var one int
		err := db.QueryRowContext(ctx, "SELECT 1 FROM "+quoteIdent(typeName)+where, id).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return err == nil, err
	}

	res, err := db.ExecContext(ctx, "UPDATE "+quoteIdent(typeName)+" SET "+strings.Join(sets, ", ")+where, args...)
	if err != nil {
		return false, fmt.Errorf("update %s %d: %w", typeName, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update %s %d: %w", typeName, id, err)
	}
	return n > 0, nil
}

func queryDeleteRecord(ctx context.Context, db executor, d dialect, typeName string, id int64) (bool, error) {
	res, err := db.ExecContext(ctx, "DELETE FROM "+quoteIdent(typeName)+" WHERE "+quoteIdent("id")+" = "+d.placeholder(1), id)
	if err != nil {
		return false, fmt.Errorf("delete %s %d: %w", typeName, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete %s %d: %w", typeName, id, err)
	}
	return n > 0, nil
}
