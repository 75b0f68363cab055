package mirror

import (
	"context"
	"database/sql"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/alfredjeanlab/sgcache/internal/entity"
)

func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unfulfilled expectations: %v", err)
		}
		db.Close()
	})
	return db, mock
}

func TestQueryFind(t *testing.T) {
	db, mock := newMockDB(t)
	ctx := context.Background()

	rows := sqlmock.NewRows([]string{"id", "code"}).
		AddRow(int64(1), `"sh010"`).
		AddRow(int64(2), nil)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT "id", "code" FROM "Shot" WHERE ("code" IS NULL OR NOT ("code" = $1)) ORDER BY "id" LIMIT 5`)).
		WithArgs(`"sh020"`).
		WillReturnRows(rows)

	wb := &whereBuilder{d: dialectPostgres, typeName: "Shot", columns: map[string]bool{"code": true}}
	where, err := wb.build(entity.Where(entity.IsNot("code", entity.String("sh020"))))
	if err != nil {
		t.Fatal(err)
	}
	got, err := queryFind(ctx, db, "Shot", []string{"code"}, where, wb.args, 5)
	if err != nil {
		t.Fatalf("queryFind: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d records, want 2", len(got))
	}
	if got[0].Type() != "Shot" || got[0].ID() != 1 || got[0]["code"].AsString() != "sh010" {
		t.Errorf("first record = %s", got[0])
	}
	if !got[1]["code"].IsNull() {
		t.Errorf("NULL column should decode as null, got %s", got[1]["code"])
	}
}

func TestQueryFind_NoWhereNoLimit(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT "id" FROM "Shot" ORDER BY "id"`)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	got, err := queryFind(context.Background(), db, "Shot", nil, "", nil, 0)
	if err != nil {
		t.Fatalf("queryFind: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("got %d records, want none", len(got))
	}
}

func TestQueryInsertRecord_SkipsAbsentFields(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "Shot" ("id", "sg_cut_in") VALUES ($1, $2)`)).
		WithArgs(int64(7), "1001").
		WillReturnResult(sqlmock.NewResult(0, 1))

	rec := entity.NewRecord("Shot", 7, map[string]entity.Value{"sg_cut_in": entity.Int(1001)})
	if err := queryInsertRecord(context.Background(), db, dialectPostgres, "Shot", []string{"code", "sg_cut_in"}, rec); err != nil {
		t.Fatalf("queryInsertRecord: %v", err)
	}
}

func TestQueryUpdateRecord(t *testing.T) {
	t.Run("Updated", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectExec(regexp.QuoteMeta(`UPDATE "Shot" SET "code" = $1 WHERE "id" = $2`)).
			WithArgs(`"sh011"`, int64(1)).
			WillReturnResult(sqlmock.NewResult(0, 1))

		ok, err := queryUpdateRecord(context.Background(), db, dialectPostgres, "Shot", 1,
			entity.Record{"code": entity.String("sh011")}, []string{"code"})
		if err != nil || !ok {
			t.Fatalf("queryUpdateRecord = %v, %v; want true, nil", ok, err)
		}
	})

	t.Run("Missing", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectExec(regexp.QuoteMeta(`UPDATE "Shot" SET "code" = $1 WHERE "id" = $2`)).
			WithArgs(`"sh011"`, int64(9)).
			WillReturnResult(sqlmock.NewResult(0, 0))

		ok, err := queryUpdateRecord(context.Background(), db, dialectPostgres, "Shot", 9,
			entity.Record{"code": entity.String("sh011")}, []string{"code"})
		if err != nil || ok {
			t.Fatalf("queryUpdateRecord = %v, %v; want false, nil", ok, err)
		}
	})

	t.Run("NoChangesChecksExistence", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT 1 FROM "Shot" WHERE "id" = $1`)).
			WithArgs(int64(3)).
			WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))

		ok, err := queryUpdateRecord(context.Background(), db, dialectPostgres, "Shot", 3, entity.Record{}, []string{"code"})
		if err != nil || !ok {
			t.Fatalf("queryUpdateRecord = %v, %v; want true, nil", ok, err)
		}
	})
}

func TestQueryMirrorExists(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT to_regclass('mirror_types') IS NOT NULL`)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	ok, err := queryMirrorExists(context.Background(), db)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("expected no mirror tables")
	}
}

func TestQueryCreateTypeTable(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectExec(regexp.QuoteMeta(`CREATE TABLE "Shot" ("id" BIGINT PRIMARY KEY, "code" TEXT, "sg_cut_in" TEXT)`)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := queryCreateTypeTable(context.Background(), db, dialectPostgres, "Shot", []string{"code", "sg_cut_in"}); err != nil {
		t.Fatal(err)
	}
}
