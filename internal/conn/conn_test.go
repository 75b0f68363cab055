package conn

import (
	"context"
	"errors"
	"reflect"
	"sync/atomic"
	"testing"

	"github.com/alfredjeanlab/sgcache/internal/config"
	"github.com/alfredjeanlab/sgcache/internal/entity"
)

func shot(id int64, code string) entity.Record {
	return entity.NewRecord("Shot", id, map[string]entity.Value{"code": entity.String(code)})
}

func newShots(t *testing.T) *Memory {
	t.Helper()
	m := NewMemory()
	if err := m.SetEntities("Shot", []entity.Record{shot(1, "sh010"), shot(3, "sh030")}); err != nil {
		t.Fatalf("SetEntities: %v", err)
	}
	m.SetEntitySchema("Shot", entity.Schema{"code": {DataType: "text"}})
	return m
}

// recorder wraps a Memory and remembers the last call it received.
type recorder struct {
	*Memory
	method  string
	typ     string
	id      int64
	filters entity.Filters
	fields  []string
	limit   int
}

func (r *recorder) Find(ctx context.Context, entityType string, filters entity.Filters, fields []string, limit int) ([]entity.Record, error) {
	r.method, r.typ, r.filters, r.fields, r.limit = "Find", entityType, filters, fields, limit
	return r.Memory.Find(ctx, entityType, filters, fields, limit)
}

func (r *recorder) Update(ctx context.Context, entityType string, id int64, data entity.Record) (entity.Record, error) {
	r.method, r.typ, r.id = "Update", entityType, id
	return r.Memory.Update(ctx, entityType, id, data)
}

func TestNewForwarder_NilResolver(t *testing.T) {
	if _, err := NewForwarder(nil); !errors.Is(err, ErrNoDelegate) {
		t.Fatalf("NewForwarder(nil) error = %v, want ErrNoDelegate", err)
	}
}

func TestForwarder_PassesCallsThrough(t *testing.T) {
	rec := &recorder{Memory: newShots(t)}
	f, err := NewForwarder(Static(rec))
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	filters := entity.Where(entity.Is("code", entity.String("sh030")))
	got, err := f.Find(ctx, "Shot", filters, []string{"code"}, 5)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if rec.method != "Find" || rec.typ != "Shot" || rec.limit != 5 || len(rec.fields) != 1 || len(rec.filters.Conditions) != 1 {
		t.Errorf("delegate saw %+v", rec)
	}
	if len(got) != 1 || got[0].ID() != 3 {
		t.Errorf("Find = %v", got)
	}

	if _, err := f.Update(ctx, "Shot", 3, entity.Record{"code": entity.String("x")}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if rec.method != "Update" || rec.id != 3 {
		t.Errorf("delegate saw %+v", rec)
	}

	info, err := f.ServerInfo(ctx)
	if err != nil || info.Backend != "memory" {
		t.Errorf("ServerInfo = %+v, %v", info, err)
	}
}

func TestForwarder_ResolverError(t *testing.T) {
	boom := errors.New("boom")
	f, _ := NewForwarder(ResolverFunc(func(context.Context) (Connection, error) { return nil, boom }))
	if _, err := f.SchemaRead(context.Background()); !errors.Is(err, boom) {
		t.Errorf("SchemaRead error = %v, want boom", err)
	}
}

func TestReadOnly_RejectsWrites(t *testing.T) {
	mem := newShots(t)
	ro := NewReadOnly(mem)
	ctx := context.Background()

	for _, tc := range []struct {
		method string
		call   func() error
	}{
		{"Create", func() error { _, err := ro.Create(ctx, "Shot", shot(0, "new")); return err }},
		{"Update", func() error { _, err := ro.Update(ctx, "Shot", 1, shot(1, "x")); return err }},
		{"Delete", func() error { _, err := ro.Delete(ctx, "Shot", 1); return err }},
		{"Batch", func() error {
			_, err := ro.Batch(ctx, []entity.BatchRequest{{RequestType: "delete", EntityType: "Shot", EntityID: 1}})
			return err
		}},
		{"UploadThumbnail", func() error { _, err := ro.UploadThumbnail(ctx, "Shot", 1, "thumb.png"); return err }},
	} {
		t.Run(tc.method, func(t *testing.T) {
			err := tc.call()
			var wnp *entity.WriteNotPermittedError
			if !errors.As(err, &wnp) {
				t.Fatalf("expected *WriteNotPermittedError, got %v", err)
			}
			if wnp.Method != tc.method {
				t.Errorf("Method = %q, want %q", wnp.Method, tc.method)
			}
			if !IsMutating(tc.method) {
				t.Errorf("%s missing from MutatingMethods", tc.method)
			}
		})
	}

	if got := mem.DB()["Shot"]; !entity.EqualRecords(got, []entity.Record{shot(1, "sh010"), shot(3, "sh030")}) {
		t.Errorf("store changed behind read-only wrapper: %v", got)
	}

	// Reads use the wrapped store.
	rec, err := ro.FindOne(ctx, "Shot", entity.Where(entity.Is("id", entity.Int(1))), []string{"code"})
	if err != nil || rec["code"].AsString() != "sh010" {
		t.Errorf("FindOne = %v, %v", rec, err)
	}
}

// Every Connection method is rejected by ReadOnly exactly when it is listed
// in MutatingMethods.
func TestReadOnly_MatchesMutatingMethods(t *testing.T) {
	ro := reflect.ValueOf(NewReadOnly(newShots(t)))
	contract := reflect.TypeOf((*Connection)(nil)).Elem()

	rejected := 0
	for i := 0; i < contract.NumMethod(); i++ {
		name := contract.Method(i).Name
		m := ro.MethodByName(name)
		args := make([]reflect.Value, m.Type().NumIn())
		args[0] = reflect.ValueOf(context.Background())
		for j := 1; j < len(args); j++ {
			args[j] = reflect.Zero(m.Type().In(j))
		}
		out := m.Call(args)
		err, _ := out[len(out)-1].Interface().(error)

		var wnp *entity.WriteNotPermittedError
		denied := errors.As(err, &wnp)
		if denied != IsMutating(name) {
			t.Errorf("%s: rejected = %v, listed in MutatingMethods = %v", name, denied, IsMutating(name))
		}
		if denied {
			rejected++
		}
	}
	if rejected != len(MutatingMethods) {
		t.Errorf("ReadOnly rejects %d methods, MutatingMethods lists %d", rejected, len(MutatingMethods))
	}
}

func TestRemote_InvalidSettingsFailEveryCall(t *testing.T) {
	var dials int32
	r := NewRemote(config.Connection{}, WithDial(func(config.Connection) (Connection, error) {
		atomic.AddInt32(&dials, 1)
		return NewMemory(), nil
	}))
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		_, err := r.Find(ctx, "Shot", entity.Filters{}, nil, 0)
		var ve *config.ValidationError
		if !errors.As(err, &ve) {
			t.Fatalf("call %d: expected *config.ValidationError, got %v", i, err)
		}
	}
	if dials != 0 {
		t.Errorf("dialed %d times with invalid settings", dials)
	}
}

func TestRemote_DialsOnce(t *testing.T) {
	var dials int32
	mem := newShots(t)
	settings := config.Connection{Host: "https://studio.example.com", APIScript: "cache", APIKey: "k"}
	r := NewRemote(settings, WithDial(func(s config.Connection) (Connection, error) {
		atomic.AddInt32(&dials, 1)
		if s != settings {
			t.Errorf("dial got %+v", s)
		}
		return mem, nil
	}))
	if dials != 0 {
		t.Fatal("NewRemote dialed eagerly")
	}
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := r.FindOne(ctx, "Shot", entity.Filters{}, nil); err != nil {
			t.Fatalf("FindOne: %v", err)
		}
	}
	if dials != 1 {
		t.Errorf("dialed %d times, want 1", dials)
	}
}

func TestRemote_WithConnection(t *testing.T) {
	mem := newShots(t)
	r := NewRemote(config.Connection{}, WithConnection(mem))
	s, err := r.SchemaFieldRead(context.Background(), "Shot", "code")
	if err != nil {
		t.Fatalf("SchemaFieldRead: %v", err)
	}
	if s["code"].DataType != "text" {
		t.Errorf("schema = %+v", s)
	}
}

func TestFetcherFor(t *testing.T) {
	mem := newShots(t)
	fetch := FetcherFor(mem, func(string) ([]string, error) { return []string{"code"}, nil })
	records, err := fetch(context.Background(), "Shot")
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 2 || records[1]["code"].AsString() != "sh030" {
		t.Errorf("fetched %v", records)
	}
}
