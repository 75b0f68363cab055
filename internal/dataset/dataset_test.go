package dataset

import (
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/klauspost/compress/zlib"

	"github.com/alfredjeanlab/sgcache/internal/conn"
	"github.com/alfredjeanlab/sgcache/internal/entity"
	"github.com/alfredjeanlab/sgcache/internal/events"
)

type recordingPublisher struct {
	events []any
}

func (p *recordingPublisher) Publish(ctx context.Context, topic string, event any) error {
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func shots() []entity.Record {
	return []entity.Record{
		entity.NewRecord("Shot", 1, map[string]entity.Value{
			"code":      entity.String("sh010"),
			"sg_cut_in": entity.Int(1001),
			"sg_ratio":  entity.Float(1.5),
			"sg_whole":  entity.Float(2),
			"project":   entity.Object(map[string]entity.Value{"type": entity.String("Project"), "id": entity.Int(1)}),
			"tags":      entity.Array(entity.String("hero"), entity.Null()),
			"sg_done":   entity.Bool(true),
		}),
		entity.NewRecord("Shot", 2, map[string]entity.Value{
			"code":        entity.String("sh020 ünïcode"),
			"description": entity.Null(),
		}),
	}
}

func newTestDataset(t *testing.T, opts ...Option) *Dataset {
	t.Helper()
	return New(t.TempDir(), "ds1", opts...)
}

func TestRecords_Missing(t *testing.T) {
	d := newTestDataset(t)
	if d.Exists() {
		t.Fatal("new dataset should not exist")
	}
	got, err := d.Records(context.Background(), "Shot")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("Records = %v, want empty list", got)
	}
}

func TestSerializeRecords_RoundTripThroughBothCaches(t *testing.T) {
	d := newTestDataset(t)
	ctx := context.Background()
	want := shots()

	if err := d.SerializeRecords("Shot", want); err != nil {
		t.Fatalf("SerializeRecords: %v", err)
	}
	if !d.HasRecords("Shot") || d.HasRecords("Asset") {
		t.Fatal("HasRecords mismatch")
	}
	if _, err := os.Stat(d.fastCachePath("Shot")); !os.IsNotExist(err) {
		t.Fatal("fast cache should not exist before the first read")
	}

	fromJSON, err := d.Records(ctx, "Shot")
	if err != nil {
		t.Fatalf("Records (json): %v", err)
	}
	if !entity.EqualRecords(fromJSON, want) {
		t.Errorf("json records = %v, want %v", fromJSON, want)
	}
	if _, err := os.Stat(d.fastCachePath("Shot")); err != nil {
		t.Fatalf("fast cache not written: %v", err)
	}

	fromFast, err := d.Records(ctx, "Shot")
	if err != nil {
		t.Fatalf("Records (fast): %v", err)
	}
	if !entity.EqualRecords(fromFast, want) {
		t.Errorf("fast records = %v, want %v", fromFast, want)
	}
	if k := fromFast[0]["sg_whole"].Kind(); k != entity.KindFloat {
		t.Errorf("integral float decoded as %s", k)
	}
}

func TestSerializeRecords_Format(t *testing.T) {
	d := newTestDataset(t)
	if err := d.SerializeRecords("Shot", shots()[:1]); err != nil {
		t.Fatal(err)
	}
	f, err := os.Open(d.snapshotPath("Shot"))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	zr, err := zlib.NewReader(f)
	if err != nil {
		t.Fatalf("snapshot is not zlib: %v", err)
	}
	raw, err := io.ReadAll(zr)
	if err != nil {
		t.Fatal(err)
	}
	text := string(raw)
	if !strings.HasPrefix(text, "[\n    {\n        \"code\": \"sh010\",") {
		t.Errorf("unexpected layout:\n%s", text)
	}
}

func TestSerializeRecords_DropsFastCache(t *testing.T) {
	d := newTestDataset(t)
	ctx := context.Background()
	if err := d.SerializeRecords("Shot", shots()); err != nil {
		t.Fatal(err)
	}
	if _, err := d.Records(ctx, "Shot"); err != nil {
		t.Fatal(err)
	}

	replacement := shots()[1:]
	if err := d.SerializeRecords("Shot", replacement); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(d.fastCachePath("Shot")); !os.IsNotExist(err) {
		t.Error("fast cache survived SerializeRecords")
	}
	got, err := d.Records(ctx, "Shot")
	if err != nil {
		t.Fatal(err)
	}
	if !entity.EqualRecords(got, replacement) {
		t.Errorf("stale records after rewrite: %v", got)
	}
}

func TestFastCacheDisabled(t *testing.T) {
	for _, tc := range []struct {
		name string
		opts []Option
		env  bool
	}{
		{name: "Option", opts: []Option{WithFastCache(false)}},
		{name: "Env", env: true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if tc.env {
				t.Setenv(EnvNoCache, "")
			}
			d := newTestDataset(t, tc.opts...)
			if err := d.SerializeRecords("Shot", shots()); err != nil {
				t.Fatal(err)
			}
			if _, err := d.Records(context.Background(), "Shot"); err != nil {
				t.Fatal(err)
			}
			if _, err := os.Stat(d.fastCachePath("Shot")); !os.IsNotExist(err) {
				t.Error("fast cache written while disabled")
			}
		})
	}
}

func TestCorruptFastCacheFallsBack(t *testing.T) {
	d := newTestDataset(t)
	if err := d.SerializeRecords("Shot", shots()); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(d.fastCachePath("Shot"), []byte("garbage"), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := d.Records(context.Background(), "Shot")
	if err != nil {
		t.Fatalf("Records: %v", err)
	}
	if !entity.EqualRecords(got, shots()) {
		t.Errorf("records = %v", got)
	}
}

func TestRebuildDatabase(t *testing.T) {
	pub := &recordingPublisher{}
	d := newTestDataset(t, WithPublisher(pub))
	ctx := context.Background()

	fetch := func(ctx context.Context, typeName string) ([]entity.Record, error) {
		if typeName == "Shot" {
			return shots(), nil
		}
		return nil, nil
	}
	if err := d.RebuildDatabase(ctx, []string{"Project", "Shot"}, fetch); err != nil {
		t.Fatalf("RebuildDatabase: %v", err)
	}
	if !d.Exists() {
		t.Fatal("dataset should exist after rebuild")
	}
	if info, err := os.Stat(d.SchemaTree()); err != nil || !info.IsDir() {
		t.Error("schema tree not created")
	}
	names, err := d.TypeNames()
	if err != nil {
		t.Fatal(err)
	}
	if len(names) != 2 || names[0] != "Project" || names[1] != "Shot" {
		t.Errorf("TypeNames = %v", names)
	}
	if got, _ := d.Records(ctx, "Project"); len(got) != 0 {
		t.Errorf("Project records = %v", got)
	}

	if len(pub.events) != 1 {
		t.Fatalf("events = %v", pub.events)
	}
	ev, ok := pub.events[0].(events.DatasetRebuilt)
	if !ok || ev.Sample != "ds1" || ev.Records["Shot"] != 2 || ev.Records["Project"] != 0 {
		t.Errorf("event = %#v", pub.events[0])
	}

	// A rebuild invalidates fast caches written in between.
	if _, err := d.Records(ctx, "Shot"); err != nil {
		t.Fatal(err)
	}
	if err := d.RebuildDatabase(ctx, []string{"Shot"}, fetch); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(d.fastCachePath("Shot")); !os.IsNotExist(err) {
		t.Error("fast cache survived RebuildDatabase")
	}
}

func TestRebuildDatabase_FetchError(t *testing.T) {
	d := newTestDataset(t)
	boom := errors.New("boom")
	err := d.RebuildDatabase(context.Background(), []string{"Shot"}, func(context.Context, string) ([]entity.Record, error) {
		return nil, boom
	})
	if !errors.Is(err, boom) {
		t.Errorf("expected fetch error, got %v", err)
	}
}

func TestBuild_Existing(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(New(root, "ds1").Dir(), 0o755); err != nil {
		t.Fatal(err)
	}
	called := false
	_, err := Build(context.Background(), root, "ds1", []string{"Shot"}, func(context.Context, string) ([]entity.Record, error) {
		called = true
		return nil, nil
	})
	if !errors.Is(err, entity.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
	if called {
		t.Error("fetcher called for an existing dataset")
	}
}

func TestMirror(t *testing.T) {
	ctx := context.Background()
	mem := conn.NewMemory()
	mem.SetEntitySchema("Shot", entity.Schema{
		"id":        {DataType: "number"},
		"code":      {DataType: "text"},
		"sg_cut_in": {DataType: "number"},
	})
	if err := mem.SetEntities("Shot", shots()); err != nil {
		t.Fatal(err)
	}

	d, err := Build(ctx, t.TempDir(), "ds1", []string{"Shot"}, conn.FetcherFor(mem, nil))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if err := d.TypeFactory().UpdateSchema(ctx, mem); err != nil {
		t.Fatal(err)
	}

	sm, err := d.Mirror(ctx)
	if err != nil {
		t.Fatalf("Mirror: %v", err)
	}
	one, err := sm.FindOne(ctx, "Shot", entity.Where(entity.Is("code", entity.String("sh010"))), nil)
	if err != nil || one == nil || one.ID() != 1 {
		t.Fatalf("FindOne = %v, %v", one, err)
	}
	if _, err := sm.Delete(ctx, "Shot", 1); !errors.Is(err, entity.ErrWriteNotPermitted) {
		t.Errorf("expected ErrWriteNotPermitted, got %v", err)
	}
	if err := sm.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(d.MirrorPath()); err != nil {
		t.Fatalf("mirror file missing: %v", err)
	}

	again, err := d.Mirror(ctx)
	if err != nil {
		t.Fatalf("reopen Mirror: %v", err)
	}
	defer again.Close()
	if names := again.Mirror().TypeNames(); len(names) != 1 || names[0] != "Shot" {
		t.Errorf("TypeNames = %v", names)
	}
}

func TestRebuildMirror_MissingDataset(t *testing.T) {
	d := newTestDataset(t)
	if _, err := d.Mirror(context.Background()); !errors.Is(err, entity.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
