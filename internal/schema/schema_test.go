package schema

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/alfredjeanlab/sgcache/internal/conn"
	"github.com/alfredjeanlab/sgcache/internal/entity"
)

var (
	shotSchema  = entity.Schema{"code": {DataType: "text", Mandatory: true}, "sg_cut_in": {DataType: "number"}}
	assetSchema = entity.Schema{"code": {DataType: "text"}, "sg_asset_type": {
		DataType:   "list",
		Properties: map[string]entity.Value{"valid_values": entity.Array(entity.String("prop"), entity.String("char"))},
	}}
)

// countingReader serves a fixed schema and counts SchemaRead calls.
type countingReader struct {
	schemas map[string]entity.Schema
	calls   int
}

func (r *countingReader) SchemaRead(context.Context) (map[string]entity.Schema, error) {
	r.calls++
	return r.schemas, nil
}

func newReader() *countingReader {
	return &countingReader{schemas: map[string]entity.Schema{"Shot": shotSchema, "Asset": assetSchema}}
}

func TestStore_WriteRead(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "tree"))
	if names, err := s.TypeNames(); err != nil || len(names) != 0 {
		t.Fatalf("TypeNames on missing dir = %v, %v", names, err)
	}
	if err := s.Write("Asset", assetSchema); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := s.Read("Asset")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !got.Equal(assetSchema) {
		t.Errorf("Read = %+v, want %+v", got, assetSchema)
	}
	if _, err := os.Stat(filepath.Join(s.Dir(), "Asset.jsonz")); err != nil {
		t.Errorf("schema file not at <tree>/Asset.jsonz: %v", err)
	}
	if _, err := s.Read("Shot"); !errors.Is(err, entity.ErrNotFound) {
		t.Errorf("Read missing = %v, want ErrNotFound", err)
	}
}

func TestTreeFactory_UpdateSchema(t *testing.T) {
	dir := t.TempDir()
	f := NewTreeFactory(dir)
	ctx := context.Background()

	if _, err := f.SchemaByName(ctx, "Shot"); !errors.Is(err, entity.ErrNotFound) {
		t.Fatalf("SchemaByName before update = %v, want ErrNotFound", err)
	}

	r := newReader()
	if err := f.UpdateSchema(ctx, r); err != nil {
		t.Fatalf("UpdateSchema: %v", err)
	}
	if r.calls != 1 {
		t.Errorf("SchemaRead called %d times, want 1", r.calls)
	}
	names, _ := f.TypeNames()
	if !reflect.DeepEqual(names, []string{"Asset", "Shot"}) {
		t.Errorf("TypeNames = %v", names)
	}
	got, err := f.SchemaByName(ctx, "Shot")
	if err != nil || !got.Equal(shotSchema) {
		t.Fatalf("SchemaByName = %+v, %v", got, err)
	}

	// Updates overwrite unconditionally and drop the memo.
	r.schemas = map[string]entity.Schema{"Shot": {"code": {DataType: "text"}}}
	if err := f.UpdateSchema(ctx, r); err != nil {
		t.Fatal(err)
	}
	got, _ = f.SchemaByName(ctx, "Shot")
	if len(got) != 1 {
		t.Errorf("SchemaByName after update = %+v, want the new schema", got)
	}
}

func TestTreeFactory_Refresh(t *testing.T) {
	mem := conn.NewMemory()
	mem.SetEntitySchema("Shot", shotSchema)
	f := NewTreeFactory(t.TempDir(), WithRefresh(mem))

	got, err := f.SchemaByName(context.Background(), "Shot")
	if err != nil {
		t.Fatalf("SchemaByName with refresh: %v", err)
	}
	if !got.Equal(shotSchema) {
		t.Errorf("SchemaByName = %+v", got)
	}
	if _, err := f.SchemaByName(context.Background(), "Version"); !errors.Is(err, entity.ErrNotFound) {
		t.Errorf("SchemaByName unknown type = %v, want ErrNotFound", err)
	}
}

func TestFilteredFactory(t *testing.T) {
	ctx := context.Background()
	for _, tc := range []struct {
		name      string
		allow     []string
		deny      []string
		wantTypes []string
	}{
		{"AllowList", []string{"Shot"}, nil, []string{"Shot"}},
		{"DenyList", nil, []string{"Shot"}, []string{"Asset"}},
		{"Both", []string{"Shot", "Asset"}, []string{"Asset"}, []string{"Shot"}},
		{"None", nil, nil, []string{"Asset", "Shot"}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			f := NewFilteredFactory(NewTreeFactory(dir), tc.allow, tc.deny)
			if err := f.UpdateSchema(ctx, newReader()); err != nil {
				t.Fatal(err)
			}
			names, _ := f.TypeNames()
			if !reflect.DeepEqual(names, tc.wantTypes) {
				t.Errorf("TypeNames = %v, want %v", names, tc.wantTypes)
			}
			onDisk, _ := NewStore(dir).TypeNames()
			if !reflect.DeepEqual(onDisk, tc.wantTypes) {
				t.Errorf("files written = %v, want %v", onDisk, tc.wantTypes)
			}
			for _, n := range []string{"Asset", "Shot"} {
				_, err := f.SchemaByName(ctx, n)
				if f.Allowed(n) != (err == nil) {
					t.Errorf("SchemaByName(%s) err = %v, allowed = %v", n, err, f.Allowed(n))
				}
			}
		})
	}
}

func TestFilteredFactory_RefreshWritesOnlyAllowedTypes(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	r := &countingReader{schemas: map[string]entity.Schema{"Shot": shotSchema, "Secret": assetSchema}}
	f := NewFilteredFactory(NewTreeFactory(dir, WithRefresh(r)), []string{"Shot"}, nil)

	got, err := f.SchemaByName(ctx, "Shot")
	if err != nil {
		t.Fatalf("SchemaByName: %v", err)
	}
	if !got.Equal(shotSchema) {
		t.Errorf("Shot = %+v", got)
	}
	if r.calls != 1 {
		t.Errorf("SchemaRead calls = %d, want 1", r.calls)
	}
	onDisk, _ := NewStore(dir).TypeNames()
	if !reflect.DeepEqual(onDisk, []string{"Shot"}) {
		t.Errorf("files written = %v, want [Shot]", onDisk)
	}
	if _, err := f.SchemaByName(ctx, "Secret"); !errors.Is(err, entity.ErrNotFound) {
		t.Errorf("SchemaByName(Secret) = %v, want ErrNotFound", err)
	}
}

func TestReader_SeedsAnotherTree(t *testing.T) {
	ctx := context.Background()
	src := NewTreeFactory(t.TempDir())
	if err := src.UpdateSchema(ctx, newReader()); err != nil {
		t.Fatal(err)
	}

	dst := NewFilteredFactory(NewTreeFactory(t.TempDir()), []string{"Asset"}, nil)
	if err := dst.UpdateSchema(ctx, Reader{Factory: src}); err != nil {
		t.Fatalf("UpdateSchema: %v", err)
	}
	got, err := dst.SchemaByName(ctx, "Asset")
	if err != nil {
		t.Fatal(err)
	}
	if !got.Equal(assetSchema) {
		t.Errorf("Asset = %+v, want %+v", got, assetSchema)
	}
	if names, _ := dst.TypeNames(); !reflect.DeepEqual(names, []string{"Asset"}) {
		t.Errorf("TypeNames = %v", names)
	}
}
