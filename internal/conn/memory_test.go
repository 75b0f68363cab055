package conn

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/alfredjeanlab/sgcache/internal/entity"
)

func parseFilters(t *testing.T, s string) entity.Filters {
	t.Helper()
	var v entity.Value
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		t.Fatal(err)
	}
	f, err := entity.ParseFilters(v)
	if err != nil {
		t.Fatalf("ParseFilters(%s): %v", s, err)
	}
	return f
}

func TestMemory_FindOne(t *testing.T) {
	m := NewMemory()
	if err := m.SetEntities("Shot", []entity.Record{shot(1, "sh010")}); err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	rec, err := m.FindOne(ctx, "Shot", parseFilters(t, `[["id", "is", 1]]`), nil)
	if err != nil || rec == nil || rec.ID() != 1 {
		t.Fatalf("FindOne(id is 1) = %v, %v", rec, err)
	}
	rec, err = m.FindOne(ctx, "Shot", parseFilters(t, `[["id", "is", 2]]`), nil)
	if err != nil || rec != nil {
		t.Fatalf("FindOne(id is 2) = %v, %v; want nil", rec, err)
	}
}

func TestMemory_FindFilterForms(t *testing.T) {
	m := newShots(t)
	ctx := context.Background()
	for _, tc := range []struct {
		name    string
		filters string
		want    []int64
	}{
		{"ListIn", `[["id", "in", [1, 3]]]`, []int64{1, 3}},
		{"ListInVariadic", `[["id", "in", 3]]`, []int64{3}},
		{"DictOr", `{"logical_operator": "or", "conditions": [
			{"path": "code", "relation": "is", "values": ["sh010"]},
			{"path": "id", "relation": "is", "values": [3]}]}`, []int64{1, 3}},
		{"NotIn", `[["code", "not_in", ["sh010"]]]`, []int64{3}},
		{"IsNot", `[["id", "is_not", 1]]`, []int64{3}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			got, err := m.Find(ctx, "Shot", parseFilters(t, tc.filters), nil, 0)
			if err != nil {
				t.Fatalf("Find: %v", err)
			}
			if len(got) != len(tc.want) {
				t.Fatalf("Find = %v, want ids %v", got, tc.want)
			}
			for i, id := range tc.want {
				if got[i].ID() != id {
					t.Errorf("got[%d].ID() = %d, want %d", i, got[i].ID(), id)
				}
			}
		})
	}
}

func TestMemory_Writes(t *testing.T) {
	m := newShots(t)
	ctx := context.Background()

	data := entity.Record{"code": entity.String("sh040")}
	created, err := m.Create(ctx, "Shot", data)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.ID() != 4 {
		t.Errorf("created id = %d, want 4", created.ID())
	}
	if _, ok := data["id"]; ok {
		t.Error("Create modified its input")
	}
	created["code"] = entity.String("mutated")
	if got, _ := m.FindOne(ctx, "Shot", entity.Where(entity.Is("id", entity.Int(4))), []string{"code"}); got["code"].AsString() != "sh040" {
		t.Error("returned record shares storage with the store")
	}

	if _, err := m.Create(ctx, "Shot", shot(1, "dup")); !errors.Is(err, entity.ErrAlreadyExists) {
		t.Errorf("Create duplicate error = %v", err)
	}

	updated, err := m.Update(ctx, "Shot", 1, entity.Record{"sg_status": entity.String("ip")})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated["code"].AsString() != "sh010" || updated["sg_status"].AsString() != "ip" {
		t.Errorf("Update = %v", updated)
	}
	if _, err := m.Update(ctx, "Shot", 99, nil); !errors.Is(err, entity.ErrNotFound) {
		t.Errorf("Update missing error = %v", err)
	}

	ok, _ := m.Delete(ctx, "Shot", 3)
	again, _ := m.Delete(ctx, "Shot", 3)
	if !ok || again {
		t.Errorf("Delete = %v then %v", ok, again)
	}

	res, err := m.Batch(ctx, []entity.BatchRequest{
		{RequestType: "create", EntityType: "Asset", Data: entity.Record{"code": entity.String("chair")}},
		{RequestType: "delete", EntityType: "Shot", EntityID: 4},
	})
	if err != nil || len(res) != 2 || !res[1].AsBool() {
		t.Fatalf("Batch = %v, %v", res, err)
	}
	if id, _ := res[0].Get("id"); id.AsInt() != 1 {
		t.Errorf("first Asset id = %v, want 1", id)
	}
}

func TestMemory_SchemaAndInfo(t *testing.T) {
	m := newShots(t)
	ctx := context.Background()

	if _, err := m.SchemaFieldRead(ctx, "Shot", "nope"); !errors.Is(err, entity.ErrNotFound) {
		t.Errorf("SchemaFieldRead missing field error = %v", err)
	}
	all, _ := m.SchemaRead(ctx)
	if len(all) != 1 {
		t.Errorf("SchemaRead = %v", all)
	}
	info, _ := m.ServerInfo(ctx)
	if len(info.Version) != 3 || info.Version[0] != 4 {
		t.Errorf("ServerInfo = %+v", info)
	}
	if _, err := m.UploadThumbnail(ctx, "Shot", 1, "x.png"); !errors.Is(err, entity.ErrUnsupported) {
		t.Errorf("UploadThumbnail error = %v", err)
	}

	m.Clear()
	if len(m.TypeNames()) != 0 {
		t.Errorf("TypeNames after Clear = %v", m.TypeNames())
	}
}
