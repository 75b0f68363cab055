package stream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/alfredjeanlab/sgcache/internal/entity"
)

func fixture(ctx context.Context, typeName string) ([]entity.Record, error) {
	switch typeName {
	case "Project":
		return []entity.Record{entity.NewRecord("Project", 1, map[string]entity.Value{"name": entity.String("Démo 😄")})}, nil
	case "Shot":
		return []entity.Record{
			entity.NewRecord("Shot", 1, map[string]entity.Value{"code": entity.String("sh010")}),
			entity.NewRecord("Shot", 2, map[string]entity.Value{"code": entity.String("sh020")}),
		}, nil
	}
	return nil, errors.New("unknown type " + typeName)
}

func TestStream(t *testing.T) {
	var out bytes.Buffer
	n, err := TypeStreamer{Fetcher: fixture, TypeNames: []string{"Project", "Shot"}}.Stream(context.Background(), &out)
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	if n != 3 {
		t.Errorf("streamed %d records, want 3", n)
	}

	text := out.String()
	wantFirst := "{\n  \"id\": 1,\n  \"name\": \"D\\u00e9mo \\ud83d\\ude04\",\n  \"type\": \"Project\"\n}\n"
	if !strings.HasPrefix(text, wantFirst) {
		t.Errorf("first document =\n%s\nwant\n%s", text, wantFirst)
	}
	for _, r := range text {
		if r > 0x7F {
			t.Fatalf("output contains non-ASCII rune %q", r)
		}
	}

	dec := json.NewDecoder(&out)
	var order []string
	for dec.More() {
		var rec entity.Record
		if err := dec.Decode(&rec); err != nil {
			t.Fatalf("decode: %v", err)
		}
		order = append(order, rec.Type())
	}
	if strings.Join(order, ",") != "Project,Shot,Shot" {
		t.Errorf("order = %v", order)
	}
}

func TestStream_FetchError(t *testing.T) {
	var out bytes.Buffer
	n, err := TypeStreamer{Fetcher: fixture, TypeNames: []string{"Shot", "Asset"}}.Stream(context.Background(), &out)
	if err == nil {
		t.Fatal("expected error for unknown type")
	}
	if n != 2 {
		t.Errorf("streamed %d records before failing, want 2", n)
	}
}
