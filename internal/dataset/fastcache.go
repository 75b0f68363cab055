package dataset

import (
	"fmt"
	"io"
	"os"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/alfredjeanlab/sgcache/internal/entity"
	"github.com/alfredjeanlab/sgcache/internal/jsonz"
)

// fastCache is the BSON document stored beside a snapshot.
type fastCache struct {
	Records []bson.M `bson:"records"`
}

func writeFastCache(path string, records []entity.Record) error {
	doc := struct {
		Records []map[string]any `bson:"records"`
	}{Records: make([]map[string]any, len(records))}
	for i, r := range records {
		doc.Records[i] = r.Value().Interface().(map[string]any)
	}
	data, err := bson.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode bson: %w", err)
	}
	return jsonz.WriteAtomic(path, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
}

func readFastCache(path string) ([]entity.Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc fastCache
	if err := bson.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode bson: %w", err)
	}
	records := make([]entity.Record, len(doc.Records))
	for i, m := range doc.Records {
		r := make(entity.Record, len(m))
		for k, v := range m {
			r[k] = fromBSON(v)
		}
		records[i] = r
	}
	return records, nil
}

// fromBSON converts a decoded BSON value. Nested documents arrive as bson.M
// or bson.D depending on the decoder's defaults; both are accepted.
func fromBSON(v any) entity.Value {
	switch x := v.(type) {
	case nil:
		return entity.Null()
	case bool:
		return entity.Bool(x)
	case int32:
		return entity.Int(int64(x))
	case int64:
		return entity.Int(x)
	case float64:
		return entity.Float(x)
	case string:
		return entity.String(x)
	case bson.A:
		items := make([]entity.Value, len(x))
		for i, it := range x {
			items[i] = fromBSON(it)
		}
		return entity.Array(items...)
	case []any:
		return fromBSON(bson.A(x))
	case bson.M:
		fields := make(map[string]entity.Value, len(x))
		for k, f := range x {
			fields[k] = fromBSON(f)
		}
		return entity.Object(fields)
	case map[string]any:
		return fromBSON(bson.M(x))
	case bson.D:
		fields := make(map[string]entity.Value, len(x))
		for _, e := range x {
			fields[e.Key] = fromBSON(e.Value)
		}
		return entity.Object(fields)
	}
	return entity.FromAny(v)
}
