package mirror

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/alfredjeanlab/sgcache/internal/conn"
	"github.com/alfredjeanlab/sgcache/internal/entity"
	"github.com/alfredjeanlab/sgcache/internal/events"
)

var _ conn.Connection = (*Mirror)(nil)

func (m *Mirror) Find(ctx context.Context, entityType string, filters entity.Filters, fields []string, limit int) ([]entity.Record, error) {
	s, err := m.schemaOf(entityType)
	if err != nil {
		return nil, err
	}
	columns := dataColumns(s)
	wb := &whereBuilder{d: m.target.dialect, typeName: entityType, columns: columnSet(columns)}
	where, err := wb.build(filters)
	if err != nil {
		return nil, err
	}
	return queryFind(ctx, m.db, entityType, selectColumns(columns, fields), where, wb.args, limit)
}

// FindOne returns nil when no record matches.
func (m *Mirror) FindOne(ctx context.Context, entityType string, filters entity.Filters, fields []string) (entity.Record, error) {
	records, err := m.Find(ctx, entityType, filters, fields, 1)
	if err != nil || len(records) == 0 {
		return nil, err
	}
	return records[0], nil
}

// checkFields rejects data naming fields the mirror has no column for.
func checkFields(entityType string, columns []string, data entity.Record) error {
	known := columnSet(columns)
	for k := range data {
		if k != "id" && k != "type" && !known[k] {
			return fmt.Errorf("%s has no field %q: %w", entityType, k, entity.ErrUnsupported)
		}
	}
	return nil
}

func (m *Mirror) Create(ctx context.Context, entityType string, data entity.Record) (entity.Record, error) {
	var rec entity.Record
	err := m.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		rec, err = m.create(ctx, tx, entityType, data)
		return err
	})
	if err != nil {
		return nil, err
	}
	m.publish(ctx, events.TopicEntityCreated, events.EntityCreated{Source: m.target.display, Record: rec})
	return rec, nil
}

func (m *Mirror) create(ctx context.Context, tx executor, entityType string, data entity.Record) (entity.Record, error) {
	s, err := m.schemaOf(entityType)
	if err != nil {
		return nil, err
	}
	columns := dataColumns(s)
	if err := checkFields(entityType, columns, data); err != nil {
		return nil, err
	}
	d := m.target.dialect

	row := data.Clone()
	if row == nil {
		row = entity.Record{}
	}
	id := row.ID()
	if id == 0 {
		if id, err = queryNextID(ctx, tx, entityType); err != nil {
			return nil, err
		}
	} else if existing, err := queryGetRecord(ctx, tx, d, entityType, nil, id); err != nil {
		return nil, err
	} else if existing != nil {
		return nil, fmt.Errorf("create %s %d: %w", entityType, id, entity.ErrAlreadyExists)
	}
	row["id"] = entity.Int(id)
	row["type"] = entity.String(entityType)

	if err := queryInsertRecord(ctx, tx, d, entityType, columns, row); err != nil {
		return nil, err
	}
	return queryGetRecord(ctx, tx, d, entityType, columns, id)
}

func (m *Mirror) Update(ctx context.Context, entityType string, id int64, data entity.Record) (entity.Record, error) {
	var rec entity.Record
	err := m.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		rec, err = m.update(ctx, tx, entityType, id, data)
		return err
	})
	if err != nil {
		return nil, err
	}
	m.publish(ctx, events.TopicEntityUpdated, events.EntityUpdated{Source: m.target.display, Record: rec, Changes: data})
	return rec, nil
}

func (m *Mirror) update(ctx context.Context, tx executor, entityType string, id int64, data entity.Record) (entity.Record, error) {
	s, err := m.schemaOf(entityType)
	if err != nil {
		return nil, err
	}
	columns := dataColumns(s)
	if err := checkFields(entityType, columns, data); err != nil {
		return nil, err
	}
	d := m.target.dialect
	ok, err := queryUpdateRecord(ctx, tx, d, entityType, id, data, columns)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("update %s %d: %w", entityType, id, entity.ErrNotFound)
	}
	return queryGetRecord(ctx, tx, d, entityType, columns, id)
}

func (m *Mirror) Delete(ctx context.Context, entityType string, id int64) (bool, error) {
	if _, err := m.schemaOf(entityType); err != nil {
		return false, err
	}
	ok, err := queryDeleteRecord(ctx, m.db, m.target.dialect, entityType, id)
	if err != nil {
		return false, err
	}
	if ok {
		m.publish(ctx, events.TopicEntityDeleted, events.EntityDeleted{Source: m.target.display, Type: entityType, ID: id})
	}
	return ok, nil
}

// Batch applies every request in one transaction. Events are published
// only after the commit.
func (m *Mirror) Batch(ctx context.Context, requests []entity.BatchRequest) ([]entity.Value, error) {
	for _, r := range requests {
		if err := r.Validate(); err != nil {
			return nil, err
		}
	}

	type pending struct {
		topic string
		event any
	}
	var (
		results []entity.Value
		queued  []pending
	)
	err := m.inTx(ctx, func(tx *sql.Tx) error {
		for _, r := range requests {
			switch r.RequestType {
			case "create":
				rec, err := m.create(ctx, tx, r.EntityType, r.Data)
				if err != nil {
					return err
				}
				results = append(results, rec.Value())
				queued = append(queued, pending{events.TopicEntityCreated, events.EntityCreated{Source: m.target.display, Record: rec}})
			case "update":
				rec, err := m.update(ctx, tx, r.EntityType, r.EntityID, r.Data)
				if err != nil {
					return err
				}
				results = append(results, rec.Value())
				queued = append(queued, pending{events.TopicEntityUpdated, events.EntityUpdated{Source: m.target.display, Record: rec, Changes: r.Data}})
			case "delete":
				if _, err := m.schemaOf(r.EntityType); err != nil {
					return err
				}
				ok, err := queryDeleteRecord(ctx, tx, m.target.dialect, r.EntityType, r.EntityID)
				if err != nil {
					return err
				}
				results = append(results, entity.Bool(ok))
				if ok {
					queued = append(queued, pending{events.TopicEntityDeleted, events.EntityDeleted{Source: m.target.display, Type: r.EntityType, ID: r.EntityID}})
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("batch: %w", err)
	}
	for _, p := range queued {
		m.publish(ctx, p.topic, p.event)
	}
	return results, nil
}

func (m *Mirror) SchemaRead(ctx context.Context) (map[string]entity.Schema, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]entity.Schema, len(m.schemas))
	for name, s := range m.schemas {
		out[name] = s.Clone()
	}
	return out, nil
}

// SchemaFieldRead returns the schema of one field, or of the whole type when
// field is empty.
func (m *Mirror) SchemaFieldRead(ctx context.Context, entityType, field string) (entity.Schema, error) {
	s, err := m.schemaOf(entityType)
	if err != nil {
		return nil, err
	}
	if field == "" {
		return s.Clone(), nil
	}
	fs, ok := s[field]
	if !ok {
		return nil, fmt.Errorf("schema of %s.%s: %w", entityType, field, entity.ErrNotFound)
	}
	return entity.Schema{field: fs}.Clone(), nil
}

func (m *Mirror) UploadThumbnail(ctx context.Context, entityType string, id int64, path string) (int64, error) {
	return 0, fmt.Errorf("upload thumbnail to %s: %w", m.target.display, entity.ErrUnsupported)
}

func (m *Mirror) ServerInfo(ctx context.Context) (entity.ServerInfo, error) {
	return entity.ServerInfo{Backend: m.target.dialect.name + " " + m.target.display}, nil
}

// inTx runs fn in a transaction, committing on success and rolling back on
// error.
func (m *Mirror) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (m *Mirror) publish(ctx context.Context, topic string, event any) {
	if err := m.publisher.Publish(ctx, topic, event); err != nil {
		m.logger.Warn("publish event", "topic", topic, "err", err)
	}
}
