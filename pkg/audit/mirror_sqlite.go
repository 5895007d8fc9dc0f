package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/opengovbd/provkb/pkg/model"

	_ "modernc.org/sqlite"
)

// MirrorStore mirrors the document's audit log into sqlite so large logs
// can be queried without scanning kb.json. The document stays canonical;
// the mirror is a derived artifact and can be rebuilt at any time.
type MirrorStore struct {
	db *sql.DB
}

// NewMirrorStore wraps an open database handle and ensures the schema.
func NewMirrorStore(db *sql.DB) (*MirrorStore, error) {
	s := &MirrorStore{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

// OpenMirror opens (or creates) a sqlite mirror at path.
func OpenMirror(path string) (*MirrorStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open audit mirror: %w", err)
	}
	return NewMirrorStore(db)
}

func (s *MirrorStore) migrate() error {
	query := `
    CREATE TABLE IF NOT EXISTS audit_events (
        event_id TEXT PRIMARY KEY,
        event_type TEXT NOT NULL,
        timestamp TEXT NOT NULL,
        actor TEXT NOT NULL,
        description TEXT,
        affected JSON,
        metadata JSON
    );
    CREATE TABLE IF NOT EXISTS affected_entities (
        event_id TEXT NOT NULL,
        bucket TEXT NOT NULL,
        entity_id TEXT NOT NULL
    );
    CREATE INDEX IF NOT EXISTS idx_affected_entity ON affected_entities(entity_id);
    CREATE INDEX IF NOT EXISTS idx_events_type ON audit_events(event_type, timestamp);`
	_, err := s.db.ExecContext(context.Background(), query)
	return err
}

// Sync upserts every event of the log into the mirror. Events are content
// addressed, so re-syncing is idempotent.
func (s *MirrorStore) Sync(ctx context.Context, log []model.AuditEvent) error {
	for _, ev := range log {
		if err := s.insert(ctx, ev); err != nil {
			return err
		}
	}
	return nil
}

func (s *MirrorStore) insert(ctx context.Context, ev model.AuditEvent) error {
	affectedJSON, _ := json.Marshal(ev.AffectedEntities)
	metaJSON, _ := json.Marshal(ev.Metadata)

	_, err := s.db.ExecContext(ctx, `
        INSERT INTO audit_events (event_id, event_type, timestamp, actor, description, affected, metadata)
        VALUES (?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(event_id) DO NOTHING`,
		ev.EventID, string(ev.EventType), ev.Timestamp, ev.Actor, ev.Description, string(affectedJSON), string(metaJSON),
	)
	if err != nil {
		return fmt.Errorf("insert event %s: %w", ev.EventID, err)
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM affected_entities WHERE event_id = ?`, ev.EventID); err != nil {
		return fmt.Errorf("reset affected for %s: %w", ev.EventID, err)
	}
	for bucket, entries := range ev.AffectedEntities.Buckets() {
		for _, id := range entries {
			if _, err := s.db.ExecContext(ctx,
				`INSERT INTO affected_entities (event_id, bucket, entity_id) VALUES (?, ?, ?)`,
				ev.EventID, bucket, id); err != nil {
				return fmt.Errorf("insert affected for %s: %w", ev.EventID, err)
			}
		}
	}
	return nil
}

// ByType returns up to limit events of the given type, most recent first.
func (s *MirrorStore) ByType(ctx context.Context, eventType model.EventType, limit int) ([]model.AuditEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT event_id, event_type, timestamp, actor, description, affected, metadata
        FROM audit_events
        WHERE event_type = ?
        ORDER BY timestamp DESC
        LIMIT ?`, string(eventType), limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return scanEvents(rows)
}

// ForEntity returns every mirrored event that touched the given entity ID,
// in timestamp order.
func (s *MirrorStore) ForEntity(ctx context.Context, entityID string) ([]model.AuditEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT e.event_id, e.event_type, e.timestamp, e.actor, e.description, e.affected, e.metadata
        FROM audit_events e
        JOIN affected_entities a ON a.event_id = e.event_id
        WHERE a.entity_id = ?
        GROUP BY e.event_id
        ORDER BY e.timestamp ASC`, entityID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return scanEvents(rows)
}

// Count returns the number of mirrored events.
func (s *MirrorStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM audit_events`).Scan(&n)
	return n, err
}

// Close closes the underlying database handle.
func (s *MirrorStore) Close() error { return s.db.Close() }

func scanEvents(rows *sql.Rows) ([]model.AuditEvent, error) {
	var out []model.AuditEvent
	for rows.Next() {
		var (
			ev           model.AuditEvent
			eventType    string
			description  sql.NullString
			affectedJSON sql.NullString
			metaJSON     sql.NullString
		)
		if err := rows.Scan(&ev.EventID, &eventType, &ev.Timestamp, &ev.Actor, &description, &affectedJSON, &metaJSON); err != nil {
			return nil, err
		}
		ev.EventType = model.EventType(eventType)
		ev.Description = description.String
		if affectedJSON.Valid && affectedJSON.String != "" {
			_ = json.Unmarshal([]byte(affectedJSON.String), &ev.AffectedEntities)
		}
		if metaJSON.Valid && metaJSON.String != "" && metaJSON.String != "null" {
			_ = json.Unmarshal([]byte(metaJSON.String), &ev.Metadata)
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
