package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

type Writer struct {
	DB  *sql.DB
	Now func() time.Time
}

type EventPayload map[string]any

// Append writes one run-log entry.
func (w Writer) Append(ctx context.Context, evtType, project, entityID string, payload EventPayload) error {
	now := w.Now
	if now == nil {
		now = time.Now
	}
	ts := now().UTC().Format(time.RFC3339)
	if payload == nil {
		payload = EventPayload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	_, err = w.DB.ExecContext(ctx, `INSERT INTO events(ts,type,project,entity_id,payload_json) VALUES (?,?,?,?,?)`,
		ts, evtType, nullable(project), nullable(entityID), string(data))
	return err
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
