package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Event struct {
	ID         string          `json:"id"`
	ActorID    string          `json:"actorId"`
	Action     string          `json:"action"`
	EntityType string          `json:"entityType"`
	EntityID   string          `json:"entityId"`
	EmployeeID string          `json:"employeeId"`
	RequestID  string          `json:"requestId"`
	CreatedAt  time.Time       `json:"createdAt"`
	Before     any             `json:"-"`
	After      any             `json:"-"`
	BeforeJSON json.RawMessage `json:"before,omitempty"`
	AfterJSON  json.RawMessage `json:"after,omitempty"`
}

type Filter struct {
	Action     string
	EmployeeID string
	ActorID    string
}

type Service struct {
	DB *pgxpool.Pool
}

func New(db *pgxpool.Pool) *Service {
	return &Service{DB: db}
}

func (s *Service) Record(ctx context.Context, evt Event) error {
	beforeJSON, afterJSON, err := marshalState(evt)
	if err != nil {
		return err
	}

	_, err = s.DB.Exec(ctx, `
    INSERT INTO audit_events (actor_id, action, entity_type, entity_id, employee_identity, before_json, after_json, request_id)
    VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
  `, evt.ActorID, evt.Action, evt.EntityType, evt.EntityID, evt.EmployeeID, beforeJSON, afterJSON, evt.RequestID)
	return err
}

func (s *Service) Count(ctx context.Context, filter Filter) (int, error) {
	query, args := buildBaseQuery("SELECT COUNT(1)", filter)
	var total int
	if err := s.DB.QueryRow(ctx, query, args...).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

func (s *Service) List(ctx context.Context, filter Filter, limit, offset int) ([]Event, error) {
	query, args := buildBaseQuery(`SELECT id::text, COALESCE(actor_id, ''), action, entity_type, COALESCE(entity_id, ''),
      COALESCE(employee_identity, ''), COALESCE(request_id, ''), created_at, before_json, after_json`, filter)
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := s.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var evt Event
		var before, after []byte
		if err := rows.Scan(&evt.ID, &evt.ActorID, &evt.Action, &evt.EntityType, &evt.EntityID, &evt.EmployeeID,
			&evt.RequestID, &evt.CreatedAt, &before, &after); err != nil {
			return nil, err
		}
		evt.BeforeJSON = before
		evt.AfterJSON = after
		out = append(out, evt)
	}
	return out, rows.Err()
}

func buildBaseQuery(prefix string, filter Filter) (string, []any) {
	query := prefix + " FROM audit_events WHERE 1=1"
	var args []any
	if filter.Action != "" {
		args = append(args, filter.Action)
		query += fmt.Sprintf(" AND action = $%d", len(args))
	}
	if filter.EmployeeID != "" {
		args = append(args, filter.EmployeeID)
		query += fmt.Sprintf(" AND employee_identity = $%d", len(args))
	}
	if filter.ActorID != "" {
		args = append(args, filter.ActorID)
		query += fmt.Sprintf(" AND actor_id = $%d", len(args))
	}
	return query, args
}

func marshalState(evt Event) ([]byte, []byte, error) {
	var beforeJSON, afterJSON []byte
	if evt.Before != nil {
		payload, err := json.Marshal(evt.Before)
		if err != nil {
			return nil, nil, err
		}
		beforeJSON = payload
	}
	if evt.After != nil {
		payload, err := json.Marshal(evt.After)
		if err != nil {
			return nil, nil, err
		}
		afterJSON = payload
	}
	return beforeJSON, afterJSON, nil
}

// Log keeps events in memory. It backs the in-memory store setup and tests.
type Log struct {
	mu     sync.Mutex
	events []Event
}

func NewLog() *Log {
	return &Log{}
}

func (l *Log) Record(ctx context.Context, evt Event) error {
	beforeJSON, afterJSON, err := marshalState(evt)
	if err != nil {
		return err
	}
	evt.BeforeJSON = beforeJSON
	evt.AfterJSON = afterJSON
	if evt.CreatedAt.IsZero() {
		evt.CreatedAt = time.Now().UTC()
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	evt.ID = fmt.Sprintf("%d", len(l.events)+1)
	l.events = append(l.events, evt)
	return nil
}

// Events returns matching events oldest first.
func (l *Log) Events(filter Filter) []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []Event
	for _, evt := range l.events {
		if filter.Action != "" && evt.Action != filter.Action {
			continue
		}
		if filter.EmployeeID != "" && evt.EmployeeID != filter.EmployeeID {
			continue
		}
		if filter.ActorID != "" && evt.ActorID != filter.ActorID {
			continue
		}
		out = append(out, evt)
	}
	return out
}

// List pages matching events newest first, like Service.List.
func (l *Log) List(ctx context.Context, filter Filter, limit, offset int) ([]Event, error) {
	events := l.Events(filter)
	out := make([]Event, 0, len(events))
	for i := len(events) - 1; i >= 0; i-- {
		out = append(out, events[i])
	}
	if offset >= len(out) {
		return []Event{}, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}
