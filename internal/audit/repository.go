package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Page size limits for List queries.
const (
	DefaultLimit = 50
	MaxLimit     = 200
)

// timeLayout is fixed-width so created_at sorts correctly as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// CommandEntry is one row of command_log.
type CommandEntry struct {
	ID         string         `json:"id"`
	Kind       string         `json:"kind"`
	Source     string         `json:"source"`
	Outcome    string         `json:"outcome"`
	Class      string         `json:"class"`
	Error      string         `json:"error,omitempty"`
	DurationMS int64          `json:"duration_ms"`
	Details    map[string]any `json:"details,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// ConnectionEntry is one row of connection_log.
type ConnectionEntry struct {
	ID          string    `json:"id"`
	From        string    `json:"from"`
	To          string    `json:"to"`
	Serial      string    `json:"serial,omitempty"`
	Attempt     int       `json:"attempt"`
	NextDelayMS int64     `json:"next_delay_ms"`
	Error       string    `json:"error,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Filter selects command history.
type Filter struct {
	Kind    string // optional: tap, swipe, capture, shell
	Outcome string // optional: ok, error
	Limit   int    // default 50, max 200
	Offset  int
}

// ListResult is one page of command history.
type ListResult struct {
	Entries []CommandEntry `json:"entries"`
	Total   int            `json:"total"`
	Limit   int            `json:"limit"`
	Offset  int            `json:"offset"`
}

// Repository stores history.
type Repository interface {
	CreateCommand(ctx context.Context, e *CommandEntry) error
	CreateConnection(ctx context.Context, e *ConnectionEntry) error
	ListCommands(ctx context.Context, f Filter) (*ListResult, error)
	ListConnections(ctx context.Context, limit int) ([]ConnectionEntry, error)
}

// SQLiteRepository implements Repository on the migrated schema.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// CreateCommand inserts a command entry. ID and CreatedAt are filled in
// when empty.
func (r *SQLiteRepository) CreateCommand(ctx context.Context, e *CommandEntry) error {
	if e.ID == "" {
		e.ID = "cmd-" + uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	var details any
	if e.Details != nil {
		b, err := json.Marshal(e.Details)
		if err != nil {
			return fmt.Errorf("marshalling command details: %w", err)
		}
		details = string(b)
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO command_log (id, kind, source, outcome, class, error, duration_ms, details, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Kind, e.Source, e.Outcome, e.Class,
		nullableString(e.Error), e.DurationMS, details,
		e.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting command entry: %w", err)
	}
	return nil
}

// CreateConnection inserts a connection entry.
func (r *SQLiteRepository) CreateConnection(ctx context.Context, e *ConnectionEntry) error {
	if e.ID == "" {
		e.ID = "conn-" + uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO connection_log (id, from_state, to_state, serial, attempt, next_delay_ms, error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.From, e.To, nullableString(e.Serial), e.Attempt, e.NextDelayMS,
		nullableString(e.Error), e.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting connection entry: %w", err)
	}
	return nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// ListCommands returns command history, newest first.
func (r *SQLiteRepository) ListCommands(ctx context.Context, f Filter) (*ListResult, error) {
	f.Limit = clampLimit(f.Limit)
	if f.Offset < 0 {
		f.Offset = 0
	}

	var conditions []string
	var args []any
	if f.Kind != "" {
		conditions = append(conditions, "kind = ?")
		args = append(args, f.Kind)
	}
	if f.Outcome != "" {
		conditions = append(conditions, "outcome = ?")
		args = append(args, f.Outcome)
	}
	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM command_log " + where //nolint:gosec // placeholders only
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting command entries: %w", err)
	}

	query := "SELECT id, kind, source, outcome, class, error, duration_ms, details, created_at FROM command_log " + //nolint:gosec // placeholders only
		where + " ORDER BY created_at DESC LIMIT ? OFFSET ?"
	rows, err := r.db.QueryContext(ctx, query, append(args, f.Limit, f.Offset)...)
	if err != nil {
		return nil, fmt.Errorf("querying command entries: %w", err)
	}
	defer rows.Close()

	entries := []CommandEntry{}
	for rows.Next() {
		var e CommandEntry
		var errText, details sql.NullString
		var createdAt string
		if err := rows.Scan(&e.ID, &e.Kind, &e.Source, &e.Outcome, &e.Class,
			&errText, &e.DurationMS, &details, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning command entry: %w", err)
		}
		e.Error = errText.String
		if details.Valid && details.String != "" {
			var m map[string]any
			if json.Unmarshal([]byte(details.String), &m) == nil {
				e.Details = m
			}
		}
		if e.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating command entries: %w", err)
	}

	return &ListResult{Entries: entries, Total: total, Limit: f.Limit, Offset: f.Offset}, nil
}

// ListConnections returns the most recent connection transitions.
func (r *SQLiteRepository) ListConnections(ctx context.Context, limit int) ([]ConnectionEntry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, from_state, to_state, serial, attempt, next_delay_ms, error, created_at
		 FROM connection_log ORDER BY created_at DESC LIMIT ?`,
		clampLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("querying connection entries: %w", err)
	}
	defer rows.Close()

	out := []ConnectionEntry{}
	for rows.Next() {
		var e ConnectionEntry
		var serial, errText sql.NullString
		var createdAt string
		if err := rows.Scan(&e.ID, &e.From, &e.To, &serial, &e.Attempt, &e.NextDelayMS,
			&errText, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning connection entry: %w", err)
		}
		e.Serial = serial.String
		e.Error = errText.String
		if e.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating connection entries: %w", err)
	}
	return out, nil
}

func clampLimit(n int) int {
	if n <= 0 {
		return DefaultLimit
	}
	if n > MaxLimit {
		return MaxLimit
	}
	return n
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing timestamp %q: %w", s, err)
	}
	return t, nil
}
