package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/0green7hand0/AI-PowerShell-sub002/internal/domain"

	_ "modernc.org/sqlite"
)

// SQLiteStore is the durable audit trail. One row per event; validation and
// execution payloads are stored as JSON so the schema survives field changes.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create database directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}

	// Single connection for SQLite
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &SQLiteStore{db: db, logger: logger}

	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS audit_events (
		id             INTEGER PRIMARY KEY AUTOINCREMENT,
		correlation_id TEXT NOT NULL,
		kind           TEXT NOT NULL,
		created_at     DATETIME NOT NULL,
		command        TEXT,
		user_role      TEXT,
		decision       TEXT,
		risk_level     TEXT,
		validation     TEXT,
		execution      TEXT,
		detail         TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_audit_events_time ON audit_events(created_at);
	CREATE INDEX IF NOT EXISTS idx_audit_events_corr ON audit_events(correlation_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Record implements domain.AuditSink.
func (s *SQLiteStore) Record(ctx context.Context, event domain.AuditEvent) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	risk := ""
	validation := ""
	if event.Validation != nil {
		risk = event.Validation.RiskLevel.String()
		raw, err := json.Marshal(event.Validation)
		if err != nil {
			return fmt.Errorf("marshal validation: %w", err)
		}
		validation = string(raw)
	}
	execution := ""
	if event.Execution != nil {
		raw, err := json.Marshal(event.Execution)
		if err != nil {
			return fmt.Errorf("marshal execution: %w", err)
		}
		execution = string(raw)
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_events (correlation_id, kind, created_at, command, user_role, decision, risk_level, validation, execution, detail)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		event.CorrelationID, string(event.Kind), event.Timestamp, event.Command,
		event.UserRole, string(event.Decision), risk, validation, execution, event.Detail,
	)
	return err
}

// Tail returns the most recent events in chronological order.
func (s *SQLiteStore) Tail(ctx context.Context, limit int) ([]domain.AuditEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT correlation_id, kind, created_at, command, user_role, decision, validation, execution, detail
		 FROM audit_events ORDER BY id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events, err := scanEvents(rows)
	if err != nil {
		return nil, err
	}

	// Reverse to chronological order
	for i, j := 0, len(events)-1; i < j; i, j = i+1, j-1 {
		events[i], events[j] = events[j], events[i]
	}
	return events, nil
}

// ByCorrelation returns the full trail of one request, oldest first.
func (s *SQLiteStore) ByCorrelation(ctx context.Context, correlationID string) ([]domain.AuditEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT correlation_id, kind, created_at, command, user_role, decision, validation, execution, detail
		 FROM audit_events WHERE correlation_id = ? ORDER BY id ASC`, correlationID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanEvents(rows)
}

func scanEvents(rows *sql.Rows) ([]domain.AuditEvent, error) {
	var events []domain.AuditEvent
	for rows.Next() {
		var ev domain.AuditEvent
		var kind, decision string
		var command, role, detail sql.NullString
		var validation, execution sql.NullString
		if err := rows.Scan(&ev.CorrelationID, &kind, &ev.Timestamp, &command,
			&role, &decision, &validation, &execution, &detail); err != nil {
			return nil, err
		}
		ev.Kind = domain.AuditKind(kind)
		ev.Decision = domain.Decision(decision)
		ev.Command = command.String
		ev.UserRole = role.String
		ev.Detail = detail.String
		if validation.String != "" {
			var v domain.ValidationResult
			if err := json.Unmarshal([]byte(validation.String), &v); err == nil {
				ev.Validation = &v
			}
		}
		if execution.String != "" {
			var x domain.SandboxResult
			if err := json.Unmarshal([]byte(execution.String), &x); err == nil {
				ev.Execution = &x
			}
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// Purge deletes events older than the retention window and reports how many
// rows went away.
func (s *SQLiteStore) Purge(ctx context.Context, retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		return 0, nil
	}
	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM audit_events WHERE created_at < ?`, cutoff,
	)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Info("audit retention purge", "deleted", n, "retention_days", retentionDays)
	}
	return n, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
