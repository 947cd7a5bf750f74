// Package audit keeps a SQLite trail of endpoint calls: which pass ran,
// over which transport, for which page, how long it took and how it ended.
// Entries are buffered and written in batches; Close flushes them.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hazyhaar/adinject/idgen"
	"github.com/hazyhaar/adinject/kit"
)

// Schema creates the audit_log table.
const Schema = `
CREATE TABLE IF NOT EXISTS audit_log (
	entry_id      TEXT PRIMARY KEY,
	timestamp     INTEGER NOT NULL,
	action        TEXT NOT NULL,
	transport     TEXT NOT NULL,
	trace_id      TEXT,
	parameters    TEXT NOT NULL DEFAULT '{}',
	result        TEXT,
	error_message TEXT,
	duration_ms   INTEGER,
	status        TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_audit_timestamp ON audit_log(timestamp DESC);
CREATE INDEX IF NOT EXISTS idx_audit_action ON audit_log(action, timestamp DESC);
`

const batchSize = 32

// Entry is one audited call. Timestamp is in Unix milliseconds.
type Entry struct {
	EntryID    string `json:"entry_id"`
	Timestamp  int64  `json:"timestamp"`
	Action     string `json:"action"`
	Transport  string `json:"transport"`
	TraceID    string `json:"trace_id,omitempty"`
	Parameters string `json:"parameters,omitempty"`
	Result     string `json:"result,omitempty"`
	Error      string `json:"error,omitempty"`
	DurationMs int64  `json:"duration_ms"`
	Status     string `json:"status"`
}

// Summarizer lets a request or response choose what goes into the trail
// instead of being marshalled whole. Page requests use it to keep HTML
// bodies out of the database.
type Summarizer interface {
	AuditSummary() any
}

// SQLiteLogger writes entries to audit_log.
type SQLiteLogger struct {
	db     *sql.DB
	newID  idgen.Generator
	logger *slog.Logger
	ch     chan *Entry
	done   chan struct{}
}

// Option configures a SQLiteLogger.
type Option func(*SQLiteLogger)

// WithIDGenerator sets the entry id generator.
func WithIDGenerator(gen idgen.Generator) Option {
	return func(l *SQLiteLogger) { l.newID = gen }
}

// WithLogger sets the logger used for write failures.
func WithLogger(logger *slog.Logger) Option {
	return func(l *SQLiteLogger) { l.logger = logger }
}

// NewSQLiteLogger starts the flush goroutine. Call Init before logging and
// Close when done.
func NewSQLiteLogger(db *sql.DB, opts ...Option) *SQLiteLogger {
	l := &SQLiteLogger{
		db:     db,
		newID:  idgen.Prefixed("audit_", idgen.Default),
		logger: slog.Default(),
		ch:     make(chan *Entry, 1024),
		done:   make(chan struct{}),
	}
	for _, o := range opts {
		o(l)
	}
	go l.flushLoop()
	return l
}

// Init creates the schema if needed.
func (l *SQLiteLogger) Init() error {
	if _, err := l.db.Exec(Schema); err != nil {
		return fmt.Errorf("audit: init: %w", err)
	}
	return nil
}

// Log writes entry synchronously.
func (l *SQLiteLogger) Log(ctx context.Context, entry *Entry) error {
	l.fillDefaults(entry)
	_, err := l.db.ExecContext(ctx, insertSQL, args(entry)...)
	return err
}

// LogAsync queues entry. When the buffer is full it is written inline.
func (l *SQLiteLogger) LogAsync(entry *Entry) {
	l.fillDefaults(entry)
	select {
	case l.ch <- entry:
	default:
		l.logger.Warn("audit: buffer full, writing inline", "action", entry.Action)
		if err := l.Log(context.Background(), entry); err != nil {
			l.logger.Error("audit: inline write failed", "error", err)
		}
	}
}

// Recent returns the newest entries, optionally restricted to one action.
func (l *SQLiteLogger) Recent(ctx context.Context, action string, limit int) ([]Entry, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	q := `SELECT entry_id, timestamp, action, transport,
		COALESCE(trace_id, ''), parameters, COALESCE(result, ''),
		COALESCE(error_message, ''), COALESCE(duration_ms, 0), status
		FROM audit_log`
	var qargs []any
	if action != "" {
		q += ` WHERE action = ?`
		qargs = append(qargs, action)
	}
	q += ` ORDER BY timestamp DESC, entry_id DESC LIMIT ?`
	qargs = append(qargs, limit)

	rows, err := l.db.QueryContext(ctx, q, qargs...)
	if err != nil {
		return nil, fmt.Errorf("audit: query: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.EntryID, &e.Timestamp, &e.Action, &e.Transport,
			&e.TraceID, &e.Parameters, &e.Result, &e.Error, &e.DurationMs, &e.Status); err != nil {
			return nil, fmt.Errorf("audit: scan: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Cleanup deletes entries older than maxAge.
func (l *SQLiteLogger) Cleanup(ctx context.Context, maxAge time.Duration) (int64, error) {
	cutoff := time.Now().Add(-maxAge).UnixMilli()
	res, err := l.db.ExecContext(ctx, `DELETE FROM audit_log WHERE timestamp < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("audit: cleanup: %w", err)
	}
	return res.RowsAffected()
}

// Close flushes queued entries and stops the flush goroutine.
func (l *SQLiteLogger) Close() error {
	close(l.ch)
	<-l.done
	return nil
}

func (l *SQLiteLogger) fillDefaults(e *Entry) {
	if e.EntryID == "" {
		e.EntryID = l.newID()
	}
	if e.Timestamp == 0 {
		e.Timestamp = time.Now().UnixMilli()
	}
	if e.Transport == "" {
		e.Transport = "http"
	}
	if e.Parameters == "" {
		e.Parameters = "{}"
	}
	if e.Status == "" {
		if e.Error != "" {
			e.Status = "error"
		} else {
			e.Status = "success"
		}
	}
}

func (l *SQLiteLogger) flushLoop() {
	defer close(l.done)
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	batch := make([]*Entry, 0, batchSize)

	for {
		select {
		case e, ok := <-l.ch:
			if !ok {
				l.flush(batch)
				return
			}
			batch = append(batch, e)
			if len(batch) >= batchSize {
				l.flush(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			l.flush(batch)
			batch = batch[:0]
		}
	}
}

func (l *SQLiteLogger) flush(batch []*Entry) {
	if len(batch) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		l.logger.Error("audit: begin", "error", err)
		return
	}
	stmt, err := tx.PrepareContext(ctx, insertSQL)
	if err != nil {
		tx.Rollback()
		l.logger.Error("audit: prepare", "error", err)
		return
	}
	defer stmt.Close()
	for _, e := range batch {
		if _, err := stmt.ExecContext(ctx, args(e)...); err != nil {
			l.logger.Error("audit: insert", "entry_id", e.EntryID, "error", err)
		}
	}
	if err := tx.Commit(); err != nil {
		l.logger.Error("audit: commit", "error", err)
	}
}

const insertSQL = `INSERT INTO audit_log
	(entry_id, timestamp, action, transport, trace_id,
	 parameters, result, error_message, duration_ms, status)
	VALUES (?,?,?,?,?,?,?,?,?,?)`

func args(e *Entry) []any {
	return []any{e.EntryID, e.Timestamp, e.Action, e.Transport, e.TraceID,
		e.Parameters, e.Result, e.Error, e.DurationMs, e.Status}
}

// Middleware records every call of the wrapped endpoint under action.
func Middleware(l *SQLiteLogger, action string) kit.Middleware {
	return func(next kit.Endpoint) kit.Endpoint {
		return func(ctx context.Context, req any) (any, error) {
			start := time.Now()
			resp, err := next(ctx, req)
			e := &Entry{
				Action:     action,
				Transport:  kit.GetTransport(ctx),
				TraceID:    kit.GetTraceID(ctx),
				Parameters: marshal(req),
				DurationMs: time.Since(start).Milliseconds(),
			}
			if err != nil {
				e.Error = err.Error()
			} else {
				e.Result = marshal(resp)
			}
			l.LogAsync(e)
			return resp, err
		}
	}
}

func marshal(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(Summarizer); ok {
		v = s.AuditSummary()
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}
