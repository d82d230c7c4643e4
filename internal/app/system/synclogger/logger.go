// internal/app/system/synclogger/logger.go
package synclogger

import (
	"context"
	"fmt"
	"strings"

	"github.com/dalemusser/agentcanvas/internal/app/store/synclog"
	"github.com/dalemusser/agentcanvas/internal/domain/models"
	"go.uber.org/zap"
)

// Modes for Config.Mode.
const (
	ModeAll = "all" // MongoDB + zap
	ModeDB  = "db"  // MongoDB only
	ModeLog = "log" // zap only
	ModeOff = "off" // disabled
)

// Config holds sync logging configuration.
type Config struct {
	// Mode controls where entries go: "all", "db", "log", or "off".
	// Empty means "all".
	Mode string
}

// Logger records sync attempts. It writes to the sync_logs collection
// (via synclog.Store) and to structured logs (via zap).
type Logger struct {
	store  *synclog.Store
	zapLog *zap.Logger
	config Config
}

// New creates a new sync Logger.
func New(store *synclog.Store, zapLog *zap.Logger, config Config) *Logger {
	if zapLog == nil {
		zapLog = zap.NewNop()
	}
	return &Logger{
		store:  store,
		zapLog: zapLog,
		config: config,
	}
}

// ValidMode reports whether m is an accepted Config.Mode value.
func ValidMode(m string) bool {
	switch strings.ToLower(m) {
	case "", ModeAll, ModeDB, ModeLog, ModeOff:
		return true
	}
	return false
}

func (l *Logger) mode() string {
	m := strings.ToLower(l.config.Mode)
	if m == "" {
		return ModeAll
	}
	return m
}

// logToZap logs the entry to zap with consistent structure.
func (l *Logger) logToZap(e models.SyncLogEntry) {
	fields := []zap.Field{
		zap.Bool("audit", true),
		zap.String("sync_type", e.Type),
		zap.String("status", e.Status),
	}
	if e.UserID != "" {
		fields = append(fields, zap.String("user_id", e.UserID))
	}
	if e.RunID != "" {
		fields = append(fields, zap.String("run_id", e.RunID))
	}
	if e.Detail != "" {
		fields = append(fields, zap.String("detail", e.Detail))
	}

	switch e.Status {
	case models.SyncStatusError:
		l.zapLog.Error("membership sync", fields...)
	case models.SyncStatusPartial:
		l.zapLog.Warn("membership sync", fields...)
	default:
		l.zapLog.Info("membership sync", fields...)
	}
}

// Log records a sync log entry according to configuration.
// If the logger is nil, this is a no-op. A storage failure is logged,
// never returned: a sync that succeeded must not be reported as failed
// because its log line could not be written.
func (l *Logger) Log(ctx context.Context, e models.SyncLogEntry) {
	if l == nil {
		return
	}

	mode := l.mode()
	if mode == ModeOff {
		return
	}
	if mode == ModeAll || mode == ModeLog {
		l.logToZap(e)
	}
	if (mode == ModeAll || mode == ModeDB) && l.store != nil {
		if err := l.store.Log(ctx, e); err != nil {
			l.zapLog.Error("failed to store sync log entry",
				zap.Error(err),
				zap.String("sync_type", e.Type),
				zap.String("user_id", e.UserID),
			)
		}
	}
}

// LogSync appends one entry for a sync attempt. userID is empty for
// organization-wide sweeps.
func (l *Logger) LogSync(ctx context.Context, syncType, status, userID, detail string) {
	l.Log(ctx, models.SyncLogEntry{
		Type:   syncType,
		Status: status,
		UserID: userID,
		Detail: detail,
	})
}

// LogResult logs the outcome of a completed reconciliation pass.
func (l *Logger) LogResult(ctx context.Context, syncType, userID, runID string, res models.SyncResult) {
	l.Log(ctx, models.SyncLogEntry{
		Type:   syncType,
		Status: StatusFor(res),
		UserID: userID,
		RunID:  runID,
		Detail: Describe(res),
	})
}

// LogFailure logs a sync attempt that could not run, typically because the
// identity-provider fetch failed. No membership writes happened.
func (l *Logger) LogFailure(ctx context.Context, syncType, userID, runID string, err error) {
	detail := ""
	if err != nil {
		detail = err.Error()
	}
	l.Log(ctx, models.SyncLogEntry{
		Type:   syncType,
		Status: models.SyncStatusError,
		UserID: userID,
		RunID:  runID,
		Detail: detail,
	})
}

// StatusFor derives the log status for a result: "partial" when any
// per-record error was collected, "success" otherwise.
func StatusFor(res models.SyncResult) string {
	if len(res.Errors) > 0 {
		return models.SyncStatusPartial
	}
	return models.SyncStatusSuccess
}

// Describe renders a result as a short detail string.
func Describe(res models.SyncResult) string {
	s := fmt.Sprintf("added=%d updated=%d removed=%d", res.Added, res.Updated, res.Removed)
	if n := len(res.Errors); n > 0 {
		s += fmt.Sprintf(" errors=%d: %s", n, strings.Join(res.Errors, "; "))
	}
	return s
}
