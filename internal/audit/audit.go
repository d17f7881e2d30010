// Package audit records mutations the assistant performs against the PPM
// backend.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/ahmetk3436/ppmchat/internal/models"
)

// Entry describes one attempted mutation.
type Entry struct {
	SessionID  string
	Action     string
	ObjectType string
	Target     string
	RecordID   string
	Method     string
	Endpoint   string
	Success    bool
	Error      string
	Details    map[string]any
}

// Query filters List results. Zero values match everything.
type Query struct {
	SessionID  string
	Action     string
	ObjectType string
	Page       int
	PerPage    int
}

func (q *Query) normalize() {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PerPage < 1 || q.PerPage > 200 {
		q.PerPage = 50
	}
}

// Recorder stores and lists audit entries.
type Recorder interface {
	Record(ctx context.Context, e Entry) error
	List(ctx context.Context, q Query) ([]models.AuditLog, int64, error)
}

func toModel(e Entry) models.AuditLog {
	var details datatypes.JSON
	if e.Details != nil {
		if b, err := json.Marshal(e.Details); err == nil {
			details = datatypes.JSON(b)
		}
	}
	return models.AuditLog{
		SessionID:  e.SessionID,
		Action:     e.Action,
		ObjectType: e.ObjectType,
		Target:     e.Target,
		RecordID:   e.RecordID,
		Method:     e.Method,
		Endpoint:   e.Endpoint,
		Success:    e.Success,
		Error:      e.Error,
		Details:    details,
	}
}

// ─── Database recorder ──────────────────────────────────────────────────────

type DBRecorder struct {
	db *gorm.DB
}

func NewDBRecorder(db *gorm.DB) *DBRecorder {
	return &DBRecorder{db: db}
}

func (r *DBRecorder) Record(ctx context.Context, e Entry) error {
	log := toModel(e)
	if err := r.db.WithContext(ctx).Create(&log).Error; err != nil {
		return fmt.Errorf("create audit log: %w", err)
	}
	return nil
}

func (r *DBRecorder) List(ctx context.Context, q Query) ([]models.AuditLog, int64, error) {
	q.normalize()
	query := r.db.WithContext(ctx).Model(&models.AuditLog{})

	if q.SessionID != "" {
		query = query.Where("session_id = ?", q.SessionID)
	}
	if q.Action != "" {
		query = query.Where("action = ?", q.Action)
	}
	if q.ObjectType != "" {
		query = query.Where("object_type = ?", q.ObjectType)
	}

	var total int64
	query.Count(&total)

	var logs []models.AuditLog
	if err := query.Order("created_at DESC").
		Offset((q.Page - 1) * q.PerPage).
		Limit(q.PerPage).
		Find(&logs).Error; err != nil {
		return nil, 0, fmt.Errorf("list audit logs: %w", err)
	}
	return logs, total, nil
}

// ─── In-memory recorder ─────────────────────────────────────────────────────

// MemoryRecorder keeps the newest entries in process memory. It is used when
// no audit database is configured.
type MemoryRecorder struct {
	mu      sync.Mutex
	max     int
	entries []models.AuditLog
	now     func() time.Time
}

func NewMemoryRecorder(max int) *MemoryRecorder {
	if max <= 0 {
		max = 500
	}
	return &MemoryRecorder{max: max, now: time.Now}
}

func (r *MemoryRecorder) Record(_ context.Context, e Entry) error {
	log := toModel(e)
	log.ID = uuid.New()
	log.CreatedAt = r.now()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, log)
	if over := len(r.entries) - r.max; over > 0 {
		r.entries = append([]models.AuditLog(nil), r.entries[over:]...)
	}
	return nil
}

func (r *MemoryRecorder) List(_ context.Context, q Query) ([]models.AuditLog, int64, error) {
	q.normalize()

	r.mu.Lock()
	defer r.mu.Unlock()

	var matched []models.AuditLog
	for i := len(r.entries) - 1; i >= 0; i-- {
		l := r.entries[i]
		if q.SessionID != "" && l.SessionID != q.SessionID {
			continue
		}
		if q.Action != "" && l.Action != q.Action {
			continue
		}
		if q.ObjectType != "" && l.ObjectType != q.ObjectType {
			continue
		}
		matched = append(matched, l)
	}

	total := int64(len(matched))
	start := (q.Page - 1) * q.PerPage
	if start >= len(matched) {
		return []models.AuditLog{}, total, nil
	}
	end := min(start+q.PerPage, len(matched))
	return matched[start:end], total, nil
}

// Safe records e and logs instead of returning a failure. Audit problems
// never fail the user's request.
func Safe(ctx context.Context, r Recorder, e Entry) {
	if r == nil {
		return
	}
	if err := r.Record(ctx, e); err != nil {
		slog.Error("Audit record failed", "action", e.Action, "object", e.ObjectType, "error", err)
	}
}
