package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// AuditLog records one mutation sent to the PPM backend on a user's behalf.
type AuditLog struct {
	ID         uuid.UUID      `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	SessionID  string         `gorm:"index;not null" json:"session_id"`
	Action     string         `gorm:"not null" json:"action"` // create, update, delete
	ObjectType string         `gorm:"index;not null" json:"object_type"`
	Target     string         `json:"target"`
	RecordID   string         `json:"record_id"`
	Method     string         `json:"method"`
	Endpoint   string         `json:"endpoint"`
	Success    bool           `gorm:"default:false" json:"success"`
	Error      string         `gorm:"type:text" json:"error,omitempty"`
	Details    datatypes.JSON `gorm:"type:jsonb" json:"details"`
	CreatedAt  time.Time      `json:"created_at"`
}
