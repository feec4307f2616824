package database

import "time"

type Setting struct {
	Key       string    `gorm:"primaryKey" json:"key"`
	Value     string    `gorm:"not null" json:"value"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// AuditEvent records security-relevant activity: login attempts and
// terminal attach/detach. Rows older than the configured retention are
// pruned by a background job.
type AuditEvent struct {
	ID         uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Kind       string    `gorm:"not null;index" json:"kind"`
	Detail     string    `json:"detail"`
	RemoteAddr string    `json:"remote_addr"`
	CreatedAt  time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

// Audit event kinds.
const (
	AuditLoginSuccess   = "login_success"
	AuditLoginFailure   = "login_failure"
	AuditTokenRefresh   = "token_refresh"
	AuditTerminalAttach = "terminal_attach"
	AuditTerminalDetach = "terminal_detach"
	AuditSessionCreate  = "session_create"
	AuditSessionKill    = "session_kill"
)
