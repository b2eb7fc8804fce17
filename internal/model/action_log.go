package model

import "time"

// 审计事件类型（路由键）
const (
	EventEmailTrashed = "mailbox.email_trashed"
	EventReplySent    = "mailbox.reply_sent"
)

// MailboxActionEvent 已执行的邮箱变更
type MailboxActionEvent struct {
	SessionID string    `json:"session_id"`
	Email     string    `json:"email"`
	EmailID   string    `json:"email_id"`
	ThreadID  string    `json:"thread_id,omitempty"`
	Recipient string    `json:"recipient,omitempty"`
	At        time.Time `json:"at"`
}

// ActionLog action_log 表的一行
type ActionLog struct {
	ID        int64
	EventID   string
	Kind      string
	SessionID string
	Email     string
	EmailID   string
	ThreadID  string
	Recipient string
	At        time.Time
	CreatedAt time.Time
}
