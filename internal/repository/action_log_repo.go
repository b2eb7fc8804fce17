package repository

import (
	"context"

	"inboxpilot/internal/model"
)

type ActionLogRepository struct {
	db DBTX
}

func NewActionLogRepository(db DBTX) *ActionLogRepository {
	return &ActionLogRepository{db: db}
}

// Insert 按 event_id 幂等写入，返回是否真的插入了新行
func (r *ActionLogRepository) Insert(ctx context.Context, l *model.ActionLog) (bool, error) {
	query := `
        INSERT INTO action_log (event_id, kind, session_id, email, email_id, thread_id, recipient, at, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
        ON CONFLICT (event_id) DO NOTHING
    `
	var inserted bool
	err := observe(ctx, "insert", "action_log", query, func(ctx context.Context) error {
		tag, err := r.db.Exec(ctx, query,
			l.EventID, l.Kind, l.SessionID, l.Email, l.EmailID, l.ThreadID, l.Recipient, l.At,
		)
		if err != nil {
			return err
		}
		inserted = tag.RowsAffected() == 1
		return nil
	})
	return inserted, err
}
