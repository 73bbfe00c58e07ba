package repository

import (
	"context"

	"github.com/smallbiznis/duesledger/internal/notification/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Sink {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, n *domain.Notification) error {
	if n == nil {
		return nil
	}
	return db.WithContext(ctx).Exec(
		`INSERT INTO notifications (id, user_id, title, message, type, metadata, is_read, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		n.ID,
		n.UserID,
		n.Title,
		n.Message,
		n.Type,
		n.Metadata,
		n.IsRead,
		n.CreatedAt,
	).Error
}
