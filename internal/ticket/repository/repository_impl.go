package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/duesledger/internal/ticket/domain"
	"github.com/smallbiznis/duesledger/pkg/db"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const ticketColumns = `id, code, payment_id, proof_id, user_id, amount, payment_status,
	approved_by, approved_at, expires_at, proof_image, created_at`

func (r *repo) Insert(ctx context.Context, tx *gorm.DB, t *domain.Ticket) error {
	if t == nil {
		return nil
	}
	err := tx.WithContext(ctx).Exec(
		`INSERT INTO payment_tickets (`+ticketColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID,
		t.Code,
		t.PaymentID,
		t.ProofID,
		t.UserID,
		t.Amount,
		t.PaymentStatus,
		t.ApprovedBy,
		t.ApprovedAt,
		t.ExpiresAt,
		t.ProofImage,
		t.CreatedAt,
	).Error
	if db.IsDuplicateKeyErr(err) {
		return domain.ErrDuplicateTicket
	}
	return err
}

func (r *repo) FindByID(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*domain.Ticket, error) {
	return r.findOne(ctx, tx, "id = ?", id)
}

func (r *repo) FindByCode(ctx context.Context, tx *gorm.DB, code string) (*domain.Ticket, error) {
	return r.findOne(ctx, tx, "code = ?", code)
}

func (r *repo) findOne(ctx context.Context, tx *gorm.DB, where string, arg any) (*domain.Ticket, error) {
	var item domain.Ticket
	err := tx.WithContext(ctx).Raw(
		`SELECT `+ticketColumns+`
		 FROM payment_tickets
		 WHERE `+where+`
		 LIMIT 1`,
		arg,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) ListByPayment(ctx context.Context, tx *gorm.DB, paymentID snowflake.ID) ([]*domain.Ticket, error) {
	var items []*domain.Ticket
	err := tx.WithContext(ctx).Raw(
		`SELECT `+ticketColumns+`
		 FROM payment_tickets
		 WHERE payment_id = ?
		 ORDER BY approved_at ASC, id ASC`,
		paymentID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) ListByUser(ctx context.Context, tx *gorm.DB, userID string) ([]*domain.Ticket, error) {
	var items []*domain.Ticket
	err := tx.WithContext(ctx).Raw(
		`SELECT `+ticketColumns+`
		 FROM payment_tickets
		 WHERE user_id = ?
		 ORDER BY approved_at DESC, id DESC`,
		userID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) CountByPayments(ctx context.Context, tx *gorm.DB, paymentIDs []snowflake.ID) (map[snowflake.ID]int64, error) {
	counts := make(map[snowflake.ID]int64, len(paymentIDs))
	if len(paymentIDs) == 0 {
		return counts, nil
	}

	var rows []struct {
		PaymentID snowflake.ID `gorm:"column:payment_id"`
		Total     int64        `gorm:"column:total"`
	}
	err := tx.WithContext(ctx).Raw(
		`SELECT payment_id, COUNT(*) AS total
		 FROM payment_tickets
		 WHERE payment_id IN ?
		 GROUP BY payment_id`,
		paymentIDs,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		counts[row.PaymentID] = row.Total
	}
	return counts, nil
}

func (r *repo) Purge(ctx context.Context, tx *gorm.DB, id snowflake.ID) error {
	return tx.WithContext(ctx).Exec(`DELETE FROM payment_tickets WHERE id = ?`, id).Error
}
