package repository

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/duesledger/internal/payment/domain"
	"github.com/smallbiznis/duesledger/pkg/db"
	"github.com/smallbiznis/duesledger/pkg/money"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const paymentColumns = `id, member_id, group_id, category, amount, paid_amount, status,
	due_date, paid_at, observation, created_at, updated_at`

func (r *repo) Insert(ctx context.Context, tx *gorm.DB, p *domain.Payment) error {
	if p == nil {
		return nil
	}
	return tx.WithContext(ctx).Exec(
		`INSERT INTO payments (`+paymentColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID,
		p.MemberID,
		p.GroupID,
		p.Category,
		p.Amount,
		p.PaidAmount,
		p.Status,
		p.DueDate,
		p.PaidAt,
		p.Observation,
		p.CreatedAt,
		p.UpdatedAt,
	).Error
}

func (r *repo) BatchInsert(ctx context.Context, tx *gorm.DB, ps []*domain.Payment) error {
	for _, p := range ps {
		if err := r.Insert(ctx, tx, p); err != nil {
			return err
		}
	}
	return nil
}

func (r *repo) FindByID(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*domain.Payment, error) {
	var item domain.Payment
	err := tx.WithContext(ctx).Raw(
		`SELECT `+paymentColumns+`
		 FROM payments
		 WHERE id = ?
		 LIMIT 1`,
		id,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) FindByIDs(ctx context.Context, tx *gorm.DB, ids []snowflake.ID) ([]*domain.Payment, error) {
	return r.findByIDs(tx.WithContext(ctx), ids)
}

func (r *repo) FindByIDsForUpdate(ctx context.Context, tx *gorm.DB, ids []snowflake.ID) ([]*domain.Payment, error) {
	return r.findByIDs(db.ForUpdate(tx.WithContext(ctx)), ids)
}

func (r *repo) findByIDs(stmt *gorm.DB, ids []snowflake.ID) ([]*domain.Payment, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var items []*domain.Payment
	err := stmt.Model(&domain.Payment{}).
		Where("id IN ?", ids).
		Find(&items).Error
	if err != nil {
		return nil, err
	}

	byID := make(map[snowflake.ID]*domain.Payment, len(items))
	for _, item := range items {
		byID[item.ID] = item
	}
	ordered := make([]*domain.Payment, 0, len(ids))
	for _, id := range ids {
		if item, ok := byID[id]; ok {
			ordered = append(ordered, item)
		}
	}
	return ordered, nil
}

// ListByCharge filters amount in Go: numeric equality across drivers is not
// reliable once values went through float scans.
func (r *repo) ListByCharge(ctx context.Context, tx *gorm.DB, groupID string, key domain.ChargeKey) ([]*domain.Payment, error) {
	var items []*domain.Payment
	err := tx.WithContext(ctx).Raw(
		`SELECT `+paymentColumns+`
		 FROM payments
		 WHERE group_id = ? AND category = ? AND due_date = ?
		 ORDER BY member_id ASC, id ASC`,
		groupID,
		key.Category,
		key.DueDate,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return filterByKey(items, key), nil
}

func (r *repo) ListDetached(ctx context.Context, tx *gorm.DB, memberID string, key domain.ChargeKey) ([]*domain.Payment, error) {
	var items []*domain.Payment
	err := tx.WithContext(ctx).Raw(
		`SELECT `+paymentColumns+`
		 FROM payments
		 WHERE member_id = ? AND group_id IS NULL AND category = ? AND due_date = ?
		 ORDER BY created_at ASC, id ASC`,
		memberID,
		key.Category,
		key.DueDate,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return filterByKey(items, key), nil
}

func (r *repo) List(ctx context.Context, tx *gorm.DB, filter domain.ListFilter) ([]*domain.Payment, error) {
	var items []*domain.Payment
	stmt := tx.WithContext(ctx).Model(&domain.Payment{})

	if memberID := strings.TrimSpace(filter.MemberID); memberID != "" {
		stmt = stmt.Where("member_id = ?", memberID)
	}
	if groupID := strings.TrimSpace(filter.GroupID); groupID != "" {
		stmt = stmt.Where("group_id = ?", groupID)
	} else if filter.GroupedOnly {
		stmt = stmt.Where("group_id IS NOT NULL")
	}
	if category := strings.TrimSpace(filter.Category); category != "" {
		stmt = stmt.Where("category = ?", category)
	}
	if len(filter.Statuses) > 0 {
		stmt = stmt.Where("status IN ?", filter.Statuses)
	}

	if err := stmt.Order("due_date asc, member_id asc, id asc").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) UpdateSettlement(ctx context.Context, tx *gorm.DB, p *domain.Payment) error {
	return tx.WithContext(ctx).Exec(
		`UPDATE payments
		 SET paid_amount = ?, status = ?, paid_at = ?, updated_at = ?
		 WHERE id = ?`,
		p.PaidAmount,
		p.Status,
		p.PaidAt,
		p.UpdatedAt,
		p.ID,
	).Error
}

func (r *repo) UpdateGrouping(ctx context.Context, tx *gorm.DB, p *domain.Payment) error {
	return tx.WithContext(ctx).Exec(
		`UPDATE payments
		 SET group_id = ?, observation = ?, updated_at = ?
		 WHERE id = ?`,
		p.GroupID,
		p.Observation,
		p.UpdatedAt,
		p.ID,
	).Error
}

func (r *repo) Delete(ctx context.Context, tx *gorm.DB, id snowflake.ID) error {
	return tx.WithContext(ctx).Exec(`DELETE FROM payments WHERE id = ?`, id).Error
}

func (r *repo) SumAmount(ctx context.Context, tx *gorm.DB, filter domain.SumFilter) (decimal.Decimal, error) {
	stmt := tx.WithContext(ctx).Model(&domain.Payment{}).Select("COALESCE(SUM(amount), 0) AS total")
	if filter.Status != "" {
		stmt = stmt.Where("status = ?", filter.Status)
	}
	if filter.WithMember {
		stmt = stmt.Where("member_id IS NOT NULL")
	}
	if filter.WithoutMember {
		stmt = stmt.Where("member_id IS NULL")
	}
	if filter.Category != "" {
		stmt = stmt.Where("category = ?", filter.Category)
	}

	var row struct {
		Total decimal.Decimal `gorm:"column:total"`
	}
	if err := stmt.Scan(&row).Error; err != nil {
		return decimal.Zero, err
	}
	// sqlite hands back float sums
	return money.Round2(row.Total), nil
}

func filterByKey(items []*domain.Payment, key domain.ChargeKey) []*domain.Payment {
	out := items[:0]
	for _, item := range items {
		if item != nil && key.Matches(*item) {
			out = append(out, item)
		}
	}
	return out
}
