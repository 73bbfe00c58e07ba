package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/duesledger/internal/proof/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const proofColumns = `id, payment_id, user_id, proof_amount, payment_method, observation, status,
	rejection_reason, rejection_note, proof_image, submitted_at, reviewed_at, reviewed_by`

func (r *repo) Insert(ctx context.Context, db *gorm.DB, p *domain.Proof) error {
	if p == nil {
		return nil
	}
	return db.WithContext(ctx).Exec(
		`INSERT INTO payment_proofs (`+proofColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID,
		p.PaymentID,
		p.UserID,
		p.ProofAmount,
		p.PaymentMethod,
		p.Observation,
		p.Status,
		p.RejectionReason,
		p.RejectionNote,
		p.ProofImage,
		p.SubmittedAt,
		p.ReviewedAt,
		p.ReviewedBy,
	).Error
}

func (r *repo) InsertTargets(ctx context.Context, db *gorm.DB, targets []domain.Target) error {
	for _, t := range targets {
		err := db.WithContext(ctx).Exec(
			`INSERT INTO payment_proof_targets (proof_id, payment_id, seq) VALUES (?, ?, ?)`,
			t.ProofID,
			t.PaymentID,
			t.Seq,
		).Error
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Proof, error) {
	var item domain.Proof
	err := db.WithContext(ctx).Raw(
		`SELECT `+proofColumns+`
		 FROM payment_proofs
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

func (r *repo) Targets(ctx context.Context, db *gorm.DB, p *domain.Proof) ([]snowflake.ID, error) {
	var ids []snowflake.ID
	err := db.WithContext(ctx).Raw(
		`SELECT payment_id
		 FROM payment_proof_targets
		 WHERE proof_id = ?
		 ORDER BY seq ASC`,
		p.ID,
	).Scan(&ids).Error
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []snowflake.ID{p.PaymentID}, nil
	}
	return ids, nil
}

func (r *repo) MarkReviewed(ctx context.Context, db *gorm.DB, p *domain.Proof) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE payment_proofs
		 SET status = ?, rejection_reason = ?, rejection_note = ?, reviewed_at = ?, reviewed_by = ?
		 WHERE id = ? AND status = ?`,
		p.Status,
		p.RejectionReason,
		p.RejectionNote,
		p.ReviewedAt,
		p.ReviewedBy,
		p.ID,
		domain.StatusPending,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]*domain.Proof, error) {
	var items []*domain.Proof
	stmt := db.WithContext(ctx).Model(&domain.Proof{})
	if filter.Status != "" {
		stmt = stmt.Where("status = ?", filter.Status)
	}
	if filter.Cursor != nil {
		stmt = stmt.Where("(submitted_at > ?) OR (submitted_at = ? AND id > ?)",
			filter.Cursor.Time,
			filter.Cursor.Time,
			filter.Cursor.ID,
		)
	}

	// oldest first: reviewers work the queue in arrival order
	stmt = stmt.Order("submitted_at asc, id asc")
	if filter.Limit > 0 {
		stmt = stmt.Limit(filter.Limit + 1)
	}
	if err := stmt.Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) DeleteUnapproved(ctx context.Context, db *gorm.DB, paymentID snowflake.ID) (int64, error) {
	var ids []snowflake.ID
	err := db.WithContext(ctx).Raw(
		`SELECT id
		 FROM payment_proofs
		 WHERE status <> ?
		   AND (payment_id = ? OR id IN (SELECT proof_id FROM payment_proof_targets WHERE payment_id = ?))`,
		domain.StatusApproved,
		paymentID,
		paymentID,
	).Scan(&ids).Error
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	if err := db.WithContext(ctx).Exec(`DELETE FROM payment_proof_targets WHERE proof_id IN ?`, ids).Error; err != nil {
		return 0, err
	}
	result := db.WithContext(ctx).Exec(`DELETE FROM payment_proofs WHERE id IN ?`, ids)
	return result.RowsAffected, result.Error
}
