package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ListFilter narrows payment listings. Zero values are ignored.
type ListFilter struct {
	MemberID    string
	GroupID     string
	GroupedOnly bool
	Category    string
	Statuses    []Status
}

// SumFilter selects the rows of an aggregate read.
type SumFilter struct {
	Status        Status
	WithMember    bool
	WithoutMember bool
	Category      string
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, p *Payment) error
	BatchInsert(ctx context.Context, db *gorm.DB, ps []*Payment) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Payment, error)
	// FindByIDs returns rows in the order of ids, skipping unknown ids.
	FindByIDs(ctx context.Context, db *gorm.DB, ids []snowflake.ID) ([]*Payment, error)
	// FindByIDsForUpdate returns rows in the order of ids, locking them where supported.
	FindByIDsForUpdate(ctx context.Context, db *gorm.DB, ids []snowflake.ID) ([]*Payment, error)
	ListByCharge(ctx context.Context, db *gorm.DB, groupID string, key ChargeKey) ([]*Payment, error)
	// ListDetached returns ungrouped rows of member for the charge category and due date.
	ListDetached(ctx context.Context, db *gorm.DB, memberID string, key ChargeKey) ([]*Payment, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]*Payment, error)
	UpdateSettlement(ctx context.Context, db *gorm.DB, p *Payment) error
	UpdateGrouping(ctx context.Context, db *gorm.DB, p *Payment) error
	Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) error
	SumAmount(ctx context.Context, db *gorm.DB, filter SumFilter) (decimal.Decimal, error)
}
