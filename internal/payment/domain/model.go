package domain

import (
	"database/sql/driver"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// Payment is one billing row of the ledger: a member's share of a charge,
// a general expense (no member), or a cash outflow.
type Payment struct {
	ID          snowflake.ID    `gorm:"column:id;primaryKey" json:"id"`
	MemberID    *string         `gorm:"column:member_id" json:"member_id,omitempty"`
	GroupID     *string         `gorm:"column:group_id" json:"group_id,omitempty"`
	Category    string          `gorm:"column:category" json:"category"`
	Amount      decimal.Decimal `gorm:"column:amount;type:numeric(12,2)" json:"amount"`
	PaidAmount  decimal.Decimal `gorm:"column:paid_amount;type:numeric(12,2)" json:"paid_amount"`
	Status      Status          `gorm:"column:status" json:"status"`
	DueDate     Date            `gorm:"column:due_date;type:date" json:"due_date"`
	PaidAt      *time.Time      `gorm:"column:paid_at" json:"paid_at,omitempty"`
	Observation string          `gorm:"column:observation" json:"observation"`
	CreatedAt   time.Time       `gorm:"column:created_at" json:"created_at"`
	UpdatedAt   time.Time       `gorm:"column:updated_at" json:"updated_at"`
}

func (Payment) TableName() string { return "payments" }

// KindTag discriminates the three shapes a payment row can take.
type KindTag string

const (
	KindIndividual     KindTag = "individual"
	KindGroupMember    KindTag = "group_member"
	KindGeneralExpense KindTag = "general_expense"
)

// Kind is the tagged variant derived from the nullable member/group columns.
// GroupID is only set for KindGroupMember.
type Kind struct {
	Tag     KindTag
	GroupID string
}

func (p Payment) Kind() Kind {
	if p.MemberID == nil || strings.TrimSpace(*p.MemberID) == "" {
		return Kind{Tag: KindGeneralExpense}
	}
	if p.GroupID != nil && strings.TrimSpace(*p.GroupID) != "" {
		return Kind{Tag: KindGroupMember, GroupID: *p.GroupID}
	}
	return Kind{Tag: KindIndividual}
}

// Member returns the member id or "" for general expenses.
func (p Payment) Member() string {
	if p.MemberID == nil {
		return ""
	}
	return *p.MemberID
}

// Contribution is what this row adds to a group's paid total.
// Rows flagged paid count in full even when paid_amount lags behind.
func (p Payment) Contribution() decimal.Decimal {
	if p.Status == StatusPaid {
		return p.Amount
	}
	return p.PaidAmount
}

// Outstanding is the amount still owed on the row.
func (p Payment) Outstanding() decimal.Decimal {
	if p.Status == StatusPaid || p.Status == StatusExpense {
		return decimal.Zero
	}
	remaining := p.Amount.Sub(p.PaidAmount)
	if remaining.IsNegative() {
		return decimal.Zero
	}
	return remaining
}

// Validate checks the row invariants before it is written.
func (p Payment) Validate() error {
	if strings.TrimSpace(p.Category) == "" {
		return ErrInvalidCategory
	}
	if !p.Amount.IsPositive() {
		return ErrInvalidAmount
	}
	if p.PaidAmount.IsNegative() || p.PaidAmount.GreaterThan(p.Amount) {
		return ErrPaidAmountOutOfRange
	}
	if !p.Status.Valid() {
		return ErrInvalidStatus
	}
	if p.DueDate == "" {
		return ErrInvalidDueDate
	}
	return nil
}

// ChargeKey identifies one logical charge inside a group.
type ChargeKey struct {
	Category string          `json:"category"`
	Amount   decimal.Decimal `json:"amount"`
	DueDate  Date            `json:"due_date"`
}

// KeyOf returns the charge key of p.
func KeyOf(p Payment) ChargeKey {
	return ChargeKey{Category: p.Category, Amount: p.Amount, DueDate: p.DueDate}
}

// Matches compares category, amount and due date; amounts by value.
func (k ChargeKey) Matches(p Payment) bool {
	return p.Category == k.Category && p.DueDate == k.DueDate && p.Amount.Equal(k.Amount)
}

func (k ChargeKey) Validate() error {
	if strings.TrimSpace(k.Category) == "" {
		return ErrInvalidCategory
	}
	if !k.Amount.IsPositive() {
		return ErrInvalidAmount
	}
	if k.DueDate == "" {
		return ErrInvalidDueDate
	}
	return nil
}

func (k ChargeKey) String() string {
	return fmt.Sprintf("%s|%s|%s", k.Category, k.Amount.StringFixed(2), k.DueDate)
}

const DateLayout = "2006-01-02"

// Date is a calendar date stored as YYYY-MM-DD.
type Date string

func ParseDate(raw string) (Date, error) {
	raw = strings.TrimSpace(raw)
	if len(raw) > len(DateLayout) {
		raw = raw[:len(DateLayout)]
	}
	t, err := time.Parse(DateLayout, raw)
	if err != nil {
		return "", ErrInvalidDueDate
	}
	return NewDate(t), nil
}

func NewDate(t time.Time) Date {
	return Date(t.Format(DateLayout))
}

func (d Date) Time() time.Time {
	t, _ := time.Parse(DateLayout, string(d))
	return t
}

func (d Date) String() string { return string(d) }

func (d Date) Value() (driver.Value, error) {
	if d == "" {
		return nil, nil
	}
	return string(d), nil
}

func (d *Date) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*d = ""
	case time.Time:
		*d = NewDate(v)
	case string:
		parsed, err := ParseDate(v)
		if err != nil {
			return fmt.Errorf("scan date %q: %w", v, err)
		}
		*d = parsed
	case []byte:
		return d.Scan(string(v))
	default:
		return fmt.Errorf("scan date: unsupported type %T", src)
	}
	return nil
}
